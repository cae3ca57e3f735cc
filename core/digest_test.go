package core

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDigestDefaultCode(t *testing.T) {
	require.Equal(t, CodeBlake3_256, DefaultDigestCode)
}

func TestDigestVerify(t *testing.T) {
	data := []byte("inception event bytes")
	d, err := Digest(DefaultDigestCode, data)
	require.NoError(t, err)

	ok, err := VerifyDigest(d, data)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = VerifyDigest(d, []byte("tampered"))
	require.NoError(t, err)
	require.False(t, ok)
}

func TestDigestRejectsNonDigestCode(t *testing.T) {
	_, err := Digest(CodeEd25519N, []byte("x"))
	require.Error(t, err)
}
