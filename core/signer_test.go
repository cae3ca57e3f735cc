package core

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSignerDeterministicFromSeed(t *testing.T) {
	seed := bytes.Repeat([]byte{0x2a}, 32)

	s1, err := NewSigner(seed, true)
	require.NoError(t, err)
	s2, err := NewSigner(seed, true)
	require.NoError(t, err)
	require.True(t, s1.Verfer().Equal(s2.Verfer()))

	msg := []byte("hello keri")
	require.Equal(t, s1.Sign(msg), s2.Sign(msg))
}

func TestSignerNonTransferableCode(t *testing.T) {
	s, err := GenerateSigner(false)
	require.NoError(t, err)
	require.True(t, s.Verfer().IsNonTransferable())
	require.Equal(t, CodeEd25519N, s.Verfer().Code())
}

func TestSignVerify(t *testing.T) {
	s, err := GenerateSigner(true)
	require.NoError(t, err)

	msg := []byte("rotation event bytes")
	sig := s.Sign(msg)
	require.True(t, VerifyWith(s.Verfer(), msg, sig))
	require.False(t, VerifyWith(s.Verfer(), []byte("other"), sig))
}
