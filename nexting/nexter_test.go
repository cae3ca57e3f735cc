package nexting

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hello0827/keripy/core"
)

func threeKeys(t *testing.T) []string {
	t.Helper()
	keys := make([]string, 3)
	for i := range keys {
		s, err := core.GenerateSigner(true)
		require.NoError(t, err)
		keys[i] = s.Verfer().Qb64()
	}
	return keys
}

func TestCommitDeterministic(t *testing.T) {
	keys := threeKeys(t)
	th, err := core.NewTholderInt(2)
	require.NoError(t, err)

	c1, err := Commit(th, keys, core.CodeBlake3_256)
	require.NoError(t, err)
	c2, err := Commit(th, keys, core.CodeBlake3_256)
	require.NoError(t, err)
	require.True(t, c1.Equal(c2))
}

func TestVerifyRoundTrip(t *testing.T) {
	keys := threeKeys(t)
	th, err := core.NewTholderInt(2)
	require.NoError(t, err)

	commitment, err := Commit(th, keys, core.CodeBlake3_256)
	require.NoError(t, err)

	ok, err := Verify(commitment, th, keys, core.CodeBlake3_256)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestVerifyDetectsThresholdTamper(t *testing.T) {
	keys := threeKeys(t)
	th2, err := core.NewTholderInt(2)
	require.NoError(t, err)
	th3, err := core.NewTholderInt(3)
	require.NoError(t, err)

	commitment, err := Commit(th2, keys, core.CodeBlake3_256)
	require.NoError(t, err)

	ok, err := Verify(commitment, th3, keys, core.CodeBlake3_256)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestVerifyDetectsKeyTamper(t *testing.T) {
	keys := threeKeys(t)
	th, err := core.NewTholderInt(2)
	require.NoError(t, err)
	commitment, err := Commit(th, keys, core.CodeBlake3_256)
	require.NoError(t, err)

	tampered := append([]string{}, keys...)
	other := threeKeys(t)
	tampered[0] = other[0]

	ok, err := Verify(commitment, th, tampered, core.CodeBlake3_256)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestCommitOrderIndependent(t *testing.T) {
	keys := threeKeys(t)
	th, err := core.NewTholderInt(2)
	require.NoError(t, err)

	c1, err := Commit(th, []string{keys[0], keys[1], keys[2]}, core.CodeBlake3_256)
	require.NoError(t, err)
	c2, err := Commit(th, []string{keys[2], keys[0], keys[1]}, core.CodeBlake3_256)
	require.NoError(t, err)
	require.True(t, c1.Equal(c2))
}
