package saidify

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hello0827/keripy/core"
	"github.com/hello0827/keripy/serdering"
)

func newIcpKed() *serdering.Ked {
	k := serdering.NewKed()
	k.Set("v", serdering.BuildVersionString(serdering.KindJSON, 0))
	k.Set("t", "icp")
	k.Set("d", "")
	k.Set("i", "")
	k.Set("s", "0")
	k.Set("kt", "1")
	k.Set("k", []any{"DAbc"})
	k.Set("n", "")
	k.Set("bt", "0")
	k.Set("b", []any{})
	k.Set("c", []any{})
	k.Set("a", []any{})
	return k
}

func TestSaidifyProducesBlake3Said(t *testing.T) {
	ked := newIcpKed()
	said, err := Saidify(ked, "d", core.CodeBlake3_256, serdering.KindJSON)
	require.NoError(t, err)
	require.Equal(t, string(core.CodeBlake3_256), said[:1])
	require.Equal(t, said, ked.GetString("d"))
}

func TestSaidifyFieldOrderUnchanged(t *testing.T) {
	ked := newIcpKed()
	before := append([]string{}, ked.Keys()...)
	_, err := Saidify(ked, "d", core.CodeBlake3_256, serdering.KindJSON)
	require.NoError(t, err)
	require.Equal(t, before, ked.Keys())
}

func TestVerifyRoundTrip(t *testing.T) {
	ked := newIcpKed()
	_, err := Saidify(ked, "d", core.CodeBlake3_256, serdering.KindJSON)
	require.NoError(t, err)

	ok, err := Verify(ked, "d", core.CodeBlake3_256, serdering.KindJSON)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestVerifyDetectsTamper(t *testing.T) {
	ked := newIcpKed()
	_, err := Saidify(ked, "d", core.CodeBlake3_256, serdering.KindJSON)
	require.NoError(t, err)

	ked.Set("kt", "2") // mutate after the SAID was sealed
	ok, err := Verify(ked, "d", core.CodeBlake3_256, serdering.KindJSON)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestSaidifyRejectsNonDigestCode(t *testing.T) {
	ked := newIcpKed()
	_, err := Saidify(ked, "d", core.CodeEd25519N, serdering.KindJSON)
	require.Error(t, err)
}
