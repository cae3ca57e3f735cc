package prefixing

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hello0827/keripy/core"
	"github.com/hello0827/keripy/serdering"
)

func bareIcpKed(key string) *serdering.Ked {
	k := serdering.NewKed()
	k.Set("v", serdering.BuildVersionString(serdering.KindJSON, 0))
	k.Set("t", "icp")
	k.Set("d", "")
	k.Set("i", "")
	k.Set("s", "0")
	k.Set("kt", "1")
	k.Set("k", []any{key})
	k.Set("n", "")
	k.Set("bt", "0")
	k.Set("b", []any{})
	k.Set("c", []any{})
	k.Set("a", []any{})
	return k
}

func TestDeriveBasicNonTransferable(t *testing.T) {
	signer, err := core.GenerateSigner(false)
	require.NoError(t, err)
	ked := bareIcpKed(signer.Verfer().Qb64())

	pre, err := Derive(ked, MethodBasicNonTransferable, core.CodeEd25519N, core.CodeBlake3_256, serdering.KindJSON)
	require.NoError(t, err)
	require.Equal(t, signer.Verfer().Qb64(), pre)
	require.Equal(t, pre, ked.GetString("i"))
}

func TestDeriveBasicNonTransferableRejectsWitnesses(t *testing.T) {
	signer, err := core.GenerateSigner(false)
	require.NoError(t, err)
	ked := bareIcpKed(signer.Verfer().Qb64())
	ked.Set("b", []any{"BWit1"})

	_, err = Derive(ked, MethodBasicNonTransferable, core.CodeEd25519N, core.CodeBlake3_256, serdering.KindJSON)
	require.Error(t, err)
}

func TestDeriveBasicTransferable(t *testing.T) {
	signer, err := core.GenerateSigner(true)
	require.NoError(t, err)
	ked := bareIcpKed(signer.Verfer().Qb64())

	pre, err := Derive(ked, MethodBasicTransferable, core.CodeEd25519, core.CodeBlake3_256, serdering.KindJSON)
	require.NoError(t, err)
	require.Equal(t, signer.Verfer().Qb64(), pre)
}

func TestDeriveSelfAddressingVerifies(t *testing.T) {
	signer, err := core.GenerateSigner(true)
	require.NoError(t, err)
	ked := bareIcpKed(signer.Verfer().Qb64())

	pre, err := Derive(ked, MethodSelfAddressing, core.CodeEd25519, core.CodeBlake3_256, serdering.KindJSON)
	require.NoError(t, err)
	require.Equal(t, pre, ked.GetString("d"))
	require.Equal(t, pre, ked.GetString("i"))

	ok, err := Verify(ked, MethodSelfAddressing, core.CodeEd25519, core.CodeBlake3_256, serdering.KindJSON)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestVerifyDetectsWrongKeyCode(t *testing.T) {
	signer, err := core.GenerateSigner(false)
	require.NoError(t, err)
	ked := bareIcpKed(signer.Verfer().Qb64())
	_, err = Derive(ked, MethodBasicNonTransferable, core.CodeEd25519N, core.CodeBlake3_256, serdering.KindJSON)
	require.NoError(t, err)

	_, err = Verify(ked, MethodBasicTransferable, core.CodeEd25519, core.CodeBlake3_256, serdering.KindJSON)
	require.Error(t, err)
}
