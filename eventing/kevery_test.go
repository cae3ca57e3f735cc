package eventing_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hello0827/keripy/core"
	"github.com/hello0827/keripy/eventing"
	"github.com/hello0827/keripy/keritesting"
	"github.com/hello0827/keripy/storing"
)

func TestKeveryProcessEventBuildsKever(t *testing.T) {
	s0 := keritesting.NewSigner(0, true)
	s1 := keritesting.NewSigner(1, true)
	icp, icpSigs, err := keritesting.Inception([]core.Signer{s0}, "1", []core.Signer{s1}, "1")
	require.NoError(t, err)

	ky := eventing.NewKevery(eventing.DefaultKeveryConfig(storing.NewMemStore()))
	require.NoError(t, ky.ProcessEvent(icp, icpSigs))

	kv, ok := ky.Kever(icp.Pre())
	require.True(t, ok)
	require.Equal(t, uint64(0), kv.Sn())
}

func TestKeveryProcessEventIsIdempotentOnDuplicateInception(t *testing.T) {
	s0 := keritesting.NewSigner(0, false)
	icp, icpSigs, err := keritesting.BareNonTransferableInception(s0)
	require.NoError(t, err)

	ky := eventing.NewKevery(eventing.DefaultKeveryConfig(storing.NewMemStore()))
	require.NoError(t, ky.ProcessEvent(icp, icpSigs))
	require.NoError(t, ky.ProcessEvent(icp, icpSigs))
}

func TestKeveryEscrowsRotationForUnknownPrefix(t *testing.T) {
	s0 := keritesting.NewSigner(0, true)
	s1 := keritesting.NewSigner(1, true)
	icp, icpSigs, err := keritesting.Inception([]core.Signer{s0}, "1", []core.Signer{s1}, "1")
	require.NoError(t, err)
	rot, rotSigs, err := keritesting.Rotation(icp.Pre(), 1, icp, []core.Signer{s1}, "1", nil, "")
	require.NoError(t, err)

	store := storing.NewMemStore()
	ky := eventing.NewKevery(eventing.DefaultKeveryConfig(store))
	err = ky.ProcessEvent(rot, rotSigs)
	require.ErrorIs(t, err, eventing.ErrOutOfOrder)

	_, ok, err := store.SubDB(storing.SubOoes).Get(context.Background(), storing.SaidKey(rot.Pre(), rot.Said()))
	require.NoError(t, err)
	require.True(t, ok)
}

func TestKeveryProcessEscrowsResolvesOutOfOrderRotation(t *testing.T) {
	s0 := keritesting.NewSigner(0, true)
	s1 := keritesting.NewSigner(1, true)
	icp, icpSigs, err := keritesting.Inception([]core.Signer{s0}, "1", []core.Signer{s1}, "1")
	require.NoError(t, err)
	rot, rotSigs, err := keritesting.Rotation(icp.Pre(), 1, icp, []core.Signer{s1}, "1", nil, "")
	require.NoError(t, err)

	store := storing.NewMemStore()
	ky := eventing.NewKevery(eventing.DefaultKeveryConfig(store))

	err = ky.ProcessEvent(rot, rotSigs)
	require.ErrorIs(t, err, eventing.ErrOutOfOrder)

	require.NoError(t, ky.ProcessEvent(icp, icpSigs))
	require.NoError(t, ky.ProcessEscrows())

	kv, ok := ky.Kever(icp.Pre())
	require.True(t, ok)
	require.Equal(t, uint64(1), kv.Sn())

	_, ok, err = store.SubDB(storing.SubOoes).Get(context.Background(), storing.SaidKey(rot.Pre(), rot.Said()))
	require.NoError(t, err)
	require.False(t, ok)
}

// TestKeveryEscrowsThenPromotesPartiallySignedInception exercises the
// multisig threshold escrow/promotion flow: an inception signed by only one
// of its two required keys is escrowed as partially-signed, and delivering
// it again with both signatures present promotes it into a registered
// Kever, cleaning up the stale escrow entry on the next ProcessEscrows pass.
func TestKeveryEscrowsThenPromotesPartiallySignedInception(t *testing.T) {
	a := keritesting.NewSigner(0, true)
	b := keritesting.NewSigner(1, true)
	c := keritesting.NewSigner(2, true)
	icp, icpSigs, err := keritesting.Inception([]core.Signer{a, b}, "2", []core.Signer{c}, "1")
	require.NoError(t, err)

	store := storing.NewMemStore()
	ky := eventing.NewKevery(eventing.DefaultKeveryConfig(store))

	err = ky.ProcessEvent(icp, icpSigs[:1])
	require.ErrorIs(t, err, eventing.ErrPartiallySigned)
	_, ok, err := store.SubDB(storing.SubPses).Get(context.Background(), storing.SaidKey(icp.Pre(), icp.Said()))
	require.NoError(t, err)
	require.True(t, ok)
	_, ok = ky.Kever(icp.Pre())
	require.False(t, ok)

	require.NoError(t, ky.ProcessEvent(icp, icpSigs))
	kv, ok := ky.Kever(icp.Pre())
	require.True(t, ok)
	require.Equal(t, uint64(0), kv.Sn())

	require.NoError(t, ky.ProcessEscrows())
	_, ok, err = store.SubDB(storing.SubPses).Get(context.Background(), storing.SaidKey(icp.Pre(), icp.Said()))
	require.NoError(t, err)
	require.False(t, ok)
}

func TestKeveryProcessMessagesCollectsErrors(t *testing.T) {
	s0 := keritesting.NewSigner(0, true)
	s1 := keritesting.NewSigner(1, true)
	icpOK, icpOKSigs, err := keritesting.Inception([]core.Signer{s0}, "1", []core.Signer{s1}, "1")
	require.NoError(t, err)
	icpBad, _, err := keritesting.Inception([]core.Signer{keritesting.NewSigner(2, true)}, "1", nil, "")
	require.NoError(t, err)

	ky := eventing.NewKevery(eventing.DefaultKeveryConfig(storing.NewMemStore()))
	errs := ky.ProcessMessages([]eventing.Message{
		{Serder: icpOK, Sigers: icpOKSigs},
		{Serder: icpBad, Sigers: nil},
	})
	require.Len(t, errs, 1)
	require.ErrorIs(t, errs[0], eventing.ErrPartiallySigned)
}
