package eventing_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hello0827/keripy/core"
	"github.com/hello0827/keripy/eventing"
	"github.com/hello0827/keripy/keritesting"
	"github.com/hello0827/keripy/serdering"
	"github.com/hello0827/keripy/storing"
)

func newRct(t *testing.T, pre string, sn uint64, said string) *serdering.Serder {
	t.Helper()
	ked := eventing.BuildRctKed(eventing.RctParams{Pre: pre, Sn: sn, Said: said})
	serder, err := serdering.NewSerder(ked, serdering.KindJSON)
	require.NoError(t, err)
	return serder
}

// TestKeveryWitnessReceiptsGraduatePartiallyWitnessedInception exercises spec
// §8 scenario 3: an inception with three witnesses and toad=2 is escrowed as
// partially-witnessed until two valid receipt couples arrive, at which point
// it graduates; a third late receipt is merged without side effects.
func TestKeveryWitnessReceiptsGraduatePartiallyWitnessedInception(t *testing.T) {
	controller := keritesting.NewSigner(0, true)
	w0 := keritesting.NewSigner(10, false)
	w1 := keritesting.NewSigner(11, false)
	w2 := keritesting.NewSigner(12, false)

	icp, icpSigs, err := keritesting.InceptionWithWitnesses(
		[]core.Signer{controller}, "1", nil, "", []core.Signer{w0, w1, w2}, "2")
	require.NoError(t, err)

	store := storing.NewMemStore()
	ky := eventing.NewKevery(eventing.DefaultKeveryConfig(store))
	require.NoError(t, ky.ProcessEvent(icp, icpSigs))

	pwesKey := storing.SaidKey(icp.Pre(), icp.Said())
	_, ok, err := store.SubDB(storing.SubPwes).Get(context.Background(), pwesKey)
	require.NoError(t, err)
	require.True(t, ok, "inception should be escrowed pending witness receipts")

	c0, err := keritesting.WitnessReceiptCouple(w0, icp.Said())
	require.NoError(t, err)
	rct0 := newRct(t, icp.Pre(), 0, icp.Said())
	require.NoError(t, ky.ProcessReceipt(rct0, []eventing.Couple{c0}, nil))

	_, ok, err = store.SubDB(storing.SubPwes).Get(context.Background(), pwesKey)
	require.NoError(t, err)
	require.True(t, ok, "one of two required receipts should not yet graduate the event")

	c1, err := keritesting.WitnessReceiptCouple(w1, icp.Said())
	require.NoError(t, err)
	rct1 := newRct(t, icp.Pre(), 0, icp.Said())
	require.NoError(t, ky.ProcessReceipt(rct1, []eventing.Couple{c1}, nil))

	_, ok, err = store.SubDB(storing.SubPwes).Get(context.Background(), pwesKey)
	require.NoError(t, err)
	require.False(t, ok, "toad met, event should have graduated")

	// A third, late receipt is merged without side effects: it is accepted
	// and stored, but does not resurrect the already-cleared escrow entry.
	c2, err := keritesting.WitnessReceiptCouple(w2, icp.Said())
	require.NoError(t, err)
	rct2 := newRct(t, icp.Pre(), 0, icp.Said())
	require.NoError(t, ky.ProcessReceipt(rct2, []eventing.Couple{c2}, nil))

	_, ok, err = store.SubDB(storing.SubPwes).Get(context.Background(), pwesKey)
	require.NoError(t, err)
	require.False(t, ok)

	kv, ok := ky.Kever(icp.Pre())
	require.True(t, ok)
	require.Equal(t, []string{w0.Verfer().Qb64(), w1.Verfer().Qb64(), w2.Verfer().Qb64()}, kv.Wits())
	require.Equal(t, 2, kv.Toad())
}

// TestKeveryRejectsReceiptFromNonWitness confirms a non-transferable
// signature from a key that is not in the tracked witness list does not
// count toward toad, even though its own signature verifies correctly.
func TestKeveryRejectsReceiptFromNonWitness(t *testing.T) {
	controller := keritesting.NewSigner(0, true)
	w0 := keritesting.NewSigner(10, false)
	w1 := keritesting.NewSigner(11, false)
	notAWitness := keritesting.NewSigner(99, false)

	icp, icpSigs, err := keritesting.InceptionWithWitnesses(
		[]core.Signer{controller}, "1", nil, "", []core.Signer{w0, w1}, "2")
	require.NoError(t, err)

	store := storing.NewMemStore()
	ky := eventing.NewKevery(eventing.DefaultKeveryConfig(store))
	require.NoError(t, ky.ProcessEvent(icp, icpSigs))

	couple, err := keritesting.WitnessReceiptCouple(notAWitness, icp.Said())
	require.NoError(t, err)
	rct := newRct(t, icp.Pre(), 0, icp.Said())
	// ProcessReceipt logs and drops unverifiable couples rather than
	// returning an error, so the call itself succeeds...
	require.NoError(t, ky.ProcessReceipt(rct, []eventing.Couple{couple}, nil))

	// ...but the receipt must not have been stored, and the event must
	// remain in partially-witnessed escrow since no genuine witness has
	// receipted it yet.
	_, ok, err := store.SubDB(storing.SubRcts).Get(context.Background(),
		storing.NaturalKey(icp.Pre(), "0", notAWitness.Verfer().Qb64()))
	require.NoError(t, err)
	require.False(t, ok)

	_, ok, err = store.SubDB(storing.SubPwes).Get(context.Background(), storing.SaidKey(icp.Pre(), icp.Said()))
	require.NoError(t, err)
	require.True(t, ok)
}
