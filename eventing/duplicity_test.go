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

// TestKeveryRecoveryRotationSupersedesLaterEvents exercises spec §8
// scenario 5: a chain is accepted through sn=6, then a recovery rotation at
// sn=5 (rotating into the key the chain's own sn=6 event had already
// committed to, with p pointing back to the said at sn=4) is delivered.
// The event originally at sn=6 must be marked likely-duplicitous and
// removed from the KEL index, and a fresh sn=5/sn=6 pair becomes the
// authoritative continuation.
func TestKeveryRecoveryRotationSupersedesLaterEvents(t *testing.T) {
	signers := make([]core.Signer, 9)
	for i := range signers {
		signers[i] = keritesting.NewSigner(byte(i), true)
	}

	store := storing.NewMemStore()
	ky := eventing.NewKevery(eventing.DefaultKeveryConfig(store))

	icp, icpSigs, err := keritesting.Inception([]core.Signer{signers[0]}, "1", []core.Signer{signers[1]}, "1")
	require.NoError(t, err)
	require.NoError(t, ky.ProcessEvent(icp, icpSigs))
	pre := icp.Pre()

	prior := icp
	var rot4 *serdering.Serder
	events := make([]*serdering.Serder, 0, 6)
	for sn := uint64(1); sn <= 6; sn++ {
		rot, rotSigs, err := keritesting.Rotation(pre, sn, prior, []core.Signer{signers[sn]}, "1", []core.Signer{signers[sn+1]}, "1")
		require.NoError(t, err)
		require.NoError(t, ky.ProcessEvent(rot, rotSigs))
		events = append(events, rot)
		if sn == 4 {
			rot4 = rot
		}
		prior = rot
	}
	rot6 := events[len(events)-1]

	kv, ok := ky.Kever(pre)
	require.True(t, ok)
	require.Equal(t, uint64(6), kv.Sn())

	recoveryRot, recoverySigs, err := keritesting.Rotation(pre, 5, rot4, []core.Signer{signers[7]}, "1", []core.Signer{signers[8]}, "1")
	require.NoError(t, err)
	require.NoError(t, ky.ProcessEvent(recoveryRot, recoverySigs))

	kv, ok = ky.Kever(pre)
	require.True(t, ok)
	require.Equal(t, uint64(5), kv.Sn())
	require.Equal(t, recoveryRot.Said(), kv.Serder().Said())

	// The event originally at sn=6 is gone from the KEL index...
	_, ok, err = store.SubDB(storing.SubKELs).Get(context.Background(), storing.SnKey(pre, 6))
	require.NoError(t, err)
	require.False(t, ok)

	// ...and has been filed as likely-duplicitous.
	_, ok, err = store.SubDB(storing.SubLdes).Get(context.Background(), storing.SaidKey(pre, rot6.Said()))
	require.NoError(t, err)
	require.True(t, ok)

	// A fresh sn=6 rotating into the key the recovery rotation committed to
	// becomes the authoritative continuation.
	newRot6, newRot6Sigs, err := keritesting.Rotation(pre, 6, recoveryRot, []core.Signer{signers[8]}, "1", nil, "")
	require.NoError(t, err)
	require.NoError(t, ky.ProcessEvent(newRot6, newRot6Sigs))

	kv, ok = ky.Kever(pre)
	require.True(t, ok)
	require.Equal(t, uint64(6), kv.Sn())
	require.Equal(t, newRot6.Said(), kv.Serder().Said())

	storedSaid, ok, err := store.SubDB(storing.SubKELs).Get(context.Background(), storing.SnKey(pre, 6))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, newRot6.Said(), string(storedSaid))
	require.NotEqual(t, rot6.Said(), string(storedSaid))
}
