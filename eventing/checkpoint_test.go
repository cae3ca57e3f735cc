package eventing_test

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hello0827/keripy/core"
	"github.com/hello0827/keripy/eventing"
	"github.com/hello0827/keripy/keritesting"
	"github.com/hello0827/keripy/storing"
)

func TestCheckpointSignerSignsAndVerifiesKeveryState(t *testing.T) {
	s0 := keritesting.NewSigner(0, true)
	s1 := keritesting.NewSigner(1, true)
	icp, icpSigs, err := keritesting.Inception([]core.Signer{s0}, "1", []core.Signer{s1}, "1")
	require.NoError(t, err)

	ky := eventing.NewKevery(eventing.DefaultKeveryConfig(storing.NewMemStore()))
	require.NoError(t, ky.ProcessEvent(icp, icpSigs))

	privateKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	cs, err := eventing.NewCheckpointSigner("issuer-"+icp.Pre(), "key-1", privateKey)
	require.NoError(t, err)
	require.Equal(t, "issuer-"+icp.Pre(), cs.Issuer())

	envelope, err := cs.Sign(ky, icp.Pre(), nil)
	require.NoError(t, err)
	require.NotEmpty(t, envelope)

	cp, err := eventing.VerifyCheckpoint(envelope, &privateKey.PublicKey, nil)
	require.NoError(t, err)
	require.Len(t, cp.Ksns, 1)
	require.NotZero(t, cp.Timestamp)
}

func TestVerifyCheckpointRejectsWrongKey(t *testing.T) {
	s0 := keritesting.NewSigner(0, false)
	icp, icpSigs, err := keritesting.BareNonTransferableInception(s0)
	require.NoError(t, err)

	ky := eventing.NewKevery(eventing.DefaultKeveryConfig(storing.NewMemStore()))
	require.NoError(t, ky.ProcessEvent(icp, icpSigs))

	privateKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	cs, err := eventing.NewCheckpointSigner("issuer", "key-1", privateKey)
	require.NoError(t, err)

	envelope, err := cs.Sign(ky, icp.Pre(), nil)
	require.NoError(t, err)

	wrongKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	_, err = eventing.VerifyCheckpoint(envelope, &wrongKey.PublicKey, nil)
	require.Error(t, err)
}
