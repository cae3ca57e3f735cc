package eventing

import (
	"crypto/ecdsa"
	"crypto/rand"
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/ldclabs/cose/go/cwt"
	"github.com/veraison/go-cose"
)

// checkpointHeaderLabelCWTClaims is the COSE header label CWT claims are
// carried under, matching the teacher's massifs/cose package constant of the
// same value (RFC 8392's final allocation; 13 is the value used while the
// draft was still in flight).
const checkpointHeaderLabelCWTClaims int64 = 15

// Checkpoint is a signed snapshot of every Kever a Kevery currently tracks,
// each as its own ksn-shaped event (spec §6.1's ksn field list, produced by
// Kever.snapshot). A checkpoint is a tamper-evidence aid for an embedder
// publishing current state to a party that does not want to replay every
// KEL; it asserts nothing about witness receipt threshold beyond what each
// embedded ksn's own "bt"/"b" fields already carry.
type Checkpoint struct {
	Timestamp int64    `cbor:"1,keyasint"`
	Ksns      [][]byte `cbor:"2,keyasint"`
}

// CheckpointSigner produces COSE_Sign1 envelopes over Checkpoint snapshots,
// grounded on the teacher's massifs/rootsigner.go RootSigner and
// massifs/cose package: an issuer-scoped signer wrapping a single ES256 key.
type CheckpointSigner struct {
	issuer string
	keyID  string
	signer cose.Signer
}

// NewCheckpointSigner builds a CheckpointSigner over privateKey, identified
// to verifiers by keyID (carried in the COSE protected key-id header) and
// asserted as the CWT "iss" claim.
func NewCheckpointSigner(issuer, keyID string, privateKey *ecdsa.PrivateKey) (*CheckpointSigner, error) {
	signer, err := cose.NewSigner(cose.AlgorithmES256, privateKey)
	if err != nil {
		return nil, fmt.Errorf("eventing: checkpoint signer: %w", err)
	}
	return &CheckpointSigner{issuer: issuer, keyID: keyID, signer: signer}, nil
}

// Sign snapshots every Kever ky currently tracks, CBOR-encodes the result as
// a Checkpoint, and returns a COSE_Sign1 envelope over it. subject is
// asserted as the CWT "sub" claim (conventionally the embedder's own
// identifier prefix, so a verifier can tell which party vouches for this
// checkpoint).
func (cs *CheckpointSigner) Sign(ky *Kevery, subject string, external []byte) ([]byte, error) {
	ky.mu.RLock()
	ksns := make([][]byte, 0, len(ky.kevers))
	for _, kv := range ky.kevers {
		snap, err := kv.snapshot()
		if err != nil {
			ky.mu.RUnlock()
			return nil, fmt.Errorf("eventing: checkpoint snapshot %s: %w", kv.Pre(), err)
		}
		ksns = append(ksns, snap)
	}
	ky.mu.RUnlock()

	payload, err := cbor.Marshal(Checkpoint{Timestamp: time.Now().Unix(), Ksns: ksns})
	if err != nil {
		return nil, fmt.Errorf("eventing: checkpoint encode: %w", err)
	}

	msg := cose.Sign1Message{
		Headers: cose.Headers{
			Protected: cose.ProtectedHeader{
				cose.HeaderLabelAlgorithm: cose.AlgorithmES256,
				cose.HeaderLabelKeyID:     []byte(cs.keyID),
				checkpointHeaderLabelCWTClaims: map[any]any{
					int64(cwt.KeyIss): cs.issuer,
					int64(cwt.KeySub): subject,
				},
			},
		},
		Payload: payload,
	}
	if err := msg.Sign(rand.Reader, external, cs.signer); err != nil {
		return nil, fmt.Errorf("eventing: checkpoint sign: %w", err)
	}
	return msg.MarshalCBOR()
}

// VerifyCheckpoint verifies a COSE_Sign1 checkpoint envelope against
// publicKey and decodes its payload.
func VerifyCheckpoint(data []byte, publicKey *ecdsa.PublicKey, external []byte) (*Checkpoint, error) {
	var msg cose.Sign1Message
	if err := msg.UnmarshalCBOR(data); err != nil {
		return nil, fmt.Errorf("eventing: checkpoint decode: %w", err)
	}
	verifier, err := cose.NewVerifier(cose.AlgorithmES256, publicKey)
	if err != nil {
		return nil, fmt.Errorf("eventing: checkpoint verifier: %w", err)
	}
	if err := msg.Verify(external, verifier); err != nil {
		return nil, fmt.Errorf("eventing: checkpoint verify: %w", err)
	}
	var cp Checkpoint
	if err := cbor.Unmarshal(msg.Payload, &cp); err != nil {
		return nil, fmt.Errorf("eventing: checkpoint payload: %w", err)
	}
	return &cp, nil
}

// Issuer returned the CWT "iss" claim the signer asserts. Useful for a
// caller wiring multiple signers and wanting to log which one produced a
// given checkpoint without re-parsing the envelope.
func (cs *CheckpointSigner) Issuer() string { return cs.issuer }
