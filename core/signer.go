package core

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
)

// Signer is a private signing key. Only Ed25519 is supported, matching the
// spec's worked examples and KAT vectors.
type Signer struct {
	seed    Matter // CodeEd25519Seed
	priv    ed25519.PrivateKey
	verfer  Matter // public key Matter, code depends on transferable
	transferable bool
}

// NewSigner derives a Signer from a 32-byte Ed25519 seed. If transferable is
// false the paired public key is encoded under the non-transferable code.
func NewSigner(seed []byte, transferable bool) (Signer, error) {
	seedM, err := NewMatter(CodeEd25519Seed, seed)
	if err != nil {
		return Signer{}, err
	}
	priv := ed25519.NewKeyFromSeed(seed)
	pub := priv.Public().(ed25519.PublicKey)
	code := CodeEd25519N
	if transferable {
		code = CodeEd25519
	}
	verfer, err := NewMatter(code, pub)
	if err != nil {
		return Signer{}, err
	}
	return Signer{seed: seedM, priv: priv, verfer: verfer, transferable: transferable}, nil
}

// GenerateSigner creates a Signer from fresh random entropy.
func GenerateSigner(transferable bool) (Signer, error) {
	seed := make([]byte, ed25519.SeedSize)
	if _, err := rand.Read(seed); err != nil {
		return Signer{}, fmt.Errorf("generate signer seed: %w", err)
	}
	return NewSigner(seed, transferable)
}

// Verfer returns the public key Matter paired with this Signer.
func (s Signer) Verfer() Matter { return s.verfer }

// Seed returns the seed Matter this Signer was derived from.
func (s Signer) Seed() Matter { return s.seed }

// Sign produces a raw 64-byte Ed25519 signature over msg.
func (s Signer) Sign(msg []byte) []byte {
	return ed25519.Sign(s.priv, msg)
}

// IndexedSign produces an Indexer-wrapped signature at key position idx.
func (s Signer) IndexedSign(msg []byte, idx int) (Indexer, error) {
	sig := s.Sign(msg)
	return NewIndexer(IdxEd25519Sig, sig, idx)
}

// VerifyWith verifies a raw signature against msg using the public key
// Matter m. m must carry an Ed25519 public key code (transferable or not).
func VerifyWith(m Matter, msg, sig []byte) bool {
	if m.Code() != CodeEd25519 && m.Code() != CodeEd25519N {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(m.Raw()), msg, sig)
}

// VerifyIndexed verifies an Indexer's signature against msg using the
// verfer at position ix.Index() in verfers.
func VerifyIndexed(verfers []Matter, ix Indexer, msg []byte) bool {
	if ix.Index() < 0 || ix.Index() >= len(verfers) {
		return false
	}
	return VerifyWith(verfers[ix.Index()], msg, ix.Raw())
}
