// Package nexting computes and verifies next-key commitments: a digest that
// hides the next rotation's signing keys and threshold until they are
// revealed by the rotation event itself.
package nexting

import (
	"fmt"

	"github.com/hello0827/keripy/core"
)

// Commit computes the next-key commitment over th and keys (each a qb64
// public key string), encoded under code.
//
// Each key is digested individually so no single key's raw bytes appear in
// the commitment; the per-key digests are XORed together (order-independent,
// so the commitment does not leak the keys' relative positions) and the
// threshold's own serialization is folded in by digesting threshold-bytes
// concatenated with the XORed value — this keeps the final commitment a
// single fixed-size digest regardless of how long the threshold
// serialization is, while still making the commitment sensitive to sith
// (a rotation that reveals the same keys under a different threshold must
// not satisfy a commitment made under the original one).
func Commit(th core.Tholder, keys []string, code core.MatterCode) (core.Matter, error) {
	if len(keys) == 0 {
		return core.Matter{}, fmt.Errorf("nexting: no keys to commit")
	}
	if !core.DigestCodes[code] {
		return core.Matter{}, fmt.Errorf("nexting: %q is not a digest code", code)
	}

	var acc []byte
	for i, key := range keys {
		m, err := core.MatterFromQb64(key)
		if err != nil {
			return core.Matter{}, fmt.Errorf("nexting: key %d: %w", i, err)
		}
		h, err := core.Digest(code, m.Raw())
		if err != nil {
			return core.Matter{}, fmt.Errorf("nexting: digest key %d: %w", i, err)
		}
		if acc == nil {
			acc = make([]byte, len(h.Raw()))
		}
		if len(h.Raw()) != len(acc) {
			return core.Matter{}, fmt.Errorf("nexting: inconsistent digest width for key %d", i)
		}
		for j := range acc {
			acc[j] ^= h.Raw()[j]
		}
	}

	sealed := append([]byte(th.String()), acc...)
	return core.Digest(code, sealed)
}

// Verify reports whether the rotation's revealed threshold th and keys
// satisfy the commitment prior (the "n" field of the preceding establishment
// event), encoded under code.
func Verify(prior core.Matter, th core.Tholder, keys []string, code core.MatterCode) (bool, error) {
	commitment, err := Commit(th, keys, code)
	if err != nil {
		return false, err
	}
	return commitment.Equal(prior), nil
}
