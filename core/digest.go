package core

import (
	"crypto/sha256"
	"fmt"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/sha3"
	"lukechampine.com/blake3"
)

// Digest computes the digest of data under the given Matter digest code and
// returns it as a Matter.
func Digest(code MatterCode, data []byte) (Matter, error) {
	if !DigestCodes[code] {
		return Matter{}, fmt.Errorf("%w: %q is not a digest code", ErrUnknownCode, code)
	}
	raw, err := digestBytes(code, data)
	if err != nil {
		return Matter{}, err
	}
	return NewMatter(code, raw)
}

func digestBytes(code MatterCode, data []byte) ([]byte, error) {
	switch code {
	case CodeBlake3_256:
		sum := blake3.Sum256(data)
		return sum[:], nil
	case CodeBlake2b256:
		sum := blake2b.Sum256(data)
		return sum[:], nil
	case CodeSHA3_256:
		sum := sha3.Sum256(data)
		return sum[:], nil
	case CodeSHA2_256:
		sum := sha256.Sum256(data)
		return sum[:], nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownCode, code)
	}
}

// DefaultDigestCode is the digest algorithm used when a caller does not name
// one explicitly, matching spec §4.3's "Blake3-256 by default".
const DefaultDigestCode = CodeBlake3_256

// VerifyDigest recomputes the digest of data and compares it to want.
func VerifyDigest(want Matter, data []byte) (bool, error) {
	got, err := Digest(want.Code(), data)
	if err != nil {
		return false, err
	}
	return got.Equal(want), nil
}
