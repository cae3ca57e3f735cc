package core

import (
	"encoding/base64"
	"fmt"
)

// Matter is a typed binary value — a key, digest, signature, or small
// integer — with three interchangeable renderings: raw bytes, qb64
// (code-prefixed base64), and qb2 (code-prefixed binary).
type Matter struct {
	code MatterCode
	raw  []byte
}

// NewMatter constructs a Matter from raw bytes under the given code,
// rejecting any raw length that does not match the code's fixed size.
func NewMatter(code MatterCode, raw []byte) (Matter, error) {
	sz, ok := matterSizes[code]
	if !ok {
		return Matter{}, fmt.Errorf("%w: %q", ErrUnknownCode, code)
	}
	if len(raw) != sz.RawSize {
		return Matter{}, fmt.Errorf("%w: code %q wants %d bytes, got %d", ErrInvalidSize, code, sz.RawSize, len(raw))
	}
	cp := make([]byte, len(raw))
	copy(cp, raw)
	return Matter{code: code, raw: cp}, nil
}

// MatterFromQb64 parses a Matter from its qb64 (code + base64) rendering.
// A buffer shorter than the code's declared width yields a ShortageError
// naming exactly how many more bytes are needed, so stream parsers can await
// more input without losing what they already have.
func MatterFromQb64(qb64 string) (Matter, error) {
	if len(qb64) == 0 {
		return Matter{}, ErrEmptyQb64
	}
	code, rest, err := splitCode(qb64)
	if err != nil {
		return Matter{}, err
	}
	sz, ok := matterSizes[code]
	if !ok {
		return Matter{}, fmt.Errorf("%w: %q", ErrUnknownCode, code)
	}
	wantChars := b64Len(sz.RawSize)
	if len(rest) < wantChars {
		return Matter{}, NewShortage(wantChars-len(rest), "")
	}
	raw, err := base64.RawURLEncoding.DecodeString(rest[:wantChars])
	if err != nil {
		return Matter{}, fmt.Errorf("matter qb64 decode: %w", err)
	}
	if len(raw) != sz.RawSize {
		return Matter{}, fmt.Errorf("%w: decoded %d bytes, wanted %d", ErrInvalidSize, len(raw), sz.RawSize)
	}
	return Matter{code: code, raw: raw}, nil
}

// MatterFromQb2 parses a Matter from its qb2 (code bytes + raw bytes)
// rendering.
func MatterFromQb2(qb2 []byte) (Matter, error) {
	if len(qb2) == 0 {
		return Matter{}, ErrEmptyQb2
	}
	for _, code := range sortedMatterCodes() {
		cl := len(code)
		if len(qb2) < cl {
			continue
		}
		if string(qb2[:cl]) != string(code) {
			continue
		}
		sz := matterSizes[code]
		need := cl + sz.RawSize
		if len(qb2) < need {
			return Matter{}, NewShortage(need-len(qb2), "")
		}
		raw := make([]byte, sz.RawSize)
		copy(raw, qb2[cl:need])
		return Matter{code: code, raw: raw}, nil
	}
	return Matter{}, fmt.Errorf("%w: no matter code matches leading bytes", ErrUnknownCode)
}

// splitCode identifies which known code prefixes qb64 starts with, longest
// code first (so "0B" is preferred over a hypothetical single-char "0").
func splitCode(qb64 string) (MatterCode, string, error) {
	for _, code := range sortedMatterCodes() {
		cl := len(code)
		if len(qb64) < cl {
			continue
		}
		if qb64[:cl] == string(code) {
			return code, qb64[cl:], nil
		}
	}
	return "", "", fmt.Errorf("%w: no matter code matches %q", ErrUnknownCode, qb64)
}

// sortedMatterCodes returns matter codes ordered longest-first so prefix
// matching picks the most specific code.
func sortedMatterCodes() []MatterCode {
	// Two-char codes must be tried before one-char codes sharing a leading
	// character (e.g. "0B" vs a future "0"-family single char code).
	return []MatterCode{
		CodeEd25519Sig, CodeSalt128, CodeLong,
		CodeEd25519Seed, CodeEd25519N, CodeX25519, CodeEd25519,
		CodeBlake3_256, CodeBlake2b256, CodeSHA3_256, CodeSHA2_256,
		CodeShort, CodeNumber,
	}
}

func b64Len(rawSize int) int {
	// ceil(rawSize * 8 / 6), the unpadded base64 character count for rawSize
	// bytes.
	bits := rawSize * 8
	return (bits + 5) / 6
}

// Code returns the Matter's derivation code.
func (m Matter) Code() MatterCode { return m.code }

// Raw returns the raw payload bytes. Callers must not mutate the returned
// slice.
func (m Matter) Raw() []byte { return m.raw }

// Qb64 renders the Matter as code-prefixed unpadded base64.
func (m Matter) Qb64() string {
	return string(m.code) + base64.RawURLEncoding.EncodeToString(m.raw)
}

// Qb2 renders the Matter as code bytes followed by raw bytes.
func (m Matter) Qb2() []byte {
	out := make([]byte, 0, len(m.code)+len(m.raw))
	out = append(out, []byte(m.code)...)
	out = append(out, m.raw...)
	return out
}

// Size returns the qb64 character width of a fully rendered Matter with this
// code, or 0 if the code is unknown.
func (code MatterCode) Size() int {
	sz, ok := matterSizes[code]
	if !ok {
		return 0
	}
	return len(code) + b64Len(sz.RawSize)
}

// RawSize returns the fixed raw byte size for a known Matter code.
func (code MatterCode) RawSize() (int, bool) {
	sz, ok := matterSizes[code]
	return sz.RawSize, ok
}

// Equal reports whether two Matters have the same code and raw bytes.
func (m Matter) Equal(o Matter) bool {
	if m.code != o.code || len(m.raw) != len(o.raw) {
		return false
	}
	for i := range m.raw {
		if m.raw[i] != o.raw[i] {
			return false
		}
	}
	return true
}

// IsNonTransferable reports whether m's code derives a non-transferable
// prefix.
func (m Matter) IsNonTransferable() bool { return NonTransferableCodes[m.code] }

// IsTransferable reports whether m's code derives a transferable prefix.
func (m Matter) IsTransferable() bool { return TransferableCodes[m.code] }

// IsDigest reports whether m's code is a digest algorithm code.
func (m Matter) IsDigest() bool { return DigestCodes[m.code] }
