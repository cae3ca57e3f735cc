package core

import (
	"encoding/base64"
	"fmt"
)

// Indexer is an attached signature: a typed signature value plus the index
// of the signing key within the current (or, for the dual-index codes, also
// the other) signing key list.
type Indexer struct {
	code  IndexerCode
	index int
	ondex int // "other" index, meaningful only when the code is a dual-index code
	raw   []byte
}

// NewIndexer builds an Indexer over a signature for key position idx.
func NewIndexer(code IndexerCode, raw []byte, idx int) (Indexer, error) {
	return NewDualIndexer(code, raw, idx, 0)
}

// NewDualIndexer builds a dual-index Indexer, carrying both the signer's
// position in the current key list (idx) and its position in the other
// (prior/next) key list this signature also attests to (odx). Only
// IdxEd25519SigBig uses odx; other codes ignore it.
func NewDualIndexer(code IndexerCode, raw []byte, idx, odx int) (Indexer, error) {
	sz, ok := indexerSizes[code]
	if !ok {
		return Indexer{}, fmt.Errorf("%w: %q", ErrUnknownIndexer, code)
	}
	if len(raw) != sz.RawSize {
		return Indexer{}, fmt.Errorf("%w: code %q wants %d bytes, got %d", ErrInvalidSize, code, sz.RawSize, len(raw))
	}
	if idx < 0 || idx > 63 {
		return Indexer{}, fmt.Errorf("%w: %d", ErrInvalidIndex, idx)
	}
	if sz.Dual && (odx < 0 || odx > 63) {
		return Indexer{}, fmt.Errorf("%w: %d", ErrInvalidIndex, odx)
	}
	cp := make([]byte, len(raw))
	copy(cp, raw)
	return Indexer{code: code, index: idx, ondex: odx, raw: cp}, nil
}

// indexB64Width is the number of base64 characters used to carry each index
// value (one index value, 0..63, fits in a single base64 digit).
const indexB64Width = 1

var b64Alphabet = base64.RawURLEncoding

func idxToChar(i int) byte {
	enc := make([]byte, 2)
	// Encode a single 6-bit value by padding it into a 1-byte input and
	// taking the first output character.
	b64Alphabet.Encode(enc, []byte{byte(i << 2)})
	return enc[0]
}

func charToIdx(c byte) (int, error) {
	dec := make([]byte, 1)
	n, err := b64Alphabet.Decode(dec, []byte{c, 'A'})
	if err != nil || n != 1 {
		return 0, fmt.Errorf("%w: invalid index character %q", ErrInvalidIndex, c)
	}
	return int(dec[0] >> 2), nil
}

// Qb64 renders the Indexer as code, index character(s), then base64 of the
// raw signature.
func (ix Indexer) Qb64() string {
	sz := indexerSizes[ix.code]
	out := string(ix.code) + string(idxToChar(ix.index))
	if sz.Dual {
		out += string(idxToChar(ix.ondex))
	}
	out += base64.RawURLEncoding.EncodeToString(ix.raw)
	return out
}

// IndexerFromQb64 parses an Indexer from its qb64 rendering.
func IndexerFromQb64(qb64 string) (Indexer, error) {
	if len(qb64) == 0 {
		return Indexer{}, ErrEmptyQb64
	}
	for _, code := range []IndexerCode{IdxEd25519SigBig, IdxEd25519Sig} {
		cl := len(code)
		if len(qb64) < cl || qb64[:cl] != string(code) {
			continue
		}
		sz := indexerSizes[code]
		idxChars := indexB64Width
		if sz.Dual {
			idxChars = indexB64Width * 2
		}
		if len(qb64) < cl+idxChars {
			return Indexer{}, NewShortage(cl+idxChars-len(qb64), "")
		}
		idx, err := charToIdx(qb64[cl])
		if err != nil {
			return Indexer{}, err
		}
		odx := 0
		rest := qb64[cl+1:]
		if sz.Dual {
			odx, err = charToIdx(qb64[cl+1])
			if err != nil {
				return Indexer{}, err
			}
			rest = qb64[cl+2:]
		}
		wantChars := b64Len(sz.RawSize)
		if len(rest) < wantChars {
			return Indexer{}, NewShortage(wantChars-len(rest), "")
		}
		raw, err := base64.RawURLEncoding.DecodeString(rest[:wantChars])
		if err != nil {
			return Indexer{}, fmt.Errorf("indexer qb64 decode: %w", err)
		}
		return Indexer{code: code, index: idx, ondex: odx, raw: raw}, nil
	}
	return Indexer{}, fmt.Errorf("%w: no indexer code matches %q", ErrUnknownIndexer, qb64)
}

func (ix Indexer) Code() IndexerCode { return ix.code }
func (ix Indexer) Index() int        { return ix.index }
func (ix Indexer) Ondex() int        { return ix.ondex }
func (ix Indexer) Raw() []byte       { return ix.raw }
func (ix Indexer) IsDual() bool      { return indexerSizes[ix.code].Dual }
