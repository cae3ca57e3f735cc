package serdering

import (
	"fmt"
	"strconv"

	"github.com/hello0827/keripy/core"
)

const (
	versionProtocol = "KERI10"
	versionLen      = len(versionProtocol) + 4 + 6 + 1 // "KERI10" + KIND + 6 hex digits + "_"
)

// Serder is a parsed event: the raw bytes it was built from, the detected
// serialization kind, the declared size, and the decoded field mapping.
// A Serder is immutable once constructed, either by parsing raw bytes off a
// stream or by synthesizing them from a mapping.
type Serder struct {
	raw  []byte
	kind Kind
	size int
	ked  *Ked
	pre  string
	sn   uint64
	said string
}

// ParseVersionString reads the 17-byte version string at the head of s,
// returning the declared kind and total event size.
func ParseVersionString(s string) (Kind, int, error) {
	if len(s) < versionLen {
		return "", 0, &VersionError{Head: s, Err: fmt.Errorf("%w: need %d bytes, have %d", ErrVersionString, versionLen, len(s))}
	}
	head := s[:versionLen]
	if head[:len(versionProtocol)] != versionProtocol {
		return "", 0, &VersionError{Head: head, Err: fmt.Errorf("%w: protocol/major mismatch", ErrVersionString)}
	}
	if head[len(head)-1] != '_' {
		return "", 0, &VersionError{Head: head, Err: fmt.Errorf("%w: missing trailing underscore", ErrVersionString)}
	}
	kindStr := head[len(versionProtocol) : len(versionProtocol)+4]
	kind, err := parseKind(kindStr)
	if err != nil {
		return "", 0, &VersionError{Head: head, Err: fmt.Errorf("%w: %v", ErrVersionString, err)}
	}
	sizeStr := head[len(versionProtocol)+4 : len(head)-1]
	size, err := strconv.ParseUint(sizeStr, 16, 32)
	if err != nil {
		return "", 0, &VersionError{Head: head, Err: fmt.Errorf("%w: bad size field %q", ErrVersionString, sizeStr)}
	}
	return kind, int(size), nil
}

// BuildVersionString renders the 17-byte version string for kind and size.
func BuildVersionString(kind Kind, size int) string {
	return fmt.Sprintf("%s%s%06x_", versionProtocol, string(kind), size)
}

// ParseSerder parses a Serder off the head of a byte stream: it reads the
// version string, slices exactly the declared size, decodes under the
// declared kind, and verifies that re-serializing the decoded mapping
// reproduces the same bytes. A stream that holds the version string but is
// shorter than the declared size yields a *core.ShortageError naming how
// many more bytes are needed, so callers can await more input; a stream
// shorter than the version string yields ErrVersionString.
func ParseSerder(stream []byte) (*Serder, error) {
	if len(stream) < versionLen {
		return nil, fmt.Errorf("serdering: %w: stream shorter than version string", ErrVersionString)
	}
	kind, size, err := ParseVersionString(string(stream[:versionLen]))
	if err != nil {
		return nil, err
	}
	if len(stream) < size {
		return nil, core.NewShortage(size-len(stream), fmt.Sprintf("serdering: stream shortage: need %d more bytes", size-len(stream)))
	}
	raw := stream[:size]
	ked, err := decodeKed(raw, kind)
	if err != nil {
		return nil, &DeserializationError{Kind: kind, Err: fmt.Errorf("%w: %v", ErrDeserialization, err)}
	}
	again, err := encodeKed(ked, kind)
	if err != nil {
		return nil, &DeserializationError{Kind: kind, Err: fmt.Errorf("%w: %v", ErrDeserialization, err)}
	}
	if string(again) != string(raw) {
		return nil, fmt.Errorf("serdering: %w", ErrRoundTrip)
	}
	return newSerderFromParts(raw, kind, size, ked)
}

// NewSerder synthesizes a Serder from a mapping: it serializes once with a
// zeroed-size version string placeholder, measures the result, rewrites the
// version string with the true size, and re-serializes.
func NewSerder(ked *Ked, kind Kind) (*Serder, error) {
	work := ked.Clone()
	work.Set("v", BuildVersionString(kind, 0))
	first, err := encodeKed(work, kind)
	if err != nil {
		return nil, &DeserializationError{Kind: kind, Err: fmt.Errorf("%w: %v", ErrDeserialization, err)}
	}
	size := len(first)
	work.Set("v", BuildVersionString(kind, size))
	raw, err := encodeKed(work, kind)
	if err != nil {
		return nil, &DeserializationError{Kind: kind, Err: fmt.Errorf("%w: %v", ErrDeserialization, err)}
	}
	return newSerderFromParts(raw, kind, len(raw), work)
}

func newSerderFromParts(raw []byte, kind Kind, size int, ked *Ked) (*Serder, error) {
	sn, err := parseSn(ked.GetString("s"))
	if err != nil {
		return nil, err
	}
	cp := make([]byte, len(raw))
	copy(cp, raw)
	return &Serder{
		raw:  cp,
		kind: kind,
		size: size,
		ked:  ked,
		pre:  ked.GetString("i"),
		sn:   sn,
		said: ked.GetString("d"),
	}, nil
}

func parseSn(s string) (uint64, error) {
	if s == "" {
		return 0, nil
	}
	sn, err := strconv.ParseUint(s, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("serdering: bad sn field %q: %w", s, err)
	}
	return sn, nil
}

// Raw returns the event's exact wire bytes. Callers must not mutate it.
func (s *Serder) Raw() []byte { return s.raw }

// Kind returns the event's serialization kind.
func (s *Serder) Kind() Kind { return s.kind }

// Size returns the declared byte length of the event.
func (s *Serder) Size() int { return s.size }

// Ked returns the decoded, order-preserved field mapping.
func (s *Serder) Ked() *Ked { return s.ked }

// Pre returns the event's identifier prefix (field "i").
func (s *Serder) Pre() string { return s.pre }

// Sn returns the event's sequence number (field "s", hex-decoded).
func (s *Serder) Sn() uint64 { return s.sn }

// Said returns the event's self-addressing identifier (field "d").
func (s *Serder) Said() string { return s.said }

// EncodeKed canonically serializes ked under kind. It is exported so other
// packages (saidify, prefixing, nexting) can compute digests over a mapping
// without constructing a full Serder.
func EncodeKed(ked *Ked, kind Kind) ([]byte, error) {
	return encodeKed(ked, kind)
}

func encodeKed(ked *Ked, kind Kind) ([]byte, error) {
	switch kind {
	case KindJSON:
		return ked.MarshalJSON()
	case KindCBOR:
		return ked.MarshalCBOR()
	case KindMGPK:
		return ked.MarshalMsgpack()
	default:
		return nil, fmt.Errorf("serdering: unsupported kind %q", kind)
	}
}

func decodeKed(raw []byte, kind Kind) (*Ked, error) {
	ked := NewKed()
	var err error
	switch kind {
	case KindJSON:
		err = ked.UnmarshalJSON(raw)
	case KindCBOR:
		err = ked.UnmarshalCBOR(raw)
	case KindMGPK:
		err = ked.UnmarshalMsgpack(raw)
	default:
		return nil, fmt.Errorf("serdering: unsupported kind %q", kind)
	}
	if err != nil {
		return nil, err
	}
	return ked, nil
}
