package serdering

import "fmt"

// Kind identifies one of the three serialization formats an event may be
// rendered in. All three must carry the same field mapping and field order;
// only the wire encoding differs.
type Kind string

const (
	KindJSON Kind = "JSON"
	KindMGPK Kind = "MGPK"
	KindCBOR Kind = "CBOR"
)

// Valid reports whether k is one of the three known kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindJSON, KindMGPK, KindCBOR:
		return true
	}
	return false
}

func parseKind(s string) (Kind, error) {
	k := Kind(s)
	if !k.Valid() {
		return "", fmt.Errorf("serdering: unknown serialization kind %q", s)
	}
	return k, nil
}
