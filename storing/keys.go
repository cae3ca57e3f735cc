package storing

import (
	"fmt"

	"github.com/google/uuid"
)

// SnKey encodes a (prefix, sn) pair as a sortable byte key: the prefix
// qb64 string followed by a dot and the sequence number as 32 hex digits
// big-endian, so lexicographic byte order matches numeric sn order (spec
// §6.3: "ordered; permits recovery branches via duplicate keys").
func SnKey(prefix string, sn uint64) []byte {
	return []byte(fmt.Sprintf("%s.%032x", prefix, sn))
}

// SaidKey encodes a (prefix, said) pair as a sortable byte key.
func SaidKey(prefix, said string) []byte {
	return []byte(prefix + "." + said)
}

// FnKey encodes a (prefix, fn) first-seen-ordinal pair the same way as
// SnKey, since both are dense monotonic per-prefix counters.
func FnKey(prefix string, fn uint64) []byte {
	return SnKey(prefix, fn)
}

// PrefixOf returns the byte prefix shared by every SnKey/FnKey for prefix,
// for use with SubDB.GetLastByPrefix and SubDB.Range.
func PrefixOf(prefix string) []byte {
	return []byte(prefix + ".")
}

// NaturalKey encodes a reply record's natural key (route plus the subject
// identifiers the route carries, e.g. "/end/role" + cid + role) as a single
// sortable byte key.
func NaturalKey(parts ...string) []byte {
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += "|"
		}
		out += p
	}
	return []byte(out)
}

// NewCorrelationID returns a fresh escrow correlation id. Escrow entries
// need an id independent of their content key so duplicate escrow attempts
// for the same event can be told apart during timeout sweeps.
func NewCorrelationID() string {
	return uuid.NewString()
}
