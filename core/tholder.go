package core

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"
)

// Tholder represents a signing threshold specification, which per
// original_source (keripy's Tholder) may be:
//
//   - a plain integer count ("kt": 2) — at least that many valid signatures
//     from distinct signers are required;
//   - a single hex string ("kt": "2") — same as the integer form;
//   - a flat list of fractional weights ("kt": ["1/2", "1/2", "1/2"]) — the
//     weights of the signers who actually signed must sum to >= 1;
//   - a nested list of weight clauses ("kt": [["1/2","1/2"],["1"]]) — each
//     clause must independently sum to >= 1 among the signers that fall in
//     that clause.
type Tholder struct {
	isWeighted bool
	count      int         // valid when !isWeighted
	clauses    [][]*big.Rat // valid when isWeighted; one slice per clause
}

// NewTholderInt builds a simple numeric-threshold Tholder.
func NewTholderInt(n int) (Tholder, error) {
	if n <= 0 {
		return Tholder{}, fmt.Errorf("%w: count must be positive, got %d", ErrBadThreshold, n)
	}
	return Tholder{isWeighted: false, count: n}, nil
}

// NewTholder parses a threshold specification of any of the forms KERI
// allows for "kt"/"nt": an int, a numeric string, a flat weight list, or a
// nested weight-clause list.
func NewTholder(spec any) (Tholder, error) {
	switch v := spec.(type) {
	case int:
		return NewTholderInt(v)
	case int64:
		return NewTholderInt(int(v))
	case float64:
		return NewTholderInt(int(v))
	case string:
		n, err := strconv.ParseInt(v, 16, 32)
		if err != nil {
			return Tholder{}, fmt.Errorf("%w: %q: %v", ErrBadThreshold, v, err)
		}
		return NewTholderInt(int(n))
	case []any:
		return newWeightedTholder(v)
	default:
		return Tholder{}, fmt.Errorf("%w: unsupported threshold spec %T", ErrUnknownTholder, spec)
	}
}

func newWeightedTholder(raw []any) (Tholder, error) {
	if len(raw) == 0 {
		return Tholder{}, fmt.Errorf("%w: empty threshold list", ErrBadThreshold)
	}
	// Detect nested-clause form: every element is itself a list.
	nested := true
	for _, e := range raw {
		if _, ok := e.([]any); !ok {
			nested = false
			break
		}
	}
	var clauses [][]*big.Rat
	if nested {
		for _, e := range raw {
			clause, err := parseWeightClause(e.([]any))
			if err != nil {
				return Tholder{}, err
			}
			clauses = append(clauses, clause)
		}
	} else {
		clause, err := parseWeightClause(raw)
		if err != nil {
			return Tholder{}, err
		}
		clauses = append(clauses, clause)
	}
	return Tholder{isWeighted: true, clauses: clauses}, nil
}

func parseWeightClause(raw []any) ([]*big.Rat, error) {
	clause := make([]*big.Rat, 0, len(raw))
	for _, e := range raw {
		s, ok := e.(string)
		if !ok {
			return nil, fmt.Errorf("%w: weight %v is not a string", ErrBadThreshold, e)
		}
		r, ok := new(big.Rat).SetString(s)
		if !ok {
			return nil, fmt.Errorf("%w: cannot parse weight %q", ErrBadThreshold, s)
		}
		clause = append(clause, r)
	}
	return clause, nil
}

// Size is the number of signer slots this threshold spans (the length of
// the key list it must be evaluated against): the plain count for numeric
// thresholds, or the total number of weights across all clauses for
// weighted ones.
func (t Tholder) Size() int {
	if !t.isWeighted {
		return t.count
	}
	n := 0
	for _, c := range t.clauses {
		n += len(c)
	}
	return n
}

// Satisfied reports whether the signer indices in signed (0-based positions
// into the key list the threshold was defined over) meet this threshold.
// For numeric thresholds, that is len(signed) >= count. For weighted
// thresholds, the flat index space is partitioned across clauses in order
// and every clause's weight sum over its signed members must be >= 1.
func (t Tholder) Satisfied(signed map[int]bool) bool {
	if !t.isWeighted {
		return len(signed) >= t.count
	}
	offset := 0
	for _, clause := range t.clauses {
		sum := new(big.Rat)
		for i, w := range clause {
			if signed[offset+i] {
				sum.Add(sum, w)
			}
		}
		if sum.Cmp(big.NewRat(1, 1)) < 0 {
			return false
		}
		offset += len(clause)
	}
	return true
}

// IsWeighted reports whether this Tholder uses fractional weights rather
// than a plain count.
func (t Tholder) IsWeighted() bool { return t.isWeighted }

// Count returns the plain numeric threshold. Only meaningful when
// !IsWeighted().
func (t Tholder) Count() int { return t.count }

// String renders the threshold the way it would appear in an event's
// kt/nt field (a hex count, or the nested weight-list form).
func (t Tholder) String() string {
	if !t.isWeighted {
		return strconv.FormatInt(int64(t.count), 16)
	}
	var sb strings.Builder
	sb.WriteByte('[')
	for ci, clause := range t.clauses {
		if ci > 0 {
			sb.WriteByte(',')
		}
		sb.WriteByte('[')
		for wi, w := range clause {
			if wi > 0 {
				sb.WriteByte(',')
			}
			sb.WriteString(w.RatString())
		}
		sb.WriteByte(']')
	}
	sb.WriteByte(']')
	return sb.String()
}
