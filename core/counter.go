package core

import (
	"fmt"
	"strconv"
)

// Counter is a CESR framing header: a code identifying the kind of
// attachment group that follows, and a count of how many quadlets (here:
// qb64 units of the group's member type) follow it.
type Counter struct {
	code  CounterCode
	count int
}

// countDigits is the number of hex digits used to encode a counter's count.
const countDigits = 2

func NewCounter(code CounterCode, count int) (Counter, error) {
	if _, ok := counterKnown[code]; !ok {
		return Counter{}, fmt.Errorf("%w: %q", ErrUnknownCounter, code)
	}
	if count < 0 || count > 0xFF {
		return Counter{}, fmt.Errorf("counter count out of range: %d", count)
	}
	return Counter{code: code, count: count}, nil
}

var counterKnown = map[CounterCode]bool{
	CtrControllerIdxSigs:    true,
	CtrWitnessIdxSigs:       true,
	CtrNonTransReceiptCpl:   true,
	CtrSealSourceCpl:        true,
	CtrTransReceiptQuad:     true,
	CtrSealSourceLastSingle: true,
	CtrAttachedMaterialQb64: true,
}

// Qb64 renders the counter as its code followed by countDigits hex digits
// (uppercase) giving the quadlet count.
func (c Counter) Qb64() string {
	return fmt.Sprintf("%s%0*X", c.code, countDigits, c.count)
}

// CounterFromQb64 parses a Counter from the head of a qb64 stream.
func CounterFromQb64(qb64 string) (Counter, error) {
	for code := range counterKnown {
		cl := len(code)
		if len(qb64) < cl {
			continue
		}
		if qb64[:cl] != string(code) {
			continue
		}
		if len(qb64) < cl+countDigits {
			return Counter{}, NewShortage(cl+countDigits-len(qb64), "")
		}
		n, err := strconv.ParseInt(qb64[cl:cl+countDigits], 16, 32)
		if err != nil {
			return Counter{}, fmt.Errorf("counter count decode: %w", err)
		}
		return Counter{code: code, count: int(n)}, nil
	}
	return Counter{}, fmt.Errorf("%w: no counter code matches %q", ErrUnknownCounter, qb64)
}

func (c Counter) Code() CounterCode { return c.code }
func (c Counter) Count() int        { return c.count }

// Size is the qb64 character width of the counter header itself.
func (c Counter) Size() int { return len(c.code) + countDigits }
