// Package serdering implements Serder, the parsed form of a KERI event: raw
// bytes, detected serialization kind, declared size, and the decoded field
// mapping.
package serdering

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// Ked is an order-preserving mapping from field name to value, used for the
// decoded body of an event ("key event dict" in keripy's terminology). Field
// order is part of the wire contract (spec §5, §9): a plain Go map's
// randomized iteration order cannot serve as the canonical representation,
// so Ked keeps an explicit ordered slice of key/value pairs alongside an
// index for O(1) lookup.
type Ked struct {
	keys   []string
	values []any
	index  map[string]int
}

// NewKed returns an empty ordered mapping.
func NewKed() *Ked {
	return &Ked{index: map[string]int{}}
}

// Set assigns key to value, appending it if key is new, or overwriting the
// existing value (without changing its position) if key is already present.
func (k *Ked) Set(key string, value any) *Ked {
	if i, ok := k.index[key]; ok {
		k.values[i] = value
		return k
	}
	k.index[key] = len(k.keys)
	k.keys = append(k.keys, key)
	k.values = append(k.values, value)
	return k
}

// Get returns the value at key and whether it was present.
func (k *Ked) Get(key string) (any, bool) {
	if k == nil {
		return nil, false
	}
	i, ok := k.index[key]
	if !ok {
		return nil, false
	}
	return k.values[i], true
}

// GetString returns the value at key as a string, or "" if absent or not a
// string.
func (k *Ked) GetString(key string) string {
	v, ok := k.Get(key)
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

// Delete removes key, shifting later keys left by one position.
func (k *Ked) Delete(key string) {
	i, ok := k.index[key]
	if !ok {
		return
	}
	k.keys = append(k.keys[:i], k.keys[i+1:]...)
	k.values = append(k.values[:i], k.values[i+1:]...)
	delete(k.index, key)
	for j := i; j < len(k.keys); j++ {
		k.index[k.keys[j]] = j
	}
}

// Keys returns the field names in insertion order. The returned slice must
// not be mutated.
func (k *Ked) Keys() []string { return k.keys }

// Len returns the number of fields.
func (k *Ked) Len() int { return len(k.keys) }

// Clone returns a deep-enough copy (shallow on leaf values, which this
// package treats as immutable once set) safe for independent mutation of
// keys/order.
func (k *Ked) Clone() *Ked {
	c := NewKed()
	for i, key := range k.keys {
		c.Set(key, k.values[i])
	}
	return c
}

// MarshalJSON writes the mapping as a JSON object with fields in insertion
// order, which encoding/json's map handling cannot do on its own.
func (k *Ked) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, key := range k.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(key)
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		vb, err := marshalJSONValue(k.values[i])
		if err != nil {
			return nil, err
		}
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func marshalJSONValue(v any) ([]byte, error) {
	if nested, ok := v.(*Ked); ok {
		return nested.MarshalJSON()
	}
	if list, ok := v.([]any); ok {
		var buf bytes.Buffer
		buf.WriteByte('[')
		for i, e := range list {
			if i > 0 {
				buf.WriteByte(',')
			}
			eb, err := marshalJSONValue(e)
			if err != nil {
				return nil, err
			}
			buf.Write(eb)
		}
		buf.WriteByte(']')
		return buf.Bytes(), nil
	}
	return json.Marshal(v)
}

// UnmarshalJSON decodes a JSON object into the mapping, preserving the
// source field order using json.Decoder's token stream (encoding/json's
// struct/map decode path would not preserve it).
func (k *Ked) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	delim, ok := tok.(json.Delim)
	if !ok || delim != '{' {
		return fmt.Errorf("serdering: expected JSON object")
	}
	nk := NewKed()
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("serdering: expected string key")
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return err
		}
		val, err := decodeJSONValue(raw)
		if err != nil {
			return err
		}
		nk.Set(key, val)
	}
	if _, err := dec.Token(); err != nil { // closing '}'
		return err
	}
	*k = *nk
	return nil
}

func decodeJSONValue(raw json.RawMessage) (any, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, nil
	}
	switch trimmed[0] {
	case '{':
		nested := NewKed()
		if err := nested.UnmarshalJSON(trimmed); err != nil {
			return nil, err
		}
		return nested, nil
	case '[':
		var items []json.RawMessage
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, err
		}
		out := make([]any, 0, len(items))
		for _, it := range items {
			v, err := decodeJSONValue(it)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		return out, nil
	default:
		var v any
		dec := json.NewDecoder(bytes.NewReader(trimmed))
		dec.UseNumber()
		if err := dec.Decode(&v); err != nil {
			return nil, err
		}
		return v, nil
	}
}

// MarshalCBOR encodes the mapping as a CBOR definite-length map (major type
// 5) with keys in insertion order. Leaf values are marshaled individually
// with fxamacker/cbor; only the map header and key ordering are written by
// hand, since no CBOR library in the pack preserves Go-map insertion order
// through its generic map encode path.
func (k *Ked) MarshalCBOR() ([]byte, error) {
	var buf bytes.Buffer
	buf.Write(cborMapHeader(len(k.keys)))
	for i, key := range k.keys {
		kb, err := cbor.Marshal(key)
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		vb, err := marshalCBORValue(k.values[i])
		if err != nil {
			return nil, err
		}
		buf.Write(vb)
	}
	return buf.Bytes(), nil
}

func marshalCBORValue(v any) ([]byte, error) {
	switch val := v.(type) {
	case *Ked:
		return val.MarshalCBOR()
	case []any:
		var buf bytes.Buffer
		buf.Write(cborArrayHeader(len(val)))
		for _, e := range val {
			eb, err := marshalCBORValue(e)
			if err != nil {
				return nil, err
			}
			buf.Write(eb)
		}
		return buf.Bytes(), nil
	default:
		return cbor.Marshal(v)
	}
}

// cborMapHeader returns the CBOR major-type-5 (map) header for n pairs, per
// RFC 8949 §3.
func cborMapHeader(n int) []byte {
	return cborHeader(5, n)
}

// cborArrayHeader returns the CBOR major-type-4 (array) header for n items.
func cborArrayHeader(n int) []byte {
	return cborHeader(4, n)
}

func cborHeader(majorType byte, n int) []byte {
	major := majorType << 5
	switch {
	case n < 24:
		return []byte{major | byte(n)}
	case n < 1<<8:
		return []byte{major | 24, byte(n)}
	case n < 1<<16:
		b := make([]byte, 3)
		b[0] = major | 25
		binary.BigEndian.PutUint16(b[1:], uint16(n))
		return b
	default:
		b := make([]byte, 5)
		b[0] = major | 26
		binary.BigEndian.PutUint32(b[1:], uint32(n))
		return b
	}
}

// UnmarshalCBOR decodes a CBOR map into the mapping, preserving the source
// key order. fxamacker/cbor has no order-preserving generic-map decode path
// (Go map iteration order is randomized), so the definite-length map/array
// structure is walked by hand per RFC 8949 §3 and only leaf scalars are
// handed to the library.
func (k *Ked) UnmarshalCBOR(data []byte) error {
	items, _, err := splitCBORItems(data, 0, true)
	if err != nil {
		return err
	}
	if len(items)%2 != 0 {
		return fmt.Errorf("serdering: cbor map has odd item count")
	}
	nk := NewKed()
	for i := 0; i < len(items); i += 2 {
		var key string
		if err := cbor.Unmarshal(items[i], &key); err != nil {
			return fmt.Errorf("serdering: cbor map key: %w", err)
		}
		val, err := decodeCBORValue(items[i+1])
		if err != nil {
			return err
		}
		nk.Set(key, val)
	}
	*k = *nk
	return nil
}

func decodeCBORValue(raw []byte) (any, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	major := raw[0] >> 5
	switch major {
	case 5: // map
		nested := NewKed()
		if err := nested.UnmarshalCBOR(raw); err != nil {
			return nil, err
		}
		return nested, nil
	case 4: // array
		items, _, err := splitCBORItems(raw, 0, false)
		if err != nil {
			return nil, err
		}
		out := make([]any, 0, len(items))
		for _, it := range items {
			v, err := decodeCBORValue(it)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		return out, nil
	default:
		var v any
		if err := cbor.Unmarshal(raw, &v); err != nil {
			return nil, err
		}
		return v, nil
	}
}

// cborHeaderInfo decodes the additional-info field of a CBOR initial byte,
// returning the number of header bytes that follow the initial byte and the
// encoded count/length value, per RFC 8949 §3.
func cborHeaderInfo(data []byte) (headerLen int, value uint64, err error) {
	if len(data) == 0 {
		return 0, 0, fmt.Errorf("serdering: truncated cbor item")
	}
	ai := data[0] & 0x1F
	switch {
	case ai < 24:
		return 0, uint64(ai), nil
	case ai == 24:
		if len(data) < 2 {
			return 0, 0, fmt.Errorf("serdering: truncated cbor item")
		}
		return 1, uint64(data[1]), nil
	case ai == 25:
		if len(data) < 3 {
			return 0, 0, fmt.Errorf("serdering: truncated cbor item")
		}
		return 2, uint64(binary.BigEndian.Uint16(data[1:3])), nil
	case ai == 26:
		if len(data) < 5 {
			return 0, 0, fmt.Errorf("serdering: truncated cbor item")
		}
		return 4, uint64(binary.BigEndian.Uint32(data[1:5])), nil
	case ai == 27:
		if len(data) < 9 {
			return 0, 0, fmt.Errorf("serdering: truncated cbor item")
		}
		return 8, binary.BigEndian.Uint64(data[1:9]), nil
	default:
		return 0, 0, fmt.Errorf("serdering: unsupported cbor additional info %d (indefinite length not supported)", ai)
	}
}

// cborItemLen returns the number of bytes the single CBOR data item at the
// start of data occupies, recursing into containers as needed.
func cborItemLen(data []byte) (int, error) {
	if len(data) == 0 {
		return 0, fmt.Errorf("serdering: truncated cbor item")
	}
	major := data[0] >> 5
	hdrLen, value, err := cborHeaderInfo(data)
	if err != nil {
		return 0, err
	}
	total := 1 + hdrLen
	switch major {
	case 0, 1: // unsigned/negative integer
		return total, nil
	case 2, 3: // byte/text string
		n := int(value)
		if len(data) < total+n {
			return 0, fmt.Errorf("serdering: truncated cbor string")
		}
		return total + n, nil
	case 4: // array: value subitems
		for i := uint64(0); i < value; i++ {
			l, err := cborItemLen(data[total:])
			if err != nil {
				return 0, err
			}
			total += l
		}
		return total, nil
	case 5: // map: value pairs
		for i := uint64(0); i < value*2; i++ {
			l, err := cborItemLen(data[total:])
			if err != nil {
				return 0, err
			}
			total += l
		}
		return total, nil
	case 6: // tag: one subitem
		l, err := cborItemLen(data[total:])
		if err != nil {
			return 0, err
		}
		return total + l, nil
	case 7: // simple/float
		return total, nil
	default:
		return 0, fmt.Errorf("serdering: unsupported cbor major type %d", major)
	}
}

// splitCBORItems walks a single CBOR container (map or array) starting at
// offset in data and returns its member items in wire order, each as a
// standalone byte slice. asMap controls whether data[offset] is expected to
// carry a map header (true) or an array header (false); the offset just
// past the end of the container is also returned.
func splitCBORItems(data []byte, offset int, asMap bool) ([][]byte, int, error) {
	if offset >= len(data) {
		return nil, 0, fmt.Errorf("serdering: truncated cbor container")
	}
	d := data[offset:]
	major := d[0] >> 5
	wantMajor := byte(4)
	if asMap {
		wantMajor = 5
	}
	if major != wantMajor {
		return nil, 0, fmt.Errorf("serdering: expected cbor major type %d, got %d", wantMajor, major)
	}
	hdrLen, value, err := cborHeaderInfo(d)
	if err != nil {
		return nil, 0, err
	}
	pos := 1 + hdrLen
	count := value
	if asMap {
		count *= 2
	}
	items := make([][]byte, 0, count)
	for i := uint64(0); i < count; i++ {
		l, err := cborItemLen(d[pos:])
		if err != nil {
			return nil, 0, err
		}
		items = append(items, d[pos:pos+l])
		pos += l
	}
	return items, offset + pos, nil
}
