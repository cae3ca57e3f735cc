package serdering

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/ugorji/go/codec"
)

var mgpkHandle = &codec.MsgpackHandle{}

// MarshalMsgpack encodes the mapping as a MessagePack map with keys in
// insertion order. As with MarshalCBOR, only the container headers are
// written by hand; leaf scalars go through ugorji/go/codec, which has no
// order-preserving path for a generic Go map.
func (k *Ked) MarshalMsgpack() ([]byte, error) {
	var buf bytes.Buffer
	buf.Write(mgpkMapHeader(len(k.keys)))
	for i, key := range k.keys {
		kb, err := mgpkEncode(key)
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		vb, err := marshalMsgpackValue(k.values[i])
		if err != nil {
			return nil, err
		}
		buf.Write(vb)
	}
	return buf.Bytes(), nil
}

func marshalMsgpackValue(v any) ([]byte, error) {
	switch val := v.(type) {
	case *Ked:
		return val.MarshalMsgpack()
	case []any:
		var buf bytes.Buffer
		buf.Write(mgpkArrayHeader(len(val)))
		for _, e := range val {
			eb, err := marshalMsgpackValue(e)
			if err != nil {
				return nil, err
			}
			buf.Write(eb)
		}
		return buf.Bytes(), nil
	default:
		return mgpkEncode(v)
	}
}

func mgpkEncode(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := codec.NewEncoder(&buf, mgpkHandle)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func mgpkDecode(raw []byte, out any) error {
	dec := codec.NewDecoderBytes(raw, mgpkHandle)
	return dec.Decode(out)
}

// UnmarshalMsgpack decodes a MessagePack map into the mapping, preserving
// the source key order.
func (k *Ked) UnmarshalMsgpack(data []byte) error {
	items, _, err := splitMgpkItems(data, 0, true)
	if err != nil {
		return err
	}
	if len(items)%2 != 0 {
		return fmt.Errorf("serdering: msgpack map has odd item count")
	}
	nk := NewKed()
	for i := 0; i < len(items); i += 2 {
		var key string
		if err := mgpkDecode(items[i], &key); err != nil {
			return fmt.Errorf("serdering: msgpack map key: %w", err)
		}
		val, err := decodeMsgpackValue(items[i+1])
		if err != nil {
			return err
		}
		nk.Set(key, val)
	}
	*k = *nk
	return nil
}

func decodeMsgpackValue(raw []byte) (any, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	b := raw[0]
	switch {
	case b>>4 == 0x8, b == 0xde, b == 0xdf: // fixmap, map16, map32
		nested := NewKed()
		if err := nested.UnmarshalMsgpack(raw); err != nil {
			return nil, err
		}
		return nested, nil
	case b>>4 == 0x9, b == 0xdc, b == 0xdd: // fixarray, array16, array32
		items, _, err := splitMgpkItems(raw, 0, false)
		if err != nil {
			return nil, err
		}
		out := make([]any, 0, len(items))
		for _, it := range items {
			v, err := decodeMsgpackValue(it)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		return out, nil
	default:
		var v any
		if err := mgpkDecode(raw, &v); err != nil {
			return nil, err
		}
		return v, nil
	}
}

// mgpkMapHeader returns the MessagePack header for a map of n pairs.
func mgpkMapHeader(n int) []byte {
	switch {
	case n < 16:
		return []byte{0x80 | byte(n)}
	case n < 1<<16:
		b := make([]byte, 3)
		b[0] = 0xde
		binary.BigEndian.PutUint16(b[1:], uint16(n))
		return b
	default:
		b := make([]byte, 5)
		b[0] = 0xdf
		binary.BigEndian.PutUint32(b[1:], uint32(n))
		return b
	}
}

// mgpkArrayHeader returns the MessagePack header for an array of n items.
func mgpkArrayHeader(n int) []byte {
	switch {
	case n < 16:
		return []byte{0x90 | byte(n)}
	case n < 1<<16:
		b := make([]byte, 3)
		b[0] = 0xdc
		binary.BigEndian.PutUint16(b[1:], uint16(n))
		return b
	default:
		b := make([]byte, 5)
		b[0] = 0xdd
		binary.BigEndian.PutUint32(b[1:], uint32(n))
		return b
	}
}

// mgpkItemLen returns the number of bytes the single MessagePack item at the
// start of data occupies, recursing into containers as needed. Extension
// types are not supported since this package never emits them as a leaf
// value (event fields are strings, numbers, bools, nil, or nested
// maps/arrays).
func mgpkItemLen(data []byte) (int, error) {
	if len(data) == 0 {
		return 0, fmt.Errorf("serdering: truncated msgpack item")
	}
	b := data[0]
	switch {
	case b <= 0x7f, b >= 0xe0: // positive/negative fixint
		return 1, nil
	case b>>4 == 0x8: // fixmap
		return mgpkContainerLen(data, 1, int(b&0x0f)*2)
	case b>>4 == 0x9: // fixarray
		return mgpkContainerLen(data, 1, int(b&0x0f))
	case b>>5 == 0x5: // fixstr
		n := int(b & 0x1f)
		return mgpkScalarLen(data, 1, n)
	case b == 0xc0, b == 0xc2, b == 0xc3: // nil, false, true
		return 1, nil
	case b == 0xc4: // bin8
		return mgpkLenPrefixed(data, 1, 1)
	case b == 0xc5: // bin16
		return mgpkLenPrefixed(data, 2, 1)
	case b == 0xc6: // bin32
		return mgpkLenPrefixed(data, 4, 1)
	case b == 0xca: // float32
		return mgpkScalarLen(data, 1, 4)
	case b == 0xcb: // float64
		return mgpkScalarLen(data, 1, 8)
	case b == 0xcc: // uint8
		return mgpkScalarLen(data, 1, 1)
	case b == 0xcd: // uint16
		return mgpkScalarLen(data, 1, 2)
	case b == 0xce: // uint32
		return mgpkScalarLen(data, 1, 4)
	case b == 0xcf: // uint64
		return mgpkScalarLen(data, 1, 8)
	case b == 0xd0: // int8
		return mgpkScalarLen(data, 1, 1)
	case b == 0xd1: // int16
		return mgpkScalarLen(data, 1, 2)
	case b == 0xd2: // int32
		return mgpkScalarLen(data, 1, 4)
	case b == 0xd3: // int64
		return mgpkScalarLen(data, 1, 8)
	case b == 0xd9: // str8
		return mgpkLenPrefixed(data, 1, 1)
	case b == 0xda: // str16
		return mgpkLenPrefixed(data, 2, 1)
	case b == 0xdb: // str32
		return mgpkLenPrefixed(data, 4, 1)
	case b == 0xdc: // array16
		n, err := mgpkHeaderCount(data, 2)
		if err != nil {
			return 0, err
		}
		return mgpkContainerLen(data, 3, n)
	case b == 0xdd: // array32
		n, err := mgpkHeaderCount(data, 4)
		if err != nil {
			return 0, err
		}
		return mgpkContainerLen(data, 5, n)
	case b == 0xde: // map16
		n, err := mgpkHeaderCount(data, 2)
		if err != nil {
			return 0, err
		}
		return mgpkContainerLen(data, 3, n*2)
	case b == 0xdf: // map32
		n, err := mgpkHeaderCount(data, 4)
		if err != nil {
			return 0, err
		}
		return mgpkContainerLen(data, 5, n*2)
	default:
		return 0, fmt.Errorf("serdering: unsupported msgpack lead byte 0x%02x", b)
	}
}

func mgpkHeaderCount(data []byte, lenBytes int) (int, error) {
	if len(data) < 1+lenBytes {
		return 0, fmt.Errorf("serdering: truncated msgpack header")
	}
	switch lenBytes {
	case 1:
		return int(data[1]), nil
	case 2:
		return int(binary.BigEndian.Uint16(data[1:3])), nil
	case 4:
		return int(binary.BigEndian.Uint32(data[1:5])), nil
	}
	return 0, fmt.Errorf("serdering: bad msgpack header width")
}

func mgpkScalarLen(data []byte, headerLen, payloadLen int) (int, error) {
	total := headerLen + payloadLen
	if len(data) < total {
		return 0, fmt.Errorf("serdering: truncated msgpack scalar")
	}
	return total, nil
}

func mgpkLenPrefixed(data []byte, lenBytes, headerLen int) (int, error) {
	n, err := mgpkHeaderCount(data, lenBytes)
	if err != nil {
		return 0, err
	}
	total := headerLen + lenBytes + n
	if len(data) < total {
		return 0, fmt.Errorf("serdering: truncated msgpack string/bin")
	}
	return total, nil
}

func mgpkContainerLen(data []byte, headerLen, count int) (int, error) {
	total := headerLen
	for i := 0; i < count; i++ {
		if total > len(data) {
			return 0, fmt.Errorf("serdering: truncated msgpack container")
		}
		l, err := mgpkItemLen(data[total:])
		if err != nil {
			return 0, err
		}
		total += l
	}
	return total, nil
}

// splitMgpkItems walks a single MessagePack container (map or array)
// starting at offset in data and returns its member items in wire order.
func splitMgpkItems(data []byte, offset int, asMap bool) ([][]byte, int, error) {
	if offset >= len(data) {
		return nil, 0, fmt.Errorf("serdering: truncated msgpack container")
	}
	d := data[offset:]
	b := d[0]
	var headerLen, count int
	switch {
	case asMap && b>>4 == 0x8:
		headerLen, count = 1, int(b&0x0f)*2
	case asMap && b == 0xde:
		n, err := mgpkHeaderCount(d, 2)
		if err != nil {
			return nil, 0, err
		}
		headerLen, count = 3, n*2
	case asMap && b == 0xdf:
		n, err := mgpkHeaderCount(d, 4)
		if err != nil {
			return nil, 0, err
		}
		headerLen, count = 5, n*2
	case !asMap && b>>4 == 0x9:
		headerLen, count = 1, int(b&0x0f)
	case !asMap && b == 0xdc:
		n, err := mgpkHeaderCount(d, 2)
		if err != nil {
			return nil, 0, err
		}
		headerLen, count = 3, n
	case !asMap && b == 0xdd:
		n, err := mgpkHeaderCount(d, 4)
		if err != nil {
			return nil, 0, err
		}
		headerLen, count = 5, n
	default:
		want := "array"
		if asMap {
			want = "map"
		}
		return nil, 0, fmt.Errorf("serdering: expected msgpack %s header, got lead byte 0x%02x", want, b)
	}
	pos := headerLen
	items := make([][]byte, 0, count)
	for i := 0; i < count; i++ {
		l, err := mgpkItemLen(d[pos:])
		if err != nil {
			return nil, 0, err
		}
		items = append(items, d[pos:pos+l])
		pos += l
	}
	return items, offset + pos, nil
}
