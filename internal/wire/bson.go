package wire

import (
	"encoding/binary"
	"fmt"
	"math"
)

// The BSON envelope here is a compact, length-prefixed-and-trailing-null
// subset matching the framing spec §3 describes for the "BSON" wire buffer
// kind, not the full upstream BSON document spec (no third-party BSON
// library appears anywhere in the reference pack to ground a complete
// implementation on; see DESIGN.md). It uses one type-tagged byte per value
// and a leading int32 total-length field so detect() can recognize it by
// its signature the same way the other envelopes are recognized.
const (
	bsonTagUndefined byte = 0x01
	bsonTagFalse     byte = 0x02
	bsonTagTrue      byte = 0x03
	bsonTagInt64     byte = 0x04
	bsonTagFloat64   byte = 0x05
	bsonTagString    byte = 0x06
	bsonTagBytes     byte = 0x07
	bsonTagArray     byte = 0x08
	bsonTagMap       byte = 0x09
)

func encodeBSON(v any) ([]byte, error) {
	var payload []byte
	payload, err := bsonAppendValue(payload, v)
	if err != nil {
		return nil, err
	}

	total := 4 + len(payload) + 1
	out := make([]byte, 4, total)
	binary.LittleEndian.PutUint32(out, uint32(total))
	out = append(out, payload...)
	out = append(out, 0x00)
	return out, nil
}

func bsonAppendValue(buf []byte, v any) ([]byte, error) {
	switch x := v.(type) {
	case nil:
		return append(buf, bsonTagUndefined), nil
	case bool:
		if x {
			return append(buf, bsonTagTrue), nil
		}
		return append(buf, bsonTagFalse), nil
	case string:
		buf = append(buf, bsonTagString)
		return bsonAppendLenPrefixed(buf, []byte(x)), nil
	case []byte:
		buf = append(buf, bsonTagBytes)
		return bsonAppendLenPrefixed(buf, x), nil
	case float64:
		buf = append(buf, bsonTagFloat64)
		var b [8]byte
		binary.LittleEndian.PutUint64(b[:], math.Float64bits(x))
		return append(buf, b[:]...), nil
	case float32:
		return bsonAppendValue(buf, float64(x))
	case []any:
		buf = append(buf, bsonTagArray)
		var countBuf [4]byte
		binary.LittleEndian.PutUint32(countBuf[:], uint32(len(x)))
		buf = append(buf, countBuf[:]...)
		var err error
		for _, item := range x {
			buf, err = bsonAppendValue(buf, item)
			if err != nil {
				return nil, err
			}
		}
		return buf, nil
	case map[string]any:
		buf = append(buf, bsonTagMap)
		var countBuf [4]byte
		binary.LittleEndian.PutUint32(countBuf[:], uint32(len(x)))
		buf = append(buf, countBuf[:]...)
		var err error
		for k, item := range x {
			buf = bsonAppendLenPrefixed(buf, []byte(k))
			buf, err = bsonAppendValue(buf, item)
			if err != nil {
				return nil, err
			}
		}
		return buf, nil
	}
	if n, ok := toInt64(v); ok {
		n, err := normalizeInt(n)
		if err != nil {
			return nil, err
		}
		buf = append(buf, bsonTagInt64)
		var b [8]byte
		binary.LittleEndian.PutUint64(b[:], uint64(n))
		return append(buf, b[:]...), nil
	}
	return nil, fmt.Errorf("%w: %T", ErrUnsupportedType, v)
}

func bsonAppendLenPrefixed(buf []byte, b []byte) []byte {
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(b)))
	buf = append(buf, lenBuf[:]...)
	return append(buf, b...)
}

func decodeBSON(data []byte, opts Options) (any, error) {
	if len(data) < 5 {
		return nil, fmt.Errorf("%w: truncated BSON envelope", ErrCorruptHeader)
	}
	total := binary.LittleEndian.Uint32(data[:4])
	if int(total) != len(data) {
		return nil, fmt.Errorf("%w: declared length %d does not match buffer length %d", ErrCorruptHeader, total, len(data))
	}
	if data[len(data)-1] != 0x00 {
		return nil, fmt.Errorf("%w: missing trailing null", ErrCorruptHeader)
	}

	v, rest, err := bsonReadValue(data[4:len(data)-1], opts)
	if err != nil {
		return nil, err
	}
	if len(rest) != 0 {
		return nil, fmt.Errorf("%w: trailing bytes after root value", ErrCorruptBody)
	}
	return v, nil
}

func bsonReadValue(b []byte, opts Options) (any, []byte, error) {
	if len(b) < 1 {
		return nil, nil, fmt.Errorf("%w: expected type tag", ErrCorruptBody)
	}
	tag := b[0]
	b = b[1:]
	switch tag {
	case bsonTagUndefined:
		return nil, b, nil
	case bsonTagTrue:
		return true, b, nil
	case bsonTagFalse:
		return false, b, nil
	case bsonTagInt64:
		if len(b) < 8 {
			return nil, nil, fmt.Errorf("%w: truncated int64", ErrCorruptBody)
		}
		n := int64(binary.LittleEndian.Uint64(b[:8]))
		if _, err := normalizeInt(n); err != nil {
			return nil, nil, err
		}
		return n, b[8:], nil
	case bsonTagFloat64:
		if len(b) < 8 {
			return nil, nil, fmt.Errorf("%w: truncated float64", ErrCorruptBody)
		}
		f := math.Float64frombits(binary.LittleEndian.Uint64(b[:8]))
		return f, b[8:], nil
	case bsonTagString:
		raw, rest, err := bsonReadLenPrefixed(b)
		if err != nil {
			return nil, nil, err
		}
		return string(raw), rest, nil
	case bsonTagBytes:
		raw, rest, err := bsonReadLenPrefixed(b)
		if err != nil {
			return nil, nil, err
		}
		if opts.CopyBuffers {
			dup := make([]byte, len(raw))
			copy(dup, raw)
			raw = dup
		}
		return raw, rest, nil
	case bsonTagArray:
		if len(b) < 4 {
			return nil, nil, fmt.Errorf("%w: truncated array count", ErrCorruptBody)
		}
		count := binary.LittleEndian.Uint32(b[:4])
		b = b[4:]
		out := make([]any, 0, count)
		for i := uint32(0); i < count; i++ {
			var v any
			var err error
			v, b, err = bsonReadValue(b, opts)
			if err != nil {
				return nil, nil, err
			}
			out = append(out, v)
		}
		return out, b, nil
	case bsonTagMap:
		if len(b) < 4 {
			return nil, nil, fmt.Errorf("%w: truncated map count", ErrCorruptBody)
		}
		count := binary.LittleEndian.Uint32(b[:4])
		b = b[4:]
		out := make(map[string]any, count)
		for i := uint32(0); i < count; i++ {
			var key []byte
			var err error
			key, b, err = bsonReadLenPrefixed(b)
			if err != nil {
				return nil, nil, err
			}
			var v any
			v, b, err = bsonReadValue(b, opts)
			if err != nil {
				return nil, nil, err
			}
			out[string(key)] = v
		}
		return out, b, nil
	default:
		return nil, nil, fmt.Errorf("%w: unrecognized BSON tag 0x%02x", ErrCorruptBody, tag)
	}
}

func bsonReadLenPrefixed(b []byte) ([]byte, []byte, error) {
	if len(b) < 4 {
		return nil, nil, fmt.Errorf("%w: truncated length prefix", ErrCorruptBody)
	}
	n := binary.LittleEndian.Uint32(b[:4])
	b = b[4:]
	if uint64(n) > uint64(len(b)) {
		return nil, nil, fmt.Errorf("%w: declared length %d exceeds remaining buffer", ErrCorruptBody, n)
	}
	return b[:n], b[n:], nil
}
