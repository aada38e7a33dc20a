package table

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/arborfield/actorcore/internal/sortenc"
)

// Every token in a column buffer starts with a one-byte presence flag
// (presentByte or undefinedByte) so a mid-sequence explicit-undefined
// entry (spec §4.B: "undefined → single hyphen") can never be confused
// with a kind-specific payload that happens to start with the same byte
// (notably booleans and negative/ascii-decimal floats, which can
// legitimately start with 0x00 or '-').
const (
	undefinedByte byte = 0x00
	presentByte   byte = 0x01
)

func undefinedToken() []byte {
	return []byte{undefinedByte}
}

func encodeToken(desc ColumnDescriptor, value any) ([]byte, error) {
	if value == nil {
		return undefinedToken(), nil
	}

	var payload []byte
	switch desc.Kind {
	case Text:
		s, ok := value.(string)
		if !ok {
			return nil, fmt.Errorf("expected string for text column, got %T", value)
		}
		payload = lenPrefixed([]byte(s))
	case Int:
		n, ok := asInt64(value)
		if !ok {
			return nil, fmt.Errorf("expected integer for int column, got %T", value)
		}
		payload = []byte(sortenc.Int(n))
	case Fixed:
		f, ok := asFloat64(value)
		if !ok {
			return nil, fmt.Errorf("expected number for fixed column, got %T", value)
		}
		payload = []byte(sortenc.Fixed(f, desc.Precision))
	case Float:
		f, ok := asFloat64(value)
		if !ok {
			return nil, fmt.Errorf("expected number for float column, got %T", value)
		}
		payload = lenPrefixed([]byte(strconv.FormatFloat(f, 'g', -1, 64)))
	case Boolean:
		b, ok := value.(bool)
		if !ok {
			return nil, fmt.Errorf("expected bool for boolean column, got %T", value)
		}
		if b {
			payload = []byte{1}
		} else {
			payload = []byte{0}
		}
	case JSON:
		raw, merr := json.Marshal(value)
		if merr != nil {
			return nil, fmt.Errorf("encoding json column: %w", merr)
		}
		payload = lenPrefixed(raw)
	default:
		return nil, fmt.Errorf("unknown column kind %v", desc.Kind)
	}
	return append([]byte{presentByte}, payload...), nil
}

// decodeToken reads one token from the front of buf, returning the decoded
// value (nil for undefined) and the number of bytes consumed.
func decodeToken(desc ColumnDescriptor, buf []byte) (any, int, error) {
	if len(buf) == 0 {
		return nil, 0, fmt.Errorf("empty buffer")
	}
	if buf[0] == undefinedByte {
		return nil, 1, nil
	}
	buf = buf[1:]
	switch desc.Kind {
	case Text:
		b, n, err := readLenPrefixed(buf)
		if err != nil {
			return nil, 0, err
		}
		return string(b), n + 1, nil
	case Int:
		s, n, err := sortenc.ReadToken(buf)
		if err != nil {
			return nil, 0, err
		}
		v, err := sortenc.DecodeInt(s)
		if err != nil {
			return nil, 0, err
		}
		return v, n + 1, nil
	case Fixed:
		s, n, err := sortenc.ReadToken(buf)
		if err != nil {
			return nil, 0, err
		}
		v, err := sortenc.DecodeFixed(s, desc.Precision)
		if err != nil {
			return nil, 0, err
		}
		return v, n + 1, nil
	case Float:
		b, n, err := readLenPrefixed(buf)
		if err != nil {
			return nil, 0, err
		}
		f, err := strconv.ParseFloat(string(b), 64)
		if err != nil {
			return nil, 0, fmt.Errorf("parsing float column: %w", err)
		}
		return f, n + 1, nil
	case Boolean:
		if len(buf) < 1 {
			return nil, 0, fmt.Errorf("truncated boolean token")
		}
		return buf[0] == 1, 2, nil
	case JSON:
		b, n, err := readLenPrefixed(buf)
		if err != nil {
			return nil, 0, err
		}
		var v any
		if err := json.Unmarshal(b, &v); err != nil {
			return nil, 0, fmt.Errorf("decoding json column: %w", err)
		}
		return v, n + 1, nil
	default:
		return nil, 0, fmt.Errorf("unknown column kind %v", desc.Kind)
	}
}

func lenPrefixed(b []byte) []byte {
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(b)))
	return append(lenBuf[:], b...)
}

func readLenPrefixed(buf []byte) ([]byte, int, error) {
	if len(buf) < 4 {
		return nil, 0, fmt.Errorf("truncated length prefix")
	}
	n := binary.LittleEndian.Uint32(buf[:4])
	if uint64(n) > uint64(len(buf)-4) {
		return nil, 0, fmt.Errorf("declared length %d exceeds remaining buffer", n)
	}
	return buf[4 : 4+n], int(4 + n), nil
}

func asInt64(v any) (int64, bool) {
	switch x := v.(type) {
	case int:
		return int64(x), true
	case int32:
		return int64(x), true
	case int64:
		return x, true
	case float64:
		return int64(x), true
	}
	return 0, false
}

func asFloat64(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	}
	return 0, false
}
