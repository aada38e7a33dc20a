package wire

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

// decodeJB parses a JB envelope. See encodeJB for the header grammar; the
// abbreviated form "JB<major><minor>\n" (no semicolons) is accepted as the
// "minimum viable header" spec §4.A calls out, meaning an empty JSON body
// with no seed and no blobs.
func decodeJB(data []byte, opts Options) (any, error) {
	nl := indexByte(data, '\n')
	if nl < 0 {
		return nil, fmt.Errorf("%w: missing header terminator", ErrCorruptHeader)
	}
	header := string(data[:nl])
	rest := data[nl+1:]

	if len(header) < 4 || header[:2] != "JB" {
		return nil, fmt.Errorf("%w: bad signature", ErrCorruptHeader)
	}
	major := header[2]
	if major > jbMajor {
		return nil, fmt.Errorf("%w: major version %q", ErrVersionUnsupported, string(major))
	}

	if len(header) == 4 {
		// "JB<major><minor>" with nothing else: empty body, no blobs.
		return nil, nil
	}

	if len(header) < 5 || header[4] != ';' {
		return nil, fmt.Errorf("%w: malformed header %q", ErrCorruptHeader, header)
	}
	fields := strings.SplitN(header[5:], ";", 3)
	if len(fields) != 3 {
		return nil, fmt.Errorf("%w: expected 3 fields after version, got %d", ErrCorruptHeader, len(fields))
	}
	seed, jsonLenStr, blobLensStr := fields[0], fields[1], fields[2]

	jsonLen, err := strconv.Atoi(jsonLenStr)
	if err != nil {
		return nil, fmt.Errorf("%w: bad json length %q", ErrCorruptHeader, jsonLenStr)
	}
	if jsonLen < 0 || jsonLen > len(rest) {
		return nil, fmt.Errorf("%w: declared json length %d exceeds buffer", ErrCorruptBody, jsonLen)
	}

	body := rest[:jsonLen]
	afterBody := rest[jsonLen:]
	if len(afterBody) == 0 || afterBody[0] != '\n' {
		return nil, fmt.Errorf("%w: missing newline after json body", ErrCorruptBody)
	}
	afterBody = afterBody[1:]

	var blobLens []int
	if blobLensStr != "" {
		for _, part := range strings.Split(blobLensStr, ",") {
			n, err := strconv.Atoi(part)
			if err != nil {
				return nil, fmt.Errorf("%w: bad blob length %q", ErrCorruptHeader, part)
			}
			blobLens = append(blobLens, n)
		}
	}

	blobs := make([][]byte, len(blobLens))
	cursor := afterBody
	for i, n := range blobLens {
		if n < 0 || n > len(cursor) {
			return nil, fmt.Errorf("%w: declared blob length %d exceeds remaining buffer", ErrCorruptBody, n)
		}
		raw := cursor[:n]
		if opts.CopyBuffers {
			dup := make([]byte, n)
			copy(dup, raw)
			raw = dup
		}
		blobs[i] = raw
		cursor = cursor[n:]
		if len(cursor) == 0 || cursor[0] != '\n' {
			return nil, fmt.Errorf("%w: missing newline after blob %d", ErrCorruptBody, i)
		}
		cursor = cursor[1:]
	}

	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("%w: invalid json body", ErrCorruptBody)
	}

	d := &jbDecoder{seed: seed, blobs: blobs, copyBuffers: opts.CopyBuffers}
	root := gjson.ParseBytes(body)
	return d.convert(root)
}

func indexByte(b []byte, c byte) int {
	for i, x := range b {
		if x == c {
			return i
		}
	}
	return -1
}

type jbDecoder struct {
	seed        string
	blobs       [][]byte
	blobIdx     int
	copyBuffers bool
}

func (d *jbDecoder) convert(r gjson.Result) (any, error) {
	switch r.Type {
	case gjson.Null:
		return nil, nil
	case gjson.True:
		return true, nil
	case gjson.False:
		return false, nil
	case gjson.String:
		return r.Str, nil
	case gjson.Number:
		return d.convertNumber(r)
	case gjson.JSON:
		if r.IsArray() {
			return d.convertArray(r)
		}
		return d.convertObjectOrBlob(r)
	default:
		return nil, fmt.Errorf("%w: unrecognized json token", ErrCorruptBody)
	}
}

func (d *jbDecoder) convertNumber(r gjson.Result) (any, error) {
	raw := r.Raw
	if !strings.ContainsAny(raw, ".eE") {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			// An integral literal outside int64 range is also outside
			// the safe range, so it is rejected like normalizeInt does.
			return nil, fmt.Errorf("%w: %s exceeds 2^53", ErrNumericRange, raw)
		}
		if _, err := normalizeInt(n); err != nil {
			return nil, err
		}
		return n, nil
	}
	return r.Num, nil
}

func (d *jbDecoder) convertArray(r gjson.Result) (any, error) {
	var out []any
	var firstErr error
	r.ForEach(func(_, value gjson.Result) bool {
		v, err := d.convert(value)
		if err != nil {
			firstErr = err
			return false
		}
		out = append(out, v)
		return true
	})
	if firstErr != nil {
		return nil, firstErr
	}
	if out == nil {
		out = []any{}
	}
	return out, nil
}

func (d *jbDecoder) convertObjectOrBlob(r gjson.Result) (any, error) {
	marker := r.Get(blobMarkerKey)
	if marker.Exists() && marker.String() == d.seed {
		if b64 := r.Get("b64"); b64.Exists() {
			return decodeBase64(b64.String())
		}
		if d.blobIdx >= len(d.blobs) {
			return nil, fmt.Errorf("%w: more blob markers than appended blobs", ErrCorruptBody)
		}
		b := d.blobs[d.blobIdx]
		d.blobIdx++
		return b, nil
	}

	out := make(map[string]any)
	var firstErr error
	r.ForEach(func(key, value gjson.Result) bool {
		v, err := d.convert(value)
		if err != nil {
			firstErr = err
			return false
		}
		out[key.Str] = v
		return true
	})
	if firstErr != nil {
		return nil, firstErr
	}
	return out, nil
}
