package wire

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// jbMajor/jbMinor are the version digits this encoder writes. A decoder
// rejects any header whose major digit exceeds jbMajor (spec §4.A: "reject
// a major version newer than supported").
const (
	jbMajor = '1'
	jbMinor = '0'
)

// blobMarkerKey is the JSON object key used to mark an embedded byte-string.
const blobMarkerKey = "__b"

// encodeJB writes v using the JB envelope: a header line, a JSON body of
// exactly the declared length, then each appended blob terminated by \n.
func encodeJB(v any, threshold int) ([]byte, error) {
	seed := uuid.NewString()

	enc := &jbEncoder{seed: seed, threshold: threshold}
	var sb strings.Builder
	if err := enc.writeValue(&sb, v); err != nil {
		return nil, err
	}
	body := sb.String()

	var header strings.Builder
	header.WriteString("JB")
	header.WriteByte(jbMajor)
	header.WriteByte(jbMinor)
	header.WriteByte(';')
	header.WriteString(seed)
	header.WriteByte(';')
	header.WriteString(strconv.Itoa(len(body)))
	header.WriteByte(';')
	lens := make([]string, len(enc.blobs))
	for i, b := range enc.blobs {
		lens[i] = strconv.Itoa(len(b))
	}
	header.WriteString(strings.Join(lens, ","))
	header.WriteByte('\n')

	var out strings.Builder
	out.WriteString(header.String())
	out.WriteString(body)
	out.WriteByte('\n')
	for _, b := range enc.blobs {
		out.Write(b)
		out.WriteByte('\n')
	}
	return []byte(out.String()), nil
}

type jbEncoder struct {
	seed      string
	threshold int
	blobs     [][]byte
}

// writeValue manually serializes v to JSON text, so that the order in which
// appended-blob markers land in the text is exactly the order blobs are
// appended to enc.blobs — the decoder walks the same text in document order
// to reassign them, with no separate index encoded on the wire.
func (e *jbEncoder) writeValue(sb *strings.Builder, v any) error {
	switch x := v.(type) {
	case nil:
		sb.WriteString("null")
		return nil
	case bool:
		if x {
			sb.WriteString("true")
		} else {
			sb.WriteString("false")
		}
		return nil
	case string:
		return e.writeJSONString(sb, x)
	case float64:
		sb.WriteString(strconv.FormatFloat(x, 'g', -1, 64))
		return nil
	case float32:
		sb.WriteString(strconv.FormatFloat(float64(x), 'g', -1, 64))
		return nil
	case []byte:
		return e.writeBlob(sb, x)
	case []any:
		return e.writeList(sb, x)
	case map[string]any:
		return e.writeMap(sb, x)
	}
	if n, ok := toInt64(v); ok {
		n, err := normalizeInt(n)
		if err != nil {
			return err
		}
		sb.WriteString(strconv.FormatInt(n, 10))
		return nil
	}
	return fmt.Errorf("%w: %T", ErrUnsupportedType, v)
}

func (e *jbEncoder) writeJSONString(sb *strings.Builder, s string) error {
	b, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("wire: encoding string: %w", err)
	}
	sb.Write(b)
	return nil
}

func (e *jbEncoder) writeBlob(sb *strings.Builder, b []byte) error {
	if len(b) <= e.threshold {
		sb.WriteString(`{"` + blobMarkerKey + `":`)
		if err := e.writeJSONString(sb, e.seed); err != nil {
			return err
		}
		sb.WriteString(`,"b64":`)
		if err := e.writeJSONString(sb, encodeBase64(b)); err != nil {
			return err
		}
		sb.WriteString("}")
		return nil
	}
	e.blobs = append(e.blobs, b)
	sb.WriteString(`{"` + blobMarkerKey + `":`)
	if err := e.writeJSONString(sb, e.seed); err != nil {
		return err
	}
	sb.WriteString("}")
	return nil
}

func (e *jbEncoder) writeList(sb *strings.Builder, list []any) error {
	sb.WriteByte('[')
	for i, item := range list {
		if i > 0 {
			sb.WriteByte(',')
		}
		if err := e.writeValue(sb, item); err != nil {
			return err
		}
	}
	sb.WriteByte(']')
	return nil
}

func (e *jbEncoder) writeMap(sb *strings.Builder, m map[string]any) error {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	sb.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			sb.WriteByte(',')
		}
		if err := e.writeJSONString(sb, k); err != nil {
			return err
		}
		sb.WriteByte(':')
		if err := e.writeValue(sb, m[k]); err != nil {
			return err
		}
	}
	sb.WriteByte('}')
	return nil
}
