package wire

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"strings"

	"github.com/google/uuid"
)

// mimeHeaderPrefix is the literal text every MIME envelope begins with,
// used both to write the signature and to auto-detect it.
const mimeHeaderPrefix = "Content-Type: multipart/mixed; boundary="

// encodeMIME renders v as a legacy multipart/mixed envelope: a
// Content-Type header line naming the boundary, then a first JSON part
// (byte-strings at or below the inline threshold inlined as base64; larger
// ones replaced by a marker holding their part index) followed by one part
// per byte-string above the threshold.
func encodeMIME(v any, threshold int) ([]byte, error) {
	boundary := uuid.NewString()

	var blobs [][]byte
	jsonReady, err := mimeStrip(v, threshold, &blobs)
	if err != nil {
		return nil, err
	}
	bodyJSON, err := json.Marshal(jsonReady)
	if err != nil {
		return nil, fmt.Errorf("wire: encoding MIME body: %w", err)
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := mw.SetBoundary(boundary); err != nil {
		return nil, fmt.Errorf("wire: setting MIME boundary: %w", err)
	}

	part, err := mw.CreatePart(map[string][]string{"Content-Type": {"application/json"}})
	if err != nil {
		return nil, fmt.Errorf("wire: creating json part: %w", err)
	}
	if _, err := part.Write(bodyJSON); err != nil {
		return nil, fmt.Errorf("wire: writing json part: %w", err)
	}

	for _, b := range blobs {
		blobPart, err := mw.CreatePart(map[string][]string{"Content-Type": {"application/octet-stream"}})
		if err != nil {
			return nil, fmt.Errorf("wire: creating blob part: %w", err)
		}
		if _, err := blobPart.Write(b); err != nil {
			return nil, fmt.Errorf("wire: writing blob part: %w", err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("wire: closing multipart writer: %w", err)
	}

	var out strings.Builder
	out.WriteString(mimeHeaderPrefix)
	out.WriteString(boundary)
	out.WriteString("\n\n")
	out.Write(buf.Bytes())
	return []byte(out.String()), nil
}

// mimeStrip replaces every byte-string in v with either an inline base64
// marker or an appended-blob marker, mirroring the JB embedded-binary rule
// (spec §4.A) so the two envelopes share one mental model.
func mimeStrip(v any, threshold int, blobs *[][]byte) (any, error) {
	switch x := v.(type) {
	case []byte:
		if len(x) <= threshold {
			return map[string]any{blobMarkerKey: true, "b64": encodeBase64(x)}, nil
		}
		*blobs = append(*blobs, x)
		return map[string]any{blobMarkerKey: len(*blobs) - 1}, nil
	case []any:
		out := make([]any, len(x))
		for i, item := range x {
			v, err := mimeStrip(item, threshold, blobs)
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, item := range x {
			v, err := mimeStrip(item, threshold, blobs)
			if err != nil {
				return nil, err
			}
			out[k] = v
		}
		return out, nil
	case nil, bool, string, float64, float32:
		return x, nil
	}
	if n, ok := toInt64(v); ok {
		if _, err := normalizeInt(n); err != nil {
			return nil, err
		}
		return n, nil
	}
	return nil, fmt.Errorf("%w: %T", ErrUnsupportedType, v)
}

func decodeMIME(data []byte, opts Options) (any, error) {
	s := string(data)
	if !strings.HasPrefix(s, mimeHeaderPrefix) {
		return nil, fmt.Errorf("%w: missing MIME content-type header", ErrCorruptHeader)
	}
	headerEnd := strings.Index(s, "\n\n")
	if headerEnd < 0 {
		return nil, fmt.Errorf("%w: missing blank line after MIME header", ErrCorruptHeader)
	}
	boundary := strings.TrimSpace(s[len(mimeHeaderPrefix):headerEnd])
	if boundary == "" {
		return nil, fmt.Errorf("%w: empty boundary", ErrBoundaryMissing)
	}

	mr := multipart.NewReader(bytes.NewReader(data[headerEnd+2:]), boundary)
	var jsonPart []byte
	var blobParts [][]byte
	partIdx := 0
	for {
		p, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorruptBody, err)
		}
		raw, err := io.ReadAll(p)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorruptBody, err)
		}
		ct, _, _ := mime.ParseMediaType(p.Header.Get("Content-Type"))
		if partIdx == 0 {
			if ct != "application/json" {
				return nil, fmt.Errorf("%w: first part is not application/json", ErrCorruptBody)
			}
			jsonPart = raw
		} else {
			if opts.CopyBuffers {
				dup := make([]byte, len(raw))
				copy(dup, raw)
				raw = dup
			}
			blobParts = append(blobParts, raw)
		}
		partIdx++
	}
	if jsonPart == nil {
		return nil, fmt.Errorf("%w: no parts found", ErrCorruptBody)
	}

	var tree any
	if err := json.Unmarshal(jsonPart, &tree); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptBody, err)
	}
	return mimeUnstrip(tree, blobParts)
}

func mimeUnstrip(v any, blobs [][]byte) (any, error) {
	switch x := v.(type) {
	case map[string]any:
		if _, ok := x[blobMarkerKey]; ok {
			if b64, ok := x["b64"].(string); ok {
				return decodeBase64(b64)
			}
			idxF, ok := x[blobMarkerKey].(float64)
			if !ok {
				return nil, fmt.Errorf("%w: malformed blob marker", ErrCorruptBody)
			}
			idx := int(idxF)
			if idx < 0 || idx >= len(blobs) {
				return nil, fmt.Errorf("%w: blob index %d out of range", ErrCorruptBody, idx)
			}
			return blobs[idx], nil
		}
		out := make(map[string]any, len(x))
		for k, item := range x {
			v, err := mimeUnstrip(item, blobs)
			if err != nil {
				return nil, err
			}
			out[k] = v
		}
		return out, nil
	case []any:
		out := make([]any, len(x))
		for i, item := range x {
			v, err := mimeUnstrip(item, blobs)
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil
	case float64:
		if x == float64(int64(x)) {
			n := int64(x)
			if _, err := normalizeInt(n); err == nil {
				return n, nil
			}
		}
		return x, nil
	default:
		return x, nil
	}
}
