package wire

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
)

// cjHeaderPrefix is the signature CJ envelopes start with, followed by the
// two version digits and a newline; canonical JSON never needs a seed or
// blob table since every byte-string is inlined as base64.
const cjHeaderPrefix = "CJ"

type cjNode struct {
	K string `json:"k"`
	V json.RawMessage `json:"v,omitempty"`
}

// encodeCJ renders v as the canonical-JSON envelope: a one-line header
// followed by a fully self-contained typed JSON document. Unlike JB, there
// is no inline/appended split for byte-strings — everything is base64.
func encodeCJ(v any) ([]byte, error) {
	node, err := cjEncodeNode(v)
	if err != nil {
		return nil, err
	}
	body, err := json.Marshal(node)
	if err != nil {
		return nil, fmt.Errorf("wire: encoding CJ body: %w", err)
	}
	var out strings.Builder
	out.WriteString(cjHeaderPrefix)
	out.WriteByte(jbMajor)
	out.WriteByte(jbMinor)
	out.WriteByte('\n')
	out.Write(body)
	return []byte(out.String()), nil
}

func decodeCJ(data []byte) (any, error) {
	nl := indexByte(data, '\n')
	if nl < 0 {
		return nil, fmt.Errorf("%w: missing CJ header terminator", ErrCorruptHeader)
	}
	header := string(data[:nl])
	if len(header) < 4 || header[:2] != cjHeaderPrefix {
		return nil, fmt.Errorf("%w: bad CJ signature", ErrCorruptHeader)
	}
	if header[2] > jbMajor {
		return nil, fmt.Errorf("%w: major version %q", ErrVersionUnsupported, string(header[2]))
	}

	var node cjNode
	if err := json.Unmarshal(data[nl+1:], &node); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptBody, err)
	}
	return cjDecodeNode(node)
}

func cjEncodeNode(v any) (cjNode, error) {
	switch x := v.(type) {
	case nil:
		return cjNode{K: "u"}, nil
	case bool:
		raw, _ := json.Marshal(x)
		return cjNode{K: "b", V: raw}, nil
	case string:
		raw, _ := json.Marshal(x)
		return cjNode{K: "s", V: raw}, nil
	case []byte:
		raw, _ := json.Marshal(base64.StdEncoding.EncodeToString(x))
		return cjNode{K: "y", V: raw}, nil
	case float64:
		raw, _ := json.Marshal(x)
		return cjNode{K: "f", V: raw}, nil
	case float32:
		raw, _ := json.Marshal(float64(x))
		return cjNode{K: "f", V: raw}, nil
	case []any:
		nodes := make([]cjNode, len(x))
		for i, item := range x {
			n, err := cjEncodeNode(item)
			if err != nil {
				return cjNode{}, err
			}
			nodes[i] = n
		}
		raw, err := json.Marshal(nodes)
		if err != nil {
			return cjNode{}, fmt.Errorf("wire: encoding CJ list: %w", err)
		}
		return cjNode{K: "l", V: raw}, nil
	case map[string]any:
		nodes := make(map[string]cjNode, len(x))
		for k, item := range x {
			n, err := cjEncodeNode(item)
			if err != nil {
				return cjNode{}, err
			}
			nodes[k] = n
		}
		raw, err := json.Marshal(nodes)
		if err != nil {
			return cjNode{}, fmt.Errorf("wire: encoding CJ map: %w", err)
		}
		return cjNode{K: "m", V: raw}, nil
	}
	if n, ok := toInt64(v); ok {
		n, err := normalizeInt(n)
		if err != nil {
			return cjNode{}, err
		}
		raw, _ := json.Marshal(n)
		return cjNode{K: "i", V: raw}, nil
	}
	return cjNode{}, fmt.Errorf("%w: %T", ErrUnsupportedType, v)
}

func cjDecodeNode(node cjNode) (any, error) {
	switch node.K {
	case "u":
		return nil, nil
	case "b":
		var b bool
		if err := json.Unmarshal(node.V, &b); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorruptBody, err)
		}
		return b, nil
	case "s":
		var s string
		if err := json.Unmarshal(node.V, &s); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorruptBody, err)
		}
		return s, nil
	case "y":
		var s string
		if err := json.Unmarshal(node.V, &s); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorruptBody, err)
		}
		b, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorruptBody, err)
		}
		return b, nil
	case "i":
		var n int64
		if err := json.Unmarshal(node.V, &n); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorruptBody, err)
		}
		if _, err := normalizeInt(n); err != nil {
			return nil, err
		}
		return n, nil
	case "f":
		var f float64
		if err := json.Unmarshal(node.V, &f); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorruptBody, err)
		}
		return f, nil
	case "l":
		var raw []cjNode
		if err := json.Unmarshal(node.V, &raw); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorruptBody, err)
		}
		out := make([]any, len(raw))
		for i, n := range raw {
			v, err := cjDecodeNode(n)
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil
	case "m":
		var raw map[string]cjNode
		if err := json.Unmarshal(node.V, &raw); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorruptBody, err)
		}
		out := make(map[string]any, len(raw))
		for k, n := range raw {
			v, err := cjDecodeNode(n)
			if err != nil {
				return nil, err
			}
			out[k] = v
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: unrecognized CJ node kind %q", ErrCorruptBody, node.K)
	}
}
