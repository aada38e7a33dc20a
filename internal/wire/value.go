// Package wire implements the self-describing binary serialization used to
// move actor invocation payloads between nodes. A single value universe —
// undefined, boolean, integer, floating number, string, opaque byte-string,
// ordered list, and string-keyed mapping — is encoded into one of four
// envelope formats (JB, CJ, BSON, MIME) and decoded back by auto-detecting
// the envelope from its leading bytes.
//
// Values are represented as plain Go types so callers never need a wrapper:
//
//	nil          undefined
//	bool         boolean
//	int64        integer
//	float64      floating number
//	string       string
//	[]byte       opaque byte-string
//	[]any        ordered list
//	map[string]any  mapping
//
// Any other concrete type passed to Serialize is rejected with ErrUnsupportedType.
package wire

import (
	"errors"
	"fmt"
)

// Envelope identifies one of the four recognized wire formats.
type Envelope int

const (
	EnvelopeUnknown Envelope = iota
	EnvelopeJB
	EnvelopeCJ
	EnvelopeBSON
	EnvelopeMIME
)

func (e Envelope) String() string {
	switch e {
	case EnvelopeJB:
		return "JB"
	case EnvelopeCJ:
		return "CJ"
	case EnvelopeBSON:
		return "BSON"
	case EnvelopeMIME:
		return "MIME"
	default:
		return "UNKNOWN"
	}
}

// Failure modes from spec §4.A / §7.
var (
	ErrCorruptHeader     = errors.New("wire: CORRUPT_HEADER")
	ErrVersionUnsupported = errors.New("wire: VERSION_UNSUPPORTED")
	ErrCorruptBody       = errors.New("wire: CORRUPT_BODY")
	ErrBoundaryMissing   = errors.New("wire: BOUNDARY_MISSING")
	ErrUnknownEnvelope   = errors.New("wire: UNKNOWN_ENVELOPE")
	ErrNumericRange      = errors.New("wire: NUMERIC_RANGE")
	ErrUnsupportedType   = errors.New("wire: unsupported value type")
)

// maxSafeInt mirrors the 2^53 boundary spec §4.A calls out for numeric
// range failures — values outside it cannot round-trip through a JSON
// number without precision loss in the encoders this system interops with.
const maxSafeInt = 1 << 53

// DefaultInlineBlobThreshold is the byte-string size (inclusive) below which the JB
// and MIME envelopes inline the bytes as base64 instead of appending them as
// a trailing blob. Overridable by config (`wire.inlineBlobThreshold`).
const DefaultInlineBlobThreshold = 64

// Options controls deserialize behavior.
type Options struct {
	// CopyBuffers duplicates every decoded byte-string so it no longer
	// aliases the input buffer, letting the envelope be reused or freed.
	CopyBuffers bool
	// InlineBlobThreshold is resolved against DefaultInlineBlobThreshold by
	// threshold() (zero means "use the default"). Deserialize ignores it,
	// and the encoders take their threshold as an argument, not from Options.
	InlineBlobThreshold int
}

func (o Options) threshold() int {
	if o.InlineBlobThreshold > 0 {
		return o.InlineBlobThreshold
	}
	return DefaultInlineBlobThreshold
}

// normalizeInt validates and narrows any Go integer kind into the int64 the
// rest of the package works with, rejecting magnitudes outside the safe
// range spec §4.A reserves for NUMERIC_RANGE.
func normalizeInt(n int64) (int64, error) {
	if n > maxSafeInt || n < -maxSafeInt {
		return 0, fmt.Errorf("%w: %d exceeds 2^53", ErrNumericRange, n)
	}
	return n, nil
}

func toInt64(v any) (int64, bool) {
	switch x := v.(type) {
	case int:
		return int64(x), true
	case int8:
		return int64(x), true
	case int16:
		return int64(x), true
	case int32:
		return int64(x), true
	case int64:
		return x, true
	case uint:
		return int64(x), true
	case uint8:
		return int64(x), true
	case uint16:
		return int64(x), true
	case uint32:
		return int64(x), true
	}
	return 0, false
}
