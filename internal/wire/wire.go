package wire

import "fmt"

// Detect identifies the envelope a buffer starts with: JB and CJ by their
// two-letter signature, MIME by the full Content-Type prefix, and BSON by a
// leading length field equal to the buffer length plus a trailing null
// byte. MIME and BSON detection therefore read beyond the first 4 bytes. It reports
// EnvelopeUnknown, not an error, for unrecognized input — Deserialize turns
// that into ErrUnknownEnvelope.
func Detect(data []byte) Envelope {
	if len(data) >= 2 && data[0] == 'J' && data[1] == 'B' {
		return EnvelopeJB
	}
	if len(data) >= 2 && data[0] == 'C' && data[1] == 'J' {
		return EnvelopeCJ
	}
	if len(data) >= len(mimeHeaderPrefix) && string(data[:len(mimeHeaderPrefix)]) == mimeHeaderPrefix {
		return EnvelopeMIME
	}
	if isBSONSignature(data) {
		return EnvelopeBSON
	}
	return EnvelopeUnknown
}

func isBSONSignature(data []byte) bool {
	if len(data) < 5 {
		return false
	}
	total := uint32(data[0]) | uint32(data[1])<<8 | uint32(data[2])<<16 | uint32(data[3])<<24
	return int(total) == len(data) && data[len(data)-1] == 0x00
}

// Serialize writes v as the JB envelope — the primary format spec §4.A
// names for new output. Use EncodeEnvelope to emit CJ/BSON/MIME.
func Serialize(v any) ([]byte, error) {
	return encodeJB(v, DefaultInlineBlobThreshold)
}

// SerializeWithThreshold is Serialize with an overridden inline-blob
// threshold (config key wire.inlineBlobThreshold).
func SerializeWithThreshold(v any, threshold int) ([]byte, error) {
	if threshold <= 0 {
		threshold = DefaultInlineBlobThreshold
	}
	return encodeJB(v, threshold)
}

// EncodeEnvelope serializes v using an explicitly chosen envelope, for
// callers (cmd/actorctl, interop tests) that need a specific wire format
// rather than the default JB.
func EncodeEnvelope(v any, env Envelope, threshold int) ([]byte, error) {
	if threshold <= 0 {
		threshold = DefaultInlineBlobThreshold
	}
	switch env {
	case EnvelopeJB:
		return encodeJB(v, threshold)
	case EnvelopeCJ:
		return encodeCJ(v)
	case EnvelopeBSON:
		return encodeBSON(v)
	case EnvelopeMIME:
		return encodeMIME(v, threshold)
	default:
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedType, env)
	}
}

// Deserialize auto-detects the envelope and decodes v back out of data.
func Deserialize(data []byte, opts ...Options) (any, error) {
	var o Options
	if len(opts) > 0 {
		o = opts[0]
	}
	switch Detect(data) {
	case EnvelopeJB:
		return decodeJB(data, o)
	case EnvelopeCJ:
		return decodeCJ(data)
	case EnvelopeBSON:
		return decodeBSON(data, o)
	case EnvelopeMIME:
		return decodeMIME(data, o)
	default:
		return nil, ErrUnknownEnvelope
	}
}
