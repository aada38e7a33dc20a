package wire

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestEncodeEnvelopeDispatch(t *testing.T) {
	v := map[string]any{"k": int64(7)}
	for _, env := range []Envelope{EnvelopeJB, EnvelopeCJ, EnvelopeBSON, EnvelopeMIME} {
		out, err := EncodeEnvelope(v, env, 0)
		if err != nil {
			t.Fatalf("EncodeEnvelope(%v): %v", env, err)
		}
		if got := Detect(out); got != env {
			t.Fatalf("Detect after EncodeEnvelope(%v) = %v", env, got)
		}
		got, err := Deserialize(out)
		if err != nil {
			t.Fatalf("Deserialize(%v): %v", env, err)
		}
		if diff := cmp.Diff(v, got); diff != "" {
			t.Fatalf("round trip mismatch for %v (-want +got):\n%s", env, diff)
		}
	}
}

func TestSerializeDefaultsToJB(t *testing.T) {
	out, err := Serialize(map[string]any{"x": int64(1)})
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	if Detect(out) != EnvelopeJB {
		t.Fatalf("Serialize did not default to JB envelope")
	}
}

func TestUnsupportedTypeRejected(t *testing.T) {
	type custom struct{ X int }
	if _, err := Serialize(custom{X: 1}); err == nil {
		t.Fatalf("expected ErrUnsupportedType for an unrecognized Go type")
	}
}
