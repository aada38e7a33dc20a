package wire

import (
	"bytes"
	"testing"

	"github.com/google/go-cmp/cmp"
)

var envelopeFixtures = []any{
	nil,
	true,
	false,
	int64(0),
	int64(-10),
	int64(10),
	3.14,
	"a string",
	[]byte("small"),
	[]any{int64(1), "two", nil},
	map[string]any{"a": int64(1), "b": []any{"x", "y"}},
}

func TestCJRoundTrip(t *testing.T) {
	for _, v := range envelopeFixtures {
		out, err := encodeCJ(v)
		if err != nil {
			t.Fatalf("encodeCJ(%v): %v", v, err)
		}
		if Detect(out) != EnvelopeCJ {
			t.Fatalf("Detect did not recognize CJ envelope for %v", v)
		}
		got, err := decodeCJ(out)
		if err != nil {
			t.Fatalf("decodeCJ(%v): %v", v, err)
		}
		if diff := cmp.Diff(v, got); diff != "" {
			t.Fatalf("CJ round trip mismatch for %v (-want +got):\n%s", v, diff)
		}
	}
}

func TestBSONRoundTrip(t *testing.T) {
	for _, v := range envelopeFixtures {
		out, err := encodeBSON(v)
		if err != nil {
			t.Fatalf("encodeBSON(%v): %v", v, err)
		}
		if Detect(out) != EnvelopeBSON {
			t.Fatalf("Detect did not recognize BSON envelope for %v", v)
		}
		got, err := decodeBSON(out, Options{})
		if err != nil {
			t.Fatalf("decodeBSON(%v): %v", v, err)
		}
		if diff := cmp.Diff(v, got); diff != "" {
			t.Fatalf("BSON round trip mismatch for %v (-want +got):\n%s", v, diff)
		}
	}
}

func TestBSONLargeBlob(t *testing.T) {
	v := map[string]any{"blob": bytes.Repeat([]byte{0x07}, 500)}
	out, err := encodeBSON(v)
	if err != nil {
		t.Fatalf("encodeBSON: %v", err)
	}
	got, err := decodeBSON(out, Options{})
	if err != nil {
		t.Fatalf("decodeBSON: %v", err)
	}
	if diff := cmp.Diff(v, got); diff != "" {
		t.Fatalf("mismatch (-want +got):\n%s", diff)
	}
}

func TestMIMERoundTrip(t *testing.T) {
	for _, v := range envelopeFixtures {
		out, err := encodeMIME(v, DefaultInlineBlobThreshold)
		if err != nil {
			t.Fatalf("encodeMIME(%v): %v", v, err)
		}
		if Detect(out) != EnvelopeMIME {
			t.Fatalf("Detect did not recognize MIME envelope for %v", v)
		}
		got, err := decodeMIME(out, Options{})
		if err != nil {
			t.Fatalf("decodeMIME(%v): %v", v, err)
		}
		if diff := cmp.Diff(v, got); diff != "" {
			t.Fatalf("MIME round trip mismatch for %v (-want +got):\n%s", v, diff)
		}
	}
}

func TestMIMELargeBlobAppendedAsPart(t *testing.T) {
	large := bytes.Repeat([]byte{0x09}, 200)
	v := map[string]any{"blob": large}
	out, err := encodeMIME(v, DefaultInlineBlobThreshold)
	if err != nil {
		t.Fatalf("encodeMIME: %v", err)
	}
	if !bytes.Contains(out, large) {
		t.Fatalf("large blob not present verbatim in MIME envelope")
	}
	got, err := decodeMIME(out, Options{})
	if err != nil {
		t.Fatalf("decodeMIME: %v", err)
	}
	if diff := cmp.Diff(v, got); diff != "" {
		t.Fatalf("mismatch (-want +got):\n%s", diff)
	}
}

func TestMIMEMissingBoundaryRejected(t *testing.T) {
	_, err := decodeMIME([]byte(mimeHeaderPrefix+"\n\nrest"), Options{})
	if err == nil {
		t.Fatalf("expected error for empty boundary")
	}
}
