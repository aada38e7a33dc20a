package wire

import (
	"bytes"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestJBScenarioSeedHelloWorldBuf(t *testing.T) {
	buf := bytes.Repeat([]byte{0x41}, 65)
	input := map[string]any{"hello": "world", "buf": buf}

	out, err := Serialize(input)
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}

	nl := bytes.IndexByte(out, '\n')
	if nl < 0 {
		t.Fatalf("no header terminator found")
	}
	header := string(out[:nl])
	if !strings.HasPrefix(header, "JB") {
		t.Fatalf("header %q missing JB signature", header)
	}

	idx := bytes.Index(out, buf)
	if idx <= nl {
		t.Fatalf("65-byte blob not found verbatim after header (idx=%d, header len=%d)", idx, nl)
	}

	got, err := Deserialize(out)
	if err != nil {
		t.Fatalf("Deserialize: %v", err)
	}
	if diff := cmp.Diff(input, got); diff != "" {
		t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestJBRoundTripSmallBlobInlined(t *testing.T) {
	input := map[string]any{"tiny": []byte("hi")}
	out, err := Serialize(input)
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	// No appended blob: the header's blob-length list must be empty.
	nl := bytes.IndexByte(out, '\n')
	header := string(out[:nl])
	if !strings.HasSuffix(header, ";") {
		t.Fatalf("expected empty blob-length list, header = %q", header)
	}

	got, err := Deserialize(out)
	if err != nil {
		t.Fatalf("Deserialize: %v", err)
	}
	if diff := cmp.Diff(input, got); diff != "" {
		t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestJBRoundTripNestedValues(t *testing.T) {
	input := map[string]any{
		"s":     "plain string",
		"n":     int64(42),
		"neg":   int64(-17),
		"f":     3.5,
		"b":     true,
		"u":     nil,
		"list":  []any{int64(1), "two", nil, false},
		"inner": map[string]any{"deep": []any{[]byte("blob-one"), []byte("blob-two")}},
	}
	out, err := Serialize(input)
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	got, err := Deserialize(out)
	if err != nil {
		t.Fatalf("Deserialize: %v", err)
	}
	if diff := cmp.Diff(input, got); diff != "" {
		t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestJBCorruptBodyFailsDeserialize(t *testing.T) {
	out, err := Serialize(map[string]any{"x": int64(1)})
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	nl := bytes.IndexByte(out, '\n')
	// Flip a byte inside the JSON body.
	corrupt := append([]byte{}, out...)
	corrupt[nl+2] = '~'
	if _, err := Deserialize(corrupt); err == nil {
		t.Fatalf("expected Deserialize to fail on corrupted body")
	}
}

func TestJBVersionUnsupported(t *testing.T) {
	data := []byte("JB90;seed;4;\nnull\n")
	if _, err := Deserialize(data); err == nil {
		t.Fatalf("expected VERSION_UNSUPPORTED for major version 9")
	}
}

func TestJBMinimumViableHeader(t *testing.T) {
	got, err := Deserialize([]byte("JB10\n"))
	if err != nil {
		t.Fatalf("Deserialize minimal header: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil value for minimal header, got %v", got)
	}
}

func TestNumericRangeRejected(t *testing.T) {
	if _, err := Serialize(map[string]any{"huge": int64(1) << 60}); err == nil {
		t.Fatalf("expected NUMERIC_RANGE error for value beyond 2^53")
	}
}

func TestDetectUnknownEnvelope(t *testing.T) {
	if env := Detect([]byte("not a wire buffer")); env != EnvelopeUnknown {
		t.Fatalf("Detect: got %v, want EnvelopeUnknown", env)
	}
	if _, err := Deserialize([]byte("garbage")); err != ErrUnknownEnvelope {
		t.Fatalf("Deserialize: got %v, want ErrUnknownEnvelope", err)
	}
}

func TestCopyBuffersDuplicatesBlobSlices(t *testing.T) {
	buf := bytes.Repeat([]byte{0x42}, 100)
	out, err := Serialize(map[string]any{"b": buf})
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	got, err := Deserialize(out, Options{CopyBuffers: true})
	if err != nil {
		t.Fatalf("Deserialize: %v", err)
	}
	m := got.(map[string]any)
	decoded := m["b"].([]byte)
	if !bytes.Equal(decoded, buf) {
		t.Fatalf("decoded blob does not match input")
	}
	// Mutate the original wire buffer; a copied blob must not observe it.
	idx := bytes.Index(out, buf)
	out[idx] = 0xFF
	if decoded[0] != 0x42 {
		t.Fatalf("CopyBuffers=true blob aliases the source buffer")
	}
}
