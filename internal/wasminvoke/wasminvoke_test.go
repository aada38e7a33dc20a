package wasminvoke

import (
	"context"
	"testing"

	"github.com/arborfield/actorcore/internal/invoke"
)

// emptyModule is the minimal valid WASM binary: the 4-byte "\0asm" magic
// followed by version 1, with no sections at all. Every wasm runtime
// accepts it as a module exporting nothing.
var emptyModule = []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}

func newTestRemote(t *testing.T) (*Remote, context.Context) {
	t.Helper()
	ctx := context.Background()
	r, err := New(ctx)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = r.Close(ctx) })
	return r, ctx
}

func TestInvokeUnregisteredActorTypeReturnsFrameworkCode(t *testing.T) {
	r, ctx := newTestRemote(t)

	result, err := r.Invoke(ctx, invoke.InvokeOptions{ActorType: "Widget", ID: []string{"w1"}, ActionName: "get"})
	if err != nil {
		t.Fatalf("Invoke returned error, want classified result: %v", err)
	}
	if result.ErrorCode != invoke.CodeUnknownActor {
		t.Fatalf("ErrorCode = %q, want %q", result.ErrorCode, invoke.CodeUnknownActor)
	}
}

func TestRegisterModuleRejectsInvalidBytes(t *testing.T) {
	r, ctx := newTestRemote(t)

	if err := r.RegisterModule(ctx, "Widget", []byte("not a wasm module")); err == nil {
		t.Fatalf("expected RegisterModule to reject invalid bytes")
	}
}

func TestInvokeAgainstModuleWithNoExportsIsFrameworkError(t *testing.T) {
	r, ctx := newTestRemote(t)

	if err := r.RegisterModule(ctx, "Widget", emptyModule); err != nil {
		t.Fatalf("RegisterModule: %v", err)
	}

	result, err := r.Invoke(ctx, invoke.InvokeOptions{ActorType: "Widget", ID: []string{"w1"}, ActionName: "get"})
	if err != nil {
		t.Fatalf("Invoke returned error, want classified result: %v", err)
	}
	if result.ErrorCode != invoke.CodeNotImplemented {
		t.Fatalf("ErrorCode = %q, want %q", result.ErrorCode, invoke.CodeNotImplemented)
	}
}
