// Package wasminvoke is a concrete, sandboxed invoke.Remote: each
// registered actor type is backed by a WASM module executed inside a
// wazero runtime, giving the invocation engine a real transport to drive
// end to end (cmd/actorctl's "invoke call --wasm" mode and this package's
// own tests) without needing a real network or host process,
// honoring spec §4.F's transport-agnostic design.
//
// A guest module is expected to export two functions following the usual
// wazero "guest owns its own memory" convention:
//
//	alloc(size uint32) uint32           // returns a pointer to size bytes
//	invoke(ptr uint32, len uint32) uint64 // returns packed (resultPtr<<32 | resultLen)
//
// The host writes a wire-serialized request envelope
// ({"action","id","arguments"}) into guest memory at the pointer alloc
// returns, calls invoke, and reads the packed result pointer/length back
// out of guest memory. The guest's result envelope is itself wire-encoded
// and decodes to the same {"result","error"} shape invoke.Content uses.
package wasminvoke

import (
	"context"
	"fmt"
	"sync"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"

	"github.com/arborfield/actorcore/internal/invoke"
	"github.com/arborfield/actorcore/internal/wire"
)

// Remote is an invoke.Remote backed by one compiled WASM module per
// registered actor type.
type Remote struct {
	runtime wazero.Runtime

	mu      sync.Mutex
	modules map[string]wazero.CompiledModule
}

// New returns a Remote with a fresh wazero runtime and its WASI preview1
// host imports instantiated (guest modules compiled by most toolchains,
// even ones that don't touch the filesystem, still reference WASI's
// _start/proc_exit).
func New(ctx context.Context) (*Remote, error) {
	rt := wazero.NewRuntime(ctx)
	if _, err := wasi_snapshot_preview1.Instantiate(ctx, rt); err != nil {
		rt.Close(ctx)
		return nil, fmt.Errorf("wasminvoke: instantiating WASI: %w", err)
	}
	return &Remote{runtime: rt, modules: make(map[string]wazero.CompiledModule)}, nil
}

// Close releases the underlying wazero runtime and every compiled module.
func (r *Remote) Close(ctx context.Context) error {
	return r.runtime.Close(ctx)
}

// RegisterModule compiles wasmBytes and binds it to actorType; a later
// Invoke for that actor type instantiates a fresh, isolated instance of
// it per call.
func (r *Remote) RegisterModule(ctx context.Context, actorType string, wasmBytes []byte) error {
	compiled, err := r.runtime.CompileModule(ctx, wasmBytes)
	if err != nil {
		return fmt.Errorf("wasminvoke: compiling module for %s: %w", actorType, err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.modules[actorType] = compiled
	return nil
}

func (r *Remote) moduleFor(actorType string) (wazero.CompiledModule, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.modules[actorType]
	return m, ok
}

// Invoke implements invoke.Remote. A missing module, a missing alloc/invoke
// export, or a guest trap all classify as framework-level failures
// (ErrorCode set, no error returned) so the engine retries/falls back
// rather than treating a malformed or crashed guest as a fatal Go error.
func (r *Remote) Invoke(ctx context.Context, opts invoke.InvokeOptions) (invoke.InvokeResult, error) {
	compiled, ok := r.moduleFor(opts.ActorType)
	if !ok {
		return invoke.InvokeResult{ErrorCode: invoke.CodeUnknownActor, ErrorMessage: "no module registered for " + opts.ActorType}, nil
	}

	mod, err := r.runtime.InstantiateModule(ctx, compiled, wazero.NewModuleConfig().WithName(""))
	if err != nil {
		return invoke.InvokeResult{ErrorCode: invoke.CodeUnreachable, ErrorMessage: err.Error()}, nil
	}
	defer mod.Close(ctx)

	allocFn := mod.ExportedFunction("alloc")
	invokeFn := mod.ExportedFunction("invoke")
	if allocFn == nil || invokeFn == nil {
		return invoke.InvokeResult{ErrorCode: invoke.CodeNotImplemented, ErrorMessage: "module missing alloc/invoke exports"}, nil
	}

	request, err := wire.Serialize(map[string]any{
		"action":    opts.ActionName,
		"id":        toAnySlice(opts.ID),
		"arguments": opts.Arguments,
	})
	if err != nil {
		return invoke.InvokeResult{}, fmt.Errorf("wasminvoke: serializing request: %w", err)
	}

	allocResult, err := allocFn.Call(ctx, uint64(len(request)))
	if err != nil || len(allocResult) == 0 {
		return invoke.InvokeResult{ErrorCode: invoke.CodeUnreachable, ErrorMessage: "alloc trapped"}, nil
	}
	ptr := uint32(allocResult[0])

	if !mod.Memory().Write(ptr, request) {
		return invoke.InvokeResult{ErrorCode: invoke.CodeUnreachable, ErrorMessage: "writing request into guest memory failed"}, nil
	}

	packed, err := invokeFn.Call(ctx, uint64(ptr), uint64(len(request)))
	if err != nil || len(packed) == 0 {
		return invoke.InvokeResult{ErrorCode: invoke.CodeUnreachable, ErrorMessage: "invoke trapped"}, nil
	}

	resPtr := uint32(packed[0] >> 32)
	resLen := uint32(packed[0])
	resultBytes, ok := mod.Memory().Read(resPtr, resLen)
	if !ok {
		return invoke.InvokeResult{ErrorCode: invoke.CodeUnreachable, ErrorMessage: "reading result from guest memory failed"}, nil
	}

	return decodeResult(resultBytes)
}

func toAnySlice(id []string) []any {
	out := make([]any, len(id))
	for i, v := range id {
		out[i] = v
	}
	return out
}

func decodeResult(raw []byte) (invoke.InvokeResult, error) {
	decoded, err := wire.Deserialize(raw)
	if err != nil {
		return invoke.InvokeResult{}, fmt.Errorf("wasminvoke: decoding guest result: %w", err)
	}
	m, ok := decoded.(map[string]any)
	if !ok {
		return invoke.InvokeResult{}, fmt.Errorf("wasminvoke: guest result envelope is not an object")
	}

	if errField, present := m["error"]; present && errField != nil {
		em, _ := errField.(map[string]any)
		kind, _ := em["kind"].(string)
		code, _ := em["code"].(string)
		msg, _ := em["message"].(string)
		template, _ := em["template"].(string)
		params, _ := em["parameters"].(map[string]any)
		return invoke.InvokeResult{Content: &invoke.Content{Error: &invoke.RemoteError{
			Kind: kind, Code: code, Message: msg, Template: template, Parameters: params,
		}}}, nil
	}

	resultBytes, err := wire.Serialize(m["result"])
	if err != nil {
		return invoke.InvokeResult{}, fmt.Errorf("wasminvoke: re-encoding guest result payload: %w", err)
	}
	return invoke.InvokeResult{Content: &invoke.Content{Result: resultBytes}}, nil
}
