package wasmrun

import (
	"context"
	"fmt"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"

	"github.com/weavemesh/weave/ipld"
)

// WazeroEvaluator is the default Evaluator, backed by tetratelabs/wazero.
//
// Calling convention: the guest module exports "alloc(len i32) -> ptr i32",
// "dealloc(ptr i32, len i32)", and one export per registered function name.
// Args are encoded as a single list Value (ipld.Encode), written into guest
// memory via alloc, and the target function is called as
// "fn(argsPtr i32, argsLen i32) -> packed i64" where packed is
// (resultPtr << 32) | resultLen. The result bytes at that memory range are
// ipld-decoded as the Output value.
type WazeroEvaluator struct {
	runtime wazero.Runtime
}

// NewWazeroEvaluator constructs a fresh wazero runtime with WASI preview1
// wired in (most compiled WASM toolchains emit a WASI import even for
// computations with no real I/O).
func NewWazeroEvaluator(ctx context.Context) (*WazeroEvaluator, error) {
	runtime := wazero.NewRuntime(ctx)
	if _, err := wasi_snapshot_preview1.Instantiate(ctx, runtime); err != nil {
		_ = runtime.Close(ctx)
		return nil, fmt.Errorf("wasmrun: instantiate wasi: %w", err)
	}
	return &WazeroEvaluator{runtime: runtime}, nil
}

// Close releases the underlying wazero runtime and every module it compiled.
func (e *WazeroEvaluator) Close(ctx context.Context) error {
	return e.runtime.Close(ctx)
}

// Evaluate implements Evaluator.
func (e *WazeroEvaluator) Evaluate(ctx context.Context, module []byte, function string, args []ipld.Value) (ipld.Value, error) {
	compiled, err := e.runtime.CompileModule(ctx, module)
	if err != nil {
		return ipld.Null(), fmt.Errorf("wasmrun: compile module: %w", err)
	}
	defer compiled.Close(ctx)

	instance, err := e.runtime.InstantiateModule(ctx, compiled, wazero.NewModuleConfig())
	if err != nil {
		return ipld.Null(), fmt.Errorf("wasmrun: instantiate module: %w", err)
	}
	defer instance.Close(ctx)

	argsData, err := ipld.Encode(ipld.List(args...))
	if err != nil {
		return ipld.Null(), fmt.Errorf("wasmrun: encode args: %w", err)
	}

	argsPtr, err := e.writeBytes(ctx, instance, argsData)
	if err != nil {
		return ipld.Null(), fmt.Errorf("wasmrun: write args: %w", err)
	}

	fn := instance.ExportedFunction(function)
	if fn == nil {
		return ipld.Null(), fmt.Errorf("wasmrun: module has no exported function %q", function)
	}

	results, err := fn.Call(ctx, uint64(argsPtr), uint64(len(argsData)))
	if err != nil {
		return ipld.Null(), fmt.Errorf("wasmrun: call %s: %w", function, err)
	}
	if len(results) != 1 {
		return ipld.Null(), fmt.Errorf("wasmrun: %s returned %d results, want 1 packed i64", function, len(results))
	}

	packed := results[0]
	resultPtr := uint32(packed >> 32)
	resultLen := uint32(packed)

	resultData, ok := instance.Memory().Read(resultPtr, resultLen)
	if !ok {
		return ipld.Null(), fmt.Errorf("wasmrun: result range [%d:%d] out of bounds", resultPtr, resultPtr+resultLen)
	}

	out, err := ipld.Decode(resultData)
	if err != nil {
		return ipld.Null(), fmt.Errorf("wasmrun: decode result: %w", err)
	}
	return out, nil
}

func (e *WazeroEvaluator) writeBytes(ctx context.Context, instance api.Module, data []byte) (uint32, error) {
	alloc := instance.ExportedFunction("alloc")
	if alloc == nil {
		return 0, fmt.Errorf("module has no exported alloc(len i32) -> ptr i32")
	}
	results, err := alloc.Call(ctx, uint64(len(data)))
	if err != nil {
		return 0, fmt.Errorf("alloc: %w", err)
	}
	ptr := uint32(results[0])
	if !instance.Memory().Write(ptr, data) {
		return 0, fmt.Errorf("writing %d bytes at %d out of bounds", len(data), ptr)
	}
	return ptr, nil
}
