// Package wasmrun evaluates the one registered task operation,
// OpWasmRun: (module bytes, function name, resolved args) -> output value.
// Grounded on the teacher's graph/tool package — an Evaluator plays the role
// Tool played there, swapping an arbitrary-action interface for the single
// closed WASM-invocation operation spec.md §9 describes.
package wasmrun

import (
	"context"

	"github.com/weavemesh/weave/ipld"
)

// Evaluator invokes a WASM function and returns its result.
//
// Implementations should:
//   - Respect context cancellation: a long-running guest must not outlive
//     ctx.
//   - Treat the module as untrusted, sandboxed code with no ambient
//     host access beyond what the implementation explicitly wires in.
//   - Be side-effect-free from the caller's perspective: identical
//     (module, function, args) must produce identical output, since the
//     determinism invariant (spec.md §8) depends on it.
type Evaluator interface {
	// Evaluate runs function in module with args, returning its result as
	// a single value-model value.
	Evaluate(ctx context.Context, module []byte, function string, args []ipld.Value) (ipld.Value, error)
}
