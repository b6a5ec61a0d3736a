package wasmrun

import (
	"context"
	"sync"

	"github.com/weavemesh/weave/ipld"
)

// MockEvaluator is a test double for Evaluator, grounded on the teacher's
// tool.MockTool: a configurable response sequence plus call history
// tracking, used to drive scheduler/worker tests without a real WASM
// runtime.
type MockEvaluator struct {
	// Responses is the sequence of outputs returned in order. Once
	// exhausted, the last response repeats.
	Responses []ipld.Value

	// Err, if set, is returned instead of a response.
	Err error

	// Calls records every Evaluate invocation, for assertions in tests.
	Calls []MockEvaluatorCall

	mu    sync.Mutex
	index int
}

// MockEvaluatorCall records one Evaluate invocation.
type MockEvaluatorCall struct {
	Function string
	Args     []ipld.Value
}

// Evaluate implements Evaluator.
func (m *MockEvaluator) Evaluate(ctx context.Context, module []byte, function string, args []ipld.Value) (ipld.Value, error) {
	if ctx.Err() != nil {
		return ipld.Null(), ctx.Err()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.Calls = append(m.Calls, MockEvaluatorCall{Function: function, Args: args})

	if m.Err != nil {
		return ipld.Null(), m.Err
	}
	if len(m.Responses) == 0 {
		return ipld.Null(), nil
	}

	idx := m.index
	if idx >= len(m.Responses) {
		idx = len(m.Responses) - 1
	} else {
		m.index++
	}
	return m.Responses[idx], nil
}

// CallCount reports how many times Evaluate has been invoked.
func (m *MockEvaluator) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}

// Reset clears call history and rewinds the response cursor.
func (m *MockEvaluator) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = nil
	m.index = 0
}
