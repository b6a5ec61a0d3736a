package wasmrun

import (
	"context"
	"errors"
	"testing"

	"github.com/weavemesh/weave/ipld"
)

func TestMockEvaluatorReturnsResponsesInOrder(t *testing.T) {
	m := &MockEvaluator{Responses: []ipld.Value{ipld.Int(1), ipld.Int(2)}}

	out1, err := m.Evaluate(context.Background(), nil, "add_one", nil)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	n1, _ := out1.AsInt()
	if n1 != 1 {
		t.Errorf("expected first response 1, got %d", n1)
	}

	out2, _ := m.Evaluate(context.Background(), nil, "add_one", nil)
	n2, _ := out2.AsInt()
	if n2 != 2 {
		t.Errorf("expected second response 2, got %d", n2)
	}

	// Responses are exhausted: the last one repeats.
	out3, _ := m.Evaluate(context.Background(), nil, "add_one", nil)
	n3, _ := out3.AsInt()
	if n3 != 2 {
		t.Errorf("expected repeated last response 2, got %d", n3)
	}

	if m.CallCount() != 3 {
		t.Errorf("expected 3 recorded calls, got %d", m.CallCount())
	}
}

func TestMockEvaluatorErrorInjection(t *testing.T) {
	wantErr := errors.New("evaluator exploded")
	m := &MockEvaluator{Err: wantErr}

	_, err := m.Evaluate(context.Background(), nil, "fn", nil)
	if err != wantErr {
		t.Errorf("expected injected error, got %v", err)
	}
	if m.CallCount() != 1 {
		t.Error("expected call to be recorded even on error")
	}
}

func TestMockEvaluatorReset(t *testing.T) {
	m := &MockEvaluator{Responses: []ipld.Value{ipld.Int(1)}}
	_, _ = m.Evaluate(context.Background(), nil, "fn", nil)
	m.Reset()
	if m.CallCount() != 0 {
		t.Error("expected Reset to clear call history")
	}
}
