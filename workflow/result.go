package workflow

import (
	"fmt"

	"github.com/weavemesh/weave/ipld"
)

// ResultTag is the discriminant of an InstructionResult.
type ResultTag string

const (
	TagOk    ResultTag = "ok"
	TagError ResultTag = "error"
	TagJust  ResultTag = "just"
)

func (t ResultTag) valid() bool {
	switch t {
	case TagOk, TagError, TagJust:
		return true
	default:
		return false
	}
}

// InstructionResult is the tagged sum Ok(v) | Error(v) | Just(v) described in
// spec.md §3. It is encoded as the 2-element list [tag, value].
type InstructionResult struct {
	Tag   ResultTag
	Value ipld.Value
}

// Ok wraps v as a successful result.
func Ok(v ipld.Value) InstructionResult { return InstructionResult{Tag: TagOk, Value: v} }

// Err wraps v as a failed result.
func Err(v ipld.Value) InstructionResult { return InstructionResult{Tag: TagError, Value: v} }

// Just wraps v as a bare (non-success-sensitive) result.
func Just(v ipld.Value) InstructionResult { return InstructionResult{Tag: TagJust, Value: v} }

// IsOk reports whether r carries a successful result.
func (r InstructionResult) IsOk() bool { return r.Tag == TagOk }

// ToValue encodes r as its 2-element list representation.
func (r InstructionResult) ToValue() ipld.Value {
	return ipld.List(ipld.String(string(r.Tag)), r.Value)
}

// InstructionResultFromValue decodes the inverse of ToValue, validating the
// tag per spec.md §3's invariant: "any other shape is a decoding failure."
func InstructionResultFromValue(v ipld.Value) (InstructionResult, error) {
	items, ok := v.AsList()
	if !ok || len(items) != 2 {
		return InstructionResult{}, fmt.Errorf("workflow: instruction result must be a 2-element list")
	}
	tagStr, ok := items[0].AsString()
	if !ok {
		return InstructionResult{}, fmt.Errorf("workflow: instruction result tag must be a string")
	}
	tag := ResultTag(tagStr)
	if !tag.valid() {
		return InstructionResult{}, fmt.Errorf("workflow: unknown instruction result tag %q", tagStr)
	}
	return InstructionResult{Tag: tag, Value: items[1]}, nil
}
