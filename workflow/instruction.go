package workflow

import (
	"fmt"

	"github.com/ipfs/go-cid"

	"github.com/weavemesh/weave/ipld"
)

// OpWasmRun is the only registered task type (spec.md §3, §9 "closed variant
// set"). Adding a task type is a design-time extension.
const OpWasmRun = "wasm/run"

// Instruction is the pure description of one unit of work (spec.md §3).
// Its CID is its identity.
type Instruction struct {
	Resource Resource
	Op       string
	Input    ipld.Value
	Nonce    []byte
}

// ToValue encodes the instruction into the value model.
func (ins Instruction) ToValue() ipld.Value {
	return ipld.Map(
		ipld.MapEntry{Key: "resource", Value: ins.Resource.ToValue()},
		ipld.MapEntry{Key: "op", Value: ipld.String(ins.Op)},
		ipld.MapEntry{Key: "input", Value: ins.Input},
		ipld.MapEntry{Key: "nonce", Value: ipld.Bytes(ins.Nonce)},
	)
}

// CID computes the instruction's content identifier.
func (ins Instruction) CID() (cid.Cid, error) {
	return ipld.ComputeCID(ins.ToValue())
}

// InstructionFromValue decodes the inverse of ToValue.
func InstructionFromValue(v ipld.Value) (Instruction, error) {
	resV, ok := v.Lookup("resource")
	if !ok {
		return Instruction{}, fmt.Errorf("workflow: instruction missing resource")
	}
	res, err := resourceFromValue(resV)
	if err != nil {
		return Instruction{}, fmt.Errorf("workflow: instruction resource: %w", err)
	}
	opV, ok := v.Lookup("op")
	if !ok {
		return Instruction{}, fmt.Errorf("workflow: instruction missing op")
	}
	op, ok := opV.AsString()
	if !ok {
		return Instruction{}, fmt.Errorf("workflow: instruction op not a string")
	}
	input, ok := v.Lookup("input")
	if !ok {
		return Instruction{}, fmt.Errorf("workflow: instruction missing input")
	}
	nonceV, ok := v.Lookup("nonce")
	if !ok {
		return Instruction{}, fmt.Errorf("workflow: instruction missing nonce")
	}
	nonce, ok := nonceV.AsBytes()
	if !ok {
		return Instruction{}, fmt.Errorf("workflow: instruction nonce not bytes")
	}
	return Instruction{Resource: res, Op: op, Input: input, Nonce: nonce}, nil
}

// Meta is a task's resource manifest: the set of resources it depends on,
// beyond its own Instruction.Resource (spec.md §3 "Task").
type Meta struct {
	Resources []Resource
}

func (m Meta) toValue() ipld.Value {
	items := make([]ipld.Value, len(m.Resources))
	for i, r := range m.Resources {
		items[i] = r.ToValue()
	}
	return ipld.Map(ipld.MapEntry{Key: "resources", Value: ipld.List(items...)})
}

func metaFromValue(v ipld.Value) (Meta, error) {
	resourcesV, ok := v.Lookup("resources")
	if !ok {
		return Meta{}, nil
	}
	items, ok := resourcesV.AsList()
	if !ok {
		return Meta{}, fmt.Errorf("workflow: meta.resources not a list")
	}
	resources := make([]Resource, len(items))
	for i, item := range items {
		r, err := resourceFromValue(item)
		if err != nil {
			return Meta{}, fmt.Errorf("workflow: meta.resources[%d]: %w", i, err)
		}
		resources[i] = r
	}
	return Meta{Resources: resources}, nil
}

// Task pairs an Instruction with its resource manifest and a proof list
// (spec.md §3). Prf is opaque to the core and carried through unexamined.
type Task struct {
	Run  Instruction
	Meta Meta
	Prf  []ipld.Value
}

// ToValue encodes the task into the value model.
func (t Task) ToValue() ipld.Value {
	return ipld.Map(
		ipld.MapEntry{Key: "run", Value: t.Run.ToValue()},
		ipld.MapEntry{Key: "meta", Value: t.Meta.toValue()},
		ipld.MapEntry{Key: "prf", Value: ipld.List(t.Prf...)},
	)
}

// CID computes the task's content identifier (equal to its Instruction's
// CID, since Run is the only semantically load-bearing field; meta and prf
// are carried for provenance but a Task is identified by the work it runs).
func (t Task) CID() (cid.Cid, error) {
	return t.Run.CID()
}

// TaskFromValue decodes the inverse of ToValue.
func TaskFromValue(v ipld.Value) (Task, error) {
	runV, ok := v.Lookup("run")
	if !ok {
		return Task{}, fmt.Errorf("workflow: task missing run")
	}
	run, err := InstructionFromValue(runV)
	if err != nil {
		return Task{}, fmt.Errorf("workflow: task run: %w", err)
	}
	metaV, ok := v.Lookup("meta")
	var meta Meta
	if ok {
		meta, err = metaFromValue(metaV)
		if err != nil {
			return Task{}, fmt.Errorf("workflow: task meta: %w", err)
		}
	}
	var prf []ipld.Value
	if prfV, ok := v.Lookup("prf"); ok {
		items, ok := prfV.AsList()
		if !ok {
			return Task{}, fmt.Errorf("workflow: task prf not a list")
		}
		prf = items
	}
	return Task{Run: run, Meta: meta, Prf: prf}, nil
}

// Invocation wraps one Task; its CID is the execution identity (spec.md §3).
type Invocation struct {
	Task Task
}

// ToValue encodes the invocation into the value model.
func (inv Invocation) ToValue() ipld.Value {
	return ipld.Map(ipld.MapEntry{Key: "task", Value: inv.Task.ToValue()})
}

// CID computes the invocation's content identifier.
func (inv Invocation) CID() (cid.Cid, error) {
	return ipld.ComputeCID(inv.ToValue())
}

// InvocationFromValue decodes the inverse of ToValue.
func InvocationFromValue(v ipld.Value) (Invocation, error) {
	taskV, ok := v.Lookup("task")
	if !ok {
		return Invocation{}, fmt.Errorf("workflow: invocation missing task")
	}
	task, err := TaskFromValue(taskV)
	if err != nil {
		return Invocation{}, fmt.Errorf("workflow: invocation task: %w", err)
	}
	return Invocation{Task: task}, nil
}
