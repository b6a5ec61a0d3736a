package workflow

import (
	"fmt"

	"github.com/ipfs/go-cid"

	"github.com/weavemesh/weave/ipld"
)

// Receipt is the immutable, content-addressed record of an Invocation's
// outcome (spec.md §3). Its own CID is computed over its encoding.
type Receipt struct {
	Ran  cid.Cid // CID of the Invocation this receipt reports on
	Out  InstructionResult
	Meta ipld.Value
	Iss  *cid.Cid // optional issuer, nil if absent
	Prf  []ipld.Value
}

// ToValue encodes the receipt into the value model.
func (r Receipt) ToValue() ipld.Value {
	entries := []ipld.MapEntry{
		{Key: "ran", Value: ipld.Link(r.Ran)},
		{Key: "out", Value: r.Out.ToValue()},
		{Key: "meta", Value: r.Meta},
		{Key: "prf", Value: ipld.List(r.Prf...)},
	}
	if r.Iss != nil {
		entries = append(entries, ipld.MapEntry{Key: "iss", Value: ipld.Link(*r.Iss)})
	}
	return ipld.Map(entries...)
}

// CID computes the receipt's content identifier.
func (r Receipt) CID() (cid.Cid, error) {
	return ipld.ComputeCID(r.ToValue())
}

// ReceiptFromValue decodes the inverse of ToValue.
func ReceiptFromValue(v ipld.Value) (Receipt, error) {
	ranV, ok := v.Lookup("ran")
	if !ok {
		return Receipt{}, fmt.Errorf("workflow: receipt missing ran")
	}
	ran, ok := ranV.AsLink()
	if !ok {
		return Receipt{}, fmt.Errorf("workflow: receipt ran not a link")
	}
	outV, ok := v.Lookup("out")
	if !ok {
		return Receipt{}, fmt.Errorf("workflow: receipt missing out")
	}
	out, err := InstructionResultFromValue(outV)
	if err != nil {
		return Receipt{}, fmt.Errorf("workflow: receipt out: %w", err)
	}
	meta, _ := v.Lookup("meta")
	var prf []ipld.Value
	if prfV, ok := v.Lookup("prf"); ok {
		items, ok := prfV.AsList()
		if !ok {
			return Receipt{}, fmt.Errorf("workflow: receipt prf not a list")
		}
		prf = items
	}
	r := Receipt{Ran: ran, Out: out, Meta: meta, Prf: prf}
	if issV, ok := v.Lookup("iss"); ok {
		iss, ok := issV.AsLink()
		if !ok {
			return Receipt{}, fmt.Errorf("workflow: receipt iss not a link")
		}
		r.Iss = &iss
	}
	return r, nil
}
