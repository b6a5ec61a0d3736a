package workflow

import (
	"fmt"

	"github.com/ipfs/go-cid"

	"github.com/weavemesh/weave/ipld"
)

// AwaitKind names which variant of the awaited instruction's result a link
// is sensitive to (spec.md §9 "Awaited links").
type AwaitKind string

const (
	AwaitOk    AwaitKind = "await/ok"
	AwaitError AwaitKind = "await/error"
	AwaitAny   AwaitKind = "await/*"
)

// AwaitedLink is an input position referring to another instruction's
// result by CID (spec.md §3 "Task").
type AwaitedLink struct {
	Kind AwaitKind
	CID  cid.Cid
}

// ParseAwaitedLink reports whether v has the shape of an awaited link
// (a single-key map whose key is one of the three await tags) and, if so,
// returns it parsed.
func ParseAwaitedLink(v ipld.Value) (AwaitedLink, bool) {
	entries, ok := v.AsMap()
	if !ok || len(entries) != 1 {
		return AwaitedLink{}, false
	}
	entry := entries[0]
	var kind AwaitKind
	switch entry.Key {
	case string(AwaitOk):
		kind = AwaitOk
	case string(AwaitError):
		kind = AwaitError
	case string(AwaitAny):
		kind = AwaitAny
	default:
		return AwaitedLink{}, false
	}
	c, ok := entry.Value.AsLink()
	if !ok {
		return AwaitedLink{}, false
	}
	return AwaitedLink{Kind: kind, CID: c}, true
}

// CollectAwaitedLinks walks v recursively and returns every awaited link
// found within it, in a deterministic depth-first, then list/map-order
// traversal. A Task's input may nest awaited links arbitrarily inside
// lists and maps (spec.md §3: "Input may contain awaited links").
func CollectAwaitedLinks(v ipld.Value) []AwaitedLink {
	if link, ok := ParseAwaitedLink(v); ok {
		return []AwaitedLink{link}
	}
	var out []AwaitedLink
	switch v.Kind() {
	case ipld.KindList:
		items, _ := v.AsList()
		for _, item := range items {
			out = append(out, CollectAwaitedLinks(item)...)
		}
	case ipld.KindMap:
		entries, _ := v.AsMap()
		for _, entry := range entries {
			out = append(out, CollectAwaitedLinks(entry.Value)...)
		}
	}
	return out
}

// ToValue encodes the awaited link back to its map representation.
func (a AwaitedLink) ToValue() ipld.Value {
	return ipld.Map(ipld.MapEntry{Key: string(a.Kind), Value: ipld.Link(a.CID)})
}

// Resolve picks the projection of a resolved InstructionResult appropriate
// to a's sensitivity. await/ok and await/error both pass through the result
// unchanged — the original variant tag is preserved (spec.md §9: "resolution
// must ... preserve the original variant tag when substituting") — while
// await/* accepts either Ok or Error and is satisfied by an arbitrary tag.
func (a AwaitedLink) Resolve(r InstructionResult) (InstructionResult, error) {
	switch a.Kind {
	case AwaitOk:
		if r.Tag != TagOk {
			return InstructionResult{}, fmt.Errorf("workflow: await/ok link resolved to tag %q", r.Tag)
		}
	case AwaitError:
		if r.Tag != TagError {
			return InstructionResult{}, fmt.Errorf("workflow: await/error link resolved to tag %q", r.Tag)
		}
	case AwaitAny:
		// satisfied by any tag
	default:
		return InstructionResult{}, fmt.Errorf("workflow: unknown await kind %q", a.Kind)
	}
	return r, nil
}
