// Package workflow implements the content-addressed data model described in
// spec.md §3: instructions, invocations, tasks, receipts, workflows, and
// workflow progress records, each identified by a CID over its canonical
// encoding (see package ipld).
package workflow

import (
	"fmt"

	"github.com/ipfs/go-cid"

	"github.com/weavemesh/weave/ipld"
)

// ResourceKind distinguishes the two ways a Resource may be located.
type ResourceKind int

const (
	ResourceURL ResourceKind = iota
	ResourceCID
)

// Resource names a WASM module either by fetchable URL or by content
// identifier (spec.md §3 "Resource").
type Resource struct {
	Kind ResourceKind
	URL  string
	CID  cid.Cid
}

// ResourceFromURL builds a URL-addressed resource.
func ResourceFromURL(url string) Resource { return Resource{Kind: ResourceURL, URL: url} }

// ResourceFromCID builds a CID-addressed resource.
func ResourceFromCID(c cid.Cid) Resource { return Resource{Kind: ResourceCID, CID: c} }

// String renders a stable textual form, used as a map key in resource caches.
func (r Resource) String() string {
	switch r.Kind {
	case ResourceURL:
		return "url:" + r.URL
	case ResourceCID:
		return "cid:" + r.CID.String()
	default:
		return "unknown"
	}
}

// ToValue encodes the resource into the value model, used when embedding it
// in a Task's meta.resources list.
func (r Resource) ToValue() ipld.Value {
	switch r.Kind {
	case ResourceURL:
		return ipld.Map(ipld.MapEntry{Key: "url", Value: ipld.String(r.URL)})
	case ResourceCID:
		return ipld.Map(ipld.MapEntry{Key: "cid", Value: ipld.Link(r.CID)})
	default:
		return ipld.Null()
	}
}

// resourceFromValue is the inverse of ToValue.
func resourceFromValue(v ipld.Value) (Resource, error) {
	if u, ok := v.Lookup("url"); ok {
		s, ok := u.AsString()
		if !ok {
			return Resource{}, fmt.Errorf("workflow: resource url not a string")
		}
		return ResourceFromURL(s), nil
	}
	if c, ok := v.Lookup("cid"); ok {
		l, ok := c.AsLink()
		if !ok {
			return Resource{}, fmt.Errorf("workflow: resource cid not a link")
		}
		return ResourceFromCID(l), nil
	}
	return Resource{}, fmt.Errorf("workflow: value is not a resource")
}
