// Package linkmap implements the worker's in-memory resolution caches: the
// instruction-CID to InstructionResult linkmap, and the resource byte cache
// (spec.md §4.3, §5 "Linkmap / resource-cache").
package linkmap

import (
	"sync"

	"github.com/ipfs/go-cid"

	"github.com/weavemesh/weave/workflow"
)

// LinkMap is the in-memory instruction-CID -> InstructionResult cache a
// worker consults before falling back to the resource cache, the store, or
// the network (spec.md §4.3.1). Safe for concurrent use: reads run
// concurrently, writes are exclusive, and the lock is never held across a
// suspension point (spec.md §5).
type LinkMap struct {
	mu sync.RWMutex
	m  map[cid.Cid]workflow.InstructionResult
}

// New returns an empty LinkMap.
func New() *LinkMap {
	return &LinkMap{m: make(map[cid.Cid]workflow.InstructionResult)}
}

// Get returns the cached result for instructionCID, if any.
func (l *LinkMap) Get(instructionCID cid.Cid) (workflow.InstructionResult, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	r, ok := l.m[instructionCID]
	return r, ok
}

// Put records the result for instructionCID. Overwriting an existing entry
// is allowed but never observed in practice: a Receipt for an instruction is
// produced at most once per run (spec.md §3).
func (l *LinkMap) Put(instructionCID cid.Cid, result workflow.InstructionResult) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.m[instructionCID] = result
}

// Seed bulk-loads entries, for example the results of already-satisfied
// ("ran") nodes.
func (l *LinkMap) Seed(entries map[cid.Cid]workflow.InstructionResult) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for k, v := range entries {
		l.m[k] = v
	}
}

// ResourceCache is the worker's pre-warmed WASM module byte cache, keyed by
// a Resource's stable string form (spec.md §4.2 step 5).
type ResourceCache struct {
	mu sync.RWMutex
	m  map[string][]byte
}

// NewResourceCache returns an empty ResourceCache.
func NewResourceCache() *ResourceCache {
	return &ResourceCache{m: make(map[string][]byte)}
}

// Get returns the cached bytes for r, if present.
func (c *ResourceCache) Get(r workflow.Resource) ([]byte, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	b, ok := c.m[r.String()]
	return b, ok
}

// Put stores bytes for r.
func (c *ResourceCache) Put(r workflow.Resource, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[r.String()] = data
}

// PutAll bulk-loads entries keyed by Resource.String(), as returned by a
// scheduler FetchFunc.
func (c *ResourceCache) PutAll(entries map[string][]byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, v := range entries {
		c.m[k] = v
	}
}
