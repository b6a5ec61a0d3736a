package linkmap

import (
	"testing"

	"github.com/ipfs/go-cid"

	"github.com/weavemesh/weave/ipld"
	"github.com/weavemesh/weave/workflow"
)

func TestLinkMapPutGet(t *testing.T) {
	c, err := ipld.ComputeCID(ipld.String("instruction-1"))
	if err != nil {
		t.Fatalf("ComputeCID: %v", err)
	}
	lm := New()

	if _, ok := lm.Get(c); ok {
		t.Fatal("expected miss on empty linkmap")
	}

	lm.Put(c, workflow.Ok(ipld.Int(2)))
	r, ok := lm.Get(c)
	if !ok || r.Tag != workflow.TagOk {
		t.Fatalf("expected Ok result, got %+v ok=%v", r, ok)
	}
}

func TestLinkMapSeed(t *testing.T) {
	c, err := ipld.ComputeCID(ipld.String("instruction-2"))
	if err != nil {
		t.Fatalf("ComputeCID: %v", err)
	}
	lm := New()
	lm.Seed(map[cid.Cid]workflow.InstructionResult{c: workflow.Ok(ipld.Int(1))})
	if _, ok := lm.Get(c); !ok {
		t.Fatal("expected seeded entry to be present")
	}
}

func TestResourceCache(t *testing.T) {
	r := workflow.ResourceFromURL("https://example.test/mod.wasm")
	rc := NewResourceCache()

	if _, ok := rc.Get(r); ok {
		t.Fatal("expected miss on empty cache")
	}
	rc.Put(r, []byte("bytes"))
	got, ok := rc.Get(r)
	if !ok || string(got) != "bytes" {
		t.Fatalf("unexpected cache contents: %q ok=%v", got, ok)
	}

	rc.PutAll(map[string][]byte{"url:https://example.test/other.wasm": []byte("more")})
	other := workflow.ResourceFromURL("https://example.test/other.wasm")
	got2, ok2 := rc.Get(other)
	if !ok2 || string(got2) != "more" {
		t.Fatalf("unexpected PutAll contents: %q ok=%v", got2, ok2)
	}
}
