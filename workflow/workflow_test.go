package workflow

import (
	"testing"

	"github.com/ipfs/go-cid"

	"github.com/weavemesh/weave/ipld"
)

func mustCID(t *testing.T, v ipld.Value) cid.Cid {
	t.Helper()
	c, err := ipld.ComputeCID(v)
	if err != nil {
		t.Fatalf("compute cid: %v", err)
	}
	return c
}

func TestInstructionRoundTrip(t *testing.T) {
	ins := Instruction{
		Resource: ResourceFromURL("https://example.test/add_one.wasm"),
		Op:       OpWasmRun,
		Input:    ipld.List(ipld.Int(1)),
		Nonce:    []byte{0xde, 0xad},
	}

	v := ins.ToValue()
	got, err := InstructionFromValue(v)
	if err != nil {
		t.Fatalf("InstructionFromValue: %v", err)
	}
	if got.Op != ins.Op || got.Resource.URL != ins.Resource.URL {
		t.Errorf("round trip mismatch: got %+v", got)
	}

	c1, err := ins.CID()
	if err != nil {
		t.Fatalf("CID: %v", err)
	}
	c2, err := ins.CID()
	if err != nil {
		t.Fatalf("CID: %v", err)
	}
	if !c1.Equals(c2) {
		t.Error("instruction CID is not stable across calls")
	}

	t.Log("✓ instruction round trip and CID stability hold")
}

func TestInstructionResultTagValidation(t *testing.T) {
	t.Run("valid tags round trip", func(t *testing.T) {
		for _, r := range []InstructionResult{Ok(ipld.Int(2)), Err(ipld.String("boom")), Just(ipld.Null())} {
			v := r.ToValue()
			got, err := InstructionResultFromValue(v)
			if err != nil {
				t.Fatalf("InstructionResultFromValue: %v", err)
			}
			if got.Tag != r.Tag {
				t.Errorf("tag mismatch: want %s got %s", r.Tag, got.Tag)
			}
		}
	})

	t.Run("unknown tag is a decoding failure", func(t *testing.T) {
		bad := ipld.List(ipld.String("maybe"), ipld.Int(1))
		if _, err := InstructionResultFromValue(bad); err == nil {
			t.Error("expected error for unknown result tag")
		}
	})

	t.Run("wrong shape is a decoding failure", func(t *testing.T) {
		bad := ipld.List(ipld.String("ok"), ipld.Int(1), ipld.Int(2))
		if _, err := InstructionResultFromValue(bad); err == nil {
			t.Error("expected error for 3-element list")
		}
	})
}

func TestAwaitedLinkParsing(t *testing.T) {
	target := mustCID(t, ipld.String("some-instruction"))

	cases := []struct {
		kind AwaitKind
	}{{AwaitOk}, {AwaitError}, {AwaitAny}}

	for _, c := range cases {
		link := AwaitedLink{Kind: c.kind, CID: target}
		v := link.ToValue()

		parsed, ok := ParseAwaitedLink(v)
		if !ok {
			t.Fatalf("ParseAwaitedLink failed for %s", c.kind)
		}
		if parsed.Kind != c.kind || !parsed.CID.Equals(target) {
			t.Errorf("parsed link mismatch for %s: got %+v", c.kind, parsed)
		}
	}

	if _, ok := ParseAwaitedLink(ipld.Int(5)); ok {
		t.Error("non-map value should not parse as an awaited link")
	}
	if _, ok := ParseAwaitedLink(ipld.Map(ipld.MapEntry{Key: "not/await", Value: ipld.Link(target)})); ok {
		t.Error("map with unrecognized key should not parse as an awaited link")
	}
}

func TestAwaitedLinkResolvePreservesTag(t *testing.T) {
	target := mustCID(t, ipld.Int(1))

	t.Run("await/ok accepts ok", func(t *testing.T) {
		link := AwaitedLink{Kind: AwaitOk, CID: target}
		r, err := link.Resolve(Ok(ipld.Int(2)))
		if err != nil {
			t.Fatalf("Resolve: %v", err)
		}
		if r.Tag != TagOk {
			t.Errorf("expected tag ok, got %s", r.Tag)
		}
	})

	t.Run("await/ok rejects error", func(t *testing.T) {
		link := AwaitedLink{Kind: AwaitOk, CID: target}
		if _, err := link.Resolve(Err(ipld.String("boom"))); err == nil {
			t.Error("expected error resolving await/ok against an Error result")
		}
	})

	t.Run("await/* accepts any tag", func(t *testing.T) {
		link := AwaitedLink{Kind: AwaitAny, CID: target}
		if _, err := link.Resolve(Err(ipld.String("boom"))); err != nil {
			t.Errorf("await/* should accept any tag: %v", err)
		}
	})
}

func TestWorkflowRoundTrip(t *testing.T) {
	t1 := Task{Run: Instruction{
		Resource: ResourceFromURL("https://example.test/add_one.wasm"),
		Op:       OpWasmRun,
		Input:    ipld.List(ipld.Int(1)),
	}}
	w := Workflow{Tasks: []Task{t1}}

	v := w.ToValue()
	got, err := WorkflowFromValue(v)
	if err != nil {
		t.Fatalf("WorkflowFromValue: %v", err)
	}
	if len(got.Tasks) != 1 {
		t.Fatalf("expected 1 task, got %d", len(got.Tasks))
	}

	c1, err := w.CID()
	if err != nil {
		t.Fatalf("CID: %v", err)
	}
	c2, err := got.CID()
	if err != nil {
		t.Fatalf("CID: %v", err)
	}
	if !c1.Equals(c2) {
		t.Error("workflow CID must be stable across a round trip")
	}
}

func TestReceiptRoundTrip(t *testing.T) {
	invCID := mustCID(t, ipld.String("invocation"))
	r := Receipt{
		Ran:  invCID,
		Out:  Ok(ipld.Int(2)),
		Meta: ipld.Map(ipld.MapEntry{Key: "op", Value: ipld.String(OpWasmRun)}),
	}

	v := r.ToValue()
	got, err := ReceiptFromValue(v)
	if err != nil {
		t.Fatalf("ReceiptFromValue: %v", err)
	}
	if !got.Ran.Equals(r.Ran) || got.Out.Tag != TagOk {
		t.Errorf("receipt round trip mismatch: %+v", got)
	}
}

func TestWorkflowInfoProgressInvariants(t *testing.T) {
	wfCID := mustCID(t, ipld.String("workflow"))
	info := NewInfo(wfCID, "", 2, IndexedResources{})

	if info.Complete() {
		t.Fatal("fresh info must not be complete")
	}

	r1 := mustCID(t, ipld.String("receipt-1"))
	info.RecordReceipt(r1)
	if info.ProgressCount != 1 || len(info.Progress) != 1 {
		t.Fatalf("expected progress_count=1, got %d", info.ProgressCount)
	}

	// Recording the same receipt again is a no-op (spec.md §3).
	info.RecordReceipt(r1)
	if info.ProgressCount != 1 {
		t.Fatalf("duplicate RecordReceipt must not advance progress_count, got %d", info.ProgressCount)
	}

	r2 := mustCID(t, ipld.String("receipt-2"))
	info.RecordReceipt(r2)
	if !info.Complete() {
		t.Fatal("info with progress_count == num_tasks must be complete")
	}

	clone := info.Clone()
	info.RecordReceipt(mustCID(t, ipld.String("receipt-3")))
	if len(clone.Progress) != 2 {
		t.Error("Clone must be unaffected by later mutation of the original")
	}
}

func TestCapsuleRoundTripAndMismatch(t *testing.T) {
	invCID := mustCID(t, ipld.String("invocation"))
	r := Receipt{Ran: invCID, Out: Ok(ipld.Int(2)), Meta: ipld.Null()}
	rCID, err := r.CID()
	if err != nil {
		t.Fatalf("CID: %v", err)
	}

	data, err := EncodeReceiptCapsule(r)
	if err != nil {
		t.Fatalf("EncodeReceiptCapsule: %v", err)
	}

	decoded, err := DecodeCapsule(rCID, data)
	if err != nil {
		t.Fatalf("DecodeCapsule: %v", err)
	}
	if decoded.Tag != CapsuleReceipt || decoded.Receipt == nil {
		t.Fatalf("expected a decoded receipt capsule, got %+v", decoded)
	}

	wrongCID := mustCID(t, ipld.String("not-the-receipt"))
	_, err = DecodeCapsule(wrongCID, data)
	var mismatch *CapsuleCidMismatch
	if err == nil {
		t.Fatal("expected CapsuleCidMismatch for a mismatched key")
	}
	if !asCapsuleCidMismatch(err, &mismatch) {
		t.Errorf("expected *CapsuleCidMismatch, got %T: %v", err, err)
	}
}

func TestDecodeReceiptCapsuleFromDHTVerifiesInstructionLinkage(t *testing.T) {
	instructionCID := mustCID(t, ipld.String("instruction"))
	r := Receipt{Ran: instructionCID, Out: Ok(ipld.Int(7)), Meta: ipld.Null()}

	data, err := EncodeReceiptCapsule(r)
	if err != nil {
		t.Fatalf("EncodeReceiptCapsule: %v", err)
	}

	decoded, err := DecodeReceiptCapsuleFromDHT(instructionCID, data)
	if err != nil {
		t.Fatalf("DecodeReceiptCapsuleFromDHT: %v", err)
	}
	if decoded.Tag != CapsuleReceipt || decoded.Receipt == nil {
		t.Fatalf("expected a decoded receipt capsule, got %+v", decoded)
	}
	if !decoded.Receipt.Ran.Equals(instructionCID) {
		t.Errorf("expected decoded receipt Ran to equal %s, got %s", instructionCID, decoded.Receipt.Ran)
	}

	wrongCID := mustCID(t, ipld.String("not-the-instruction"))
	_, err = DecodeReceiptCapsuleFromDHT(wrongCID, data)
	var mismatch *CapsuleCidMismatch
	if err == nil {
		t.Fatal("expected CapsuleCidMismatch for a mismatched instruction cid")
	}
	if !asCapsuleCidMismatch(err, &mismatch) {
		t.Errorf("expected *CapsuleCidMismatch, got %T: %v", err, err)
	}

	// A receipt's own CID differs from the instruction CID it is keyed
	// under, which is why the DHT path checks r.Ran instead of reusing
	// DecodeCapsule's own-CID check.
	rCID, err := r.CID()
	if err != nil {
		t.Fatalf("receipt CID: %v", err)
	}
	if rCID.Equals(instructionCID) {
		t.Fatal("test setup invalid: receipt CID must not equal instruction CID")
	}
}

func asCapsuleCidMismatch(err error, target **CapsuleCidMismatch) bool {
	if m, ok := err.(*CapsuleCidMismatch); ok {
		*target = m
		return true
	}
	return false
}
