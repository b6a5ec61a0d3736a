package receiptstore

import (
	"context"
	"testing"

	"github.com/weavemesh/weave/ipld"
	"github.com/weavemesh/weave/workflow"
)

func testStores(t *testing.T) map[string]Store {
	t.Helper()
	sqliteStore, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { _ = sqliteStore.Close() })
	return map[string]Store{
		"memory": NewMemoryStore(),
		"sqlite": sqliteStore,
	}
}

func TestStorePutGetReceiptIsIdempotent(t *testing.T) {
	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			insCID, _ := ipld.ComputeCID(ipld.String("instruction"))
			invCID, _ := ipld.ComputeCID(ipld.String("invocation"))
			wfCID, _ := ipld.ComputeCID(ipld.String("workflow"))

			r := workflow.Receipt{Ran: invCID, Out: workflow.Ok(ipld.Int(2))}
			if err := store.PutReceipt(ctx, insCID.String(), wfCID.String(), r); err != nil {
				t.Fatalf("PutReceipt: %v", err)
			}

			// Duplicate commit must be a no-op, not an error.
			dup := workflow.Receipt{Ran: invCID, Out: workflow.Ok(ipld.Int(999))}
			if err := store.PutReceipt(ctx, insCID.String(), wfCID.String(), dup); err != nil {
				t.Fatalf("duplicate PutReceipt: %v", err)
			}

			got, ok, err := store.GetReceipt(ctx, insCID.String())
			if err != nil {
				t.Fatalf("GetReceipt: %v", err)
			}
			if !ok {
				t.Fatal("expected receipt to be found")
			}
			n, _ := got.Out.Value.AsInt()
			if n != 2 {
				t.Errorf("expected original receipt to win on duplicate, got out=%d", n)
			}
		})
	}
}

func TestStoreGetReceiptMiss(t *testing.T) {
	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			missing, _ := ipld.ComputeCID(ipld.String("nope"))
			_, ok, err := store.GetReceipt(context.Background(), missing.String())
			if err != nil {
				t.Fatalf("GetReceipt: %v", err)
			}
			if ok {
				t.Error("expected miss for an unknown instruction cid")
			}
		})
	}
}

func TestStoreWorkflowInfoRoundTrip(t *testing.T) {
	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			wfCID, _ := ipld.ComputeCID(ipld.String("workflow"))
			info := workflow.NewInfo(wfCID, "demo", 2, workflow.IndexedResources{})
			r1, _ := ipld.ComputeCID(ipld.String("r1"))
			info.RecordReceipt(r1)

			if err := store.PutWorkflowInfo(ctx, info); err != nil {
				t.Fatalf("PutWorkflowInfo: %v", err)
			}

			got, ok, err := store.GetWorkflowInfo(ctx, wfCID.String())
			if err != nil {
				t.Fatalf("GetWorkflowInfo: %v", err)
			}
			if !ok {
				t.Fatal("expected workflow info to be found")
			}
			if got.ProgressCount != 1 || got.NumTasks != 2 || got.Name != "demo" {
				t.Errorf("round trip mismatch: %+v", got)
			}

			// A later write must win (monotone owner-driven updates).
			r2, _ := ipld.ComputeCID(ipld.String("r2"))
			info.RecordReceipt(r2)
			if err := store.PutWorkflowInfo(ctx, info); err != nil {
				t.Fatalf("PutWorkflowInfo (update): %v", err)
			}
			got2, _, err := store.GetWorkflowInfo(ctx, wfCID.String())
			if err != nil {
				t.Fatalf("GetWorkflowInfo: %v", err)
			}
			if got2.ProgressCount != 2 {
				t.Errorf("expected updated progress_count=2, got %d", got2.ProgressCount)
			}
		})
	}
}

func TestStoreReceiptsForWorkflow(t *testing.T) {
	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			wfCID, _ := ipld.ComputeCID(ipld.String("wf"))
			ins1, _ := ipld.ComputeCID(ipld.String("ins1"))
			ins2, _ := ipld.ComputeCID(ipld.String("ins2"))
			invCID, _ := ipld.ComputeCID(ipld.String("inv"))

			r := workflow.Receipt{Ran: invCID, Out: workflow.Ok(ipld.Null())}
			if err := store.PutReceipt(ctx, ins1.String(), wfCID.String(), r); err != nil {
				t.Fatalf("PutReceipt: %v", err)
			}
			if err := store.PutReceipt(ctx, ins2.String(), wfCID.String(), r); err != nil {
				t.Fatalf("PutReceipt: %v", err)
			}

			list, err := store.ReceiptsForWorkflow(ctx, wfCID.String())
			if err != nil {
				t.Fatalf("ReceiptsForWorkflow: %v", err)
			}
			if len(list) != 2 {
				t.Errorf("expected 2 instruction cids, got %d", len(list))
			}
		})
	}
}
