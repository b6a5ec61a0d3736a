// Package receiptstore persists the durable map from instruction-CID to
// Receipt and from workflow-CID to WorkflowInfo (spec.md §2 "Receipt
// store", §6 "Persisted state"). Grounded on the teacher's graph/store
// package: the same Store-interface-plus-memory-plus-sqlite shape, adapted
// from generic workflow-state persistence to receipt/workflow-info
// persistence keyed by content identifier rather than run ID.
package receiptstore

import (
	"context"
	"errors"

	"github.com/weavemesh/weave/workflow"
)

// ErrNotFound is not returned by MemoryStore or SQLiteStore: their lookups
// report a missing instruction or workflow CID with found=false and a nil
// error.
var ErrNotFound = errors.New("receiptstore: not found")

// Store is the durable receipt/workflow-info map a scheduler and worker
// share. Writes are idempotent on primary key: storing a receipt already
// present leaves the store unchanged (spec.md §3 invariant).
type Store interface {
	// PutReceipt commits r under instructionCID, attributed to workflowCID.
	// A duplicate instructionCID is a no-op: the existing value wins.
	PutReceipt(ctx context.Context, instructionCID string, workflowCID string, r workflow.Receipt) error

	// GetReceipt looks up the receipt stored for instructionCID.
	GetReceipt(ctx context.Context, instructionCID string) (workflow.Receipt, bool, error)

	// PutWorkflowInfo commits info under its own CID. Overwrites any prior
	// record — WorkflowInfo is mutated monotonically by its owning worker,
	// so the latest write is always the furthest-advanced state.
	PutWorkflowInfo(ctx context.Context, info *workflow.Info) error

	// GetWorkflowInfo looks up the WorkflowInfo stored under workflowCID.
	GetWorkflowInfo(ctx context.Context, workflowCID string) (*workflow.Info, bool, error)

	// ReceiptsForWorkflow lists the instruction-CIDs committed against
	// workflowCID.
	ReceiptsForWorkflow(ctx context.Context, workflowCID string) ([]string, error)

	Close() error
}
