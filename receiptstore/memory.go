package receiptstore

import (
	"context"
	"sync"

	"github.com/weavemesh/weave/workflow"
)

// MemoryStore is an in-memory Store, for tests and single-process runs
// where persistence across restarts is not required — grounded on the
// teacher's graph/store.MemStore.
type MemoryStore struct {
	mu         sync.RWMutex
	receipts   map[string]workflow.Receipt
	infos      map[string]*workflow.Info
	byWorkflow map[string][]string // workflowCID -> instruction-CIDs
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		receipts:   make(map[string]workflow.Receipt),
		infos:      make(map[string]*workflow.Info),
		byWorkflow: make(map[string][]string),
	}
}

func (m *MemoryStore) PutReceipt(_ context.Context, instructionCID string, workflowCID string, r workflow.Receipt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.receipts[instructionCID]; exists {
		return nil
	}
	m.receipts[instructionCID] = r
	m.byWorkflow[workflowCID] = append(m.byWorkflow[workflowCID], instructionCID)
	return nil
}

func (m *MemoryStore) GetReceipt(_ context.Context, instructionCID string) (workflow.Receipt, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.receipts[instructionCID]
	return r, ok, nil
}

func (m *MemoryStore) PutWorkflowInfo(_ context.Context, info *workflow.Info) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	clone := info.Clone()
	m.infos[info.CID.String()] = &clone
	return nil
}

func (m *MemoryStore) GetWorkflowInfo(_ context.Context, workflowCID string) (*workflow.Info, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	info, ok := m.infos[workflowCID]
	if !ok {
		return nil, false, nil
	}
	clone := info.Clone()
	return &clone, true, nil
}

func (m *MemoryStore) ReceiptsForWorkflow(_ context.Context, workflowCID string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, len(m.byWorkflow[workflowCID]))
	copy(out, m.byWorkflow[workflowCID])
	return out, nil
}

func (m *MemoryStore) Close() error { return nil }
