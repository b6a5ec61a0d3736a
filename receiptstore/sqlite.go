package receiptstore

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/weavemesh/weave/ipld"
	"github.com/weavemesh/weave/workflow"
)

// SQLiteStore is a SQLite-backed Store, grounded on the teacher's
// graph/store.SQLiteStore: WAL mode, a single-writer connection pool, and a
// busy timeout so concurrent worker runs don't spuriously fail on SQLITE_BUSY.
//
// Schema:
//   - receipts: instruction-CID -> encoded receipt, workflow-CID it was
//     committed under.
//   - workflows: workflow-CID -> encoded WorkflowInfo (latest write wins).
type SQLiteStore struct {
	db   *sql.DB
	mu   sync.RWMutex
	path string
}

// NewSQLiteStore opens (creating if needed) a SQLite-backed receipt store
// at path. Use ":memory:" for an ephemeral database.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("receiptstore: open sqlite: %w", err)
	}

	db.SetMaxOpenConns(1) // sqlite supports one writer at a time
	db.SetMaxIdleConns(1)

	ctx := context.Background()
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("receiptstore: %s: %w", pragma, err)
		}
	}

	s := &SQLiteStore{db: db, path: path}
	if err := s.createTables(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("receiptstore: create tables: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) createTables(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS receipts (
			instruction_cid TEXT PRIMARY KEY,
			workflow_cid TEXT NOT NULL,
			data BLOB NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_receipts_workflow ON receipts(workflow_cid)`,
		`CREATE TABLE IF NOT EXISTS workflows (
			workflow_cid TEXT PRIMARY KEY,
			data BLOB NOT NULL,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteStore) PutReceipt(ctx context.Context, instructionCID string, workflowCID string, r workflow.Receipt) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var exists int
	row := s.db.QueryRowContext(ctx, `SELECT 1 FROM receipts WHERE instruction_cid = ?`, instructionCID)
	if err := row.Scan(&exists); err == nil {
		return nil // idempotent: existing value wins
	} else if err != sql.ErrNoRows {
		return fmt.Errorf("receiptstore: check existing receipt: %w", err)
	}

	data, err := ipld.Encode(r.ToValue())
	if err != nil {
		return fmt.Errorf("receiptstore: encode receipt: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO receipts (instruction_cid, workflow_cid, data) VALUES (?, ?, ?)`,
		instructionCID, workflowCID, data)
	if err != nil {
		return fmt.Errorf("receiptstore: insert receipt: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetReceipt(ctx context.Context, instructionCID string) (workflow.Receipt, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var data []byte
	row := s.db.QueryRowContext(ctx, `SELECT data FROM receipts WHERE instruction_cid = ?`, instructionCID)
	if err := row.Scan(&data); err != nil {
		if err == sql.ErrNoRows {
			return workflow.Receipt{}, false, nil
		}
		return workflow.Receipt{}, false, fmt.Errorf("receiptstore: query receipt: %w", err)
	}

	v, err := ipld.Decode(data)
	if err != nil {
		return workflow.Receipt{}, false, fmt.Errorf("receiptstore: decode receipt: %w", err)
	}
	r, err := workflow.ReceiptFromValue(v)
	if err != nil {
		return workflow.Receipt{}, false, fmt.Errorf("receiptstore: parse receipt: %w", err)
	}
	return r, true, nil
}

func (s *SQLiteStore) PutWorkflowInfo(ctx context.Context, info *workflow.Info) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := ipld.Encode(info.ToValue())
	if err != nil {
		return fmt.Errorf("receiptstore: encode workflow info: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO workflows (workflow_cid, data) VALUES (?, ?)
		 ON CONFLICT(workflow_cid) DO UPDATE SET data = excluded.data, updated_at = CURRENT_TIMESTAMP`,
		info.CID.String(), data)
	if err != nil {
		return fmt.Errorf("receiptstore: upsert workflow info: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetWorkflowInfo(ctx context.Context, workflowCID string) (*workflow.Info, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var data []byte
	row := s.db.QueryRowContext(ctx, `SELECT data FROM workflows WHERE workflow_cid = ?`, workflowCID)
	if err := row.Scan(&data); err != nil {
		if err == sql.ErrNoRows {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("receiptstore: query workflow info: %w", err)
	}

	v, err := ipld.Decode(data)
	if err != nil {
		return nil, false, fmt.Errorf("receiptstore: decode workflow info: %w", err)
	}
	info, err := workflow.InfoFromValue(v)
	if err != nil {
		return nil, false, fmt.Errorf("receiptstore: parse workflow info: %w", err)
	}
	return info, true, nil
}

func (s *SQLiteStore) ReceiptsForWorkflow(ctx context.Context, workflowCID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `SELECT instruction_cid FROM receipts WHERE workflow_cid = ?`, workflowCID)
	if err != nil {
		return nil, fmt.Errorf("receiptstore: query receipts for workflow: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var insCID string
		if err := rows.Scan(&insCID); err != nil {
			return nil, fmt.Errorf("receiptstore: scan instruction cid: %w", err)
		}
		out = append(out, insCID)
	}
	return out, rows.Err()
}

// Close releases the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Path returns the database file path this store was opened with.
func (s *SQLiteStore) Path() string { return s.path }
