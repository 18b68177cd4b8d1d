package persistence

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/petrijr/deltaflow/pkg/api"
)

// SQLiteWorkflowStore is a WorkflowStore backed by SQLite.
//
// It expects an *sql.DB that uses a SQLite driver (for example,
// "modernc.org/sqlite"). The caller is responsible for importing
// the driver, e.g.:
//
//	import _ "modernc.org/sqlite"
//
// The tab and delta collections are stored as gob blobs on the workflow
// row, so a Mutate commit is a single-row UPDATE and therefore atomic.
type SQLiteWorkflowStore struct {
	db *sql.DB
}

// Ensure SQLiteWorkflowStore implements WorkflowStore.
var _ WorkflowStore = (*SQLiteWorkflowStore)(nil)

// NewSQLiteWorkflowStore initializes the required schema in the given
// database and returns a new SQLiteWorkflowStore.
func NewSQLiteWorkflowStore(db *sql.DB) (*SQLiteWorkflowStore, error) {
	s := &SQLiteWorkflowStore{db: db}
	if err := s.initSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteWorkflowStore) initSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS workflows (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			selected_tab INTEGER NOT NULL,
			last_delta_id INTEGER NOT NULL,
			applied_deltas INTEGER NOT NULL,
			tabs BLOB,
			deltas BLOB,
			updated_at INTEGER NOT NULL
		);`,
	)
	return err
}

func (s *SQLiteWorkflowStore) CreateWorkflow(ctx context.Context, wf *api.Workflow) error {
	tabs, err := EncodeValue(wf.Tabs)
	if err != nil {
		return err
	}
	deltas, err := EncodeValue(wf.Deltas)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO workflows (id, name, selected_tab, last_delta_id, applied_deltas, tabs, deltas, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		wf.ID,
		wf.Name,
		wf.SelectedTabPosition,
		wf.LastDeltaID,
		wf.AppliedDeltas,
		tabs,
		deltas,
		time.Now().UnixNano(),
	)
	if err != nil && isUniqueViolation(err) {
		return ErrWorkflowExists
	}
	return err
}

func (s *SQLiteWorkflowStore) GetWorkflow(ctx context.Context, id string) (*api.Workflow, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, selected_tab, last_delta_id, applied_deltas, tabs, deltas, updated_at
		FROM workflows
		WHERE id = ?`, id)
	return scanWorkflow(row)
}

func (s *SQLiteWorkflowStore) Mutate(ctx context.Context, id string, fn func(wf *api.Workflow) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx, `
		SELECT id, name, selected_tab, last_delta_id, applied_deltas, tabs, deltas, updated_at
		FROM workflows
		WHERE id = ?`, id)
	wf, err := scanWorkflow(row)
	if err != nil {
		return err
	}

	if err := fn(wf); err != nil {
		return err
	}

	tabs, err := EncodeValue(wf.Tabs)
	if err != nil {
		return err
	}
	deltas, err := EncodeValue(wf.Deltas)
	if err != nil {
		return err
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE workflows
		SET name = ?, selected_tab = ?, last_delta_id = ?, applied_deltas = ?, tabs = ?, deltas = ?, updated_at = ?
		WHERE id = ?`,
		wf.Name,
		wf.SelectedTabPosition,
		wf.LastDeltaID,
		wf.AppliedDeltas,
		tabs,
		deltas,
		time.Now().UnixNano(),
		wf.ID,
	)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrWorkflowNotFound
	}

	return tx.Commit()
}

func (s *SQLiteWorkflowStore) UpdateStep(ctx context.Context, workflowID string, ref api.StepRef, fn func(step *api.Step) error) error {
	return s.Mutate(ctx, workflowID, func(wf *api.Workflow) error {
		step := wf.FindStep(ref.TabSlug, ref.StepSlug)
		if step == nil {
			return ErrStepNotFound
		}
		return fn(step)
	})
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanWorkflow(row rowScanner) (*api.Workflow, error) {
	var (
		wf        api.Workflow
		tabs      []byte
		deltas    []byte
		updatedAt int64
	)
	if err := row.Scan(
		&wf.ID,
		&wf.Name,
		&wf.SelectedTabPosition,
		&wf.LastDeltaID,
		&wf.AppliedDeltas,
		&tabs,
		&deltas,
		&updatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrWorkflowNotFound
		}
		return nil, err
	}

	decodedTabs, err := DecodeValue[[]*api.Tab](tabs)
	if err != nil {
		return nil, err
	}
	wf.Tabs = decodedTabs

	decodedDeltas, err := DecodeValue[[]*api.Delta](deltas)
	if err != nil {
		return nil, err
	}
	wf.Deltas = decodedDeltas

	wf.UpdatedAt = time.Unix(0, updatedAt)
	return &wf, nil
}

func isUniqueViolation(err error) bool {
	// modernc.org/sqlite reports constraint failures in the message;
	// we only need a coarse check to map onto ErrWorkflowExists.
	return err != nil && strings.Contains(err.Error(), "constraint failed")
}
