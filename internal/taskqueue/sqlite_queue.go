package taskqueue

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// SQLiteQueue is a persistent render-request queue. One row per
// workflow; the primary key makes coalescing an upsert. FIFO order
// comes from the original enqueue timestamp, which a coalescing upsert
// keeps.
type SQLiteQueue struct {
	db           *sql.DB
	pollInterval time.Duration
}

// NewSQLiteQueue initializes the render_requests table in the given DB
// and returns a new queue.
func NewSQLiteQueue(db *sql.DB) (*SQLiteQueue, error) {
	q := &SQLiteQueue{
		db:           db,
		pollInterval: 20 * time.Millisecond,
	}
	if err := q.initSchema(); err != nil {
		return nil, err
	}
	return q, nil
}

func (q *SQLiteQueue) initSchema() error {
	_, err := q.db.Exec(`
		CREATE TABLE IF NOT EXISTS render_requests (
			workflow_id TEXT PRIMARY KEY,
			delta_id INTEGER NOT NULL,
			enqueued_at INTEGER NOT NULL
		);
	`)
	return err
}

// Ensure SQLiteQueue implements Queue.
var _ Queue = (*SQLiteQueue)(nil)

func (q *SQLiteQueue) Enqueue(ctx context.Context, req RenderRequest) error {
	enqueuedAt := req.EnqueuedAt
	if enqueuedAt.IsZero() {
		enqueuedAt = time.Now()
	}

	_, err := q.db.ExecContext(ctx, `
		INSERT INTO render_requests (workflow_id, delta_id, enqueued_at)
		VALUES (?, ?, ?)
		ON CONFLICT(workflow_id) DO UPDATE SET
			delta_id = MAX(delta_id, excluded.delta_id)`,
		req.WorkflowID,
		req.DeltaID,
		enqueuedAt.UnixNano(),
	)
	return err
}

func (q *SQLiteQueue) Dequeue(ctx context.Context) (*RenderRequest, error) {
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		tx, err := q.db.BeginTx(ctx, nil)
		if err != nil {
			return nil, err
		}

		var (
			workflowID  string
			deltaID     int64
			enqueuedInt int64
		)
		row := tx.QueryRowContext(ctx, `
			SELECT workflow_id, delta_id, enqueued_at
			FROM render_requests
			ORDER BY enqueued_at, workflow_id
			LIMIT 1`)
		err = row.Scan(&workflowID, &deltaID, &enqueuedInt)
		if err != nil {
			_ = tx.Rollback()
			if errors.Is(err, sql.ErrNoRows) {
				// Nothing available: sleep a bit and retry.
				select {
				case <-ctx.Done():
					return nil, ctx.Err()
				case <-time.After(q.pollInterval):
					continue
				}
			}
			return nil, err
		}

		// Delete the row we just claimed.
		if _, err := tx.ExecContext(ctx, `DELETE FROM render_requests WHERE workflow_id = ?`, workflowID); err != nil {
			_ = tx.Rollback()
			return nil, err
		}
		if err := tx.Commit(); err != nil {
			return nil, err
		}

		return &RenderRequest{
			WorkflowID: workflowID,
			DeltaID:    deltaID,
			EnqueuedAt: time.Unix(0, enqueuedInt),
		}, nil
	}
}

func (q *SQLiteQueue) Len() int {
	var n int
	if err := q.db.QueryRow(`SELECT COUNT(*) FROM render_requests`).Scan(&n); err != nil {
		return 0
	}
	return n
}
