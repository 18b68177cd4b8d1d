package deltaflow

import (
	"database/sql"

	"github.com/petrijr/deltaflow/internal/taskqueue"
	workerpkg "github.com/petrijr/deltaflow/pkg/worker"
)

// WorkerBundle wires together an Engine, a durable render queue, and a
// Worker that consumes requests from that queue.
type WorkerBundle struct {
	Engine Engine
	Worker *workerpkg.Worker

	// queue is kept unexported; it is primarily useful for internal
	// inspection and tests. The public API focuses on Engine and Worker.
	queue taskqueue.Queue
}

// NewSQLiteBundle constructs a durable Engine + Queue + Worker combo
// sharing the same SQLite database. Workflow structure, the delta log,
// and queued render requests all persist in the provided *sql.DB;
// cached table payloads follow cfg.BlobPath.
//
// Typical usage:
//
//	db, _ := sql.Open("sqlite", "file:deltaflow.db?_journal=WAL")
//	bundle, err := deltaflow.NewSQLiteBundle(db, deltaflow.Config{})
//	// register modules on bundle.Engine, create workflows
//	// enqueue renders via bundle.Worker, run bundle.Worker.Run(ctx)
func NewSQLiteBundle(db *sql.DB, cfg Config) (*WorkerBundle, error) {
	eng, err := NewSQLiteEngineWithConfig(db, cfg)
	if err != nil {
		return nil, err
	}

	q, err := taskqueue.NewSQLiteQueue(db)
	if err != nil {
		return nil, err
	}

	w := workerpkg.New(eng, q, cfg.Logger)

	return &WorkerBundle{
		Engine: eng,
		Worker: w,
		queue:  q,
	}, nil
}
