package engine

import (
	"database/sql"

	"github.com/petrijr/deltaflow/internal/blob"
	"github.com/petrijr/deltaflow/internal/persistence"
	"github.com/petrijr/deltaflow/internal/rendercache"
	"github.com/petrijr/deltaflow/pkg/api"
)

// NewInMemoryEngine returns an Engine backed entirely by in-memory
// state. Best for tests and development.
func NewInMemoryEngine() api.Engine {
	return NewInMemoryEngineWithObserver(nil)
}

// NewInMemoryEngineWithObserver returns an in-memory Engine with the
// given Observer.
func NewInMemoryEngineWithObserver(obs api.Observer) api.Engine {
	store := persistence.NewInMemoryStore()
	cache := rendercache.New(rendercache.Config{Bucket: blob.NewMemoryBucket(), Store: store})
	eng, err := New(Config{Store: store, Cache: cache, Observer: obs})
	if err != nil {
		// unreachable: store and cache are always set
		panic(err)
	}
	return eng
}

// NewSQLiteEngine returns an Engine that persists workflow structure
// and the delta log in a SQLite database. Cached table payloads are
// kept in memory: they are rebuilt by the next render after a restart.
func NewSQLiteEngine(db *sql.DB) (api.Engine, error) {
	return NewSQLiteEngineWithObserver(db, nil)
}

// NewSQLiteEngineWithObserver returns a SQLite-backed Engine with the
// given Observer.
func NewSQLiteEngineWithObserver(db *sql.DB, obs api.Observer) (api.Engine, error) {
	store, err := persistence.NewSQLiteWorkflowStore(db)
	if err != nil {
		return nil, err
	}
	cache := rendercache.New(rendercache.Config{Bucket: blob.NewMemoryBucket(), Store: store})
	return New(Config{Store: store, Cache: cache, Observer: obs})
}
