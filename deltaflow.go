package deltaflow

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/petrijr/deltaflow/internal/blob"
	"github.com/petrijr/deltaflow/internal/engine"
	"github.com/petrijr/deltaflow/internal/persistence"
	"github.com/petrijr/deltaflow/internal/rendercache"
	"github.com/petrijr/deltaflow/pkg/api"
)

// Re-export key types so users don't need to dig into pkg/api.

type (
	Engine       = api.Engine
	Workflow     = api.Workflow
	Tab          = api.Tab
	Step         = api.Step
	Delta        = api.Delta
	DeltaKind    = api.DeltaKind
	DeltaRequest = api.DeltaRequest
	StepRef      = api.StepRef

	ReorderTabs   = api.ReorderTabs
	AddTab        = api.AddTab
	DeleteTab     = api.DeleteTab
	SetTabName    = api.SetTabName
	AddStep       = api.AddStep
	DeleteStep    = api.DeleteStep
	ReorderSteps  = api.ReorderSteps
	SetStepParams = api.SetStepParams
	SetStepNotes  = api.SetStepNotes

	Params      = api.Params
	ParamSchema = api.ParamSchema
	ParamDef    = api.ParamDef
	ParamType   = api.ParamType

	ModuleSpec    = api.ModuleSpec
	ModuleRunner  = api.ModuleRunner
	RunnerFunc    = api.RunnerFunc
	RenderRequest = api.RenderRequest
	RenderResult  = api.RenderResult
	RenderError   = api.RenderError
	Table         = api.Table
	Column        = api.Column
	TabOutput     = api.TabOutput
	Status        = api.Status
	CachedResult  = api.CachedResult

	StepUpdate        = api.StepUpdate
	UpdateSender      = api.UpdateSender
	OutputDeltaSender = api.OutputDeltaSender

	Observer             = api.Observer
	LoggingObserver      = api.LoggingObserver
	BasicMetrics         = api.BasicMetrics
	BasicMetricsSnapshot = api.BasicMetricsSnapshot
	CompositeObserver    = api.CompositeObserver
	NoopObserver         = api.NoopObserver
)

// Re-export common observer helpers.

var (
	NewLoggingObserver   = api.NewLoggingObserver
	NewCompositeObserver = api.NewCompositeObserver
)

// Re-export status and parameter type values for convenience.

const (
	StatusOK          = api.StatusOK
	StatusError       = api.StatusError
	StatusUnreachable = api.StatusUnreachable

	ParamString   = api.ParamString
	ParamFloat    = api.ParamFloat
	ParamBoolean  = api.ParamBoolean
	ParamTab      = api.ParamTab
	ParamMultitab = api.ParamMultitab
	ParamList     = api.ParamList
	ParamDict     = api.ParamDict
)

// Re-export the error taxonomy.

var (
	ErrUnneededExecution = api.ErrUnneededExecution
	ErrCorruptCache      = api.ErrCorruptCache
	ErrTabNotFound       = api.ErrTabNotFound
	ErrStepNotFound      = api.ErrStepNotFound

	IsValidationError = api.IsValidationError
)

// Config customizes engine construction beyond the plain constructors.
// The zero value is usable.
type Config struct {
	// Observer receives render lifecycle callbacks.
	Observer Observer

	// Updates and OutputDeltas receive client notifications; nil means
	// discard.
	Updates      UpdateSender
	OutputDeltas OutputDeltaSender

	Logger *slog.Logger

	// TempDir holds render buffer files. Empty means the system temp
	// directory.
	TempDir string

	// CacheBudget caps the total cached payload bytes per workflow.
	// Zero means unbounded. Entries a step still points at are never
	// evicted, so a workflow can exceed the budget transiently.
	CacheBudget int64

	// BlobPath, when set, keeps cached table payloads in a BadgerDB
	// directory so they survive restarts. Empty keeps them in memory.
	BlobPath string
}

// Engine constructors. These wrap the internal/engine package so
// external callers never need to import internal packages.

// NewInMemoryEngine returns an Engine backed entirely by in-memory
// state.
func NewInMemoryEngine() Engine {
	return engine.NewInMemoryEngine()
}

// NewInMemoryEngineWithObserver returns an in-memory Engine with the
// given Observer.
func NewInMemoryEngineWithObserver(obs Observer) Engine {
	return engine.NewInMemoryEngineWithObserver(obs)
}

// NewInMemoryEngineWithConfig returns an in-memory Engine customized by
// cfg. Config.BlobPath still applies: structure is volatile but cached
// tables can be durable, which is rarely useful outside tests.
func NewInMemoryEngineWithConfig(cfg Config) (Engine, error) {
	return newEngine(persistence.NewInMemoryStore(), cfg)
}

// NewSQLiteEngine returns an Engine that persists workflow structure
// and the delta log in a SQLite database. Cached table payloads are
// kept in memory and rebuilt by the next render after a restart; use
// NewSQLiteEngineWithConfig with BlobPath for durable payloads.
func NewSQLiteEngine(db *sql.DB) (Engine, error) {
	return engine.NewSQLiteEngine(db)
}

// NewSQLiteEngineWithObserver returns a SQLite-backed Engine with the
// given Observer.
func NewSQLiteEngineWithObserver(db *sql.DB, obs Observer) (Engine, error) {
	return engine.NewSQLiteEngineWithObserver(db, obs)
}

// NewSQLiteEngineWithConfig returns a SQLite-backed Engine customized
// by cfg.
func NewSQLiteEngineWithConfig(db *sql.DB, cfg Config) (Engine, error) {
	store, err := persistence.NewSQLiteWorkflowStore(db)
	if err != nil {
		return nil, err
	}
	return newEngine(store, cfg)
}

func newEngine(store persistence.WorkflowStore, cfg Config) (Engine, error) {
	var bucket blob.Bucket
	if cfg.BlobPath != "" {
		b, err := blob.OpenBadgerBucket(blob.BadgerConfig{Path: cfg.BlobPath, Logger: cfg.Logger})
		if err != nil {
			return nil, err
		}
		bucket = b
	} else {
		bucket = blob.NewMemoryBucket()
	}

	cache := rendercache.New(rendercache.Config{
		Bucket: bucket,
		Store:  store,
		Budget: cfg.CacheBudget,
		Logger: cfg.Logger,
	})
	return engine.New(engine.Config{
		Store:        store,
		Cache:        cache,
		Updates:      cfg.Updates,
		OutputDeltas: cfg.OutputDeltas,
		Observer:     cfg.Observer,
		Logger:       cfg.Logger,
		TempDir:      cfg.TempDir,
	})
}

// Convenience helpers that just forward to the underlying Engine.

// CreateWorkflow persists a new workflow with its bootstrap delta.
func CreateWorkflow(ctx context.Context, eng Engine, wf *Workflow) (*Workflow, error) {
	return eng.CreateWorkflow(ctx, wf)
}

// ApplyDelta applies a delta request to a workflow.
func ApplyDelta(ctx context.Context, eng Engine, workflowID string, req DeltaRequest) (*Delta, error) {
	return eng.ApplyDelta(ctx, workflowID, req)
}

// Undo reverts the most recently applied delta.
func Undo(ctx context.Context, eng Engine, workflowID string) (*Delta, error) {
	return eng.Undo(ctx, workflowID)
}

// Redo re-applies the next previously-undone delta.
func Redo(ctx context.Context, eng Engine, workflowID string) (*Delta, error) {
	return eng.Redo(ctx, workflowID)
}

// Render renders a workflow synchronously under expectedDeltaID.
func Render(ctx context.Context, eng Engine, workflowID string, expectedDeltaID int64) error {
	return eng.Render(ctx, workflowID, expectedDeltaID)
}

// ErrorResult is a convenience for modules reporting a failure.
func ErrorResult(msg string) RenderResult {
	return api.ErrorResult(msg)
}
