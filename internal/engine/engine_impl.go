// Package engine is the reference api.Engine implementation: it owns
// the command log, the module registry, and the render orchestration
// environment.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/petrijr/deltaflow/internal/commands"
	"github.com/petrijr/deltaflow/internal/execute"
	"github.com/petrijr/deltaflow/internal/persistence"
	"github.com/petrijr/deltaflow/internal/rendercache"
	"github.com/petrijr/deltaflow/pkg/api"
)

// Config wires an engine. Store and Cache are required.
type Config struct {
	Store persistence.WorkflowStore
	Cache *rendercache.Cache

	// Updates and OutputDeltas receive client notifications; nil means
	// discard.
	Updates      api.UpdateSender
	OutputDeltas api.OutputDeltaSender

	Observer api.Observer
	Logger   *slog.Logger

	// TempDir holds render buffer files. Empty means the system temp
	// directory.
	TempDir string
}

type engineImpl struct {
	store    persistence.WorkflowStore
	cache    *rendercache.Cache
	registry *ModuleRegistry
	observer api.Observer
	logger   *slog.Logger
	env      *execute.Env
}

var _ api.Engine = (*engineImpl)(nil)

// New constructs an engine from the config.
func New(cfg Config) (api.Engine, error) {
	if cfg.Store == nil {
		return nil, errors.New("engine: config requires a Store")
	}
	if cfg.Cache == nil {
		return nil, errors.New("engine: config requires a Cache")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	observer := cfg.Observer
	if observer == nil {
		observer = api.NoopObserver{}
	}
	updates := cfg.Updates
	if updates == nil {
		updates = api.NoopUpdateSender{}
	}
	outputDeltas := cfg.OutputDeltas
	if outputDeltas == nil {
		outputDeltas = api.NoopOutputDeltaSender{}
	}

	registry := NewModuleRegistry()
	e := &engineImpl{
		store:    cfg.Store,
		cache:    cfg.Cache,
		registry: registry,
		observer: observer,
		logger:   logger,
	}
	e.env = &execute.Env{
		Store:        cfg.Store,
		Cache:        cfg.Cache,
		Schemas:      registry.Schema,
		Runners:      registry.Runner,
		Locks:        execute.NewStepLocks(),
		Updates:      updates,
		OutputDeltas: outputDeltas,
		Observer:     observer,
		Logger:       logger,
		TempDir:      cfg.TempDir,
	}
	return e, nil
}

func (e *engineImpl) RegisterModule(spec api.ModuleSpec, runner api.ModuleRunner) error {
	return e.registry.Register(spec, runner)
}

// CreateWorkflow persists the workflow with its bootstrap delta. An
// empty ID gets a fresh UUID. Every step starts relevant to the
// bootstrap delta, so the first render builds the whole workflow.
func (e *engineImpl) CreateWorkflow(ctx context.Context, wf *api.Workflow) (*api.Workflow, error) {
	if wf == nil {
		return nil, errors.New("engine: workflow must not be nil")
	}
	if len(wf.LiveTabs()) == 0 {
		return nil, api.NewValidationError("workflow must contain at least one tab")
	}
	wf = wf.Clone()
	if wf.ID == "" {
		wf.ID = uuid.NewString()
	}

	const initDeltaID = 1
	wf.Deltas = []*api.Delta{{
		ID:         initDeltaID,
		WorkflowID: wf.ID,
		Kind:       api.KindInit,
		CreatedAt:  time.Now(),
	}}
	wf.AppliedDeltas = 1
	wf.LastDeltaID = initDeltaID

	for i, tab := range wf.LiveTabs() {
		tab.Position = i
		for j, step := range tab.LiveSteps() {
			step.Order = j
			step.LastRelevantDeltaID = initDeltaID
			step.CachedResult = nil
		}
	}
	if n := len(wf.LiveTabs()); wf.SelectedTabPosition < 0 || wf.SelectedTabPosition >= n {
		wf.SelectedTabPosition = 0
	}

	if err := e.store.CreateWorkflow(ctx, wf); err != nil {
		return nil, err
	}
	e.logger.Info("workflow created",
		slog.String("workflow_id", wf.ID),
		slog.Int("tabs", len(wf.LiveTabs())))
	return wf, nil
}

func (e *engineImpl) GetWorkflow(ctx context.Context, workflowID string) (*api.Workflow, error) {
	return e.store.GetWorkflow(ctx, workflowID)
}

// errNoop signals that a command declined to produce a delta. It never
// escapes the engine.
var errNoop = errors.New("engine: no-op request")

// ApplyDelta validates the request, appends the resulting delta to the
// log, and applies its forward transition — all inside one store
// transaction. Applying while undone deltas exist discards the redo
// branch first. A no-op request returns (nil, nil) without touching
// the log.
func (e *engineImpl) ApplyDelta(ctx context.Context, workflowID string, req api.DeltaRequest) (*api.Delta, error) {
	cmd, err := commands.Lookup(req.Kind())
	if err != nil {
		return nil, err
	}

	var created *api.Delta
	err = e.store.Mutate(ctx, workflowID, func(wf *api.Workflow) error {
		args, err := cmd.AmendCreate(wf, req, e.registry.Schema)
		if err != nil {
			return err
		}
		if args == nil {
			return errNoop
		}

		if wf.AppliedDeltas < len(wf.Deltas) {
			wf.Deltas = wf.Deltas[:wf.AppliedDeltas]
		}

		d := &api.Delta{
			ID:                wf.LastDeltaID + 1,
			WorkflowID:        wf.ID,
			Kind:              req.Kind(),
			ValuesForForward:  args.Forward,
			ValuesForBackward: args.Backward,
			StepDeltaIDs:      args.StepDeltaIDs,
			CreatedAt:         time.Now(),
		}
		if err := cmd.Forward(wf, d); err != nil {
			return err
		}
		wf.Deltas = append(wf.Deltas, d)
		wf.AppliedDeltas = len(wf.Deltas)
		wf.LastDeltaID = d.ID
		created = d.Clone()
		return nil
	})
	if errors.Is(err, errNoop) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	e.logger.Info("delta applied",
		slog.String("workflow_id", workflowID),
		slog.String("kind", string(created.Kind)),
		slog.Int64("delta_id", created.ID))
	return created, nil
}

// Undo reverses the newest applied delta. At the bootstrap delta there
// is nothing to undo and Undo returns (nil, nil).
func (e *engineImpl) Undo(ctx context.Context, workflowID string) (*api.Delta, error) {
	var undone *api.Delta
	err := e.store.Mutate(ctx, workflowID, func(wf *api.Workflow) error {
		if wf.AppliedDeltas <= 1 {
			return errNoop
		}
		d := wf.Deltas[wf.AppliedDeltas-1]
		cmd, err := commands.Lookup(d.Kind)
		if err != nil {
			return err
		}
		if err := cmd.Backward(wf, d); err != nil {
			return err
		}
		wf.AppliedDeltas--
		wf.LastDeltaID = wf.Deltas[wf.AppliedDeltas-1].ID
		undone = d.Clone()
		return nil
	})
	if errors.Is(err, errNoop) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	e.logger.Info("delta undone",
		slog.String("workflow_id", workflowID),
		slog.Int64("delta_id", undone.ID))
	return undone, nil
}

// Redo re-applies the newest undone delta, if any.
func (e *engineImpl) Redo(ctx context.Context, workflowID string) (*api.Delta, error) {
	var redone *api.Delta
	err := e.store.Mutate(ctx, workflowID, func(wf *api.Workflow) error {
		if wf.AppliedDeltas >= len(wf.Deltas) {
			return errNoop
		}
		d := wf.Deltas[wf.AppliedDeltas]
		cmd, err := commands.Lookup(d.Kind)
		if err != nil {
			return err
		}
		if err := cmd.Forward(wf, d); err != nil {
			return err
		}
		wf.AppliedDeltas++
		wf.LastDeltaID = d.ID
		redone = d.Clone()
		return nil
	})
	if errors.Is(err, errNoop) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	e.logger.Info("delta redone",
		slog.String("workflow_id", workflowID),
		slog.Int64("delta_id", redone.ID))
	return redone, nil
}

// Render brings the workflow's caches fresh under expectedDeltaID. An
// UnneededExecution abort is retried once if the workflow still sits at
// the expected delta (the corrupt-cache path: the abort cleared the bad
// entry, so a second pass can render it from scratch); if the workflow
// moved on, the superseding change has queued its own render and the
// abort is returned as-is.
func (e *engineImpl) Render(ctx context.Context, workflowID string, expectedDeltaID int64) error {
	e.observer.OnRenderStart(ctx, workflowID, expectedDeltaID)

	err := execute.ExecuteWorkflow(ctx, e.env, workflowID, expectedDeltaID)
	if errors.Is(err, api.ErrUnneededExecution) {
		if wf, gerr := e.store.GetWorkflow(ctx, workflowID); gerr == nil && wf.LastDeltaID == expectedDeltaID {
			e.logger.Warn("render aborted without a superseding delta; retrying once",
				slog.String("workflow_id", workflowID),
				slog.Int64("delta_id", expectedDeltaID),
				slog.String("reason", err.Error()))
			err = execute.ExecuteWorkflow(ctx, e.env, workflowID, expectedDeltaID)
		}
	}
	if err != nil {
		e.observer.OnRenderAborted(ctx, workflowID, expectedDeltaID, err)
		if errors.Is(err, api.ErrUnneededExecution) {
			return fmt.Errorf("render workflow %s: %w", workflowID, err)
		}
		return err
	}
	e.observer.OnRenderCompleted(ctx, workflowID, expectedDeltaID)
	return nil
}
