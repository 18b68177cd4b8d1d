package execute

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/petrijr/deltaflow/internal/persistence"
	"github.com/petrijr/deltaflow/internal/rendercache"
	"github.com/petrijr/deltaflow/pkg/api"
)

// tabResultFn reports another tab's finished output, if any.
type tabResultFn func(tabSlug string) (api.TabOutput, bool)

// ExecuteTabFlow brings every step of the flow to a fresh cached result
// and returns the tab's final output. outputPath is the on-disk
// location the final table lands in.
//
// No lock is held across the loop: module executions are long and the
// same flow may be rendered elsewhere at the same time. Each step
// re-verifies its own freshness inside a short critical section; any
// conflicting structural change aborts with ErrUnneededExecution.
func ExecuteTabFlow(ctx context.Context, env *Env, workflowID string, flow TabFlow, tabResults tabResultFn, outputPath string) (api.RenderResult, error) {
	env.Logger.Debug("rendering tab",
		slog.String("workflow_id", workflowID),
		slog.String("tab_slug", flow.TabSlug))

	buffer, err := os.CreateTemp(env.TempDir, "render-buffer-*.tab")
	if err != nil {
		return api.RenderResult{}, fmt.Errorf("execute: create buffer: %w", err)
	}
	bufferPath := buffer.Name()
	_ = buffer.Close()
	defer os.Remove(bufferPath)

	stale := flow.StaleSteps()

	// Alternate between the two paths so the final step writes to
	// outputPath. With an odd number of stale steps the input lands in
	// the buffer ([cache], A, B, C: cache and B use the buffer); with
	// an even number the input starts at outputPath ([cache], A, B:
	// cache and B use it).
	paths := [2]string{outputPath, bufferPath}
	if len(stale)%2 == 1 {
		paths = [2]string{bufferPath, outputPath}
	}
	nextIdx := 0
	nextPath := func() string {
		p := paths[nextIdx%2]
		nextIdx++
		return p
	}

	last, err := loadInput(ctx, env, workflowID, flow, nextPath())
	if err != nil {
		return api.RenderResult{}, err
	}

	// The empty seed table at the head of a tab is a normal input;
	// an error or unreachable result from a real step blocks everything
	// after it.
	blocked := flow.LastFreshStep() != nil && last.Status() != api.StatusOK

	for _, es := range stale {
		stepOutputPath := nextPath()
		// Clear before writing so a failing step can't expose the
		// payload from two executions ago.
		if err := os.Truncate(stepOutputPath, 0); err != nil {
			return api.RenderResult{}, fmt.Errorf("execute: truncate buffer: %w", err)
		}

		result, err := executeStep(ctx, env, workflowID, flow.TabSlug, es, last, blocked, tabResults, stepOutputPath)
		if err != nil {
			return api.RenderResult{}, err
		}
		last = result
		blocked = last.Status() != api.StatusOK
	}
	return last, nil
}

// loadInput produces the starting table for the stale suffix: empty if
// the whole flow is stale, otherwise the last fresh step's cached
// output. A corrupt cache aborts the attempt; the caller re-plans with
// the corrupt entry treated as cleared.
func loadInput(ctx context.Context, env *Env, workflowID string, flow TabFlow, path string) (api.RenderResult, error) {
	lastFresh := flow.LastFreshStep()
	if lastFresh == nil {
		return api.RenderResult{}, writeTableFile(path, api.Table{})
	}
	ref := api.StepRef{TabSlug: flow.TabSlug, StepSlug: lastFresh.Step.Slug}

	unlock := env.Locks.Lock(workflowID, ref)
	defer unlock()

	current, err := currentStep(ctx, env, workflowID, ref)
	if err != nil {
		return api.RenderResult{}, err
	}
	cached := rendercache.Fresh(current)
	if cached == nil || current.LastRelevantDeltaID != lastFresh.Step.LastRelevantDeltaID {
		return api.RenderResult{}, fmt.Errorf("%w: input step %s/%s is no longer fresh", api.ErrUnneededExecution, ref.TabSlug, ref.StepSlug)
	}

	table, err := env.Cache.Load(ctx, cached)
	if err != nil {
		if errors.Is(err, api.ErrCorruptCache) {
			// Clearing first makes the entry genuinely absent, so the
			// retried render plans this step as stale.
			_ = env.Cache.Clear(ctx, workflowID, ref)
			return api.RenderResult{}, fmt.Errorf("%w: %v", api.ErrUnneededExecution, err)
		}
		return api.RenderResult{}, err
	}
	if err := writeTableFile(path, table); err != nil {
		return api.RenderResult{}, err
	}
	return api.RenderResult{Table: table, Errors: cached.Errors}, nil
}

// executeStep renders one stale step: verify freshness under lock, run
// the module (or skip it when the input chain is blocked), cache the
// result, and notify.
func executeStep(ctx context.Context, env *Env, workflowID, tabSlug string, es ExecuteStep, input api.RenderResult, blocked bool, tabResults tabResultFn, outputPath string) (api.RenderResult, error) {
	ref := api.StepRef{TabSlug: tabSlug, StepSlug: es.Step.Slug}
	env.Observer.OnStepStart(ctx, workflowID, ref)
	start := time.Now()

	unlock := env.Locks.Lock(workflowID, ref)
	current, err := currentStep(ctx, env, workflowID, ref)
	if err != nil {
		unlock()
		return api.RenderResult{}, err
	}
	if current.LastRelevantDeltaID != es.Step.LastRelevantDeltaID {
		unlock()
		return api.RenderResult{}, fmt.Errorf("%w: step %s/%s changed during render", api.ErrUnneededExecution, ref.TabSlug, ref.StepSlug)
	}
	if fresh := rendercache.Fresh(current); fresh != nil {
		// A concurrent render got here first; reuse its result.
		table, err := env.Cache.Load(ctx, fresh)
		unlock()
		if err != nil {
			if errors.Is(err, api.ErrCorruptCache) {
				_ = env.Cache.Clear(ctx, workflowID, ref)
				return api.RenderResult{}, fmt.Errorf("%w: %v", api.ErrUnneededExecution, err)
			}
			return api.RenderResult{}, err
		}
		result := api.RenderResult{Table: table, Errors: fresh.Errors}
		if err := writeTableFile(outputPath, table); err != nil {
			return api.RenderResult{}, err
		}
		env.Observer.OnStepRendered(ctx, workflowID, ref, fresh.Status, time.Since(start))
		return result, nil
	}
	prior := current.CachedResult
	notifications := current.Notifications
	unlock()

	result, err := renderStep(ctx, env, workflowID, tabSlug, es, input, blocked, tabResults)
	if err != nil {
		return api.RenderResult{}, err
	}

	cached, err := env.Cache.Put(ctx, workflowID, ref, es.Step.LastRelevantDeltaID, result)
	if err != nil {
		if errors.Is(err, persistence.ErrWorkflowNotFound) || errors.Is(err, persistence.ErrStepNotFound) {
			return api.RenderResult{}, fmt.Errorf("%w: step %s/%s vanished during render", api.ErrUnneededExecution, ref.TabSlug, ref.StepSlug)
		}
		return api.RenderResult{}, err
	}

	if err := writeTableFile(outputPath, result.Table); err != nil {
		return api.RenderResult{}, err
	}

	env.Updates.SendUpdate(ctx, workflowID, map[string]api.StepUpdate{
		es.Step.Slug: {
			Status:  cached.Status,
			DeltaID: cached.DeltaID,
			Columns: cached.Columns,
			NRows:   cached.NRows,
			Error:   firstError(result.Errors),
		},
	})
	if notifications && outputChanged(prior, cached) {
		env.OutputDeltas.SendOutputDelta(ctx, workflowID, ref, result)
	}
	env.Observer.OnStepRendered(ctx, workflowID, ref, cached.Status, time.Since(start))
	return result, nil
}

// renderStep invokes the module, or short-circuits to an unreachable
// result when the input chain or a referenced tab is broken.
func renderStep(ctx context.Context, env *Env, workflowID, tabSlug string, es ExecuteStep, input api.RenderResult, blocked bool, tabResults tabResultFn) (api.RenderResult, error) {
	if blocked {
		return api.RenderResult{}, nil
	}

	tabInputs := make(map[string]api.TabOutput)
	if es.Schema != nil {
		for _, slug := range es.Schema.TabSlugRefs(es.Params) {
			out, ok := tabResults(slug)
			if !ok {
				continue
			}
			if out.Status != api.StatusOK {
				// Reading a broken tab makes this step unreachable,
				// which in turn breaks this tab for its own readers.
				return api.RenderResult{}, nil
			}
			tabInputs[slug] = out
		}
	}

	runner, ok := env.Runners(es.Step.ModuleID, es.Step.ModuleVersion)
	if !ok {
		return api.ErrorResult(fmt.Sprintf("module %s@%s is not registered", es.Step.ModuleID, es.Step.ModuleVersion)), nil
	}

	result, err := runner.Render(ctx, api.RenderRequest{
		WorkflowID: workflowID,
		TabSlug:    tabSlug,
		StepSlug:   es.Step.Slug,
		Params:     es.Params,
		Input:      input.Table,
		TabInputs:  tabInputs,
	})
	if err != nil {
		return api.RenderResult{}, fmt.Errorf("execute: module %s: %w", es.Step.ModuleID, err)
	}
	return result, nil
}

// currentStep reads the step's present state from the store. A deleted
// workflow or step mid-render means another process superseded us.
func currentStep(ctx context.Context, env *Env, workflowID string, ref api.StepRef) (*api.Step, error) {
	wf, err := env.Store.GetWorkflow(ctx, workflowID)
	if err != nil {
		if errors.Is(err, persistence.ErrWorkflowNotFound) {
			return nil, fmt.Errorf("%w: workflow deleted during render", api.ErrUnneededExecution)
		}
		return nil, err
	}
	step := wf.FindStep(ref.TabSlug, ref.StepSlug)
	if step == nil {
		return nil, fmt.Errorf("%w: step %s/%s deleted during render", api.ErrUnneededExecution, ref.TabSlug, ref.StepSlug)
	}
	return step, nil
}

// outputChanged compares the newly cached result with the one it
// replaced, by content hash and status.
func outputChanged(prior, current *api.CachedResult) bool {
	if prior == nil {
		return true
	}
	return prior.Hash != current.Hash ||
		prior.Status != current.Status ||
		prior.NRows != current.NRows
}

func firstError(errs []api.RenderError) string {
	if len(errs) == 0 {
		return ""
	}
	return errs[0].Message
}

// writeTableFile replaces the file's contents with the encoded table.
func writeTableFile(path string, table api.Table) error {
	payload, err := persistence.EncodeValue(table)
	if err != nil {
		return fmt.Errorf("execute: encode table: %w", err)
	}
	if err := os.WriteFile(path, payload, 0o600); err != nil {
		return fmt.Errorf("execute: write buffer: %w", err)
	}
	return nil
}

// ReadTableFile decodes a table previously written to a buffer file.
func ReadTableFile(path string) (api.Table, error) {
	payload, err := os.ReadFile(path)
	if err != nil {
		return api.Table{}, fmt.Errorf("execute: read buffer: %w", err)
	}
	return persistence.DecodeValue[api.Table](payload)
}
