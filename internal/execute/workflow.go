package execute

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/petrijr/deltaflow/internal/persistence"
	"github.com/petrijr/deltaflow/pkg/api"
)

// ExecuteWorkflow brings every live tab of the workflow to a fresh
// cached state under deltaID. Tabs that feed other tabs render first;
// independent tabs render concurrently. Returns ErrUnneededExecution
// when a concurrent mutation superseded this render.
func ExecuteWorkflow(ctx context.Context, env *Env, workflowID string, deltaID int64) error {
	wf, err := env.Store.GetWorkflow(ctx, workflowID)
	if err != nil {
		return err
	}
	if wf.LastDeltaID != deltaID {
		return fmt.Errorf("%w: delta %d superseded by %d", api.ErrUnneededExecution, deltaID, wf.LastDeltaID)
	}

	pending := make([]TabFlow, 0, len(wf.Tabs))
	for _, tab := range wf.LiveTabs() {
		pending = append(pending, Plan(tab, env.Schemas))
	}

	results := &tabResultSet{outputs: make(map[string]api.TabOutput)}

	for len(pending) > 0 {
		ready, dependent := partitionReadyAndDependent(pending)
		if len(ready) == 0 {
			// Cyclic tab references. Render what's left unordered with
			// whatever inputs exist; correctness for cycles is not
			// guaranteed.
			env.Logger.Warn("tab dependency cycle; rendering remaining tabs unordered",
				slog.String("workflow_id", workflowID),
				slog.Int("remaining", len(pending)))
			ready, dependent = pending, nil
		}

		g, gctx := errgroup.WithContext(ctx)
		for _, flow := range ready {
			flow := flow
			g.Go(func() error {
				return executeFlowToResult(gctx, env, workflowID, flow, results)
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}
		pending = dependent
	}

	// A mutation that landed mid-render has already queued its own
	// render; everything this pass cached under the old id is moot.
	current, err := env.Store.GetWorkflow(ctx, workflowID)
	if err != nil {
		if errors.Is(err, persistence.ErrWorkflowNotFound) {
			return fmt.Errorf("%w: workflow deleted during render", api.ErrUnneededExecution)
		}
		return err
	}
	if current.LastDeltaID != deltaID {
		return fmt.Errorf("%w: delta %d superseded by %d", api.ErrUnneededExecution, deltaID, current.LastDeltaID)
	}
	return nil
}

func executeFlowToResult(ctx context.Context, env *Env, workflowID string, flow TabFlow, results *tabResultSet) error {
	out, err := os.CreateTemp(env.TempDir, "render-output-*.tab")
	if err != nil {
		return fmt.Errorf("execute: create output buffer: %w", err)
	}
	outputPath := out.Name()
	_ = out.Close()
	defer os.Remove(outputPath)

	result, err := ExecuteTabFlow(ctx, env, workflowID, flow, results.get, outputPath)
	if err != nil {
		return err
	}
	results.set(api.TabOutput{
		TabSlug: flow.TabSlug,
		TabName: flow.TabName,
		Status:  result.Status(),
		Table:   result.Table,
	})
	return nil
}

// partitionReadyAndDependent splits flows into those whose input tabs
// are all resolved and those still waiting on another flow in the
// batch. A referenced slug with no flow in the batch counts as
// resolved: either that tab is already finished or it never existed,
// and missing tabs are a module-level error, not a scheduling concern.
// A flow referencing itself can never resolve and stays dependent.
func partitionReadyAndDependent(flows []TabFlow) (ready, dependent []TabFlow) {
	pendingSlugs := make(map[string]bool, len(flows))
	for _, f := range flows {
		pendingSlugs[f.TabSlug] = true
	}
	for _, f := range flows {
		waiting := false
		for slug := range f.InputTabSlugs() {
			if pendingSlugs[slug] {
				waiting = true
				break
			}
		}
		if waiting {
			dependent = append(dependent, f)
		} else {
			ready = append(ready, f)
		}
	}
	return ready, dependent
}

// tabResultSet collects finished tab outputs across concurrent flows.
type tabResultSet struct {
	mu      sync.RWMutex
	outputs map[string]api.TabOutput
}

func (s *tabResultSet) set(out api.TabOutput) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outputs[out.TabSlug] = out
}

func (s *tabResultSet) get(tabSlug string) (api.TabOutput, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out, ok := s.outputs[tabSlug]
	return out, ok
}
