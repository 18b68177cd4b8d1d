package persistence

import (
	"context"
	"sync"

	"github.com/petrijr/deltaflow/pkg/api"
)

// InMemoryStore is a goroutine-safe WorkflowStore backed by a map.
// Aggregates are deep-copied on every boundary crossing so callers
// never alias live state.
type InMemoryStore struct {
	mu        sync.RWMutex
	workflows map[string]*api.Workflow
}

// NewInMemoryStore creates a new InMemoryStore.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		workflows: make(map[string]*api.Workflow),
	}
}

// Ensure InMemoryStore implements the interface.
var _ WorkflowStore = (*InMemoryStore)(nil)

func (s *InMemoryStore) CreateWorkflow(ctx context.Context, wf *api.Workflow) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.workflows[wf.ID]; ok {
		return ErrWorkflowExists
	}
	s.workflows[wf.ID] = wf.Clone()
	return nil
}

func (s *InMemoryStore) GetWorkflow(ctx context.Context, id string) (*api.Workflow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	wf, ok := s.workflows[id]
	if !ok {
		return nil, ErrWorkflowNotFound
	}
	return wf.Clone(), nil
}

func (s *InMemoryStore) Mutate(ctx context.Context, id string, fn func(wf *api.Workflow) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	wf, ok := s.workflows[id]
	if !ok {
		return ErrWorkflowNotFound
	}

	// fn works on a copy; the swap below is the commit point.
	working := wf.Clone()
	if err := fn(working); err != nil {
		return err
	}

	s.workflows[id] = working
	return nil
}

func (s *InMemoryStore) UpdateStep(ctx context.Context, workflowID string, ref api.StepRef, fn func(step *api.Step) error) error {
	return s.Mutate(ctx, workflowID, func(wf *api.Workflow) error {
		step := wf.FindStep(ref.TabSlug, ref.StepSlug)
		if step == nil {
			return ErrStepNotFound
		}
		return fn(step)
	})
}
