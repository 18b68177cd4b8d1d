package execute

import (
	"fmt"
	"sync"

	"github.com/petrijr/deltaflow/pkg/api"
)

// StepLocks serializes the short check-then-act sections around one
// step's cached result. Renders never hold a lock across module
// execution; only around "verify freshness, read or write cache".
type StepLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewStepLocks() *StepLocks {
	return &StepLocks{locks: make(map[string]*sync.Mutex)}
}

// Lock acquires the step's lock and returns the release func.
func (l *StepLocks) Lock(workflowID string, ref api.StepRef) func() {
	key := fmt.Sprintf("%s/%s/%s", workflowID, ref.TabSlug, ref.StepSlug)

	l.mu.Lock()
	lock, ok := l.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		l.locks[key] = lock
	}
	l.mu.Unlock()

	lock.Lock()
	return lock.Unlock
}
