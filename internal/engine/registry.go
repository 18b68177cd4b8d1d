package engine

import (
	"fmt"
	"sync"

	"github.com/petrijr/deltaflow/pkg/api"
)

// ModuleKey is the stable identity a step's configuration points at.
type ModuleKey struct {
	ID      string
	Version string
}

type registeredModule struct {
	spec   api.ModuleSpec
	runner api.ModuleRunner
}

// ModuleRegistry maps module identities to their schema and runner.
// Registration may happen at any time, including while renders are in
// flight; the generation counter bumps on every change so holders of
// resolved handles can detect staleness explicitly instead of relying
// on garbage collection.
type ModuleRegistry struct {
	mu         sync.RWMutex
	modules    map[ModuleKey]registeredModule
	generation int64
}

func NewModuleRegistry() *ModuleRegistry {
	return &ModuleRegistry{modules: make(map[ModuleKey]registeredModule)}
}

// Register adds or replaces a module implementation.
func (r *ModuleRegistry) Register(spec api.ModuleSpec, runner api.ModuleRunner) error {
	if spec.ID == "" {
		return fmt.Errorf("engine: module id must not be empty")
	}
	if spec.Version == "" {
		return fmt.Errorf("engine: module %s: version must not be empty", spec.ID)
	}
	if runner == nil {
		return fmt.Errorf("engine: module %s@%s: runner must not be nil", spec.ID, spec.Version)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.modules[ModuleKey{ID: spec.ID, Version: spec.Version}] = registeredModule{spec: spec, runner: runner}
	r.generation++
	return nil
}

// Schema resolves a module's parameter schema.
func (r *ModuleRegistry) Schema(moduleID, moduleVersion string) (api.ParamSchema, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.modules[ModuleKey{ID: moduleID, Version: moduleVersion}]
	if !ok {
		return nil, false
	}
	return m.spec.Schema, true
}

// Runner resolves a module's executor.
func (r *ModuleRegistry) Runner(moduleID, moduleVersion string) (api.ModuleRunner, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.modules[ModuleKey{ID: moduleID, Version: moduleVersion}]
	if !ok {
		return nil, false
	}
	return m.runner, true
}

// Generation increments whenever the registry's contents change.
func (r *ModuleRegistry) Generation() int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.generation
}
