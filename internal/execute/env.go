package execute

import (
	"log/slog"

	"github.com/petrijr/deltaflow/internal/depgraph"
	"github.com/petrijr/deltaflow/internal/persistence"
	"github.com/petrijr/deltaflow/internal/rendercache"
	"github.com/petrijr/deltaflow/pkg/api"
)

// RunnerResolver looks up the module runner for a module version.
type RunnerResolver func(moduleID, moduleVersion string) (api.ModuleRunner, bool)

// Env bundles the collaborators a render pass needs. The engine owns
// one Env and shares it across all renders.
type Env struct {
	Store        persistence.WorkflowStore
	Cache        *rendercache.Cache
	Schemas      depgraph.SchemaResolver
	Runners      RunnerResolver
	Locks        *StepLocks
	Updates      api.UpdateSender
	OutputDeltas api.OutputDeltaSender
	Observer     api.Observer
	Logger       *slog.Logger

	// TempDir receives the per-flow buffer files. Empty means the
	// system temp directory.
	TempDir string
}
