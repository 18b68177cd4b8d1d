package deltaflow_test

import (
	"context"
	"fmt"
	"log"

	"github.com/petrijr/deltaflow"
)

// Example_workflow demonstrates building a workflow, rendering it, and
// undoing an edit using an in-memory engine.
func Example_workflow() {
	ctx := context.Background()

	eng := deltaflow.NewInMemoryEngine()
	if err := deltaflow.RegisterBuiltinModules(eng); err != nil {
		log.Fatal(err)
	}
	source := deltaflow.StaticModule("cities", "1.0", deltaflow.Table{
		Columns: []deltaflow.Column{{Name: "city", Type: "text"}},
		Rows:    [][]string{{"oslo"}, {"helsinki"}, {"oslo"}},
	})
	if err := deltaflow.RegisterModules(eng, source); err != nil {
		log.Fatal(err)
	}

	wf, err := deltaflow.NewWorkflow("Cities").
		Tab("data", "Data").
		Step("load", "cities", "1.0", nil).
		Step("only-oslo", "filterrows", "1.0", deltaflow.Params{"column": "city", "value": "oslo"}).
		Create(ctx, eng)
	if err != nil {
		log.Fatal(err)
	}

	if err := eng.Render(ctx, wf.ID, wf.LastDeltaID); err != nil {
		log.Fatal(err)
	}
	printStep(ctx, eng, wf.ID, "only-oslo")

	// widen the filter
	d, err := eng.ApplyDelta(ctx, wf.ID, deltaflow.SetStepParams{
		TabSlug: "data", StepSlug: "only-oslo",
		Params: deltaflow.Params{"column": "city", "value": "helsinki"},
	})
	if err != nil {
		log.Fatal(err)
	}
	if err := eng.Render(ctx, wf.ID, d.ID); err != nil {
		log.Fatal(err)
	}
	printStep(ctx, eng, wf.ID, "only-oslo")

	// change of heart
	if _, err := eng.Undo(ctx, wf.ID); err != nil {
		log.Fatal(err)
	}
	current, err := eng.GetWorkflow(ctx, wf.ID)
	if err != nil {
		log.Fatal(err)
	}
	if err := eng.Render(ctx, wf.ID, current.LastDeltaID); err != nil {
		log.Fatal(err)
	}
	printStep(ctx, eng, wf.ID, "only-oslo")

	// Output:
	// only-oslo: ok, 2 rows
	// only-oslo: ok, 1 rows
	// only-oslo: ok, 2 rows
}

func printStep(ctx context.Context, eng deltaflow.Engine, workflowID, stepSlug string) {
	wf, err := eng.GetWorkflow(ctx, workflowID)
	if err != nil {
		log.Fatal(err)
	}
	step := wf.FindStep("data", stepSlug)
	fmt.Printf("%s: %s, %d rows\n", stepSlug, step.CachedResult.Status, step.CachedResult.NRows)
}
