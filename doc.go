// Package deltaflow provides an embeddable collaborative data-workflow
// engine for Go.
//
// A workflow is an ordered set of tabs, each holding a chain of steps;
// every step runs a registered module over its predecessor's output
// table. Edits are recorded as reversible deltas in a command log, so
// undo and redo are first-class, and each delta marks exactly the steps
// whose cached output it invalidated. Rendering then recomputes only
// the stale suffix of each tab, reusing everything upstream.
//
// # Core Concepts
//
// The programming model is intentionally small:
//
//  1. Engine
//  2. Worker
//  3. WorkflowBuilder
//  4. ModuleRunner
//  5. LocalRunner
//
// # Engine
//
// The Engine stores workflow structure and the delta log, validates and
// applies delta requests, and renders workflows incrementally. Engines
// can be backed by in-memory state (non-durable, best for tests) or by
// SQLite (embedded durability); persistent cached tables can be kept in
// a BadgerDB directory via Config.BlobPath.
//
// # Worker
//
// A Worker pulls render requests from a queue and drives Engine.Render.
// The queue coalesces pending requests per workflow, so a burst of
// edits collapses into a single render of the newest delta. Workers run
// asynchronously and can be scaled horizontally.
//
// # WorkflowBuilder
//
// WorkflowBuilder provides the ergonomic API for assembling an initial
// workflow:
//
//	wf := deltaflow.NewWorkflow("Report").
//	    Tab("data", "Data").
//	    Step("load", "static", "1.0", nil).
//	    Tab("clean", "Clean").
//	    Step("pull", "loadtab", "1.0", deltaflow.Params{"tab": "data"}).
//	    Build()
//
// # ModuleRunner
//
// A ModuleRunner executes one module kind: it receives the previous
// step's table, the step's parameters, and the finished outputs of any
// tabs the parameters reference, and returns a new table or errors.
// Built-in modules cover common plumbing (passthrough, row filtering,
// cross-tab loading and concatenation); applications register their own
// for everything else.
//
// # LocalRunner
//
// LocalRunner bundles an in-memory engine, queue, and worker into a
// single process-local helper for development and unit testing. It is
// intentionally not crash-durable; NewSQLiteBundle provides the durable
// equivalent.
//
// For examples, see the package tests.
package deltaflow
