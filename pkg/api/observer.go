package api

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

// Observer receives callbacks from the render engine for logging and
// metrics.
//
// Implementations should be fast and non-blocking; heavy work should be
// done asynchronously so as not to delay rendering.
type Observer interface {
	// OnRenderStart is called once when a render pass begins, after the
	// workflow snapshot has been loaded.
	OnRenderStart(ctx context.Context, workflowID string, deltaID int64)

	// OnRenderCompleted is called when a render pass finishes without
	// conflict.
	OnRenderCompleted(ctx context.Context, workflowID string, deltaID int64)

	// OnRenderAborted is called when a render pass stops early: a lost
	// race (ErrUnneededExecution) or an infrastructure failure.
	OnRenderAborted(ctx context.Context, workflowID string, deltaID int64, err error)

	// OnStepStart is called before a stale step's module executes.
	OnStepStart(ctx context.Context, workflowID string, ref StepRef)

	// OnStepRendered is called after a stale step's result is cached,
	// for every terminal status (ok, error, unreachable).
	OnStepRendered(ctx context.Context, workflowID string, ref StepRef, status Status, duration time.Duration)
}

// NoopObserver is an Observer that does nothing.
// It is used as the default when no observer is configured.
type NoopObserver struct{}

func (NoopObserver) OnRenderStart(ctx context.Context, workflowID string, deltaID int64)     {}
func (NoopObserver) OnRenderCompleted(ctx context.Context, workflowID string, deltaID int64) {}
func (NoopObserver) OnRenderAborted(ctx context.Context, workflowID string, deltaID int64, err error) {
}
func (NoopObserver) OnStepStart(ctx context.Context, workflowID string, ref StepRef) {}
func (NoopObserver) OnStepRendered(ctx context.Context, workflowID string, ref StepRef, status Status, d time.Duration) {
}

// CompositeObserver fans out events to multiple observers.
type CompositeObserver struct {
	observers []Observer
}

// NewCompositeObserver creates an Observer that forwards events to each
// non-nil observer in obs.
func NewCompositeObserver(obs ...Observer) Observer {
	filtered := make([]Observer, 0, len(obs))
	for _, o := range obs {
		if o != nil {
			filtered = append(filtered, o)
		}
	}
	if len(filtered) == 0 {
		return NoopObserver{}
	}
	if len(filtered) == 1 {
		return filtered[0]
	}
	return &CompositeObserver{observers: filtered}
}

func (c *CompositeObserver) OnRenderStart(ctx context.Context, workflowID string, deltaID int64) {
	for _, o := range c.observers {
		o.OnRenderStart(ctx, workflowID, deltaID)
	}
}

func (c *CompositeObserver) OnRenderCompleted(ctx context.Context, workflowID string, deltaID int64) {
	for _, o := range c.observers {
		o.OnRenderCompleted(ctx, workflowID, deltaID)
	}
}

func (c *CompositeObserver) OnRenderAborted(ctx context.Context, workflowID string, deltaID int64, err error) {
	for _, o := range c.observers {
		o.OnRenderAborted(ctx, workflowID, deltaID, err)
	}
}

func (c *CompositeObserver) OnStepStart(ctx context.Context, workflowID string, ref StepRef) {
	for _, o := range c.observers {
		o.OnStepStart(ctx, workflowID, ref)
	}
}

func (c *CompositeObserver) OnStepRendered(ctx context.Context, workflowID string, ref StepRef, status Status, d time.Duration) {
	for _, o := range c.observers {
		o.OnStepRendered(ctx, workflowID, ref, status, d)
	}
}

// LoggingObserver writes structured logs using log/slog.
type LoggingObserver struct {
	Logger *slog.Logger
}

// NewLoggingObserver creates an Observer that logs render / step
// lifecycle events using the provided slog.Logger. If logger is nil,
// slog.Default() is used.
func NewLoggingObserver(logger *slog.Logger) Observer {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingObserver{Logger: logger}
}

func (o *LoggingObserver) OnRenderStart(ctx context.Context, workflowID string, deltaID int64) {
	o.Logger.InfoContext(ctx, "render_start",
		slog.String("workflow_id", workflowID),
		slog.Int64("delta_id", deltaID),
	)
}

func (o *LoggingObserver) OnRenderCompleted(ctx context.Context, workflowID string, deltaID int64) {
	o.Logger.InfoContext(ctx, "render_completed",
		slog.String("workflow_id", workflowID),
		slog.Int64("delta_id", deltaID),
	)
}

func (o *LoggingObserver) OnRenderAborted(ctx context.Context, workflowID string, deltaID int64, err error) {
	o.Logger.WarnContext(ctx, "render_aborted",
		slog.String("workflow_id", workflowID),
		slog.Int64("delta_id", deltaID),
		slog.Any("error", err),
	)
}

func (o *LoggingObserver) OnStepStart(ctx context.Context, workflowID string, ref StepRef) {
	o.Logger.DebugContext(ctx, "step_start",
		slog.String("workflow_id", workflowID),
		slog.String("tab", ref.TabSlug),
		slog.String("step", ref.StepSlug),
	)
}

func (o *LoggingObserver) OnStepRendered(ctx context.Context, workflowID string, ref StepRef, status Status, d time.Duration) {
	level := slog.LevelDebug
	if status == StatusError {
		level = slog.LevelWarn
	}
	o.Logger.Log(ctx, level, "step_rendered",
		slog.String("workflow_id", workflowID),
		slog.String("tab", ref.TabSlug),
		slog.String("step", ref.StepSlug),
		slog.String("status", string(status)),
		slog.Duration("duration", d),
	)
}

// BasicMetrics collects simple counters and aggregate step durations.
// It implements Observer, and can be combined with LoggingObserver via
// NewCompositeObserver.
type BasicMetrics struct {
	NoopObserver

	rendersStarted   atomic.Int64
	rendersCompleted atomic.Int64
	rendersAborted   atomic.Int64
	stepsRendered    atomic.Int64
	stepsFailed      atomic.Int64
	totalStepTime    atomic.Int64 // nanoseconds
}

// BasicMetricsSnapshot is an immutable snapshot of BasicMetrics.
type BasicMetricsSnapshot struct {
	RendersStarted   int64
	RendersCompleted int64
	RendersAborted   int64

	StepsRendered   int64
	StepsFailed     int64
	AvgStepDuration time.Duration
}

func (m *BasicMetrics) OnRenderStart(ctx context.Context, workflowID string, deltaID int64) {
	m.rendersStarted.Add(1)
}

func (m *BasicMetrics) OnRenderCompleted(ctx context.Context, workflowID string, deltaID int64) {
	m.rendersCompleted.Add(1)
}

func (m *BasicMetrics) OnRenderAborted(ctx context.Context, workflowID string, deltaID int64, err error) {
	m.rendersAborted.Add(1)
}

func (m *BasicMetrics) OnStepRendered(ctx context.Context, workflowID string, ref StepRef, status Status, d time.Duration) {
	m.stepsRendered.Add(1)
	if status == StatusError {
		m.stepsFailed.Add(1)
	}
	m.totalStepTime.Add(d.Nanoseconds())
}

// Snapshot returns a snapshot of the current metrics.
func (m *BasicMetrics) Snapshot() BasicMetricsSnapshot {
	steps := m.stepsRendered.Load()
	totalNs := m.totalStepTime.Load()

	var avg time.Duration
	if steps > 0 {
		avg = time.Duration(totalNs / steps)
	}

	return BasicMetricsSnapshot{
		RendersStarted:   m.rendersStarted.Load(),
		RendersCompleted: m.rendersCompleted.Load(),
		RendersAborted:   m.rendersAborted.Load(),
		StepsRendered:    steps,
		StepsFailed:      m.stepsFailed.Load(),
		AvgStepDuration:  avg,
	}
}
