package api

import "context"

// StepUpdate is the per-step payload delivered to clients after a
// render: enough to refresh a table header without fetching the data.
type StepUpdate struct {
	Status  Status
	DeltaID int64
	Columns []Column
	NRows   int
	Error   string
}

// UpdateSender delivers batched step updates to connected clients.
// Delivery is fire-and-forget: the engine never blocks on confirmation
// and ignores errors.
type UpdateSender interface {
	SendUpdate(ctx context.Context, workflowID string, updates map[string]StepUpdate) error
}

// NoopUpdateSender discards all updates.
type NoopUpdateSender struct{}

// SendUpdate implements UpdateSender.
func (NoopUpdateSender) SendUpdate(ctx context.Context, workflowID string, updates map[string]StepUpdate) error {
	return nil
}

// OutputDeltaSender is notified when a step with Notifications enabled
// produces output whose content actually differs from the previous
// render. Recomputation with identical output does not notify.
type OutputDeltaSender interface {
	SendOutputDelta(ctx context.Context, workflowID string, ref StepRef, result RenderResult) error
}

// NoopOutputDeltaSender discards all output-delta notifications.
type NoopOutputDeltaSender struct{}

// SendOutputDelta implements OutputDeltaSender.
func (NoopOutputDeltaSender) SendOutputDelta(ctx context.Context, workflowID string, ref StepRef, result RenderResult) error {
	return nil
}
