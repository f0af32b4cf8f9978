package barrier

import (
	"context"
	"time"

	"github.com/gatewise/gatewise-core/internal/device"
)

// recorder bundles the command ledger bookkeeping shared by every
// controller variant: create the PENDING row before the protocol action
// starts, mark it terminal before the command call returns.
type recorder struct {
	ledger Ledger
	dev    *device.Device
	logger Logger
}

// begin creates the PENDING ledger row and returns its command ID.
// A persistence failure aborts the command before any protocol action.
func (r *recorder) begin(ctx context.Context, action Action, correlationID, reason string) (string, *Result) {
	cmd := &Command{
		ID:            device.GenerateID(),
		DeviceID:      r.dev.ID,
		LaneID:        r.dev.LaneID,
		Action:        action,
		Reason:        reason,
		CorrelationID: correlationID,
		CreatedAt:     time.Now().UTC(),
	}

	if err := r.ledger.CreatePending(ctx, cmd); err != nil {
		r.logger.Error("command ledger insert failed",
			"device_id", r.dev.ID, "action", action, "error", err)
		return "", &Result{
			Success: false,
			Code:    CodeLedgerFailed,
			Error:   err.Error(),
		}
	}
	return cmd.ID, nil
}

// executed marks the row EXECUTED and builds the success result.
// The ledger write uses a detached context so a caller cancellation
// between the protocol action and the bookkeeping cannot strand the row
// in PENDING.
func (r *recorder) executed(ctx context.Context, commandID, correlationID string, state State) Result {
	ctx = context.WithoutCancel(ctx)
	now := time.Now().UTC()
	if err := r.ledger.MarkExecuted(ctx, correlationID, now); err != nil {
		r.logger.Error("command ledger update failed",
			"device_id", r.dev.ID, "correlation_id", correlationID, "error", err)
	}
	return Result{
		Success:    true,
		CommandID:  commandID,
		State:      state,
		ExecutedAt: &now,
	}
}

// failed marks the row FAILED and builds the failure result.
func (r *recorder) failed(ctx context.Context, commandID, correlationID, reason string, state State) Result {
	ctx = context.WithoutCancel(ctx)
	now := time.Now().UTC()
	if err := r.ledger.MarkFailed(ctx, correlationID, reason, now); err != nil {
		r.logger.Error("command ledger update failed",
			"device_id", r.dev.ID, "correlation_id", correlationID, "error", err)
	}
	return Result{
		Success:   false,
		CommandID: commandID,
		State:     state,
		Code:      CodeCommandFailed,
		Error:     reason,
	}
}
