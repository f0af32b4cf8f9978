package barrier

import (
	"context"
	"time"
)

// State is the transient position of a barrier arm as observed by its
// controller. It is rebuilt from scratch on every manager initialization
// and never persisted.
type State string

// Barrier states. StateError is declared for vendor integrations that
// can report a hardware fault; no current controller produces it.
const (
	StateUnknown State = "unknown"
	StateClosed  State = "closed"
	StateOpening State = "opening"
	StateOpen    State = "open"
	StateClosing State = "closing"
	StateError   State = "error"
)

// Action is a barrier command verb.
type Action string

// Action constants.
const (
	ActionOpen  Action = "OPEN"
	ActionClose Action = "CLOSE"
)

// CommandStatus is the lifecycle of a ledger row. Every PENDING row
// reaches exactly one terminal status before the issuing call returns.
type CommandStatus string

// Command statuses.
const (
	CommandPending  CommandStatus = "PENDING"
	CommandExecuted CommandStatus = "EXECUTED"
	CommandFailed   CommandStatus = "FAILED"
)

// Result error codes.
const (
	CodeDeviceNotFound = "DEVICE_NOT_FOUND"
	CodeCommandFailed  = "COMMAND_FAILED"
	CodeLedgerFailed   = "LEDGER_FAILED"
)

// Result is the outcome of an open or close command. Commands never
// return an error value; every failure mode is expressed here.
type Result struct {
	Success    bool       `json:"success"`
	CommandID  string     `json:"command_id,omitempty"`
	State      State      `json:"state,omitempty"`
	ExecutedAt *time.Time `json:"executed_at,omitempty"`
	Code       string     `json:"code,omitempty"`
	Error      string     `json:"error,omitempty"`
}

// Controller drives one physical barrier. Implementations record every
// command attempt in the command ledger keyed by correlation ID and
// report failures as Result values rather than errors.
type Controller interface {
	// Open raises the barrier arm. The call blocks until the command
	// succeeds or its retry budget is exhausted.
	Open(ctx context.Context, correlationID string) Result

	// Close lowers the barrier arm, cancelling any pending auto-close.
	Close(ctx context.Context, correlationID string) Result

	// State returns the last observed barrier state.
	State() State

	// IsConnected reports whether the last connectivity probe succeeded.
	IsConnected() bool

	// Probe performs a live connectivity check and refreshes the cached
	// state where the protocol supports it.
	Probe(ctx context.Context) bool

	// Stop cancels any pending auto-close timer. Idempotent.
	Stop()
}

// StateListener receives barrier state transitions for broadcast.
type StateListener func(deviceID string, laneID *string, state State)
