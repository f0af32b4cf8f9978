package barrier

import (
	"context"
	"sync"
	"time"
)

// MockLedger is an in-memory command ledger for tests.
type MockLedger struct {
	mu   sync.Mutex
	rows map[string]*Command

	createErr error
}

func NewMockLedger() *MockLedger {
	return &MockLedger{rows: make(map[string]*Command)}
}

func (m *MockLedger) CreatePending(ctx context.Context, cmd *Command) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	cpy := *cmd
	cpy.Status = CommandPending
	m.rows[cmd.CorrelationID] = &cpy
	return nil
}

func (m *MockLedger) MarkExecuted(ctx context.Context, correlationID string, executedAt time.Time) error {
	return m.mark(correlationID, CommandExecuted, "", executedAt)
}

func (m *MockLedger) MarkFailed(ctx context.Context, correlationID, reason string, executedAt time.Time) error {
	return m.mark(correlationID, CommandFailed, reason, executedAt)
}

func (m *MockLedger) mark(correlationID string, status CommandStatus, reason string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[correlationID]
	if !ok {
		return ErrCommandNotFound
	}
	if row.Status != CommandPending {
		return ErrNotPending
	}
	row.Status = status
	row.Error = reason
	row.ExecutedAt = &at
	return nil
}

func (m *MockLedger) GetByCorrelationID(ctx context.Context, correlationID string) (*Command, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[correlationID]
	if !ok {
		return nil, ErrCommandNotFound
	}
	cpy := *row
	return &cpy, nil
}

func (m *MockLedger) ListByDevice(ctx context.Context, deviceID string, limit int) ([]Command, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Command
	for _, row := range m.rows {
		if row.DeviceID == deviceID {
			out = append(out, *row)
		}
	}
	return out, nil
}

func (m *MockLedger) ListRecent(ctx context.Context, limit int) ([]Command, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Command
	for _, row := range m.rows {
		out = append(out, *row)
	}
	return out, nil
}

// Status returns the recorded status for a correlation ID.
func (m *MockLedger) Status(correlationID string) (CommandStatus, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[correlationID]
	if !ok {
		return "", false
	}
	return row.Status, true
}

// PendingCount reports how many rows never reached a terminal status.
func (m *MockLedger) PendingCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, row := range m.rows {
		if row.Status == CommandPending {
			n++
		}
	}
	return n
}

// stateRecorder collects state notifications for assertions.
type stateRecorder struct {
	mu     sync.Mutex
	states []State
}

func (r *stateRecorder) listener() StateListener {
	return func(deviceID string, laneID *string, state State) {
		r.mu.Lock()
		r.states = append(r.states, state)
		r.mu.Unlock()
	}
}

func (r *stateRecorder) all() []State {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]State, len(r.states))
	copy(out, r.states)
	return out
}
