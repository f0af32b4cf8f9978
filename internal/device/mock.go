package device

import (
	"context"
	"database/sql"
	"sync"
	"time"
)

// MockRepository is an in-memory Repository for tests.
type MockRepository struct {
	mu      sync.Mutex
	devices map[string]*Device

	// Optional error injection.
	listErr   error
	updateErr error

	healthCalls int
}

// NewMockRepository creates an empty mock repository.
func NewMockRepository() *MockRepository {
	return &MockRepository{devices: make(map[string]*Device)}
}

// Seed adds devices directly, bypassing Create validation.
func (m *MockRepository) Seed(devices ...*Device) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range devices {
		m.devices[d.ID] = d.Clone()
	}
}

func (m *MockRepository) GetByID(ctx context.Context, id string) (*Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.devices[id]
	if !ok {
		return nil, ErrNotFound
	}
	return d.Clone(), nil
}

func (m *MockRepository) List(ctx context.Context) ([]Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	var out []Device
	for _, d := range m.devices {
		out = append(out, *d.Clone())
	}
	return out, nil
}

func (m *MockRepository) ListByKind(ctx context.Context, kind Kind) ([]Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Device
	for _, d := range m.devices {
		if d.Kind == kind {
			out = append(out, *d.Clone())
		}
	}
	return out, nil
}

func (m *MockRepository) Create(ctx context.Context, device *Device) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.devices[device.ID]; ok {
		return ErrExists
	}
	m.devices[device.ID] = device.Clone()
	return nil
}

func (m *MockRepository) UpdateHealth(ctx context.Context, id string, status ConnStatus, lastSeen time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.healthCalls++
	if m.updateErr != nil {
		return m.updateErr
	}
	d, ok := m.devices[id]
	if !ok {
		return ErrNotFound
	}
	d.Status = status
	seen := lastSeen.UTC()
	d.LastSeen = &seen
	return nil
}

func (m *MockRepository) UpdateHealthTx(ctx context.Context, tx *sql.Tx, id string, status ConnStatus, lastSeen time.Time) error {
	return m.UpdateHealth(ctx, id, status, lastSeen)
}

// HealthCalls reports how many health updates were attempted.
func (m *MockRepository) HealthCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.healthCalls
}
