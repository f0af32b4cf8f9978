package device

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Registry provides cached access to devices backed by a Repository.
// All reads are served from an in-memory cache; health updates write
// through to the repository before mutating the cache, so the cache can
// never show a status the database has not accepted.
type Registry struct {
	repo   Repository
	logger Logger

	mu    sync.RWMutex
	cache map[string]*Device
}

// NewRegistry creates a registry backed by the given repository.
// Call RefreshCache before serving reads.
func NewRegistry(repo Repository, logger Logger) *Registry {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Registry{
		repo:   repo,
		logger: logger,
		cache:  make(map[string]*Device),
	}
}

// RefreshCache reloads the full device set from the repository.
func (r *Registry) RefreshCache(ctx context.Context) error {
	devices, err := r.repo.List(ctx)
	if err != nil {
		return fmt.Errorf("refreshing device cache: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.cache = make(map[string]*Device, len(devices))
	for i := range devices {
		d := devices[i]
		r.cache[d.ID] = &d
	}

	r.logger.Debug("device cache refreshed", "count", len(devices))
	return nil
}

// GetDevice returns a copy of the device with the given ID.
// Returns ErrNotFound if no such device is cached.
func (r *Registry) GetDevice(id string) (*Device, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.cache[id]
	if !ok {
		return nil, ErrNotFound
	}
	return d.Clone(), nil
}

// ListDevices returns copies of all cached devices.
func (r *Registry) ListDevices() []Device {
	r.mu.RLock()
	defer r.mu.RUnlock()

	devices := make([]Device, 0, len(r.cache))
	for _, d := range r.cache {
		devices = append(devices, *d.Clone())
	}
	return devices
}

// ListByKind returns copies of all cached devices of the given kind.
func (r *Registry) ListByKind(kind Kind) []Device {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var devices []Device
	for _, d := range r.cache {
		if d.Kind == kind {
			devices = append(devices, *d.Clone())
		}
	}
	return devices
}

// FindByLane returns the device of the given kind assigned to laneID.
// Returns ErrNoLaneDevice when no cached device matches.
func (r *Registry) FindByLane(kind Kind, laneID string) (*Device, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, d := range r.cache {
		if d.Kind == kind && d.LaneID != nil && *d.LaneID == laneID {
			return d.Clone(), nil
		}
	}
	return nil, ErrNoLaneDevice
}

// SetHealth persists a connectivity observation and updates the cache.
func (r *Registry) SetHealth(ctx context.Context, id string, status ConnStatus, lastSeen time.Time) error {
	if err := r.repo.UpdateHealth(ctx, id, status, lastSeen); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if d, ok := r.cache[id]; ok {
		d.Status = status
		seen := lastSeen.UTC()
		d.LastSeen = &seen
		d.UpdatedAt = time.Now().UTC()
	}
	return nil
}

// ApplyHealth updates only the cached health for a device whose
// persistent row was already written by the caller (for transactional
// writes that bundle the health update with other rows).
func (r *Registry) ApplyHealth(id string, status ConnStatus, lastSeen time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if d, ok := r.cache[id]; ok {
		d.Status = status
		seen := lastSeen.UTC()
		d.LastSeen = &seen
		d.UpdatedAt = time.Now().UTC()
	}
}
