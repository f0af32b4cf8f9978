package lpr

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/gatewise/gatewise-core/internal/device"
	"github.com/gatewise/gatewise-core/internal/sched"
)

// defaultQueueSize bounds the capture fan-in queue. A full queue applies
// backpressure to the emitting controller rather than dropping events.
const defaultQueueSize = 256

// Observer receives capture and connectivity measurements for telemetry.
// Implementations must not block.
type Observer interface {
	ObserveCapture(deviceID string, confidence float64)
	ObserveConnectivity(deviceID string, online bool)
}

// ManagerConfig holds the LPR manager's construction parameters.
type ManagerConfig struct {
	// SiteID stamps persisted plate events.
	SiteID string

	// QueueSize bounds the capture queue. Defaults to 256.
	QueueSize int

	// MinConfidence is the site-wide confidence gate for devices whose
	// connection blob sets no minimum. Zero keeps the built-in floor.
	MinConfidence float64

	// PollInterval overrides the HTTP adapters' event-poll period.
	PollInterval time.Duration

	// OnCapture receives each persisted plate event for broadcast,
	// after its transaction has committed.
	OnCapture func(event PlateEvent)

	// Observer optionally receives telemetry measurements.
	Observer Observer
}

// Manager owns the runtime registry of LPR controllers. Accepted
// captures from every controller funnel through one bounded queue into
// a single consumption loop, which persists the plate event and the
// device's connectivity in one transaction and broadcasts after commit.
type Manager struct {
	registry *device.Registry
	devices  device.Repository
	events   EventRepository
	db       *sql.DB
	sch      sched.Scheduler
	logger   Logger
	cfg      ManagerConfig

	mu          sync.RWMutex
	controllers map[string]Controller

	queue        chan event
	done         chan struct{}
	consumerDone chan struct{}
	stopOnce     sync.Once
}

// NewManager creates an LPR manager. Call Initialize before use.
func NewManager(registry *device.Registry, devices device.Repository, events EventRepository, db *sql.DB, sch sched.Scheduler, logger Logger, cfg ManagerConfig) *Manager {
	if logger == nil {
		logger = noopLogger{}
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueueSize
	}
	return &Manager{
		registry:    registry,
		devices:     devices,
		events:      events,
		db:          db,
		sch:         sch,
		logger:      logger,
		cfg:         cfg,
		controllers: make(map[string]Controller),
		queue:       make(chan event, cfg.QueueSize),
		done:        make(chan struct{}),
	}
}

// Initialize constructs and connects a controller for every LPR device,
// persists the initial connectivity, and starts the consumption loop.
func (m *Manager) Initialize(ctx context.Context) error {
	devices := m.registry.ListByKind(device.KindLPR)

	for i := range devices {
		dev := devices[i]
		ctrl, err := m.buildController(&dev)
		if err != nil {
			m.logger.Warn("skipping lpr device",
				"device_id", dev.ID, "protocol", dev.Protocol, "error", err)
			continue
		}

		online := ctrl.Connect(ctx)
		status := device.StatusOffline
		if online {
			status = device.StatusOnline
		}
		if err := m.registry.SetHealth(ctx, dev.ID, status, m.sch.Now()); err != nil {
			m.logger.Error("persisting lpr connectivity failed",
				"device_id", dev.ID, "error", err)
		}
		if m.cfg.Observer != nil {
			m.cfg.Observer.ObserveConnectivity(dev.ID, online)
		}

		m.mu.Lock()
		m.controllers[dev.ID] = ctrl
		m.mu.Unlock()
	}

	m.consumerDone = make(chan struct{})
	go m.consumeLoop()

	m.mu.RLock()
	count := len(m.controllers)
	m.mu.RUnlock()
	m.logger.Info("lpr manager initialized", "cameras", count, "queue_size", m.cfg.QueueSize)
	return nil
}

func (m *Manager) buildController(dev *device.Device) (Controller, error) {
	applyConfidenceFloor(dev, m.cfg.MinConfidence)
	emit := m.emitterFor(dev)

	switch dev.Protocol {
	case device.ProtocolSimulated:
		return NewSimulatedLPR(dev, m.sch, m.logger, emit), nil
	case device.ProtocolHTTP:
		var opts []HTTPAdapterOption
		if m.cfg.PollInterval > 0 {
			opts = append(opts, WithPollInterval(m.cfg.PollInterval))
		}
		return NewHTTPAdapter(dev, m.sch, m.logger, emit, opts...)
	case device.ProtocolTCP:
		return NewSocketController(dev, m.sch, m.logger, emit), nil
	default:
		return nil, fmt.Errorf("lpr: unsupported protocol %q", dev.Protocol)
	}
}

// emitterFor builds the per-device capture notification handler. The
// queue send blocks when full, so ingestion bursts back-pressure the
// controller instead of overrunning persistence; the shutdown signal
// unblocks any sender still waiting.
func (m *Manager) emitterFor(dev *device.Device) Emit {
	deviceID := dev.ID
	laneID := dev.LaneID
	direction := dev.Direction

	return func(capture Capture) {
		ev := event{
			DeviceID:  deviceID,
			LaneID:    laneID,
			Direction: direction,
			Capture:   capture,
		}
		select {
		case m.queue <- ev:
		case <-m.done:
		}
	}
}

// consumeLoop is the single consumer of the capture queue. On shutdown
// it drains whatever the emitters already queued before returning.
func (m *Manager) consumeLoop() {
	defer close(m.consumerDone)

	for {
		select {
		case ev := <-m.queue:
			m.consumeOne(ev)
		case <-m.done:
			for {
				select {
				case ev := <-m.queue:
					m.consumeOne(ev)
				default:
					return
				}
			}
		}
	}
}

func (m *Manager) consumeOne(ev event) {
	if err := m.handleCapture(context.Background(), ev); err != nil {
		m.logger.Error("persisting capture failed",
			"device_id", ev.DeviceID, "plate", ev.Capture.Plate, "error", err)
	}
}

// handleCapture persists the plate event and the device health in one
// transaction, then broadcasts.
func (m *Manager) handleCapture(ctx context.Context, ev event) error {
	now := m.sch.Now()

	plateEvent := PlateEvent{
		ID:         device.GenerateID(),
		SiteID:     m.cfg.SiteID,
		DeviceID:   ev.DeviceID,
		LaneID:     ev.LaneID,
		Direction:  ev.Direction,
		RawPlate:   ev.Capture.Plate,
		Plate:      NormalizePlate(ev.Capture.Plate),
		Confidence: ev.Capture.Confidence,
		ImageRef:   ev.Capture.ImageRef,
		CapturedAt: ev.Capture.CapturedAt,
		ReceivedAt: now,
	}

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if err := m.events.InsertTx(ctx, tx, &plateEvent); err != nil {
		return err
	}
	if err := m.devices.UpdateHealthTx(ctx, tx, ev.DeviceID, device.StatusOnline, now); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing capture: %w", err)
	}

	m.registry.ApplyHealth(ev.DeviceID, device.StatusOnline, now)

	m.logger.Info("plate event recorded",
		"event_id", plateEvent.ID,
		"device_id", ev.DeviceID,
		"plate", plateEvent.Plate,
		"confidence", plateEvent.Confidence)

	if m.cfg.OnCapture != nil {
		m.cfg.OnCapture(plateEvent)
	}
	if m.cfg.Observer != nil {
		m.cfg.Observer.ObserveCapture(ev.DeviceID, plateEvent.Confidence)
	}
	return nil
}

// TriggerCapture actively requests a recognition from one device.
// It returns nil for unregistered devices, parse failures and
// below-threshold results.
func (m *Manager) TriggerCapture(ctx context.Context, deviceID string) *Capture {
	m.mu.RLock()
	ctrl, ok := m.controllers[deviceID]
	m.mu.RUnlock()
	if !ok {
		return nil
	}
	return ctrl.TriggerCapture(ctx)
}

// LastCapture returns a device's most recent accepted capture.
func (m *Manager) LastCapture(deviceID string) *Capture {
	m.mu.RLock()
	ctrl, ok := m.controllers[deviceID]
	m.mu.RUnlock()
	if !ok {
		return nil
	}
	return ctrl.LastCapture()
}

// GetAllStatuses queries every controller concurrently and collects the
// results.
func (m *Manager) GetAllStatuses() []Status {
	m.mu.RLock()
	controllers := make([]Controller, 0, len(m.controllers))
	for _, ctrl := range m.controllers {
		controllers = append(controllers, ctrl)
	}
	m.mu.RUnlock()

	results := make(chan Status, len(controllers))
	var wg sync.WaitGroup
	for _, ctrl := range controllers {
		wg.Add(1)
		go func(c Controller) {
			defer wg.Done()
			results <- c.Status()
		}(ctrl)
	}
	wg.Wait()
	close(results)

	statuses := make([]Status, 0, len(controllers))
	for status := range results {
		statuses = append(statuses, status)
	}
	return statuses
}

// Shutdown disconnects every controller, drains the capture queue and
// stops the consumption loop. The queue itself is never closed; the
// done signal releases both the consumer and any emitter still blocked
// on a full queue. Idempotent.
func (m *Manager) Shutdown() {
	m.stopOnce.Do(func() {
		m.mu.Lock()
		controllers := m.controllers
		m.controllers = make(map[string]Controller)
		m.mu.Unlock()

		for _, ctrl := range controllers {
			ctrl.Disconnect()
		}

		close(m.done)
		if m.consumerDone != nil {
			<-m.consumerDone
		}

		m.logger.Info("lpr manager shut down")
	})
}
