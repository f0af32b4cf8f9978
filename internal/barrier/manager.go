package barrier

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gatewise/gatewise-core/internal/device"
	"github.com/gatewise/gatewise-core/internal/sched"
)

// Observer receives command and connectivity measurements for telemetry.
// Implementations must not block.
type Observer interface {
	ObserveCommand(deviceID string, action Action, success bool, elapsed time.Duration)
	ObserveConnectivity(deviceID string, online bool)
}

// ManagerConfig holds the hardware manager's construction parameters.
type ManagerConfig struct {
	// PollInterval is the connectivity poll period. Defaults to 30s.
	PollInterval time.Duration

	// OnState receives barrier state transitions for broadcast.
	OnState StateListener

	// Observer optionally receives telemetry measurements.
	Observer Observer
}

// Manager owns the runtime registry of barrier controllers. It is
// constructed explicitly at process start, initialized once, and passed
// to whatever needs it; there is no package-level instance.
type Manager struct {
	registry *device.Registry
	ledger   Ledger
	sch      sched.Scheduler
	logger   Logger
	cfg      ManagerConfig

	mu          sync.RWMutex
	controllers map[string]Controller
	shutdown    bool

	pollCancel context.CancelFunc
	pollDone   chan struct{}
	stopOnce   sync.Once
}

// NewManager creates a hardware manager. Call Initialize before use.
func NewManager(registry *device.Registry, ledger Ledger, sch sched.Scheduler, logger Logger, cfg ManagerConfig) *Manager {
	if logger == nil {
		logger = noopLogger{}
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 30 * time.Second
	}
	return &Manager{
		registry:    registry,
		ledger:      ledger,
		sch:         sch,
		logger:      logger,
		cfg:         cfg,
		controllers: make(map[string]Controller),
	}
}

// Initialize constructs a controller for every barrier device and starts
// the connectivity poll.
func (m *Manager) Initialize(ctx context.Context) error {
	devices := m.registry.ListByKind(device.KindBarrier)

	m.mu.Lock()
	for i := range devices {
		dev := devices[i]
		ctrl, err := m.buildController(&dev)
		if err != nil {
			m.logger.Warn("skipping barrier device",
				"device_id", dev.ID, "protocol", dev.Protocol, "error", err)
			continue
		}
		m.controllers[dev.ID] = ctrl
	}
	count := len(m.controllers)
	m.mu.Unlock()

	m.logger.Info("hardware manager initialized",
		"barriers", count, "poll_interval", m.cfg.PollInterval)

	pollCtx, cancel := context.WithCancel(context.Background())
	m.pollCancel = cancel
	m.pollDone = make(chan struct{})
	go m.pollLoop(pollCtx)

	return nil
}

func (m *Manager) buildController(dev *device.Device) (Controller, error) {
	switch dev.Protocol {
	case device.ProtocolSimulated:
		return NewSimulated(dev, m.ledger, m.sch, m.logger, m.cfg.OnState), nil
	case device.ProtocolHTTP:
		return NewHTTPActuator(dev, m.ledger, m.sch, m.logger, m.cfg.OnState), nil
	case device.ProtocolRelay:
		return NewRelayActuator(dev, m.ledger, m.sch, m.logger, m.cfg.OnState), nil
	default:
		return nil, fmt.Errorf("barrier: unsupported protocol %q", dev.Protocol)
	}
}

// pollLoop probes every controller on a fixed interval and writes the
// observed connectivity back to the device records.
func (m *Manager) pollLoop(ctx context.Context) {
	defer close(m.pollDone)

	for {
		if err := m.sch.Sleep(ctx, m.cfg.PollInterval); err != nil {
			return
		}
		m.pollOnce(ctx)
	}
}

func (m *Manager) pollOnce(ctx context.Context) {
	m.mu.RLock()
	controllers := make(map[string]Controller, len(m.controllers))
	for id, ctrl := range m.controllers {
		controllers[id] = ctrl
	}
	m.mu.RUnlock()

	for id, ctrl := range controllers {
		online := ctrl.Probe(ctx)
		status := device.StatusOffline
		if online {
			status = device.StatusOnline
		}

		if err := m.registry.SetHealth(ctx, id, status, m.sch.Now()); err != nil {
			m.logger.Error("persisting barrier connectivity failed",
				"device_id", id, "error", err)
		}
		if m.cfg.Observer != nil {
			m.cfg.Observer.ObserveConnectivity(id, online)
		}
	}
}

// Open dispatches an open command to the controller for deviceID.
func (m *Manager) Open(ctx context.Context, deviceID, correlationID string) Result {
	return m.dispatch(ctx, deviceID, correlationID, ActionOpen)
}

// Close dispatches a close command to the controller for deviceID.
func (m *Manager) Close(ctx context.Context, deviceID, correlationID string) Result {
	return m.dispatch(ctx, deviceID, correlationID, ActionClose)
}

// OpenByLane resolves the barrier assigned to a lane and opens it.
func (m *Manager) OpenByLane(ctx context.Context, laneID, correlationID string) Result {
	dev, err := m.registry.FindByLane(device.KindBarrier, laneID)
	if err != nil {
		return notFoundResult(fmt.Sprintf("no barrier for lane %q", laneID))
	}
	return m.Open(ctx, dev.ID, correlationID)
}

// CloseByLane resolves the barrier assigned to a lane and closes it.
func (m *Manager) CloseByLane(ctx context.Context, laneID, correlationID string) Result {
	dev, err := m.registry.FindByLane(device.KindBarrier, laneID)
	if err != nil {
		return notFoundResult(fmt.Sprintf("no barrier for lane %q", laneID))
	}
	return m.Close(ctx, dev.ID, correlationID)
}

func (m *Manager) dispatch(ctx context.Context, deviceID, correlationID string, action Action) Result {
	ctrl, ok := m.controller(deviceID)
	if !ok {
		return notFoundResult(fmt.Sprintf("no barrier registered for device %q", deviceID))
	}

	start := m.sch.Now()
	var result Result
	if action == ActionOpen {
		result = ctrl.Open(ctx, correlationID)
	} else {
		result = ctrl.Close(ctx, correlationID)
	}

	if m.cfg.Observer != nil {
		m.cfg.Observer.ObserveCommand(deviceID, action, result.Success, m.sch.Now().Sub(start))
	}
	return result
}

// StateOf forces a fresh read from the live controller and returns its
// state. Probing refreshes connectivity and, where the protocol
// reports one, the cached state, so movements made behind the
// controller's back surface here. The second return is false for
// unregistered devices.
func (m *Manager) StateOf(ctx context.Context, deviceID string) (State, bool) {
	ctrl, ok := m.controller(deviceID)
	if !ok {
		return StateUnknown, false
	}
	ctrl.Probe(ctx)
	return ctrl.State(), true
}

// ConnectivitySnapshot reports connected/disconnected for every
// registered barrier. LPR connectivity is tracked by the LPR manager.
func (m *Manager) ConnectivitySnapshot() map[string]bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snapshot := make(map[string]bool, len(m.controllers))
	for id, ctrl := range m.controllers {
		snapshot[id] = ctrl.IsConnected()
	}
	return snapshot
}

// Shutdown stops the poll, cancels controller timers and clears the
// registry. Idempotent.
func (m *Manager) Shutdown() {
	m.stopOnce.Do(func() {
		if m.pollCancel != nil {
			m.pollCancel()
			<-m.pollDone
		}

		m.mu.Lock()
		for _, ctrl := range m.controllers {
			ctrl.Stop()
		}
		m.controllers = make(map[string]Controller)
		m.shutdown = true
		m.mu.Unlock()

		m.logger.Info("hardware manager shut down")
	})
}

func (m *Manager) controller(deviceID string) (Controller, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ctrl, ok := m.controllers[deviceID]
	return ctrl, ok
}

func notFoundResult(msg string) Result {
	return Result{
		Success: false,
		Code:    CodeDeviceNotFound,
		Error:   msg,
	}
}
