package barrier

import (
	"context"
	"sync"
	"time"

	"github.com/gatewise/gatewise-core/internal/device"
	"github.com/gatewise/gatewise-core/internal/sched"
)

// defaultTransitDelay is how long the simulated arm takes to travel
// between closed and open.
const defaultTransitDelay = 500 * time.Millisecond

// Simulated is an in-process barrier used for lanes without physical
// hardware and for tests. It is always connected. A successful open arms
// an auto-close timer for the configured hold duration; an explicit
// close cancels it.
type Simulated struct {
	rec     recorder
	sch     sched.Scheduler
	logger  Logger
	onState StateListener

	transitDelay time.Duration

	mu        sync.Mutex
	state     State
	autoClose sched.Handle
}

// SimulatedOption customizes a Simulated controller.
type SimulatedOption func(*Simulated)

// WithTransitDelay overrides the arm travel time. Zero skips the travel
// wait entirely, which tests use to keep commands synchronous.
func WithTransitDelay(d time.Duration) SimulatedOption {
	return func(s *Simulated) { s.transitDelay = d }
}

// NewSimulated creates a simulated barrier controller.
func NewSimulated(dev *device.Device, ledger Ledger, sch sched.Scheduler, logger Logger, onState StateListener, opts ...SimulatedOption) *Simulated {
	if logger == nil {
		logger = noopLogger{}
	}
	s := &Simulated{
		rec:          recorder{ledger: ledger, dev: dev, logger: logger},
		sch:          sch,
		logger:       logger,
		onState:      onState,
		transitDelay: defaultTransitDelay,
		state:        StateClosed,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open raises the simulated arm and arms the auto-close timer.
func (s *Simulated) Open(ctx context.Context, correlationID string) Result {
	commandID, fail := s.rec.begin(ctx, ActionOpen, correlationID, "")
	if fail != nil {
		return *fail
	}

	s.transition(StateOpening)
	if s.transitDelay > 0 {
		if err := s.sch.Sleep(ctx, s.transitDelay); err != nil {
			return s.rec.failed(ctx, commandID, correlationID, err.Error(), s.State())
		}
	}
	s.transition(StateOpen)
	s.armAutoClose()

	return s.rec.executed(ctx, commandID, correlationID, StateOpen)
}

// Close lowers the simulated arm, cancelling any pending auto-close.
func (s *Simulated) Close(ctx context.Context, correlationID string) Result {
	commandID, fail := s.rec.begin(ctx, ActionClose, correlationID, "")
	if fail != nil {
		return *fail
	}

	s.cancelAutoClose()
	s.transition(StateClosing)
	if s.transitDelay > 0 {
		if err := s.sch.Sleep(ctx, s.transitDelay); err != nil {
			return s.rec.failed(ctx, commandID, correlationID, err.Error(), s.State())
		}
	}
	s.transition(StateClosed)

	return s.rec.executed(ctx, commandID, correlationID, StateClosed)
}

// State returns the current simulated barrier state.
func (s *Simulated) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// IsConnected always reports true for the simulated controller.
func (s *Simulated) IsConnected() bool { return true }

// Probe always succeeds for the simulated controller.
func (s *Simulated) Probe(ctx context.Context) bool { return true }

// Stop cancels any pending auto-close timer.
func (s *Simulated) Stop() {
	s.cancelAutoClose()
}

// armAutoClose schedules the automatic close after the hold duration,
// replacing any earlier pending timer.
func (s *Simulated) armAutoClose() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.autoClose != nil {
		s.autoClose.Stop()
	}
	s.autoClose = s.sch.AfterFunc(s.rec.dev.Conn.OpenDuration(), s.fireAutoClose)
}

// fireAutoClose performs the timed close. The open check guards against
// a race with an explicit close that fired just before cancellation.
func (s *Simulated) fireAutoClose() {
	s.mu.Lock()
	if s.state != StateOpen {
		s.mu.Unlock()
		return
	}
	s.state = StateClosing
	s.mu.Unlock()
	s.notify(StateClosing)

	s.mu.Lock()
	s.state = StateClosed
	s.autoClose = nil
	s.mu.Unlock()
	s.notify(StateClosed)

	s.logger.Debug("auto-close fired", "device_id", s.rec.dev.ID)
}

func (s *Simulated) cancelAutoClose() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.autoClose != nil {
		s.autoClose.Stop()
		s.autoClose = nil
	}
}

func (s *Simulated) transition(next State) {
	s.mu.Lock()
	s.state = next
	s.mu.Unlock()
	s.notify(next)
}

func (s *Simulated) notify(state State) {
	if s.onState != nil {
		s.onState(s.rec.dev.ID, s.rec.dev.LaneID, state)
	}
}
