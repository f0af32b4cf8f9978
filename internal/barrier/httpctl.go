package barrier

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/gatewise/gatewise-core/internal/device"
	"github.com/gatewise/gatewise-core/internal/sched"
)

// HTTPActuator drives a barrier exposing the protocol-neutral control
// endpoints /status, /control/open and /control/close. Failed calls are
// retried up to the configured count with a fixed inter-attempt delay;
// connectivity is whatever the last /status probe reported.
type HTTPActuator struct {
	rec     recorder
	sch     sched.Scheduler
	logger  Logger
	onState StateListener
	client  *http.Client
	baseURL string

	mu        sync.Mutex
	state     State
	connected bool
}

// NewHTTPActuator creates an HTTP barrier controller for the device.
func NewHTTPActuator(dev *device.Device, ledger Ledger, sch sched.Scheduler, logger Logger, onState StateListener) *HTTPActuator {
	if logger == nil {
		logger = noopLogger{}
	}
	return &HTTPActuator{
		rec:     recorder{ledger: ledger, dev: dev, logger: logger},
		sch:     sch,
		logger:  logger,
		onState: onState,
		client:  &http.Client{Timeout: dev.Conn.Timeout()},
		baseURL: fmt.Sprintf("http://%s:%d", dev.Conn.Host, dev.Conn.Port),
		state:   StateUnknown,
	}
}

// Open raises the barrier via POST /control/open.
func (h *HTTPActuator) Open(ctx context.Context, correlationID string) Result {
	return h.command(ctx, ActionOpen, correlationID, "/control/open", StateOpening, StateOpen)
}

// Close lowers the barrier via POST /control/close.
func (h *HTTPActuator) Close(ctx context.Context, correlationID string) Result {
	return h.command(ctx, ActionClose, correlationID, "/control/close", StateClosing, StateClosed)
}

func (h *HTTPActuator) command(ctx context.Context, action Action, correlationID, path string, transit, final State) Result {
	commandID, fail := h.rec.begin(ctx, action, correlationID, "")
	if fail != nil {
		return *fail
	}

	err := doWithRetry(ctx, h.sch, h.rec.dev.Conn, h.logger, func(ctx context.Context) error {
		return h.post(ctx, path)
	})
	if err != nil {
		h.logger.Warn("barrier command failed",
			"device_id", h.rec.dev.ID, "action", action, "error", err)
		return h.rec.failed(ctx, commandID, correlationID, err.Error(), h.State())
	}

	h.transition(transit)
	h.transition(final)
	return h.rec.executed(ctx, commandID, correlationID, final)
}

func (h *HTTPActuator) post(ctx context.Context, path string) error {
	ctx, cancel := context.WithTimeout(ctx, h.rec.dev.Conn.Timeout())
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	if h.rec.dev.Conn.Username != "" {
		req.SetBasicAuth(h.rec.dev.Conn.Username, h.rec.dev.Conn.Password)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("actuator returned %d", resp.StatusCode)
	}
	return nil
}

// State returns the last observed barrier state.
func (h *HTTPActuator) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// IsConnected reports the outcome of the last /status probe.
func (h *HTTPActuator) IsConnected() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.connected
}

// Probe calls GET /status, refreshing connectivity and, when the
// response carries a recognizable state field, the cached state.
func (h *HTTPActuator) Probe(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, h.rec.dev.Conn.Timeout())
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.baseURL+"/status", nil)
	if err != nil {
		h.setConnected(false)
		return false
	}
	if h.rec.dev.Conn.Username != "" {
		req.SetBasicAuth(h.rec.dev.Conn.Username, h.rec.dev.Conn.Password)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		h.setConnected(false)
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		h.setConnected(false)
		return false
	}

	var payload struct {
		State string `json:"state"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err == nil {
		if s := parseStateField(payload.State); s != StateUnknown {
			h.mu.Lock()
			h.state = s
			h.mu.Unlock()
		}
	}

	h.setConnected(true)
	return true
}

// Stop is a no-op; the HTTP actuator owns no timers.
func (h *HTTPActuator) Stop() {}

func (h *HTTPActuator) setConnected(connected bool) {
	h.mu.Lock()
	h.connected = connected
	h.mu.Unlock()
}

func (h *HTTPActuator) transition(next State) {
	h.mu.Lock()
	h.state = next
	h.mu.Unlock()
	if h.onState != nil {
		h.onState(h.rec.dev.ID, h.rec.dev.LaneID, next)
	}
}

// parseStateField maps status-payload state strings onto barrier states.
func parseStateField(s string) State {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "open", "opened", "up":
		return StateOpen
	case "closed", "close", "down":
		return StateClosed
	case "opening":
		return StateOpening
	case "closing":
		return StateClosing
	default:
		return StateUnknown
	}
}

// doWithRetry runs fn with the config's fixed-delay retry policy: one
// initial attempt plus the configured retries, sleeping RetryDelay
// between attempts. The last error is returned when the budget is
// exhausted.
func doWithRetry(ctx context.Context, sch sched.Scheduler, cfg device.ConnConfig, logger Logger, fn func(context.Context) error) error {
	var lastErr error
	attempts := cfg.Retries() + 1

	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			if err := sch.Sleep(ctx, cfg.RetryDelay()); err != nil {
				return err
			}
			logger.Debug("retrying command", "attempt", attempt+1, "of", attempts)
		}

		if lastErr = fn(ctx); lastErr == nil {
			return nil
		}
	}
	return lastErr
}
