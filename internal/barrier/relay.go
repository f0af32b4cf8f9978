package barrier

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/gatewise/gatewise-core/internal/device"
	"github.com/gatewise/gatewise-core/internal/sched"
)

// Relay vendor profiles.
const (
	RelayKincony = "kincony" // 1-indexed path channels
	RelayShelly  = "shelly"  // 0-indexed query channels
	RelayCustom  = "custom"  // fully templated URLs
)

// BuildActionPath builds the vendor-specific request path for a relay
// action. It is a pure function of relay type, configured channel and
// action. Kincony boards address channels 1-indexed in the path; Shelly
// boards address them 0-indexed as a query parameter, so configured
// channel 1 maps to relay 0.
func BuildActionPath(relayType string, channel int, action Action) (string, error) {
	verb := "off"
	if action == ActionOpen {
		verb = "on"
	}

	switch relayType {
	case RelayKincony:
		return fmt.Sprintf("/relay/%d/%s", channel, verb), nil
	case RelayShelly:
		return fmt.Sprintf("/relay/%d?turn=%s", channel-1, verb), nil
	default:
		return "", fmt.Errorf("barrier: unknown relay type %q", relayType)
	}
}

// expandChannelTemplate substitutes the {channel} placeholder in a
// custom relay URL template.
func expandChannelTemplate(template string, channel int) string {
	return strings.ReplaceAll(template, "{channel}", strconv.Itoa(channel))
}

// RelayActuator drives a barrier arm wired to one output channel of a
// commodity relay board. It shares the HTTP actuator's retry semantics
// and additionally owns a cancellable auto-close timer armed on every
// successful open.
type RelayActuator struct {
	rec     recorder
	sch     sched.Scheduler
	logger  Logger
	onState StateListener
	client  *http.Client
	baseURL string

	mu        sync.Mutex
	state     State
	connected bool
	autoClose sched.Handle
}

// NewRelayActuator creates a relay-board barrier controller.
func NewRelayActuator(dev *device.Device, ledger Ledger, sch sched.Scheduler, logger Logger, onState StateListener) *RelayActuator {
	if logger == nil {
		logger = noopLogger{}
	}
	return &RelayActuator{
		rec:     recorder{ledger: ledger, dev: dev, logger: logger},
		sch:     sch,
		logger:  logger,
		onState: onState,
		client:  &http.Client{Timeout: dev.Conn.Timeout()},
		baseURL: fmt.Sprintf("http://%s:%d", dev.Conn.Host, dev.Conn.Port),
		state:   StateUnknown,
	}
}

// actionURL resolves the full request URL for an action.
func (r *RelayActuator) actionURL(action Action) (string, error) {
	cfg := r.rec.dev.Conn

	if cfg.RelayType == RelayCustom || cfg.RelayType == "" {
		template := cfg.CloseURL
		if action == ActionOpen {
			template = cfg.OpenURL
		}
		if template == "" {
			return "", fmt.Errorf("barrier: no %s URL template configured", action)
		}
		return expandChannelTemplate(template, cfg.Channel), nil
	}

	path, err := BuildActionPath(cfg.RelayType, cfg.Channel, action)
	if err != nil {
		return "", err
	}
	return r.baseURL + path, nil
}

// statusURL resolves the connectivity-probe URL.
func (r *RelayActuator) statusURL() string {
	cfg := r.rec.dev.Conn
	if cfg.RelayType == RelayCustom || cfg.RelayType == "" {
		if cfg.StatusURL != "" {
			return expandChannelTemplate(cfg.StatusURL, cfg.Channel)
		}
	}
	if cfg.RelayType == RelayShelly {
		return fmt.Sprintf("%s/relay/%d", r.baseURL, cfg.Channel-1)
	}
	return fmt.Sprintf("%s/relay/%d", r.baseURL, cfg.Channel)
}

// Open pulses the relay channel on and arms the auto-close timer.
func (r *RelayActuator) Open(ctx context.Context, correlationID string) Result {
	result := r.command(ctx, ActionOpen, correlationID, StateOpening, StateOpen)
	if result.Success {
		r.armAutoClose()
	}
	return result
}

// Close pulses the relay channel off, cancelling any pending auto-close.
func (r *RelayActuator) Close(ctx context.Context, correlationID string) Result {
	r.cancelAutoClose()
	return r.command(ctx, ActionClose, correlationID, StateClosing, StateClosed)
}

func (r *RelayActuator) command(ctx context.Context, action Action, correlationID string, transit, final State) Result {
	commandID, fail := r.rec.begin(ctx, action, correlationID, "")
	if fail != nil {
		return *fail
	}

	url, err := r.actionURL(action)
	if err != nil {
		return r.rec.failed(ctx, commandID, correlationID, err.Error(), r.State())
	}

	err = doWithRetry(ctx, r.sch, r.rec.dev.Conn, r.logger, func(ctx context.Context) error {
		return r.get(ctx, url)
	})
	if err != nil {
		r.logger.Warn("relay command failed",
			"device_id", r.rec.dev.ID, "action", action, "error", err)
		return r.rec.failed(ctx, commandID, correlationID, err.Error(), r.State())
	}

	r.transition(transit)
	r.transition(final)
	return r.rec.executed(ctx, commandID, correlationID, final)
}

func (r *RelayActuator) get(ctx context.Context, url string) error {
	ctx, cancel := context.WithTimeout(ctx, r.rec.dev.Conn.Timeout())
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	if r.rec.dev.Conn.Username != "" {
		req.SetBasicAuth(r.rec.dev.Conn.Username, r.rec.dev.Conn.Password)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("relay returned %d", resp.StatusCode)
	}
	return nil
}

// State returns the last observed barrier state.
func (r *RelayActuator) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// IsConnected reports the outcome of the last status probe.
func (r *RelayActuator) IsConnected() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.connected
}

// Probe fetches the relay channel status. Boards answer in several JSON
// shapes; anything unrecognized is treated as closed rather than an
// error.
func (r *RelayActuator) Probe(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, r.rec.dev.Conn.Timeout())
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.statusURL(), nil)
	if err != nil {
		r.setConnected(false)
		return false
	}
	if r.rec.dev.Conn.Username != "" {
		req.SetBasicAuth(r.rec.dev.Conn.Username, r.rec.dev.Conn.Password)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		r.setConnected(false)
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		r.setConnected(false)
		return false
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		r.setConnected(false)
		return false
	}

	state, recognized := ParseRelayStatus(body)
	if !recognized {
		r.logger.Warn("unrecognized relay status payload, assuming closed",
			"device_id", r.rec.dev.ID, "payload", string(body))
	}

	r.mu.Lock()
	r.state = state
	r.connected = true
	r.mu.Unlock()
	return true
}

// Stop cancels any pending auto-close timer.
func (r *RelayActuator) Stop() {
	r.cancelAutoClose()
}

func (r *RelayActuator) armAutoClose() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.autoClose != nil {
		r.autoClose.Stop()
	}
	r.autoClose = r.sch.AfterFunc(r.rec.dev.Conn.OpenDuration(), r.fireAutoClose)
}

func (r *RelayActuator) cancelAutoClose() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.autoClose != nil {
		r.autoClose.Stop()
		r.autoClose = nil
	}
}

// fireAutoClose issues the timed close with a fresh correlation ID so
// the ledger records the automatic action distinctly.
func (r *RelayActuator) fireAutoClose() {
	r.mu.Lock()
	open := r.state == StateOpen
	r.autoClose = nil
	r.mu.Unlock()
	if !open {
		return
	}

	result := r.Close(context.Background(), device.GenerateID())
	if !result.Success {
		r.logger.Error("auto-close failed",
			"device_id", r.rec.dev.ID, "error", result.Error)
	}
}

func (r *RelayActuator) setConnected(connected bool) {
	r.mu.Lock()
	r.connected = connected
	r.mu.Unlock()
}

func (r *RelayActuator) transition(next State) {
	r.mu.Lock()
	r.state = next
	r.mu.Unlock()
	if r.onState != nil {
		r.onState(r.rec.dev.ID, r.rec.dev.LaneID, next)
	}
}

// ParseRelayStatus interprets a relay status payload. It tolerates a
// boolean on-flag, a numeric status and a string state; the second
// return reports whether any shape matched.
func ParseRelayStatus(body []byte) (State, bool) {
	var payload map[string]json.RawMessage
	if err := json.Unmarshal(body, &payload); err != nil {
		return StateClosed, false
	}

	// Boolean flag shape, e.g. {"ison": true}.
	for _, key := range []string{"ison", "on", "open"} {
		if raw, ok := payload[key]; ok {
			var b bool
			if err := json.Unmarshal(raw, &b); err == nil {
				if b {
					return StateOpen, true
				}
				return StateClosed, true
			}
		}
	}

	// Numeric status shape, e.g. {"status": 1}.
	for _, key := range []string{"status", "relay", "value"} {
		if raw, ok := payload[key]; ok {
			var n float64
			if err := json.Unmarshal(raw, &n); err == nil {
				if n != 0 {
					return StateOpen, true
				}
				return StateClosed, true
			}
		}
	}

	// String state shape, e.g. {"state": "open"}.
	if raw, ok := payload["state"]; ok {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			if parsed := parseStateField(s); parsed != StateUnknown {
				return parsed, true
			}
		}
	}

	return StateClosed, false
}
