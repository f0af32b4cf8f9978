package lpr

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gatewise/gatewise-core/internal/device"
	"github.com/gatewise/gatewise-core/internal/sched"
)

// defaultPollInterval is the event-poll period for HTTP vendor adapters.
const defaultPollInterval = time.Second

// HTTPAdapter drives an LPR unit through its vendor HTTP API using a
// registered vendor profile. Connect probes the status endpoint and
// starts a fixed-interval event poll; polled events are deduplicated
// against the last seen vendor event ID, falling back to the plate and
// capture time for vendors that report none, and gated on the device's
// minimum confidence before the capture notification fires.
type HTTPAdapter struct {
	dev     *device.Device
	profile Profile
	sch     sched.Scheduler
	logger  Logger
	emit    Emit
	client  *http.Client
	baseURL string

	pollInterval time.Duration

	mu             sync.Mutex
	connected      bool
	lastSeen       *time.Time
	lastErr        string
	lastCapture    *Capture
	lastEventID    string
	lastPlate      string
	lastCapturedAt time.Time
	running        bool
	pollCancel     context.CancelFunc
	pollDone       chan struct{}
}

// HTTPAdapterOption customizes an HTTPAdapter.
type HTTPAdapterOption func(*HTTPAdapter)

// WithPollInterval overrides the event-poll period.
func WithPollInterval(d time.Duration) HTTPAdapterOption {
	return func(a *HTTPAdapter) {
		if d > 0 {
			a.pollInterval = d
		}
	}
}

// NewHTTPAdapter creates an HTTP LPR controller for the device. The
// vendor profile comes from the registered table, or from the device's
// custom path overrides when the vendor has no built-in profile.
func NewHTTPAdapter(dev *device.Device, sch sched.Scheduler, logger Logger, emit Emit, opts ...HTTPAdapterOption) (*HTTPAdapter, error) {
	if logger == nil {
		logger = noopLogger{}
	}
	applyConfidenceFloor(dev, 0)

	cfg := dev.Conn
	profile, ok := VendorProfile(cfg.Vendor)
	if !ok {
		if cfg.EventPath == "" {
			return nil, fmt.Errorf("%w: %q and no custom paths", ErrUnknownVendor, cfg.Vendor)
		}
		profile = customProfile(cfg.EventPath, cfg.StatusPath, cfg.CapturePath, cfg.CustomParams)
	}
	// Per-device path overrides win over the profile defaults.
	if cfg.EventPath != "" {
		profile.EventPath = cfg.EventPath
	}
	if cfg.StatusPath != "" {
		profile.StatusPath = cfg.StatusPath
	}
	if cfg.CapturePath != "" {
		profile.CapturePath = cfg.CapturePath
	}

	return &HTTPAdapter{
		dev:          dev,
		profile:      profile,
		sch:          sch,
		logger:       logger,
		emit:         emit,
		client:       &http.Client{Timeout: cfg.Timeout()},
		baseURL:      fmt.Sprintf("http://%s:%d", cfg.Host, cfg.Port),
		pollInterval: defaultPollInterval,
	}, nil
}

// Connect probes the status endpoint and starts the event-poll loop.
func (a *HTTPAdapter) Connect(ctx context.Context) bool {
	online := a.probe(ctx)

	a.mu.Lock()
	if !a.running {
		a.running = true
		pollCtx, cancel := context.WithCancel(context.Background())
		a.pollCancel = cancel
		a.pollDone = make(chan struct{})
		go a.pollLoop(pollCtx)
	}
	a.mu.Unlock()

	return online
}

// Disconnect stops the poll loop. Idempotent.
func (a *HTTPAdapter) Disconnect() {
	a.mu.Lock()
	if !a.running {
		a.mu.Unlock()
		return
	}
	a.running = false
	cancel := a.pollCancel
	done := a.pollDone
	a.connected = false
	a.mu.Unlock()

	cancel()
	<-done
}

// IsConnected reports the current link state.
func (a *HTTPAdapter) IsConnected() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.connected
}

// LastCapture returns the most recent accepted capture.
func (a *HTTPAdapter) LastCapture() *Capture {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.lastCapture == nil {
		return nil
	}
	cpy := *a.lastCapture
	return &cpy
}

// TriggerCapture requests a recognition via the vendor capture endpoint.
func (a *HTTPAdapter) TriggerCapture(ctx context.Context) *Capture {
	if a.profile.CapturePath == "" {
		return nil
	}

	body, err := a.get(ctx, a.profile.CapturePath)
	if err != nil {
		a.logger.Warn("capture request failed", "device_id", a.dev.ID, "error", err)
		return nil
	}

	capture, err := a.profile.Parse(body)
	if err != nil {
		a.logger.Debug("discarding unparseable capture payload",
			"device_id", a.dev.ID, "error", err)
		return nil
	}
	if !a.accept(capture) {
		return nil
	}
	return capture
}

// Status reports connectivity for the manager's status fan-out.
func (a *HTTPAdapter) Status() Status {
	a.mu.Lock()
	defer a.mu.Unlock()
	return Status{
		DeviceID: a.dev.ID,
		Online:   a.connected,
		LastSeen: a.lastSeen,
		Error:    a.lastErr,
	}
}

// pollLoop fetches the vendor event endpoint on a fixed interval.
func (a *HTTPAdapter) pollLoop(ctx context.Context) {
	defer close(a.pollDone)

	for {
		if err := a.sch.Sleep(ctx, a.pollInterval); err != nil {
			return
		}
		a.pollOnce(ctx)
	}
}

func (a *HTTPAdapter) pollOnce(ctx context.Context) {
	body, err := a.get(ctx, a.profile.EventPath)
	if err != nil {
		a.setConnected(false, err.Error())
		return
	}
	a.setConnected(true, "")

	capture, err := a.profile.Parse(body)
	if err != nil {
		a.logger.Debug("discarding unparseable event payload",
			"device_id", a.dev.ID, "error", err)
		return
	}

	// Deduplicate against the single last-seen vendor event ID. Vendors
	// that report no ID fall back to the (plate, capture time) pair, so a
	// static latest-event payload is not re-accepted every poll.
	a.mu.Lock()
	var duplicate bool
	if capture.VendorEventID != "" {
		duplicate = capture.VendorEventID == a.lastEventID
	} else if !capture.CapturedAt.IsZero() {
		duplicate = capture.Plate == a.lastPlate && capture.CapturedAt.Equal(a.lastCapturedAt)
	}
	if !duplicate {
		a.lastEventID = capture.VendorEventID
		a.lastPlate = capture.Plate
		a.lastCapturedAt = capture.CapturedAt
	}
	a.mu.Unlock()
	if duplicate {
		return
	}

	a.accept(capture)
}

// accept applies the confidence gate; accepted captures are cached and
// announced, rejected ones are dropped before any notification.
func (a *HTTPAdapter) accept(capture *Capture) bool {
	if capture.Confidence < a.dev.Conn.MinConfidence {
		a.logger.Debug("discarding low-confidence capture",
			"device_id", a.dev.ID,
			"plate", capture.Plate,
			"confidence", capture.Confidence,
			"min_confidence", a.dev.Conn.MinConfidence)
		return false
	}

	if capture.CapturedAt.IsZero() {
		capture.CapturedAt = a.sch.Now()
	}

	a.mu.Lock()
	cpy := *capture
	a.lastCapture = &cpy
	a.mu.Unlock()

	if a.emit != nil {
		a.emit(*capture)
	}
	return true
}

func (a *HTTPAdapter) probe(ctx context.Context) bool {
	if a.profile.StatusPath == "" {
		a.setConnected(true, "")
		return true
	}
	if _, err := a.get(ctx, a.profile.StatusPath); err != nil {
		a.setConnected(false, err.Error())
		return false
	}
	a.setConnected(true, "")
	return true
}

func (a *HTTPAdapter) get(ctx context.Context, path string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, a.dev.Conn.Timeout())
	defer cancel()

	reqURL := a.baseURL + path
	if len(a.dev.Conn.CustomParams) > 0 {
		u, err := url.Parse(reqURL)
		if err == nil {
			q := u.Query()
			for k, v := range a.dev.Conn.CustomParams {
				q.Set(k, v)
			}
			u.RawQuery = q.Encode()
			reqURL = u.String()
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	if a.dev.Conn.Username != "" {
		req.SetBasicAuth(a.dev.Conn.Username, a.dev.Conn.Password)
	}
	for k, v := range a.dev.Conn.CustomHeaders {
		req.Header.Set(k, v)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("vendor returned %d", resp.StatusCode)
	}

	return io.ReadAll(io.LimitReader(resp.Body, 1<<20))
}

func (a *HTTPAdapter) setConnected(connected bool, errMsg string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.connected = connected
	a.lastErr = errMsg
	if connected {
		now := a.sch.Now()
		a.lastSeen = &now
	}
}
