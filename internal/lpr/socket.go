package lpr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gatewise/gatewise-core/internal/device"
	"github.com/gatewise/gatewise-core/internal/sched"
)

// defaultTriggerWait is how long TriggerCapture waits after sending a
// capture request before returning the cache.
const defaultTriggerWait = time.Second

// socket read chunk size. Frames larger than one chunk accumulate in
// the growing buffer until their newline arrives.
const readChunkSize = 4096

// closeOnce wraps a channel with sync.Once to prevent double-close panics.
type closeOnce struct {
	ch   chan struct{}
	once sync.Once
}

func newCloseOnce() *closeOnce {
	return &closeOnce{ch: make(chan struct{})}
}

func (c *closeOnce) Close() {
	c.once.Do(func() { close(c.ch) })
}

func (c *closeOnce) Done() <-chan struct{} {
	return c.ch
}

// socketMessage is the newline-delimited wire format spoken by raw TCP
// LPR units. Type discriminates plate captures from heartbeat pongs.
type socketMessage struct {
	Type       string  `json:"type"`
	Plate      string  `json:"plate,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`
	Image      string  `json:"image,omitempty"`
	EventID    string  `json:"id,omitempty"`
	CapturedAt string  `json:"capturedAt,omitempty"`
}

// Socket message types.
const (
	msgCapture        = "capture"
	msgPong           = "pong"
	msgPing           = "ping"
	msgCaptureRequest = "capture_request"
)

// SplitFrames splits buffered socket bytes on newline delimiters. It
// returns the complete frames and the trailing bytes of any incomplete
// frame, which stay buffered until more data arrives.
func SplitFrames(buf []byte) (frames [][]byte, rest []byte) {
	for {
		idx := bytes.IndexByte(buf, '\n')
		if idx < 0 {
			return frames, buf
		}
		frame := bytes.TrimRight(buf[:idx], "\r")
		if len(frame) > 0 {
			frames = append(frames, frame)
		}
		buf = buf[idx+1:]
	}
}

// SocketController drives an LPR unit over a persistent raw TCP socket.
// Inbound bytes are framed on newlines and parsed as self-describing
// JSON messages; a heartbeat ping goes out on a fixed interval and a
// lost connection is re-dialed after a fixed delay.
type SocketController struct {
	dev    *device.Device
	sch    sched.Scheduler
	logger Logger
	emit   Emit

	triggerWait time.Duration

	mu          sync.Mutex
	conn        net.Conn
	lastSeen    *time.Time
	lastErr     string
	lastCapture *Capture

	connected atomic.Bool
	running   atomic.Bool
	done      *closeOnce
	loopsDone sync.WaitGroup
}

// SocketOption customizes a SocketController.
type SocketOption func(*SocketController)

// WithTriggerWait overrides the fixed wait after a capture request.
func WithTriggerWait(d time.Duration) SocketOption {
	return func(s *SocketController) {
		if d > 0 {
			s.triggerWait = d
		}
	}
}

// NewSocketController creates a TCP LPR controller for the device.
func NewSocketController(dev *device.Device, sch sched.Scheduler, logger Logger, emit Emit, opts ...SocketOption) *SocketController {
	if logger == nil {
		logger = noopLogger{}
	}
	applyConfidenceFloor(dev, 0)
	s := &SocketController{
		dev:         dev,
		sch:         sch,
		logger:      logger,
		emit:        emit,
		triggerWait: defaultTriggerWait,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Connect dials the unit and starts the receive and heartbeat loops.
// On dial failure the reconnect loop keeps trying in the background, so
// a false return still leaves the controller running.
func (s *SocketController) Connect(ctx context.Context) bool {
	if !s.running.CompareAndSwap(false, true) {
		return s.connected.Load()
	}
	s.done = newCloseOnce()

	ok := s.dial(ctx)

	s.loopsDone.Add(2)
	go s.receiveLoop()
	go s.heartbeatLoop()

	return ok
}

// Disconnect stops both loops and closes the socket. Idempotent.
func (s *SocketController) Disconnect() {
	if !s.running.CompareAndSwap(true, false) {
		return
	}
	s.done.Close()
	s.closeConn("")
	s.loopsDone.Wait()
}

// IsConnected reports whether the socket is currently established.
func (s *SocketController) IsConnected() bool {
	return s.connected.Load()
}

// LastCapture returns the most recent accepted capture.
func (s *SocketController) LastCapture() *Capture {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastCapture == nil {
		return nil
	}
	cpy := *s.lastCapture
	return &cpy
}

// TriggerCapture writes a capture request, waits a fixed interval and
// returns whatever the cache then holds. The returned capture is not
// correlated with the request; a capture accepted from an earlier event
// during the wait is indistinguishable from the requested one.
func (s *SocketController) TriggerCapture(ctx context.Context) *Capture {
	if err := s.send(socketMessage{Type: msgCaptureRequest}); err != nil {
		s.logger.Warn("capture request failed", "device_id", s.dev.ID, "error", err)
		return nil
	}
	if err := s.sch.Sleep(ctx, s.triggerWait); err != nil {
		return nil
	}
	return s.LastCapture()
}

// Status reports connectivity for the manager's status fan-out.
func (s *SocketController) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Status{
		DeviceID: s.dev.ID,
		Online:   s.connected.Load(),
		LastSeen: s.lastSeen,
		Error:    s.lastErr,
	}
}

func (s *SocketController) dial(ctx context.Context) bool {
	addr := net.JoinHostPort(s.dev.Conn.Host, fmt.Sprintf("%d", s.dev.Conn.Port))

	dialer := net.Dialer{Timeout: s.dev.Conn.Timeout()}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		s.mu.Lock()
		s.lastErr = err.Error()
		s.mu.Unlock()
		s.connected.Store(false)
		s.logger.Warn("lpr socket dial failed", "device_id", s.dev.ID, "addr", addr, "error", err)
		return false
	}

	s.mu.Lock()
	s.conn = conn
	s.lastErr = ""
	now := s.sch.Now()
	s.lastSeen = &now
	s.mu.Unlock()
	s.connected.Store(true)

	s.logger.Info("lpr socket connected", "device_id", s.dev.ID, "addr", addr)
	return true
}

// receiveLoop reads chunks into a growing buffer, splitting complete
// newline-delimited frames out as they arrive. On a read error it
// re-dials after the configured fixed delay until shutdown.
func (s *SocketController) receiveLoop() {
	defer s.loopsDone.Done()

	var buf []byte
	chunk := make([]byte, readChunkSize)

	for {
		select {
		case <-s.done.Done():
			return
		default:
		}

		conn := s.currentConn()
		if conn == nil {
			if !s.waitReconnect() {
				return
			}
			buf = buf[:0]
			continue
		}

		n, err := conn.Read(chunk)
		if n > 0 {
			buf = append(buf, chunk[:n]...)
			var frames [][]byte
			frames, buf = SplitFrames(buf)
			for _, frame := range frames {
				s.handleFrame(frame)
			}
		}
		if err != nil {
			if !s.running.Load() {
				return
			}
			s.closeConn(err.Error())
			s.logger.Warn("lpr socket read failed, reconnecting",
				"device_id", s.dev.ID, "error", err)
			if !s.waitReconnect() {
				return
			}
			buf = buf[:0]
		}
	}
}

// waitReconnect sleeps the fixed reconnect delay and re-dials. It
// returns false when shutdown is signalled.
func (s *SocketController) waitReconnect() bool {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-s.done.Done():
			cancel()
		case <-ctx.Done():
		}
	}()

	for {
		if err := s.sch.Sleep(ctx, s.dev.Conn.ReconnectDelay()); err != nil {
			return false
		}
		if s.dial(ctx) {
			return true
		}
		select {
		case <-s.done.Done():
			return false
		default:
		}
	}
}

// heartbeatLoop sends a ping on a fixed interval while connected.
func (s *SocketController) heartbeatLoop() {
	defer s.loopsDone.Done()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-s.done.Done():
			cancel()
		case <-ctx.Done():
		}
	}()

	for {
		if err := s.sch.Sleep(ctx, s.dev.Conn.Heartbeat()); err != nil {
			return
		}
		if !s.connected.Load() {
			continue
		}
		if err := s.send(socketMessage{Type: msgPing}); err != nil {
			s.logger.Debug("heartbeat write failed", "device_id", s.dev.ID, "error", err)
		}
	}
}

// handleFrame parses one newline-delimited message.
func (s *SocketController) handleFrame(frame []byte) {
	var msg socketMessage
	if err := json.Unmarshal(frame, &msg); err != nil {
		s.logger.Debug("discarding unparseable socket frame",
			"device_id", s.dev.ID, "error", err)
		return
	}

	switch msg.Type {
	case msgCapture:
		s.handleCapture(msg, frame)
	case msgPong:
		s.mu.Lock()
		now := s.sch.Now()
		s.lastSeen = &now
		s.mu.Unlock()
	default:
		s.logger.Debug("ignoring unknown socket message",
			"device_id", s.dev.ID, "type", msg.Type)
	}
}

func (s *SocketController) handleCapture(msg socketMessage, frame []byte) {
	if msg.Plate == "" {
		s.logger.Debug("discarding capture without plate", "device_id", s.dev.ID)
		return
	}
	if msg.Confidence < s.dev.Conn.MinConfidence {
		s.logger.Debug("discarding low-confidence capture",
			"device_id", s.dev.ID,
			"plate", msg.Plate,
			"confidence", msg.Confidence,
			"min_confidence", s.dev.Conn.MinConfidence)
		return
	}

	capture := Capture{
		Plate:         msg.Plate,
		Confidence:    msg.Confidence,
		ImageRef:      msg.Image,
		VendorEventID: msg.EventID,
		Raw:           json.RawMessage(bytes.Clone(frame)),
	}
	if msg.CapturedAt != "" {
		if t, err := time.Parse(time.RFC3339, msg.CapturedAt); err == nil {
			capture.CapturedAt = t.UTC()
		}
	}
	if capture.CapturedAt.IsZero() {
		capture.CapturedAt = s.sch.Now()
	}

	s.mu.Lock()
	cpy := capture
	s.lastCapture = &cpy
	now := s.sch.Now()
	s.lastSeen = &now
	s.mu.Unlock()

	if s.emit != nil {
		s.emit(capture)
	}
}

func (s *SocketController) send(msg socketMessage) error {
	conn := s.currentConn()
	if conn == nil {
		return fmt.Errorf("lpr: socket not connected")
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encoding message: %w", err)
	}
	data = append(data, '\n')

	conn.SetWriteDeadline(time.Now().Add(s.dev.Conn.Timeout()))
	if _, err := conn.Write(data); err != nil {
		return fmt.Errorf("writing message: %w", err)
	}
	return nil
}

func (s *SocketController) currentConn() net.Conn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn
}

func (s *SocketController) closeConn(errMsg string) {
	s.mu.Lock()
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
	if errMsg != "" {
		s.lastErr = errMsg
	}
	s.mu.Unlock()
	s.connected.Store(false)
}
