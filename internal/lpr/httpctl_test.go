package lpr

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync/atomic"
	"testing"

	"github.com/gatewise/gatewise-core/internal/device"
	"github.com/gatewise/gatewise-core/internal/sched"
)

func httpLPRDevice(t *testing.T, serverURL, vendor string) *device.Device {
	t.Helper()
	u, err := url.Parse(serverURL)
	if err != nil {
		t.Fatalf("parsing test server URL: %v", err)
	}
	port, _ := strconv.Atoi(u.Port())

	dev := lprDevice("cam1", device.ProtocolHTTP)
	dev.Conn.Host = u.Hostname()
	dev.Conn.Port = port
	dev.Conn.Vendor = vendor
	dev.Conn.MinConfidence = 0.7
	return dev
}

func TestHTTPAdapterUnknownVendorWithoutPathsFails(t *testing.T) {
	dev := lprDevice("cam1", device.ProtocolHTTP)
	dev.Conn.Vendor = "mystery"

	if _, err := NewHTTPAdapter(dev, sched.NewReal(), nil, nil); err == nil {
		t.Error("unknown vendor without custom paths should fail")
	}
}

func TestHTTPAdapterLowConfidenceTriggerReturnsNil(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"plateUTF8": "AB123CD", "plateConfidence": 0.35}`))
	}))
	defer server.Close()

	dev := httpLPRDevice(t, server.URL, "axis")
	sink := &captureSink{}
	adapter, err := NewHTTPAdapter(dev, sched.NewReal(), nil, sink.emit)
	if err != nil {
		t.Fatalf("NewHTTPAdapter: %v", err)
	}

	if capture := adapter.TriggerCapture(context.Background()); capture != nil {
		t.Errorf("trigger = %+v, want nil for below-threshold confidence", capture)
	}
	if n := sink.count(); n != 0 {
		t.Errorf("notifications = %d, want 0", n)
	}
	if adapter.LastCapture() != nil {
		t.Error("rejected capture must not be cached")
	}
}

func TestHTTPAdapterAcceptedTriggerEmits(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"plateUTF8": "AB123CD", "plateConfidence": 0.93}`))
	}))
	defer server.Close()

	dev := httpLPRDevice(t, server.URL, "axis")
	sink := &captureSink{}
	adapter, err := NewHTTPAdapter(dev, sched.NewReal(), nil, sink.emit)
	if err != nil {
		t.Fatalf("NewHTTPAdapter: %v", err)
	}

	capture := adapter.TriggerCapture(context.Background())
	if capture == nil {
		t.Fatal("trigger returned nil for accepted capture")
	}
	if capture.Plate != "AB123CD" {
		t.Errorf("plate = %q", capture.Plate)
	}
	if n := sink.count(); n != 1 {
		t.Errorf("notifications = %d, want 1", n)
	}
	if last := adapter.LastCapture(); last == nil || last.Plate != "AB123CD" {
		t.Errorf("cached capture = %+v", last)
	}
}

func TestHTTPAdapterPollDeduplicatesByEventID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"plateUTF8": "AB123CD", "plateConfidence": 0.9, "eventID": "ev-1"}`))
	}))
	defer server.Close()

	dev := httpLPRDevice(t, server.URL, "axis")
	sink := &captureSink{}
	adapter, err := NewHTTPAdapter(dev, sched.NewReal(), nil, sink.emit)
	if err != nil {
		t.Fatalf("NewHTTPAdapter: %v", err)
	}

	// The same vendor event polled twice produces one notification.
	adapter.pollOnce(context.Background())
	adapter.pollOnce(context.Background())

	if n := sink.count(); n != 1 {
		t.Errorf("notifications = %d, want 1 after dedupe", n)
	}
}

func TestHTTPAdapterPollDeduplicatesWithoutEventID(t *testing.T) {
	var payload atomic.Value
	payload.Store(`{"plateUTF8": "AB123CD", "plateConfidence": 0.9, "timestamp": "2026-09-01T08:00:00Z"}`)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(payload.Load().(string)))
	}))
	defer server.Close()

	dev := httpLPRDevice(t, server.URL, "axis")
	sink := &captureSink{}
	adapter, err := NewHTTPAdapter(dev, sched.NewReal(), nil, sink.emit)
	if err != nil {
		t.Fatalf("NewHTTPAdapter: %v", err)
	}

	// A static latest-event payload with no vendor event ID must not be
	// re-accepted on every poll.
	adapter.pollOnce(context.Background())
	adapter.pollOnce(context.Background())
	if n := sink.count(); n != 1 {
		t.Errorf("notifications = %d, want 1 after dedupe on plate and time", n)
	}

	// A new capture time is a new event.
	payload.Store(`{"plateUTF8": "AB123CD", "plateConfidence": 0.9, "timestamp": "2026-09-01T08:00:05Z"}`)
	adapter.pollOnce(context.Background())
	if n := sink.count(); n != 2 {
		t.Errorf("notifications = %d, want 2 after a fresh capture time", n)
	}
}

func TestHTTPAdapterPollParseFailureIsSilent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html>not an event</html>`))
	}))
	defer server.Close()

	dev := httpLPRDevice(t, server.URL, "axis")
	sink := &captureSink{}
	adapter, err := NewHTTPAdapter(dev, sched.NewReal(), nil, sink.emit)
	if err != nil {
		t.Fatalf("NewHTTPAdapter: %v", err)
	}

	adapter.pollOnce(context.Background())

	if n := sink.count(); n != 0 {
		t.Errorf("notifications = %d, want 0 for unparseable payload", n)
	}
	// A reachable endpoint still counts as connected.
	if !adapter.IsConnected() {
		t.Error("adapter should be connected after successful poll request")
	}
}

func TestHTTPAdapterConnectProbesStatus(t *testing.T) {
	var probed bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/axis-cgi/systemready.cgi" {
			probed = true
		}
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	dev := httpLPRDevice(t, server.URL, "axis")
	adapter, err := NewHTTPAdapter(dev, sched.NewReal(), nil, nil)
	if err != nil {
		t.Fatalf("NewHTTPAdapter: %v", err)
	}
	defer adapter.Disconnect()

	if !adapter.Connect(context.Background()) {
		t.Fatal("connect should succeed")
	}
	if !probed {
		t.Error("connect did not probe the vendor status endpoint")
	}

	status := adapter.Status()
	if !status.Online || status.LastSeen == nil {
		t.Errorf("status = %+v", status)
	}

	// Disconnect twice must not panic or hang.
	adapter.Disconnect()
	adapter.Disconnect()
}

func TestHTTPAdapterCustomVendorHeaders(t *testing.T) {
	var gotHeader string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeader = r.Header.Get("X-Api-Key")
		w.Write([]byte(`{"plate": "XY999ZZ", "confidence": 0.95}`))
	}))
	defer server.Close()

	dev := httpLPRDevice(t, server.URL, "custom-board")
	dev.Conn.EventPath = "/events/latest"
	dev.Conn.CapturePath = "/capture"
	dev.Conn.CustomHeaders = map[string]string{"X-Api-Key": "secret"}

	adapter, err := NewHTTPAdapter(dev, sched.NewReal(), nil, nil)
	if err != nil {
		t.Fatalf("NewHTTPAdapter: %v", err)
	}

	capture := adapter.TriggerCapture(context.Background())
	if capture == nil || capture.Plate != "XY999ZZ" {
		t.Fatalf("capture = %+v", capture)
	}
	if gotHeader != "secret" {
		t.Errorf("X-Api-Key = %q, want secret", gotHeader)
	}
}
