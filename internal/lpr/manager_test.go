package lpr

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/gatewise/gatewise-core/internal/device"
	"github.com/gatewise/gatewise-core/internal/infrastructure/database"
	"github.com/gatewise/gatewise-core/internal/sched"

	_ "github.com/gatewise/gatewise-core/migrations"
)

func openTestDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.Open(database.Config{
		Path:        filepath.Join(t.TempDir(), "test.db"),
		WALMode:     true,
		BusyTimeout: 5000,
	})
	if err != nil {
		t.Fatalf("opening database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("migrating: %v", err)
	}
	return db
}

func seedLPRDevice(t *testing.T, repo device.Repository, id string) *device.Device {
	t.Helper()
	dev := lprDevice(id, device.ProtocolSimulated)
	if err := repo.Create(context.Background(), dev); err != nil {
		t.Fatalf("creating device: %v", err)
	}
	return dev
}

func newTestLPRManager(t *testing.T, deviceIDs ...string) (*Manager, device.Repository, *SQLiteEventRepository, chan PlateEvent) {
	t.Helper()
	db := openTestDB(t)
	repo := device.NewSQLiteRepository(db.DB)
	for _, id := range deviceIDs {
		seedLPRDevice(t, repo, id)
	}

	registry := device.NewRegistry(repo, nil)
	if err := registry.RefreshCache(context.Background()); err != nil {
		t.Fatalf("RefreshCache: %v", err)
	}

	events := NewSQLiteEventRepository(db.DB)
	broadcasts := make(chan PlateEvent, 64)

	mgr := NewManager(registry, repo, events, db.DB, sched.NewReal(), nil, ManagerConfig{
		SiteID:    "site-1",
		QueueSize: 8,
		OnCapture: func(event PlateEvent) { broadcasts <- event },
	})
	if err := mgr.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	t.Cleanup(mgr.Shutdown)

	return mgr, repo, events, broadcasts
}

func TestManagerPersistsAndBroadcastsCapture(t *testing.T) {
	mgr, repo, events, broadcasts := newTestLPRManager(t, "cam1")

	sim := mgr.controllers["cam1"].(*SimulatedLPR)
	if !sim.Inject(Capture{Plate: "ab 123 cd", Confidence: 0.92}) {
		t.Fatal("inject rejected")
	}

	var event PlateEvent
	select {
	case event = <-broadcasts:
	case <-time.After(2 * time.Second):
		t.Fatal("no broadcast received")
	}

	if event.RawPlate != "ab 123 cd" {
		t.Errorf("raw plate = %q", event.RawPlate)
	}
	if event.Plate != "AB123CD" {
		t.Errorf("normalized plate = %q, want AB123CD", event.Plate)
	}
	if event.SiteID != "site-1" {
		t.Errorf("site = %q", event.SiteID)
	}
	if event.Direction != device.DirectionEntry {
		t.Errorf("direction = %q", event.Direction)
	}

	// The broadcast fires after commit, so the row must be readable.
	stored, err := events.GetByID(context.Background(), event.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if stored.Plate != "AB123CD" || stored.Confidence != 0.92 {
		t.Errorf("stored = %+v", stored)
	}

	// Device health committed in the same transaction.
	dev, err := repo.GetByID(context.Background(), "cam1")
	if err != nil {
		t.Fatalf("GetByID device: %v", err)
	}
	if dev.Status != device.StatusOnline {
		t.Errorf("device status = %q, want online", dev.Status)
	}
	if dev.LastSeen == nil {
		t.Error("device last seen not written")
	}
}

func TestManagerInitializePersistsInitialConnectivity(t *testing.T) {
	_, repo, _, _ := newTestLPRManager(t, "cam1", "cam2")

	for _, id := range []string{"cam1", "cam2"} {
		dev, err := repo.GetByID(context.Background(), id)
		if err != nil {
			t.Fatalf("GetByID: %v", err)
		}
		if dev.Status != device.StatusOnline {
			t.Errorf("%s status = %q, want online", id, dev.Status)
		}
	}
}

func TestManagerGetAllStatuses(t *testing.T) {
	mgr, _, _, _ := newTestLPRManager(t, "cam1", "cam2", "cam3")

	statuses := mgr.GetAllStatuses()
	if len(statuses) != 3 {
		t.Fatalf("statuses = %d, want 3", len(statuses))
	}
	for _, status := range statuses {
		if !status.Online {
			t.Errorf("device %s should be online", status.DeviceID)
		}
	}
}

func TestManagerTriggerCaptureUnknownDevice(t *testing.T) {
	mgr, _, _, _ := newTestLPRManager(t, "cam1")

	if capture := mgr.TriggerCapture(context.Background(), "ghost"); capture != nil {
		t.Errorf("trigger for unknown device = %+v, want nil", capture)
	}
	if capture := mgr.LastCapture("ghost"); capture != nil {
		t.Errorf("last capture for unknown device = %+v, want nil", capture)
	}
}

func TestManagerShutdownIdempotent(t *testing.T) {
	mgr, _, _, _ := newTestLPRManager(t, "cam1")

	mgr.Shutdown()
	mgr.Shutdown()

	if statuses := mgr.GetAllStatuses(); len(statuses) != 0 {
		t.Errorf("statuses after shutdown = %d, want 0", len(statuses))
	}
}

func TestManagerSiteConfidenceGateAppliesToUnconfiguredDevice(t *testing.T) {
	db := openTestDB(t)
	repo := device.NewSQLiteRepository(db.DB)
	seedLPRDevice(t, repo, "cam1")

	registry := device.NewRegistry(repo, nil)
	if err := registry.RefreshCache(context.Background()); err != nil {
		t.Fatalf("RefreshCache: %v", err)
	}

	events := NewSQLiteEventRepository(db.DB)
	broadcasts := make(chan PlateEvent, 8)
	mgr := NewManager(registry, repo, events, db.DB, sched.NewReal(), nil, ManagerConfig{
		SiteID:        "site-1",
		MinConfidence: 0.9,
		OnCapture:     func(event PlateEvent) { broadcasts <- event },
	})
	if err := mgr.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	t.Cleanup(mgr.Shutdown)

	sim := mgr.controllers["cam1"].(*SimulatedLPR)

	// The device's conn blob sets no minimum, so the site-wide gate
	// governs.
	if sim.Inject(Capture{Plate: "LO111", Confidence: 0.8}) {
		t.Error("capture below the site gate should be rejected")
	}
	if !sim.Inject(Capture{Plate: "HI222", Confidence: 0.95}) {
		t.Error("capture above the site gate should be accepted")
	}

	select {
	case event := <-broadcasts:
		if event.RawPlate != "HI222" {
			t.Errorf("broadcast plate = %q, want HI222", event.RawPlate)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("accepted capture not broadcast")
	}
}

func TestManagerShutdownUnblocksPendingEmitter(t *testing.T) {
	db := openTestDB(t)
	repo := device.NewSQLiteRepository(db.DB)
	seedLPRDevice(t, repo, "cam1")

	registry := device.NewRegistry(repo, nil)
	if err := registry.RefreshCache(context.Background()); err != nil {
		t.Fatalf("RefreshCache: %v", err)
	}

	entered := make(chan struct{}, 8)
	release := make(chan struct{})
	events := NewSQLiteEventRepository(db.DB)
	mgr := NewManager(registry, repo, events, db.DB, sched.NewReal(), nil, ManagerConfig{
		SiteID:    "site-1",
		QueueSize: 1,
		OnCapture: func(PlateEvent) {
			entered <- struct{}{}
			<-release
		},
	})
	if err := mgr.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	sim := mgr.controllers["cam1"].(*SimulatedLPR)

	// Stall the consumer on the first capture, fill the queue with the
	// second, then leave a third emitter blocked on the queue send.
	sim.Inject(Capture{Plate: "AA111", Confidence: 0.9})
	select {
	case <-entered:
	case <-time.After(2 * time.Second):
		t.Fatal("consumer never picked up the first capture")
	}
	sim.Inject(Capture{Plate: "BB222", Confidence: 0.9})

	emitDone := make(chan struct{})
	go func() {
		defer close(emitDone)
		sim.Inject(Capture{Plate: "CC333", Confidence: 0.9})
	}()

	shutDone := make(chan struct{})
	go func() {
		defer close(shutDone)
		mgr.Shutdown()
	}()
	close(release)

	for _, done := range []chan struct{}{emitDone, shutDone} {
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Fatal("shutdown left a goroutine blocked")
		}
	}
}

func TestManagerQueueSerializesBursts(t *testing.T) {
	mgr, _, events, broadcasts := newTestLPRManager(t, "cam1")

	sim := mgr.controllers["cam1"].(*SimulatedLPR)
	const burst = 20
	for i := 0; i < burst; i++ {
		if !sim.Inject(Capture{Plate: "AB123CD", Confidence: 0.9}) {
			t.Fatalf("inject %d rejected", i)
		}
	}

	for i := 0; i < burst; i++ {
		select {
		case <-broadcasts:
		case <-time.After(5 * time.Second):
			t.Fatalf("broadcast %d not received", i)
		}
	}

	rows, err := events.ListByPlate(context.Background(), "AB123CD", 100)
	if err != nil {
		t.Fatalf("ListByPlate: %v", err)
	}
	if len(rows) != burst {
		t.Errorf("persisted rows = %d, want %d", len(rows), burst)
	}
}
