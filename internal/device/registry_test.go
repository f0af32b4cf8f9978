package device

import (
	"context"
	"errors"
	"testing"
	"time"
)

func strPtr(s string) *string { return &s }

func testDevice(id string, kind Kind, lane string) *Device {
	d := &Device{
		ID:        id,
		Name:      "test " + id,
		Kind:      kind,
		Protocol:  ProtocolSimulated,
		Status:    StatusUnknown,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	if lane != "" {
		d.LaneID = strPtr(lane)
	}
	d.Conn.ApplyDefaults()
	return d
}

func TestRegistryRefreshAndGet(t *testing.T) {
	repo := NewMockRepository()
	repo.Seed(
		testDevice("b1", KindBarrier, "lane-1"),
		testDevice("l1", KindLPR, "lane-1"),
	)

	reg := NewRegistry(repo, nil)
	if err := reg.RefreshCache(context.Background()); err != nil {
		t.Fatalf("RefreshCache: %v", err)
	}

	d, err := reg.GetDevice("b1")
	if err != nil {
		t.Fatalf("GetDevice: %v", err)
	}
	if d.Kind != KindBarrier {
		t.Errorf("kind = %q, want %q", d.Kind, KindBarrier)
	}

	if _, err := reg.GetDevice("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetDevice(missing) = %v, want ErrNotFound", err)
	}
}

func TestRegistryGetReturnsCopy(t *testing.T) {
	repo := NewMockRepository()
	repo.Seed(testDevice("b1", KindBarrier, "lane-1"))

	reg := NewRegistry(repo, nil)
	if err := reg.RefreshCache(context.Background()); err != nil {
		t.Fatalf("RefreshCache: %v", err)
	}

	d1, _ := reg.GetDevice("b1")
	d1.Name = "mutated"
	*d1.LaneID = "lane-hacked"

	d2, _ := reg.GetDevice("b1")
	if d2.Name == "mutated" {
		t.Error("cache entry mutated through returned device")
	}
	if *d2.LaneID != "lane-1" {
		t.Errorf("lane = %q, want lane-1", *d2.LaneID)
	}
}

func TestRegistryListByKind(t *testing.T) {
	repo := NewMockRepository()
	repo.Seed(
		testDevice("b1", KindBarrier, "lane-1"),
		testDevice("b2", KindBarrier, "lane-2"),
		testDevice("l1", KindLPR, "lane-1"),
	)

	reg := NewRegistry(repo, nil)
	if err := reg.RefreshCache(context.Background()); err != nil {
		t.Fatalf("RefreshCache: %v", err)
	}

	barriers := reg.ListByKind(KindBarrier)
	if len(barriers) != 2 {
		t.Errorf("barriers = %d, want 2", len(barriers))
	}
	lprs := reg.ListByKind(KindLPR)
	if len(lprs) != 1 {
		t.Errorf("lprs = %d, want 1", len(lprs))
	}
	kiosks := reg.ListByKind(KindKiosk)
	if len(kiosks) != 0 {
		t.Errorf("kiosks = %d, want 0", len(kiosks))
	}
}

func TestRegistryFindByLane(t *testing.T) {
	repo := NewMockRepository()
	repo.Seed(
		testDevice("b1", KindBarrier, "lane-1"),
		testDevice("l1", KindLPR, "lane-1"),
	)

	reg := NewRegistry(repo, nil)
	if err := reg.RefreshCache(context.Background()); err != nil {
		t.Fatalf("RefreshCache: %v", err)
	}

	d, err := reg.FindByLane(KindBarrier, "lane-1")
	if err != nil {
		t.Fatalf("FindByLane: %v", err)
	}
	if d.ID != "b1" {
		t.Errorf("device = %q, want b1", d.ID)
	}

	if _, err := reg.FindByLane(KindBarrier, "lane-9"); !errors.Is(err, ErrNoLaneDevice) {
		t.Errorf("FindByLane(lane-9) = %v, want ErrNoLaneDevice", err)
	}
	if _, err := reg.FindByLane(KindKiosk, "lane-1"); !errors.Is(err, ErrNoLaneDevice) {
		t.Errorf("FindByLane(kiosk) = %v, want ErrNoLaneDevice", err)
	}
}

func TestRegistrySetHealthWritesThrough(t *testing.T) {
	repo := NewMockRepository()
	repo.Seed(testDevice("b1", KindBarrier, "lane-1"))

	reg := NewRegistry(repo, nil)
	if err := reg.RefreshCache(context.Background()); err != nil {
		t.Fatalf("RefreshCache: %v", err)
	}

	now := time.Now().UTC()
	if err := reg.SetHealth(context.Background(), "b1", StatusOnline, now); err != nil {
		t.Fatalf("SetHealth: %v", err)
	}

	d, _ := reg.GetDevice("b1")
	if d.Status != StatusOnline {
		t.Errorf("status = %q, want online", d.Status)
	}
	if d.LastSeen == nil || !d.LastSeen.Equal(now) {
		t.Errorf("lastSeen = %v, want %v", d.LastSeen, now)
	}

	stored, _ := repo.GetByID(context.Background(), "b1")
	if stored.Status != StatusOnline {
		t.Errorf("persisted status = %q, want online", stored.Status)
	}
}

func TestRegistrySetHealthRepoFailureLeavesCache(t *testing.T) {
	repo := NewMockRepository()
	repo.Seed(testDevice("b1", KindBarrier, ""))
	repo.updateErr = errors.New("disk full")

	reg := NewRegistry(repo, nil)
	if err := reg.RefreshCache(context.Background()); err != nil {
		t.Fatalf("RefreshCache: %v", err)
	}

	if err := reg.SetHealth(context.Background(), "b1", StatusOffline, time.Now()); err == nil {
		t.Fatal("SetHealth should surface repository error")
	}

	d, _ := reg.GetDevice("b1")
	if d.Status != StatusUnknown {
		t.Errorf("status = %q, want unchanged unknown", d.Status)
	}
}
