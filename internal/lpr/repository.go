package lpr

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/gatewise/gatewise-core/internal/device"
)

// PlateEvent is a persisted accepted recognition.
type PlateEvent struct {
	ID         string           `json:"id"`
	SiteID     string           `json:"site_id"`
	DeviceID   string           `json:"device_id"`
	LaneID     *string          `json:"lane_id,omitempty"`
	Direction  device.Direction `json:"direction"`
	RawPlate   string           `json:"raw_plate"`
	Plate      string           `json:"plate"`
	Confidence float64          `json:"confidence"`
	ImageRef   string           `json:"image_ref,omitempty"`
	SessionID  *string          `json:"session_id,omitempty"`
	CapturedAt time.Time        `json:"captured_at"`
	ReceivedAt time.Time        `json:"received_at"`
}

// EventRepository persists the plate event ledger.
type EventRepository interface {
	InsertTx(ctx context.Context, tx *sql.Tx, event *PlateEvent) error
	GetByID(ctx context.Context, id string) (*PlateEvent, error)
	ListRecent(ctx context.Context, limit int) ([]PlateEvent, error)
	ListByLane(ctx context.Context, laneID string, limit int) ([]PlateEvent, error)
	ListByPlate(ctx context.Context, plate string, limit int) ([]PlateEvent, error)
	LinkSession(ctx context.Context, eventID, sessionID string) error
}

// SQLiteEventRepository implements EventRepository using SQLite.
type SQLiteEventRepository struct {
	db *sql.DB
}

// NewSQLiteEventRepository creates a SQLite-backed plate event ledger.
func NewSQLiteEventRepository(db *sql.DB) *SQLiteEventRepository {
	return &SQLiteEventRepository{db: db}
}

const eventColumns = `id, site_id, device_id, lane_id, direction, raw_plate, plate,
	confidence, image_ref, session_id, captured_at, received_at`

// InsertTx inserts a plate event inside the caller's transaction so the
// event row and the device health update commit atomically.
func (r *SQLiteEventRepository) InsertTx(ctx context.Context, tx *sql.Tx, event *PlateEvent) error {
	query := `
		INSERT INTO plate_events (
			id, site_id, device_id, lane_id, direction, raw_plate, plate,
			confidence, image_ref, session_id, captured_at, received_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	var laneID, sessionID sql.NullString
	if event.LaneID != nil && *event.LaneID != "" {
		laneID = sql.NullString{String: *event.LaneID, Valid: true}
	}
	if event.SessionID != nil && *event.SessionID != "" {
		sessionID = sql.NullString{String: *event.SessionID, Valid: true}
	}

	_, err := tx.ExecContext(ctx, query,
		event.ID,
		event.SiteID,
		event.DeviceID,
		laneID,
		string(event.Direction),
		event.RawPlate,
		event.Plate,
		event.Confidence,
		event.ImageRef,
		sessionID,
		event.CapturedAt.UTC().Format(time.RFC3339),
		event.ReceivedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting plate event: %w", err)
	}
	return nil
}

// GetByID retrieves a plate event.
func (r *SQLiteEventRepository) GetByID(ctx context.Context, id string) (*PlateEvent, error) {
	query := `SELECT ` + eventColumns + ` FROM plate_events WHERE id = ?`

	row := r.db.QueryRowContext(ctx, query, id)
	event, err := scanEvent(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrEventNotFound
		}
		return nil, fmt.Errorf("querying plate event: %w", err)
	}
	return event, nil
}

// ListRecent retrieves the newest events across all devices.
func (r *SQLiteEventRepository) ListRecent(ctx context.Context, limit int) ([]PlateEvent, error) {
	query := `SELECT ` + eventColumns + `
		FROM plate_events ORDER BY received_at DESC LIMIT ?`
	return r.queryEvents(ctx, query, normalizeLimit(limit))
}

// ListByLane retrieves the newest events for one lane.
func (r *SQLiteEventRepository) ListByLane(ctx context.Context, laneID string, limit int) ([]PlateEvent, error) {
	query := `SELECT ` + eventColumns + `
		FROM plate_events WHERE lane_id = ?
		ORDER BY received_at DESC LIMIT ?`
	return r.queryEvents(ctx, query, laneID, normalizeLimit(limit))
}

// ListByPlate retrieves the newest events for one normalized plate.
func (r *SQLiteEventRepository) ListByPlate(ctx context.Context, plate string, limit int) ([]PlateEvent, error) {
	query := `SELECT ` + eventColumns + `
		FROM plate_events WHERE plate = ?
		ORDER BY received_at DESC LIMIT ?`
	return r.queryEvents(ctx, query, plate, normalizeLimit(limit))
}

// LinkSession attaches a downstream parking session to an event.
func (r *SQLiteEventRepository) LinkSession(ctx context.Context, eventID, sessionID string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE plate_events SET session_id = ? WHERE id = ?`, sessionID, eventID)
	if err != nil {
		return fmt.Errorf("linking session: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrEventNotFound
	}
	return nil
}

func normalizeLimit(limit int) int {
	if limit <= 0 || limit > 500 {
		return 100
	}
	return limit
}

func (r *SQLiteEventRepository) queryEvents(ctx context.Context, query string, args ...any) ([]PlateEvent, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying plate events: %w", err)
	}
	defer rows.Close()

	var events []PlateEvent
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning plate event: %w", err)
		}
		events = append(events, *event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating plate events: %w", err)
	}
	return events, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(scanner rowScanner) (*PlateEvent, error) {
	var e PlateEvent
	var laneID, sessionID sql.NullString
	var direction, capturedAt, receivedAt string

	err := scanner.Scan(
		&e.ID,
		&e.SiteID,
		&e.DeviceID,
		&laneID,
		&direction,
		&e.RawPlate,
		&e.Plate,
		&e.Confidence,
		&e.ImageRef,
		&sessionID,
		&capturedAt,
		&receivedAt,
	)
	if err != nil {
		return nil, err
	}

	e.Direction = device.Direction(direction)
	if laneID.Valid {
		e.LaneID = &laneID.String
	}
	if sessionID.Valid {
		e.SessionID = &sessionID.String
	}

	var parseErr error
	e.CapturedAt, parseErr = time.Parse(time.RFC3339, capturedAt)
	if parseErr != nil {
		return nil, fmt.Errorf("parsing captured_at: %w", parseErr)
	}
	e.ReceivedAt, parseErr = time.Parse(time.RFC3339, receivedAt)
	if parseErr != nil {
		return nil, fmt.Errorf("parsing received_at: %w", parseErr)
	}

	return &e, nil
}
