package device

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Repository defines the interface for device persistence operations.
// This abstraction allows different implementations (SQLite, mock) and
// enables unit testing without database dependencies.
type Repository interface {
	// GetByID retrieves a device by its unique identifier.
	// Returns ErrNotFound if the device does not exist.
	GetByID(ctx context.Context, id string) (*Device, error)

	// List retrieves all devices.
	List(ctx context.Context) ([]Device, error)

	// ListByKind retrieves all devices of a specific kind.
	ListByKind(ctx context.Context, kind Kind) ([]Device, error)

	// Create inserts a new device.
	// Returns ErrExists if a device with the same ID already exists.
	Create(ctx context.Context, device *Device) error

	// UpdateHealth updates the connectivity status and last-seen time.
	// Returns ErrNotFound if the device does not exist.
	UpdateHealth(ctx context.Context, id string, status ConnStatus, lastSeen time.Time) error

	// UpdateHealthTx is UpdateHealth running on a caller-provided
	// transaction, so the LPR manager can make the plate-event insert and
	// health write atomic.
	UpdateHealthTx(ctx context.Context, tx *sql.Tx, id string, status ConnStatus, lastSeen time.Time) error
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const deviceColumns = `id, name, kind, lane_id, direction, protocol, conn_config,
	status, last_seen, created_at, updated_at`

// GetByID retrieves a device by its unique identifier.
func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*Device, error) {
	query := `SELECT ` + deviceColumns + ` FROM devices WHERE id = ?`

	row := r.db.QueryRowContext(ctx, query, id)
	device, err := scanDevice(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("querying device by id: %w", err)
	}
	return device, nil
}

// List retrieves all devices.
func (r *SQLiteRepository) List(ctx context.Context) ([]Device, error) {
	query := `SELECT ` + deviceColumns + ` FROM devices ORDER BY name`
	return r.queryDevices(ctx, query)
}

// ListByKind retrieves all devices of a specific kind.
func (r *SQLiteRepository) ListByKind(ctx context.Context, kind Kind) ([]Device, error) {
	query := `SELECT ` + deviceColumns + ` FROM devices WHERE kind = ? ORDER BY name`
	return r.queryDevices(ctx, query, string(kind))
}

// Create inserts a new device.
func (r *SQLiteRepository) Create(ctx context.Context, device *Device) error {
	connJSON, err := json.Marshal(device.Conn)
	if err != nil {
		return fmt.Errorf("marshalling conn config: %w", err)
	}

	now := time.Now().UTC()
	if device.CreatedAt.IsZero() {
		device.CreatedAt = now
	}
	device.UpdatedAt = now
	if device.Status == "" {
		device.Status = StatusUnknown
	}

	query := `
		INSERT INTO devices (
			id, name, kind, lane_id, direction, protocol, conn_config,
			status, last_seen, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = r.db.ExecContext(ctx, query,
		device.ID,
		device.Name,
		string(device.Kind),
		nullableString(device.LaneID),
		string(device.Direction),
		string(device.Protocol),
		string(connJSON),
		string(device.Status),
		nullableTime(device.LastSeen),
		device.CreatedAt.Format(time.RFC3339),
		device.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrExists
		}
		return fmt.Errorf("inserting device: %w", err)
	}

	return nil
}

// UpdateHealth updates the connectivity status and last-seen timestamp.
func (r *SQLiteRepository) UpdateHealth(ctx context.Context, id string, status ConnStatus, lastSeen time.Time) error {
	return r.updateHealth(ctx, r.db, id, status, lastSeen)
}

// UpdateHealthTx updates connectivity inside an existing transaction.
func (r *SQLiteRepository) UpdateHealthTx(ctx context.Context, tx *sql.Tx, id string, status ConnStatus, lastSeen time.Time) error {
	return r.updateHealth(ctx, tx, id, status, lastSeen)
}

// execer is the subset of sql.DB and sql.Tx used by updateHealth.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (r *SQLiteRepository) updateHealth(ctx context.Context, ex execer, id string, status ConnStatus, lastSeen time.Time) error {
	query := `
		UPDATE devices
		SET status = ?, last_seen = ?, updated_at = ?
		WHERE id = ?`

	result, err := ex.ExecContext(ctx, query,
		string(status),
		lastSeen.UTC().Format(time.RFC3339),
		time.Now().UTC().Format(time.RFC3339),
		id,
	)
	if err != nil {
		return fmt.Errorf("updating device health: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}

// queryDevices executes a query and returns a slice of devices.
func (r *SQLiteRepository) queryDevices(ctx context.Context, query string, args ...any) ([]Device, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying devices: %w", err)
	}
	defer rows.Close()

	var devices []Device
	for rows.Next() {
		device, err := scanDevice(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning device: %w", err)
		}
		devices = append(devices, *device)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating devices: %w", err)
	}

	return devices, nil
}

// rowScanner is an interface that sql.Row and sql.Rows both implement.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanDevice scans a row or rows result into a Device.
func scanDevice(scanner rowScanner) (*Device, error) {
	var d Device
	var laneID, lastSeen sql.NullString
	var kind, direction, protocol, status, connJSON string
	var createdAt, updatedAt string

	err := scanner.Scan(
		&d.ID,
		&d.Name,
		&kind,
		&laneID,
		&direction,
		&protocol,
		&connJSON,
		&status,
		&lastSeen,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	d.Kind = Kind(kind)
	d.Direction = Direction(direction)
	d.Protocol = Protocol(protocol)
	d.Status = ConnStatus(status)

	if laneID.Valid {
		d.LaneID = &laneID.String
	}
	if lastSeen.Valid {
		if t, err := time.Parse(time.RFC3339, lastSeen.String); err == nil {
			d.LastSeen = &t
		}
	}

	var parseErr error
	d.CreatedAt, parseErr = time.Parse(time.RFC3339, createdAt)
	if parseErr != nil {
		return nil, fmt.Errorf("parsing created_at: %w", parseErr)
	}
	d.UpdatedAt, parseErr = time.Parse(time.RFC3339, updatedAt)
	if parseErr != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", parseErr)
	}

	d.Conn, parseErr = ParseConnConfig([]byte(connJSON))
	if parseErr != nil {
		return nil, parseErr
	}

	return &d, nil
}

// nullableString returns a sql.NullString for optional string pointers.
func nullableString(s *string) sql.NullString {
	if s == nil || *s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

// nullableTime returns a sql.NullString for optional time pointers.
func nullableTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(time.RFC3339), Valid: true}
}

// isUniqueConstraintError checks for a SQLite unique constraint violation.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "unique constraint")
}
