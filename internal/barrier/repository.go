package barrier

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Command is a persisted record of one barrier action attempt.
type Command struct {
	ID            string        `json:"id"`
	DeviceID      string        `json:"device_id"`
	LaneID        *string       `json:"lane_id,omitempty"`
	Action        Action        `json:"action"`
	Reason        string        `json:"reason,omitempty"`
	CorrelationID string        `json:"correlation_id"`
	Status        CommandStatus `json:"status"`
	Error         string        `json:"error,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
	ExecutedAt    *time.Time    `json:"executed_at,omitempty"`
}

// Ledger persists barrier command attempts. A row is created PENDING
// before the protocol action starts and marked EXECUTED or FAILED by
// correlation ID before the issuing call returns.
type Ledger interface {
	CreatePending(ctx context.Context, cmd *Command) error
	MarkExecuted(ctx context.Context, correlationID string, executedAt time.Time) error
	MarkFailed(ctx context.Context, correlationID, reason string, executedAt time.Time) error
	GetByCorrelationID(ctx context.Context, correlationID string) (*Command, error)
	ListByDevice(ctx context.Context, deviceID string, limit int) ([]Command, error)
	ListRecent(ctx context.Context, limit int) ([]Command, error)
}

// SQLiteLedger implements Ledger using SQLite.
type SQLiteLedger struct {
	db *sql.DB
}

// NewSQLiteLedger creates a new SQLite-backed command ledger.
func NewSQLiteLedger(db *sql.DB) *SQLiteLedger {
	return &SQLiteLedger{db: db}
}

const commandColumns = `id, device_id, lane_id, action, reason, correlation_id,
	status, error, created_at, executed_at`

// CreatePending inserts a new command row with status PENDING.
func (l *SQLiteLedger) CreatePending(ctx context.Context, cmd *Command) error {
	if cmd.CreatedAt.IsZero() {
		cmd.CreatedAt = time.Now().UTC()
	}
	cmd.Status = CommandPending

	query := `
		INSERT INTO barrier_commands (
			id, device_id, lane_id, action, reason, correlation_id,
			status, error, created_at, executed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, '', ?, NULL)`

	var laneID sql.NullString
	if cmd.LaneID != nil && *cmd.LaneID != "" {
		laneID = sql.NullString{String: *cmd.LaneID, Valid: true}
	}

	_, err := l.db.ExecContext(ctx, query,
		cmd.ID,
		cmd.DeviceID,
		laneID,
		string(cmd.Action),
		cmd.Reason,
		cmd.CorrelationID,
		string(CommandPending),
		cmd.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting command: %w", err)
	}
	return nil
}

// MarkExecuted transitions the PENDING row for correlationID to EXECUTED.
func (l *SQLiteLedger) MarkExecuted(ctx context.Context, correlationID string, executedAt time.Time) error {
	return l.markTerminal(ctx, correlationID, CommandExecuted, "", executedAt)
}

// MarkFailed transitions the PENDING row for correlationID to FAILED.
func (l *SQLiteLedger) MarkFailed(ctx context.Context, correlationID, reason string, executedAt time.Time) error {
	return l.markTerminal(ctx, correlationID, CommandFailed, reason, executedAt)
}

func (l *SQLiteLedger) markTerminal(ctx context.Context, correlationID string, status CommandStatus, reason string, executedAt time.Time) error {
	query := `
		UPDATE barrier_commands
		SET status = ?, error = ?, executed_at = ?
		WHERE correlation_id = ? AND status = ?`

	result, err := l.db.ExecContext(ctx, query,
		string(status),
		reason,
		executedAt.UTC().Format(time.RFC3339),
		correlationID,
		string(CommandPending),
	)
	if err != nil {
		return fmt.Errorf("marking command %s: %w", status, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		// Distinguish a missing row from one already terminal.
		if _, getErr := l.GetByCorrelationID(ctx, correlationID); getErr != nil {
			return getErr
		}
		return ErrNotPending
	}
	return nil
}

// GetByCorrelationID retrieves the command row for a correlation ID.
func (l *SQLiteLedger) GetByCorrelationID(ctx context.Context, correlationID string) (*Command, error) {
	query := `SELECT ` + commandColumns + ` FROM barrier_commands WHERE correlation_id = ?`

	row := l.db.QueryRowContext(ctx, query, correlationID)
	cmd, err := scanCommand(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrCommandNotFound
		}
		return nil, fmt.Errorf("querying command: %w", err)
	}
	return cmd, nil
}

// ListByDevice retrieves the most recent commands for one device.
func (l *SQLiteLedger) ListByDevice(ctx context.Context, deviceID string, limit int) ([]Command, error) {
	query := `SELECT ` + commandColumns + `
		FROM barrier_commands WHERE device_id = ?
		ORDER BY created_at DESC LIMIT ?`
	return l.queryCommands(ctx, query, deviceID, normalizeLimit(limit))
}

// ListRecent retrieves the most recent commands across all devices.
func (l *SQLiteLedger) ListRecent(ctx context.Context, limit int) ([]Command, error) {
	query := `SELECT ` + commandColumns + `
		FROM barrier_commands ORDER BY created_at DESC LIMIT ?`
	return l.queryCommands(ctx, query, normalizeLimit(limit))
}

func normalizeLimit(limit int) int {
	if limit <= 0 || limit > 500 {
		return 100
	}
	return limit
}

func (l *SQLiteLedger) queryCommands(ctx context.Context, query string, args ...any) ([]Command, error) {
	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying commands: %w", err)
	}
	defer rows.Close()

	var commands []Command
	for rows.Next() {
		cmd, err := scanCommand(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning command: %w", err)
		}
		commands = append(commands, *cmd)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating commands: %w", err)
	}
	return commands, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCommand(scanner rowScanner) (*Command, error) {
	var cmd Command
	var laneID, executedAt sql.NullString
	var action, status, createdAt string

	err := scanner.Scan(
		&cmd.ID,
		&cmd.DeviceID,
		&laneID,
		&action,
		&cmd.Reason,
		&cmd.CorrelationID,
		&status,
		&cmd.Error,
		&createdAt,
		&executedAt,
	)
	if err != nil {
		return nil, err
	}

	cmd.Action = Action(action)
	cmd.Status = CommandStatus(status)

	if laneID.Valid {
		cmd.LaneID = &laneID.String
	}
	if executedAt.Valid {
		if t, err := time.Parse(time.RFC3339, executedAt.String); err == nil {
			cmd.ExecutedAt = &t
		}
	}

	var parseErr error
	cmd.CreatedAt, parseErr = time.Parse(time.RFC3339, createdAt)
	if parseErr != nil {
		return nil, fmt.Errorf("parsing created_at: %w", parseErr)
	}

	return &cmd, nil
}
