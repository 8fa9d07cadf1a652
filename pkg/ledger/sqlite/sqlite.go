// Package sqlite provides a SQLite-backed ledger driver.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/papercomputeco/engram/pkg/ledger"
	"github.com/papercomputeco/engram/pkg/memory"
)

// Driver implements ledger.Driver using SQLite.
type Driver struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewDriver creates a new SQLite-backed ledger driver.
// The dbPath can be a file path or ":memory:" for an in-memory database.
func NewDriver(dbPath string, logger *zap.Logger) (*Driver, error) {
	if dbPath == "" {
		return nil, fmt.Errorf("database path is required")
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS history_events (
			event_id TEXT PRIMARY KEY,
			memory_id TEXT NOT NULL,
			event_type TEXT NOT NULL,
			previous_content TEXT NOT NULL DEFAULT '',
			new_content TEXT NOT NULL DEFAULT '',
			actor TEXT NOT NULL,
			user_id TEXT NOT NULL DEFAULT '',
			agent_id TEXT NOT NULL DEFAULT '',
			run_id TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMP NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_history_events_memory_id ON history_events(memory_id)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating history table: %w", err)
	}

	logger.Info("sqlite ledger driver initialized",
		zap.String("db_path", dbPath),
	)

	return &Driver{
		db:     db,
		logger: logger,
	}, nil
}

// Append adds an event to the ledger.
func (d *Driver) Append(ctx context.Context, event *ledger.Event) error {
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO history_events(event_id, memory_id, event_type, previous_content, new_content, actor, user_id, agent_id, run_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		event.ID, event.MemoryID, string(event.Type),
		event.PreviousContent, event.NewContent, event.Actor,
		event.Scope.UserID, event.Scope.AgentID, event.Scope.RunID,
		event.CreatedAt.UTC(),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return ledger.ErrConflict
		}
		return fmt.Errorf("%w: appending event %s: %v", ledger.ErrUnavailable, event.ID, err)
	}

	d.logger.Debug("appended history event",
		zap.String("event_id", event.ID),
		zap.String("memory_id", event.MemoryID),
		zap.String("event_type", string(event.Type)),
	)

	return nil
}

// Events returns all events for a memory ID in append order.
func (d *Driver) Events(ctx context.Context, memoryID string) ([]*ledger.Event, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT event_id, memory_id, event_type, previous_content, new_content, actor, user_id, agent_id, run_id, created_at
		FROM history_events
		WHERE memory_id = ?
		ORDER BY created_at, rowid`, memoryID)
	if err != nil {
		return nil, fmt.Errorf("%w: querying events for %s: %v", ledger.ErrUnavailable, memoryID, err)
	}
	defer rows.Close()

	var events []*ledger.Event
	for rows.Next() {
		var (
			e         ledger.Event
			eventType string
			scope     memory.Scope
		)
		if err := rows.Scan(
			&e.ID, &e.MemoryID, &eventType, &e.PreviousContent, &e.NewContent,
			&e.Actor, &scope.UserID, &scope.AgentID, &scope.RunID, &e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning event: %w", err)
		}

		e.Type = ledger.EventType(eventType)
		e.Scope = scope
		events = append(events, &e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating events: %w", err)
	}

	return events, nil
}

// Close closes the underlying database connection.
func (d *Driver) Close() error {
	return d.db.Close()
}

var _ ledger.Driver = (*Driver)(nil)
