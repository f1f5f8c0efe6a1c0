// Package store persists connection events in Postgres.
package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/theexperiencecompany/gaia-sub002/internal/connection"
)

const defaultListLimit = 50

// EventLog is the append-only audit trail of connection transitions.
type EventLog struct {
	db *sql.DB
}

func NewEventLog(db *sql.DB) *EventLog {
	return &EventLog{db: db}
}

func (l *EventLog) DB() *sql.DB {
	return l.db
}

func (l *EventLog) Record(ctx context.Context, event connection.Event) error {
	const insert = `
		INSERT INTO connection_events (id, user_id, integration_id, operation, state, detail, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := l.db.ExecContext(ctx, insert,
		event.ID,
		event.UserID,
		event.IntegrationID,
		string(event.Operation),
		string(event.State),
		event.Detail,
		event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert connection event: %w", err)
	}
	return nil
}

// List returns the newest events of userID for integrationID, newest first.
// An empty integrationID lists every integration.
func (l *EventLog) List(ctx context.Context, userID, integrationID string, limit int) ([]connection.Event, error) {
	if limit <= 0 || limit > 500 {
		limit = defaultListLimit
	}

	const query = `
		SELECT id, user_id, integration_id, operation, state, detail, created_at
		FROM connection_events
		WHERE user_id = $1 AND ($2 = '' OR integration_id = $2)
		ORDER BY created_at DESC, id DESC
		LIMIT $3
	`
	rows, err := l.db.QueryContext(ctx, query, userID, integrationID, limit)
	if err != nil {
		return nil, fmt.Errorf("list connection events: %w", err)
	}
	defer rows.Close()

	events := make([]connection.Event, 0)
	for rows.Next() {
		var (
			event     connection.Event
			operation string
			state     string
		)
		if err := rows.Scan(&event.ID, &event.UserID, &event.IntegrationID, &operation, &state, &event.Detail, &event.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan connection event: %w", err)
		}
		event.Operation = connection.Operation(operation)
		event.State = connection.State(state)
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate connection events: %w", err)
	}
	return events, nil
}

// Ping reports whether the database answers.
func (l *EventLog) Ping(ctx context.Context) error {
	return l.db.PingContext(ctx)
}
