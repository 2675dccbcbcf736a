// Package journal records session lifecycle events to a SQL store.
// It implements arena.EventRecorder; recording is best-effort and never
// fails the operation that produced the event.
package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq" // PostgreSQL driver
)

// Event is one recorded lifecycle event
type Event struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	SessionID string          `json:"session_id,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// Service provides event journaling over a SQL database
type Service struct {
	db *sql.DB
}

// Open connects to the journal database
func Open(driver, dsn string) (*Service, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping journal database: %w", err)
	}
	return &Service{db: db}, nil
}

// New wraps an existing database connection
func New(db *sql.DB) *Service {
	return &Service{db: db}
}

// Migrate creates the journal schema
func (s *Service) Migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS session_events (
		id UUID PRIMARY KEY,
		type VARCHAR(64) NOT NULL,
		session_id VARCHAR(128),
		timestamp TIMESTAMP NOT NULL,
		data JSONB
	);
	CREATE INDEX IF NOT EXISTS idx_session_events_session ON session_events(session_id);
	CREATE INDEX IF NOT EXISTS idx_session_events_timestamp ON session_events(timestamp);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to migrate journal: %w", err)
	}
	return nil
}

// Record stores one event. Failures are logged and swallowed so a broken
// journal cannot interrupt a live session.
func (s *Service) Record(ctx context.Context, event, sessionID string, data interface{}) {
	if err := s.insert(ctx, event, sessionID, data); err != nil {
		log.Printf("journal: failed to record %s: %v", event, err)
	}
}

func (s *Service) insert(ctx context.Context, event, sessionID string, data interface{}) error {
	var payload []byte
	if data != nil {
		var err error
		if payload, err = json.Marshal(data); err != nil {
			return err
		}
	}

	var sid sql.NullString
	if sessionID != "" {
		sid = sql.NullString{String: sessionID, Valid: true}
	}
	var raw sql.NullString
	if payload != nil {
		raw = sql.NullString{String: string(payload), Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO session_events (id, type, session_id, timestamp, data)
		VALUES ($1, $2, $3, $4, $5)
	`, uuid.New().String(), event, sid, time.Now().UTC(), raw)
	return err
}

// Filter defines criteria for reading back events
type Filter struct {
	SessionID string
	Type      string
	From      time.Time
	To        time.Time
	Limit     int
}

// Events retrieves recorded events with optional filtering
func (s *Service) Events(ctx context.Context, filter *Filter) ([]*Event, error) {
	query := `SELECT id, type, session_id, timestamp, data FROM session_events WHERE 1=1`
	args := []interface{}{}
	paramIdx := 1

	if filter != nil {
		if filter.SessionID != "" {
			query += fmt.Sprintf(" AND session_id = $%d", paramIdx)
			args = append(args, filter.SessionID)
			paramIdx++
		}
		if filter.Type != "" {
			query += fmt.Sprintf(" AND type = $%d", paramIdx)
			args = append(args, filter.Type)
			paramIdx++
		}
		if !filter.From.IsZero() {
			query += fmt.Sprintf(" AND timestamp >= $%d", paramIdx)
			args = append(args, filter.From)
			paramIdx++
		}
		if !filter.To.IsZero() {
			query += fmt.Sprintf(" AND timestamp <= $%d", paramIdx)
			args = append(args, filter.To)
			paramIdx++
		}
	}

	query += " ORDER BY timestamp DESC"

	if filter != nil && filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", paramIdx)
		args = append(args, filter.Limit)
	} else {
		query += " LIMIT 100"
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*Event
	for rows.Next() {
		var event Event
		var sessionID, data sql.NullString

		if err := rows.Scan(&event.ID, &event.Type, &sessionID, &event.Timestamp, &data); err != nil {
			return nil, err
		}
		if sessionID.Valid {
			event.SessionID = sessionID.String
		}
		if data.Valid {
			event.Data = json.RawMessage(data.String)
		}
		events = append(events, &event)
	}

	return events, rows.Err()
}

// Close closes the underlying database connection
func (s *Service) Close() error {
	return s.db.Close()
}
