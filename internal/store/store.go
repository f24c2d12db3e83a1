package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Event kinds written to the journal.
const (
	KindCameraStarted        = "camera_started"
	KindCameraStopped        = "camera_stopped"
	KindMatched              = "matched"
	KindRegistrationStarted  = "registration_started"
	KindRegistrationComplete = "registration_complete"
	KindError                = "error"
)

// Session is one camera-active interval.
type Session struct {
	ID        uuid.UUID
	DeviceID  string
	StartedAt time.Time
	EndedAt   *time.Time
	Events    int
}

// Event is one journal entry. SessionID is unset for events outside a session.
type Event struct {
	ID        int64
	SessionID uuid.NullUUID
	Kind      string
	Name      string
	Detail    string
	CreatedAt time.Time
}

// Summary counts journal events by outcome.
type Summary struct {
	Sessions      int
	Matches       int
	Registrations int
	Errors        int
}

// Store manages the PostgreSQL pool backing the event journal.
type Store struct {
	pool *pgxpool.Pool
}

// New establishes a connection pool and ensures the schema is initialized.
func New(ctx context.Context, connString string) (*Store, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to reach database: %w", err)
	}

	// Initialize schema (Auto-Migration)
	if err := initSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to initialize database schema: %w", err)
	}

	return &Store{pool: pool}, nil
}

func initSchema(ctx context.Context, pool *pgxpool.Pool) error {
	query := `
		CREATE TABLE IF NOT EXISTS camera_sessions (
			id UUID PRIMARY KEY,
			device_id TEXT NOT NULL,
			started_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			ended_at TIMESTAMPTZ
		);
		CREATE TABLE IF NOT EXISTS pipeline_events (
			id BIGSERIAL PRIMARY KEY,
			session_id UUID REFERENCES camera_sessions(id) ON DELETE CASCADE,
			kind TEXT NOT NULL,
			name TEXT NOT NULL DEFAULT '',
			detail TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS pipeline_events_session_id_idx ON pipeline_events (session_id);
		CREATE INDEX IF NOT EXISTS pipeline_events_created_at_idx ON pipeline_events (created_at DESC);
	`
	_, err := pool.Exec(ctx, query)
	return err
}

// Close releases every pooled connection.
func (s *Store) Close() {
	s.pool.Close()
}

// StartSession opens a camera session and returns its ID.
func (s *Store) StartSession(ctx context.Context, deviceID string) (uuid.UUID, error) {
	id := uuid.New()
	_, err := s.pool.Exec(ctx, `
		INSERT INTO camera_sessions (id, device_id, started_at)
		VALUES ($1, $2, NOW())
	`, id, deviceID)
	if err != nil {
		return uuid.Nil, err
	}
	return id, nil
}

// EndSession stamps the end time. Ending a session twice keeps the first stamp.
func (s *Store) EndSession(ctx context.Context, id uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE camera_sessions SET ended_at = NOW()
		WHERE id = $1 AND ended_at IS NULL
	`, id)
	return err
}

// InsertEvent appends an event to the journal.
func (s *Store) InsertEvent(ctx context.Context, e Event) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO pipeline_events (session_id, kind, name, detail)
		VALUES ($1, $2, $3, $4)
	`, e.SessionID, e.Kind, e.Name, e.Detail)
	return err
}

// ListEvents returns the newest events first. kind filters when non-empty.
func (s *Store) ListEvents(ctx context.Context, kind string, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, session_id, kind, name, detail, created_at
		FROM pipeline_events
		WHERE $1 = '' OR kind = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`, kind, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.ID, &e.SessionID, &e.Kind, &e.Name, &e.Detail, &e.CreatedAt); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// ListSessions returns the newest sessions first with their event counts.
func (s *Store) ListSessions(ctx context.Context, limit int) ([]Session, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.pool.Query(ctx, `
		SELECT s.id, s.device_id, s.started_at, s.ended_at, COUNT(e.id)
		FROM camera_sessions s
		LEFT JOIN pipeline_events e ON e.session_id = s.id
		GROUP BY s.id
		ORDER BY s.started_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		var sess Session
		if err := rows.Scan(&sess.ID, &sess.DeviceID, &sess.StartedAt, &sess.EndedAt, &sess.Events); err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

// GetSession fetches a single session. Returns pgx.ErrNoRows wrapped when absent.
func (s *Store) GetSession(ctx context.Context, id uuid.UUID) (Session, error) {
	var sess Session
	err := s.pool.QueryRow(ctx, `
		SELECT s.id, s.device_id, s.started_at, s.ended_at,
			(SELECT COUNT(*) FROM pipeline_events e WHERE e.session_id = s.id)
		FROM camera_sessions s WHERE s.id = $1
	`, id).Scan(&sess.ID, &sess.DeviceID, &sess.StartedAt, &sess.EndedAt, &sess.Events)
	if errors.Is(err, pgx.ErrNoRows) {
		return Session{}, fmt.Errorf("session %s: %w", id, err)
	}
	return sess, err
}

// Summarize counts sessions and outcome events across the whole journal.
func (s *Store) Summarize(ctx context.Context) (Summary, error) {
	var sum Summary
	err := s.pool.QueryRow(ctx, `
		SELECT
			(SELECT COUNT(*) FROM camera_sessions),
			COUNT(*) FILTER (WHERE kind = $1),
			COUNT(*) FILTER (WHERE kind = $2),
			COUNT(*) FILTER (WHERE kind = $3)
		FROM pipeline_events
	`, KindMatched, KindRegistrationComplete, KindError).Scan(&sum.Sessions, &sum.Matches, &sum.Registrations, &sum.Errors)
	return sum, err
}

// Reset drops all application tables to clear the database state.
// The next New recreates them.
func (s *Store) Reset(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		DROP TABLE IF EXISTS pipeline_events CASCADE;
		DROP TABLE IF EXISTS camera_sessions CASCADE;
	`)
	return err
}
