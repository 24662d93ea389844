package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned when a session does not exist.
var ErrNotFound = errors.New("session not found")

// Session statuses.
const (
	StatusIdle          = "idle"
	StatusRunning       = "running"
	StatusDone          = "done"
	StatusAwaitingInput = "awaiting_input"
	StatusStepCeiling   = "step_ceiling"
	StatusOracleFailure = "oracle_failure"
	StatusCanceled      = "canceled"
	// StatusInterrupted marks a turn whose process went away mid-run.
	StatusInterrupted = "interrupted"
)

// timeLayout is fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000Z"

// Store provides persistence for sessions, steps and events.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// NewStore creates a session store.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// DB returns the underlying database handle.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Session is a stored conversation.
type Session struct {
	ID        string
	CreatedAt time.Time
	UpdatedAt time.Time
	Status    string
	StateJSON string
	StepCount int
	Turns     int
}

// StepRecord is one applied graph step.
type StepRecord struct {
	SessionID string
	Turn      int
	StepIndex int
	Node      string
	Directive string
	Next      string
	Content   string
	StartedAt time.Time
	EndedAt   time.Time
}

// Update replaces the mutable columns of a session.
type Update struct {
	Status    string
	StateJSON string
	Turns     int
}

// Event is a timeline entry for a session.
type Event struct {
	Type     string
	Message  string
	DataJSON string
}

// EventRecord is a stored event.
type EventRecord struct {
	Seq int
	TS  time.Time
	Event
}

// CreateSession inserts the session record and a session_created event.
func (s *Store) CreateSession(ctx context.Context, id, stateJSON string) (Session, error) {
	now := s.now()
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return Session{}, fmt.Errorf("begin create session: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO sessions(session_id, created_at, updated_at, status, state_json, step_count, turns)
		VALUES(?, ?, ?, ?, ?, 0, 0)`,
		id, formatTime(now), formatTime(now), StatusIdle, stateJSON); err != nil {
		_ = tx.Rollback()
		return Session{}, fmt.Errorf("insert session: %w", err)
	}
	if err := s.insertEvent(ctx, tx, id, Event{Type: "session_created", Message: "session created"}); err != nil {
		_ = tx.Rollback()
		return Session{}, err
	}
	if err := tx.Commit(); err != nil {
		return Session{}, fmt.Errorf("commit create session: %w", err)
	}
	return Session{ID: id, CreatedAt: now, UpdatedAt: now, Status: StatusIdle, StateJSON: stateJSON}, nil
}

// GetSession returns a session by id.
func (s *Store) GetSession(ctx context.Context, id string) (Session, error) {
	row := s.db.QueryRowContext(ctx, `SELECT session_id, created_at, updated_at, status, state_json, step_count, turns
		FROM sessions WHERE session_id=?`, id)
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return Session{}, fmt.Errorf("read session: %w", err)
	}
	return sess, nil
}

// ListSessions returns all sessions, newest first.
func (s *Store) ListSessions(ctx context.Context) ([]Session, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT session_id, created_at, updated_at, status, state_json, step_count, turns
		FROM sessions ORDER BY created_at DESC, rowid DESC`)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		out = append(out, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return out, nil
}

// UpdateSession applies a session update and optional event without
// inserting a step.
func (s *Store) UpdateSession(ctx context.Context, id string, update Update, event *Event) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin update session: %w", err)
	}
	res, err := tx.ExecContext(ctx, `UPDATE sessions SET updated_at=?, status=?, state_json=?, turns=? WHERE session_id=?`,
		formatTime(s.now()), update.Status, update.StateJSON, update.Turns, id)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("update session: %w", err)
	}
	if err := requireRow(res, id); err != nil {
		_ = tx.Rollback()
		return err
	}
	if event != nil {
		if err := s.insertEvent(ctx, tx, id, *event); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit update session: %w", err)
	}
	return nil
}

// CommitStep inserts the step record and events and stores the post-step
// state in one transaction.
func (s *Store) CommitStep(ctx context.Context, step StepRecord, stateJSON string, events []Event) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin commit step: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO steps(session_id, turn, step_index, node, directive, next, content, started_at, ended_at)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		step.SessionID, step.Turn, step.StepIndex, step.Node, step.Directive, step.Next, step.Content,
		formatTime(step.StartedAt), formatTime(step.EndedAt)); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("insert step: %w", err)
	}
	res, err := tx.ExecContext(ctx, `UPDATE sessions SET updated_at=?, state_json=?, step_count=step_count+1 WHERE session_id=?`,
		formatTime(s.now()), stateJSON, step.SessionID)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("update session: %w", err)
	}
	if err := requireRow(res, step.SessionID); err != nil {
		_ = tx.Rollback()
		return err
	}
	for _, ev := range events {
		if err := s.insertEvent(ctx, tx, step.SessionID, ev); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit step: %w", err)
	}
	return nil
}

// DeleteSession removes a session with its steps and events.
func (s *Store) DeleteSession(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE session_id=?`, id)
	if err != nil {
		return fmt.Errorf("delete session %s: %w", id, err)
	}
	return requireRow(res, id)
}

// ListSteps returns the steps of a session in execution order.
func (s *Store) ListSteps(ctx context.Context, id string) ([]StepRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT session_id, turn, step_index, node, directive, next, content, started_at, ended_at
		FROM steps WHERE session_id=? ORDER BY turn, step_index`, id)
	if err != nil {
		return nil, fmt.Errorf("list steps: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []StepRecord
	for rows.Next() {
		var rec StepRecord
		var startedAt, endedAt string
		if err := rows.Scan(&rec.SessionID, &rec.Turn, &rec.StepIndex, &rec.Node, &rec.Directive, &rec.Next,
			&rec.Content, &startedAt, &endedAt); err != nil {
			return nil, fmt.Errorf("scan step: %w", err)
		}
		rec.StartedAt = parseTime(startedAt)
		rec.EndedAt = parseTime(endedAt)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate steps: %w", err)
	}
	return out, nil
}

// ListEvents returns the timeline of a session.
func (s *Store) ListEvents(ctx context.Context, id string) ([]EventRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT seq, ts, type, message, COALESCE(data_json, '')
		FROM events WHERE session_id=? ORDER BY seq`, id)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []EventRecord
	for rows.Next() {
		var rec EventRecord
		var ts string
		if err := rows.Scan(&rec.Seq, &ts, &rec.Type, &rec.Message, &rec.DataJSON); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		rec.TS = parseTime(ts)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return out, nil
}

func (s *Store) insertEvent(ctx context.Context, tx *sql.Tx, id string, ev Event) error {
	seq, err := s.nextSeq(ctx, tx, id)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO events(session_id, seq, ts, type, message, data_json) VALUES(?, ?, ?, ?, ?, ?)`,
		id, seq, formatTime(s.now()), ev.Type, ev.Message, nullableString(ev.DataJSON)); err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

func (s *Store) nextSeq(ctx context.Context, tx *sql.Tx, id string) (int, error) {
	var seq int
	row := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) FROM events WHERE session_id=?`, id)
	if err := row.Scan(&seq); err != nil {
		return 0, fmt.Errorf("read event seq: %w", err)
	}
	return seq + 1, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner) (Session, error) {
	var sess Session
	var createdAt, updatedAt string
	if err := row.Scan(&sess.ID, &createdAt, &updatedAt, &sess.Status, &sess.StateJSON, &sess.StepCount, &sess.Turns); err != nil {
		return Session{}, err
	}
	sess.CreatedAt = parseTime(createdAt)
	sess.UpdatedAt = parseTime(updatedAt)
	return sess, nil
}

func requireRow(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}
