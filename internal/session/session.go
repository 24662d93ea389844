// Package session persists conversations and runs one orchestrated turn per
// user utterance.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/metalagman/agency/internal/db"
	"github.com/metalagman/agency/internal/sdlc/graph"
	"github.com/metalagman/agency/internal/sdlc/state"
)

// Engine executes the agent graph over a state.
type Engine interface {
	Run(ctx context.Context, initial state.State) iter.Seq2[graph.Step, error]
}

// TurnObserver is notified when a turn finishes.
type TurnObserver interface {
	ObserveTurn(outcome string, steps int)
}

// Info is a stored session with its decoded state.
type Info struct {
	ID        string      `json:"id"                 yaml:"id"`
	CreatedAt time.Time   `json:"created_at"         yaml:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"         yaml:"updated_at"`
	Status    string      `json:"status"             yaml:"status"`
	StepCount int         `json:"step_count"         yaml:"step_count"`
	Turns     int         `json:"turns"              yaml:"turns"`
	State     state.State `json:"state"              yaml:"state"`
	Steps     []StepInfo  `json:"steps,omitempty"    yaml:"steps,omitempty"`
}

// StepInfo is a stored step.
type StepInfo struct {
	Turn      int       `json:"turn"       yaml:"turn"`
	Index     int       `json:"index"      yaml:"index"`
	Node      string    `json:"node"       yaml:"node"`
	Directive string    `json:"directive"  yaml:"directive"`
	Next      string    `json:"next"       yaml:"next"`
	Content   string    `json:"content"    yaml:"content"`
	StartedAt time.Time `json:"started_at" yaml:"started_at"`
	EndedAt   time.Time `json:"ended_at"   yaml:"ended_at"`
}

// Option configures a Service.
type Option func(*Service)

// WithLockDir sets where per-session lock files live.
func WithLockDir(dir string) Option {
	return func(s *Service) {
		if dir != "" {
			s.lockDir = dir
		}
	}
}

// WithObserver sets the turn observer.
func WithObserver(o TurnObserver) Option {
	return func(s *Service) { s.observer = o }
}

// WithLogger sets the service logger.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// Service owns sessions and their turns.
type Service struct {
	store    *db.Store
	engine   Engine
	lockDir  string
	observer TurnObserver
	logger   zerolog.Logger
	newID    func() string
}

// New creates a session service.
func New(store *db.Store, engine Engine, opts ...Option) *Service {
	s := &Service{
		store:   store,
		engine:  engine,
		lockDir: filepath.Join(os.TempDir(), "agency-locks"),
		logger:  log.Logger,
		newID:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create starts an empty session.
func (s *Service) Create(ctx context.Context) (Info, error) {
	st := state.New()
	raw, err := encodeState(st)
	if err != nil {
		return Info{}, err
	}
	sess, err := s.store.CreateSession(ctx, s.newID(), raw)
	if err != nil {
		return Info{}, fmt.Errorf("create session: %w", err)
	}
	s.logger.Debug().Str("session_id", sess.ID).Msg("session created")
	return toInfo(sess, st), nil
}

// Get returns a session with its steps.
func (s *Service) Get(ctx context.Context, id string) (Info, error) {
	sess, err := s.store.GetSession(ctx, id)
	if err != nil {
		return Info{}, err
	}
	sess = s.settle(ctx, sess)
	st, err := decodeState(sess.StateJSON)
	if err != nil {
		return Info{}, fmt.Errorf("session %s: %w", id, err)
	}
	info := toInfo(sess, st)

	steps, err := s.store.ListSteps(ctx, id)
	if err != nil {
		return Info{}, err
	}
	for _, rec := range steps {
		info.Steps = append(info.Steps, StepInfo{
			Turn:      rec.Turn,
			Index:     rec.StepIndex,
			Node:      rec.Node,
			Directive: rec.Directive,
			Next:      rec.Next,
			Content:   rec.Content,
			StartedAt: rec.StartedAt,
			EndedAt:   rec.EndedAt,
		})
	}
	return info, nil
}

// List returns all sessions, newest first. Steps are not loaded.
func (s *Service) List(ctx context.Context) ([]Info, error) {
	sessions, err := s.store.ListSessions(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Info, 0, len(sessions))
	for _, sess := range sessions {
		sess = s.settle(ctx, sess)
		st, err := decodeState(sess.StateJSON)
		if err != nil {
			s.logger.Warn().Err(err).Str("session_id", sess.ID).Msg("skip session with unreadable state")
			continue
		}
		out = append(out, toInfo(sess, st))
	}
	return out, nil
}

// Reset puts the session back to an empty state. Step history is kept.
func (s *Service) Reset(ctx context.Context, id string) (Info, error) {
	lock, err := tryLock(s.lockDir, id)
	if err != nil {
		return Info{}, err
	}
	defer s.release(lock, id)

	sess, err := s.store.GetSession(ctx, id)
	if err != nil {
		return Info{}, err
	}
	raw, err := encodeState(state.New())
	if err != nil {
		return Info{}, err
	}
	if err := s.store.UpdateSession(ctx, id, db.Update{Status: db.StatusIdle, StateJSON: raw, Turns: sess.Turns},
		&db.Event{Type: "session_reset", Message: "session reset"}); err != nil {
		return Info{}, err
	}
	s.logger.Info().Str("session_id", id).Msg("session reset")
	return s.Get(ctx, id)
}

// Delete removes a session.
func (s *Service) Delete(ctx context.Context, id string) error {
	lock, err := tryLock(s.lockDir, id)
	if err != nil {
		return err
	}
	defer func() {
		s.release(lock, id)
		removeLock(s.lockDir, id)
	}()
	return s.store.DeleteSession(ctx, id)
}

// Prune deletes old sessions according to policy.
func (s *Service) Prune(ctx context.Context, policy db.RetentionPolicy, dryRun bool) (db.PruneResult, error) {
	res, err := s.store.PruneSessions(ctx, policy, dryRun)
	if err != nil {
		return res, err
	}
	if !dryRun {
		for _, id := range res.DeletedIDs {
			removeLock(s.lockDir, id)
		}
	}
	return res, nil
}

// settle marks a running session as interrupted when no turn holds its
// lock, which happens when the process running the turn died.
func (s *Service) settle(ctx context.Context, sess db.Session) db.Session {
	if sess.Status != db.StatusRunning {
		return sess
	}
	lock, err := tryLock(s.lockDir, sess.ID)
	if err != nil {
		return sess
	}
	defer s.release(lock, sess.ID)

	current, err := s.store.GetSession(ctx, sess.ID)
	if err != nil || current.Status != db.StatusRunning {
		return sess
	}
	update := db.Update{Status: db.StatusInterrupted, StateJSON: current.StateJSON, Turns: current.Turns}
	if err := s.store.UpdateSession(ctx, sess.ID, update,
		&db.Event{Type: "turn_interrupted", Message: "turn did not finish"}); err != nil {
		s.logger.Warn().Err(err).Str("session_id", sess.ID).Msg("mark interrupted turn")
		return sess
	}
	s.logger.Warn().Str("session_id", sess.ID).Int("turn", current.Turns).Msg("turn interrupted")
	current.Status = db.StatusInterrupted
	return current
}

func (s *Service) release(lock *turnLock, id string) {
	if err := lock.release(); err != nil {
		s.logger.Warn().Err(err).Str("session_id", id).Msg("release session lock")
	}
}

func toInfo(sess db.Session, st state.State) Info {
	return Info{
		ID:        sess.ID,
		CreatedAt: sess.CreatedAt,
		UpdatedAt: sess.UpdatedAt,
		Status:    sess.Status,
		StepCount: sess.StepCount,
		Turns:     sess.Turns,
		State:     st,
	}
}

func encodeState(st state.State) (string, error) {
	data, err := json.Marshal(st)
	if err != nil {
		return "", fmt.Errorf("encode state: %w", err)
	}
	return string(data), nil
}

func decodeState(raw string) (state.State, error) {
	st := state.New()
	if raw == "" {
		return st, nil
	}
	if err := json.Unmarshal([]byte(raw), &st); err != nil {
		return state.State{}, fmt.Errorf("decode state: %w", err)
	}
	return st, nil
}

// IsNotFound reports whether err means the session does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, db.ErrNotFound)
}
