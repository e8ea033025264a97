// Package session runs live exercise sessions: one scoring engine, feedback
// dispatcher and subscriber set per session.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/claude/repcoach/internal/coach"
	"github.com/claude/repcoach/internal/feedback"
	"github.com/claude/repcoach/internal/heartrate"
	"github.com/claude/repcoach/internal/metrics"
	"github.com/claude/repcoach/internal/models"
	"github.com/google/uuid"
)

var (
	ErrNotFound = errors.New("session not found")
	ErrFinished = errors.New("session already finished")
)

// Store is the persistence the manager needs.
type Store interface {
	GetProfile(ctx context.Context, id int) (*models.UserRow, error)
	InsertSession(ctx context.Context, row models.SessionRow) (bool, error)
}

// Options tunes feedback and heart-rate checks for every session.
type Options struct {
	Cooldowns       feedback.Cooldowns
	MotivationEvery int
	HeartRateLimit  int
}

// DefaultOptions returns the stock feedback cadence and a 120 bpm limit.
func DefaultOptions() Options {
	return Options{
		Cooldowns:       feedback.DefaultCooldowns(),
		MotivationEvery: 5,
		HeartRateLimit:  120,
	}
}

// StartRequest describes a new session. UserID 0 starts an anonymous session
// that is scored with Profile (or defaults) and not persisted.
type StartRequest struct {
	UserID   int             `json:"user_id"`
	Exercise string          `json:"exercise"`
	Profile  *models.Profile `json:"profile,omitempty"`
}

// Manager owns all live sessions.
type Manager struct {
	registry *coach.Registry
	store    Store
	hr       heartrate.Source
	opts     Options
	metrics  *metrics.Manager
	log      *slog.Logger
	now      func() time.Time

	mu       sync.Mutex
	sessions map[uuid.UUID]*Session
}

// NewManager creates a session manager. store and hr may be nil.
func NewManager(registry *coach.Registry, store Store, hr heartrate.Source, opts Options, m *metrics.Manager, log *slog.Logger) *Manager {
	if hr == nil {
		hr = heartrate.Disabled{}
	}
	return &Manager{
		registry: registry,
		store:    store,
		hr:       hr,
		opts:     opts,
		metrics:  m,
		log:      log,
		now:      time.Now,
		sessions: make(map[uuid.UUID]*Session),
	}
}

// Start creates a session and its feedback goroutine.
func (m *Manager) Start(ctx context.Context, req StartRequest) (*Snapshot, error) {
	cfg, err := m.registry.Get(coach.ParseExerciseType(req.Exercise))
	if err != nil {
		return nil, err
	}

	profile := models.DefaultProfile()
	switch {
	case req.UserID > 0:
		if m.store == nil {
			return nil, fmt.Errorf("profile %d: no profile store configured", req.UserID)
		}
		row, err := m.store.GetProfile(ctx, req.UserID)
		if err != nil {
			return nil, fmt.Errorf("loading profile: %w", err)
		}
		profile = row.Profile()
	case req.Profile != nil:
		profile = req.Profile.Normalized()
	}

	now := m.now()
	s := &Session{
		ID:         uuid.New(),
		UserID:     req.UserID,
		Exercise:   cfg.Type,
		Profile:    profile,
		StartedAt:  now,
		engine:     coach.NewEngine(cfg),
		tracker:    feedback.NewTracker(m.opts.MotivationEvery),
		lastActive: now,
		done:       make(chan struct{}),
		subs:       make(map[chan Event]struct{}),
	}
	logger := m.log.With("session", s.ID.String(), "exercise", string(cfg.Type))
	speaker := feedback.MultiSpeaker{sessionSpeaker{s}, feedback.LogSpeaker{Log: logger}}
	s.dispatcher = feedback.NewDispatcher(m.opts.Cooldowns, speaker, m.metrics, logger)

	dctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	go func() {
		defer close(s.done)
		s.dispatcher.Run(dctx)
	}()
	s.dispatcher.Submit(feedback.Event{Category: feedback.CategoryMotivation, Text: feedback.StartMessage(cfg.Name)})

	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()
	m.metrics.GaugeActiveSessions.Inc()

	logger.Info("session started", "user_id", req.UserID, "age", profile.Age, "bmi", profile.BMI,
		"fitness_level", profile.FitnessLevel)
	snap := m.snapshot(s)
	return &snap, nil
}

func (m *Manager) get(id uuid.UUID) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return s, nil
}

// Frame scores one frame for a session. Frames for the same session are
// serialized; different sessions run independently.
func (m *Manager) Frame(ctx context.Context, id uuid.UUID, angles models.AngleSample) (models.FrameResult, error) {
	s, err := m.get(id)
	if err != nil {
		return models.FrameResult{}, err
	}
	exercise := string(s.Exercise)

	s.mu.Lock()
	if s.finished {
		s.mu.Unlock()
		return models.FrameResult{}, ErrFinished
	}
	prev := s.last
	res, err := s.engine.ProcessFrame(angles, s.Profile)
	if err != nil {
		s.mu.Unlock()
		m.metrics.CounterInvalidFrames.WithLabelValues(exercise).Inc()
		return models.FrameResult{}, err
	}
	if m.hr.Latest().Above(m.opts.HeartRateLimit) {
		res.Warnings = append(res.Warnings, heartrate.HighHeartRateWarning)
	}
	for _, ev := range s.tracker.Observe(res) {
		s.dispatcher.Submit(ev)
	}
	s.last = res
	s.lastActive = m.now()
	s.mu.Unlock()

	m.metrics.CounterFrames.WithLabelValues(exercise).Inc()
	if res.RepCompleted {
		correct := res.CorrectReps > prev.CorrectReps
		m.metrics.CounterReps.WithLabelValues(exercise, strconv.FormatBool(correct)).Inc()
	}
	for _, w := range res.Warnings {
		m.metrics.CounterWarnings.WithLabelValues(exercise, w).Inc()
	}

	s.broadcast(Event{Event: EventFrame, Data: res})
	return res, nil
}

// Snapshot returns the current state of a session.
func (m *Manager) Snapshot(id uuid.UUID) (*Snapshot, error) {
	s, err := m.get(id)
	if err != nil {
		return nil, err
	}
	snap := m.snapshot(s)
	return &snap, nil
}

// Active returns snapshots of every live session.
func (m *Manager) Active() []Snapshot {
	m.mu.Lock()
	list := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		list = append(list, s)
	}
	m.mu.Unlock()

	out := make([]Snapshot, 0, len(list))
	for _, s := range list {
		out = append(out, m.snapshot(s))
	}
	return out
}

func (m *Manager) snapshot(s *Session) Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	res := s.engine.Result()
	if len(s.last.Warnings) > 0 {
		res.Warnings = s.last.Warnings
	}
	return Snapshot{
		ID:         s.ID,
		UserID:     s.UserID,
		Exercise:   string(s.Exercise),
		Profile:    s.Profile,
		Thresholds: coach.Derive(s.Profile, s.engine.Config()),
		Result:     res,
		HeartRate:  m.hr.Latest(),
		StartedAt:  s.StartedAt,
		LastActive: s.lastActive,
	}
}

// Subscribe returns a channel of frame and feedback events for a session and a
// function that releases it. The channel is closed when the session finishes.
func (m *Manager) Subscribe(id uuid.UUID) (<-chan Event, func(), error) {
	s, err := m.get(id)
	if err != nil {
		return nil, nil, err
	}
	ch, ok := s.subscribe()
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return ch, func() { s.unsubscribe(ch) }, nil
}

// Finish ends a session and persists its summary. Anonymous sessions are
// returned without being stored. If persisting fails the session stays live so
// the call can be retried.
func (m *Manager) Finish(ctx context.Context, id uuid.UUID) (*models.SessionRow, error) {
	s, err := m.get(id)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	if s.finished {
		s.mu.Unlock()
		return nil, ErrFinished
	}
	s.finished = true
	res := s.engine.Result()
	s.mu.Unlock()

	row := models.SessionRow{
		ID:          s.ID,
		UserID:      s.UserID,
		Exercise:    string(s.Exercise),
		Reps:        res.RepCount,
		TotalCycles: res.TotalCycles,
		CorrectReps: res.CorrectReps,
		Accuracy:    res.Accuracy,
		StartedAt:   s.StartedAt,
		EndedAt:     m.now(),
	}

	persisted := false
	if s.UserID > 0 && m.store != nil {
		if _, err := m.store.InsertSession(ctx, row); err != nil {
			s.mu.Lock()
			s.finished = false
			s.mu.Unlock()
			return nil, fmt.Errorf("saving session: %w", err)
		}
		m.metrics.CounterSessionsPersisted.Inc()
		persisted = true
	}

	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()
	m.metrics.GaugeActiveSessions.Dec()
	m.metrics.HistSessionAccuracy.Observe(row.Accuracy)

	s.dispatcher.Submit(feedback.Event{Category: feedback.CategoryMotivation, Text: feedback.FinishText(persisted)})
	s.cancel()
	<-s.done
	s.broadcast(Event{Event: EventFinished, Data: row})
	s.closeSubscribers()

	m.log.Info("session finished", "session", id.String(), "exercise", row.Exercise,
		"reps", row.Reps, "accuracy", row.Accuracy, "persisted", persisted)
	return &row, nil
}

// Reap finishes sessions that have not received a frame for longer than idle.
// Returns the number of sessions finished.
func (m *Manager) Reap(ctx context.Context, idle time.Duration) int {
	cutoff := m.now().Add(-idle)

	m.mu.Lock()
	var stale []uuid.UUID
	for id, s := range m.sessions {
		s.mu.Lock()
		if s.lastActive.Before(cutoff) {
			stale = append(stale, id)
		}
		s.mu.Unlock()
	}
	m.mu.Unlock()

	n := 0
	for _, id := range stale {
		if _, err := m.Finish(ctx, id); err != nil {
			m.log.Warn("reaping idle session failed", "session", id.String(), "error", err)
			continue
		}
		n++
	}
	if n > 0 {
		m.log.Info("reaped idle sessions", "count", n)
	}
	return n
}

// RunReaper calls Reap every interval until ctx is cancelled.
func (m *Manager) RunReaper(ctx context.Context, every, idle time.Duration) error {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			m.Reap(ctx, idle)
		}
	}
}

// Shutdown finishes every live session.
func (m *Manager) Shutdown(ctx context.Context) {
	m.mu.Lock()
	ids := make([]uuid.UUID, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	for _, id := range ids {
		if _, err := m.Finish(ctx, id); err != nil {
			m.log.Error("finishing session on shutdown", "session", id.String(), "error", err)
		}
	}
}
