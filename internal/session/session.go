package session

import (
	"context"
	"sync"
	"time"

	"github.com/claude/repcoach/internal/coach"
	"github.com/claude/repcoach/internal/feedback"
	"github.com/claude/repcoach/internal/heartrate"
	"github.com/claude/repcoach/internal/models"
	"github.com/google/uuid"
)

// Event names sent to subscribers.
const (
	EventFrame    = "frame"
	EventFeedback = "feedback"
	EventFinished = "finished"
)

// subscriberBuffer is the per-subscriber backlog. Slow subscribers miss events
// rather than stall the frame loop.
const subscriberBuffer = 32

// Event is a message for session subscribers.
type Event struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// Snapshot is a read-only view of a live session.
type Snapshot struct {
	ID         uuid.UUID          `json:"id"`
	UserID     int                `json:"user_id"`
	Exercise   string             `json:"exercise"`
	Profile    models.Profile     `json:"profile"`
	Thresholds coach.Thresholds   `json:"thresholds"`
	Result     models.FrameResult `json:"result"`
	HeartRate  heartrate.Reading  `json:"heart_rate"`
	StartedAt  time.Time          `json:"started_at"`
	LastActive time.Time          `json:"last_active"`
}

// Session is one user performing one exercise.
type Session struct {
	ID        uuid.UUID
	UserID    int
	Exercise  coach.ExerciseType
	Profile   models.Profile
	StartedAt time.Time

	mu         sync.Mutex
	engine     *coach.Engine
	tracker    *feedback.Tracker
	last       models.FrameResult
	lastActive time.Time
	finished   bool

	dispatcher *feedback.Dispatcher
	cancel     context.CancelFunc
	done       chan struct{}

	subsMu sync.Mutex
	subs   map[chan Event]struct{}
	closed bool
}

func (s *Session) broadcast(ev Event) {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	for ch := range s.subs {
		select {
		case ch <- ev:
		default:
			// slow subscriber, skip
		}
	}
}

func (s *Session) subscribe() (chan Event, bool) {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	if s.closed {
		return nil, false
	}
	ch := make(chan Event, subscriberBuffer)
	s.subs[ch] = struct{}{}
	return ch, true
}

func (s *Session) unsubscribe(ch chan Event) {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	if _, ok := s.subs[ch]; ok {
		delete(s.subs, ch)
		close(ch)
	}
}

func (s *Session) closeSubscribers() {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	for ch := range s.subs {
		close(ch)
	}
	s.subs = nil
	s.closed = true
}

// sessionSpeaker forwards feedback to the session's subscribers, which render
// or synthesize it client-side.
type sessionSpeaker struct {
	s *Session
}

func (sp sessionSpeaker) Speak(_ context.Context, ev feedback.Event) error {
	sp.s.broadcast(Event{Event: EventFeedback, Data: ev})
	return nil
}
