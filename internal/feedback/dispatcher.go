// Package feedback delivers spoken coaching cues without blocking the frame loop.
package feedback

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/claude/repcoach/internal/metrics"
	"github.com/patrickmn/go-cache"
)

// Category selects the cooldown applied to an event.
type Category string

const (
	CategoryRep        Category = "rep"
	CategoryWarning    Category = "warning"
	CategoryMotivation Category = "motivation"
	CategoryDefault    Category = "default"
)

// Event is one cue to be spoken or displayed by the client.
type Event struct {
	Category Category  `json:"category"`
	Text     string    `json:"text"`
	At       time.Time `json:"at"`
}

// Cooldowns is the minimum gap between two deliveries of the same text.
type Cooldowns struct {
	Rep        time.Duration
	Warning    time.Duration
	Motivation time.Duration
	Default    time.Duration
}

// DefaultCooldowns returns the stock cadence: reps always, warnings every 3s,
// motivation every 15s, everything else every 2s.
func DefaultCooldowns() Cooldowns {
	return Cooldowns{
		Warning:    3 * time.Second,
		Motivation: 15 * time.Second,
		Default:    2 * time.Second,
	}
}

// For returns the cooldown of a category. Unknown categories use Default.
func (c Cooldowns) For(cat Category) time.Duration {
	switch cat {
	case CategoryRep:
		return c.Rep
	case CategoryWarning:
		return c.Warning
	case CategoryMotivation:
		return c.Motivation
	default:
		return c.Default
	}
}

// Speaker renders an event. Implementations may block; they run on the
// dispatcher goroutine.
type Speaker interface {
	Speak(ctx context.Context, ev Event) error
}

// SpeakerFunc adapts a function to Speaker.
type SpeakerFunc func(ctx context.Context, ev Event) error

func (f SpeakerFunc) Speak(ctx context.Context, ev Event) error { return f(ctx, ev) }

// MaxPending bounds the backlog of non-rep events. Rep announcements are never
// dropped.
const MaxPending = 16

// Dispatcher applies per-text cooldowns and hands accepted events to a Speaker
// on its own goroutine.
type Dispatcher struct {
	cooldowns Cooldowns
	recent    *cache.Cache
	speaker   Speaker
	metrics   *metrics.Manager
	log       *slog.Logger

	mu    sync.Mutex
	queue []Event
	wake  chan struct{}
}

// NewDispatcher creates a dispatcher. m may be nil.
func NewDispatcher(cd Cooldowns, speaker Speaker, m *metrics.Manager, log *slog.Logger) *Dispatcher {
	return &Dispatcher{
		cooldowns: cd,
		recent:    cache.New(time.Minute, time.Minute),
		speaker:   speaker,
		metrics:   m,
		log:       log,
		wake:      make(chan struct{}, 1),
	}
}

// Submit queues an event if its text is not cooling down. It never blocks and
// reports whether the event was accepted.
func (d *Dispatcher) Submit(ev Event) bool {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}

	d.mu.Lock()
	// Checked before the cooldown so a dropped event does not start one.
	if ev.Category != CategoryRep && d.pendingOptional() >= MaxPending {
		d.mu.Unlock()
		d.suppressed(ev)
		return false
	}
	if cd := d.cooldowns.For(ev.Category); cd > 0 {
		// Add fails while a previous delivery of the same text is still cached.
		if err := d.recent.Add(ev.Text, ev.At, cd); err != nil {
			d.mu.Unlock()
			d.suppressed(ev)
			return false
		}
	}
	d.queue = append(d.queue, ev)
	d.mu.Unlock()

	select {
	case d.wake <- struct{}{}:
	default:
	}
	return true
}

func (d *Dispatcher) pendingOptional() int {
	n := 0
	for _, ev := range d.queue {
		if ev.Category != CategoryRep {
			n++
		}
	}
	return n
}

func (d *Dispatcher) suppressed(ev Event) {
	if d.metrics != nil {
		d.metrics.CounterFeedbackSuppressed.WithLabelValues(string(ev.Category)).Inc()
	}
}

// Pending returns the number of queued events.
func (d *Dispatcher) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.queue)
}

// Run delivers queued events until ctx is cancelled, then flushes whatever is
// still queued.
func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			d.drain(context.WithoutCancel(ctx))
			return nil
		case <-d.wake:
			d.drain(ctx)
		}
	}
}

func (d *Dispatcher) drain(ctx context.Context) {
	for {
		d.mu.Lock()
		if len(d.queue) == 0 {
			d.mu.Unlock()
			return
		}
		ev := d.queue[0]
		d.queue = d.queue[1:]
		d.mu.Unlock()

		if err := d.speaker.Speak(ctx, ev); err != nil {
			d.log.Warn("feedback delivery failed", "category", ev.Category, "text", ev.Text, "error", err)
			continue
		}
		if d.metrics != nil {
			d.metrics.CounterFeedbackDelivered.WithLabelValues(string(ev.Category)).Inc()
		}
	}
}

// LogSpeaker writes events to the log at debug level.
type LogSpeaker struct {
	Log *slog.Logger
}

func (s LogSpeaker) Speak(_ context.Context, ev Event) error {
	s.Log.Debug("feedback", "category", ev.Category, "text", ev.Text)
	return nil
}

// MultiSpeaker fans an event out to several speakers and returns the first error.
type MultiSpeaker []Speaker

func (m MultiSpeaker) Speak(ctx context.Context, ev Event) error {
	var first error
	for _, s := range m {
		if err := s.Speak(ctx, ev); err != nil && first == nil {
			first = err
		}
	}
	return first
}
