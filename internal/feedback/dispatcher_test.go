package feedback

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/claude/repcoach/internal/metrics"
	"github.com/claude/repcoach/internal/models"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type recorder struct {
	mu     sync.Mutex
	events []Event
	block  chan struct{}
}

func (r *recorder) Speak(ctx context.Context, ev Event) error {
	if r.block != nil {
		<-r.block
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *recorder) texts() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Text
	}
	return out
}

// TestSubmitCooldown verifies the same warning is suppressed inside its
// cooldown while rep counts always pass.
func TestSubmitCooldown(t *testing.T) {
	m := metrics.NewTestManager()
	d := NewDispatcher(DefaultCooldowns(), &recorder{}, m, testLogger())

	assert.True(t, d.Submit(Event{Category: CategoryWarning, Text: "Keep your back straight"}))
	assert.False(t, d.Submit(Event{Category: CategoryWarning, Text: "Keep your back straight"}))
	assert.True(t, d.Submit(Event{Category: CategoryWarning, Text: "Keep your body straight"}))

	for i := 0; i < 5; i++ {
		assert.True(t, d.Submit(Event{Category: CategoryRep, Text: "1"}))
	}
	assert.Equal(t, 7, d.Pending())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CounterFeedbackSuppressed.WithLabelValues("warning")))
}

// TestSubmitCooldownExpires verifies a text is accepted again once its cooldown passes.
func TestSubmitCooldownExpires(t *testing.T) {
	cd := Cooldowns{Warning: 30 * time.Millisecond}
	d := NewDispatcher(cd, &recorder{}, nil, testLogger())

	require.True(t, d.Submit(Event{Category: CategoryWarning, Text: "w"}))
	require.False(t, d.Submit(Event{Category: CategoryWarning, Text: "w"}))
	time.Sleep(60 * time.Millisecond)
	assert.True(t, d.Submit(Event{Category: CategoryWarning, Text: "w"}))
}

// TestSubmitNeverBlocks verifies a stuck speaker cannot stall callers and that
// the optional backlog is bounded while reps keep queueing.
func TestSubmitNeverBlocks(t *testing.T) {
	rec := &recorder{block: make(chan struct{})}
	d := NewDispatcher(Cooldowns{}, rec, nil, testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		d.Run(ctx)
		close(done)
	}()

	finished := make(chan struct{})
	go func() {
		for i := 0; i < MaxPending*4; i++ {
			d.Submit(Event{Category: CategoryDefault, Text: "x"})
			d.Submit(Event{Category: CategoryRep, Text: "r"})
		}
		close(finished)
	}()
	select {
	case <-finished:
	case <-time.After(2 * time.Second):
		t.Fatal("Submit blocked on a stuck speaker")
	}

	assert.LessOrEqual(t, d.Pending(), MaxPending*4+MaxPending+1)
	close(rec.block)
	cancel()
	<-done

	var reps int
	for _, s := range rec.texts() {
		if s == "r" {
			reps++
		}
	}
	assert.Equal(t, MaxPending*4, reps, "rep events are never dropped")
	assert.Equal(t, 0, d.Pending())
}

// TestDroppedEventKeepsNoCooldown verifies an event dropped by the backlog bound
// can be submitted again as soon as there is room.
func TestDroppedEventKeepsNoCooldown(t *testing.T) {
	rec := &recorder{}
	d := NewDispatcher(Cooldowns{Default: time.Minute}, rec, nil, testLogger())
	for i := 0; i < MaxPending; i++ {
		require.True(t, d.Submit(Event{Category: CategoryDefault, Text: fmt.Sprintf("cue %d", i)}))
	}
	assert.False(t, d.Submit(Event{Category: CategoryDefault, Text: "late"}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)
	require.Eventually(t, func() bool { return d.Pending() == 0 }, 2*time.Second, 5*time.Millisecond)

	assert.True(t, d.Submit(Event{Category: CategoryDefault, Text: "late"}))
	assert.False(t, d.Submit(Event{Category: CategoryDefault, Text: "cue 0"}), "delivered cues still cool down")
}

// TestRunDeliversInOrder verifies events reach the speaker in submission order.
func TestRunDeliversInOrder(t *testing.T) {
	rec := &recorder{}
	m := metrics.NewTestManager()
	d := NewDispatcher(DefaultCooldowns(), rec, m, testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	go d.Run(ctx)
	defer cancel()

	d.Submit(Event{Category: CategoryMotivation, Text: StartMessage("squat")})
	d.Submit(Event{Category: CategoryRep, Text: "1"})
	d.Submit(Event{Category: CategoryRep, Text: "2"})

	require.Eventually(t, func() bool { return len(rec.texts()) == 3 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"Starting squat session. Get ready!", "1", "2"}, rec.texts())
	assert.Equal(t, 2.0, testutil.ToFloat64(m.CounterFeedbackDelivered.WithLabelValues("rep")))
}

// TestRunSwallowsSpeakerErrors verifies a failing speaker does not stop delivery.
func TestRunSwallowsSpeakerErrors(t *testing.T) {
	var mu sync.Mutex
	var calls int
	failing := SpeakerFunc(func(ctx context.Context, ev Event) error {
		mu.Lock()
		defer mu.Unlock()
		calls++
		return errors.New("audio device busy")
	})
	d := NewDispatcher(Cooldowns{}, failing, nil, testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	go d.Run(ctx)
	defer cancel()

	d.Submit(Event{Category: CategoryRep, Text: "1"})
	d.Submit(Event{Category: CategoryRep, Text: "2"})
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return calls == 2
	}, 2*time.Second, 5*time.Millisecond)
}

// TestMultiSpeaker verifies fan-out reaches every speaker even when one fails.
func TestMultiSpeaker(t *testing.T) {
	a, b := &recorder{}, &recorder{}
	boom := SpeakerFunc(func(context.Context, Event) error { return errors.New("boom") })
	err := MultiSpeaker{a, boom, b}.Speak(context.Background(), Event{Text: "hi"})
	assert.EqualError(t, err, "boom")
	assert.Equal(t, []string{"hi"}, a.texts())
	assert.Equal(t, []string{"hi"}, b.texts())
	assert.NoError(t, LogSpeaker{Log: testLogger()}.Speak(context.Background(), Event{Text: "hi"}))
}

// TestTrackerObserve verifies rep, motivation, warning and notice cues.
func TestTrackerObserve(t *testing.T) {
	tr := NewTracker(5)

	evs := tr.Observe(models.FrameResult{RepCount: 0, Notice: "Keeping conditions relaxed due to obesity"})
	require.Len(t, evs, 1)
	assert.Equal(t, CategoryDefault, evs[0].Category)

	assert.Empty(t, tr.Observe(models.FrameResult{RepCount: 0, Notice: "Keeping conditions relaxed due to obesity"}))

	evs = tr.Observe(models.FrameResult{RepCount: 1, Warnings: []string{"Keep your body straight"}})
	require.Len(t, evs, 2)
	assert.Equal(t, Event{Category: CategoryRep, Text: "1"}, evs[0])
	assert.Equal(t, Event{Category: CategoryWarning, Text: "Keep your body straight"}, evs[1])

	assert.Empty(t, tr.Observe(models.FrameResult{RepCount: 1}))

	evs = tr.Observe(models.FrameResult{RepCount: 5})
	require.Len(t, evs, 2)
	assert.Equal(t, "5", evs[0].Text)
	assert.Equal(t, Event{Category: CategoryMotivation, Text: MotivationMessage}, evs[1])
}

// TestCooldownsFor verifies category lookup and the default fallback.
func TestCooldownsFor(t *testing.T) {
	cd := DefaultCooldowns()
	assert.Equal(t, time.Duration(0), cd.For(CategoryRep))
	assert.Equal(t, 3*time.Second, cd.For(CategoryWarning))
	assert.Equal(t, 15*time.Second, cd.For(CategoryMotivation))
	assert.Equal(t, 2*time.Second, cd.For("chatter"))
}
