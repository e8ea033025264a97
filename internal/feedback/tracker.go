package feedback

import (
	"fmt"
	"strconv"

	"github.com/claude/repcoach/internal/models"
)

const (
	MotivationMessage    = "Great work, keep it up!"
	FinishMessage        = "Workout complete. Session saved."
	// FinishUnsavedMessage closes sessions that were not stored.
	FinishUnsavedMessage = "Workout complete."
)

// FinishText returns the closing announcement for a session.
func FinishText(saved bool) string {
	if saved {
		return FinishMessage
	}
	return FinishUnsavedMessage
}

// StartMessage is announced when a session begins.
func StartMessage(exercise string) string {
	return fmt.Sprintf("Starting %s session. Get ready!", exercise)
}

// Tracker turns successive frame results into feedback events.
type Tracker struct {
	motivationEvery int
	lastReps        int
	lastNotice      string
}

// NewTracker creates a tracker that adds a motivation cue every n reps. n <= 0
// disables motivation cues.
func NewTracker(motivationEvery int) *Tracker {
	return &Tracker{motivationEvery: motivationEvery}
}

// Observe returns the events for one frame: a rep announcement when the count
// moved, a motivation cue on every n-th rep, one warning per active warning and
// the leniency notice the first time it appears.
func (t *Tracker) Observe(res models.FrameResult) []Event {
	var out []Event
	if res.Notice != "" && res.Notice != t.lastNotice {
		t.lastNotice = res.Notice
		out = append(out, Event{Category: CategoryDefault, Text: res.Notice})
	}
	if res.RepCount > t.lastReps {
		t.lastReps = res.RepCount
		out = append(out, Event{Category: CategoryRep, Text: strconv.Itoa(res.RepCount)})
		if t.motivationEvery > 0 && res.RepCount%t.motivationEvery == 0 {
			out = append(out, Event{Category: CategoryMotivation, Text: MotivationMessage})
		}
	}
	for _, w := range res.Warnings {
		out = append(out, Event{Category: CategoryWarning, Text: w})
	}
	return out
}
