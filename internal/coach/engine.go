package coach

import (
	"fmt"

	"github.com/claude/repcoach/internal/models"
)

// Engine scores one exercise session frame by frame. It owns all mutable session
// state and is not safe for concurrent use: callers feed frames from a single
// goroutine, or serialize access themselves.
type Engine struct {
	cfg     ExerciseConfig
	machine *RepStateMachine
	tally   Tally
	posture []*Debouncer
	frames  int
}

// NewEngine returns an engine for the given exercise, in the initial state.
func NewEngine(cfg ExerciseConfig) *Engine {
	cfg = cfg.withDefaults()
	e := &Engine{
		cfg:     cfg,
		machine: NewRepStateMachine(),
		posture: make([]*Debouncer, len(cfg.Posture)),
	}
	for i, r := range cfg.Posture {
		e.posture[i] = NewDebouncer(r.Window)
	}
	return e
}

// Config returns the exercise this engine scores.
func (e *Engine) Config() ExerciseConfig { return e.cfg }

// ProcessFrame scores one frame. Angles missing from the sample read as fully
// extended. A frame carrying an out-of-range angle is rejected with an error
// matching ErrInvalidInput and does not change the session.
func (e *Engine) ProcessFrame(angles models.AngleSample, profile models.Profile) (models.FrameResult, error) {
	for _, name := range e.cfg.Angles() {
		if v, ok := angles[name]; ok && !inDomain(v) {
			return models.FrameResult{}, &InputError{Angle: name, Value: v}
		}
	}
	e.frames++

	th := Derive(profile, e.cfg)

	warnings := []string{}
	for i, rule := range e.cfg.Posture {
		if e.posture[i].Update(rule.Violated(angles.Get(rule.Angle))) {
			warnings = append(warnings, rule.Warning)
			e.machine.Invalidate()
		}
	}

	cycle, completed := e.machine.Step(angles.Get(e.cfg.PrimaryAngle), th)
	if completed {
		e.tally.Record(cycle)
	}

	res := e.result()
	res.Warnings = warnings
	res.RepCompleted = completed && cycle.DepthReached
	res.Notice = th.Notice
	return res, nil
}

// Result returns the current counters without consuming a frame. Warnings are
// empty because they belong to individual frames.
func (e *Engine) Result() models.FrameResult {
	res := e.result()
	res.Warnings = []string{}
	return res
}

func (e *Engine) result() models.FrameResult {
	return models.FrameResult{
		RepCount:    e.tally.RepCount,
		Stage:       e.stage(),
		Accuracy:    e.tally.Accuracy(),
		TotalCycles: e.tally.TotalCycles,
		CorrectReps: e.tally.CorrectReps,
	}
}

func (e *Engine) stage() string {
	if e.machine.Phase() == PhaseFlexed {
		return e.cfg.FlexedStage
	}
	return e.cfg.ExtendedStage
}

// SessionState is a snapshot of everything the engine tracks.
type SessionState struct {
	Phase             Phase `json:"phase"`
	DepthReached      bool  `json:"depth_reached"`
	CurrentCycleValid bool  `json:"current_cycle_valid"`
	Tally
	PostureCounters []int `json:"posture_counters"`
	Frames          int   `json:"frames"`
}

// State returns a snapshot of the session.
func (e *Engine) State() SessionState {
	counters := make([]int, len(e.posture))
	for i, d := range e.posture {
		counters[i] = d.Count()
	}
	return SessionState{
		Phase:             e.machine.Phase(),
		DepthReached:      e.machine.DepthReached(),
		CurrentCycleValid: e.machine.CycleValid(),
		Tally:             e.tally,
		PostureCounters:   counters,
		Frames:            e.frames,
	}
}

// Validate checks the counter invariants of a snapshot.
func (s SessionState) Validate() error {
	if s.CorrectReps < 0 || s.CorrectReps > s.RepCount || s.RepCount > s.TotalCycles {
		return fmt.Errorf("counter invariant broken: correct=%d reps=%d cycles=%d",
			s.CorrectReps, s.RepCount, s.TotalCycles)
	}
	for i, c := range s.PostureCounters {
		if c < 0 {
			return fmt.Errorf("posture counter %d negative: %d", i, c)
		}
	}
	if s.DepthReached != (s.Phase == PhaseFlexed) {
		return fmt.Errorf("depth latch %v inconsistent with phase %s", s.DepthReached, s.Phase)
	}
	// A positive ratio may still round to 0.00, so only the zero case is strict.
	acc := s.Accuracy()
	if acc < 0 || acc > 100 || (s.TotalCycles == 0 || s.CorrectReps == 0) && acc != 0 {
		return fmt.Errorf("accuracy %v inconsistent with counters", acc)
	}
	return nil
}

// CheckProgress fails if any aggregated counter decreased between two snapshots.
func CheckProgress(prev, next SessionState) error {
	if next.TotalCycles < prev.TotalCycles || next.RepCount < prev.RepCount || next.CorrectReps < prev.CorrectReps {
		return fmt.Errorf("counters decreased: %+v -> %+v", prev.Tally, next.Tally)
	}
	return nil
}
