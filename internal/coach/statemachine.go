package coach

// Phase is the position of the tracked limb within a repetition.
type Phase int

const (
	PhaseExtended Phase = iota
	PhaseFlexed
)

func (p Phase) String() string {
	if p == PhaseFlexed {
		return "flexed"
	}
	return "extended"
}

// Cycle describes a completed extended→flexed→extended motion.
type Cycle struct {
	DepthReached bool
	Valid        bool
}

// RepStateMachine tracks the phase of the current repetition. Entering FLEXED
// requires the primary angle to drop below the depth threshold; returning to
// EXTENDED requires it to rise above the extension threshold. The gap between the
// two is the hysteresis band.
type RepStateMachine struct {
	phase        Phase
	depthReached bool
	cycleValid   bool
}

// NewRepStateMachine returns a machine in the initial EXTENDED phase.
func NewRepStateMachine() *RepStateMachine {
	return &RepStateMachine{phase: PhaseExtended, cycleValid: true}
}

// Phase returns the current phase.
func (m *RepStateMachine) Phase() Phase { return m.phase }

// DepthReached reports whether depth was latched in the current cycle.
func (m *RepStateMachine) DepthReached() bool { return m.depthReached }

// CycleValid reports whether the current cycle is still free of posture faults.
func (m *RepStateMachine) CycleValid() bool { return m.cycleValid }

// Invalidate marks the current cycle as having broken form. It stays invalid
// until the cycle completes.
func (m *RepStateMachine) Invalidate() { m.cycleValid = false }

// Step advances the machine by one frame. It returns the completed cycle and true
// when this frame closed one.
func (m *RepStateMachine) Step(angle float64, th Thresholds) (Cycle, bool) {
	if m.phase == PhaseExtended && angle < th.Depth {
		m.depthReached = true
		m.phase = PhaseFlexed
	}

	if m.phase == PhaseFlexed && angle > th.Extension {
		c := Cycle{DepthReached: m.depthReached, Valid: m.cycleValid}
		m.phase = PhaseExtended
		m.depthReached = false
		m.cycleValid = true
		return c, true
	}
	return Cycle{}, false
}
