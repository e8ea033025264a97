package models

// NeutralAngle is the fully-extended value assumed for an angle missing from a sample.
const NeutralAngle = 180.0

// AngleSample maps joint-angle names ("knee", "hip", "elbow", ...) to degrees for one frame.
type AngleSample map[string]float64

// Get returns the named angle, or NeutralAngle when the landmark was not detected.
func (a AngleSample) Get(name string) float64 {
	if v, ok := a[name]; ok {
		return v
	}
	return NeutralAngle
}

// FrameResult is the per-frame output consumed by rendering and feedback layers.
// Warnings is the active set for this frame only.
type FrameResult struct {
	RepCount     int      `json:"rep_count"`
	Stage        string   `json:"stage"`
	Accuracy     float64  `json:"accuracy"`
	Warnings     []string `json:"warnings"`
	TotalCycles  int      `json:"total_cycles"`
	CorrectReps  int      `json:"correct_reps"`
	RepCompleted bool     `json:"rep_completed"`
	Notice       string   `json:"notice,omitempty"`
}
