package coach

import "math"

// Tally aggregates completed cycles into rep counts.
//
// RepCount counts cycles that reached depth; CorrectReps counts those that also
// kept posture. Accuracy is always derived from the counters, never stored.
type Tally struct {
	TotalCycles int `json:"total_cycles"`
	RepCount    int `json:"rep_count"`
	CorrectReps int `json:"correct_reps"`
}

// Record adds one completed cycle.
func (t *Tally) Record(c Cycle) {
	t.TotalCycles++
	if !c.DepthReached {
		return
	}
	t.RepCount++
	if c.Valid {
		t.CorrectReps++
	}
}

// Accuracy is CorrectReps / TotalCycles as a percentage rounded to 2 decimals,
// or 0 before the first cycle.
func (t Tally) Accuracy() float64 {
	return AccuracyOf(t.CorrectReps, t.TotalCycles)
}

// AccuracyOf returns correct / total as a percentage rounded to 2 decimals, or 0
// when total is 0.
func AccuracyOf(correct, total int) float64 {
	if total == 0 {
		return 0
	}
	return round2(float64(correct) / float64(total) * 100)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
