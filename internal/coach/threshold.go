package coach

import "github.com/claude/repcoach/internal/models"

// Thresholds are the concrete angle limits in force for one frame.
type Thresholds struct {
	Depth     float64 `json:"depth"`
	Extension float64 `json:"extension"`
	// Rule is the name of the leniency rule applied, empty for the strict threshold.
	Rule   string `json:"rule,omitempty"`
	Notice string `json:"notice,omitempty"`
}

// Derive picks the depth threshold for a profile. Leniency rules are tried in
// order and the first match wins; with no match the strict base threshold applies.
// Only the depth threshold moves: extension and posture limits are never relaxed.
func Derive(p models.Profile, cfg ExerciseConfig) Thresholds {
	p = p.Normalized()
	for _, rule := range cfg.Leniency {
		if rule.When.Matches(p) {
			return Thresholds{
				Depth:     rule.DepthThreshold,
				Extension: cfg.ExtensionThreshold,
				Rule:      rule.Name,
				Notice:    rule.Message,
			}
		}
	}
	return Thresholds{Depth: cfg.DepthThreshold, Extension: cfg.ExtensionThreshold}
}
