package coach

import (
	"fmt"
	"strings"

	"github.com/claude/repcoach/internal/models"
)

// ExerciseType identifies an exercise in the registry.
type ExerciseType string

const (
	Squat     ExerciseType = "squat"
	PushUp    ExerciseType = "pushup"
	BicepCurl ExerciseType = "bicep_curl"
)

// exerciseAliases maps the names clients commonly send to registry keys.
var exerciseAliases = map[string]ExerciseType{
	"squats":  Squat,
	"push-up": PushUp,
	"push_up": PushUp,
	"pushups": PushUp,
	"bicep":   BicepCurl,
	"biceps":  BicepCurl,
	"curl":    BicepCurl,
	"curls":   BicepCurl,
}

// ParseExerciseType normalizes a client-supplied exercise name. Unknown names are
// returned lowercased so the registry lookup reports them.
func ParseExerciseType(raw string) ExerciseType {
	name := strings.ToLower(strings.TrimSpace(raw))
	if t, ok := exerciseAliases[name]; ok {
		return t
	}
	return ExerciseType(name)
}

// Direction says which side of a posture limit counts as a violation.
type Direction string

const (
	Below Direction = "below"
	Above Direction = "above"
)

// DefaultStabilityWindow is used for posture rules that do not set a window.
const DefaultStabilityWindow = 8

// PostureRule flags a form fault when an angle crosses a fixed limit.
type PostureRule struct {
	Angle     string    `yaml:"angle" json:"angle"`
	Limit     float64   `yaml:"limit" json:"limit"`
	Direction Direction `yaml:"direction" json:"direction"`
	Warning   string    `yaml:"warning" json:"warning"`
	Window    int       `yaml:"window" json:"window"`
}

// Violated reports whether the angle breaches the rule on this frame.
func (r PostureRule) Violated(angle float64) bool {
	if r.Direction == Above {
		return angle > r.Limit
	}
	return angle < r.Limit
}

// Condition is a profile predicate. Every field that is set must hold; an empty
// condition matches every profile.
type Condition struct {
	BMIAtLeast *float64            `yaml:"bmi_at_least,omitempty" json:"bmi_at_least,omitempty"`
	AgeBelow   *int                `yaml:"age_below,omitempty" json:"age_below,omitempty"`
	AgeAbove   *int                `yaml:"age_above,omitempty" json:"age_above,omitempty"`
	Level      models.FitnessLevel `yaml:"level,omitempty" json:"level,omitempty"`
}

// Matches evaluates the condition against a normalized profile.
func (c Condition) Matches(p models.Profile) bool {
	if c.BMIAtLeast != nil && p.BMI < *c.BMIAtLeast {
		return false
	}
	if c.AgeBelow != nil && p.Age >= *c.AgeBelow {
		return false
	}
	if c.AgeAbove != nil && p.Age <= *c.AgeAbove {
		return false
	}
	if c.Level != "" && p.FitnessLevel != c.Level {
		return false
	}
	return true
}

// LeniencyRule relaxes the depth threshold for a protected group.
type LeniencyRule struct {
	Name           string    `yaml:"name" json:"name"`
	When           Condition `yaml:"when" json:"when"`
	DepthThreshold float64   `yaml:"depth_threshold" json:"depth_threshold"`
	Message        string    `yaml:"message" json:"message"`
}

// ExerciseConfig is the static description of one exercise. Flexion is measured as
// a decreasing primary angle: the depth threshold sits below the extension threshold.
type ExerciseConfig struct {
	Type               ExerciseType   `yaml:"type" json:"type"`
	Name               string         `yaml:"name" json:"name"`
	PrimaryAngle       string         `yaml:"primary_angle" json:"primary_angle"`
	DepthThreshold     float64        `yaml:"depth_threshold" json:"depth_threshold"`
	ExtensionThreshold float64        `yaml:"extension_threshold" json:"extension_threshold"`
	ExtendedStage      string         `yaml:"extended_stage" json:"extended_stage"`
	FlexedStage        string         `yaml:"flexed_stage" json:"flexed_stage"`
	Posture            []PostureRule  `yaml:"posture" json:"posture"`
	Leniency           []LeniencyRule `yaml:"leniency" json:"leniency"`
}

// withDefaults fills optional fields.
func (c ExerciseConfig) withDefaults() ExerciseConfig {
	c.Type = ParseExerciseType(string(c.Type))
	if c.Name == "" {
		c.Name = string(c.Type)
	}
	if c.ExtendedStage == "" {
		c.ExtendedStage = "extended"
	}
	if c.FlexedStage == "" {
		c.FlexedStage = "flexed"
	}
	posture := make([]PostureRule, len(c.Posture))
	for i, r := range c.Posture {
		if r.Window <= 0 {
			r.Window = DefaultStabilityWindow
		}
		if r.Direction == "" {
			r.Direction = Below
		}
		posture[i] = r
	}
	c.Posture = posture
	leniency := make([]LeniencyRule, len(c.Leniency))
	for i, r := range c.Leniency {
		if lvl, ok := models.ParseFitnessLevel(string(r.When.Level)); ok {
			r.When.Level = lvl
		}
		leniency[i] = r
	}
	c.Leniency = leniency
	return c
}

// Validate checks that the config is usable by the state machine. The extension
// threshold must sit strictly above every depth threshold the policy can return,
// otherwise there is no hysteresis band.
func (c ExerciseConfig) Validate() error {
	if c.Type == "" {
		return fmt.Errorf("exercise type is required")
	}
	if c.PrimaryAngle == "" {
		return fmt.Errorf("%s: primary_angle is required", c.Type)
	}
	if !inDomain(c.ExtensionThreshold) {
		return fmt.Errorf("%s: extension_threshold %v out of range", c.Type, c.ExtensionThreshold)
	}
	if err := c.checkDepth("depth_threshold", c.DepthThreshold); err != nil {
		return err
	}
	for i, r := range c.Leniency {
		if err := c.checkDepth(fmt.Sprintf("leniency[%d].depth_threshold", i), r.DepthThreshold); err != nil {
			return err
		}
		if r.Message == "" {
			return fmt.Errorf("%s: leniency[%d].message is required", c.Type, i)
		}
		if r.When.Level != "" {
			if lvl, ok := models.ParseFitnessLevel(string(r.When.Level)); !ok || lvl != r.When.Level {
				return fmt.Errorf("%s: leniency[%d].when.level %q invalid", c.Type, i, r.When.Level)
			}
		}
	}
	for i, r := range c.Posture {
		if r.Angle == "" || r.Warning == "" {
			return fmt.Errorf("%s: posture[%d] needs angle and warning", c.Type, i)
		}
		if r.Direction != Below && r.Direction != Above {
			return fmt.Errorf("%s: posture[%d].direction %q invalid", c.Type, i, r.Direction)
		}
		if r.Window <= 0 {
			return fmt.Errorf("%s: posture[%d].window must be positive", c.Type, i)
		}
	}
	return nil
}

func (c ExerciseConfig) checkDepth(field string, v float64) error {
	if !inDomain(v) {
		return fmt.Errorf("%s: %s %v out of range", c.Type, field, v)
	}
	if v >= c.ExtensionThreshold {
		return fmt.Errorf("%s: %s %v must be below extension_threshold %v", c.Type, field, v, c.ExtensionThreshold)
	}
	return nil
}

// Angles lists every angle name the exercise reads, primary first.
func (c ExerciseConfig) Angles() []string {
	names := []string{c.PrimaryAngle}
	seen := map[string]bool{c.PrimaryAngle: true}
	for _, r := range c.Posture {
		if !seen[r.Angle] {
			seen[r.Angle] = true
			names = append(names, r.Angle)
		}
	}
	return names
}

// Registry is the lookup table of exercise configurations. It is built once at
// startup and read-only afterwards.
type Registry struct {
	configs map[ExerciseType]ExerciseConfig
	order   []ExerciseType
}

// NewRegistry validates and indexes the given configs. Duplicate types are rejected.
func NewRegistry(configs ...ExerciseConfig) (*Registry, error) {
	r := &Registry{configs: make(map[ExerciseType]ExerciseConfig, len(configs))}
	for _, c := range configs {
		c = c.withDefaults()
		if err := c.Validate(); err != nil {
			return nil, fmt.Errorf("invalid exercise config: %w", err)
		}
		if _, dup := r.configs[c.Type]; dup {
			return nil, fmt.Errorf("duplicate exercise type %q", c.Type)
		}
		r.configs[c.Type] = c
		r.order = append(r.order, c.Type)
	}
	return r, nil
}

// DefaultRegistry returns a registry holding the built-in exercises.
func DefaultRegistry() *Registry {
	r, err := NewRegistry(Builtin()...)
	if err != nil {
		panic(err)
	}
	return r
}

// Lookup returns the config for an exercise type.
func (r *Registry) Lookup(t ExerciseType) (ExerciseConfig, bool) {
	c, ok := r.configs[t]
	return c, ok
}

// Get is Lookup returning ErrUnknownExercise for missing types.
func (r *Registry) Get(t ExerciseType) (ExerciseConfig, error) {
	c, ok := r.configs[t]
	if !ok {
		return ExerciseConfig{}, fmt.Errorf("%w: %q", ErrUnknownExercise, t)
	}
	return c, nil
}

// Types returns the registered exercise types in registration order.
func (r *Registry) Types() []ExerciseType {
	return append([]ExerciseType(nil), r.order...)
}

// Configs returns all configs in registration order.
func (r *Registry) Configs() []ExerciseConfig {
	out := make([]ExerciseConfig, 0, len(r.order))
	for _, t := range r.order {
		out = append(out, r.configs[t])
	}
	return out
}

func ptr[T any](v T) *T { return &v }

// Builtin returns the stock exercise table.
func Builtin() []ExerciseConfig {
	return []ExerciseConfig{
		{
			Type:               Squat,
			Name:               "Squat",
			PrimaryAngle:       "knee",
			DepthThreshold:     90,
			ExtensionThreshold: 150,
			ExtendedStage:      "up",
			FlexedStage:        "down",
			Posture: []PostureRule{
				{Angle: "hip", Limit: 80, Direction: Below, Warning: "Don't lean too far forward", Window: 8},
			},
			Leniency: []LeniencyRule{
				{Name: "child", When: Condition{AgeBelow: ptr(14)}, DepthThreshold: 100, Message: "Keeping conditions relaxed for children"},
				{Name: "senior", When: Condition{AgeAbove: ptr(55)}, DepthThreshold: 105, Message: "Keeping conditions relaxed for seniors"},
				{Name: "overweight", When: Condition{BMIAtLeast: ptr(27.0)}, DepthThreshold: 100, Message: "Keeping conditions relaxed due to body weight"},
			},
		},
		{
			Type:               PushUp,
			Name:               "Push-up",
			PrimaryAngle:       "elbow",
			DepthThreshold:     90,
			ExtensionThreshold: 160,
			ExtendedStage:      "extended",
			FlexedStage:        "bent",
			Posture: []PostureRule{
				{Angle: "hip", Limit: 140, Direction: Below, Warning: "Keep your body straight", Window: 10},
			},
			Leniency: []LeniencyRule{
				{Name: "obesity", When: Condition{BMIAtLeast: ptr(30.0)}, DepthThreshold: 110, Message: "Keeping conditions relaxed due to obesity"},
				{Name: "beginner", When: Condition{Level: models.LevelBeginner}, DepthThreshold: 110, Message: "Keeping conditions relaxed for beginners"},
				{Name: "child", When: Condition{AgeBelow: ptr(14)}, DepthThreshold: 110, Message: "Keeping conditions relaxed for children"},
			},
		},
		{
			Type:               BicepCurl,
			Name:               "Bicep curl",
			PrimaryAngle:       "elbow",
			DepthThreshold:     50,
			ExtensionThreshold: 150,
			ExtendedStage:      "down",
			FlexedStage:        "up",
			Posture: []PostureRule{
				{Angle: "shoulder", Limit: 40, Direction: Above, Warning: "Keep your upper arm still", Window: 10},
			},
			Leniency: []LeniencyRule{
				{Name: "beginner", When: Condition{Level: models.LevelBeginner}, DepthThreshold: 65, Message: "Keeping conditions relaxed for beginners"},
				{Name: "senior", When: Condition{AgeAbove: ptr(55)}, DepthThreshold: 65, Message: "Keeping conditions relaxed for seniors"},
				{Name: "child", When: Condition{AgeBelow: ptr(14)}, DepthThreshold: 65, Message: "Keeping conditions relaxed for children"},
			},
		},
	}
}
