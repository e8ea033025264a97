package coach

import (
	"testing"

	"github.com/claude/repcoach/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustConfig(t *testing.T, typ ExerciseType) ExerciseConfig {
	t.Helper()
	cfg, err := DefaultRegistry().Get(typ)
	require.NoError(t, err)
	return cfg
}

// TestDeriveStrictDefault verifies that the default profile gets the strict base
// threshold and no disclosure message for every built-in exercise.
func TestDeriveStrictDefault(t *testing.T) {
	for _, cfg := range DefaultRegistry().Configs() {
		th := Derive(models.DefaultProfile(), cfg)
		assert.Equal(t, cfg.DepthThreshold, th.Depth, cfg.Type)
		assert.Equal(t, cfg.ExtensionThreshold, th.Extension, cfg.Type)
		assert.Empty(t, th.Notice, cfg.Type)
		assert.Empty(t, th.Rule, cfg.Type)
	}
}

// TestDerivePushUpObesity covers the leniency scenario: BMI 32 relaxes push-up
// depth to 110 and discloses it.
func TestDerivePushUpObesity(t *testing.T) {
	th := Derive(models.Profile{BMI: 32}, mustConfig(t, PushUp))
	assert.Equal(t, 110.0, th.Depth)
	assert.Equal(t, 160.0, th.Extension)
	assert.Equal(t, "obesity", th.Rule)
	assert.NotEmpty(t, th.Notice)
}

// TestDeriveFirstMatchWins verifies rule priority when a profile matches several
// leniency rules.
func TestDeriveFirstMatchWins(t *testing.T) {
	cases := []struct {
		name    string
		typ     ExerciseType
		profile models.Profile
		depth   float64
		rule    string
	}{
		{"pushup obese beginner", PushUp, models.Profile{Age: 30, BMI: 35, FitnessLevel: models.LevelBeginner}, 110, "obesity"},
		{"pushup beginner child", PushUp, models.Profile{Age: 12, BMI: 18, FitnessLevel: models.LevelBeginner}, 110, "beginner"},
		{"pushup child", PushUp, models.Profile{Age: 12, BMI: 18, FitnessLevel: models.LevelAdvanced}, 110, "child"},
		{"squat heavy senior", Squat, models.Profile{Age: 60, BMI: 30}, 105, "senior"},
		{"squat heavy child", Squat, models.Profile{Age: 10, BMI: 28}, 100, "child"},
		{"squat heavy adult", Squat, models.Profile{Age: 40, BMI: 27}, 100, "overweight"},
		{"squat bmi just below", Squat, models.Profile{Age: 40, BMI: 26.99}, 90, ""},
		{"squat age 55 is not senior", Squat, models.Profile{Age: 55, BMI: 22}, 90, ""},
		{"squat age 14 is not child", Squat, models.Profile{Age: 14, BMI: 22}, 90, ""},
		{"curl beginner", BicepCurl, models.Profile{FitnessLevel: models.LevelBeginner}, 65, "beginner"},
		{"curl advanced adult", BicepCurl, models.Profile{Age: 35, FitnessLevel: models.LevelAdvanced}, 50, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			th := Derive(tc.profile, mustConfig(t, tc.typ))
			assert.Equal(t, tc.depth, th.Depth)
			assert.Equal(t, tc.rule, th.Rule)
			assert.Equal(t, tc.rule != "", th.Notice != "")
		})
	}
}

// TestDeriveIsPure verifies identical inputs give identical outputs and that the
// caller's profile is not modified by normalization.
func TestDeriveIsPure(t *testing.T) {
	cfg := mustConfig(t, Squat)
	p := models.Profile{Age: 0, BMI: -1, FitnessLevel: "???"}
	first := Derive(p, cfg)
	second := Derive(p, cfg)
	assert.Equal(t, first, second)
	assert.Equal(t, models.Profile{Age: 0, BMI: -1, FitnessLevel: "???"}, p)
}

// TestDeriveNeverTouchesPosture verifies that a lenient profile still has the same
// posture rules as the strict one.
func TestDeriveNeverTouchesPosture(t *testing.T) {
	cfg := mustConfig(t, PushUp)
	before := append([]PostureRule(nil), cfg.Posture...)
	_ = Derive(models.Profile{BMI: 40, FitnessLevel: models.LevelBeginner}, cfg)
	assert.Equal(t, before, cfg.Posture)
}
