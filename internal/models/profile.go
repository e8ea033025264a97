package models

import (
	"math"
	"strings"
)

// FitnessLevel is the self-reported training experience of a user.
type FitnessLevel string

const (
	LevelBeginner     FitnessLevel = "beginner"
	LevelIntermediate FitnessLevel = "intermediate"
	LevelAdvanced     FitnessLevel = "advanced"
)

// Profile defaults applied when a field is missing or malformed.
const (
	DefaultAge   = 25
	DefaultBMI   = 22.0
	DefaultLevel = LevelIntermediate
)

// ParseFitnessLevel maps a free-form level string to a known level.
// Returns the level and true if recognized.
func ParseFitnessLevel(raw string) (FitnessLevel, bool) {
	switch FitnessLevel(strings.ToLower(strings.TrimSpace(raw))) {
	case LevelBeginner:
		return LevelBeginner, true
	case LevelIntermediate:
		return LevelIntermediate, true
	case LevelAdvanced:
		return LevelAdvanced, true
	}
	return "", false
}

// Profile is the read-only per-session view of a user used for threshold derivation.
type Profile struct {
	Age          int          `json:"age" yaml:"age"`
	BMI          float64      `json:"bmi" yaml:"bmi"`
	FitnessLevel FitnessLevel `json:"fitness_level" yaml:"fitness_level"`
}

// DefaultProfile returns the profile assumed when nothing is known about the user.
func DefaultProfile() Profile {
	return Profile{Age: DefaultAge, BMI: DefaultBMI, FitnessLevel: DefaultLevel}
}

// Normalized returns a copy with missing or malformed fields replaced by defaults.
func (p Profile) Normalized() Profile {
	out := p
	if out.Age <= 0 {
		out.Age = DefaultAge
	}
	if out.BMI <= 0 || math.IsNaN(out.BMI) || math.IsInf(out.BMI, 0) {
		out.BMI = DefaultBMI
	}
	level, ok := ParseFitnessLevel(string(out.FitnessLevel))
	if !ok {
		level = DefaultLevel
	}
	out.FitnessLevel = level
	return out
}

// BMI computes body-mass index from height in centimetres and weight in kilograms.
// Returns 0 when either input is not positive.
func BMI(heightCm, weightKg float64) float64 {
	if heightCm <= 0 || weightKg <= 0 {
		return 0
	}
	m := heightCm / 100
	return weightKg / (m * m)
}
