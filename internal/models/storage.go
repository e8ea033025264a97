package models

import (
	"time"

	"github.com/google/uuid"
)

// UserRow is a row of the users table.
type UserRow struct {
	ID           int          `json:"id"`
	Name         string       `json:"name"`
	Age          int          `json:"age"`
	HeightCm     float64      `json:"height_cm"`
	WeightKg     float64      `json:"weight_kg"`
	FitnessLevel FitnessLevel `json:"fitness_level"`
	Goal         string       `json:"goal"`
	CreatedAt    time.Time    `json:"created_at"`
}

// Profile derives the threshold-relevant profile from the stored row.
func (u UserRow) Profile() Profile {
	return Profile{
		Age:          u.Age,
		BMI:          BMI(u.HeightCm, u.WeightKg),
		FitnessLevel: u.FitnessLevel,
	}.Normalized()
}

// SessionRow is a row of the workout_sessions table: the persisted summary of one
// finished exercise session.
type SessionRow struct {
	ID          uuid.UUID `json:"id"`
	UserID      int       `json:"user_id"`
	Exercise    string    `json:"exercise"`
	Reps        int       `json:"final_rep_count"`
	TotalCycles int       `json:"total_cycles"`
	CorrectReps int       `json:"correct_reps"`
	Accuracy    float64   `json:"final_accuracy"`
	StartedAt   time.Time `json:"started_at"`
	EndedAt     time.Time `json:"ended_at"`
}
