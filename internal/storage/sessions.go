package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/claude/repcoach/internal/models"
	"github.com/google/uuid"
)

// InsertSession stores a finished session summary. Returns true if inserted,
// false if a row with the same ID already exists.
func (db *DB) InsertSession(ctx context.Context, row models.SessionRow) (bool, error) {
	if row.ID == uuid.Nil {
		row.ID = uuid.New()
	}
	tag, err := db.Pool.Exec(ctx,
		`INSERT INTO workout_sessions (id, user_id, exercise, reps, total_cycles, correct_reps,
		 accuracy, started_at, ended_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		 ON CONFLICT DO NOTHING`,
		row.ID, row.UserID, row.Exercise, row.Reps, row.TotalCycles, row.CorrectReps,
		row.Accuracy, row.StartedAt, row.EndedAt)
	if err != nil {
		return false, fmt.Errorf("inserting session: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// QuerySessions returns a user's sessions started in [start, end), newest first.
// An empty exercise matches every exercise.
func (db *DB) QuerySessions(ctx context.Context, userID int, start, end time.Time, exercise string) ([]models.SessionRow, error) {
	rows, err := db.Pool.Query(ctx,
		`SELECT id, user_id, exercise, reps, total_cycles, correct_reps, accuracy, started_at, ended_at
		 FROM workout_sessions
		 WHERE user_id = $1 AND started_at >= $2 AND started_at < $3
		   AND ($4 = '' OR exercise = $4)
		 ORDER BY started_at DESC`,
		userID, start, end, exercise)
	if err != nil {
		return nil, fmt.Errorf("querying sessions: %w", err)
	}
	defer rows.Close()

	var result []models.SessionRow
	for rows.Next() {
		var s models.SessionRow
		if err := rows.Scan(&s.ID, &s.UserID, &s.Exercise, &s.Reps, &s.TotalCycles, &s.CorrectReps,
			&s.Accuracy, &s.StartedAt, &s.EndedAt); err != nil {
			return nil, fmt.Errorf("scanning session: %w", err)
		}
		result = append(result, s)
	}
	return result, rows.Err()
}

// ExerciseStat holds aggregate results for one exercise.
type ExerciseStat struct {
	Exercise     string     `json:"exercise"`
	Sessions     int64      `json:"sessions"`
	TotalReps    int64      `json:"total_reps"`
	CorrectReps  int64      `json:"correct_reps"`
	AvgAccuracy  float64    `json:"avg_accuracy"`
	BestAccuracy float64    `json:"best_accuracy"`
	LastSession  *time.Time `json:"last_session,omitempty"`
}

// ExerciseStats aggregates a user's sessions in [start, end) by exercise.
func (db *DB) ExerciseStats(ctx context.Context, userID int, start, end time.Time) ([]ExerciseStat, error) {
	rows, err := db.Pool.Query(ctx,
		`SELECT exercise, COUNT(*), COALESCE(SUM(reps), 0), COALESCE(SUM(correct_reps), 0),
		        ROUND(AVG(accuracy)::numeric, 2)::float8, MAX(accuracy), MAX(started_at)
		 FROM workout_sessions
		 WHERE user_id = $1 AND started_at >= $2 AND started_at < $3
		 GROUP BY exercise
		 ORDER BY exercise`,
		userID, start, end)
	if err != nil {
		return nil, fmt.Errorf("querying exercise stats: %w", err)
	}
	defer rows.Close()

	var result []ExerciseStat
	for rows.Next() {
		var s ExerciseStat
		if err := rows.Scan(&s.Exercise, &s.Sessions, &s.TotalReps, &s.CorrectReps,
			&s.AvgAccuracy, &s.BestAccuracy, &s.LastSession); err != nil {
			return nil, fmt.Errorf("scanning exercise stat: %w", err)
		}
		result = append(result, s)
	}
	return result, rows.Err()
}
