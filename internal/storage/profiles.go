package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/claude/repcoach/internal/models"
	"github.com/jackc/pgx/v5"
)

// NewProfile is the input for CreateProfile.
type NewProfile struct {
	Name         string  `json:"name"`
	Age          int     `json:"age"`
	HeightCm     float64 `json:"height_cm"`
	WeightKg     float64 `json:"weight_kg"`
	FitnessLevel string  `json:"fitness_level"`
	Goal         string  `json:"goal"`
}

// Normalize trims the name and coerces an unknown fitness level to beginner.
func (p NewProfile) Normalize() (NewProfile, error) {
	p.Name = strings.TrimSpace(p.Name)
	if p.Name == "" {
		return p, fmt.Errorf("name is required")
	}
	if p.Age < 0 || p.HeightCm < 0 || p.WeightKg < 0 {
		return p, fmt.Errorf("age, height_cm and weight_kg must not be negative")
	}
	level, ok := models.ParseFitnessLevel(p.FitnessLevel)
	if !ok {
		level = models.LevelBeginner
	}
	p.FitnessLevel = string(level)
	p.Goal = strings.TrimSpace(p.Goal)
	return p, nil
}

// CreateProfile inserts a user profile and returns the stored row.
func (db *DB) CreateProfile(ctx context.Context, in NewProfile) (*models.UserRow, error) {
	in, err := in.Normalize()
	if err != nil {
		return nil, err
	}
	var u models.UserRow
	err = db.Pool.QueryRow(ctx,
		`INSERT INTO users (name, age, height_cm, weight_kg, fitness_level, goal)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id, name, age, height_cm, weight_kg, fitness_level, goal, created_at`,
		in.Name, in.Age, in.HeightCm, in.WeightKg, in.FitnessLevel, in.Goal,
	).Scan(&u.ID, &u.Name, &u.Age, &u.HeightCm, &u.WeightKg, &u.FitnessLevel, &u.Goal, &u.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("inserting profile: %w", err)
	}
	return &u, nil
}

// GetProfile returns a user profile by ID, or ErrNotFound.
func (db *DB) GetProfile(ctx context.Context, id int) (*models.UserRow, error) {
	var u models.UserRow
	err := db.Pool.QueryRow(ctx,
		`SELECT id, name, age, height_cm, weight_kg, fitness_level, goal, created_at
		 FROM users WHERE id = $1`, id,
	).Scan(&u.ID, &u.Name, &u.Age, &u.HeightCm, &u.WeightKg, &u.FitnessLevel, &u.Goal, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("profile %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("querying profile: %w", err)
	}
	return &u, nil
}

// ListProfiles returns all user profiles ordered by ID.
func (db *DB) ListProfiles(ctx context.Context) ([]models.UserRow, error) {
	rows, err := db.Pool.Query(ctx,
		`SELECT id, name, age, height_cm, weight_kg, fitness_level, goal, created_at
		 FROM users ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("querying profiles: %w", err)
	}
	defer rows.Close()

	var result []models.UserRow
	for rows.Next() {
		var u models.UserRow
		if err := rows.Scan(&u.ID, &u.Name, &u.Age, &u.HeightCm, &u.WeightKg, &u.FitnessLevel, &u.Goal, &u.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning profile: %w", err)
		}
		result = append(result, u)
	}
	return result, rows.Err()
}
