package mcp

import (
	"context"
	"errors"
	"time"

	"github.com/claude/repcoach/internal/coach"
	"github.com/claude/repcoach/internal/models"
	"github.com/claude/repcoach/internal/storage"
	"github.com/mark3labs/mcp-go/mcp"
)

// defaultTimeRange returns start/end defaulting to the last 7 days.
func defaultTimeRange(startStr, endStr string) (time.Time, time.Time, error) {
	var start, end time.Time
	var err error

	if endStr != "" {
		end, err = parseFlexTime(endStr)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
	} else {
		end = time.Now()
	}

	if startStr != "" {
		start, err = parseFlexTime(startStr)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
	} else {
		start = end.AddDate(0, 0, -7)
	}

	return start, end, nil
}

func parseFlexTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, s)
	if err == nil {
		return t, nil
	}
	t, err = time.Parse("2006-01-02", s)
	if err == nil {
		return t, nil
	}
	return time.Time{}, err
}

// userID returns the user_id argument, falling back to the transport identity.
func userID(ctx context.Context, req mcp.CallToolRequest) int {
	return req.GetInt("user_id", UserIDFromContext(ctx))
}

// --- Tool definitions ---

var toolListExercises = mcp.NewTool("list_exercises",
	mcp.WithDescription("List the supported exercises with their primary angle, depth and extension thresholds, posture rules and leniency rules."),
)

var toolDeriveThresholds = mcp.NewTool("derive_thresholds",
	mcp.WithDescription("Compute the depth threshold a user would get for an exercise. Uses the stored profile when user_id is given, otherwise age/bmi/fitness_level. Missing values fall back to age 25, BMI 22, intermediate."),
	mcp.WithString("exercise", mcp.Required(), mcp.Description("Exercise (e.g. squat, pushup, bicep_curl)")),
	mcp.WithNumber("user_id", mcp.Description("Stored profile to use. Overrides age/bmi/fitness_level.")),
	mcp.WithNumber("age", mcp.Description("Age in years")),
	mcp.WithNumber("bmi", mcp.Description("Body mass index")),
	mcp.WithString("fitness_level", mcp.Description("Fitness level"), mcp.Enum("beginner", "intermediate", "advanced")),
)

var toolGetProfile = mcp.NewTool("get_profile",
	mcp.WithDescription("Retrieve a user profile (age, height, weight, fitness level, goal) with its derived BMI."),
	mcp.WithNumber("user_id", mcp.Description("User ID. Defaults to the authenticated user.")),
)

var toolGetSessionHistory = mcp.NewTool("get_session_history",
	mcp.WithDescription("Retrieve finished exercise sessions with rep count, total cycles, correct reps and accuracy, newest first."),
	mcp.WithNumber("user_id", mcp.Description("User ID. Defaults to the authenticated user.")),
	mcp.WithString("exercise", mcp.Description("Filter by exercise (e.g. squat)")),
	mcp.WithString("start", mcp.Description("Start date (ISO 8601 or YYYY-MM-DD). Defaults to 7 days ago.")),
	mcp.WithString("end", mcp.Description("End date (ISO 8601 or YYYY-MM-DD). Defaults to now.")),
)

var toolGetExerciseStats = mcp.NewTool("get_exercise_stats",
	mcp.WithDescription("Per-exercise progress: session count, total and correct reps, average and best accuracy."),
	mcp.WithNumber("user_id", mcp.Description("User ID. Defaults to the authenticated user.")),
	mcp.WithString("start", mcp.Description("Start date. Defaults to 7 days ago.")),
	mcp.WithString("end", mcp.Description("End date. Defaults to now.")),
)

// --- Tool handlers ---

func (h *handlers) listExercises(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	result, err := mcp.NewToolResultJSON(h.registry.Configs())
	if err != nil {
		return mcp.NewToolResultError("serialization failed"), nil
	}
	return result, nil
}

// thresholdResult is the derive_thresholds response.
type thresholdResult struct {
	Exercise   coach.ExerciseType  `json:"exercise"`
	Profile    models.Profile      `json:"profile"`
	Thresholds coach.Thresholds    `json:"thresholds"`
	Posture    []coach.PostureRule `json:"posture"`
}

func (h *handlers) deriveThresholds(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := req.RequireString("exercise")
	if err != nil {
		return mcp.NewToolResultError("exercise parameter is required"), nil
	}
	cfg, err := h.registry.Get(coach.ParseExerciseType(name))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var profile models.Profile
	if uid := req.GetInt("user_id", 0); uid > 0 {
		row, err := h.ds.GetProfile(ctx, uid)
		if errors.Is(err, storage.ErrNotFound) {
			return mcp.NewToolResultError("profile not found"), nil
		}
		if err != nil {
			h.log.Error("mcp derive_thresholds", "error", err)
			return mcp.NewToolResultError("query failed: " + err.Error()), nil
		}
		profile = row.Profile()
	} else {
		profile = models.Profile{
			Age:          req.GetInt("age", 0),
			BMI:          req.GetFloat("bmi", 0),
			FitnessLevel: models.FitnessLevel(req.GetString("fitness_level", "")),
		}.Normalized()
	}

	result, err := mcp.NewToolResultJSON(thresholdResult{
		Exercise:   cfg.Type,
		Profile:    profile,
		Thresholds: coach.Derive(profile, cfg),
		Posture:    cfg.Posture,
	})
	if err != nil {
		return mcp.NewToolResultError("serialization failed"), nil
	}
	return result, nil
}

func (h *handlers) getProfile(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	row, err := h.ds.GetProfile(ctx, userID(ctx, req))
	if errors.Is(err, storage.ErrNotFound) {
		return mcp.NewToolResultError("profile not found"), nil
	}
	if err != nil {
		h.log.Error("mcp get_profile", "error", err)
		return mcp.NewToolResultError("query failed: " + err.Error()), nil
	}

	result, err := mcp.NewToolResultJSON(map[string]any{
		"user":    row,
		"profile": row.Profile(),
		"bmi":     models.BMI(row.HeightCm, row.WeightKg),
	})
	if err != nil {
		return mcp.NewToolResultError("serialization failed"), nil
	}
	return result, nil
}

func (h *handlers) getSessionHistory(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	start, end, err := defaultTimeRange(req.GetString("start", ""), req.GetString("end", ""))
	if err != nil {
		return mcp.NewToolResultError("invalid date format: " + err.Error()), nil
	}

	exercise := req.GetString("exercise", "")
	if exercise != "" {
		exercise = string(coach.ParseExerciseType(exercise))
	}

	rows, err := h.ds.QuerySessions(ctx, userID(ctx, req), start, end, exercise)
	if err != nil {
		h.log.Error("mcp get_session_history", "error", err)
		return mcp.NewToolResultError("query failed: " + err.Error()), nil
	}
	if rows == nil {
		rows = []models.SessionRow{}
	}

	result, err := mcp.NewToolResultJSON(rows)
	if err != nil {
		return mcp.NewToolResultError("serialization failed"), nil
	}
	return result, nil
}

func (h *handlers) getExerciseStats(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	start, end, err := defaultTimeRange(req.GetString("start", ""), req.GetString("end", ""))
	if err != nil {
		return mcp.NewToolResultError("invalid date format: " + err.Error()), nil
	}

	stats, err := h.ds.ExerciseStats(ctx, userID(ctx, req), start, end)
	if err != nil {
		h.log.Error("mcp get_exercise_stats", "error", err)
		return mcp.NewToolResultError("query failed: " + err.Error()), nil
	}
	if stats == nil {
		stats = []storage.ExerciseStat{}
	}

	result, err := mcp.NewToolResultJSON(stats)
	if err != nil {
		return mcp.NewToolResultError("serialization failed"), nil
	}
	return result, nil
}
