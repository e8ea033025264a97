package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/claude/repcoach/internal/coach"
	"github.com/claude/repcoach/internal/models"
	"github.com/claude/repcoach/internal/session"
	"github.com/claude/repcoach/internal/storage"
	"github.com/go-chi/chi/v5"
)

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, userInfoFromContext(r))
}

func (s *Server) handleListExercises(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.registry.Configs())
}

func (s *Server) handleHeartRate(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.hr.Latest())
}

func (s *Server) handleListProfiles(w http.ResponseWriter, r *http.Request) {
	rows, err := s.store.ListProfiles(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	if rows == nil {
		rows = []models.UserRow{}
	}
	writeJSON(w, http.StatusOK, rows)
}

func (s *Server) handleCreateProfile(w http.ResponseWriter, r *http.Request) {
	var in storage.NewProfile
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON: " + err.Error()})
		return
	}
	in, err := in.Normalize()
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	row, err := s.store.CreateProfile(r.Context(), in)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.log.Info("profile created", "user_id", row.ID, "fitness_level", row.FitnessLevel)
	writeJSON(w, http.StatusCreated, row)
}

func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil || id <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid profile ID"})
		return
	}
	row, err := s.store.GetProfile(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, row)
}

// handleProfileThresholds reports the depth threshold each exercise would use for a profile.
func (s *Server) handleProfileThresholds(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil || id <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid profile ID"})
		return
	}
	row, err := s.store.GetProfile(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}

	profile := row.Profile()
	out := make(map[coach.ExerciseType]coach.Thresholds)
	for _, cfg := range s.registry.Configs() {
		out[cfg.Type] = coach.Derive(profile, cfg)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"profile":    profile,
		"thresholds": out,
	})
}

func (s *Server) handleQueryHistory(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	start, end, err := parseTimeRange(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	exercise := r.URL.Query().Get("exercise")
	if exercise != "" {
		exercise = string(coach.ParseExerciseType(exercise))
	}

	rows, err := s.store.QuerySessions(r.Context(), userID, start, end, exercise)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if rows == nil {
		rows = []models.SessionRow{}
	}
	writeJSON(w, http.StatusOK, rows)
}

func (s *Server) handleHistoryStats(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	start, end, err := parseTimeRange(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	stats, err := s.store.ExerciseStats(r.Context(), userID, start, end)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if stats == nil {
		stats = []storage.ExerciseStat{}
	}
	writeJSON(w, http.StatusOK, stats)
}

// handleUploadSession stores a session summary scored offline. Re-uploading
// the same session ID is accepted and reported as not inserted.
func (s *Server) handleUploadSession(w http.ResponseWriter, r *http.Request) {
	var row models.SessionRow
	if err := json.NewDecoder(r.Body).Decode(&row); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON: " + err.Error()})
		return
	}
	if err := s.validateSummary(&row); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if _, err := s.store.GetProfile(r.Context(), row.UserID); err != nil {
		s.writeError(w, err)
		return
	}

	inserted, err := s.store.InsertSession(r.Context(), row)
	if err != nil {
		s.writeError(w, err)
		return
	}
	status := http.StatusOK
	if inserted {
		status = http.StatusCreated
		s.log.Info("session uploaded", "session", row.ID.String(), "user_id", row.UserID,
			"exercise", row.Exercise, "reps", row.Reps)
	}
	writeJSON(w, status, map[string]any{"id": row.ID, "inserted": inserted})
}

func (s *Server) validateSummary(row *models.SessionRow) error {
	if row.UserID <= 0 {
		return fmt.Errorf("user_id is required")
	}
	cfg, err := s.registry.Get(coach.ParseExerciseType(row.Exercise))
	if err != nil {
		return err
	}
	row.Exercise = string(cfg.Type)
	if row.Reps < 0 || row.TotalCycles < 0 || row.CorrectReps < 0 {
		return fmt.Errorf("counts must not be negative")
	}
	if row.CorrectReps > row.Reps || row.Reps > row.TotalCycles {
		return fmt.Errorf("counts must satisfy correct_reps <= final_rep_count <= total_cycles")
	}
	if want := coach.AccuracyOf(row.CorrectReps, row.TotalCycles); math.Abs(row.Accuracy-want) > 0.005 {
		return fmt.Errorf("final_accuracy %.2f does not match correct_reps/total_cycles (%.2f)", row.Accuracy, want)
	}
	if row.StartedAt.IsZero() {
		return fmt.Errorf("started_at is required")
	}
	if row.EndedAt.Before(row.StartedAt) {
		return fmt.Errorf("ended_at is before started_at")
	}
	return nil
}

// writeError maps domain errors to status codes.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, coach.ErrInvalidInput):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": err.Error()})
	case errors.Is(err, coach.ErrUnknownExercise):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.Is(err, session.ErrNotFound), errors.Is(err, storage.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	case errors.Is(err, session.ErrFinished):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	default:
		s.log.Error("request failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// userIDParam reads the user_id query parameter, defaulting to 1.
func userIDParam(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("user_id")
	if raw == "" {
		return 1, nil
	}
	id, err := strconv.Atoi(raw)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid user_id %q", raw)
	}
	return id, nil
}

func parseTimeRange(r *http.Request) (start, end time.Time, err error) {
	startStr := r.URL.Query().Get("start")
	endStr := r.URL.Query().Get("end")

	if startStr == "" {
		// Default: last 7 days
		end = time.Now()
		start = end.AddDate(0, 0, -7)
		return
	}

	start, err = time.Parse(time.RFC3339, startStr)
	if err != nil {
		start, err = time.Parse("2006-01-02", startStr)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
	}

	if endStr == "" {
		end = time.Now()
	} else {
		end, err = time.Parse(time.RFC3339, endStr)
		if err != nil {
			end, err = time.Parse("2006-01-02", endStr)
			if err != nil {
				return time.Time{}, time.Time{}, err
			}
			// End of day for date-only
			end = end.Add(24 * time.Hour)
		}
	}
	return
}
