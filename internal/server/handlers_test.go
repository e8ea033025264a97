package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/claude/repcoach/internal/coach"
	"github.com/claude/repcoach/internal/heartrate"
	"github.com/claude/repcoach/internal/metrics"
	"github.com/claude/repcoach/internal/models"
	"github.com/claude/repcoach/internal/session"
	"github.com/claude/repcoach/internal/storage"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "test-key"

type memStore struct {
	mu       sync.Mutex
	users    map[int]models.UserRow
	sessions map[uuid.UUID]models.SessionRow

	gotStart, gotEnd time.Time
}

func newMemStore() *memStore {
	return &memStore{users: map[int]models.UserRow{}, sessions: map[uuid.UUID]models.SessionRow{}}
}

func (m *memStore) CreateProfile(_ context.Context, in storage.NewProfile) (*models.UserRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row := models.UserRow{
		ID: len(m.users) + 1, Name: in.Name, Age: in.Age, HeightCm: in.HeightCm, WeightKg: in.WeightKg,
		FitnessLevel: models.FitnessLevel(in.FitnessLevel), Goal: in.Goal, CreatedAt: time.Now(),
	}
	m.users[row.ID] = row
	return &row, nil
}

func (m *memStore) GetProfile(_ context.Context, id int) (*models.UserRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.users[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &row, nil
}

func (m *memStore) ListProfiles(context.Context) ([]models.UserRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.UserRow, 0, len(m.users))
	for _, u := range m.users {
		out = append(out, u)
	}
	return out, nil
}

func (m *memStore) InsertSession(_ context.Context, row models.SessionRow) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[row.ID]; ok {
		return false, nil
	}
	m.sessions[row.ID] = row
	return true, nil
}

func (m *memStore) QuerySessions(_ context.Context, userID int, start, end time.Time, exercise string) ([]models.SessionRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gotStart, m.gotEnd = start, end
	var out []models.SessionRow
	for _, s := range m.sessions {
		if s.UserID == userID && (exercise == "" || s.Exercise == exercise) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *memStore) ExerciseStats(_ context.Context, userID int, _, _ time.Time) ([]storage.ExerciseStat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	byExercise := map[string]*storage.ExerciseStat{}
	for _, s := range m.sessions {
		if s.UserID != userID {
			continue
		}
		st, ok := byExercise[s.Exercise]
		if !ok {
			st = &storage.ExerciseStat{Exercise: s.Exercise}
			byExercise[s.Exercise] = st
		}
		st.Sessions++
		st.TotalReps += int64(s.Reps)
		st.CorrectReps += int64(s.CorrectReps)
	}
	var out []storage.ExerciseStat
	for _, st := range byExercise {
		out = append(out, *st)
	}
	return out, nil
}

type testEnv struct {
	srv   *Server
	store *memStore
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store := newMemStore()
	m := metrics.NewTestManager()
	registry := coach.DefaultRegistry()
	mgr := session.NewManager(registry, store, nil, session.DefaultOptions(), m, discard)
	t.Cleanup(func() { mgr.Shutdown(context.Background()) })
	return &testEnv{
		srv:   New(store, mgr, registry, nil, m, testKey, discard),
		store: store,
	}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("X-API-Key", testKey)
	rec := httptest.NewRecorder()
	e.srv.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&v), rec.Body.String())
	return v
}

func (e *testEnv) startSession(t *testing.T, req session.StartRequest) session.Snapshot {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/api/v1/sessions", req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[session.Snapshot](t, rec)
}

func (e *testEnv) frame(t *testing.T, id uuid.UUID, angles models.AngleSample) *httptest.ResponseRecorder {
	t.Helper()
	return e.do(t, http.MethodPost, "/api/v1/sessions/"+id.String()+"/frames", map[string]any{"angles": angles})
}

// TestAuthRequired verifies the API rejects requests without a key.
func TestAuthRequired(t *testing.T) {
	e := newTestEnv(t)
	rec := httptest.NewRecorder()
	e.srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/exercises", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

// TestHandleMeDefault verifies /api/v1/me returns the dev user when Tailscale is off.
func TestHandleMeDefault(t *testing.T) {
	e := newTestEnv(t)
	rec := e.do(t, http.MethodGet, "/api/v1/me", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	info := decode[UserInfo](t, rec)
	assert.Equal(t, "local", info.Login)
}

// TestListExercises verifies the registry is exposed in order.
func TestListExercises(t *testing.T) {
	e := newTestEnv(t)
	rec := e.do(t, http.MethodGet, "/api/v1/exercises", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	configs := decode[[]coach.ExerciseConfig](t, rec)
	require.Len(t, configs, 3)
	assert.Equal(t, coach.Squat, configs[0].Type)
}

// TestProfileLifecycle verifies creation normalizes the level and thresholds reflect leniency.
func TestProfileLifecycle(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(t, http.MethodPost, "/api/v1/profiles", storage.NewProfile{
		Name: "Rosa", Age: 62, HeightCm: 160, WeightKg: 60, FitnessLevel: "couch",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	row := decode[models.UserRow](t, rec)
	assert.Equal(t, models.LevelBeginner, row.FitnessLevel)

	rec = e.do(t, http.MethodGet, "/api/v1/profiles/1", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = e.do(t, http.MethodGet, "/api/v1/profiles/1/thresholds", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var got struct {
		Thresholds map[coach.ExerciseType]coach.Thresholds `json:"thresholds"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
	assert.Equal(t, 105.0, got.Thresholds[coach.Squat].Depth)
	assert.Equal(t, 110.0, got.Thresholds[coach.PushUp].Depth)
	assert.Equal(t, 65.0, got.Thresholds[coach.BicepCurl].Depth)
}

// TestProfileErrors verifies bad input and missing profiles map to 400 and 404.
func TestProfileErrors(t *testing.T) {
	e := newTestEnv(t)
	assert.Equal(t, http.StatusBadRequest, e.do(t, http.MethodPost, "/api/v1/profiles", storage.NewProfile{Age: 30}).Code)
	assert.Equal(t, http.StatusBadRequest, e.do(t, http.MethodPost, "/api/v1/profiles", storage.NewProfile{Name: "x", Age: -1}).Code)
	assert.Equal(t, http.StatusBadRequest, e.do(t, http.MethodGet, "/api/v1/profiles/abc", nil).Code)
	assert.Equal(t, http.StatusNotFound, e.do(t, http.MethodGet, "/api/v1/profiles/42", nil).Code)
}

// TestSessionFlow runs a stored-profile squat session through the API and checks
// that the finished summary lands in history.
func TestSessionFlow(t *testing.T) {
	e := newTestEnv(t)
	e.do(t, http.MethodPost, "/api/v1/profiles", storage.NewProfile{Name: "Sam", Age: 30, FitnessLevel: "advanced"})

	snap := e.startSession(t, session.StartRequest{UserID: 1, Exercise: "Squats"})
	assert.Equal(t, "squat", snap.Exercise)
	assert.Equal(t, 90.0, snap.Thresholds.Depth)

	var res models.FrameResult
	for _, k := range []float64{170, 80, 170, 100, 170} {
		rec := e.frame(t, snap.ID, models.AngleSample{"knee": k, "hip": 120})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		res = decode[models.FrameResult](t, rec)
	}
	assert.Equal(t, 1, res.RepCount, "the shallow second dip is not a rep")
	assert.Equal(t, 1, res.TotalCycles)
	assert.Equal(t, 100.0, res.Accuracy)

	rec := e.do(t, http.MethodGet, "/api/v1/sessions/"+snap.ID.String(), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, decode[session.Snapshot](t, rec).Result.RepCount)

	rec = e.do(t, http.MethodPost, "/api/v1/sessions/"+snap.ID.String()+"/finish", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	row := decode[models.SessionRow](t, rec)
	assert.Equal(t, 1, row.Reps)

	rec = e.do(t, http.MethodGet, "/api/v1/history?user_id=1&exercise=squat", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rows := decode[[]models.SessionRow](t, rec)
	require.Len(t, rows, 1)
	assert.Equal(t, snap.ID, rows[0].ID)

	rec = e.do(t, http.MethodGet, "/api/v1/history/stats?user_id=1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	stats := decode[[]storage.ExerciseStat](t, rec)
	require.Len(t, stats, 1)
	assert.EqualValues(t, 1, stats[0].TotalReps)

	// The session is gone once finished.
	assert.Equal(t, http.StatusNotFound, e.do(t, http.MethodGet, "/api/v1/sessions/"+snap.ID.String(), nil).Code)
}

// TestSessionErrors verifies the error mapping for session endpoints.
func TestSessionErrors(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(t, http.MethodPost, "/api/v1/sessions", session.StartRequest{Exercise: "deadlift"})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "unknown exercise")

	rec = e.do(t, http.MethodPost, "/api/v1/sessions", session.StartRequest{UserID: 9, Exercise: "squat"})
	assert.Equal(t, http.StatusNotFound, rec.Code, "unknown profile")

	rec = e.do(t, http.MethodPost, "/api/v1/sessions/not-a-uuid/frames", map[string]any{"angles": map[string]float64{"knee": 90}})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "malformed id")

	assert.Equal(t, http.StatusNotFound, e.frame(t, uuid.New(), models.AngleSample{"knee": 90}).Code, "unknown session")

	snap := e.startSession(t, session.StartRequest{Exercise: "squat"})
	rec = e.frame(t, snap.ID, models.AngleSample{"knee": 400})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code, "out-of-domain angle")
	assert.Contains(t, rec.Body.String(), "knee")

	rec = e.do(t, http.MethodPost, "/api/v1/sessions/"+snap.ID.String()+"/finish", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = e.do(t, http.MethodPost, "/api/v1/sessions/"+snap.ID.String()+"/finish", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code, "finished sessions are removed")
}

// TestAnonymousSession verifies an inline profile gets leniency and is not persisted.
func TestAnonymousSession(t *testing.T) {
	e := newTestEnv(t)

	snap := e.startSession(t, session.StartRequest{
		Exercise: "pushup",
		Profile:  &models.Profile{Age: 40, BMI: 32, FitnessLevel: models.LevelIntermediate},
	})
	assert.Equal(t, 110.0, snap.Thresholds.Depth)

	var res models.FrameResult
	for _, elbow := range []float64{170, 105, 170} {
		rec := e.frame(t, snap.ID, models.AngleSample{"elbow": elbow})
		require.Equal(t, http.StatusOK, rec.Code)
		res = decode[models.FrameResult](t, rec)
	}
	assert.Equal(t, 1, res.RepCount)
	assert.Equal(t, "Keeping conditions relaxed due to obesity", res.Notice)

	rec := e.do(t, http.MethodGet, "/api/v1/sessions", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]session.Snapshot](t, rec), 1)

	rec = e.do(t, http.MethodPost, "/api/v1/sessions/"+snap.ID.String()+"/finish", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, e.store.sessions)
}

// TestSessionEvents verifies frames and the final summary are streamed over SSE.
func TestSessionEvents(t *testing.T) {
	e := newTestEnv(t)
	ts := httptest.NewServer(e.srv)
	defer ts.Close()

	snap := e.startSession(t, session.StartRequest{Exercise: "squat"})

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/api/v1/sessions/"+snap.ID.String()+"/events", nil)
	require.NoError(t, err)
	req.Header.Set("X-API-Key", testKey)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	for _, k := range []float64{170, 80, 170} {
		require.Equal(t, http.StatusOK, e.frame(t, snap.ID, models.AngleSample{"knee": k}).Code)
	}
	require.Equal(t, http.StatusOK, e.do(t, http.MethodPost, "/api/v1/sessions/"+snap.ID.String()+"/finish", nil).Code)

	var names []string
	var last string
	sc := bufio.NewScanner(resp.Body)
	for sc.Scan() {
		line := sc.Text()
		if name, ok := strings.CutPrefix(line, "event: "); ok {
			names = append(names, name)
		}
		if data, ok := strings.CutPrefix(line, "data: "); ok {
			last = data
		}
	}

	assert.Contains(t, names, session.EventFrame)
	require.NotEmpty(t, names)
	assert.Equal(t, session.EventFinished, names[len(names)-1])
	var row models.SessionRow
	require.NoError(t, json.Unmarshal([]byte(last), &row))
	assert.Equal(t, 1, row.Reps)
}

// TestUploadSession verifies offline summaries are validated and stored once.
func TestUploadSession(t *testing.T) {
	e := newTestEnv(t)
	e.do(t, http.MethodPost, "/api/v1/profiles", storage.NewProfile{Name: "Lee", Age: 35})

	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	row := models.SessionRow{
		ID: uuid.New(), UserID: 1, Exercise: "curls", Reps: 10, TotalCycles: 12, CorrectReps: 9,
		Accuracy: 75, StartedAt: start, EndedAt: start.Add(5 * time.Minute),
	}

	rec := e.do(t, http.MethodPost, "/api/v1/history", row)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "bicep_curl", e.store.sessions[row.ID].Exercise)

	rec = e.do(t, http.MethodPost, "/api/v1/history", row)
	assert.Equal(t, http.StatusOK, rec.Code, "duplicate upload is accepted")

	invalid := []struct {
		name   string
		mutate func(*models.SessionRow)
	}{
		{"correct above reps", func(r *models.SessionRow) { r.CorrectReps = 11 }},
		{"reps above cycles", func(r *models.SessionRow) {
			r.Reps, r.TotalCycles, r.CorrectReps, r.Accuracy = 5, 2, 1, 50
		}},
		{"accuracy mismatch", func(r *models.SessionRow) { r.Accuracy = 90 }},
		{"accuracy without cycles", func(r *models.SessionRow) {
			r.Reps, r.TotalCycles, r.CorrectReps, r.Accuracy = 0, 0, 0, 10
		}},
		{"negative count", func(r *models.SessionRow) { r.TotalCycles = -1 }},
		{"unknown exercise", func(r *models.SessionRow) { r.Exercise = "burpee" }},
	}
	for _, c := range invalid {
		bad := row
		bad.ID = uuid.New()
		c.mutate(&bad)
		rec := e.do(t, http.MethodPost, "/api/v1/history", bad)
		assert.Equal(t, http.StatusBadRequest, rec.Code, c.name)
		_, stored := e.store.sessions[bad.ID]
		assert.False(t, stored, c.name)
	}

	bad := row
	bad.ID = uuid.New()
	bad.UserID = 7
	assert.Equal(t, http.StatusNotFound, e.do(t, http.MethodPost, "/api/v1/history", bad).Code)
}

// TestHistoryTimeRange verifies date-only bounds cover the whole end day.
func TestHistoryTimeRange(t *testing.T) {
	e := newTestEnv(t)
	rec := e.do(t, http.MethodGet, "/api/v1/history?start=2026-01-01&end=2026-01-07", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[]\n", rec.Body.String())
	assert.Equal(t, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), e.store.gotStart)
	assert.Equal(t, time.Date(2026, 1, 8, 0, 0, 0, 0, time.UTC), e.store.gotEnd)

	assert.Equal(t, http.StatusBadRequest, e.do(t, http.MethodGet, "/api/v1/history?start=yesterday", nil).Code)
	assert.Equal(t, http.StatusBadRequest, e.do(t, http.MethodGet, "/api/v1/history?user_id=0", nil).Code)
}

// TestHeartRateAndOptionalMounts verifies the heart-rate endpoint and that
// /metrics and /mcp 404 until attached.
func TestHeartRateAndOptionalMounts(t *testing.T) {
	e := newTestEnv(t)
	rec := e.do(t, http.MethodGet, "/api/v1/heartrate", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, heartrate.StatusDisabled, decode[heartrate.Reading](t, rec).Status)

	assert.Equal(t, http.StatusNotFound, e.do(t, http.MethodGet, "/metrics", nil).Code)
	assert.Equal(t, http.StatusNotFound, e.do(t, http.MethodPost, "/mcp", nil).Code)

	e.srv.SetMetricsHandler(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	assert.Equal(t, http.StatusOK, e.do(t, http.MethodGet, "/metrics", nil).Code)
}
