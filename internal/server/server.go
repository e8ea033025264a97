package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/claude/repcoach/internal/coach"
	"github.com/claude/repcoach/internal/heartrate"
	"github.com/claude/repcoach/internal/metrics"
	"github.com/claude/repcoach/internal/models"
	"github.com/claude/repcoach/internal/session"
	"github.com/claude/repcoach/internal/storage"
	"github.com/go-chi/chi/v5"
)

// Store is the persistence the HTTP API reads and writes.
type Store interface {
	CreateProfile(ctx context.Context, in storage.NewProfile) (*models.UserRow, error)
	GetProfile(ctx context.Context, id int) (*models.UserRow, error)
	ListProfiles(ctx context.Context) ([]models.UserRow, error)
	InsertSession(ctx context.Context, row models.SessionRow) (bool, error)
	QuerySessions(ctx context.Context, userID int, start, end time.Time, exercise string) ([]models.SessionRow, error)
	ExerciseStats(ctx context.Context, userID int, start, end time.Time) ([]storage.ExerciseStat, error)
}

var _ Store = (*storage.DB)(nil)

// Server holds dependencies for HTTP handlers.
type Server struct {
	store    Store
	sessions *session.Manager
	registry *coach.Registry
	hr       heartrate.Source
	metrics  *metrics.Manager
	log      *slog.Logger
	apiKey   string
	router   chi.Router

	whois  WhoIser
	mcp    http.Handler
	scrape http.Handler
}

// New creates a new Server with all routes configured.
func New(store Store, sessions *session.Manager, registry *coach.Registry, hr heartrate.Source,
	m *metrics.Manager, apiKey string, log *slog.Logger) *Server {
	if hr == nil {
		hr = heartrate.Disabled{}
	}
	s := &Server{
		store:    store,
		sessions: sessions,
		registry: registry,
		hr:       hr,
		metrics:  m,
		log:      log,
		apiKey:   apiKey,
		router:   chi.NewRouter(),
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// SetMCP mounts the assistant tool endpoint at /mcp. Call before serving.
func (s *Server) SetMCP(h http.Handler) { s.mcp = h }

// SetMetricsHandler mounts the Prometheus scrape endpoint at /metrics. Call before serving.
func (s *Server) SetMetricsHandler(h http.Handler) { s.scrape = h }

// SetTailscale resolves caller identity through the tailnet instead of the dev user.
// Call before serving.
func (s *Server) SetTailscale(lc WhoIser) { s.whois = lc }

func (s *Server) routes() {
	r := s.router
	r.Use(RequestLogging(s.log))
	if s.metrics != nil {
		r.Use(RequestMetrics(s.metrics))
	}
	r.Use(CORS)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", optional(func() http.Handler { return s.scrape }))

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(APIKeyAuth(s.apiKey))
		r.Use(s.identify)

		r.Get("/me", s.handleMe)
		r.Get("/exercises", s.handleListExercises)
		r.Get("/heartrate", s.handleHeartRate)

		r.Get("/profiles", s.handleListProfiles)
		r.Post("/profiles", s.handleCreateProfile)
		r.Get("/profiles/{id}", s.handleGetProfile)
		r.Get("/profiles/{id}/thresholds", s.handleProfileThresholds)

		r.Get("/sessions", s.handleActiveSessions)
		r.Post("/sessions", s.handleStartSession)
		r.Get("/sessions/{id}", s.handleGetSession)
		r.Post("/sessions/{id}/frames", s.handleFrame)
		r.Get("/sessions/{id}/events", s.handleSessionEvents)
		r.Post("/sessions/{id}/finish", s.handleFinishSession)

		r.Get("/history", s.handleQueryHistory)
		r.Post("/history", s.handleUploadSession)
		r.Get("/history/stats", s.handleHistoryStats)
	})

	r.Group(func(r chi.Router) {
		r.Use(APIKeyAuth(s.apiKey))
		r.Use(s.identify)
		mcp := optional(func() http.Handler { return s.mcp })
		r.Handle("/mcp", mcp)
		r.Handle("/mcp/*", mcp)
	})
}

// identify picks Tailscale or dev identity per request.
func (s *Server) identify(next http.Handler) http.Handler {
	dev := DevIdentity(next)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.whois == nil {
			dev.ServeHTTP(w, r)
			return
		}
		TailscaleIdentity(s.whois, s.log)(next).ServeHTTP(w, r)
	})
}

// optional serves the handler returned by get, or 404 when none is attached.
func optional(get func() http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := get()
		if h == nil {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "not enabled"})
			return
		}
		h.ServeHTTP(w, r)
	})
}
