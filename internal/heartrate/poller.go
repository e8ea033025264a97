// Package heartrate polls a wearable sensor bridge for the wearer's pulse.
package heartrate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/claude/repcoach/internal/metrics"
)

// MaxConsecutiveErrors is the number of failed polls after which the sensor is
// reported as disconnected.
const MaxConsecutiveErrors = 5

// HighHeartRateWarning is added to a frame's warnings while the pulse is over the limit.
const HighHeartRateWarning = "High heart rate!"

const (
	StatusInitializing = "initializing"
	StatusOffline      = "offline"
	StatusDisabled     = "disabled"
)

// Reading is the most recent sensor state.
type Reading struct {
	BPM       int       `json:"bpm"`
	Status    string    `json:"status"`
	Connected bool      `json:"connected"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Above reports whether the reading is live and over the given limit.
func (r Reading) Above(limit int) bool {
	return r.Connected && limit > 0 && r.BPM > limit
}

type sensorResponse struct {
	BPM    int    `json:"bpm"`
	Status string `json:"status"`
}

// Poller fetches {"bpm", "status"} from the sensor on a fixed cadence. Failures
// only degrade its own reading and are never returned to callers.
type Poller struct {
	url        string
	interval   time.Duration
	httpClient *http.Client
	metrics    *metrics.Manager
	log        *slog.Logger

	mu        sync.RWMutex
	bpm       int
	status    string
	errCount  int
	updatedAt time.Time
}

// NewPoller creates a poller for the sensor at url. m may be nil.
func NewPoller(url string, interval, timeout time.Duration, m *metrics.Manager, log *slog.Logger) *Poller {
	return &Poller{
		url:        url,
		interval:   interval,
		httpClient: &http.Client{Timeout: timeout},
		metrics:    m,
		log:        log,
		status:     StatusInitializing,
	}
}

// Run polls until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) error {
	p.log.Info("heart rate poller started", "url", p.url, "interval", p.interval)
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		p.Poll(ctx)
		select {
		case <-ctx.Done():
			p.log.Info("heart rate poller stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// Poll performs a single fetch and updates the latest reading.
func (p *Poller) Poll(ctx context.Context) {
	bpm, status, err := p.fetch(ctx)
	if ctx.Err() != nil {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.updatedAt = time.Now()

	switch {
	case err == nil:
		p.bpm = bpm
		p.status = status
		p.errCount = 0
	case isTransport(err):
		p.bpm = 0
		p.status = StatusOffline
		p.errCount++
		p.fail(err)
	default:
		p.status = err.Error()
		p.fail(err)
	}

	if p.metrics != nil {
		p.metrics.GaugeHeartRate.Set(float64(p.bpm))
	}
}

func (p *Poller) fail(err error) {
	if p.metrics != nil {
		p.metrics.CounterHeartRateFailures.Inc()
	}
	if p.errCount == MaxConsecutiveErrors {
		p.log.Warn("heart rate sensor disconnected", "url", p.url, "error", err)
		return
	}
	p.log.Debug("heart rate poll failed", "error", err)
}

type transportError struct{ err error }

func (e transportError) Error() string { return e.err.Error() }
func (e transportError) Unwrap() error { return e.err }

func isTransport(err error) bool {
	var te transportError
	return errors.As(err, &te)
}

func (p *Poller) fetch(ctx context.Context) (int, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return 0, "", fmt.Errorf("error: %w", err)
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return 0, "", transportError{err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, "", fmt.Errorf("server error: %d", resp.StatusCode)
	}

	var body sensorResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, "", fmt.Errorf("error: %w", err)
	}
	if body.Status == "" {
		body.Status = "unknown"
	}
	return body.BPM, body.Status, nil
}

// Latest returns the most recent reading.
func (p *Poller) Latest() Reading {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return Reading{
		BPM:       p.bpm,
		Status:    p.status,
		Connected: p.errCount < MaxConsecutiveErrors,
		UpdatedAt: p.updatedAt,
	}
}

// Source provides heart-rate readings to sessions.
type Source interface {
	Latest() Reading
}

// Disabled is the Source used when no sensor is configured.
type Disabled struct{}

func (Disabled) Latest() Reading {
	return Reading{Status: StatusDisabled}
}
