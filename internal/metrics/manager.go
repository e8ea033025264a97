package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Manager struct {
	// counters
	CounterRequests           *prometheus.CounterVec
	CounterFrames             *prometheus.CounterVec
	CounterInvalidFrames      *prometheus.CounterVec
	CounterReps               *prometheus.CounterVec
	CounterWarnings           *prometheus.CounterVec
	CounterHeartRateFailures  prometheus.Counter
	CounterFeedbackDelivered  *prometheus.CounterVec
	CounterFeedbackSuppressed *prometheus.CounterVec
	CounterSessionsPersisted  prometheus.Counter

	// gauges
	GaugeActiveSessions prometheus.Gauge
	GaugeHeartRate      prometheus.Gauge

	// histograms
	HistRequestDuration prometheus.Histogram
	HistSessionAccuracy prometheus.Histogram
}

func NewTestManager() *Manager {
	return NewManager("repcoach", "test", prometheus.NewRegistry())
}

func NewTestManagerAndRegistry() (*Manager, *prometheus.Registry) {
	reg := prometheus.NewRegistry()
	return NewManager("repcoach", "test", reg), reg
}

// NewRegistry returns a registry with the Go runtime and process collectors attached.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewBuildInfoCollector(),
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

func NewManager(namespace, subsystem string, reg prometheus.Registerer) *Manager {
	factory := promauto.With(reg)

	counterRequests := factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "request",
		Help:      "The total number of incoming requests",
	}, []string{"method", "status"})
	counterFrames := factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "frames_processed",
		Help:      "The total number of angle frames processed",
	}, []string{"exercise"})
	counterInvalidFrames := factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "frames_invalid",
		Help:      "The total number of frames rejected for out-of-range angles",
	}, []string{"exercise"})
	counterReps := factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "reps_counted",
		Help:      "The total number of repetitions counted",
	}, []string{"exercise", "correct"})
	counterWarnings := factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "posture_warnings",
		Help:      "The total number of frames carrying a posture warning",
	}, []string{"exercise", "warning"})
	counterHeartRateFailures := factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "heart_rate_poll_failures",
		Help:      "The total number of failed heart-rate sensor polls",
	})
	counterFeedbackDelivered := factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "feedback_delivered",
		Help:      "The total number of feedback events delivered",
	}, []string{"category"})
	counterFeedbackSuppressed := factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "feedback_suppressed",
		Help:      "The total number of feedback events dropped by cooldown or backlog",
	}, []string{"category"})
	counterSessionsPersisted := factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "sessions_persisted",
		Help:      "The total number of finished sessions written to storage",
	})

	gaugeActiveSessions := factory.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "active_sessions",
		Help:      "Current number of live exercise sessions",
	})
	gaugeHeartRate := factory.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "heart_rate_bpm",
		Help:      "Latest heart rate reported by the sensor",
	})

	histReqDuration := factory.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Buckets: []float64{
				0.00001, 0.0001, 0.0005, 0.001, 0.005,
				0.01, 0.05, 0.1, 0.5, 1, 10,
			},
			Name: "request_duration_seconds",
			Help: "Total duration of requests in seconds",
		},
	)
	histSessionAccuracy := factory.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Buckets:   []float64{10, 25, 50, 75, 90, 100},
			Name:      "session_accuracy_percent",
			Help:      "Final accuracy of finished sessions",
		},
	)

	return &Manager{
		CounterRequests:           counterRequests,
		CounterFrames:             counterFrames,
		CounterInvalidFrames:      counterInvalidFrames,
		CounterReps:               counterReps,
		CounterWarnings:           counterWarnings,
		CounterHeartRateFailures:  counterHeartRateFailures,
		CounterFeedbackDelivered:  counterFeedbackDelivered,
		CounterFeedbackSuppressed: counterFeedbackSuppressed,
		CounterSessionsPersisted:  counterSessionsPersisted,
		GaugeActiveSessions:       gaugeActiveSessions,
		GaugeHeartRate:            gaugeHeartRate,
		HistRequestDuration:       histReqDuration,
		HistSessionAccuracy:       histSessionAccuracy,
	}
}
