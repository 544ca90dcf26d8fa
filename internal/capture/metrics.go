package capture

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/zombor/id-capture/internal/document"
)

// Metrics holds the service's Prometheus collectors
type Metrics struct {
	registry       *prometheus.Registry
	captures       *prometheus.CounterVec
	transitions    *prometheus.CounterVec
	submissions    *prometheus.CounterVec
	activeSessions prometheus.Gauge
}

// NewMetrics registers the collectors on reg. A nil reg gets a fresh registry
// with the Go and process collectors.
func NewMetrics(reg *prometheus.Registry) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	m := &Metrics{
		registry: reg,
		captures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "idcapture_capture_requests_total",
				Help: "Capture requests by outcome.",
			},
			[]string{"result"},
		),
		transitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "idcapture_session_transitions_total",
				Help: "Session state transitions by target state.",
			},
			[]string{"state"},
		),
		submissions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "idcapture_submissions_total",
				Help: "Submit calls by outcome.",
			},
			[]string{"result"},
		),
		activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "idcapture_active_sessions",
			Help: "Sessions currently held in memory.",
		}),
	}

	for _, c := range []prometheus.Collector{m.captures, m.transitions, m.submissions, m.activeSessions} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Gatherer exposes the registry for the /metrics handler
func (m *Metrics) Gatherer() prometheus.Gatherer {
	return m.registry
}

func captureResult(err error) string {
	switch {
	case errors.Is(err, document.ErrCaptureInProgress):
		return "in_progress"
	case errors.Is(err, document.ErrCaptureFailed):
		return "camera_failed"
	default:
		return "error"
	}
}

func submitResult(err error) string {
	if errors.Is(err, document.ErrNotSubmittable) {
		return "not_submittable"
	}
	return "failed"
}
