// Package metrics records action outcomes as Prometheus series.
package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	statusSuccess = "success"
	statusError   = "error"
)

// Recorder implements core.MetricsRecorder on a Prometheus registry.
type Recorder struct {
	actions  *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewRecorder registers the action series on reg. A nil reg uses the default registerer.
func NewRecorder(reg prometheus.Registerer) (*Recorder, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	r := &Recorder{
		actions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "whalewatcher",
			Name:      "actions_total",
			Help:      "Case store actions by operation and outcome.",
		}, []string{"operation", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "whalewatcher",
			Name:      "action_duration_seconds",
			Help:      "Case store action latency.",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		}, []string{"operation"}),
	}
	for _, c := range []prometheus.Collector{r.actions, r.duration} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Observe records one action outcome.
func (r *Recorder) Observe(_ context.Context, op string, success bool, duration time.Duration) {
	status := statusSuccess
	if !success {
		status = statusError
	}
	r.actions.WithLabelValues(op, status).Inc()
	r.duration.WithLabelValues(op).Observe(duration.Seconds())
}
