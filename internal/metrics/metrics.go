// Package metrics exposes Prometheus instrumentation for grouping runs and the
// HTTP surface.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const defaultNamespace = "cohort_balancer"

// Grouping outcomes.
const (
	OutcomeOK       = "ok"
	OutcomeInvalid  = "invalid"
	OutcomeRejected = "rejected"
)

// Recorder records grouping and request metrics. A nil *Recorder is valid and
// records nothing.
type Recorder struct {
	groupings *prometheus.CounterVec
	subjects  prometheus.Histogram
	spread    prometheus.Histogram
	duration  prometheus.Histogram
	requests  *prometheus.CounterVec
}

// New creates a Recorder and registers its collectors on reg.
// A nil reg falls back to prometheus.DefaultRegisterer and an empty namespace
// to "cohort_balancer".
func New(reg prometheus.Registerer, namespace string) *Recorder {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if namespace == "" {
		namespace = defaultNamespace
	}

	r := &Recorder{
		groupings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "grouping",
			Name:      "runs_total",
			Help:      "Grouping runs by outcome.",
		}, []string{"outcome"}),
		subjects: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "grouping",
			Name:      "subjects",
			Help:      "Cohort size of successful grouping runs.",
			Buckets:   prometheus.ExponentialBuckets(2, 2, 12),
		}),
		spread: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "grouping",
			Name:      "sum_spread",
			Help:      "Difference between the heaviest and lightest group sum.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 10),
		}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "grouping",
			Name:      "duration_seconds",
			Help:      "Wall time of grouping runs.",
			Buckets:   prometheus.ExponentialBuckets(0.00001, 4, 10),
		}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route pattern and status code.",
		}, []string{"route", "status"}),
	}

	reg.MustRegister(r.groupings, r.subjects, r.spread, r.duration, r.requests)
	return r
}

// ObserveGrouping records a finished grouping run. Size, spread and duration
// are only recorded for successful runs.
func (r *Recorder) ObserveGrouping(outcome string, subjects int, spread float64, elapsed time.Duration) {
	if r == nil {
		return
	}
	r.groupings.WithLabelValues(outcome).Inc()
	if outcome != OutcomeOK {
		return
	}
	r.subjects.Observe(float64(subjects))
	r.spread.Observe(spread)
	r.duration.Observe(elapsed.Seconds())
}

// ObserveRequest records a served HTTP request.
func (r *Recorder) ObserveRequest(route string, status int) {
	if r == nil {
		return
	}
	if route == "" {
		route = "unmatched"
	}
	r.requests.WithLabelValues(route, strconv.Itoa(status)).Inc()
}
