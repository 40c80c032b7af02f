// Package metrics records execution driver activity.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Invocation outcomes.
const (
	OutcomeOK       = "ok"
	OutcomeNotFound = "not_found"
	OutcomeError    = "error"
)

// Recorder receives driver events.
type Recorder interface {
	// Invocation records one program invocation.
	Invocation(outcome string, requestCharge float64, results int)
	// Registration records one program registration attempt.
	Registration(outcome string)
}

// Nop discards every event.
type Nop struct{}

func (Nop) Invocation(string, float64, int) {}
func (Nop) Registration(string)             {}

// Prometheus is a Recorder backed by Prometheus collectors.
type Prometheus struct {
	invocations   *prometheus.CounterVec
	registrations *prometheus.CounterVec
	charge        prometheus.Histogram
	results       prometheus.Counter
}

// NewPrometheus registers the driver collectors with reg.
// Registering twice with the same registry panics.
func NewPrometheus(reg prometheus.Registerer) *Prometheus {
	f := promauto.With(reg)
	return &Prometheus{
		invocations: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docagg_invocations_total",
				Help: "Total number of program invocations",
			},
			[]string{"outcome"},
		),
		registrations: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docagg_registrations_total",
				Help: "Total number of program registration attempts",
			},
			[]string{"outcome"},
		),
		charge: f.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "docagg_request_charge",
				Help:    "Request charge of successful invocations",
				Buckets: prometheus.ExponentialBuckets(1, 2, 10),
			},
		),
		results: f.NewCounter(
			prometheus.CounterOpts{
				Name: "docagg_results_total",
				Help: "Total number of aggregate results returned",
			},
		),
	}
}

func (p *Prometheus) Invocation(outcome string, requestCharge float64, results int) {
	p.invocations.WithLabelValues(outcome).Inc()
	if outcome == OutcomeOK {
		p.charge.Observe(requestCharge)
		p.results.Add(float64(results))
	}
}

func (p *Prometheus) Registration(outcome string) {
	p.registrations.WithLabelValues(outcome).Inc()
}
