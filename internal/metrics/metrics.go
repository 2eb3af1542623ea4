// Package metrics exposes license outcomes as prometheus metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/KevinTCoughlin/licensegate/internal/license"
)

const namespace = "licensegate"

var states = []license.State{
	license.StateTrial,
	license.StateLicensed,
	license.StateExpired,
	license.StateInvalid,
}

// Recorder records activation attempts, validations and the published
// status. It satisfies orchestrator.Recorder.
type Recorder struct {
	registry    *prometheus.Registry
	activations *prometheus.CounterVec
	validations *prometheus.CounterVec
	state       *prometheus.GaugeVec
	trialDays   prometheus.Gauge
}

// New creates a Recorder with its own registry, which also carries the Go
// and process collectors.
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		activations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "activations_total",
			Help:      "License activation attempts by outcome and failure reason.",
		}, []string{"outcome", "reason"}),
		validations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "validations_total",
			Help:      "License revalidations by source and result.",
		}, []string{"source", "result"}),
		state: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "status",
			Help:      "1 for the current license state, 0 otherwise.",
		}, []string{"state"}),
		trialDays: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "trial_days_remaining",
			Help:      "Days left in the trial when the status was last published.",
		}),
	}
	r.registry.MustRegister(
		r.activations,
		r.validations,
		r.state,
		r.trialDays,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	for _, s := range states {
		r.state.WithLabelValues(s.String()).Set(0)
	}
	return r
}

// Activation counts one activation attempt.
func (r *Recorder) Activation(outcome, reason string) {
	r.activations.WithLabelValues(outcome, reason).Inc()
}

// Validation counts one revalidation.
func (r *Recorder) Validation(source, result string) {
	r.validations.WithLabelValues(source, result).Inc()
}

// Status records the published status.
func (r *Recorder) Status(s license.Status) {
	for _, st := range states {
		v := 0.0
		if st == s.State {
			v = 1
		}
		r.state.WithLabelValues(st.String()).Set(v)
	}
	if s.State == license.StateTrial {
		r.trialDays.Set(float64(s.DaysRemaining))
	} else {
		r.trialDays.Set(0)
	}
}

// Registry returns the registry the metrics live in.
func (r *Recorder) Registry() *prometheus.Registry { return r.registry }

// Handler serves the registry in the prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}
