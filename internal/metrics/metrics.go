// Package metrics holds the Prometheus collectors shared by the bots.
package metrics

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	Documents = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "apbots_documents_total",
		Help: "Documents processed, by bot and outcome.",
	}, []string{"bot", "outcome"})

	Runs = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "apbots_runs_total",
		Help: "Runs that reached a terminal status.",
	}, []string{"status"})

	StageDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "apbots_stage_duration_seconds",
		Help:    "Pipeline stage latency.",
		Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
	}, []string{"stage"})

	LLMRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "apbots_llm_requests_total",
		Help: "Model HTTP calls by result.",
	}, []string{"result"})
)

func collectors() []prometheus.Collector {
	return []prometheus.Collector{Documents, Runs, StageDuration, LLMRequests}
}

// Register adds the collectors to reg. Registering twice is not an error.
func Register(reg prometheus.Registerer) error {
	for _, c := range collectors() {
		if err := reg.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	return nil
}

// Handler serves reg in the Prometheus text format.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

// ObserveStage records the time since start for stage.
func ObserveStage(stage string, start time.Time) {
	StageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}
