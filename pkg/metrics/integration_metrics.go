// Package metrics exposes Prometheus collectors for provider and generator calls.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ProviderCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "integration",
		Name:      "provider_calls_total",
		Help:      "Calls to external providers by operation and outcome.",
	}, []string{"provider", "operation", "result"})

	ProviderCallDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "integration",
		Name:      "provider_call_duration_seconds",
		Help:      "Latency of external provider calls.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"provider", "operation"})

	AIGenerations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "integration",
		Name:      "ai_generations_total",
		Help:      "Text generation requests by shape and outcome.",
	}, []string{"shape", "result"})

	OAuthCallbacks = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "integration",
		Name:      "oauth_callbacks_total",
		Help:      "Authorization callbacks by provider and outcome.",
	}, []string{"provider", "result"})
)

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// ObserveProviderCall records one provider call started at start.
func ObserveProviderCall(provider, operation string, start time.Time, err error) {
	ProviderCalls.WithLabelValues(provider, operation, result(err)).Inc()
	ProviderCallDuration.WithLabelValues(provider, operation).Observe(time.Since(start).Seconds())
}

// ObserveGeneration records one generator call.
func ObserveGeneration(shape string, err error) {
	AIGenerations.WithLabelValues(shape, result(err)).Inc()
}

// ObserveCallback records the result of an authorization callback.
func ObserveCallback(provider string, err error) {
	OAuthCallbacks.WithLabelValues(provider, result(err)).Inc()
}
