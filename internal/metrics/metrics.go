package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TranscriptionRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stt_transcription_requests_total",
		Help: "Transcription requests by entry path and final status.",
	}, []string{"path", "status"})

	ProviderAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stt_provider_attempts_total",
		Help: "Provider attempts by provider name and outcome.",
	}, []string{"provider", "outcome"})

	ProviderLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "stt_provider_latency_seconds",
		Help:    "Wall-clock latency of individual provider attempts.",
		Buckets: prometheus.ExponentialBuckets(0.5, 2, 12),
	}, []string{"provider"})

	AuthFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stt_auth_failures_total",
		Help: "Authentication failures by credential type.",
	}, []string{"credential"})
)
