package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(
		aiTokensIn,
		aiTokensOut,
		aiCallsLatencyMs,
		aiFallbacksTotal,
		externalCallsLatencyMs,
	)
}

var (
	aiTokensIn = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ai_tokens_in",
			Help: "Sum of prompt (input) tokens per provider/model.",
		},
		[]string{"provider", "model"},
	)

	aiTokensOut = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ai_tokens_out",
			Help: "Sum of completion (output) tokens per provider/model.",
		},
		[]string{"provider", "model"},
	)

	aiCallsLatencyMs = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ai_calls_latency_ms",
			Help:    "AI call latency distribution in milliseconds.",
			Buckets: []float64{50, 100, 200, 400, 800, 1600, 3000, 6000, 12000, 30000, 60000},
		},
		[]string{"provider", "model", "success"},
	)

	aiFallbacksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ai_fallbacks_total",
			Help: "Calls retried on the server fallback key after a 429.",
		},
		[]string{"model"},
	)

	externalCallsLatencyMs = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "external_calls_latency_ms",
			Help:    "Latency of search, vector and embedding calls in milliseconds.",
			Buckets: []float64{10, 25, 50, 100, 200, 400, 800, 1600, 3000, 5000, 10000},
		},
		[]string{"service", "op", "success"},
	)
)

func ObserveChatUsage(provider, model string, tokensIn, tokensOut int, latency time.Duration, success bool) {
	lbl := []string{norm(provider), norm(model)}
	aiTokensIn.WithLabelValues(lbl...).Add(float64(tokensIn))
	aiTokensOut.WithLabelValues(lbl...).Add(float64(tokensOut))
	aiCallsLatencyMs.WithLabelValues(norm(provider), norm(model), strconv.FormatBool(success)).
		Observe(float64(latency.Milliseconds()))
}

func IncAIFallback(model string) {
	aiFallbacksTotal.WithLabelValues(norm(model)).Inc()
}

func ObserveExternalCall(service, op string, latency time.Duration, success bool) {
	externalCallsLatencyMs.WithLabelValues(norm(service), norm(op), strconv.FormatBool(success)).
		Observe(float64(latency.Milliseconds()))
}
