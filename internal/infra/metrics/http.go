package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(
		httpRequestsTotal,
		rateLimitTriggeredTotal,
	)
}

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "HTTP requests by method, route pattern and status code.",
		},
		[]string{"method", "route", "status"},
	)

	rateLimitTriggeredTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rate_limit_triggered_total",
			Help: "Requests rejected by the per-user rate limiter.",
		},
		[]string{"action"},
	)
)

func IncHTTPRequest(method, route string, status int) {
	httpRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
}

func IncRateLimited(action string) {
	rateLimitTriggeredTotal.WithLabelValues(norm(action)).Inc()
}
