package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		eventsPublishedTotal,
		eventsDroppedTotal,
		busSubscribers,
		streamSessions,
		streamReplacedTotal,
	)
}

var (
	eventsPublishedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "events_published_total",
			Help: "Events published on the bus, by type.",
		},
		[]string{"type"}, // 'lifecycle', 'stream'
	)

	eventsDroppedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "events_dropped_total",
			Help: "Events dropped because a subscriber buffer was full.",
		},
	)

	busSubscribers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "event_bus_subscribers",
			Help: "Current bus subscriptions.",
		},
	)

	streamSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "stream_sessions",
			Help: "Live SSE sessions.",
		},
	)

	streamReplacedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "stream_sessions_replaced_total",
			Help: "Sessions closed because a newer subscriber took over the job.",
		},
	)
)

func IncEventPublished(eventType string) {
	if eventType == "" {
		eventType = "lifecycle"
	}
	eventsPublishedTotal.WithLabelValues(norm(eventType)).Inc()
}

func IncEventDropped()        { eventsDroppedTotal.Inc() }
func SetBusSubscribers(n int) { busSubscribers.Set(float64(n)) }
func StreamOpened()           { streamSessions.Inc() }
func StreamClosed()           { streamSessions.Dec() }
func IncStreamReplaced()      { streamReplacedTotal.Inc() }
