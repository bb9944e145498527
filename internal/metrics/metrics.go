package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	PresenceBuckets = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "fitrank",
			Subsystem: "presence",
			Name:      "buckets",
			Help:      "Users with at least one live connection.",
		},
	)

	PresenceConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "fitrank",
			Subsystem: "presence",
			Name:      "connections",
			Help:      "Live socket connections attached to buckets.",
		},
	)

	EventsAppended = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fitrank",
			Subsystem: "outbox",
			Name:      "events_appended_total",
			Help:      "Events written to the outbox.",
		},
		[]string{"type"},
	)

	Deliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fitrank",
			Subsystem: "outbox",
			Name:      "deliveries_total",
			Help:      "Live event pushes per connection.",
		},
		[]string{"result"},
	)

	Transitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fitrank",
			Subsystem: "friends",
			Name:      "transitions_total",
			Help:      "Relationship actions by outcome code.",
		},
		[]string{"action", "result"},
	)

	LevelUps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fitrank",
			Subsystem: "progress",
			Name:      "level_ups_total",
			Help:      "Level increments granted.",
		},
		[]string{"curve"},
	)
)

func init() {
	Registry.MustRegister(
		PresenceBuckets,
		PresenceConnections,
		EventsAppended,
		Deliveries,
		Transitions,
		LevelUps,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}
