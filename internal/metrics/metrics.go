package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	DedupHits = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "messaging_dedup_hits_total",
		Help: "Submissions rejected as duplicates by the dedup guard",
	})
	Reconciliations = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "messaging_dedup_reconciliations_total",
		Help: "Stale dedup entries repaired on the inbound path",
	})
	EventsPublished = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "messaging_events_published_total",
		Help: "Lifecycle events written to the bus",
	})
	EventsFailed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "messaging_events_failed_total",
		Help: "Lifecycle event publishes that errored",
	})
	WSConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "messaging_ws_active_connections",
		Help: "Active websocket connections",
	})
)

func Init() {
	prometheus.MustRegister(DedupHits, Reconciliations, EventsPublished, EventsFailed, WSConnections)
}

// Handler returns an http.Handler for Prometheus scraping
func Handler() http.Handler {
	return promhttp.Handler()
}
