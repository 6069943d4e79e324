package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	CommandsProcessed = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "pricewatch",
		Subsystem: "telegram_bot",
		Name:      "commands_processed",
		Help:      "The total number of processed commands",
	})
	MessagesHandled = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "pricewatch",
		Subsystem: "telegram_bot",
		Name:      "messages_handled",
		Help:      "The total number of handled messages",
	})
	AlertsFired = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "pricewatch",
		Subsystem: "alerts",
		Name:      "fired_total",
		Help:      "The total number of alerts fired by the matcher",
	})
	SnapshotRefreshes = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "pricewatch",
		Subsystem: "prices",
		Name:      "snapshot_refreshes_total",
		Help:      "The total number of bulk ticker snapshot refreshes",
	})
	UpstreamLookups = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "pricewatch",
		Subsystem: "prices",
		Name:      "single_symbol_lookups_total",
		Help:      "The total number of single-symbol upstream lookups",
	})
	ResolverCacheHits = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "pricewatch",
		Subsystem: "prices",
		Name:      "resolver_cache_hits_total",
		Help:      "The total number of resolver cache hits",
	})
)

func init() {
	prometheus.MustRegister(CommandsProcessed)
	prometheus.MustRegister(MessagesHandled)
	prometheus.MustRegister(AlertsFired)
	prometheus.MustRegister(SnapshotRefreshes)
	prometheus.MustRegister(UpstreamLookups)
	prometheus.MustRegister(ResolverCacheHits)
}
