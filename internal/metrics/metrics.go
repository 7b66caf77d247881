// Package metrics holds the Prometheus collectors shared by the server and
// the moderation worker.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "campuskart"

var (
	ModerationDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "moderation",
		Name:      "decisions_total",
		Help:      "Listing moderation decisions by result (clean, flagged, repeat) and reason.",
	}, []string{"result", "reason"})

	StrikesRecorded = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "trust",
		Name:      "strikes_total",
		Help:      "Strikes recorded against users.",
	})

	StrikesDropped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "trust",
		Name:      "strikes_dropped_total",
		Help:      "Violations that could not be recorded because the user had no trust record.",
	})

	UsersBanned = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "trust",
		Name:      "bans_total",
		Help:      "Ban transitions by source (automated, admin).",
	}, []string{"source"})

	ListingsCascaded = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "trust",
		Name:      "cascaded_listings_total",
		Help:      "Listings deactivated because their seller was banned.",
	})

	ClaimSyncs = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "claims",
		Name:      "syncs_total",
		Help:      "Admin claim grant/revoke attempts by action and result.",
	}, []string{"action", "result"})

	TransactionRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "store",
		Name:      "transaction_retries_total",
		Help:      "Transaction attempts retried after an optimistic conflict.",
	}, []string{"store"})
)

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
