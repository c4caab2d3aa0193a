package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Query metrics
	QueriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "burrow_queries_total",
			Help: "Total number of DNS queries received, by transport and qtype",
		},
		[]string{"transport", "qtype"},
	)

	QueryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "burrow_query_duration_seconds",
			Help:    "Time taken to answer a DNS query in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"transport"},
	)

	// Lookup verdict metrics
	LookupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "burrow_lookups_total",
			Help: "Total number of backend lookups by verdict",
		},
		[]string{"verdict"},
	)

	// Forwarding metrics
	ForwardsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "burrow_forwards_total",
			Help: "Total number of queries forwarded to upstream resolvers, by result",
		},
		[]string{"result"},
	)

	ForwardDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "burrow_forward_duration_seconds",
			Help:    "Time taken for an upstream forward to complete in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Error metrics
	ServfailTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "burrow_servfail_total",
			Help: "Total number of SERVFAIL responses by reason",
		},
		[]string{"reason"},
	)

	TruncatedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "burrow_truncated_total",
			Help: "Total number of UDP responses truncated (TC=1) due to size",
		},
	)

	// Listener fleet metrics
	ListenersUp = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "burrow_listeners_up",
			Help: "Whether a (network, transport) listener is currently bound and serving (1) or not (0)",
		},
		[]string{"network", "transport"},
	)

	// Config reload metrics
	ReloadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "burrow_reloads_total",
			Help: "Total number of descriptor directory reloads by result",
		},
		[]string{"result"},
	)

	NetworksLoaded = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "burrow_networks_loaded",
			Help: "Number of networks present in the currently active snapshot",
		},
	)
)

func init() {
	prometheus.MustRegister(QueriesTotal)
	prometheus.MustRegister(QueryDuration)
	prometheus.MustRegister(LookupsTotal)
	prometheus.MustRegister(ForwardsTotal)
	prometheus.MustRegister(ForwardDuration)
	prometheus.MustRegister(ServfailTotal)
	prometheus.MustRegister(TruncatedTotal)
	prometheus.MustRegister(ListenersUp)
	prometheus.MustRegister(ReloadsTotal)
	prometheus.MustRegister(NetworksLoaded)
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// StartTimer marks the beginning of a latency measurement. Callers hold
// onto the returned time.Time and pass it to ObserveQuery or
// ObserveForward at the point the operation finishes, matching the
// defer-at-call-site pattern handler.go and forward.go each use:
//
//	start := metrics.StartTimer()
//	defer metrics.ObserveQuery(start, l.transport)
//
// Unlike a general-purpose stopwatch type, there is no exported way to
// read the elapsed duration without also recording it: this package has
// exactly two latency measurements (one query, one forwarded query),
// and nothing in this module needs elapsed time for any other reason.
func StartTimer() time.Time {
	return time.Now()
}

// ObserveQuery records how long one DNS query took to answer, labeled by
// transport, into QueryDuration.
func ObserveQuery(start time.Time, transport string) {
	QueryDuration.WithLabelValues(transport).Observe(time.Since(start).Seconds())
}

// ObserveForward records how long one forwarded query took, across
// every upstream tried for it, into ForwardDuration.
func ObserveForward(start time.Time) {
	ForwardDuration.Observe(time.Since(start).Seconds())
}
