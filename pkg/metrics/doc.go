/*
Package metrics defines and registers the resolver's Prometheus metrics,
and adapts a generic health/readiness checker into the listener fleet's
startup handshake.

# Catalog

	burrow_queries_total{transport,qtype}      counter
	burrow_query_duration_seconds{transport}   histogram
	burrow_lookups_total{verdict}              counter  (nxdomain|success|forward)
	burrow_forwards_total{result}              counter  (ok|timeout|overloaded)
	burrow_forward_duration_seconds            histogram
	burrow_servfail_total{reason}              counter
	burrow_truncated_total                     counter
	burrow_listeners_up{network,transport}     gauge
	burrow_reloads_total{result}                counter  (success|failure)
	burrow_networks_loaded                     gauge

All are package vars registered against the default Prometheus registry
in init(), in the same style as every other metrics package in the
module pool: no runtime registration, no custom registry.

# Readiness

HealthChecker tracks one ComponentHealth entry per bound (network,
gateway address, transport) listener. SetRequiredComponents declares
the full set the fleet has bound, at startup and again after every
reload; GetReadiness reports "ready" only
once every required name has registered healthy. A parent process or
container healthcheck polls /ready until that happens, rather than
assuming the process is serving the moment it forks.

# Usage

	start := metrics.StartTimer()
	result := backend.Lookup(src, name)
	metrics.ObserveQuery(start, transport)
	metrics.LookupsTotal.WithLabelValues(strings.ToLower(result.Kind.String())).Inc()

StartTimer/ObserveQuery/ObserveForward are the only latency
instrumentation this package exposes — narrow functions for the two
measurements handler.go and forward.go actually take, not a reusable
stopwatch type a caller could hold and read from arbitrarily.
*/
package metrics
