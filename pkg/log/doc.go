/*
Package log provides structured logging for Burrow using zerolog.

The log package wraps zerolog to provide JSON-structured logging with
component-specific child loggers and configurable log levels. All logs
include timestamps and support filtering by severity level. There are
no bare package-level logging functions (no log.Info/log.Error and
friends) — every call site logs through a component-scoped child
logger (WithComponent, WithNetwork, WithListener, WithQuery) so the
fields identifying which network, listener, or query produced a line
are never optional.

# Architecture

	┌──────────────────── LOGGING SYSTEM ──────────────────────┐
	│  Global Logger (zerolog.Logger, set via log.Init)         │
	│       │                                                    │
	│       ▼                                                    │
	│  Component Loggers                                        │
	│   - WithComponent("backend"|"dnsserver"|"config")         │
	│   - WithNetwork("podman0")                                │
	│   - WithListener("10.88.0.1:53", "udp")                   │
	│   - WithQuery("condescendingnash.", 10.88.0.2)             │
	└────────────────────────────────────────────────────────────┘

# Usage

	log.Init(log.Config{Level: log.InfoLevel, JSONOutput: true})

	fleetLog := log.WithComponent("dnsserver")
	fleetLog.Info().
		Str("network", "podman0").
		Str("addr", "10.88.0.1:53").
		Msg("listener bound")

	log.WithComponent("config").Error().
		Err(err).
		Str("file", "podman0").
		Msg("failed to parse descriptor")

# Design Patterns

Global Logger: a single package-level instance, initialized once at
process start by cmd/burrowd, accessible from every package without
threading a logger through constructors.

Component Logger: attach component/network/listener/query fields once
and reuse the child logger for the lifetime of that unit of work,
instead of repeating `.Str(...)` at every call site.

Structured fields (.Str, .Int, .Err) over string concatenation — keeps
logs machine-parseable and avoids log injection from query names that
happen to contain control characters.

# Log Levels

Debug is used for per-query tracing, including per-query failures that
still produce a DNS response (FORMERR/NXDOMAIN/SERVFAIL) and failed
forward attempts — high volume, development/troubleshooting only. Info
covers lifecycle events (listener bound, config reloaded, shutdown).
Warn covers recoverable conditions (a descriptor file vanished between
enumeration and open). Error covers failures to write a response, a
listener that stopped unexpectedly, and a gateway address that could
not be bound on reload. Startup failures (bad
descriptor, bind failure) are not logged at Fatal and exited here —
they are returned as plain errors up through cmd/burrowd, which prints
and exits non-zero once, rather than each layer reaching for its own
process-terminating log call.

# Debug sampling

A resolver answering thousands of queries per second produces one Debug
line per query (forward attempts, NXDOMAIN misses); WithQuery tags each
with both the qname and the client's source_ip so those lines stay
correlatable even when thinned. Config.SampleDebugEvery, when set above
1, applies a zerolog.LevelSampler so only Debug-level events are
sampled — Info/Warn/Error always reach the writer regardless of the
sample rate, so bind failures and reload outcomes are never dropped.
*/
package log
