/*
Package config loads the descriptor directory described in spec.md §4.1
and §6 into a backend.Backend plus per-network listen-address maps.

# File format

	<bind-ips>
	<container_id> <v4-list> <v6-list> <name-list> [<dns-server-list>]
	...

The file's base name is the network name. Blank lines are skipped. A
reserved name (default "burrow.pid") is never treated as a descriptor.

# Assembly

	┌──────────────┐   one file per network    ┌──────────────────┐
	│  descriptor   │ ────────────────────────► │   backend.Builder │
	│  directory    │                            │  + listen maps    │
	└──────────────┘                            └─────────┬─────────┘
	                                                        │ Build()
	                                                        ▼
	                                              ┌──────────────────┐
	                                              │  config.Snapshot  │
	                                              └──────────────────┘

Files are processed in lexical order: spec.md §4.1 only requires
"deterministic per run", but sorting makes identical directory contents
produce a byte-identical Backend across hosts and runs, which is the
stronger property spec.md §8's determinism invariant actually needs.

# Hot reload

Watcher wraps Load with an fsnotify watch on the directory and an
atomic pointer swap, so a listener fleet can keep answering queries
against a stale-but-valid Snapshot while a reload is in flight, and
never observes a half-built one.
*/
package config
