/*
Package dnsserver is the listener fleet: it binds a UDP and a TCP
socket for every gateway address a loaded configuration declares, and
answers queries against a backend.Backend.

# Binding

	for each (network, v4 or v6 IP) in the snapshot's listen maps:
	    bind UDP(ip:port)   -- synchronous, fatal on error
	    bind TCP(ip:port)   -- synchronous, fatal on error
	    metrics.RegisterComponent("<network>/<ip:port>/udp", true, "bound")
	    metrics.RegisterComponent("<network>/<ip:port>/tcp", true, "bound")
	    go serve both

Sockets are bound with net.ListenUDP/net.ListenTCP before miekg/dns's
dns.Server ever sees them, so a bind failure surfaces synchronously to
the caller instead of asynchronously inside ActivateAndServe's own
goroutine. This is what lets Run satisfy "either every declared address
is live, or the process exits": if any bind fails, every socket already
opened in this call is closed and the error returned before any
listener starts serving.

# Query handling

handler.go dispatches by QTYPE after class and opcode checks, strips a
configured search-domain suffix before consulting the backend (the
response always echoes the client's original qname, never the
stripped form), calls Backend.Lookup or Backend.ReverseLookup, and
renders the result into wire RRs with the authoritative TTL. A Success
result runs through the family filter (A vs AAAA vs ANY); a Forward
result hands off to forward.go, which proxies to each configured
upstream in turn under a bounded per-attempt deadline and a
per-listener cap on concurrent forwards.

# Reload

When Fleet's SnapshotSource also exposes a Changed() <-chan struct{}
(config.Watcher does; a StaticSource does not), Run spawns a goroutine
that reconciles the bound listener set against every new snapshot:
gateway addresses no longer in ListenV4/ListenV6 are drained and
closed, addresses that are new are bound and started, and addresses
unaffected by the change keep serving on their existing sockets. A
bind failure for a newly added address during reload is logged and
that one address is left unserved rather than tearing down the rest
of the fleet.

# Shutdown

Run blocks until its context is cancelled, then calls ShutdownContext
on every dns.Server with the same per-query deadline used for
forwarding, so in-flight queries get a chance to finish before sockets
are released (spec's graceful-drain requirement). Fleet.Run returns
once every listener has stopped.

Grounded on the teacher's pkg/dns/server.go (Server/Config/
handleDNSQuery/forwardQuery shape, dns.ServeMux + dns.Server +
dns.Client.Exchange) extended with the dual UDP+TCP goroutine-per-
transport pattern and shutdown-channel idiom from
xiguagua-tailscale/cmd/k8s-nameserver's listenAndServe, since the
teacher's own server only ever bound UDP.
*/
package dnsserver
