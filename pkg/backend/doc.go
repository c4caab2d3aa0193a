/*
Package backend implements the authoritative, in-memory query engine for
container-to-container DNS resolution inside an overlay network.

A Backend holds four indices built once by pkg/config from the
descriptor directory and is read-only for the rest of the process's
life (or until a hot reload publishes a replacement — see pkg/config).
It performs no I/O: given a source IP and a query name it returns a
typed Result; turning that Result into DNS wire records is pkg/dnsserver's
job.

# Indices

	┌────────────────────── BACKEND ──────────────────────────┐
	│ ipToNetworks    : IP        → []NetworkName              │
	│ nameMappings    : Network   → lowercased name → []IP     │
	│ reverseMappings : Network   → IP → []name (alias, short)│
	│ upstreamServers : IP        → upstream override record  │
	└────────────────────────────────────────────────────────┘

A container's full address list (v4 addresses first, then v6, each in
descriptor order) is what every alias, the short container ID, and
every reverse entry resolve to or from — never re-sorted.

# Forward lookup

	Lookup(source, "condescendingnash")
	  1. source not in ipToNetworks        → NXDomain
	  2. name found in any of source's networks → Success(ips)
	  3. not found, but source has upstreams    → Forward(upstreams)
	  4. otherwise                              → NXDomain

# Reverse lookup

	ReverseLookup(source, target)
	  walks source's networks in order, returns the first network's
	  reverseMappings entry for target; ok=false if none of them know it.

# Building

Backend is never constructed directly; use Builder:

	b := backend.NewBuilder()
	b.AddContainer("podman0", backend.ContainerEntry{
		ID:    "condescendingnash",
		IPv4:  []net.IP{net.ParseIP("10.88.0.2")},
		Names: []string{"condescendingnash"},
	})
	be := b.Build()
*/
package backend
