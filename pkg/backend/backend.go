package backend

import (
	"net"
	"strings"
)

// upstreamRecord distinguishes "no container registered at this IP"
// (absent from the map) from "container registered, no upstream
// override configured" (present, servers nil/empty) — spec.md §3's
// upstream_servers invariant.
type upstreamRecord struct {
	servers []net.IP
}

// Backend is the assembled, read-only query engine described in
// spec.md §3-4.2. It holds no I/O and is safe for concurrent use by
// any number of readers once Build returns it — nothing mutates it
// afterwards.
type Backend struct {
	ipToNetworks    map[string][]NetworkName
	nameMappings    map[NetworkName]map[string][]net.IP
	reverseMappings map[NetworkName]map[string][]string
	upstreamServers map[string]upstreamRecord
}

// canonicalIP returns a stable string form of ip suitable as a map key,
// preferring the 4-byte form for v4 addresses so that "::ffff:10.0.0.1"
// and "10.0.0.1" key identically.
func canonicalIP(ip net.IP) string {
	if ip == nil {
		return ""
	}
	if v4 := ip.To4(); v4 != nil {
		return v4.String()
	}
	if v6 := ip.To16(); v6 != nil {
		return v6.String()
	}
	return ip.String()
}

// Lookup implements spec.md §4.2's forward lookup.
func (b *Backend) Lookup(source net.IP, queryName string) Result {
	name := strings.ToLower(queryName)
	srcKey := canonicalIP(source)

	networks, known := b.ipToNetworks[srcKey]
	if !known {
		return Result{Kind: NXDomain}
	}

	var answers []net.IP
	for _, n := range networks {
		if ips, found := b.nameMappings[n][name]; found {
			answers = append(answers, ips...)
		}
	}
	if len(answers) > 0 {
		return Result{Kind: Success, Answers: answers}
	}

	if rec, found := b.upstreamServers[srcKey]; found && len(rec.servers) > 0 {
		return Result{Kind: Forward, Upstreams: rec.servers}
	}

	return Result{Kind: NXDomain}
}

// ReverseLookup implements spec.md §4.2's reverse lookup: the first
// non-empty name list found by walking the source's networks in
// insertion order.
func (b *Backend) ReverseLookup(source, target net.IP) ([]string, bool) {
	networks, known := b.ipToNetworks[canonicalIP(source)]
	if !known {
		return nil, false
	}

	targetKey := canonicalIP(target)
	for _, n := range networks {
		if names, found := b.reverseMappings[n][targetKey]; found && len(names) > 0 {
			return names, true
		}
	}
	return nil, false
}

// GetUpstream implements spec.md §4.2's upstream selection. ok is false
// only when source was never registered as a container address; when ok
// is true but the returned slice is empty, the container exists but has
// no upstream override configured.
func (b *Backend) GetUpstream(source net.IP) (servers []net.IP, ok bool) {
	rec, found := b.upstreamServers[canonicalIP(source)]
	if !found {
		return nil, false
	}
	return rec.servers, true
}
