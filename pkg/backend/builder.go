package backend

import (
	"net"
	"strings"

	"github.com/cuemby/burrow/pkg/log"
)

// Builder assembles a Backend from per-network container entries, one
// call to AddContainer per descriptor line. It is the only way to
// construct a Backend outside of tests — pkg/config is its sole caller
// in production, once per loaded descriptor file.
//
// A Builder is not safe for concurrent use; pkg/config builds one
// Backend per load/reload from a single goroutine.
type Builder struct {
	ipToNetworks    map[string][]NetworkName
	nameMappings    map[NetworkName]map[string][]net.IP
	reverseMappings map[NetworkName]map[string][]string
	upstreamServers map[string]upstreamRecord
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder {
	return &Builder{
		ipToNetworks:    make(map[string][]NetworkName),
		nameMappings:    make(map[NetworkName]map[string][]net.IP),
		reverseMappings: make(map[NetworkName]map[string][]string),
		upstreamServers: make(map[string]upstreamRecord),
	}
}

// AddContainer folds one container's descriptor entry into the indices
// for network n. Names and the ID are expected to already be
// lowercased; AddContainer lowercases them again defensively so a
// Builder used directly (e.g. from tests) can't produce mixed-case
// keys.
func (b *Builder) AddContainer(n NetworkName, entry ContainerEntry) {
	addrs := entry.Addrs()

	if b.nameMappings[n] == nil {
		b.nameMappings[n] = make(map[string][]net.IP)
	}
	if b.reverseMappings[n] == nil {
		b.reverseMappings[n] = make(map[string][]string)
	}

	// Forward keys: every alias, plus the short container ID, per
	// spec.md §4.2 ("implementations may satisfy this by storing the
	// short ID as an additional key in name_mappings alongside
	// aliases").
	forwardKeys := make([]string, 0, len(entry.Names)+1)
	for _, alias := range entry.Names {
		forwardKeys = append(forwardKeys, strings.ToLower(alias))
	}
	shortID := ShortID(strings.ToLower(entry.ID))
	forwardKeys = append(forwardKeys, shortID)

	for _, key := range forwardKeys {
		if key == "" {
			continue
		}
		existing := b.nameMappings[n][key]
		if len(existing) > 0 {
			log.WithComponent("backend").Debug().
				Str("network", string(n)).
				Str("alias", key).
				Msg("alias already claimed by another container on this network; appending (see spec open question on alias collisions)")
		}
		b.nameMappings[n][key] = append(existing, addrs...)
	}

	// Reverse names: aliases then short ID, descriptor order, per the
	// concrete scenario in spec.md §8 (alias(es) then short ID).
	reverseNames := make([]string, 0, len(entry.Names)+1)
	for _, alias := range entry.Names {
		reverseNames = append(reverseNames, strings.ToLower(alias))
	}
	reverseNames = append(reverseNames, shortID)

	for _, ip := range addrs {
		key := canonicalIP(ip)
		b.reverseMappings[n][key] = append(b.reverseMappings[n][key], reverseNames...)
	}

	// ip_to_networks: dedup network membership per source IP.
	for _, ip := range addrs {
		key := canonicalIP(ip)
		if !containsNetwork(b.ipToNetworks[key], n) {
			b.ipToNetworks[key] = append(b.ipToNetworks[key], n)
		}
	}

	// upstream_servers: recorded per container IP, even when Upstream
	// is nil, so GetUpstream can distinguish "unknown IP" from "known
	// container, no override" (spec.md §3 invariant).
	for _, ip := range addrs {
		b.upstreamServers[canonicalIP(ip)] = upstreamRecord{servers: entry.Upstream}
	}
}

func containsNetwork(list []NetworkName, n NetworkName) bool {
	for _, existing := range list {
		if existing == n {
			return true
		}
	}
	return false
}

// Build returns the immutable Backend. The Builder should not be reused
// afterwards.
func (b *Builder) Build() *Backend {
	return &Backend{
		ipToNetworks:    b.ipToNetworks,
		nameMappings:    b.nameMappings,
		reverseMappings: b.reverseMappings,
		upstreamServers: b.upstreamServers,
	}
}
