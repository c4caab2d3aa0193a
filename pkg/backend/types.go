package backend

import "net"

// NetworkName identifies a user-defined overlay network. It equals the
// descriptor file's base name (pkg/config owns parsing; this package
// only consumes the already-validated string).
type NetworkName string

// ShortIDLen is the length of the truncated container ID form stored in
// reverse lookups and accepted as a forward-lookup query name.
const ShortIDLen = 12

// ShortID returns the 12-character prefix of a container ID, or the
// whole ID if it is shorter than that.
func ShortID(id string) string {
	if len(id) <= ShortIDLen {
		return id
	}
	return id[:ShortIDLen]
}

// ContainerEntry is one container's presence on one network, as read
// from a descriptor line. pkg/config lowercases IDs and Names at parse
// time; Builder.AddContainer lowercases them again when building keys.
type ContainerEntry struct {
	ID   string
	IPv4 []net.IP
	IPv6 []net.IP
	// Names holds every alias the container answers to on this
	// network, in descriptor order. Must contain at least one entry.
	Names []string
	// Upstream is the ordered list of upstream DNS servers configured
	// for this container, or nil if the descriptor line omitted the
	// field entirely (no override).
	Upstream []net.IP
}

// Addrs returns the container's addresses in the canonical v4-then-v6,
// descriptor order used throughout the indices.
func (c ContainerEntry) Addrs() []net.IP {
	out := make([]net.IP, 0, len(c.IPv4)+len(c.IPv6))
	out = append(out, c.IPv4...)
	out = append(out, c.IPv6...)
	return out
}

// Kind classifies the outcome of a forward lookup.
type Kind int

const (
	// NXDomain means no network the source belongs to has an entry for
	// the query name, and no upstream override applies.
	NXDomain Kind = iota
	// Success means the query name resolved to one or more addresses.
	Success
	// Forward means the Backend could not answer locally but the
	// source container has upstream DNS servers configured; the
	// caller should relay the original query to them in order.
	Forward
)

func (k Kind) String() string {
	switch k {
	case Success:
		return "Success"
	case Forward:
		return "Forward"
	default:
		return "NXDomain"
	}
}

// Result is the outcome of Backend.Lookup.
type Result struct {
	Kind Kind
	// Answers holds the merged, v4-then-v6, descriptor-ordered address
	// list when Kind == Success. Never sorted.
	Answers []net.IP
	// Upstreams holds the ordered upstream server list when Kind ==
	// Forward.
	Upstreams []net.IP
}
