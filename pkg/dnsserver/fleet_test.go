package dnsserver

import (
	"context"
	"net"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/miekg/dns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/burrow/pkg/backend"
	"github.com/cuemby/burrow/pkg/config"
)

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()
	return port
}

func testSnapshot() *config.Snapshot {
	b := backend.NewBuilder()
	b.AddContainer("podman", backend.ContainerEntry{
		ID:    "condescendingnash",
		IPv4:  []net.IP{net.ParseIP("127.0.0.1")},
		Names: []string{"condescendingnash"},
	})
	return &config.Snapshot{
		Backend:  b.Build(),
		ListenV4: map[backend.NetworkName][]net.IP{"podman": {net.ParseIP("127.0.0.1")}},
		ListenV6: map[backend.NetworkName][]net.IP{},
	}
}

func TestFleetAnswersAQuery(t *testing.T) {
	port := freePort(t)
	fleet := NewFleet(StaticSource(testSnapshot()), port, "")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- fleet.Run(ctx) }()

	// Give the listener goroutines a moment to bind and start serving.
	time.Sleep(150 * time.Millisecond)

	m := new(dns.Msg)
	m.SetQuestion("condescendingnash.", dns.TypeA)
	client := &dns.Client{Net: "udp", Timeout: 2 * time.Second}
	resp, _, err := client.Exchange(m, net.JoinHostPort("127.0.0.1", strconv.Itoa(port)))
	require.NoError(t, err)
	require.Equal(t, dns.RcodeSuccess, resp.Rcode)
	require.Len(t, resp.Answer, 1)
	a, ok := resp.Answer[0].(*dns.A)
	require.True(t, ok)
	assert.True(t, a.A.Equal(net.ParseIP("127.0.0.1")))

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run() did not return after context cancellation")
	}
}

// notifyingSource implements both SnapshotSource and changeNotifier, so
// tests can exercise Fleet's incremental rebind-on-reload path without
// a real fsnotify-backed config.Watcher.
type notifyingSource struct {
	mu      sync.Mutex
	snap    *config.Snapshot
	changed chan struct{}
}

func newNotifyingSource(snap *config.Snapshot) *notifyingSource {
	return &notifyingSource{snap: snap, changed: make(chan struct{}, 1)}
}

func (s *notifyingSource) Current() *config.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap
}

func (s *notifyingSource) Changed() <-chan struct{} {
	return s.changed
}

func (s *notifyingSource) publish(snap *config.Snapshot) {
	s.mu.Lock()
	s.snap = snap
	s.mu.Unlock()
	select {
	case s.changed <- struct{}{}:
	default:
	}
}

func TestFleetRebindsOnReload(t *testing.T) {
	portA := freePort(t)

	b := backend.NewBuilder()
	b.AddContainer("podman", backend.ContainerEntry{
		ID:    "condescendingnash",
		IPv4:  []net.IP{net.ParseIP("127.0.0.1")},
		Names: []string{"condescendingnash"},
	})
	initial := &config.Snapshot{
		Backend:  b.Build(),
		ListenV4: map[backend.NetworkName][]net.IP{"podman": {net.ParseIP("127.0.0.1")}},
		ListenV6: map[backend.NetworkName][]net.IP{},
	}

	source := newNotifyingSource(initial)
	fleet := NewFleet(source, portA, "")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- fleet.Run(ctx) }()
	time.Sleep(150 * time.Millisecond)

	// A second gateway address, "127.0.0.2", is added by the reload; the
	// fleet must bind a new listener pair for it without disturbing the
	// first.
	b2 := backend.NewBuilder()
	b2.AddContainer("podman", backend.ContainerEntry{
		ID:    "condescendingnash",
		IPv4:  []net.IP{net.ParseIP("127.0.0.1")},
		Names: []string{"condescendingnash"},
	})
	b2.AddContainer("extra", backend.ContainerEntry{
		ID:    "secondnetwork",
		IPv4:  []net.IP{net.ParseIP("127.0.0.2")},
		Names: []string{"secondnetwork"},
	})
	reloaded := &config.Snapshot{
		Backend: b2.Build(),
		ListenV4: map[backend.NetworkName][]net.IP{
			"podman": {net.ParseIP("127.0.0.1")},
			"extra":  {net.ParseIP("127.0.0.2")},
		},
		ListenV6: map[backend.NetworkName][]net.IP{},
	}
	source.publish(reloaded)
	time.Sleep(150 * time.Millisecond)

	m := new(dns.Msg)
	m.SetQuestion("secondnetwork.", dns.TypeA)
	client := &dns.Client{Net: "udp", Timeout: 2 * time.Second}
	resp, _, err := client.Exchange(m, net.JoinHostPort("127.0.0.2", strconv.Itoa(portA)))
	require.NoError(t, err)
	require.Equal(t, dns.RcodeSuccess, resp.Rcode)
	require.Len(t, resp.Answer, 1)

	// The original listener must still be serving, unaffected by the rebind.
	m2 := new(dns.Msg)
	m2.SetQuestion("condescendingnash.", dns.TypeA)
	resp2, _, err := client.Exchange(m2, net.JoinHostPort("127.0.0.1", strconv.Itoa(portA)))
	require.NoError(t, err)
	assert.Equal(t, dns.RcodeSuccess, resp2.Rcode)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run() did not return after context cancellation")
	}
}

func TestFleetNXDomain(t *testing.T) {
	port := freePort(t)
	fleet := NewFleet(StaticSource(testSnapshot()), port, "")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- fleet.Run(ctx) }()
	time.Sleep(150 * time.Millisecond)

	m := new(dns.Msg)
	m.SetQuestion("nosuchname.", dns.TypeA)
	client := &dns.Client{Net: "udp", Timeout: 2 * time.Second}
	resp, _, err := client.Exchange(m, net.JoinHostPort("127.0.0.1", strconv.Itoa(port)))
	require.NoError(t, err)
	assert.Equal(t, dns.RcodeNameError, resp.Rcode)
}
