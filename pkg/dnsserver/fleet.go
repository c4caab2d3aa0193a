package dnsserver

import (
	"context"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/miekg/dns"

	"github.com/cuemby/burrow/pkg/backend"
	"github.com/cuemby/burrow/pkg/config"
	"github.com/cuemby/burrow/pkg/log"
	"github.com/cuemby/burrow/pkg/metrics"
)

// ForwardDeadline bounds a single upstream proxy attempt (spec design
// value: 2 seconds).
const ForwardDeadline = 2 * time.Second

// MaxInFlightForwards caps concurrent upstream proxies per listener;
// a query arriving once the cap is hit gets SERVFAIL instead of queuing.
const MaxInFlightForwards = 64

// authoritativeTTL is used on every answer the Backend resolves itself.
const authoritativeTTL = 60

// SnapshotSource supplies the currently active configuration snapshot.
// Satisfied by *config.Watcher; a static snapshot can be wrapped with
// staticSource for single-shot (no-reload) operation.
type SnapshotSource interface {
	Current() *config.Snapshot
}

// changeNotifier is implemented by a SnapshotSource that can signal when
// it has published a new Snapshot, so Fleet can reconcile its bound
// listeners against the new listen-address maps instead of polling.
// *config.Watcher implements it; StaticSource deliberately does not, so
// a Fleet built over a StaticSource never attempts a rebind — there is
// nothing that could change.
type changeNotifier interface {
	Changed() <-chan struct{}
}

type staticSource struct{ snap *config.Snapshot }

func (s staticSource) Current() *config.Snapshot { return s.snap }

// StaticSource wraps a single, never-reloaded Snapshot as a SnapshotSource.
func StaticSource(snap *config.Snapshot) SnapshotSource {
	return staticSource{snap: snap}
}

// Fleet is the set of UDP/TCP listeners bound across every network's
// declared gateway addresses. When its SnapshotSource also implements
// changeNotifier, Fleet rebinds incrementally on reload: a gateway
// address present in the new snapshot but not currently bound is bound,
// one no longer present is drained and closed. Addresses unaffected by
// the change keep serving on their existing sockets.
type Fleet struct {
	source       SnapshotSource
	port         int
	searchSuffix string

	mu    sync.Mutex
	bound map[string]*boundPair // keyed by gateway IP string

	wg sync.WaitGroup
}

// boundPair is the UDP and TCP listener bound to one gateway address.
type boundPair struct {
	network backend.NetworkName
	udp     *boundListener
	tcp     *boundListener
}

type boundListener struct {
	network   backend.NetworkName
	addr      string
	transport string
	srv       *dns.Server
	closer    io.Closer // the raw socket, for cleanup before ActivateAndServe runs
	sem       chan struct{}
}

func (l *boundListener) componentName() string {
	return fmt.Sprintf("%s/%s/%s", l.network, l.addr, l.transport)
}

// NewFleet constructs a Fleet. searchSuffix, if non-empty, is stripped
// from query names before Backend lookup and restored on the response
// (spec's search_domain_filter).
func NewFleet(source SnapshotSource, port int, searchSuffix string) *Fleet {
	return &Fleet{source: source, port: port, searchSuffix: searchSuffix, bound: make(map[string]*boundPair)}
}

// Run binds every listener the current snapshot declares, serves until
// ctx is cancelled, then drains and releases every socket. Bind
// failures during this initial bind are fatal: Run closes any socket it
// already opened this call and returns the error without serving
// anything. If the SnapshotSource supports change notification, Run
// also reconciles the bound listener set against every subsequent
// reload for the lifetime of the call.
func (f *Fleet) Run(ctx context.Context) error {
	if err := f.bindSnapshot(f.source.Current()); err != nil {
		return err
	}

	var reloadWG sync.WaitGroup
	if notifier, ok := f.source.(changeNotifier); ok {
		reloadWG.Add(1)
		go func() {
			defer reloadWG.Done()
			f.watchReload(ctx, notifier.Changed())
		}()
	}

	<-ctx.Done()
	reloadWG.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), ForwardDeadline)
	defer cancel()

	f.mu.Lock()
	pairs := make([]*boundPair, 0, len(f.bound))
	for _, p := range f.bound {
		pairs = append(pairs, p)
	}
	f.mu.Unlock()

	for _, p := range pairs {
		f.shutdownPair(shutdownCtx, p)
	}
	f.wg.Wait()

	return nil
}

// bindSnapshot performs the initial, all-or-nothing bind of every
// address the snapshot declares.
func (f *Fleet) bindSnapshot(snap *config.Snapshot) error {
	desired := desiredAddrs(snap)

	bound := make(map[string]*boundPair, len(desired))
	for addr, network := range desired {
		pair, err := f.bindAddr(network, net.ParseIP(addr))
		if err != nil {
			for _, p := range bound {
				_ = p.udp.closer.Close()
				_ = p.tcp.closer.Close()
			}
			return err
		}
		bound[addr] = pair
	}

	f.mu.Lock()
	f.bound = bound
	f.mu.Unlock()

	f.refreshReadiness(networkCount(snap))
	for _, p := range bound {
		f.startPair(p)
	}
	return nil
}

// watchReload waits for the snapshot source to publish a change and
// reconciles the bound listener set against it, for as long as ctx is
// alive.
func (f *Fleet) watchReload(ctx context.Context, changed <-chan struct{}) {
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-changed:
			if !ok {
				return
			}
			f.reconcile(ctx, f.source.Current())
		}
	}
}

// reconcile diffs snap's listen-address maps against the currently
// bound addresses: addresses no longer present are unbound, new ones
// are bound. A bind failure for a newly added address is logged and
// that address is left unserved rather than aborting the reload —
// unlike the initial bind, the fleet is already serving every other
// address by this point and spec.md §4.3 treats a per-address bind
// failure as non-fatal once running.
func (f *Fleet) reconcile(ctx context.Context, snap *config.Snapshot) {
	desired := desiredAddrs(snap)

	f.mu.Lock()
	var removed []*boundPair
	for addr, pair := range f.bound {
		if _, ok := desired[addr]; !ok {
			removed = append(removed, pair)
			delete(f.bound, addr)
		}
	}
	var toAdd []string
	for addr := range desired {
		if _, ok := f.bound[addr]; !ok {
			toAdd = append(toAdd, addr)
		}
	}
	f.mu.Unlock()

	if len(removed) == 0 && len(toAdd) == 0 {
		return
	}

	for _, pair := range removed {
		log.WithNetwork(string(pair.network)).Info().
			Str("addr", pair.udp.addr).
			Msg("gateway address removed from configuration, unbinding listeners")
		shutdownCtx, cancel := context.WithTimeout(ctx, ForwardDeadline)
		f.shutdownPair(shutdownCtx, pair)
		cancel()
	}

	for _, addr := range toAdd {
		network := desired[addr]
		pair, err := f.bindAddr(network, net.ParseIP(addr))
		if err != nil {
			log.WithNetwork(string(network)).Error().Err(err).Str("addr", addr).
				Msg("failed to bind new gateway address on reload, network left unserved")
			continue
		}

		f.mu.Lock()
		f.bound[addr] = pair
		f.mu.Unlock()

		f.startPair(pair)
		log.WithNetwork(string(network)).Info().Str("addr", addr).Msg("bound new gateway address from reload")
	}

	f.refreshReadiness(networkCount(snap))
}

// bindAddr opens the UDP and TCP sockets for one gateway address. On a
// TCP failure the already-opened UDP socket is closed before returning.
func (f *Fleet) bindAddr(network backend.NetworkName, ip net.IP) (*boundPair, error) {
	addr := net.JoinHostPort(ip.String(), fmt.Sprintf("%d", f.port))

	udpConn, err := net.ListenUDP("udp", &net.UDPAddr{IP: ip, Port: f.port})
	if err != nil {
		return nil, fmt.Errorf("bind UDP %s for network %s: %w", addr, network, err)
	}
	tcpLn, err := net.ListenTCP("tcp", &net.TCPAddr{IP: ip, Port: f.port})
	if err != nil {
		_ = udpConn.Close()
		return nil, fmt.Errorf("bind TCP %s for network %s: %w", addr, network, err)
	}

	udpListener := &boundListener{
		network: network, addr: addr, transport: "udp",
		closer: udpConn,
		sem:    make(chan struct{}, MaxInFlightForwards),
	}
	udpListener.srv = &dns.Server{
		PacketConn: udpConn,
		Handler:    f.handlerFor(udpListener),
		UDPSize:    dns.MinMsgSize,
	}

	tcpListener := &boundListener{
		network: network, addr: addr, transport: "tcp",
		closer: tcpLn,
		sem:    make(chan struct{}, MaxInFlightForwards),
	}
	tcpListener.srv = &dns.Server{
		Listener: tcpLn,
		Handler:  f.handlerFor(tcpListener),
	}

	return &boundPair{network: network, udp: udpListener, tcp: tcpListener}, nil
}

// startPair registers both listeners of a pair as healthy and starts
// their serve loops in background goroutines tracked by f.wg.
func (f *Fleet) startPair(p *boundPair) {
	for _, l := range []*boundListener{p.udp, p.tcp} {
		metrics.RegisterComponent(l.componentName(), true, "bound")
		metrics.ListenersUp.WithLabelValues(string(l.network), l.transport).Set(1)

		f.wg.Add(1)
		go func(l *boundListener) {
			defer f.wg.Done()
			if err := l.srv.ActivateAndServe(); err != nil {
				metrics.RegisterComponent(l.componentName(), false, err.Error())
				metrics.ListenersUp.WithLabelValues(string(l.network), l.transport).Set(0)
				log.WithListener(l.addr, l.transport).Error().Err(err).Msg("listener stopped unexpectedly")
			}
		}(l)
	}
}

// shutdownPair gracefully drains both listeners of a pair.
func (f *Fleet) shutdownPair(ctx context.Context, p *boundPair) {
	for _, l := range []*boundListener{p.udp, p.tcp} {
		if err := l.srv.ShutdownContext(ctx); err != nil {
			log.WithListener(l.addr, l.transport).Warn().Err(err).Msg("error during listener shutdown")
		}
		metrics.ListenersUp.WithLabelValues(string(l.network), l.transport).Set(0)
	}
}

// refreshReadiness recomputes the readiness-required component list
// from the currently bound listeners.
func (f *Fleet) refreshReadiness(networkCount int) {
	f.mu.Lock()
	required := make([]string, 0, len(f.bound)*2)
	for _, p := range f.bound {
		required = append(required, p.udp.componentName(), p.tcp.componentName())
	}
	f.mu.Unlock()

	metrics.SetRequiredComponents(required)
	metrics.NetworksLoaded.Set(float64(networkCount))
}

// desiredAddrs flattens a snapshot's v4 and v6 listen maps into a single
// gateway-address → network lookup.
func desiredAddrs(snap *config.Snapshot) map[string]backend.NetworkName {
	desired := make(map[string]backend.NetworkName)
	for network, ips := range snap.ListenV4 {
		for _, ip := range ips {
			desired[ip.String()] = network
		}
	}
	for network, ips := range snap.ListenV6 {
		for _, ip := range ips {
			desired[ip.String()] = network
		}
	}
	return desired
}

// networkCount returns the number of distinct networks across a
// snapshot's v4 and v6 listen maps; a dual-stack network counts once.
func networkCount(snap *config.Snapshot) int {
	networks := make(map[backend.NetworkName]struct{})
	for n := range snap.ListenV4 {
		networks[n] = struct{}{}
	}
	for n := range snap.ListenV6 {
		networks[n] = struct{}{}
	}
	return len(networks)
}

func (f *Fleet) handlerFor(l *boundListener) dns.HandlerFunc {
	return func(w dns.ResponseWriter, r *dns.Msg) {
		f.handleQuery(w, r, l)
	}
}
