package dnsserver

import (
	"net"

	"github.com/miekg/dns"

	"github.com/cuemby/burrow/pkg/log"
	"github.com/cuemby/burrow/pkg/metrics"
)

// forwardQuery proxies r to each upstream in order, under a bounded
// per-attempt deadline, until one answers without error. The first
// successful answer is relayed verbatim (transaction ID already
// matches since Exchange sends r as given). If every upstream fails,
// or the listener's in-flight cap is already exhausted, the client
// gets SERVFAIL.
func (f *Fleet) forwardQuery(w dns.ResponseWriter, r *dns.Msg, l *boundListener, upstreams []net.IP) {
	select {
	case l.sem <- struct{}{}:
		defer func() { <-l.sem }()
	default:
		metrics.ForwardsTotal.WithLabelValues("overloaded").Inc()
		writeRcode(w, r, l, dns.RcodeServerFailure)
		return
	}

	start := metrics.StartTimer()
	defer metrics.ObserveForward(start)

	client := &dns.Client{Net: l.transport, Timeout: ForwardDeadline}
	flog := log.WithQuery(r.Question[0].Name, sourceIP(w.RemoteAddr()))

	for _, upstream := range upstreams {
		addr := net.JoinHostPort(upstream.String(), "53")
		resp, _, err := client.Exchange(r, addr)
		if err != nil || resp == nil {
			flog.Debug().Err(err).Str("upstream", addr).Msg("upstream forward failed, trying next")
			continue
		}
		if resp.Rcode == dns.RcodeServerFailure {
			continue
		}

		resp.RecursionAvailable = true
		resp.Authoritative = false
		metrics.ForwardsTotal.WithLabelValues("ok").Inc()
		writeMsg(w, resp, l)
		return
	}

	metrics.ForwardsTotal.WithLabelValues("timeout").Inc()
	writeRcode(w, r, l, dns.RcodeServerFailure)
}
