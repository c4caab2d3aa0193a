package dnsserver

import (
	"net"
	"strings"

	"github.com/miekg/dns"

	"github.com/cuemby/burrow/pkg/backend"
	"github.com/cuemby/burrow/pkg/log"
	"github.com/cuemby/burrow/pkg/metrics"
)

func (f *Fleet) handleQuery(w dns.ResponseWriter, r *dns.Msg, l *boundListener) {
	start := metrics.StartTimer()
	defer metrics.ObserveQuery(start, l.transport)

	if len(r.Question) == 0 {
		writeRcode(w, r, l, dns.RcodeFormatError)
		return
	}

	q := r.Question[0]
	metrics.QueriesTotal.WithLabelValues(l.transport, dns.TypeToString[q.Qtype]).Inc()

	if r.Opcode != dns.OpcodeQuery {
		writeRcode(w, r, l, dns.RcodeNotImplemented)
		return
	}
	if q.Qclass != dns.ClassINET {
		writeRcode(w, r, l, dns.RcodeRefused)
		return
	}

	source := sourceIP(w.RemoteAddr())
	qlog := log.WithQuery(q.Name, source)

	switch q.Qtype {
	case dns.TypeA, dns.TypeAAAA, dns.TypeANY:
		f.answerForward(w, r, l, q, source)
	case dns.TypePTR:
		f.answerPTR(w, r, l, q, source)
	default:
		qlog.Debug().Uint16("qtype", q.Qtype).Msg("unsupported qtype, returning empty NOERROR")
		m := newReply(r)
		m.Authoritative = true
		writeMsg(w, m, l)
	}
}

// answerForward handles A/AAAA/ANY queries: strip the search-domain
// suffix, consult the Backend, filter by family, and either answer
// authoritatively or hand off to forwarding.
func (f *Fleet) answerForward(w dns.ResponseWriter, r *dns.Msg, l *boundListener, q dns.Question, source net.IP) {
	name := f.stripSearchDomain(q.Name)
	result := f.currentBackend().Lookup(source, strings.TrimSuffix(name, "."))

	switch result.Kind {
	case backend.Success:
		metrics.LookupsTotal.WithLabelValues("success").Inc()
		m := newReply(r)
		m.Authoritative = true
		for _, ip := range filterFamily(result.Answers, q.Qtype) {
			m.Answer = append(m.Answer, rrFor(q.Name, ip))
		}
		writeMsg(w, m, l)
	case backend.Forward:
		metrics.LookupsTotal.WithLabelValues("forward").Inc()
		f.forwardQuery(w, r, l, result.Upstreams)
	default:
		metrics.LookupsTotal.WithLabelValues("nxdomain").Inc()
		writeRcode(w, r, l, dns.RcodeNameError)
	}
}

func (f *Fleet) answerPTR(w dns.ResponseWriter, r *dns.Msg, l *boundListener, q dns.Question, source net.IP) {
	target, err := parsePTRName(q.Name)
	if err != nil {
		writeRcode(w, r, l, dns.RcodeFormatError)
		return
	}

	names, ok := f.currentBackend().ReverseLookup(source, target)
	if !ok || len(names) == 0 {
		metrics.LookupsTotal.WithLabelValues("nxdomain").Inc()
		writeRcode(w, r, l, dns.RcodeNameError)
		return
	}

	metrics.LookupsTotal.WithLabelValues("success").Inc()
	m := newReply(r)
	m.Authoritative = true
	for _, n := range names {
		m.Answer = append(m.Answer, &dns.PTR{
			Hdr: dns.RR_Header{Name: q.Name, Rrtype: dns.TypePTR, Class: dns.ClassINET, Ttl: authoritativeTTL},
			Ptr: dns.Fqdn(n),
		})
	}
	writeMsg(w, m, l)
}

// stripSearchDomain removes f.searchSuffix from name if present. The
// caller always builds response RRs against the original qname, not
// this stripped form, so the client sees its own qname echoed back
// case-preserved regardless of whether stripping occurred.
func (f *Fleet) stripSearchDomain(name string) string {
	if f.searchSuffix == "" {
		return name
	}
	suffix := dns.Fqdn(f.searchSuffix)
	return strings.TrimSuffix(name, "."+strings.TrimPrefix(suffix, "."))
}

func filterFamily(ips []net.IP, qtype uint16) []net.IP {
	if qtype == dns.TypeANY {
		return ips
	}
	var out []net.IP
	wantV4 := qtype == dns.TypeA
	for _, ip := range ips {
		isV4 := ip.To4() != nil
		if isV4 == wantV4 {
			out = append(out, ip)
		}
	}
	return out
}

func rrFor(name string, ip net.IP) dns.RR {
	if v4 := ip.To4(); v4 != nil {
		return &dns.A{
			Hdr: dns.RR_Header{Name: name, Rrtype: dns.TypeA, Class: dns.ClassINET, Ttl: authoritativeTTL},
			A:   v4,
		}
	}
	return &dns.AAAA{
		Hdr:  dns.RR_Header{Name: name, Rrtype: dns.TypeAAAA, Class: dns.ClassINET, Ttl: authoritativeTTL},
		AAAA: ip,
	}
}

func newReply(r *dns.Msg) *dns.Msg {
	m := new(dns.Msg)
	m.SetReply(r)
	m.RecursionAvailable = false
	if opt := r.IsEdns0(); opt != nil {
		m.SetEdns0(1232, false)
	}
	return m
}

func writeRcode(w dns.ResponseWriter, r *dns.Msg, l *boundListener, rcode int) {
	m := newReply(r)
	m.Rcode = rcode
	if rcode == dns.RcodeServerFailure {
		metrics.ServfailTotal.WithLabelValues("local").Inc()
	}
	qname := ""
	if len(r.Question) > 0 {
		qname = r.Question[0].Name
	}
	log.WithQuery(qname, sourceIP(w.RemoteAddr())).Debug().
		Str("rcode", dns.RcodeToString[rcode]).
		Msg("answering with error rcode")
	writeMsg(w, m, l)
}

func writeMsg(w dns.ResponseWriter, m *dns.Msg, l *boundListener) {
	if l.transport == "udp" {
		size := uint16(dns.MinMsgSize)
		if opt := m.IsEdns0(); opt != nil {
			size = opt.UDPSize()
		}
		if m.Len() > int(size) {
			m.Truncate(int(size))
			metrics.TruncatedTotal.Inc()
		}
	}
	if err := w.WriteMsg(m); err != nil {
		log.WithListener(l.addr, l.transport).Error().Err(err).Msg("failed to write DNS response")
	}
}

func sourceIP(addr net.Addr) net.IP {
	switch a := addr.(type) {
	case *net.UDPAddr:
		return a.IP
	case *net.TCPAddr:
		return a.IP
	default:
		host, _, err := net.SplitHostPort(addr.String())
		if err != nil {
			return nil
		}
		return net.ParseIP(host)
	}
}

func (f *Fleet) currentBackend() *backend.Backend {
	return f.source.Current().Backend
}
