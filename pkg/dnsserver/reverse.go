package dnsserver

import (
	"fmt"
	"net"
	"strconv"
	"strings"
)

const (
	v4Suffix = ".in-addr.arpa."
	v6Suffix = ".ip6.arpa."
)

// parsePTRName decodes an RFC 1035 reverse-lookup QNAME
// ("2.0.88.10.in-addr.arpa." or the nibble form under ip6.arpa) back
// into the IP it names.
func parsePTRName(name string) (net.IP, error) {
	fqdn := strings.ToLower(name)
	if !strings.HasSuffix(fqdn, ".") {
		fqdn += "."
	}

	switch {
	case strings.HasSuffix(fqdn, v4Suffix):
		return parseV4PTR(strings.TrimSuffix(fqdn, v4Suffix))
	case strings.HasSuffix(fqdn, v6Suffix):
		return parseV6PTR(strings.TrimSuffix(fqdn, v6Suffix))
	default:
		return nil, fmt.Errorf("not a reverse-lookup name: %s", name)
	}
}

// parseV4PTR expects the reversed-octet prefix, e.g. "2.0.88.10".
func parseV4PTR(prefix string) (net.IP, error) {
	parts := strings.Split(prefix, ".")
	if len(parts) != 4 {
		return nil, fmt.Errorf("malformed in-addr.arpa prefix: %s", prefix)
	}
	octets := make([]byte, 4)
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 || n > 255 {
			return nil, fmt.Errorf("malformed octet %q in in-addr.arpa prefix", p)
		}
		// Octets appear in reverse order in the name.
		octets[3-i] = byte(n)
	}
	return net.IPv4(octets[0], octets[1], octets[2], octets[3]), nil
}

// parseV6PTR expects 32 reversed nibbles, e.g.
// "2.0.0.0...0.0.0.0.b.0.2.2.3.c.d.0.b.3.3.7.d.f.d.f".
func parseV6PTR(prefix string) (net.IP, error) {
	nibbles := strings.Split(prefix, ".")
	if len(nibbles) != 32 {
		return nil, fmt.Errorf("malformed ip6.arpa prefix: %s", prefix)
	}
	ip := make(net.IP, 16)
	for i, n := range nibbles {
		v, err := strconv.ParseUint(n, 16, 8)
		if err != nil {
			return nil, fmt.Errorf("malformed nibble %q in ip6.arpa prefix", n)
		}
		// Nibbles appear least-significant-first; byte i/2's high or
		// low nibble is nibbles[31-i].
		byteIdx := 15 - i/2
		if i%2 == 0 {
			ip[byteIdx] |= byte(v)
		} else {
			ip[byteIdx] |= byte(v) << 4
		}
	}
	return ip, nil
}
