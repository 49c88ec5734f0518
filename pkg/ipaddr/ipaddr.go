// Package ipaddr parses client address candidates and decides whether an
// address is routable on the public internet.
package ipaddr

import (
	"fmt"
	"net/netip"
	"strings"
)

// DefaultLocalRanges lists the CIDR ranges treated as non-geolocatable when no
// custom list is configured.
var DefaultLocalRanges = []string{
	"10.0.0.0/8",
	"172.16.0.0/12",
	"192.168.0.0/16",
	"127.0.0.0/8",
	"169.254.0.0/16",
	"100.64.0.0/10", // carrier-grade NAT
	"fc00::/7",
	"fe80::/10",
	"::1/128",
}

// Classifier reports whether an address is local (private, loopback,
// link-local or inside one of the configured ranges).
type Classifier struct {
	ranges []netip.Prefix
}

// NewClassifier builds a Classifier from CIDR strings.
// An empty list falls back to DefaultLocalRanges.
func NewClassifier(cidrs []string) (*Classifier, error) {
	if len(cidrs) == 0 {
		cidrs = DefaultLocalRanges
	}

	ranges := make([]netip.Prefix, 0, len(cidrs))
	for _, cidr := range cidrs {
		cidr = strings.TrimSpace(cidr)
		if cidr == "" {
			continue
		}
		prefix, err := netip.ParsePrefix(cidr)
		if err != nil {
			return nil, fmt.Errorf("invalid local range %q: %w", cidr, err)
		}
		ranges = append(ranges, prefix.Masked())
	}

	return &Classifier{ranges: ranges}, nil
}

// MustDefault returns a Classifier over DefaultLocalRanges.
func MustDefault() *Classifier {
	c, err := NewClassifier(nil)
	if err != nil {
		panic(err)
	}
	return c
}

// IsLocal reports whether addr must never be treated as a public client address.
func (c *Classifier) IsLocal(addr netip.Addr) bool {
	if !addr.IsValid() {
		return true
	}
	addr = addr.Unmap()

	if addr.IsPrivate() || addr.IsLoopback() || addr.IsLinkLocalUnicast() ||
		addr.IsLinkLocalMulticast() || addr.IsMulticast() || addr.IsUnspecified() {
		return true
	}

	if c == nil {
		return false
	}
	for _, prefix := range c.ranges {
		if prefix.Contains(addr) {
			return true
		}
	}
	return false
}

// Parse extracts an IP literal from a header candidate. It accepts bare
// addresses, "ip:port", "[ipv6]:port" and bracketed IPv6, and strips quotes
// that some proxies add. IPv4-mapped IPv6 addresses are unmapped.
func Parse(candidate string) (netip.Addr, bool) {
	s := strings.Trim(strings.TrimSpace(candidate), `"`)
	if s == "" {
		return netip.Addr{}, false
	}

	if addr, err := netip.ParseAddr(s); err == nil {
		return addr.Unmap(), true
	}

	if addrPort, err := netip.ParseAddrPort(s); err == nil {
		return addrPort.Addr().Unmap(), true
	}

	if strings.HasPrefix(s, "[") && strings.HasSuffix(s, "]") {
		if addr, err := netip.ParseAddr(s[1 : len(s)-1]); err == nil {
			return addr.Unmap(), true
		}
	}

	return netip.Addr{}, false
}
