package http

import (
	"net"
	"net/http"
	"net/netip"
	"strings"

	"github.com/BradenHooton/iplanding/pkg/ipaddr"
)

// Proxy headers inspected by ResolveClientAddress, highest priority first.
const (
	HeaderForwardedFor     = "X-Forwarded-For"
	HeaderRealIP           = "X-Real-IP"
	HeaderCFConnectingIP   = "CF-Connecting-IP"
	SourceTransport        = "remote_addr"
	maxForwardedCandidates = 64
)

var forwardingHeaders = []string{HeaderForwardedFor, HeaderRealIP, HeaderCFConnectingIP}

// LocalClassifier decides whether an address is private, loopback,
// link-local or otherwise not usable for geolocation.
type LocalClassifier interface {
	IsLocal(addr netip.Addr) bool
}

// ClientAddress is the result of resolving a request's origin.
// It is built once per request and never modified.
type ClientAddress struct {
	Transport  string   `json:"transport"`
	Candidates []string `json:"candidates,omitempty"`
	Canonical  string   `json:"canonical"`
	Source     string   `json:"source"`
}

// IsForwarded reports whether the canonical address came from a proxy header.
func (c ClientAddress) IsForwarded() bool {
	return c.Source != SourceTransport
}

type candidate struct {
	value  string
	source string
}

// ResolveClientAddress derives the canonical client address from the
// transport address and proxy headers.
//
// Headers are read in priority order (X-Forwarded-For, X-Real-IP,
// CF-Connecting-IP). A forwarded-for chain is read left to right. The first
// candidate that parses as an IP literal and is not local wins; otherwise the
// transport address is used, even when it is private. Malformed candidates
// are skipped.
func ResolveClientAddress(transport string, header http.Header, classifier LocalClassifier) ClientAddress {
	if classifier == nil {
		classifier = ipaddr.MustDefault()
	}

	result := ClientAddress{
		Transport: stripPort(transport),
		Source:    SourceTransport,
	}

	candidates := collectCandidates(header)
	for _, c := range candidates {
		result.Candidates = append(result.Candidates, c.value)
	}

	for _, c := range candidates {
		addr, ok := ipaddr.Parse(c.value)
		if !ok || classifier.IsLocal(addr) {
			continue
		}
		result.Canonical = addr.String()
		result.Source = c.source
		return result
	}

	result.Canonical = result.Transport
	if addr, ok := ipaddr.Parse(result.Transport); ok {
		result.Canonical = addr.String()
	}
	return result
}

// ExtractClientIP returns the canonical address for r.
func ExtractClientIP(r *http.Request, classifier LocalClassifier) string {
	return ResolveClientAddress(r.RemoteAddr, r.Header, classifier).Canonical
}

func collectCandidates(header http.Header) []candidate {
	if header == nil {
		return nil
	}

	var out []candidate
	for _, name := range forwardingHeaders {
		// The candidate budget is per header. Values() covers repeated lines.
		taken := 0
	values:
		for _, value := range header.Values(name) {
			for _, part := range strings.Split(value, ",") {
				part = strings.TrimSpace(part)
				if part == "" {
					continue
				}
				if taken >= maxForwardedCandidates {
					break values
				}
				out = append(out, candidate{value: part, source: name})
				taken++
			}
		}
	}
	return out
}

// stripPort removes a port (and IPv6 brackets) from a transport address.
func stripPort(remoteAddr string) string {
	remoteAddr = strings.TrimSpace(remoteAddr)
	if remoteAddr == "" {
		return ""
	}
	if host, _, err := net.SplitHostPort(remoteAddr); err == nil {
		return host
	}
	return strings.TrimSuffix(strings.TrimPrefix(remoteAddr, "["), "]")
}
