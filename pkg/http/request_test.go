package http_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	pkghttp "github.com/BradenHooton/iplanding/pkg/http"
	"github.com/BradenHooton/iplanding/pkg/ipaddr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func header(kv ...string) http.Header {
	h := http.Header{}
	for i := 0; i+1 < len(kv); i += 2 {
		h.Add(kv[i], kv[i+1])
	}
	return h
}

func TestResolveClientAddress_LeftmostPublicForwardedFor(t *testing.T) {
	h := header("X-Forwarded-For", "10.0.0.2, 203.0.113.5, 198.51.100.9")

	addr := pkghttp.ResolveClientAddress("10.0.0.1:5000", h, ipaddr.MustDefault())

	assert.Equal(t, "203.0.113.5", addr.Canonical)
	assert.Equal(t, pkghttp.HeaderForwardedFor, addr.Source)
	assert.Equal(t, "10.0.0.1", addr.Transport)
	assert.Equal(t, []string{"10.0.0.2", "203.0.113.5", "198.51.100.9"}, addr.Candidates)
	assert.True(t, addr.IsForwarded())
}

func TestResolveClientAddress_AllPrivateFallsBackToTransport(t *testing.T) {
	h := header("X-Forwarded-For", "192.168.1.10, 10.0.0.3", "X-Real-IP", "127.0.0.1")

	addr := pkghttp.ResolveClientAddress("172.16.0.4:443", h, ipaddr.MustDefault())

	assert.Equal(t, "172.16.0.4", addr.Canonical)
	assert.Equal(t, pkghttp.SourceTransport, addr.Source)
	assert.False(t, addr.IsForwarded())
}

func TestResolveClientAddress_HeaderPriority(t *testing.T) {
	h := header(
		"CF-Connecting-IP", "198.51.100.1",
		"X-Real-IP", "198.51.100.2",
	)

	addr := pkghttp.ResolveClientAddress("10.0.0.1:80", h, ipaddr.MustDefault())

	assert.Equal(t, "198.51.100.2", addr.Canonical)
	assert.Equal(t, pkghttp.HeaderRealIP, addr.Source)
}

func TestResolveClientAddress_FallsThroughToConnectingIP(t *testing.T) {
	h := header(
		"X-Forwarded-For", "garbage, 10.1.1.1",
		"CF-Connecting-IP", "198.51.100.1",
	)

	addr := pkghttp.ResolveClientAddress("10.0.0.1:80", h, ipaddr.MustDefault())

	assert.Equal(t, "198.51.100.1", addr.Canonical)
	assert.Equal(t, pkghttp.HeaderCFConnectingIP, addr.Source)
}

func TestResolveClientAddress_LongChains(t *testing.T) {
	privateHops := func(n int) string {
		return strings.TrimSuffix(strings.Repeat("10.0.0.1, ", n), ", ")
	}

	t.Run("public hop after many private ones", func(t *testing.T) {
		h := header("X-Forwarded-For", privateHops(20)+", 203.0.113.5")

		addr := pkghttp.ResolveClientAddress("192.168.1.1:80", h, ipaddr.MustDefault())

		assert.Equal(t, "203.0.113.5", addr.Canonical)
		assert.Equal(t, pkghttp.HeaderForwardedFor, addr.Source)
	})

	t.Run("oversized chain does not hide later headers", func(t *testing.T) {
		h := header(
			"X-Forwarded-For", privateHops(200),
			"X-Real-IP", "198.51.100.7",
		)

		addr := pkghttp.ResolveClientAddress("192.168.1.1:80", h, ipaddr.MustDefault())

		assert.Equal(t, "198.51.100.7", addr.Canonical)
		assert.Equal(t, pkghttp.HeaderRealIP, addr.Source)
	})
}

func TestResolveClientAddress_MalformedCandidatesSkipped(t *testing.T) {
	h := header("X-Forwarded-For", "unknown, , not-an-ip, 999.1.1.1, [2001:db8::1]:443")

	var addr pkghttp.ClientAddress
	require.NotPanics(t, func() {
		addr = pkghttp.ResolveClientAddress("127.0.0.1:1234", h, ipaddr.MustDefault())
	})

	assert.Equal(t, "2001:db8::1", addr.Canonical)
}

func TestResolveClientAddress_PortAndMappedCandidates(t *testing.T) {
	tests := []struct {
		name  string
		value string
		want  string
	}{
		{"ipv4 with port", "203.0.113.5:8080", "203.0.113.5"},
		{"mapped ipv6", "::ffff:203.0.113.7", "203.0.113.7"},
		{"bare ipv6", "2606:4700::1111", "2606:4700::1111"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			addr := pkghttp.ResolveClientAddress("10.0.0.1:1", header("X-Forwarded-For", tt.value), ipaddr.MustDefault())
			assert.Equal(t, tt.want, addr.Canonical)
		})
	}
}

func TestResolveClientAddress_NoHeaders(t *testing.T) {
	addr := pkghttp.ResolveClientAddress("203.0.113.10:54321", nil, nil)

	assert.Equal(t, "203.0.113.10", addr.Canonical)
	assert.Empty(t, addr.Candidates)
}

func TestResolveClientAddress_IPv6Transport(t *testing.T) {
	addr := pkghttp.ResolveClientAddress("[::1]:54321", http.Header{}, ipaddr.MustDefault())

	assert.Equal(t, "::1", addr.Transport)
	assert.Equal(t, "::1", addr.Canonical)
}

func TestResolveClientAddress_EmptyTransport(t *testing.T) {
	addr := pkghttp.ResolveClientAddress("", http.Header{}, ipaddr.MustDefault())

	assert.Equal(t, "", addr.Canonical)
	assert.Equal(t, pkghttp.SourceTransport, addr.Source)
}

func TestResolveClientAddress_CustomLocalRanges(t *testing.T) {
	classifier, err := ipaddr.NewClassifier([]string{"203.0.113.0/24"})
	require.NoError(t, err)

	h := header("X-Forwarded-For", "203.0.113.5, 198.51.100.20")
	addr := pkghttp.ResolveClientAddress("10.0.0.1:1", h, classifier)

	assert.Equal(t, "198.51.100.20", addr.Canonical)
}

func TestResolveClientAddress_RepeatedHeaderLines(t *testing.T) {
	h := http.Header{}
	h.Add("X-Forwarded-For", "10.0.0.9")
	h.Add("X-Forwarded-For", "198.51.100.44")

	addr := pkghttp.ResolveClientAddress("10.0.0.1:1", h, ipaddr.MustDefault())

	assert.Equal(t, "198.51.100.44", addr.Canonical)
}

func TestExtractClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.5:54321"
	req.Header.Set("X-Forwarded-For", "203.0.113.42, 10.0.0.5")

	assert.Equal(t, "203.0.113.42", pkghttp.ExtractClientIP(req, ipaddr.MustDefault()))
}
