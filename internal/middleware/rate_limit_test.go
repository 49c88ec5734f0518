package middleware

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	pkghttp "github.com/BradenHooton/iplanding/pkg/http"
	"github.com/BradenHooton/iplanding/pkg/ipaddr"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestRateLimitByClientIP_LimitsPerResolvedIP(t *testing.T) {
	handler := RateLimitByClientIP(RateLimitConfig{RequestsPerMinute: 2}, ipaddr.MustDefault())(okHandler())

	send := func(forwardedFor string) int {
		req := httptest.NewRequest("GET", "/", nil)
		req.RemoteAddr = "10.0.0.1:443"
		req.Header.Set("X-Forwarded-For", forwardedFor)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusOK, send("203.0.113.5"))
	assert.Equal(t, http.StatusOK, send("203.0.113.5"))
	assert.Equal(t, http.StatusTooManyRequests, send("203.0.113.5"))

	// Same proxy, different client.
	assert.Equal(t, http.StatusOK, send("198.51.100.7"))
}

func TestRateLimitByClientIP_JSONBody(t *testing.T) {
	handler := RateLimitByClientIP(RateLimitConfig{RequestsPerMinute: 1}, nil)(okHandler())

	var w *httptest.ResponseRecorder
	for i := 0; i < 2; i++ {
		req := httptest.NewRequest("GET", "/", nil)
		req.RemoteAddr = "203.0.113.9:1234"
		w = httptest.NewRecorder()
		handler.ServeHTTP(w, req)
	}

	require.Equal(t, http.StatusTooManyRequests, w.Code)
	var resp pkghttp.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "rate_limit_exceeded", resp.Error)
}

func TestCORS_AllowedOrigin(t *testing.T) {
	handler := CORS(DefaultCORSConfig([]string{"https://landing.example.com/"}))(okHandler())

	req := httptest.NewRequest("OPTIONS", "/submit", nil)
	req.Header.Set("Origin", "https://landing.example.com")
	req.Header.Set("Access-Control-Request-Method", "POST")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://landing.example.com", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Methods"), "POST")
}

func TestCORS_UnknownOriginGetsNoHeaders(t *testing.T) {
	handler := CORS(DefaultCORSConfig([]string{"https://landing.example.com"}))(okHandler())

	req := httptest.NewRequest("POST", "/submit", nil)
	req.Header.Set("Origin", "https://evil.example.net")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestSecureLogger_RedactsQueryAndLogsClientIP(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	handler := middleware.RequestID(SecureLogger(logger, nil, "development")(okHandler()))

	req := httptest.NewRequest("GET", "/admin/visitors?email=ada@example.com", nil)
	req.RemoteAddr = "10.0.0.1:443"
	req.Header.Set("X-Real-IP", "203.0.113.5")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "http_request", entry["msg"])
	assert.Equal(t, "/admin/visitors?[REDACTED]", entry["path"])
	assert.Equal(t, "203.0.113.5", entry["client_ip"])
	assert.NotEmpty(t, entry["request_id"])
	assert.NotContains(t, buf.String(), "ada@example.com")
}

func TestSecureLogger_RedactsAddressesInProduction(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	handler := SecureLogger(logger, nil, "production")(okHandler())

	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "10.0.0.1:443"
	req.Header.Set("X-Real-IP", "203.0.113.5")
	req.Header.Set("User-Agent", "Mozilla/5.0")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "[REDACTED]", entry["client_ip"])
	assert.Equal(t, "[REDACTED]", entry["remote_addr"])
	assert.Equal(t, "[REDACTED]", entry["user_agent"])
	assert.NotContains(t, buf.String(), "203.0.113.5")
}
