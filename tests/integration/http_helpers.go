package integration

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/BradenHooton/iplanding/internal/config"
	"github.com/BradenHooton/iplanding/internal/database"
	"github.com/BradenHooton/iplanding/internal/handlers"
	"github.com/BradenHooton/iplanding/internal/metrics"
	middlewareCustom "github.com/BradenHooton/iplanding/internal/middleware"
	"github.com/BradenHooton/iplanding/internal/routes"
	"github.com/BradenHooton/iplanding/internal/services"
	"github.com/BradenHooton/iplanding/pkg/ipaddr"
)

// GeoProvider is a stub geolocation provider that counts lookups.
type GeoProvider struct {
	Server *httptest.Server
	calls  int32
	status int32
}

// NewGeoProvider serves IPAPIBody for every lookup until SetStatus changes it.
func NewGeoProvider() *GeoProvider {
	p := &GeoProvider{status: http.StatusOK}
	p.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&p.calls, 1)
		status := int(atomic.LoadInt32(&p.status))
		if status != http.StatusOK {
			w.WriteHeader(status)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, IPAPIBody)
	}))
	return p
}

// SetStatus makes subsequent lookups answer with status and no body.
func (p *GeoProvider) SetStatus(status int) {
	atomic.StoreInt32(&p.status, int32(status))
}

// Calls returns the number of lookups served.
func (p *GeoProvider) Calls() int {
	return int(atomic.LoadInt32(&p.calls))
}

// TestServer wraps httptest.Server with database and all dependencies
type TestServer struct {
	Server   *httptest.Server
	Pool     *database.DB
	Provider *GeoProvider
	Config   *config.Config
	Admin    *services.AdminService
	Registry *prometheus.Registry
}

// NewTestServer initializes a complete HTTP server with real database + stub provider
func NewTestServer(db *database.DB) *TestServer {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelWarn}))
	provider := NewGeoProvider()

	cfg := &config.Config{
		Server: config.ServerConfig{
			Port:               "0",
			Env:                "test",
			HTTPRequestsPerMin: 1000,
		},
		Geo: config.GeoConfig{
			APIURL:        provider.Server.URL,
			LookupTimeout: 2 * time.Second,
		},
		Visitor: config.VisitorConfig{
			MaxSubmissionsPerWindow: 10,
			SubmissionWindow:        time.Hour,
			PageViewCooldown:        5 * time.Minute,
		},
		Maintenance: config.MaintenanceConfig{
			RefreshBatchSize: 50,
		},
	}

	registry := prometheus.NewRegistry()
	m := metrics.New(registry)
	classifier := ipaddr.MustDefault()

	visitorRepo := InitializeRepositories(db)

	geoService := services.NewGeolocationService(services.GeolocationConfig{
		BaseURL: cfg.Geo.APIURL,
		Timeout: cfg.Geo.LookupTimeout,
	}, classifier, nil, logger, m)

	limiter := services.NewRateLimitService(visitorRepo, services.RateLimitConfig{
		MaxSubmissionsPerWindow: cfg.Visitor.MaxSubmissionsPerWindow,
		WindowDuration:          cfg.Visitor.SubmissionWindow,
	}, logger, m)

	builder := services.NewRecordBuilder(logger)
	visitorService := services.NewVisitorService(
		visitorRepo, geoService, services.NewBotClassifier(nil), limiter, builder, classifier,
		services.VisitorServiceConfig{PageViewCooldown: cfg.Visitor.PageViewCooldown},
		logger, m,
	)
	adminService := services.NewAdminService(visitorRepo, geoService, builder, logger, m)

	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(middlewareCustom.SecurityHeaders(middlewareCustom.SecurityHeadersConfig{Env: cfg.Server.Env}))
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Timeout(60 * time.Second))

	routes.RegisterRoutes(r,
		handlers.NewVisitorHandler(visitorService, logger),
		handlers.NewAdminHandler(adminService, db, cfg.Maintenance.RefreshBatchSize, logger),
		routes.Options{
			RateLimit:  middlewareCustom.RateLimitConfig{RequestsPerMinute: cfg.Server.HTTPRequestsPerMin},
			Classifier: classifier,
			Metrics:    promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		},
	)

	return &TestServer{
		Server:   httptest.NewServer(r),
		Pool:     db,
		Provider: provider,
		Config:   cfg,
		Admin:    adminService,
		Registry: registry,
	}
}

// Close shuts down the test server
func (ts *TestServer) Close() {
	if ts.Server != nil {
		ts.Server.Close()
	}
	if ts.Provider != nil {
		ts.Provider.Server.Close()
	}
}

// Request makes an HTTP request to the test server
func (ts *TestServer) Request(method, path string, body interface{}, headers map[string]string) (*http.Response, error) {
	url := ts.Server.URL + path

	var bodyReader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		bodyReader = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequest(method, url, bodyReader)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/json")
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	return http.DefaultClient.Do(req)
}

// Submit posts a form as if it came through a proxy for clientIP.
func (ts *TestServer) Submit(form interface{}, clientIP string) (*http.Response, error) {
	return ts.Request(http.MethodPost, "/submit", form, map[string]string{
		"X-Forwarded-For": clientIP,
		"User-Agent":      "Mozilla/5.0 (X11; Linux x86_64)",
	})
}

// ParseJSONResponse parses JSON response body into target struct
func ParseJSONResponse(resp *http.Response, target interface{}) error {
	defer resp.Body.Close()
	return json.NewDecoder(resp.Body).Decode(target)
}
