package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/BradenHooton/iplanding/internal/metrics"
	"github.com/BradenHooton/iplanding/internal/models"
	"github.com/BradenHooton/iplanding/pkg/ipaddr"
	"golang.org/x/time/rate"
)

const maxProviderBody = 64 << 10

// GeolocationConfig configures the provider client.
type GeolocationConfig struct {
	BaseURL           string        // e.g. https://ipapi.co
	Timeout           time.Duration // per lookup, default 10s
	RequestsPerMinute int           // 0 disables client-side throttling
	UserAgent         string
}

// GeolocationService resolves IP addresses through an HTTP provider that
// serves ipapi.co-shaped JSON at {BaseURL}/{ip}/json/.
//
// Lookup never returns an error. Failures produce a degraded GeoResult with
// the cause in Reason. Each lookup makes at most one provider request.
type GeolocationService struct {
	config     GeolocationConfig
	client     *http.Client
	classifier *ipaddr.Classifier
	limiter    *rate.Limiter
	cache      GeoCache
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

func NewGeolocationService(config GeolocationConfig, classifier *ipaddr.Classifier, cache GeoCache, logger *slog.Logger, m *metrics.Metrics) *GeolocationService {
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Second
	}
	if config.BaseURL == "" {
		config.BaseURL = "https://ipapi.co"
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")
	if config.UserAgent == "" {
		config.UserAgent = "iplanding-geo/1.0"
	}
	if classifier == nil {
		classifier = ipaddr.MustDefault()
	}

	var limiter *rate.Limiter
	if n := config.RequestsPerMinute; n > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(n)), n)
	}

	return &GeolocationService{
		config:     config,
		client:     &http.Client{Timeout: config.Timeout},
		classifier: classifier,
		limiter:    limiter,
		cache:      cache,
		logger:     logger,
		metrics:    m,
	}
}

// providerResponse mirrors the ipapi.co JSON body.
type providerResponse struct {
	Error              bool     `json:"error"`
	Reason             string   `json:"reason"`
	CountryName        string   `json:"country_name"`
	CountryCode        string   `json:"country_code"`
	Region             string   `json:"region"`
	City               string   `json:"city"`
	Postal             string   `json:"postal"`
	Latitude           *float64 `json:"latitude"`
	Longitude          *float64 `json:"longitude"`
	Timezone           string   `json:"timezone"`
	CountryCallingCode string   `json:"country_calling_code"`
	Currency           string   `json:"currency"`
	Languages          string   `json:"languages"`
	ASN                string   `json:"asn"`
	Org                string   `json:"org"`
	Network            string   `json:"network"`
	ContinentCode      string   `json:"continent_code"`
	InEU               *bool    `json:"in_eu"`
	UTCOffset          string   `json:"utc_offset"`
	CountryCodeISO3    string   `json:"country_code_iso3"`
	CountryCapital     string   `json:"country_capital"`
	CurrencyName       string   `json:"currency_name"`
	Hostname           string   `json:"hostname"`
}

// IsLocal reports whether ip gets the local stub instead of a lookup.
func (s *GeolocationService) IsLocal(ip string) bool {
	ip = strings.TrimSpace(ip)
	if ip == "" || strings.EqualFold(ip, "localhost") {
		return true
	}
	addr, ok := ipaddr.Parse(ip)
	return ok && s.classifier.IsLocal(addr)
}

// Lookup resolves ip to a GeoResult.
func (s *GeolocationService) Lookup(ctx context.Context, ip string) models.GeoResult {
	if s.IsLocal(ip) {
		s.metrics.ObserveGeoLookup(string(models.GeoLocal), "", 0)
		return models.GeoResult{Status: models.GeoLocal, Record: models.LocalGeoRecord()}
	}

	addr, ok := ipaddr.Parse(ip)
	if !ok {
		return s.degrade(ip, models.GeoReasonInvalidIP, nil, 0)
	}
	key := addr.String()

	if s.cache != nil {
		if record, hit := s.cache.Get(ctx, key); hit {
			return models.GeoResult{Status: models.GeoResolved, Record: record}
		}
	}

	if s.limiter != nil && !s.limiter.Allow() {
		return s.degrade(key, models.GeoReasonThrottled, nil, 0)
	}

	start := time.Now()
	record, reason, err := s.fetch(ctx, key)
	elapsed := time.Since(start)
	if reason != "" {
		return s.degrade(key, reason, err, elapsed)
	}

	s.metrics.ObserveGeoLookup(string(models.GeoResolved), "", elapsed)
	if s.cache != nil {
		s.cache.Set(ctx, key, record)
	}
	return models.GeoResult{Status: models.GeoResolved, Record: record}
}

// fetch performs the single provider request. A non-empty reason means the
// lookup failed.
func (s *GeolocationService) fetch(ctx context.Context, ip string) (models.GeoRecord, string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	url := fmt.Sprintf("%s/%s/json/", s.config.BaseURL, ip)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return models.GeoRecord{}, models.GeoReasonRequestError, err
	}
	req.Header.Set("User-Agent", s.config.UserAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return models.GeoRecord{}, failureReason(err), err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return models.GeoRecord{}, models.GeoReasonRateLimited, nil
	}
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxProviderBody))
		return models.GeoRecord{}, fmt.Sprintf("http_status_%d", resp.StatusCode), nil
	}

	var body *providerResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxProviderBody)).Decode(&body); err != nil {
		if isTimeout(err) {
			return models.GeoRecord{}, models.GeoReasonTimeout, err
		}
		return models.GeoRecord{}, models.GeoReasonParseError, err
	}
	if body == nil {
		return models.GeoRecord{}, models.GeoReasonParseError, errors.New("empty provider body")
	}
	if body.Error {
		return models.GeoRecord{}, models.GeoReasonProviderError, fmt.Errorf("provider error: %s", body.Reason)
	}

	return body.toRecord(), "", nil
}

func (s *GeolocationService) degrade(ip, reason string, err error, elapsed time.Duration) models.GeoResult {
	attrs := []any{
		slog.String("ip_address", ip),
		slog.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, slog.Any("error", err))
	}
	s.logger.Warn("geolocation lookup degraded", attrs...)
	s.metrics.ObserveGeoLookup(string(models.GeoDegraded), reason, elapsed)
	return models.DegradedGeo(reason)
}

func failureReason(err error) string {
	if isTimeout(err) {
		return models.GeoReasonTimeout
	}
	return models.GeoReasonRequestError
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func (p *providerResponse) toRecord() models.GeoRecord {
	record := models.GeoRecord{
		Country:        optional(p.CountryName),
		CountryCode:    optional(p.CountryCode),
		Region:         optional(p.Region),
		City:           optional(p.City),
		PostalCode:     optional(p.Postal),
		Timezone:       optional(p.Timezone),
		CallingCode:    optional(p.CountryCallingCode),
		Currency:       optional(p.Currency),
		Languages:      optional(p.Languages),
		ASN:            optional(p.ASN),
		Organization:   optional(p.Org),
		Network:        optional(p.Network),
		ContinentCode:  optional(p.ContinentCode),
		InEU:           p.InEU,
		UTCOffset:      optional(p.UTCOffset),
		CountryISO3:    optional(p.CountryCodeISO3),
		CountryCapital: optional(p.CountryCapital),
		CurrencyName:   optional(p.CurrencyName),
		Hostname:       optional(p.Hostname),
	}
	// Coordinates are kept only as a pair.
	if p.Latitude != nil && p.Longitude != nil {
		record.Coordinates = &models.Coordinates{Latitude: *p.Latitude, Longitude: *p.Longitude}
	}
	return record
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
