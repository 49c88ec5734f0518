package services

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/BradenHooton/iplanding/internal/models"
	pkghttp "github.com/BradenHooton/iplanding/pkg/http"
	"github.com/BradenHooton/iplanding/pkg/validation"
	"github.com/google/uuid"
)

// Column widths in visitor_logs.
const (
	maxIPAddressLen = 45
	maxGeoShort     = 10
	maxGeoMedium    = 50
	maxGeoName      = 100
	maxGeoLong      = 200
	maxHostnameLen  = 255
)

var spamPhrases = []string{
	"click here", "buy now", "free money", "win now", "urgent", "limited time", "act now",
}

// RecordBuilder sanitizes and validates request data into a VisitorRecord.
type RecordBuilder struct {
	logger *slog.Logger
}

func NewRecordBuilder(logger *slog.Logger) *RecordBuilder {
	return &RecordBuilder{logger: logger}
}

// Build composes a VisitorRecord. A nil form yields a page view; otherwise a
// submission. It returns either a complete record or a validation error,
// never both.
func (b *RecordBuilder) Build(addr pkghttp.ClientAddress, geo models.GeoResult, userAgent *string, isBot bool, form *models.FormFields, now time.Time) (*models.VisitorRecord, *models.ValidationError) {
	record := &models.VisitorRecord{
		ID:        uuid.New(),
		Category:  models.CategoryPageView,
		IPAddress: b.truncate("ip_address", strings.TrimSpace(addr.Canonical), maxIPAddressLen),
		Geo:       b.SanitizeGeo(geo.Record),
		GeoStatus: geo.Status,
		UserAgent: b.sanitizeUserAgent(userAgent),
		IsBot:     isBot,
		Timestamp: now.UTC(),
	}
	if record.GeoStatus == "" {
		record.GeoStatus = models.GeoDegraded
	}
	if record.GeoStatus == models.GeoDegraded {
		record.Geo = models.GeoRecord{}
		record.GeoReason = geo.Reason
	}

	if form != nil {
		cleaned, verr := b.PrepareForm(form)
		if verr != nil {
			return nil, verr
		}
		record.Category = models.CategorySubmission
		record.Form = cleaned
	}

	return record, nil
}

// PrepareForm cleans a copy of form and validates it. The input is not
// modified.
func (b *RecordBuilder) PrepareForm(form *models.FormFields) (*models.FormFields, *models.ValidationError) {
	if form == nil {
		return nil, &models.ValidationError{Field: "form", Reason: "form data is required"}
	}

	cleaned := &models.FormFields{
		Name:    cleanValue(form.Name, false),
		Email:   cleanValue(form.Email, false),
		Message: cleanValue(form.Message, true),
	}
	if len(form.Extra) > 0 {
		cleaned.Extra = make(map[string]string, len(form.Extra))
		for key, value := range form.Extra {
			key = cleanValue(key, false)
			cleaned.Extra[key] = b.truncate("extra."+key, cleanValue(value, true), models.MaxExtraValueLen)
		}
	}

	if fe := validation.Struct(cleaned); fe != nil {
		return nil, &models.ValidationError{Field: fe.Field, Reason: fe.Message}
	}
	if verr := checkSpam(cleaned); verr != nil {
		return nil, verr
	}

	return cleaned, nil
}

func checkSpam(form *models.FormFields) *models.ValidationError {
	fields := []struct{ name, value string }{
		{"name", form.Name},
		{"email", form.Email},
		{"message", form.Message},
	}
	keys := make([]string, 0, len(form.Extra))
	for key := range form.Extra {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		fields = append(fields, struct{ name, value string }{"extra." + key, form.Extra[key]})
	}

	for _, f := range fields {
		lower := strings.ToLower(f.value)
		for _, phrase := range spamPhrases {
			if strings.Contains(lower, phrase) {
				return &models.ValidationError{Field: f.name, Reason: "contains suspicious content"}
			}
		}
		if hasRepeatedRun(lower, 5) {
			return &models.ValidationError{Field: f.name, Reason: "contains suspicious patterns"}
		}
	}
	return nil
}

// hasRepeatedRun reports whether any ASCII letter or digit appears n times
// in a row.
func hasRepeatedRun(s string, n int) bool {
	var prev rune
	run := 0
	for _, r := range s {
		if r == prev && ((r >= 'a' && r <= 'z') || (r >= '0' && r <= '9')) {
			run++
			if run >= n {
				return true
			}
			continue
		}
		prev = r
		run = 1
	}
	return false
}

// cleanValue trims whitespace and removes control characters. Newlines and
// tabs survive only when multiline is set.
func cleanValue(s string, multiline bool) string {
	s = strings.Map(func(r rune) rune {
		if multiline && (r == '\n' || r == '\t' || r == '\r') {
			return r
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
	return strings.TrimSpace(s)
}

func (b *RecordBuilder) sanitizeUserAgent(userAgent *string) *string {
	if userAgent == nil {
		return nil
	}
	ua := strings.Map(func(r rune) rune {
		switch r {
		case '<', '>', '"', '\'', ';', '\\':
			return -1
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, *userAgent)
	ua = strings.TrimSpace(ua)
	if ua == "" {
		return nil
	}
	ua = b.truncate("user_agent", ua, models.MaxUserAgentLen)
	return &ua
}

// SanitizeGeo trims provider strings and caps them at their column widths.
func (b *RecordBuilder) SanitizeGeo(g models.GeoRecord) models.GeoRecord {
	g.Country = b.truncatePtr("country", g.Country, maxGeoName)
	g.CountryCode = b.truncatePtr("country_code", g.CountryCode, maxGeoShort)
	g.Region = b.truncatePtr("region", g.Region, maxGeoName)
	g.City = b.truncatePtr("city", g.City, maxGeoName)
	g.PostalCode = b.truncatePtr("postal_code", g.PostalCode, 20)
	g.Timezone = b.truncatePtr("timezone", g.Timezone, maxGeoMedium)
	g.CallingCode = b.truncatePtr("calling_code", g.CallingCode, maxGeoShort)
	g.Currency = b.truncatePtr("currency", g.Currency, maxGeoShort)
	g.Languages = b.truncatePtr("languages", g.Languages, maxGeoLong)
	g.ASN = b.truncatePtr("asn", g.ASN, 20)
	g.Organization = b.truncatePtr("organization", g.Organization, maxGeoLong)
	g.Network = b.truncatePtr("network", g.Network, maxGeoMedium)
	g.ContinentCode = b.truncatePtr("continent_code", g.ContinentCode, 5)
	g.UTCOffset = b.truncatePtr("utc_offset", g.UTCOffset, maxGeoShort)
	g.CountryISO3 = b.truncatePtr("country_code_iso3", g.CountryISO3, 5)
	g.CountryCapital = b.truncatePtr("country_capital", g.CountryCapital, maxGeoName)
	g.CurrencyName = b.truncatePtr("currency_name", g.CurrencyName, maxGeoMedium)
	g.Hostname = b.truncatePtr("hostname", g.Hostname, maxHostnameLen)
	return g
}

func (b *RecordBuilder) truncatePtr(field string, s *string, max int) *string {
	if s == nil {
		return nil
	}
	v := b.truncate(field, strings.TrimSpace(*s), max)
	if v == "" {
		return nil
	}
	return &v
}

// truncate caps s at max runes and logs the field name when it cuts.
func (b *RecordBuilder) truncate(field, s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	b.logger.LogAttrs(context.Background(), slog.LevelDebug, "field truncated",
		slog.String("field", field),
		slog.Int("length", utf8.RuneCountInString(s)),
		slog.Int("max", max))
	return string([]rune(s)[:max])
}
