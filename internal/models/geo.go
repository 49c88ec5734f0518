package models

// GeoStatus describes how a GeoRecord was produced.
type GeoStatus string

const (
	GeoResolved GeoStatus = "resolved"
	GeoLocal    GeoStatus = "local"
	GeoDegraded GeoStatus = "degraded"
)

// Degraded reasons recorded alongside a degraded lookup.
const (
	GeoReasonTimeout       = "timeout"
	GeoReasonRateLimited   = "rate_limited"
	GeoReasonParseError    = "parse_error"
	GeoReasonProviderError = "provider_error"
	GeoReasonRequestError  = "request_error"
	GeoReasonInvalidIP     = "invalid_ip"
	GeoReasonThrottled     = "throttled"
)

// Coordinates are either fully present or absent on a GeoRecord.
type Coordinates struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// GeoRecord holds location and network attributes for an IP.
// Every field is optional.
type GeoRecord struct {
	Country      *string      `json:"country"`
	CountryCode  *string      `json:"country_code"`
	Region       *string      `json:"region"`
	City         *string      `json:"city"`
	PostalCode   *string      `json:"postal_code"`
	Coordinates  *Coordinates `json:"coordinates"`
	Timezone     *string      `json:"timezone"`
	CallingCode  *string      `json:"calling_code"`
	Currency     *string      `json:"currency"`
	Languages    *string      `json:"languages"`
	ASN          *string      `json:"asn"`
	Organization *string      `json:"organization"`

	Network        *string `json:"network,omitempty"`
	ContinentCode  *string `json:"continent_code,omitempty"`
	InEU           *bool   `json:"in_eu,omitempty"`
	UTCOffset      *string `json:"utc_offset,omitempty"`
	CountryISO3    *string `json:"country_code_iso3,omitempty"`
	CountryCapital *string `json:"country_capital,omitempty"`
	CurrencyName   *string `json:"currency_name,omitempty"`
	Hostname       *string `json:"hostname,omitempty"`
}

// IsEmpty reports whether no attribute is set.
func (g GeoRecord) IsEmpty() bool {
	return g == GeoRecord{}
}

// GeoResult is the outcome of a lookup. Reason is set only when Status is
// GeoDegraded; Record is then empty.
type GeoResult struct {
	Status GeoStatus `json:"status"`
	Record GeoRecord `json:"record"`
	Reason string    `json:"reason,omitempty"`
}

func (r GeoResult) Degraded() bool {
	return r.Status == GeoDegraded
}

// DegradedGeo returns a degraded result carrying reason.
func DegradedGeo(reason string) GeoResult {
	return GeoResult{Status: GeoDegraded, Reason: reason}
}

// LocalGeoRecord is the fixed record returned for local-development
// addresses.
func LocalGeoRecord() GeoRecord {
	inEU := false
	return GeoRecord{
		Country:      ptr("Local"),
		CountryCode:  ptr("LOCAL"),
		Region:       ptr("Local"),
		City:         ptr("Localhost"),
		PostalCode:   ptr("00000"),
		Coordinates:  &Coordinates{Latitude: 0, Longitude: 0},
		Timezone:     ptr("UTC"),
		CallingCode:  ptr("+0"),
		Currency:     ptr("USD"),
		Languages:    ptr("en"),
		ASN:          ptr("AS0000"),
		Organization: ptr("Local Network"),
		InEU:         &inEU,
		UTCOffset:    ptr("+0000"),
		Hostname:     ptr("localhost"),
	}
}

func ptr(s string) *string { return &s }
