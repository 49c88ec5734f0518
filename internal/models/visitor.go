package models

import (
	"time"

	"github.com/google/uuid"
)

// VisitorCategory separates page views from form submissions. Only
// submissions count toward the per-IP submission limit.
type VisitorCategory string

const (
	CategoryPageView   VisitorCategory = "page_view"
	CategorySubmission VisitorCategory = "submission"
)

// Form field limits.
const (
	MaxNameLength     = 100
	MaxEmailLength    = 255
	MaxMessageLength  = 1000
	MaxExtraFields    = 10
	MaxExtraKeyLength = 64
	MaxExtraValueLen  = 500
	MaxUserAgentLen   = 500
)

// FormFields is the bounded set of values accepted from a submission form.
type FormFields struct {
	Name    string            `json:"name" validate:"required,min=2,max=100,personname"`
	Email   string            `json:"email" validate:"required,max=255,contactemail"`
	Message string            `json:"message,omitempty" validate:"max=1000"`
	Extra   map[string]string `json:"extra,omitempty" validate:"max=10,dive,keys,min=1,max=64,endkeys,max=500"`
}

// VisitorRecord is one persisted page view or submission.
type VisitorRecord struct {
	ID        uuid.UUID       `json:"id"`
	Category  VisitorCategory `json:"category"`
	IPAddress string          `json:"ip_address"`
	Geo       GeoRecord       `json:"geo"`
	GeoStatus GeoStatus       `json:"geo_status"`
	GeoReason string          `json:"geo_reason,omitempty"`
	UserAgent *string         `json:"user_agent"`
	IsBot     bool            `json:"is_bot"`
	Form      *FormFields     `json:"form,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// ListFilter selects a page of visitor records, newest first.
type ListFilter struct {
	Limit       int
	Offset      int
	LocatedOnly bool
}

// CountryCount is one row of the top-countries aggregate.
type CountryCount struct {
	Country string `json:"country"`
	Count   int64  `json:"count"`
}

// VisitorStats summarizes all stored records.
type VisitorStats struct {
	TotalVisitors   int64          `json:"total_visitors"`
	UniqueIPs       int64          `json:"unique_ips"`
	FormSubmissions int64          `json:"form_submissions"`
	BotVisits       int64          `json:"bot_visits"`
	DegradedLookups int64          `json:"degraded_lookups"`
	TopCountries    []CountryCount `json:"top_countries"`
}

// DailyStat is the visit count for one calendar day (UTC).
type DailyStat struct {
	Date        string `json:"date"`
	Visits      int64  `json:"visits"`
	Submissions int64  `json:"submissions"`
	UniqueIPs   int64  `json:"unique_ips"`
}
