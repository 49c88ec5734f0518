package integration

import (
	"fmt"
	"time"

	"github.com/BradenHooton/iplanding/internal/models"
	"github.com/google/uuid"
)

// TestForm generates a valid submission form with a unique email
func TestForm(suffix string) *models.FormFields {
	return &models.FormFields{
		Name:    "Test Visitor",
		Email:   fmt.Sprintf("visitor-%d-%s@example.com", time.Now().UnixNano(), suffix),
		Message: "Interested in a demo",
	}
}

// ResolvedGeo is a fully populated lookup result for a public address.
func ResolvedGeo(city, country string) models.GeoResult {
	lat, lon := 48.8566, 2.3522
	return models.GeoResult{
		Status: models.GeoResolved,
		Record: models.GeoRecord{
			Country:     &country,
			CountryCode: strPtr("FR"),
			City:        &city,
			Coordinates: &models.Coordinates{Latitude: lat, Longitude: lon},
			Timezone:    strPtr("Europe/Paris"),
		},
	}
}

// NewVisitorRecord builds a record ready to insert.
func NewVisitorRecord(category models.VisitorCategory, ip string, at time.Time, geo models.GeoResult) *models.VisitorRecord {
	record := &models.VisitorRecord{
		ID:        uuid.New(),
		Category:  category,
		IPAddress: ip,
		Geo:       geo.Record,
		GeoStatus: geo.Status,
		GeoReason: geo.Reason,
		UserAgent: strPtr("Mozilla/5.0 (X11; Linux x86_64)"),
		Timestamp: at.UTC(),
	}
	if category == models.CategorySubmission {
		record.Form = TestForm(ip)
	}
	return record
}

// IPAPIBody is a provider response in the ipapi.co shape.
const IPAPIBody = `{
	"ip": "203.0.113.5",
	"city": "Paris",
	"region": "Île-de-France",
	"country_name": "France",
	"country_code": "FR",
	"postal": "75001",
	"latitude": 48.8566,
	"longitude": 2.3522,
	"timezone": "Europe/Paris",
	"currency": "EUR",
	"asn": "AS3215",
	"org": "Orange"
}`

func strPtr(s string) *string { return &s }
