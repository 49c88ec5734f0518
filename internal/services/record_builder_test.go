package services_test

import (
	"strings"
	"testing"
	"time"

	"github.com/BradenHooton/iplanding/internal/models"
	"github.com/BradenHooton/iplanding/internal/services"
	pkghttp "github.com/BradenHooton/iplanding/pkg/http"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validForm() *models.FormFields {
	return &models.FormFields{
		Name:    "Ada Lovelace",
		Email:   "ada@example.com",
		Message: "Hello there",
	}
}

func publicAddr(ip string) pkghttp.ClientAddress {
	return pkghttp.ClientAddress{Transport: ip, Canonical: ip, Source: pkghttp.SourceTransport}
}

func TestRecordBuilder_AcceptsWithAllGeoFieldsNull(t *testing.T) {
	b := services.NewRecordBuilder(testLogger())
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.FixedZone("CET", 3600))

	record, verr := b.Build(publicAddr("203.0.113.5"), models.DegradedGeo(models.GeoReasonRateLimited), strPtr("Mozilla/5.0"), false, validForm(), now)

	require.Nil(t, verr)
	require.NotNil(t, record)
	assert.NotEqual(t, uuid.Nil, record.ID)
	assert.Equal(t, models.CategorySubmission, record.Category)
	assert.Equal(t, "203.0.113.5", record.IPAddress)
	assert.Equal(t, models.GeoDegraded, record.GeoStatus)
	assert.Equal(t, models.GeoReasonRateLimited, record.GeoReason)
	assert.True(t, record.Geo.IsEmpty())
	assert.Equal(t, now.UTC(), record.Timestamp)
	assert.Equal(t, "ada@example.com", record.Form.Email)
}

func TestRecordBuilder_RejectsEmailWithoutAt(t *testing.T) {
	b := services.NewRecordBuilder(testLogger())
	form := validForm()
	form.Email = "ada.example.com"

	record, verr := b.Build(publicAddr("203.0.113.5"), models.DegradedGeo("timeout"), nil, false, form, time.Now())

	assert.Nil(t, record)
	require.NotNil(t, verr)
	assert.Equal(t, "email", verr.Field)
	assert.NotEmpty(t, verr.Reason)
}

func TestRecordBuilder_ValidationFailures(t *testing.T) {
	tests := []struct {
		name  string
		edit  func(f *models.FormFields)
		field string
	}{
		{"empty name", func(f *models.FormFields) { f.Name = "   " }, "name"},
		{"one letter name", func(f *models.FormFields) { f.Name = "A" }, "name"},
		{"name with digits", func(f *models.FormFields) { f.Name = "Agent 007" }, "name"},
		{"name too long", func(f *models.FormFields) { f.Name = strings.Repeat("a", 101) }, "name"},
		{"missing email", func(f *models.FormFields) { f.Email = "" }, "email"},
		{"message too long", func(f *models.FormFields) { f.Message = strings.Repeat("hi ", 400) }, "message"},
		{"spam phrase", func(f *models.FormFields) { f.Message = "Click HERE for a prize" }, "message"},
		{"repeated characters", func(f *models.FormFields) { f.Message = "heyyyyy" }, "message"},
		{"spam in name", func(f *models.FormFields) { f.Name = "Urgent Seller" }, "name"},
		{"too many extras", func(f *models.FormFields) {
			f.Extra = map[string]string{}
			for i := 0; i < 11; i++ {
				f.Extra[string(rune('a'+i))] = "v"
			}
		}, "extra"},
		{"spam in extra", func(f *models.FormFields) { f.Extra = map[string]string{"company": "buy now inc"} }, "extra.company"},
	}

	b := services.NewRecordBuilder(testLogger())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			form := validForm()
			tt.edit(form)

			record, verr := b.Build(publicAddr("203.0.113.5"), models.DegradedGeo("timeout"), nil, false, form, time.Now())

			assert.Nil(t, record)
			require.NotNil(t, verr)
			assert.Equal(t, tt.field, verr.Field)
		})
	}
}

func TestRecordBuilder_SanitizesValues(t *testing.T) {
	b := services.NewRecordBuilder(testLogger())
	form := &models.FormFields{
		Name:    "  Ada\x00 Lovelace  ",
		Email:   " ada@example.com\t",
		Message: "line one\nline two\x07",
		Extra:   map[string]string{"company": strings.Repeat("ab", 300)},
	}
	ua := `  Mozilla/5.0 <script>alert("x");</script> ` + strings.Repeat("z", 600)

	record, verr := b.Build(publicAddr("203.0.113.5"), models.GeoResult{Status: models.GeoResolved}, &ua, false, form, time.Now())

	require.Nil(t, verr)
	assert.Equal(t, "Ada Lovelace", record.Form.Name)
	assert.Equal(t, "ada@example.com", record.Form.Email)
	assert.Equal(t, "line one\nline two", record.Form.Message)
	assert.Len(t, record.Form.Extra["company"], models.MaxExtraValueLen)

	require.NotNil(t, record.UserAgent)
	assert.NotContains(t, *record.UserAgent, "<")
	assert.NotContains(t, *record.UserAgent, `"`)
	assert.NotContains(t, *record.UserAgent, ";")
	assert.True(t, strings.HasPrefix(*record.UserAgent, "Mozilla/5.0 scriptalert(x)/script"))
	assert.Len(t, *record.UserAgent, models.MaxUserAgentLen)

	// The caller's form is left untouched.
	assert.Equal(t, "  Ada\x00 Lovelace  ", form.Name)
}

func TestRecordBuilder_CapsGeoStrings(t *testing.T) {
	b := services.NewRecordBuilder(testLogger())
	geo := models.GeoResult{
		Status: models.GeoResolved,
		Record: models.GeoRecord{
			City:        strPtr(strings.Repeat("c", 150)),
			CountryCode: strPtr("  "),
			ASN:         strPtr("AS15169"),
		},
	}

	record, verr := b.Build(publicAddr("203.0.113.5"), geo, nil, false, nil, time.Now())

	require.Nil(t, verr)
	assert.Len(t, *record.Geo.City, 100)
	assert.Nil(t, record.Geo.CountryCode)
	assert.Equal(t, "AS15169", *record.Geo.ASN)
}

func TestRecordBuilder_PageView(t *testing.T) {
	b := services.NewRecordBuilder(testLogger())

	record, verr := b.Build(publicAddr("127.0.0.1"), models.GeoResult{Status: models.GeoLocal, Record: models.LocalGeoRecord()}, nil, true, nil, time.Now())

	require.Nil(t, verr)
	assert.Equal(t, models.CategoryPageView, record.Category)
	assert.Nil(t, record.Form)
	assert.Nil(t, record.UserAgent)
	assert.True(t, record.IsBot)
	assert.Equal(t, "Localhost", *record.Geo.City)
}

func TestRecordBuilder_EmptyUserAgentStoredAsNull(t *testing.T) {
	b := services.NewRecordBuilder(testLogger())

	record, _ := b.Build(publicAddr("203.0.113.5"), models.DegradedGeo("timeout"), strPtr("  <>  "), true, nil, time.Now())

	assert.Nil(t, record.UserAgent)
}

func TestRecordBuilder_PrepareFormNil(t *testing.T) {
	_, verr := services.NewRecordBuilder(testLogger()).PrepareForm(nil)
	require.NotNil(t, verr)
	assert.Equal(t, "form", verr.Field)
}
