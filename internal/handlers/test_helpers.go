package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/BradenHooton/iplanding/internal/models"
	"github.com/BradenHooton/iplanding/internal/services"
	pkghttp "github.com/BradenHooton/iplanding/pkg/http"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

// NewTestRequest creates an HTTP request with JSON body for testing
func NewTestRequest(t *testing.T, method, url string, body interface{}) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, url, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// AssertJSONResponse checks that response has correct status and decodes JSON body
func AssertJSONResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, target interface{}) {
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")

	contentType := w.Header().Get("Content-Type")
	assert.Equal(t, "application/json", contentType, "Content-Type should be application/json")

	if target != nil {
		err := json.Unmarshal(w.Body.Bytes(), target)
		assert.NoError(t, err, "Failed to decode response JSON")
	}
}

// AssertErrorResponse checks that response is a valid error response
func AssertErrorResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, expectedError string) pkghttp.ErrorResponse {
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")

	var resp pkghttp.ErrorResponse
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	assert.NoError(t, err, "Failed to decode error response")
	assert.Equal(t, expectedError, resp.Error, "Error code mismatch")
	assert.NotEmpty(t, resp.Message, "Error message should not be empty")
	return resp
}

// MockVisitorService implements VisitorService for testing
type MockVisitorService struct {
	HandleSubmissionFunc func(ctx context.Context, req services.SubmissionRequest) services.SubmissionOutcome
	RecordPageViewFunc   func(ctx context.Context, req services.PageViewRequest) services.PageViewOutcome
}

func (m *MockVisitorService) HandleSubmission(ctx context.Context, req services.SubmissionRequest) services.SubmissionOutcome {
	if m.HandleSubmissionFunc == nil {
		return services.SubmissionOutcome{Kind: services.SubmissionStorageUnavailable}
	}
	return m.HandleSubmissionFunc(ctx, req)
}

func (m *MockVisitorService) RecordPageView(ctx context.Context, req services.PageViewRequest) services.PageViewOutcome {
	if m.RecordPageViewFunc == nil {
		return services.PageViewOutcome{Kind: services.PageViewLogged}
	}
	return m.RecordPageViewFunc(ctx, req)
}

// MockAdminService implements AdminServiceInterface for testing
type MockAdminService struct {
	ListVisitorsFunc     func(ctx context.Context, page, perPage int, locatedOnly bool) (*services.VisitorPage, error)
	GetVisitorFunc       func(ctx context.Context, id uuid.UUID) (*models.VisitorRecord, error)
	StatsFunc            func(ctx context.Context) (*models.VisitorStats, error)
	DailyStatsFunc       func(ctx context.Context, days int, now time.Time) ([]models.DailyStat, error)
	RefreshLocationsFunc func(ctx context.Context, limit int) (*services.RefreshResult, error)
}

func (m *MockAdminService) ListVisitors(ctx context.Context, page, perPage int, locatedOnly bool) (*services.VisitorPage, error) {
	if m.ListVisitorsFunc == nil {
		return &services.VisitorPage{Visitors: []*models.VisitorRecord{}}, nil
	}
	return m.ListVisitorsFunc(ctx, page, perPage, locatedOnly)
}

func (m *MockAdminService) GetVisitor(ctx context.Context, id uuid.UUID) (*models.VisitorRecord, error) {
	if m.GetVisitorFunc == nil {
		return nil, models.ErrNotFound
	}
	return m.GetVisitorFunc(ctx, id)
}

func (m *MockAdminService) Stats(ctx context.Context) (*models.VisitorStats, error) {
	if m.StatsFunc == nil {
		return &models.VisitorStats{}, nil
	}
	return m.StatsFunc(ctx)
}

func (m *MockAdminService) DailyStats(ctx context.Context, days int, now time.Time) ([]models.DailyStat, error) {
	if m.DailyStatsFunc == nil {
		return []models.DailyStat{}, nil
	}
	return m.DailyStatsFunc(ctx, days, now)
}

func (m *MockAdminService) RefreshLocations(ctx context.Context, limit int) (*services.RefreshResult, error) {
	if m.RefreshLocationsFunc == nil {
		return &services.RefreshResult{}, nil
	}
	return m.RefreshLocationsFunc(ctx, limit)
}

// MockHealthChecker implements HealthChecker for testing
type MockHealthChecker struct {
	Err error
}

func (m *MockHealthChecker) HealthCheck(ctx context.Context) error {
	return m.Err
}

// WithChiRouteContext adds chi URL parameters to request context for testing
//
// Example usage:
//
//	req := httptest.NewRequest("GET", "/admin/visitors/<uuid>", nil)
//	req = WithChiRouteContext(req, map[string]string{"id": "<uuid>"})
func WithChiRouteContext(r *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for key, value := range params {
		rctx.URLParams.Add(key, value)
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}
