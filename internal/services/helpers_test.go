package services_test

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/BradenHooton/iplanding/internal/models"
	"github.com/google/uuid"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

// memVisitorRepo is an in-memory VisitorRepository. The ...Func fields
// override the default behaviour when set.
type memVisitorRepo struct {
	mu      sync.Mutex
	records []*models.VisitorRecord

	CountSubmissionsSinceFunc func(ctx context.Context, ip string, since time.Time) (int, error)
	CountPageViewsSinceFunc   func(ctx context.Context, ip string, since time.Time) (int, error)
	InsertFunc                func(ctx context.Context, record *models.VisitorRecord) (uuid.UUID, error)
}

func (m *memVisitorRepo) count(category models.VisitorCategory, ip string, since time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, r := range m.records {
		if r.Category == category && r.IPAddress == ip && !r.Timestamp.Before(since) {
			n++
		}
	}
	return n
}

func (m *memVisitorRepo) CountSubmissionsSince(ctx context.Context, ip string, since time.Time) (int, error) {
	if m.CountSubmissionsSinceFunc != nil {
		return m.CountSubmissionsSinceFunc(ctx, ip, since)
	}
	return m.count(models.CategorySubmission, ip, since), nil
}

func (m *memVisitorRepo) CountPageViewsSince(ctx context.Context, ip string, since time.Time) (int, error) {
	if m.CountPageViewsSinceFunc != nil {
		return m.CountPageViewsSinceFunc(ctx, ip, since)
	}
	return m.count(models.CategoryPageView, ip, since), nil
}

func (m *memVisitorRepo) Insert(ctx context.Context, record *models.VisitorRecord) (uuid.UUID, error) {
	if m.InsertFunc != nil {
		return m.InsertFunc(ctx, record)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, record)
	return record.ID, nil
}

func (m *memVisitorRepo) stored() []*models.VisitorRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*models.VisitorRecord, len(m.records))
	copy(out, m.records)
	return out
}

// seedSubmissions stores n submissions from ip spread over the last span.
func (m *memVisitorRepo) seedSubmissions(ip string, n int, now time.Time, span time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := 0; i < n; i++ {
		m.records = append(m.records, &models.VisitorRecord{
			ID:        uuid.New(),
			Category:  models.CategorySubmission,
			IPAddress: ip,
			GeoStatus: models.GeoDegraded,
			Timestamp: now.Add(-span * time.Duration(i+1) / time.Duration(n+1)),
		})
	}
}

// mockGeoLocator records calls and returns a fixed result.
type mockGeoLocator struct {
	mu         sync.Mutex
	calls      []string
	LookupFunc func(ctx context.Context, ip string) models.GeoResult
}

func (m *mockGeoLocator) Lookup(ctx context.Context, ip string) models.GeoResult {
	m.mu.Lock()
	m.calls = append(m.calls, ip)
	m.mu.Unlock()
	if m.LookupFunc != nil {
		return m.LookupFunc(ctx, ip)
	}
	return models.DegradedGeo(models.GeoReasonRequestError)
}

func (m *mockGeoLocator) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

func strPtr(s string) *string { return &s }
