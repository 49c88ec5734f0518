package services_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/BradenHooton/iplanding/internal/metrics"
	"github.com/BradenHooton/iplanding/internal/services"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func newLimiter(repo services.SubmissionCounter, m *metrics.Metrics) *services.RateLimitService {
	return services.NewRateLimitService(repo, services.RateLimitConfig{
		MaxSubmissionsPerWindow: 10,
		WindowDuration:          time.Hour,
	}, testLogger(), m)
}

func TestRateLimitService_AllowsBelowMax(t *testing.T) {
	now := time.Now()
	repo := &memVisitorRepo{}
	repo.seedSubmissions("203.0.113.5", 9, now, 50*time.Minute)

	limiter := newLimiter(repo, nil)

	assert.True(t, limiter.Allow(context.Background(), "203.0.113.5", now))
	decision := limiter.Check(context.Background(), "203.0.113.5", now)
	assert.Equal(t, 9, decision.Count)
	assert.False(t, decision.Degraded)
}

func TestRateLimitService_RejectsAtMax(t *testing.T) {
	now := time.Now()
	repo := &memVisitorRepo{}
	repo.seedSubmissions("203.0.113.5", 10, now, 50*time.Minute)

	limiter := newLimiter(repo, nil)

	assert.False(t, limiter.Allow(context.Background(), "203.0.113.5", now))
	// Other IPs are unaffected.
	assert.True(t, limiter.Allow(context.Background(), "198.51.100.1", now))
}

func TestRateLimitService_SlidingWindow(t *testing.T) {
	now := time.Now()
	repo := &memVisitorRepo{}
	// Ten submissions between 61 and 120 minutes ago fall outside the window.
	repo.seedSubmissions("203.0.113.5", 10, now.Add(-61*time.Minute), 59*time.Minute)

	limiter := newLimiter(repo, nil)
	assert.True(t, limiter.Allow(context.Background(), "203.0.113.5", now))

	// An hour earlier the same records were all inside the window.
	assert.False(t, limiter.Allow(context.Background(), "203.0.113.5", now.Add(-61*time.Minute)))
}

func TestRateLimitService_QueriesTrailingWindow(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	var gotSince time.Time
	repo := &memVisitorRepo{
		CountSubmissionsSinceFunc: func(ctx context.Context, ip string, since time.Time) (int, error) {
			gotSince = since
			return 0, nil
		},
	}

	newLimiter(repo, nil).Allow(context.Background(), "203.0.113.5", now)

	assert.Equal(t, now.Add(-time.Hour), gotSince)
}

func TestRateLimitService_FailsOpenOnCountError(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	repo := &memVisitorRepo{
		CountSubmissionsSinceFunc: func(ctx context.Context, ip string, since time.Time) (int, error) {
			return 0, errors.New("connection refused")
		},
	}

	decision := newLimiter(repo, m).Check(context.Background(), "203.0.113.5", time.Now())

	assert.True(t, decision.Allowed)
	assert.True(t, decision.Degraded)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.LimiterDegraded))
}

func TestRateLimitService_ZeroConfigUsesDefaults(t *testing.T) {
	now := time.Now()
	repo := &memVisitorRepo{}
	repo.seedSubmissions("203.0.113.5", 10, now, 30*time.Minute)

	limiter := services.NewRateLimitService(repo, services.RateLimitConfig{}, testLogger(), nil)

	assert.Equal(t, time.Hour, limiter.Window())
	assert.False(t, limiter.Allow(context.Background(), "203.0.113.5", now))
}
