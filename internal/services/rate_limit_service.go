package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/BradenHooton/iplanding/internal/metrics"
	"github.com/BradenHooton/iplanding/pkg/logger"
)

// SubmissionCounter answers count queries against persisted submissions.
type SubmissionCounter interface {
	CountSubmissionsSince(ctx context.Context, ipAddress string, since time.Time) (int, error)
}

// RateLimitConfig holds configuration for the submission limiter
type RateLimitConfig struct {
	MaxSubmissionsPerWindow int
	WindowDuration          time.Duration
}

// DefaultRateLimitConfig allows 10 submissions per trailing hour.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		MaxSubmissionsPerWindow: 10,
		WindowDuration:          time.Hour,
	}
}

// RateLimitDecision is the result of a limiter check.
type RateLimitDecision struct {
	Allowed bool
	Count   int
	// Degraded is set when the count query failed and the check failed open.
	Degraded bool
}

// RateLimitService enforces a sliding-window submission quota per IP by
// counting stored submissions. It holds no in-process counters.
type RateLimitService struct {
	repo     SubmissionCounter
	config   RateLimitConfig
	logger   *slog.Logger
	security *logger.SecurityLogger
	metrics  *metrics.Metrics
}

// NewRateLimitService creates a new RateLimitService
func NewRateLimitService(repo SubmissionCounter, config RateLimitConfig, log *slog.Logger, m *metrics.Metrics) *RateLimitService {
	if config.MaxSubmissionsPerWindow <= 0 || config.WindowDuration <= 0 {
		def := DefaultRateLimitConfig()
		if config.MaxSubmissionsPerWindow <= 0 {
			config.MaxSubmissionsPerWindow = def.MaxSubmissionsPerWindow
		}
		if config.WindowDuration <= 0 {
			config.WindowDuration = def.WindowDuration
		}
	}
	return &RateLimitService{
		repo:     repo,
		config:   config,
		logger:   log,
		security: logger.NewSecurityLogger(log),
		metrics:  m,
	}
}

// Allow reports whether ipAddress may submit at now.
func (s *RateLimitService) Allow(ctx context.Context, ipAddress string, now time.Time) bool {
	return s.Check(ctx, ipAddress, now).Allowed
}

// Check counts submissions in [now-window, now] and allows the request when
// the count is below the maximum. A failed count query allows the request.
func (s *RateLimitService) Check(ctx context.Context, ipAddress string, now time.Time) RateLimitDecision {
	since := now.Add(-s.config.WindowDuration)

	count, err := s.repo.CountSubmissionsSince(ctx, ipAddress, since)
	if err != nil {
		s.logger.Warn("submission count failed, allowing request",
			slog.String("ip_address", ipAddress),
			slog.Any("error", err))
		s.security.Log(ctx, logger.SecurityEvent{
			EventType: logger.EventLimiterDegraded,
			IPAddress: ipAddress,
			Reason:    "count query failed",
		})
		s.metrics.LimiterFailOpen()
		return RateLimitDecision{Allowed: true, Degraded: true}
	}

	if count < 0 {
		count = 0
	}

	if count >= s.config.MaxSubmissionsPerWindow {
		s.logger.Warn("submission rate limited",
			slog.String("ip_address", ipAddress),
			slog.Int("submissions", count),
			slog.Duration("window", s.config.WindowDuration))
		return RateLimitDecision{Allowed: false, Count: count}
	}

	return RateLimitDecision{Allowed: true, Count: count}
}

// Window returns the configured window length.
func (s *RateLimitService) Window() time.Duration {
	return s.config.WindowDuration
}
