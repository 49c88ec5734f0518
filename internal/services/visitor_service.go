package services

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/BradenHooton/iplanding/internal/metrics"
	"github.com/BradenHooton/iplanding/internal/models"
	pkghttp "github.com/BradenHooton/iplanding/pkg/http"
	"github.com/BradenHooton/iplanding/pkg/logger"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// VisitorRepository is the persistence the visitor pipeline writes to and
// counts from.
type VisitorRepository interface {
	SubmissionCounter
	CountPageViewsSince(ctx context.Context, ipAddress string, since time.Time) (int, error)
	Insert(ctx context.Context, record *models.VisitorRecord) (uuid.UUID, error)
}

// GeoLocator resolves an IP. Implementations never fail; failures are
// reported as degraded results.
type GeoLocator interface {
	Lookup(ctx context.Context, ip string) models.GeoResult
}

type SubmissionKind string

const (
	SubmissionAccepted           SubmissionKind = "accepted"
	SubmissionRateLimited        SubmissionKind = "rate_limited"
	SubmissionValidationFailed   SubmissionKind = "validation_failed"
	SubmissionStorageUnavailable SubmissionKind = "storage_unavailable"
)

// SubmissionRequest is everything the web layer extracts from a form post.
type SubmissionRequest struct {
	TransportAddr string
	Header        http.Header
	UserAgent     string
	HasUserAgent  bool
	Form          *models.FormFields
	Now           time.Time
}

// SubmissionOutcome is exactly one of the SubmissionKind variants. Record and
// RecordID are set for accepted submissions, Validation for rejected forms.
type SubmissionOutcome struct {
	Kind       SubmissionKind
	Record     *models.VisitorRecord
	RecordID   uuid.UUID
	Validation *models.ValidationError
	RetryAfter time.Duration
	ClientIP   string
}

type PageViewKind string

const (
	PageViewLogged             PageViewKind = "logged"
	PageViewSkipped            PageViewKind = "skipped"
	PageViewStorageUnavailable PageViewKind = "storage_unavailable"
)

type PageViewRequest struct {
	TransportAddr string
	Header        http.Header
	UserAgent     string
	HasUserAgent  bool
	Now           time.Time
}

type PageViewOutcome struct {
	Kind     PageViewKind
	Record   *models.VisitorRecord
	RecordID uuid.UUID
}

// VisitorServiceConfig holds pipeline settings outside the limiter.
type VisitorServiceConfig struct {
	// PageViewCooldown suppresses repeat page views from one IP. Zero logs
	// every view.
	PageViewCooldown time.Duration
}

// VisitorService runs the identification and enrichment pipeline for page
// views and form submissions.
type VisitorService struct {
	repo       VisitorRepository
	geo        GeoLocator
	bots       *BotClassifier
	limiter    *RateLimitService
	builder    *RecordBuilder
	classifier pkghttp.LocalClassifier
	config     VisitorServiceConfig
	logger     *slog.Logger
	security   *logger.SecurityLogger
	metrics    *metrics.Metrics
}

func NewVisitorService(
	repo VisitorRepository,
	geo GeoLocator,
	bots *BotClassifier,
	limiter *RateLimitService,
	builder *RecordBuilder,
	classifier pkghttp.LocalClassifier,
	config VisitorServiceConfig,
	log *slog.Logger,
	m *metrics.Metrics,
) *VisitorService {
	return &VisitorService{
		repo:       repo,
		geo:        geo,
		bots:       bots,
		limiter:    limiter,
		builder:    builder,
		classifier: classifier,
		config:     config,
		logger:     log,
		security:   logger.NewSecurityLogger(log),
		metrics:    m,
	}
}

// HandleSubmission resolves the client, applies the submission limit,
// validates the form, enriches the record and stores it.
//
// The limit and form checks run before enrichment so rejected requests do
// not spend a provider call.
func (s *VisitorService) HandleSubmission(ctx context.Context, req SubmissionRequest) SubmissionOutcome {
	now := req.Now
	if now.IsZero() {
		now = time.Now()
	}

	addr := pkghttp.ResolveClientAddress(req.TransportAddr, req.Header, s.classifier)
	ip := addr.Canonical

	decision := s.limiter.Check(ctx, ip, now)
	if !decision.Allowed {
		s.security.Log(ctx, logger.SecurityEvent{
			EventType: logger.EventRateLimitExceeded,
			IPAddress: ip,
			UserAgent: req.UserAgent,
			Reason:    "submission limit reached",
		})
		s.metrics.SubmissionOutcome(string(SubmissionRateLimited))
		return SubmissionOutcome{Kind: SubmissionRateLimited, RetryAfter: s.limiter.Window(), ClientIP: ip}
	}

	if _, verr := s.builder.PrepareForm(req.Form); verr != nil {
		return s.rejected(ctx, ip, req.UserAgent, verr)
	}

	geo, isBot := s.enrich(ctx, ip, req.UserAgent, req.HasUserAgent)

	record, verr := s.builder.Build(addr, geo, userAgentPtr(req.UserAgent, req.HasUserAgent), isBot, req.Form, now)
	if verr != nil {
		return s.rejected(ctx, ip, req.UserAgent, verr)
	}

	id, err := s.repo.Insert(ctx, record)
	if err != nil {
		s.logger.Error("failed to store submission",
			slog.String("ip_address", ip),
			slog.Any("error", err))
		s.metrics.SubmissionOutcome(string(SubmissionStorageUnavailable))
		return SubmissionOutcome{Kind: SubmissionStorageUnavailable, ClientIP: ip}
	}

	s.logger.Info("submission accepted",
		slog.String("record_id", id.String()),
		slog.String("ip_address", ip),
		slog.String("email", logger.SanitizedEmail(record.Form.Email)),
		slog.String("geo_status", string(record.GeoStatus)),
		slog.Bool("is_bot", record.IsBot))
	s.metrics.SubmissionOutcome(string(SubmissionAccepted))

	return SubmissionOutcome{Kind: SubmissionAccepted, Record: record, RecordID: id, ClientIP: ip}
}

// RecordPageView logs a page view unless the same IP was logged within the
// cooldown. Page views are never rate limited.
func (s *VisitorService) RecordPageView(ctx context.Context, req PageViewRequest) PageViewOutcome {
	now := req.Now
	if now.IsZero() {
		now = time.Now()
	}

	addr := pkghttp.ResolveClientAddress(req.TransportAddr, req.Header, s.classifier)
	ip := addr.Canonical

	if s.config.PageViewCooldown > 0 {
		recent, err := s.repo.CountPageViewsSince(ctx, ip, now.Add(-s.config.PageViewCooldown))
		if err != nil {
			s.logger.Warn("page view cooldown check failed", slog.String("ip_address", ip), slog.Any("error", err))
		} else if recent > 0 {
			s.metrics.PageViewOutcome(string(PageViewSkipped))
			return PageViewOutcome{Kind: PageViewSkipped}
		}
	}

	geo, isBot := s.enrich(ctx, ip, req.UserAgent, req.HasUserAgent)

	// A nil form never fails validation.
	record, _ := s.builder.Build(addr, geo, userAgentPtr(req.UserAgent, req.HasUserAgent), isBot, nil, now)

	id, err := s.repo.Insert(ctx, record)
	if err != nil {
		s.logger.Error("failed to store page view", slog.String("ip_address", ip), slog.Any("error", err))
		s.metrics.PageViewOutcome(string(PageViewStorageUnavailable))
		return PageViewOutcome{Kind: PageViewStorageUnavailable}
	}

	s.metrics.PageViewOutcome(string(PageViewLogged))
	return PageViewOutcome{Kind: PageViewLogged, Record: record, RecordID: id}
}

// enrich runs the geolocation lookup and bot classification concurrently.
func (s *VisitorService) enrich(ctx context.Context, ip, userAgent string, hasUserAgent bool) (models.GeoResult, bool) {
	var (
		geo       models.GeoResult
		isBot     bool
		botReason string
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		geo = s.geo.Lookup(gctx, ip)
		return nil
	})
	g.Go(func() error {
		isBot, botReason = s.bots.ClassifyReason(userAgent, RequestShape{HasUserAgent: hasUserAgent})
		return nil
	})
	_ = g.Wait()

	if isBot {
		s.metrics.BotDetected()
		s.security.Log(ctx, logger.SecurityEvent{
			EventType: logger.EventBotDetected,
			IPAddress: ip,
			UserAgent: userAgent,
			Reason:    botReason,
		})
	}

	return geo, isBot
}

func (s *VisitorService) rejected(ctx context.Context, ip, userAgent string, verr *models.ValidationError) SubmissionOutcome {
	s.security.Log(ctx, logger.SecurityEvent{
		EventType: logger.EventValidationFailed,
		IPAddress: ip,
		UserAgent: userAgent,
		Reason:    verr.Reason,
		Metadata:  map[string]string{"field": verr.Field},
	})
	s.metrics.SubmissionOutcome(string(SubmissionValidationFailed))
	return SubmissionOutcome{Kind: SubmissionValidationFailed, Validation: verr, ClientIP: ip}
}

func userAgentPtr(userAgent string, present bool) *string {
	if !present {
		return nil
	}
	return &userAgent
}
