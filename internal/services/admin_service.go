package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/BradenHooton/iplanding/internal/metrics"
	"github.com/BradenHooton/iplanding/internal/models"
	"github.com/google/uuid"
)

const (
	DefaultPerPage  = 50
	MaxPerPage      = 100
	DefaultStatDays = 30
	MaxStatDays     = 365
	MaxRefreshBatch = 100
)

// AdminVisitorRepository is the read and maintenance side of the visitor store.
type AdminVisitorRepository interface {
	List(ctx context.Context, filter models.ListFilter) ([]*models.VisitorRecord, error)
	Count(ctx context.Context, locatedOnly bool) (int64, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.VisitorRecord, error)
	Stats(ctx context.Context, topCountries int) (*models.VisitorStats, error)
	DailyStats(ctx context.Context, since time.Time) ([]models.DailyStat, error)
	ListDegraded(ctx context.Context, limit int) ([]*models.VisitorRecord, error)
	UpdateLocation(ctx context.Context, id uuid.UUID, result models.GeoResult) error
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// Pagination describes one page of a listing.
type Pagination struct {
	Page    int   `json:"page"`
	PerPage int   `json:"per_page"`
	Total   int64 `json:"total"`
	Pages   int   `json:"pages"`
	HasPrev bool  `json:"has_prev"`
	HasNext bool  `json:"has_next"`
}

// VisitorPage is a page of visitor records, newest first.
type VisitorPage struct {
	Visitors   []*models.VisitorRecord `json:"visitors"`
	Pagination Pagination              `json:"pagination"`
}

// RefreshResult counts the outcome of re-resolving degraded records.
type RefreshResult struct {
	Checked       int `json:"checked"`
	Updated       int `json:"updated"`
	StillDegraded int `json:"still_degraded"`
	Failed        int `json:"failed"`
}

// AdminService serves the query and maintenance side of visitor records.
type AdminService struct {
	repo    AdminVisitorRepository
	geo     GeoLocator
	builder *RecordBuilder
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func NewAdminService(repo AdminVisitorRepository, geo GeoLocator, builder *RecordBuilder, logger *slog.Logger, m *metrics.Metrics) *AdminService {
	return &AdminService{repo: repo, geo: geo, builder: builder, logger: logger, metrics: m}
}

// ListVisitors returns one page. page is 1-based; perPage is clamped to
// [1, MaxPerPage].
func (s *AdminService) ListVisitors(ctx context.Context, page, perPage int, locatedOnly bool) (*VisitorPage, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = DefaultPerPage
	}
	if perPage > MaxPerPage {
		perPage = MaxPerPage
	}

	total, err := s.repo.Count(ctx, locatedOnly)
	if err != nil {
		return nil, fmt.Errorf("failed to count visitors: %w", err)
	}

	// Pages past the end are pinned one beyond the last; the listing is empty.
	pages := int((total + int64(perPage) - 1) / int64(perPage))
	if page > pages+1 {
		page = pages + 1
	}

	visitors, err := s.repo.List(ctx, models.ListFilter{
		Limit:       perPage,
		Offset:      (page - 1) * perPage,
		LocatedOnly: locatedOnly,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list visitors: %w", err)
	}
	if visitors == nil {
		visitors = []*models.VisitorRecord{}
	}

	return &VisitorPage{
		Visitors: visitors,
		Pagination: Pagination{
			Page:    page,
			PerPage: perPage,
			Total:   total,
			Pages:   pages,
			HasPrev: page > 1,
			HasNext: page < pages,
		},
	}, nil
}

func (s *AdminService) GetVisitor(ctx context.Context, id uuid.UUID) (*models.VisitorRecord, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *AdminService) Stats(ctx context.Context) (*models.VisitorStats, error) {
	stats, err := s.repo.Stats(ctx, 10)
	if err != nil {
		return nil, fmt.Errorf("failed to load visitor stats: %w", err)
	}
	return stats, nil
}

// DailyStats returns per-day counts for the trailing days, oldest first.
func (s *AdminService) DailyStats(ctx context.Context, days int, now time.Time) ([]models.DailyStat, error) {
	if days < 1 {
		days = DefaultStatDays
	}
	if days > MaxStatDays {
		days = MaxStatDays
	}
	since := now.UTC().Truncate(24*time.Hour).AddDate(0, 0, -(days - 1))

	stats, err := s.repo.DailyStats(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("failed to load daily stats: %w", err)
	}
	if stats == nil {
		stats = []models.DailyStat{}
	}
	return stats, nil
}

// RefreshLocations re-resolves up to limit records whose lookup degraded,
// at most MaxRefreshBatch per call. Records that degrade again are left
// untouched.
func (s *AdminService) RefreshLocations(ctx context.Context, limit int) (*RefreshResult, error) {
	if limit < 1 {
		limit = DefaultPerPage
	}
	if limit > MaxRefreshBatch {
		limit = MaxRefreshBatch
	}

	records, err := s.repo.ListDegraded(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list degraded records: %w", err)
	}

	result := &RefreshResult{Checked: len(records)}
	for _, record := range records {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		geo := s.geo.Lookup(ctx, record.IPAddress)
		if geo.Degraded() {
			result.StillDegraded++
			s.metrics.LocationRefreshed("degraded")
			continue
		}

		geo.Record = s.builder.SanitizeGeo(geo.Record)
		if err := s.repo.UpdateLocation(ctx, record.ID, geo); err != nil {
			s.logger.Error("failed to update location",
				slog.String("record_id", record.ID.String()),
				slog.Any("error", err))
			result.Failed++
			s.metrics.LocationRefreshed("error")
			continue
		}
		result.Updated++
		s.metrics.LocationRefreshed("updated")
	}

	s.logger.Info("location refresh completed",
		slog.Int("checked", result.Checked),
		slog.Int("updated", result.Updated),
		slog.Int("still_degraded", result.StillDegraded))
	return result, nil
}

// PurgeOlderThan deletes page views older than retention. Submissions are
// never purged. A zero retention keeps everything.
func (s *AdminService) PurgeOlderThan(ctx context.Context, retention time.Duration, now time.Time) (int64, error) {
	if retention <= 0 {
		return 0, nil
	}
	deleted, err := s.repo.DeleteOlderThan(ctx, now.Add(-retention))
	if err != nil {
		return 0, fmt.Errorf("failed to purge visitor records: %w", err)
	}
	s.metrics.Purged(deleted)
	return deleted, nil
}
