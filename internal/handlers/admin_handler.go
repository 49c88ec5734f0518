package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/BradenHooton/iplanding/internal/models"
	"github.com/BradenHooton/iplanding/internal/services"
	pkghttp "github.com/BradenHooton/iplanding/pkg/http"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// AdminServiceInterface defines the query and maintenance contract.
type AdminServiceInterface interface {
	ListVisitors(ctx context.Context, page, perPage int, locatedOnly bool) (*services.VisitorPage, error)
	GetVisitor(ctx context.Context, id uuid.UUID) (*models.VisitorRecord, error)
	Stats(ctx context.Context) (*models.VisitorStats, error)
	DailyStats(ctx context.Context, days int, now time.Time) ([]models.DailyStat, error)
	RefreshLocations(ctx context.Context, limit int) (*services.RefreshResult, error)
}

// HealthChecker reports whether storage is reachable.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// AdminHandler handles visitor listing, stats and maintenance requests.
type AdminHandler struct {
	service      AdminServiceInterface
	health       HealthChecker
	refreshBatch int
	logger       *slog.Logger
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(service AdminServiceInterface, health HealthChecker, refreshBatch int, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{service: service, health: health, refreshBatch: refreshBatch, logger: logger}
}

// DailyStatsResponse wraps the per-day series.
type DailyStatsResponse struct {
	Days  int                `json:"days"`
	Stats []models.DailyStat `json:"stats"`
}

// ListVisitors handles GET /admin/visitors
// Accepts optional query params ?page=N, ?per_page=N (max 100) and ?located=true.
func (h *AdminHandler) ListVisitors(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page := queryInt(q.Get("page"), 1)
	perPage := queryInt(q.Get("per_page"), services.DefaultPerPage)
	located, _ := strconv.ParseBool(q.Get("located"))

	result, err := h.service.ListVisitors(r.Context(), page, perPage, located)
	if err != nil {
		h.logger.Error("failed to list visitors", slog.Any("error", err))
		h.writeServiceError(w, err, "Failed to retrieve visitors")
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, result)
}

// GetVisitor handles GET /admin/visitors/{id}
func (h *AdminHandler) GetVisitor(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		pkghttp.WriteBadRequest(w, "Invalid visitor ID")
		return
	}

	record, err := h.service.GetVisitor(r.Context(), id)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			pkghttp.WriteNotFound(w, "Visitor not found")
			return
		}
		h.logger.Error("failed to get visitor", slog.String("id", id.String()), slog.Any("error", err))
		h.writeServiceError(w, err, "Failed to retrieve visitor")
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, record)
}

// Stats handles GET /api/visitor-stats
func (h *AdminHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.Stats(r.Context())
	if err != nil {
		h.logger.Error("failed to load visitor stats", slog.Any("error", err))
		h.writeServiceError(w, err, "Failed to retrieve visitor stats")
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, stats)
}

// DailyStats handles GET /admin/stats/daily
// Accepts optional query param ?days=N (1–365, default 30).
func (h *AdminHandler) DailyStats(w http.ResponseWriter, r *http.Request) {
	days := queryInt(r.URL.Query().Get("days"), services.DefaultStatDays)
	if days > services.MaxStatDays {
		days = services.MaxStatDays
	}

	stats, err := h.service.DailyStats(r.Context(), days, time.Now())
	if err != nil {
		h.logger.Error("failed to load daily stats", slog.Any("error", err))
		h.writeServiceError(w, err, "Failed to retrieve daily stats")
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, DailyStatsResponse{Days: days, Stats: stats})
}

// RefreshLocations handles POST /admin/refresh-locations
// Accepts optional query param ?limit=N.
func (h *AdminHandler) RefreshLocations(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r.URL.Query().Get("limit"), h.refreshBatch)
	if limit > services.MaxRefreshBatch {
		limit = services.MaxRefreshBatch
	}

	result, err := h.service.RefreshLocations(r.Context(), limit)
	if err != nil {
		h.logger.Error("location refresh failed", slog.Any("error", err))
		h.writeServiceError(w, err, "Failed to refresh locations")
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, result)
}

// Health handles GET /health
func (h *AdminHandler) Health(w http.ResponseWriter, r *http.Request) {
	if h.health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.health.HealthCheck(ctx); err != nil {
			h.logger.Warn("health check failed", slog.Any("error", err))
			pkghttp.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy", "database": "unreachable"})
			return
		}
	}

	pkghttp.WriteJSON(w, http.StatusOK, map[string]string{"status": "healthy", "database": "connected"})
}

func (h *AdminHandler) writeServiceError(w http.ResponseWriter, err error, message string) {
	if errors.Is(err, models.ErrStorageUnavailable) {
		pkghttp.WriteServiceUnavailable(w, message)
		return
	}
	pkghttp.WriteInternalError(w, message)
}

// queryInt parses a positive integer, falling back to def.
func queryInt(raw string, def int) int {
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return def
	}
	return n
}
