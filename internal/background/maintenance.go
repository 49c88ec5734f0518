package background

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/BradenHooton/iplanding/internal/services"
)

// VisitorMaintainer is the subset of AdminService used by maintenance runs.
type VisitorMaintainer interface {
	PurgeOlderThan(ctx context.Context, retention time.Duration, now time.Time) (int64, error)
	RefreshLocations(ctx context.Context, limit int) (*services.RefreshResult, error)
}

// MaintenanceConfig controls a MaintenanceManager.
type MaintenanceConfig struct {
	Interval         time.Duration
	Retention        time.Duration // zero disables purging
	RefreshBatchSize int           // zero disables location refresh
}

// MaintenanceManager periodically purges old visitor records and retries
// geolocation for records whose lookup degraded.
type MaintenanceManager struct {
	maintainer VisitorMaintainer
	config     MaintenanceConfig
	logger     *slog.Logger
	stopCh     chan struct{}
	stopOnce   sync.Once
	now        func() time.Time
}

func NewMaintenanceManager(maintainer VisitorMaintainer, config MaintenanceConfig, logger *slog.Logger) *MaintenanceManager {
	if config.Interval <= 0 {
		config.Interval = time.Hour
	}
	return &MaintenanceManager{
		maintainer: maintainer,
		config:     config,
		logger:     logger,
		stopCh:     make(chan struct{}),
		now:        time.Now,
	}
}

// Start runs maintenance immediately and then on every tick until Stop is
// called or ctx is done. It blocks.
func (mm *MaintenanceManager) Start(ctx context.Context) {
	ticker := time.NewTicker(mm.config.Interval)
	defer ticker.Stop()

	mm.RunOnce(ctx)

	for {
		select {
		case <-ticker.C:
			mm.RunOnce(ctx)
		case <-mm.stopCh:
			mm.logger.Info("maintenance manager stopped")
			return
		case <-ctx.Done():
			mm.logger.Info("maintenance manager context cancelled")
			return
		}
	}
}

// RunOnce performs a single purge and refresh pass.
func (mm *MaintenanceManager) RunOnce(ctx context.Context) {
	runCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	if mm.config.Retention > 0 {
		deleted, err := mm.maintainer.PurgeOlderThan(runCtx, mm.config.Retention, mm.now())
		if err != nil {
			mm.logger.Error("failed to purge old visitor records", slog.Any("error", err))
		} else if deleted > 0 {
			mm.logger.Info("visitor retention cleanup completed", slog.Int64("rows_deleted", deleted))
		}
	}

	if mm.config.RefreshBatchSize > 0 {
		if _, err := mm.maintainer.RefreshLocations(runCtx, mm.config.RefreshBatchSize); err != nil {
			mm.logger.Error("failed to refresh degraded locations", slog.Any("error", err))
		}
	}
}

// Stop signals the manager to stop. Safe to call more than once.
func (mm *MaintenanceManager) Stop() {
	mm.stopOnce.Do(func() { close(mm.stopCh) })
}
