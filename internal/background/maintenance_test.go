package background_test

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/BradenHooton/iplanding/internal/background"
	"github.com/BradenHooton/iplanding/internal/services"
	"github.com/stretchr/testify/assert"
)

type mockMaintainer struct {
	mu            sync.Mutex
	purgeCalls    int
	refreshCalls  int
	lastRetention time.Duration
	lastBatch     int
	purgeErr      error
}

func (m *mockMaintainer) PurgeOlderThan(ctx context.Context, retention time.Duration, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.purgeCalls++
	m.lastRetention = retention
	return 3, m.purgeErr
}

func (m *mockMaintainer) RefreshLocations(ctx context.Context, limit int) (*services.RefreshResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refreshCalls++
	m.lastBatch = limit
	return &services.RefreshResult{Checked: limit}, nil
}

func (m *mockMaintainer) counts() (int, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.purgeCalls, m.refreshCalls
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, nil))
}

func TestMaintenanceManager_RunOnce(t *testing.T) {
	m := &mockMaintainer{}
	mm := background.NewMaintenanceManager(m, background.MaintenanceConfig{
		Interval:         time.Hour,
		Retention:        90 * 24 * time.Hour,
		RefreshBatchSize: 25,
	}, testLogger())

	mm.RunOnce(context.Background())

	purges, refreshes := m.counts()
	assert.Equal(t, 1, purges)
	assert.Equal(t, 1, refreshes)
	assert.Equal(t, 90*24*time.Hour, m.lastRetention)
	assert.Equal(t, 25, m.lastBatch)
}

func TestMaintenanceManager_DisabledTasks(t *testing.T) {
	m := &mockMaintainer{}
	mm := background.NewMaintenanceManager(m, background.MaintenanceConfig{Interval: time.Hour}, testLogger())

	mm.RunOnce(context.Background())

	purges, refreshes := m.counts()
	assert.Zero(t, purges)
	assert.Zero(t, refreshes)
}

func TestMaintenanceManager_PurgeErrorDoesNotBlockRefresh(t *testing.T) {
	m := &mockMaintainer{purgeErr: errors.New("db down")}
	mm := background.NewMaintenanceManager(m, background.MaintenanceConfig{
		Retention:        time.Hour,
		RefreshBatchSize: 5,
	}, testLogger())

	mm.RunOnce(context.Background())

	_, refreshes := m.counts()
	assert.Equal(t, 1, refreshes)
}

func TestMaintenanceManager_StartStop(t *testing.T) {
	m := &mockMaintainer{}
	mm := background.NewMaintenanceManager(m, background.MaintenanceConfig{
		Interval:         10 * time.Millisecond,
		Retention:        time.Hour,
		RefreshBatchSize: 1,
	}, testLogger())

	done := make(chan struct{})
	go func() {
		mm.Start(context.Background())
		close(done)
	}()

	assert.Eventually(t, func() bool {
		purges, _ := m.counts()
		return purges >= 2
	}, time.Second, 5*time.Millisecond)

	mm.Stop()
	mm.Stop()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("maintenance manager did not stop")
	}
}

func TestMaintenanceManager_ContextCancel(t *testing.T) {
	m := &mockMaintainer{}
	mm := background.NewMaintenanceManager(m, background.MaintenanceConfig{Interval: time.Hour}, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		mm.Start(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("maintenance manager ignored context cancellation")
	}
}
