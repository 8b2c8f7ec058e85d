// Package scheduler runs queue drains in the background: on reconnect, after
// local writes, and periodically while online. It also owns the best-effort
// cache prefetch started after sign-in.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/farmlink/agrosync/internal/connectivity"
	"github.com/farmlink/agrosync/internal/errors"
	"github.com/farmlink/agrosync/internal/logging"
	"github.com/farmlink/agrosync/internal/models"
	syncpkg "github.com/farmlink/agrosync/internal/sync"
	"github.com/farmlink/agrosync/internal/sync/cache"
)

// PendingCounter reports how many mutations wait to sync.
type PendingCounter interface {
	PendingCount(ctx context.Context) (int, error)
}

// Prefetcher fetches the read-models mirrored in the cache.
type Prefetcher interface {
	FetchListings(ctx context.Context, filter models.ListingFilter) ([]models.Listing, error)
	FetchOrders(ctx context.Context) ([]models.Order, error)
}

// Scheduler manages background sync operations.
type Scheduler struct {
	engine  syncpkg.Syncer
	pending PendingCounter
	monitor *connectivity.Monitor

	fetcher Prefetcher
	cache   *cache.Cache

	syncInterval time.Duration
	syncTimeout  time.Duration

	wg sync.WaitGroup

	mu             sync.RWMutex
	isRunning      bool
	stopCh         chan struct{}
	unsubscribe    func()
	syncInProgress bool
	rerun          bool
	lastSyncTime   time.Time
	lastResult     *models.FullSyncResult
	lastErr        error

	prefetchCancel context.CancelFunc
	prefetchDone   chan struct{}
}

// SchedulerConfig holds scheduler configuration.
type SchedulerConfig struct {
	SyncInterval time.Duration // Periodic drain while online, 0 disables (default: 5 minutes)
	SyncTimeout  time.Duration // Upper bound for one SyncAll (default: 5 minutes)
}

// DefaultSchedulerConfig returns default scheduler configuration.
func DefaultSchedulerConfig() *SchedulerConfig {
	return &SchedulerConfig{
		SyncInterval: 5 * time.Minute,
		SyncTimeout:  5 * time.Minute,
	}
}

// NewScheduler creates a new Scheduler.
func NewScheduler(engine syncpkg.Syncer, pending PendingCounter, monitor *connectivity.Monitor, config *SchedulerConfig) *Scheduler {
	if config == nil {
		config = DefaultSchedulerConfig()
	}
	timeout := config.SyncTimeout
	if timeout <= 0 {
		timeout = DefaultSchedulerConfig().SyncTimeout
	}

	return &Scheduler{
		engine:       engine,
		pending:      pending,
		monitor:      monitor,
		syncInterval: config.SyncInterval,
		syncTimeout:  timeout,
	}
}

// WithPrefetch enables StartPrefetch, which mirrors fetcher's listings and
// orders into c.
func (s *Scheduler) WithPrefetch(fetcher Prefetcher, c *cache.Cache) *Scheduler {
	s.fetcher = fetcher
	s.cache = c
	return s
}

// Start subscribes to reconnects and starts the periodic loop. If the device
// is already online a sync runs right away.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = true
	s.stopCh = make(chan struct{})
	s.unsubscribe = s.monitor.OnReconnect(func() {
		logging.Info("Back online, starting sync", nil)
		s.TriggerSync(ctx)
	})
	stopCh := s.stopCh
	s.mu.Unlock()

	if s.syncInterval > 0 {
		s.wg.Add(1)
		go s.periodicSyncLoop(ctx, stopCh)
	}

	logging.Info("Background sync scheduler started", map[string]interface{}{
		"interval_minutes": s.syncInterval.Minutes(),
	})

	s.TriggerSync(ctx)
}

// Stop unsubscribes from reconnects, cancels any prefetch and waits for
// background work to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = false
	s.unsubscribe()
	s.unsubscribe = nil
	close(s.stopCh)
	s.mu.Unlock()

	s.CancelPrefetch()
	s.wg.Wait()

	logging.Info("Background sync scheduler stopped", nil)
}

// periodicSyncLoop drains the queues on every tick while online. Entries
// enqueued while a drain was already running are picked up here.
func (s *Scheduler) periodicSyncLoop(ctx context.Context, stopCh <-chan struct{}) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.syncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case <-ticker.C:
			s.TriggerSync(ctx)
		}
	}
}

// TriggerSync starts a background SyncAll if the device is online. It
// returns false when offline. A trigger that arrives while a sync is running
// schedules one more pass once it finishes.
func (s *Scheduler) TriggerSync(ctx context.Context) bool {
	if !s.monitor.IsOnline() {
		logging.Debug("Skipping sync - device is offline", nil)
		return false
	}

	s.mu.Lock()
	if s.syncInProgress {
		s.rerun = true
		s.mu.Unlock()
		return true
	}
	s.syncInProgress = true
	s.wg.Add(1)
	s.mu.Unlock()

	go s.runSync(ctx)
	return true
}

func (s *Scheduler) runSync(ctx context.Context) {
	defer s.wg.Done()

	for {
		s.syncOnce(ctx)

		s.mu.Lock()
		if s.rerun && s.monitor.IsOnline() {
			s.rerun = false
			s.mu.Unlock()
			continue
		}
		s.rerun = false
		s.syncInProgress = false
		s.mu.Unlock()
		return
	}
}

func (s *Scheduler) syncOnce(ctx context.Context) (*models.FullSyncResult, error) {
	syncCtx, cancel := context.WithTimeout(ctx, s.syncTimeout)
	defer cancel()

	result, err := s.engine.SyncAll(syncCtx)

	s.mu.Lock()
	s.lastSyncTime = time.Now()
	s.lastResult = result
	s.lastErr = err
	s.mu.Unlock()

	if err != nil {
		logging.ErrorWithCode("Background sync failed", string(errors.ErrSyncFailed), err, nil)
		return result, err
	}
	if result != nil && result.SuccessCount+result.FailedCount > 0 {
		logging.Info("Background sync completed", map[string]interface{}{
			"summary": result.Summary(),
			"success": result.SuccessCount,
			"failed":  result.FailedCount,
		})
	}
	return result, nil
}

// SyncNow runs SyncAll on the caller's goroutine and returns its result.
func (s *Scheduler) SyncNow(ctx context.Context) (*models.FullSyncResult, error) {
	if !s.monitor.IsOnline() {
		return nil, errors.New(errors.ErrSyncOffline, "device is offline")
	}
	return s.syncOnce(ctx)
}

// StartPrefetch mirrors every listing and order into the cache in the
// background. It never blocks and never fails the caller; errors are logged.
// A prefetch already running is cancelled first.
func (s *Scheduler) StartPrefetch(ctx context.Context) {
	if s.fetcher == nil || s.cache == nil {
		return
	}
	if !s.monitor.IsOnline() {
		logging.Debug("Skipping prefetch - device is offline", nil)
		return
	}

	s.CancelPrefetch()

	prefetchCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	s.mu.Lock()
	s.prefetchCancel = cancel
	s.prefetchDone = done
	s.mu.Unlock()

	go func() {
		defer close(done)
		defer cancel()
		s.prefetch(prefetchCtx)
	}()
}

func (s *Scheduler) prefetch(ctx context.Context) {
	listings, err := s.fetcher.FetchListings(ctx, models.ListingFilter{})
	if err != nil {
		logging.Warn("Listing prefetch failed", map[string]interface{}{"error": err.Error()})
	} else if err := s.cache.ReplaceListings(ctx, listings); err != nil {
		logging.Error("Failed to cache prefetched listings", err, nil)
	}

	if ctx.Err() != nil {
		return
	}

	orders, err := s.fetcher.FetchOrders(ctx)
	if err != nil {
		logging.Warn("Order prefetch failed", map[string]interface{}{"error": err.Error()})
		return
	}
	if err := s.cache.ReplaceOrders(ctx, orders); err != nil {
		logging.Error("Failed to cache prefetched orders", err, nil)
		return
	}

	logging.Info("Prefetch completed", map[string]interface{}{
		"listings": len(listings),
		"orders":   len(orders),
	})
}

// CancelPrefetch stops a running prefetch and waits for it to return.
func (s *Scheduler) CancelPrefetch() {
	s.mu.Lock()
	cancel, done := s.prefetchCancel, s.prefetchDone
	s.prefetchCancel, s.prefetchDone = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// WaitPrefetch blocks until the current prefetch, if any, finishes.
func (s *Scheduler) WaitPrefetch() {
	s.mu.RLock()
	done := s.prefetchDone
	s.mu.RUnlock()
	if done != nil {
		<-done
	}
}

// SchedulerStatus is a snapshot of the scheduler.
type SchedulerStatus struct {
	IsRunning      bool
	IsOnline       bool
	SyncInProgress bool
	LastSyncTime   *time.Time
	LastResult     *models.FullSyncResult
	LastError      string
	PendingItems   int
}

// Status returns the current status of the scheduler.
func (s *Scheduler) Status(ctx context.Context) SchedulerStatus {
	s.mu.RLock()
	status := SchedulerStatus{
		IsRunning:      s.isRunning,
		SyncInProgress: s.syncInProgress,
		LastResult:     s.lastResult,
	}
	if !s.lastSyncTime.IsZero() {
		t := s.lastSyncTime
		status.LastSyncTime = &t
	}
	if s.lastErr != nil {
		status.LastError = s.lastErr.Error()
	}
	s.mu.RUnlock()

	status.IsOnline = s.monitor.IsOnline()

	if s.pending != nil {
		n, err := s.pending.PendingCount(ctx)
		if err != nil {
			logging.Error("Failed to count pending mutations", err, nil)
			n = -1
		}
		status.PendingItems = n
	}
	return status
}

// IsRunning returns whether the scheduler is running.
func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// Wait blocks until every background sync started so far has finished.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}
