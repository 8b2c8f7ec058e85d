package main

import (
	"context"
	"os"

	"github.com/farmlink/agrosync/internal/config"
	"github.com/farmlink/agrosync/internal/connectivity"
	"github.com/farmlink/agrosync/internal/db"
	"github.com/farmlink/agrosync/internal/errors"
	"github.com/farmlink/agrosync/internal/logging"
	"github.com/farmlink/agrosync/internal/media"
	"github.com/farmlink/agrosync/internal/models"
	"github.com/farmlink/agrosync/internal/offline"
	"github.com/farmlink/agrosync/internal/remote"
	syncpkg "github.com/farmlink/agrosync/internal/sync"
	"github.com/farmlink/agrosync/internal/sync/cache"
	"github.com/farmlink/agrosync/internal/sync/queue"
	"github.com/farmlink/agrosync/internal/sync/scheduler"
	"github.com/farmlink/agrosync/internal/sync/view"
)

// app wires the sync engine for one CLI invocation.
type app struct {
	cfg       *config.Config
	handle    *db.Handle
	queues    *queue.Set
	cache     *cache.Cache
	engine    *syncpkg.Engine
	monitor   *connectivity.Monitor
	scheduler *scheduler.Scheduler
	views     *view.Merger
	offline   *offline.Service
}

type appOptions struct {
	configFile string
	dataDir    string
	offline    bool
}

func newApp(ctx context.Context, opts appOptions) (*app, error) {
	cfg, err := config.Load(opts.configFile)
	if err != nil {
		return nil, err
	}
	if opts.dataDir != "" {
		cfg.DataDir = opts.dataDir
	}

	level := logging.ParseLevel(cfg.Log.Level)
	if cfg.Log.File != "" {
		logging.InitFile(cfg.Log.File, level)
	} else {
		logging.Init(os.Stderr, level)
	}

	handle := db.NewHandle(cfg.DataDir)
	store, err := handle.Store(ctx)
	if err != nil {
		return nil, err
	}

	var backend syncpkg.Remote = unconfiguredRemote{}
	online := !opts.offline
	if cfg.Remote.BaseURL != "" {
		client, err := remote.NewClient(remote.Config{
			BaseURL: cfg.Remote.BaseURL,
			APIKey:  cfg.Remote.APIKey,
			Timeout: cfg.Remote.Timeout,
		})
		if err != nil {
			handle.Close()
			return nil, err
		}
		backend = client
	} else {
		online = false
	}

	a := &app{
		cfg:     cfg,
		handle:  handle,
		queues:  queue.NewSet(store),
		cache:   cache.New(store),
		monitor: connectivity.NewMonitor(online),
	}
	a.engine = syncpkg.NewEngine(a.queues, a.cache, backend)
	a.scheduler = scheduler.NewScheduler(a.engine, a.queues, a.monitor, &scheduler.SchedulerConfig{
		SyncInterval: cfg.Sync.Interval,
		SyncTimeout:  cfg.Sync.Timeout,
	}).WithPrefetch(backend, a.cache)
	a.views = view.NewMerger(a.queues, a.cache, backend)
	a.offline = offline.NewService(a.queues, a.cache, a.views,
		media.NewCompressor(cfg.Photo.MaxDimension, cfg.Photo.Quality), a.scheduler)
	return a, nil
}

func (a *app) Close() error {
	a.scheduler.Stop()
	a.scheduler.Wait()
	return a.handle.Close()
}

var errNoRemote = errors.New(errors.ErrInvalid, "remote.base_url is not configured")

// unconfiguredRemote stands in for the backend when no base URL is set. The
// monitor is kept offline in that case, so only explicit calls reach it.
type unconfiguredRemote struct{}

func (unconfiguredRemote) CreateListing(context.Context, models.NewListing) (models.Listing, error) {
	return models.Listing{}, errNoRemote
}

func (unconfiguredRemote) UpdateListing(context.Context, string, models.ListingPatch) (models.Listing, error) {
	return models.Listing{}, errNoRemote
}

func (unconfiguredRemote) DeleteListing(context.Context, string) error { return errNoRemote }

func (unconfiguredRemote) FetchListings(context.Context, models.ListingFilter) ([]models.Listing, error) {
	return nil, errNoRemote
}

func (unconfiguredRemote) FetchOrders(context.Context) ([]models.Order, error) {
	return nil, errNoRemote
}

func (unconfiguredRemote) InvokeOrderAction(context.Context, models.OrderAction, string, map[string]interface{}) error {
	return errNoRemote
}
