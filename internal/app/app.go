// Package app initializes and holds long-lived application services, acting as a dependency injection container.
package app

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/competitor-url-checker/internal/api"
	"github.com/JakeFAU/competitor-url-checker/internal/cache"
	"github.com/JakeFAU/competitor-url-checker/internal/checker"
	"github.com/JakeFAU/competitor-url-checker/internal/clock/system"
	"github.com/JakeFAU/competitor-url-checker/internal/compare"
	"github.com/JakeFAU/competitor-url-checker/internal/config"
	"github.com/JakeFAU/competitor-url-checker/internal/dispatcher"
	"github.com/JakeFAU/competitor-url-checker/internal/extractor"
	collyfetcher "github.com/JakeFAU/competitor-url-checker/internal/fetcher/colly"
	"github.com/JakeFAU/competitor-url-checker/internal/id/uuid"
	"github.com/JakeFAU/competitor-url-checker/internal/notify"
	"github.com/JakeFAU/competitor-url-checker/internal/processor"
	queueMemory "github.com/JakeFAU/competitor-url-checker/internal/queue/memory"
	"github.com/JakeFAU/competitor-url-checker/internal/scheduler"
	memoryStorage "github.com/JakeFAU/competitor-url-checker/internal/storage/memory"
	"github.com/JakeFAU/competitor-url-checker/internal/storage/postgres"
	"github.com/JakeFAU/competitor-url-checker/internal/worker"
)

// App holds the shared, long-lived services. It is built once at startup and
// closed by the CLI after the command finishes.
type App struct {
	Config     config.Config
	Logger     *zap.Logger
	Processor  *processor.Processor
	Comparer   *compare.Comparer
	Notifier   checker.Notifier
	JobStore   checker.JobStore
	Queue      *queueMemory.Queue
	Dispatcher *dispatcher.Dispatcher
	Server     *api.Server
}

// New wires every service from cfg. The Redis tier is enabled when redis.addr
// is set and jobs persist to Postgres when db.dsn is set.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger.Info("initializing application services")

	var remote cache.Remote
	if cfg.Redis.Addr != "" {
		logger.Info("using redis cache tier", zap.String("addr", cfg.Redis.Addr))
		remote = cache.NewRedisStore(cache.RedisOptions{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		}, cfg.CacheTTL())
	}
	dateCache := cache.NewTwoTier(
		cache.NewLocalStore(cfg.Cache.LocalCapacity, cfg.CacheTTL()),
		remote,
		cfg.Cache.KeyPrefix,
		logger.Named("cache"),
	)

	fetcher := collyfetcher.New(collyfetcher.Config{
		UserAgent:      cfg.HTTP.UserAgent,
		Timeout:        cfg.RequestTimeout(),
		ConnectTimeout: time.Duration(cfg.HTTP.ConnectTimeoutSeconds) * time.Second,
		ReadTimeout:    time.Duration(cfg.HTTP.ReadTimeoutSeconds) * time.Second,
		IdleTimeout:    time.Duration(cfg.HTTP.IdleTimeoutSeconds) * time.Second,
		MaxConns:       cfg.HTTP.MaxConcurrent,
	}, checker.NewExponentialRetryPolicy(
		cfg.HTTP.MaxRetries,
		cfg.BackoffBase(),
		time.Duration(cfg.HTTP.BackoffMaxMs)*time.Millisecond,
	), checker.TimerPauser{}, logger.Named("fetcher"))

	proc := processor.New(
		processor.Config{MaxConcurrent: cfg.HTTP.MaxConcurrent},
		dateCache,
		fetcher,
		extractor.New(),
		scheduler.New(scheduler.Config{HostDelay: cfg.HostDelay()}, logger.Named("scheduler")),
		logger.Named("processor"),
	)

	jobStore, err := newJobStore(ctx, cfg, logger)
	if err != nil {
		if cerr := proc.Close(); cerr != nil {
			logger.Warn("close processor failed", zap.Error(cerr))
		}
		return nil, err
	}

	comparer := compare.New(proc, logger.Named("compare"))
	notifier := notify.NewLogNotifier(notify.Config{
		Enabled:   cfg.Notify.Enabled,
		Sender:    cfg.Notify.Sender,
		Recipient: cfg.Notify.Recipient,
	}, logger.Named("notify"))

	queue := queueMemory.NewQueue(cfg.Jobs.QueueDepth)
	clock := system.New()
	workers := make([]*worker.Worker, 0, cfg.Jobs.Workers)
	for i := 0; i < cfg.Jobs.Workers; i++ {
		workers = append(workers, worker.New(
			queue,
			jobStore,
			comparer,
			notifier,
			workerConfig(cfg),
			logger.Named("worker").With(zap.Int("index", i)),
		))
	}
	dispatch := dispatcher.New(queue, clock, workers)

	server := api.NewServer(api.Deps{
		Checker:   proc,
		Comparer:  comparer,
		JobStore:  jobStore,
		Submitter: dispatch,
		IDGen:     uuid.New(),
		Clock:     clock,
		Readiness: proc,
	}, cfg, logger.Named("api"))

	logger.Info("application services initialized")
	return &App{
		Config:     cfg,
		Logger:     logger,
		Processor:  proc,
		Comparer:   comparer,
		Notifier:   notifier,
		JobStore:   jobStore,
		Queue:      queue,
		Dispatcher: dispatch,
		Server:     server,
	}, nil
}

func newJobStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (checker.JobStore, error) {
	if cfg.DB.DSN == "" {
		logger.Info("using in-memory job store")
		return memoryStorage.NewJobStore(), nil
	}
	logger.Info("using postgres job store", zap.String("table", cfg.DB.Table))
	store, err := postgres.NewJobStore(ctx, jobStoreConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("init job store: %w", err)
	}
	if err := store.EnsureSchema(ctx); err != nil {
		store.Close()
		return nil, fmt.Errorf("init job store: %w", err)
	}
	return store, nil
}

func jobStoreConfig(cfg config.Config) postgres.JobStoreConfig {
	return postgres.JobStoreConfig{
		DSN:             cfg.DB.DSN,
		Table:           cfg.DB.Table,
		MaxConns:        cfg.DB.MaxConns,
		MinConns:        cfg.DB.MinConns,
		MaxConnLifetime: cfg.DBMaxConnLifetime(),
	}
}

func workerConfig(cfg config.Config) worker.Config {
	return worker.Config{JobTimeout: cfg.JobTimeout()}
}

// Close shuts down the queue, the job store and the processor's connections.
func (a *App) Close() {
	a.Logger.Info("shutting down application services")
	if a.Queue != nil {
		a.Queue.Close()
	}
	if closer, ok := a.JobStore.(interface{ Close() }); ok {
		closer.Close()
	}
	if a.Processor != nil {
		if err := a.Processor.Close(); err != nil {
			a.Logger.Warn("error closing processor", zap.Error(err))
		}
	}
}
