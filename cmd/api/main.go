package main

import (
	"context"
	"net"
	"net/http"
	"time"

	"videoproc/internal/assets"
	"videoproc/internal/config"
	"videoproc/internal/events"
	"videoproc/internal/httpapi"
	"videoproc/internal/httpapi/handlers"
	"videoproc/internal/jobs"
	"videoproc/internal/pkg/logger"
	"videoproc/internal/pkg/shutdown"
	"videoproc/internal/storage"
	"videoproc/internal/tempstore"
	"videoproc/internal/worker"
	"videoproc/internal/worker/processor"
	"videoproc/internal/worker/renderer"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.NewDefault().LogFatal("invalid configuration", err)
	}

	// Initialize logger
	log := logger.New(logger.Config{
		Level:       cfg.Log.Level,
		Format:      cfg.Log.Format,
		ServiceName: "video-processor",
		AddSource:   cfg.Log.Source,
	})

	log.Info("starting render API",
		"store", cfg.Store.Driver,
		"queue", cfg.Queue.Driver,
		"output", cfg.Output.Provider,
		"concurrency", cfg.Render.Concurrency,
	)

	ctx := context.Background()

	// Initialize shutdown manager
	shutdownMgr := shutdown.NewManager(log, cfg.Server.ShutdownTimeout)

	// Redis (store and/or queue)
	rdb, err := newRedis(ctx, cfg)
	if err != nil {
		log.LogFatal("failed to connect to Redis", err)
	}
	if rdb != nil {
		shutdownMgr.Register("redis", func(ctx context.Context) error {
			return rdb.Close()
		})
		log.Info("Redis connected", "addr", cfg.Redis.Addr)
	}

	// Job store
	store, err := openStore(ctx, cfg, rdb)
	if err != nil {
		log.LogFatal("failed to open job store", err, "driver", cfg.Store.Driver)
	}
	shutdownMgr.Register("job-store", func(ctx context.Context) error {
		return store.Close()
	})
	log.Info("job store ready", "driver", store.Kind(), "durable", store.Durable())

	temp, err := tempstore.New(cfg.Render.TempRoot)
	if err != nil {
		log.LogFatal("failed to prepare temp root", err, "root", cfg.Render.TempRoot)
	}

	sp, err := storage.NewProvider(ctx, cfg.Output, log)
	if err != nil {
		log.LogFatal("failed to initialize output provider", err, "provider", cfg.Output.Provider)
	}

	bus := events.NewBus()
	registry := jobs.NewRegistry(store, bus, log, jobs.WithInstance(cfg.InstanceID))
	q := openQueue(cfg, rdb)

	var probe renderer.Prober
	if cfg.Render.FFprobePath != "" {
		probe = renderer.NewFFprobe(cfg.Render.FFprobePath)
	}
	executor := renderer.NewExecutor(
		renderer.NewFFmpeg(cfg.Render.FFmpegPath),
		probe,
		temp,
		renderer.Config{Preset: cfg.Render.Preset, CRF: cfg.Render.CRF},
		log,
	)

	proc := processor.New(processor.Deps{
		Registry: registry,
		Fetcher: assets.NewFetcher(temp, assets.Config{
			Timeout:  cfg.Assets.Timeout,
			MaxBytes: cfg.Assets.MaxBytes,
		}, log),
		Renderer: executor,
		Temp:     temp,
		SP:       sp,
		Log:      log,
	})
	cleanup := proc.Cleanup().CleanupJob

	if err := recoverJobs(ctx, registry, q, log); err != nil {
		log.LogFatal("failed to recover jobs", err, "instance", cfg.InstanceID)
	}

	pool := worker.NewPool(worker.Deps{
		Queue:       q,
		Processor:   proc,
		Concurrency: cfg.Render.Concurrency,
		JobTimeout:  cfg.Render.Timeout,
		Log:         log,
	})
	pool.Start(context.Background())
	shutdownMgr.Register("worker-pool", pool.Stop)

	reaperCtx, stopReaper := context.WithCancel(context.Background())
	reaper := worker.NewReaper(registry, cleanup, cfg.Reaper.Retention, cfg.Reaper.Interval, log)
	go reaper.Run(reaperCtx)
	shutdownMgr.RegisterSimple("reaper", stopReaper)

	// Create HTTP router
	router := httpapi.NewRouter(httpapi.Deps{
		Handlers: handlers.Deps{
			Registry:   registry,
			Queue:      q,
			Bus:        bus,
			Temp:       temp,
			Workers:    pool,
			Cleanup:    cleanup,
			SP:         sp,
			FFmpegPath: cfg.Render.FFmpegPath,
		},
		Log:                log,
		CORSAllowedOrigins: cfg.Server.CORSAllowedOrigins,
		MaxBodyBytes:       cfg.Server.MaxBodyBytes,
	})

	// Event streams never finish on their own; their contexts are
	// canceled as soon as shutdown begins.
	baseCtx, cancelStreams := context.WithCancel(context.Background())
	server := &http.Server{
		Addr:              "0.0.0.0:" + cfg.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return baseCtx },
	}
	server.RegisterOnShutdown(cancelStreams)

	// Register server shutdown
	shutdownMgr.Register("http-server", func(ctx context.Context) error {
		log.Info("shutting down HTTP server")
		return server.Shutdown(ctx)
	})

	go func() {
		log.Info("HTTP server listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.LogFatal("HTTP server failed", err)
		}
	}()

	shutdownMgr.Wait(ctx)
}
