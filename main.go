package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"carsensor-mirror/api"
	"carsensor-mirror/config"
	"carsensor-mirror/models"
	"carsensor-mirror/scraper/carsensor"
	"carsensor-mirror/services"
	"carsensor-mirror/storage"
	"carsensor-mirror/utils"
	"carsensor-mirror/worker"
)

func main() {
	once := flag.Bool("once", false, "run a single scrape, print the catalog summary and exit")
	flag.Parse()

	logger := utils.NewLogger()
	cfg := config.Load()
	logger.SetDebug(cfg.Debug)

	if err := cfg.Validate(); err != nil {
		logger.Error("Invalid configuration: %v", err)
		os.Exit(1)
	}

	logger.Info("=== Carsensor mirror starting ===")
	logger.Info("Config: mode %s | engine %s | pages %d | ttl %s | schedule %q",
		cfg.ScraperMode, cfg.FetchEngine, cfg.SearchPages, cfg.CacheTTL(), cfg.Schedule)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := storage.Open(ctx, cfg.DBDriver, cfg.DSN())
	if err != nil {
		logger.Error("Failed to open %s store: %v", cfg.DBDriver, err)
		logger.Error("Make sure the database is running: docker compose up -d")
		os.Exit(1)
	}
	defer store.Close()

	fetcher, closeFetcher := newFetcher(cfg, logger)
	defer closeFetcher()

	dict := services.NewDictionary()
	scraper := carsensor.New(fetcher, carsensor.NewExtractor(dict), utils.NewPacer(cfg.PageDelay()), logger)
	if archive := newArchive(ctx, cfg, logger); archive != nil {
		scraper.WithArchive(archive)
	}

	deps := worker.Deps{
		Runs:     store,
		Scraper:  scraper,
		Cleaner:  services.NewCleaner(logger),
		Upserter: services.NewUpserter(store, logger),
		Cache:    services.NewCacheManager(store, logger),
	}

	if cfg.CSVOutputPath != "" {
		csvWriter, err := storage.NewCSVWriter(cfg.CSVOutputPath)
		if err != nil {
			logger.Error("Failed to create CSV writer: %v", err)
			os.Exit(1)
		}
		defer csvWriter.Close()
		deps.Raw = csvWriter
	}

	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer client.Close()
		deps.Lock = worker.NewRedisLock(client, "carsensor-mirror:run", cfg.LockTTL)
		logger.Info("Cross-process run lock enabled via %s", cfg.RedisAddr)
	}

	runner := worker.NewRunner(deps, worker.Options{
		BaseURL:    cfg.BaseURL,
		Pages:      cfg.SearchPages,
		BrandCode:  cfg.BrandCode,
		WithImages: cfg.WithImages,
		LockRenew:  cfg.LockTTL / 3,
	}, logger)

	if *once {
		runOnce(ctx, runner, store, logger)
		return
	}

	scheduler := worker.NewScheduler(runner, cfg.Schedule, logger)
	if cfg.RunOnStart {
		scheduler.WithStartupRun(cfg.StartDelay)
	}
	if err := scheduler.Start(ctx); err != nil {
		logger.Error("Failed to start scheduler: %v", err)
		os.Exit(1)
	}

	catalog := services.NewCatalog(store, runner, cfg.CacheTTL(), logger)
	httpServer := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           api.New(ctx, catalog, runner, store, logger).Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("API listening on :%s", cfg.HTTPPort)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server failed: %v", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	_ = httpServer.Shutdown(shutdownCtx)
	scheduler.Stop()
	runner.Wait()
	logger.Info("=== Carsensor mirror stopped ===")
}

func newFetcher(cfg *config.Config, logger *utils.Logger) (carsensor.Fetcher, func()) {
	if cfg.ScraperMode == config.ModeMock {
		logger.Info("Serving canned fixtures (SCRAPER_MODE=mock)")
		return carsensor.NewMockFetcher(), func() {}
	}

	opts := carsensor.FetchOptions{
		MaxRetries: cfg.MaxRetries,
		RetryDelay: cfg.RetryDelay(),
		Timeout:    cfg.ReqTimeout,
	}
	if cfg.FetchEngine == config.EngineBrowser {
		b := carsensor.NewBrowserFetcher(cfg.ChromeBin, opts, logger)
		return b, b.Close
	}
	return carsensor.NewHTTPFetcher(&http.Client{}, opts, logger), func() {}
}

// newArchive returns nil when archiving is off or the archive cannot be set up.
func newArchive(ctx context.Context, cfg *config.Config, logger *utils.Logger) carsensor.PageArchiver {
	switch {
	case cfg.ArchiveS3Bucket != "":
		a, err := storage.NewS3Archive(ctx, storage.S3Options{
			Bucket:    cfg.ArchiveS3Bucket,
			Region:    cfg.ArchiveS3Region,
			Endpoint:  cfg.ArchiveS3Endpoint,
			PathStyle: cfg.ArchiveS3PathStyle,
			Prefix:    "pages",
		})
		if err != nil {
			logger.Warn("Page archive disabled: %v", err)
			return nil
		}
		logger.Info("Archiving fetched pages to s3://%s", cfg.ArchiveS3Bucket)
		return a
	case cfg.ArchiveDir != "":
		logger.Info("Archiving fetched pages under %s", cfg.ArchiveDir)
		return storage.NewFileArchive(cfg.ArchiveDir)
	}
	return nil
}

func runOnce(ctx context.Context, runner *worker.Runner, store storage.CatalogReader, logger *utils.Logger) {
	run, err := runner.RunScheduled(ctx, models.KindManual)
	if err != nil {
		logger.Error("Scrape failed: %v", err)
		os.Exit(1)
	}
	logger.Info("Run %s: found %d, added %d, updated %d, unchanged %d, errors %d",
		run.ID, run.Found, run.Added, run.Updated, run.Unchanged, run.Errored)

	summary, err := store.Facets(ctx)
	if err != nil {
		logger.Error("Failed to load catalog summary: %v", err)
		os.Exit(1)
	}
	services.NewInsightService(logger).Print(os.Stdout, summary)
}
