package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"mediaFetcher/api/config"
	"mediaFetcher/api/database"
	"mediaFetcher/api/delivery"
	"mediaFetcher/api/handlers"
	"mediaFetcher/api/idgen"
	"mediaFetcher/api/kafka"
	"mediaFetcher/api/middleware"
	"mediaFetcher/api/repository"
	"mediaFetcher/api/service"
	"mediaFetcher/worker/fetcher"
	"mediaFetcher/worker/janitor"
	"mediaFetcher/worker/pool"
	"mediaFetcher/worker/runner"
)

func main() {
	cfg := config.Load()

	logger, err := newLogger(cfg)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("Service stopped with error", zap.Error(err))
	}
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	if cfg.IsDevelopment() {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func run(cfg *config.Config, logger *zap.Logger) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger.Info("Media fetch service starting",
		zap.String("port", cfg.Port),
		zap.String("env", cfg.Env),
		zap.String("store", cfg.StoreBackend),
		zap.Int("workers", cfg.WorkerCount),
	)

	if err := os.MkdirAll(cfg.StorageDir, 0o755); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		repo    repository.Repository
		evicter repository.Evicter
	)
	switch cfg.StoreBackend {
	case config.StoreRedis:
		client, err := database.ConnectRedis(ctx, database.RedisOptions{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			return err
		}
		defer client.Close()
		repo = repository.NewRedisRepo(client, cfg.JobTTL)
		logger.Info("Connected to Redis", zap.String("addr", cfg.RedisAddr))
	default:
		memory := repository.NewMemoryRepo()
		repo = memory
		evicter = memory
	}

	var events kafka.Publisher = kafka.NopPublisher{}
	if len(cfg.KafkaBrokers) > 0 {
		producer, err := kafka.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
		if err != nil {
			return err
		}
		events = producer
		logger.Info("Publishing job events", zap.Strings("brokers", cfg.KafkaBrokers), zap.String("topic", cfg.KafkaTopic))
	}
	defer events.Close()

	workers := pool.NewWorkerPool(cfg.WorkerCount, logger)
	jobRunner := runner.NewRunner(repo, fetcher.NewYtdlpFetcher(cfg.YtdlpPath, logger), workers, events, logger, runner.Options{
		StorageDir:   cfg.StorageDir,
		Debug:        cfg.DebugErrors,
		SettleDelay:  cfg.SettleDelay,
		FetchTimeout: cfg.FetchTimeout,
	})
	jobService := service.NewJobService(repo, idgen.NewUUIDAllocator(), jobRunner, events, logger, cfg.PublicBaseURL)
	files := delivery.NewManager(cfg.StorageDir, cfg.GracePeriod, logger)
	sweeper := janitor.NewJanitor(evicter, files, logger, janitor.Options{
		StorageDir: cfg.StorageDir,
		Interval:   cfg.JanitorInterval,
		JobTTL:     cfg.JobTTL,
		MaxFileAge: cfg.MaxFileAge,
	})

	jobHandler := handlers.NewJobHandler(jobService, logger)
	fileHandler := handlers.NewFileHandler(files, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /jobs", jobHandler.Create)
	mux.HandleFunc("GET /jobs/{job_id}", jobHandler.Status)
	mux.HandleFunc("GET /files/{file_name}", fileHandler.Download)
	mux.HandleFunc("GET /health", handlers.Health(workers))
	mux.HandleFunc("GET /{$}", handlers.Root)

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           middleware.Chain(mux, middleware.TraceID, middleware.Logging(logger), middleware.Recovery(logger)),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("Server started", zap.String("address", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		return sweeper.Run(gctx)
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Warn("HTTP server shutdown incomplete", zap.Error(err))
		}
		if err := workers.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Worker pool did not drain in time", zap.Error(err))
		}
		files.Close()
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("Service stopped")
	return nil
}
