package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/kdimtricp/mediaverify/internal/ai"
	"github.com/kdimtricp/mediaverify/internal/api"
	"github.com/kdimtricp/mediaverify/internal/cache"
	"github.com/kdimtricp/mediaverify/internal/config"
	"github.com/kdimtricp/mediaverify/internal/dashboard"
	"github.com/kdimtricp/mediaverify/internal/database"
	"github.com/kdimtricp/mediaverify/internal/detection"
	"github.com/kdimtricp/mediaverify/internal/events"
	"github.com/kdimtricp/mediaverify/internal/logging"
	"github.com/kdimtricp/mediaverify/internal/media"
	"github.com/kdimtricp/mediaverify/internal/metrics"
	"github.com/kdimtricp/mediaverify/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration:", err)
	}

	logger, err := logging.New(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat, Component: "server"})
	if err != nil {
		log.Fatal("Failed to initialize logger:", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	startupCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	repo, err := database.Open(startupCtx, cfg.Database)
	if err != nil {
		logger.Fatal("failed to initialize database", zap.String("type", cfg.Database.Type), zap.Error(err))
	}
	defer repo.Close()

	store, localFiles, err := newStorage(startupCtx, cfg)
	if err != nil {
		logger.Fatal("failed to initialize storage", zap.String("backend", cfg.Storage.Backend), zap.Error(err))
	}

	m := metrics.New()

	var publisher events.Publisher = events.NopPublisher{}
	if len(cfg.KafkaBrokers) > 0 {
		publisher = events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic, logger.Named("events"))
		logger.Info("publishing events to kafka", zap.Strings("brokers", cfg.KafkaBrokers), zap.String("topic", cfg.KafkaTopic))
	}
	defer publisher.Close()

	var dedup cache.Dedup
	if cfg.RedisAddr != "" {
		redisDedup, err := cache.NewRedisDedup(startupCtx, cache.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			TTL:      cfg.DedupTTL,
		})
		if err != nil {
			logger.Warn("dedup cache disabled", zap.Error(err))
		} else {
			dedup = redisDedup
			defer redisDedup.Close()
		}
	}

	deps := detection.Deps{
		Repo:      repo,
		Store:     store,
		Extractor: media.NewExtractor(logger.Named("metadata")),
		Dedup:     dedup,
		Publisher: publisher,
		Metrics:   m,
		Logger:    logger.Named("detection"),
	}

	if cfg.AI.Configured() {
		model, err := ai.NewModel(cfg.AI)
		if err != nil {
			logger.Fatal("failed to initialize AI provider", zap.Error(err))
		}
		deps.Analyzer = ai.NewAnalyzer(model, cfg.AI.MaxAttempts, logger.Named("ai"))
		logger.Info("AI provider configured", zap.String("model", model.Name()))
	} else {
		logger.Warn("AI provider not configured, detection requests will fail", zap.String("provider", cfg.AI.Provider))
	}

	frames, err := media.NewFrameExtractor(logger.Named("frames"))
	if err != nil {
		logger.Warn("video still frames disabled", zap.Error(err))
	} else {
		deps.Frames = frames
	}

	app := &api.App{
		Storage:    store,
		LocalFiles: localFiles,
		Repo:       repo,
		Detector: detection.NewService(deps, detection.Config{
			Concurrency:   cfg.DetectConcurrency,
			MaxFetchBytes: cfg.MaxUploadSize,
			AllowedHosts:  cfg.FetchAllowedHosts,
		}),
		Dashboard:     dashboard.NewService(repo),
		Publisher:     publisher,
		Metrics:       m,
		Logger:        logger.Named("http"),
		MaxUploadSize: cfg.MaxUploadSize,
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           api.NewRouter(app),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("server starting",
			zap.String("port", cfg.Port),
			zap.String("database", cfg.Database.Type),
			zap.String("storage", cfg.Storage.Backend),
			zap.Int64("maxUploadSize", cfg.MaxUploadSize))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

// newStorage returns the configured backend, plus the local backend again
// when files must be served by this process.
func newStorage(ctx context.Context, cfg *config.Config) (storage.Storage, *storage.LocalStorage, error) {
	sc := cfg.Storage
	switch sc.Backend {
	case "minio":
		ms, err := storage.NewMinIOStorage(ctx, storage.MinIOConfig{
			Endpoint:  sc.MinioEndpoint,
			AccessKey: sc.MinioAccessKey,
			SecretKey: sc.MinioSecretKey,
			UseSSL:    sc.MinioUseSSL,
			Bucket:    sc.MinioBucket,
			Folder:    sc.Folder,
			PublicURL: sc.MinioPublicURL,
		})
		return ms, nil, err
	case "imagekit":
		return storage.NewImageKitStorage(storage.ImageKitConfig{
			PublicKey:   sc.ImageKitPublicKey,
			PrivateKey:  sc.ImageKitPrivateKey,
			URLEndpoint: sc.ImageKitURLEndpoint,
			Folder:      sc.Folder,
		}), nil, nil
	default:
		ls, err := storage.NewLocalStorage(sc.UploadDir, cfg.PublicBaseURL, sc.Folder)
		if err != nil {
			return nil, nil, err
		}
		return ls, ls, nil
	}
}
