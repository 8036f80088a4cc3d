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

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/multierr"

	"github.com/angelmondragon/platewise-backend/internal/cron"
	"github.com/angelmondragon/platewise-backend/internal/images"
	"github.com/angelmondragon/platewise-backend/internal/ingest"
	"github.com/angelmondragon/platewise-backend/internal/vision"
	"github.com/angelmondragon/platewise-backend/pkg/config"
	"github.com/angelmondragon/platewise-backend/pkg/db"
	"github.com/angelmondragon/platewise-backend/pkg/logger"
	"github.com/angelmondragon/platewise-backend/pkg/metrics"
	"github.com/angelmondragon/platewise-backend/pkg/migrate"
	"github.com/angelmondragon/platewise-backend/pkg/redis"
	"github.com/angelmondragon/platewise-backend/pkg/storage/s3"
)

const lockName = "cron-worker"

func main() {
	once := flag.Bool("once", false, "run a single cycle and exit")
	metricsAddr := flag.String("metrics-addr", "", "serve /metrics on this address (empty disables)")
	flag.Parse()

	logg := logger.New(logger.Options{ServiceName: "cron-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}
	cfg.Service.Kind = "cron-worker"

	logg = logger.New(logger.Options{
		ServiceName: "cron-worker",
		Env:         cfg.App.Env,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
	})

	if err := run(ctx, cfg, logg, *once, *metricsAddr); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(ctx, "cron worker shutting down gracefully")
}

func run(ctx context.Context, cfg *config.Config, logg *logger.Logger, once bool, metricsAddr string) (err error) {
	reg := prometheus.NewRegistry()

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, dbClient.Close()) }()

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		return err
	}

	var lock cron.Lock = &cron.LocalLock{}
	if cfg.Redis.Enabled() {
		var redisClient *redis.Client
		redisClient, err = redis.New(ctx, cfg.Redis, logg)
		if err != nil {
			return err
		}
		defer func() { err = multierr.Append(err, redisClient.Close()) }()
		if lock, err = cron.NewRedisLock(redisClient, redisClient.LockKey(lockName), 0); err != nil {
			return err
		}
	} else {
		logg.Warn(ctx, "redis not configured; cron lock is process-local")
	}

	blobs, err := s3.New(ctx, cfg.S3, logg)
	if err != nil {
		return err
	}
	visionClient, err := vision.New(ctx, cfg.Gemini, cfg.Vision, logg, metrics.NewVisionMetrics(reg))
	if err != nil {
		return err
	}
	imageSvc, err := images.NewService(images.Deps{
		Repo:   images.NewRepository(dbClient.DB()),
		Blobs:  blobs,
		Vision: visionClient,
		Logger: logg,
		Limits: ingest.Limits{
			MaxWidth:  cfg.Media.ImageMaxWidth,
			MaxHeight: cfg.Media.ImageMaxHeight,
			Quality:   cfg.Media.ImageQuality,
		},
		MaxUploadBytes: cfg.Media.MaxUploadBytes(),
		PresignTTL:     cfg.S3.PresignTTL,
	})
	if err != nil {
		return err
	}

	jobMetrics := metrics.NewCronJobMetrics(reg)
	retryJob, err := cron.NewAnalysisRetryJob(cron.AnalysisRetryJobParams{
		Logger:  logg,
		Images:  imageSvc,
		Metrics: jobMetrics,
		Batch:   cfg.Cron.AnalysisRetryBatch,
		MinAge:  cfg.Cron.AnalysisRetryMinAge,
	})
	if err != nil {
		return err
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: cron.NewRegistry(retryJob),
		Lock:     lock,
		Metrics:  jobMetrics,
		Interval: cfg.Cron.Interval,
	})
	if err != nil {
		return err
	}

	if metricsAddr != "" {
		srv := &http.Server{
			Addr:              metricsAddr,
			Handler:           promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logg.Error(ctx, "metrics server stopped", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			err = multierr.Append(err, srv.Shutdown(shutdownCtx))
		}()
	}

	if once {
		return service.RunOnce(ctx)
	}
	return service.Run(ctx)
}
