package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/angelmondragon/platewise-backend/api/controllers"
	"github.com/angelmondragon/platewise-backend/api/routes"
	"github.com/angelmondragon/platewise-backend/internal/activity"
	"github.com/angelmondragon/platewise-backend/internal/images"
	"github.com/angelmondragon/platewise-backend/internal/ingest"
	"github.com/angelmondragon/platewise-backend/internal/meals"
	"github.com/angelmondragon/platewise-backend/internal/ratelimit"
	"github.com/angelmondragon/platewise-backend/internal/vision"
	"github.com/angelmondragon/platewise-backend/pkg/config"
	"github.com/angelmondragon/platewise-backend/pkg/db"
	"github.com/angelmondragon/platewise-backend/pkg/logger"
	"github.com/angelmondragon/platewise-backend/pkg/metrics"
	"github.com/angelmondragon/platewise-backend/pkg/migrate"
	"github.com/angelmondragon/platewise-backend/pkg/redis"
	"github.com/angelmondragon/platewise-backend/pkg/storage/s3"
)

const shutdownTimeout = 15 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Env:         cfg.App.Env,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logg); err != nil {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(ctx, "api server shut down gracefully")
}

func run(ctx context.Context, cfg *config.Config, logg *logger.Logger) (err error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewGoCollector(), prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, dbClient.Close()) }()

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		return err
	}

	readiness := map[string]controllers.Pinger{"db": dbClient, "redis": nil}

	var redisClient *redis.Client
	if cfg.Redis.Enabled() {
		redisClient, err = redis.New(ctx, cfg.Redis, logg)
		if err != nil {
			return err
		}
		defer func() { err = multierr.Append(err, redisClient.Close()) }()
		readiness["redis"] = redisClient
	}

	blobs, err := s3.New(ctx, cfg.S3, logg)
	if err != nil {
		return err
	}
	readiness["blob"] = blobs

	visionClient, err := vision.New(ctx, cfg.Gemini, cfg.Vision, logg, metrics.NewVisionMetrics(reg))
	if err != nil {
		return err
	}

	imagesRepo := images.NewRepository(dbClient.DB())
	imageSvc, err := images.NewService(images.Deps{
		Repo:   imagesRepo,
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

	mealSvc, err := meals.NewService(imagesRepo)
	if err != nil {
		return err
	}

	activitySvc, err := activity.NewService(activity.NewRepository(dbClient.DB()))
	if err != nil {
		return err
	}

	limiter, err := newLimiter(cfg.RateLimit, redisClient)
	if err != nil {
		return err
	}

	handler := routes.NewRouter(cfg, logg, routes.Dependencies{
		Images:    imageSvc,
		Meals:     mealSvc,
		Activity:  activitySvc,
		Limiter:   ratelimit.WithMetrics(limiter, metrics.NewRateLimitMetrics(reg)),
		Readiness: readiness,
		Metrics:   reg,
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	server := &http.Server{
		Addr:              ":" + port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveCtx := logg.WithFields(ctx, map[string]any{
		"env":        cfg.App.Env,
		"addr":       server.Addr,
		"rate_limit": cfg.RateLimit.Backend,
	})
	logg.Info(serveCtx, "starting api server")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func newLimiter(cfg config.RateLimitConfig, redisClient *redis.Client) (ratelimit.Limiter, error) {
	if cfg.UsesRedis() {
		if redisClient == nil {
			return nil, errors.New("redis rate limit backend selected but redis is not configured")
		}
		return ratelimit.NewRedis(redisClient, cfg.Window), nil
	}
	return ratelimit.NewMemory(
		ratelimit.WithWindow(cfg.Window),
		ratelimit.WithSweepInterval(cfg.SweepInterval),
	), nil
}
