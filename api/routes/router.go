package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/platewise-backend/api/controllers"
	"github.com/angelmondragon/platewise-backend/api/middleware"
	"github.com/angelmondragon/platewise-backend/internal/ratelimit"
	"github.com/angelmondragon/platewise-backend/pkg/config"
	"github.com/angelmondragon/platewise-backend/pkg/logger"
)

// Dependencies are the services the HTTP surface is built from. Readiness
// entries left nil are reported as disabled.
type Dependencies struct {
	Images    controllers.ImageService
	Meals     controllers.MealService
	Activity  controllers.ActivityService
	Limiter   ratelimit.Limiter
	Readiness map[string]controllers.Pinger
	Metrics   prometheus.Gatherer
}

func NewRouter(cfg *config.Config, logg *logger.Logger, deps Dependencies) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.CORS.AllowedOrigins),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, deps.Readiness))
	})

	gatherer := deps.Metrics
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	maxUpload := cfg.Media.MaxUploadBytes()
	publicMaxUpload := cfg.Media.PublicMaxUploadBytes()

	// config.Load has already rejected malformed entries
	trustedProxies, _ := cfg.RateLimit.TrustedProxyPrefixes()

	r.Route("/api/public", func(r chi.Router) {
		r.With(middleware.DailyRateLimit(deps.Limiter, cfg.RateLimit.PublicDaily, trustedProxies, logg)).
			Post("/analyze-food", controllers.PublicAnalyzeFood(deps.Images, publicMaxUpload, logg))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))

		r.Route("/images", func(r chi.Router) {
			r.Post("/", controllers.ImagesUpload(deps.Images, maxUpload, logg))
			r.Post("/with-analysis", controllers.ImagesUploadWithAnalysis(deps.Images, maxUpload, logg))
			r.Post("/analyze-only", controllers.ImagesAnalyzeOnly(deps.Images, maxUpload, logg))
			r.Get("/", controllers.ImagesList(deps.Images, logg))
			r.Get("/{id}", controllers.ImagesGet(deps.Images, logg))
			r.Delete("/{id}", controllers.ImagesDelete(deps.Images, logg))
			r.Patch("/{id}/meal", controllers.ImagesSetMeal(deps.Images, logg))
			r.Post("/{id}/analyze", controllers.ImagesReanalyze(deps.Images, logg))
			r.Get("/{id}/diagnostics", controllers.ImagesDiagnostics(deps.Images, logg))
		})

		r.Get("/meals/summary", controllers.MealsSummary(deps.Meals, logg))

		r.Route("/activity", func(r chi.Router) {
			r.Post("/", controllers.ActivityCreate(deps.Activity, logg))
			r.Get("/", controllers.ActivityList(deps.Activity, logg))
			r.Get("/summary/range", controllers.ActivitySummaryRange(deps.Activity, logg))
			r.Get("/summary/recent", controllers.ActivitySummaryRecent(deps.Activity, logg))
			r.Get("/summary/breakdown", controllers.ActivitySummaryBreakdown(deps.Activity, logg))
			r.Get("/date/{date}", controllers.ActivityGetByDate(deps.Activity, logg))
			r.Get("/{id}", controllers.ActivityGet(deps.Activity, logg))
			r.Put("/{id}", controllers.ActivityUpdate(deps.Activity, logg))
			r.Delete("/{id}", controllers.ActivityDelete(deps.Activity, logg))
		})
	})

	return r
}
