package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/proofpulse/proofpulse-backend/api/controllers"
	"github.com/proofpulse/proofpulse-backend/api/middleware"
	"github.com/proofpulse/proofpulse-backend/internal/stream"
	"github.com/proofpulse/proofpulse-backend/pkg/config"
	"github.com/proofpulse/proofpulse-backend/pkg/logger"
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	readyChecks map[string]controllers.Pinger,
	webhookService controllers.WebhookService,
	streamServer *stream.Server,
	registrar controllers.SiteRegistrar,
	promRegistry *prometheus.Registry,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, readyChecks))
	})

	if promRegistry != nil {
		r.Handle("/metrics", promhttp.HandlerFor(promRegistry, promhttp.HandlerOpts{}))
	}

	r.Post("/webhooks/{provider}/orders/create", controllers.ProviderWebhook(webhookService, logg))

	r.Route("/notifications", func(r chi.Router) {
		r.Get("/stream", controllers.NotificationStreamRedirect(logg))
		r.Get("/stream/{siteID}", controllers.NotificationStream(streamServer, logg))
	})

	r.Post("/admin/sites", controllers.RegisterSite(registrar, logg))

	return r
}
