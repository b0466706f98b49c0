package router

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/gofiber/fiber/v2/middleware/basicauth"
	"github.com/gofiber/fiber/v2/middleware/monitor"

	"github.com/ManuelReschke/TenantFox/internal/pkg/constants"
)

func (h HttpRouter) registerPublicRoutes(app *fiber.App) {
	// Billing provider webhooks (no session, no CSRF; credentials verified by the admission pipeline)
	app.Post(constants.BillingWebhookRoute, h.billing.HandleBillingWebhook)
}

func (h HttpRouter) registerMetricsRoutes(app *fiber.App) {
	if h.metricsUser == "" || h.metricsPassword == "" {
		log.Warn("METRICS_USER/METRICS_PASSWORD not set, /metrics disabled")
		return
	}

	metrics := app.Group(constants.MetricsRoute, basicauth.New(basicauth.Config{
		Users: map[string]string{
			h.metricsUser: h.metricsPassword,
		},
	}))
	metrics.Get("/", monitor.New())
	metrics.Get("/webhooks", h.billing.HandleWebhookStats)
}
