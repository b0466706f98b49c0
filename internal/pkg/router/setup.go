package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/TenantFox/app/controllers"
	"github.com/ManuelReschke/TenantFox/internal/pkg/identity"
	"github.com/ManuelReschke/TenantFox/internal/pkg/middleware"
)

// Router registers a group of routes on the app.
type Router interface {
	InstallRouter(app *fiber.App)
}

// Deps are the collaborators the routes are built from.
type Deps struct {
	// Webhook handles POST /webhooks/billing, usually admission.Pipeline.Handle.
	Webhook  fiber.Handler
	Plans    middleware.PlanSource
	Identity *identity.Client
	Outcomes controllers.OutcomeCounts

	MetricsUser     string
	MetricsPassword string
}

func InstallRouter(app *fiber.App, deps Deps) {
	// HttpRouter first: the webhook must not pass through the tenant context
	// middleware that the ApiRouter installs on its group.
	billing := controllers.NewBillingController(deps.Webhook, deps.Outcomes)
	setup(app,
		NewHttpRouter(billing, deps.MetricsUser, deps.MetricsPassword),
		NewApiRouter(billing, controllers.NewOrganizationController(deps.Identity), deps.Identity, deps.Plans),
	)
}

func setup(app *fiber.App, router ...Router) {
	for _, r := range router {
		r.InstallRouter(app)
	}
}
