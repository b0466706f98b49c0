package router

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"github.com/ManuelReschke/TenantFox/app/controllers"
	apiv1 "github.com/ManuelReschke/TenantFox/internal/api/v1"
	"github.com/ManuelReschke/TenantFox/internal/pkg/constants"
	"github.com/ManuelReschke/TenantFox/internal/pkg/identity"
	"github.com/ManuelReschke/TenantFox/internal/pkg/middleware"
)

type ApiRouter struct {
	billing       *controllers.BillingController
	organizations *controllers.OrganizationController
	identity      *identity.Client
	plans         middleware.PlanSource
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	api := app.Group(constants.APIRoute,
		limiter.New(limiter.Config{Max: 60, Expiration: time.Minute}),
		middleware.TenantContext(h.identity, h.plans, time.Now),
	)
	api.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"message": "Hello from api",
		})
	})

	// API v1 routes
	v1 := api.Group(constants.APIv1Route)
	apiServer := apiv1.NewAPIServer(h.billing, h.organizations)
	apiv1.RegisterHandlers(v1, apiServer, apiv1.Middlewares{
		Authenticated: []fiber.Handler{middleware.RequireAPISessionAuth},
		Organization:  []fiber.Handler{middleware.RequireOrganization},
	})
}

func NewApiRouter(billing *controllers.BillingController, organizations *controllers.OrganizationController, client *identity.Client, plans middleware.PlanSource) *ApiRouter {
	return &ApiRouter{
		billing:       billing,
		organizations: organizations,
		identity:      client,
		plans:         plans,
	}
}
