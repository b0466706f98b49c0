package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/TenantFox/app/controllers"
)

type HttpRouter struct {
	billing         *controllers.BillingController
	metricsUser     string
	metricsPassword string
}

func (h HttpRouter) InstallRouter(app *fiber.App) {
	h.registerPublicRoutes(app)
	h.registerMetricsRoutes(app)
}

func NewHttpRouter(billing *controllers.BillingController, metricsUser, metricsPassword string) *HttpRouter {
	return &HttpRouter{
		billing:         billing,
		metricsUser:     metricsUser,
		metricsPassword: metricsPassword,
	}
}
