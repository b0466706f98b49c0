package apiv1

import "github.com/gofiber/fiber/v2"

// Pong defines model for Pong.
type Pong struct {
	Ping string `json:"ping"`
}

// ServerInterface represents all server handlers of /api/v1 as documented in
// public/docs/v1/openapi.yml.
type ServerInterface interface {
	// (GET /ping)
	GetPing(c *fiber.Ctx) error
	// (GET /billing/plan)
	GetBillingPlan(c *fiber.Ctx) error
	// (PUT /organizations/active)
	PutActiveOrganization(c *fiber.Ctx) error
}

// Middlewares guard the v1 operations. Authenticated runs for every operation
// that needs a session, Organization additionally for organization-scoped ones.
type Middlewares struct {
	Authenticated []fiber.Handler
	Organization  []fiber.Handler
}

// RegisterHandlers mounts the v1 operations on router.
func RegisterHandlers(router fiber.Router, si ServerInterface, mw Middlewares) {
	scoped := chain(mw.Authenticated, mw.Organization...)

	router.Get("/ping", si.GetPing)
	router.Get("/billing/plan", chain(scoped, si.GetBillingPlan)...)
	router.Put("/organizations/active", chain(mw.Authenticated, si.PutActiveOrganization)...)
}

func chain(middlewares []fiber.Handler, h ...fiber.Handler) []fiber.Handler {
	out := make([]fiber.Handler, 0, len(middlewares)+len(h))
	out = append(out, middlewares...)
	return append(out, h...)
}
