package apiv1

import (
	"github.com/gofiber/fiber/v2"

	// Delegate to existing controllers to keep behavior consistent
	"github.com/ManuelReschke/TenantFox/app/controllers"
)

// APIServer implements the ServerInterface
type APIServer struct {
	billing       *controllers.BillingController
	organizations *controllers.OrganizationController
}

// NewAPIServer creates a new API server instance
func NewAPIServer(billing *controllers.BillingController, organizations *controllers.OrganizationController) *APIServer {
	return &APIServer{
		billing:       billing,
		organizations: organizations,
	}
}

// GetPing handles the ping endpoint
func (s *APIServer) GetPing(c *fiber.Ctx) error {
	response := Pong{
		Ping: "pong",
	}

	return c.Status(fiber.StatusOK).JSON(response)
}

// GetBillingPlan returns the effective plan of the caller's active organization.
func (s *APIServer) GetBillingPlan(c *fiber.Ctx) error {
	return s.billing.HandleGetPlan(c)
}

// PutActiveOrganization switches the active organization of the session.
func (s *APIServer) PutActiveOrganization(c *fiber.Ctx) error {
	return s.organizations.HandleSwitchOrganization(c)
}
