package middleware

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/TenantFox/internal/pkg/tenantcontext"
)

// RequireAPISessionAuth ensures a logged-in session for API routes and returns JSON 401 instead of redirect.
func RequireAPISessionAuth(c *fiber.Ctx) error {
	if !tenantcontext.IsLoggedIn(c) {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error":   "unauthorized",
			"message": "login required",
		})
	}
	return c.Next()
}

// RequireOrganization ensures the logged-in user has an active organization.
func RequireOrganization(c *fiber.Ctx) error {
	if tenantcontext.Get(c).OrganizationID == "" {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error":   "no_active_organization",
			"message": "select an organization first",
		})
	}
	return c.Next()
}
