package controllers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/TenantFox/internal/pkg/identity"
	"github.com/ManuelReschke/TenantFox/internal/pkg/session"
	"github.com/ManuelReschke/TenantFox/internal/pkg/tenantcontext"
)

// ActiveOrganizationRequest selects the organization subsequent requests act on.
type ActiveOrganizationRequest struct {
	OrganizationID string `json:"organization_id"`
}

// OrganizationController switches the active organization of a session.
type OrganizationController struct {
	identity *identity.Client
	store    func(c *fiber.Ctx, key, value string) error
}

func NewOrganizationController(client *identity.Client) *OrganizationController {
	return &OrganizationController{
		identity: client,
		store:    session.SetSessionValue,
	}
}

// HandleSwitchOrganization stores a new active organization after checking
// membership with the identity provider.
func (oc *OrganizationController) HandleSwitchOrganization(c *fiber.Ctx) error {
	tc := tenantcontext.Get(c)

	var req ActiveOrganizationRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "invalid request body"})
	}
	orgID, err := identity.NormalizeOrganizationID(req.OrganizationID)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "organization_id must be a UUID"})
	}

	member, err := oc.identity.IsMember(c.UserContext(), tc.UserID, orgID)
	if err != nil {
		if errors.Is(err, identity.ErrCapabilityUnavailable) {
			return c.Status(fiber.StatusNotImplemented).JSON(fiber.Map{"error": "capability_unavailable", "message": "identity provider cannot list organizations"})
		}
		log.Errorf("organization switch: membership lookup for user %s failed: %v", tc.UserID, err)
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "identity_unavailable"})
	}
	if !member {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "forbidden", "message": "not a member of this organization"})
	}

	if err := oc.store(c, identity.KeyOrganizationID, orgID); err != nil {
		log.Errorf("organization switch: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_error"})
	}
	return c.Status(fiber.StatusOK).JSON(ActiveOrganizationRequest{OrganizationID: orgID})
}
