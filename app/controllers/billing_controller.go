package controllers

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/TenantFox/internal/pkg/entitlements"
	"github.com/ManuelReschke/TenantFox/internal/pkg/tenantcontext"
)

// OutcomeCounts exposes the webhook outcome counters.
type OutcomeCounts interface {
	Counts(ctx context.Context) (map[string]int64, error)
	Drain(ctx context.Context) (map[string]int64, error)
}

// PlanResponse is the effective plan of the caller's active organization.
type PlanResponse struct {
	OrganizationID string              `json:"organization_id"`
	PlanCode       string              `json:"plan_code"`
	IsPaid         bool                `json:"is_paid"`
	Limits         entitlements.Limits `json:"limits"`
}

// BillingController serves the webhook endpoint and plan lookups.
type BillingController struct {
	webhook  fiber.Handler
	outcomes OutcomeCounts
}

// NewBillingController wires the webhook handler (usually admission.Pipeline.Handle)
// and the optional outcome counters.
func NewBillingController(webhook fiber.Handler, outcomes OutcomeCounts) *BillingController {
	return &BillingController{
		webhook:  webhook,
		outcomes: outcomes,
	}
}

// HandleBillingWebhook admits provider events. Credentials are verified by the
// admission pipeline, so the route carries no session or CSRF middleware.
func (bc *BillingController) HandleBillingWebhook(c *fiber.Ctx) error {
	return bc.webhook(c)
}

// HandleGetPlan returns the effective plan resolved for this request.
func (bc *BillingController) HandleGetPlan(c *fiber.Ctx) error {
	tc := tenantcontext.Get(c)
	return c.Status(fiber.StatusOK).JSON(PlanResponse{
		OrganizationID: tc.OrganizationID,
		PlanCode:       tc.Plan.PlanCode,
		IsPaid:         tc.Plan.IsPaid,
		Limits:         tc.Limits,
	})
}

// HandleWebhookStats returns the webhook outcome counters. ?reset=true drains them.
func (bc *BillingController) HandleWebhookStats(c *fiber.Ctx) error {
	if bc.outcomes == nil {
		return c.Status(fiber.StatusNotImplemented).JSON(fiber.Map{"error": "not_configured"})
	}

	read := bc.outcomes.Counts
	if c.QueryBool("reset") {
		read = bc.outcomes.Drain
	}
	counts, err := read(c.UserContext())
	if err != nil {
		log.Errorf("webhook stats: %v", err)
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "counters_unavailable"})
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"outcomes": counts})
}
