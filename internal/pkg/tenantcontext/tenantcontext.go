package tenantcontext

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/TenantFox/internal/pkg/billing"
	"github.com/ManuelReschke/TenantFox/internal/pkg/entitlements"
)

// LocalsKey is the fiber Locals key the tenant context is stored under.
const LocalsKey = "TENANT_CONTEXT"

// TenantContext is the per-request view of who is calling and what their
// organization may do. It is built fresh for every request.
type TenantContext struct {
	UserID         string                `json:"user_id"`
	OrganizationID string                `json:"organization_id"`
	IsLoggedIn     bool                  `json:"is_logged_in"`
	Plan           billing.EffectivePlan `json:"plan"`
	Limits         entitlements.Limits   `json:"limits"`
}

// Anonymous returns the context of a caller without a session.
func Anonymous() TenantContext {
	return WithPlan(TenantContext{}, billing.FreePlan)
}

// WithPlan sets the plan and the limits derived from it.
func WithPlan(tc TenantContext, plan billing.EffectivePlan) TenantContext {
	tc.Plan = plan
	tc.Limits = entitlements.ForPlan(plan.PlanCode)
	return tc
}

// Get retrieves the tenant context from fiber context.
// Returns an anonymous FREE context if none is set.
func Get(c *fiber.Ctx) TenantContext {
	if tc, ok := c.Locals(LocalsKey).(TenantContext); ok {
		return tc
	}
	return Anonymous()
}

func Set(c *fiber.Ctx, tc TenantContext) {
	c.Locals(LocalsKey, tc)
}

// IsLoggedIn checks if the current caller has a session.
func IsLoggedIn(c *fiber.Ctx) bool {
	return Get(c).IsLoggedIn
}
