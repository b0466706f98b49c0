package middleware

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/TenantFox/internal/pkg/billing"
	"github.com/ManuelReschke/TenantFox/internal/pkg/identity"
	"github.com/ManuelReschke/TenantFox/internal/pkg/tenantcontext"
)

// PlanSource resolves the effective plan of an organization at a point in time.
type PlanSource interface {
	ResolveOrganizationPlan(ctx context.Context, organizationID string, now time.Time) (billing.EffectivePlan, error)
}

// TenantContext builds the tenant context for every request. The plan is
// resolved against the current time on each request and only kept in Locals,
// so an expired trial or lapsed period stops granting access immediately.
func TenantContext(client *identity.Client, plans PlanSource, now func() time.Time) fiber.Handler {
	if now == nil {
		now = time.Now
	}
	return func(c *fiber.Ctx) error {
		tc := tenantcontext.Anonymous()

		userID, err := client.User(c)
		if err != nil {
			if !errors.Is(err, identity.ErrCapabilityUnavailable) {
				log.Warnf("tenant context: identity lookup failed: %v", err)
			}
			tenantcontext.Set(c, tc)
			return c.Next()
		}
		if userID == "" {
			tenantcontext.Set(c, tc)
			return c.Next()
		}
		tc.UserID = userID
		tc.IsLoggedIn = true

		orgID, err := client.Organization(c, userID)
		if err != nil {
			log.Warnf("tenant context: no usable organization for user %s: %v", userID, err)
		}
		tc.OrganizationID = orgID

		if orgID != "" && plans != nil {
			plan, err := plans.ResolveOrganizationPlan(c.UserContext(), orgID, now())
			if err != nil {
				log.Errorf("tenant context: plan lookup for organization %s failed, using FREE: %v", orgID, err)
				plan = billing.FreePlan
			}
			tc = tenantcontext.WithPlan(tc, plan)
		}

		tenantcontext.Set(c, tc)
		return c.Next()
	}
}
