package billing

import (
	"time"

	"github.com/ManuelReschke/TenantFox/app/models"
)

// EffectivePlan is the plan an organization qualifies for at a given instant.
// It is derived on every call and never persisted.
type EffectivePlan struct {
	PlanCode string `json:"plan_code"`
	IsPaid   bool   `json:"is_paid"`
}

// FreePlan is the fallback for missing, lapsed, cancelled, or unrecognized snapshots.
var FreePlan = EffectivePlan{PlanCode: models.PlanCodeFree, IsPaid: false}

// ResolveEffectivePlan maps a subscription snapshot and the current time to the
// effective plan. A running trial grants the trial plan, an active or past-due
// subscription grants its plan until the period ends, and everything else is
// FREE. The result depends on now, so callers must not cache it across requests.
func ResolveEffectivePlan(snap *models.BillingSubscription, now time.Time) EffectivePlan {
	if snap == nil {
		return FreePlan
	}

	status := normalizeStatus(snap.Status)

	if status == models.BillingStatusTrialing &&
		snap.TrialPlanCode != "" &&
		snap.TrialEndsAt != nil &&
		snap.TrialEndsAt.After(now) {
		return planOf(snap.TrialPlanCode)
	}

	if hasPaidPeriod(status) &&
		snap.CurrentPeriodEnd != nil &&
		snap.CurrentPeriodEnd.After(now) {
		return planOf(snap.PlanCode)
	}

	return FreePlan
}

func planOf(code string) EffectivePlan {
	plan := NormalizePlanCode(code)
	return EffectivePlan{PlanCode: plan, IsPaid: IsPaidTier(plan)}
}
