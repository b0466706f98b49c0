package billing

import (
	"strings"

	"github.com/ManuelReschke/TenantFox/app/models"
)

// NormalizePlanCode maps free-form input onto a known tier code. Unknown codes
// become FREE.
func NormalizePlanCode(plan string) string {
	switch strings.ToUpper(strings.TrimSpace(plan)) {
	case models.PlanCodeStarter:
		return models.PlanCodeStarter
	case models.PlanCodePro:
		return models.PlanCodePro
	case models.PlanCodeScale:
		return models.PlanCodeScale
	default:
		return models.PlanCodeFree
	}
}

// isKnownPlanCode reports whether plan names a tier, FREE included.
func isKnownPlanCode(plan string) bool {
	p := strings.ToUpper(strings.TrimSpace(plan))
	return p != "" && NormalizePlanCode(p) == p
}

// IsPaidTier reports whether a plan code is a paid tier. Every tier except FREE is paid.
func IsPaidTier(plan string) bool {
	return NormalizePlanCode(plan) != models.PlanCodeFree
}

func normalizeInterval(interval string) string {
	i := strings.ToLower(strings.TrimSpace(interval))
	switch i {
	case models.BillingIntervalMonth, models.BillingIntervalYear:
		return i
	default:
		return models.BillingIntervalUnknown
	}
}

// normalizeStatus upper-cases provider status strings; unknown values return "".
func normalizeStatus(status string) string {
	s := strings.ToUpper(strings.TrimSpace(status))
	switch s {
	case models.BillingStatusFree,
		models.BillingStatusTrialing,
		models.BillingStatusActive,
		models.BillingStatusPastDue,
		models.BillingStatusCanceled,
		models.BillingStatusExpired:
		return s
	default:
		return ""
	}
}

// hasPaidPeriod reports whether CurrentPeriodEnd is meaningful for status.
func hasPaidPeriod(status string) bool {
	return status == models.BillingStatusActive || status == models.BillingStatusPastDue
}
