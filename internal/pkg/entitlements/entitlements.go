package entitlements

import (
	"strings"

	"github.com/ManuelReschke/TenantFox/app/models"
)

// Unlimited marks a limit without an upper bound.
const Unlimited = -1

// Limits are the quotas an organization gets from its effective plan.
type Limits struct {
	MaxInventoryItems   int   `json:"max_inventory_items"`
	MaxMembers          int   `json:"max_members"`
	MaxImageUploadBytes int64 `json:"max_image_upload_bytes"`
}

var planLimits = map[string]Limits{
	models.PlanCodeFree: {
		MaxInventoryItems:   100,
		MaxMembers:          1,
		MaxImageUploadBytes: 2 << 20,
	},
	models.PlanCodeStarter: {
		MaxInventoryItems:   1000,
		MaxMembers:          3,
		MaxImageUploadBytes: 5 << 20,
	},
	models.PlanCodePro: {
		MaxInventoryItems:   10000,
		MaxMembers:          10,
		MaxImageUploadBytes: 10 << 20,
	},
	models.PlanCodeScale: {
		MaxInventoryItems:   Unlimited,
		MaxMembers:          Unlimited,
		MaxImageUploadBytes: 25 << 20,
	},
}

// ForPlan returns the limits of a plan code. Unknown codes get the FREE limits.
func ForPlan(planCode string) Limits {
	if l, ok := planLimits[strings.ToUpper(strings.TrimSpace(planCode))]; ok {
		return l
	}
	return planLimits[models.PlanCodeFree]
}

// AllowsInventoryItems reports whether one more item fits when current items exist.
func (l Limits) AllowsInventoryItems(current int) bool {
	return within(l.MaxInventoryItems, current)
}

// AllowsMembers reports whether one more member fits when current members exist.
func (l Limits) AllowsMembers(current int) bool {
	return within(l.MaxMembers, current)
}

// AllowsUpload reports whether a single upload of size bytes is permitted.
func (l Limits) AllowsUpload(size int64) bool {
	return size >= 0 && size <= l.MaxImageUploadBytes
}

func within(limit, current int) bool {
	if limit == Unlimited {
		return true
	}
	return current < limit
}
