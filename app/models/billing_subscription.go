package models

import "time"

// Plan tier codes.
const (
	PlanCodeFree    = "FREE"
	PlanCodeStarter = "STARTER"
	PlanCodePro     = "PRO"
	PlanCodeScale   = "SCALE"
)

const (
	BillingIntervalMonth   = "month"
	BillingIntervalYear    = "year"
	BillingIntervalUnknown = "unknown"
)

// Subscription states as reported by the payment provider.
const (
	BillingStatusFree     = "FREE"
	BillingStatusTrialing = "TRIALING"
	BillingStatusActive   = "ACTIVE"
	BillingStatusPastDue  = "PAST_DUE"
	BillingStatusCanceled = "CANCELED"
	BillingStatusExpired  = "EXPIRED"
)

// BillingSubscription is the per-organization subscription snapshot. It is
// written only by the webhook event applier; everything else reads it.
// TrialPlanCode is meaningful only while TRIALING and CurrentPeriodEnd only
// while ACTIVE or PAST_DUE.
type BillingSubscription struct {
	ID                     uint       `gorm:"primaryKey" json:"id"`
	OrganizationID         string     `gorm:"type:char(36);not null;uniqueIndex:ux_billing_subscriptions_org" json:"organization_id"`
	Provider               string     `gorm:"type:varchar(20);not null;index:idx_billing_subscriptions_provider_status,priority:1" json:"provider"`
	ProviderSubscriptionID string     `gorm:"type:varchar(191);not null;default:'';index" json:"provider_subscription_id"`
	PlanCode               string     `gorm:"type:varchar(20);not null;default:'FREE'" json:"plan_code"`
	TrialPlanCode          string     `gorm:"type:varchar(20);not null;default:''" json:"trial_plan_code"`
	BillingInterval        string     `gorm:"type:varchar(16);not null;default:'unknown'" json:"billing_interval"`
	Status                 string     `gorm:"type:varchar(20);not null;default:'FREE';index:idx_billing_subscriptions_provider_status,priority:2" json:"status"`
	TrialEndsAt            *time.Time `gorm:"type:timestamp;default:null" json:"trial_ends_at,omitempty"`
	CurrentPeriodEnd       *time.Time `gorm:"type:timestamp;default:null" json:"current_period_end,omitempty"`
	LastEventAt            *time.Time `gorm:"type:timestamp;default:null" json:"last_event_at,omitempty"`
	CreatedAt              time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt              time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}
