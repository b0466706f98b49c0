package billing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/ManuelReschke/TenantFox/app/models"
)

func tp(t time.Time) *time.Time { return &t }

func TestResolveEffectivePlan(t *testing.T) {
	today := time.Date(2026, 5, 10, 9, 0, 0, 0, time.UTC)
	tomorrow := today.Add(24 * time.Hour)
	yesterday := today.Add(-24 * time.Hour)

	tests := []struct {
		name string
		snap *models.BillingSubscription
		now  time.Time
		want EffectivePlan
	}{
		{
			name: "no snapshot",
			snap: nil,
			now:  today,
			want: EffectivePlan{PlanCode: "FREE", IsPaid: false},
		},
		{
			name: "running trial grants trial plan",
			snap: &models.BillingSubscription{Status: "TRIALING", TrialPlanCode: "PRO", TrialEndsAt: tp(tomorrow)},
			now:  today,
			want: EffectivePlan{PlanCode: "PRO", IsPaid: true},
		},
		{
			name: "trial one second past end",
			snap: &models.BillingSubscription{Status: "TRIALING", TrialPlanCode: "PRO", TrialEndsAt: tp(tomorrow)},
			now:  tomorrow.Add(time.Second),
			want: EffectivePlan{PlanCode: "FREE", IsPaid: false},
		},
		{
			name: "trial ending exactly now is over",
			snap: &models.BillingSubscription{Status: "TRIALING", TrialPlanCode: "PRO", TrialEndsAt: tp(today)},
			now:  today,
			want: FreePlan,
		},
		{
			name: "trial without plan code",
			snap: &models.BillingSubscription{Status: "TRIALING", TrialEndsAt: tp(tomorrow), PlanCode: "SCALE"},
			now:  today,
			want: FreePlan,
		},
		{
			name: "trial without end date",
			snap: &models.BillingSubscription{Status: "TRIALING", TrialPlanCode: "STARTER"},
			now:  today,
			want: FreePlan,
		},
		{
			name: "active subscription within period",
			snap: &models.BillingSubscription{Status: "ACTIVE", PlanCode: "SCALE", CurrentPeriodEnd: tp(tomorrow)},
			now:  today,
			want: EffectivePlan{PlanCode: "SCALE", IsPaid: true},
		},
		{
			name: "past due still within period",
			snap: &models.BillingSubscription{Status: "PAST_DUE", PlanCode: "STARTER", CurrentPeriodEnd: tp(tomorrow)},
			now:  today,
			want: EffectivePlan{PlanCode: "STARTER", IsPaid: true},
		},
		{
			name: "lapsed period overrides stored plan",
			snap: &models.BillingSubscription{Status: "ACTIVE", PlanCode: "SCALE", CurrentPeriodEnd: tp(yesterday)},
			now:  today,
			want: FreePlan,
		},
		{
			name: "active without period end",
			snap: &models.BillingSubscription{Status: "ACTIVE", PlanCode: "PRO"},
			now:  today,
			want: FreePlan,
		},
		{
			name: "cancellation wins over future period end",
			snap: &models.BillingSubscription{Status: "CANCELED", PlanCode: "PRO", CurrentPeriodEnd: tp(tomorrow)},
			now:  today,
			want: FreePlan,
		},
		{
			name: "expired",
			snap: &models.BillingSubscription{Status: "EXPIRED", PlanCode: "PRO", CurrentPeriodEnd: tp(tomorrow)},
			now:  today,
			want: FreePlan,
		},
		{
			name: "free status",
			snap: &models.BillingSubscription{Status: "FREE", PlanCode: "PRO", CurrentPeriodEnd: tp(tomorrow)},
			now:  today,
			want: FreePlan,
		},
		{
			name: "unknown status",
			snap: &models.BillingSubscription{Status: "PAUSED", PlanCode: "PRO", CurrentPeriodEnd: tp(tomorrow)},
			now:  today,
			want: FreePlan,
		},
		{
			name: "lower-case status from legacy rows",
			snap: &models.BillingSubscription{Status: "active", PlanCode: "pro", CurrentPeriodEnd: tp(tomorrow)},
			now:  today,
			want: EffectivePlan{PlanCode: "PRO", IsPaid: true},
		},
		{
			name: "unknown plan code in active period",
			snap: &models.BillingSubscription{Status: "ACTIVE", PlanCode: "GOLD", CurrentPeriodEnd: tp(tomorrow)},
			now:  today,
			want: FreePlan,
		},
		{
			name: "trial plan ignored outside trialing status",
			snap: &models.BillingSubscription{Status: "ACTIVE", PlanCode: "STARTER", TrialPlanCode: "SCALE", TrialEndsAt: tp(tomorrow), CurrentPeriodEnd: tp(tomorrow)},
			now:  today,
			want: EffectivePlan{PlanCode: "STARTER", IsPaid: true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ResolveEffectivePlan(tt.snap, tt.now))
		})
	}
}

func TestResolveEffectivePlanTracksClock(t *testing.T) {
	end := time.Date(2026, 1, 31, 0, 0, 0, 0, time.UTC)
	snap := &models.BillingSubscription{Status: "ACTIVE", PlanCode: "PRO", CurrentPeriodEnd: &end}

	assert.True(t, ResolveEffectivePlan(snap, end.Add(-time.Nanosecond)).IsPaid)
	assert.False(t, ResolveEffectivePlan(snap, end).IsPaid)
}
