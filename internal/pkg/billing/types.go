package billing

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/ManuelReschke/TenantFox/app/models"
)

// Provider event types that carry a subscription snapshot.
const (
	EventSubscriptionCreated       = "subscription.created"
	EventSubscriptionUpdated       = "subscription.updated"
	EventSubscriptionTrialStarted  = "subscription.trial_started"
	EventSubscriptionCanceled      = "subscription.canceled"
	EventSubscriptionExpired       = "subscription.expired"
	EventSubscriptionPaymentFailed = "subscription.payment_failed"
)

// ErrInvalidEvent marks a payload that is valid JSON but not a usable provider event.
var ErrInvalidEvent = errors.New("invalid provider event")

var validate = validator.New()

// ApplyResult is what the event applier reports back to the admission pipeline.
type ApplyResult struct {
	Duplicate bool `json:"duplicate"`
	Processed bool `json:"processed"`
}

// ProviderEvent is the webhook body sent by the payment provider.
type ProviderEvent struct {
	ID        string                `json:"id" validate:"max=191"`
	Type      string                `json:"type" validate:"required,max=100"`
	CreatedAt *time.Time            `json:"created_at"`
	Data      SubscriptionEventData `json:"data"`
}

// SubscriptionEventData is the subscription state carried by subscription.* events.
type SubscriptionEventData struct {
	OrganizationID   string     `json:"organization_id" validate:"required,max=36"`
	PlanCode         string     `json:"plan_code" validate:"max=20"`
	PlanRef          string     `json:"plan_ref" validate:"max=191"`
	BillingInterval  string     `json:"billing_interval" validate:"max=16"`
	TrialPlanCode    string     `json:"trial_plan_code" validate:"max=20"`
	Status           string     `json:"status" validate:"max=20"`
	TrialEndsAt      *time.Time `json:"trial_ends_at"`
	CurrentPeriodEnd *time.Time `json:"current_period_end"`
	CustomerID       string     `json:"customer_id" validate:"max=191"`
	SubscriptionID   string     `json:"subscription_id" validate:"max=191"`
}

// ParseProviderEvent decodes a raw webhook body. Only subscription events are
// validated beyond the envelope; other types are returned as-is so they can be
// recorded and skipped.
func ParseProviderEvent(raw []byte) (*ProviderEvent, error) {
	var evt ProviderEvent
	if err := json.Unmarshal(raw, &evt); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}
	evt.ID = strings.TrimSpace(evt.ID)
	evt.Type = strings.ToLower(strings.TrimSpace(evt.Type))

	if !IsSubscriptionEvent(evt.Type) {
		if err := validate.Var(evt.Type, "required,max=100"); err != nil {
			return &evt, fmt.Errorf("%w: type: %v", ErrInvalidEvent, err)
		}
		return &evt, nil
	}

	if err := validate.Struct(&evt); err != nil {
		return &evt, fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}

	orgID, err := uuid.Parse(strings.TrimSpace(evt.Data.OrganizationID))
	if err != nil {
		return &evt, fmt.Errorf("%w: organization_id: %v", ErrInvalidEvent, err)
	}
	evt.Data.OrganizationID = orgID.String()

	status := normalizeStatus(evt.Data.Status)
	if status == "" && strings.TrimSpace(evt.Data.Status) == "" {
		status = statusForEventType(evt.Type)
	}
	if status == "" {
		return &evt, fmt.Errorf("%w: unsupported status %q", ErrInvalidEvent, evt.Data.Status)
	}
	evt.Data.Status = status
	return &evt, nil
}

// IsSubscriptionEvent reports whether eventType carries a subscription snapshot.
func IsSubscriptionEvent(eventType string) bool {
	switch strings.ToLower(strings.TrimSpace(eventType)) {
	case EventSubscriptionCreated,
		EventSubscriptionUpdated,
		EventSubscriptionTrialStarted,
		EventSubscriptionCanceled,
		EventSubscriptionExpired,
		EventSubscriptionPaymentFailed:
		return true
	default:
		return false
	}
}

// statusForEventType is the implied status for events sent without one.
func statusForEventType(eventType string) string {
	switch eventType {
	case EventSubscriptionTrialStarted:
		return models.BillingStatusTrialing
	case EventSubscriptionCanceled:
		return models.BillingStatusCanceled
	case EventSubscriptionExpired:
		return models.BillingStatusExpired
	case EventSubscriptionPaymentFailed:
		return models.BillingStatusPastDue
	default:
		return ""
	}
}
