package billing

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/ManuelReschke/TenantFox/app/models"
)

// Service applies verified provider events to subscription snapshots and
// serves snapshots to the plan resolver.
type Service struct {
	repo     Repository
	provider string
}

// NewService creates a billing service from an injected repository.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, provider: models.BillingProviderDefault}
}

// NewServiceFromDB creates a billing service from a GORM DB handle.
func NewServiceFromDB(db *gorm.DB) *Service {
	return NewService(NewRepository(db))
}

// ApplyVerifiedEvent records a verified webhook payload and applies its
// business effect at most once per provider event id. Replays report
// Duplicate. Recognized but unusable events are recorded with their error and
// reported as not processed so the provider stops redelivering them. Errors
// from the store roll back the event record, so a provider retry re-applies it.
func (s *Service) ApplyVerifiedEvent(ctx context.Context, payload json.RawMessage) (ApplyResult, error) {
	evt, parseErr := ParseProviderEvent(payload)

	record := &models.BillingWebhookEvent{
		Provider:        s.provider,
		ProviderEventID: eventIDFor(evt, payload),
		PayloadJSON:     string(payload),
	}
	if evt != nil {
		record.EventType = truncate(evt.Type, 100)
		if parseErr == nil {
			record.OrganizationID = evt.Data.OrganizationID
		}
	}

	var result ApplyResult
	err := s.repo.Transaction(ctx, func(tx Repository) error {
		created, stored, err := tx.CreateWebhookEventIfNotExists(record)
		if err != nil {
			return err
		}
		if !created {
			result.Duplicate = true
			return nil
		}

		if parseErr != nil {
			log.Warnf("billing: event %s rejected: %v", stored.ProviderEventID, parseErr)
			return tx.MarkWebhookProcessed(stored.ID, false, parseErr.Error())
		}
		if !IsSubscriptionEvent(evt.Type) {
			log.Infof("billing: event %s of type %q ignored", stored.ProviderEventID, evt.Type)
			return tx.MarkWebhookProcessed(stored.ID, false, "")
		}

		applied, err := s.applySubscriptionEvent(ctx, tx, evt)
		if err != nil {
			return err
		}
		result.Processed = applied
		return tx.MarkWebhookProcessed(stored.ID, applied, "")
	})
	if err != nil {
		return ApplyResult{}, err
	}
	return result, nil
}

// applySubscriptionEvent upserts the organization snapshot. It returns false
// for events older than the last applied one, since providers do not
// guarantee delivery order.
func (s *Service) applySubscriptionEvent(ctx context.Context, tx Repository, evt *ProviderEvent) (bool, error) {
	data := evt.Data

	// The row lock orders concurrent events for one organization. Two first
	// events for an organization without a row collide on the insert and one
	// of them fails, so the provider redelivers it.
	current, err := tx.LockSubscriptionByOrganization(ctx, data.OrganizationID)
	if err != nil {
		return false, err
	}
	if current != nil && current.LastEventAt != nil && evt.CreatedAt != nil && evt.CreatedAt.Before(*current.LastEventAt) {
		log.Infof("billing: stale event %s for organization %s skipped", evt.ID, data.OrganizationID)
		return false, nil
	}

	planCode, err := s.resolvePlanCode(ctx, tx, data)
	if err != nil {
		return false, err
	}

	sub := &models.BillingSubscription{
		OrganizationID:         data.OrganizationID,
		Provider:               s.provider,
		ProviderSubscriptionID: strings.TrimSpace(data.SubscriptionID),
		PlanCode:               planCode,
		BillingInterval:        normalizeInterval(data.BillingInterval),
		Status:                 data.Status,
		LastEventAt:            evt.CreatedAt,
	}
	if sub.LastEventAt == nil && current != nil {
		// Undated events keep the watermark of the last dated one.
		sub.LastEventAt = current.LastEventAt
	}
	if data.Status == models.BillingStatusTrialing {
		if isKnownPlanCode(data.TrialPlanCode) {
			sub.TrialPlanCode = NormalizePlanCode(data.TrialPlanCode)
		}
		sub.TrialEndsAt = data.TrialEndsAt
	}
	if hasPaidPeriod(data.Status) {
		sub.CurrentPeriodEnd = data.CurrentPeriodEnd
	}

	if err := tx.UpsertSubscription(sub); err != nil {
		return false, err
	}

	if customerID := strings.TrimSpace(data.CustomerID); customerID != "" {
		if err := tx.UpsertCustomer(&models.BillingCustomer{
			OrganizationID:     data.OrganizationID,
			Provider:           s.provider,
			ProviderCustomerID: customerID,
		}); err != nil {
			return false, err
		}
	}

	log.Infof("billing: organization %s now %s/%s", data.OrganizationID, sub.Status, sub.PlanCode)
	return true, nil
}

// resolvePlanCode prefers an explicit plan code and falls back to the price
// mapping table for events that only carry a provider price ref.
func (s *Service) resolvePlanCode(ctx context.Context, tx Repository, data SubscriptionEventData) (string, error) {
	if isKnownPlanCode(data.PlanCode) {
		return NormalizePlanCode(data.PlanCode), nil
	}
	if strings.TrimSpace(data.PlanRef) == "" {
		return models.PlanCodeFree, nil
	}
	plan, err := s.resolveMappedPlan(ctx, tx, data.PlanRef, data.BillingInterval)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			log.Warnf("billing: no plan mapping for ref %q, falling back to FREE", data.PlanRef)
			return models.PlanCodeFree, nil
		}
		return "", err
	}
	return plan, nil
}

// resolveMappedPlan resolves a provider price ref to an internal plan code.
func (s *Service) resolveMappedPlan(ctx context.Context, repo Repository, providerPlanRef, interval string) (string, error) {
	_ = ctx
	ref := strings.TrimSpace(providerPlanRef)
	i := normalizeInterval(interval)
	if ref == "" {
		return models.PlanCodeFree, errors.New("provider plan ref is required")
	}

	// Prefer exact interval match.
	m, err := repo.FindActivePlanMapping(s.provider, ref, i)
	if err == nil {
		return NormalizePlanCode(m.PlanCode), nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return "", err
	}

	// Fallback for mappings that intentionally use "unknown".
	m, err = repo.FindActivePlanMapping(s.provider, ref, models.BillingIntervalUnknown)
	if err == nil {
		return NormalizePlanCode(m.PlanCode), nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.PlanCodeFree, gorm.ErrRecordNotFound
	}
	return "", err
}

// GetSnapshot returns the stored subscription snapshot of an organization, or
// nil when it never had one.
func (s *Service) GetSnapshot(ctx context.Context, organizationID string) (*models.BillingSubscription, error) {
	orgID := strings.TrimSpace(organizationID)
	if orgID == "" {
		return nil, errors.New("organization_id is required")
	}
	return s.repo.GetSubscriptionByOrganization(ctx, orgID)
}

// ResolveOrganizationPlan reads the latest snapshot and resolves it against now.
func (s *Service) ResolveOrganizationPlan(ctx context.Context, organizationID string, now time.Time) (EffectivePlan, error) {
	snap, err := s.GetSnapshot(ctx, organizationID)
	if err != nil {
		return FreePlan, err
	}
	return ResolveEffectivePlan(snap, now), nil
}

// eventIDFor returns the provider event id, or a content hash when the
// payload carries none (or one too long for the idempotency index).
func eventIDFor(evt *ProviderEvent, payload []byte) string {
	if evt != nil && evt.ID != "" && len(evt.ID) <= 191 {
		return evt.ID
	}
	sum := sha256.Sum256(payload)
	return "hash:" + hex.EncodeToString(sum[:])
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
