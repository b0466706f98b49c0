package billing

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ManuelReschke/TenantFox/app/models"
)

// Repository provides DB operations used by the billing service.
type Repository interface {
	FindActivePlanMapping(provider, providerPlanRef, interval string) (*models.BillingPlanMapping, error)
	// GetSubscriptionByOrganization returns nil, nil when the organization has no snapshot.
	GetSubscriptionByOrganization(ctx context.Context, organizationID string) (*models.BillingSubscription, error)
	// LockSubscriptionByOrganization is GetSubscriptionByOrganization with
	// SELECT ... FOR UPDATE. Only meaningful inside Transaction.
	LockSubscriptionByOrganization(ctx context.Context, organizationID string) (*models.BillingSubscription, error)
	UpsertSubscription(sub *models.BillingSubscription) error
	UpsertCustomer(customer *models.BillingCustomer) error
	CreateWebhookEventIfNotExists(event *models.BillingWebhookEvent) (bool, *models.BillingWebhookEvent, error)
	MarkWebhookProcessed(id uint, applied bool, processingError string) error
	// Transaction runs fn against a repository bound to one DB transaction.
	// Any error returned by fn rolls back every write made through it.
	Transaction(ctx context.Context, fn func(tx Repository) error) error
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a billing repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) FindActivePlanMapping(provider, providerPlanRef, interval string) (*models.BillingPlanMapping, error) {
	var m models.BillingPlanMapping
	err := r.db.
		Where("provider = ? AND provider_plan_ref = ? AND billing_interval = ? AND is_active = ?", provider, providerPlanRef, interval, true).
		First(&m).Error
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *gormRepository) GetSubscriptionByOrganization(ctx context.Context, organizationID string) (*models.BillingSubscription, error) {
	return r.findSubscription(r.db.WithContext(ctx), organizationID)
}

func (r *gormRepository) LockSubscriptionByOrganization(ctx context.Context, organizationID string) (*models.BillingSubscription, error) {
	return r.findSubscription(r.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}), organizationID)
}

func (r *gormRepository) findSubscription(db *gorm.DB, organizationID string) (*models.BillingSubscription, error) {
	var sub models.BillingSubscription
	err := db.Where("organization_id = ?", organizationID).First(&sub).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &sub, nil
}

func (r *gormRepository) UpsertSubscription(sub *models.BillingSubscription) error {
	if err := r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "organization_id"},
		},
		DoUpdates: clause.AssignmentColumns([]string{
			"provider",
			"provider_subscription_id",
			"plan_code",
			"trial_plan_code",
			"billing_interval",
			"status",
			"trial_ends_at",
			"current_period_end",
			"last_event_at",
			"updated_at",
		}),
	}).Create(sub).Error; err != nil {
		return err
	}

	// Ensure ID is populated after upsert.
	return r.db.Where("organization_id = ?", sub.OrganizationID).First(sub).Error
}

func (r *gormRepository) UpsertCustomer(customer *models.BillingCustomer) error {
	return r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "organization_id"},
			{Name: "provider"},
		},
		DoUpdates: clause.AssignmentColumns([]string{
			"provider_customer_id",
			"updated_at",
		}),
	}).Create(customer).Error
}

func (r *gormRepository) CreateWebhookEventIfNotExists(event *models.BillingWebhookEvent) (bool, *models.BillingWebhookEvent, error) {
	tx := r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "provider"},
			{Name: "provider_event_id"},
		},
		DoNothing: true,
	}).Create(event)
	if tx.Error != nil {
		return false, nil, tx.Error
	}

	created := tx.RowsAffected > 0
	var stored models.BillingWebhookEvent
	if err := r.db.Where("provider = ? AND provider_event_id = ?", event.Provider, event.ProviderEventID).
		First(&stored).Error; err != nil {
		return false, nil, err
	}
	return created, &stored, nil
}

func (r *gormRepository) MarkWebhookProcessed(id uint, applied bool, processingError string) error {
	now := time.Now()
	updates := map[string]interface{}{
		"applied":          applied,
		"processed_at":     &now,
		"processing_error": processingError,
	}
	return r.db.Model(&models.BillingWebhookEvent{}).Where("id = ?", id).Updates(updates).Error
}

func (r *gormRepository) Transaction(ctx context.Context, fn func(tx Repository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormRepository{db: tx})
	})
}
