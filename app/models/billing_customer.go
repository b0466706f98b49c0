package models

import "time"

const (
	BillingProviderDefault = "payments"
)

// BillingCustomer links an organization to its customer record at the payment
// provider.
type BillingCustomer struct {
	ID                 uint      `gorm:"primaryKey" json:"id"`
	OrganizationID     string    `gorm:"type:char(36);not null;index:ux_billing_customers_org_provider,unique,priority:1" json:"organization_id"`
	Provider           string    `gorm:"type:varchar(20);not null;index:ux_billing_customers_org_provider,unique,priority:2;index:ux_billing_customers_provider_customer,unique,priority:1" json:"provider"`
	ProviderCustomerID string    `gorm:"type:varchar(191);not null;index:ux_billing_customers_provider_customer,unique,priority:2" json:"provider_customer_id"`
	CreatedAt          time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
