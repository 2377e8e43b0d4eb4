package model

import "time"

const (
	// ProviderStripe is the only payment provider
	ProviderStripe = "stripe"
	// StatusNone marks a user with no provider subscription yet
	StatusNone = "none"
	// UnknownUserID is stored when a webhook names a customer with no local mapping
	UnknownUserID = "unknown"
)

// Subscription mirrors the provider's view of one user's subscription.
// Status keeps the provider's vocabulary verbatim.
type Subscription struct {
	ID                   string     `json:"-" gorm:"primaryKey;type:varchar(128)"`
	ProjectID            string     `json:"-" gorm:"type:varchar(64);not null;index:idx_subscriptions_project_user;index:idx_subscriptions_project_customer"`
	UserID               string     `json:"-" gorm:"type:varchar(64);not null;index:idx_subscriptions_project_user"`
	Provider             string     `json:"-" gorm:"type:varchar(32);not null;default:'stripe'"`
	Status               string     `json:"status" gorm:"type:varchar(64);not null"`
	StripeCustomerID     *string    `json:"stripe_customer_id" gorm:"type:varchar(128);index:idx_subscriptions_project_customer"`
	StripeSubscriptionID *string    `json:"stripe_subscription_id" gorm:"type:varchar(128)"`
	CurrentPeriodEnd     *time.Time `json:"current_period_end"`
	ProviderEventAt      *time.Time `json:"-"`
	CreatedAt            time.Time  `json:"-"`
	UpdatedAt            time.Time  `json:"-" gorm:"index"`
}

// UserSubscriptionID is the row ID for a subscription created on a user's behalf
func UserSubscriptionID(userID string) string {
	return "sub_" + userID
}

// CustomerSubscriptionID is the row ID synthesized for an unmapped provider customer
func CustomerSubscriptionID(customerID string) string {
	return "sub_" + customerID
}
