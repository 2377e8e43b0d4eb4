// Package provider abstracts the hosted payment provider used for billing.
package provider

import (
	"context"
	"errors"
	"time"
)

// Event types reconciled into local subscription state
const (
	EventSubscriptionCreated = "customer.subscription.created"
	EventSubscriptionUpdated = "customer.subscription.updated"
	EventSubscriptionDeleted = "customer.subscription.deleted"
)

// ErrInvalidSignature is returned when a webhook payload fails verification
var ErrInvalidSignature = errors.New("provider: webhook signature verification failed")

// CheckoutParams describes a subscription checkout for one customer
type CheckoutParams struct {
	CustomerID string
	PriceID    string
	SuccessURL string
	CancelURL  string
	Metadata   map[string]string
}

// Subscription is the provider's view of a subscription carried by an event
type Subscription struct {
	ID               string
	CustomerID       string
	Status           string
	CurrentPeriodEnd *time.Time
}

// Event is a verified webhook event. Subscription is set for subscription events only.
type Event struct {
	ID           string
	Type         string
	Created      time.Time
	Subscription *Subscription
}

// IsSubscriptionEvent reports whether the event changes subscription state
func (e *Event) IsSubscriptionEvent() bool {
	switch e.Type {
	case EventSubscriptionCreated, EventSubscriptionUpdated, EventSubscriptionDeleted:
		return true
	}
	return false
}

// Provider is a payment provider client bound to one secret key
type Provider interface {
	// FindCustomer returns the customer tagged with the project and user, or "" when none exists
	FindCustomer(ctx context.Context, projectID, userID string) (string, error)
	CreateCustomer(ctx context.Context, email, projectID, userID string) (string, error)
	CreatePortalSession(ctx context.Context, customerID, returnURL string) (string, error)
	CreateCheckoutSession(ctx context.Context, params CheckoutParams) (string, error)
	// ConstructEvent verifies signature over the exact payload bytes
	ConstructEvent(payload []byte, signature, webhookSecret string) (*Event, error)
}

// Factory builds a Provider bound to a secret key
type Factory func(secretKey string) Provider
