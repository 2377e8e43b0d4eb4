package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/client"
	"github.com/stripe/stripe-go/v79/webhook"
)

// Metadata keys tagging provider objects with their tenant and user
const (
	MetadataProjectID = "project_id"
	MetadataUserID    = "user_id"
)

// StripeProvider implements Provider with the Stripe API
type StripeProvider struct {
	api *client.API
}

// NewStripe creates a Stripe client bound to secretKey
func NewStripe(secretKey string) Provider {
	return &StripeProvider{api: client.New(secretKey, nil)}
}

// NewStripeWithBackends creates a Stripe client on custom backends
func NewStripeWithBackends(secretKey string, backends *stripe.Backends) Provider {
	return &StripeProvider{api: client.New(secretKey, backends)}
}

// FindCustomer searches customers by tenant metadata
func (s *StripeProvider) FindCustomer(ctx context.Context, projectID, userID string) (string, error) {
	params := &stripe.CustomerSearchParams{
		SearchParams: stripe.SearchParams{
			Context: ctx,
			Query: fmt.Sprintf("metadata['%s']:'%s' AND metadata['%s']:'%s'",
				MetadataProjectID, quote(projectID), MetadataUserID, quote(userID)),
			Limit: stripe.Int64(1),
		},
	}

	iter := s.api.Customers.Search(params)
	if iter.Next() {
		return iter.Customer().ID, nil
	}
	if err := iter.Err(); err != nil {
		return "", fmt.Errorf("search stripe customers: %w", err)
	}
	return "", nil
}

// CreateCustomer creates a customer tagged with tenant metadata
func (s *StripeProvider) CreateCustomer(ctx context.Context, email, projectID, userID string) (string, error) {
	params := &stripe.CustomerParams{
		Params: stripe.Params{Context: ctx},
		Email:  stripe.String(email),
		Metadata: map[string]string{
			MetadataProjectID: projectID,
			MetadataUserID:    userID,
		},
	}
	cust, err := s.api.Customers.New(params)
	if err != nil {
		return "", fmt.Errorf("create stripe customer: %w", err)
	}
	return cust.ID, nil
}

// CreatePortalSession creates a hosted billing portal session
func (s *StripeProvider) CreatePortalSession(ctx context.Context, customerID, returnURL string) (string, error) {
	params := &stripe.BillingPortalSessionParams{
		Params:    stripe.Params{Context: ctx},
		Customer:  stripe.String(customerID),
		ReturnURL: stripe.String(returnURL),
	}
	sess, err := s.api.BillingPortalSessions.New(params)
	if err != nil {
		return "", fmt.Errorf("create stripe portal session: %w", err)
	}
	return sess.URL, nil
}

// CreateCheckoutSession creates a hosted subscription checkout with a single line item
func (s *StripeProvider) CreateCheckoutSession(ctx context.Context, p CheckoutParams) (string, error) {
	params := &stripe.CheckoutSessionParams{
		Params:   stripe.Params{Context: ctx},
		Mode:     stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		Customer: stripe.String(p.CustomerID),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(p.PriceID),
				Quantity: stripe.Int64(1),
			},
		},
		SuccessURL: stripe.String(p.SuccessURL),
		CancelURL:  stripe.String(p.CancelURL),
		Metadata:   p.Metadata,
	}
	sess, err := s.api.CheckoutSessions.New(params)
	if err != nil {
		return "", fmt.Errorf("create stripe checkout session: %w", err)
	}
	return sess.URL, nil
}

// ConstructEvent verifies the Stripe-Signature header and decodes the event
func (s *StripeProvider) ConstructEvent(payload []byte, signature, webhookSecret string) (*Event, error) {
	return ConstructStripeEvent(payload, signature, webhookSecret)
}

// ConstructStripeEvent verifies and decodes a Stripe webhook payload
func ConstructStripeEvent(payload []byte, signature, webhookSecret string) (*Event, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signature, webhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true},
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	out := &Event{
		ID:      event.ID,
		Type:    string(event.Type),
		Created: time.Unix(event.Created, 0).UTC(),
	}
	if !out.IsSubscriptionEvent() || event.Data == nil {
		return out, nil
	}

	var sub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		return nil, fmt.Errorf("decode stripe subscription: %w", err)
	}
	parsed := &Subscription{
		ID:     sub.ID,
		Status: string(sub.Status),
	}
	if sub.Customer != nil {
		parsed.CustomerID = sub.Customer.ID
	}
	if sub.CurrentPeriodEnd > 0 {
		end := time.Unix(sub.CurrentPeriodEnd, 0).UTC()
		parsed.CurrentPeriodEnd = &end
	}
	out.Subscription = parsed
	return out, nil
}

// quote escapes a value for the Stripe search query language
func quote(v string) string {
	return strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(v)
}
