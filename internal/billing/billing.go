// Package billing creates hosted checkout and portal sessions and reconciles
// provider webhooks into local subscription state.
package billing

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/leephanna/sign-in-and-billing/internal/credentials"
	"github.com/leephanna/sign-in-and-billing/internal/model"
	"github.com/leephanna/sign-in-and-billing/internal/provider"
	"github.com/leephanna/sign-in-and-billing/internal/validation"
	"github.com/leephanna/sign-in-and-billing/pkg/config"
	"github.com/leephanna/sign-in-and-billing/pkg/jwtutil"
	"github.com/leephanna/sign-in-and-billing/prometheus"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	// ErrMissingProjectID is returned when a webhook does not name its project
	ErrMissingProjectID = errors.New("billing: missing project id")
	// ErrMissingSignature is returned when a webhook carries no signature header
	ErrMissingSignature = errors.New("billing: missing webhook signature")
	// ErrMissingWebhookSecret is returned when the project has no webhook signing secret
	ErrMissingWebhookSecret = errors.New("billing: missing webhook secret for project")
	// ErrInvalidSignature is returned when the webhook signature does not verify
	ErrInvalidSignature = provider.ErrInvalidSignature
)

// Status is the caller's current subscription
type Status struct {
	Status               string     `json:"status"`
	CurrentPeriodEnd     *time.Time `json:"current_period_end,omitempty"`
	StripeCustomerID     *string    `json:"stripe_customer_id,omitempty"`
	StripeSubscriptionID *string    `json:"stripe_subscription_id,omitempty"`
}

// CheckoutRequest describes a subscription checkout
type CheckoutRequest struct {
	PriceID    string `json:"priceId" validate:"min=3"`
	SuccessURL string `json:"successUrl" validate:"required,http_url"`
	CancelURL  string `json:"cancelUrl" validate:"required,http_url"`
}

type portalRequest struct {
	ReturnURL string `json:"returnUrl" validate:"omitempty,http_url"`
}

// Reconciler owns the billing flows of every project
type Reconciler struct {
	db       *gorm.DB
	resolver *credentials.Resolver
	cfg      *config.Config
	log      *zap.Logger
	now      func() time.Time
}

// New creates a Reconciler
func New(db *gorm.DB, resolver *credentials.Resolver, cfg *config.Config, log *zap.Logger) *Reconciler {
	return &Reconciler{
		db:       db,
		resolver: resolver,
		cfg:      cfg,
		log:      log,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// GetStatus returns the most recently updated subscription of the session user,
// or status "none" when there is none.
func (r *Reconciler) GetStatus(ctx context.Context, claims *jwtutil.SessionClaims) (*Status, error) {
	defer prometheus.TrackDBOperation("subscription_query")()

	var sub model.Subscription
	err := r.db.WithContext(ctx).
		Where("project_id = ? AND user_id = ?", claims.ProjectID, claims.UserID()).
		Order("updated_at DESC").
		First(&sub).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &Status{Status: model.StatusNone}, nil
		}
		return nil, fmt.Errorf("load subscription: %w", err)
	}

	return &Status{
		Status:               sub.Status,
		CurrentPeriodEnd:     sub.CurrentPeriodEnd,
		StripeCustomerID:     sub.StripeCustomerID,
		StripeSubscriptionID: sub.StripeSubscriptionID,
	}, nil
}

// CreatePortalSession returns a hosted billing portal URL for the session user.
// An empty returnURL falls back to the configured default.
func (r *Reconciler) CreatePortalSession(ctx context.Context, claims *jwtutil.SessionClaims, returnURL string) (string, error) {
	if err := validation.Struct(portalRequest{ReturnURL: returnURL}); err != nil {
		return "", err
	}

	res, err := r.resolver.Resolve(ctx, claims.ProjectID)
	if err != nil {
		return "", err
	}
	if res.Mock() {
		prometheus.RecordBillingSession("portal", res.Mode)
		return r.mockURL("/mock/billing-portal", claims.ProjectID, nil), nil
	}

	customerID, err := r.ensureCustomer(ctx, res.Provider, claims)
	if err != nil {
		return "", err
	}

	if returnURL == "" {
		returnURL = r.cfg.Billing.DefaultReturnURL
	}
	sessionURL, err := res.Provider.CreatePortalSession(ctx, customerID, returnURL)
	if err != nil {
		return "", err
	}

	prometheus.RecordBillingSession("portal", res.Mode)
	r.log.Info("Portal session created",
		zap.String("project_id", claims.ProjectID),
		zap.String("user_id", claims.UserID()),
		zap.String("customer_id", customerID),
	)
	return sessionURL, nil
}

// CreateCheckoutSession returns a hosted subscription checkout URL for the session user
func (r *Reconciler) CreateCheckoutSession(ctx context.Context, claims *jwtutil.SessionClaims, req CheckoutRequest) (string, error) {
	if err := validation.Struct(req); err != nil {
		return "", err
	}

	res, err := r.resolver.Resolve(ctx, claims.ProjectID)
	if err != nil {
		return "", err
	}
	if res.Mock() {
		prometheus.RecordBillingSession("checkout", res.Mode)
		return r.mockURL("/mock/checkout", claims.ProjectID, &req.PriceID), nil
	}

	customerID, err := r.ensureCustomer(ctx, res.Provider, claims)
	if err != nil {
		return "", err
	}

	sessionURL, err := res.Provider.CreateCheckoutSession(ctx, provider.CheckoutParams{
		CustomerID: customerID,
		PriceID:    req.PriceID,
		SuccessURL: req.SuccessURL,
		CancelURL:  req.CancelURL,
		Metadata: map[string]string{
			provider.MetadataProjectID: claims.ProjectID,
			provider.MetadataUserID:    claims.UserID(),
		},
	})
	if err != nil {
		return "", err
	}

	prometheus.RecordBillingSession("checkout", res.Mode)
	r.log.Info("Checkout session created",
		zap.String("project_id", claims.ProjectID),
		zap.String("user_id", claims.UserID()),
		zap.String("price_id", req.PriceID),
	)
	return sessionURL, nil
}

func (r *Reconciler) mockURL(path, projectID string, priceID *string) string {
	u := r.cfg.Server.PublicBaseURL + path + "?project_id=" + url.QueryEscape(projectID)
	if priceID != nil {
		u += "&price=" + url.QueryEscape(*priceID)
	}
	return u
}
