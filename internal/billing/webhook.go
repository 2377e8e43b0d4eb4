package billing

import (
	"context"
	"errors"
	"fmt"

	"github.com/leephanna/sign-in-and-billing/internal/credentials"
	"github.com/leephanna/sign-in-and-billing/internal/model"
	"github.com/leephanna/sign-in-and-billing/internal/provider"
	"github.com/leephanna/sign-in-and-billing/prometheus"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Webhook outcomes
const (
	OutcomeApplied = "applied"
	OutcomeStale   = "stale"
	OutcomeIgnored = "ignored"
	OutcomeMock    = "mock"
)

// WebhookResult describes what a delivery did
type WebhookResult struct {
	Mode      string
	EventType string
	Outcome   string
}

// HandleWebhook verifies a provider delivery against the exact raw body and
// reconciles subscription events. Nothing is written unless the signature verifies.
func (r *Reconciler) HandleWebhook(ctx context.Context, projectID string, rawBody []byte, signature string) (*WebhookResult, error) {
	if projectID == "" {
		return nil, ErrMissingProjectID
	}

	res, err := r.resolver.Resolve(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if res.Mock() {
		prometheus.RecordWebhookEvent("unknown", OutcomeMock)
		return &WebhookResult{Mode: credentials.ModeMock, Outcome: OutcomeMock}, nil
	}

	if signature == "" {
		return nil, ErrMissingSignature
	}
	if res.WebhookSecret == "" {
		return nil, ErrMissingWebhookSecret
	}

	event, err := res.Provider.ConstructEvent(rawBody, signature, res.WebhookSecret)
	if err != nil {
		return nil, err
	}

	result := &WebhookResult{Mode: res.Mode, EventType: event.Type, Outcome: OutcomeIgnored}
	if !event.IsSubscriptionEvent() || event.Subscription == nil || event.Subscription.CustomerID == "" {
		prometheus.RecordWebhookEvent(event.Type, result.Outcome)
		return result, nil
	}

	applied, err := r.upsertSubscription(ctx, projectID, event)
	if err != nil {
		return nil, err
	}
	if applied {
		result.Outcome = OutcomeApplied
	} else {
		result.Outcome = OutcomeStale
	}

	prometheus.RecordWebhookEvent(event.Type, result.Outcome)
	r.log.Info("Webhook reconciled",
		zap.String("project_id", projectID),
		zap.String("event_id", event.ID),
		zap.String("event_type", event.Type),
		zap.String("customer_id", event.Subscription.CustomerID),
		zap.String("status", event.Subscription.Status),
		zap.String("outcome", result.Outcome),
	)
	return result, nil
}

// upsertSubscription writes the event's subscription state in one conditional
// statement. Rows already carrying a newer event are left untouched.
func (r *Reconciler) upsertSubscription(ctx context.Context, projectID string, event *provider.Event) (bool, error) {
	sub := event.Subscription

	rowID, userID, err := r.mappedRow(ctx, projectID, sub.CustomerID)
	if err != nil {
		return false, err
	}

	defer prometheus.TrackDBOperation("subscription_upsert")()
	now := r.now()
	eventAt := event.Created.UTC()
	row := &model.Subscription{
		ID:                   rowID,
		ProjectID:            projectID,
		UserID:               userID,
		Provider:             model.ProviderStripe,
		Status:               sub.Status,
		StripeCustomerID:     &sub.CustomerID,
		StripeSubscriptionID: &sub.ID,
		CurrentPeriodEnd:     sub.CurrentPeriodEnd,
		ProviderEventAt:      &eventAt,
		CreatedAt:            now,
		UpdatedAt:            now,
	}

	tx := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"status":                 gorm.Expr("excluded.status"),
			"stripe_customer_id":     gorm.Expr("excluded.stripe_customer_id"),
			"stripe_subscription_id": gorm.Expr("excluded.stripe_subscription_id"),
			"current_period_end":     gorm.Expr("excluded.current_period_end"),
			"provider_event_at":      gorm.Expr("excluded.provider_event_at"),
			"updated_at":             now,
		}),
		Where: clause.Where{Exprs: []clause.Expression{
			gorm.Expr("subscriptions.provider_event_at IS NULL OR subscriptions.provider_event_at <= excluded.provider_event_at"),
		}},
	}).Create(row)
	if tx.Error != nil {
		return false, fmt.Errorf("upsert subscription: %w", tx.Error)
	}
	return tx.RowsAffected > 0, nil
}

// mappedRow finds the row for a customer, preferring one mapped to a known user.
// Without one it falls back to a customer-derived row owned by the unknown user.
func (r *Reconciler) mappedRow(ctx context.Context, projectID, customerID string) (string, string, error) {
	defer prometheus.TrackDBOperation("subscription_query")()

	var existing model.Subscription
	err := r.db.WithContext(ctx).
		Where("project_id = ? AND stripe_customer_id = ?", projectID, customerID).
		Order("CASE WHEN user_id = '" + model.UnknownUserID + "' THEN 1 ELSE 0 END, updated_at DESC").
		First(&existing).Error
	if err == nil {
		return existing.ID, existing.UserID, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return "", "", fmt.Errorf("find subscription by customer: %w", err)
	}

	r.log.Warn("Webhook for unmapped customer",
		zap.String("project_id", projectID),
		zap.String("customer_id", customerID),
	)
	return model.CustomerSubscriptionID(customerID), model.UnknownUserID, nil
}
