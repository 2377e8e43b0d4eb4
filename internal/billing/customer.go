package billing

import (
	"context"
	"errors"
	"fmt"

	"github.com/leephanna/sign-in-and-billing/internal/model"
	"github.com/leephanna/sign-in-and-billing/internal/provider"
	"github.com/leephanna/sign-in-and-billing/pkg/jwtutil"
	"github.com/leephanna/sign-in-and-billing/prometheus"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ensureCustomer returns the provider customer of the session user. It looks for
// a local mapping first, then for a customer already tagged with the user's
// metadata, and only then creates one. The mapping is persisted either way.
func (r *Reconciler) ensureCustomer(ctx context.Context, p provider.Provider, claims *jwtutil.SessionClaims) (string, error) {
	customerID, err := r.localCustomer(ctx, claims)
	if err != nil || customerID != "" {
		return customerID, err
	}

	customerID, err = p.FindCustomer(ctx, claims.ProjectID, claims.UserID())
	if err != nil {
		return "", err
	}
	if customerID == "" {
		customerID, err = p.CreateCustomer(ctx, claims.Email, claims.ProjectID, claims.UserID())
		if err != nil {
			return "", err
		}
		r.log.Info("Provider customer created",
			zap.String("project_id", claims.ProjectID),
			zap.String("user_id", claims.UserID()),
			zap.String("customer_id", customerID),
		)
	}

	if err := r.persistMapping(ctx, claims, customerID); err != nil {
		return "", err
	}
	return customerID, nil
}

func (r *Reconciler) localCustomer(ctx context.Context, claims *jwtutil.SessionClaims) (string, error) {
	defer prometheus.TrackDBOperation("subscription_query")()

	var sub model.Subscription
	err := r.db.WithContext(ctx).
		Where("project_id = ? AND user_id = ? AND stripe_customer_id IS NOT NULL", claims.ProjectID, claims.UserID()).
		Order("updated_at DESC").
		First(&sub).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", nil
		}
		return "", fmt.Errorf("find customer mapping: %w", err)
	}
	return *sub.StripeCustomerID, nil
}

// persistMapping ties customerID to the session user. A row a webhook created
// for the customer before the mapping existed is adopted instead of duplicated.
func (r *Reconciler) persistMapping(ctx context.Context, claims *jwtutil.SessionClaims, customerID string) error {
	defer prometheus.TrackDBOperation("subscription_upsert")()
	now := r.now()

	adopted := r.db.WithContext(ctx).Model(&model.Subscription{}).
		Where("project_id = ? AND stripe_customer_id = ? AND user_id = ?", claims.ProjectID, customerID, model.UnknownUserID).
		Updates(map[string]interface{}{"user_id": claims.UserID(), "updated_at": now})
	if adopted.Error != nil {
		return fmt.Errorf("adopt subscription row: %w", adopted.Error)
	}
	if adopted.RowsAffected > 0 {
		r.log.Info("Adopted unmapped subscription row",
			zap.String("project_id", claims.ProjectID),
			zap.String("user_id", claims.UserID()),
			zap.String("customer_id", customerID),
		)
		return nil
	}

	row := &model.Subscription{
		ID:               model.UserSubscriptionID(claims.UserID()),
		ProjectID:        claims.ProjectID,
		UserID:           claims.UserID(),
		Provider:         model.ProviderStripe,
		Status:           model.StatusNone,
		StripeCustomerID: &customerID,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "id"}}, DoNothing: true}).
		Create(row).Error
	if err != nil {
		return fmt.Errorf("persist customer mapping: %w", err)
	}
	return nil
}
