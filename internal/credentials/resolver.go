// Package credentials decides which payment credentials a project bills with.
package credentials

import (
	"context"
	"errors"
	"fmt"

	"github.com/leephanna/sign-in-and-billing/internal/directory"
	"github.com/leephanna/sign-in-and-billing/internal/model"
	"github.com/leephanna/sign-in-and-billing/internal/provider"
	"github.com/leephanna/sign-in-and-billing/internal/vault"
	"github.com/leephanna/sign-in-and-billing/pkg/config"
	"go.uber.org/zap"
)

// Resolution modes
const (
	ModeMock   = config.BillingModeMock
	ModeStripe = config.BillingModeStripe
)

// Reasons for falling back to mock billing
const (
	ReasonProjectNotFound     = "project_not_found"
	ReasonMissingStripeSecret = "missing_stripe_secret"
	ReasonBillingModeMock     = "billing_mode_mock"
)

// Resolution is the outcome of Resolve. Provider is set only in STRIPE mode.
type Resolution struct {
	Mode          string
	Reason        string
	Provider      provider.Provider
	SecretKey     string
	WebhookSecret string
}

// Mock reports whether billing must take the no-network path
func (r *Resolution) Mock() bool {
	return r.Mode == ModeMock
}

// Resolver maps a project to its billing credentials
type Resolver struct {
	dir     *directory.Directory
	vault   *vault.Vault
	cfg     *config.Config
	factory provider.Factory
	log     *zap.Logger
}

// NewResolver creates a Resolver. factory builds the provider client for STRIPE resolutions.
func NewResolver(dir *directory.Directory, v *vault.Vault, cfg *config.Config, factory provider.Factory, log *zap.Logger) *Resolver {
	return &Resolver{dir: dir, vault: v, cfg: cfg, factory: factory, log: log}
}

// Resolve picks platform test credentials for sandbox projects and the project's
// own credentials for live ones, falling back to mock when none are usable.
// Decryption failures are returned as errors.
func (r *Resolver) Resolve(ctx context.Context, projectID string) (*Resolution, error) {
	project, err := r.dir.GetProject(ctx, projectID)
	if err != nil {
		if errors.Is(err, directory.ErrNotFound) {
			return mock(ReasonProjectNotFound), nil
		}
		return nil, err
	}

	var secretKey, webhookSecret string
	if project.Mode == model.ModeLive {
		secretKey, webhookSecret, err = r.projectCredentials(ctx, projectID)
		if err != nil {
			return nil, err
		}
	} else {
		secretKey = r.cfg.Stripe.TestSecretKey
		webhookSecret = r.cfg.Stripe.TestWebhookSecret
	}

	if secretKey == "" {
		return mock(ReasonMissingStripeSecret), nil
	}
	if r.cfg.MockBilling() {
		return mock(ReasonBillingModeMock), nil
	}

	r.log.Debug("Resolved stripe credentials",
		zap.String("project_id", projectID),
		zap.String("project_mode", string(project.Mode)),
		zap.Bool("webhook_secret_set", webhookSecret != ""),
	)
	return &Resolution{
		Mode:          ModeStripe,
		Provider:      r.factory(secretKey),
		SecretKey:     secretKey,
		WebhookSecret: webhookSecret,
	}, nil
}

func (r *Resolver) projectCredentials(ctx context.Context, projectID string) (string, string, error) {
	secrets, err := r.dir.GetSecrets(ctx, projectID)
	if err != nil || secrets == nil {
		return "", "", err
	}

	var secretKey, webhookSecret string
	if secrets.HasStripeSecret() {
		if secretKey, err = r.vault.Decrypt(*secrets.StripeSecretEnc); err != nil {
			return "", "", fmt.Errorf("decrypt stripe secret for %s: %w", projectID, err)
		}
	}
	if secrets.HasStripeWebhookSecret() {
		if webhookSecret, err = r.vault.Decrypt(*secrets.StripeWebhookSecretEnc); err != nil {
			return "", "", fmt.Errorf("decrypt stripe webhook secret for %s: %w", projectID, err)
		}
	}
	return secretKey, webhookSecret, nil
}

func mock(reason string) *Resolution {
	return &Resolution{Mode: ModeMock, Reason: reason}
}
