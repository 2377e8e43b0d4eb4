// Package directory stores projects and their encrypted provider secrets.
package directory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/leephanna/sign-in-and-billing/internal/model"
	"github.com/leephanna/sign-in-and-billing/internal/validation"
	"github.com/leephanna/sign-in-and-billing/internal/vault"
	"github.com/leephanna/sign-in-and-billing/pkg/config"
	"github.com/leephanna/sign-in-and-billing/prometheus"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ListLimit caps ListProjects
const ListLimit = 200

// ErrNotFound is returned when a project does not exist
var ErrNotFound = errors.New("directory: project not found")

// SecretsPresence reports which provider secrets are stored without exposing them
type SecretsPresence struct {
	HasStripeSecret        bool `json:"has_stripe_secret"`
	HasStripePublishable   bool `json:"has_stripe_publishable"`
	HasStripeWebhookSecret bool `json:"has_stripe_webhook_secret"`
}

// ProjectUpdate is a partial update; nil fields keep their stored value
type ProjectUpdate struct {
	Name     *string                `json:"name" validate:"omitnil,min=2,max=80"`
	Mode     *model.ProjectMode     `json:"mode" validate:"omitnil,oneof=sandbox live"`
	Theme    map[string]interface{} `json:"theme"`
	Features map[string]interface{} `json:"features"`
}

// SecretsInput carries plaintext secrets; nil fields keep their stored value
type SecretsInput struct {
	StripeSecret        *string `json:"stripe_secret" validate:"omitnil,min=1"`
	StripePublishable   *string `json:"stripe_publishable" validate:"omitnil,min=1"`
	StripeWebhookSecret *string `json:"stripe_webhook_secret" validate:"omitnil,min=1"`
}

type newProject struct {
	Name string `json:"name" validate:"min=2,max=80"`
}

// PublicProject is the client-safe view of a project
type PublicProject struct {
	ID       string                 `json:"id"`
	Name     string                 `json:"name"`
	Mode     model.ProjectMode      `json:"mode"`
	Theme    map[string]interface{} `json:"theme"`
	Features map[string]interface{} `json:"features"`
}

// PublicBilling tells a client which provider and key to load
type PublicBilling struct {
	Provider       string `json:"provider"`
	PublishableKey string `json:"publishableKey"`
	Mode           string `json:"mode"`
}

// PublicConfig is served unauthenticated to front ends
type PublicConfig struct {
	Project    PublicProject `json:"project"`
	Billing    PublicBilling `json:"billing"`
	APIBaseURL string        `json:"apiBaseUrl"`
}

// Directory is the durable store of tenants
type Directory struct {
	db    *gorm.DB
	vault *vault.Vault
	cfg   *config.Config
	log   *zap.Logger
}

// New creates a Directory
func New(db *gorm.DB, v *vault.Vault, cfg *config.Config, log *zap.Logger) *Directory {
	return &Directory{db: db, vault: v, cfg: cfg, log: log}
}

// CreateProject creates a project in sandbox mode
func (d *Directory) CreateProject(ctx context.Context, name string) (*model.Project, error) {
	if err := validation.Struct(newProject{Name: name}); err != nil {
		return nil, err
	}
	defer prometheus.TrackDBOperation("project_insert")()

	project := &model.Project{
		Name:     name,
		Mode:     model.ModeSandbox,
		Theme:    datatypes.JSONMap{},
		Features: datatypes.JSONMap{},
	}
	if err := d.db.WithContext(ctx).Create(project).Error; err != nil {
		return nil, fmt.Errorf("create project: %w", err)
	}

	d.log.Info("Project created", zap.String("project_id", project.ID), zap.String("name", project.Name))
	return project, nil
}

// ListProjects returns the newest projects first
func (d *Directory) ListProjects(ctx context.Context) ([]model.Project, error) {
	defer prometheus.TrackDBOperation("project_list")()

	projects := make([]model.Project, 0)
	if err := d.db.WithContext(ctx).Order("created_at DESC").Limit(ListLimit).Find(&projects).Error; err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	return projects, nil
}

// GetProject loads a project by ID
func (d *Directory) GetProject(ctx context.Context, id string) (*model.Project, error) {
	defer prometheus.TrackDBOperation("project_query")()

	var project model.Project
	if err := d.db.WithContext(ctx).Where("id = ?", id).First(&project).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get project: %w", err)
	}
	return &project, nil
}

// GetProjectWithSecrets loads a project and reports which secrets it has
func (d *Directory) GetProjectWithSecrets(ctx context.Context, id string) (*model.Project, SecretsPresence, error) {
	project, err := d.GetProject(ctx, id)
	if err != nil {
		return nil, SecretsPresence{}, err
	}
	secrets, err := d.GetSecrets(ctx, id)
	if err != nil {
		return nil, SecretsPresence{}, err
	}
	return project, SecretsPresence{
		HasStripeSecret:        secrets.HasStripeSecret(),
		HasStripePublishable:   secrets.HasStripePublishable(),
		HasStripeWebhookSecret: secrets.HasStripeWebhookSecret(),
	}, nil
}

// UpdateProject merges the given fields into the stored project
func (d *Directory) UpdateProject(ctx context.Context, id string, upd ProjectUpdate) (*model.Project, error) {
	if err := validation.Struct(upd); err != nil {
		return nil, err
	}

	project, err := d.GetProject(ctx, id)
	if err != nil {
		return nil, err
	}

	if upd.Name != nil {
		project.Name = *upd.Name
	}
	if upd.Mode != nil {
		project.Mode = *upd.Mode
	}
	if upd.Theme != nil {
		project.Theme = datatypes.JSONMap(upd.Theme)
	}
	if upd.Features != nil {
		project.Features = datatypes.JSONMap(upd.Features)
	}
	if project.Theme == nil {
		project.Theme = datatypes.JSONMap{}
	}
	if project.Features == nil {
		project.Features = datatypes.JSONMap{}
	}

	defer prometheus.TrackDBOperation("project_update")()
	err = d.db.WithContext(ctx).Model(&model.Project{}).Where("id = ?", id).Updates(map[string]interface{}{
		"name":     project.Name,
		"mode":     project.Mode,
		"theme":    project.Theme,
		"features": project.Features,
	}).Error
	if err != nil {
		return nil, fmt.Errorf("update project: %w", err)
	}

	d.log.Info("Project updated", zap.String("project_id", id), zap.String("mode", string(project.Mode)))
	return project, nil
}

// PutSecrets encrypts each supplied secret and upserts them, keeping stored values for absent fields
func (d *Directory) PutSecrets(ctx context.Context, id string, in SecretsInput) error {
	if err := validation.Struct(in); err != nil {
		return err
	}

	if _, err := d.GetProject(ctx, id); err != nil {
		return err
	}

	secretEnc, err := d.encryptOptional(in.StripeSecret)
	if err != nil {
		return err
	}
	publishableEnc, err := d.encryptOptional(in.StripePublishable)
	if err != nil {
		return err
	}
	webhookEnc, err := d.encryptOptional(in.StripeWebhookSecret)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	row := &model.ProjectSecrets{
		ProjectID:              id,
		StripeSecretEnc:        secretEnc,
		StripePublishableEnc:   publishableEnc,
		StripeWebhookSecretEnc: webhookEnc,
		CreatedAt:              now,
		UpdatedAt:              now,
	}

	defer prometheus.TrackDBOperation("secrets_upsert")()
	err = d.db.WithContext(ctx).Omit(clause.Associations).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "project_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"stripe_secret_enc":         gorm.Expr("COALESCE(excluded.stripe_secret_enc, project_secrets.stripe_secret_enc)"),
			"stripe_publishable_enc":    gorm.Expr("COALESCE(excluded.stripe_publishable_enc, project_secrets.stripe_publishable_enc)"),
			"stripe_webhook_secret_enc": gorm.Expr("COALESCE(excluded.stripe_webhook_secret_enc, project_secrets.stripe_webhook_secret_enc)"),
			"updated_at":                now,
		}),
	}).Create(row).Error
	if err != nil {
		return fmt.Errorf("upsert project secrets: %w", err)
	}

	d.log.Info("Project secrets stored",
		zap.String("project_id", id),
		zap.Bool("stripe_secret", in.StripeSecret != nil),
		zap.Bool("stripe_publishable", in.StripePublishable != nil),
		zap.Bool("stripe_webhook_secret", in.StripeWebhookSecret != nil),
	)
	return nil
}

// GetSecrets returns the encrypted secrets row, or nil when none is stored
func (d *Directory) GetSecrets(ctx context.Context, id string) (*model.ProjectSecrets, error) {
	defer prometheus.TrackDBOperation("secrets_query")()

	var secrets model.ProjectSecrets
	if err := d.db.WithContext(ctx).Where("project_id = ?", id).First(&secrets).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get project secrets: %w", err)
	}
	return &secrets, nil
}

// GetPublicConfig returns the client-safe configuration of a project.
// A missing publishable key yields "" rather than an error.
func (d *Directory) GetPublicConfig(ctx context.Context, id string) (*PublicConfig, error) {
	project, err := d.GetProject(ctx, id)
	if err != nil {
		return nil, err
	}

	publishableKey := ""
	if project.Mode == model.ModeLive {
		secrets, err := d.GetSecrets(ctx, id)
		if err != nil {
			return nil, err
		}
		if secrets.HasStripePublishable() {
			publishableKey, err = d.vault.Decrypt(*secrets.StripePublishableEnc)
			if err != nil {
				return nil, fmt.Errorf("decrypt publishable key: %w", err)
			}
		}
	} else {
		publishableKey = d.cfg.Stripe.TestPublishableKey
	}

	return &PublicConfig{
		Project: PublicProject{
			ID:       project.ID,
			Name:     project.Name,
			Mode:     project.Mode,
			Theme:    orEmpty(project.Theme),
			Features: orEmpty(project.Features),
		},
		Billing: PublicBilling{
			Provider:       model.ProviderStripe,
			PublishableKey: publishableKey,
			Mode:           d.cfg.Billing.Mode,
		},
		APIBaseURL: d.cfg.Server.PublicBaseURL,
	}, nil
}

func (d *Directory) encryptOptional(plain *string) (*string, error) {
	if plain == nil {
		return nil, nil
	}
	enc, err := d.vault.Encrypt(*plain)
	if err != nil {
		return nil, fmt.Errorf("encrypt secret: %w", err)
	}
	return &enc, nil
}

func orEmpty(m datatypes.JSONMap) map[string]interface{} {
	if m == nil {
		return map[string]interface{}{}
	}
	return m
}
