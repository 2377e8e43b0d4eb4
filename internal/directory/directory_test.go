package directory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/leephanna/sign-in-and-billing/internal/model"
	"github.com/leephanna/sign-in-and-billing/internal/testdb"
	"github.com/leephanna/sign-in-and-billing/internal/validation"
	"github.com/leephanna/sign-in-and-billing/internal/vault"
	"github.com/leephanna/sign-in-and-billing/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func testConfig() *config.Config {
	return &config.Config{
		Server:  config.ServerConfig{PublicBaseURL: "http://api.test"},
		Stripe:  config.StripeConfig{TestPublishableKey: "pk_test_platform"},
		Billing: config.BillingConfig{Mode: config.BillingModeMock},
	}
}

func newTestDirectory(t *testing.T, cfg *config.Config) (*Directory, *gorm.DB, *vault.Vault) {
	t.Helper()
	v, err := vault.New("master-key")
	require.NoError(t, err)
	db := testdb.New(t)
	return New(db, v, cfg, zap.NewNop()), db, v
}

func strPtr(s string) *string { return &s }

func TestCreateProjectStartsInSandbox(t *testing.T) {
	d, _, _ := newTestDirectory(t, testConfig())
	ctx := context.Background()

	p, err := d.CreateProject(ctx, "Acme")
	require.NoError(t, err)
	assert.Regexp(t, `^proj_[0-9a-f]{20}$`, p.ID)
	assert.Equal(t, model.ModeSandbox, p.Mode)

	got, err := d.GetProject(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "Acme", got.Name)
	assert.Equal(t, model.ModeSandbox, got.Mode)
}

func TestCreateProjectValidatesName(t *testing.T) {
	d, _, _ := newTestDirectory(t, testConfig())

	_, err := d.CreateProject(context.Background(), "A")
	var verr *validation.Error
	assert.True(t, errors.As(err, &verr))
}

func TestGetProjectNotFound(t *testing.T) {
	d, _, _ := newTestDirectory(t, testConfig())

	_, err := d.GetProject(context.Background(), "proj_missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListProjectsNewestFirst(t *testing.T) {
	d, db, _ := newTestDirectory(t, testConfig())
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, name := range []string{"oldest", "middle", "newest"} {
		require.NoError(t, db.Create(&model.Project{Name: name, CreatedAt: base.Add(time.Duration(i) * time.Hour)}).Error)
	}

	projects, err := d.ListProjects(context.Background())
	require.NoError(t, err)
	require.Len(t, projects, 3)
	assert.Equal(t, "newest", projects[0].Name)
	assert.Equal(t, "oldest", projects[2].Name)
}

func TestUpdateProjectMergesPartially(t *testing.T) {
	d, _, _ := newTestDirectory(t, testConfig())
	ctx := context.Background()
	p, err := d.CreateProject(ctx, "Acme")
	require.NoError(t, err)

	_, err = d.UpdateProject(ctx, p.ID, ProjectUpdate{Theme: map[string]interface{}{"primary": "#000"}})
	require.NoError(t, err)

	live := model.ModeLive
	updated, err := d.UpdateProject(ctx, p.ID, ProjectUpdate{Mode: &live})
	require.NoError(t, err)
	assert.Equal(t, "Acme", updated.Name)
	assert.Equal(t, model.ModeLive, updated.Mode)

	stored, err := d.GetProject(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "Acme", stored.Name)
	assert.Equal(t, model.ModeLive, stored.Mode)
	assert.Equal(t, "#000", stored.Theme["primary"])
}

func TestUpdateProjectRejectsUnknownMode(t *testing.T) {
	d, _, _ := newTestDirectory(t, testConfig())
	ctx := context.Background()
	p, err := d.CreateProject(ctx, "Acme")
	require.NoError(t, err)

	bogus := model.ProjectMode("prod")
	_, err = d.UpdateProject(ctx, p.ID, ProjectUpdate{Mode: &bogus})
	var verr *validation.Error
	assert.True(t, errors.As(err, &verr))

	_, err = d.UpdateProject(ctx, "proj_missing", ProjectUpdate{})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPutSecretsCoalescesPartialUpdates(t *testing.T) {
	d, _, v := newTestDirectory(t, testConfig())
	ctx := context.Background()
	p, err := d.CreateProject(ctx, "Acme")
	require.NoError(t, err)

	require.NoError(t, d.PutSecrets(ctx, p.ID, SecretsInput{
		StripeSecret:      strPtr("sk_live_1"),
		StripePublishable: strPtr("pk_live_1"),
	}))
	require.NoError(t, d.PutSecrets(ctx, p.ID, SecretsInput{StripeWebhookSecret: strPtr("whsec_1")}))

	secrets, err := d.GetSecrets(ctx, p.ID)
	require.NoError(t, err)
	require.NotNil(t, secrets)

	secret, err := v.Decrypt(*secrets.StripeSecretEnc)
	require.NoError(t, err)
	assert.Equal(t, "sk_live_1", secret)
	assert.NotContains(t, *secrets.StripeSecretEnc, "sk_live_1")

	webhook, err := v.Decrypt(*secrets.StripeWebhookSecretEnc)
	require.NoError(t, err)
	assert.Equal(t, "whsec_1", webhook)

	_, presence, err := d.GetProjectWithSecrets(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, SecretsPresence{HasStripeSecret: true, HasStripePublishable: true, HasStripeWebhookSecret: true}, presence)
}

func TestPutSecretsRequiresProject(t *testing.T) {
	d, _, _ := newTestDirectory(t, testConfig())

	err := d.PutSecrets(context.Background(), "proj_missing", SecretsInput{StripeSecret: strPtr("sk")})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetSecretsAbsent(t *testing.T) {
	d, _, _ := newTestDirectory(t, testConfig())
	ctx := context.Background()
	p, err := d.CreateProject(ctx, "Acme")
	require.NoError(t, err)

	secrets, err := d.GetSecrets(ctx, p.ID)
	require.NoError(t, err)
	assert.Nil(t, secrets)

	_, presence, err := d.GetProjectWithSecrets(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, SecretsPresence{}, presence)
}

func TestPublicConfigSandboxWithoutSecrets(t *testing.T) {
	cfg := testConfig()
	cfg.Stripe.TestPublishableKey = ""
	d, _, _ := newTestDirectory(t, cfg)
	ctx := context.Background()
	p, err := d.CreateProject(ctx, "Acme")
	require.NoError(t, err)

	pc, err := d.GetPublicConfig(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "", pc.Billing.PublishableKey)
	assert.Equal(t, "stripe", pc.Billing.Provider)
	assert.Equal(t, config.BillingModeMock, pc.Billing.Mode)
	assert.Equal(t, "http://api.test", pc.APIBaseURL)
	assert.NotNil(t, pc.Project.Theme)
	assert.NotNil(t, pc.Project.Features)
}

func TestPublicConfigKeySourceFollowsMode(t *testing.T) {
	d, _, _ := newTestDirectory(t, testConfig())
	ctx := context.Background()
	p, err := d.CreateProject(ctx, "Acme")
	require.NoError(t, err)
	require.NoError(t, d.PutSecrets(ctx, p.ID, SecretsInput{StripePublishable: strPtr("pk_live_project")}))

	pc, err := d.GetPublicConfig(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "pk_test_platform", pc.Billing.PublishableKey)

	live := model.ModeLive
	_, err = d.UpdateProject(ctx, p.ID, ProjectUpdate{Mode: &live})
	require.NoError(t, err)

	pc, err = d.GetPublicConfig(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "pk_live_project", pc.Billing.PublishableKey)
}

func TestPublicConfigLiveWithoutKeyIsEmpty(t *testing.T) {
	d, _, _ := newTestDirectory(t, testConfig())
	ctx := context.Background()
	p, err := d.CreateProject(ctx, "Acme")
	require.NoError(t, err)
	live := model.ModeLive
	_, err = d.UpdateProject(ctx, p.ID, ProjectUpdate{Mode: &live})
	require.NoError(t, err)

	pc, err := d.GetPublicConfig(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "", pc.Billing.PublishableKey)
}

func TestGetProjectPropagatesStoreErrors(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		Logger:                 logger.Default.LogMode(logger.Silent),
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err)

	mock.ExpectQuery(`SELECT \* FROM "projects"`).WillReturnError(errors.New("connection reset"))

	d := New(db, nil, testConfig(), zap.NewNop())
	_, err = d.GetProject(context.Background(), "proj_1")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}
