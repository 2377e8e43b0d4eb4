package billing

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/leephanna/sign-in-and-billing/internal/credentials"
	"github.com/leephanna/sign-in-and-billing/internal/directory"
	"github.com/leephanna/sign-in-and-billing/internal/model"
	"github.com/leephanna/sign-in-and-billing/internal/provider"
	"github.com/leephanna/sign-in-and-billing/internal/testdb"
	"github.com/leephanna/sign-in-and-billing/internal/validation"
	"github.com/leephanna/sign-in-and-billing/internal/vault"
	"github.com/leephanna/sign-in-and-billing/pkg/config"
	"github.com/leephanna/sign-in-and-billing/pkg/jwtutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v79/webhook"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const platformWebhookSecret = "whsec_platform"

type fakeProvider struct {
	existing  string
	created   []string
	searches  int
	portals   []string
	checkouts []provider.CheckoutParams
	failWith  error
}

func (f *fakeProvider) FindCustomer(ctx context.Context, projectID, userID string) (string, error) {
	f.searches++
	return f.existing, f.failWith
}

func (f *fakeProvider) CreateCustomer(ctx context.Context, email, projectID, userID string) (string, error) {
	if f.failWith != nil {
		return "", f.failWith
	}
	id := "cus_created_" + userID
	f.created = append(f.created, id)
	return id, nil
}

func (f *fakeProvider) CreatePortalSession(ctx context.Context, customerID, returnURL string) (string, error) {
	f.portals = append(f.portals, returnURL)
	return "https://billing.stripe.test/p/" + customerID, nil
}

func (f *fakeProvider) CreateCheckoutSession(ctx context.Context, params provider.CheckoutParams) (string, error) {
	f.checkouts = append(f.checkouts, params)
	return "https://checkout.stripe.test/c/" + params.CustomerID, nil
}

func (f *fakeProvider) ConstructEvent(payload []byte, signature, secret string) (*provider.Event, error) {
	return provider.ConstructStripeEvent(payload, signature, secret)
}

type fixture struct {
	cfg     *config.Config
	db      *gorm.DB
	dir     *directory.Directory
	fake    *fakeProvider
	rec     *Reconciler
	project string
	claims  *jwtutil.SessionClaims
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	v, err := vault.New("master-key")
	require.NoError(t, err)

	f := &fixture{
		cfg: &config.Config{
			Server: config.ServerConfig{PublicBaseURL: "http://api.test"},
			Stripe: config.StripeConfig{
				TestSecretKey:     "sk_test_platform",
				TestWebhookSecret: platformWebhookSecret,
			},
			Billing: config.BillingConfig{
				Mode:             config.BillingModeStripe,
				DefaultReturnURL: "http://localhost:3001/billing",
			},
		},
		db:   testdb.New(t),
		fake: &fakeProvider{},
	}
	f.dir = directory.New(f.db, v, f.cfg, zap.NewNop())
	resolver := credentials.NewResolver(f.dir, v, f.cfg, func(string) provider.Provider { return f.fake }, zap.NewNop())
	f.rec = New(f.db, resolver, f.cfg, zap.NewNop())

	p, err := f.dir.CreateProject(context.Background(), "Acme")
	require.NoError(t, err)
	f.project = p.ID
	f.claims = claimsFor(p.ID, "usr_alice", "alice@x.com")
	return f
}

func claimsFor(projectID, userID, email string) *jwtutil.SessionClaims {
	return &jwtutil.SessionClaims{
		ProjectID:        projectID,
		Email:            email,
		RegisteredClaims: jwt.RegisteredClaims{Subject: userID},
	}
}

func (f *fixture) rows(t *testing.T) []model.Subscription {
	t.Helper()
	var subs []model.Subscription
	require.NoError(t, f.db.Where("project_id = ?", f.project).Order("id").Find(&subs).Error)
	return subs
}

func subscriptionPayload(t *testing.T, secret, eventType, customer, status string, created, periodEnd int64) ([]byte, string) {
	t.Helper()
	payload, err := json.Marshal(map[string]interface{}{
		"id":      "evt_" + status,
		"object":  "event",
		"type":    eventType,
		"created": created,
		"data": map[string]interface{}{
			"object": map[string]interface{}{
				"id":                 "sub_provider_1",
				"object":             "subscription",
				"customer":           customer,
				"status":             status,
				"current_period_end": periodEnd,
			},
		},
	})
	require.NoError(t, err)
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    secret,
		Timestamp: time.Now(),
	})
	return signed.Payload, signed.Header
}

func TestStatusNoneBeforeAnyBilling(t *testing.T) {
	f := newFixture(t)

	st, err := f.rec.GetStatus(context.Background(), f.claims)
	require.NoError(t, err)
	assert.Equal(t, &Status{Status: "none"}, st)
}

func TestMockSessionURLs(t *testing.T) {
	f := newFixture(t)
	f.cfg.Billing.Mode = config.BillingModeMock
	ctx := context.Background()

	portal, err := f.rec.CreatePortalSession(ctx, f.claims, "")
	require.NoError(t, err)
	assert.Equal(t, "http://api.test/mock/billing-portal?project_id="+f.project, portal)

	checkout, err := f.rec.CreateCheckoutSession(ctx, f.claims, CheckoutRequest{
		PriceID:    "price basic/1",
		SuccessURL: "https://app.test/ok",
		CancelURL:  "https://app.test/cancel",
	})
	require.NoError(t, err)
	assert.Equal(t, "http://api.test/mock/checkout?project_id="+f.project+"&price=price+basic%2F1", checkout)

	assert.Empty(t, f.fake.created)
	assert.Empty(t, f.rows(t))
}

func TestCheckoutValidation(t *testing.T) {
	f := newFixture(t)

	_, err := f.rec.CreateCheckoutSession(context.Background(), f.claims, CheckoutRequest{
		PriceID:    "p",
		SuccessURL: "https://app.test/ok",
		CancelURL:  "https://app.test/cancel",
	})
	var verr *validation.Error
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "priceId", verr.Field)

	_, err = f.rec.CreatePortalSession(context.Background(), f.claims, "not a url")
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "returnUrl", verr.Field)
}

func TestPortalCreatesAndPersistsCustomerOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	url, err := f.rec.CreatePortalSession(ctx, f.claims, "")
	require.NoError(t, err)
	assert.Equal(t, "https://billing.stripe.test/p/cus_created_usr_alice", url)
	assert.Equal(t, []string{"http://localhost:3001/billing"}, f.fake.portals)

	_, err = f.rec.CreatePortalSession(ctx, f.claims, "https://app.test/back")
	require.NoError(t, err)

	assert.Len(t, f.fake.created, 1)
	assert.Equal(t, 1, f.fake.searches)

	rows := f.rows(t)
	require.Len(t, rows, 1)
	assert.Equal(t, "sub_usr_alice", rows[0].ID)
	assert.Equal(t, "usr_alice", rows[0].UserID)
	assert.Equal(t, model.StatusNone, rows[0].Status)
	assert.Equal(t, "cus_created_usr_alice", *rows[0].StripeCustomerID)
}

func TestCheckoutReusesTaggedProviderCustomer(t *testing.T) {
	f := newFixture(t)
	f.fake.existing = "cus_orphan"

	url, err := f.rec.CreateCheckoutSession(context.Background(), f.claims, CheckoutRequest{
		PriceID:    "price_123",
		SuccessURL: "https://app.test/ok",
		CancelURL:  "https://app.test/cancel",
	})
	require.NoError(t, err)
	assert.Equal(t, "https://checkout.stripe.test/c/cus_orphan", url)
	assert.Empty(t, f.fake.created)

	require.Len(t, f.fake.checkouts, 1)
	assert.Equal(t, "price_123", f.fake.checkouts[0].PriceID)
	assert.Equal(t, map[string]string{"project_id": f.project, "user_id": "usr_alice"}, f.fake.checkouts[0].Metadata)

	rows := f.rows(t)
	require.Len(t, rows, 1)
	assert.Equal(t, "cus_orphan", *rows[0].StripeCustomerID)
}

func TestProviderFailureLeavesNoMapping(t *testing.T) {
	f := newFixture(t)
	f.fake.failWith = errors.New("stripe unavailable")

	_, err := f.rec.CreatePortalSession(context.Background(), f.claims, "")
	assert.Error(t, err)
	assert.Empty(t, f.rows(t))
}

func TestWebhookMockModeAcknowledges(t *testing.T) {
	f := newFixture(t)
	f.cfg.Billing.Mode = config.BillingModeMock

	res, err := f.rec.HandleWebhook(context.Background(), f.project, []byte("{}"), "")
	require.NoError(t, err)
	assert.Equal(t, credentials.ModeMock, res.Mode)
	assert.Equal(t, OutcomeMock, res.Outcome)
}

func TestWebhookFailsClosed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	payload, header := subscriptionPayload(t, platformWebhookSecret, provider.EventSubscriptionUpdated, "cus_1", "active", 1700000000, 1735689600)

	_, err := f.rec.HandleWebhook(ctx, "", payload, header)
	assert.ErrorIs(t, err, ErrMissingProjectID)

	_, err = f.rec.HandleWebhook(ctx, f.project, payload, "")
	assert.ErrorIs(t, err, ErrMissingSignature)

	forged, forgedHeader := subscriptionPayload(t, "whsec_attacker", provider.EventSubscriptionUpdated, "cus_1", "active", 1700000000, 1735689600)
	_, err = f.rec.HandleWebhook(ctx, f.project, forged, forgedHeader)
	assert.ErrorIs(t, err, ErrInvalidSignature)

	tampered := append([]byte(nil), payload...)
	tampered[len(tampered)-3] = 'X'
	_, err = f.rec.HandleWebhook(ctx, f.project, tampered, header)
	assert.ErrorIs(t, err, ErrInvalidSignature)

	f.cfg.Stripe.TestWebhookSecret = ""
	_, err = f.rec.HandleWebhook(ctx, f.project, payload, header)
	assert.ErrorIs(t, err, ErrMissingWebhookSecret)

	assert.Empty(t, f.rows(t))
}

func TestWebhookReplayIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	payload, header := subscriptionPayload(t, platformWebhookSecret, provider.EventSubscriptionUpdated, "cus_1", "active", 1700000000, 1735689600)

	for i := 0; i < 2; i++ {
		res, err := f.rec.HandleWebhook(ctx, f.project, payload, header)
		require.NoError(t, err)
		assert.Equal(t, OutcomeApplied, res.Outcome)
	}

	rows := f.rows(t)
	require.Len(t, rows, 1)
	assert.Equal(t, "sub_cus_1", rows[0].ID)
	assert.Equal(t, model.UnknownUserID, rows[0].UserID)
	assert.Equal(t, "active", rows[0].Status)
	assert.Equal(t, "sub_provider_1", *rows[0].StripeSubscriptionID)
	require.NotNil(t, rows[0].CurrentPeriodEnd)
	assert.Equal(t, int64(1735689600), rows[0].CurrentPeriodEnd.Unix())
}

func TestWebhookOlderEventDoesNotRegressState(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	newer, newerHeader := subscriptionPayload(t, platformWebhookSecret, provider.EventSubscriptionUpdated, "cus_1", "canceled", 1700000100, 1735689600)
	older, olderHeader := subscriptionPayload(t, platformWebhookSecret, provider.EventSubscriptionUpdated, "cus_1", "active", 1700000000, 1735689600)

	_, err := f.rec.HandleWebhook(ctx, f.project, newer, newerHeader)
	require.NoError(t, err)
	res, err := f.rec.HandleWebhook(ctx, f.project, older, olderHeader)
	require.NoError(t, err)
	assert.Equal(t, OutcomeStale, res.Outcome)

	rows := f.rows(t)
	require.Len(t, rows, 1)
	assert.Equal(t, "canceled", rows[0].Status)
}

func TestWebhookUpdatesMappedUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.rec.CreatePortalSession(ctx, f.claims, "")
	require.NoError(t, err)

	payload, header := subscriptionPayload(t, platformWebhookSecret, provider.EventSubscriptionCreated, "cus_created_usr_alice", "trialing", 1700000000, 1735689600)
	_, err = f.rec.HandleWebhook(ctx, f.project, payload, header)
	require.NoError(t, err)

	rows := f.rows(t)
	require.Len(t, rows, 1)
	assert.Equal(t, "sub_usr_alice", rows[0].ID)

	st, err := f.rec.GetStatus(ctx, f.claims)
	require.NoError(t, err)
	assert.Equal(t, "trialing", st.Status)
	assert.Equal(t, "cus_created_usr_alice", *st.StripeCustomerID)
}

func TestUnmappedCustomerRowIsAdoptedLater(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	payload, header := subscriptionPayload(t, platformWebhookSecret, provider.EventSubscriptionCreated, "cus_orphan", "active", 1700000000, 1735689600)
	_, err := f.rec.HandleWebhook(ctx, f.project, payload, header)
	require.NoError(t, err)

	f.fake.existing = "cus_orphan"
	_, err = f.rec.CreatePortalSession(ctx, f.claims, "")
	require.NoError(t, err)

	rows := f.rows(t)
	require.Len(t, rows, 1)
	assert.Equal(t, "sub_cus_orphan", rows[0].ID)
	assert.Equal(t, "usr_alice", rows[0].UserID)

	st, err := f.rec.GetStatus(ctx, f.claims)
	require.NoError(t, err)
	assert.Equal(t, "active", st.Status)
}

func TestWebhookIgnoresOtherEvents(t *testing.T) {
	f := newFixture(t)
	payload, err := json.Marshal(map[string]interface{}{
		"id":      "evt_invoice",
		"object":  "event",
		"type":    "invoice.paid",
		"created": 1700000000,
		"data":    map[string]interface{}{"object": map[string]interface{}{"id": "in_1", "object": "invoice"}},
	})
	require.NoError(t, err)
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{Payload: payload, Secret: platformWebhookSecret, Timestamp: time.Now()})

	res, err := f.rec.HandleWebhook(context.Background(), f.project, signed.Payload, signed.Header)
	require.NoError(t, err)
	assert.Equal(t, OutcomeIgnored, res.Outcome)
	assert.Equal(t, "invoice.paid", res.EventType)
	assert.Empty(t, f.rows(t))
}

func TestWebhookDeletedEventMarksCanceled(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	created, createdHeader := subscriptionPayload(t, platformWebhookSecret, provider.EventSubscriptionCreated, "cus_1", "active", 1700000000, 1735689600)
	deleted, deletedHeader := subscriptionPayload(t, platformWebhookSecret, provider.EventSubscriptionDeleted, "cus_1", "canceled", 1700000500, 1735689600)

	_, err := f.rec.HandleWebhook(ctx, f.project, created, createdHeader)
	require.NoError(t, err)
	_, err = f.rec.HandleWebhook(ctx, f.project, deleted, deletedHeader)
	require.NoError(t, err)

	rows := f.rows(t)
	require.Len(t, rows, 1)
	assert.Equal(t, "canceled", rows[0].Status)
}
