package payment

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"

	"github.com/arcano/arcano-consultas/internal/domain"
	"github.com/arcano/arcano-consultas/internal/metrics"
	"github.com/arcano/arcano-consultas/internal/store"
	"github.com/arcano/arcano-consultas/internal/store/storetest"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type fakeGateway struct {
	mu          sync.Mutex
	preference  *domain.Preference
	createErr   error
	payments    []domain.GatewayPayment
	byID        map[string]*domain.GatewayPayment
	searchCalls int
	getCalls    int
	lastRequest domain.PreferenceRequest
}

func (f *fakeGateway) CreatePreference(_ context.Context, req domain.PreferenceRequest) (*domain.Preference, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastRequest = req
	if f.createErr != nil {
		return nil, f.createErr
	}
	return f.preference, nil
}

func (f *fakeGateway) SearchByExternalReference(_ context.Context, ref string) ([]domain.GatewayPayment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.searchCalls++
	var out []domain.GatewayPayment
	for _, p := range f.payments {
		if p.ExternalReference == ref {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeGateway) GetPayment(_ context.Context, id string) (*domain.GatewayPayment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getCalls++
	p, ok := f.byID[id]
	if !ok {
		return nil, domain.NewGatewayError("payment not found", http.StatusNotFound, "not_found")
	}
	return p, nil
}

type fakeLookup map[string]*domain.Result

func (f fakeLookup) Get(_ context.Context, kind domain.ConsultationType, id string) (*domain.Result, error) {
	r, ok := f[id]
	if !ok || r.Kind != kind {
		return nil, domain.NewNotFoundError(string(kind), id)
	}
	return r, nil
}

type fakeFinalizer struct {
	mu    sync.Mutex
	calls []string
}

func (f *fakeFinalizer) Finalize(_ context.Context, kind domain.ConsultationType, id string) (*domain.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, string(kind)+":"+id)
	return &domain.Result{Kind: kind, ID: id, Status: domain.ConsultationCompleted}, nil
}

type memoryGuard struct {
	mu   sync.Mutex
	seen map[string]bool
}

func (g *memoryGuard) CheckAndMark(_ context.Context, id string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.seen[id] {
		return true, nil
	}
	g.seen[id] = true
	return false, nil
}

func (g *memoryGuard) Delete(_ context.Context, id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.seen, id)
	return nil
}

type staticVerifier bool

func (v staticVerifier) Enabled() bool              { return true }
func (v staticVerifier) Verify(_, _, _ string) bool { return bool(v) }

type fixture struct {
	db      *gorm.DB
	repo    *store.PaymentRepo
	gateway *fakeGateway
	reg     *prometheus.Registry
	svc     *Service
}

func newFixture(t *testing.T, opts Options) *fixture {
	db := storetest.NewDB(t)
	f := &fixture{
		db:   db,
		repo: store.NewPaymentRepo(db),
		gateway: &fakeGateway{
			preference: &domain.Preference{ID: "pref-1", InitPoint: "https://mp.test/checkout/pref-1"},
			byID:       map[string]*domain.GatewayPayment{},
		},
		reg: prometheus.NewRegistry(),
	}
	lookup := fakeLookup{
		"c-1": {Kind: domain.KindNumerology, ID: "c-1", Status: domain.ConsultationPending, Price: "25.00"},
		"c-2": {Kind: domain.KindTarot, ID: "c-2", Status: domain.ConsultationCompleted, Price: "3.00"},
	}
	opts.Metrics = metrics.New(f.reg)
	f.svc = NewService(f.repo, f.gateway, lookup, opts)
	return f
}

// counter reads one labelled counter from the fixture registry.
func (f *fixture) counter(t *testing.T, name, label string) float64 {
	t.Helper()
	families, err := f.reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if lp.GetValue() == label {
					return m.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}

func checkout() CheckoutRequest {
	return CheckoutRequest{
		ConsultationType: domain.KindNumerology,
		ConsultationID:   "c-1",
		Amount:           decimal.RequireFromString("25.00"),
		Description:      "Leitura de Numerologia",
	}
}

func (f *fixture) countPayments(t *testing.T) int64 {
	var n int64
	require.NoError(t, f.db.Model(&domain.Payment{}).Count(&n).Error)
	return n
}

func TestCreatePreference(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	out, err := f.svc.CreatePreference(ctx, checkout())
	require.NoError(t, err)
	assert.Equal(t, "pref-1", out.PreferenceID)
	assert.Equal(t, "https://mp.test/checkout/pref-1", out.CheckoutURL)
	assert.Equal(t, "c-1", f.gateway.lastRequest.ExternalReference)
	assert.Equal(t, "Leitura de Numerologia", f.gateway.lastRequest.Title)

	stored, err := f.repo.Get(ctx, out.PaymentID)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentPending, stored.Status)
	assert.Equal(t, "pref-1", stored.ExternalPaymentID)
	assert.Equal(t, domain.AnonymousUserID, stored.UserID)
	assert.Equal(t, domain.PaymentMethodMercadoPago, stored.PaymentMethod)
	assert.Equal(t, float64(1), f.counter(t, "arcano_preferences_created_total", string(domain.KindNumerology)))
}

func TestCreatePreferenceValidation(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	req := checkout()
	req.Amount = decimal.Zero
	_, err := f.svc.CreatePreference(ctx, req)
	assert.True(t, errors.Is(err, domain.ErrValidation))

	req = checkout()
	req.ConsultationType = domain.KindDreams
	_, err = f.svc.CreatePreference(ctx, req)
	assert.True(t, errors.Is(err, domain.ErrValidation))

	req = checkout()
	req.ConsultationID = "missing"
	_, err = f.svc.CreatePreference(ctx, req)
	assert.True(t, errors.Is(err, domain.ErrNotFound))

	req = checkout()
	req.ConsultationType, req.ConsultationID = domain.KindTarot, "c-2"
	_, err = f.svc.CreatePreference(ctx, req)
	assert.True(t, errors.Is(err, domain.ErrValidation))

	assert.EqualValues(t, 0, f.countPayments(t))
}

func TestCreatePreferenceGatewayErrorStoresNothing(t *testing.T) {
	f := newFixture(t, Options{})
	f.gateway.createErr = domain.NewGatewayError("preference rejected", http.StatusBadRequest, `{"message":"invalid unit_price"}`)

	_, err := f.svc.CreatePreference(context.Background(), checkout())
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrGateway))

	se, ok := domain.AsServiceError(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusBadRequest, se.GatewayStatus)
	assert.Contains(t, se.GatewayBody, "invalid unit_price")
	assert.EqualValues(t, 0, f.countPayments(t))
}

func TestCreatePreferenceWithoutTokenIsConfigurationError(t *testing.T) {
	f := newFixture(t, Options{})
	f.gateway.createErr = domain.NewConfigurationError("mercado pago access token is not configured")

	_, err := f.svc.CreatePreference(context.Background(), checkout())
	assert.True(t, errors.Is(err, domain.ErrConfiguration))
	assert.EqualValues(t, 0, f.countPayments(t))
}

func TestCheckStatusPendingThenApproved(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	out, err := f.svc.CreatePreference(ctx, checkout())
	require.NoError(t, err)

	st, err := f.svc.CheckStatus(ctx, out.PaymentID)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentPending, st.Status)

	f.gateway.payments = []domain.GatewayPayment{
		{ID: "900", Status: "rejected", ExternalReference: "c-1"},
		{ID: "901", Status: domain.GatewayStatusApproved, ExternalReference: "c-1"},
	}
	st, err = f.svc.CheckStatus(ctx, out.PaymentID)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentApproved, st.Status)
	assert.Equal(t, domain.KindNumerology, st.ConsultationType)
	assert.Equal(t, "c-1", st.ConsultationID)

	stored, err := f.repo.Get(ctx, out.PaymentID)
	require.NoError(t, err)
	assert.Equal(t, "901", stored.GatewayPaymentID)
	assert.Equal(t, float64(1), f.counter(t, "arcano_payments_approved_total", metrics.SourcePoll))
}

func TestCheckStatusApprovedShortCircuits(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	out, err := f.svc.CreatePreference(ctx, checkout())
	require.NoError(t, err)
	f.gateway.payments = []domain.GatewayPayment{{ID: "901", Status: domain.GatewayStatusApproved, ExternalReference: "c-1"}}

	_, err = f.svc.CheckStatus(ctx, out.PaymentID)
	require.NoError(t, err)
	require.Equal(t, 1, f.gateway.searchCalls)

	for i := 0; i < 3; i++ {
		st, err := f.svc.CheckStatus(ctx, out.PaymentID)
		require.NoError(t, err)
		assert.Equal(t, domain.PaymentApproved, st.Status)
	}
	assert.Equal(t, 1, f.gateway.searchCalls)
}

func TestCheckStatusByPreferenceID(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	out, err := f.svc.CreatePreference(ctx, checkout())
	require.NoError(t, err)

	st, err := f.svc.CheckStatus(ctx, out.PreferenceID)
	require.NoError(t, err)
	assert.Equal(t, out.PaymentID, st.PaymentID)
}

func TestCheckStatusUnknownPayment(t *testing.T) {
	f := newFixture(t, Options{})

	_, err := f.svc.CheckStatus(context.Background(), "does-not-exist")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrNotFound))
	assert.Equal(t, 0, f.gateway.searchCalls)
}

func TestHandleWebhookDuplicateLeavesOneApprovedRow(t *testing.T) {
	guard := &memoryGuard{seen: map[string]bool{}}
	f := newFixture(t, Options{Guard: guard})
	ctx := context.Background()

	out, err := f.svc.CreatePreference(ctx, checkout())
	require.NoError(t, err)
	f.gateway.byID["901"] = &domain.GatewayPayment{ID: "901", Status: domain.GatewayStatusApproved, ExternalReference: "c-1"}

	in := WebhookInput{Notification: domain.WebhookNotification{Type: "payment", DataID: "901"}}
	assert.Equal(t, OutcomeProcessed, f.svc.HandleWebhook(ctx, in))
	assert.Equal(t, OutcomeDuplicate, f.svc.HandleWebhook(ctx, in))
	assert.Equal(t, 1, f.gateway.getCalls)

	var approved int64
	require.NoError(t, f.db.Model(&domain.Payment{}).Where("status = ?", domain.PaymentApproved).Count(&approved).Error)
	assert.EqualValues(t, 1, approved)

	stored, err := f.repo.Get(ctx, out.PaymentID)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentApproved, stored.Status)
	assert.Equal(t, float64(1), f.counter(t, "arcano_payments_approved_total", metrics.SourceWebhook))
}

func TestHandleWebhookWithoutGuardIsStillIdempotent(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	_, err := f.svc.CreatePreference(ctx, checkout())
	require.NoError(t, err)
	f.gateway.byID["901"] = &domain.GatewayPayment{ID: "901", Status: domain.GatewayStatusApproved, ExternalReference: "c-1"}

	in := WebhookInput{Notification: domain.WebhookNotification{Type: "payment", DataID: "901"}}
	f.svc.HandleWebhook(ctx, in)
	f.svc.HandleWebhook(ctx, in)

	assert.Equal(t, float64(1), f.counter(t, "arcano_payments_approved_total", metrics.SourceWebhook))
}

func TestHandleWebhookPendingIsReprocessedLater(t *testing.T) {
	guard := &memoryGuard{seen: map[string]bool{}}
	f := newFixture(t, Options{Guard: guard})
	ctx := context.Background()

	_, err := f.svc.CreatePreference(ctx, checkout())
	require.NoError(t, err)
	f.gateway.byID["901"] = &domain.GatewayPayment{ID: "901", Status: "in_process", ExternalReference: "c-1"}

	in := WebhookInput{Notification: domain.WebhookNotification{Type: "payment", DataID: "901"}}
	assert.Equal(t, OutcomeIgnored, f.svc.HandleWebhook(ctx, in))

	f.gateway.byID["901"].Status = domain.GatewayStatusApproved
	assert.Equal(t, OutcomeProcessed, f.svc.HandleWebhook(ctx, in))
}

func TestHandleWebhookNeverFails(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	assert.Equal(t, OutcomeIgnored, f.svc.HandleWebhook(ctx, WebhookInput{Notification: domain.WebhookNotification{Type: "merchant_order", DataID: "1"}}))
	assert.Equal(t, OutcomeIgnored, f.svc.HandleWebhook(ctx, WebhookInput{Notification: domain.WebhookNotification{Type: "payment"}}))
	assert.Equal(t, OutcomeError, f.svc.HandleWebhook(ctx, WebhookInput{Notification: domain.WebhookNotification{Type: "payment", DataID: "404"}}))

	f.gateway.byID["902"] = &domain.GatewayPayment{ID: "902", Status: domain.GatewayStatusApproved, ExternalReference: "unknown"}
	assert.Equal(t, OutcomeIgnored, f.svc.HandleWebhook(ctx, WebhookInput{Notification: domain.WebhookNotification{Type: "payment", DataID: "902"}}))
}

func TestHandleWebhookRejectsBadSignature(t *testing.T) {
	f := newFixture(t, Options{Verifier: staticVerifier(false)})

	out := f.svc.HandleWebhook(context.Background(), WebhookInput{
		Notification: domain.WebhookNotification{Type: "payment", DataID: "901"},
		Signature:    "ts=1,v1=bad",
	})
	assert.Equal(t, OutcomeInvalidSignature, out)
	assert.Equal(t, 0, f.gateway.getCalls)
	assert.Equal(t, float64(1), f.counter(t, "arcano_webhooks_total", OutcomeInvalidSignature))
}

func TestHandleWebhookAutoFinalize(t *testing.T) {
	finalizer := &fakeFinalizer{}
	f := newFixture(t, Options{Finalizer: finalizer, AutoFinalize: true})
	ctx := context.Background()

	_, err := f.svc.CreatePreference(ctx, checkout())
	require.NoError(t, err)
	f.gateway.byID["901"] = &domain.GatewayPayment{ID: "901", Status: domain.GatewayStatusApproved, ExternalReference: "c-1"}

	f.svc.HandleWebhook(ctx, WebhookInput{Notification: domain.WebhookNotification{Type: "payment", DataID: "901"}})
	f.svc.Wait()

	assert.Equal(t, []string{"numerology:c-1"}, finalizer.calls)
}
