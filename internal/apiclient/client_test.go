package apiclient

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/arcano/arcano-consultas/internal/api"
	"github.com/arcano/arcano-consultas/internal/consultation"
	"github.com/arcano/arcano-consultas/internal/domain"
	"github.com/arcano/arcano-consultas/internal/flow"
	"github.com/arcano/arcano-consultas/internal/flow/storage"
	"github.com/arcano/arcano-consultas/internal/payment"
	"github.com/arcano/arcano-consultas/internal/store"
	"github.com/arcano/arcano-consultas/internal/store/storetest"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingGenerator struct {
	mu    sync.Mutex
	calls int
}

func (g *countingGenerator) Generate(context.Context, []domain.Message) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	return "Sua jornada revela coragem.", nil
}

func (g *countingGenerator) Calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

// approvingGateway reports a consultation as paid after the first search.
type approvingGateway struct {
	mu       sync.Mutex
	searches map[string]int
}

func (g *approvingGateway) CreatePreference(_ context.Context, req domain.PreferenceRequest) (*domain.Preference, error) {
	return &domain.Preference{ID: "pref-" + req.ExternalReference, InitPoint: "https://mp.test/" + req.ExternalReference}, nil
}

func (g *approvingGateway) SearchByExternalReference(_ context.Context, ref string) ([]domain.GatewayPayment, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.searches[ref]++
	if g.searches[ref] < 2 {
		return []domain.GatewayPayment{{ID: "55", Status: "pending", ExternalReference: ref}}, nil
	}
	return []domain.GatewayPayment{{ID: "55", Status: domain.GatewayStatusApproved, ExternalReference: ref}}, nil
}

func (g *approvingGateway) GetPayment(context.Context, string) (*domain.GatewayPayment, error) {
	return nil, domain.NewGatewayError("not used", http.StatusNotFound, "")
}

func newServer(t *testing.T, gen domain.ContentGenerator) *httptest.Server {
	gin.SetMode(gin.TestMode)
	db := storetest.NewDB(t)
	repo := store.NewPaymentRepo(db)
	registry := consultation.NewRegistry(consultation.Deps{DB: db, Generator: gen, Payments: repo})
	payments := payment.NewService(repo, &approvingGateway{searches: map[string]int{}}, registry, payment.Options{})
	srv := httptest.NewServer(api.SetupRouter(api.NewHandler(registry, payments, nil), api.RouterOptions{}))
	t.Cleanup(srv.Close)
	return srv
}

func TestCheckoutReturnEndToEnd(t *testing.T) {
	gen := &countingGenerator{}
	srv := newServer(t, gen)
	client := NewClient(srv.URL+"/", "", 5*time.Second)
	sessions := flow.NewSessionStore(storage.NewMemory())
	ctx := context.Background()

	page := flow.NewController(domain.KindAstral, client, sessions)
	draft, err := page.Submit(ctx, consultation.AstralInput{
		BirthDate:     "1988-11-02",
		BirthTime:     "07:45",
		BirthLocation: "Belo Horizonte",
	})
	require.NoError(t, err)
	assert.Equal(t, "40.00", draft.Price)

	checkoutURL, err := page.Pay(ctx, "Mapa Astral Premium", flow.Payer{})
	require.NoError(t, err)
	assert.Equal(t, "https://mp.test/"+draft.ID, checkoutURL)

	// the browser comes back from the gateway
	cb := flow.NewCallback(client, sessions, flow.CallbackOptions{Interval: 10 * time.Millisecond})
	out := cb.Run(ctx, url.Values{"payment_id": {"55"}, "status": {"approved"}})
	require.NoError(t, out.Err)
	assert.Equal(t, flow.CallbackApproved, out.State)
	assert.Equal(t, "/astral?paid=true&map="+draft.ID, out.Redirect)
	assert.Equal(t, 1, gen.Calls())

	sess, err := sessions.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, flow.Session{}, sess)

	// the domain page resumes from the redirect
	landing := flow.NewController(domain.KindAstral, client, sessions)
	redirect, err := url.Parse(out.Redirect)
	require.NoError(t, err)
	resumed, err := landing.Resume(ctx, redirect.Query())
	require.NoError(t, err)
	assert.True(t, resumed)
	assert.Equal(t, flow.StageResponse, landing.Stage())
	assert.Equal(t, "Sua jornada revela coragem.", landing.Result().Astral.Interpretation)

	// finalize again through the API returns the stored result
	again, err := client.Finalize(ctx, domain.KindAstral, draft.ID)
	require.NoError(t, err)
	assert.True(t, again.Completed())
	assert.Equal(t, 1, gen.Calls())
}

func TestClientMapsErrors(t *testing.T) {
	srv := newServer(t, &countingGenerator{})
	client := NewClient(srv.URL, "", time.Second)
	ctx := context.Background()

	_, err := client.CheckStatus(ctx, "unknown")
	assert.True(t, errors.Is(err, domain.ErrNotFound))

	_, err = client.CreateDraft(ctx, domain.KindOracle, consultation.OracleInput{OracleType: "tarot", Question: "curta", NumberOfSymbols: 2})
	assert.True(t, errors.Is(err, domain.ErrValidation))

	_, err = client.CreateDraft(ctx, domain.ConsultationType("palmistry"), nil)
	assert.True(t, errors.Is(err, domain.ErrValidation))

	draft, err := client.CreateDraft(ctx, domain.KindNumerology, consultation.NumerologyInput{FullName: "Maria Silva", BirthDate: "1990-05-15"})
	require.NoError(t, err)
	_, err = client.Finalize(ctx, domain.KindNumerology, draft.ID)
	assert.True(t, errors.Is(err, domain.ErrPaymentRequired))
}

func TestDecodeErrorFallsBackToStatus(t *testing.T) {
	err := decodeError(http.StatusConflict, []byte("busy"))
	assert.True(t, errors.Is(err, domain.ErrConflict))

	err = decodeError(http.StatusPaymentRequired, []byte("pay first"))
	assert.True(t, errors.Is(err, domain.ErrPaymentRequired))

	err = decodeError(http.StatusServiceUnavailable, []byte("down"))
	require.Error(t, err)
	_, ok := domain.AsServiceError(err)
	assert.False(t, ok)
}
