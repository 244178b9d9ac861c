package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/arcano/arcano-consultas/internal/domain"
	"github.com/arcano/arcano-consultas/internal/flow"
	"github.com/arcano/arcano-consultas/internal/flow/storage"
	"github.com/arcano/arcano-consultas/internal/logger"
	"github.com/arcano/arcano-consultas/internal/payment"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubAPI struct {
	mu        sync.Mutex
	form      json.RawMessage
	checkout  payment.CheckoutRequest
	finalized []string
	approved  bool
}

func (s *stubAPI) CreateDraft(_ context.Context, kind domain.ConsultationType, input any) (*domain.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.form, _ = input.(json.RawMessage)
	if !kind.Paid() {
		return &domain.Result{Kind: kind, ID: "d-1", Status: domain.ConsultationCompleted}, nil
	}
	return &domain.Result{Kind: kind, ID: "c-1", Status: domain.ConsultationPending, Price: "25.00"}, nil
}

func (s *stubAPI) Get(_ context.Context, kind domain.ConsultationType, id string) (*domain.Result, error) {
	return &domain.Result{Kind: kind, ID: id, Status: domain.ConsultationCompleted}, nil
}

func (s *stubAPI) Finalize(_ context.Context, kind domain.ConsultationType, id string) (*domain.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finalized = append(s.finalized, id)
	return &domain.Result{Kind: kind, ID: id, Status: domain.ConsultationCompleted, Price: "25.00"}, nil
}

func (s *stubAPI) CreatePreference(_ context.Context, req payment.CheckoutRequest) (*payment.Checkout, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checkout = req
	return &payment.Checkout{PreferenceID: "pref-1", PaymentID: "p-1", CheckoutURL: "https://mp.example/checkout/pref-1"}, nil
}

func (s *stubAPI) CheckStatus(_ context.Context, paymentID string) (*payment.Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	status := domain.PaymentPending
	if s.approved {
		status = domain.PaymentApproved
	}
	return &payment.Status{PaymentID: paymentID, Status: status, ConsultationID: "c-1", ConsultationType: domain.KindNumerology}, nil
}

func newApp(api *stubAPI) (*app, *bytes.Buffer, *storage.Memory) {
	mem := storage.NewMemory()
	out := &bytes.Buffer{}
	return &app{
		backend:  api,
		sessions: flow.NewSessionStore(mem),
		out:      out,
		logg:     logger.Nop(),
		interval: 5 * time.Millisecond,
		wait:     time.Second,
	}, out, mem
}

func TestStartPaidPrintsCheckoutAndKeepsSession(t *testing.T) {
	api := &stubAPI{}
	a, out, _ := newApp(api)
	ctx := context.Background()

	form := []byte(`{"full_name":"Ana Lima","birth_date":"1990-05-17"}`)
	require.NoError(t, a.start(ctx, "numerology", form, "", flow.Payer{Email: "ana@example.com"}))

	assert.Equal(t, "https://mp.example/checkout/pref-1\n", out.String())
	assert.JSONEq(t, string(form), string(api.form))
	assert.Equal(t, "c-1", api.checkout.ConsultationID)
	assert.Equal(t, "25", api.checkout.Amount.String())
	assert.Equal(t, "Consulta numerology", api.checkout.Description)
	assert.Equal(t, "ana@example.com", api.checkout.PayerEmail)

	sess, err := a.sessions.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, flow.Session{ConsultationID: "c-1", ConsultationType: domain.KindNumerology, PendingPaymentID: "p-1"}, sess)
}

func TestStartFreePrintsResult(t *testing.T) {
	a, out, _ := newApp(&stubAPI{})

	require.NoError(t, a.start(context.Background(), "dreams", []byte(`{"dream":"voava"}`), "", flow.Payer{}))

	var res domain.Result
	require.NoError(t, json.Unmarshal(out.Bytes(), &res))
	assert.Equal(t, "d-1", res.ID)
	assert.Equal(t, domain.KindDreams, res.Kind)
}

func TestStartRejectsBadInput(t *testing.T) {
	a, _, _ := newApp(&stubAPI{})
	ctx := context.Background()

	err := a.start(ctx, "palmistry", []byte(`{}`), "", flow.Payer{})
	assert.True(t, errors.Is(err, domain.ErrValidation))

	err = a.start(ctx, "tarot", []byte(`{not json`), "", flow.Payer{})
	assert.True(t, errors.Is(err, domain.ErrValidation))
}

func TestFinishConfirmsAndFinalizes(t *testing.T) {
	api := &stubAPI{}
	a, out, mem := newApp(api)
	ctx := context.Background()

	require.NoError(t, a.start(ctx, "numerology", []byte(`{}`), "Mapa", flow.Payer{}))
	out.Reset()
	api.mu.Lock()
	api.approved = true
	api.mu.Unlock()

	require.NoError(t, a.finish(ctx, "https://arcano.example/payment/success?preference_id=pref-1"))

	lines := bytes.SplitN(out.Bytes(), []byte("\n"), 2)
	require.Len(t, lines, 2)
	var res domain.Result
	require.NoError(t, json.Unmarshal(lines[1], &res))

	assert.Equal(t, "/numerology?paid=true&reading=c-1", string(lines[0]))
	assert.Equal(t, domain.ConsultationCompleted, res.Status)
	assert.Equal(t, []string{"c-1"}, api.finalized)

	_, ok, err := mem.Get(ctx, flow.KeyPendingPaymentID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFinishTimesOutWhilePending(t *testing.T) {
	api := &stubAPI{}
	a, _, mem := newApp(api)
	a.wait = 30 * time.Millisecond
	ctx := context.Background()

	require.NoError(t, a.start(ctx, "numerology", []byte(`{}`), "", flow.Payer{}))

	err := a.finish(ctx, "https://arcano.example/payment/success")
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Empty(t, api.finalized)

	id, ok, err := mem.Get(ctx, flow.KeyPendingPaymentID)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "p-1", id)
}

func TestResetClearsSession(t *testing.T) {
	a, _, mem := newApp(&stubAPI{})
	ctx := context.Background()

	require.NoError(t, a.start(ctx, "tarot", []byte(`{}`), "", flow.Payer{}))
	require.NoError(t, a.reset(ctx))

	_, ok, err := mem.Get(ctx, flow.KeyConsultationID)
	require.NoError(t, err)
	assert.False(t, ok)
}
