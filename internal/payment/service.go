// Package payment orchestrates checkout preferences, status polling and
// Mercado Pago webhooks for paid consultations.
package payment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/arcano/arcano-consultas/internal/domain"
	"github.com/arcano/arcano-consultas/internal/logger"
	"github.com/arcano/arcano-consultas/internal/metrics"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Webhook outcomes, also used as metric labels.
const (
	OutcomeProcessed        = "processed"
	OutcomeDuplicate        = "duplicate"
	OutcomeIgnored          = "ignored"
	OutcomeInvalidSignature = "invalid_signature"
	OutcomeError            = "error"
)

// WebhookGuard remembers handled deliveries. The redis IdempotencyGuard satisfies it.
type WebhookGuard interface {
	CheckAndMark(ctx context.Context, eventID string) (bool, error)
	Delete(ctx context.Context, eventID string) error
}

// SignatureVerifier checks the x-signature header of a delivery.
type SignatureVerifier interface {
	Enabled() bool
	Verify(xSignature, xRequestID, dataID string) bool
}

// Options wires the optional collaborators.
type Options struct {
	Logger   *logger.Logger
	Metrics  *metrics.Metrics
	Guard    WebhookGuard
	Verifier SignatureVerifier
	// Finalizer enables auto-finalize on webhook approval when AutoFinalize is set.
	Finalizer    domain.Finalizer
	AutoFinalize bool
	Clock        func() time.Time
}

// Service implements the payment business logic.
// It orchestrates between the consultation lookup, the local payments table
// and the payment gateway.
type Service struct {
	payments      domain.PaymentRepository
	gateway       domain.PaymentGateway
	consultations domain.ConsultationLookup

	logg         *logger.Logger
	metrics      *metrics.Metrics
	guard        WebhookGuard
	verifier     SignatureVerifier
	finalizer    domain.Finalizer
	autoFinalize bool
	now          func() time.Time

	inflight sync.WaitGroup
}

// NewService creates a new payment service with the required dependencies.
func NewService(
	payments domain.PaymentRepository,
	gateway domain.PaymentGateway,
	consultations domain.ConsultationLookup,
	opts Options,
) *Service {
	logg := opts.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	now := opts.Clock
	if now == nil {
		now = time.Now
	}
	return &Service{
		payments:      payments,
		gateway:       gateway,
		consultations: consultations,
		logg:          logg,
		metrics:       opts.Metrics,
		guard:         opts.Guard,
		verifier:      opts.Verifier,
		finalizer:     opts.Finalizer,
		autoFinalize:  opts.AutoFinalize && opts.Finalizer != nil,
		now:           now,
	}
}

// CheckoutRequest is the input of CreatePreference.
type CheckoutRequest struct {
	ConsultationType domain.ConsultationType `json:"consultation_type"`
	ConsultationID   string                  `json:"consultation_id"`
	Amount           decimal.Decimal         `json:"amount"`
	Description      string                  `json:"description"`
	PayerEmail       string                  `json:"payer_email,omitempty"`
	PayerName        string                  `json:"payer_name,omitempty"`
	UserID           string                  `json:"-"`
}

// Checkout is returned to the client, which redirects to CheckoutURL.
type Checkout struct {
	PreferenceID string `json:"preference_id"`
	CheckoutURL  string `json:"checkout_url"`
	PaymentID    string `json:"payment_id"`
}

// Status is the answer of CheckStatus.
type Status struct {
	PaymentID        string                  `json:"payment_id"`
	Status           domain.PaymentStatus    `json:"status"`
	ConsultationID   string                  `json:"consultation_id"`
	ConsultationType domain.ConsultationType `json:"consultation_type"`
}

// CreatePreference handles the checkout flow:
// 1. Validates the request and that the consultation exists
// 2. Creates a payment preference in Mercado Pago
// 3. Stores a pending payment bound to the preference id
func (s *Service) CreatePreference(ctx context.Context, req CheckoutRequest) (*Checkout, error) {
	if err := validateCheckout(req); err != nil {
		return nil, err
	}

	consultation, err := s.consultations.Get(ctx, req.ConsultationType, req.ConsultationID)
	if err != nil {
		return nil, err
	}
	if consultation.Completed() {
		return nil, domain.NewValidationError(fmt.Sprintf("%s %s is already completed", req.ConsultationType, req.ConsultationID))
	}
	if price, err := decimal.NewFromString(consultation.Price); err == nil && !req.Amount.Equal(price) {
		s.logg.Warn(s.logg.WithFields(ctx, map[string]any{
			"consultation_id": req.ConsultationID,
			"amount":          req.Amount.StringFixed(2),
			"price":           consultation.Price,
		}), "checkout amount differs from consultation price")
	}

	title := strings.TrimSpace(req.Description)
	if title == "" {
		title = "Consulta " + string(req.ConsultationType)
	}

	preference, err := s.gateway.CreatePreference(ctx, domain.PreferenceRequest{
		ExternalReference: req.ConsultationID,
		Title:             title,
		Amount:            req.Amount,
		PayerEmail:        req.PayerEmail,
		PayerName:         req.PayerName,
	})
	if err != nil {
		s.metrics.GatewayError("create_preference")
		s.logg.Error(ctx, "failed to create mercado pago preference", err)
		return nil, err
	}

	userID := req.UserID
	if userID == "" {
		userID = domain.AnonymousUserID
	}
	now := s.now().UTC()
	payment := &domain.Payment{
		ID:                uuid.NewString(),
		UserID:            userID,
		ConsultationID:    req.ConsultationID,
		ConsultationType:  req.ConsultationType,
		Amount:            req.Amount,
		PaymentMethod:     domain.PaymentMethodMercadoPago,
		ExternalPaymentID: preference.ID,
		Status:            domain.PaymentPending,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := s.payments.Create(ctx, payment); err != nil {
		return nil, err
	}

	s.metrics.PreferenceCreated(string(req.ConsultationType))
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"payment_id":      payment.ID,
		"preference_id":   preference.ID,
		"consultation_id": req.ConsultationID,
		"amount":          req.Amount.StringFixed(2),
	}), "created payment preference")

	return &Checkout{
		PreferenceID: preference.ID,
		CheckoutURL:  preference.InitPoint,
		PaymentID:    payment.ID,
	}, nil
}

// CheckStatus reports the local payment status, asking the gateway only
// while the payment is not approved yet. paymentID may be any reference
// accepted by PaymentRepository.Lookup.
func (s *Service) CheckStatus(ctx context.Context, paymentID string) (*Status, error) {
	if strings.TrimSpace(paymentID) == "" {
		return nil, domain.NewValidationError("payment id is required")
	}

	payment, err := s.payments.Lookup(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if payment.Status == domain.PaymentApproved {
		return statusOf(payment), nil
	}

	found, err := s.gateway.SearchByExternalReference(ctx, payment.ConsultationID)
	if err != nil {
		s.metrics.GatewayError("search_payments")
		return nil, err
	}

	for _, gp := range found {
		if gp.Status != domain.GatewayStatusApproved {
			continue
		}
		changed, err := s.payments.MarkApproved(ctx, payment.ID, gp.ID)
		if err != nil {
			return nil, err
		}
		if changed {
			s.metrics.PaymentApproved(metrics.SourcePoll)
			s.logg.Info(s.logg.WithFields(ctx, map[string]any{
				"payment_id":         payment.ID,
				"gateway_payment_id": gp.ID,
			}), "payment approved by status poll")
		}
		payment.Status = domain.PaymentApproved
		break
	}

	return statusOf(payment), nil
}

// WebhookInput is one Mercado Pago notification with its delivery headers.
type WebhookInput struct {
	Notification domain.WebhookNotification
	Signature    string
	RequestID    string
}

// HandleWebhook processes a notification and reports its outcome. It never
// fails: the HTTP layer always acknowledges so Mercado Pago stops retrying.
func (s *Service) HandleWebhook(ctx context.Context, in WebhookInput) string {
	outcome := s.handleWebhook(ctx, in)
	s.metrics.Webhook(outcome)
	return outcome
}

func (s *Service) handleWebhook(ctx context.Context, in WebhookInput) string {
	n := in.Notification
	ctx = s.logg.WithFields(ctx, map[string]any{"webhook_type": n.Type, "gateway_payment_id": n.DataID})

	if n.Type != "payment" || n.DataID == "" {
		s.logg.Debug(ctx, "ignoring webhook")
		return OutcomeIgnored
	}

	if s.verifier != nil && s.verifier.Enabled() && !s.verifier.Verify(in.Signature, in.RequestID, n.DataID) {
		s.logg.Warn(ctx, "webhook signature mismatch")
		return OutcomeInvalidSignature
	}

	if s.guard != nil {
		seen, err := s.guard.CheckAndMark(ctx, n.DataID)
		if err != nil {
			// the row update is idempotent on its own
			s.logg.Error(ctx, "webhook idempotency check failed", err)
		} else if seen {
			return OutcomeDuplicate
		}
	}

	outcome, err := s.applyWebhook(ctx, n.DataID)
	if err != nil {
		s.logg.Error(ctx, "webhook processing failed", err)
	}
	if outcome != OutcomeProcessed {
		s.forget(ctx, n.DataID)
	}
	return outcome
}

// applyWebhook approves the local payment matching an approved gateway payment.
func (s *Service) applyWebhook(ctx context.Context, gatewayPaymentID string) (string, error) {
	gp, err := s.gateway.GetPayment(ctx, gatewayPaymentID)
	if err != nil {
		s.metrics.GatewayError("get_payment")
		return OutcomeError, err
	}
	if gp.Status != domain.GatewayStatusApproved || gp.ExternalReference == "" {
		s.logg.Info(s.logg.WithField(ctx, "gateway_status", gp.Status), "webhook payment not approved")
		return OutcomeIgnored, nil
	}

	payment, err := s.payments.FindByConsultation(ctx, gp.ExternalReference)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			s.logg.Warn(s.logg.WithConsultation(ctx, "", gp.ExternalReference), "webhook for unknown consultation")
			return OutcomeIgnored, nil
		}
		return OutcomeError, err
	}

	changed, err := s.payments.MarkApproved(ctx, payment.ID, gp.ID)
	if err != nil {
		return OutcomeError, err
	}
	if changed {
		s.metrics.PaymentApproved(metrics.SourceWebhook)
		s.logg.Info(s.logg.WithField(ctx, "payment_id", payment.ID), "payment approved by webhook")
	}

	if s.autoFinalize {
		s.finalizeAsync(ctx, payment.ConsultationType, payment.ConsultationID)
	}
	return OutcomeProcessed, nil
}

// forget drops the delivery mark so a later status change is processed.
func (s *Service) forget(ctx context.Context, gatewayPaymentID string) {
	if s.guard == nil {
		return
	}
	if err := s.guard.Delete(ctx, gatewayPaymentID); err != nil {
		s.logg.Error(ctx, "failed to clear webhook idempotency key", err)
	}
}

// finalizeAsync generates the paid content outside the webhook request.
// Conflicts mean a client already finalizes it and are not reported.
func (s *Service) finalizeAsync(ctx context.Context, kind domain.ConsultationType, consultationID string) {
	ctx = context.WithoutCancel(ctx)
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		_, err := s.finalizer.Finalize(ctx, kind, consultationID)
		if err != nil && !errors.Is(err, domain.ErrConflict) {
			s.logg.Error(s.logg.WithConsultation(ctx, string(kind), consultationID), "auto finalize failed", err)
		}
	}()
}

// Wait blocks until background finalize calls return.
func (s *Service) Wait() {
	s.inflight.Wait()
}

func statusOf(p *domain.Payment) *Status {
	return &Status{
		PaymentID:        p.ID,
		Status:           p.Status,
		ConsultationID:   p.ConsultationID,
		ConsultationType: p.ConsultationType,
	}
}

// validateCheckout performs basic validation on the checkout request.
func validateCheckout(req CheckoutRequest) error {
	if !req.ConsultationType.Paid() {
		return domain.NewValidationError(fmt.Sprintf("consultation_type %q is not a paid consultation", req.ConsultationType))
	}
	if strings.TrimSpace(req.ConsultationID) == "" {
		return domain.NewValidationError("consultation_id is required")
	}
	if !req.Amount.IsPositive() {
		return domain.NewValidationError("amount must be greater than 0")
	}
	return nil
}
