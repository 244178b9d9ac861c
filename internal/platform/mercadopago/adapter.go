// Package mercadopago implements the PaymentGateway interface using the Mercado Pago SDK.
package mercadopago

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/arcano/arcano-consultas/internal/domain"
	"github.com/mercadopago/sdk-go/pkg/config"
	"github.com/mercadopago/sdk-go/pkg/mperror"
	"github.com/mercadopago/sdk-go/pkg/payment"
	"github.com/mercadopago/sdk-go/pkg/preference"
)

// Guest payer used when the caller gives no identity.
const (
	GuestEmail = "guest@consultas-esoteric.com"
	GuestName  = "Visitante"
)

// Options configures the adapter.
type Options struct {
	AccessToken         string
	CurrencyID          string
	StatementDescriptor string
	// PublicURL is the browser origin; back URLs live under /payment/.
	PublicURL string
	// APIURL receives the webhook notifications.
	APIURL string
	// Timeout bounds every gateway call.
	Timeout time.Duration
}

type preferenceCreator interface {
	Create(ctx context.Context, request preference.Request) (*preference.Response, error)
}

type paymentReader interface {
	Get(ctx context.Context, id int) (*payment.Response, error)
	Search(ctx context.Context, request payment.SearchRequest) (*payment.SearchResponse, error)
}

// Adapter implements the domain.PaymentGateway interface using Mercado Pago SDK.
// One access token serves the whole application.
type Adapter struct {
	opts        Options
	preferences preferenceCreator
	payments    paymentReader
}

var _ domain.PaymentGateway = (*Adapter)(nil)

// NewAdapter creates a new Mercado Pago adapter. A missing access token is
// not an error here: every call then fails with a configuration error.
func NewAdapter(opts Options) (*Adapter, error) {
	a := &Adapter{opts: opts}
	if opts.AccessToken == "" {
		return a, nil
	}

	cfg, err := config.New(opts.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create MP config: %w", err)
	}
	a.preferences = preference.NewClient(cfg)
	a.payments = payment.NewClient(cfg)
	return a, nil
}

func (a *Adapter) configured() error {
	if a.preferences == nil || a.payments == nil {
		return domain.NewConfigurationError("mercado pago access token is not configured")
	}
	return nil
}

func (a *Adapter) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if a.opts.Timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, a.opts.Timeout)
}

// CreatePreference creates a Checkout Pro preference. The consultation id
// travels as external_reference so status lookups can find the payment later.
func (a *Adapter) CreatePreference(ctx context.Context, req domain.PreferenceRequest) (*domain.Preference, error) {
	if err := a.configured(); err != nil {
		return nil, err
	}

	email, name := req.PayerEmail, req.PayerName
	if email == "" {
		email = GuestEmail
	}
	if name == "" {
		name = GuestName
	}

	request := preference.Request{
		Items: []preference.ItemRequest{
			{
				Title:       req.Title,
				Description: req.Title,
				Quantity:    1,
				UnitPrice:   req.Amount.InexactFloat64(),
				CurrencyID:  a.opts.CurrencyID,
			},
		},
		Payer: &preference.PayerRequest{
			Email: email,
			Name:  name,
		},
		ExternalReference: req.ExternalReference,
		AutoReturn:        "approved",
		BackURLs: &preference.BackURLsRequest{
			Success: a.opts.PublicURL + "/payment/success",
			Failure: a.opts.PublicURL + "/payment/failure",
			Pending: a.opts.PublicURL + "/payment/pending",
		},
		NotificationURL:     a.opts.APIURL + "/api/webhooks/mercadopago",
		StatementDescriptor: a.opts.StatementDescriptor,
	}

	ctx, cancel := a.withTimeout(ctx)
	defer cancel()

	result, err := a.preferences.Create(ctx, request)
	if err != nil {
		return nil, gatewayError("create preference", err)
	}
	if result == nil || result.ID == "" || result.InitPoint == "" {
		return nil, domain.NewGatewayError("mercado pago returned an incomplete preference", http.StatusOK, "missing id or init_point")
	}

	return &domain.Preference{
		ID:               result.ID,
		InitPoint:        result.InitPoint,
		SandboxInitPoint: result.SandboxInitPoint,
	}, nil
}

// SearchByExternalReference returns the gateway payments for a consultation, newest first.
func (a *Adapter) SearchByExternalReference(ctx context.Context, externalReference string) ([]domain.GatewayPayment, error) {
	if err := a.configured(); err != nil {
		return nil, err
	}

	ctx, cancel := a.withTimeout(ctx)
	defer cancel()

	result, err := a.payments.Search(ctx, payment.SearchRequest{
		Limit: 10,
		Filters: map[string]string{
			"external_reference": externalReference,
			"sort":               "date_created",
			"criteria":           "desc",
		},
	})
	if err != nil {
		return nil, gatewayError("search payments", err)
	}
	if result == nil {
		return nil, nil
	}

	out := make([]domain.GatewayPayment, 0, len(result.Results))
	for i := range result.Results {
		out = append(out, toGatewayPayment(&result.Results[i]))
	}
	return out, nil
}

// GetPayment retrieves payment information from Mercado Pago.
// Used when processing webhooks to get the current payment status.
func (a *Adapter) GetPayment(ctx context.Context, paymentID string) (*domain.GatewayPayment, error) {
	if err := a.configured(); err != nil {
		return nil, err
	}

	// SDK uses int for payment IDs
	id, err := strconv.Atoi(paymentID)
	if err != nil {
		return nil, domain.NewValidationError(fmt.Sprintf("invalid payment id %q", paymentID))
	}

	ctx, cancel := a.withTimeout(ctx)
	defer cancel()

	result, err := a.payments.Get(ctx, id)
	if err != nil {
		return nil, gatewayError("get payment", err)
	}
	p := toGatewayPayment(result)
	return &p, nil
}

func toGatewayPayment(r *payment.Response) domain.GatewayPayment {
	return domain.GatewayPayment{
		ID:                strconv.Itoa(r.ID),
		Status:            r.Status,
		StatusDetail:      r.StatusDetail,
		ExternalReference: r.ExternalReference,
		Amount:            r.TransactionAmount,
		PayerEmail:        r.Payer.Email,
		DateCreated:       r.DateCreated,
	}
}

// gatewayError keeps the HTTP status and body of SDK response errors.
func gatewayError(op string, err error) error {
	var respErr *mperror.ResponseError
	if errors.As(err, &respErr) {
		return domain.NewGatewayError("mercado pago "+op+" failed", respErr.StatusCode, respErr.Message).WithCause(err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return domain.NewGatewayError("mercado pago "+op+" timed out", http.StatusGatewayTimeout, "").WithCause(err)
	}
	return domain.NewGatewayError("mercado pago "+op+" failed", 0, "").WithCause(err)
}
