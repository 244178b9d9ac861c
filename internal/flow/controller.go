package flow

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"

	"github.com/arcano/arcano-consultas/internal/domain"
	"github.com/arcano/arcano-consultas/internal/payment"
	"github.com/shopspring/decimal"
)

// Stage is the visible step of a consultation page.
type Stage string

const (
	StageForm     Stage = "form"
	StagePayment  Stage = "payment"
	StageResponse Stage = "response"
)

// ErrWrongStage is returned when an action does not apply to the current stage.
var ErrWrongStage = errors.New("action not allowed in current stage")

// Backend is the server API a flow talks to.
type Backend interface {
	CreateDraft(ctx context.Context, kind domain.ConsultationType, input any) (*domain.Result, error)
	Get(ctx context.Context, kind domain.ConsultationType, id string) (*domain.Result, error)
	Finalize(ctx context.Context, kind domain.ConsultationType, id string) (*domain.Result, error)
	CreatePreference(ctx context.Context, req payment.CheckoutRequest) (*payment.Checkout, error)
	CheckStatus(ctx context.Context, paymentID string) (*payment.Status, error)
}

// Payer identifies the buyer; both fields are optional.
type Payer struct {
	Email string
	Name  string
}

// Controller is the state machine of one consultation page.
type Controller struct {
	kind     domain.ConsultationType
	backend  Backend
	sessions *SessionStore

	mu     sync.Mutex
	stage  Stage
	draft  *domain.Result
	result *domain.Result
}

func NewController(kind domain.ConsultationType, backend Backend, sessions *SessionStore) *Controller {
	return &Controller{kind: kind, backend: backend, sessions: sessions, stage: StageForm}
}

func (c *Controller) Stage() Stage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stage
}

// Draft is the consultation created by Submit, shown on the payment stage.
func (c *Controller) Draft() *domain.Result {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.draft
}

// Result is the consultation shown on the response stage.
func (c *Controller) Result() *domain.Result {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.result
}

// Resume handles a page load. With paid=true and the page's id parameter it
// jumps to the response stage and loads the consultation; it reports whether
// it did.
func (c *Controller) Resume(ctx context.Context, query url.Values) (bool, error) {
	id := query.Get(c.kind.IDParam())
	if query.Get("paid") != "true" || id == "" {
		return false, nil
	}

	c.mu.Lock()
	c.stage = StageResponse
	c.mu.Unlock()

	res, err := c.backend.Get(ctx, c.kind, id)
	if err != nil {
		return true, err
	}

	c.mu.Lock()
	c.result = res
	c.mu.Unlock()
	return true, nil
}

// Submit creates the draft and moves to the payment stage. Free kinds come
// back already generated and go straight to the response stage.
func (c *Controller) Submit(ctx context.Context, input any) (*domain.Result, error) {
	if err := c.expect(StageForm); err != nil {
		return nil, err
	}

	res, err := c.backend.CreateDraft(ctx, c.kind, input)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.kind.Paid() {
		c.draft = res
		c.stage = StagePayment
	} else {
		c.result = res
		c.stage = StageResponse
	}
	return res, nil
}

// Pay creates the checkout preference, persists the session keys and returns
// the gateway URL the browser must navigate to.
func (c *Controller) Pay(ctx context.Context, description string, payer Payer) (string, error) {
	if err := c.expect(StagePayment); err != nil {
		return "", err
	}
	draft := c.Draft()

	amount, err := decimal.NewFromString(draft.Price)
	if err != nil {
		return "", fmt.Errorf("draft %s has invalid price %q: %w", draft.ID, draft.Price, err)
	}

	checkout, err := c.backend.CreatePreference(ctx, payment.CheckoutRequest{
		ConsultationType: c.kind,
		ConsultationID:   draft.ID,
		Amount:           amount,
		Description:      description,
		PayerEmail:       payer.Email,
		PayerName:        payer.Name,
	})
	if err != nil {
		return "", err
	}

	if err := c.sessions.Write(ctx, Session{
		ConsultationID:   draft.ID,
		ConsultationType: c.kind,
		PendingPaymentID: checkout.PaymentID,
	}); err != nil {
		return "", err
	}
	return checkout.CheckoutURL, nil
}

// Reset starts over from the form, forgetting the persisted session.
func (c *Controller) Reset(ctx context.Context) error {
	c.mu.Lock()
	c.stage = StageForm
	c.draft = nil
	c.result = nil
	c.mu.Unlock()
	return c.sessions.Clear(ctx)
}

func (c *Controller) expect(stage Stage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stage != stage {
		return fmt.Errorf("%w: in %s, need %s", ErrWrongStage, c.stage, stage)
	}
	return nil
}
