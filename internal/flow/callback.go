package flow

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/arcano/arcano-consultas/internal/domain"
	"github.com/arcano/arcano-consultas/internal/logger"
	"github.com/arcano/arcano-consultas/internal/payment"
)

// DefaultPollInterval is how often the callback asks for the payment status.
const DefaultPollInterval = 2 * time.Second

// CallbackState is the visible state of the checkout return page.
type CallbackState string

const (
	CallbackApproved  CallbackState = "approved"
	CallbackError     CallbackState = "error"
	CallbackCancelled CallbackState = "cancelled"
)

// HomePath is where the error state sends the user to retry.
const HomePath = "/"

// Outcome is the end of a callback run. Redirect is the next browser location.
type Outcome struct {
	State        CallbackState
	Redirect     string
	Consultation *domain.Result
	Err          error
}

// Callback confirms a payment after the gateway redirects back and runs the
// paid generation once.
type Callback struct {
	backend  Backend
	sessions *SessionStore
	interval time.Duration
	logg     *logger.Logger
}

type CallbackOptions struct {
	Interval time.Duration
	Logger   *logger.Logger
}

func NewCallback(backend Backend, sessions *SessionStore, opts CallbackOptions) *Callback {
	if opts.Interval <= 0 {
		opts.Interval = DefaultPollInterval
	}
	if opts.Logger == nil {
		opts.Logger = logger.Nop()
	}
	return &Callback{backend: backend, sessions: sessions, interval: opts.Interval, logg: opts.Logger}
}

// Run handles the return URL. It polls until the payment is approved or ctx
// is cancelled, finalizes the consultation, clears the session and returns
// the domain page to open. A failed finalize is not retried.
func (cb *Callback) Run(ctx context.Context, query url.Values) Outcome {
	sess, err := cb.sessions.Read(ctx)
	if err != nil {
		return failed(err)
	}

	if sess.PendingPaymentID == "" {
		// the gateway payment id is only stored locally once approved, so it goes last
		ref := firstNonEmpty(query.Get("preference_id"), query.Get("external_reference"), query.Get("payment_id"))
		if ref == "" {
			return failed(errors.New("no payment to confirm"))
		}
		sess.PendingPaymentID = ref
		if err := cb.sessions.Write(ctx, Session{PendingPaymentID: ref}); err != nil {
			return failed(err)
		}
	}
	ctx = cb.logg.WithField(ctx, "pending_payment_id", sess.PendingPaymentID)

	status, err := cb.waitApproved(ctx, sess.PendingPaymentID)
	if err != nil {
		if ctx.Err() != nil {
			return Outcome{State: CallbackCancelled, Err: err}
		}
		return failed(err)
	}

	kind, id := sess.ConsultationType, sess.ConsultationID
	if id == "" || kind == "" {
		kind, id = status.ConsultationType, status.ConsultationID
	}
	if !kind.Paid() || id == "" {
		return failed(fmt.Errorf("approved payment %s has no paid consultation", sess.PendingPaymentID))
	}

	res, err := cb.backend.Finalize(ctx, kind, id)
	if errors.Is(err, domain.ErrConflict) {
		// the webhook path is generating it already
		res, err = cb.waitCompleted(ctx, kind, id)
	}
	if err != nil {
		if ctx.Err() != nil {
			return Outcome{State: CallbackCancelled, Err: err}
		}
		cb.logg.Error(ctx, "finalize after payment failed", err)
		return failed(err)
	}

	if err := cb.sessions.Clear(ctx); err != nil {
		cb.logg.Error(ctx, "failed to clear flow session", err)
	}
	return Outcome{State: CallbackApproved, Redirect: ResultPath(kind, id), Consultation: res}
}

// waitApproved checks right away, then on every tick. Unknown payments stop
// the wait; other errors are logged and retried on the next tick.
func (cb *Callback) waitApproved(ctx context.Context, paymentID string) (*payment.Status, error) {
	ticker := time.NewTicker(cb.interval)
	defer ticker.Stop()

	for {
		st, err := cb.backend.CheckStatus(ctx, paymentID)
		switch {
		case err == nil && st.Status == domain.PaymentApproved:
			return st, nil
		case err != nil && errors.Is(err, domain.ErrNotFound):
			return nil, err
		case err != nil:
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			cb.logg.Warn(cb.logg.WithField(ctx, "error", err.Error()), "payment status check failed")
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// waitCompleted follows a generation started by another caller. A record
// handed back to pending means that generation failed, so it is claimed
// here instead.
func (cb *Callback) waitCompleted(ctx context.Context, kind domain.ConsultationType, id string) (*domain.Result, error) {
	ticker := time.NewTicker(cb.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}

		res, err := cb.backend.Get(ctx, kind, id)
		switch {
		case err != nil && errors.Is(err, domain.ErrNotFound):
			return nil, err
		case err != nil:
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			cb.logg.Warn(cb.logg.WithField(ctx, "error", err.Error()), "consultation check failed")
		case res.Completed():
			return res, nil
		case res.Status == domain.ConsultationPending:
			res, err = cb.backend.Finalize(ctx, kind, id)
			if err == nil || !errors.Is(err, domain.ErrConflict) {
				return res, err
			}
		}
	}
}

// ResultPath is the domain page that shows a paid consultation.
func ResultPath(kind domain.ConsultationType, id string) string {
	return kind.Path() + "?paid=true&" + kind.IDParam() + "=" + url.QueryEscape(id)
}

func failed(err error) Outcome {
	return Outcome{State: CallbackError, Redirect: HomePath, Err: err}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
