package consultation

import (
	"context"
	"fmt"

	"github.com/arcano/arcano-consultas/internal/domain"
)

// Registry dispatches by consultation kind.
type Registry struct {
	tarot      *TarotService
	astral     *AstralService
	oracle     *OracleService
	numerology *NumerologyService
	dreams     *DreamService
	energy     *EnergyService

	payments domain.PaymentApprovals
}

var (
	_ domain.Finalizer          = (*Registry)(nil)
	_ domain.ConsultationLookup = (*Registry)(nil)
)

func NewRegistry(d Deps) *Registry {
	return &Registry{
		tarot:      NewTarotService(d),
		astral:     NewAstralService(d),
		oracle:     NewOracleService(d),
		numerology: NewNumerologyService(d),
		dreams:     NewDreamService(d),
		energy:     NewEnergyService(d),
		payments:   d.Payments,
	}
}

func (r *Registry) Tarot() *TarotService           { return r.tarot }
func (r *Registry) Astral() *AstralService         { return r.astral }
func (r *Registry) Oracle() *OracleService         { return r.oracle }
func (r *Registry) Numerology() *NumerologyService { return r.numerology }
func (r *Registry) Dreams() *DreamService          { return r.dreams }
func (r *Registry) Energy() *EnergyService         { return r.energy }

func (r *Registry) Get(ctx context.Context, kind domain.ConsultationType, id string) (*domain.Result, error) {
	switch kind {
	case domain.KindTarot:
		return r.tarot.Get(ctx, id)
	case domain.KindAstral:
		return r.astral.Get(ctx, id)
	case domain.KindOracle:
		return r.oracle.Get(ctx, id)
	case domain.KindNumerology:
		return r.numerology.Get(ctx, id)
	case domain.KindDreams:
		return r.dreams.Get(ctx, id)
	case domain.KindEnergy:
		return r.energy.Get(ctx, id)
	}
	return nil, unknownKind(kind)
}

func (r *Registry) List(ctx context.Context, kind domain.ConsultationType, userID string) ([]*domain.Result, error) {
	switch kind {
	case domain.KindTarot:
		return r.tarot.List(ctx, userID)
	case domain.KindAstral:
		return r.astral.List(ctx, userID)
	case domain.KindOracle:
		return r.oracle.List(ctx, userID)
	case domain.KindNumerology:
		return r.numerology.List(ctx, userID)
	case domain.KindDreams:
		return r.dreams.List(ctx, userID)
	case domain.KindEnergy:
		return r.energy.List(ctx, userID)
	}
	return nil, unknownKind(kind)
}

// Finalize generates content for a paid kind once its payment is approved.
// Free kinds are generated at creation and have nothing to finalize.
func (r *Registry) Finalize(ctx context.Context, kind domain.ConsultationType, id string) (*domain.Result, error) {
	if !kind.Paid() {
		if kind == domain.KindDreams || kind == domain.KindEnergy {
			return nil, domain.NewValidationError(fmt.Sprintf("%s consultations are free and need no finalize", kind))
		}
		return nil, unknownKind(kind)
	}

	current, err := r.Get(ctx, kind, id)
	if err != nil {
		return nil, err
	}
	if current.Completed() {
		return current, nil
	}
	if err := r.requirePayment(ctx, kind, id); err != nil {
		return nil, err
	}

	switch kind {
	case domain.KindTarot:
		return r.tarot.Finalize(ctx, id)
	case domain.KindAstral:
		return r.astral.Finalize(ctx, id)
	case domain.KindOracle:
		return r.oracle.Finalize(ctx, id)
	case domain.KindNumerology:
		return r.numerology.Finalize(ctx, id)
	}
	return nil, unknownKind(kind)
}

func (r *Registry) requirePayment(ctx context.Context, kind domain.ConsultationType, id string) error {
	if r.payments == nil {
		return domain.NewConfigurationError("payment ledger is not configured")
	}
	approved, err := r.payments.HasApproved(ctx, kind, id)
	if err != nil {
		return err
	}
	if !approved {
		return domain.NewPaymentRequiredError(fmt.Sprintf("%s %s has no approved payment", kind, id))
	}
	return nil
}

func unknownKind(kind domain.ConsultationType) error {
	return domain.NewValidationError(fmt.Sprintf("unknown consultation type %q", kind))
}
