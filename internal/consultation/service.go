// Package consultation implements the per-domain consultation services:
// draft creation, guarded finalize for paid kinds, and the fused free kinds.
package consultation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/arcano/arcano-consultas/internal/domain"
	"github.com/arcano/arcano-consultas/internal/logger"
	"github.com/arcano/arcano-consultas/internal/metrics"
	"github.com/arcano/arcano-consultas/internal/store"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Deps are the collaborators shared by every consultation service.
type Deps struct {
	DB        *gorm.DB
	Generator domain.ContentGenerator
	Logger    *logger.Logger
	Metrics   *metrics.Metrics
	// Payments gates Registry.Finalize on an approved payment.
	Payments domain.PaymentApprovals
	// Clock defaults to time.Now; numerology's personal year depends on it.
	Clock func() time.Time
}

type base struct {
	gen     domain.ContentGenerator
	guard   *inputGuard
	logg    *logger.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

func newBase(d Deps) base {
	logg := d.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	now := d.Clock
	if now == nil {
		now = time.Now
	}
	return base{gen: d.Generator, guard: newInputGuard(), logg: logg, metrics: d.Metrics, now: now}
}

func ownerOrAnonymous(userID string) string {
	if userID == "" {
		return domain.AnonymousUserID
	}
	return userID
}

func newID() string {
	return uuid.NewString()
}

// generate wraps generator failures. Configuration errors pass through so the
// caller sees a missing API key as such.
func (b base) generate(ctx context.Context, messages []domain.Message) (string, error) {
	if b.gen == nil {
		return "", domain.NewConfigurationError("content generator is not configured")
	}
	text, err := b.gen.Generate(ctx, messages)
	if err != nil {
		if errors.Is(err, domain.ErrConfiguration) {
			return "", err
		}
		return "", domain.NewGenerationError("content generation failed", err)
	}
	return text, nil
}

// paidRecord is satisfied by the paid consultation structs through PaidConsultation.
type paidRecord interface {
	Completed() bool
}

// paidStore holds the lookup and finalize plumbing shared by paid kinds.
type paidStore[T paidRecord] struct {
	base
	kind     domain.ConsultationType
	repo     *store.Repo[T]
	toResult func(*T) *domain.Result
}

func (p *paidStore[T]) Get(ctx context.Context, id string) (*domain.Result, error) {
	row, err := p.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return p.toResult(row), nil
}

func (p *paidStore[T]) List(ctx context.Context, userID string) ([]*domain.Result, error) {
	rows, err := p.repo.ListByUser(ctx, ownerOrAnonymous(userID))
	if err != nil {
		return nil, err
	}
	out := make([]*domain.Result, 0, len(rows))
	for i := range rows {
		out = append(out, p.toResult(&rows[i]))
	}
	return out, nil
}

// finalize runs fill at most once per record. fill writes the generated
// fields into the row and returns their column names.
//
// A record that is already completed returns its stored result. A record
// claimed by another caller yields ErrConflict. A failed generation hands
// the record back to pending so it can be finalized again.
func (p *paidStore[T]) finalize(ctx context.Context, id string, fill func(context.Context, *T) ([]string, error)) (*domain.Result, error) {
	row, err := p.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if (*row).Completed() {
		return p.toResult(row), nil
	}

	claimed, err := p.repo.Claim(ctx, id)
	if err != nil {
		return nil, err
	}
	if !claimed {
		current, err := p.repo.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if (*current).Completed() {
			return p.toResult(current), nil
		}
		return nil, domain.NewConflictError(fmt.Sprintf("%s %s is already being generated", p.kind, id))
	}

	ctx = p.logg.WithConsultation(ctx, string(p.kind), id)
	p.logg.Info(ctx, "generating consultation")

	start := time.Now()
	columns, err := fill(ctx, row)
	p.metrics.ObserveGeneration(string(p.kind), time.Since(start), err)
	if err != nil {
		if relErr := p.repo.Release(context.WithoutCancel(ctx), id); relErr != nil {
			p.logg.Error(ctx, "failed to release consultation after generation error", relErr)
		}
		p.logg.Error(ctx, "consultation generation failed", err)
		return nil, err
	}

	if err := p.repo.Complete(ctx, id, row, columns...); err != nil {
		return nil, err
	}
	p.logg.Info(ctx, "consultation completed")
	return p.toResult(row), nil
}

// freeStore serves lookups for the free kinds.
type freeStore[T any] struct {
	base
	repo     *store.Repo[T]
	toResult func(*T) *domain.Result
}

func (f *freeStore[T]) Get(ctx context.Context, id string) (*domain.Result, error) {
	row, err := f.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return f.toResult(row), nil
}

func (f *freeStore[T]) List(ctx context.Context, userID string) ([]*domain.Result, error) {
	rows, err := f.repo.ListByUser(ctx, ownerOrAnonymous(userID))
	if err != nil {
		return nil, err
	}
	out := make([]*domain.Result, 0, len(rows))
	for i := range rows {
		out = append(out, f.toResult(&rows[i]))
	}
	return out, nil
}
