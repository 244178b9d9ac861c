package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/arcano/arcano-consultas/internal/domain"
	"gorm.io/gorm"
)

// Base provides a shared foundation for repositories.
type Base struct {
	db *gorm.DB
}

// NewBase constructs a Base repository backed by the provided GORM connection.
func NewBase(db *gorm.DB) Base {
	return Base{db: db}
}

// DB returns the GORM connection bound to the supplied context (if any).
func (b Base) DB(ctx context.Context) *gorm.DB {
	if ctx == nil {
		return b.db
	}
	return b.db.WithContext(ctx)
}

// Repo stores one consultation table. T is one of the domain consultation structs.
type Repo[T any] struct {
	Base
	label string
}

// NewRepo builds a repository; label names the record in not-found errors.
func NewRepo[T any](db *gorm.DB, label string) *Repo[T] {
	return &Repo[T]{Base: NewBase(db), label: label}
}

func (r *Repo[T]) Create(ctx context.Context, row *T) error {
	if err := r.DB(ctx).Create(row).Error; err != nil {
		return fmt.Errorf("insert %s: %w", r.label, err)
	}
	return nil
}

func (r *Repo[T]) Get(ctx context.Context, id string) (*T, error) {
	var row T
	err := r.DB(ctx).Where("id = ?", id).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.NewNotFoundError(r.label, id)
	}
	if err != nil {
		return nil, fmt.Errorf("load %s %s: %w", r.label, id, err)
	}
	return &row, nil
}

// ListByUser returns the user's records, newest first.
func (r *Repo[T]) ListByUser(ctx context.Context, userID string) ([]T, error) {
	var rows []T
	if err := r.DB(ctx).Where("user_id = ?", userID).Order("created_at DESC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list %s: %w", r.label, err)
	}
	return rows, nil
}

// Claim moves a pending record to processing. Only one caller can win; the
// others get false.
func (r *Repo[T]) Claim(ctx context.Context, id string) (bool, error) {
	return r.transition(ctx, id, domain.ConsultationPending, domain.ConsultationProcessing)
}

// Release hands a claimed record back to pending after a failed generation.
func (r *Repo[T]) Release(ctx context.Context, id string) error {
	_, err := r.transition(ctx, id, domain.ConsultationProcessing, domain.ConsultationPending)
	return err
}

func (r *Repo[T]) transition(ctx context.Context, id string, from, to domain.ConsultationStatus) (bool, error) {
	res := r.DB(ctx).
		Model(new(T)).
		Where("id = ? AND payment_status = ?", id, from).
		Update("payment_status", to)
	if res.Error != nil {
		return false, fmt.Errorf("update %s %s status: %w", r.label, id, res.Error)
	}
	return res.RowsAffected == 1, nil
}

// Complete writes the generated columns of a claimed record and marks it
// completed. row must carry the id and the generated values; columns names
// the output fields to write. row is only marked completed when the write
// lands.
func (r *Repo[T]) Complete(ctx context.Context, id string, row *T, columns ...string) error {
	cols := append([]string{"payment_status", "completed_at"}, columns...)

	next := *row
	setCompleted(&next, time.Now().UTC())
	res := r.DB(ctx).
		Model(&next).
		Where("id = ? AND payment_status = ?", id, domain.ConsultationProcessing).
		Select(cols).
		Updates(&next)
	if res.Error != nil {
		return fmt.Errorf("complete %s %s: %w", r.label, id, res.Error)
	}
	if res.RowsAffected != 1 {
		return domain.NewConflictError(fmt.Sprintf("%s %s is not being processed", r.label, id))
	}
	*row = next
	return nil
}

func setCompleted(row any, at time.Time) {
	var base *domain.PaidConsultation
	switch v := row.(type) {
	case *domain.TarotConsultation:
		base = &v.PaidConsultation
	case *domain.AstralMap:
		base = &v.PaidConsultation
	case *domain.Oracle:
		base = &v.PaidConsultation
	case *domain.Numerology:
		base = &v.PaidConsultation
	default:
		return
	}
	base.PaymentStatus = domain.ConsultationCompleted
	base.CompletedAt = &at
}
