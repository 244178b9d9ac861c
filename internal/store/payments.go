package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/arcano/arcano-consultas/internal/domain"
	"gorm.io/gorm"
)

// PaymentRepo implements domain.PaymentRepository on the payments table.
type PaymentRepo struct {
	Base
}

var (
	_ domain.PaymentRepository = (*PaymentRepo)(nil)
	_ domain.PaymentApprovals  = (*PaymentRepo)(nil)
)

func NewPaymentRepo(db *gorm.DB) *PaymentRepo {
	return &PaymentRepo{Base: NewBase(db)}
}

func (r *PaymentRepo) Create(ctx context.Context, payment *domain.Payment) error {
	if err := r.DB(ctx).Create(payment).Error; err != nil {
		return fmt.Errorf("insert payment: %w", err)
	}
	return nil
}

func (r *PaymentRepo) Get(ctx context.Context, id string) (*domain.Payment, error) {
	var payment domain.Payment
	err := r.DB(ctx).Where("id = ?", id).First(&payment).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.NewNotFoundError("payment", id)
	}
	if err != nil {
		return nil, fmt.Errorf("load payment %s: %w", id, err)
	}
	return &payment, nil
}

func (r *PaymentRepo) FindByConsultation(ctx context.Context, consultationID string) (*domain.Payment, error) {
	var payment domain.Payment
	err := r.DB(ctx).
		Where("consultation_id = ?", consultationID).
		Order("created_at DESC").
		First(&payment).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.NewNotFoundError("payment for consultation", consultationID)
	}
	if err != nil {
		return nil, fmt.Errorf("load payment for consultation %s: %w", consultationID, err)
	}
	return &payment, nil
}

func (r *PaymentRepo) Lookup(ctx context.Context, ref string) (*domain.Payment, error) {
	var payment domain.Payment
	err := r.DB(ctx).
		Where("id = ? OR external_payment_id = ? OR gateway_payment_id = ? OR consultation_id = ?", ref, ref, ref, ref).
		Order("created_at DESC").
		First(&payment).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.NewNotFoundError("payment", ref)
	}
	if err != nil {
		return nil, fmt.Errorf("lookup payment %s: %w", ref, err)
	}
	return &payment, nil
}

// HasApproved reports whether any payment of the consultation is approved.
// Older checkouts count too: a client may open a second preference after
// paying the first one.
func (r *PaymentRepo) HasApproved(ctx context.Context, kind domain.ConsultationType, consultationID string) (bool, error) {
	var count int64
	err := r.DB(ctx).
		Model(&domain.Payment{}).
		Where("consultation_id = ? AND consultation_type = ? AND status = ?", consultationID, kind, domain.PaymentApproved).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("check payments for consultation %s: %w", consultationID, err)
	}
	return count > 0, nil
}

// MarkApproved only touches rows that are not approved yet, so concurrent
// webhook and poll paths produce a single transition.
func (r *PaymentRepo) MarkApproved(ctx context.Context, id, gatewayPaymentID string) (bool, error) {
	updates := map[string]any{
		"status":     domain.PaymentApproved,
		"updated_at": time.Now().UTC(),
	}
	if gatewayPaymentID != "" {
		updates["gateway_payment_id"] = gatewayPaymentID
	}

	res := r.DB(ctx).
		Model(&domain.Payment{}).
		Where("id = ? AND status <> ?", id, domain.PaymentApproved).
		Updates(updates)
	if res.Error != nil {
		return false, fmt.Errorf("approve payment %s: %w", id, res.Error)
	}
	if res.RowsAffected == 1 {
		return true, nil
	}

	// Zero rows: either already approved or unknown.
	if _, err := r.Get(ctx, id); err != nil {
		return false, err
	}
	return false, nil
}
