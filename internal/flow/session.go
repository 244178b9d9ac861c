// Package flow drives the client side of a paid consultation: the
// form → payment → response stages, and the return from checkout.
package flow

import (
	"context"
	"fmt"

	"github.com/arcano/arcano-consultas/internal/domain"
)

// Keys persisted across the checkout redirect.
const (
	KeyPendingPaymentID = "pendingPaymentId"
	KeyConsultationID   = "currentConsultationId"
	KeyConsultationType = "currentConsultationType"
)

// Storage is a durable key-value store that survives the browser leaving
// for the gateway and coming back.
type Storage interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, keys ...string) error
}

// Session is what a flow needs to resume after the redirect.
type Session struct {
	ConsultationID   string
	ConsultationType domain.ConsultationType
	PendingPaymentID string
}

// SessionStore reads and writes a Session on top of a Storage.
type SessionStore struct {
	storage Storage
}

func NewSessionStore(storage Storage) *SessionStore {
	return &SessionStore{storage: storage}
}

// Write persists every non-empty field.
func (s *SessionStore) Write(ctx context.Context, sess Session) error {
	pairs := []struct{ key, value string }{
		{KeyConsultationID, sess.ConsultationID},
		{KeyConsultationType, string(sess.ConsultationType)},
		{KeyPendingPaymentID, sess.PendingPaymentID},
	}
	for _, p := range pairs {
		if p.value == "" {
			continue
		}
		if err := s.storage.Set(ctx, p.key, p.value); err != nil {
			return fmt.Errorf("persist %s: %w", p.key, err)
		}
	}
	return nil
}

func (s *SessionStore) Read(ctx context.Context) (Session, error) {
	var sess Session
	id, _, err := s.storage.Get(ctx, KeyConsultationID)
	if err != nil {
		return sess, fmt.Errorf("read %s: %w", KeyConsultationID, err)
	}
	kind, _, err := s.storage.Get(ctx, KeyConsultationType)
	if err != nil {
		return sess, fmt.Errorf("read %s: %w", KeyConsultationType, err)
	}
	pending, _, err := s.storage.Get(ctx, KeyPendingPaymentID)
	if err != nil {
		return sess, fmt.Errorf("read %s: %w", KeyPendingPaymentID, err)
	}
	sess.ConsultationID = id
	sess.ConsultationType = domain.ConsultationType(kind)
	sess.PendingPaymentID = pending
	return sess, nil
}

func (s *SessionStore) Clear(ctx context.Context) error {
	return s.storage.Delete(ctx, KeyPendingPaymentID, KeyConsultationID, KeyConsultationType)
}
