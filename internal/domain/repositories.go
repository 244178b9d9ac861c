// Package domain contains the core business entities and interfaces for the consultation service.
package domain

import "context"

// PaymentRepository persists local payment rows.
// This is a "port" in hexagonal architecture - the domain defines what it needs,
// and infrastructure provides the implementation.
type PaymentRepository interface {
	Create(ctx context.Context, payment *Payment) error

	// Get returns ErrNotFound if the payment doesn't exist.
	Get(ctx context.Context, id string) (*Payment, error)

	// FindByConsultation returns the most recent payment bound to a consultation.
	FindByConsultation(ctx context.Context, consultationID string) (*Payment, error)

	// Lookup resolves any reference the checkout return can carry: our payment
	// id, the preference id, the gateway payment id or the consultation id.
	Lookup(ctx context.Context, ref string) (*Payment, error)

	// MarkApproved sets status approved. Reports false when the row was already approved.
	MarkApproved(ctx context.Context, id, gatewayPaymentID string) (bool, error)
}

// PaymentApprovals answers whether a consultation has been paid for.
type PaymentApprovals interface {
	HasApproved(ctx context.Context, kind ConsultationType, consultationID string) (bool, error)
}

// PaymentGateway defines the interface for interacting with the payment provider.
// This abstracts away the details of Mercado Pago SDK usage.
type PaymentGateway interface {
	// CreatePreference creates a Checkout Pro preference and returns the init_point URL.
	CreatePreference(ctx context.Context, req PreferenceRequest) (*Preference, error)

	// SearchByExternalReference lists gateway payments bound to our consultation id.
	SearchByExternalReference(ctx context.Context, externalReference string) ([]GatewayPayment, error)

	// GetPayment retrieves a single payment, used by the webhook path.
	GetPayment(ctx context.Context, paymentID string) (*GatewayPayment, error)
}

// ContentGenerator turns an ordered list of role-tagged messages into prose.
type ContentGenerator interface {
	Generate(ctx context.Context, messages []Message) (string, error)
}

// Finalizer runs the paid generation step for a consultation kind.
type Finalizer interface {
	Finalize(ctx context.Context, kind ConsultationType, id string) (*Result, error)
}

// ConsultationLookup resolves a consultation of any kind.
type ConsultationLookup interface {
	Get(ctx context.Context, kind ConsultationType, id string) (*Result, error)
}
