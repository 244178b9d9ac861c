// Package domain contains the core business entities and interfaces for the consultation service.
package domain

import (
	"errors"
	"fmt"
)

// Domain errors represent business rule violations.
// Every ServiceError wraps exactly one of these kinds so callers can branch with errors.Is.
var (
	// ErrValidation is returned for bad user input. Not retryable.
	ErrValidation = errors.New("validation failed")

	// ErrConfiguration is returned when gateway or generator credentials are missing.
	ErrConfiguration = errors.New("service is not configured")

	// ErrGateway is returned when Mercado Pago rejects a request or answers with garbage.
	ErrGateway = errors.New("payment gateway error")

	// ErrNotFound is returned for unknown consultation or payment ids.
	ErrNotFound = errors.New("not found")

	// ErrGeneration is returned when the content generator fails during finalize.
	ErrGeneration = errors.New("content generation failed")

	// ErrConflict is returned when another finalize already holds the consultation.
	ErrConflict = errors.New("conflict")

	// ErrPaymentRequired is returned when a paid consultation is finalized before its payment is approved.
	ErrPaymentRequired = errors.New("payment required")
)

// ServiceError wraps a domain error with additional context.
type ServiceError struct {
	Err     error
	Message string
	Code    string

	// GatewayStatus and GatewayBody carry the upstream response for ErrGateway.
	GatewayStatus int
	GatewayBody   string

	cause error
}

// Error implements the error interface.
func (e *ServiceError) Error() string {
	msg := e.Err.Error()
	if e.Message != "" {
		msg = e.Message + ": " + msg
	}
	if e.GatewayStatus != 0 {
		msg = fmt.Sprintf("%s (status %d: %s)", msg, e.GatewayStatus, e.GatewayBody)
	}
	if e.cause != nil {
		msg += ": " + e.cause.Error()
	}
	return msg
}

// Unwrap exposes both the domain kind and the underlying cause to errors.Is and errors.As.
func (e *ServiceError) Unwrap() []error {
	if e.cause == nil {
		return []error{e.Err}
	}
	return []error{e.Err, e.cause}
}

// WithCause attaches the underlying failure.
func (e *ServiceError) WithCause(cause error) *ServiceError {
	e.cause = cause
	return e
}

// NewServiceError creates a new ServiceError.
func NewServiceError(err error, message, code string) *ServiceError {
	return &ServiceError{Err: err, Message: message, Code: code}
}

func NewValidationError(message string) *ServiceError {
	return NewServiceError(ErrValidation, message, "VALIDATION_ERROR")
}

func NewConfigurationError(message string) *ServiceError {
	return NewServiceError(ErrConfiguration, message, "CONFIGURATION_ERROR")
}

func NewNotFoundError(what, id string) *ServiceError {
	return NewServiceError(ErrNotFound, fmt.Sprintf("%s '%s' not found", what, id), "NOT_FOUND")
}

// NewGatewayError keeps the gateway's status and body so they can be surfaced to the caller.
func NewGatewayError(message string, status int, body string) *ServiceError {
	e := NewServiceError(ErrGateway, message, "GATEWAY_ERROR")
	e.GatewayStatus = status
	e.GatewayBody = body
	return e
}

func NewGenerationError(message string, cause error) *ServiceError {
	return NewServiceError(ErrGeneration, message, "GENERATION_ERROR").WithCause(cause)
}

func NewConflictError(message string) *ServiceError {
	return NewServiceError(ErrConflict, message, "CONFLICT")
}

func NewPaymentRequiredError(message string) *ServiceError {
	return NewServiceError(ErrPaymentRequired, message, "PAYMENT_REQUIRED")
}

// AsServiceError extracts the typed error, if any.
func AsServiceError(err error) (*ServiceError, bool) {
	var svcErr *ServiceError
	if errors.As(err, &svcErr) {
		return svcErr, true
	}
	return nil, false
}
