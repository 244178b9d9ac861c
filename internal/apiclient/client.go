// Package apiclient implements flow.Backend over the consultation HTTP API.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/arcano/arcano-consultas/internal/api"
	"github.com/arcano/arcano-consultas/internal/domain"
	"github.com/arcano/arcano-consultas/internal/flow"
	"github.com/arcano/arcano-consultas/internal/payment"
)

var draftPaths = map[domain.ConsultationType]string{
	domain.KindTarot:      "/api/v1/tarot/consultations",
	domain.KindAstral:     "/api/v1/astral/maps",
	domain.KindOracle:     "/api/v1/oracle/consults",
	domain.KindNumerology: "/api/v1/numerology/readings",
	domain.KindDreams:     "/api/v1/dreams/interpretations",
	domain.KindEnergy:     "/api/v1/energy/guidance",
}

// Client makes HTTP requests to the consultation API.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

var _ flow.Backend = (*Client)(nil)

// NewClient creates a new API client. token is an optional bearer JWT.
func NewClient(baseURL, token string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

func (c *Client) CreateDraft(ctx context.Context, kind domain.ConsultationType, input any) (*domain.Result, error) {
	path, ok := draftPaths[kind]
	if !ok {
		return nil, domain.NewValidationError(fmt.Sprintf("unknown consultation type %q", kind))
	}
	var out api.ConsultationResponse
	if err := c.do(ctx, http.MethodPost, path, input, &out); err != nil {
		return nil, err
	}
	return out.Consultation, nil
}

func (c *Client) Get(ctx context.Context, kind domain.ConsultationType, id string) (*domain.Result, error) {
	var out api.ConsultationResponse
	path := fmt.Sprintf("/api/v1/consultations/%s/%s", kind, url.PathEscape(id))
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Consultation, nil
}

func (c *Client) Finalize(ctx context.Context, kind domain.ConsultationType, id string) (*domain.Result, error) {
	var out api.ConsultationResponse
	path := fmt.Sprintf("/api/v1/consultations/%s/%s/finalize", kind, url.PathEscape(id))
	if err := c.do(ctx, http.MethodPost, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Consultation, nil
}

func (c *Client) CreatePreference(ctx context.Context, req payment.CheckoutRequest) (*payment.Checkout, error) {
	var out api.CheckoutResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/payments/preferences", req, &out); err != nil {
		return nil, err
	}
	return &out.Checkout, nil
}

func (c *Client) CheckStatus(ctx context.Context, paymentID string) (*payment.Status, error) {
	var out api.StatusResponse
	path := fmt.Sprintf("/api/v1/payments/%s/status", url.PathEscape(paymentID))
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out.Status, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, dst any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return decodeError(resp.StatusCode, data)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// decodeError rebuilds the domain error the server mapped to this response.
func decodeError(status int, data []byte) error {
	var body api.ErrorResponse
	if err := json.Unmarshal(data, &body); err != nil || body.Error == "" {
		body.Error = strings.TrimSpace(string(data))
	}

	kind := kindFor(status, body.Code)
	if kind == nil {
		return fmt.Errorf("unexpected status %d: %s", status, body.Error)
	}
	code := body.Code
	if code == "" {
		code = "HTTP_" + fmt.Sprint(status)
	}
	return domain.NewServiceError(kind, body.Error, code)
}

func kindFor(status int, code string) error {
	switch code {
	case "VALIDATION_ERROR":
		return domain.ErrValidation
	case "CONFIGURATION_ERROR":
		return domain.ErrConfiguration
	case "NOT_FOUND":
		return domain.ErrNotFound
	case "GATEWAY_ERROR":
		return domain.ErrGateway
	case "GENERATION_ERROR":
		return domain.ErrGeneration
	case "CONFLICT":
		return domain.ErrConflict
	case "PAYMENT_REQUIRED":
		return domain.ErrPaymentRequired
	}
	switch status {
	case http.StatusBadRequest:
		return domain.ErrValidation
	case http.StatusNotFound:
		return domain.ErrNotFound
	case http.StatusConflict:
		return domain.ErrConflict
	case http.StatusPaymentRequired:
		return domain.ErrPaymentRequired
	case http.StatusBadGateway:
		return domain.ErrGateway
	}
	return nil
}
