// Package api contains the HTTP handlers and routing for the consultation service.
package api

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/arcano/arcano-consultas/internal/consultation"
	"github.com/arcano/arcano-consultas/internal/domain"
	"github.com/arcano/arcano-consultas/internal/logger"
	"github.com/arcano/arcano-consultas/internal/payment"
	"github.com/arcano/arcano-consultas/internal/platform/pdf"
	"github.com/gin-gonic/gin"
)

// Handler contains the HTTP handlers for the consultation API.
type Handler struct {
	consultations *consultation.Registry
	payments      *payment.Service
	logg          *logger.Logger
	now           func() time.Time
}

// NewHandler creates a new API handler.
func NewHandler(consultations *consultation.Registry, payments *payment.Service, logg *logger.Logger) *Handler {
	if logg == nil {
		logg = logger.Nop()
	}
	return &Handler{
		consultations: consultations,
		payments:      payments,
		logg:          logg,
		now:           time.Now,
	}
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
}

// ConsultationResponse wraps a single consultation of any kind.
type ConsultationResponse struct {
	Success      bool           `json:"success"`
	Consultation *domain.Result `json:"consultation"`
}

// ListResponse wraps the caller's consultations of one kind.
type ListResponse struct {
	Success       bool             `json:"success"`
	Consultations []*domain.Result `json:"consultations"`
}

// CheckoutResponse represents the response from the preference endpoint.
type CheckoutResponse struct {
	Success bool `json:"success"`
	payment.Checkout
}

// StatusResponse represents the response from the status endpoint.
type StatusResponse struct {
	Success bool `json:"success"`
	payment.Status
}

// Health handles GET /health
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "arcano-consultas",
	})
}

// bindJSON decodes the body, answering 400 on malformed JSON.
func bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Success: false,
			Error:   "Invalid request body: " + err.Error(),
			Code:    "VALIDATION_ERROR",
		})
		return false
	}
	return true
}

func (h *Handler) created(c *gin.Context, res *domain.Result, err error) {
	if err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, ConsultationResponse{Success: true, Consultation: res})
}

// CreateTarot handles POST /api/v1/tarot/consultations
func (h *Handler) CreateTarot(c *gin.Context) {
	var in consultation.TarotInput
	if !bindJSON(c, &in) {
		return
	}
	res, err := h.consultations.Tarot().CreateDraft(c.Request.Context(), userIDFrom(c), in)
	h.created(c, res, err)
}

// CreateAstral handles POST /api/v1/astral/maps
func (h *Handler) CreateAstral(c *gin.Context) {
	var in consultation.AstralInput
	if !bindJSON(c, &in) {
		return
	}
	res, err := h.consultations.Astral().CreateDraft(c.Request.Context(), userIDFrom(c), in)
	h.created(c, res, err)
}

// CreateOracle handles POST /api/v1/oracle/consults
func (h *Handler) CreateOracle(c *gin.Context) {
	var in consultation.OracleInput
	if !bindJSON(c, &in) {
		return
	}
	res, err := h.consultations.Oracle().CreateDraft(c.Request.Context(), userIDFrom(c), in)
	h.created(c, res, err)
}

// CreateNumerology handles POST /api/v1/numerology/readings
func (h *Handler) CreateNumerology(c *gin.Context) {
	var in consultation.NumerologyInput
	if !bindJSON(c, &in) {
		return
	}
	res, err := h.consultations.Numerology().CreateDraft(c.Request.Context(), userIDFrom(c), in)
	h.created(c, res, err)
}

// InterpretDream handles POST /api/v1/dreams/interpretations
func (h *Handler) InterpretDream(c *gin.Context) {
	var in consultation.DreamInput
	if !bindJSON(c, &in) {
		return
	}
	res, err := h.consultations.Dreams().Interpret(c.Request.Context(), userIDFrom(c), in)
	h.created(c, res, err)
}

// GuideEnergy handles POST /api/v1/energy/guidance
func (h *Handler) GuideEnergy(c *gin.Context) {
	var in consultation.EnergyInput
	if !bindJSON(c, &in) {
		return
	}
	res, err := h.consultations.Energy().Guide(c.Request.Context(), userIDFrom(c), in)
	h.created(c, res, err)
}

// ListConsultations handles GET /api/v1/consultations/:kind
func (h *Handler) ListConsultations(c *gin.Context) {
	kind, err := domain.ParseConsultationType(c.Param("kind"))
	if err != nil {
		handleServiceError(c, err)
		return
	}
	list, err := h.consultations.List(c.Request.Context(), kind, userIDFrom(c))
	if err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, ListResponse{Success: true, Consultations: list})
}

// visible loads a consultation the caller is allowed to see.
func (h *Handler) visible(c *gin.Context) (*domain.Result, bool) {
	kind, err := domain.ParseConsultationType(c.Param("kind"))
	if err != nil {
		handleServiceError(c, err)
		return nil, false
	}
	id := c.Param("id")
	res, err := h.consultations.Get(c.Request.Context(), kind, id)
	if err == nil && !res.VisibleTo(userIDFrom(c)) {
		err = domain.NewNotFoundError(string(kind), id)
	}
	if err != nil {
		handleServiceError(c, err)
		return nil, false
	}
	return res, true
}

// GetConsultation handles GET /api/v1/consultations/:kind/:id
func (h *Handler) GetConsultation(c *gin.Context) {
	res, ok := h.visible(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, ConsultationResponse{Success: true, Consultation: res})
}

// FinalizeConsultation handles POST /api/v1/consultations/:kind/:id/finalize
func (h *Handler) FinalizeConsultation(c *gin.Context) {
	current, ok := h.visible(c)
	if !ok {
		return
	}
	res, err := h.consultations.Finalize(c.Request.Context(), current.Kind, current.ID)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, ConsultationResponse{Success: true, Consultation: res})
}

// AstralPDF handles GET /api/v1/astral/maps/:id/pdf
func (h *Handler) AstralPDF(c *gin.Context) {
	id := c.Param("id")
	m, err := h.consultations.Astral().Map(c.Request.Context(), id)
	if err == nil && !domain.AstralResult(m).VisibleTo(userIDFrom(c)) {
		err = domain.NewNotFoundError("astral map", id)
	}
	if err != nil {
		handleServiceError(c, err)
		return
	}

	var buf bytes.Buffer
	if err := pdf.AstralMap(&buf, m, c.Query("name"), h.now()); err != nil {
		if errors.Is(err, pdf.ErrNotCompleted) {
			c.JSON(http.StatusConflict, ErrorResponse{
				Success: false,
				Error:   "astral map is not completed yet",
				Code:    "NOT_COMPLETED",
			})
			return
		}
		h.logg.Error(c.Request.Context(), "failed to render astral map pdf", err)
		handleServiceError(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="mapa-astral-%s.pdf"`, id))
	c.Data(http.StatusOK, "application/pdf", buf.Bytes())
}

// CreatePreference handles POST /api/v1/payments/preferences
func (h *Handler) CreatePreference(c *gin.Context) {
	var req payment.CheckoutRequest
	if !bindJSON(c, &req) {
		return
	}
	req.UserID = userIDFrom(c)

	out, err := h.payments.CreatePreference(c.Request.Context(), req)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, CheckoutResponse{Success: true, Checkout: *out})
}

// PaymentStatus handles GET /api/v1/payments/:id/status
func (h *Handler) PaymentStatus(c *gin.Context) {
	st, err := h.payments.CheckStatus(c.Request.Context(), c.Param("id"))
	if err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, StatusResponse{Success: true, Status: *st})
}

// WebhookRequest represents the JSON body from Mercado Pago webhooks.
type WebhookRequest struct {
	ID     any    `json:"id"`
	Type   string `json:"type"`
	Action string `json:"action"`
	Data   struct {
		ID any `json:"id"`
	} `json:"data"`
	LiveMode bool `json:"live_mode"`
}

// HandleWebhook handles POST /api/webhooks/mercadopago
// Mercado Pago always gets a 200 so it stops retrying; failures are logged.
func (h *Handler) HandleWebhook(c *gin.Context) {
	var req WebhookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logg.Warn(h.logg.WithField(c.Request.Context(), "error", err.Error()), "webhook body not parsed, falling back to query")
	}

	n := domain.WebhookNotification{
		ID:       idString(req.ID),
		Type:     req.Type,
		Action:   req.Action,
		DataID:   idString(req.Data.ID),
		LiveMode: req.LiveMode,
	}
	// Legacy IPN deliveries carry everything in the query string.
	if n.Type == "" {
		n.Type = firstNonEmpty(c.Query("type"), c.Query("topic"))
	}
	if n.DataID == "" {
		n.DataID = firstNonEmpty(c.Query("data.id"), c.Query("id"))
	}

	outcome := h.payments.HandleWebhook(c.Request.Context(), payment.WebhookInput{
		Notification: n,
		Signature:    c.GetHeader("x-signature"),
		RequestID:    c.GetHeader("x-request-id"),
	})
	c.JSON(http.StatusOK, gin.H{"status": outcome})
}

// idString accepts ids sent as JSON strings or numbers.
func idString(v any) string {
	switch id := v.(type) {
	case string:
		return id
	case float64:
		return fmt.Sprintf("%.0f", id)
	}
	return ""
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// handleServiceError maps domain errors to HTTP responses.
func handleServiceError(c *gin.Context, err error) {
	if svcErr, ok := domain.AsServiceError(err); ok {
		statusCode := http.StatusInternalServerError

		switch {
		case errors.Is(svcErr.Err, domain.ErrValidation):
			statusCode = http.StatusBadRequest
		case errors.Is(svcErr.Err, domain.ErrNotFound):
			statusCode = http.StatusNotFound
		case errors.Is(svcErr.Err, domain.ErrConflict):
			statusCode = http.StatusConflict
		case errors.Is(svcErr.Err, domain.ErrPaymentRequired):
			statusCode = http.StatusPaymentRequired
		case errors.Is(svcErr.Err, domain.ErrGateway), errors.Is(svcErr.Err, domain.ErrGeneration):
			statusCode = http.StatusBadGateway
		case errors.Is(svcErr.Err, domain.ErrConfiguration):
			statusCode = http.StatusInternalServerError
		}

		message := svcErr.Message
		if svcErr.GatewayStatus != 0 {
			message = fmt.Sprintf("%s (gateway status %d: %s)", message, svcErr.GatewayStatus, svcErr.GatewayBody)
		}
		c.JSON(statusCode, ErrorResponse{
			Success: false,
			Error:   message,
			Code:    svcErr.Code,
		})
		return
	}

	// Generic error
	c.JSON(http.StatusInternalServerError, ErrorResponse{
		Success: false,
		Error:   "Internal server error",
		Code:    "INTERNAL_ERROR",
	})
}
