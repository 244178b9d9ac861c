// Package domain contains the core business entities and interfaces for the consultation service.
// This is the innermost layer: entities carry persistence tags but import no framework code.
package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// AnonymousUserID owns every record created without an authenticated caller.
const AnonymousUserID = "anonymous"

// ConsultationType is the discriminant shared by drafts, payments and results.
type ConsultationType string

const (
	KindTarot      ConsultationType = "tarot"
	KindAstral     ConsultationType = "astral"
	KindOracle     ConsultationType = "oracle"
	KindNumerology ConsultationType = "numerology"
	KindDreams     ConsultationType = "dreams"
	KindEnergy     ConsultationType = "energy"
)

// AllKinds lists every consultation type in display order.
var AllKinds = []ConsultationType{KindTarot, KindAstral, KindOracle, KindNumerology, KindDreams, KindEnergy}

// ParseConsultationType validates a raw kind coming from a URL or client storage.
func ParseConsultationType(raw string) (ConsultationType, error) {
	kind := ConsultationType(strings.ToLower(strings.TrimSpace(raw)))
	for _, k := range AllKinds {
		if k == kind {
			return kind, nil
		}
	}
	return "", NewValidationError(fmt.Sprintf("unknown consultation type %q", raw))
}

// Paid reports whether the consultation goes through checkout before generation.
func (k ConsultationType) Paid() bool {
	switch k {
	case KindTarot, KindAstral, KindOracle, KindNumerology:
		return true
	}
	return false
}

// IDParam is the query parameter the domain page reads when resuming after checkout.
func (k ConsultationType) IDParam() string {
	switch k {
	case KindAstral:
		return "map"
	case KindOracle:
		return "oracle"
	case KindNumerology:
		return "reading"
	default:
		return "consultation"
	}
}

// Path is the browser route of the domain page.
func (k ConsultationType) Path() string {
	return "/" + string(k)
}

// ConsultationStatus tracks generation of a paid consultation.
type ConsultationStatus string

const (
	ConsultationPending ConsultationStatus = "pending"
	// ConsultationProcessing marks the record claimed by exactly one finalize call.
	ConsultationProcessing ConsultationStatus = "processing"
	ConsultationCompleted  ConsultationStatus = "completed"
	ConsultationFailed     ConsultationStatus = "failed"
)

// PaymentStatus mirrors the local payment row.
type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentApproved PaymentStatus = "approved"
	PaymentFailed   PaymentStatus = "failed"
	PaymentRefunded PaymentStatus = "refunded"
)

// PaymentMethodMercadoPago is the only payment method label in use.
const PaymentMethodMercadoPago = "mercado_pago"

// Payment binds a gateway checkout to a consultation.
// ConsultationID is not a hard foreign key: abandoned drafts simply have no payment.
type Payment struct {
	ID                string           `gorm:"primaryKey;type:varchar(64)" json:"id"`
	UserID            string           `gorm:"type:varchar(64);not null;index" json:"user_id"`
	ConsultationID    string           `gorm:"type:varchar(64);not null;index" json:"consultation_id"`
	ConsultationType  ConsultationType `gorm:"type:varchar(32);not null" json:"consultation_type"`
	Amount            decimal.Decimal  `gorm:"type:numeric(10,2);not null" json:"amount"`
	PaymentMethod     string           `gorm:"type:varchar(64);not null" json:"payment_method"`
	ExternalPaymentID string           `gorm:"type:varchar(255)" json:"external_payment_id"` // preference id
	GatewayPaymentID  string           `gorm:"type:varchar(64)" json:"gateway_payment_id,omitempty"`
	Status            PaymentStatus    `gorm:"type:varchar(16);not null;default:pending;index" json:"status"`
	CreatedAt         time.Time        `json:"created_at"`
	UpdatedAt         time.Time        `json:"updated_at"`
}

func (Payment) TableName() string { return "payments" }

// PaidConsultation holds the columns shared by every paid variant.
type PaidConsultation struct {
	ID            string             `gorm:"primaryKey;type:varchar(64)" json:"id"`
	UserID        string             `gorm:"type:varchar(64);not null;index" json:"user_id"`
	Price         decimal.Decimal    `gorm:"type:numeric(10,2);not null" json:"price"`
	PaymentStatus ConsultationStatus `gorm:"type:varchar(16);not null;default:pending" json:"payment_status"`
	CreatedAt     time.Time          `json:"created_at"`
	CompletedAt   *time.Time         `json:"completed_at,omitempty"`
}

func (p PaidConsultation) Completed() bool { return p.PaymentStatus == ConsultationCompleted }

type TarotConsultation struct {
	PaidConsultation
	Context           string   `gorm:"type:text;not null" json:"context"`
	Questions         []string `gorm:"serializer:json;type:text;not null" json:"questions"`
	Responses         []string `gorm:"serializer:json;type:text;not null" json:"responses"`
	NumberOfQuestions int      `gorm:"not null" json:"number_of_questions"`
}

func (TarotConsultation) TableName() string { return "tarot_consultations" }

type AstralMap struct {
	PaidConsultation
	BirthDate      string `gorm:"type:varchar(10);not null" json:"birth_date"` // YYYY-MM-DD
	BirthTime      string `gorm:"type:varchar(5);not null" json:"birth_time"`  // HH:MM
	BirthLocation  string `gorm:"type:varchar(255);not null" json:"birth_location"`
	PackageType    string `gorm:"type:varchar(16);not null;default:premium" json:"package_type"`
	Interpretation string `gorm:"type:text;not null" json:"interpretation"`
}

func (AstralMap) TableName() string { return "astral_maps" }

type Oracle struct {
	PaidConsultation
	OracleType      string   `gorm:"type:varchar(64);not null" json:"oracle_type"` // runas, anjos, buzios
	Question        string   `gorm:"type:text;not null" json:"question"`
	NumberOfSymbols int      `gorm:"not null" json:"number_of_symbols"`
	Symbols         []string `gorm:"serializer:json;type:text;not null" json:"symbols"`
	Interpretations []string `gorm:"serializer:json;type:text;not null" json:"interpretations"`
}

func (Oracle) TableName() string { return "oracles" }

type Numerology struct {
	PaidConsultation
	FullName                  string `gorm:"type:varchar(255);not null" json:"full_name"`
	BirthDate                 string `gorm:"type:varchar(10);not null" json:"birth_date"`
	DestinyNumber             int    `gorm:"not null" json:"destiny_number"`
	SoulNumber                int    `gorm:"not null" json:"soul_number"`
	PersonalityNumber         int    `gorm:"not null" json:"personality_number"`
	ExpressionNumber          int    `gorm:"not null" json:"expression_number"`
	PersonalYear              int    `gorm:"not null" json:"personal_year"`
	DestinyInterpretation     string `gorm:"type:text;not null" json:"destiny_interpretation"`
	SoulInterpretation        string `gorm:"type:text;not null" json:"soul_interpretation"`
	PersonalityInterpretation string `gorm:"type:text;not null" json:"personality_interpretation"`
	ExpressionInterpretation  string `gorm:"type:text;not null" json:"expression_interpretation"`
	YearInterpretation        string `gorm:"type:text;not null" json:"year_interpretation"`
}

func (Numerology) TableName() string { return "numerologies" }

// DreamInterpretation is free and created already generated.
type DreamInterpretation struct {
	ID               string    `gorm:"primaryKey;type:varchar(64)" json:"id"`
	UserID           string    `gorm:"type:varchar(64);not null;index" json:"user_id"`
	DreamDescription string    `gorm:"type:text;not null" json:"dream_description"`
	Interpretation   string    `gorm:"type:text;not null" json:"interpretation"`
	Symbols          []string  `gorm:"serializer:json;type:text" json:"symbols"`
	CreatedAt        time.Time `json:"created_at"`
}

func (DreamInterpretation) TableName() string { return "dream_interpretations" }

// EnergyGuidance is free and created already generated.
type EnergyGuidance struct {
	ID          string    `gorm:"primaryKey;type:varchar(64)" json:"id"`
	UserID      string    `gorm:"type:varchar(64);not null;index" json:"user_id"`
	Topic       string    `gorm:"type:varchar(255);not null" json:"topic"`
	Guidance    string    `gorm:"type:text;not null" json:"guidance"`
	ChakraFocus string    `gorm:"type:varchar(255)" json:"chakra_focus"`
	CreatedAt   time.Time `json:"created_at"`
}

func (EnergyGuidance) TableName() string { return "energy_guidance" }

// Result is the tagged union returned for any consultation. Exactly one of the
// variant pointers is set, selected by Kind.
type Result struct {
	Kind   ConsultationType   `json:"kind"`
	ID     string             `json:"id"`
	UserID string             `json:"user_id"`
	Status ConsultationStatus `json:"status"`
	Price  string             `json:"price,omitempty"`

	Tarot      *TarotConsultation   `json:"tarot,omitempty"`
	Astral     *AstralMap           `json:"astral,omitempty"`
	Oracle     *Oracle              `json:"oracle,omitempty"`
	Numerology *Numerology          `json:"numerology,omitempty"`
	Dream      *DreamInterpretation `json:"dream,omitempty"`
	Energy     *EnergyGuidance      `json:"energy,omitempty"`
}

// Completed reports whether generated output is available.
func (r *Result) Completed() bool {
	return r != nil && r.Status == ConsultationCompleted
}

// VisibleTo hides other users' records from authenticated callers.
// Anonymous callers can read any record they hold the id of.
func (r *Result) VisibleTo(userID string) bool {
	return userID == "" || userID == AnonymousUserID || r.UserID == userID
}

func paidResult(kind ConsultationType, base PaidConsultation) *Result {
	return &Result{Kind: kind, ID: base.ID, UserID: base.UserID, Status: base.PaymentStatus, Price: base.Price.StringFixed(2)}
}

func TarotResult(c *TarotConsultation) *Result {
	r := paidResult(KindTarot, c.PaidConsultation)
	r.Tarot = c
	return r
}

func AstralResult(m *AstralMap) *Result {
	r := paidResult(KindAstral, m.PaidConsultation)
	r.Astral = m
	return r
}

func OracleResult(o *Oracle) *Result {
	r := paidResult(KindOracle, o.PaidConsultation)
	r.Oracle = o
	return r
}

func NumerologyResult(n *Numerology) *Result {
	r := paidResult(KindNumerology, n.PaidConsultation)
	r.Numerology = n
	return r
}

func DreamResult(d *DreamInterpretation) *Result {
	return &Result{Kind: KindDreams, ID: d.ID, UserID: d.UserID, Status: ConsultationCompleted, Dream: d}
}

func EnergyResult(e *EnergyGuidance) *Result {
	return &Result{Kind: KindEnergy, ID: e.ID, UserID: e.UserID, Status: ConsultationCompleted, Energy: e}
}

// PreferenceRequest is what the orchestrator asks the gateway to create.
type PreferenceRequest struct {
	ExternalReference string
	Title             string
	Amount            decimal.Decimal
	PayerEmail        string
	PayerName         string
}

// Preference represents a created Mercado Pago preference.
type Preference struct {
	ID               string `json:"id"`
	InitPoint        string `json:"init_point"` // URL to redirect user for payment
	SandboxInitPoint string `json:"sandbox_init_point,omitempty"`
}

// GatewayPayment represents a payment as reported by Mercado Pago.
type GatewayPayment struct {
	ID                string    `json:"id"`
	Status            string    `json:"status"` // "approved", "pending", "rejected", etc.
	StatusDetail      string    `json:"status_detail"`
	ExternalReference string    `json:"external_reference"` // our consultation id
	Amount            float64   `json:"amount"`
	PayerEmail        string    `json:"payer_email"`
	DateCreated       time.Time `json:"date_created"`
}

// GatewayStatusApproved is the only gateway status that unlocks generation.
const GatewayStatusApproved = "approved"

// WebhookNotification represents an incoming webhook from Mercado Pago.
type WebhookNotification struct {
	ID       string `json:"id"`
	Type     string `json:"type"`    // "payment", "merchant_order", etc.
	Action   string `json:"action"`  // "payment.created", "payment.updated", etc.
	DataID   string `json:"data_id"` // The ID of the resource (payment ID, etc.)
	LiveMode bool   `json:"live_mode"`
}

// Message is one role-tagged turn sent to the content generator.
type Message struct {
	Role    string `json:"role"` // "system" or "user"
	Content string `json:"content"`
}

func SystemMessage(content string) Message { return Message{Role: "system", Content: content} }
func UserMessage(content string) Message   { return Message{Role: "user", Content: content} }
