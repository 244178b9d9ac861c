package consultation

import (
	"context"
	"regexp"
	"strings"

	"github.com/arcano/arcano-consultas/internal/domain"
	"github.com/arcano/arcano-consultas/internal/store"
	"github.com/shopspring/decimal"
)

var oraclePrices = map[int]decimal.Decimal{
	1: decimal.RequireFromString("5.00"),
	3: decimal.RequireFromString("12.00"),
	5: decimal.RequireFromString("20.00"),
}

// symbolLine matches "Símbolo: X" style lines in generated text.
var symbolLine = regexp.MustCompile(`(?i)s[íi]mbolo[^:\n]*:\s*([^\n]+)`)

type OracleInput struct {
	OracleType      string `json:"oracle_type" validate:"required,oneof=runas anjos buzios"`
	Question        string `json:"question" validate:"required,min=10,max=1000"`
	NumberOfSymbols int    `json:"number_of_symbols" validate:"required,oneof=1 3 5"`
}

// OracleService sells runes, angels and cowrie shell readings.
type OracleService struct {
	paidStore[domain.Oracle]
}

func NewOracleService(d Deps) *OracleService {
	return &OracleService{paidStore[domain.Oracle]{
		base:     newBase(d),
		kind:     domain.KindOracle,
		repo:     store.NewRepo[domain.Oracle](d.DB, "oracle"),
		toResult: domain.OracleResult,
	}}
}

func (s *OracleService) CreateDraft(ctx context.Context, userID string, in OracleInput) (*domain.Result, error) {
	in.OracleType = strings.ToLower(strings.TrimSpace(in.OracleType))
	in.Question = s.guard.clean(in.Question)
	if err := s.guard.check(in); err != nil {
		return nil, err
	}

	row := &domain.Oracle{
		PaidConsultation: domain.PaidConsultation{
			ID:            newID(),
			UserID:        ownerOrAnonymous(userID),
			Price:         oraclePrices[in.NumberOfSymbols],
			PaymentStatus: domain.ConsultationPending,
			CreatedAt:     s.now().UTC(),
		},
		OracleType:      in.OracleType,
		Question:        in.Question,
		NumberOfSymbols: in.NumberOfSymbols,
		Symbols:         []string{},
		Interpretations: []string{},
	}
	if err := s.repo.Create(ctx, row); err != nil {
		return nil, err
	}
	return domain.OracleResult(row), nil
}

// Finalize draws the symbols and stores the interpretation line by line.
func (s *OracleService) Finalize(ctx context.Context, id string) (*domain.Result, error) {
	return s.finalize(ctx, id, func(ctx context.Context, row *domain.Oracle) ([]string, error) {
		text, err := s.generate(ctx, oracleMessages(row))
		if err != nil {
			return nil, err
		}
		row.Symbols = ExtractSymbols(text)
		row.Interpretations = nonEmptyLines(text)
		return []string{"symbols", "interpretations"}, nil
	})
}

// ExtractSymbols returns the value of every "símbolo...: X" line.
func ExtractSymbols(text string) []string {
	matches := symbolLine.FindAllStringSubmatch(text, -1)
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		if v := strings.Trim(strings.TrimSpace(m[1]), "*_ "); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func nonEmptyLines(text string) []string {
	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))
	for _, l := range lines {
		if l = strings.TrimSpace(l); l != "" {
			out = append(out, l)
		}
	}
	return out
}
