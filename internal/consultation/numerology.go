package consultation

import (
	"context"
	"strings"

	"github.com/arcano/arcano-consultas/internal/domain"
	"github.com/arcano/arcano-consultas/internal/numerology"
	"github.com/arcano/arcano-consultas/internal/store"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

var numerologyPrice = decimal.RequireFromString("25.00")

type NumerologyInput struct {
	FullName  string `json:"full_name" validate:"required,min=3,max=255"`
	BirthDate string `json:"birth_date" validate:"required,datetime=2006-01-02"`
}

// NumerologyService computes the numbers at draft time and sells their interpretations.
type NumerologyService struct {
	paidStore[domain.Numerology]
}

func NewNumerologyService(d Deps) *NumerologyService {
	return &NumerologyService{paidStore[domain.Numerology]{
		base:     newBase(d),
		kind:     domain.KindNumerology,
		repo:     store.NewRepo[domain.Numerology](d.DB, "numerology reading"),
		toResult: domain.NumerologyResult,
	}}
}

func (s *NumerologyService) CreateDraft(ctx context.Context, userID string, in NumerologyInput) (*domain.Result, error) {
	in.FullName = strings.Join(strings.Fields(s.guard.clean(in.FullName)), " ")
	in.BirthDate = strings.TrimSpace(in.BirthDate)
	if err := s.guard.check(in); err != nil {
		return nil, err
	}
	if numerology.LetterSum(in.FullName) == 0 {
		return nil, domain.NewValidationError("full_name must contain letters")
	}

	n, err := numerology.Compute(in.FullName, in.BirthDate, s.now())
	if err != nil {
		return nil, domain.NewValidationError("birth_date must match layout 2006-01-02")
	}

	row := &domain.Numerology{
		PaidConsultation: domain.PaidConsultation{
			ID:            newID(),
			UserID:        ownerOrAnonymous(userID),
			Price:         numerologyPrice,
			PaymentStatus: domain.ConsultationPending,
			CreatedAt:     s.now().UTC(),
		},
		FullName:          in.FullName,
		BirthDate:         in.BirthDate,
		DestinyNumber:     n.Destiny,
		SoulNumber:        n.Soul,
		PersonalityNumber: n.Personality,
		ExpressionNumber:  n.Expression,
		PersonalYear:      n.PersonalYear,
	}
	if err := s.repo.Create(ctx, row); err != nil {
		return nil, err
	}
	return domain.NumerologyResult(row), nil
}

// Finalize interprets the five numbers concurrently.
func (s *NumerologyService) Finalize(ctx context.Context, id string) (*domain.Result, error) {
	return s.finalize(ctx, id, s.fill)
}

func (s *NumerologyService) fill(ctx context.Context, row *domain.Numerology) ([]string, error) {
	targets := []struct {
		label  string
		number int
		dest   *string
		column string
	}{
		{"de Destino", row.DestinyNumber, &row.DestinyInterpretation, "destiny_interpretation"},
		{"da Alma", row.SoulNumber, &row.SoulInterpretation, "soul_interpretation"},
		{"da Personalidade", row.PersonalityNumber, &row.PersonalityInterpretation, "personality_interpretation"},
		{"de Expressão", row.ExpressionNumber, &row.ExpressionInterpretation, "expression_interpretation"},
		{"do Ano Pessoal", row.PersonalYear, &row.YearInterpretation, "year_interpretation"},
	}

	results := make([]string, len(targets))
	g, gctx := errgroup.WithContext(ctx)
	for i, t := range targets {
		g.Go(func() error {
			text, err := s.generate(gctx, numerologyMessages(t.label, t.number))
			if err != nil {
				return err
			}
			results[i] = strings.TrimSpace(text)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	columns := make([]string, len(targets))
	for i, t := range targets {
		*t.dest = results[i]
		columns[i] = t.column
	}
	return columns, nil
}
