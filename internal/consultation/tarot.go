package consultation

import (
	"context"
	"fmt"
	"strings"

	"github.com/arcano/arcano-consultas/internal/domain"
	"github.com/arcano/arcano-consultas/internal/store"
	"github.com/shopspring/decimal"
)

var tarotPrices = map[int]decimal.Decimal{
	1: decimal.RequireFromString("3.00"),
	2: decimal.RequireFromString("5.00"),
	3: decimal.RequireFromString("7.00"),
	5: decimal.RequireFromString("10.00"),
}

// TarotInput is the draft form of a tarot reading.
type TarotInput struct {
	Context   string   `json:"context" validate:"required,min=5,max=2000"`
	Questions []string `json:"questions" validate:"required,min=1,max=5,dive,required,min=3,max=500"`
}

// TarotService sells readings of one to five questions.
type TarotService struct {
	paidStore[domain.TarotConsultation]
}

func NewTarotService(d Deps) *TarotService {
	return &TarotService{paidStore[domain.TarotConsultation]{
		base:     newBase(d),
		kind:     domain.KindTarot,
		repo:     store.NewRepo[domain.TarotConsultation](d.DB, "tarot consultation"),
		toResult: domain.TarotResult,
	}}
}

// CreateDraft stores a pending reading priced by the number of questions.
func (s *TarotService) CreateDraft(ctx context.Context, userID string, in TarotInput) (*domain.Result, error) {
	in.Context = s.guard.clean(in.Context)
	in.Questions = s.guard.cleanAll(in.Questions)
	if err := s.guard.check(in); err != nil {
		return nil, err
	}

	price, ok := tarotPrices[len(in.Questions)]
	if !ok {
		return nil, domain.NewValidationError("questions must contain 1, 2, 3 or 5 items")
	}

	row := &domain.TarotConsultation{
		PaidConsultation: domain.PaidConsultation{
			ID:            newID(),
			UserID:        ownerOrAnonymous(userID),
			Price:         price,
			PaymentStatus: domain.ConsultationPending,
			CreatedAt:     s.now().UTC(),
		},
		Context:           in.Context,
		Questions:         in.Questions,
		Responses:         []string{},
		NumberOfQuestions: len(in.Questions),
	}
	if err := s.repo.Create(ctx, row); err != nil {
		return nil, err
	}
	return domain.TarotResult(row), nil
}

// Finalize answers every question, then writes a general summary below them.
func (s *TarotService) Finalize(ctx context.Context, id string) (*domain.Result, error) {
	return s.finalize(ctx, id, s.fill)
}

func (s *TarotService) fill(ctx context.Context, row *domain.TarotConsultation) ([]string, error) {
	answers := make([]string, 0, len(row.Questions))
	for _, q := range row.Questions {
		answer, err := s.generate(ctx, tarotQuestionMessages(row.Context, q))
		if err != nil {
			return nil, err
		}
		answers = append(answers, strings.TrimSpace(answer))
	}

	summary, err := s.generate(ctx, tarotSummaryMessages(row.Context, row.Questions, answers))
	if err != nil {
		return nil, err
	}

	row.Responses = []string{FormatTarotReading(row.Questions, answers, strings.TrimSpace(summary))}
	return []string{"responses"}, nil
}

// FormatTarotReading renders numbered question sections followed by the summary.
func FormatTarotReading(questions, answers []string, summary string) string {
	sections := make([]string, len(questions))
	for i, q := range questions {
		sections[i] = fmt.Sprintf("**%d. %s**\n%s", i+1, q, answers[i])
	}
	return strings.Join(sections, "\n\n") + "\n\n---\n\n**Contexto Geral**\n" + summary
}
