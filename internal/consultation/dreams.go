package consultation

import (
	"context"
	"strings"

	"github.com/arcano/arcano-consultas/internal/domain"
	"github.com/arcano/arcano-consultas/internal/store"
)

type DreamInput struct {
	DreamDescription string `json:"dream_description" validate:"required,min=20,max=5000"`
}

// DreamService interprets dreams for free; draft and generation happen in one call.
type DreamService struct {
	freeStore[domain.DreamInterpretation]
}

func NewDreamService(d Deps) *DreamService {
	return &DreamService{freeStore[domain.DreamInterpretation]{
		base:     newBase(d),
		repo:     store.NewRepo[domain.DreamInterpretation](d.DB, "dream interpretation"),
		toResult: domain.DreamResult,
	}}
}

func (s *DreamService) Interpret(ctx context.Context, userID string, in DreamInput) (*domain.Result, error) {
	in.DreamDescription = s.guard.clean(in.DreamDescription)
	if err := s.guard.check(in); err != nil {
		return nil, err
	}

	text, err := s.generate(ctx, dreamMessages(in.DreamDescription))
	if err != nil {
		return nil, err
	}
	text = strings.TrimSpace(text)

	row := &domain.DreamInterpretation{
		ID:               newID(),
		UserID:           ownerOrAnonymous(userID),
		DreamDescription: in.DreamDescription,
		Interpretation:   text,
		Symbols:          ExtractSymbols(text),
		CreatedAt:        s.now().UTC(),
	}
	if err := s.repo.Create(ctx, row); err != nil {
		return nil, err
	}
	return domain.DreamResult(row), nil
}
