package consultation

import (
	"context"
	"regexp"
	"strings"

	"github.com/arcano/arcano-consultas/internal/domain"
	"github.com/arcano/arcano-consultas/internal/store"
)

const (
	maxGuidanceRunes = 3000
	defaultChakra    = "Chakra do Coração"
)

var chakraLine = regexp.MustCompile(`(?i)chakra[^:\n]*:\s*([^\n]+)`)

type EnergyInput struct {
	Topic string `json:"topic" validate:"required,min=5,max=255"`
}

// EnergyService gives free energy guidance.
type EnergyService struct {
	freeStore[domain.EnergyGuidance]
}

func NewEnergyService(d Deps) *EnergyService {
	return &EnergyService{freeStore[domain.EnergyGuidance]{
		base:     newBase(d),
		repo:     store.NewRepo[domain.EnergyGuidance](d.DB, "energy guidance"),
		toResult: domain.EnergyResult,
	}}
}

func (s *EnergyService) Guide(ctx context.Context, userID string, in EnergyInput) (*domain.Result, error) {
	in.Topic = s.guard.clean(in.Topic)
	if err := s.guard.check(in); err != nil {
		return nil, err
	}

	text, err := s.generate(ctx, energyMessages(in.Topic))
	if err != nil {
		return nil, err
	}
	guidance := truncateRunes(strings.TrimSpace(text), maxGuidanceRunes)

	row := &domain.EnergyGuidance{
		ID:          newID(),
		UserID:      ownerOrAnonymous(userID),
		Topic:       in.Topic,
		Guidance:    guidance,
		ChakraFocus: ChakraFocus(guidance),
		CreatedAt:   s.now().UTC(),
	}
	if err := s.repo.Create(ctx, row); err != nil {
		return nil, err
	}
	return domain.EnergyResult(row), nil
}

// ChakraFocus picks the first "chakra...: X" line, or the heart chakra.
func ChakraFocus(guidance string) string {
	m := chakraLine.FindStringSubmatch(guidance)
	if m == nil {
		return defaultChakra
	}
	focus := strings.Trim(strings.TrimSpace(m[1]), "*_ ")
	if focus == "" {
		return defaultChakra
	}
	return truncateRunes(focus, 255)
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
