package consultation

import (
	"context"
	"strings"

	"github.com/arcano/arcano-consultas/internal/domain"
	"github.com/arcano/arcano-consultas/internal/store"
	"github.com/shopspring/decimal"
)

// PackagePremium is the only astral package on sale.
const PackagePremium = "premium"

var astralPrice = decimal.RequireFromString("40.00")

type AstralInput struct {
	BirthDate     string `json:"birth_date" validate:"required,datetime=2006-01-02"`
	BirthTime     string `json:"birth_time" validate:"required,datetime=15:04"`
	BirthLocation string `json:"birth_location" validate:"required,min=2,max=255"`
	PackageType   string `json:"package_type" validate:"omitempty,oneof=premium"`
}

// AstralService sells full natal chart interpretations.
type AstralService struct {
	paidStore[domain.AstralMap]
}

func NewAstralService(d Deps) *AstralService {
	return &AstralService{paidStore[domain.AstralMap]{
		base:     newBase(d),
		kind:     domain.KindAstral,
		repo:     store.NewRepo[domain.AstralMap](d.DB, "astral map"),
		toResult: domain.AstralResult,
	}}
}

func (s *AstralService) CreateDraft(ctx context.Context, userID string, in AstralInput) (*domain.Result, error) {
	in.BirthDate = strings.TrimSpace(in.BirthDate)
	in.BirthTime = strings.TrimSpace(in.BirthTime)
	in.BirthLocation = s.guard.clean(in.BirthLocation)
	if in.PackageType == "" {
		in.PackageType = PackagePremium
	}
	if err := s.guard.check(in); err != nil {
		return nil, err
	}

	row := &domain.AstralMap{
		PaidConsultation: domain.PaidConsultation{
			ID:            newID(),
			UserID:        ownerOrAnonymous(userID),
			Price:         astralPrice,
			PaymentStatus: domain.ConsultationPending,
			CreatedAt:     s.now().UTC(),
		},
		BirthDate:     in.BirthDate,
		BirthTime:     in.BirthTime,
		BirthLocation: in.BirthLocation,
		PackageType:   in.PackageType,
	}
	if err := s.repo.Create(ctx, row); err != nil {
		return nil, err
	}
	return domain.AstralResult(row), nil
}

// Finalize generates the map interpretation.
func (s *AstralService) Finalize(ctx context.Context, id string) (*domain.Result, error) {
	return s.finalize(ctx, id, func(ctx context.Context, row *domain.AstralMap) ([]string, error) {
		text, err := s.generate(ctx, astralMessages(row))
		if err != nil {
			return nil, err
		}
		row.Interpretation = strings.TrimSpace(text)
		return []string{"interpretation"}, nil
	})
}

// Map returns the stored row, used by the PDF export.
func (s *AstralService) Map(ctx context.Context, id string) (*domain.AstralMap, error) {
	return s.repo.Get(ctx, id)
}
