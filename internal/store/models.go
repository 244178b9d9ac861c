package store

import "github.com/arcano/arcano-consultas/internal/domain"

// Models lists every persisted entity. Schema changes ship as goose
// migrations; the list is used to build throwaway test databases.
func Models() []any {
	return []any{
		&domain.Payment{},
		&domain.TarotConsultation{},
		&domain.AstralMap{},
		&domain.Oracle{},
		&domain.Numerology{},
		&domain.DreamInterpretation{},
		&domain.EnergyGuidance{},
	}
}
