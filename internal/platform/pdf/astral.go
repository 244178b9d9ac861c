// Package pdf renders downloadable documents for completed consultations.
package pdf

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/arcano/arcano-consultas/internal/domain"
	"github.com/go-pdf/fpdf"
)

// ErrNotCompleted is returned when the map has no interpretation yet.
var ErrNotCompleted = errors.New("astral map is not completed")

var markdownCleaner = strings.NewReplacer("**", "", "__", "", "### ", "", "## ", "", "# ", "")

// AstralMap writes an A4 PDF with a cover block followed by the interpretation.
// name is optional and printed on the cover.
func AstralMap(w io.Writer, m *domain.AstralMap, name string, generatedAt time.Time) error {
	if !m.Completed() || strings.TrimSpace(m.Interpretation) == "" {
		return ErrNotCompleted
	}

	doc := fpdf.New("P", "mm", "A4", "")
	tr := doc.UnicodeTranslatorFromDescriptor("")
	doc.SetMargins(18, 20, 18)
	doc.SetAutoPageBreak(true, 20)
	doc.SetTitle(tr("Mapa Astral Personalizado"), false)

	doc.SetFooterFunc(func() {
		if doc.PageNo() == 1 {
			return
		}
		doc.SetY(-15)
		doc.SetFont("Helvetica", "", 9)
		doc.SetTextColor(128, 128, 128)
		doc.CellFormat(0, 10, fmt.Sprintf("Pagina %d", doc.PageNo()), "", 0, "R", false, 0, "")
	})

	doc.AddPage()
	doc.SetFont("Helvetica", "B", 24)
	doc.SetTextColor(204, 153, 0)
	doc.CellFormat(0, 14, tr("MAPA ASTRAL PERSONALIZADO"), "", 1, "L", false, 0, "")
	doc.Ln(4)

	if name != "" {
		doc.SetFont("Helvetica", "B", 16)
		doc.SetTextColor(40, 40, 40)
		doc.CellFormat(0, 9, tr("Para: "+name), "", 1, "L", false, 0, "")
	}

	doc.SetFont("Helvetica", "", 11)
	doc.SetTextColor(70, 70, 70)
	for _, line := range []string{
		"Data de Nascimento: " + m.BirthDate,
		"Hora de Nascimento: " + m.BirthTime,
		"Local de Nascimento: " + m.BirthLocation,
		"Pacote: " + packageLabel(m.PackageType),
		"Data de Geracao: " + generatedAt.Format("02/01/2006"),
	} {
		doc.CellFormat(0, 7, tr(line), "", 1, "L", false, 0, "")
	}

	doc.AddPage()
	doc.SetTextColor(25, 25, 25)
	for _, paragraph := range strings.Split(m.Interpretation, "\n") {
		text := strings.TrimSpace(markdownCleaner.Replace(paragraph))
		if text == "" {
			doc.Ln(3)
			continue
		}
		if isHeading(paragraph) {
			doc.SetFont("Helvetica", "B", 12)
		} else {
			doc.SetFont("Helvetica", "", 11)
		}
		doc.MultiCell(0, 6, tr(text), "", "L", false)
	}

	if err := doc.Error(); err != nil {
		return fmt.Errorf("render astral map pdf: %w", err)
	}
	return doc.Output(w)
}

func packageLabel(p string) string {
	if p == "basic" {
		return "Basico"
	}
	return "Premium"
}

func isHeading(line string) bool {
	line = strings.TrimSpace(line)
	return strings.HasPrefix(line, "#") || (strings.HasPrefix(line, "**") && strings.HasSuffix(line, "**"))
}
