package export

import (
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/Qubut/fba-boxes/internal/grid"
	"github.com/Qubut/fba-boxes/internal/models"
)

// BoxSummary is one line of the summary sheet.
type BoxSummary struct {
	Name     string
	Contents []string
	Units    int
}

// Summarize lists every named box with the FNSKUs packed in it.
func Summarize(g grid.Grid) []BoxSummary {
	boxRow, ok := g.BoxNameRow()
	if !ok {
		return nil
	}
	var out []BoxSummary
	for c := 1; c < len(g[boxRow]); c++ {
		name := g.Cell(boxRow, c)
		if name.IsEmpty() {
			continue
		}
		s := BoxSummary{Name: name.String()}
		for r := grid.FirstItemRow; r < boxRow; r++ {
			fnsku := g.Cell(r, grid.ColFNSKU)
			qty := g.Cell(r, c)
			if fnsku.IsEmpty() || qty.IsEmpty() {
				continue
			}
			s.Contents = append(s.Contents, fmt.Sprintf("%s - %s", fnsku.String(), qty.String()))
			s.Units += qty.Int()
		}
		out = append(out, s)
	}
	return out
}

// SummaryWorkbook builds the single-sheet box summary.
func SummaryWorkbook(sh *models.Shipment) (*excelize.File, error) {
	return newWorkbook([]sheetSpec{{name: SummarySheet, fill: func(f *excelize.File, sheet string) error {
		return fillSummary(f, sheet, sh)
	}}})
}

func fillSummary(f *excelize.File, sheet string, sh *models.Shipment) error {
	rows := [][]any{{SummaryTitle, "", ""}}
	if sh.ShipmentID != "" {
		rows = append(rows,
			[]any{"Shipment ID: " + sh.ShipmentID, "", ""},
			[]any{"", "", ""},
		)
	}
	rows = append(rows, summaryHeader)
	for _, b := range Summarize(sh.MainJSON) {
		if len(b.Contents) == 0 {
			rows = append(rows, []any{b.Name, NoItems, 0})
			continue
		}
		rows = append(rows, []any{b.Name, strings.Join(b.Contents, ", "), b.Units})
	}
	if err := writeRows(f, sheet, rows); err != nil {
		return err
	}

	for col, width := range map[string]float64{"A": 20, "B": 100, "C": 15} {
		if err := f.SetColWidth(sheet, col, col, width); err != nil {
			return err
		}
	}
	if err := f.MergeCell(sheet, "A1", "C1"); err != nil {
		return err
	}
	if sh.ShipmentID != "" {
		return f.MergeCell(sheet, "A2", "C2")
	}
	return nil
}
