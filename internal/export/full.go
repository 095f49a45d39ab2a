package export

import (
	"github.com/xuri/excelize/v2"

	"github.com/Qubut/fba-boxes/internal/grid"
	"github.com/Qubut/fba-boxes/internal/models"
)

// FullWorkbook rebuilds the upload workbook: the preserved instruction
// sheet, the packing grid and the preserved metadata sheet.
func FullWorkbook(sh *models.Shipment) (*excelize.File, error) {
	var sheets []sheetSpec
	if s, ok := sideSheet(sh.OriginalSheetData.Instruction, InstructionSheet); ok {
		sheets = append(sheets, s)
	}
	sheets = append(sheets, sheetSpec{name: PackingSheet, fill: func(f *excelize.File, sheet string) error {
		return fillPacking(f, sheet, sh.MainJSON)
	}})
	if s, ok := sideSheet(sh.OriginalSheetData.Metadata, MetadataSheet); ok {
		sheets = append(sheets, s)
	}
	return newWorkbook(sheets)
}

func fillPacking(f *excelize.File, sheet string, g grid.Grid) error {
	boxRow, hasBoxes := g.BoxNameRow()
	if hasBoxes && len(g) > boxCountRow {
		g = g.Clone()
		g.Set(boxCountRow, boxCountColumn, grid.IntCell(g.BoxCount()))
	}
	if err := writeRows(f, sheet, packingRows(g)); err != nil {
		return err
	}

	type span struct{ row, from, to int }
	var merges []span
	for r := range g {
		switch {
		case r == 0:
			merges = append(merges, span{r, 0, 11})
		case r == 1:
			merges = append(merges, span{r, 0, 1})
		case r == 2:
			merges = append(merges, span{r, 0, 2}, span{r, 8, 11})
		case hasBoxes && r == boxRow:
			for j := 0; j <= 4 && r+j < len(g); j++ {
				merges = append(merges, span{r + j, 0, 11})
			}
		}
	}
	for _, m := range merges {
		if err := merge(f, sheet, m.row, m.from, m.to); err != nil {
			return err
		}
	}
	return nil
}

// packingRows converts cells for writing. Quantity and dimension columns
// are written as numbers when they parse as one.
func packingRows(g grid.Grid) [][]any {
	out := make([][]any, len(g))
	for i, r := range g {
		row := make([]any, len(r))
		for j, c := range r {
			switch {
			case c.IsEmpty():
				row[j] = nil
			case j >= grid.FirstNumericColumn:
				if v, ok := grid.CoerceNumber(c.String()); ok {
					row[j] = v
				} else {
					row[j] = c.String()
				}
			default:
				row[j] = c.String()
			}
		}
		out[i] = row
	}
	return out
}
