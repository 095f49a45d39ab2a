package export

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/Qubut/fba-boxes/internal/config"
	"github.com/Qubut/fba-boxes/internal/grid"
	"github.com/Qubut/fba-boxes/internal/models"
)

func pad(cells []string, n int) []string {
	for len(cells) < n {
		cells = append(cells, "")
	}
	return cells
}

func shipment() *models.Shipment {
	const w = 14
	return &models.Shipment{
		ShipmentID:   "FBA-ABC123",
		ShipmentName: "Spring restock",
		MainJSON: grid.FromStrings([][]string{
			pad([]string{"Shipment ID", "FBA15XYZ"}, w),
			pad([]string{"Name", "Spring restock"}, w),
			pad([]string{"Ship from", "Warehouse 1"}, w),
			pad(nil, w),
			pad([]string{"SKU", "Title", "ID", "ASIN", "FNSKU", "Condition", "Prep", "Prep units", "Label units", "Expected", "Boxed", "", "Box 1 quantity", "Box 2 quantity"}, w),
			pad([]string{"SKU-1", "Mug", "1", "B000000001", "X001", "New", "", "", "", "1,000", "3", "", "2", "1"}, w),
			pad([]string{"SKU-2", "Plate", "2", "B000000002", "X002", "New", "", "", "", "5", "0", "", "", ""}, w),
			pad([]string{grid.BoxNameLabel, "", "", "", "", "", "", "", "", "", "", "", "P1 - B1", "P1 - B2"}, w),
			pad([]string{"Box weight (lb)", "", "", "", "", "", "", "", "", "", "", "", "12", "8"}, w),
			pad([]string{"Box width (inch)", "", "", "", "", "", "", "", "", "", "", "", "10", "10"}, w),
			pad([]string{"Box length (inch)", "", "", "", "", "", "", "", "", "", "", "", "12", "12"}, w),
			pad([]string{"Box height (inch)", "", "", "", "", "", "", "", "", "", "", "", "8", "n/a"}, w),
		}),
		OriginalSheetData: models.OriginalSheetData{
			Instruction: &models.SheetData{Name: "Read first", Data: [][]string{{"Read me"}}},
			Metadata:    &models.SheetData{Data: [][]string{{"version", "2"}}},
		},
	}
}

func newTestExporter(t *testing.T) *Exporter {
	t.Helper()
	e, err := NewExporter(config.Defaults(),
		tracenoop.NewTracerProvider().Tracer("test"),
		zap.NewNop().Sugar(),
		metricnoop.NewMeterProvider().Meter("test"),
	)
	require.NoError(t, err)
	e.now = func() time.Time { return time.Date(2024, 3, 9, 23, 0, 0, 0, time.UTC) }
	return e
}

func reopen(t *testing.T, data []byte) *excelize.File {
	t.Helper()
	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	t.Cleanup(func() { f.Close() })
	return f
}

func TestExportFull(t *testing.T) {
	e := newTestExporter(t)
	sh := shipment()
	var buf bytes.Buffer
	require.NoError(t, e.ExportFull(context.Background(), sh, &buf))

	f := reopen(t, buf.Bytes())
	assert.Equal(t, []string{"Read first", PackingSheet, MetadataSheet}, f.GetSheetList())

	v, err := f.GetCellValue(PackingSheet, "M3")
	require.NoError(t, err)
	assert.Equal(t, "2", v, "box count")

	numeric := []excelize.CellType{excelize.CellTypeUnset, excelize.CellTypeNumber}
	typ, err := f.GetCellType(PackingSheet, "J6")
	require.NoError(t, err)
	assert.Contains(t, numeric, typ)
	v, err = f.GetCellValue(PackingSheet, "J6", excelize.Options{RawCellValue: true})
	require.NoError(t, err)
	assert.Equal(t, "1000", v)

	typ, err = f.GetCellType(PackingSheet, "E6")
	require.NoError(t, err)
	assert.NotContains(t, numeric, typ)

	v, err = f.GetCellValue(PackingSheet, "N12")
	require.NoError(t, err)
	assert.Equal(t, "n/a", v)

	merges, err := f.GetMergeCells(PackingSheet)
	require.NoError(t, err)
	var ranges []string
	for _, m := range merges {
		ranges = append(ranges, m.GetStartAxis()+":"+m.GetEndAxis())
	}
	assert.ElementsMatch(t, []string{
		"A1:L1", "A2:B2", "A3:C3", "I3:L3",
		"A8:L8", "A9:L9", "A10:L10", "A11:L11", "A12:L12",
	}, ranges)

	// The stored grid is not changed by the export.
	assert.True(t, sh.MainJSON.Cell(2, 12).IsEmpty())
}

func TestExportFullWithoutSideSheets(t *testing.T) {
	e := newTestExporter(t)
	sh := shipment()
	sh.OriginalSheetData = models.OriginalSheetData{}
	var buf bytes.Buffer
	require.NoError(t, e.ExportFull(context.Background(), sh, &buf))
	assert.Equal(t, []string{PackingSheet}, reopen(t, buf.Bytes()).GetSheetList())
}

func TestExportSummary(t *testing.T) {
	e := newTestExporter(t)
	var buf bytes.Buffer
	require.NoError(t, e.ExportSummary(context.Background(), shipment(), &buf))

	f := reopen(t, buf.Bytes())
	rows, err := f.GetRows(SummarySheet)
	require.NoError(t, err)
	require.Len(t, rows, 6)
	assert.Equal(t, SummaryTitle, rows[0][0])
	assert.Equal(t, "Shipment ID: FBA-ABC123", rows[1][0])
	assert.Equal(t, []string{"Box Name", "Contents (FNSKU - Quantity)", "Total Units"}, rows[3])
	assert.Equal(t, []string{"P1 - B1", "X001 - 2", "2"}, rows[4])
	assert.Equal(t, []string{"P1 - B2", "X001 - 1", "1"}, rows[5])

	width, err := f.GetColWidth(SummarySheet, "B")
	require.NoError(t, err)
	assert.Equal(t, 100.0, width)
}

func TestSummarizeEmptyBox(t *testing.T) {
	g := shipment().MainJSON
	g.Set(5, 13, grid.Cell{})
	got := Summarize(g)
	require.Len(t, got, 2)
	assert.Empty(t, got[1].Contents)
	assert.Zero(t, got[1].Units)
}

func TestFileNames(t *testing.T) {
	now := time.Date(2024, 3, 9, 23, 0, 0, 0, time.UTC)
	sh := shipment()
	assert.Equal(t, "FBA_(FBA-ABC123)_Spring restock_2024-03-09.xlsx", FullFileName(sh, now))
	assert.Equal(t, "BoxSummary__(FBA-ABC123)_Spring restock_2024-03-09.xlsx", SummaryFileName(sh, now))

	sh.ShipmentID = ""
	assert.Equal(t, "FBA_with_details_2024-03-09.xlsx", FullFileName(sh, now))
	assert.Equal(t, "BoxSummary_2024-03-09.xlsx", SummaryFileName(sh, now))
}

func TestWriteFull(t *testing.T) {
	e := newTestExporter(t)
	dir := filepath.Join(t.TempDir(), "out")
	path, err := e.WriteFull(context.Background(), shipment(), dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "FBA_(FBA-ABC123)_Spring restock_2024-03-09.xlsx"), path)
	_, err = os.Stat(path)
	require.NoError(t, err)
}
