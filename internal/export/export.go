// Package export writes shipments back out as Amazon upload workbooks and
// as per-box summaries.
package export

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/Qubut/fba-boxes/internal/config"
	"github.com/Qubut/fba-boxes/internal/grid"
	"github.com/Qubut/fba-boxes/internal/models"
)

const (
	PackingSheet     = "Box packing information"
	InstructionSheet = "Instructions"
	MetadataSheet    = "Metadata"
	SummarySheet     = "Box Summary"

	SummaryTitle = "Box Summary with FNSKU Details"
	NoItems      = "No items"

	// boxCountRow/boxCountColumn hold the number of boxes in the upload.
	boxCountRow    = 2
	boxCountColumn = grid.FirstBoxColumn

	dateLayout = "2006-01-02"
)

var summaryHeader = []any{"Box Name", "Contents (FNSKU - Quantity)", "Total Units"}

type Exporter struct {
	Cfg             config.Config
	Logger          *zap.SugaredLogger
	Tracer          trace.Tracer
	Meter           metric.Meter
	now             func() time.Time
	workbooksTotal  metric.Int64Counter
	workbooksFailed metric.Int64Counter
	duration        metric.Int64Histogram
}

func NewExporter(
	cfg config.Config,
	tracer trace.Tracer,
	logger *zap.SugaredLogger,
	meter metric.Meter,
) (*Exporter, error) {
	e := &Exporter{
		Cfg:    cfg,
		Logger: logger,
		Tracer: tracer,
		Meter:  meter,
		now:    time.Now,
	}

	var err error
	e.workbooksTotal, err = meter.Int64Counter(
		"export.workbooks.total",
		metric.WithDescription("Workbooks written, by kind"),
	)
	if err != nil {
		return nil, err
	}

	e.workbooksFailed, err = meter.Int64Counter(
		"export.workbooks.failed",
		metric.WithDescription("Workbooks that could not be written"),
	)
	if err != nil {
		return nil, err
	}

	e.duration, err = meter.Int64Histogram(
		"export.workbook.duration",
		metric.WithDescription("Duration of building and writing a workbook"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	return e, nil
}

// ExportFull writes the upload workbook for sh to w.
func (e *Exporter) ExportFull(ctx context.Context, sh *models.Shipment, w io.Writer) error {
	return e.export(ctx, "full", sh, w, FullWorkbook)
}

// ExportSummary writes the box summary workbook for sh to w.
func (e *Exporter) ExportSummary(ctx context.Context, sh *models.Shipment, w io.Writer) error {
	return e.export(ctx, "summary", sh, w, SummaryWorkbook)
}

// WriteFull saves the upload workbook under dir and returns its path.
func (e *Exporter) WriteFull(ctx context.Context, sh *models.Shipment, dir string) (string, error) {
	path := filepath.Join(dir, FullFileName(sh, e.now()))
	return path, e.writeFile(path, func(w io.Writer) error { return e.ExportFull(ctx, sh, w) })
}

// WriteSummary saves the box summary under dir and returns its path.
func (e *Exporter) WriteSummary(ctx context.Context, sh *models.Shipment, dir string) (string, error) {
	path := filepath.Join(dir, SummaryFileName(sh, e.now()))
	return path, e.writeFile(path, func(w io.Writer) error { return e.ExportSummary(ctx, sh, w) })
}

func (e *Exporter) writeFile(path string, write func(io.Writer) error) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create export directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := write(f); err != nil {
		f.Close()
		_ = os.Remove(path)
		return err
	}
	return f.Close()
}

func (e *Exporter) export(
	ctx context.Context,
	kind string,
	sh *models.Shipment,
	w io.Writer,
	build func(*models.Shipment) (*excelize.File, error),
) error {
	_, span := e.Tracer.Start(ctx, "export.workbook", trace.WithAttributes(
		attribute.String("export.kind", kind),
		attribute.String("shipment.id", sh.ShipmentID),
	))
	defer span.End()
	start := time.Now()
	attrs := metric.WithAttributes(attribute.String("kind", kind))

	err := func() error {
		f, err := build(sh)
		if err != nil {
			return err
		}
		defer f.Close()
		_, err = f.WriteTo(w)
		return err
	}()
	e.duration.Record(ctx, time.Since(start).Milliseconds(), attrs)
	if err != nil {
		span.RecordError(err)
		e.workbooksFailed.Add(ctx, 1, attrs)
		e.Logger.Errorw("Export failed", "kind", kind, "shipment", sh.ShipmentID, "error", err)
		return fmt.Errorf("export %s workbook: %w", kind, err)
	}
	e.workbooksTotal.Add(ctx, 1, attrs)
	e.Logger.Infow("Workbook exported", "kind", kind, "shipment", sh.ShipmentID)
	return nil
}

// FullFileName names the upload workbook for sh.
func FullFileName(sh *models.Shipment, now time.Time) string {
	date := now.UTC().Format(dateLayout)
	if sh.ShipmentID == "" {
		return fmt.Sprintf("FBA_with_details_%s.xlsx", date)
	}
	return fmt.Sprintf("FBA_(%s)_%s_%s.xlsx", sh.ShipmentID, fileSafe(sh.ShipmentName), date)
}

// SummaryFileName names the box summary workbook for sh.
func SummaryFileName(sh *models.Shipment, now time.Time) string {
	date := now.UTC().Format(dateLayout)
	if sh.ShipmentID == "" {
		return fmt.Sprintf("BoxSummary_%s.xlsx", date)
	}
	return fmt.Sprintf("BoxSummary__(%s)_%s_%s.xlsx", sh.ShipmentID, fileSafe(sh.ShipmentName), date)
}

var unsafeName = strings.NewReplacer("/", "_", `\`, "_", ":", "_")

func fileSafe(s string) string { return unsafeName.Replace(s) }

type sheetSpec struct {
	name string
	fill func(f *excelize.File, name string) error
}

// newWorkbook creates a file holding sheets in order.
func newWorkbook(sheets []sheetSpec) (*excelize.File, error) {
	f := excelize.NewFile()
	for i, s := range sheets {
		var err error
		if i == 0 {
			err = f.SetSheetName(f.GetSheetName(0), s.name)
		} else {
			_, err = f.NewSheet(s.name)
		}
		if err == nil {
			err = s.fill(f, s.name)
		}
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("sheet %q: %w", s.name, err)
		}
	}
	return f, nil
}

func writeRows(f *excelize.File, sheet string, rows [][]any) error {
	for i, r := range rows {
		if len(r) == 0 {
			continue
		}
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &r); err != nil {
			return err
		}
	}
	return nil
}

func merge(f *excelize.File, sheet string, row, fromCol, toCol int) error {
	from, err := excelize.CoordinatesToCellName(fromCol+1, row+1)
	if err != nil {
		return err
	}
	to, err := excelize.CoordinatesToCellName(toCol+1, row+1)
	if err != nil {
		return err
	}
	return f.MergeCell(sheet, from, to)
}

func stringRows(data [][]string) [][]any {
	out := make([][]any, len(data))
	for i, r := range data {
		row := make([]any, len(r))
		for j, v := range r {
			row[j] = v
		}
		out[i] = row
	}
	return out
}

func sideSheet(sd *models.SheetData, fallback string) (sheetSpec, bool) {
	if sd == nil || sd.Data == nil {
		return sheetSpec{}, false
	}
	name := sd.Name
	if name == "" {
		name = fallback
	}
	return sheetSpec{name: name, fill: func(f *excelize.File, sheet string) error {
		return writeRows(f, sheet, stringRows(sd.Data))
	}}, true
}
