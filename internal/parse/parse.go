// Package parse reads Amazon box-content workbooks into the shipment model.
package parse

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	ET "github.com/IBM/fp-go/v2/either"
	IOE "github.com/IBM/fp-go/v2/ioeither"
	"github.com/IBM/fp-go/v2/ioeither/file"
	"github.com/extrame/xls"
	"github.com/xuri/excelize/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/Qubut/fba-boxes/internal/config"
	"github.com/Qubut/fba-boxes/internal/grid"
	"github.com/Qubut/fba-boxes/internal/models"
	T "github.com/Qubut/fba-boxes/internal/typing"
)

var (
	// ErrFormat marks workbooks that do not have the expected sheets.
	ErrFormat = errors.New("invalid workbook format")
	// ErrUpload is returned by ValidateUpload.
	ErrUpload = errors.New("unsupported upload")
)

// DefaultMaxUploadSize is the largest workbook accepted for upload.
const DefaultMaxUploadSize = 10 << 20

const (
	instructionSheet = 0
	dataSheet        = 1
	metadataSheet    = 2

	defaultMetadataName = "Metadata"
)

type Parser struct {
	Cfg          config.Config
	Logger       *zap.SugaredLogger
	Tracer       trace.Tracer
	Meter        metric.Meter
	filesTotal   metric.Int64Counter
	filesFailed  metric.Int64Counter
	rowsTotal    metric.Int64Counter
	bytesTotal   metric.Int64Counter
	fileDuration metric.Int64Histogram
}

func NewParser(
	cfg config.Config,
	tracer trace.Tracer,
	logger *zap.SugaredLogger,
	meter metric.Meter,
) (*Parser, error) {
	p := &Parser{
		Cfg:    cfg,
		Logger: logger,
		Tracer: tracer,
		Meter:  meter,
	}

	var err error
	p.filesTotal, err = meter.Int64Counter(
		"parse.workbooks.total",
		metric.WithDescription("Total number of workbooks parsed"),
	)
	if err != nil {
		return nil, err
	}

	p.filesFailed, err = meter.Int64Counter(
		"parse.workbooks.failed",
		metric.WithDescription("Number of workbooks rejected by the parser"),
	)
	if err != nil {
		return nil, err
	}

	p.rowsTotal, err = meter.Int64Counter(
		"parse.rows.total",
		metric.WithDescription("Rows read from box packing sheets"),
	)
	if err != nil {
		return nil, err
	}

	p.bytesTotal, err = meter.Int64Counter(
		"parse.bytes.total",
		metric.WithDescription("Total bytes read from workbooks"),
		metric.WithUnit("By"),
	)
	if err != nil {
		return nil, err
	}

	p.fileDuration, err = meter.Int64Histogram(
		"parse.workbook.duration",
		metric.WithDescription("Duration of individual workbook parsing"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	return p, nil
}

// ValidateUpload checks the file name and size before a workbook is read.
func ValidateUpload(name string, size, maxSize int64) error {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".xlsx", ".xls":
	default:
		return fmt.Errorf("%w: %s is not an Excel workbook (.xlsx or .xls)", ErrUpload, filepath.Base(name))
	}
	if maxSize <= 0 {
		maxSize = DefaultMaxUploadSize
	}
	if size > maxSize {
		return fmt.Errorf("%w: %s is %d bytes, limit is %d", ErrUpload, filepath.Base(name), size, maxSize)
	}
	return nil
}

// ParseFile opens and parses the workbook at path.
func (p *Parser) ParseFile(ctx context.Context, path string) IOE.IOEither[error, *models.ParsedWorkbook] {
	return IOE.Bracket(
		file.Open(path),
		func(f *os.File) IOE.IOEither[error, *models.ParsedWorkbook] {
			select {
			case <-ctx.Done():
				return IOE.Left[*models.ParsedWorkbook](ctx.Err())
			default:
			}
			return IOE.TryCatchError(func() (*models.ParsedWorkbook, error) {
				return p.Parse(ctx, f, path)
			})
		},
		func(f *os.File, _ ET.Either[error, *models.ParsedWorkbook]) IOE.IOEither[error, T.Unit] {
			return IOE.TryCatchError(func() (T.Unit, error) { return T.Unit{}, f.Close() })
		},
	)
}

// Parse reads a workbook from r. filename selects the reader: ".xls" uses
// the legacy binary format, anything else is read as OOXML.
func (p *Parser) Parse(ctx context.Context, r io.Reader, filename string) (*models.ParsedWorkbook, error) {
	ctx, span := p.Tracer.Start(ctx, "parse.workbook", trace.WithAttributes(
		attribute.String("workbook.name", filepath.Base(filename)),
	))
	defer span.End()
	start := time.Now()
	p.filesTotal.Add(ctx, 1)

	fail := func(err error) (*models.ParsedWorkbook, error) {
		span.RecordError(err)
		p.filesFailed.Add(ctx, 1)
		p.fileDuration.Record(ctx, time.Since(start).Milliseconds(),
			metric.WithAttributes(attribute.String("status", "failed")))
		p.Logger.Warnw("Workbook rejected", "file", filename, "error", err)
		return nil, err
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return fail(fmt.Errorf("read %s: %w", filename, err))
	}
	p.bytesTotal.Add(ctx, int64(len(data)))

	sheets, err := readSheets(data, filename)
	if err != nil {
		return fail(err)
	}
	wb, err := buildWorkbook(sheets)
	if err != nil {
		return fail(err)
	}

	p.rowsTotal.Add(ctx, int64(len(wb.MainJSON)))
	span.SetAttributes(
		attribute.Int("workbook.sheets", len(sheets)),
		attribute.Int("workbook.rows", len(wb.MainJSON)),
		attribute.Int("workbook.width", wb.MainJSON.Width()),
	)
	p.fileDuration.Record(ctx, time.Since(start).Milliseconds(),
		metric.WithAttributes(attribute.String("status", "success")))
	p.Logger.Debugw("Workbook parsed",
		"file", filename,
		"sheets", len(sheets),
		"rows", len(wb.MainJSON),
		"width", wb.MainJSON.Width())
	return wb, nil
}

type sheet struct {
	name string
	rows [][]string
}

func readSheets(data []byte, filename string) ([]sheet, error) {
	if strings.EqualFold(filepath.Ext(filename), ".xls") {
		return readXLS(data)
	}
	return readXLSX(data)
}

func readXLSX(data []byte) ([]sheet, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFormat, err)
	}
	defer func() { _ = f.Close() }()

	var out []sheet
	for _, name := range f.GetSheetList() {
		rows, err := f.GetRows(name, excelize.Options{RawCellValue: true})
		if err != nil {
			return nil, fmt.Errorf("read sheet %q: %w", name, err)
		}
		out = append(out, sheet{name: name, rows: rows})
	}
	return out, nil
}

func readXLS(data []byte) ([]sheet, error) {
	wb, err := xls.OpenReader(bytes.NewReader(data), "utf-8")
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFormat, err)
	}
	var out []sheet
	for i := 0; i < wb.NumSheets(); i++ {
		ws := wb.GetSheet(i)
		if ws == nil {
			continue
		}
		var rows [][]string
		for r := 0; r <= int(ws.MaxRow); r++ {
			row := ws.Row(r)
			if row == nil {
				rows = append(rows, nil)
				continue
			}
			cells := make([]string, row.LastCol())
			for c := range cells {
				cells[c] = row.Col(c)
			}
			rows = append(rows, cells)
		}
		out = append(out, sheet{name: ws.Name, rows: rows})
	}
	return out, nil
}

func buildWorkbook(sheets []sheet) (*models.ParsedWorkbook, error) {
	if len(sheets) < 2 {
		return nil, fmt.Errorf("%w: expected at least 2 sheets, found %d", ErrFormat, len(sheets))
	}
	packing := rectangular(sheets[dataSheet].rows)
	width := dataWidth(packing)
	for i, row := range packing {
		packing[i] = fit(row, width)
	}

	wb := &models.ParsedWorkbook{MainJSON: grid.FromStrings(packing)}
	wb.OriginalSheetData.Instruction = &models.SheetData{
		Name: sheets[instructionSheet].name,
		Data: rectangular(sheets[instructionSheet].rows),
	}
	if len(sheets) > metadataSheet {
		name := sheets[metadataSheet].name
		if name == "" {
			name = defaultMetadataName
		}
		wb.OriginalSheetData.Metadata = &models.SheetData{
			Name: name,
			Data: rectangular(sheets[metadataSheet].rows),
		}
	}
	return wb, nil
}

// dataWidth is the column count of the packing sheet: the header row is
// cut at the first empty header past the fixed columns. A sheet too short
// to have a header row keeps its own width.
func dataWidth(rows [][]string) int {
	if len(rows) <= grid.HeaderRow {
		if len(rows) == 0 {
			return 0
		}
		return len(rows[0])
	}
	header := rows[grid.HeaderRow]
	if len(header) > grid.FirstBoxColumn && header[grid.FirstBoxColumn] == "0" {
		return grid.FirstBoxColumn
	}
	for c := grid.FirstBoxColumn; c < len(header); c++ {
		if header[c] == "" {
			return c
		}
	}
	return len(header)
}

// rectangular pads every row to the widest one.
func rectangular(rows [][]string) [][]string {
	width := 0
	for _, r := range rows {
		width = max(width, len(r))
	}
	out := make([][]string, len(rows))
	for i, r := range rows {
		out[i] = fit(r, width)
	}
	return out
}

func fit(row []string, width int) []string {
	out := make([]string, width)
	copy(out, row)
	return out
}
