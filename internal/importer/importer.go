// Package importer loads box-content workbooks from disk into the local
// store.
package importer

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	ET "github.com/IBM/fp-go/v2/either"
	"github.com/IBM/fp-go/v2/function"
	IOE "github.com/IBM/fp-go/v2/ioeither"
	"github.com/schollz/progressbar/v3"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/Qubut/fba-boxes/internal/config"
	"github.com/Qubut/fba-boxes/internal/models"
	"github.com/Qubut/fba-boxes/internal/parse"
	"github.com/Qubut/fba-boxes/internal/storage"
)

// WorkbookParser is the part of the parser the importer needs.
type WorkbookParser interface {
	ParseFile(ctx context.Context, path string) IOE.IOEither[error, *models.ParsedWorkbook]
}

// Imported describes one stored workbook.
type Imported struct {
	Path         string
	ShipmentID   string
	ShipmentName string
	Rows         int
}

// Failure is a workbook that could not be imported.
type Failure struct {
	Path string
	Err  error
}

type Report struct {
	Imported []Imported
	Failed   []Failure
}

type Importer struct {
	Cfg             config.Config
	Parser          WorkbookParser
	Store           *storage.Store
	Logger          *zap.SugaredLogger
	Tracer          trace.Tracer
	Meter           metric.Meter
	ShowProgress    bool
	progress        *progressbar.ProgressBar
	imported        *atomic.Int64
	sessionDuration metric.Int64Histogram
	filesTotal      metric.Int64Counter
	filesFailed     metric.Int64Counter
	fileDuration    metric.Int64Histogram
}

func NewImporter(
	cfg config.Config,
	parser WorkbookParser,
	store *storage.Store,
	tracer trace.Tracer,
	logger *zap.SugaredLogger,
	meter metric.Meter,
) (*Importer, error) {
	i := &Importer{
		Cfg:          cfg,
		Parser:       parser,
		Store:        store,
		Logger:       logger,
		Tracer:       tracer,
		Meter:        meter,
		ShowProgress: cfg.UI.Progress,
		imported:     &atomic.Int64{},
	}

	var err error
	i.sessionDuration, err = meter.Int64Histogram(
		"import.session.duration",
		metric.WithDescription("Duration of a directory import"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	i.filesTotal, err = meter.Int64Counter(
		"import.workbooks.total",
		metric.WithDescription("Workbooks found for import"),
	)
	if err != nil {
		return nil, err
	}

	i.filesFailed, err = meter.Int64Counter(
		"import.workbooks.failed",
		metric.WithDescription("Workbooks that could not be imported"),
	)
	if err != nil {
		return nil, err
	}

	i.fileDuration, err = meter.Int64Histogram(
		"import.workbook.duration",
		metric.WithDescription("Duration of importing a single workbook"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	return i, nil
}

// ImportFile parses path and saves it as a new shipment. An empty name
// names the shipment after its identifier.
func (i *Importer) ImportFile(ctx context.Context, path, name string) IOE.IOEither[error, Imported] {
	ctx, span := i.Tracer.Start(ctx, "import.workbook", trace.WithAttributes(
		attribute.String("path", path),
	))
	defer span.End()
	start := time.Now()

	return function.Pipe2(
		i.parseOne(ctx, path),
		IOE.Chain(func(wb *models.ParsedWorkbook) IOE.IOEither[error, Imported] {
			return i.save(ctx, path, name, wb)
		}),
		IOE.TapLeft[Imported](func(err error) IOE.IOEither[error, Imported] {
			span.RecordError(err)
			i.filesFailed.Add(ctx, 1)
			i.fileDuration.Record(ctx, time.Since(start).Milliseconds(),
				metric.WithAttributes(attribute.String("status", "failed")))
			return IOE.Of[error](Imported{})
		}),
	)
}

func (i *Importer) save(ctx context.Context, path, name string, wb *models.ParsedWorkbook) IOE.IOEither[error, Imported] {
	start := time.Now()
	return IOE.TryCatchError(func() (Imported, error) {
		select {
		case <-ctx.Done():
			return Imported{}, ctx.Err()
		default:
		}
		id := storage.NewShipmentID()
		if name == "" {
			name = id
		}
		sh := &models.Shipment{
			ShipmentID:        id,
			ShipmentName:      name,
			MainJSON:          wb.MainJSON,
			OriginalSheetData: wb.OriginalSheetData,
		}
		if _, err := sh.Sheet(); err != nil {
			// Workbooks without a box row are still kept; box commands will
			// refuse them.
			i.Logger.Warnw("Workbook has no box layout", "path", path, "error", err)
		}
		if _, err := i.Store.Save(ctx, sh, id); err != nil {
			return Imported{}, fmt.Errorf("save %s: %w", filepath.Base(path), err)
		}
		i.imported.Add(1)
		i.fileDuration.Record(ctx, time.Since(start).Milliseconds(),
			metric.WithAttributes(attribute.String("status", "success")))
		i.Logger.Infow("Workbook imported", "path", path, "shipment", id, "rows", len(wb.MainJSON))
		return Imported{Path: path, ShipmentID: id, ShipmentName: name, Rows: len(wb.MainJSON)}, nil
	})
}

type parsed struct {
	path string
	wb   *models.ParsedWorkbook
	err  error
}

// ImportAll imports every workbook under dir. Workbooks are parsed
// concurrently and saved one at a time in path order. A workbook that fails
// is reported and does not stop the others.
func (i *Importer) ImportAll(ctx context.Context, dir string) IOE.IOEither[error, Report] {
	ctx, span := i.Tracer.Start(ctx, "import.session", trace.WithAttributes(
		attribute.String("directory", dir),
		attribute.Int("workers", i.Cfg.Import.Workers),
	))
	defer span.End()
	start := time.Now()
	i.Logger.Infow("Starting import", "dir", dir, "workers", i.Cfg.Import.Workers)

	select {
	case <-ctx.Done():
		i.Logger.Warn("Import session cancelled")
		return IOE.Left[Report](ctx.Err())
	default:
	}

	return function.Pipe3(
		IOE.TryCatchError(func() ([]string, error) { return findWorkbooks(ctx, dir) }),
		IOE.Chain(func(paths []string) IOE.IOEither[error, []parsed] {
			i.filesTotal.Add(ctx, int64(len(paths)))
			span.AddEvent("workbooks_found", trace.WithAttributes(attribute.Int("count", len(paths))))
			if len(paths) == 0 {
				i.Logger.Infow("No workbooks found", "dir", dir)
				return IOE.Right[error]([]parsed{})
			}
			return IOE.TryCatchError(func() ([]parsed, error) { return i.parseWithProgress(ctx, paths) })
		}),
		IOE.Chain(func(results []parsed) IOE.IOEither[error, Report] {
			return IOE.TryCatchError(func() (Report, error) { return i.saveAll(ctx, results) })
		}),
		IOE.Tap(func(rep Report) IOE.IOEither[error, Report] {
			status := "success"
			switch {
			case len(rep.Imported) == 0 && len(rep.Failed) == 0:
				status = "empty"
			case len(rep.Failed) > 0:
				status = "partial"
			}
			i.sessionDuration.Record(ctx, time.Since(start).Milliseconds(),
				metric.WithAttributes(attribute.String("status", status)))
			i.Logger.Infow("Import completed",
				"imported", len(rep.Imported),
				"failed", len(rep.Failed))
			return IOE.Of[error](rep)
		}),
	)
}

// parseWithProgress closes the bar whether or not parsing succeeds.
func (i *Importer) parseWithProgress(ctx context.Context, paths []string) ([]parsed, error) {
	i.startProgress(len(paths))
	defer i.finishProgress()
	return i.parseAll(ctx, paths)
}

func (i *Importer) parseAll(ctx context.Context, paths []string) ([]parsed, error) {
	workers := int64(max(i.Cfg.Import.Workers, 1))
	sem := semaphore.NewWeighted(workers)
	results := make([]parsed, len(paths))
	var wg sync.WaitGroup

	for n, path := range paths {
		if err := sem.Acquire(ctx, 1); err != nil {
			wg.Wait()
			return nil, err
		}
		wg.Add(1)
		go func(n int, path string) {
			defer wg.Done()
			defer sem.Release(1)
			res := i.parseOne(ctx, path)()
			wb, err := ET.UnwrapError(res)
			results[n] = parsed{path: path, wb: wb, err: err}
			if i.progress != nil {
				_ = i.progress.Add(1)
			}
		}(n, path)
	}
	wg.Wait()
	return results, ctx.Err()
}

func (i *Importer) parseOne(ctx context.Context, path string) IOE.IOEither[error, *models.ParsedWorkbook] {
	return function.Pipe1(
		IOE.TryCatchError(func() (os.FileInfo, error) { return os.Stat(path) }),
		IOE.Chain(func(fi os.FileInfo) IOE.IOEither[error, *models.ParsedWorkbook] {
			if err := parse.ValidateUpload(path, fi.Size(), i.Cfg.Import.MaxFileSize); err != nil {
				return IOE.Left[*models.ParsedWorkbook](err)
			}
			return i.Parser.ParseFile(ctx, path)
		}),
	)
}

func (i *Importer) saveAll(ctx context.Context, results []parsed) (Report, error) {
	var rep Report
	for _, r := range results {
		if r.err != nil {
			i.filesFailed.Add(ctx, 1)
			i.Logger.Warnw("Workbook skipped", "path", r.path, "error", r.err)
			rep.Failed = append(rep.Failed, Failure{Path: r.path, Err: r.err})
			continue
		}
		imported, err := ET.UnwrapError(i.save(ctx, r.path, "", r.wb)())
		if err != nil {
			if ctx.Err() != nil {
				return rep, ctx.Err()
			}
			i.filesFailed.Add(ctx, 1)
			rep.Failed = append(rep.Failed, Failure{Path: r.path, Err: err})
			continue
		}
		rep.Imported = append(rep.Imported, imported)
	}
	return rep, nil
}

func (i *Importer) startProgress(n int) {
	if !i.ShowProgress {
		return
	}
	i.progress = progressbar.NewOptions(n,
		progressbar.OptionSetWriter(os.Stdout),
		progressbar.OptionSetWidth(60),
		progressbar.OptionSetDescription(fmt.Sprintf("Parsing %d workbooks...", n)),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionSetElapsedTime(true),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionThrottle(50*time.Millisecond),
		progressbar.OptionSetRenderBlankState(true),
		progressbar.OptionUseANSICodes(true),
	)
}

func (i *Importer) finishProgress() {
	if i.progress != nil {
		i.progress.Describe("Import complete")
		_ = i.progress.Finish()
		i.progress = nil
	}
}

func isWorkbook(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".xlsx", ".xls":
		return !strings.HasPrefix(filepath.Base(name), "~$")
	}
	return false
}

func findWorkbooks(ctx context.Context, dir string) ([]string, error) {
	var out []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			return err
		}
		if !d.IsDir() && isWorkbook(d.Name()) {
			out = append(out, path)
		}
		return nil
	})
	sort.Strings(out)
	return out, err
}
