// Package download restores shipments from the remote store into the local
// store.
package download

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	ET "github.com/IBM/fp-go/v2/either"
	"github.com/IBM/fp-go/v2/function"
	IOE "github.com/IBM/fp-go/v2/ioeither"
	"github.com/IBM/fp-go/v2/retry"
	"github.com/schollz/progressbar/v3"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/Qubut/fba-boxes/internal/config"
	"github.com/Qubut/fba-boxes/internal/models"
	"github.com/Qubut/fba-boxes/internal/remote"
)

// ErrPartialDownload means at least one remote shipment could not be stored
// locally. The others were kept.
var ErrPartialDownload = errors.New("download incomplete")

const defaultBackoff = 100 * time.Millisecond

// LocalStore is the write side of the local shipment store.
type LocalStore interface {
	Save(ctx context.Context, sh *models.Shipment, id string) (string, error)
}

type Result struct {
	Success         bool
	DownloadedCount int
	TotalShipments  int
	Errors          []string
	Message         string
	AccountID       string
	Err             error
}

type Status struct {
	HasData       bool
	ShipmentCount int
}

type Downloader struct {
	Cfg               config.Config
	Local             LocalStore
	Remote            remote.Store
	Logger            *zap.SugaredLogger
	Tracer            trace.Tracer
	Meter             metric.Meter
	ShowProgress      bool
	backoff           time.Duration
	progress          *progressbar.ProgressBar
	sessionDuration   metric.Int64Histogram
	shipmentsTotal    metric.Int64Counter
	shipmentsFailed   metric.Int64Counter
	corruptCellsTotal metric.Int64Counter
}

func NewDownloader(
	cfg config.Config,
	local LocalStore,
	rs remote.Store,
	tracer trace.Tracer,
	logger *zap.SugaredLogger,
	meter metric.Meter,
) (*Downloader, error) {
	d := &Downloader{
		Cfg:          cfg,
		Local:        local,
		Remote:       rs,
		Logger:       logger,
		Tracer:       tracer,
		Meter:        meter,
		ShowProgress: cfg.UI.Progress,
		backoff:      defaultBackoff,
	}

	var err error
	d.sessionDuration, err = meter.Int64Histogram(
		"download.session.duration",
		metric.WithDescription("Duration of a download session"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	d.shipmentsTotal, err = meter.Int64Counter(
		"download.shipments.total",
		metric.WithDescription("Shipments restored into local storage"),
	)
	if err != nil {
		return nil, err
	}

	d.shipmentsFailed, err = meter.Int64Counter(
		"download.shipments.failed",
		metric.WithDescription("Shipments that could not be restored"),
	)
	if err != nil {
		return nil, err
	}

	d.corruptCellsTotal, err = meter.Int64Counter(
		"download.cells.corrupt",
		metric.WithDescription("Encoded cells kept as raw text"),
	)
	if err != nil {
		return nil, err
	}

	return d, nil
}

// DownloadAll copies every remote shipment of accountID into local storage.
// A shipment that fails does not stop the others.
func (d *Downloader) DownloadAll(ctx context.Context, accountID string) Result {
	ctx, span := d.Tracer.Start(ctx, "download.session", trace.WithAttributes(
		attribute.String("account", accountID),
	))
	defer span.End()
	start := time.Now()
	res := Result{AccountID: accountID}

	fail := func(err error) Result {
		span.RecordError(err)
		d.sessionDuration.Record(ctx, time.Since(start).Milliseconds(),
			metric.WithAttributes(attribute.String("status", "failed")))
		d.Logger.Errorw("Data download failed", "account", accountID, "error", err)
		res.Err = err
		res.Message = "Data download failed: " + err.Error()
		return res
	}

	acct, err := remote.NewAccount(accountID)
	if err != nil {
		return fail(err)
	}
	docs, err := d.list(ctx, acct)
	if err != nil {
		return fail(err)
	}
	res.TotalShipments = len(docs)
	if len(docs) == 0 {
		d.Logger.Infow("No remote shipments", "account", accountID)
		res.Success = true
		res.Message = "No shipments to download - ready to create new ones!"
		return res
	}

	d.startProgress(len(docs))
	defer d.finishProgress()
	for _, doc := range docs {
		select {
		case <-ctx.Done():
			return fail(ctx.Err())
		default:
		}
		if err := d.restore(ctx, doc); err != nil {
			d.shipmentsFailed.Add(ctx, 1)
			d.Logger.Warnw("Shipment not restored", "shipment", doc.ShipmentID, "error", err)
			res.Errors = append(res.Errors, fmt.Sprintf("%s: %s", doc.ShipmentID, err))
		} else {
			res.DownloadedCount++
			d.shipmentsTotal.Add(ctx, 1)
		}
		if d.progress != nil {
			_ = d.progress.Add(1)
		}
	}

	status := "success"
	if len(res.Errors) > 0 {
		status = "partial"
		res.Err = fmt.Errorf("%w: %d of %d shipments failed", ErrPartialDownload, len(res.Errors), res.TotalShipments)
		res.Message = fmt.Sprintf("Downloaded %d/%d shipments with %d errors",
			res.DownloadedCount, res.TotalShipments, len(res.Errors))
	} else {
		res.Success = true
		res.Message = fmt.Sprintf("Successfully downloaded %d shipments to local storage", res.DownloadedCount)
	}
	d.sessionDuration.Record(ctx, time.Since(start).Milliseconds(),
		metric.WithAttributes(attribute.String("status", status)))
	d.Logger.Infow("Download completed",
		"account", accountID,
		"downloaded", res.DownloadedCount,
		"total", res.TotalShipments,
		"errors", len(res.Errors))
	return res
}

// restore decodes doc and saves it under its own id.
func (d *Downloader) restore(ctx context.Context, doc remote.ShipmentDoc) error {
	sh, rep, err := doc.Shipment()
	if err != nil {
		return err
	}
	if rep.Corrupt > 0 {
		d.corruptCellsTotal.Add(ctx, int64(rep.Corrupt))
		d.Logger.Warnw("Corrupt cells kept as text", "shipment", doc.ShipmentID, "cells", rep.Corrupt)
	}
	_, err = d.Local.Save(ctx, sh, sh.ShipmentID)
	return err
}

// list fetches the account's documents, retrying transient failures.
func (d *Downloader) list(ctx context.Context, acct remote.Account) ([]remote.ShipmentDoc, error) {
	policy := retry.Monoid.Concat(
		retry.LimitRetries(uint(d.Cfg.Remote.MaxRetries)),
		retry.ExponentialBackoff(d.backoff),
	)
	action := func(_ retry.RetryStatus) IOE.IOEither[error, []remote.ShipmentDoc] {
		return IOE.TryCatchError(func() ([]remote.ShipmentDoc, error) {
			cctx, cancel := context.WithTimeout(ctx, d.Cfg.Remote.Timeout)
			defer cancel()
			return d.Remote.ListShipments(cctx, acct)
		})
	}
	return ET.UnwrapError(function.Pipe1(
		IOE.Retrying(policy, action, ET.Fold(
			func(err error) bool {
				d.Logger.Debugw("Listing remote shipments failed", "error", err)
				return ctx.Err() == nil
			},
			function.Constant1[[]remote.ShipmentDoc](false),
		)),
		IOE.TapLeft[[]remote.ShipmentDoc](func(err error) IOE.IOEither[error, []remote.ShipmentDoc] {
			d.Logger.Errorw("Remote listing gave up", "account", acct.ID, "error", err)
			return IOE.Of[error]([]remote.ShipmentDoc(nil))
		}),
	)())
}

// Check reports whether the remote store holds shipments for accountID.
func (d *Downloader) Check(ctx context.Context, accountID string) (Status, error) {
	ctx, span := d.Tracer.Start(ctx, "download.check")
	defer span.End()
	acct, err := remote.NewAccount(accountID)
	if err != nil {
		return Status{}, err
	}
	n, err := d.Remote.CountShipments(ctx, acct)
	if err != nil {
		span.RecordError(err)
		return Status{}, fmt.Errorf("count remote shipments: %w", err)
	}
	return Status{HasData: n > 0, ShipmentCount: n}, nil
}

// Pull restores one remote shipment.
func (d *Downloader) Pull(ctx context.Context, accountID, id string) (*models.Shipment, error) {
	ctx, span := d.Tracer.Start(ctx, "download.pull", trace.WithAttributes(
		attribute.String("shipment.id", id),
	))
	defer span.End()
	acct, err := remote.NewAccount(accountID)
	if err != nil {
		return nil, err
	}
	doc, err := d.Remote.GetShipment(ctx, acct, id)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("fetch %s: %w", id, err)
	}
	sh, rep, err := doc.Shipment()
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", id, err)
	}
	if rep.Corrupt > 0 {
		d.corruptCellsTotal.Add(ctx, int64(rep.Corrupt))
	}
	if _, err := d.Local.Save(ctx, sh, sh.ShipmentID); err != nil {
		return nil, err
	}
	d.shipmentsTotal.Add(ctx, 1)
	return sh, nil
}

func (d *Downloader) startProgress(n int) {
	if !d.ShowProgress {
		return
	}
	d.progress = progressbar.NewOptions(n,
		progressbar.OptionSetWriter(os.Stdout),
		progressbar.OptionSetWidth(60),
		progressbar.OptionSetDescription("Restoring shipments..."),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionSetElapsedTime(true),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionThrottle(50*time.Millisecond),
		progressbar.OptionSetRenderBlankState(true),
		progressbar.OptionUseANSICodes(true),
	)
}

func (d *Downloader) finishProgress() {
	if d.progress != nil {
		d.progress.Describe("Restore complete")
		_ = d.progress.Finish()
		d.progress = nil
	}
}
