// Package migrate uploads the local shipment store to the remote store.
package migrate

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

// ErrPartialMigration means some batches were committed before a later one
// failed. Committed batches are not rolled back.
var ErrPartialMigration = errors.New("migration incomplete")

const defaultBackoff = 100 * time.Millisecond

// LocalStore is the read side of the local shipment store.
type LocalStore interface {
	ListAll(ctx context.Context) ([]*models.Shipment, error)
	Get(ctx context.Context, id string) (*models.Shipment, error)
	Counts(ctx context.Context) (primary, fallback int, err error)
}

type Result struct {
	Success       bool
	MigratedCount int
	Message       string
	AccountID     string
	Err           error
}

type Verification struct {
	LocalCount  int
	RemoteCount int
	IsValid     bool
	Message     string
	AccountID   string
	Err         error
}

type Migrator struct {
	Cfg             config.Config
	Local           LocalStore
	Remote          remote.Store
	Logger          *zap.SugaredLogger
	Tracer          trace.Tracer
	Meter           metric.Meter
	ShowProgress    bool
	backoff         time.Duration
	progress        *progressbar.ProgressBar
	sessionDuration metric.Int64Histogram
	shipmentsTotal  metric.Int64Counter
	batchesTotal    metric.Int64Counter
	batchesFailed   metric.Int64Counter
}

func NewMigrator(
	cfg config.Config,
	local LocalStore,
	rs remote.Store,
	tracer trace.Tracer,
	logger *zap.SugaredLogger,
	meter metric.Meter,
) (*Migrator, error) {
	m := &Migrator{
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
	m.sessionDuration, err = meter.Int64Histogram(
		"migrate.session.duration",
		metric.WithDescription("Duration of a migration session"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	m.shipmentsTotal, err = meter.Int64Counter(
		"migrate.shipments.total",
		metric.WithDescription("Shipments committed to the remote store"),
	)
	if err != nil {
		return nil, err
	}

	m.batchesTotal, err = meter.Int64Counter(
		"migrate.batches.total",
		metric.WithDescription("Batch commits attempted"),
	)
	if err != nil {
		return nil, err
	}

	m.batchesFailed, err = meter.Int64Counter(
		"migrate.batches.failed",
		metric.WithDescription("Batches that failed after retries"),
	)
	if err != nil {
		return nil, err
	}

	return m, nil
}

func (m *Migrator) batchSize() int {
	n := m.Cfg.Remote.BatchSize
	if n <= 0 || n > remote.MaxBatchSize {
		return remote.MaxBatchSize
	}
	return n
}

// Migrate uploads every local shipment for accountID in batches, then
// records the migration on the account profile.
func (m *Migrator) Migrate(ctx context.Context, accountID string) Result {
	ctx, span := m.Tracer.Start(ctx, "migrate.session", trace.WithAttributes(
		attribute.String("account", accountID),
		attribute.Int("batch_size", m.batchSize()),
	))
	defer span.End()
	start := time.Now()
	res := Result{AccountID: accountID}

	fail := func(err error) Result {
		span.RecordError(err)
		m.sessionDuration.Record(ctx, time.Since(start).Milliseconds(),
			metric.WithAttributes(attribute.String("status", "failed")))
		m.Logger.Errorw("Migration failed", "account", accountID, "migrated", res.MigratedCount, "error", err)
		res.Err = err
		res.Message = "Migration failed: " + err.Error()
		return res
	}

	acct, err := remote.NewAccount(accountID)
	if err != nil {
		return fail(err)
	}
	all, err := m.Local.ListAll(ctx)
	if err != nil {
		return fail(fmt.Errorf("read local shipments: %w", err))
	}
	if len(all) == 0 {
		m.Logger.Infow("No data to migrate", "account", accountID)
		res.Success = true
		res.Message = "No data to migrate"
		return res
	}

	docs := make([]remote.ShipmentDoc, len(all))
	for i, sh := range all {
		docs[i] = remote.NewShipmentDoc(acct, sh)
	}
	batches := chunk(docs, m.batchSize())
	m.Logger.Infow("Uploading shipments",
		"account", accountID,
		"shipments", len(docs),
		"batches", len(batches))
	m.startProgress(len(docs))
	defer m.finishProgress()

	for i, batch := range batches {
		select {
		case <-ctx.Done():
			return fail(m.partial(res.MigratedCount, ctx.Err()))
		default:
		}
		if _, err := m.commit(ctx, acct, batch); err != nil {
			m.batchesFailed.Add(ctx, 1)
			return fail(m.partial(res.MigratedCount, fmt.Errorf("batch %d/%d: %w", i+1, len(batches), err)))
		}
		res.MigratedCount += len(batch)
		m.shipmentsTotal.Add(ctx, int64(len(batch)))
		if m.progress != nil {
			_ = m.progress.Add(len(batch))
		}
		m.Logger.Infow("Batch uploaded", "batch", i+1, "of", len(batches), "account", accountID)
	}

	profile := remote.Profile{
		Email:              acct.ID,
		AccountID:          acct.ID,
		SanitizedAccountID: acct.Sanitized,
		ShipmentCount:      len(docs),
	}
	if err := m.Remote.WriteProfile(ctx, acct, profile); err != nil {
		return fail(fmt.Errorf("write profile: %w", err))
	}

	m.sessionDuration.Record(ctx, time.Since(start).Milliseconds(),
		metric.WithAttributes(attribute.String("status", "success")))
	res.Success = true
	res.Message = fmt.Sprintf("Successfully migrated %d shipments for %s", res.MigratedCount, accountID)
	m.Logger.Infow("Migration completed", "account", accountID, "migrated", res.MigratedCount)
	return res
}

func (m *Migrator) partial(committed int, err error) error {
	if committed == 0 {
		return err
	}
	return fmt.Errorf("%w after %d shipments: %w", ErrPartialMigration, committed, err)
}

// commit writes one batch, retrying per the configured policy.
func (m *Migrator) commit(ctx context.Context, acct remote.Account, batch []remote.ShipmentDoc) (int, error) {
	ctx, span := m.Tracer.Start(ctx, "migrate.batch", trace.WithAttributes(
		attribute.Int("batch.size", len(batch)),
	))
	defer span.End()

	policy := retry.Monoid.Concat(
		retry.LimitRetries(uint(m.Cfg.Remote.MaxRetries)),
		retry.ExponentialBackoff(m.backoff),
	)
	action := func(_ retry.RetryStatus) IOE.IOEither[error, int] {
		select {
		case <-ctx.Done():
			return IOE.Left[int](ctx.Err())
		default:
		}
		return IOE.TryCatchError(func() (int, error) {
			m.batchesTotal.Add(ctx, 1)
			cctx, cancel := context.WithTimeout(ctx, m.Cfg.Remote.Timeout)
			defer cancel()
			if err := m.Remote.WriteShipments(cctx, acct, batch); err != nil {
				m.Logger.Warnw("Batch commit failed", "size", len(batch), "error", err)
				return 0, err
			}
			return len(batch), nil
		})
	}
	return ET.UnwrapError(function.Pipe1(
		IOE.Retrying(policy, action, ET.Fold(
			func(err error) bool { return ctx.Err() == nil },
			function.Constant1[int](false),
		)),
		IOE.TapLeft[int](func(err error) IOE.IOEither[error, int] {
			span.RecordError(err)
			return IOE.Of[error](0)
		}),
	)())
}

// Verify compares the local shipment count with the remote one.
func (m *Migrator) Verify(ctx context.Context, accountID string) Verification {
	ctx, span := m.Tracer.Start(ctx, "migrate.verify", trace.WithAttributes(
		attribute.String("account", accountID),
	))
	defer span.End()

	v := Verification{AccountID: accountID}
	fail := func(err error) Verification {
		span.RecordError(err)
		v.Err = err
		v.Message = "Verification failed: " + err.Error()
		return v
	}

	acct, err := remote.NewAccount(accountID)
	if err != nil {
		return fail(err)
	}
	primary, fallback, err := m.Local.Counts(ctx)
	if err != nil {
		return fail(fmt.Errorf("count local shipments: %w", err))
	}
	v.LocalCount = max(primary, fallback)
	if v.RemoteCount, err = m.Remote.CountShipments(ctx, acct); err != nil {
		return fail(fmt.Errorf("count remote shipments: %w", err))
	}
	v.IsValid = v.LocalCount == v.RemoteCount
	if v.IsValid {
		v.Message = "Migration verification successful"
	} else {
		v.Message = "Count mismatch detected"
	}
	m.Logger.Infow("Migration verified",
		"account", accountID,
		"local", v.LocalCount,
		"remote", v.RemoteCount,
		"valid", v.IsValid)
	return v
}

// Push uploads a single local shipment.
func (m *Migrator) Push(ctx context.Context, accountID, id string) error {
	ctx, span := m.Tracer.Start(ctx, "migrate.push", trace.WithAttributes(
		attribute.String("account", accountID),
		attribute.String("shipment.id", id),
	))
	defer span.End()

	acct, err := remote.NewAccount(accountID)
	if err != nil {
		return err
	}
	sh, err := m.Local.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("read %s: %w", id, err)
	}
	if _, err := m.commit(ctx, acct, []remote.ShipmentDoc{remote.NewShipmentDoc(acct, sh)}); err != nil {
		span.RecordError(err)
		return fmt.Errorf("push %s: %w", sh.ShipmentID, err)
	}
	m.shipmentsTotal.Add(ctx, 1)
	m.Logger.Infow("Shipment pushed", "account", accountID, "shipment", sh.ShipmentID)
	return nil
}

func chunk[T any](items []T, size int) [][]T {
	var out [][]T
	for size < len(items) {
		out = append(out, items[:size:size])
		items = items[size:]
	}
	if len(items) > 0 {
		out = append(out, items)
	}
	return out
}

func (m *Migrator) startProgress(n int) {
	if !m.ShowProgress {
		return
	}
	m.progress = progressbar.NewOptions(n,
		progressbar.OptionSetWriter(os.Stdout),
		progressbar.OptionSetWidth(60),
		progressbar.OptionSetDescription("Uploading shipments..."),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionSetElapsedTime(true),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionThrottle(50*time.Millisecond),
		progressbar.OptionSetRenderBlankState(true),
		progressbar.OptionUseANSICodes(true),
	)
}

func (m *Migrator) finishProgress() {
	if m.progress != nil {
		m.progress.Describe("Upload complete")
		_ = m.progress.Finish()
		m.progress = nil
	}
}
