package internal

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/Qubut/fba-boxes/internal/config"
	"github.com/Qubut/fba-boxes/internal/download"
	"github.com/Qubut/fba-boxes/internal/export"
	"github.com/Qubut/fba-boxes/internal/importer"
	"github.com/Qubut/fba-boxes/internal/migrate"
	"github.com/Qubut/fba-boxes/internal/parse"
	"github.com/Qubut/fba-boxes/internal/remote"
	"github.com/Qubut/fba-boxes/internal/storage"
)

// ErrRemoteDisabled is returned by the remote accessors when no remote
// backend is configured.
var ErrRemoteDisabled = errors.New("remote sync is disabled (set remote.backend)")

type Services struct {
	Store    StoreInterface
	Importer ImporterInterface
	Exporter ExporterInterface

	migrator   MigratorInterface
	downloader DownloaderInterface
	remote     remote.Store
}

func (s *Services) Migrator() (MigratorInterface, error) {
	if s.migrator == nil {
		return nil, ErrRemoteDisabled
	}
	return s.migrator, nil
}

func (s *Services) Downloader() (DownloaderInterface, error) {
	if s.downloader == nil {
		return nil, ErrRemoteDisabled
	}
	return s.downloader, nil
}

// Close releases the local and remote stores.
func (s *Services) Close() error {
	var errs []error
	if s.remote != nil {
		errs = append(errs, s.remote.Close())
	}
	if s.Store != nil {
		errs = append(errs, s.Store.Close())
	}
	return errors.Join(errs...)
}

func InitServices(
	ctx context.Context,
	cfg config.Config,
	tracer trace.Tracer,
	logger *zap.SugaredLogger,
	meter metric.Meter,
) (*Services, error) {
	store, err := storage.Open(ctx, cfg, tracer, logger, meter)
	if err != nil {
		return nil, err
	}
	svc := &Services{Store: store}

	p, err := parse.NewParser(cfg, tracer, logger, meter)
	if err != nil {
		return nil, errors.Join(err, svc.Close())
	}
	if svc.Importer, err = importer.NewImporter(cfg, p, store, tracer, logger, meter); err != nil {
		return nil, errors.Join(err, svc.Close())
	}
	if svc.Exporter, err = export.NewExporter(cfg, tracer, logger, meter); err != nil {
		return nil, errors.Join(err, svc.Close())
	}

	rs, err := remote.Open(ctx, cfg, logger)
	switch {
	case errors.Is(err, remote.ErrDisabled):
		logger.Debugw("Remote sync disabled", "backend", cfg.Remote.Backend)
		return svc, nil
	case err != nil:
		return nil, errors.Join(err, svc.Close())
	}
	svc.remote = rs
	if svc.migrator, err = migrate.NewMigrator(cfg, store, rs, tracer, logger, meter); err != nil {
		return nil, errors.Join(err, svc.Close())
	}
	if svc.downloader, err = download.NewDownloader(cfg, store, rs, tracer, logger, meter); err != nil {
		return nil, errors.Join(err, svc.Close())
	}
	return svc, nil
}
