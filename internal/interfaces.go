package internal

import (
	"context"
	"io"

	"github.com/IBM/fp-go/v2/ioeither"

	"github.com/Qubut/fba-boxes/internal/download"
	"github.com/Qubut/fba-boxes/internal/importer"
	"github.com/Qubut/fba-boxes/internal/migrate"
	"github.com/Qubut/fba-boxes/internal/models"
)

type StoreInterface interface {
	Save(ctx context.Context, sh *models.Shipment, id string) (string, error)
	Get(ctx context.Context, id string) (*models.Shipment, error)
	List(ctx context.Context) ([]models.IndexEntry, error)
	ListAll(ctx context.Context) ([]*models.Shipment, error)
	Delete(ctx context.Context, id string) error
	Counts(ctx context.Context) (primary, fallback int, err error)
	Rename(ctx context.Context, id, name string) (*models.Shipment, error)
	Update(ctx context.Context, id string, fn func(*models.Shipment) error) (*models.Shipment, error)
	Close() error
}

type ImporterInterface interface {
	ImportFile(ctx context.Context, path, name string) ioeither.IOEither[error, importer.Imported]
	ImportAll(ctx context.Context, dir string) ioeither.IOEither[error, importer.Report]
}

type ExporterInterface interface {
	ExportFull(ctx context.Context, sh *models.Shipment, w io.Writer) error
	ExportSummary(ctx context.Context, sh *models.Shipment, w io.Writer) error
	WriteFull(ctx context.Context, sh *models.Shipment, dir string) (string, error)
	WriteSummary(ctx context.Context, sh *models.Shipment, dir string) (string, error)
}

type MigratorInterface interface {
	Migrate(ctx context.Context, accountID string) migrate.Result
	Verify(ctx context.Context, accountID string) migrate.Verification
	Push(ctx context.Context, accountID, id string) error
}

type DownloaderInterface interface {
	DownloadAll(ctx context.Context, accountID string) download.Result
	Check(ctx context.Context, accountID string) (download.Status, error)
	Pull(ctx context.Context, accountID, id string) (*models.Shipment, error)
}
