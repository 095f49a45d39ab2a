package internal

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/Qubut/fba-boxes/internal/config"
	"github.com/Qubut/fba-boxes/internal/grid"
	"github.com/Qubut/fba-boxes/internal/models"
)

func initTestServices(t *testing.T, backend string) *Services {
	t.Helper()
	cfg := config.Defaults()
	cfg.Storage.Dir = t.TempDir()
	cfg.Remote.Backend = backend
	cfg.UI.Progress = false
	svc, err := InitServices(context.Background(), cfg,
		tracenoop.NewTracerProvider().Tracer("test"),
		zap.NewNop().Sugar(),
		metricnoop.NewMeterProvider().Meter("test"),
	)
	require.NoError(t, err)
	t.Cleanup(func() { svc.Close() })
	return svc
}

func TestInitServicesWithoutRemote(t *testing.T) {
	svc := initTestServices(t, "none")
	assert.NotNil(t, svc.Store)
	assert.NotNil(t, svc.Importer)
	assert.NotNil(t, svc.Exporter)

	_, err := svc.Migrator()
	assert.ErrorIs(t, err, ErrRemoteDisabled)
	_, err = svc.Downloader()
	assert.ErrorIs(t, err, ErrRemoteDisabled)
}

func TestRoundTripThroughMemoryRemote(t *testing.T) {
	svc := initTestServices(t, "memory")
	ctx := context.Background()

	sh := &models.Shipment{
		ShipmentName: "Spring restock",
		MainJSON:     grid.FromStrings([][]string{{"Shipment ID", "FBA15XYZ"}, {"Name", "Spring restock"}}),
	}
	id, err := svc.Store.Save(ctx, sh, "")
	require.NoError(t, err)

	m, err := svc.Migrator()
	require.NoError(t, err)
	res := m.Migrate(ctx, "seller@example.com")
	require.NoError(t, res.Err)
	assert.Equal(t, 1, res.MigratedCount)

	require.NoError(t, svc.Store.Delete(ctx, id))

	d, err := svc.Downloader()
	require.NoError(t, err)
	dl := d.DownloadAll(ctx, "seller@example.com")
	require.NoError(t, dl.Err)
	assert.Equal(t, 1, dl.DownloadedCount)

	got, err := svc.Store.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Spring restock", got.ShipmentName)
	assert.Equal(t, sh.CreatedDate, got.CreatedDate)
}
