package download

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/Qubut/fba-boxes/internal/config"
	"github.com/Qubut/fba-boxes/internal/grid"
	"github.com/Qubut/fba-boxes/internal/models"
	"github.com/Qubut/fba-boxes/internal/remote"
	"github.com/Qubut/fba-boxes/internal/storage"
)

const account = "seller@example.com"

var errDisk = errors.New("disk full")

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// rejectingStore refuses to save the listed ids.
type rejectingStore struct {
	LocalStore
	reject map[string]bool
}

func (r rejectingStore) Save(ctx context.Context, sh *models.Shipment, id string) (string, error) {
	if r.reject[id] {
		return "", errDisk
	}
	return r.LocalStore.Save(ctx, sh, id)
}

// flakyRemote fails the first n listings.
type flakyRemote struct {
	*remote.MemoryStore
	failures int
}

func (f *flakyRemote) ListShipments(ctx context.Context, acct remote.Account) ([]remote.ShipmentDoc, error) {
	if f.failures > 0 {
		f.failures--
		return nil, errors.New("deadline exceeded")
	}
	return f.MemoryStore.ListShipments(ctx, acct)
}

func newLocal(t *testing.T) *storage.Store {
	t.Helper()
	s, err := storage.NewStore(nil, storage.NewFlatEngine(storage.NewMemoryKV()),
		tracenoop.NewTracerProvider().Tracer("test"),
		zap.NewNop().Sugar(),
		metricnoop.NewMeterProvider().Meter("test"),
	)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func seedRemote(t *testing.T, n int) *remote.MemoryStore {
	t.Helper()
	rs := remote.NewMemoryStore()
	acct, err := remote.NewAccount(account)
	require.NoError(t, err)
	for i := 0; i < n; i++ {
		sh := &models.Shipment{
			ShipmentID:       fmt.Sprintf("FBA-%06d", i),
			ShipmentName:     fmt.Sprintf("Shipment %d", i),
			CreatedDate:      "2024-01-01T00:00:00.000Z",
			LastModifiedDate: "2024-01-02T00:00:00.000Z",
			MainJSON: grid.FromStrings([][]string{
				{"Shipment ID", "FBA15XYZ"},
				{"Name", "Spring restock"},
			}),
			OriginalSheetData: models.OriginalSheetData{
				Instruction: &models.SheetData{Name: "Instructions", Data: [][]string{{"Read me"}}},
			},
		}
		rs.Put(acct, remote.NewShipmentDoc(acct, sh))
	}
	return rs
}

func newTestDownloader(t *testing.T, local LocalStore, rs remote.Store) *Downloader {
	t.Helper()
	cfg := config.Defaults()
	cfg.UI.Progress = false
	d, err := NewDownloader(cfg, local, rs,
		tracenoop.NewTracerProvider().Tracer("test"),
		zap.NewNop().Sugar(),
		metricnoop.NewMeterProvider().Meter("test"),
	)
	require.NoError(t, err)
	d.backoff = time.Millisecond
	return d
}

func TestDownloadAll(t *testing.T) {
	local := newLocal(t)
	d := newTestDownloader(t, local, seedRemote(t, 3))
	ctx := context.Background()

	res := d.DownloadAll(ctx, account)
	require.NoError(t, res.Err)
	assert.True(t, res.Success)
	assert.Equal(t, 3, res.DownloadedCount)
	assert.Equal(t, 3, res.TotalShipments)
	assert.Empty(t, res.Errors)
	assert.Equal(t, "Successfully downloaded 3 shipments to local storage", res.Message)

	got, err := local.Get(ctx, "FBA-000001")
	require.NoError(t, err)
	assert.Equal(t, "Shipment 1", got.ShipmentName)
	assert.Equal(t, "2024-01-01T00:00:00.000Z", got.CreatedDate)
	assert.Equal(t, [][]string{{"Shipment ID", "FBA15XYZ"}, {"Name", "Spring restock"}}, got.MainJSON.Strings())
	require.NotNil(t, got.OriginalSheetData.Instruction)
	assert.Equal(t, [][]string{{"Read me"}}, got.OriginalSheetData.Instruction.Data)
}

func TestDownloadAllCollectsErrors(t *testing.T) {
	local := rejectingStore{LocalStore: newLocal(t), reject: map[string]bool{"FBA-000002": true}}
	d := newTestDownloader(t, local, seedRemote(t, 4))

	res := d.DownloadAll(context.Background(), account)
	assert.False(t, res.Success)
	assert.ErrorIs(t, res.Err, ErrPartialDownload)
	assert.Equal(t, 3, res.DownloadedCount)
	assert.Equal(t, []string{"FBA-000002: disk full"}, res.Errors)
	assert.Equal(t, "Downloaded 3/4 shipments with 1 errors", res.Message)
}

func TestDownloadAllSkipsUndecodableDocument(t *testing.T) {
	local := newLocal(t)
	rs := seedRemote(t, 2)
	acct, err := remote.NewAccount(account)
	require.NoError(t, err)
	rs.PutRaw(acct, "FBA-LEGACY", map[string]any{
		"shipmentName": "Legacy",
		"mainJson":     "[[\"Shipment ID\"]]",
		"createdDate":  "last spring",
	})
	d := newTestDownloader(t, local, rs)

	res := d.DownloadAll(context.Background(), account)
	assert.False(t, res.Success)
	assert.ErrorIs(t, res.Err, ErrPartialDownload)
	assert.Equal(t, 3, res.TotalShipments)
	assert.Equal(t, 2, res.DownloadedCount)
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0], "FBA-LEGACY: ")

	_, err = local.Get(context.Background(), "FBA-000001")
	assert.NoError(t, err)
	_, err = local.Get(context.Background(), "FBA-LEGACY")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestDownloadAllEmptyRemote(t *testing.T) {
	local := newLocal(t)
	ctx := context.Background()
	_, err := local.Save(ctx, &models.Shipment{
		ShipmentID:   "FBA-LOCAL",
		ShipmentName: "Draft",
		MainJSON:     grid.FromStrings([][]string{{"Shipment ID", "FBA-LOCAL"}}),
	}, "FBA-LOCAL")
	require.NoError(t, err)
	before, err := local.Get(ctx, "FBA-LOCAL")
	require.NoError(t, err)

	d := newTestDownloader(t, local, remote.NewMemoryStore())
	res := d.DownloadAll(ctx, account)
	assert.True(t, res.Success)
	assert.Zero(t, res.TotalShipments)
	assert.Zero(t, res.DownloadedCount)
	assert.Equal(t, "No shipments to download - ready to create new ones!", res.Message)

	after, err := local.Get(ctx, "FBA-LOCAL")
	require.NoError(t, err)
	assert.Equal(t, before.LastModifiedDate, after.LastModifiedDate)
	index, err := local.List(ctx)
	require.NoError(t, err)
	require.Len(t, index, 1)
	assert.Equal(t, before.LastModifiedDate, index[0].LastModifiedDate)
}

func TestDownloadAllRetriesListing(t *testing.T) {
	rs := &flakyRemote{MemoryStore: seedRemote(t, 2), failures: 2}
	d := newTestDownloader(t, newLocal(t), rs)

	res := d.DownloadAll(context.Background(), account)
	require.NoError(t, res.Err)
	assert.Equal(t, 2, res.DownloadedCount)
}

func TestDownloadAllListingGivesUp(t *testing.T) {
	rs := &flakyRemote{MemoryStore: seedRemote(t, 2), failures: 100}
	d := newTestDownloader(t, newLocal(t), rs)
	d.Cfg.Remote.MaxRetries = 1

	res := d.DownloadAll(context.Background(), account)
	assert.False(t, res.Success)
	assert.Error(t, res.Err)
	assert.Contains(t, res.Message, "Data download failed: ")
}

func TestDownloadAllRequiresAccount(t *testing.T) {
	d := newTestDownloader(t, newLocal(t), remote.NewMemoryStore())
	res := d.DownloadAll(context.Background(), "")
	assert.ErrorIs(t, res.Err, remote.ErrNoAccount)
}

func TestCheck(t *testing.T) {
	d := newTestDownloader(t, newLocal(t), seedRemote(t, 2))
	st, err := d.Check(context.Background(), account)
	require.NoError(t, err)
	assert.Equal(t, Status{HasData: true, ShipmentCount: 2}, st)

	d = newTestDownloader(t, newLocal(t), remote.NewMemoryStore())
	st, err = d.Check(context.Background(), account)
	require.NoError(t, err)
	assert.False(t, st.HasData)
}

func TestPull(t *testing.T) {
	local := newLocal(t)
	d := newTestDownloader(t, local, seedRemote(t, 2))
	ctx := context.Background()

	sh, err := d.Pull(ctx, account, "FBA-000000")
	require.NoError(t, err)
	assert.Equal(t, "Shipment 0", sh.ShipmentName)

	_, err = local.Get(ctx, "FBA-000000")
	require.NoError(t, err)

	_, err = d.Pull(ctx, account, "FBA-NOPE00")
	assert.ErrorIs(t, err, remote.ErrNotFound)
}
