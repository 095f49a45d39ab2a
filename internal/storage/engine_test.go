package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Qubut/fba-boxes/internal/models"
)

func shipmentAt(id, created, modified string) *models.Shipment {
	sh := sampleShipment()
	sh.ShipmentID = id
	sh.CreatedDate = created
	sh.LastModifiedDate = modified
	return sh
}

// engineContract runs the behaviour every Engine must share.
func engineContract(t *testing.T, e Engine) {
	ctx := context.Background()

	_, err := e.Get(ctx, "FBA-MISSIN")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, e.Put(ctx, shipmentAt("FBA-000001", "2024-01-01T00:00:00.000Z", "2024-01-01T00:00:00.000Z")))
	require.NoError(t, e.Put(ctx, shipmentAt("FBA-000002", "2024-01-02T00:00:00.000Z", "2024-01-03T00:00:00.000Z")))
	// Overwrite keeps a single entry.
	require.NoError(t, e.Put(ctx, shipmentAt("FBA-000001", "2024-01-01T00:00:00.000Z", "2024-01-02T00:00:00.000Z")))

	n, err := e.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	index, err := e.Index(ctx)
	require.NoError(t, err)
	require.Len(t, index, 2)
	assert.Equal(t, models.IndexEntry{
		ShipmentID:       "FBA-000002",
		CreatedDate:      "2024-01-02T00:00:00.000Z",
		LastModifiedDate: "2024-01-03T00:00:00.000Z",
	}, index[0])
	assert.Equal(t, "2024-01-02T00:00:00.000Z", index[1].LastModifiedDate)

	all, err := e.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "FBA-000002", all[0].ShipmentID)

	got, err := e.Get(ctx, "FBA-000001")
	require.NoError(t, err)
	assert.Equal(t, "Spring restock", got.ShipmentName)

	require.NoError(t, e.Delete(ctx, "FBA-000001"))
	require.NoError(t, e.Delete(ctx, "FBA-000001"))
	n, err = e.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestSQLiteEngine(t *testing.T) {
	engineContract(t, openTestSQLite(t))
}

func TestFlatEngineMemory(t *testing.T) {
	engineContract(t, NewFlatEngine(NewMemoryKV()))
}

func TestFlatEngineBolt(t *testing.T) {
	kv, err := OpenBoltKV(filepath.Join(t.TempDir(), "fallback.db"))
	require.NoError(t, err)
	e := NewFlatEngine(kv)
	t.Cleanup(func() { e.Close() })
	engineContract(t, e)
}

func TestFlatEngineKeyLayout(t *testing.T) {
	kv := NewMemoryKV()
	e := NewFlatEngine(kv)
	ctx := context.Background()
	require.NoError(t, e.Put(ctx, shipmentAt("FBA-ABC123", "2024-01-01T00:00:00.000Z", "2024-01-01T00:00:00.000Z")))

	_, ok, err := kv.Get("importData_FBA-ABC123")
	require.NoError(t, err)
	assert.True(t, ok)

	list, ok, err := kv.Get("shipmentList")
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, `["FBA-ABC123"]`, list)

	meta, ok, err := kv.Get("shipmentMetadata")
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, `{"FBA-ABC123":{"createdDate":"2024-01-01T00:00:00.000Z","lastModifiedDate":"2024-01-01T00:00:00.000Z"}}`, meta)
}

func TestSQLiteUpgradeIsIdempotent(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "shipments.db")

	e, err := OpenSQLite(ctx, "sqlite", path)
	require.NoError(t, err)
	require.NoError(t, e.Put(ctx, shipmentAt("FBA-000001", "2024-01-01T00:00:00.000Z", "2024-01-01T00:00:00.000Z")))
	require.NoError(t, e.Close())

	e, err = OpenSQLite(ctx, "sqlite", path)
	require.NoError(t, err)
	defer e.Close()

	var version int
	require.NoError(t, e.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version))
	assert.Equal(t, SchemaVersion, version)

	n, err := e.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestNewShipmentID(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := NewShipmentID()
		assert.Regexp(t, `^FBA-[0-9A-Z]{6}$`, id)
		seen[id] = true
	}
	assert.Greater(t, len(seen), 90)
}
