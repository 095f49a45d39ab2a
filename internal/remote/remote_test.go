package remote

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/Qubut/fba-boxes/internal/codec"
	"github.com/Qubut/fba-boxes/internal/grid"
	"github.com/Qubut/fba-boxes/internal/models"
)

func TestSanitizeAccountID(t *testing.T) {
	cases := map[string]string{
		"seller@example.com":    "seller_at_example_dot_com",
		"a@b@c.io":              "a_at_b@c_dot_io",
		"team#1$[x]/y":          "team_1__x__y",
		"plain":                 "plain",
		"first.last@shop.co.uk": "first_dot_last_at_shop_dot_co_dot_uk",
	}
	for in, want := range cases {
		assert.Equal(t, want, SanitizeAccountID(in), in)
		assert.Equal(t, SanitizeAccountID(in), SanitizeAccountID(in))
	}
}

func TestValidDate(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	ts := time.Date(2024, 1, 2, 3, 4, 5, 6_000_000, time.UTC)

	assert.Equal(t, ts, validDateAt(ts, now))
	assert.Equal(t, ts, validDateAt("2024-01-02T03:04:05.006Z", now))
	assert.Equal(t, time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), validDateAt("2024-01-02", now))
	assert.Equal(t, now, validDateAt("", now))
	assert.Equal(t, now, validDateAt("not a date", now))
	assert.Equal(t, now, validDateAt(nil, now))
	assert.Equal(t, now, validDateAt(time.Time{}, now))
	assert.False(t, ValidDate(42.5).IsZero())
}

func TestAccountPaths(t *testing.T) {
	acct, err := NewAccount("seller@example.com")
	require.NoError(t, err)
	assert.Equal(t, "users/seller_at_example_dot_com", acct.UserPath())
	assert.Equal(t, "users/seller_at_example_dot_com/shipments/FBA-000001", acct.ShipmentPath("FBA-000001"))

	_, err = NewAccount("")
	assert.ErrorIs(t, err, ErrNoAccount)
}

func sample() *models.Shipment {
	return &models.Shipment{
		ShipmentID:       "FBA-ABC123",
		ShipmentName:     "Spring restock",
		CreatedDate:      "2024-01-01T00:00:00.000Z",
		LastModifiedDate: "2024-01-02T00:00:00.000Z",
		MainJSON: grid.FromStrings([][]string{
			{"Shipment ID", "FBA-ABC123"},
			{"SKU", "FNSKU", "12"},
			{},
		}),
		OriginalSheetData: models.OriginalSheetData{
			Instruction: &models.SheetData{Name: "Instructions", Data: [][]string{{"Read me", ""}}},
		},
		Boxes: []grid.BoxRef{{ID: "b1", Column: 12}},
	}
}

func TestShipmentDocRoundTrip(t *testing.T) {
	acct, _ := NewAccount("seller@example.com")
	sh := sample()
	doc := NewShipmentDoc(acct, sh)

	assert.Equal(t, DocVersion, doc.Version)
	assert.Equal(t, "seller_at_example_dot_com", doc.SanitizedAccountID)
	assert.True(t, codec.IsFlattened(doc.MainJSON))
	assert.Equal(t, time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), doc.LastModifiedDate)

	got, rep, err := doc.Shipment()
	require.NoError(t, err)
	assert.Zero(t, rep.Corrupt)
	if diff := cmp.Diff(sh.MainJSON.Strings(), got.MainJSON.Strings()); diff != "" {
		t.Fatalf("main grid mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, sh.OriginalSheetData, got.OriginalSheetData)
	assert.Equal(t, sh.Boxes, got.Boxes)
	assert.Equal(t, sh.CreatedDate, got.CreatedDate)
	assert.Equal(t, sh.LastModifiedDate, got.LastModifiedDate)
}

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	acct, _ := NewAccount("seller@example.com")
	other, _ := NewAccount("other@example.com")
	m := NewMemoryStore()

	doc := NewShipmentDoc(acct, sample())
	require.NoError(t, m.WriteShipments(ctx, acct, []ShipmentDoc{doc}))
	assert.Equal(t, []int{1}, m.Batches())

	n, err := m.CountShipments(ctx, acct)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	n, err = m.CountShipments(ctx, other)
	require.NoError(t, err)
	assert.Zero(t, n)

	got, err := m.GetShipment(ctx, acct, doc.ShipmentID)
	require.NoError(t, err)
	assert.False(t, got.MigratedAt.IsZero())

	_, err = m.GetShipment(ctx, other, doc.ShipmentID)
	assert.ErrorIs(t, err, ErrNotFound)

	big := make([]ShipmentDoc, MaxBatchSize+1)
	assert.Error(t, m.WriteShipments(ctx, acct, big))

	boom := errors.New("boom")
	m.FailBatch = func(int, []ShipmentDoc) error { return boom }
	assert.ErrorIs(t, m.WriteShipments(ctx, acct, []ShipmentDoc{doc}), boom)
	assert.Equal(t, []int{1}, m.Batches())
}

func TestMemoryProfileMerges(t *testing.T) {
	ctx := context.Background()
	acct, _ := NewAccount("seller@example.com")
	m := NewMemoryStore()
	server := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return server }
	client := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, m.WriteProfile(ctx, acct, Profile{Email: acct.ID, ShipmentCount: 1, LastMigration: client}))
	require.NoError(t, m.WriteProfile(ctx, acct, Profile{Email: acct.ID, ShipmentCount: 3, LastMigration: client}))

	p, ok := m.Profile(acct)
	require.True(t, ok)
	assert.Equal(t, 3, p["shipmentCount"])
	assert.Equal(t, acct.ID, p["email"])
	assert.Equal(t, server, p["lastMigration"])
}

func TestMongoProfileUpdateUsesServerDate(t *testing.T) {
	acct, _ := NewAccount("seller@example.com")
	u := profileUpdate(Profile{Email: acct.ID, ShipmentCount: 2, LastMigration: time.Now()})

	set, ok := u["$set"].(map[string]any)
	require.True(t, ok)
	assert.NotContains(t, set, "lastMigration")
	assert.Equal(t, 2, set["shipmentCount"])
	assert.Equal(t, bson.M{"lastMigration": true}, u["$currentDate"])
}

func TestDocFromMapToleratesLegacyDates(t *testing.T) {
	d, err := DocFromMap("FBA-OLD", map[string]any{
		"shipmentName":     "Old",
		"mainJson":         map[string]any{"row_0": map[string]any{"col_0": "sX"}},
		"boxes":            []any{map[string]any{"id": "box-1"}},
		"createdDate":      "2024-01-02",
		"lastModifiedDate": int64(1704153600000),
	})
	require.NoError(t, err)
	assert.Equal(t, "FBA-OLD", d.ShipmentID)
	assert.Equal(t, "Old", d.ShipmentName)
	assert.Equal(t, time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), d.CreatedDate)
	assert.Equal(t, time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), d.LastModifiedDate)
	assert.True(t, d.MigratedAt.IsZero())
	assert.Len(t, d.Boxes, 1)

	_, err = DocFromMap("FBA-BAD", map[string]any{"mainJson": "[[1,2]]"})
	assert.Error(t, err)
}

func TestDecodeRawKeepsUndecodableDocument(t *testing.T) {
	acct, _ := NewAccount("seller@example.com")

	legacy, err := bson.Marshal(bson.M{
		"_id":              acct.ShipmentPath("FBA-OLD"),
		"shipmentID":       "FBA-OLD",
		"mainJson":         bson.M{"row_0": bson.M{"col_0": "sX"}},
		"createdDate":      "2024-01-02",
		"lastModifiedDate": "2024-01-03",
	})
	require.NoError(t, err)
	d := decodeRaw(bson.Raw(legacy))
	require.NoError(t, d.Err)
	assert.Equal(t, "FBA-OLD", d.ShipmentID)
	assert.Equal(t, time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), d.CreatedDate)
	assert.Equal(t, map[string]any{"row_0": map[string]any{"col_0": "sX"}}, d.MainJSON)

	broken, err := bson.Marshal(bson.M{
		"_id":         acct.ShipmentPath("FBA-BAD"),
		"mainJson":    "not a grid",
		"createdDate": "yesterday",
	})
	require.NoError(t, err)
	d = decodeRaw(bson.Raw(broken))
	assert.Equal(t, "FBA-BAD", d.ShipmentID)
	require.Error(t, d.Err)
	_, _, err = d.Shipment()
	assert.Error(t, err)
}

func TestMemoryStoreListsUndecodableDocument(t *testing.T) {
	ctx := context.Background()
	acct, _ := NewAccount("seller@example.com")
	m := NewMemoryStore()
	m.PutRaw(acct, "FBA-BAD", map[string]any{"mainJson": 42})

	docs, err := m.ListShipments(ctx, acct)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "FBA-BAD", docs[0].ShipmentID)
	assert.Error(t, docs[0].Err)
}

func TestNormalizeBSON(t *testing.T) {
	in := primitive.D{
		{Key: "row_0", Value: primitive.D{{Key: "col_0", Value: "sX"}}},
		{Key: "_metadata", Value: bson.M{"originalLength": int32(1), "isFlattened": true}},
		{Key: "list", Value: primitive.A{int32(1), "a"}},
	}
	want := map[string]any{
		"row_0":     map[string]any{"col_0": "sX"},
		"_metadata": map[string]any{"originalLength": int64(1), "isFlattened": true},
		"list":      []any{int64(1), "a"},
	}
	if diff := cmp.Diff(want, normalize(in)); diff != "" {
		t.Fatalf("normalize mismatch (-want +got):\n%s", diff)
	}
}
