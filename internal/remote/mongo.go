package remote

import (
	"context"
	"errors"
	"fmt"
	"path"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoStore keeps the document paths as _id values so both backends
// address shipments the same way.
type MongoStore struct {
	client    *mongo.Client
	users     *mongo.Collection
	shipments *mongo.Collection
}

func OpenMongo(ctx context.Context, uri, database string) (*MongoStore, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	db := client.Database(database)
	return &MongoStore{
		client:    client,
		users:     db.Collection(usersCollection),
		shipments: db.Collection(shipmentsCollection),
	}, nil
}

func (m *MongoStore) WriteShipments(ctx context.Context, acct Account, docs []ShipmentDoc) error {
	if err := checkBatch(docs); err != nil {
		return err
	}
	if len(docs) == 0 {
		return nil
	}
	writes := make([]mongo.WriteModel, len(docs))
	for i, d := range docs {
		// migratedAt is stamped by the server.
		d.MigratedAt = time.Time{}
		writes[i] = mongo.NewUpdateOneModel().
			SetFilter(bson.M{"_id": acct.ShipmentPath(d.ShipmentID)}).
			SetUpdate(bson.M{
				"$set":         d,
				"$currentDate": bson.M{"migratedAt": true},
			}).
			SetUpsert(true)
	}
	if _, err := m.shipments.BulkWrite(ctx, writes, options.BulkWrite().SetOrdered(true)); err != nil {
		return fmt.Errorf("commit %d shipments: %w", len(docs), err)
	}
	return nil
}

func (m *MongoStore) WriteProfile(ctx context.Context, acct Account, p Profile) error {
	_, err := m.users.UpdateOne(ctx,
		bson.M{"_id": acct.UserPath()},
		profileUpdate(p),
		options.Update().SetUpsert(true),
	)
	return err
}

// profileUpdate leaves lastMigration to the server clock.
func profileUpdate(p Profile) bson.M {
	fields := p.fields()
	delete(fields, "lastMigration")
	return bson.M{
		"$set":         fields,
		"$currentDate": bson.M{"lastMigration": true},
	}
}

func (m *MongoStore) ListShipments(ctx context.Context, acct Account) ([]ShipmentDoc, error) {
	cur, err := m.shipments.Find(ctx, bson.M{"sanitizedAccountId": acct.Sanitized})
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	var out []ShipmentDoc
	for cur.Next(ctx) {
		out = append(out, decodeRaw(cur.Current))
	}
	return out, cur.Err()
}

func (m *MongoStore) GetShipment(ctx context.Context, acct Account, id string) (ShipmentDoc, error) {
	raw, err := m.shipments.FindOne(ctx, bson.M{"_id": acct.ShipmentPath(id)}).Raw()
	if errors.Is(err, mongo.ErrNoDocuments) {
		return ShipmentDoc{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return ShipmentDoc{}, err
	}
	return decodeRaw(raw), nil
}

// decodeRaw never fails: an undecodable document comes back with Err set so
// the caller can skip it.
func decodeRaw(raw bson.Raw) ShipmentDoc {
	var d ShipmentDoc
	err := bson.Unmarshal(raw, &d)
	if err == nil {
		return normalizeDoc(d)
	}
	key, _ := raw.Lookup("_id").StringValueOK()
	id := path.Base(key)
	var m bson.M
	if merr := bson.Unmarshal(raw, &m); merr != nil {
		return ShipmentDoc{ShipmentID: id, Err: fmt.Errorf("decode: %w", errors.Join(err, merr))}
	}
	fields, _ := normalize(m).(map[string]any)
	return decodeFallback(id, fields, err)
}

func (m *MongoStore) CountShipments(ctx context.Context, acct Account) (int, error) {
	n, err := m.shipments.CountDocuments(ctx, bson.M{"sanitizedAccountId": acct.Sanitized})
	return int(n), err
}

func (m *MongoStore) Close() error {
	return m.client.Disconnect(context.Background())
}

func normalizeDoc(d ShipmentDoc) ShipmentDoc {
	d.MainJSON, _ = normalize(d.MainJSON).(map[string]any)
	d.OriginalSheetData, _ = normalize(d.OriginalSheetData).(map[string]any)
	for i, b := range d.Boxes {
		d.Boxes[i], _ = normalize(b).(map[string]any)
	}
	return d
}

// normalize rewrites decoded BSON containers as plain maps and slices.
func normalize(v any) any {
	switch t := v.(type) {
	case primitive.D:
		m := make(map[string]any, len(t))
		for _, e := range t {
			m[e.Key] = normalize(e.Value)
		}
		return m
	case primitive.M:
		return normalize(map[string]any(t))
	case map[string]any:
		m := make(map[string]any, len(t))
		for k, e := range t {
			m[k] = normalize(e)
		}
		return m
	case primitive.A:
		return normalize([]any(t))
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = normalize(e)
		}
		return out
	case int32:
		return int64(t)
	case primitive.DateTime:
		return t.Time().UTC()
	default:
		return v
	}
}
