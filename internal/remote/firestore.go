package remote

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type FirestoreStore struct {
	client *firestore.Client
}

// OpenFirestore connects with the given credentials file, or with
// application default credentials when it is empty.
func OpenFirestore(ctx context.Context, projectID, credentialsFile string) (*FirestoreStore, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	client, err := firestore.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, err
	}
	return &FirestoreStore{client: client}, nil
}

func (f *FirestoreStore) shipments(acct Account) *firestore.CollectionRef {
	return f.client.Collection(usersCollection).Doc(acct.Sanitized).Collection(shipmentsCollection)
}

func (f *FirestoreStore) WriteShipments(ctx context.Context, acct Account, docs []ShipmentDoc) error {
	if err := checkBatch(docs); err != nil {
		return err
	}
	if len(docs) == 0 {
		return nil
	}
	batch := f.client.Batch()
	col := f.shipments(acct)
	for _, d := range docs {
		batch.Set(col.Doc(d.ShipmentID), d)
	}
	if _, err := batch.Commit(ctx); err != nil {
		return fmt.Errorf("commit %d shipments: %w", len(docs), err)
	}
	return nil
}

func (f *FirestoreStore) WriteProfile(ctx context.Context, acct Account, p Profile) error {
	fields := p.fields()
	fields["lastMigration"] = firestore.ServerTimestamp
	_, err := f.client.Collection(usersCollection).Doc(acct.Sanitized).Set(ctx, fields, firestore.MergeAll)
	return err
}

func (f *FirestoreStore) ListShipments(ctx context.Context, acct Account) ([]ShipmentDoc, error) {
	iter := f.shipments(acct).Documents(ctx)
	defer iter.Stop()
	var out []ShipmentDoc
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, err
		}
		out = append(out, decodeSnapshot(snap))
	}
	return out, nil
}

func (f *FirestoreStore) GetShipment(ctx context.Context, acct Account, id string) (ShipmentDoc, error) {
	snap, err := f.shipments(acct).Doc(id).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return ShipmentDoc{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return ShipmentDoc{}, err
	}
	return decodeSnapshot(snap), nil
}

// decodeSnapshot never fails: an undecodable document comes back with Err
// set so the caller can skip it.
func decodeSnapshot(snap *firestore.DocumentSnapshot) ShipmentDoc {
	var d ShipmentDoc
	if err := snap.DataTo(&d); err != nil {
		return decodeFallback(snap.Ref.ID, snap.Data(), err)
	}
	if d.ShipmentID == "" {
		d.ShipmentID = snap.Ref.ID
	}
	return d
}

func (f *FirestoreStore) CountShipments(ctx context.Context, acct Account) (int, error) {
	iter := f.shipments(acct).Select().Documents(ctx)
	defer iter.Stop()
	n := 0
	for {
		_, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			return n, nil
		}
		if err != nil {
			return 0, err
		}
		n++
	}
}

func (f *FirestoreStore) Close() error { return f.client.Close() }
