// Package remote stores shipments in a per-account document store so they
// can be moved between machines.
package remote

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Qubut/fba-boxes/internal/config"
)

var (
	ErrNotFound  = errors.New("remote shipment not found")
	ErrNoAccount = errors.New("no account id")
	ErrDisabled  = errors.New("remote store disabled")
)

// MaxBatchSize is the largest number of writes committed together.
const MaxBatchSize = 500

const (
	usersCollection     = "users"
	shipmentsCollection = "shipments"
)

// Account identifies the owner of a remote namespace.
type Account struct {
	ID        string
	Sanitized string
}

func NewAccount(id string) (Account, error) {
	if id == "" {
		return Account{}, ErrNoAccount
	}
	return Account{ID: id, Sanitized: SanitizeAccountID(id)}, nil
}

// UserPath is the profile document of the account.
func (a Account) UserPath() string {
	return usersCollection + "/" + a.Sanitized
}

// ShipmentPath is the document holding shipment id for the account.
func (a Account) ShipmentPath(id string) string {
	return a.UserPath() + "/" + shipmentsCollection + "/" + id
}

// Profile is merged into the account document after a migration.
// LastMigration is stamped by the backend's clock on every write.
type Profile struct {
	Email              string    `firestore:"email"                         bson:"email"              json:"email"`
	AccountID          string    `firestore:"accountId"                     bson:"accountId"          json:"accountId"`
	SanitizedAccountID string    `firestore:"sanitizedAccountId"            bson:"sanitizedAccountId" json:"sanitizedAccountId"`
	LastMigration      time.Time `firestore:"lastMigration,serverTimestamp" bson:"lastMigration"      json:"lastMigration"`
	ShipmentCount      int       `firestore:"shipmentCount"                 bson:"shipmentCount"      json:"shipmentCount"`
}

func (p Profile) fields() map[string]any {
	return map[string]any{
		"email":              p.Email,
		"accountId":          p.AccountID,
		"sanitizedAccountId": p.SanitizedAccountID,
		"lastMigration":      p.LastMigration,
		"shipmentCount":      p.ShipmentCount,
	}
}

// Store is a remote document store scoped by account.
type Store interface {
	// WriteShipments commits docs as one batch: all or nothing.
	WriteShipments(ctx context.Context, acct Account, docs []ShipmentDoc) error
	// WriteProfile merges p into the account document.
	WriteProfile(ctx context.Context, acct Account, p Profile) error
	ListShipments(ctx context.Context, acct Account) ([]ShipmentDoc, error)
	GetShipment(ctx context.Context, acct Account, id string) (ShipmentDoc, error)
	CountShipments(ctx context.Context, acct Account) (int, error)
	Close() error
}

// Open connects to the backend named in cfg.
func Open(ctx context.Context, cfg config.Config, logger *zap.SugaredLogger) (Store, error) {
	switch cfg.Remote.Backend {
	case "firestore":
		s, err := OpenFirestore(ctx, cfg.Remote.ProjectID, cfg.Remote.CredentialsFile)
		if err != nil {
			return nil, fmt.Errorf("open firestore: %w", err)
		}
		logger.Infow("Remote store ready", "backend", "firestore", "project", cfg.Remote.ProjectID)
		return s, nil
	case "mongo":
		s, err := OpenMongo(ctx, cfg.Remote.MongoURI, cfg.Remote.MongoDatabase)
		if err != nil {
			return nil, fmt.Errorf("open mongo: %w", err)
		}
		logger.Infow("Remote store ready", "backend", "mongo", "database", cfg.Remote.MongoDatabase)
		return s, nil
	case "memory":
		return NewMemoryStore(), nil
	default:
		return nil, ErrDisabled
	}
}

func checkBatch(docs []ShipmentDoc) error {
	if len(docs) > MaxBatchSize {
		return fmt.Errorf("batch of %d exceeds %d writes", len(docs), MaxBatchSize)
	}
	return nil
}
