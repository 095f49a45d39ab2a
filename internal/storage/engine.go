// Package storage keeps shipments on the local machine. A primary engine
// holds the indexed copy and a flat key/value engine mirrors every write so
// reads never depend on the primary being available.
package storage

import (
	"context"
	"errors"

	"github.com/Qubut/fba-boxes/internal/models"
)

var (
	ErrNotFound           = errors.New("shipment not found")
	ErrStorageUnavailable = errors.New("storage engine unavailable")
)

// Engine is a keyed shipment store.
type Engine interface {
	Put(ctx context.Context, s *models.Shipment) error
	// Get returns ErrNotFound when id is absent.
	Get(ctx context.Context, id string) (*models.Shipment, error)
	GetAll(ctx context.Context) ([]*models.Shipment, error)
	Index(ctx context.Context) ([]models.IndexEntry, error)
	// Delete succeeds when id is absent.
	Delete(ctx context.Context, id string) error
	Count(ctx context.Context) (int, error)
	Close() error
}
