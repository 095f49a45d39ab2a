package storage

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	json "github.com/goccy/go-json"

	"github.com/Qubut/fba-boxes/internal/models"
)

// Key layout shared with the browser client's local storage.
const (
	bodyKeyPrefix = "importData_"
	listKey       = "shipmentList"
	metadataKey   = "shipmentMetadata"
)

type entryDates struct {
	CreatedDate      string `json:"createdDate"`
	LastModifiedDate string `json:"lastModifiedDate"`
}

// FlatEngine stores one JSON body per shipment plus an id list and a
// metadata map on top of a KV.
type FlatEngine struct {
	mu sync.Mutex
	kv KV
}

func NewFlatEngine(kv KV) *FlatEngine {
	return &FlatEngine{kv: kv}
}

func bodyKey(id string) string { return bodyKeyPrefix + id }

func (e *FlatEngine) readList() ([]string, error) {
	raw, ok, err := e.kv.Get(listKey)
	if err != nil || !ok {
		return nil, err
	}
	var ids []string
	if err := json.Unmarshal([]byte(raw), &ids); err != nil {
		return nil, fmt.Errorf("decode %s: %w", listKey, err)
	}
	return ids, nil
}

func (e *FlatEngine) readMetadata() (map[string]entryDates, error) {
	meta := make(map[string]entryDates)
	raw, ok, err := e.kv.Get(metadataKey)
	if err != nil || !ok {
		return meta, err
	}
	if err := json.Unmarshal([]byte(raw), &meta); err != nil {
		return nil, fmt.Errorf("decode %s: %w", metadataKey, err)
	}
	return meta, nil
}

func (e *FlatEngine) writeIndex(ids []string, meta map[string]entryDates) error {
	list, err := json.Marshal(ids)
	if err != nil {
		return err
	}
	if err := e.kv.Set(listKey, string(list)); err != nil {
		return fmt.Errorf("write %s: %w", listKey, err)
	}
	m, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	if err := e.kv.Set(metadataKey, string(m)); err != nil {
		return fmt.Errorf("write %s: %w", metadataKey, err)
	}
	return nil
}

func (e *FlatEngine) Put(ctx context.Context, s *models.Shipment) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	body, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode shipment %s: %w", s.ShipmentID, err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.kv.Set(bodyKey(s.ShipmentID), string(body)); err != nil {
		return fmt.Errorf("put shipment %s: %w", s.ShipmentID, err)
	}
	ids, err := e.readList()
	if err != nil {
		return err
	}
	meta, err := e.readMetadata()
	if err != nil {
		return err
	}
	if !slices.Contains(ids, s.ShipmentID) {
		ids = append(ids, s.ShipmentID)
	}
	meta[s.ShipmentID] = entryDates{CreatedDate: s.CreatedDate, LastModifiedDate: s.LastModifiedDate}
	return e.writeIndex(ids, meta)
}

func (e *FlatEngine) Get(ctx context.Context, id string) (*models.Shipment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	raw, ok, err := e.kv.Get(bodyKey(id))
	if err != nil {
		return nil, fmt.Errorf("get shipment %s: %w", id, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return decodeShipment(raw)
}

func (e *FlatEngine) GetAll(ctx context.Context) ([]*models.Shipment, error) {
	index, err := e.Index(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*models.Shipment, 0, len(index))
	for _, entry := range index {
		s, err := e.Get(ctx, entry.ShipmentID)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

func (e *FlatEngine) Index(ctx context.Context) ([]models.IndexEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	ids, err := e.readList()
	if err != nil {
		return nil, err
	}
	meta, err := e.readMetadata()
	if err != nil {
		return nil, err
	}
	out := make([]models.IndexEntry, 0, len(ids))
	for _, id := range ids {
		d := meta[id]
		out = append(out, models.IndexEntry{
			ShipmentID:       id,
			CreatedDate:      d.CreatedDate,
			LastModifiedDate: d.LastModifiedDate,
		})
	}
	sortIndex(out)
	return out, nil
}

func (e *FlatEngine) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.kv.Remove(bodyKey(id)); err != nil {
		return fmt.Errorf("delete shipment %s: %w", id, err)
	}
	ids, err := e.readList()
	if err != nil {
		return err
	}
	meta, err := e.readMetadata()
	if err != nil {
		return err
	}
	ids = slices.DeleteFunc(ids, func(s string) bool { return s == id })
	delete(meta, id)
	return e.writeIndex(ids, meta)
}

func (e *FlatEngine) Count(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	ids, err := e.readList()
	return len(ids), err
}

func (e *FlatEngine) Close() error {
	return e.kv.Close()
}
