package remote

import (
	"context"
	"fmt"
	"maps"
	"sort"
	"sync"
	"time"
)

// MemoryStore keeps documents in process. It records the size of every
// committed batch and can be told to fail specific batches.
type MemoryStore struct {
	mu        sync.Mutex
	shipments map[string]map[string]ShipmentDoc
	profiles  map[string]map[string]any
	batches   []int
	calls     int
	now       func() time.Time

	// FailBatch, when set, is consulted before every batch with its
	// zero-based attempt number. A non-nil error rejects the batch.
	FailBatch func(attempt int, docs []ShipmentDoc) error
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		shipments: make(map[string]map[string]ShipmentDoc),
		profiles:  make(map[string]map[string]any),
		now:       time.Now,
	}
}

func (m *MemoryStore) WriteShipments(ctx context.Context, acct Account, docs []ShipmentDoc) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := checkBatch(docs); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	attempt := m.calls
	m.calls++
	if m.FailBatch != nil {
		if err := m.FailBatch(attempt, docs); err != nil {
			return err
		}
	}
	bucket, ok := m.shipments[acct.Sanitized]
	if !ok {
		bucket = make(map[string]ShipmentDoc)
		m.shipments[acct.Sanitized] = bucket
	}
	now := m.now().UTC()
	for _, d := range docs {
		d.MigratedAt = now
		bucket[d.ShipmentID] = d
	}
	m.batches = append(m.batches, len(docs))
	return nil
}

func (m *MemoryStore) WriteProfile(ctx context.Context, acct Account, p Profile) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.profiles[acct.Sanitized]
	if !ok {
		cur = make(map[string]any)
		m.profiles[acct.Sanitized] = cur
	}
	fields := p.fields()
	fields["lastMigration"] = m.now().UTC()
	maps.Copy(cur, fields)
	return nil
}

func (m *MemoryStore) ListShipments(ctx context.Context, acct Account) ([]ShipmentDoc, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]ShipmentDoc, 0, len(m.shipments[acct.Sanitized]))
	for _, d := range m.shipments[acct.Sanitized] {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ShipmentID < out[j].ShipmentID })
	return out, nil
}

func (m *MemoryStore) GetShipment(ctx context.Context, acct Account, id string) (ShipmentDoc, error) {
	if err := ctx.Err(); err != nil {
		return ShipmentDoc{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.shipments[acct.Sanitized][id]
	if !ok {
		return ShipmentDoc{}, ErrNotFound
	}
	return d, nil
}

func (m *MemoryStore) CountShipments(ctx context.Context, acct Account) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.shipments[acct.Sanitized]), nil
}

func (m *MemoryStore) Close() error { return nil }

// Put stores a document directly, bypassing batch accounting.
func (m *MemoryStore) Put(acct Account, d ShipmentDoc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	bucket, ok := m.shipments[acct.Sanitized]
	if !ok {
		bucket = make(map[string]ShipmentDoc)
		m.shipments[acct.Sanitized] = bucket
	}
	bucket[d.ShipmentID] = d
}

// PutRaw stores a document as an untyped field map, the way an older client
// may have written it. A map that does not decode is kept with Err set.
func (m *MemoryStore) PutRaw(acct Account, id string, fields map[string]any) {
	d, err := DocFromMap(id, fields)
	if err != nil {
		d.Err = fmt.Errorf("decode: %w", err)
	}
	m.Put(acct, d)
}

// Batches returns the sizes of the committed batches in order.
func (m *MemoryStore) Batches() []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]int(nil), m.batches...)
}

// Profile returns the merged account document.
func (m *MemoryStore) Profile(acct Account) (map[string]any, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[acct.Sanitized]
	if !ok {
		return nil, false
	}
	return maps.Clone(p), true
}
