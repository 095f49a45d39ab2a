package storage

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/Qubut/fba-boxes/internal/config"
	"github.com/Qubut/fba-boxes/internal/models"
)

// Store mirrors every write to the fallback engine and merges both engines
// on read, newest copy first.
type Store struct {
	primary  Engine
	fallback Engine
	Logger   *zap.SugaredLogger
	Tracer   trace.Tracer
	Meter    metric.Meter
	now      func() time.Time
	newID    func() string
	mu       sync.Mutex

	writesTotal   metric.Int64Counter
	writesFailed  metric.Int64Counter
	fallbackReads metric.Int64Counter
}

type Option func(*Store)

func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func WithIDGenerator(gen func() string) Option {
	return func(s *Store) { s.newID = gen }
}

// Open builds the engines named by cfg. A primary engine that cannot be
// opened is logged and skipped; the fallback engine is required.
func Open(
	ctx context.Context,
	cfg config.Config,
	tracer trace.Tracer,
	logger *zap.SugaredLogger,
	meter metric.Meter,
) (*Store, error) {
	kv, err := OpenBoltKV(filepath.Join(cfg.Storage.Dir, cfg.Storage.FallbackFile))
	if err != nil {
		return nil, err
	}
	var primary Engine
	if cfg.Storage.PrimaryEnabled {
		path := filepath.Join(cfg.Storage.Dir, cfg.Storage.SQLiteFile)
		e, err := OpenSQLite(ctx, cfg.Storage.Driver, path)
		if err != nil {
			logger.Warnw("Primary storage unavailable, using fallback only",
				"driver", cfg.Storage.Driver, "path", path, "error", err)
		} else {
			primary = e
		}
	}
	return NewStore(primary, NewFlatEngine(kv), tracer, logger, meter)
}

// NewStore composes the engines. primary may be nil.
func NewStore(
	primary, fallback Engine,
	tracer trace.Tracer,
	logger *zap.SugaredLogger,
	meter metric.Meter,
	opts ...Option,
) (*Store, error) {
	if fallback == nil {
		return nil, fmt.Errorf("%w: no fallback engine", ErrStorageUnavailable)
	}
	s := &Store{
		primary:  primary,
		fallback: fallback,
		Logger:   logger,
		Tracer:   tracer,
		Meter:    meter,
		now:      time.Now,
		newID:    NewShipmentID,
	}
	for _, opt := range opts {
		opt(s)
	}

	var err error
	s.writesTotal, err = meter.Int64Counter(
		"storage.writes.total",
		metric.WithDescription("Shipment writes per engine"),
	)
	if err != nil {
		return nil, err
	}
	s.writesFailed, err = meter.Int64Counter(
		"storage.writes.failed",
		metric.WithDescription("Shipment writes rejected by an engine"),
	)
	if err != nil {
		return nil, err
	}
	s.fallbackReads, err = meter.Int64Counter(
		"storage.fallback.reads",
		metric.WithDescription("Reads served by the fallback engine after a primary failure"),
	)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// HasPrimary reports whether the primary engine is in use.
func (s *Store) HasPrimary() bool { return s.primary != nil }

// Fallback exposes the mirror engine.
func (s *Store) Fallback() Engine { return s.fallback }

// Save writes sh under id, or under sh.ShipmentID, or under a new
// identifier, and returns the identifier used. sh is updated in place with
// its identifier and timestamps.
func (s *Store) Save(ctx context.Context, sh *models.Shipment, id string) (string, error) {
	ctx, span := s.Tracer.Start(ctx, "storage.save")
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	if id == "" {
		id = sh.ShipmentID
	}
	if id == "" {
		id = s.newID()
	}
	sh.ShipmentID = id
	span.SetAttributes(attribute.String("shipment.id", id))

	prev, err := s.previous(ctx, id)
	if err != nil {
		s.Logger.Warnw("Previous copy unreadable", "shipment", id, "error", err)
	}
	now := s.now().UTC().Truncate(time.Millisecond)
	if prev != nil {
		if t, err := models.ParseTime(prev.LastModifiedDate); err == nil && !now.After(t) {
			now = t.Add(time.Millisecond)
		}
	}
	created, err := models.ParseTime(sh.CreatedDate)
	if err != nil {
		created = now
		if prev != nil {
			if t, err := models.ParseTime(prev.CreatedDate); err == nil {
				created = t
			}
		}
	}
	if created.After(now) {
		now = created
	}
	sh.CreatedDate = models.FormatTime(created)
	sh.LastModifiedDate = models.FormatTime(now)

	var primaryErr error
	if s.primary != nil {
		primaryErr = s.write(ctx, "primary", s.primary, sh)
	}
	fallbackErr := s.write(ctx, "fallback", s.fallback, sh)
	if fallbackErr != nil {
		fallbackErr = s.write(ctx, "fallback", s.fallback, sh)
	}

	switch {
	case fallbackErr == nil:
	case s.primary != nil && primaryErr == nil:
		s.Logger.Errorw("Fallback mirror out of date", "shipment", id, "error", fallbackErr)
	default:
		err := fmt.Errorf("%w: save %s: %w", ErrStorageUnavailable, id, errors.Join(primaryErr, fallbackErr))
		span.RecordError(err)
		return "", err
	}
	s.Logger.Debugw("Shipment saved", "shipment", id, "lastModifiedDate", sh.LastModifiedDate)
	return id, nil
}

func (s *Store) write(ctx context.Context, name string, e Engine, sh *models.Shipment) error {
	attrs := metric.WithAttributes(attribute.String("engine", name))
	s.writesTotal.Add(ctx, 1, attrs)
	if err := e.Put(ctx, sh); err != nil {
		s.writesFailed.Add(ctx, 1, attrs)
		s.Logger.Warnw("Storage write failed", "engine", name, "shipment", sh.ShipmentID, "error", err)
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

// previous returns the dates recorded for id, from the stored copy or, when
// no copy can be read, from the index. A nil entry means id is new.
func (s *Store) previous(ctx context.Context, id string) (*models.IndexEntry, error) {
	sh, err := s.lookup(ctx, id)
	if err == nil {
		return &models.IndexEntry{
			ShipmentID:       sh.ShipmentID,
			CreatedDate:      sh.CreatedDate,
			LastModifiedDate: sh.LastModifiedDate,
		}, nil
	}
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	index, ierr := s.List(ctx)
	if ierr != nil {
		return nil, errors.Join(err, ierr)
	}
	for _, e := range index {
		if e.ShipmentID == id {
			return &e, err
		}
	}
	return nil, err
}

// lookup reads id from both engines and returns the newer copy.
func (s *Store) lookup(ctx context.Context, id string) (*models.Shipment, error) {
	var fromPrimary *models.Shipment
	if s.primary != nil {
		sh, err := s.primary.Get(ctx, id)
		switch {
		case err == nil:
			fromPrimary = sh
		case !errors.Is(err, ErrNotFound):
			s.Logger.Warnw("Primary read failed", "shipment", id, "error", err)
			s.fallbackReads.Add(ctx, 1)
		}
	}
	fromFallback, err := s.fallback.Get(ctx, id)
	if err != nil && !errors.Is(err, ErrNotFound) {
		if fromPrimary == nil {
			return nil, err
		}
		s.Logger.Warnw("Fallback read failed, using primary copy", "shipment", id, "error", err)
		s.fallbackReads.Add(ctx, 1)
		fromFallback = nil
	}
	switch {
	case fromPrimary == nil && fromFallback == nil:
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	case fromFallback == nil:
		return fromPrimary, nil
	case fromPrimary == nil:
		return fromFallback, nil
	case newer(fromFallback.LastModifiedDate, fromPrimary.LastModifiedDate):
		return fromFallback, nil
	default:
		return fromPrimary, nil
	}
}

// Get returns the shipment stored under id. An empty id selects the most
// recently modified shipment.
func (s *Store) Get(ctx context.Context, id string) (*models.Shipment, error) {
	ctx, span := s.Tracer.Start(ctx, "storage.get", trace.WithAttributes(attribute.String("shipment.id", id)))
	defer span.End()
	if id == "" {
		index, err := s.List(ctx)
		if err != nil {
			return nil, err
		}
		if len(index) == 0 {
			return nil, ErrNotFound
		}
		id = index[0].ShipmentID
	}
	return s.lookup(ctx, id)
}

// List returns the index, most recently modified first.
func (s *Store) List(ctx context.Context) ([]models.IndexEntry, error) {
	ctx, span := s.Tracer.Start(ctx, "storage.list")
	defer span.End()

	merged := make(map[string]models.IndexEntry)
	if s.primary != nil {
		entries, err := s.primary.Index(ctx)
		if err != nil {
			s.Logger.Warnw("Primary index unavailable", "error", err)
			s.fallbackReads.Add(ctx, 1)
		}
		for _, e := range entries {
			merged[e.ShipmentID] = e
		}
	}
	entries, err := s.fallback.Index(ctx)
	if err != nil {
		if s.primary == nil {
			return nil, err
		}
		s.Logger.Warnw("Fallback index unavailable", "error", err)
	}
	for _, e := range entries {
		if cur, ok := merged[e.ShipmentID]; !ok || newer(e.LastModifiedDate, cur.LastModifiedDate) {
			merged[e.ShipmentID] = e
		}
	}
	out := make([]models.IndexEntry, 0, len(merged))
	for _, e := range merged {
		out = append(out, e)
	}
	sortIndex(out)
	return out, nil
}

// ListAll returns every stored shipment in List order.
func (s *Store) ListAll(ctx context.Context) ([]*models.Shipment, error) {
	ctx, span := s.Tracer.Start(ctx, "storage.list_all")
	defer span.End()

	merged := make(map[string]*models.Shipment)
	var primaryErr error
	if s.primary != nil {
		all, err := s.primary.GetAll(ctx)
		if err != nil {
			primaryErr = err
			s.Logger.Warnw("Primary read failed, reading fallback", "error", err)
			s.fallbackReads.Add(ctx, 1)
		}
		for _, sh := range all {
			merged[sh.ShipmentID] = sh
		}
	}
	all, err := s.fallback.GetAll(ctx)
	if err != nil {
		if s.primary == nil || primaryErr != nil {
			return nil, errors.Join(primaryErr, err)
		}
		s.Logger.Warnw("Fallback read failed", "error", err)
	}
	for _, sh := range all {
		if cur, ok := merged[sh.ShipmentID]; !ok || newer(sh.LastModifiedDate, cur.LastModifiedDate) {
			merged[sh.ShipmentID] = sh
		}
	}
	out := make([]*models.Shipment, 0, len(merged))
	for _, sh := range merged {
		out = append(out, sh)
	}
	sort.Slice(out, func(i, j int) bool {
		return before(
			models.IndexEntry{ShipmentID: out[i].ShipmentID, LastModifiedDate: out[i].LastModifiedDate},
			models.IndexEntry{ShipmentID: out[j].ShipmentID, LastModifiedDate: out[j].LastModifiedDate},
		)
	})
	return out, nil
}

// Delete removes id from every engine. Deleting an absent id is not an error.
func (s *Store) Delete(ctx context.Context, id string) error {
	ctx, span := s.Tracer.Start(ctx, "storage.delete", trace.WithAttributes(attribute.String("shipment.id", id)))
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	var primaryErr error
	if s.primary != nil {
		if primaryErr = s.primary.Delete(ctx, id); primaryErr != nil {
			s.Logger.Warnw("Primary delete failed, retrying", "shipment", id, "error", primaryErr)
			primaryErr = s.primary.Delete(ctx, id)
		}
	}
	fallbackErr := s.fallback.Delete(ctx, id)
	if primaryErr == nil && fallbackErr == nil {
		return nil
	}
	// A copy left in either engine would be merged back by List and Get.
	err := fmt.Errorf("%w: delete %s: %w", ErrStorageUnavailable, id, errors.Join(primaryErr, fallbackErr))
	span.RecordError(err)
	return err
}

// Counts reports how many shipments each engine holds. The primary count is
// zero when there is no primary engine.
func (s *Store) Counts(ctx context.Context) (primary, fallback int, err error) {
	if s.primary != nil {
		if primary, err = s.primary.Count(ctx); err != nil {
			s.Logger.Warnw("Primary count failed", "error", err)
			primary = 0
		}
	}
	fallback, err = s.fallback.Count(ctx)
	return primary, fallback, err
}

// Rename changes the display name of a shipment.
func (s *Store) Rename(ctx context.Context, id, name string) (*models.Shipment, error) {
	return s.Update(ctx, id, func(sh *models.Shipment) error {
		sh.ShipmentName = name
		return nil
	})
}

// Update loads id, applies fn and saves the result. Nothing is written when
// fn fails.
func (s *Store) Update(ctx context.Context, id string, fn func(*models.Shipment) error) (*models.Shipment, error) {
	sh, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := fn(sh); err != nil {
		return nil, err
	}
	if _, err := s.Save(ctx, sh, sh.ShipmentID); err != nil {
		return nil, err
	}
	return sh, nil
}

func (s *Store) Close() error {
	var errs []error
	if s.primary != nil {
		errs = append(errs, s.primary.Close())
	}
	errs = append(errs, s.fallback.Close())
	return errors.Join(errs...)
}

func parsedOrZero(s string) time.Time {
	t, err := models.ParseTime(s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func newer(a, b string) bool {
	return parsedOrZero(a).After(parsedOrZero(b))
}

func before(a, b models.IndexEntry) bool {
	ta, tb := parsedOrZero(a.LastModifiedDate), parsedOrZero(b.LastModifiedDate)
	if !ta.Equal(tb) {
		return ta.After(tb)
	}
	return a.ShipmentID < b.ShipmentID
}

func sortIndex(entries []models.IndexEntry) {
	sort.Slice(entries, func(i, j int) bool { return before(entries[i], entries[j]) })
}
