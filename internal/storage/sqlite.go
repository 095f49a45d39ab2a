package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	json "github.com/goccy/go-json"
	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"

	"github.com/Qubut/fba-boxes/internal/models"
)

// SchemaVersion is stored in PRAGMA user_version.
const SchemaVersion = 1

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS shipments (
		shipment_id        TEXT PRIMARY KEY,
		shipment_name      TEXT NOT NULL DEFAULT '',
		created_date       TEXT NOT NULL,
		last_modified_date TEXT NOT NULL,
		data               TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_shipments_created_date ON shipments(created_date)`,
	`CREATE INDEX IF NOT EXISTS idx_shipments_last_modified_date ON shipments(last_modified_date)`,
}

// SQLiteEngine is the primary engine. Driver is "sqlite" (pure Go) or
// "sqlite3" (cgo).
type SQLiteEngine struct {
	db *sql.DB
}

func OpenSQLite(ctx context.Context, driver, path string) (*SQLiteEngine, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}
	db, err := sql.Open(driver, path)
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", driver, err)
	}
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s database: %w", driver, err)
	}
	e := &SQLiteEngine{db: db}
	if err := e.upgrade(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return e, nil
}

// upgrade is safe to run against an existing database.
func (e *SQLiteEngine) upgrade(ctx context.Context) error {
	var version int
	if err := e.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	for _, stmt := range migrations {
		if _, err := e.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	if version < SchemaVersion {
		if _, err := e.db.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", SchemaVersion)); err != nil {
			return fmt.Errorf("write schema version: %w", err)
		}
	}
	return nil
}

func (e *SQLiteEngine) Put(ctx context.Context, s *models.Shipment) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode shipment %s: %w", s.ShipmentID, err)
	}
	_, err = e.db.ExecContext(ctx,
		`INSERT INTO shipments (shipment_id, shipment_name, created_date, last_modified_date, data)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(shipment_id) DO UPDATE SET
		   shipment_name = excluded.shipment_name,
		   created_date = excluded.created_date,
		   last_modified_date = excluded.last_modified_date,
		   data = excluded.data`,
		s.ShipmentID, s.ShipmentName, s.CreatedDate, s.LastModifiedDate, string(data),
	)
	if err != nil {
		return fmt.Errorf("put shipment %s: %w", s.ShipmentID, err)
	}
	return nil
}

func (e *SQLiteEngine) Get(ctx context.Context, id string) (*models.Shipment, error) {
	var data string
	err := e.db.QueryRowContext(ctx,
		"SELECT data FROM shipments WHERE shipment_id = ?", id,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get shipment %s: %w", id, err)
	}
	return decodeShipment(data)
}

func (e *SQLiteEngine) GetAll(ctx context.Context) ([]*models.Shipment, error) {
	rows, err := e.db.QueryContext(ctx,
		"SELECT data FROM shipments ORDER BY last_modified_date DESC, shipment_id")
	if err != nil {
		return nil, fmt.Errorf("list shipments: %w", err)
	}
	defer rows.Close()

	var out []*models.Shipment
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scan shipment: %w", err)
		}
		s, err := decodeShipment(data)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (e *SQLiteEngine) Index(ctx context.Context) ([]models.IndexEntry, error) {
	rows, err := e.db.QueryContext(ctx,
		`SELECT shipment_id, created_date, last_modified_date FROM shipments
		 ORDER BY last_modified_date DESC, shipment_id`)
	if err != nil {
		return nil, fmt.Errorf("index shipments: %w", err)
	}
	defer rows.Close()

	var out []models.IndexEntry
	for rows.Next() {
		var entry models.IndexEntry
		if err := rows.Scan(&entry.ShipmentID, &entry.CreatedDate, &entry.LastModifiedDate); err != nil {
			return nil, fmt.Errorf("scan index entry: %w", err)
		}
		out = append(out, entry)
	}
	return out, rows.Err()
}

func (e *SQLiteEngine) Delete(ctx context.Context, id string) error {
	if _, err := e.db.ExecContext(ctx, "DELETE FROM shipments WHERE shipment_id = ?", id); err != nil {
		return fmt.Errorf("delete shipment %s: %w", id, err)
	}
	return nil
}

func (e *SQLiteEngine) Count(ctx context.Context) (int, error) {
	var n int
	if err := e.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM shipments").Scan(&n); err != nil {
		return 0, fmt.Errorf("count shipments: %w", err)
	}
	return n, nil
}

func (e *SQLiteEngine) Close() error {
	return e.db.Close()
}

func decodeShipment(data string) (*models.Shipment, error) {
	var s models.Shipment
	if err := json.Unmarshal([]byte(data), &s); err != nil {
		return nil, fmt.Errorf("decode shipment: %w", err)
	}
	return &s, nil
}
