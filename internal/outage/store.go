// Package outage owns the relational model of properties, networks, outages,
// hourly rollups, ongoing outages and equipment links. Every mutation goes
// through an upsert keyed on the entity's natural key.
package outage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/wanops/outagewatch/internal/store"
)

// Store reads and writes the outage schema.
type Store struct {
	db *store.SQLiteStore
}

// New migrates the outage schema on db and returns a Store over it.
func New(ctx context.Context, db *store.SQLiteStore) (*Store, error) {
	if err := db.Migrate(ctx, Component, Migrations()); err != nil {
		return nil, fmt.Errorf("migrate outage schema: %w", err)
	}
	return &Store{db: db}, nil
}

// DB exposes the underlying handle for read-only callers.
func (s *Store) DB() *sql.DB {
	return s.db.DB()
}

// Tx runs fn in one transaction. Ingest checkpoints map to Tx boundaries.
func (s *Store) Tx(ctx context.Context, fn func(tx *Tx) error) error {
	return s.db.Tx(ctx, func(tx *sql.Tx) error {
		return fn(&Tx{tx: tx})
	})
}

// Tx is a write transaction over the outage schema.
type Tx struct {
	tx *sql.Tx
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

func floatPtr(n sql.NullFloat64) *float64 {
	if !n.Valid {
		return nil
	}
	v := n.Float64
	return &v
}
