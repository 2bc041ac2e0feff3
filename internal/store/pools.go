package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/roach88/subsku/internal/pool"
)

var (
	// ErrPoolNotFound is returned when no pool exists for a SKU.
	ErrPoolNotFound = errors.New("pool not found")

	// ErrSkipWrite may be returned by an UpdateFunc to end the transaction
	// without writing. UpdatePool then returns the unmodified pool and nil.
	ErrSkipWrite = errors.New("skip write")

	// ErrConcurrentUpdate is returned when the version compare-and-set kept
	// failing after maxUpdateAttempts.
	ErrConcurrentUpdate = errors.New("concurrent pool update")
)

const maxUpdateAttempts = 3

// UpdateFunc mutates p in place. exists is false when the SKU has no row
// yet; p is then an empty pool and returning nil creates the row.
type UpdateFunc func(p *pool.Pool, exists bool) error

type poolRow struct {
	SKU      string `db:"sku"`
	SubUnits string `db:"sub_units"`
	Version  int64  `db:"version"`
}

// GetPool loads the pool for sku. Returns ErrPoolNotFound if absent.
func (s *Store) GetPool(ctx context.Context, sku string) (*pool.Pool, error) {
	var row poolRow
	err := s.db.GetContext(ctx, &row, `SELECT sku, sub_units, version FROM pools WHERE sku = ?`, sku)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrPoolNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get pool %q: %w", sku, err)
	}
	return s.decodePool(row), nil
}

// ListSKUs returns every SKU with a pool, sorted.
func (s *Store) ListSKUs(ctx context.Context) ([]string, error) {
	var skus []string
	if err := s.db.SelectContext(ctx, &skus, `SELECT sku FROM pools ORDER BY sku ASC`); err != nil {
		return nil, fmt.Errorf("list skus: %w", err)
	}
	return skus, nil
}

// UpdatePool atomically reads the pool for sku, applies fn and writes the
// result. The write is conditional on the version read, so a concurrent
// writer causes the whole read-apply-write to be retried.
//
// If fn returns an error, nothing is written and the error is returned
// unchanged (except ErrSkipWrite, which yields the unmodified pool).
func (s *Store) UpdatePool(ctx context.Context, sku string, fn UpdateFunc) (*pool.Pool, error) {
	for attempt := 1; attempt <= maxUpdateAttempts; attempt++ {
		p, err := s.updateOnce(ctx, sku, fn)
		if errors.Is(err, ErrConcurrentUpdate) {
			s.logger.Debug("pool update conflict, retrying", "sku", sku, "attempt", attempt)
			continue
		}
		return p, err
	}
	return nil, fmt.Errorf("update pool %q: %w", sku, ErrConcurrentUpdate)
}

func (s *Store) updateOnce(ctx context.Context, sku string, fn UpdateFunc) (*pool.Pool, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("update pool %q: begin tx: %w", sku, err)
	}
	defer tx.Rollback() // No-op if committed

	var row poolRow
	exists := true
	err = tx.GetContext(ctx, &row, `SELECT sku, sub_units, version FROM pools WHERE sku = ?`, sku)
	if errors.Is(err, sql.ErrNoRows) {
		exists = false
	} else if err != nil {
		return nil, fmt.Errorf("update pool %q: select: %w", sku, err)
	}

	p := pool.New(sku)
	if exists {
		p = s.decodePool(row)
	}
	readVersion := p.Version

	if err := fn(p, exists); err != nil {
		if errors.Is(err, ErrSkipWrite) {
			return p, nil
		}
		return nil, err
	}

	data, err := json.Marshal(p.SubUnits)
	if err != nil {
		return nil, fmt.Errorf("update pool %q: marshal: %w", sku, err)
	}

	var res sql.Result
	if exists {
		res, err = tx.ExecContext(ctx, `
			UPDATE pools SET sub_units = ?, version = version + 1
			WHERE sku = ? AND version = ?
		`, string(data), sku, readVersion)
	} else {
		res, err = tx.ExecContext(ctx, `
			INSERT INTO pools (sku, sub_units, version) VALUES (?, ?, 1)
			ON CONFLICT(sku) DO NOTHING
		`, sku, string(data))
	}
	if err != nil {
		return nil, fmt.Errorf("update pool %q: write: %w", sku, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("update pool %q: rows affected: %w", sku, err)
	}
	if n == 0 {
		return nil, ErrConcurrentUpdate
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("update pool %q: commit: %w", sku, err)
	}

	p.Version = readVersion + 1
	return p, nil
}

// decodePool turns a row into a pool. A malformed sub_units document yields
// a pool with a nil sub-unit list, which availability treats as empty.
func (s *Store) decodePool(row poolRow) *pool.Pool {
	p := &pool.Pool{SKU: row.SKU, Version: row.Version}
	var units []pool.SubUnit
	if err := json.Unmarshal([]byte(row.SubUnits), &units); err != nil {
		s.logger.Warn("malformed sub-unit list", "sku", row.SKU, "error", err)
		return p
	}
	if units == nil {
		units = []pool.SubUnit{}
	}
	p.SubUnits = units
	return p
}
