package store

import (
	"context"
	"fmt"
	"time"

	"github.com/roach88/subsku/internal/activity"
)

// activityRow mirrors activity_log; At is stored as RFC 3339 text.
type activityRow struct {
	activity.Activity
	RecordedAt string `db:"recorded_at"`
}

// Append implements activity.Sink. All rows are written in one transaction.
func (s *Store) Append(ctx context.Context, rows []activity.Activity) error {
	if len(rows) == 0 {
		return nil
	}
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("append activity: begin tx: %w", err)
	}
	defer tx.Rollback()

	for _, r := range rows {
		at := r.At
		if at.IsZero() {
			at = time.Now()
		}
		_, err := tx.NamedExecContext(ctx, `
			INSERT INTO activity_log (sku, sub_unit, reason, quantity, order_id, line_item_id, recorded_at)
			VALUES (:sku, :sub_unit, :reason, :quantity, :order_id, :line_item_id, :recorded_at)
		`, activityRow{Activity: r, RecordedAt: at.UTC().Format(time.RFC3339Nano)})
		if err != nil {
			return fmt.Errorf("append activity %q: %w", r.SubUnit, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("append activity: commit: %w", err)
	}
	return nil
}

// ActivityFilter narrows ListActivity. Empty fields match everything.
type ActivityFilter struct {
	SKU     string
	OrderID string
}

// ListActivity returns activity rows in seq order.
func (s *Store) ListActivity(ctx context.Context, f ActivityFilter) ([]activity.Activity, error) {
	var rows []activityRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT seq, sku, sub_unit, reason, quantity, order_id, line_item_id, recorded_at
		FROM activity_log
		WHERE (? = '' OR sku = ?) AND (? = '' OR order_id = ?)
		ORDER BY seq ASC
	`, f.SKU, f.SKU, f.OrderID, f.OrderID)
	if err != nil {
		return nil, fmt.Errorf("list activity: %w", err)
	}
	out := make([]activity.Activity, len(rows))
	for i, r := range rows {
		a := r.Activity
		if t, err := time.Parse(time.RFC3339Nano, r.RecordedAt); err == nil {
			a.At = t
		}
		out[i] = a
	}
	return out, nil
}
