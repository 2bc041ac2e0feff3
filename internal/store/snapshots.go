package store

import (
	"context"
	"fmt"
)

// VariantSnapshot is the last-seen quantity and weight of one product variant.
type VariantSnapshot struct {
	ProductID   string `db:"product_id"`
	SKU         string `db:"sku"`
	Quantity    int    `db:"quantity"`
	WeightGrams int    `db:"weight_grams"`
}

// GetSnapshot returns the recorded variants of a product keyed by SKU.
// An unknown product yields an empty map.
func (s *Store) GetSnapshot(ctx context.Context, productID string) (map[string]VariantSnapshot, error) {
	var rows []VariantSnapshot
	err := s.db.SelectContext(ctx, &rows, `
		SELECT product_id, sku, quantity, weight_grams
		FROM product_snapshots
		WHERE product_id = ?
		ORDER BY sku ASC
	`, productID)
	if err != nil {
		return nil, fmt.Errorf("get snapshot %q: %w", productID, err)
	}
	out := make(map[string]VariantSnapshot, len(rows))
	for _, r := range rows {
		out[r.SKU] = r
	}
	return out, nil
}

// PutSnapshot upserts variant snapshots in one transaction.
func (s *Store) PutSnapshot(ctx context.Context, variants []VariantSnapshot) error {
	if len(variants) == 0 {
		return nil
	}
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("put snapshot: begin tx: %w", err)
	}
	defer tx.Rollback()

	for _, v := range variants {
		_, err := tx.NamedExecContext(ctx, `
			INSERT INTO product_snapshots (product_id, sku, quantity, weight_grams)
			VALUES (:product_id, :sku, :quantity, :weight_grams)
			ON CONFLICT(product_id, sku) DO UPDATE SET
				quantity = excluded.quantity,
				weight_grams = excluded.weight_grams
		`, v)
		if err != nil {
			return fmt.Errorf("put snapshot %q/%q: %w", v.ProductID, v.SKU, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("put snapshot: commit: %w", err)
	}
	return nil
}
