package engine

import (
	"context"

	"github.com/roach88/subsku/internal/store"
)

// InventoryLevel reconciles the pool of the inventory item's SKU to the
// platform's reported available quantity.
func (e *Engine) InventoryLevel(ctx context.Context, ev InventoryLevelUpdated) (*BatchResult, error) {
	res := &BatchResult{Kind: KindInventoryLevelUpdated, Key: ev.InventoryItemID}
	if err := requireID("inventory item id", ev.InventoryItemID); err != nil {
		return res, err
	}

	sku, err := e.platform.SKUForInventoryItem(ctx, ev.InventoryItemID)
	if err != nil {
		return res, externalError("resolve inventory item", err)
	}

	item := ItemResult{SKU: sku, Quantity: ev.Available}
	rec, err := e.ReconcileToExternal(ctx, sku, ev.Available)
	if err != nil {
		item.fail(err)
	} else {
		item.Status = StatusUnchanged
		if rec.Changed() {
			item.Status = StatusReconciled
		}
		item.Added, item.Removed = rec.Added, rec.Removed
	}
	res.Items = []ItemResult{item}
	e.logBatch(res)
	return res, nil
}

// ProductCreated records the product's variants and brings their pools in
// line with the platform.
func (e *Engine) ProductCreated(ctx context.Context, ev ProductChanged) (*BatchResult, error) {
	return e.product(ctx, KindProductCreated, ev)
}

// ProductUpdated is ProductCreated for an existing product.
func (e *Engine) ProductUpdated(ctx context.Context, ev ProductChanged) (*BatchResult, error) {
	return e.product(ctx, KindProductUpdated, ev)
}

// product diffs each variant against its last snapshot rather than the live
// pool:
//   - no snapshot or no pool: reconcile the pool to the variant quantity
//   - quantity rose: append the increase as restocked sub-units
//   - otherwise: no pool change
//
// Weight changes only update the snapshot; they never mutate sub-units.
func (e *Engine) product(ctx context.Context, kind Kind, ev ProductChanged) (*BatchResult, error) {
	res := &BatchResult{Kind: kind, Key: ev.ProductID}
	if err := requireID("product id", ev.ProductID); err != nil {
		return res, err
	}

	snap, err := e.store.GetSnapshot(ctx, ev.ProductID)
	if err != nil {
		return res, persistenceError("read product snapshot", err)
	}

	var next []store.VariantSnapshot
	for _, v := range ev.Variants {
		item := ItemResult{SKU: v.SKU, Quantity: v.InventoryQuantity}
		if v.SKU == "" {
			item.skip(newError(ErrCodeInvalidInput, "variant has no sku", nil))
			res.Items = append(res.Items, item)
			continue
		}
		prev, seen := snap[v.SKU]
		e.productVariant(ctx, &item, v, prev, seen)
		if item.Status != StatusFailed {
			next = append(next, store.VariantSnapshot{
				ProductID:   ev.ProductID,
				SKU:         v.SKU,
				Quantity:    v.InventoryQuantity,
				WeightGrams: v.WeightGrams,
			})
		}
		res.Items = append(res.Items, item)
	}

	if err := e.store.PutSnapshot(ctx, next); err != nil {
		return res, persistenceError("write product snapshot", err)
	}
	e.logBatch(res)
	return res, nil
}

func (e *Engine) productVariant(ctx context.Context, item *ItemResult, v Variant, prev store.VariantSnapshot, seen bool) {
	unlock := e.locks.Lock(v.SKU)
	defer unlock()

	exists, err := e.poolExists(ctx, v.SKU)
	if err != nil {
		item.fail(err)
		return
	}

	switch {
	case !seen || !exists:
		rec, err := e.reconcile(ctx, v.SKU, v.InventoryQuantity, Ref{})
		if err != nil {
			item.fail(err)
			return
		}
		item.Status = StatusUnchanged
		if rec.Changed() {
			item.Status = StatusReconciled
		}
		item.Added, item.Removed = rec.Added, rec.Removed

	case v.InventoryQuantity > prev.Quantity:
		added, err := e.restock(ctx, v.SKU, v.InventoryQuantity-prev.Quantity)
		if err != nil {
			item.fail(err)
			return
		}
		item.Status = StatusRestocked
		item.Added = added

	default:
		item.Status = StatusUnchanged
		if v.WeightGrams != prev.WeightGrams {
			e.logger.Debug("variant weight changed, snapshot only",
				"sku", v.SKU,
				"weight_grams", v.WeightGrams,
				"previous_weight_grams", prev.WeightGrams,
			)
		}
	}
}
