package engine

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/subsku/internal/canon"
	"github.com/roach88/subsku/internal/ledger"
	"github.com/roach88/subsku/internal/pool"
)

// Processed-event marker kinds.
const (
	MarkerOrderCreated    = "order_created"
	MarkerRefund          = "refund"
	MarkerRefundLine      = "refund_line"
	MarkerOrderEdited     = "order_edited"
	MarkerOrderEditLine   = "order_edit_line"
	MarkerOrderClosed     = "order_closed"
	MarkerOrderClosedLine = "order_closed_line"
)

// allocation is one line item's share of an allocating batch.
type allocation struct {
	lineItemID string
	sku        string
	quantity   int
}

// deallocation is one line item's share of a releasing batch. names is the
// ledger tail planned for release.
type deallocation struct {
	lineItemID string
	sku        string
	quantity   int
	names      []string
}

func validateLine(lineItemID, sku string, quantity int) error {
	switch {
	case lineItemID == "":
		return newError(ErrCodeInvalidInput, "line item has no id", nil)
	case sku == "":
		return newError(ErrCodeInvalidInput, "line item has no sku", nil).withOrder("", lineItemID)
	case quantity <= 0:
		return newError(ErrCodeInvalidInput, fmt.Sprintf("quantity must be positive, got %d", quantity), nil).withOrder("", lineItemID)
	}
	return nil
}

// withRef fills in the order and line item of an engine error that lacks them.
func withRef(err error, ref Ref) error {
	var e *Error
	if errors.As(err, &e) {
		if e.OrderID == "" {
			e.OrderID = ref.OrderID
		}
		if e.LineItemID == "" {
			e.LineItemID = ref.LineItemID
		}
	}
	return err
}

func requireID(what, id string) error {
	if id == "" {
		return newError(ErrCodeInvalidInput, what+" is required", nil)
	}
	return nil
}

// OrderCreated reserves sub-units for every line item and records them in
// the order's ledger.
//
// An order already marked processed is skipped entirely. On a retried run,
// a line item whose ledger entry already holds its quantity is skipped, so a
// partially failed run resumes instead of allocating twice. The marker is
// only written once every line item succeeded.
func (e *Engine) OrderCreated(ctx context.Context, ev OrderCreated) (*BatchResult, error) {
	res := &BatchResult{Kind: KindOrderCreated, Key: ev.OrderID}
	if err := requireID("order id", ev.OrderID); err != nil {
		return res, err
	}

	done, err := e.store.IsProcessed(ctx, MarkerOrderCreated, ev.OrderID)
	if err != nil {
		return res, persistenceError("check processed", err).withOrder(ev.OrderID, "")
	}
	if done {
		e.logger.Info("order already processed, skipping", "order_id", ev.OrderID)
		res.Duplicate = true
		return res, nil
	}

	l, err := e.platform.OrderLedger(ctx, ev.OrderID)
	if err != nil {
		return res, externalError("read order ledger", err).withOrder(ev.OrderID, "")
	}

	res.Items = make([]ItemResult, len(ev.LineItems))
	var work []int
	var allocs []allocation
	for i, li := range ev.LineItems {
		res.Items[i] = ItemResult{LineItemID: li.ID, SKU: li.SKU, Quantity: li.Quantity}
		if err := validateLine(li.ID, li.SKU, li.Quantity); err != nil {
			res.Items[i].skip(err)
			continue
		}
		held := l.Count(li.ID)
		if held >= li.Quantity {
			e.logger.Debug("line item already assigned", "order_id", ev.OrderID, "line_item_id", li.ID, "held", held)
			res.Items[i].Status = StatusSkipped
			res.Items[i].SubUnits = l[li.ID]
			continue
		}
		work = append(work, i)
		allocs = append(allocs, allocation{lineItemID: li.ID, sku: li.SKU, quantity: li.Quantity - held})
	}

	e.allocateBatch(ctx, ev.OrderID, allocs, func(k int) *ItemResult { return &res.Items[work[k]] })

	if err := e.writeLedger(ctx, ev.OrderID, l, recordReserved(l, res.Items)); err != nil {
		return res, err
	}

	if res.OK() {
		if _, err := e.store.MarkProcessed(ctx, MarkerOrderCreated, ev.OrderID); err != nil {
			return res, persistenceError("mark processed", err).withOrder(ev.OrderID, "")
		}
	}
	e.logBatch(res)
	return res, nil
}

// OrderClosed hands back the units of a cancelled or returned order.
//
// Guarded like Refund: an event marker keyed by kind and order id, plus
// per-line markers so a partially failed run does not release the
// succeeded lines again on retry.
func (e *Engine) OrderClosed(ctx context.Context, ev OrderClosed) (*BatchResult, error) {
	kind := KindOrderCancelled
	if ev.Returned {
		kind = KindOrderReturned
	}
	res := &BatchResult{Kind: kind, Key: ev.OrderID}
	if err := requireID("order id", ev.OrderID); err != nil {
		return res, err
	}

	markerKey := closedMarkerKey(kind, ev.OrderID)
	done, err := e.store.IsProcessed(ctx, MarkerOrderClosed, markerKey)
	if err != nil {
		return res, persistenceError("check processed", err).withOrder(ev.OrderID, "")
	}
	if done {
		e.logger.Info("order close already processed, skipping", "kind", kind, "order_id", ev.OrderID)
		res.Duplicate = true
		return res, nil
	}

	l, err := e.platform.OrderLedger(ctx, ev.OrderID)
	if err != nil {
		return res, externalError("read order ledger", err).withOrder(ev.OrderID, "")
	}

	skus := make(map[string]string, len(ev.LineItems))
	reqs := make([]RefundLineItem, 0, len(ev.LineItems))
	for _, li := range ev.LineItems {
		skus[li.ID] = li.SKU
		reqs = append(reqs, RefundLineItem{LineItemID: li.ID, Quantity: li.Quantity})
	}

	res.Items = e.releaseLines(ctx, ev.OrderID, l, reqs, skus, MarkerOrderClosedLine, markerKey)
	if err := e.writeLedger(ctx, ev.OrderID, l, consumeReleased(l, res.Items)); err != nil {
		return res, err
	}
	if err := e.markLines(ctx, MarkerOrderClosedLine, markerKey, res.Items, StatusReleased); err != nil {
		return res, err
	}
	if res.OK() {
		if _, err := e.store.MarkProcessed(ctx, MarkerOrderClosed, markerKey); err != nil {
			return res, persistenceError("mark processed", err).withOrder(ev.OrderID, "")
		}
	}
	e.logBatch(res)
	return res, nil
}

// closedMarkerKey keeps a cancellation and a later return of the same order
// apart.
func closedMarkerKey(kind Kind, orderID string) string {
	return string(kind) + "/" + orderID
}

// Refund releases the refunded quantity of each line item, LIFO from the
// ledger. Guarded by a refund marker, plus per-line markers so a partially
// failed refund does not release the succeeded lines twice on retry.
func (e *Engine) Refund(ctx context.Context, ev RefundCreated) (*BatchResult, error) {
	res := &BatchResult{Kind: KindRefundCreated, Key: ev.RefundID}
	if err := requireID("refund id", ev.RefundID); err != nil {
		return res, err
	}
	if err := requireID("order id", ev.OrderID); err != nil {
		return res, err
	}

	done, err := e.store.IsProcessed(ctx, MarkerRefund, ev.RefundID)
	if err != nil {
		return res, persistenceError("check processed", err).withOrder(ev.OrderID, "")
	}
	if done {
		e.logger.Info("refund already processed, skipping", "refund_id", ev.RefundID, "order_id", ev.OrderID)
		res.Duplicate = true
		return res, nil
	}

	l, err := e.platform.OrderLedger(ctx, ev.OrderID)
	if err != nil {
		return res, externalError("read order ledger", err).withOrder(ev.OrderID, "")
	}
	skus, err := e.lineSKUs(ctx, ev.OrderID)
	if err != nil {
		return res, err
	}

	res.Items = e.releaseLines(ctx, ev.OrderID, l, ev.RefundLineItems, skus, MarkerRefundLine, ev.RefundID)
	if err := e.writeLedger(ctx, ev.OrderID, l, consumeReleased(l, res.Items)); err != nil {
		return res, err
	}
	if err := e.markLines(ctx, MarkerRefundLine, ev.RefundID, res.Items, StatusReleased); err != nil {
		return res, err
	}
	if res.OK() {
		if _, err := e.store.MarkProcessed(ctx, MarkerRefund, ev.RefundID); err != nil {
			return res, persistenceError("mark processed", err).withOrder(ev.OrderID, "")
		}
	}
	e.logBatch(res)
	return res, nil
}

// OrderEdited applies an order edit: removals release from the ledger tail,
// additions reserve and append. The ledger is written once for both.
func (e *Engine) OrderEdited(ctx context.Context, ev OrderEdited) (*BatchResult, error) {
	res := &BatchResult{Kind: KindOrderEdited, Key: ev.OrderEditID}
	if err := requireID("order edit id", ev.OrderEditID); err != nil {
		return res, err
	}
	if err := requireID("order id", ev.OrderID); err != nil {
		return res, err
	}

	done, err := e.store.IsProcessed(ctx, MarkerOrderEdited, ev.OrderEditID)
	if err != nil {
		return res, persistenceError("check processed", err).withOrder(ev.OrderID, "")
	}
	if done {
		e.logger.Info("order edit already processed, skipping", "order_edit_id", ev.OrderEditID, "order_id", ev.OrderID)
		res.Duplicate = true
		return res, nil
	}

	l, err := e.platform.OrderLedger(ctx, ev.OrderID)
	if err != nil {
		return res, externalError("read order ledger", err).withOrder(ev.OrderID, "")
	}
	skus, err := e.lineSKUs(ctx, ev.OrderID)
	if err != nil {
		return res, err
	}

	removals := make([]RefundLineItem, 0, len(ev.Removals))
	for _, r := range ev.Removals {
		removals = append(removals, RefundLineItem{LineItemID: r.LineItemID, Quantity: r.Delta})
	}
	released := e.releaseLines(ctx, ev.OrderID, l, removals, skus, MarkerOrderEditLine, ev.OrderEditID)

	added := make([]ItemResult, len(ev.Additions))
	var work []int
	var allocs []allocation
	for i, a := range ev.Additions {
		sku := skus[a.LineItemID]
		added[i] = ItemResult{LineItemID: a.LineItemID, SKU: sku, Quantity: a.Delta}
		if err := validateLine(a.LineItemID, sku, a.Delta); err != nil {
			added[i].skip(err)
			continue
		}
		if e.lineDone(ctx, MarkerOrderEditLine, ev.OrderEditID, "add", a.LineItemID) {
			added[i].Status = StatusSkipped
			continue
		}
		work = append(work, i)
		allocs = append(allocs, allocation{lineItemID: a.LineItemID, sku: sku, quantity: a.Delta})
	}
	e.allocateBatch(ctx, ev.OrderID, allocs, func(k int) *ItemResult { return &added[work[k]] })

	res.Items = append(released, added...)
	next := recordReserved(consumeReleased(l, released), added)
	if err := e.writeLedger(ctx, ev.OrderID, l, next); err != nil {
		return res, err
	}

	if err := e.markLines(ctx, MarkerOrderEditLine, ev.OrderEditID, released, StatusReleased); err != nil {
		return res, err
	}
	if err := e.markLines(ctx, MarkerOrderEditLine, ev.OrderEditID+"/add", added, StatusReserved); err != nil {
		return res, err
	}

	if res.OK() {
		if _, err := e.store.MarkProcessed(ctx, MarkerOrderEdited, ev.OrderEditID); err != nil {
			return res, persistenceError("mark processed", err).withOrder(ev.OrderID, "")
		}
	}
	e.logBatch(res)
	return res, nil
}

// allocateBatch reserves each allocation concurrently, writing into the
// ItemResult returned by slot(k) for allocs[k].
func (e *Engine) allocateBatch(ctx context.Context, orderID string, allocs []allocation, slot func(int) *ItemResult) {
	var g errgroup.Group
	g.SetLimit(e.maxParallel)
	for k, a := range allocs {
		item := slot(k)
		g.Go(func() error {
			e.allocateLine(ctx, item, a, Ref{OrderID: orderID, LineItemID: a.lineItemID})
			return nil
		})
	}
	_ = g.Wait()
}

// allocateLine reserves one line item's sub-units. A SKU with no pool is
// created from the platform quantity first.
func (e *Engine) allocateLine(ctx context.Context, item *ItemResult, a allocation, ref Ref) {
	unlock := e.locks.Lock(a.sku)
	defer unlock()

	external, err := e.externalQuantity(ctx, a.sku)
	if err != nil {
		item.fail(withRef(err, ref))
		return
	}

	exists, err := e.poolExists(ctx, a.sku)
	if err != nil {
		item.fail(err)
		return
	}
	if !exists {
		rec, err := e.reconcile(ctx, a.sku, external, ref)
		if err != nil {
			item.fail(err)
			return
		}
		item.Added = append(item.Added, rec.Added...)
	}

	r, err := e.reserve(ctx, a.sku, a.quantity, external, ref)
	if err != nil {
		item.fail(err)
		return
	}
	item.Status = StatusReserved
	item.SubUnits = r.Names
	item.Added = append(item.Added, r.ToppedUp...)
}

// releaseLines plans a LIFO release for each request against a running copy
// of l, so a line item listed twice releases distinct names, and runs the
// releases concurrently. skus maps line item id to SKU; a line with no known
// SKU falls back to the base SKU of its assigned names. When markerKind is
// set, lines already marked under markerKey are skipped.
func (e *Engine) releaseLines(ctx context.Context, orderID string, l ledger.Ledger, reqs []RefundLineItem, skus map[string]string, markerKind, markerKey string) []ItemResult {
	items := make([]ItemResult, len(reqs))
	plan := l.Clone()
	var work []int
	var deallocs []deallocation
	for i, r := range reqs {
		items[i] = ItemResult{LineItemID: r.LineItemID, SKU: skus[r.LineItemID], Quantity: r.Quantity}
		if err := requireID("line item id", r.LineItemID); err != nil {
			items[i].skip(err)
			continue
		}
		if r.Quantity <= 0 {
			items[i].skip(newError(ErrCodeInvalidInput, fmt.Sprintf("quantity must be positive, got %d", r.Quantity), nil).withOrder(orderID, r.LineItemID))
			continue
		}
		if markerKind != "" && e.lineDone(ctx, markerKind, markerKey, "", r.LineItemID) {
			items[i].Status = StatusSkipped
			continue
		}
		names, rest, err := plan.Consume(r.LineItemID, r.Quantity)
		if err != nil {
			items[i].skip(newError(ErrCodeNotFound, "no assignment recorded", err).withOrder(orderID, r.LineItemID))
			continue
		}
		plan = rest
		sku := items[i].SKU
		if sku == "" {
			sku = pool.BaseSKU(names[0])
			items[i].SKU = sku
		}
		work = append(work, i)
		deallocs = append(deallocs, deallocation{lineItemID: r.LineItemID, sku: sku, quantity: r.Quantity, names: names})
	}

	var g errgroup.Group
	g.SetLimit(e.maxParallel)
	for k, d := range deallocs {
		item := &items[work[k]]
		g.Go(func() error {
			e.releaseLine(ctx, item, d, Ref{OrderID: orderID, LineItemID: d.lineItemID})
			return nil
		})
	}
	_ = g.Wait()
	return items
}

func (e *Engine) releaseLine(ctx context.Context, item *ItemResult, d deallocation, ref Ref) {
	unlock := e.locks.Lock(d.sku)
	defer unlock()

	external, err := e.externalQuantity(ctx, d.sku)
	if err != nil {
		item.fail(withRef(err, ref))
		return
	}
	r, err := e.release(ctx, d.sku, d.names, external, ref)
	if err != nil {
		item.fail(err)
		return
	}
	item.Status = StatusReleased
	// The whole planned tail leaves the ledger, including names the pool no
	// longer holds.
	item.SubUnits = d.names
	item.Removed = r.Removed
	if r.TrimErr != nil {
		item.Error = r.TrimErr.Error()
	}
}

// recordReserved appends every reserved item's names to a copy of l.
func recordReserved(l ledger.Ledger, items []ItemResult) ledger.Ledger {
	next := l.Clone()
	for _, it := range items {
		if it.Status == StatusReserved {
			next.Record(it.LineItemID, it.SubUnits)
		}
	}
	return next
}

// consumeReleased drops every released item's names from a copy of l. The
// exact names are removed rather than a tail count, so a line item listed
// twice with one release failed keeps the right entries.
func consumeReleased(l ledger.Ledger, items []ItemResult) ledger.Ledger {
	next := l.Clone()
	for _, it := range items {
		if it.Status != StatusReleased || len(it.SubUnits) == 0 {
			continue
		}
		drop := make(map[string]bool, len(it.SubUnits))
		for _, name := range it.SubUnits {
			drop[name] = true
		}
		kept := next[it.LineItemID][:0]
		for _, name := range next[it.LineItemID] {
			if !drop[name] {
				kept = append(kept, name)
			}
		}
		if len(kept) == 0 {
			delete(next, it.LineItemID)
		} else {
			next[it.LineItemID] = kept
		}
	}
	return next
}

// writeLedger persists next as the order's whole ledger, unless it hashes
// the same as prev.
func (e *Engine) writeLedger(ctx context.Context, orderID string, prev, next ledger.Ledger) error {
	before, err := canon.LedgerHash(prev)
	if err != nil {
		return newError(ErrCodeInvalidInput, "hash order ledger", err).withOrder(orderID, "")
	}
	after, err := canon.LedgerHash(next)
	if err != nil {
		return newError(ErrCodeInvalidInput, "hash order ledger", err).withOrder(orderID, "")
	}
	if before == after {
		return nil
	}
	if err := e.platform.SetOrderLedger(ctx, orderID, next); err != nil {
		return externalError("write order ledger", err).withOrder(orderID, "")
	}
	e.logger.Debug("order ledger written", "order_id", orderID, "ledger_hash", after)
	return nil
}

// lineSKUs maps the order's line item ids to SKUs via the platform.
func (e *Engine) lineSKUs(ctx context.Context, orderID string) (map[string]string, error) {
	lines, err := e.platform.OrderLineItems(ctx, orderID)
	if err != nil {
		return nil, externalError("read order line items", err).withOrder(orderID, "")
	}
	skus := make(map[string]string, len(lines))
	for id, li := range lines {
		skus[id] = li.SKU
	}
	return skus, nil
}

func lineMarkerKey(key, sub, lineItemID string) string {
	if sub != "" {
		key += "/" + sub
	}
	return key + "/" + lineItemID
}

// lineDone reports whether a per-line marker exists. Lookup errors count as
// not done; the line then simply runs.
func (e *Engine) lineDone(ctx context.Context, kind, key, sub, lineItemID string) bool {
	done, err := e.store.IsProcessed(ctx, kind, lineMarkerKey(key, sub, lineItemID))
	if err != nil {
		e.logger.Warn("line marker lookup failed", "kind", kind, "key", key, "line_item_id", lineItemID, "error", err)
		return false
	}
	return done
}

// markLines writes a per-line marker for each item with status want.
func (e *Engine) markLines(ctx context.Context, kind, key string, items []ItemResult, want ItemStatus) error {
	for _, it := range items {
		if it.Status != want {
			continue
		}
		if _, err := e.store.MarkProcessed(ctx, kind, lineMarkerKey(key, "", it.LineItemID)); err != nil {
			return persistenceError("mark line processed", err).withOrder("", it.LineItemID)
		}
	}
	return nil
}

func (e *Engine) logBatch(res *BatchResult) {
	failed := res.Failed()
	if len(failed) == 0 {
		e.logger.Info("event processed", "kind", res.Kind, "key", res.Key, "items", len(res.Items))
		return
	}
	e.logger.Warn("event partially failed",
		"kind", res.Kind,
		"key", res.Key,
		"items", len(res.Items),
		"failed", len(failed),
		"error", res.Err(),
	)
}
