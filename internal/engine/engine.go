package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/roach88/subsku/internal/activity"
	"github.com/roach88/subsku/internal/platform"
	"github.com/roach88/subsku/internal/pool"
	"github.com/roach88/subsku/internal/store"
)

// DefaultMaxParallel bounds concurrent line items within one event.
const DefaultMaxParallel = 8

// Engine runs allocation and reconciliation against a pool store and the
// external platform.
//
// Thread-safety: all methods are safe for concurrent use. Same-SKU work is
// serialised by a keyed mutex; the store's UpdatePool makes every pool
// mutation atomic regardless.
type Engine struct {
	store       *store.Store
	platform    platform.Client
	sink        activity.Sink
	logger      *slog.Logger
	clock       Clock
	locks       *keyedMutex
	maxParallel int
}

// Option configures an Engine.
type Option func(*Engine)

// WithSink sets where activity facts go. Default: activity.Discard.
func WithSink(s activity.Sink) Option {
	return func(e *Engine) {
		e.sink = s
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// WithClock sets the activity timestamp source. Default: SystemClock.
func WithClock(c Clock) Option {
	return func(e *Engine) {
		e.clock = c
	}
}

// WithMaxParallel bounds how many line items of one event run at once.
// Values below 1 mean 1.
func WithMaxParallel(n int) Option {
	return func(e *Engine) {
		if n < 1 {
			n = 1
		}
		e.maxParallel = n
	}
}

// New creates an Engine.
func New(s *store.Store, p platform.Client, opts ...Option) *Engine {
	e := &Engine{
		store:       s,
		platform:    p,
		sink:        activity.Discard{},
		logger:      slog.Default(),
		clock:       SystemClock{},
		locks:       newKeyedMutex(),
		maxParallel: DefaultMaxParallel,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Ref attributes a pool change to an order line for the activity log.
type Ref struct {
	OrderID    string
	LineItemID string
}

// emit hands rows to the sink. A sink failure is logged, not returned: the
// pool change it describes has already been committed.
func (e *Engine) emit(ctx context.Context, rows []activity.Activity) {
	if len(rows) == 0 {
		return
	}
	if err := e.sink.Append(ctx, rows); err != nil {
		e.logger.Warn("activity sink append failed", "rows", len(rows), "error", err)
	}
}

func (e *Engine) rows(sku string, names []string, reason activity.Reason, ref Ref) []activity.Activity {
	return activity.Rows(sku, names, reason, ref.OrderID, ref.LineItemID, e.clock.Now())
}

// Availability returns the availability of sku. A SKU with no pool yields
// zero counts and no error.
func (e *Engine) Availability(ctx context.Context, sku string) (pool.Availability, error) {
	p, err := e.store.GetPool(ctx, sku)
	if errors.Is(err, store.ErrPoolNotFound) {
		return pool.Query(nil), nil
	}
	if err != nil {
		return pool.Availability{}, persistenceError("availability", err).withSKU(sku)
	}
	return pool.Query(p), nil
}

// Reserved is the outcome of Reserve.
type Reserved struct {
	// Names are the reserved sub-units, exactly as many as requested.
	Names []string

	// Created were synthesized to cover a shortfall (also in Names).
	Created []string

	// ToppedUp were added afterwards so the available count does not lag
	// the platform quantity.
	ToppedUp []string
}

// Reserve marks quantity sub-units of sku Unavailable, lowest suffix first,
// creating new ones for any shortfall. If external is non-negative the pool
// is then topped up until its available count reaches external. The SKU must
// already have a pool.
func (e *Engine) Reserve(ctx context.Context, sku string, quantity, external int, ref Ref) (Reserved, error) {
	unlock := e.locks.Lock(sku)
	defer unlock()
	return e.reserve(ctx, sku, quantity, external, ref)
}

func (e *Engine) reserve(ctx context.Context, sku string, quantity, external int, ref Ref) (Reserved, error) {
	var out Reserved
	_, err := e.store.UpdatePool(ctx, sku, func(p *pool.Pool, exists bool) error {
		out = Reserved{}
		if !exists {
			return newError(ErrCodeNotFound, "no pool for sku", store.ErrPoolNotFound)
		}
		res, err := p.Reserve(quantity)
		if err != nil {
			return err
		}
		out.Names, out.Created = res.Names, res.Created
		if external >= 0 {
			out.ToppedUp = p.TopUpTo(external)
		}
		return nil
	})
	if err != nil {
		return Reserved{}, persistenceError("reserve", err).withSKU(sku).withOrder(ref.OrderID, ref.LineItemID)
	}

	var rows []activity.Activity
	rows = append(rows, e.rows(sku, out.Created, activity.ReasonCreated, ref)...)
	rows = append(rows, e.rows(sku, out.Names, activity.ReasonReserved, ref)...)
	rows = append(rows, e.rows(sku, out.ToppedUp, activity.ReasonCreated, ref)...)
	e.emit(ctx, rows)

	e.logger.Info("reserved sub-units",
		"sku", sku,
		"order_id", ref.OrderID,
		"line_item_id", ref.LineItemID,
		"quantity", quantity,
		"created", len(out.Created),
		"topped_up", len(out.ToppedUp),
	)
	return out, nil
}

// Released is the outcome of Release.
type Released struct {
	// Released are the names flipped back to Available.
	Released []string

	// Missing were requested but are not in the pool.
	Missing []string

	// Removed is the surplus trimmed because the pool then exceeded the
	// platform quantity.
	Removed []string

	// TrimErr is set if the surplus could not be trimmed. The release
	// itself still stands.
	TrimErr error
}

// Release flips names back to Available. If external is non-negative, any
// Available surplus over external is then removed, tail first.
func (e *Engine) Release(ctx context.Context, sku string, names []string, external int, ref Ref) (Released, error) {
	unlock := e.locks.Lock(sku)
	defer unlock()
	return e.release(ctx, sku, names, external, ref)
}

func (e *Engine) release(ctx context.Context, sku string, names []string, external int, ref Ref) (Released, error) {
	var out Released
	_, err := e.store.UpdatePool(ctx, sku, func(p *pool.Pool, exists bool) error {
		out = Released{}
		if !exists {
			return newError(ErrCodeNotFound, "no pool for sku", store.ErrPoolNotFound)
		}
		out.Released, out.Missing = p.Release(names)
		if external >= 0 {
			removed, err := p.TrimTo(external)
			if err != nil {
				out.TrimErr = persistenceError("trim surplus", err).withSKU(sku)
			}
			out.Removed = removed
		}
		return nil
	})
	if err != nil {
		return Released{}, persistenceError("release", err).withSKU(sku).withOrder(ref.OrderID, ref.LineItemID)
	}

	var rows []activity.Activity
	rows = append(rows, e.rows(sku, out.Released, activity.ReasonReleased, ref)...)
	rows = append(rows, e.rows(sku, out.Removed, activity.ReasonRemoved, ref)...)
	e.emit(ctx, rows)

	if len(out.Missing) > 0 {
		e.logger.Warn("released names not in pool", "sku", sku, "order_id", ref.OrderID, "missing", out.Missing)
	}
	if out.TrimErr != nil {
		e.logger.Warn("surplus trim failed after release", "sku", sku, "error", out.TrimErr)
	}
	e.logger.Info("released sub-units",
		"sku", sku,
		"order_id", ref.OrderID,
		"line_item_id", ref.LineItemID,
		"quantity", len(out.Released),
		"removed", len(out.Removed),
	)
	return out, nil
}

// RemoveAvailable deletes quantity Available sub-units, highest suffix first.
// Fails with INSUFFICIENT_AVAILABLE, leaving the pool unchanged, if fewer
// are Available.
func (e *Engine) RemoveAvailable(ctx context.Context, sku string, quantity int) ([]string, error) {
	unlock := e.locks.Lock(sku)
	defer unlock()

	var removed []string
	_, err := e.store.UpdatePool(ctx, sku, func(p *pool.Pool, exists bool) error {
		if !exists {
			return newError(ErrCodeNotFound, "no pool for sku", store.ErrPoolNotFound)
		}
		var err error
		removed, err = p.RemoveAvailable(quantity)
		return err
	})
	if err != nil {
		return nil, persistenceError("remove available", err).withSKU(sku)
	}
	e.emit(ctx, e.rows(sku, removed, activity.ReasonRemoved, Ref{}))
	e.logger.Info("removed sub-units", "sku", sku, "quantity", len(removed))
	return removed, nil
}

// Reconciled is the outcome of ReconcileToExternal.
type Reconciled struct {
	SKU      string
	External int

	// Created is true if the pool did not exist before.
	Created bool

	Added   []string
	Removed []string
}

// Changed reports whether the pool was touched.
func (r Reconciled) Changed() bool {
	return r.Created || len(r.Added) > 0 || len(r.Removed) > 0
}

// ReconcileToExternal makes the available count of sku equal external,
// creating the pool if needed. A second call with the same external is a
// no-op and writes nothing.
func (e *Engine) ReconcileToExternal(ctx context.Context, sku string, external int) (Reconciled, error) {
	unlock := e.locks.Lock(sku)
	defer unlock()
	return e.reconcile(ctx, sku, external, Ref{})
}

func (e *Engine) reconcile(ctx context.Context, sku string, external int, ref Ref) (Reconciled, error) {
	if external < 0 {
		external = 0
	}
	out := Reconciled{SKU: sku, External: external}
	_, err := e.store.UpdatePool(ctx, sku, func(p *pool.Pool, exists bool) error {
		out = Reconciled{SKU: sku, External: external, Created: !exists}
		adj, err := p.ReconcileTo(external)
		if err != nil {
			return err
		}
		if exists && !adj.Changed() {
			return store.ErrSkipWrite
		}
		out.Added, out.Removed = adj.Added, adj.Removed
		return nil
	})
	if err != nil {
		return Reconciled{}, persistenceError("reconcile", err).withSKU(sku)
	}
	if !out.Changed() {
		e.logger.Debug("pool already reconciled", "sku", sku, "external", external)
		return out, nil
	}

	var rows []activity.Activity
	rows = append(rows, e.rows(sku, out.Added, activity.ReasonCreated, ref)...)
	rows = append(rows, e.rows(sku, out.Removed, activity.ReasonRemoved, ref)...)
	e.emit(ctx, rows)

	e.logger.Info("reconciled pool",
		"sku", sku,
		"external", external,
		"created", out.Created,
		"added", len(out.Added),
		"removed", len(out.Removed),
	)
	return out, nil
}

// restock appends k fresh Available sub-units to an existing pool.
func (e *Engine) restock(ctx context.Context, sku string, k int) ([]string, error) {
	var added []string
	_, err := e.store.UpdatePool(ctx, sku, func(p *pool.Pool, exists bool) error {
		if !exists {
			return newError(ErrCodeNotFound, "no pool for sku", store.ErrPoolNotFound)
		}
		added = p.Append(k)
		return nil
	})
	if err != nil {
		return nil, persistenceError("restock", err).withSKU(sku)
	}
	e.emit(ctx, e.rows(sku, added, activity.ReasonRestocked, Ref{}))
	e.logger.Info("restocked pool", "sku", sku, "quantity", len(added))
	return added, nil
}

// externalQuantity asks the platform for the SKU's quantity. A SKU the
// platform does not know yields -1, meaning "no reconciliation target".
func (e *Engine) externalQuantity(ctx context.Context, sku string) (int, error) {
	q, err := e.platform.InventoryQuantity(ctx, sku)
	if errors.Is(err, platform.ErrSKUNotFound) {
		e.logger.Debug("platform has no quantity for sku", "sku", sku)
		return -1, nil
	}
	if err != nil {
		return 0, externalError(fmt.Sprintf("inventory quantity for %q", sku), err).withSKU(sku)
	}
	return q, nil
}

// poolExists reports whether sku has a pool.
func (e *Engine) poolExists(ctx context.Context, sku string) (bool, error) {
	_, err := e.store.GetPool(ctx, sku)
	if errors.Is(err, store.ErrPoolNotFound) {
		return false, nil
	}
	if err != nil {
		return false, persistenceError("load pool", err).withSKU(sku)
	}
	return true, nil
}
