package dispatch

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roach88/subsku/internal/engine"
)

// Flows is the set of engine operations the dispatcher routes to.
// *engine.Engine implements it.
type Flows interface {
	OrderCreated(ctx context.Context, ev engine.OrderCreated) (*engine.BatchResult, error)
	OrderClosed(ctx context.Context, ev engine.OrderClosed) (*engine.BatchResult, error)
	Refund(ctx context.Context, ev engine.RefundCreated) (*engine.BatchResult, error)
	OrderEdited(ctx context.Context, ev engine.OrderEdited) (*engine.BatchResult, error)
	InventoryLevel(ctx context.Context, ev engine.InventoryLevelUpdated) (*engine.BatchResult, error)
	ProductCreated(ctx context.Context, ev engine.ProductChanged) (*engine.BatchResult, error)
	ProductUpdated(ctx context.Context, ev engine.ProductChanged) (*engine.BatchResult, error)
}

var _ Flows = (*engine.Engine)(nil)

// Outcome is the uniform result of dispatching one event:
// success plus data, or an error.
type Outcome struct {
	Topic   Topic               `json:"topic"`
	Key     string              `json:"key"`
	Success bool                `json:"success"`
	Data    *engine.BatchResult `json:"data,omitempty"`
	Error   string              `json:"error,omitempty"`

	// Err is the whole-operation error, or the joined per-item errors.
	Err error `json:"-"`

	// Permanent is set when rerunning the event cannot help: the
	// whole-operation error is permanent, or every failed item is.
	Permanent bool `json:"-"`
}

// Dispatcher routes events to engine flows.
type Dispatcher struct {
	flows  Flows
	logger *slog.Logger
}

// New creates a Dispatcher. A nil logger means slog.Default().
func New(flows Flows, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{flows: flows, logger: logger}
}

// Dispatch runs the one engine flow for ev.
func (d *Dispatcher) Dispatch(ctx context.Context, ev Event) Outcome {
	out := Outcome{Topic: ev.Topic(), Key: ev.Key()}

	var (
		res *engine.BatchResult
		err error
	)
	switch e := ev.(type) {
	case *OrderCreated:
		res, err = d.flows.OrderCreated(ctx, e.OrderCreated)
	case *OrderCancelled:
		res, err = d.flows.OrderClosed(ctx, e.OrderClosed)
	case *OrderReturned:
		res, err = d.flows.OrderClosed(ctx, e.OrderClosed)
	case *RefundCreated:
		res, err = d.flows.Refund(ctx, e.RefundCreated)
	case *OrderEdited:
		res, err = d.flows.OrderEdited(ctx, e.OrderEdited)
	case *InventoryLevelUpdated:
		res, err = d.flows.InventoryLevel(ctx, e.InventoryLevelUpdated)
	case *ProductCreated:
		res, err = d.flows.ProductCreated(ctx, e.ProductChanged)
	case *ProductUpdated:
		res, err = d.flows.ProductUpdated(ctx, e.ProductChanged)
	default:
		err = fmt.Errorf("%w: %T", ErrUnknownTopic, ev)
	}

	out.Data = res
	if err != nil {
		out.Permanent = engine.IsPermanent(err)
	} else if res != nil {
		err = res.Err()
		out.Permanent = res.Permanent()
	}
	if err != nil {
		out.Err = err
		out.Error = err.Error()
		d.logger.Warn("dispatch failed", "topic", out.Topic, "key", out.Key, "error", err)
		return out
	}
	out.Success = true
	d.logger.Debug("dispatched", "topic", out.Topic, "key", out.Key)
	return out
}
