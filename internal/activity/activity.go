// Package activity defines the structured facts the engine emits for every
// mutated sub-unit, and the sink interface that receives them.
//
// The sink is the seam to the human-facing log (a spreadsheet in production).
// The engine only produces facts; formatting is the sink's concern.
package activity

import (
	"context"
	"sync"
	"time"
)

// Reason says why a sub-unit changed.
type Reason string

const (
	ReasonCreated   Reason = "created"   // appended to the pool (reconcile, product, top-up)
	ReasonReserved  Reason = "reserved"  // marked Unavailable for a line item
	ReasonReleased  Reason = "released"  // returned to Available by cancel/refund/edit
	ReasonRemoved   Reason = "removed"   // deleted to shrink the pool
	ReasonRestocked Reason = "restocked" // created by a product quantity increase
)

// Activity is one row of the activity log.
type Activity struct {
	Seq        int64     `json:"seq" db:"seq"`
	SKU        string    `json:"sku" db:"sku"`
	SubUnit    string    `json:"sub_unit" db:"sub_unit"`
	Reason     Reason    `json:"reason" db:"reason"`
	Quantity   int       `json:"quantity" db:"quantity"`
	OrderID    string    `json:"order_id,omitempty" db:"order_id"`
	LineItemID string    `json:"line_item_id,omitempty" db:"line_item_id"`
	At         time.Time `json:"at" db:"-"`
}

// Sink receives activity facts. Implementations must accept an empty batch.
type Sink interface {
	Append(ctx context.Context, rows []Activity) error
}

// Rows builds one Activity per sub-unit name, sharing the other fields.
func Rows(sku string, names []string, reason Reason, orderID, lineItemID string, at time.Time) []Activity {
	rows := make([]Activity, 0, len(names))
	for _, n := range names {
		rows = append(rows, Activity{
			SKU:        sku,
			SubUnit:    n,
			Reason:     reason,
			Quantity:   len(names),
			OrderID:    orderID,
			LineItemID: lineItemID,
			At:         at,
		})
	}
	return rows
}

// Recorder is an in-memory Sink. It assigns sequence numbers in append order.
//
// Thread-safety: safe for concurrent use.
type Recorder struct {
	mu   sync.Mutex
	rows []Activity
}

// Append implements Sink.
func (r *Recorder) Append(_ context.Context, rows []Activity) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, row := range rows {
		row.Seq = int64(len(r.rows) + 1)
		r.rows = append(r.rows, row)
	}
	return nil
}

// Rows returns a copy of everything recorded so far.
func (r *Recorder) Rows() []Activity {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Activity, len(r.rows))
	copy(out, r.rows)
	return out
}

// Discard is a Sink that drops everything.
type Discard struct{}

// Append implements Sink.
func (Discard) Append(context.Context, []Activity) error { return nil }
