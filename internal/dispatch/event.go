// Package dispatch is the boundary between webhook payloads and the engine.
//
// Each webhook topic has its own event type. Decode turns a raw JSON body
// into one of them, trimming and NFC-normalizing identifiers and rejecting
// payloads that lack the ids the engine keys on. The Dispatcher then routes
// the typed event to exactly one engine flow.
package dispatch

import (
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/roach88/subsku/internal/engine"
)

// Topic is a webhook topic.
type Topic string

const (
	TopicOrderCreated          Topic = "orders/create"
	TopicOrderCancelled        Topic = "orders/cancelled"
	TopicOrderReturned         Topic = "orders/returned"
	TopicRefundCreated         Topic = "refunds/create"
	TopicOrderEdited           Topic = "orders/edited"
	TopicInventoryLevelUpdated Topic = "inventory_levels/update"
	TopicProductCreated        Topic = "products/create"
	TopicProductUpdated        Topic = "products/update"
)

// Topics lists every supported topic.
var Topics = []Topic{
	TopicOrderCreated,
	TopicOrderCancelled,
	TopicOrderReturned,
	TopicRefundCreated,
	TopicOrderEdited,
	TopicInventoryLevelUpdated,
	TopicProductCreated,
	TopicProductUpdated,
}

// Event is a decoded, validated webhook payload. The concrete types below
// are the only implementations.
type Event interface {
	Topic() Topic

	// Key is the event's natural identifier (order, refund, edit, inventory
	// item or product id), used in logs.
	Key() string

	normalize()
	validate() error
}

// OrderCreated is an orders/create payload.
type OrderCreated struct{ engine.OrderCreated }

// OrderCancelled is an orders/cancelled payload.
type OrderCancelled struct{ engine.OrderClosed }

// OrderReturned is an orders/returned payload.
type OrderReturned struct{ engine.OrderClosed }

// RefundCreated is a refunds/create payload.
type RefundCreated struct{ engine.RefundCreated }

// OrderEdited is an orders/edited payload.
type OrderEdited struct{ engine.OrderEdited }

// InventoryLevelUpdated is an inventory_levels/update payload.
type InventoryLevelUpdated struct{ engine.InventoryLevelUpdated }

// ProductCreated is a products/create payload.
type ProductCreated struct{ engine.ProductChanged }

// ProductUpdated is a products/update payload.
type ProductUpdated struct{ engine.ProductChanged }

func (OrderCreated) Topic() Topic          { return TopicOrderCreated }
func (OrderCancelled) Topic() Topic        { return TopicOrderCancelled }
func (OrderReturned) Topic() Topic         { return TopicOrderReturned }
func (RefundCreated) Topic() Topic         { return TopicRefundCreated }
func (OrderEdited) Topic() Topic           { return TopicOrderEdited }
func (InventoryLevelUpdated) Topic() Topic { return TopicInventoryLevelUpdated }
func (ProductCreated) Topic() Topic        { return TopicProductCreated }
func (ProductUpdated) Topic() Topic        { return TopicProductUpdated }

func (e OrderCreated) Key() string          { return e.OrderID }
func (e OrderCancelled) Key() string        { return e.OrderID }
func (e OrderReturned) Key() string         { return e.OrderID }
func (e RefundCreated) Key() string         { return e.RefundID }
func (e OrderEdited) Key() string           { return e.OrderEditID }
func (e InventoryLevelUpdated) Key() string { return e.InventoryItemID }
func (e ProductCreated) Key() string        { return e.ProductID }
func (e ProductUpdated) Key() string        { return e.ProductID }

// clean trims and NFC-normalizes an identifier, so visually identical SKUs
// from different sources map to one pool.
func clean(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}

func cleanLineItems(items []engine.LineItem) {
	for i := range items {
		items[i].ID = clean(items[i].ID)
		items[i].SKU = clean(items[i].SKU)
	}
}

func cleanDeltas(ds []engine.EditDelta) {
	for i := range ds {
		ds[i].LineItemID = clean(ds[i].LineItemID)
	}
}

func (e *OrderCreated) normalize() {
	e.OrderID = clean(e.OrderID)
	cleanLineItems(e.LineItems)
}

func (e *OrderCancelled) normalize() {
	e.OrderID = clean(e.OrderID)
	e.Returned = false
	cleanLineItems(e.LineItems)
}

func (e *OrderReturned) normalize() {
	e.OrderID = clean(e.OrderID)
	e.Returned = true
	cleanLineItems(e.LineItems)
}

func (e *RefundCreated) normalize() {
	e.RefundID = clean(e.RefundID)
	e.OrderID = clean(e.OrderID)
	for i := range e.RefundLineItems {
		e.RefundLineItems[i].LineItemID = clean(e.RefundLineItems[i].LineItemID)
	}
}

func (e *OrderEdited) normalize() {
	e.OrderEditID = clean(e.OrderEditID)
	e.OrderID = clean(e.OrderID)
	cleanDeltas(e.Additions)
	cleanDeltas(e.Removals)
}

func (e *InventoryLevelUpdated) normalize() {
	e.InventoryItemID = clean(e.InventoryItemID)
}

func normalizeProduct(p *engine.ProductChanged) {
	p.ProductID = clean(p.ProductID)
	for i := range p.Variants {
		p.Variants[i].SKU = clean(p.Variants[i].SKU)
	}
}

func (e *ProductCreated) normalize() { normalizeProduct(&e.ProductChanged) }
func (e *ProductUpdated) normalize() { normalizeProduct(&e.ProductChanged) }
