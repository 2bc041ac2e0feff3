// Package platform defines the engine's view of the external e-commerce
// platform: order line items, the order-scoped assignment ledger metadata,
// live inventory quantities and inventory-item to SKU lookups.
package platform

import (
	"context"
	"errors"

	"github.com/roach88/subsku/internal/ledger"
)

var (
	// ErrOrderNotFound is returned when the platform has no such order.
	ErrOrderNotFound = errors.New("order not found")

	// ErrSKUNotFound is returned when the platform has no inventory for a SKU.
	ErrSKUNotFound = errors.New("sku not found")

	// ErrInventoryItemNotFound is returned when an inventory item id cannot
	// be resolved to a SKU.
	ErrInventoryItemNotFound = errors.New("inventory item not found")
)

// LineItem is an order line as the platform reports it.
type LineItem struct {
	ID       string `yaml:"id" json:"id"`
	SKU      string `yaml:"sku" json:"sku"`
	Quantity int    `yaml:"quantity" json:"quantity"`
}

// Client is the external platform collaborator.
//
// Implementations must be safe for concurrent use; the engine fans out
// line items of one order across goroutines.
type Client interface {
	// OrderLineItems returns the order's line items keyed by line item id.
	OrderLineItems(ctx context.Context, orderID string) (map[string]LineItem, error)

	// OrderLedger reads the assignment ledger stored on the order.
	// An order with no ledger yet returns an empty Ledger.
	OrderLedger(ctx context.Context, orderID string) (ledger.Ledger, error)

	// SetOrderLedger replaces the order's ledger metadata in one write.
	SetOrderLedger(ctx context.Context, orderID string, l ledger.Ledger) error

	// InventoryQuantity returns the platform's available quantity for sku.
	InventoryQuantity(ctx context.Context, sku string) (int, error)

	// SKUForInventoryItem resolves an inventory item id to its SKU.
	SKUForInventoryItem(ctx context.Context, inventoryItemID string) (string, error)
}
