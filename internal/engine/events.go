package engine

// Kind names the event an engine flow handles.
type Kind string

const (
	KindOrderCreated          Kind = "order_created"
	KindOrderCancelled        Kind = "order_cancelled"
	KindOrderReturned         Kind = "order_returned"
	KindRefundCreated         Kind = "refund_created"
	KindOrderEdited           Kind = "order_edited"
	KindInventoryLevelUpdated Kind = "inventory_level_updated"
	KindProductCreated        Kind = "product_created"
	KindProductUpdated        Kind = "product_updated"
)

// LineItem is one order line in an order event.
type LineItem struct {
	ID       string `json:"id"`
	SKU      string `json:"sku"`
	Quantity int    `json:"quantity"`
}

// OrderCreated is a new order.
type OrderCreated struct {
	OrderID   string     `json:"order_id"`
	LineItems []LineItem `json:"line_items"`
}

// OrderClosed is a cancelled or returned order. Quantity on each line item
// is how many units to hand back.
type OrderClosed struct {
	OrderID   string     `json:"order_id"`
	Returned  bool       `json:"returned,omitempty"`
	LineItems []LineItem `json:"line_items"`
}

// RefundLineItem is one refunded line.
type RefundLineItem struct {
	LineItemID string `json:"line_item_id"`
	Quantity   int    `json:"quantity"`
}

// RefundCreated is a refund against an order.
type RefundCreated struct {
	RefundID        string           `json:"refund_id"`
	OrderID         string           `json:"order_id"`
	RefundLineItems []RefundLineItem `json:"refund_line_items"`
}

// EditDelta is a quantity change to one line item in an order edit.
type EditDelta struct {
	LineItemID string `json:"line_item_id"`
	Delta      int    `json:"delta"`
}

// OrderEdited is a committed order edit.
type OrderEdited struct {
	OrderEditID string      `json:"order_edit_id"`
	OrderID     string      `json:"order_id"`
	Additions   []EditDelta `json:"additions"`
	Removals    []EditDelta `json:"removals"`
}

// InventoryLevelUpdated reports the platform's available quantity for an
// inventory item. The SKU is resolved through the platform.
type InventoryLevelUpdated struct {
	InventoryItemID string `json:"inventory_item_id"`
	Available       int    `json:"available"`
}

// Variant is one product variant.
type Variant struct {
	SKU               string `json:"sku"`
	InventoryQuantity int    `json:"inventory_quantity"`
	WeightGrams       int    `json:"weight_grams"`
}

// ProductChanged is a product create or update.
type ProductChanged struct {
	ProductID string    `json:"product_id"`
	Title     string    `json:"title"`
	Vendor    string    `json:"vendor"`
	Variants  []Variant `json:"variants"`
}
