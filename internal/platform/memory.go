package platform

import (
	"context"
	"fmt"
	"sync"

	"github.com/roach88/subsku/internal/ledger"
)

// OrderState seeds one order in a Memory platform.
type OrderState struct {
	LineItems []LineItem          `yaml:"line_items"`
	Ledger    map[string][]string `yaml:"ledger,omitempty"`
}

// State seeds a Memory platform. It is the shape scenario and fixture files
// use for their `platform:` block.
type State struct {
	Orders         map[string]OrderState `yaml:"orders,omitempty"`
	Inventory      map[string]int        `yaml:"inventory,omitempty"`
	InventoryItems map[string]string     `yaml:"inventory_items,omitempty"`
}

type memoryOrder struct {
	lineItems map[string]LineItem
	metafield string
}

// Memory is an in-process platform used by tests, the scenario harness and
// the dispatch command. The ledger is held in its encoded metadata form so
// every read and write goes through ledger.Encode/Decode.
//
// Thread-safety: safe for concurrent use.
type Memory struct {
	mu             sync.Mutex
	orders         map[string]*memoryOrder
	inventory      map[string]int
	inventoryItems map[string]string
	failures       map[string]error
	calls          map[string]int
}

// NewMemory builds a Memory platform from seed state.
func NewMemory(st State) (*Memory, error) {
	m := &Memory{
		orders:         make(map[string]*memoryOrder),
		inventory:      make(map[string]int),
		inventoryItems: make(map[string]string),
		failures:       make(map[string]error),
		calls:          make(map[string]int),
	}
	for id, o := range st.Orders {
		m.PutOrder(id, o.LineItems...)
		if len(o.Ledger) > 0 {
			meta, err := ledger.Encode(ledger.Ledger(o.Ledger))
			if err != nil {
				return nil, fmt.Errorf("seed order %q: %w", id, err)
			}
			m.orders[id].metafield = meta
		}
	}
	for sku, q := range st.Inventory {
		m.inventory[sku] = q
	}
	for item, sku := range st.InventoryItems {
		m.inventoryItems[item] = sku
	}
	return m, nil
}

// PutOrder creates or replaces an order's line items, keeping its ledger.
func (m *Memory) PutOrder(orderID string, items ...LineItem) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[orderID]
	if !ok {
		o = &memoryOrder{}
		m.orders[orderID] = o
	}
	o.lineItems = make(map[string]LineItem, len(items))
	for _, li := range items {
		o.lineItems[li.ID] = li
	}
}

// SetInventory sets the platform quantity for sku.
func (m *Memory) SetInventory(sku string, quantity int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inventory[sku] = quantity
}

// MapInventoryItem links an inventory item id to a SKU.
func (m *Memory) MapInventoryItem(inventoryItemID, sku string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inventoryItems[inventoryItemID] = sku
}

// FailOn makes every subsequent call to method return err. A nil err clears
// the failure. Method names match the Client interface.
func (m *Memory) FailOn(method string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.failures, method)
		return
	}
	m.failures[method] = err
}

// Calls returns how many times method was invoked.
func (m *Memory) Calls(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[method]
}

// Ledger returns the decoded ledger of an order, or nil if unknown.
func (m *Memory) Ledger(orderID string) ledger.Ledger {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[orderID]
	if !ok {
		return nil
	}
	l, err := ledger.Decode(o.metafield)
	if err != nil {
		return nil
	}
	return l
}

// enter records the call and returns any injected failure. Caller holds mu.
func (m *Memory) enter(method string) error {
	m.calls[method]++
	return m.failures[method]
}

// OrderLineItems implements Client.
func (m *Memory) OrderLineItems(_ context.Context, orderID string) (map[string]LineItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("OrderLineItems"); err != nil {
		return nil, err
	}
	o, ok := m.orders[orderID]
	if !ok {
		return nil, fmt.Errorf("order %q: %w", orderID, ErrOrderNotFound)
	}
	out := make(map[string]LineItem, len(o.lineItems))
	for k, v := range o.lineItems {
		out[k] = v
	}
	return out, nil
}

// OrderLedger implements Client.
func (m *Memory) OrderLedger(_ context.Context, orderID string) (ledger.Ledger, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("OrderLedger"); err != nil {
		return nil, err
	}
	o, ok := m.orders[orderID]
	if !ok {
		return nil, fmt.Errorf("order %q: %w", orderID, ErrOrderNotFound)
	}
	return ledger.Decode(o.metafield)
}

// SetOrderLedger implements Client.
func (m *Memory) SetOrderLedger(_ context.Context, orderID string, l ledger.Ledger) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("SetOrderLedger"); err != nil {
		return err
	}
	o, ok := m.orders[orderID]
	if !ok {
		return fmt.Errorf("order %q: %w", orderID, ErrOrderNotFound)
	}
	meta, err := ledger.Encode(l)
	if err != nil {
		return err
	}
	o.metafield = meta
	return nil
}

// InventoryQuantity implements Client.
func (m *Memory) InventoryQuantity(_ context.Context, sku string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("InventoryQuantity"); err != nil {
		return 0, err
	}
	q, ok := m.inventory[sku]
	if !ok {
		return 0, fmt.Errorf("inventory %q: %w", sku, ErrSKUNotFound)
	}
	return q, nil
}

// SKUForInventoryItem implements Client.
func (m *Memory) SKUForInventoryItem(_ context.Context, inventoryItemID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("SKUForInventoryItem"); err != nil {
		return "", err
	}
	sku, ok := m.inventoryItems[inventoryItemID]
	if !ok {
		return "", fmt.Errorf("inventory item %q: %w", inventoryItemID, ErrInventoryItemNotFound)
	}
	return sku, nil
}

var _ Client = (*Memory)(nil)
