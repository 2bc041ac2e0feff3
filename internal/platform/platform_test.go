package platform

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/roach88/subsku/internal/ledger"
)

func seeded(t *testing.T) *Memory {
	t.Helper()
	m, err := NewMemory(State{
		Orders: map[string]OrderState{
			"o1": {
				LineItems: []LineItem{{ID: "li1", SKU: "A", Quantity: 2}},
				Ledger:    map[string][]string{"li1": {"A-0001", "A-0002"}},
			},
		},
		Inventory:      map[string]int{"A": 5},
		InventoryItems: map[string]string{"inv-1": "A"},
	})
	require.NoError(t, err)
	return m
}

func TestMemory_SeededState(t *testing.T) {
	m := seeded(t)
	ctx := t.Context()

	items, err := m.OrderLineItems(ctx, "o1")
	require.NoError(t, err)
	assert.Equal(t, LineItem{ID: "li1", SKU: "A", Quantity: 2}, items["li1"])

	l, err := m.OrderLedger(ctx, "o1")
	require.NoError(t, err)
	assert.Equal(t, ledger.Ledger{"li1": {"A-0001", "A-0002"}}, l)

	q, err := m.InventoryQuantity(ctx, "A")
	require.NoError(t, err)
	assert.Equal(t, 5, q)

	sku, err := m.SKUForInventoryItem(ctx, "inv-1")
	require.NoError(t, err)
	assert.Equal(t, "A", sku)
}

func TestMemory_NotFound(t *testing.T) {
	m := seeded(t)
	ctx := t.Context()

	_, err := m.OrderLedger(ctx, "nope")
	assert.ErrorIs(t, err, ErrOrderNotFound)
	_, err = m.OrderLineItems(ctx, "nope")
	assert.ErrorIs(t, err, ErrOrderNotFound)
	assert.ErrorIs(t, m.SetOrderLedger(ctx, "nope", ledger.Ledger{}), ErrOrderNotFound)
	_, err = m.InventoryQuantity(ctx, "Z")
	assert.ErrorIs(t, err, ErrSKUNotFound)
	_, err = m.SKUForInventoryItem(ctx, "inv-9")
	assert.ErrorIs(t, err, ErrInventoryItemNotFound)
}

func TestMemory_SetOrderLedgerRewritesWhole(t *testing.T) {
	m := seeded(t)
	ctx := t.Context()

	require.NoError(t, m.SetOrderLedger(ctx, "o1", ledger.Ledger{"li2": {"B-0001"}}))
	assert.Equal(t, ledger.Ledger{"li2": {"B-0001"}}, m.Ledger("o1"))
	assert.Equal(t, 1, m.Calls("SetOrderLedger"))
}

func TestMemory_FailOn(t *testing.T) {
	m := seeded(t)
	boom := errors.New("boom")

	m.FailOn("InventoryQuantity", boom)
	_, err := m.InventoryQuantity(t.Context(), "A")
	assert.ErrorIs(t, err, boom)

	m.FailOn("InventoryQuantity", nil)
	_, err = m.InventoryQuantity(t.Context(), "A")
	assert.NoError(t, err)
	assert.Equal(t, 2, m.Calls("InventoryQuantity"))
}

func TestLimited_DelegatesAndPaces(t *testing.T) {
	m := seeded(t)
	l := NewLimited(m, rate.NewLimiter(rate.Every(time.Hour), 1))

	q, err := l.InventoryQuantity(t.Context(), "A")
	require.NoError(t, err)
	assert.Equal(t, 5, q)

	// Bucket is empty; the next call cannot get a token before the deadline.
	ctx, cancel := context.WithTimeout(t.Context(), 20*time.Millisecond)
	defer cancel()
	_, err = l.OrderLedger(ctx, "o1")
	assert.Error(t, err)
	assert.Equal(t, 0, m.Calls("OrderLedger"), "paced call must not reach the platform")
}

func TestLimited_NilLimiterUnpaced(t *testing.T) {
	m := seeded(t)
	l := NewLimited(m, nil)

	for i := 0; i < 50; i++ {
		_, err := l.SKUForInventoryItem(t.Context(), "inv-1")
		require.NoError(t, err)
	}
	assert.Equal(t, 50, m.Calls("SKUForInventoryItem"))
}

func TestNewLimiter(t *testing.T) {
	assert.Equal(t, rate.Inf, NewLimiter(0, 0).Limit())
	lim := NewLimiter(2, 0)
	assert.Equal(t, rate.Limit(2), lim.Limit())
	assert.Equal(t, 1, lim.Burst())
}
