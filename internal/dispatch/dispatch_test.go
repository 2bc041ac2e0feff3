package dispatch

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/subsku/internal/engine"
	"github.com/roach88/subsku/internal/platform"
	"github.com/roach88/subsku/internal/testutil"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestDecode_NormalizesIdentifiers(t *testing.T) {
	ev, err := Decode(TopicOrderCreated, []byte(`{
		"order_id": " 1001 ",
		"line_items": [{"id": "li1", "sku": "  café ", "quantity": 2}],
		"currency": "EUR"
	}`))
	require.NoError(t, err)

	oc, ok := ev.(*OrderCreated)
	require.True(t, ok)
	assert.Equal(t, "1001", oc.OrderID)
	assert.Equal(t, "café", oc.LineItems[0].SKU)
	assert.Equal(t, TopicOrderCreated, ev.Topic())
	assert.Equal(t, "1001", ev.Key())
}

func TestDecode_EveryTopic(t *testing.T) {
	tests := []struct {
		topic Topic
		body  string
		key   string
	}{
		{TopicOrderCreated, `{"order_id":"o1"}`, "o1"},
		{TopicOrderCancelled, `{"order_id":"o1"}`, "o1"},
		{TopicOrderReturned, `{"order_id":"o1"}`, "o1"},
		{TopicRefundCreated, `{"refund_id":"r1","order_id":"o1"}`, "r1"},
		{TopicOrderEdited, `{"order_edit_id":"e1","order_id":"o1"}`, "e1"},
		{TopicInventoryLevelUpdated, `{"inventory_item_id":"inv-1","available":3}`, "inv-1"},
		{TopicProductCreated, `{"product_id":"p1"}`, "p1"},
		{TopicProductUpdated, `{"product_id":"p1"}`, "p1"},
	}
	for _, tt := range tests {
		t.Run(string(tt.topic), func(t *testing.T) {
			ev, err := Decode(tt.topic, []byte(tt.body))
			require.NoError(t, err)
			assert.Equal(t, tt.topic, ev.Topic())
			assert.Equal(t, tt.key, ev.Key())
		})
	}
	assert.Len(t, Topics, len(tests))
}

func TestDecode_ReturnedFlagFollowsTopic(t *testing.T) {
	ev, err := Decode(TopicOrderReturned, []byte(`{"order_id":"o1","returned":false}`))
	require.NoError(t, err)
	assert.True(t, ev.(*OrderReturned).Returned)

	ev, err = Decode(TopicOrderCancelled, []byte(`{"order_id":"o1","returned":true}`))
	require.NoError(t, err)
	assert.False(t, ev.(*OrderCancelled).Returned)
}

func TestDecode_Errors(t *testing.T) {
	_, err := Decode("orders/paid", []byte(`{}`))
	assert.ErrorIs(t, err, ErrUnknownTopic)

	_, err = Decode(TopicOrderCreated, []byte(`{not json`))
	assert.ErrorIs(t, err, ErrInvalidPayload)

	_, err = Decode(TopicRefundCreated, []byte(`{"refund_id":"r1"}`))
	assert.ErrorIs(t, err, ErrInvalidPayload)
	assert.Contains(t, err.Error(), "order_id is required")

	_, err = Decode(TopicOrderCreated, []byte(`{"order_id":"  "}`))
	assert.ErrorIs(t, err, ErrInvalidPayload)
}

func TestDeliveryID_IgnoresKeyOrderAndWhitespace(t *testing.T) {
	a, err := DeliveryID(TopicOrderCreated, []byte(`{"order_id":"o1","line_items":[{"id":"li1","quantity":2}]}`))
	require.NoError(t, err)
	b, err := DeliveryID(TopicOrderCreated, []byte(`{ "line_items": [ {"quantity": 2, "id": "li1"} ], "order_id": "o1" }`))
	require.NoError(t, err)
	assert.Equal(t, a, b)

	c, err := DeliveryID(TopicOrderCancelled, []byte(`{"order_id":"o1","line_items":[{"id":"li1","quantity":2}]}`))
	require.NoError(t, err)
	assert.NotEqual(t, a, c, "topic is part of the identity")

	_, err = DeliveryID(TopicOrderCreated, []byte(`{"price": 1.5}`))
	assert.Error(t, err)
}

func TestParseEnvelopes(t *testing.T) {
	envs, err := ParseEnvelopes([]byte(`
events:
  - topic: orders/create
    payload:
      order_id: "o1"
      line_items:
        - {id: li1, sku: A, quantity: 2}
`))
	require.NoError(t, err)
	require.Len(t, envs, 1)

	ev, err := envs[0].Decode()
	require.NoError(t, err)
	oc := ev.(*OrderCreated)
	assert.Equal(t, []engine.LineItem{{ID: "li1", SKU: "A", Quantity: 2}}, oc.LineItems)
}

func TestParseEnvelopes_RejectsUnknownFieldsAndTopics(t *testing.T) {
	_, err := ParseEnvelopes([]byte("events:\n  - topic: orders/create\n    extra: 1\n"))
	assert.Error(t, err)

	_, err = ParseEnvelopes([]byte("events:\n  - topic: orders/paid\n"))
	assert.ErrorIs(t, err, ErrUnknownTopic)
}

func TestDispatcher_RoutesToEngine(t *testing.T) {
	s := testutil.OpenStore(t)
	p, err := platform.NewMemory(platform.State{
		Orders:         map[string]platform.OrderState{"o1": {}},
		Inventory:      map[string]int{"A": 0},
		InventoryItems: map[string]string{"inv-1": "A"},
	})
	require.NoError(t, err)
	d := New(engine.New(s, p, engine.WithLogger(quietLogger())), quietLogger())
	ctx := t.Context()

	ev, err := Decode(TopicOrderCreated, []byte(`{"order_id":"o1","line_items":[{"id":"li1","sku":"A","quantity":2}]}`))
	require.NoError(t, err)
	out := d.Dispatch(ctx, ev)
	require.True(t, out.Success, out.Error)
	assert.Equal(t, engine.KindOrderCreated, out.Data.Kind)
	assert.Equal(t, []string{"A-0001", "A-0002"}, out.Data.Items[0].SubUnits)

	ev, err = Decode(TopicOrderCancelled, []byte(`{"order_id":"o1","line_items":[{"id":"li1","sku":"A","quantity":1}]}`))
	require.NoError(t, err)
	out = d.Dispatch(ctx, ev)
	require.True(t, out.Success, out.Error)
	assert.Equal(t, engine.KindOrderCancelled, out.Data.Kind)
	assert.Equal(t, []string{"A-0002"}, out.Data.Items[0].SubUnits)

	ev, err = Decode(TopicInventoryLevelUpdated, []byte(`{"inventory_item_id":"inv-9","available":1}`))
	require.NoError(t, err)
	out = d.Dispatch(ctx, ev)
	assert.False(t, out.Success)
	assert.True(t, engine.IsNotFound(out.Err))
	assert.True(t, out.Permanent)
	assert.NotEmpty(t, out.Error)
}
