package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/subsku/internal/activity"
)

func TestSnapshot_RoundTripAndUpsert(t *testing.T) {
	s := createTestStore(t)
	ctx := t.Context()

	empty, err := s.GetSnapshot(ctx, "p1")
	require.NoError(t, err)
	assert.Empty(t, empty)

	require.NoError(t, s.PutSnapshot(ctx, []VariantSnapshot{
		{ProductID: "p1", SKU: "A", Quantity: 3, WeightGrams: 100},
		{ProductID: "p1", SKU: "B", Quantity: 1},
	}))
	require.NoError(t, s.PutSnapshot(ctx, []VariantSnapshot{
		{ProductID: "p1", SKU: "A", Quantity: 5, WeightGrams: 120},
	}))

	snap, err := s.GetSnapshot(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, VariantSnapshot{ProductID: "p1", SKU: "A", Quantity: 5, WeightGrams: 120}, snap["A"])
	assert.Equal(t, 1, snap["B"].Quantity)
}

func TestMarkProcessed_Idempotent(t *testing.T) {
	s := createTestStore(t)
	ctx := t.Context()

	done, err := s.IsProcessed(ctx, "order_created", "o1")
	require.NoError(t, err)
	assert.False(t, done)

	inserted, err := s.MarkProcessed(ctx, "order_created", "o1")
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = s.MarkProcessed(ctx, "order_created", "o1")
	require.NoError(t, err)
	assert.False(t, inserted, "second mark should be a no-op")

	done, err = s.IsProcessed(ctx, "order_created", "o1")
	require.NoError(t, err)
	assert.True(t, done)

	other, err := s.IsProcessed(ctx, "refund", "o1")
	require.NoError(t, err)
	assert.False(t, other, "markers are scoped by kind")
}

func TestActivity_AppendAndList(t *testing.T) {
	s := createTestStore(t)
	ctx := t.Context()
	at := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, s.Append(ctx, activity.Rows("A", []string{"A-0001", "A-0002"}, activity.ReasonReserved, "o1", "li1", at)))
	require.NoError(t, s.Append(ctx, activity.Rows("B", []string{"B-0001"}, activity.ReasonCreated, "", "", at)))
	require.NoError(t, s.Append(ctx, nil))

	all, err := s.ListActivity(ctx, ActivityFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, int64(1), all[0].Seq)
	assert.Equal(t, "A-0001", all[0].SubUnit)
	assert.Equal(t, 2, all[0].Quantity)
	assert.True(t, at.Equal(all[0].At))

	byOrder, err := s.ListActivity(ctx, ActivityFilter{OrderID: "o1"})
	require.NoError(t, err)
	assert.Len(t, byOrder, 2)

	bySKU, err := s.ListActivity(ctx, ActivityFilter{SKU: "B"})
	require.NoError(t, err)
	require.Len(t, bySKU, 1)
	assert.Equal(t, activity.ReasonCreated, bySKU[0].Reason)
}
