package activity

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRows(t *testing.T) {
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	rows := Rows("ABC", []string{"ABC-0001", "ABC-0002"}, ReasonReserved, "o-1", "li-1", at)

	require.Len(t, rows, 2)
	assert.Equal(t, "ABC-0002", rows[1].SubUnit)
	assert.Equal(t, 2, rows[0].Quantity)
	assert.Equal(t, "o-1", rows[0].OrderID)
	assert.Equal(t, at, rows[1].At)
}

func TestRecorder_AssignsSeq(t *testing.T) {
	r := &Recorder{}
	ctx := context.Background()

	require.NoError(t, r.Append(ctx, Rows("A", []string{"A-0001"}, ReasonCreated, "", "", time.Time{})))
	require.NoError(t, r.Append(ctx, Rows("A", []string{"A-0002", "A-0003"}, ReasonCreated, "", "", time.Time{})))
	require.NoError(t, r.Append(ctx, nil))

	rows := r.Rows()
	require.Len(t, rows, 3)
	for i, row := range rows {
		assert.Equal(t, int64(i+1), row.Seq)
	}
}
