package engine

import (
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/subsku/internal/activity"
	"github.com/roach88/subsku/internal/platform"
	"github.com/roach88/subsku/internal/pool"
	"github.com/roach88/subsku/internal/store"
	"github.com/roach88/subsku/internal/testutil"
)

type fixture struct {
	engine   *Engine
	store    *store.Store
	platform *platform.Memory
	activity *activity.Recorder
}

func newFixture(t *testing.T, st platform.State) *fixture {
	t.Helper()
	s := testutil.OpenStore(t)
	p, err := platform.NewMemory(st)
	require.NoError(t, err)
	rec := &activity.Recorder{}
	e := New(s, p,
		WithSink(rec),
		WithClock(testutil.NewDeterministicClock()),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	return &fixture{engine: e, store: s, platform: p, activity: rec}
}

func availableNames(t *testing.T, s *store.Store, sku string) []string {
	t.Helper()
	return pool.Query(testutil.LoadPool(t, s, sku)).Names()
}

func assertConsistent(t *testing.T, s *store.Store, sku string) pool.Availability {
	t.Helper()
	a := pool.Query(testutil.LoadPool(t, s, sku))
	assert.Equal(t, a.Total, a.Available+a.Unavailable())
	return a
}

func reasons(rows []activity.Activity) []activity.Reason {
	out := make([]activity.Reason, len(rows))
	for i, r := range rows {
		out[i] = r.Reason
	}
	return out
}

func TestReserve_EmptyPoolCreatesAndReserves(t *testing.T) {
	f := newFixture(t, platform.State{})
	testutil.SeedPool(t, f.store, "ABC", 0, 0)

	r, err := f.engine.Reserve(t.Context(), "ABC", 3, -1, Ref{})
	require.NoError(t, err)
	assert.Equal(t, []string{"ABC-0001", "ABC-0002", "ABC-0003"}, r.Names)
	assert.Equal(t, r.Names, r.Created)

	a := assertConsistent(t, f.store, "ABC")
	assert.Equal(t, 3, a.Total)
	assert.Equal(t, 0, a.Available)

	assert.Equal(t, []activity.Reason{
		activity.ReasonCreated, activity.ReasonCreated, activity.ReasonCreated,
		activity.ReasonReserved, activity.ReasonReserved, activity.ReasonReserved,
	}, reasons(f.activity.Rows()))
}

func TestReserve_UnknownSKUIsNotFound(t *testing.T) {
	f := newFixture(t, platform.State{})

	_, err := f.engine.Reserve(t.Context(), "NOPE", 1, -1, Ref{})
	require.Error(t, err)
	assert.True(t, IsNotFound(err))

	var e *Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, "NOPE", e.SKU)
}

func TestReserve_InvalidQuantity(t *testing.T) {
	f := newFixture(t, platform.State{})
	testutil.SeedPool(t, f.store, "A", 1, 0)

	_, err := f.engine.Reserve(t.Context(), "A", 0, -1, Ref{})
	assert.True(t, IsInvalidInput(err))
}

func TestReserve_TopsUpToExternal(t *testing.T) {
	f := newFixture(t, platform.State{})
	testutil.SeedPool(t, f.store, "A", 1, 0)

	r, err := f.engine.Reserve(t.Context(), "A", 2, 4, Ref{OrderID: "o1", LineItemID: "li1"})
	require.NoError(t, err)
	assert.Equal(t, []string{"A-0001", "A-0002"}, r.Names)
	assert.Equal(t, []string{"A-0002"}, r.Created)
	assert.Equal(t, []string{"A-0003", "A-0004", "A-0005", "A-0006"}, r.ToppedUp)

	a := assertConsistent(t, f.store, "A")
	assert.Equal(t, 4, a.Available)
	assert.Equal(t, 6, a.Total)
}

func TestReserve_TopUpNeverRemoves(t *testing.T) {
	f := newFixture(t, platform.State{})
	testutil.SeedPool(t, f.store, "A", 5, 0)

	r, err := f.engine.Reserve(t.Context(), "A", 1, 0, Ref{})
	require.NoError(t, err)
	assert.Empty(t, r.ToppedUp)
	assert.Equal(t, 4, assertConsistent(t, f.store, "A").Available)
}

func TestReconcileToExternal_RemovesTailFirst(t *testing.T) {
	f := newFixture(t, platform.State{})
	testutil.SeedPool(t, f.store, "A", 5, 0)

	rec, err := f.engine.ReconcileToExternal(t.Context(), "A", 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"A-0005", "A-0004"}, rec.Removed)
	assert.Equal(t, []string{"A-0001", "A-0002", "A-0003"}, availableNames(t, f.store, "A"))
}

func TestReconcileToExternal_Idempotent(t *testing.T) {
	f := newFixture(t, platform.State{})
	testutil.SeedPool(t, f.store, "A", 2, 1)

	first, err := f.engine.ReconcileToExternal(t.Context(), "A", 4)
	require.NoError(t, err)
	assert.Equal(t, []string{"A-0004", "A-0005"}, first.Added)
	before := testutil.LoadPool(t, f.store, "A")

	second, err := f.engine.ReconcileToExternal(t.Context(), "A", 4)
	require.NoError(t, err)
	assert.False(t, second.Changed())

	after := testutil.LoadPool(t, f.store, "A")
	assert.Equal(t, before, after, "second reconcile must not write")
}

func TestReconcileToExternal_CreatesPool(t *testing.T) {
	f := newFixture(t, platform.State{})

	rec, err := f.engine.ReconcileToExternal(t.Context(), "NEW", 2)
	require.NoError(t, err)
	assert.True(t, rec.Created)
	assert.Equal(t, []string{"NEW-0001", "NEW-0002"}, rec.Added)

	empty, err := f.engine.ReconcileToExternal(t.Context(), "ZERO", 0)
	require.NoError(t, err)
	assert.True(t, empty.Created)
	assert.Equal(t, 0, assertConsistent(t, f.store, "ZERO").Total)
}

func TestRemoveAvailable_InsufficientLeavesPoolUnchanged(t *testing.T) {
	f := newFixture(t, platform.State{})
	testutil.SeedPool(t, f.store, "A", 1, 4)
	before := testutil.LoadPool(t, f.store, "A")

	_, err := f.engine.RemoveAvailable(t.Context(), "A", 2)
	require.Error(t, err)
	assert.True(t, IsInsufficientAvailable(err))
	assert.Equal(t, before, testutil.LoadPool(t, f.store, "A"))
	assert.Empty(t, f.activity.Rows())
}

func TestRemoveAvailable_Tail(t *testing.T) {
	f := newFixture(t, platform.State{})
	testutil.SeedPool(t, f.store, "A", 3, 1)

	removed, err := f.engine.RemoveAvailable(t.Context(), "A", 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"A-0003", "A-0002"}, removed)
	a := assertConsistent(t, f.store, "A")
	assert.Equal(t, 2, a.Total)
}

func TestRelease_TrimsSurplusOverExternal(t *testing.T) {
	f := newFixture(t, platform.State{})
	testutil.SeedPool(t, f.store, "A", 2, 2)

	r, err := f.engine.Release(t.Context(), "A", []string{"A-0003", "A-0004"}, 3, Ref{})
	require.NoError(t, err)
	assert.Equal(t, []string{"A-0003", "A-0004"}, r.Released)
	assert.Equal(t, []string{"A-0004"}, r.Removed)
	assert.NoError(t, r.TrimErr)
	assert.Equal(t, []string{"A-0001", "A-0002", "A-0003"}, availableNames(t, f.store, "A"))
}

func TestRelease_ReportsMissingNames(t *testing.T) {
	f := newFixture(t, platform.State{})
	testutil.SeedPool(t, f.store, "A", 0, 1)

	r, err := f.engine.Release(t.Context(), "A", []string{"A-0001", "A-0099"}, -1, Ref{})
	require.NoError(t, err)
	assert.Equal(t, []string{"A-0001"}, r.Released)
	assert.Equal(t, []string{"A-0099"}, r.Missing)
}

func TestReleaseThenReconcile_RestoresExternal(t *testing.T) {
	f := newFixture(t, platform.State{})
	testutil.SeedPool(t, f.store, "A", 3, 2)

	_, err := f.engine.Release(t.Context(), "A", []string{"A-0004", "A-0005"}, -1, Ref{})
	require.NoError(t, err)
	_, err = f.engine.ReconcileToExternal(t.Context(), "A", 3)
	require.NoError(t, err)

	assert.Equal(t, 3, assertConsistent(t, f.store, "A").Available)
}

func TestNumbering_NewNamesContinueFromMaxSuffix(t *testing.T) {
	f := newFixture(t, platform.State{})
	testutil.SeedUnits(t, f.store, "A",
		pool.SubUnit{Name: "A-0007", Status: pool.Unavailable},
		pool.SubUnit{Name: "A-0002", Status: pool.Available},
	)

	rec, err := f.engine.ReconcileToExternal(t.Context(), "A", 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"A-0008", "A-0009"}, rec.Added)
}

func TestAvailability_NoPoolIsZero(t *testing.T) {
	f := newFixture(t, platform.State{})

	a, err := f.engine.Availability(t.Context(), "NOPE")
	require.NoError(t, err)
	assert.Equal(t, 0, a.Total)
	assert.Empty(t, a.AvailableUnits)
}

func TestKeyedMutex_ReleasesEntries(t *testing.T) {
	k := newKeyedMutex()
	unlockA := k.Lock("A")
	unlockB := k.Lock("B")
	assert.Equal(t, 2, k.size())
	unlockA()
	unlockB()
	assert.Equal(t, 0, k.size())
}

func TestErrorString(t *testing.T) {
	err := newError(ErrCodeNotFound, "no pool for sku", store.ErrPoolNotFound).withSKU("A").withOrder("o1", "li1")
	assert.Equal(t, "NOT_FOUND: no pool for sku (sku=A) (order=o1) (line_item=li1): pool not found", err.Error())
	assert.ErrorIs(t, err, store.ErrPoolNotFound)
	assert.True(t, IsPermanent(err))
	assert.False(t, IsPermanent(newError(ErrCodeExternalCallFailure, "x", nil)))
}

func TestBatchResult_Permanent(t *testing.T) {
	notFound := newError(ErrCodeNotFound, "no pool for sku", nil)
	invalid := newError(ErrCodeInvalidInput, "line item has no sku", nil)
	external := newError(ErrCodeExternalCallFailure, "inventory quantity", errors.New("timeout"))

	failed := func(err error) ItemResult {
		it := ItemResult{}
		it.fail(err)
		return it
	}

	tests := []struct {
		name  string
		items []ItemResult
		want  bool
	}{
		{"no failures", []ItemResult{{Status: StatusReleased}}, false},
		{"all permanent", []ItemResult{failed(notFound), failed(invalid)}, true},
		{"permanent first, transient second", []ItemResult{failed(notFound), failed(external)}, false},
		{"transient only", []ItemResult{failed(external)}, false},
		{"skipped items ignored", []ItemResult{{Status: StatusSkipped, Err: external}, failed(notFound)}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := &BatchResult{Items: tt.items}
			assert.Equal(t, tt.want, b.Permanent())
		})
	}
}
