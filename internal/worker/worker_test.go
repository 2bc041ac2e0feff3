package worker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/subsku/internal/dispatch"
	"github.com/roach88/subsku/internal/engine"
	"github.com/roach88/subsku/internal/testutil"
)

// scriptedHandler returns the queued errors in order, then success.
type scriptedHandler struct {
	mu    sync.Mutex
	errs  []error
	calls []string
}

func (h *scriptedHandler) Dispatch(ctx context.Context, ev dispatch.Event) dispatch.Outcome {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls = append(h.calls, ev.Key())
	out := dispatch.Outcome{Topic: ev.Topic(), Key: ev.Key()}
	if len(h.errs) > 0 {
		err := h.errs[0]
		h.errs = h.errs[1:]
		out.Err = err
		out.Error = err.Error()
		out.Permanent = engine.IsPermanent(err)
		return out
	}
	out.Success = true
	return out
}

func (h *scriptedHandler) Calls() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.calls...)
}

func orderEvent(id string) dispatch.Event {
	return &dispatch.OrderCreated{OrderCreated: engine.OrderCreated{OrderID: id}}
}

func testOptions(results *[]Result, mu *sync.Mutex) Options {
	return Options{
		MaxAttempts:     3,
		InitialInterval: time.Millisecond,
		MaxInterval:     2 * time.Millisecond,
		JobTimeout:      time.Second,
		IDs:             testutil.NewFixedIDGenerator("job"),
		Logger:          slog.New(slog.NewTextHandler(io.Discard, nil)),
		OnResult: func(r Result) {
			mu.Lock()
			defer mu.Unlock()
			*results = append(*results, r)
		},
	}
}

func runUntilDrained(t *testing.T, w *Worker) {
	t.Helper()
	w.Stop()
	ctx, cancel := context.WithTimeout(t.Context(), 5*time.Second)
	defer cancel()
	require.NoError(t, w.Run(ctx))
}

func TestWorker_ProcessesInFIFOOrder(t *testing.T) {
	var (
		results []Result
		mu      sync.Mutex
	)
	h := &scriptedHandler{}
	w := New(h, testOptions(&results, &mu))

	for _, id := range []string{"o1", "o2", "o3"} {
		_, ok := w.Enqueue("d-"+id, orderEvent(id))
		require.True(t, ok)
	}
	assert.Equal(t, 3, w.Pending())

	runUntilDrained(t, w)

	assert.Equal(t, []string{"o1", "o2", "o3"}, h.Calls())
	assert.Equal(t, Stats{Succeeded: 3}, w.Stats())
	require.Len(t, results, 3)
	assert.Equal(t, "d-o1", results[0].Job.DeliveryID)
	assert.Equal(t, "job", results[0].Job.ID)
	assert.Equal(t, 1, results[0].Attempts)
}

func TestWorker_RetriesTransientFailures(t *testing.T) {
	var (
		results []Result
		mu      sync.Mutex
	)
	transient := &engine.Error{Code: engine.ErrCodeExternalCallFailure, Message: "timeout"}
	h := &scriptedHandler{errs: []error{transient, transient}}
	w := New(h, testOptions(&results, &mu))

	w.Enqueue("d1", orderEvent("o1"))
	runUntilDrained(t, w)

	assert.Len(t, h.Calls(), 3)
	require.Len(t, results, 1)
	assert.True(t, results[0].Outcome.Success)
	assert.Equal(t, 3, results[0].Attempts)
	assert.Equal(t, Stats{Succeeded: 1}, w.Stats())
}

func TestWorker_GivesUpAfterMaxAttempts(t *testing.T) {
	var (
		results []Result
		mu      sync.Mutex
	)
	boom := errors.New("store down")
	h := &scriptedHandler{errs: []error{boom, boom, boom, boom}}
	w := New(h, testOptions(&results, &mu))

	w.Enqueue("d1", orderEvent("o1"))
	w.Enqueue("d2", orderEvent("o2"))
	runUntilDrained(t, w)

	assert.Equal(t, []string{"o1", "o1", "o1", "o2", "o2"}, h.Calls(), "o2 runs after o1 gives up")
	assert.Equal(t, Stats{Succeeded: 1, Failed: 1}, w.Stats())
	require.Len(t, results, 2)
	assert.Equal(t, 3, results[0].Attempts)
	assert.False(t, results[0].Outcome.Success)
}

func TestWorker_PermanentErrorsAreNotRetried(t *testing.T) {
	var (
		results []Result
		mu      sync.Mutex
	)
	h := &scriptedHandler{errs: []error{&engine.Error{Code: engine.ErrCodeNotFound, Message: "order not found"}}}
	w := New(h, testOptions(&results, &mu))

	w.Enqueue("d1", orderEvent("o1"))
	runUntilDrained(t, w)

	assert.Len(t, h.Calls(), 1)
	assert.Equal(t, Stats{Failed: 1}, w.Stats())
	assert.False(t, results[0].Outcome.Success)
}

// batchHandler fails with the same partially failed batch on every attempt.
type batchHandler struct {
	batch *engine.BatchResult
	calls atomic.Int32
}

func (h *batchHandler) Dispatch(ctx context.Context, ev dispatch.Event) dispatch.Outcome {
	h.calls.Add(1)
	return dispatch.Outcome{
		Topic:     ev.Topic(),
		Key:       ev.Key(),
		Data:      h.batch,
		Err:       h.batch.Err(),
		Error:     h.batch.Err().Error(),
		Permanent: h.batch.Permanent(),
	}
}

func failedItem(id string, code engine.ErrorCode) engine.ItemResult {
	return engine.ItemResult{
		LineItemID: id,
		Status:     engine.StatusFailed,
		Err:        &engine.Error{Code: code, Message: id + " failed"},
	}
}

func TestWorker_MixedBatchIsRetried(t *testing.T) {
	var (
		results []Result
		mu      sync.Mutex
	)
	h := &batchHandler{batch: &engine.BatchResult{
		Kind: engine.KindOrderCancelled,
		Key:  "o1",
		Items: []engine.ItemResult{
			failedItem("li1", engine.ErrCodeNotFound),
			failedItem("li2", engine.ErrCodeExternalCallFailure),
		},
	}}
	w := New(h, testOptions(&results, &mu))

	w.Enqueue("d1", orderEvent("o1"))
	runUntilDrained(t, w)

	assert.Equal(t, int32(3), h.calls.Load(), "the transient item keeps the event retryable")
	require.Len(t, results, 1)
	assert.Equal(t, 3, results[0].Attempts)
	assert.Equal(t, Stats{Failed: 1}, w.Stats())
}

func TestWorker_AllPermanentBatchIsNotRetried(t *testing.T) {
	var (
		results []Result
		mu      sync.Mutex
	)
	h := &batchHandler{batch: &engine.BatchResult{
		Kind: engine.KindOrderCancelled,
		Key:  "o1",
		Items: []engine.ItemResult{
			failedItem("li1", engine.ErrCodeNotFound),
			failedItem("li2", engine.ErrCodeInvalidInput),
		},
	}}
	w := New(h, testOptions(&results, &mu))

	w.Enqueue("d1", orderEvent("o1"))
	runUntilDrained(t, w)

	assert.Equal(t, int32(1), h.calls.Load())
	require.Len(t, results, 1)
	assert.Equal(t, 1, results[0].Attempts)
}

func TestWorker_StopRejectsNewJobs(t *testing.T) {
	w := New(&scriptedHandler{}, Options{IDs: NewSequenceGenerator("job-1")})
	w.Stop()

	j, ok := w.Enqueue("d1", orderEvent("o1"))
	assert.False(t, ok)
	assert.Equal(t, "job-1", j.ID)
}

func TestWorker_QueueLimit(t *testing.T) {
	w := New(&scriptedHandler{}, Options{QueueLimit: 1})

	_, ok := w.Enqueue("d1", orderEvent("o1"))
	assert.True(t, ok)
	_, ok = w.Enqueue("d2", orderEvent("o2"))
	assert.False(t, ok)
}

func TestWorker_ContextCancelStopsRun(t *testing.T) {
	w := New(&scriptedHandler{}, Options{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestWorker_RunPicksUpLateJobs(t *testing.T) {
	var (
		results []Result
		mu      sync.Mutex
	)
	h := &scriptedHandler{}
	w := New(h, testOptions(&results, &mu))

	done := make(chan error, 1)
	go func() { done <- w.Run(t.Context()) }()

	time.Sleep(10 * time.Millisecond)
	w.Enqueue("d1", orderEvent("late"))
	w.Stop()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not drain")
	}
	assert.Equal(t, []string{"late"}, h.Calls())
}

func TestUUIDv7Generator_Unique(t *testing.T) {
	g := UUIDv7Generator{}
	a, b := g.Generate(), g.Generate()
	assert.Len(t, a, 36)
	assert.NotEqual(t, a, b)
}

func TestSequenceGenerator_PanicsWhenExhausted(t *testing.T) {
	g := NewSequenceGenerator("a")
	assert.Equal(t, "a", g.Generate())
	assert.Panics(t, func() { g.Generate() })
}
