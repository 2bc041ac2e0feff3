// Package worker runs dispatched webhook events one at a time.
//
// The worker owns an in-memory FIFO and a single consumer goroutine
// (concurrency 1). Each job is retried with exponential backoff up to a
// fixed number of attempts, under a per-attempt timeout. Outcomes the
// dispatcher marks permanent (only invalid input or not found failures) are
// not retried. A job that
// exhausts its attempts is logged with full context and dropped; the engine's
// duplicate guards make a later manual redelivery safe.
package worker

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/roach88/subsku/internal/dispatch"
)

// Defaults for Options.
const (
	DefaultMaxAttempts     = 5
	DefaultInitialInterval = 500 * time.Millisecond
	DefaultMaxInterval     = 30 * time.Second
	DefaultJobTimeout      = 60 * time.Second
)

// Handler runs one event. *dispatch.Dispatcher implements it.
type Handler interface {
	Dispatch(ctx context.Context, ev dispatch.Event) dispatch.Outcome
}

// Job is one queued event.
type Job struct {
	ID         string
	DeliveryID string
	Event      dispatch.Event
	EnqueuedAt time.Time
}

// Result is reported for every finished job.
type Result struct {
	Job      Job
	Outcome  dispatch.Outcome
	Attempts int
}

// Options configures a Worker. Zero values take the defaults.
type Options struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	JobTimeout      time.Duration

	// QueueLimit bounds pending jobs; <= 0 means unbounded.
	QueueLimit int

	IDs    IDGenerator
	Logger *slog.Logger

	// OnResult, if set, is called from the Run goroutine after each job.
	OnResult func(Result)
}

// Stats counts finished jobs.
type Stats struct {
	Succeeded int64
	Failed    int64
}

// Worker processes jobs serially.
//
// Thread-safety model:
//   - Enqueue(): safe from any goroutine
//   - Run(): must be called from exactly one goroutine
type Worker struct {
	handler Handler
	queue   *jobQueue
	opts    Options

	succeeded atomic.Int64
	failed    atomic.Int64
}

// New creates a Worker.
func New(h Handler, opts Options) *Worker {
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	if opts.InitialInterval <= 0 {
		opts.InitialInterval = DefaultInitialInterval
	}
	if opts.MaxInterval <= 0 {
		opts.MaxInterval = DefaultMaxInterval
	}
	if opts.JobTimeout <= 0 {
		opts.JobTimeout = DefaultJobTimeout
	}
	if opts.IDs == nil {
		opts.IDs = UUIDv7Generator{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Worker{
		handler: h,
		queue:   newJobQueue(opts.QueueLimit),
		opts:    opts,
	}
}

// Enqueue submits an event. Returns the job and false if the worker is
// stopped or the queue is full.
func (w *Worker) Enqueue(deliveryID string, ev dispatch.Event) (Job, bool) {
	j := Job{
		ID:         w.opts.IDs.Generate(),
		DeliveryID: deliveryID,
		Event:      ev,
		EnqueuedAt: time.Now(),
	}
	if !w.queue.Enqueue(j) {
		return j, false
	}
	w.opts.Logger.Debug("job enqueued",
		"job_id", j.ID,
		"delivery_id", deliveryID,
		"topic", ev.Topic(),
		"key", ev.Key(),
	)
	return j, true
}

// Pending returns the number of queued jobs.
func (w *Worker) Pending() int {
	return w.queue.Len()
}

// Stats returns finished-job counters.
func (w *Worker) Stats() Stats {
	return Stats{Succeeded: w.succeeded.Load(), Failed: w.failed.Load()}
}

// Stop closes the queue. Run finishes the jobs already queued, then returns.
func (w *Worker) Stop() {
	w.queue.Close()
}

// Run processes jobs until ctx is cancelled or Stop is called and the queue
// has drained.
func (w *Worker) Run(ctx context.Context) error {
	w.opts.Logger.Info("worker starting")

	for {
		if j, ok := w.queue.TryDequeue(); ok {
			w.process(ctx, j)
			continue
		}

		if w.queue.Drained() {
			w.opts.Logger.Info("worker stopping: queue drained")
			return nil
		}

		select {
		case <-ctx.Done():
			w.opts.Logger.Info("worker stopping: context cancelled", "pending", w.queue.Len())
			w.queue.Close()
			return ctx.Err()
		case <-w.queue.Wait():
			// Loop back to TryDequeue. A closed signal channel fires
			// immediately, and Drained ends the loop once empty.
		}
	}
}

// process runs one job with retries.
func (w *Worker) process(ctx context.Context, j Job) {
	log := w.opts.Logger.With(
		"job_id", j.ID,
		"delivery_id", j.DeliveryID,
		"topic", j.Event.Topic(),
		"key", j.Event.Key(),
	)

	var (
		out      dispatch.Outcome
		attempts int
	)
	op := func() error {
		attempts++
		actx, cancel := context.WithTimeout(ctx, w.opts.JobTimeout)
		defer cancel()

		out = w.handler.Dispatch(actx, j.Event)
		if out.Success {
			return nil
		}
		if out.Permanent {
			return backoff.Permanent(out.Err)
		}
		return out.Err
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = w.opts.InitialInterval
	b.MaxInterval = w.opts.MaxInterval
	b.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(w.opts.MaxAttempts-1)), ctx)

	err := backoff.RetryNotify(op, policy, func(err error, next time.Duration) {
		log.Warn("job attempt failed, retrying", "attempt", attempts, "retry_in", next, "error", err)
	})

	if err != nil {
		w.failed.Add(1)
		log.Error("job failed",
			"attempts", attempts,
			"permanent", out.Permanent,
			"error", err,
		)
	} else {
		w.succeeded.Add(1)
		log.Info("job done", "attempts", attempts)
	}

	if w.opts.OnResult != nil {
		w.opts.OnResult(Result{Job: j, Outcome: out, Attempts: attempts})
	}
}
