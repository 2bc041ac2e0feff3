package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/roach88/subsku/internal/dispatch"
	"github.com/roach88/subsku/internal/engine"
	"github.com/roach88/subsku/internal/platform"
	"github.com/roach88/subsku/internal/pool"
	"github.com/roach88/subsku/internal/store"
	"github.com/roach88/subsku/internal/testutil"
)

// Harness holds the per-scenario collaborators.
type Harness struct {
	store      *store.Store
	platform   *platform.Memory
	dispatcher *dispatch.Dispatcher
	logger     *slog.Logger
}

// Run executes a scenario in a fresh in-memory store and returns the result.
//
// Execution flow:
//  1. Open an in-memory store and seed pools and snapshots
//  2. Build the in-memory platform from setup.platform
//  3. Dispatch each event, checking its expect clause
//  4. Evaluate assertions against the final state
func Run(ctx context.Context, scenario *Scenario) (*Result, error) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	st, err := store.Open(":memory:", store.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	mem, err := platform.NewMemory(scenario.Setup.Platform)
	if err != nil {
		return nil, fmt.Errorf("failed to build platform: %w", err)
	}

	eng := engine.New(st, mem,
		engine.WithSink(st),
		engine.WithClock(testutil.NewDeterministicClock()),
		engine.WithLogger(logger),
		// Serial line items keep activity order stable for golden files.
		engine.WithMaxParallel(1),
	)

	h := &Harness{
		store:      st,
		platform:   mem,
		dispatcher: dispatch.New(eng, logger),
		logger:     logger,
	}

	if err := h.executeSetup(ctx, scenario.Setup); err != nil {
		return nil, fmt.Errorf("failed to execute setup: %w", err)
	}

	result := NewResult()
	if err := h.executeEvents(ctx, scenario.Events, result); err != nil {
		return nil, fmt.Errorf("failed to execute events: %w", err)
	}

	result.Activity, err = st.ListActivity(ctx, store.ActivityFilter{})
	if err != nil {
		return nil, fmt.Errorf("failed to read activity: %w", err)
	}

	actx := &AssertionContext{Ctx: ctx, Store: st, Platform: mem, Activity: result.Activity}
	for _, msg := range EvaluateAssertions(scenario.Assertions, actx) {
		result.AddError(msg)
	}
	return result, nil
}

// RunFile loads and runs one scenario file.
func RunFile(ctx context.Context, path string) (*Scenario, *Result, error) {
	scenario, err := LoadScenario(path)
	if err != nil {
		return nil, nil, err
	}
	result, err := Run(ctx, scenario)
	return scenario, result, err
}

func (h *Harness) executeSetup(ctx context.Context, setup Setup) error {
	for i, ps := range setup.Pools {
		_, err := h.store.UpdatePool(ctx, ps.SKU, func(p *pool.Pool, _ bool) error {
			p.Append(ps.Available)
			for _, name := range p.Append(ps.Unavailable) {
				for j := range p.SubUnits {
					if p.SubUnits[j].Name == name {
						p.SubUnits[j].Status = pool.Unavailable
					}
				}
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("pool %d (%s): %w", i, ps.SKU, err)
		}
	}

	snaps := make([]store.VariantSnapshot, 0, len(setup.Snapshots))
	for _, s := range setup.Snapshots {
		snaps = append(snaps, store.VariantSnapshot{
			ProductID:   s.ProductID,
			SKU:         s.SKU,
			Quantity:    s.Quantity,
			WeightGrams: s.WeightGrams,
		})
	}
	if err := h.store.PutSnapshot(ctx, snaps); err != nil {
		return fmt.Errorf("snapshots: %w", err)
	}
	return nil
}

func (h *Harness) executeEvents(ctx context.Context, events []EventStep, result *Result) error {
	for i, step := range events {
		for sku, qty := range step.SetInventory {
			h.platform.SetInventory(sku, qty)
		}

		ev, err := step.Envelope.Decode()
		if err != nil {
			return fmt.Errorf("event %d: %w", i, err)
		}

		out := h.dispatcher.Dispatch(ctx, ev)
		result.Steps = append(result.Steps, StepOutcome{Step: i, Outcome: out})

		if step.Expect != nil {
			for _, msg := range checkExpect(i, step.Expect, out) {
				result.AddError(msg)
			}
		}

		h.logger.Info("event dispatched",
			"step", i,
			"topic", string(out.Topic),
			"key", out.Key,
			"success", out.Success,
		)
	}
	return nil
}

// checkExpect compares one outcome with its expect clause.
func checkExpect(step int, exp *Expect, out dispatch.Outcome) []string {
	var errs []string
	fail := func(format string, args ...any) {
		errs = append(errs, fmt.Sprintf("events[%d] (%s %s): ", step, out.Topic, out.Key)+fmt.Sprintf(format, args...))
	}

	if exp.Success != nil && *exp.Success != out.Success {
		fail("expected success=%v, got %v (error: %s)", *exp.Success, out.Success, out.Error)
	}
	if exp.Duplicate != nil {
		dup := out.Data != nil && out.Data.Duplicate
		if *exp.Duplicate != dup {
			fail("expected duplicate=%v, got %v", *exp.Duplicate, dup)
		}
	}
	if exp.ErrorContains != "" && !containsFold(out.Error, exp.ErrorContains) {
		fail("expected error containing %q, got %q", exp.ErrorContains, out.Error)
	}

	if len(exp.Statuses) > 0 {
		got := map[string]string{}
		if out.Data != nil {
			for _, it := range out.Data.Items {
				key := it.LineItemID
				if key == "" {
					key = it.SKU
				}
				got[key] = string(it.Status)
			}
		}
		for _, key := range sortedKeys(exp.Statuses) {
			want := exp.Statuses[key]
			if got[key] != want {
				fail("item %s: expected status %q, got %q", key, want, got[key])
			}
		}
	}
	return errs
}
