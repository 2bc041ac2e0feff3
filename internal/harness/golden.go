package harness

import (
	"context"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/subsku/internal/canon"
	"github.com/roach88/subsku/internal/engine"
)

// TraceSnapshot renders a result as a canonical map: per-event outcomes
// followed by the activity log.
func TraceSnapshot(scenarioName string, result *Result) map[string]any {
	steps := make([]any, 0, len(result.Steps))
	for _, s := range result.Steps {
		m := map[string]any{
			"step":    s.Step,
			"topic":   string(s.Outcome.Topic),
			"key":     s.Outcome.Key,
			"success": s.Outcome.Success,
		}
		if s.Outcome.Error != "" {
			m["error"] = s.Outcome.Error
		}
		if d := s.Outcome.Data; d != nil {
			if d.Duplicate {
				m["duplicate"] = true
			}
			m["items"] = itemsSnapshot(d.Items)
		}
		steps = append(steps, m)
	}

	rows := make([]any, 0, len(result.Activity))
	for _, a := range result.Activity {
		m := map[string]any{
			"seq":      a.Seq,
			"sku":      a.SKU,
			"sub_unit": a.SubUnit,
			"reason":   string(a.Reason),
			"quantity": a.Quantity,
			"at":       a.At.UTC().Format(time.RFC3339),
		}
		if a.OrderID != "" {
			m["order_id"] = a.OrderID
		}
		if a.LineItemID != "" {
			m["line_item_id"] = a.LineItemID
		}
		rows = append(rows, m)
	}

	return map[string]any{
		"scenario_name": scenarioName,
		"steps":         steps,
		"activity":      rows,
	}
}

func itemsSnapshot(items []engine.ItemResult) []any {
	out := make([]any, 0, len(items))
	for _, it := range items {
		m := map[string]any{
			"status":   string(it.Status),
			"quantity": it.Quantity,
		}
		if it.LineItemID != "" {
			m["line_item_id"] = it.LineItemID
		}
		if it.SKU != "" {
			m["sku"] = it.SKU
		}
		if len(it.SubUnits) > 0 {
			m["sub_units"] = it.SubUnits
		}
		if len(it.Added) > 0 {
			m["added"] = it.Added
		}
		if len(it.Removed) > 0 {
			m["removed"] = it.Removed
		}
		if it.Error != "" {
			m["error"] = it.Error
		}
		out = append(out, m)
	}
	return out
}

// RunWithGolden executes a scenario and compares its trace against
// testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(context.Background(), scenario)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares an existing result against its golden file.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	traceJSON, err := canon.Marshal(TraceSnapshot(scenarioName, result))
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, traceJSON)
	return nil
}
