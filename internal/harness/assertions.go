package harness

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/roach88/subsku/internal/activity"
	"github.com/roach88/subsku/internal/platform"
	"github.com/roach88/subsku/internal/pool"
	"github.com/roach88/subsku/internal/store"
)

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	return fmt.Sprintf("Assertion failed: %s\n  Expected: %s\n  Actual: %s", e.Type, e.Expected, e.Actual)
}

// AssertionContext provides the final state assertions read from.
type AssertionContext struct {
	Ctx      context.Context
	Store    *store.Store
	Platform *platform.Memory
	Activity []activity.Activity
}

// EvaluateAssertions evaluates all assertions.
// Returns a slice of error messages for failed assertions.
func EvaluateAssertions(assertions []Assertion, actx *AssertionContext) []string {
	var errs []string

	for i, a := range assertions {
		var err error

		switch a.Type {
		case AssertPool:
			err = assertPool(actx, a)
		case AssertPoolAbsent:
			err = assertPoolAbsent(actx, a)
		case AssertAvailableUnits:
			err = assertAvailableUnits(actx, a)
		case AssertLedger:
			err = assertLedger(actx, a)
		case AssertProcessed:
			err = assertProcessed(actx, a)
		case AssertActivityCount:
			err = assertActivityCount(actx, a)
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, a.Type)
		}

		if err != nil {
			errs = append(errs, fmt.Sprintf("assertion[%d]: %v", i, err))
		}
	}
	return errs
}

func assertPool(actx *AssertionContext, a Assertion) error {
	p, err := actx.Store.GetPool(actx.Ctx, a.SKU)
	if err != nil {
		return &AssertionError{Type: AssertPool, Expected: "pool for " + a.SKU, Actual: err.Error()}
	}
	avail := pool.Query(p)
	if a.Total != nil && avail.Total != *a.Total {
		return &AssertionError{
			Type:     AssertPool,
			Expected: fmt.Sprintf("%s total=%d", a.SKU, *a.Total),
			Actual:   fmt.Sprintf("total=%d", avail.Total),
		}
	}
	if a.Available != nil && avail.Available != *a.Available {
		return &AssertionError{
			Type:     AssertPool,
			Expected: fmt.Sprintf("%s available=%d", a.SKU, *a.Available),
			Actual:   fmt.Sprintf("available=%d (%v)", avail.Available, avail.Names()),
		}
	}
	return nil
}

func assertPoolAbsent(actx *AssertionContext, a Assertion) error {
	_, err := actx.Store.GetPool(actx.Ctx, a.SKU)
	if err == nil {
		return &AssertionError{Type: AssertPoolAbsent, Expected: "no pool for " + a.SKU, Actual: "pool exists"}
	}
	if !errors.Is(err, store.ErrPoolNotFound) {
		return err
	}
	return nil
}

func assertAvailableUnits(actx *AssertionContext, a Assertion) error {
	p, err := actx.Store.GetPool(actx.Ctx, a.SKU)
	if err != nil {
		return &AssertionError{Type: AssertAvailableUnits, Expected: "pool for " + a.SKU, Actual: err.Error()}
	}
	got := pool.Query(p).Names()
	if !namesEqual(a.Names, got) {
		return &AssertionError{
			Type:     AssertAvailableUnits,
			Expected: fmt.Sprintf("%v", a.Names),
			Actual:   fmt.Sprintf("%v", got),
		}
	}
	return nil
}

func assertLedger(actx *AssertionContext, a Assertion) error {
	l := actx.Platform.Ledger(a.OrderID)

	if a.LineItem == "" {
		if len(a.Names) == 0 && len(l.LineItems()) != 0 {
			return &AssertionError{
				Type:     AssertLedger,
				Expected: fmt.Sprintf("empty ledger for order %s", a.OrderID),
				Actual:   fmt.Sprintf("%v", map[string][]string(l)),
			}
		}
		var all []string
		for _, li := range l.LineItems() {
			all = append(all, l[li]...)
		}
		if len(a.Names) > 0 && !namesEqual(a.Names, all) {
			return &AssertionError{
				Type:     AssertLedger,
				Expected: fmt.Sprintf("order %s names %v", a.OrderID, a.Names),
				Actual:   fmt.Sprintf("%v", all),
			}
		}
		return nil
	}

	got := l[a.LineItem]
	if !namesEqual(a.Names, got) {
		return &AssertionError{
			Type:     AssertLedger,
			Expected: fmt.Sprintf("order %s line %s names %v", a.OrderID, a.LineItem, a.Names),
			Actual:   fmt.Sprintf("%v", got),
		}
	}
	return nil
}

func assertProcessed(actx *AssertionContext, a Assertion) error {
	ok, err := actx.Store.IsProcessed(actx.Ctx, a.Kind, a.Key)
	if err != nil {
		return err
	}
	if !ok {
		return &AssertionError{
			Type:     AssertProcessed,
			Expected: fmt.Sprintf("marker %s/%s", a.Kind, a.Key),
			Actual:   "not marked",
		}
	}
	return nil
}

func assertActivityCount(actx *AssertionContext, a Assertion) error {
	n := 0
	for _, row := range actx.Activity {
		if a.Reason != "" && string(row.Reason) != a.Reason {
			continue
		}
		if a.SKU != "" && row.SKU != a.SKU {
			continue
		}
		n++
	}
	if n != *a.Count {
		return &AssertionError{
			Type:     AssertActivityCount,
			Expected: fmt.Sprintf("%d rows (reason=%q sku=%q)", *a.Count, a.Reason, a.SKU),
			Actual:   fmt.Sprintf("%d rows", n),
		}
	}
	return nil
}

// namesEqual treats nil and empty as equal.
func namesEqual(want, got []string) bool {
	if len(want) == 0 && len(got) == 0 {
		return true
	}
	return reflect.DeepEqual(want, got)
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func containsFold(s, sub string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(sub))
}
