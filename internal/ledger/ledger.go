// Package ledger implements the Assignment Ledger: the per-order record of
// which sub-unit names each line item consumed.
//
// Release order is LIFO. The most recently recorded names for a line item
// sit at the tail of its list and are the first handed back on cancellation,
// refund or edit-removal. The ledger is persisted as one order-scoped
// metadata document and is always rewritten whole.
package ledger

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/roach88/subsku/internal/canon"
)

// MetafieldKey is the order metadata key the encoded ledger is stored under.
const MetafieldKey = "sub_sku_assignments"

// ErrNoAssignment is returned by Consume when the line item has no recorded
// sub-units. Callers treat it as skip, not failure.
var ErrNoAssignment = errors.New("no assignment for line item")

// Ledger maps line item id to the ordered sub-unit names it holds.
type Ledger map[string][]string

// Record appends names to the line item's list, creating it if absent.
// Order creation and edit-addition both go through here.
func (l Ledger) Record(lineItemID string, names []string) {
	if len(names) == 0 {
		return
	}
	cur := l[lineItemID]
	next := make([]string, 0, len(cur)+len(names))
	next = append(next, cur...)
	next = append(next, names...)
	l[lineItemID] = next
}

// Count returns how many names the line item holds.
func (l Ledger) Count(lineItemID string) int {
	return len(l[lineItemID])
}

// Consume takes up to quantity names from the tail of the line item's list
// and returns them along with the ledger that remains. The receiver is not
// modified. A line item left with no names is dropped from the result.
//
// Returns ErrNoAssignment if the line item holds nothing.
func (l Ledger) Consume(lineItemID string, quantity int) (release []string, rest Ledger, err error) {
	cur := l[lineItemID]
	if len(cur) == 0 {
		return nil, l.Clone(), ErrNoAssignment
	}
	if quantity <= 0 {
		return nil, l.Clone(), fmt.Errorf("consume %q: quantity must be positive, got %d", lineItemID, quantity)
	}
	if quantity > len(cur) {
		quantity = len(cur)
	}
	cut := len(cur) - quantity

	release = append([]string(nil), cur[cut:]...)
	rest = l.Clone()
	if cut == 0 {
		delete(rest, lineItemID)
	} else {
		rest[lineItemID] = append([]string(nil), cur[:cut]...)
	}
	return release, rest, nil
}

// Clone returns a deep copy.
func (l Ledger) Clone() Ledger {
	out := make(Ledger, len(l))
	for k, v := range l {
		out[k] = append([]string(nil), v...)
	}
	return out
}

// LineItems returns the line item ids in sorted order.
func (l Ledger) LineItems() []string {
	ids := make([]string, 0, len(l))
	for k := range l {
		ids = append(ids, k)
	}
	sort.Strings(ids)
	return ids
}

// Encode renders the ledger as its metadata value in canonical JSON, so the
// same assignments always encode to the same bytes. Empty entries are omitted.
func Encode(l Ledger) (string, error) {
	clean := make(map[string][]string, len(l))
	for k, v := range l {
		if len(v) > 0 {
			clean[k] = v
		}
	}
	data, err := canon.Marshal(clean)
	if err != nil {
		return "", fmt.Errorf("encode ledger: %w", err)
	}
	return string(data), nil
}

// Decode parses a metadata value. An empty value is an empty ledger.
func Decode(value string) (Ledger, error) {
	l := Ledger{}
	if value == "" {
		return l, nil
	}
	if err := json.Unmarshal([]byte(value), &l); err != nil {
		return nil, fmt.Errorf("decode ledger: %w", err)
	}
	return l, nil
}
