package engine

import "errors"

// ItemStatus is the outcome of one line item or variant.
type ItemStatus string

const (
	StatusReserved   ItemStatus = "reserved"
	StatusReleased   ItemStatus = "released"
	StatusReconciled ItemStatus = "reconciled"
	StatusRestocked  ItemStatus = "restocked"
	StatusUnchanged  ItemStatus = "unchanged"
	StatusSkipped    ItemStatus = "skipped"
	StatusFailed     ItemStatus = "failed"
)

// ItemResult is the per-line-item (or per-variant) part of a BatchResult.
type ItemResult struct {
	LineItemID string     `json:"line_item_id,omitempty"`
	SKU        string     `json:"sku,omitempty"`
	Quantity   int        `json:"quantity"`
	Status     ItemStatus `json:"status"`

	// SubUnits are the names reserved or released for this item.
	SubUnits []string `json:"sub_units,omitempty"`

	// Added and Removed are pool adjustments made alongside: pool creation,
	// top-ups, restocks and surplus trims.
	Added   []string `json:"added,omitempty"`
	Removed []string `json:"removed,omitempty"`

	Error string `json:"error,omitempty"`
	Err   error  `json:"-"`
}

func (r *ItemResult) fail(err error) {
	r.Status = StatusFailed
	r.Err = err
	r.Error = err.Error()
}

func (r *ItemResult) skip(err error) {
	r.Status = StatusSkipped
	r.Err = err
	r.Error = err.Error()
}

// BatchResult is what every flow returns. Partial success is normal: each
// item carries its own status and error.
type BatchResult struct {
	Kind Kind   `json:"kind"`
	Key  string `json:"key"`

	// Duplicate is set when the event was already processed and nothing ran.
	Duplicate bool `json:"duplicate,omitempty"`

	Items []ItemResult `json:"items"`
}

// Failed returns the items whose status is failed.
func (b *BatchResult) Failed() []ItemResult {
	var out []ItemResult
	for _, it := range b.Items {
		if it.Status == StatusFailed {
			out = append(out, it)
		}
	}
	return out
}

// OK reports whether no item failed. Skipped items do not count as failures.
func (b *BatchResult) OK() bool {
	return len(b.Failed()) == 0
}

// Permanent reports whether some item failed and every failed item failed
// permanently. One retryable failure makes the whole event worth retrying.
func (b *BatchResult) Permanent() bool {
	failed := b.Failed()
	if len(failed) == 0 {
		return false
	}
	for _, it := range failed {
		if !IsPermanent(it.Err) {
			return false
		}
	}
	return true
}

// Err joins the errors of failed items, or returns nil.
func (b *BatchResult) Err() error {
	var errs []error
	for _, it := range b.Failed() {
		errs = append(errs, it.Err)
	}
	return errors.Join(errs...)
}
