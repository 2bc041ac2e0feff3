package platform

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"github.com/roach88/subsku/internal/ledger"
)

// Limited paces calls to an underlying Client with a token bucket.
//
// The limiter belongs to whoever builds the Limited (one per worker), never
// to the process, so two workers or two tests never share a budget.
type Limited struct {
	next    Client
	limiter *rate.Limiter
}

// NewLimited wraps next. A nil limiter means no pacing.
func NewLimited(next Client, limiter *rate.Limiter) *Limited {
	if limiter == nil {
		limiter = rate.NewLimiter(rate.Inf, 0)
	}
	return &Limited{next: next, limiter: limiter}
}

// NewLimiter builds the limiter for perSecond calls with the given burst.
// perSecond <= 0 disables pacing.
func NewLimiter(perSecond float64, burst int) *rate.Limiter {
	if perSecond <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(perSecond), burst)
}

func (l *Limited) wait(ctx context.Context, method string) error {
	if err := l.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%s: rate limit wait: %w", method, err)
	}
	return nil
}

// OrderLineItems implements Client.
func (l *Limited) OrderLineItems(ctx context.Context, orderID string) (map[string]LineItem, error) {
	if err := l.wait(ctx, "OrderLineItems"); err != nil {
		return nil, err
	}
	return l.next.OrderLineItems(ctx, orderID)
}

// OrderLedger implements Client.
func (l *Limited) OrderLedger(ctx context.Context, orderID string) (ledger.Ledger, error) {
	if err := l.wait(ctx, "OrderLedger"); err != nil {
		return nil, err
	}
	return l.next.OrderLedger(ctx, orderID)
}

// SetOrderLedger implements Client.
func (l *Limited) SetOrderLedger(ctx context.Context, orderID string, lg ledger.Ledger) error {
	if err := l.wait(ctx, "SetOrderLedger"); err != nil {
		return err
	}
	return l.next.SetOrderLedger(ctx, orderID, lg)
}

// InventoryQuantity implements Client.
func (l *Limited) InventoryQuantity(ctx context.Context, sku string) (int, error) {
	if err := l.wait(ctx, "InventoryQuantity"); err != nil {
		return 0, err
	}
	return l.next.InventoryQuantity(ctx, sku)
}

// SKUForInventoryItem implements Client.
func (l *Limited) SKUForInventoryItem(ctx context.Context, inventoryItemID string) (string, error) {
	if err := l.wait(ctx, "SKUForInventoryItem"); err != nil {
		return "", err
	}
	return l.next.SKUForInventoryItem(ctx, inventoryItemID)
}

var _ Client = (*Limited)(nil)
