package canon

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed identity.
// The version suffix leaves room for changing the hashed shape later.
const (
	DomainDelivery = "subsku/delivery/v1"
	DomainLedger   = "subsku/ledger/v1"
)

// hashWithDomain computes SHA256(domain + 0x00 + data).
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// DeliveryID identifies a webhook payload by topic and content, so that a
// redelivered payload maps to the same ID regardless of transport headers.
func DeliveryID(topic string, payload map[string]any) (string, error) {
	data, err := Marshal(map[string]any{
		"topic":   topic,
		"payload": payload,
	})
	if err != nil {
		return "", fmt.Errorf("delivery id: %w", err)
	}
	return hashWithDomain(DomainDelivery, data), nil
}

// LedgerHash fingerprints an order's assignment map. Two maps with the same
// entries hash identically, which lets callers skip no-op metadata writes.
func LedgerHash(entries map[string][]string) (string, error) {
	data, err := Marshal(entries)
	if err != nil {
		return "", fmt.Errorf("ledger hash: %w", err)
	}
	return hashWithDomain(DomainLedger, data), nil
}
