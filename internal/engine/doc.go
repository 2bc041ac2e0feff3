// Package engine implements sub-SKU allocation and reconciliation.
//
// The engine keeps a per-SKU pool of numbered sub-units in step with the
// orders and inventory counts of an external platform. It is purely
// reactive: each exported flow handles one decoded webhook event and
// returns a structured result.
//
// SKU operations:
//   - Reserve: take the lowest-numbered Available sub-units, creating fresh
//     ones for any shortfall, then top up toward the platform quantity
//   - Release: flip named sub-units back to Available, then trim any surplus
//     over the platform quantity
//   - RemoveAvailable: delete Available sub-units tail first; never touches
//     Unavailable ones
//   - ReconcileToExternal: add or remove Available sub-units until the pool
//     matches the platform quantity (idempotent)
//
// Every pool mutation is a single store.UpdatePool call. Work on the same
// SKU within one event is additionally serialised by a keyed mutex, while
// different SKUs fan out in parallel.
//
// Order flows keep the Assignment Ledger on the platform order. Local pool
// changes are made first; the ledger is then written once, whole, per event.
// Nothing is rolled back on failure. Flows are safe to re-run instead:
// processed-event markers and per-line-item resume stop double allocation.
package engine
