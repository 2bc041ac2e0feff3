// Package harness runs YAML scenarios against the real dispatcher and engine.
//
// Each scenario gets a fresh in-memory store, an in-memory platform seeded
// from the scenario, a deterministic clock and serial line-item processing,
// so the activity trace it produces is byte-for-byte reproducible.
//
// A scenario has three parts:
//
//	setup:       pools, platform state and product snapshots
//	events:      webhook deliveries, each with an optional expect clause
//	assertions:  checks against the final pools, ledgers, markers and activity
//
// Example:
//
//	name: reserve-two
//	description: order for two units reserves the lowest-numbered sub-units
//	setup:
//	  pools:
//	    - {sku: ABC, available: 3}
//	  platform:
//	    inventory: {ABC: 3}
//	    orders:
//	      "1001":
//	        line_items: [{id: li1, sku: ABC, quantity: 2}]
//	events:
//	  - topic: orders/create
//	    payload:
//	      order_id: "1001"
//	      line_items: [{id: li1, sku: ABC, quantity: 2}]
//	    expect:
//	      success: true
//	      statuses: {li1: reserved}
//	assertions:
//	  - {type: pool, sku: ABC, total: 3, available: 1}
//	  - {type: ledger, order_id: "1001", line_item: li1, names: [ABC-0001, ABC-0002]}
//
// Golden traces (RunWithGolden) hold the per-event outcomes and the activity
// log in canonical JSON under testdata/golden.
package harness
