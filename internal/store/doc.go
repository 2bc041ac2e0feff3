// Package store provides SQLite-backed durable storage for sub-unit pools.
//
// Tables:
//   - pools: one row per base SKU holding its sub-units as JSON
//   - product_snapshots: last-seen per-variant quantity/weight
//   - processed_events: duplicate-delivery markers
//   - activity_log: append-only activity sink
//
// # Atomic pool updates
//
// Every pool mutation goes through UpdatePool, which runs the caller's
// function between a read and a write inside one transaction and guards the
// write with a version compare-and-set. Read-modify-write outside UpdatePool
// is not supported.
//
// The function passed to UpdatePool must not call back into the Store: the
// connection pool holds a single connection and a nested call would block.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//
// Activity rows are ordered by seq (AUTOINCREMENT), never by timestamp.
package store
