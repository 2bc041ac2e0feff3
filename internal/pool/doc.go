// Package pool models the per-SKU pool of numbered sub-units.
//
// A sub-unit is named {baseSKU}-{NNNN} where NNNN is a zero-padded sequence
// number. Numbers are never recycled: new sub-units always continue from the
// highest suffix present in the pool, available or not.
//
// Storage order is insertion order, but nothing here relies on it. Every
// "first available" or "last available" decision is taken on the available
// subsequence sorted ascending by numeric suffix (see Query).
//
// All mutating methods operate in memory on a *Pool. Callers persist the
// result through the store's atomic update primitive so that the read and the
// write happen as one unit.
package pool
