// Package store holds the client's current view of the order list.
//
// Store is the single mutable resource of the sync core. Every change goes
// through Apply (one order from a push frame or a mutation response) or
// ReplaceAll (an authoritative snapshot). Readers always get copies.
//
// # Iteration Order
//
// An order seen for the first time becomes the first entry; a known order
// is replaced where it stands. ReplaceAll adopts the snapshot's own order.
//
// # Idempotence
//
// Each entry keeps the order's content fingerprint. Applying an order whose
// fingerprint matches the stored one is reported as Unchanged and does not
// notify subscribers.
//
// # Mirror
//
// Mirror persists the current snapshot to SQLite so a restarted client can
// show the last known state before its first fetch. Only the current list is
// kept; there is no history.
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
package store
