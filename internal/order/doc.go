// Package order defines the order, item and call entities exchanged with the
// bar backend, together with the pure functions derived from them.
//
// Nothing in this package holds state. Status, elapsed time and display
// priority are recomputed from raw order data on every call:
//
//   - Derive maps an order's item flags to new, prep or done
//   - Elapsed and Turnaround measure wait and completion time
//   - Sort orders a collection for display (done orders last)
//   - Fingerprint gives a content hash used for idempotent application
//
// Orders decode from the backend's JSON shape. Timestamps without a zone
// designator are read as UTC.
package order
