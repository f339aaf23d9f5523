// Package engine runs the order sync timeline.
//
// ARCHITECTURE:
//
// Single-Writer Event Loop:
// Push frames, connectivity changes, snapshot results and refresh ticks are
// all turned into events on one FIFO queue. Engine.Run dequeues and handles
// them one at a time, so no handler ever preempts another and the order
// store sees changes in delivery order.
//
// Event Processing Flow:
//  1. The realtime Manager reports online/offline/frame through the Handler
//     methods, which only enqueue
//  2. Snapshot fetches run on their own goroutine and enqueue their result
//  3. Run applies each event: frames go through the dispatcher, snapshots
//     replace the store wholesale
//  4. Observers are told about connectivity, calls, print jobs and order
//     changes from the Run goroutine
//
// Reconciliation:
// Every reconnect triggers a fresh snapshot. Frames that arrive while that
// fetch is in flight are applied immediately; whichever write reaches the
// store last wins. A stale snapshot that lands after newer frames is still
// applied. The protocol has no sequence numbers to do better.
//
// Nothing here is fatal. A failed fetch leaves the store stale until the
// next reconnect or refresh.
package engine
