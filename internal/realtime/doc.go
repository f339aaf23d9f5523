// Package realtime owns the push channel to the backend: one socket at a
// time, a keepalive, and an unconditional reconnect loop.
//
// The Manager never blocks its caller. Dialing, keepalive and reconnection
// are driven by a clock.Scheduler, so tests can step through time with a
// manual scheduler instead of sleeping.
//
// Lifecycle signals reach the Handler:
//
//   - OnOnline after every successful dial
//   - OnMessage for every inbound frame, after OnOnline for that socket
//   - OnOffline once per transition out of the online (or initial) state
//
// The channel guarantees neither delivery nor ordering. Callers reconcile
// with a full snapshot on every OnOnline.
package realtime
