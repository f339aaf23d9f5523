// Package dispatch decodes push frames into a closed set of events and
// routes each to its handler.
//
// Frames are decoded once at the boundary. A frame that fails to decode is
// discarded without touching any state; unknown frame types are ignored so
// that the backend can add new kinds without breaking older clients.
package dispatch
