package engine

import (
	"sync"

	"github.com/lorenzobigazzi0/app/internal/order"
)

// EventType distinguishes between event kinds.
type EventType int

const (
	// EventFrame carries one raw push frame.
	EventFrame EventType = iota + 1
	// EventOnline reports that the push channel opened.
	EventOnline
	// EventOffline reports that the push channel was lost.
	EventOffline
	// EventSnapshot carries the result of a snapshot fetch.
	EventSnapshot
	// EventRefresh is the periodic snapshot tick.
	EventRefresh
	// EventChanged reports that the store changed outside the timeline.
	EventChanged
)

func (t EventType) String() string {
	switch t {
	case EventFrame:
		return "frame"
	case EventOnline:
		return "online"
	case EventOffline:
		return "offline"
	case EventSnapshot:
		return "snapshot"
	case EventRefresh:
		return "refresh"
	case EventChanged:
		return "changed"
	default:
		return "unknown"
	}
}

// Event is one unit of work for the Run loop.
type Event struct {
	Type   EventType
	Seq    int64
	Frame  []byte
	Orders []order.Order
	Reason string
	Err    error
}

// eventQueue is a thread-safe FIFO queue for events.
//
// The queue is unbounded so that producers (socket read loop, fetch
// goroutines, timers) never block on the timeline.
//
// The queue uses a channel for signaling to enable context-aware waiting
// in the Run loop.
type eventQueue struct {
	mu     sync.Mutex
	events []Event
	seq    int64
	closed bool
	signal chan struct{} // Signals event availability (buffered, size 1)
}

// newEventQueue creates an empty event queue.
func newEventQueue() *eventQueue {
	return &eventQueue{
		events: make([]Event, 0, 64),
		signal: make(chan struct{}, 1),
	}
}

// Enqueue stamps the event with the next sequence number and adds it to
// the back of the queue. Returns false if the queue is closed.
func (q *eventQueue) Enqueue(e Event) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	q.seq++
	e.Seq = q.seq
	q.events = append(q.events, e)

	// Non-blocking: the buffer of 1 coalesces multiple signals
	select {
	case q.signal <- struct{}{}:
	default:
	}

	return true
}

// TryDequeue attempts to dequeue without blocking.
// Returns (Event{}, false) if queue is empty.
func (q *eventQueue) TryDequeue() (Event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.events) == 0 {
		return Event{}, false
	}

	e := q.events[0]

	// Drop the slot's references so frames and snapshots can be collected.
	q.events[0] = Event{}

	if len(q.events) == 1 {
		q.events = q.events[:0]
	} else {
		q.events = q.events[1:]
	}

	return e, true
}

// Wait returns a channel that signals when events may be available.
// Use with select for context-aware waiting:
//
//	select {
//	case <-ctx.Done():
//	    return ctx.Err()
//	case <-q.Wait():
//	    // Try TryDequeue
//	}
func (q *eventQueue) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the current queue length.
func (q *eventQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.events)
}

// Closed reports whether Close has been called.
func (q *eventQueue) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// Close signals that no more events will be enqueued.
// Wakes any blocked waiters by closing the signal channel.
func (q *eventQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}

	q.closed = true
	close(q.signal)
}
