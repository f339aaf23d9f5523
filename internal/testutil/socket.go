package testutil

import (
	"context"
	"errors"
	"sync"

	"github.com/lorenzobigazzi0/app/internal/realtime"
)

// ErrSocketClosed is returned by FakeSocket reads after Close.
var ErrSocketClosed = errors.New("fake socket closed")

// FakeSocket is an in-memory realtime.Socket. Frames queued with Deliver are
// returned by ReadMessage; writes are recorded.
type FakeSocket struct {
	in   chan []byte
	done chan struct{}

	mu       sync.Mutex
	written  [][]byte
	closed   bool
	writeErr error
}

// NewFakeSocket creates an open socket.
func NewFakeSocket() *FakeSocket {
	return &FakeSocket{
		in:   make(chan []byte, 64),
		done: make(chan struct{}),
	}
}

// ReadMessage blocks until a frame is delivered or the socket closes.
// Frames delivered before Close are still returned first.
func (s *FakeSocket) ReadMessage() ([]byte, error) {
	select {
	case data := <-s.in:
		return data, nil
	default:
	}
	select {
	case data := <-s.in:
		return data, nil
	case <-s.done:
		return nil, ErrSocketClosed
	}
}

// WriteMessage records data, or fails after SetWriteError.
func (s *FakeSocket) WriteMessage(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSocketClosed
	}
	if s.writeErr != nil {
		return s.writeErr
	}
	s.written = append(s.written, append([]byte(nil), data...))
	return nil
}

// Close closes the socket. Safe to call more than once.
func (s *FakeSocket) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.done)
	}
	return nil
}

// Deliver queues an inbound frame.
func (s *FakeSocket) Deliver(frame []byte) {
	s.in <- frame
}

// SetWriteError makes subsequent writes fail with err.
func (s *FakeSocket) SetWriteError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writeErr = err
}

// Written returns a copy of every frame written so far.
func (s *FakeSocket) Written() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.written))
	for i, w := range s.written {
		out[i] = string(w)
	}
	return out
}

// Closed reports whether Close was called.
func (s *FakeSocket) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// FakeDialer is a realtime.Dialer that hands out FakeSockets. Queued
// failures are returned by the next dials, in order.
type FakeDialer struct {
	mu       sync.Mutex
	urls     []string
	failures []error
	sockets  []*FakeSocket
	writeErr error
}

var _ realtime.Dialer = (*FakeDialer)(nil)

// NewFakeDialer creates a dialer whose dials succeed by default.
func NewFakeDialer() *FakeDialer {
	return &FakeDialer{}
}

// FailNext queues errors for the next len(errs) dials.
func (d *FakeDialer) FailNext(errs ...error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failures = append(d.failures, errs...)
}

// FailWrites makes every socket dialed afterwards fail its writes with err.
func (d *FakeDialer) FailWrites(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.writeErr = err
}

// Dial records the url and returns a new socket or the next queued failure.
func (d *FakeDialer) Dial(_ context.Context, url string) (realtime.Socket, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.urls = append(d.urls, url)
	if len(d.failures) > 0 {
		err := d.failures[0]
		d.failures = d.failures[1:]
		if err != nil {
			return nil, err
		}
	}
	s := NewFakeSocket()
	if d.writeErr != nil {
		s.SetWriteError(d.writeErr)
	}
	d.sockets = append(d.sockets, s)
	return s, nil
}

// Dials returns how many dial attempts were made.
func (d *FakeDialer) Dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.urls)
}

// URLs returns every dialed url.
func (d *FakeDialer) URLs() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.urls...)
}

// Last returns the most recently opened socket, or nil.
func (d *FakeDialer) Last() *FakeSocket {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.sockets) == 0 {
		return nil
	}
	return d.sockets[len(d.sockets)-1]
}

// Sockets returns every socket opened so far.
func (d *FakeDialer) Sockets() []*FakeSocket {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*FakeSocket(nil), d.sockets...)
}
