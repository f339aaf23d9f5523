package realtime

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/lorenzobigazzi0/app/internal/clock"
)

// Defaults for the connection timers.
const (
	// DefaultPingInterval stays well under the common 60s proxy idle timeout.
	DefaultPingInterval = 25 * time.Second
	// DefaultReconnectDelay is the fixed wait before every reconnect attempt.
	DefaultReconnectDelay = 2 * time.Second
	// DefaultDialTimeout bounds a single dial attempt.
	DefaultDialTimeout = 10 * time.Second
	// PingPayload is the literal keepalive frame the backend ignores.
	PingPayload = "ping"
)

// Socket is one open push connection.
//
// ReadMessage blocks until a frame arrives or the socket fails. WriteMessage
// may be called concurrently with ReadMessage. Close unblocks ReadMessage.
type Socket interface {
	ReadMessage() ([]byte, error)
	WriteMessage(data []byte) error
	Close() error
}

// Dialer opens sockets.
type Dialer interface {
	Dial(ctx context.Context, url string) (Socket, error)
}

// Handler receives connection lifecycle signals and inbound frames.
// Methods are called from Manager goroutines and must not block for long.
type Handler interface {
	OnOnline()
	OnOffline(err error)
	OnMessage(frame []byte)
}

type connState int

const (
	stateUnknown connState = iota
	stateOnline
	stateOffline
)

// Manager keeps at most one socket open and reconnects forever after a
// failure until Connect or Close is called again.
//
// Every Connect and Close starts a new generation. Timers and read loops
// belonging to an older generation find the generation changed and exit
// without touching state.
type Manager struct {
	dialer  Dialer
	sched   clock.Scheduler
	handler Handler

	pingInterval   time.Duration
	reconnectDelay time.Duration
	dialTimeout    time.Duration
	pingPayload    []byte

	mu        sync.Mutex
	gen       uint64
	channel   Channel
	target    string
	sock      Socket
	state     connState
	closed    bool
	pingTimer clock.Timer
	dialTimer clock.Timer
}

// Option configures a Manager.
type Option func(*Manager)

// WithPingInterval sets the keepalive period.
func WithPingInterval(d time.Duration) Option {
	return func(m *Manager) {
		m.pingInterval = d
	}
}

// WithReconnectDelay sets the wait before each reconnect attempt.
func WithReconnectDelay(d time.Duration) Option {
	return func(m *Manager) {
		m.reconnectDelay = d
	}
}

// WithDialTimeout bounds each dial attempt.
func WithDialTimeout(d time.Duration) Option {
	return func(m *Manager) {
		m.dialTimeout = d
	}
}

// WithPingPayload replaces the keepalive frame.
func WithPingPayload(p string) Option {
	return func(m *Manager) {
		m.pingPayload = []byte(p)
	}
}

// NewManager creates an idle Manager. Nothing happens until Connect.
func NewManager(dialer Dialer, sched clock.Scheduler, handler Handler, opts ...Option) *Manager {
	m := &Manager{
		dialer:         dialer,
		sched:          sched,
		handler:        handler,
		pingInterval:   DefaultPingInterval,
		reconnectDelay: DefaultReconnectDelay,
		dialTimeout:    DefaultDialTimeout,
		pingPayload:    []byte(PingPayload),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Connect tears down any existing connection and schedules a dial to the
// push endpoint derived from baseURL. It returns immediately; the outcome is
// reported through the Handler.
func (m *Manager) Connect(baseURL string, ch Channel, token string) error {
	target, err := SocketURL(baseURL, ch, token)
	if err != nil {
		return err
	}

	m.mu.Lock()
	wasOnline := m.teardownLocked()
	m.closed = false
	m.channel = ch
	m.target = target
	gen := m.gen
	m.dialTimer = m.sched.AfterFunc(0, func() { m.dial(gen) })
	m.mu.Unlock()

	slog.Info("realtime connecting", "channel", ch)
	if wasOnline {
		m.handler.OnOffline(&ConnectionLost{Channel: ch, Err: ErrClosed})
	}
	return nil
}

// Close tears down the connection and stops reconnecting.
func (m *Manager) Close() {
	m.mu.Lock()
	wasOnline := m.teardownLocked()
	m.closed = true
	ch := m.channel
	m.mu.Unlock()

	if wasOnline {
		m.handler.OnOffline(&ConnectionLost{Channel: ch, Err: ErrClosed})
	}
}

// Online reports whether a socket is currently open.
func (m *Manager) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state == stateOnline
}

// Send writes payload on the open socket. Without one it does nothing and
// returns false. A failed write closes the socket, which the read loop
// turns into a reconnect.
func (m *Manager) Send(payload []byte) bool {
	m.mu.Lock()
	sock := m.sock
	m.mu.Unlock()

	if sock == nil {
		return false
	}
	if err := sock.WriteMessage(payload); err != nil {
		slog.Warn("realtime write failed", "error", err)
		sock.Close()
		return false
	}
	return true
}

// teardownLocked closes the socket, cancels timers and starts a new
// generation. It reports whether the connection was online.
func (m *Manager) teardownLocked() bool {
	m.gen++
	if m.sock != nil {
		m.sock.Close()
		m.sock = nil
	}
	m.stopTimersLocked()
	wasOnline := m.state == stateOnline
	if wasOnline {
		m.state = stateOffline
	}
	return wasOnline
}

func (m *Manager) stopTimersLocked() {
	if m.pingTimer != nil {
		m.pingTimer.Stop()
		m.pingTimer = nil
	}
	if m.dialTimer != nil {
		m.dialTimer.Stop()
		m.dialTimer = nil
	}
}

func (m *Manager) dial(gen uint64) {
	m.mu.Lock()
	if gen != m.gen || m.closed {
		m.mu.Unlock()
		return
	}
	target := m.target
	m.dialTimer = nil
	m.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), m.dialTimeout)
	sock, err := m.dialer.Dial(ctx, target)
	cancel()

	m.mu.Lock()
	if gen != m.gen || m.closed {
		m.mu.Unlock()
		if sock != nil {
			sock.Close()
		}
		return
	}
	if err != nil {
		notify, ch := m.failLocked(gen)
		m.mu.Unlock()
		slog.Warn("realtime dial failed", "channel", ch, "error", err, "retry_in", m.reconnectDelay)
		if notify {
			m.handler.OnOffline(&ConnectionLost{Channel: ch, Err: err})
		}
		return
	}

	m.sock = sock
	m.state = stateOnline
	m.pingTimer = m.sched.AfterFunc(m.pingInterval, func() { m.ping(gen) })
	ch := m.channel
	m.mu.Unlock()

	slog.Info("realtime online", "channel", ch)
	m.handler.OnOnline()
	go m.readLoop(gen, sock)
	// The backend expects a keepalive as soon as the socket opens.
	m.Send(m.pingPayload)
}

// failLocked marks the connection offline and arms the single reconnect
// timer. It reports whether OnOffline must be emitted.
func (m *Manager) failLocked(gen uint64) (bool, Channel) {
	m.stopTimersLocked()
	notify := m.state != stateOffline
	m.state = stateOffline
	m.dialTimer = m.sched.AfterFunc(m.reconnectDelay, func() { m.dial(gen) })
	return notify, m.channel
}

func (m *Manager) readLoop(gen uint64, sock Socket) {
	for {
		data, err := sock.ReadMessage()
		if err != nil {
			m.lost(gen, sock, err)
			return
		}
		if !m.current(gen, sock) {
			return
		}
		m.handler.OnMessage(data)
	}
}

func (m *Manager) current(gen uint64, sock Socket) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return gen == m.gen && m.sock == sock
}

func (m *Manager) lost(gen uint64, sock Socket, cause error) {
	m.mu.Lock()
	if gen != m.gen || m.sock != sock || m.closed {
		m.mu.Unlock()
		return
	}
	sock.Close()
	m.sock = nil
	notify, ch := m.failLocked(gen)
	m.mu.Unlock()

	slog.Warn("realtime connection lost", "channel", ch, "error", cause, "retry_in", m.reconnectDelay)
	if notify {
		m.handler.OnOffline(&ConnectionLost{Channel: ch, Err: cause})
	}
}

func (m *Manager) ping(gen uint64) {
	m.mu.Lock()
	if gen != m.gen || m.sock == nil {
		m.mu.Unlock()
		return
	}
	m.pingTimer = m.sched.AfterFunc(m.pingInterval, func() { m.ping(gen) })
	m.mu.Unlock()

	m.Send(m.pingPayload)
}
