package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lorenzobigazzi0/app/internal/clock"
	"github.com/lorenzobigazzi0/app/internal/dispatch"
	"github.com/lorenzobigazzi0/app/internal/mutation"
	"github.com/lorenzobigazzi0/app/internal/order"
	"github.com/lorenzobigazzi0/app/internal/realtime"
	"github.com/lorenzobigazzi0/app/internal/store"
)

// ErrAlreadyRunning is returned by a second concurrent call to Run.
var ErrAlreadyRunning = errors.New("engine already running")

// Loader fetches the authoritative order list. *api.Client implements it.
type Loader interface {
	FetchAll(ctx context.Context) ([]order.Order, error)
}

// Config selects the backend and channel and tunes the timers.
type Config struct {
	BaseURL string
	Channel realtime.Channel
	Token   string

	// RefreshInterval, when positive, adds a periodic snapshot on top of
	// the ones triggered by startup and reconnects.
	RefreshInterval time.Duration

	// Realtime options are passed to the connection manager.
	Realtime []realtime.Option
}

// Engine is the single-writer sync loop.
//
// Thread-safety model:
//   - Run(): must be called from exactly one goroutine
//   - Store(), Board(), Online(), Stats(), Refresh(): safe from any goroutine
//   - Observers are called from the Run goroutine only
type Engine struct {
	cfg        Config
	store      *store.Store
	loader     Loader
	sched      clock.Scheduler
	conn       *realtime.Manager
	dispatcher *dispatch.Dispatcher
	mutations  *mutation.Client
	queue      *eventQueue

	obsMu     sync.Mutex
	observers []Observer

	running       atomic.Bool
	online        atomic.Bool
	changePending atomic.Bool
	ctx           context.Context

	// Timeline-only state.
	onlineCount   int
	inflight      int
	refreshTimer  clock.Timer
	snapshots     atomic.Int64
	snapshotFails atomic.Int64
	lastSnapshot  atomic.Int64
}

// Option configures an Engine.
type Option func(*Engine)

// WithObserver registers an observer at construction.
func WithObserver(o Observer) Option {
	return func(e *Engine) {
		e.observers = append(e.observers, o)
	}
}

// WithRemote enables optimistic item mutations through Mutations().
func WithRemote(r mutation.Remote) Option {
	return func(e *Engine) {
		e.mutations = mutation.New(r, e.store, mutation.WithOnChange(func(string) {
			e.markChanged()
		}))
	}
}

// New wires an engine around st. Nothing runs until Run.
func New(cfg Config, st *store.Store, loader Loader, dialer realtime.Dialer, sched clock.Scheduler, opts ...Option) *Engine {
	e := &Engine{
		cfg:    cfg,
		store:  st,
		loader: loader,
		sched:  sched,
		queue:  newEventQueue(),
		ctx:    context.Background(),
	}
	e.dispatcher = dispatch.New(st, sink{e})
	e.conn = realtime.NewManager(dialer, sched, handler{e}, cfg.Realtime...)

	for _, opt := range opts {
		opt(e)
	}

	st.Subscribe(func(store.Change) { e.markChanged() })
	return e
}

// AddObserver registers an observer. Safe to call while running.
func (e *Engine) AddObserver(o Observer) {
	e.obsMu.Lock()
	defer e.obsMu.Unlock()
	e.observers = append(e.observers, o)
}

// Store returns the order store the engine writes to.
func (e *Engine) Store() *store.Store {
	return e.store
}

// Mutations returns the mutation client, or nil without WithRemote.
func (e *Engine) Mutations() *mutation.Client {
	return e.mutations
}

// Online reports whether the push channel is open.
func (e *Engine) Online() bool {
	return e.online.Load()
}

// Board returns the orders in display order at instant now, with any
// in-flight mutations applied.
func (e *Engine) Board(now time.Time) []order.Order {
	var orders []order.Order
	if e.mutations != nil {
		orders = e.mutations.Views()
	} else {
		orders = e.store.All()
	}
	return order.Sort(orders, now)
}

// Stats summarises what the engine has done so far.
type Stats struct {
	Online           bool           `json:"online"`
	Orders           int            `json:"orders"`
	Snapshots        int64          `json:"snapshots"`
	SnapshotFailures int64          `json:"snapshot_failures"`
	LastSnapshot     *time.Time     `json:"last_snapshot,omitempty"`
	Frames           dispatch.Stats `json:"frames"`
}

// Stats returns a snapshot of the counters.
func (e *Engine) Stats() Stats {
	s := Stats{
		Online:           e.online.Load(),
		Orders:           e.store.Len(),
		Snapshots:        e.snapshots.Load(),
		SnapshotFailures: e.snapshotFails.Load(),
		Frames:           e.dispatcher.Stats(),
	}
	if ns := e.lastSnapshot.Load(); ns != 0 {
		t := time.Unix(0, ns).UTC()
		s.LastSnapshot = &t
	}
	return s
}

// Refresh requests an out-of-band snapshot. Returns false once stopped.
func (e *Engine) Refresh() bool {
	return e.queue.Enqueue(Event{Type: EventRefresh, Reason: "manual"})
}

// Enqueue submits an event for processing by the Run loop.
// Thread-safe: may be called from any goroutine.
//
// Returns false if the engine has been stopped.
func (e *Engine) Enqueue(ev Event) bool {
	return e.queue.Enqueue(ev)
}

// Run requests the initial snapshot, opens the push channel and processes
// events until ctx is cancelled or Stop is called.
//
// CRITICAL: Must be called from exactly ONE goroutine.
//
// ERROR HANDLING: a failing event is logged with its context and processing
// continues.
func (e *Engine) Run(ctx context.Context) error {
	if !e.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	e.ctx = ctx

	slog.Info("engine starting", "channel", e.cfg.Channel, "server", e.cfg.BaseURL)

	if err := e.conn.Connect(e.cfg.BaseURL, e.cfg.Channel, e.cfg.Token); err != nil {
		e.queue.Close()
		return fmt.Errorf("connect: %w", err)
	}
	defer e.conn.Close()

	e.requestSnapshot("startup")
	e.armRefresh()
	defer e.stopRefresh()

	for {
		event, ok := e.queue.TryDequeue()
		if ok {
			if err := e.processEvent(event); err != nil {
				logEventError(event, err)
			}
			continue
		}

		select {
		case <-ctx.Done():
			slog.Info("engine stopping: context cancelled")
			e.queue.Close()
			return ctx.Err()

		case <-e.queue.Wait():
			// A stale signal can arrive after its event was already taken,
			// so only a closed queue ends the loop.
			if e.queue.Len() == 0 && e.queue.Closed() {
				slog.Info("engine stopping: queue closed")
				return nil
			}
		}
	}
}

// Stop gracefully shuts down the engine.
// Closes the event queue, which will cause Run() to return.
func (e *Engine) Stop() {
	e.queue.Close()
}

// processEvent routes an event to the appropriate handler.
// CRITICAL: Called only from Run() goroutine - single-writer guarantee.
func (e *Engine) processEvent(event Event) error {
	switch event.Type {
	case EventFrame:
		e.dispatcher.OnMessage(event.Frame)
		return nil

	case EventOnline:
		e.onlineCount++
		e.online.Store(true)
		e.notify(func(o Observer) { o.Connectivity(true) })
		// A reconnect may have missed frames; always reconcile. The first
		// connection only needs a fetch if the startup one is not pending.
		if e.onlineCount > 1 || e.inflight == 0 {
			e.requestSnapshot("reconnect")
		}
		return nil

	case EventOffline:
		slog.Warn("realtime offline", "channel", e.cfg.Channel, "error", event.Err)
		e.online.Store(false)
		e.notify(func(o Observer) { o.Connectivity(false) })
		return nil

	case EventSnapshot:
		return e.applySnapshot(event)

	case EventRefresh:
		e.requestSnapshot(event.Reason)
		if event.Reason == "periodic" {
			e.armRefresh()
		}
		return nil

	case EventChanged:
		e.changePending.Store(false)
		e.notify(func(o Observer) { o.OrdersChanged() })
		return nil

	default:
		return fmt.Errorf("unknown event type: %d", event.Type)
	}
}

// requestSnapshot starts a fetch off the timeline. The result comes back as
// an EventSnapshot. Outstanding fetches are never cancelled by the engine.
func (e *Engine) requestSnapshot(reason string) {
	e.inflight++
	ctx := e.ctx
	slog.Debug("snapshot requested", "reason", reason)
	go func() {
		orders, err := e.loader.FetchAll(ctx)
		e.queue.Enqueue(Event{Type: EventSnapshot, Orders: orders, Err: err, Reason: reason})
	}()
}

func (e *Engine) applySnapshot(event Event) error {
	if e.inflight > 0 {
		e.inflight--
	}
	if event.Err != nil {
		e.snapshotFails.Add(1)
		return fmt.Errorf("snapshot fetch (%s): %w", event.Reason, event.Err)
	}

	sum, err := e.store.ReplaceAll(event.Orders)
	if err != nil {
		e.snapshotFails.Add(1)
		return fmt.Errorf("snapshot apply (%s): %w", event.Reason, err)
	}
	e.snapshots.Add(1)
	e.lastSnapshot.Store(e.sched.Now().UnixNano())

	slog.Info("snapshot applied",
		"reason", event.Reason,
		"orders", len(event.Orders),
		"inserted", sum.Inserted,
		"replaced", sum.Replaced,
		"removed", sum.Removed,
	)
	return nil
}

func (e *Engine) armRefresh() {
	if e.cfg.RefreshInterval <= 0 {
		return
	}
	e.refreshTimer = e.sched.AfterFunc(e.cfg.RefreshInterval, func() {
		e.queue.Enqueue(Event{Type: EventRefresh, Reason: "periodic"})
	})
}

func (e *Engine) stopRefresh() {
	if e.refreshTimer != nil {
		e.refreshTimer.Stop()
	}
}

// markChanged coalesces store and overlay changes into one EventChanged.
func (e *Engine) markChanged() {
	if e.changePending.CompareAndSwap(false, true) {
		if !e.queue.Enqueue(Event{Type: EventChanged}) {
			e.changePending.Store(false)
		}
	}
}

func (e *Engine) notify(fn func(Observer)) {
	e.obsMu.Lock()
	obs := append([]Observer(nil), e.observers...)
	e.obsMu.Unlock()
	for _, o := range obs {
		fn(o)
	}
}

// logEventError logs a failed event with enough context to investigate.
func logEventError(event Event, err error) {
	attrs := []any{"error", err, "event", event.Type.String(), "seq", event.Seq}
	if event.Reason != "" {
		attrs = append(attrs, "reason", event.Reason)
	}
	if event.Type == EventSnapshot {
		slog.Warn("event processing failed, store left stale", attrs...)
		return
	}
	slog.Error("event processing failed", attrs...)
}

// handler adapts the connection manager callbacks onto the queue.
type handler struct{ e *Engine }

func (h handler) OnOnline() {
	h.e.queue.Enqueue(Event{Type: EventOnline})
}

func (h handler) OnOffline(err error) {
	h.e.queue.Enqueue(Event{Type: EventOffline, Err: err})
}

func (h handler) OnMessage(frame []byte) {
	h.e.queue.Enqueue(Event{Type: EventFrame, Frame: frame})
}

// sink forwards surfaced push events to observers. It runs on the timeline
// because the dispatcher is only called from processEvent.
type sink struct{ e *Engine }

func (s sink) Hello(h dispatch.Hello) {
	slog.Debug("realtime hello", "channel", h.Channel, "user", h.User)
}

func (s sink) CallCreated(c order.Call) {
	s.e.notify(func(o Observer) { o.CallCreated(c) })
}

func (s sink) CallAcked(id int64) {
	s.e.notify(func(o Observer) { o.CallAcked(id) })
}

func (s sink) PrintJob(r order.PrintResult) {
	s.e.notify(func(o Observer) { o.PrintJob(r) })
}
