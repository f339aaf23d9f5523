package engine_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lorenzobigazzi0/app/internal/engine"
	"github.com/lorenzobigazzi0/app/internal/order"
	"github.com/lorenzobigazzi0/app/internal/realtime"
	"github.com/lorenzobigazzi0/app/internal/store"
	"github.com/lorenzobigazzi0/app/internal/testutil"
)

var t0 = time.Date(2025, 3, 14, 18, 0, 0, 0, time.UTC)

const (
	wait = 2 * time.Second
	tick = 5 * time.Millisecond
)

// fakeLoader serves a settable snapshot. A non-nil gate holds every fetch
// until it is closed.
type fakeLoader struct {
	mu     sync.Mutex
	orders []order.Order
	err    error
	calls  int
	gate   chan struct{}
}

func (l *fakeLoader) FetchAll(ctx context.Context) ([]order.Order, error) {
	l.mu.Lock()
	l.calls++
	gate := l.gate
	l.mu.Unlock()

	if gate != nil {
		<-gate
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return nil, l.err
	}
	out := make([]order.Order, len(l.orders))
	for i, o := range l.orders {
		out[i] = o.Clone()
	}
	return out, nil
}

func (l *fakeLoader) set(err error, orders ...order.Order) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.orders = orders
	l.err = err
}

func (l *fakeLoader) Calls() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls
}

type observed struct {
	mu       sync.Mutex
	changes  int
	conn     []bool
	calls    []order.Call
	acks     []int64
	printing []order.PrintResult
}

func (o *observed) funcs() engine.ObserverFuncs {
	return engine.ObserverFuncs{
		OnOrdersChanged: func() { o.mu.Lock(); o.changes++; o.mu.Unlock() },
		OnConnectivity:  func(on bool) { o.mu.Lock(); o.conn = append(o.conn, on); o.mu.Unlock() },
		OnCallCreated:   func(c order.Call) { o.mu.Lock(); o.calls = append(o.calls, c); o.mu.Unlock() },
		OnCallAcked:     func(id int64) { o.mu.Lock(); o.acks = append(o.acks, id); o.mu.Unlock() },
		OnPrintJob:      func(r order.PrintResult) { o.mu.Lock(); o.printing = append(o.printing, r); o.mu.Unlock() },
	}
}

func (o *observed) connectivity() []bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]bool(nil), o.conn...)
}

func (o *observed) changeCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.changes
}

type fixture struct {
	sched  *testutil.ManualScheduler
	dialer *testutil.FakeDialer
	loader *fakeLoader
	store  *store.Store
	obs    *observed
	eng    *engine.Engine
	done   chan error
	cancel context.CancelFunc
}

func newFixture(t *testing.T, cfg engine.Config, opts ...engine.Option) *fixture {
	t.Helper()
	f := &fixture{
		sched:  testutil.NewManualScheduler(t0),
		dialer: testutil.NewFakeDialer(),
		loader: &fakeLoader{},
		store:  store.New(),
		obs:    &observed{},
		done:   make(chan error, 1),
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://bar.local:8000"
	}
	if cfg.Channel == "" {
		cfg.Channel = realtime.ChannelBar
	}
	if cfg.Token == "" {
		cfg.Token = "tok"
	}
	opts = append(opts, engine.WithObserver(f.obs.funcs()))
	f.eng = engine.New(cfg, f.store, f.loader, f.dialer, f.sched, opts...)
	return f
}

func (f *fixture) run(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	f.cancel = cancel
	go func() { f.done <- f.eng.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case <-f.done:
		case <-time.After(wait):
			t.Error("engine did not stop")
		}
	})
}

// dial fires the pending dial timer until the n-th socket is open and the
// engine has processed the online signal.
func (f *fixture) dial(t *testing.T, n int) *testutil.FakeSocket {
	t.Helper()
	require.Eventually(t, func() bool {
		f.sched.Advance(0)
		return len(f.dialer.Sockets()) >= n
	}, wait, tick)
	require.Eventually(t, f.eng.Online, wait, tick)
	return f.dialer.Last()
}

func testOrder(id string, done ...bool) order.Order {
	items := make([]order.Item, len(done))
	for i, d := range done {
		items[i] = order.Item{ID: int64(i + 1), Line: i + 1, Name: "negroni", Qty: 1, Done: d}
	}
	return order.Order{ID: id, Table: 4, Waiter: "Luca", CreatedAt: t0, Items: items}
}

func frame(t *testing.T, v map[string]any) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}

func ids(orders []order.Order) []string {
	out := make([]string, len(orders))
	for i, o := range orders {
		out[i] = o.ID
	}
	return out
}

func TestEngine_StartupSnapshotSeedsStore(t *testing.T) {
	f := newFixture(t, engine.Config{})
	f.loader.set(nil, testOrder("A"), testOrder("B", true))
	f.loader.gate = make(chan struct{})
	f.run(t)

	f.dial(t, 1)
	assert.Equal(t, []bool{true}, f.obs.connectivity())
	assert.Equal(t, 0, f.store.Len(), "nothing applied before the fetch returns")

	close(f.loader.gate)
	require.Eventually(t, func() bool { return f.store.Len() == 2 }, wait, tick)
	assert.Never(t, func() bool { return f.loader.Calls() > 1 }, 50*time.Millisecond, tick,
		"first online reuses the startup fetch")
	assert.Equal(t, int64(1), f.eng.Stats().Snapshots)
}

func TestEngine_FramesApplyInDeliveryOrder(t *testing.T) {
	f := newFixture(t, engine.Config{})
	f.run(t)
	sock := f.dial(t, 1)

	sock.Deliver(frame(t, map[string]any{"type": "order_created", "order": testOrder("A", false, false)}))
	sock.Deliver(frame(t, map[string]any{"type": "order_updated", "order": testOrder("A", true, false)}))

	require.Eventually(t, func() bool {
		o, ok := f.store.Get("A")
		return ok && order.Derive(o) == order.StatusPrep
	}, wait, tick)
	assert.Eventually(t, func() bool { return f.obs.changeCount() > 0 }, wait, tick)
}

func TestEngine_MalformedFrameLeavesStoreUnchanged(t *testing.T) {
	f := newFixture(t, engine.Config{})
	f.loader.set(nil, testOrder("A"))
	f.run(t)
	sock := f.dial(t, 1)
	require.Eventually(t, func() bool { return f.store.Len() == 1 }, wait, tick)
	before := f.store.All()

	sock.Deliver([]byte(`{"type":"order_created","order":`))

	require.Eventually(t, func() bool { return f.eng.Stats().Frames.Discarded == 1 }, wait, tick)
	assert.Equal(t, before, f.store.All())
}

func TestEngine_SurfacedEventsReachObserver(t *testing.T) {
	f := newFixture(t, engine.Config{})
	f.run(t)
	sock := f.dial(t, 1)

	sock.Deliver([]byte(`{"type":"call_created","event":"call.created","call":{"id":7,"call_type":"CALL_BARMAN","created_at":"2025-03-14T18:01:00"}}`))
	sock.Deliver([]byte(`{"type":"call_acked","call_id":7}`))
	sock.Deliver([]byte(`{"type":"print_job","public_id":"A","ok":false,"error":"paper out"}`))

	require.Eventually(t, func() bool {
		f.obs.mu.Lock()
		defer f.obs.mu.Unlock()
		return len(f.obs.calls) == 1 && len(f.obs.acks) == 1 && len(f.obs.printing) == 1
	}, wait, tick)
	assert.Equal(t, 0, f.store.Len(), "calls and print results are not stored")
	assert.Equal(t, "paper out", f.obs.printing[0].Error)
}

func TestEngine_ReconnectFetchesFreshSnapshot(t *testing.T) {
	f := newFixture(t, engine.Config{})
	f.loader.set(nil, testOrder("A"), testOrder("B"))
	f.run(t)
	sock := f.dial(t, 1)
	require.Eventually(t, func() bool { return f.store.Len() == 2 }, wait, tick)

	// B is deleted server-side while we are away; no frame announces it.
	f.loader.set(nil, testOrder("A", true))
	sock.Close()
	require.Eventually(t, func() bool { return !f.eng.Online() }, wait, tick)
	assert.Equal(t, 1, f.sched.PendingWithin(realtime.DefaultReconnectDelay))

	f.sched.Advance(realtime.DefaultReconnectDelay)
	require.Eventually(t, f.eng.Online, wait, tick)

	require.Eventually(t, func() bool { return f.loader.Calls() == 2 }, wait, tick)
	require.Eventually(t, func() bool { return f.store.Len() == 1 }, wait, tick)
	got, _ := f.store.Get("A")
	assert.Equal(t, order.StatusDone, order.Derive(got))
	assert.Equal(t, []bool{true, false, true}, f.obs.connectivity())
}

func TestEngine_FailedSnapshotKeepsStaleStore(t *testing.T) {
	f := newFixture(t, engine.Config{})
	f.loader.set(nil, testOrder("A"))
	f.run(t)
	sock := f.dial(t, 1)
	require.Eventually(t, func() bool { return f.store.Len() == 1 }, wait, tick)

	f.loader.set(errors.New("502 bad gateway"))
	sock.Close()
	require.Eventually(t, func() bool { return !f.eng.Online() }, wait, tick)
	f.sched.Advance(realtime.DefaultReconnectDelay)

	require.Eventually(t, func() bool { return f.eng.Stats().SnapshotFailures == 1 }, wait, tick)
	assert.Equal(t, []string{"A"}, ids(f.store.All()))
}

func TestEngine_PeriodicRefresh(t *testing.T) {
	f := newFixture(t, engine.Config{RefreshInterval: 30 * time.Second})
	f.run(t)
	f.dial(t, 1)
	require.Eventually(t, func() bool { return f.eng.Stats().Snapshots >= 1 }, wait, tick)
	calls := f.loader.Calls()

	f.loader.set(nil, testOrder("Z"))
	f.sched.Advance(30 * time.Second)

	require.Eventually(t, func() bool { return f.loader.Calls() == calls+1 }, wait, tick)
	require.Eventually(t, func() bool { return f.store.Len() == 1 }, wait, tick)

	// The tick re-arms itself.
	f.sched.Advance(30 * time.Second)
	require.Eventually(t, func() bool { return f.loader.Calls() == calls+2 }, wait, tick)
}

func TestEngine_ManualRefresh(t *testing.T) {
	f := newFixture(t, engine.Config{})
	f.run(t)
	f.dial(t, 1)
	require.Eventually(t, func() bool { return f.eng.Stats().Snapshots >= 1 }, wait, tick)
	calls := f.loader.Calls()

	require.True(t, f.eng.Refresh())
	require.Eventually(t, func() bool { return f.loader.Calls() == calls+1 }, wait, tick)
}

func TestEngine_BoardSortsByPriority(t *testing.T) {
	f := newFixture(t, engine.Config{})
	a := testOrder("A", true, true)
	ready := t0.Add(4 * time.Minute)
	a.ReadyAt = &ready
	b := testOrder("B", false)
	f.loader.set(nil, a, b)
	f.run(t)
	f.dial(t, 1)
	require.Eventually(t, func() bool { return f.store.Len() == 2 }, wait, tick)

	assert.Equal(t, []string{"B", "A"}, ids(f.eng.Board(t0.Add(10*time.Minute))))
}

func TestEngine_RunTwice(t *testing.T) {
	f := newFixture(t, engine.Config{})
	f.run(t)
	f.dial(t, 1)

	err := f.eng.Run(context.Background())
	assert.ErrorIs(t, err, engine.ErrAlreadyRunning)
}

func TestEngine_StopEndsRun(t *testing.T) {
	f := newFixture(t, engine.Config{})
	done := make(chan error, 1)
	go func() { done <- f.eng.Run(context.Background()) }()
	f.dial(t, 1)

	f.eng.Stop()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(wait):
		t.Fatal("Run did not return after Stop")
	}
	assert.True(t, f.dialer.Last().Closed(), "socket closed on exit")
	assert.False(t, f.eng.Refresh(), "stopped engine rejects events")
}

func TestEngine_RejectsInvalidChannel(t *testing.T) {
	f := newFixture(t, engine.Config{Channel: "kitchen"})
	err := f.eng.Run(context.Background())
	assert.Error(t, err)
}
