package dispatch

import (
	"log/slog"
	"sync/atomic"

	"github.com/lorenzobigazzi0/app/internal/order"
	"github.com/lorenzobigazzi0/app/internal/store"
)

// Applier receives orders carried by push frames. *store.Store implements it.
type Applier interface {
	Apply(o order.Order) (store.Outcome, error)
}

// Sink receives the events that are surfaced to the caller instead of
// being stored.
type Sink interface {
	Hello(h Hello)
	CallCreated(c order.Call)
	CallAcked(callID int64)
	PrintJob(r order.PrintResult)
}

// NopSink discards every surfaced event.
type NopSink struct{}

func (NopSink) Hello(Hello)                {}
func (NopSink) CallCreated(order.Call)     {}
func (NopSink) CallAcked(int64)            {}
func (NopSink) PrintJob(order.PrintResult) {}

// Stats counts what the dispatcher did with the frames it received.
type Stats struct {
	Applied   int64 `json:"applied"`
	Unchanged int64 `json:"unchanged"`
	Surfaced  int64 `json:"surfaced"`
	Ignored   int64 `json:"ignored"`
	Discarded int64 `json:"discarded"`
}

// Dispatcher routes decoded frames.
//
// Thread-safety: OnMessage may be called from any goroutine, but the sync
// engine calls it from its single timeline only.
type Dispatcher struct {
	orders Applier
	sink   Sink

	applied   atomic.Int64
	unchanged atomic.Int64
	surfaced  atomic.Int64
	ignored   atomic.Int64
	discarded atomic.Int64
}

// New creates a dispatcher. A nil sink discards surfaced events.
func New(orders Applier, sink Sink) *Dispatcher {
	if sink == nil {
		sink = NopSink{}
	}
	return &Dispatcher{orders: orders, sink: sink}
}

// OnMessage decodes and routes one raw frame. It never fails: malformed
// frames are dropped and unknown kinds ignored.
func (d *Dispatcher) OnMessage(raw []byte) {
	ev, err := Decode(raw)
	if err != nil {
		d.discarded.Add(1)
		slog.Debug("discarding push frame", "error", err, "size", len(raw))
		return
	}
	d.Dispatch(ev)
}

// Dispatch routes an already decoded event.
func (d *Dispatcher) Dispatch(ev Event) {
	ev.dispatch(d)
}

// Stats returns a snapshot of the counters.
func (d *Dispatcher) Stats() Stats {
	return Stats{
		Applied:   d.applied.Load(),
		Unchanged: d.unchanged.Load(),
		Surfaced:  d.surfaced.Load(),
		Ignored:   d.ignored.Load(),
		Discarded: d.discarded.Load(),
	}
}

func (d *Dispatcher) applyOrder(kind Kind, o order.Order) {
	out, err := d.orders.Apply(o)
	if err != nil {
		d.discarded.Add(1)
		slog.Debug("discarding push order", "kind", kind, "order_id", o.ID, "error", err)
		return
	}
	if out == store.Unchanged {
		d.unchanged.Add(1)
	} else {
		d.applied.Add(1)
	}
	slog.Debug("push order applied", "kind", kind, "order_id", o.ID, "outcome", out)
}

func (e Hello) dispatch(d *Dispatcher) {
	d.surfaced.Add(1)
	d.sink.Hello(e)
}

func (e OrderCreated) dispatch(d *Dispatcher) {
	d.applyOrder(KindOrderCreated, e.Order)
}

func (e OrderUpdated) dispatch(d *Dispatcher) {
	d.applyOrder(KindOrderUpdated, e.Order)
}

func (e CallCreated) dispatch(d *Dispatcher) {
	d.surfaced.Add(1)
	d.sink.CallCreated(e.Call)
}

func (e CallAcked) dispatch(d *Dispatcher) {
	d.surfaced.Add(1)
	d.sink.CallAcked(e.CallID)
}

func (e PrintJob) dispatch(d *Dispatcher) {
	d.surfaced.Add(1)
	d.sink.PrintJob(e.Result)
}

func (e Unknown) dispatch(d *Dispatcher) {
	d.ignored.Add(1)
	slog.Debug("ignoring push frame", "type", e.Type)
}
