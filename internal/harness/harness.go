package harness

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/lorenzobigazzi0/app/internal/board"
	"github.com/lorenzobigazzi0/app/internal/dispatch"
	"github.com/lorenzobigazzi0/app/internal/mutation"
	"github.com/lorenzobigazzi0/app/internal/order"
	"github.com/lorenzobigazzi0/app/internal/store"
	"github.com/lorenzobigazzi0/app/internal/testutil"
)

// Harness is the scenario execution state: a store, a dispatcher and a
// mutation client sharing one manual clock.
type Harness struct {
	store      *store.Store
	dispatcher *dispatch.Dispatcher
	mutations  *mutation.Client
	clock      *testutil.ManualScheduler
	remote     *scenarioRemote
	surfaced   *surfaceCounter
}

// Run executes a scenario and returns the result. An error means the
// scenario itself could not be executed; failed assertions are reported in
// the result.
func Run(scenario *Scenario) (*Result, error) {
	start, err := order.ParseTimestamp(scenario.Now)
	if err != nil {
		return nil, fmt.Errorf("now: %w", err)
	}

	h := newHarness(start)
	result := NewResult()

	if len(scenario.Snapshot) > 0 {
		if err := h.snapshot(scenario.Snapshot, result); err != nil {
			return nil, fmt.Errorf("initial snapshot: %w", err)
		}
	}

	for i, step := range scenario.Steps {
		if err := h.execute(step, result); err != nil {
			return nil, fmt.Errorf("steps[%d]: %w", i, err)
		}
	}

	now := h.clock.Now()
	result.Board = board.Build(h.store.All(), now)

	for _, errMsg := range h.evaluate(scenario.Assertions, now) {
		result.AddError(errMsg)
	}
	return result, nil
}

func newHarness(start time.Time) *Harness {
	clock := testutil.NewManualScheduler(start)
	st := store.New()
	surfaced := &surfaceCounter{counts: map[dispatch.Kind]int{}}
	remote := &scenarioRemote{store: st, now: clock.Now}
	return &Harness{
		store:      st,
		dispatcher: dispatch.New(st, surfaced),
		mutations:  mutation.New(remote, st),
		clock:      clock,
		remote:     remote,
		surfaced:   surfaced,
	}
}

func (h *Harness) execute(step Step, result *Result) error {
	switch step.kind() {
	case "frame":
		result.addTrace("frame", h.deliver([]byte(step.Frame)))
	case "push":
		raw, err := json.Marshal(step.Push)
		if err != nil {
			return fmt.Errorf("encode push: %w", err)
		}
		result.addTrace("push", h.deliver(raw))
	case "snapshot":
		return h.snapshot(*step.Snapshot, result)
	case "mutate":
		result.addTrace("mutate", h.mutate(*step.Mutate))
	case "advance":
		d, err := time.ParseDuration(step.Advance)
		if err != nil {
			return err
		}
		h.clock.Advance(d)
		result.addTrace("advance", fmt.Sprintf("%s now=%s", d, h.clock.Now().Format(time.RFC3339)))
	default:
		return errors.New("step must set exactly one of frame, push, snapshot, mutate, advance")
	}
	return nil
}

// deliver runs a frame through the dispatcher and describes what happened.
func (h *Harness) deliver(raw []byte) string {
	ev, err := dispatch.Decode(raw)
	if err != nil {
		h.dispatcher.OnMessage(raw)
		var de *dispatch.DecodeError
		if errors.As(err, &de) && de.Kind != "" {
			return string(de.Kind) + " discarded"
		}
		return "discarded"
	}

	before := h.dispatcher.Stats()
	h.dispatcher.Dispatch(ev)
	after := h.dispatcher.Stats()

	label := string(ev.Kind())
	switch e := ev.(type) {
	case dispatch.OrderCreated:
		label += " " + e.Order.ID
	case dispatch.OrderUpdated:
		label += " " + e.Order.ID
	}

	switch {
	case after.Applied > before.Applied:
		return label + " applied"
	case after.Unchanged > before.Unchanged:
		return label + " unchanged"
	case after.Surfaced > before.Surfaced:
		return label + " surfaced"
	case after.Ignored > before.Ignored:
		return label + " ignored"
	default:
		return label + " discarded"
	}
}

func (h *Harness) snapshot(docs []OrderDoc, result *Result) error {
	orders := make([]order.Order, len(docs))
	for i, d := range docs {
		o, err := d.Order()
		if err != nil {
			return fmt.Errorf("snapshot[%d]: %w", i, err)
		}
		orders[i] = o
	}
	sum, err := h.store.ReplaceAll(orders)
	if err != nil {
		return err
	}
	result.addTrace("snapshot", fmt.Sprintf("orders=%d inserted=%d replaced=%d unchanged=%d removed=%d",
		len(orders), sum.Inserted, sum.Replaced, sum.Unchanged, sum.Removed))
	return nil
}

func (h *Harness) mutate(m MutateStep) string {
	h.remote.setReject(m.Reject)
	defer h.remote.setReject("")

	label := fmt.Sprintf("%s/%d done=%t", m.Order, m.Item, m.Done)
	o, err := h.mutations.SetItemDone(context.Background(), m.Order, m.Item, m.Done)
	switch {
	case errors.Is(err, mutation.ErrUnknownOrder):
		return label + " refused: unknown order"
	case errors.Is(err, mutation.ErrUnknownItem):
		return label + " refused: unknown item"
	case err != nil:
		return label + " rolled back: " + m.Reject
	default:
		return label + " confirmed status=" + string(order.Derive(o))
	}
}

// scenarioRemote answers item mutations from the store the way the backend
// does: the flag flips and ready_at is stamped once every item is done.
type scenarioRemote struct {
	store *store.Store
	now   func() time.Time

	mu     sync.Mutex
	reject string
}

func (r *scenarioRemote) setReject(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reject = msg
}

func (r *scenarioRemote) SetItemDone(_ context.Context, orderID string, itemID int64, done bool) (order.Order, error) {
	r.mu.Lock()
	reject := r.reject
	r.mu.Unlock()
	if reject != "" {
		return order.Order{}, errors.New(reject)
	}

	o, ok := r.store.Get(orderID)
	if !ok {
		return order.Order{}, fmt.Errorf("order %s not found", orderID)
	}
	o, ok = o.WithItemDone(itemID, done)
	if !ok {
		return order.Order{}, fmt.Errorf("item %d not found", itemID)
	}
	if order.Derive(o) == order.StatusDone && o.ReadyAt == nil {
		at := r.now()
		o.ReadyAt = &at
		o.ServerStatus = order.ServerReady
	}
	return o, nil
}

// surfaceCounter is the dispatch.Sink of a scenario.
type surfaceCounter struct {
	counts map[dispatch.Kind]int
}

func (s *surfaceCounter) Hello(dispatch.Hello)       { s.counts[dispatch.KindHello]++ }
func (s *surfaceCounter) CallCreated(order.Call)     { s.counts[dispatch.KindCallCreated]++ }
func (s *surfaceCounter) CallAcked(int64)            { s.counts[dispatch.KindCallAcked]++ }
func (s *surfaceCounter) PrintJob(order.PrintResult) { s.counts[dispatch.KindPrintJob]++ }

func (s *surfaceCounter) summary() string {
	kinds := make([]string, 0, len(s.counts))
	for k, n := range s.counts {
		kinds = append(kinds, fmt.Sprintf("%s=%d", k, n))
	}
	sort.Strings(kinds)
	return strings.Join(kinds, " ")
}
