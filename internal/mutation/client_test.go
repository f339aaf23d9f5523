package mutation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lorenzobigazzi0/app/internal/order"
	"github.com/lorenzobigazzi0/app/internal/store"
)

var t0 = time.Date(2025, 3, 14, 18, 0, 0, 0, time.UTC)

// fakeRemote answers like the backend: it flips the flag on its own copy and
// returns the full order, unless an error is queued.
type fakeRemote struct {
	mu     sync.Mutex
	orders map[string]order.Order
	errs   []error
	calls  int
	gate   chan struct{}
}

func newFakeRemote(orders ...order.Order) *fakeRemote {
	r := &fakeRemote{orders: map[string]order.Order{}}
	for _, o := range orders {
		r.orders[o.ID] = o.Clone()
	}
	return r
}

func (r *fakeRemote) SetItemDone(ctx context.Context, orderID string, itemID int64, done bool) (order.Order, error) {
	if r.gate != nil {
		select {
		case <-r.gate:
		case <-ctx.Done():
			return order.Order{}, ctx.Err()
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if len(r.errs) > 0 {
		err := r.errs[0]
		r.errs = r.errs[1:]
		if err != nil {
			return order.Order{}, err
		}
	}
	o, ok := r.orders[orderID]
	if !ok {
		return order.Order{}, errors.New("404")
	}
	o, _ = o.WithItemDone(itemID, done)
	if order.Derive(o) == order.StatusDone && o.ReadyAt == nil {
		at := t0.Add(5 * time.Minute)
		o.ReadyAt = &at
		o.ServerStatus = order.ServerReady
	}
	r.orders[orderID] = o
	return o.Clone(), nil
}

func testOrder(id string, done ...bool) order.Order {
	items := make([]order.Item, len(done))
	for i, d := range done {
		items[i] = order.Item{ID: int64(10 + i), Line: i + 1, Name: "spritz", Qty: 1, Done: d}
	}
	return order.Order{ID: id, Table: 2, CreatedAt: t0, ServerStatus: order.ServerOpen, Items: items}
}

func setup(t *testing.T, orders ...order.Order) (*store.Store, *fakeRemote, *Client) {
	t.Helper()
	st := store.New()
	_, err := st.ReplaceAll(orders)
	require.NoError(t, err)
	remote := newFakeRemote(orders...)
	return st, remote, New(remote, st)
}

func TestSetItemDone_SuccessAppliesCanonicalOrder(t *testing.T) {
	st, _, c := setup(t, testOrder("A", false))

	got, err := c.SetItemDone(context.Background(), "A", 10, true)
	require.NoError(t, err)

	assert.True(t, got.Items[0].Done)
	require.NotNil(t, got.ReadyAt, "server stamped completion")

	stored, _ := st.Get("A")
	assert.Equal(t, order.MustFingerprint(got), order.MustFingerprint(stored))
	assert.Equal(t, 0, c.Pending())
}

func TestSetItemDone_FailureRevertsToPreCallValue(t *testing.T) {
	st, remote, c := setup(t, testOrder("A", false, true))
	remote.errs = []error{errors.New("503 service unavailable")}
	before, _ := st.Get("A")

	_, err := c.SetItemDone(context.Background(), "A", 10, true)
	require.Error(t, err)

	var rejected *MutationRejected
	require.ErrorAs(t, err, &rejected)
	assert.Equal(t, "A", rejected.OrderID)
	assert.Equal(t, int64(10), rejected.ItemID)
	assert.True(t, rejected.Done)
	assert.True(t, IsRejected(err))

	view, ok := c.View("A")
	require.True(t, ok)
	assert.False(t, view.Items[0].Done, "visible flag equals its pre-call value")
	after, _ := st.Get("A")
	assert.Equal(t, before, after)
	assert.Equal(t, 0, c.Pending())
}

func TestSetItemDone_OptimisticViewWhileInFlight(t *testing.T) {
	_, remote, c := setup(t, testOrder("A", false, false))
	remote.gate = make(chan struct{})

	done := make(chan error, 1)
	go func() {
		_, err := c.SetItemDone(context.Background(), "A", 11, true)
		done <- err
	}()

	require.Eventually(t, func() bool { return c.Pending() == 1 }, time.Second, time.Millisecond)
	view, _ := c.View("A")
	assert.True(t, view.Items[1].Done, "requested value shows before confirmation")
	assert.Equal(t, order.StatusPrep, order.Derive(view))

	close(remote.gate)
	require.NoError(t, <-done)
	view, _ = c.View("A")
	assert.True(t, view.Items[1].Done)
}

func TestSetItemDone_CancelledContextRollsBack(t *testing.T) {
	_, remote, c := setup(t, testOrder("A", false))
	remote.gate = make(chan struct{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.SetItemDone(ctx, "A", 10, true)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)

	view, _ := c.View("A")
	assert.False(t, view.Items[0].Done)
}

func TestSetItemDone_Guards(t *testing.T) {
	_, remote, c := setup(t, testOrder("A", false))

	_, err := c.SetItemDone(context.Background(), "missing", 10, true)
	assert.ErrorIs(t, err, ErrUnknownOrder)

	_, err = c.SetItemDone(context.Background(), "A", 99, true)
	assert.ErrorIs(t, err, ErrUnknownItem)

	assert.Equal(t, 0, remote.calls, "guards fail before any request")
}

func TestSetItemDone_InvalidResponseRejected(t *testing.T) {
	st, _, _ := setup(t, testOrder("A", false))
	bad := badRemote{}
	c := New(bad, st)

	_, err := c.SetItemDone(context.Background(), "A", 10, true)
	require.Error(t, err)
	assert.True(t, IsRejected(err))

	view, _ := c.View("A")
	assert.False(t, view.Items[0].Done)
}

type badRemote struct{}

func (badRemote) SetItemDone(context.Context, string, int64, bool) (order.Order, error) {
	return order.Order{ID: "A"}, nil
}

func TestSetItemDone_OnChangeNotified(t *testing.T) {
	st := store.New()
	_, err := st.Apply(testOrder("A", false))
	require.NoError(t, err)

	var seen []string
	c := New(newFakeRemote(testOrder("A", false)), st, WithOnChange(func(id string) { seen = append(seen, id) }))

	_, err = c.SetItemDone(context.Background(), "A", 10, true)
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "A"}, seen, "once on apply, once on settle")
}

func TestMarkAllDone(t *testing.T) {
	st, remote, c := setup(t, testOrder("A", true, false, false))

	got, err := c.MarkAllDone(context.Background(), "A")
	require.NoError(t, err)

	assert.Equal(t, order.StatusDone, order.Derive(got))
	assert.Equal(t, 2, remote.calls, "only pending items are sent")
	stored, _ := st.Get("A")
	assert.Equal(t, order.StatusDone, order.Derive(stored))
}

func TestMarkAllDone_StopsAtFirstRejection(t *testing.T) {
	st, remote, c := setup(t, testOrder("A", false, false, false))
	remote.errs = []error{nil, errors.New("boom")}

	_, err := c.MarkAllDone(context.Background(), "A")
	require.Error(t, err)
	assert.True(t, IsRejected(err))
	assert.Equal(t, 2, remote.calls)

	stored, _ := st.Get("A")
	assert.Equal(t, []bool{true, false, false}, doneFlags(stored), "confirmed items stay done")
}

func TestMarkAllDone_UnknownOrder(t *testing.T) {
	_, _, c := setup(t)
	_, err := c.MarkAllDone(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrUnknownOrder)
}

func TestViews(t *testing.T) {
	_, _, c := setup(t, testOrder("A", false), testOrder("B", true))
	views := c.Views()
	require.Len(t, views, 2)
	assert.Equal(t, "A", views[0].ID)
}

func doneFlags(o order.Order) []bool {
	out := make([]bool, len(o.Items))
	for i, it := range o.Items {
		out[i] = it.Done
	}
	return out
}
