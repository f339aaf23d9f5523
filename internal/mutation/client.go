package mutation

import (
	"context"
	"log/slog"

	"github.com/lorenzobigazzi0/app/internal/order"
	"github.com/lorenzobigazzi0/app/internal/store"
)

// Remote performs the state change on the backend. *api.Client implements it.
type Remote interface {
	SetItemDone(ctx context.Context, orderID string, itemID int64, done bool) (order.Order, error)
}

// Orders is the local order collection. *store.Store implements it.
type Orders interface {
	Get(id string) (order.Order, bool)
	All() []order.Order
	Apply(o order.Order) (store.Outcome, error)
}

// Client coordinates optimistic item-done changes.
//
// Thread-safety: Client is safe for concurrent use.
type Client struct {
	remote   Remote
	orders   Orders
	overlay  *Overlay
	onChange func(orderID string)
}

// Option configures a Client.
type Option func(*Client)

// WithOnChange registers fn to run whenever the visible state of an order
// may have changed (optimistic apply, rollback or confirmation).
func WithOnChange(fn func(orderID string)) Option {
	return func(c *Client) {
		c.onChange = fn
	}
}

// New creates a mutation client.
func New(remote Remote, orders Orders, opts ...Option) *Client {
	c := &Client{
		remote:   remote,
		orders:   orders,
		overlay:  NewOverlay(),
		onChange: func(string) {},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetItemDone sets one item's done flag. The change is visible through View
// while the request is in flight. On success the backend's order is applied
// to the store and returned. On failure the view reverts and the error is a
// *MutationRejected. There is no automatic retry.
func (c *Client) SetItemDone(ctx context.Context, orderID string, itemID int64, done bool) (order.Order, error) {
	reject := func(err error) error {
		return &MutationRejected{OrderID: orderID, ItemID: itemID, Done: done, Err: err}
	}

	cur, ok := c.orders.Get(orderID)
	if !ok {
		return order.Order{}, reject(ErrUnknownOrder)
	}
	if _, ok := cur.Item(itemID); !ok {
		return order.Order{}, reject(ErrUnknownItem)
	}

	cmd := NewItemDoneCommand(orderID, itemID, done)
	cmd.Apply(c.overlay)
	c.onChange(orderID)
	defer func() {
		cmd.Undo(c.overlay)
		c.onChange(orderID)
	}()

	updated, err := c.remote.SetItemDone(ctx, orderID, itemID, done)
	if err != nil {
		slog.Warn("item update rejected", "order_id", orderID, "item_id", itemID, "done", done, "error", err)
		return order.Order{}, reject(err)
	}
	if _, err := c.orders.Apply(updated); err != nil {
		return order.Order{}, reject(err)
	}

	slog.Debug("item update confirmed", "order_id", orderID, "item_id", itemID, "done", done, "command_id", cmd.ID)
	return updated, nil
}

// MarkAllDone sets every not-done item of the order, one request at a time.
// It stops at the first rejection and returns it; items confirmed before
// that stay done.
func (c *Client) MarkAllDone(ctx context.Context, orderID string) (order.Order, error) {
	cur, ok := c.View(orderID)
	if !ok {
		return order.Order{}, &MutationRejected{OrderID: orderID, Err: ErrUnknownOrder}
	}

	for _, it := range cur.Items {
		if it.Done {
			continue
		}
		updated, err := c.SetItemDone(ctx, orderID, it.ID, true)
		if err != nil {
			return order.Order{}, err
		}
		cur = updated
	}
	return cur, nil
}

// View returns the order as the UI should show it: store data with every
// in-flight change applied.
func (c *Client) View(orderID string) (order.Order, bool) {
	o, ok := c.orders.Get(orderID)
	if !ok {
		return order.Order{}, false
	}
	return c.overlay.ApplyTo(o), true
}

// Views returns every order with in-flight changes applied, in store order.
func (c *Client) Views() []order.Order {
	all := c.orders.All()
	for i, o := range all {
		all[i] = c.overlay.ApplyTo(o)
	}
	return all
}

// Pending returns the number of requests in flight.
func (c *Client) Pending() int {
	return c.overlay.Len()
}
