package order

import (
	"encoding/json"
	"fmt"
	"time"
)

// ServerStatus is the lifecycle state stored by the backend.
// It is informational only; the displayed status always comes from Derive.
type ServerStatus string

const (
	ServerOpen    ServerStatus = "OPEN"
	ServerReady   ServerStatus = "READY"
	ServerPrinted ServerStatus = "PRINTED"
	ServerClosed  ServerStatus = "CLOSED"
)

// Order is one table order as returned by the backend.
type Order struct {
	ID           string       `json:"public_id" validate:"required"`
	Table        int          `json:"table_number" validate:"min=1"`
	Waiter       string       `json:"waiter_name"`
	Covers       int          `json:"covers" validate:"min=0"`
	Apericena    int          `json:"apericena" validate:"min=0"`
	Note         *string      `json:"note"`
	ServerStatus ServerStatus `json:"status,omitempty"`
	CreatedAt    time.Time    `json:"created_at"`
	ReadyAt      *time.Time   `json:"ready_at"`
	Items        []Item       `json:"items" validate:"dive"`
}

// Item is one line of an order. Only Done changes after creation.
type Item struct {
	ID   int64   `json:"id"`
	Line int     `json:"line_no"`
	Name string  `json:"name" validate:"required"`
	Note *string `json:"note"`
	Qty  int     `json:"qty" validate:"min=1"`
	Done bool    `json:"is_done"`
}

// Item returns the item with the given id.
func (o Order) Item(id int64) (Item, bool) {
	for _, it := range o.Items {
		if it.ID == id {
			return it, true
		}
	}
	return Item{}, false
}

// TotalQty sums the quantity of every item.
func (o Order) TotalQty() int {
	n := 0
	for _, it := range o.Items {
		n += it.Qty
	}
	return n
}

// Clone returns a deep copy. Callers may mutate the copy freely.
func (o Order) Clone() Order {
	c := o
	if o.Note != nil {
		n := *o.Note
		c.Note = &n
	}
	if o.ReadyAt != nil {
		r := *o.ReadyAt
		c.ReadyAt = &r
	}
	if o.Items != nil {
		c.Items = make([]Item, len(o.Items))
		for i, it := range o.Items {
			c.Items[i] = it
			if it.Note != nil {
				n := *it.Note
				c.Items[i].Note = &n
			}
		}
	}
	return c
}

// WithItemDone returns a copy with the done flag of itemID set.
// The second result is false when the order has no such item.
func (o Order) WithItemDone(itemID int64, done bool) (Order, bool) {
	c := o.Clone()
	for i := range c.Items {
		if c.Items[i].ID == itemID {
			c.Items[i].Done = done
			return c, true
		}
	}
	return c, false
}

// UnmarshalJSON accepts both zoned RFC 3339 timestamps and the naive
// ISO 8601 form the backend emits for UTC values.
func (o *Order) UnmarshalJSON(data []byte) error {
	type plain Order
	var w struct {
		plain
		CreatedAt string  `json:"created_at"`
		ReadyAt   *string `json:"ready_at"`
	}
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	*o = Order(w.plain)
	if w.CreatedAt != "" {
		t, err := ParseTimestamp(w.CreatedAt)
		if err != nil {
			return fmt.Errorf("created_at: %w", err)
		}
		o.CreatedAt = t
	}
	o.ReadyAt = nil
	if w.ReadyAt != nil && *w.ReadyAt != "" {
		t, err := ParseTimestamp(*w.ReadyAt)
		if err != nil {
			return fmt.Errorf("ready_at: %w", err)
		}
		o.ReadyAt = &t
	}
	return nil
}

// CallType distinguishes who a call is addressed to.
type CallType string

const (
	CallWaiter CallType = "CALL_WAITER"
	CallBarman CallType = "CALL_BARMAN"
)

// Call is a transient notification. It is never kept in the order store.
type Call struct {
	ID         int64      `json:"id" validate:"min=1"`
	Type       CallType   `json:"call_type" validate:"required"`
	FromUserID *int64     `json:"from_user_id"`
	ToUserID   *int64     `json:"to_user_id"`
	TableID    *int64     `json:"table_id"`
	OrderID    *int64     `json:"order_id"`
	Message    *string    `json:"message"`
	Acked      bool       `json:"is_ack"`
	CreatedAt  time.Time  `json:"created_at"`
	AckedAt    *time.Time `json:"acked_at"`
}

// UnmarshalJSON applies the same timestamp rules as Order.
func (c *Call) UnmarshalJSON(data []byte) error {
	type plain Call
	var w struct {
		plain
		CreatedAt string  `json:"created_at"`
		AckedAt   *string `json:"acked_at"`
	}
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	*c = Call(w.plain)
	if w.CreatedAt != "" {
		t, err := ParseTimestamp(w.CreatedAt)
		if err != nil {
			return fmt.Errorf("created_at: %w", err)
		}
		c.CreatedAt = t
	}
	c.AckedAt = nil
	if w.AckedAt != nil && *w.AckedAt != "" {
		t, err := ParseTimestamp(*w.AckedAt)
		if err != nil {
			return fmt.Errorf("acked_at: %w", err)
		}
		c.AckedAt = &t
	}
	return nil
}

// PrintResult reports the outcome of a print request.
type PrintResult struct {
	OrderID string `json:"public_id,omitempty"`
	OK      bool   `json:"ok"`
	Error   string `json:"error,omitempty"`
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// ParseTimestamp parses a backend timestamp. Values without a zone are UTC.
func ParseTimestamp(s string) (time.Time, error) {
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}
