package order

import "time"

var base = time.Date(2025, 3, 14, 18, 0, 0, 0, time.UTC)

func items(done ...bool) []Item {
	out := make([]Item, len(done))
	for i, d := range done {
		out[i] = Item{ID: int64(i + 1), Line: i + 1, Name: "spritz", Qty: 1, Done: d}
	}
	return out
}

func mk(id string, createdOffset time.Duration, its []Item) Order {
	return Order{
		ID:        id,
		Table:     4,
		Waiter:    "Giulia",
		CreatedAt: base.Add(createdOffset),
		Items:     its,
	}
}

func ready(o Order, after time.Duration) Order {
	t := o.CreatedAt.Add(after)
	o.ReadyAt = &t
	return o
}

func strp(s string) *string { return &s }
