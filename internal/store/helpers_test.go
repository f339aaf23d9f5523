package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/lorenzobigazzi0/app/internal/order"
)

var t0 = time.Date(2025, 3, 14, 18, 0, 0, 0, time.UTC)

// testOrder builds a valid order with one item per done flag.
func testOrder(id string, done ...bool) order.Order {
	items := make([]order.Item, len(done))
	for i, d := range done {
		items[i] = order.Item{ID: int64(i + 1), Line: i + 1, Name: "Negroni", Qty: 1, Done: d}
	}
	return order.Order{
		ID:        id,
		Table:     3,
		Waiter:    "Luca",
		CreatedAt: t0,
		Items:     items,
	}
}

func orderIDs(orders []order.Order) []string {
	ids := make([]string, len(orders))
	for i, o := range orders {
		ids[i] = o.ID
	}
	return ids
}

// createTestMirror opens a mirror in a temp dir, closed on cleanup.
func createTestMirror(t *testing.T) *Mirror {
	t.Helper()
	m, err := OpenMirror(filepath.Join(t.TempDir(), "mirror.db"))
	if err != nil {
		t.Fatalf("OpenMirror() failed: %v", err)
	}
	t.Cleanup(func() { m.Close() })
	return m
}
