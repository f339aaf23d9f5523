package order

import (
	"slices"
	"time"
)

// Less reports whether a should be listed before b at instant now.
//
// Orders that are not done come first, longest wait first. Done orders
// follow, fastest turnaround first. A done order the backend has not stamped
// yet is measured against now.
func Less(a, b Order, now time.Time) bool {
	aDone := Derive(a) == StatusDone
	bDone := Derive(b) == StatusDone
	if aDone != bDone {
		return !aDone
	}
	if !aDone {
		return now.Sub(a.CreatedAt) > now.Sub(b.CreatedAt)
	}
	return doneSpan(a, now) < doneSpan(b, now)
}

func doneSpan(o Order, now time.Time) time.Duration {
	if d, ok := Turnaround(o); ok {
		return d
	}
	return now.Sub(o.CreatedAt)
}

// Sort returns a new slice in display order. The input is not modified and
// orders that compare equal keep their relative position.
func Sort(orders []Order, now time.Time) []Order {
	out := slices.Clone(orders)
	slices.SortStableFunc(out, func(a, b Order) int {
		switch {
		case Less(a, b, now):
			return -1
		case Less(b, a, now):
			return 1
		default:
			return 0
		}
	})
	return out
}
