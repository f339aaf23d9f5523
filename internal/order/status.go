package order

import (
	"fmt"
	"time"
)

// Status is the derived lifecycle label of an order. It is never stored.
type Status string

const (
	StatusNew  Status = "new"
	StatusPrep Status = "prep"
	StatusDone Status = "done"
)

// Label returns the station display text for the status.
func (s Status) Label() string {
	switch s {
	case StatusNew:
		return "IN ATTESA"
	case StatusPrep:
		return "IN PREPARAZIONE"
	case StatusDone:
		return "PRONTA"
	default:
		return string(s)
	}
}

// DoneCount returns how many items are marked done.
func DoneCount(o Order) int {
	n := 0
	for _, it := range o.Items {
		if it.Done {
			n++
		}
	}
	return n
}

// Derive computes the status from the item done flags only.
//
// The zero-done check runs first, so an order without items is new.
func Derive(o Order) Status {
	done := DoneCount(o)
	switch {
	case done == 0:
		return StatusNew
	case done < len(o.Items):
		return StatusPrep
	default:
		return StatusDone
	}
}

// Elapsed is the time an order has been open. Once the backend has stamped
// ReadyAt the value freezes at the turnaround time. Never negative.
func Elapsed(o Order, now time.Time) time.Duration {
	end := now
	if o.ReadyAt != nil {
		end = *o.ReadyAt
	}
	d := end.Sub(o.CreatedAt)
	if d < 0 {
		return 0
	}
	return d
}

// Turnaround returns ReadyAt - CreatedAt when the order has been completed.
func Turnaround(o Order) (time.Duration, bool) {
	if o.ReadyAt == nil {
		return 0, false
	}
	return o.ReadyAt.Sub(o.CreatedAt), true
}

// FormatMMSS renders a duration as zero-padded minutes and seconds.
// Minutes do not wrap at the hour.
func FormatMMSS(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	secs := int64(d / time.Second)
	return fmt.Sprintf("%02d:%02d", secs/60, secs%60)
}
