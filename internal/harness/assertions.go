package harness

import (
	"fmt"
	"strings"
	"time"

	"github.com/lorenzobigazzi0/app/internal/dispatch"
	"github.com/lorenzobigazzi0/app/internal/order"
)

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string // Assertion type for categorization
	Expected string // Human-readable expected outcome
	Actual   string // Human-readable actual outcome
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	return fmt.Sprintf("assertion failed: %s: expected %s, got %s", e.Type, e.Expected, e.Actual)
}

// evaluate checks every assertion against the final state and returns one
// message per failure.
func (h *Harness) evaluate(assertions []Assertion, now time.Time) []string {
	var failures []string
	for i, a := range assertions {
		if err := h.check(a, now); err != nil {
			failures = append(failures, fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return failures
}

func (h *Harness) check(a Assertion, now time.Time) error {
	switch a.Type {
	case AssertStatus:
		o, err := h.lookup(a)
		if err != nil {
			return err
		}
		return compare(a.Type, a.Expect, string(order.Derive(o)))

	case AssertSequence:
		sorted := order.Sort(h.mutations.Views(), now)
		ids := make([]string, len(sorted))
		for i, o := range sorted {
			ids[i] = o.ID
		}
		return compare(a.Type, formatIDs(a.Orders), formatIDs(ids))

	case AssertSize:
		return compare(a.Type, fmt.Sprint(a.Count), fmt.Sprint(h.store.Len()))

	case AssertItemDone:
		o, err := h.lookup(a)
		if err != nil {
			return err
		}
		it, ok := o.Item(a.Item)
		if !ok {
			return &AssertionError{Type: a.Type, Expected: fmt.Sprintf("item %d", a.Item), Actual: "no such item"}
		}
		return compare(a.Type, fmt.Sprint(*a.Done), fmt.Sprint(it.Done))

	case AssertElapsed:
		o, err := h.lookup(a)
		if err != nil {
			return err
		}
		return compare(a.Type, a.Expect, order.FormatMMSS(order.Elapsed(o, now)))

	case AssertSurfaced:
		got := h.surfaced.counts[dispatch.Kind(a.Kind)]
		if got != a.Count {
			return &AssertionError{
				Type:     a.Type,
				Expected: fmt.Sprintf("%s=%d", a.Kind, a.Count),
				Actual:   fmt.Sprintf("[%s]", h.surfaced.summary()),
			}
		}
		return nil

	default:
		return fmt.Errorf("unknown assertion type: %s", a.Type)
	}
}

func (h *Harness) lookup(a Assertion) (order.Order, error) {
	o, ok := h.mutations.View(a.Order)
	if !ok {
		return order.Order{}, &AssertionError{Type: a.Type, Expected: "order " + a.Order, Actual: "not in store"}
	}
	return o, nil
}

func compare(kind, expected, actual string) error {
	if expected == actual {
		return nil
	}
	return &AssertionError{Type: kind, Expected: expected, Actual: actual}
}

func formatIDs(ids []string) string {
	return "[" + strings.Join(ids, " ") + "]"
}
