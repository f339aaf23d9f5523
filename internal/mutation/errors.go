package mutation

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownOrder is returned when the order is not in the store.
	ErrUnknownOrder = errors.New("unknown order")
	// ErrUnknownItem is returned when the order has no such item.
	ErrUnknownItem = errors.New("unknown item")
)

// MutationRejected reports a state change that did not take effect. The
// local view has already been rolled back when the caller sees it.
type MutationRejected struct {
	OrderID string
	ItemID  int64
	Done    bool
	Err     error
}

// Error implements the error interface.
func (e *MutationRejected) Error() string {
	if e.ItemID == 0 {
		return fmt.Sprintf("mutation rejected (order=%s): %v", e.OrderID, e.Err)
	}
	return fmt.Sprintf("mutation rejected (order=%s, item=%d, done=%t): %v", e.OrderID, e.ItemID, e.Done, e.Err)
}

func (e *MutationRejected) Unwrap() error {
	return e.Err
}

// IsRejected reports whether err is or wraps a *MutationRejected.
func IsRejected(err error) bool {
	var mr *MutationRejected
	return errors.As(err, &mr)
}
