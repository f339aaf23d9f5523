package order

import (
	"fmt"

	"github.com/go-playground/validator"
)

var validate = validator.New()

// Validate checks the structural constraints of an order received from the
// wire: a public id, a positive table number, non-negative counts and items
// with a name, a quantity of at least one and unique ids.
func Validate(o Order) error {
	if err := validate.Struct(o); err != nil {
		return fmt.Errorf("invalid order %q: %w", o.ID, err)
	}
	seen := make(map[int64]struct{}, len(o.Items))
	for _, it := range o.Items {
		if _, dup := seen[it.ID]; dup {
			return fmt.Errorf("invalid order %q: duplicate item id %d", o.ID, it.ID)
		}
		seen[it.ID] = struct{}{}
	}
	return nil
}

// ValidateCall checks a call received from the wire.
func ValidateCall(c Call) error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid call %d: %w", c.ID, err)
	}
	return nil
}
