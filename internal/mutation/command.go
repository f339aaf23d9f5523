package mutation

import (
	"sync"

	"github.com/google/uuid"

	"github.com/lorenzobigazzi0/app/internal/order"
)

// ItemDoneCommand is one requested change of an item's done flag.
type ItemDoneCommand struct {
	ID      string
	OrderID string
	ItemID  int64
	Done    bool
}

// NewItemDoneCommand creates a command with a time-ordered id.
func NewItemDoneCommand(orderID string, itemID int64, done bool) *ItemDoneCommand {
	return &ItemDoneCommand{
		ID:      uuid.Must(uuid.NewV7()).String(),
		OrderID: orderID,
		ItemID:  itemID,
		Done:    done,
	}
}

// Apply makes the command visible through ov.
func (c *ItemDoneCommand) Apply(ov *Overlay) {
	ov.push(c)
}

// Undo removes the command from ov. Undoing twice is harmless.
func (c *ItemDoneCommand) Undo(ov *Overlay) {
	ov.remove(c)
}

// Overlay holds commands that are in flight. Later commands win over
// earlier ones for the same item.
//
// Thread-safety: Overlay is safe for concurrent use.
type Overlay struct {
	mu      sync.Mutex
	pending []*ItemDoneCommand
}

// NewOverlay creates an empty overlay.
func NewOverlay() *Overlay {
	return &Overlay{}
}

func (ov *Overlay) push(c *ItemDoneCommand) {
	ov.mu.Lock()
	defer ov.mu.Unlock()
	ov.pending = append(ov.pending, c)
}

func (ov *Overlay) remove(c *ItemDoneCommand) {
	ov.mu.Lock()
	defer ov.mu.Unlock()
	for i, p := range ov.pending {
		if p == c {
			ov.pending = append(ov.pending[:i], ov.pending[i+1:]...)
			return
		}
	}
}

// Len returns the number of commands in flight.
func (ov *Overlay) Len() int {
	ov.mu.Lock()
	defer ov.mu.Unlock()
	return len(ov.pending)
}

// Pending reports whether a command for the item is in flight.
func (ov *Overlay) Pending(orderID string, itemID int64) bool {
	ov.mu.Lock()
	defer ov.mu.Unlock()
	for _, p := range ov.pending {
		if p.OrderID == orderID && p.ItemID == itemID {
			return true
		}
	}
	return false
}

// ApplyTo returns a copy of o with every in-flight command for it applied.
func (ov *Overlay) ApplyTo(o order.Order) order.Order {
	ov.mu.Lock()
	defer ov.mu.Unlock()
	out := o.Clone()
	for _, p := range ov.pending {
		if p.OrderID != o.ID {
			continue
		}
		for i := range out.Items {
			if out.Items[i].ID == p.ItemID {
				out.Items[i].Done = p.Done
			}
		}
	}
	return out
}
