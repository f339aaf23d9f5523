package order

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidate(t *testing.T) {
	valid := mk("A", 0, items(false, true))

	tests := []struct {
		name    string
		mutate  func(o *Order)
		wantErr string
	}{
		{"valid", func(o *Order) {}, ""},
		{"no items", func(o *Order) { o.Items = nil }, ""},
		{"missing id", func(o *Order) { o.ID = "" }, "invalid order"},
		{"zero table", func(o *Order) { o.Table = 0 }, "invalid order"},
		{"negative covers", func(o *Order) { o.Covers = -1 }, "invalid order"},
		{"zero qty", func(o *Order) { o.Items[0].Qty = 0 }, "invalid order"},
		{"unnamed item", func(o *Order) { o.Items[1].Name = "" }, "invalid order"},
		{"duplicate item", func(o *Order) { o.Items[1].ID = o.Items[0].ID }, "duplicate item id"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := valid.Clone()
			tt.mutate(&o)
			err := Validate(o)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			if assert.Error(t, err) {
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}
