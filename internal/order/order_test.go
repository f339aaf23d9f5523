package order

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const wireOrder = `{
	"id": 12,
	"public_id": "A1B2C3",
	"table_id": 3,
	"table_number": 7,
	"waiter_id": 2,
	"waiter_name": "Marco",
	"covers": 4,
	"apericena": 2,
	"note": "senza ghiaccio",
	"status": "OPEN",
	"created_at": "2025-03-14T18:00:00.250000",
	"ready_at": null,
	"items": [
		{"id": 31, "line_no": 1, "menu_item_id": 5, "name": "Spritz", "note": null, "qty": 2, "is_done": true},
		{"id": 32, "line_no": 2, "menu_item_id": 9, "name": "Negroni", "note": "doppio", "qty": 1, "is_done": false}
	]
}`

func TestOrder_UnmarshalWire(t *testing.T) {
	var o Order
	require.NoError(t, json.Unmarshal([]byte(wireOrder), &o))

	assert.Equal(t, "A1B2C3", o.ID)
	assert.Equal(t, 7, o.Table)
	assert.Equal(t, "Marco", o.Waiter)
	assert.Equal(t, 4, o.Covers)
	assert.Equal(t, 2, o.Apericena)
	require.NotNil(t, o.Note)
	assert.Equal(t, "senza ghiaccio", *o.Note)
	assert.Equal(t, ServerOpen, o.ServerStatus)
	assert.Equal(t, time.Date(2025, 3, 14, 18, 0, 0, 250_000_000, time.UTC), o.CreatedAt)
	assert.Nil(t, o.ReadyAt)

	require.Len(t, o.Items, 2)
	assert.Equal(t, int64(31), o.Items[0].ID)
	assert.Equal(t, 2, o.Items[0].Qty)
	assert.True(t, o.Items[0].Done)
	assert.Nil(t, o.Items[0].Note)
	require.NotNil(t, o.Items[1].Note)
	assert.Equal(t, "doppio", *o.Items[1].Note)
	assert.Equal(t, StatusPrep, Derive(o))
}

func TestOrder_UnmarshalZonedTimestamps(t *testing.T) {
	raw := `{"public_id":"X","table_number":1,"created_at":"2025-03-14T19:00:00+01:00","ready_at":"2025-03-14T18:05:00Z","items":[]}`

	var o Order
	require.NoError(t, json.Unmarshal([]byte(raw), &o))

	assert.Equal(t, base, o.CreatedAt)
	require.NotNil(t, o.ReadyAt)
	assert.Equal(t, base.Add(5*time.Minute), *o.ReadyAt)
}

func TestOrder_UnmarshalBadTimestamp(t *testing.T) {
	raw := `{"public_id":"X","table_number":1,"created_at":"yesterday","items":[]}`

	var o Order
	err := json.Unmarshal([]byte(raw), &o)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "created_at")
}

func TestOrder_JSONRoundTripKeepsTimes(t *testing.T) {
	o := ready(mk("A", 0, items(true)), time.Minute)

	data, err := json.Marshal(o)
	require.NoError(t, err)

	var back Order
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, MustFingerprint(o), MustFingerprint(back))
}

func TestOrder_CloneIsDeep(t *testing.T) {
	o := ready(mk("A", 0, items(false, false)), time.Minute)
	o.Note = strp("tavolo fuori")
	o.Items[0].Note = strp("lime")

	c := o.Clone()
	c.Items[0].Done = true
	*c.Items[0].Note = "limone"
	*c.Note = "dentro"
	*c.ReadyAt = base

	assert.False(t, o.Items[0].Done)
	assert.Equal(t, "lime", *o.Items[0].Note)
	assert.Equal(t, "tavolo fuori", *o.Note)
	assert.Equal(t, base.Add(time.Minute), *o.ReadyAt)
}

func TestOrder_WithItemDone(t *testing.T) {
	o := mk("A", 0, items(false, false))

	c, ok := o.WithItemDone(2, true)
	require.True(t, ok)
	assert.True(t, c.Items[1].Done)
	assert.False(t, o.Items[1].Done, "original untouched")

	_, ok = o.WithItemDone(99, true)
	assert.False(t, ok)
}

func TestOrder_ItemAndTotalQty(t *testing.T) {
	o := mk("A", 0, items(false, true))
	o.Items[0].Qty = 3

	it, ok := o.Item(2)
	require.True(t, ok)
	assert.True(t, it.Done)

	_, ok = o.Item(7)
	assert.False(t, ok)

	assert.Equal(t, 4, o.TotalQty())
}

func TestCall_Unmarshal(t *testing.T) {
	raw := `{"id":5,"call_type":"CALL_WAITER","from_user_id":3,"to_user_id":null,"table_id":2,"order_id":12,"message":"conto","is_ack":false,"created_at":"2025-03-14T18:00:00","acked_at":null}`

	var c Call
	require.NoError(t, json.Unmarshal([]byte(raw), &c))

	assert.Equal(t, int64(5), c.ID)
	assert.Equal(t, CallWaiter, c.Type)
	require.NotNil(t, c.OrderID)
	assert.Equal(t, int64(12), *c.OrderID)
	assert.Nil(t, c.ToUserID)
	assert.Equal(t, base, c.CreatedAt)
	assert.Nil(t, c.AckedAt)
	assert.NoError(t, ValidateCall(c))
}

func TestParseTimestamp(t *testing.T) {
	tests := []struct {
		in   string
		want time.Time
	}{
		{"2025-03-14T18:00:00Z", base},
		{"2025-03-14T18:00:00", base},
		{"2025-03-14 18:00:00", base},
		{"2025-03-14T18:00:00.5", base.Add(500 * time.Millisecond)},
		{"2025-03-14T20:00:00+02:00", base},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseTimestamp(tt.in)
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "got %s", got)
		})
	}

	_, err := ParseTimestamp("14/03/2025")
	assert.Error(t, err)
}
