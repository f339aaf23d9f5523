package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lorenzobigazzi0/app/internal/engine"
	"github.com/lorenzobigazzi0/app/internal/order"
)

var t0 = time.Date(2025, 3, 14, 18, 0, 0, 0, time.UTC)

type fakeSource struct {
	orders []order.Order
	online bool
}

func (f *fakeSource) Board(now time.Time) []order.Order { return order.Sort(f.orders, now) }
func (f *fakeSource) Online() bool                      { return f.online }
func (f *fakeSource) Stats() engine.Stats               { return engine.Stats{Online: f.online, Orders: len(f.orders)} }

func newTestRouter(t *testing.T) (*gin.Engine, *fakeSource) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	src := &fakeSource{
		online: true,
		orders: []order.Order{
			{ID: "A1", Table: 4, Waiter: "Luca", CreatedAt: t0, Items: []order.Item{{ID: 1, Name: "birra", Qty: 1, Done: true}}},
			{ID: "B2", Table: 7, Waiter: "Sara", CreatedAt: t0.Add(time.Minute), Items: []order.Item{{ID: 2, Name: "spritz", Qty: 1}}},
		},
	}
	r := NewRouter(src, Config{Now: func() time.Time { return t0.Add(5 * time.Minute) }})
	return r, src
}

func get(t *testing.T, r http.Handler, path string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.Header.Set("Origin", "http://display.local")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return w, body
}

func TestHealthz(t *testing.T) {
	r, _ := newTestRouter(t)

	w, body := get(t, r, "/healthz")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, body["online"])
	assert.Equal(t, float64(2), body["orders"])
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestBoard(t *testing.T) {
	r, _ := newTestRouter(t)

	w, body := get(t, r, "/board")
	require.Equal(t, http.StatusOK, w.Code)
	rows := body["rows"].([]any)
	require.Len(t, rows, 2)
	first := rows[0].(map[string]any)
	assert.Equal(t, "B2", first["order_id"], "open order listed first")
	assert.Equal(t, "04:00", first["elapsed"])
	assert.Equal(t, "SPRITZ", first["items"].([]any)[0].(map[string]any)["name"])
}

func TestBoard_StatusFilter(t *testing.T) {
	r, _ := newTestRouter(t)

	_, body := get(t, r, "/board?status=done")
	rows := body["rows"].([]any)
	require.Len(t, rows, 1)
	assert.Equal(t, "A1", rows[0].(map[string]any)["order_id"])
}

func TestOrder(t *testing.T) {
	r, _ := newTestRouter(t)

	w, body := get(t, r, "/orders/A1")
	require.Equal(t, http.StatusOK, w.Code)
	row := body["row"].(map[string]any)
	assert.Equal(t, "PRONTA", row["label"])

	w, body = get(t, r, "/orders/nope")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "order not found", body["detail"])
}

func TestNoRoute(t *testing.T) {
	r, _ := newTestRouter(t)
	w, _ := get(t, r, "/missing")
	assert.Equal(t, http.StatusNotFound, w.Code)
}
