package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/lorenzobigazzi0/app/internal/order"
)

// wireLayout is the naive UTC timestamp the backend emits.
const wireLayout = "2006-01-02T15:04:05.000000"

// RecordedRequest is one request seen by a Backend.
type RecordedRequest struct {
	Method    string
	Path      string
	Query     string
	RequestID string
}

// Backend is an in-process stand-in for the bar backend: the REST routes the
// clients use plus the /ws push channel. Every mutation is broadcast to the
// open sockets the way the real server does it.
//
// Thread-safety: all methods are safe for concurrent use.
type Backend struct {
	Token  string
	Server *httptest.Server

	mu       sync.Mutex
	now      func() time.Time
	orders   []order.Order
	calls    map[int64]order.Call
	nextCall int64
	conns    map[*websocket.Conn]string
	requests []RecordedRequest
	failures map[string][]int
	printErr string
	pings    int
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// NewBackend starts a backend seeded with orders. It is closed on cleanup.
func NewBackend(t *testing.T, orders ...order.Order) *Backend {
	t.Helper()
	gin.SetMode(gin.TestMode)

	b := &Backend{
		Token:    "test-token",
		now:      func() time.Time { return time.Now().UTC() },
		calls:    map[int64]order.Call{},
		conns:    map[*websocket.Conn]string{},
		failures: map[string][]int{},
	}
	b.Seed(orders...)

	router := gin.New()
	router.Use(b.record, b.inject)
	router.GET("/ws", b.handleSocket)

	api := router.Group("/api", b.authenticate)
	api.GET("/orders", b.listOrders)
	api.PATCH("/orders/:public_id/items/:item_id", b.setItemDone)
	api.POST("/orders/:public_id/print", b.printOrder)
	api.POST("/calls", b.createCall)
	api.POST("/calls/:call_id/ack", b.ackCall)

	b.Server = httptest.NewServer(router)
	t.Cleanup(b.Close)
	return b
}

// URL returns the base URL of the server.
func (b *Backend) URL() string {
	return b.Server.URL
}

// Close drops every socket and stops the server.
func (b *Backend) Close() {
	b.DropSockets()
	b.Server.Close()
}

// SetNow fixes the clock used for ready_at and call timestamps.
func (b *Backend) SetNow(now func() time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.now = now
}

// Seed replaces the stored orders without broadcasting.
func (b *Backend) Seed(orders ...order.Order) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.orders = make([]order.Order, len(orders))
	for i, o := range orders {
		b.orders[i] = o.Clone()
	}
}

// Put inserts or replaces an order and broadcasts order_created or
// order_updated accordingly.
func (b *Backend) Put(o order.Order) {
	b.mu.Lock()
	defer b.mu.Unlock()
	kind := "order_created"
	if i := b.indexLocked(o.ID); i >= 0 {
		b.orders[i] = o.Clone()
		kind = "order_updated"
	} else {
		b.orders = append(b.orders, o.Clone())
	}
	b.broadcastLocked(gin.H{"type": kind, "order": WireOrder(o)})
}

// Remove deletes an order silently, like server-side archival.
func (b *Backend) Remove(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if i := b.indexLocked(id); i >= 0 {
		b.orders = append(b.orders[:i], b.orders[i+1:]...)
	}
}

// Orders returns a copy of the stored orders.
func (b *Backend) Orders() []order.Order {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]order.Order, len(b.orders))
	for i, o := range b.orders {
		out[i] = o.Clone()
	}
	return out
}

// Broadcast sends v as JSON to every open socket. A []byte is sent as is.
func (b *Backend) Broadcast(v any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.broadcastLocked(v)
}

// DropSockets closes every open socket from the server side.
func (b *Backend) DropSockets() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for c := range b.conns {
		c.Close()
		delete(b.conns, c)
	}
}

// Sockets returns the number of open sockets.
func (b *Backend) Sockets() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.conns)
}

// Pings returns how many keepalive frames were received.
func (b *Backend) Pings() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pings
}

// Fail makes the next len(statuses) requests matching route answer with
// those statuses. route is "METHOD /pattern" using gin route syntax, for
// example "PATCH /api/orders/:public_id/items/:item_id".
func (b *Backend) Fail(route string, statuses ...int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures[route] = append(b.failures[route], statuses...)
}

// SetPrintError makes later print jobs fail with msg. Empty clears it.
func (b *Backend) SetPrintError(msg string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.printErr = msg
}

// Requests returns every request seen so far.
func (b *Backend) Requests() []RecordedRequest {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]RecordedRequest(nil), b.requests...)
}

// WireOrder renders o the way the backend serialises it, with naive UTC
// timestamps.
func WireOrder(o order.Order) map[string]any {
	items := make([]map[string]any, len(o.Items))
	for i, it := range o.Items {
		items[i] = map[string]any{
			"id":      it.ID,
			"line_no": it.Line,
			"name":    it.Name,
			"note":    it.Note,
			"qty":     it.Qty,
			"is_done": it.Done,
		}
	}
	var ready any
	if o.ReadyAt != nil {
		ready = o.ReadyAt.UTC().Format(wireLayout)
	}
	status := o.ServerStatus
	if status == "" {
		status = order.ServerOpen
	}
	return map[string]any{
		"public_id":    o.ID,
		"table_number": o.Table,
		"waiter_name":  o.Waiter,
		"covers":       o.Covers,
		"apericena":    o.Apericena,
		"note":         o.Note,
		"status":       status,
		"created_at":   o.CreatedAt.UTC().Format(wireLayout),
		"ready_at":     ready,
		"items":        items,
	}
}

func wireCall(c order.Call) map[string]any {
	var acked any
	if c.AckedAt != nil {
		acked = c.AckedAt.UTC().Format(wireLayout)
	}
	return map[string]any{
		"id":           c.ID,
		"call_type":    c.Type,
		"from_user_id": c.FromUserID,
		"to_user_id":   c.ToUserID,
		"table_id":     c.TableID,
		"order_id":     c.OrderID,
		"message":      c.Message,
		"is_ack":       c.Acked,
		"created_at":   c.CreatedAt.UTC().Format(wireLayout),
		"acked_at":     acked,
	}
}

func (b *Backend) record(c *gin.Context) {
	b.mu.Lock()
	b.requests = append(b.requests, RecordedRequest{
		Method:    c.Request.Method,
		Path:      c.Request.URL.Path,
		Query:     c.Request.URL.RawQuery,
		RequestID: c.GetHeader("X-Request-ID"),
	})
	b.mu.Unlock()
	c.Next()
}

// inject answers with a queued failure status before the handler runs.
func (b *Backend) inject(c *gin.Context) {
	key := c.Request.Method + " " + c.FullPath()
	b.mu.Lock()
	queued := b.failures[key]
	status := 0
	if len(queued) > 0 {
		status = queued[0]
		b.failures[key] = queued[1:]
	}
	b.mu.Unlock()

	if status != 0 {
		c.AbortWithStatusJSON(status, gin.H{"detail": http.StatusText(status)})
		return
	}
	c.Next()
}

func (b *Backend) authenticate(c *gin.Context) {
	header := c.GetHeader("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || header == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"detail": "Not authenticated"})
		return
	}
	if token != b.Token {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"detail": "Could not validate credentials"})
		return
	}
	c.Next()
}

func (b *Backend) listOrders(c *gin.Context) {
	status := order.ServerStatus(c.Query("status"))

	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]map[string]any, 0, len(b.orders))
	for _, o := range b.orders {
		if status != "" && serverStatus(o) != status {
			continue
		}
		out = append(out, WireOrder(o))
	}
	c.JSON(http.StatusOK, out)
}

func (b *Backend) setItemDone(c *gin.Context) {
	var body struct {
		IsDone *bool `json:"is_done"`
	}
	if err := c.ShouldBindJSON(&body); err != nil || body.IsDone == nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"detail": "is_done required"})
		return
	}
	itemID, err := strconv.ParseInt(c.Param("item_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"detail": "invalid item id"})
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	i := b.indexLocked(c.Param("public_id"))
	if i < 0 {
		c.JSON(http.StatusNotFound, gin.H{"detail": "Comanda non trovata"})
		return
	}
	o, ok := b.orders[i].WithItemDone(itemID, *body.IsDone)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"detail": "Riga non trovata"})
		return
	}
	if len(o.Items) > 0 && order.Derive(o) == order.StatusDone && o.ReadyAt == nil {
		at := b.now()
		o.ReadyAt = &at
		o.ServerStatus = order.ServerReady
	}
	b.orders[i] = o

	wire := WireOrder(o)
	b.broadcastLocked(gin.H{"type": "order_updated", "order": wire})
	c.JSON(http.StatusOK, wire)
}

func (b *Backend) printOrder(c *gin.Context) {
	id := c.Param("public_id")

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.indexLocked(id) < 0 {
		c.JSON(http.StatusNotFound, gin.H{"detail": "Comanda non trovata"})
		return
	}
	res := gin.H{"ok": b.printErr == ""}
	frame := gin.H{"type": "print_job", "public_id": id, "ok": b.printErr == ""}
	if b.printErr != "" {
		res["error"] = b.printErr
		frame["error"] = b.printErr
	}
	b.broadcastLocked(frame)
	c.JSON(http.StatusOK, res)
}

func (b *Backend) createCall(c *gin.Context) {
	var body struct {
		Type     order.CallType `json:"call_type"`
		OrderID  string         `json:"order_public_id"`
		Table    int            `json:"table_number"`
		ToUserID *int64         `json:"to_user_id"`
		Message  *string        `json:"message"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"detail": err.Error()})
		return
	}
	if body.Type != order.CallWaiter && body.Type != order.CallBarman {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"detail": "call_type non valido"})
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if body.OrderID != "" && b.indexLocked(body.OrderID) < 0 {
		c.JSON(http.StatusNotFound, gin.H{"detail": "Comanda non trovata"})
		return
	}
	b.nextCall++
	call := order.Call{
		ID:        b.nextCall,
		Type:      body.Type,
		ToUserID:  body.ToUserID,
		Message:   body.Message,
		CreatedAt: b.now(),
	}
	if body.Table > 0 {
		table := int64(body.Table)
		call.TableID = &table
	}
	b.calls[call.ID] = call

	wire := wireCall(call)
	b.broadcastLocked(gin.H{"type": "call_created", "event": "call.created", "call": wire})
	c.JSON(http.StatusOK, wire)
}

func (b *Backend) ackCall(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("call_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"detail": "invalid call id"})
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	call, ok := b.calls[id]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"detail": "Chiamata non trovata"})
		return
	}
	at := b.now()
	call.Acked = true
	call.AckedAt = &at
	b.calls[id] = call

	b.broadcastLocked(gin.H{"type": "call_acked", "call_id": id})
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (b *Backend) handleSocket(c *gin.Context) {
	if c.Query("token") != b.Token {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"detail": "Invalid token"})
		return
	}
	channel := c.DefaultQuery("channel", "bar")

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	b.mu.Lock()
	b.conns[conn] = channel
	hello, _ := json.Marshal(gin.H{"type": "hello", "channel": channel, "user": "bar"})
	conn.WriteMessage(websocket.TextMessage, hello)
	b.mu.Unlock()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			b.mu.Lock()
			delete(b.conns, conn)
			b.mu.Unlock()
			conn.Close()
			return
		}
		if string(data) == "ping" {
			b.mu.Lock()
			b.pings++
			b.mu.Unlock()
		}
	}
}

// broadcastLocked writes under b.mu, which also serialises writers per conn.
func (b *Backend) broadcastLocked(v any) {
	data, ok := v.([]byte)
	if !ok {
		var err error
		data, err = json.Marshal(v)
		if err != nil {
			return
		}
	}
	for conn := range b.conns {
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			conn.Close()
			delete(b.conns, conn)
		}
	}
}

func (b *Backend) indexLocked(id string) int {
	for i, o := range b.orders {
		if o.ID == id {
			return i
		}
	}
	return -1
}

func serverStatus(o order.Order) order.ServerStatus {
	if o.ServerStatus == "" {
		return order.ServerOpen
	}
	return o.ServerStatus
}
