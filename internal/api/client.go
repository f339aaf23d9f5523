package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/lorenzobigazzi0/app/internal/order"
)

// DefaultTimeout bounds a single request when the caller's context has no
// deadline of its own.
const DefaultTimeout = 10 * time.Second

// maxErrorBody caps how much of a failed response is read for diagnostics.
const maxErrorBody = 4 << 10

// Client talks to the backend REST API.
//
// Thread-safety: Client is safe for concurrent use.
type Client struct {
	base      *url.URL
	token     string
	http      *http.Client
	requestID func() string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// WithRequestIDs replaces the X-Request-ID generator. Used by tests.
func WithRequestIDs(gen func() string) Option {
	return func(c *Client) {
		c.requestID = gen
	}
}

// New creates a client for the backend at baseURL (scheme and host, with an
// optional path prefix) authenticating with token.
func New(baseURL, token string, opts ...Option) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("base url %q: scheme must be http or https", baseURL)
	}
	u.Path = strings.TrimSuffix(u.Path, "/")

	c := &Client{
		base:  u,
		token: token,
		http:  &http.Client{Timeout: DefaultTimeout},
		requestID: func() string {
			return uuid.Must(uuid.NewV7()).String()
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// BaseURL returns the backend root this client was built with.
func (c *Client) BaseURL() string {
	return c.base.String()
}

// FetchAll returns the full order snapshot.
func (c *Client) FetchAll(ctx context.Context) ([]order.Order, error) {
	return c.fetch(ctx, nil)
}

// FetchByStatus returns the orders whose backend status matches.
func (c *Client) FetchByStatus(ctx context.Context, status order.ServerStatus) ([]order.Order, error) {
	return c.fetch(ctx, url.Values{"status": {string(status)}})
}

func (c *Client) fetch(ctx context.Context, query url.Values) ([]order.Order, error) {
	var orders []order.Order
	req := request{method: http.MethodGet, path: "/api/orders", query: query}
	if err := c.do(ctx, req, &orders); err != nil {
		return nil, err
	}
	for _, o := range orders {
		if err := order.Validate(o); err != nil {
			return nil, c.decodeFailure(req, err)
		}
	}
	if orders == nil {
		orders = []order.Order{}
	}
	return orders, nil
}

// SetItemDone sets the done flag of one item and returns the full order as
// the backend now holds it.
func (c *Client) SetItemDone(ctx context.Context, orderID string, itemID int64, done bool) (order.Order, error) {
	req := request{
		method: http.MethodPatch,
		path:   "/api/orders/" + url.PathEscape(orderID) + "/items/" + strconv.FormatInt(itemID, 10),
		body:   map[string]bool{"is_done": done},
	}
	var o order.Order
	if err := c.do(ctx, req, &o); err != nil {
		return order.Order{}, err
	}
	if err := order.Validate(o); err != nil {
		return order.Order{}, c.decodeFailure(req, err)
	}
	return o, nil
}

// PrintOrder asks the backend to print the order on the named printer.
// An empty printer selects the backend default.
//
// A printer failure is reported in the result, not as an error.
func (c *Client) PrintOrder(ctx context.Context, orderID, printer string) (order.PrintResult, error) {
	req := request{
		method: http.MethodPost,
		path:   "/api/orders/" + url.PathEscape(orderID) + "/print",
	}
	if printer != "" {
		req.query = url.Values{"printer_name": {printer}}
	}
	var res order.PrintResult
	if err := c.do(ctx, req, &res); err != nil {
		return order.PrintResult{}, err
	}
	res.OrderID = orderID
	return res, nil
}

// CallRequest is the body of a new call.
type CallRequest struct {
	Type        order.CallType `json:"call_type"`
	OrderID     string         `json:"order_public_id,omitempty"`
	TableNumber int            `json:"table_number,omitempty"`
	ToUserID    int64          `json:"to_user_id,omitempty"`
	Message     string         `json:"message,omitempty"`
}

// CreateCall raises a call and returns it as stored by the backend.
func (c *Client) CreateCall(ctx context.Context, call CallRequest) (order.Call, error) {
	req := request{method: http.MethodPost, path: "/api/calls", body: call}
	var out order.Call
	if err := c.do(ctx, req, &out); err != nil {
		return order.Call{}, err
	}
	if err := order.ValidateCall(out); err != nil {
		return order.Call{}, c.decodeFailure(req, err)
	}
	return out, nil
}

// AckCall acknowledges a call.
func (c *Client) AckCall(ctx context.Context, callID int64) error {
	req := request{
		method: http.MethodPost,
		path:   "/api/calls/" + strconv.FormatInt(callID, 10) + "/ack",
	}
	var res struct {
		OK bool `json:"ok"`
	}
	if err := c.do(ctx, req, &res); err != nil {
		return err
	}
	if !res.OK {
		return &TransportError{Method: req.method, Path: req.path, Err: fmt.Errorf("ack not confirmed")}
	}
	return nil
}

type request struct {
	method string
	path   string
	query  url.Values
	body   any
}

// do performs one request and decodes a successful JSON body into out.
func (c *Client) do(ctx context.Context, r request, out any) error {
	u := *c.base
	u.Path = c.base.Path + r.path
	u.RawQuery = r.query.Encode()

	var body io.Reader
	if r.body != nil {
		data, err := json.Marshal(r.body)
		if err != nil {
			return fmt.Errorf("encode %s %s body: %w", r.method, r.path, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, r.method, u.String(), body)
	if err != nil {
		return fmt.Errorf("build %s %s: %w", r.method, r.path, err)
	}
	rid := c.requestID()
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", rid)
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	slog.Debug("api request", "method", r.method, "path", r.path, "request_id", rid)

	resp, err := c.http.Do(req)
	if err != nil {
		return &TransportError{Method: r.method, Path: r.path, RequestID: rid, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &TransportError{
			Method:     r.method,
			Path:       r.path,
			StatusCode: resp.StatusCode,
			Detail:     errorDetail(raw),
			RequestID:  rid,
			Err:        fmt.Errorf("unexpected status %s", resp.Status),
		}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &TransportError{
			Method:    r.method,
			Path:      r.path,
			RequestID: rid,
			Err:       fmt.Errorf("decode response: %w", err),
		}
	}
	return nil
}

func (c *Client) decodeFailure(r request, err error) error {
	return &TransportError{Method: r.method, Path: r.path, Err: fmt.Errorf("decode response: %w", err)}
}

// errorDetail extracts the backend's {"detail": ...} message, falling back
// to the raw body text.
func errorDetail(raw []byte) string {
	var body struct {
		Detail any `json:"detail"`
		Error  any `json:"error"`
	}
	if err := json.Unmarshal(raw, &body); err == nil {
		if s, ok := body.Detail.(string); ok && s != "" {
			return s
		}
		if s, ok := body.Error.(string); ok && s != "" {
			return s
		}
	}
	return strings.TrimSpace(string(raw))
}
