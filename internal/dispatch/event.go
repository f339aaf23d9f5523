package dispatch

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lorenzobigazzi0/app/internal/order"
)

// Kind is the frame type discriminator.
type Kind string

const (
	KindHello        Kind = "hello"
	KindOrderCreated Kind = "order_created"
	KindOrderUpdated Kind = "order_updated"
	KindCallCreated  Kind = "call_created"
	KindCallAcked    Kind = "call_acked"
	KindPrintJob     Kind = "print_job"
)

// legacyCallEvent is the alternate discriminator older backends put in the
// "event" field of call frames.
const legacyCallEvent = "call.created"

// Event is one decoded push frame. The set of implementations is closed.
type Event interface {
	Kind() Kind
	dispatch(d *Dispatcher)
}

// Hello is sent by the backend right after the socket opens.
type Hello struct {
	Channel string
	User    string
}

// OrderCreated carries a new order.
type OrderCreated struct {
	Order order.Order
}

// OrderUpdated carries the full current state of an existing order.
type OrderUpdated struct {
	Order order.Order
}

// CallCreated carries a new call for the UI.
type CallCreated struct {
	Call order.Call
}

// CallAcked reports that a call was acknowledged by someone.
type CallAcked struct {
	CallID int64
}

// PrintJob reports the outcome of a print request.
type PrintJob struct {
	Result order.PrintResult
}

// Unknown is a well-formed frame of a type this client does not handle.
type Unknown struct {
	Type string
}

func (Hello) Kind() Kind        { return KindHello }
func (OrderCreated) Kind() Kind { return KindOrderCreated }
func (OrderUpdated) Kind() Kind { return KindOrderUpdated }
func (CallCreated) Kind() Kind  { return KindCallCreated }
func (CallAcked) Kind() Kind    { return KindCallAcked }
func (PrintJob) Kind() Kind     { return KindPrintJob }
func (u Unknown) Kind() Kind    { return Kind(u.Type) }

// DecodeError reports a frame that could not be turned into an Event.
type DecodeError struct {
	Kind Kind
	Err  error
}

// Error implements the error interface.
func (e *DecodeError) Error() string {
	if e.Kind == "" {
		return fmt.Sprintf("decode frame: %v", e.Err)
	}
	return fmt.Sprintf("decode %s frame: %v", e.Kind, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// IsDecodeError reports whether err is or wraps a *DecodeError.
func IsDecodeError(err error) bool {
	var de *DecodeError
	return errors.As(err, &de)
}

type envelope struct {
	Type     string          `json:"type"`
	Event    string          `json:"event"`
	Order    json.RawMessage `json:"order"`
	Call     json.RawMessage `json:"call"`
	CallID   *int64          `json:"call_id"`
	PublicID string          `json:"public_id"`
	OK       *bool           `json:"ok"`
	Error    *string         `json:"error"`
	Channel  string          `json:"channel"`
	User     *string         `json:"user"`
}

// Decode parses one raw frame.
func Decode(raw []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, &DecodeError{Err: err}
	}

	kind := Kind(env.Type)
	if kind == "" && env.Event == legacyCallEvent {
		kind = KindCallCreated
	}

	switch kind {
	case KindHello:
		h := Hello{Channel: env.Channel}
		if env.User != nil {
			h.User = *env.User
		}
		return h, nil

	case KindOrderCreated, KindOrderUpdated:
		o, err := decodeOrder(env.Order)
		if err != nil {
			return nil, &DecodeError{Kind: kind, Err: err}
		}
		if kind == KindOrderCreated {
			return OrderCreated{Order: o}, nil
		}
		return OrderUpdated{Order: o}, nil

	case KindCallCreated:
		if len(env.Call) == 0 || string(env.Call) == "null" {
			return nil, &DecodeError{Kind: kind, Err: errors.New("missing call")}
		}
		var c order.Call
		if err := json.Unmarshal(env.Call, &c); err != nil {
			return nil, &DecodeError{Kind: kind, Err: err}
		}
		if err := order.ValidateCall(c); err != nil {
			return nil, &DecodeError{Kind: kind, Err: err}
		}
		return CallCreated{Call: c}, nil

	case KindCallAcked:
		if env.CallID == nil {
			return nil, &DecodeError{Kind: kind, Err: errors.New("missing call_id")}
		}
		return CallAcked{CallID: *env.CallID}, nil

	case KindPrintJob:
		if env.PublicID == "" || env.OK == nil {
			return nil, &DecodeError{Kind: kind, Err: errors.New("missing public_id or ok")}
		}
		res := order.PrintResult{OrderID: env.PublicID, OK: *env.OK}
		if env.Error != nil {
			res.Error = *env.Error
		}
		return PrintJob{Result: res}, nil

	case "":
		return nil, &DecodeError{Err: errors.New("missing type")}

	default:
		return Unknown{Type: env.Type}, nil
	}
}

func decodeOrder(raw json.RawMessage) (order.Order, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return order.Order{}, errors.New("missing order")
	}
	var o order.Order
	if err := json.Unmarshal(raw, &o); err != nil {
		return order.Order{}, err
	}
	if err := order.Validate(o); err != nil {
		return order.Order{}, err
	}
	return o, nil
}
