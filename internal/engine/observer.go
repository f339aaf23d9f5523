package engine

import "github.com/lorenzobigazzi0/app/internal/order"

// Observer is told what happened on the timeline. Methods are called from
// the Run goroutine and must not block for long.
type Observer interface {
	OrdersChanged()
	Connectivity(online bool)
	CallCreated(c order.Call)
	CallAcked(callID int64)
	PrintJob(r order.PrintResult)
}

// ObserverFuncs adapts optional functions to Observer. Nil fields are
// skipped.
type ObserverFuncs struct {
	OnOrdersChanged func()
	OnConnectivity  func(online bool)
	OnCallCreated   func(c order.Call)
	OnCallAcked     func(callID int64)
	OnPrintJob      func(r order.PrintResult)
}

func (f ObserverFuncs) OrdersChanged() {
	if f.OnOrdersChanged != nil {
		f.OnOrdersChanged()
	}
}

func (f ObserverFuncs) Connectivity(online bool) {
	if f.OnConnectivity != nil {
		f.OnConnectivity(online)
	}
}

func (f ObserverFuncs) CallCreated(c order.Call) {
	if f.OnCallCreated != nil {
		f.OnCallCreated(c)
	}
}

func (f ObserverFuncs) CallAcked(callID int64) {
	if f.OnCallAcked != nil {
		f.OnCallAcked(callID)
	}
}

func (f ObserverFuncs) PrintJob(r order.PrintResult) {
	if f.OnPrintJob != nil {
		f.OnPrintJob(r)
	}
}
