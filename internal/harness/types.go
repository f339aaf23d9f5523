package harness

import (
	"fmt"
	"strings"

	"github.com/lorenzobigazzi0/app/internal/board"
)

// TraceEvent records one executed step.
type TraceEvent struct {
	Seq    int64  `json:"seq"`
	Step   string `json:"step"`
	Detail string `json:"detail"`
}

func (e TraceEvent) String() string {
	return fmt.Sprintf("%02d %-8s %s", e.Seq, e.Step, e.Detail)
}

// Result is the outcome of a scenario.
type Result struct {
	// Pass is true when every assertion held.
	Pass bool `json:"pass"`

	// Trace lists the steps in execution order.
	Trace []TraceEvent `json:"trace"`

	// Errors holds one message per failed assertion.
	Errors []string `json:"errors,omitempty"`

	// Board is the final display state.
	Board []board.Row `json:"board"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

func (r *Result) addTrace(step, detail string) {
	r.Trace = append(r.Trace, TraceEvent{
		Seq:    int64(len(r.Trace) + 1),
		Step:   step,
		Detail: detail,
	})
}

// TraceText renders the trace one event per line.
func (r *Result) TraceText() string {
	var b strings.Builder
	for _, e := range r.Trace {
		b.WriteString(e.String())
		b.WriteByte('\n')
	}
	return b.String()
}
