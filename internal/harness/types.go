package harness

import "encoding/json"

// Trace event kinds.
const (
	KindPrecall  = "precall"  // precall event appended
	KindCall     = "call"     // call event appended
	KindEffect   = "effect"   // effect body invoked
	KindProbe    = "probe"    // probe invoked
	KindRegister = "register" // rollback action registered
	KindRollback = "rollback" // rollback body invoked during compensation
)

// TraceEvent is one observable action of a scenario run.
type TraceEvent struct {
	Seq    int64  `json:"seq"`
	Kind   string `json:"kind"`
	StepID string `json:"step_id,omitempty"`
	Name   string `json:"name"`

	// Success is set for call and rollback events.
	Success *bool `json:"success,omitempty"`

	// Ret is the call's ret, or the result handed to a rollback.
	Ret json.RawMessage `json:"ret,omitempty"`
}

// Label returns "kind name", the form used by trace_order assertions.
func (e TraceEvent) Label() string {
	return e.Kind + " " + e.Name
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true if the expectation and every assertion hold.
	Pass bool `json:"pass"`

	// Status is "completed" or "failed".
	Status string `json:"status"`

	// Output is the saga's result when it completed.
	Output any `json:"output,omitempty"`

	// Err is the saga's error when it failed.
	Err error `json:"-"`

	// Trace contains the run's events in order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains expectation and assertion failures.
	Errors []string `json:"errors,omitempty"`
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

// addTrace appends ev with the next sequence number.
func (r *Result) addTrace(ev TraceEvent) {
	ev.Seq = int64(len(r.Trace) + 1)
	r.Trace = append(r.Trace, ev)
}
