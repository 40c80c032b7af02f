package harness

import "encoding/json"

// TraceEvent records one ExecuteNext call.
type TraceEvent struct {
	Query         int               `json:"query"`
	Page          int               `json:"page"`
	Partition     string            `json:"partition"`
	Results       []json.RawMessage `json:"results,omitempty"`
	RequestCharge float64           `json:"request_charge"`
	ActivityID    string            `json:"activity_id,omitempty"`
	Continuation  string            `json:"continuation,omitempty"`
	Error         string            `json:"error,omitempty"`
}

// ProgramInfo identifies the program a scenario generated.
type ProgramInfo struct {
	ID    string `json:"id"`
	Query string `json:"query"`
}

// Result is the outcome of a scenario run.
type Result struct {
	// Pass is true if every page expectation and assertion held.
	Pass bool `json:"pass"`

	Program ProgramInfo `json:"program"`

	// Trace contains every page in execution order.
	Trace []TraceEvent `json:"trace"`

	// Results concatenates the results of every page.
	Results []json.RawMessage `json:"-"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
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

// AddPage appends a page to the trace and its results to Results.
func (r *Result) AddPage(event TraceEvent) {
	r.Trace = append(r.Trace, event)
	r.Results = append(r.Results, event.Results...)
}
