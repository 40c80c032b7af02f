package driver

import (
	"encoding/json"
	"fmt"
	"iter"
)

// Response is one page of aggregate results.
type Response[T any] struct {
	results       []json.RawMessage
	read          bool
	requestCharge float64
	activityID    string
	statusCode    int
	continuation  string
}

// Items yields the results of this page decoded as T. The sequence can be
// read once; later calls yield nothing. A result that fails to decode is
// yielded with its error.
func (r *Response[T]) Items() iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		if r.read {
			return
		}
		r.read = true
		for i, raw := range r.results {
			var item T
			if err := json.Unmarshal(raw, &item); err != nil {
				err = &Error{Code: CodeDecodeFailed, Message: fmt.Sprintf("result %d", i), Err: err}
				if !yield(item, err) {
					return
				}
				continue
			}
			if !yield(item, nil) {
				return
			}
		}
	}
}

// Collect reads every item, stopping at the first decode error.
func (r *Response[T]) Collect() ([]T, error) {
	out := make([]T, 0, len(r.results))
	for item, err := range r.Items() {
		if err != nil {
			return out, err
		}
		out = append(out, item)
	}
	return out, nil
}

// Len is the number of results on this page.
func (r *Response[T]) Len() int { return len(r.results) }

// RequestCharge is the cost the database reported for the call.
func (r *Response[T]) RequestCharge() float64 { return r.requestCharge }

// ActivityID identifies the call in database diagnostics.
func (r *Response[T]) ActivityID() string { return r.activityID }

// StatusCode is the database status of the call.
func (r *Response[T]) StatusCode() int { return r.statusCode }

// Continuation resumes the run in a new Query. It is empty on the last page.
func (r *Response[T]) Continuation() string { return r.continuation }

// Done reports whether this is the last page.
func (r *Response[T]) Done() bool { return r.continuation == "" }
