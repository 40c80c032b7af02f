// Package state defines the execution state threaded between the client and
// the generated program, and its continuation-token encoding.
//
// The state is the sole argument of every program invocation and the body of
// every response. The server replaces it wholesale on each call; the client
// only seeds it, forwards it, and serializes it for callers who want to
// resume later.
package state

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrInvalidToken is returned when a continuation token cannot be decoded.
var ErrInvalidToken = errors.New("invalid continuation token")

// Parameter is a named query parameter as the program receives it.
type Parameter struct {
	Name  string `json:"name"`
	Value any    `json:"value"`
}

// State is the execution state of one pipeline run.
//
// An empty ContinuationToken means the source scan is finished. A nil
// PartialAggregate means no group is open. Numbers inside decoded values are
// json.Number so that integers and decimals survive the round trip exactly.
type State struct {
	Parameters           []Parameter       `json:"parameters"`
	MaxResultCount       *int              `json:"maxResultCount,omitempty"`
	ContinuationToken    string            `json:"continuationToken,omitempty"`
	PartialAggregate     any               `json:"partialAggregate,omitempty"`
	PreviousSourceRecord any               `json:"previousSourceRecord,omitempty"`
	Results              []json.RawMessage `json:"results,omitempty"`
	ReturnedResultCount  int               `json:"returnedResultCount"`
}

// New returns the state of a run that has not started. A maxResultCount of
// zero or less leaves the result count uncapped.
func New(params []Parameter, maxResultCount int) *State {
	s := &State{Parameters: params}
	if s.Parameters == nil {
		s.Parameters = []Parameter{}
	}
	if maxResultCount > 0 {
		s.MaxResultCount = &maxResultCount
	}
	return s
}

// Done reports whether the source scan has finished.
func (s *State) Done() bool {
	return s.ContinuationToken == ""
}

// Parse decodes a state returned by the program.
func Parse(data []byte) (*State, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var s State
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("decode execution state: %w", err)
	}
	if dec.More() {
		return nil, fmt.Errorf("decode execution state: trailing data")
	}
	if s.ReturnedResultCount < 0 {
		return nil, fmt.Errorf("decode execution state: negative returnedResultCount %d", s.ReturnedResultCount)
	}
	if s.MaxResultCount != nil && *s.MaxResultCount <= 0 {
		return nil, fmt.Errorf("decode execution state: maxResultCount must be positive, got %d", *s.MaxResultCount)
	}
	if s.Parameters == nil {
		s.Parameters = []Parameter{}
	}
	return &s, nil
}

// Argument returns the state as the program argument. Results are left out:
// each invocation reports only the groups it closed itself.
func (s *State) Argument() ([]byte, error) {
	c := *s
	c.Results = nil
	return json.Marshal(&c)
}
