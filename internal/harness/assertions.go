package harness

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"github.com/roach88/docagg/internal/emulator"
)

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
}

func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s", e.Actual)
	return buf.String()
}

// AssertionContext gives assertions access to the emulator after the run.
type AssertionContext struct {
	Emulator *emulator.Emulator
	Ctx      context.Context
}

// EvaluateAssertions runs every assertion and returns the failure messages.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errs []string
	for i, a := range assertions {
		if err := evaluate(result, a, actx); err != nil {
			errs = append(errs, fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return errs
}

func evaluate(result *Result, a Assertion, actx *AssertionContext) error {
	switch a.Type {
	case AssertResults:
		return assertResults(result.Results, a.Expect)
	case AssertResultCount:
		return assertCount(a.Type, "results", a.Count, len(result.Results))
	case AssertProgramCount:
		programs, err := actx.Emulator.ListPrograms(actx.Ctx)
		if err != nil {
			return err
		}
		return assertCount(a.Type, "programs", a.Count, len(programs))
	case AssertDocumentCount:
		n, err := actx.Emulator.CountDocuments(actx.Ctx, a.Partition)
		if err != nil {
			return err
		}
		return assertCount(a.Type, "documents in "+a.Partition, a.Count, n)
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
}

func assertCount(typ, what string, expected, actual int) error {
	if expected == actual {
		return nil
	}
	return &AssertionError{
		Type:     typ,
		Expected: fmt.Sprintf("%d %s", expected, what),
		Actual:   fmt.Sprintf("%d %s", actual, what),
	}
}

func assertResults(actual []json.RawMessage, expected []any) error {
	ok, err := jsonEqual(expected, actual)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	return &AssertionError{
		Type:     AssertResults,
		Expected: mustJSON(expected),
		Actual:   mustJSON(actual),
	}
}

// checkPage compares one page with its expectation.
func checkPage(event TraceEvent, expect PageExpect) []string {
	var msgs []string
	if expect.Error != "" || event.Error != "" {
		if expect.Error != event.Error {
			msgs = append(msgs, fmt.Sprintf("expected error %q, got %q", expect.Error, event.Error))
		}
		return msgs
	}

	if expect.Results != nil {
		ok, err := jsonEqual(expect.Results, event.Results)
		switch {
		case err != nil:
			msgs = append(msgs, err.Error())
		case !ok:
			msgs = append(msgs, fmt.Sprintf("expected results %s, got %s", mustJSON(expect.Results), mustJSON(event.Results)))
		}
	}
	if expect.Done != nil {
		done := event.Continuation == ""
		if *expect.Done != done {
			msgs = append(msgs, fmt.Sprintf("expected done=%t, got done=%t", *expect.Done, done))
		}
	}
	return msgs
}

// jsonEqual compares decoded YAML values with JSON results by their JSON
// meaning.
func jsonEqual(expected []any, actual []json.RawMessage) (bool, error) {
	if actual == nil {
		actual = []json.RawMessage{}
	}
	want, err := normalize(expected)
	if err != nil {
		return false, fmt.Errorf("expected value: %w", err)
	}
	got, err := normalize(actual)
	if err != nil {
		return false, fmt.Errorf("actual value: %w", err)
	}
	return reflect.DeepEqual(want, got), nil
}

func normalize(v any) (any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = []any{}
	}
	return out, nil
}

func mustJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}
