// Package docclient defines the operations the execution driver needs from a
// document database: invoking a registered server-side program within one
// partition and registering a program by id.
//
// Expected outcomes such as "program not found" and "program already
// registered" are reported as result variants, not errors. Errors are
// reserved for transport failures and programs that fail while running.
package docclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// InvokeOutcome distinguishes a completed invocation from a missing program.
type InvokeOutcome int

const (
	InvokeOK InvokeOutcome = iota
	InvokeNotFound
)

func (o InvokeOutcome) String() string {
	switch o {
	case InvokeOK:
		return "ok"
	case InvokeNotFound:
		return "not found"
	default:
		return fmt.Sprintf("InvokeOutcome(%d)", int(o))
	}
}

// InvokeResult is the response to a program invocation.
type InvokeResult struct {
	Outcome       InvokeOutcome
	Status        int
	Resource      json.RawMessage // body set by the program; nil unless Outcome is InvokeOK
	RequestCharge float64
	ActivityID    string
}

// RegisterOutcome distinguishes a new registration from an existing one.
type RegisterOutcome int

const (
	Registered RegisterOutcome = iota
	RegisterConflict
)

func (o RegisterOutcome) String() string {
	switch o {
	case Registered:
		return "registered"
	case RegisterConflict:
		return "conflict"
	default:
		return fmt.Sprintf("RegisterOutcome(%d)", int(o))
	}
}

// Client is the document database as seen by the driver.
type Client interface {
	// InvokeProgram runs program id in partitionKey with arg as its only
	// argument.
	InvokeProgram(ctx context.Context, id, partitionKey string, arg json.RawMessage) (*InvokeResult, error)

	// RegisterProgram stores source under id. An existing program with the
	// same id is reported as RegisterConflict and left unchanged.
	RegisterProgram(ctx context.Context, id, source string) (RegisterOutcome, error)
}

// Status codes used by StatusError.
const (
	StatusBadRequest     = 400
	StatusNotFound       = 404
	StatusRequestTimeout = 408
)

// StatusError is a failure reported by the database, such as a program that
// threw while running.
type StatusError struct {
	Status  int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("status %d: %s", e.Status, e.Message)
}

// StatusOf returns the status of a StatusError in err's chain, or 0.
func StatusOf(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Status
	}
	return 0
}
