package driver

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes driver errors.
type ErrorCode string

const (
	// CodeNoProgress means the program's first query was refused and it
	// holds no continuation to resume from.
	CodeNoProgress ErrorCode = "NO_PROGRESS"

	// CodeInvalidUsage means ExecuteNext was called after the last page.
	CodeInvalidUsage ErrorCode = "INVALID_USAGE"

	// CodeRegistrationFailed means the program could not be registered for
	// a reason other than a concurrent registration.
	CodeRegistrationFailed ErrorCode = "REGISTRATION_FAILED"

	// CodeInvalidContinuation means the caller-supplied continuation could
	// not be decoded.
	CodeInvalidContinuation ErrorCode = "INVALID_CONTINUATION"

	// CodeDecodeFailed means the program returned an unusable state.
	CodeDecodeFailed ErrorCode = "DECODE_FAILED"

	// CodeExecutionFailed means the program could not be run.
	CodeExecutionFailed ErrorCode = "EXECUTION_FAILED"
)

// Error is a failure detected by the driver.
type Error struct {
	Code      ErrorCode
	Message   string
	ProgramID string
	Err       error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.ProgramID != "" {
		msg += fmt.Sprintf(" (program=%s)", e.ProgramID)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

func hasCode(err error, code ErrorCode) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.Code == code
	}
	return false
}

// IsNoProgressError reports whether err is a NO_PROGRESS error.
func IsNoProgressError(err error) bool {
	return hasCode(err, CodeNoProgress)
}

// IsInvalidUsageError reports whether err is an INVALID_USAGE error.
func IsInvalidUsageError(err error) bool {
	return hasCode(err, CodeInvalidUsage)
}

// IsRegistrationError reports whether err is a REGISTRATION_FAILED error.
func IsRegistrationError(err error) bool {
	return hasCode(err, CodeRegistrationFailed)
}

// IsContinuationError reports whether err is an INVALID_CONTINUATION error.
func IsContinuationError(err error) bool {
	return hasCode(err, CodeInvalidContinuation)
}
