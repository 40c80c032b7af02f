package ast

import (
	"errors"
	"fmt"
)

// CompileError reports a pipeline that cannot be compiled: a grammar
// violation or an expression node a compiler does not accept.
//
// CompileErrors are raised before any program is generated or sent to the
// database and are never retried.
type CompileError struct {
	Stage   string // pipeline stage being compiled, e.g. "where" or "seed"
	Message string
}

func (e *CompileError) Error() string {
	if e.Stage == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Stage, e.Message)
}

// Errorf returns a CompileError with a formatted message.
func Errorf(format string, args ...any) *CompileError {
	return &CompileError{Message: fmt.Sprintf(format, args...)}
}

// Unsupported returns the CompileError for a node a compiler rejects.
func Unsupported(n Node) *CompileError {
	return Errorf("unsupported expression: %s", NodeName(n))
}

// WithStage attributes err to a pipeline stage, keeping any context the
// error was wrapped with. Errors that are not CompileErrors, or are already
// attributed, are returned unchanged.
func WithStage(err error, stage string) error {
	var ce *CompileError
	if !errors.As(err, &ce) || ce.Stage != "" {
		return err
	}
	return &CompileError{Stage: stage, Message: err.Error()}
}

// IsCompileError reports whether err is or wraps a CompileError.
func IsCompileError(err error) bool {
	var ce *CompileError
	return errors.As(err, &ce)
}
