package state

import (
	"fmt"
)

// Encode serializes s as a continuation token. The token is the state
// itself, so a run can be resumed from another process with the same
// generated program.
func Encode(s *State) (string, error) {
	if s.Done() {
		return "", fmt.Errorf("encode continuation: run is already complete")
	}
	data, err := s.Argument()
	if err != nil {
		return "", fmt.Errorf("encode continuation: %w", err)
	}
	return string(data), nil
}

// Decode parses a continuation token produced by Encode.
func Decode(token string) (*State, error) {
	if token == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidToken)
	}
	s, err := Parse([]byte(token))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if s.Done() {
		return nil, fmt.Errorf("%w: token has no scan position", ErrInvalidToken)
	}
	return s, nil
}
