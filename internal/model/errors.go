package model

import "fmt"

// ParseError describes a single log line that could not be parsed.
type ParseError struct {
	File   string
	Line   int
	Raw    string
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s:%d: %s: %v", e.File, e.Line, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s:%d: %s", e.File, e.Line, e.Reason)
}

func (e *ParseError) Unwrap() error { return e.Err }
