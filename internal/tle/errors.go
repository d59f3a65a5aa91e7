package tle

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned by Store lookups for an unknown catalog number.
var ErrNotFound = errors.New("satellite not found")

// ErrNoDataset is returned when no catalog has been loaded yet.
var ErrNoDataset = errors.New("no TLE dataset loaded")

// FormatError reports a malformed two-line element set. Callers must not
// propagate elements that failed to parse.
type FormatError struct {
	Line   int    // 1 or 2, 0 when the problem spans both lines
	Field  string // field name, empty for whole-line problems
	Reason string
	Err    error // underlying conversion error, if any
}

func (e *FormatError) Error() string {
	msg := fmt.Sprintf("tle line %d", e.Line)
	if e.Line == 0 {
		msg = "tle"
	}
	if e.Field != "" {
		msg += " " + e.Field
	}
	msg += ": " + e.Reason
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *FormatError) Unwrap() error {
	return e.Err
}
