package dataset

import (
	"fmt"
	"strings"
)

// ParseError reports an uploaded table that is not well-formed delimited text.
type ParseError struct {
	Line   int
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("parse dataset: line %d: %s", e.Line, e.Reason)
	}
	return fmt.Sprintf("parse dataset: %s", e.Reason)
}

func (e *ParseError) Unwrap() error { return e.Err }

// MissingColumnError is returned when a column the pipeline reads is absent.
type MissingColumnError struct {
	Column    string
	Available []string
}

func (e *MissingColumnError) Error() string {
	if len(e.Available) == 0 {
		return fmt.Sprintf("dataset is missing required column %q", e.Column)
	}
	return fmt.Sprintf("dataset is missing required column %q (have %s)", e.Column, strings.Join(e.Available, ", "))
}

// ColumnTypeError is returned when a column the pipeline reads as numbers
// holds text.
type ColumnTypeError struct {
	Column string
	Row    int
	Value  string
}

func (e *ColumnTypeError) Error() string {
	return fmt.Sprintf("column %q is not numeric (row %d: %q)", e.Column, e.Row, e.Value)
}
