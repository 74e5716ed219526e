package parser

import (
	"errors"
	"fmt"
	"reflect"
)

// ErrNoUsableText reports a recognition run that produced no text.
var ErrNoUsableText = errors.New("no text was found in the original document")

// ParseError is the single failure a parse reports to its caller. Class
// and Message describe the error that caused it.
type ParseError struct {
	Class   string
	Message string
	Cause   error
}

func (e *ParseError) Error() string {
	if e.Class == "" {
		return e.Message
	}
	return e.Class + ": " + e.Message
}

func (e *ParseError) Unwrap() error { return e.Cause }

func newParseError(cause error) *ParseError {
	var pe *ParseError
	if errors.As(cause, &pe) {
		return pe
	}
	return &ParseError{Class: errorClass(cause), Message: cause.Error(), Cause: cause}
}

func parseErrorf(format string, args ...any) *ParseError {
	return &ParseError{Message: fmt.Sprintf(format, args...)}
}

// errorClass names the first error in the chain with a meaningful type.
// Plain and wrapping errors from the errors and fmt packages are skipped.
func errorClass(err error) string {
	first := ""
	for e := err; e != nil; e = errors.Unwrap(e) {
		name := typeName(e)
		if first == "" {
			first = name
		}
		switch name {
		case "errorString", "wrapError", "wrapErrors", "joinError":
			continue
		}
		return name
	}
	return first
}

func typeName(err error) string {
	t := reflect.TypeOf(err)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Name() != "" {
		return t.Name()
	}
	return t.String()
}
