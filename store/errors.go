package store

import (
	"errors"
	"fmt"
	"strings"

	"github.com/stevemurr/dblite/criteria"
	"github.com/stevemurr/dblite/schema"
)

// Error kinds. Every error returned by this package matches exactly one of
// these with errors.Is.
var (
	ErrConfiguration      = errors.New("configuration error")
	ErrConnection         = errors.New("connection error")
	ErrSchema             = schema.ErrInvalid
	ErrInvalidCriteria    = criteria.ErrInvalid
	ErrConstraint         = errors.New("constraint error")
	ErrClosed             = errors.New("store is closed")
	ErrUnsupportedBackend = errors.New("unsupported backend")
)

// Error describes a failed store operation, with the statement and values
// involved when there were any.
type Error struct {
	Kind  error
	Op    string
	Query string
	Args  []any
	Err   error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Op)
	b.WriteString(": ")
	switch {
	case e.Err == nil:
		b.WriteString(e.Kind.Error())
	case errors.Is(e.Err, e.Kind):
		b.WriteString(e.Err.Error())
	default:
		fmt.Fprintf(&b, "%v: %v", e.Kind, e.Err)
	}
	if e.Query != "" {
		fmt.Fprintf(&b, ", sql: %s", e.Query)
	}
	if len(e.Args) > 0 {
		fmt.Fprintf(&b, ", values: %v", e.Args)
	}
	return b.String()
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func newError(kind error, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func queryError(kind error, op, query string, args []any, err error) *Error {
	return &Error{Kind: kind, Op: op, Query: query, Args: args, Err: err}
}
