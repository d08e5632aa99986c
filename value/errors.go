package value

import (
	"errors"
	"fmt"

	"github.com/datasetq/datasetq/table"
)

var (
	// ErrIncomparable is returned when two values have no defined order.
	ErrIncomparable = table.ErrIncomparable
	// ErrDivisionByZero is returned by / when the divisor is zero.
	ErrDivisionByZero = table.ErrDivisionByZero
	// ErrMissingColumn is returned when a table has no such column.
	ErrMissingColumn = table.ErrColumnNotFound
)

// TypeError reports an operation applied to a variant that does not
// support it, or an argument outside the operation's domain.
type TypeError struct {
	Op   string
	Kind Kind
	Msg  string
}

func (e *TypeError) Error() string {
	if e.Msg == "" {
		return fmt.Sprintf("%s: cannot be applied to %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Msg)
}

// OpError reports a failure while applying an operation to a supported
// variant: a missing column, an arity mismatch, a zero divisor.
type OpError struct {
	Op  string
	Msg string
	Err error
}

func (e *OpError) Error() string {
	switch {
	case e.Msg == "" && e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Msg, e.Err)
	default:
		return fmt.Sprintf("%s: %s", e.Op, e.Msg)
	}
}

func (e *OpError) Unwrap() error { return e.Err }

func typeErr(op string, v Value) error {
	return &TypeError{Op: op, Kind: v.Kind}
}

func typeErrf(op string, kind Kind, format string, args ...any) error {
	return &TypeError{Op: op, Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

func opErr(op string, err error) error {
	var oe *OpError
	var te *TypeError
	if errors.As(err, &oe) || errors.As(err, &te) {
		return err
	}
	return &OpError{Op: op, Err: err}
}

func opErrf(op string, format string, args ...any) error {
	return &OpError{Op: op, Msg: fmt.Sprintf(format, args...)}
}
