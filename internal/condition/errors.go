package condition

import (
	"fmt"

	"github.com/gyaneshwarpardhi/clientrules/internal/rule"
)

// ErrorKind classifies why a condition resolved to false.
type ErrorKind string

const (
	KindMissingField    ErrorKind = "missing_field"
	KindTypeMismatch    ErrorKind = "type_mismatch"
	KindBadRegex        ErrorKind = "bad_regex"
	KindBadValue        ErrorKind = "bad_value"
	KindUnknownOperator ErrorKind = "unknown_operator"
)

// EvalError explains a condition that evaluated to false because it could not be
// applied. It is informational: evaluation always continues.
type EvalError struct {
	Field    string
	Operator rule.Operator
	Kind     ErrorKind
	Msg      string
	Err      error
}

func (e *EvalError) Error() string {
	msg := fmt.Sprintf("condition %s %s: %s", e.Field, e.Operator, e.Kind)
	if e.Msg != "" {
		msg += ": " + e.Msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *EvalError) Unwrap() error { return e.Err }

// ParseError reports a malformed logic expression.
type ParseError struct {
	Expr string
	Pos  int
	Msg  string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("logic expression %q at position %d: %s", e.Expr, e.Pos, e.Msg)
}

func mismatch(format string, args ...any) error {
	return &EvalError{Kind: KindTypeMismatch, Msg: fmt.Sprintf(format, args...)}
}

func badValue(format string, args ...any) error {
	return &EvalError{Kind: KindBadValue, Msg: fmt.Sprintf(format, args...)}
}
