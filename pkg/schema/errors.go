package schema

import (
	"errors"
	"fmt"
	"strings"
)

// ValidationError reports a variable whose value does not match its
// declared type.
type ValidationError struct {
	Key    string
	Reason string
	Value  any
}

func (e *ValidationError) Error() string {
	msg := e.Reason
	if e.Value != nil {
		msg = fmt.Sprintf("%s (got %T)", e.Reason, e.Value)
	}
	if e.Key == "" {
		return msg
	}
	return fmt.Sprintf("variable %q: %s", e.Key, msg)
}

// AggregateError collects the failures of a Validate call.
type AggregateError struct {
	Errors []error
}

func (e *AggregateError) Error() string {
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%d variables failed type checks:", len(e.Errors))
	for _, err := range e.Errors {
		b.WriteString("\n- ")
		b.WriteString(err.Error())
	}
	return b.String()
}

func (e *AggregateError) Unwrap() []error { return e.Errors }

// ValidationErrors unpacks the failures of err, or returns nil when err
// does not come from Validate.
func ValidationErrors(err error) []error {
	var agg *AggregateError
	if errors.As(err, &agg) {
		return agg.Errors
	}
	return nil
}
