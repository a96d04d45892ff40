package library

import (
	"fmt"
	"strings"
)

// FieldError describes one structural problem with a batch item.
type FieldError struct {
	Index  int    `json:"index"`
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

func (e FieldError) Error() string {
	return fmt.Sprintf("item %d: %s %s", e.Index, e.Field, e.Reason)
}

// ValidationError rejects a batch before any transaction opens. It carries
// every structural problem found so a client can fix the whole batch at once.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 1 {
		return "invalid sync batch: " + e.Fields[0].Error()
	}
	msgs := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		msgs = append(msgs, f.Error())
	}
	return fmt.Sprintf("invalid sync batch (%d problems): %s", len(e.Fields), strings.Join(msgs, "; "))
}

// InfrastructureError marks a failure of the store itself, as opposed to a
// business rejection of one item. It aborts the whole merge with nothing
// applied and is safe for the caller to retry.
type InfrastructureError struct {
	Err error
}

func (e *InfrastructureError) Error() string {
	return "sync storage failure: " + e.Err.Error()
}

func (e *InfrastructureError) Unwrap() error {
	return e.Err
}
