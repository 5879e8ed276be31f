package paytiko

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrInvalidSignature is returned when a webhook digest does not match.
	ErrInvalidSignature = errors.New("paytiko: invalid webhook signature")
	// ErrTransactionNotFound means no local transaction matches an order id.
	ErrTransactionNotFound = errors.New("paytiko: transaction not found")
	// ErrUnsupported is returned for operations the gateway only offers in its admin panel.
	ErrUnsupported = errors.New("paytiko: operation not supported")
	// ErrNoChange is returned by a TransactionStore mutation to skip the save.
	ErrNoChange = errors.New("paytiko: no change")
)

// ValidationError carries field-level messages keyed by JSON field path.
type ValidationError struct {
	Fields map[string][]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+strings.Join(e.Fields[k], ", "))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Add records a message for a field.
func (e *ValidationError) Add(field, msg string) {
	if e.Fields == nil {
		e.Fields = map[string][]string{}
	}
	e.Fields[field] = append(e.Fields[field], msg)
}

// TransportError describes a failed gateway call: network error, timeout or
// a non-2xx response.
type TransportError struct {
	StatusCode int
	Message    string
	Data       map[string]any
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("paytiko gateway error: status=%d message=%s", e.StatusCode, e.Message)
	}
	return "paytiko gateway error: " + e.Message
}

func (e *TransportError) Unwrap() error { return e.Err }

// ParseError reports a required webhook field that is missing or ill-typed.
type ParseError struct {
	Field  string
	Reason string
}

func (e *ParseError) Error() string {
	if e.Reason == "" {
		return "paytiko webhook payload missing " + e.Field
	}
	return fmt.Sprintf("paytiko webhook payload field %s: %s", e.Field, e.Reason)
}

// ProcessingError wraps an unexpected failure while handling a payment.
type ProcessingError struct {
	OrderID string
	Message string
	Err     error
}

func (e *ProcessingError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return "payment processing failed: " + e.Err.Error()
	}
	return "payment processing failed"
}

func (e *ProcessingError) Unwrap() error { return e.Err }
