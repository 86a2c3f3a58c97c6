package parser

import (
	"errors"
	"fmt"
)

// ErrMalformedRecord is returned for measurements that cannot become records.
var ErrMalformedRecord = errors.New("malformed record")

// FieldError names the field that made a measurement malformed.
type FieldError struct {
	Field  string
	Reason string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %s: %s", ErrMalformedRecord, e.Field, e.Reason)
}

// Unwrap lets errors.Is match ErrMalformedRecord.
func (e *FieldError) Unwrap() error { return ErrMalformedRecord }

func malformed(field, reason string) error {
	return &FieldError{Field: field, Reason: reason}
}
