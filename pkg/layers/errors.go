package layers

import (
	"errors"
	"fmt"

	"firestige.xyz/pktcraft/pkg/codec"
)

// Sentinel errors. Every error returned by this package matches exactly one
// of them under errors.Is.
var (
	// ErrTruncated means the buffer is shorter than a header requires.
	ErrTruncated = codec.ErrTruncated
	// ErrInvalidField means a decoded or caller-set value is outside the
	// legal range of its protocol field.
	ErrInvalidField = errors.New("pktcraft: invalid field")
	// ErrRegistryFrozen is returned when registering into the shared default registry.
	ErrRegistryFrozen = errors.New("pktcraft: registry is read-only")
)

// Error describes a failure on a specific layer field.
type Error struct {
	Op     string // "decode", "set", "validate" or "update"
	Kind   Kind
	Field  string
	Detail string
	Err    error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s %s", e.Op, e.Kind)
	if e.Field != "" {
		msg += " " + e.Field
	}
	msg += ": " + e.Err.Error()
	if e.Detail != "" {
		msg += " (" + e.Detail + ")"
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

func truncated(k Kind, field string, need, have int) error {
	return &Error{
		Op:     "decode",
		Kind:   k,
		Field:  field,
		Detail: fmt.Sprintf("need %d bytes, have %d", need, have),
		Err:    ErrTruncated,
	}
}

func invalidDecode(k Kind, field, format string, args ...any) error {
	return &Error{Op: "decode", Kind: k, Field: field, Detail: fmt.Sprintf(format, args...), Err: ErrInvalidField}
}

func invalidSet(k Kind, field, format string, args ...any) error {
	return &Error{Op: "set", Kind: k, Field: field, Detail: fmt.Sprintf(format, args...), Err: ErrInvalidField}
}

func invalidValue(k Kind, field, format string, args ...any) error {
	return &Error{Op: "validate", Kind: k, Field: field, Detail: fmt.Sprintf(format, args...), Err: ErrInvalidField}
}
