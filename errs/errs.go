// Package errs defines the closed set of error kinds the bridge can raise,
// shared by the magic, codec, object, and bridge packages so none of them
// needs to depend on the others just to report a failure in the right shape.
package errs

import "fmt"

// Kind identifies one of the bridge's named failure modes.
type Kind string

const (
	UnsupportedType   Kind = "UnsupportedType"
	ClosedBridgeObject Kind = "ClosedBridgeObject"
	InvalidPackedID   Kind = "InvalidPackedId"
	InvalidShareID    Kind = "InvalidShareId"
	NotBridgeable     Kind = "NotBridgeable"
	DuplicateShareID  Kind = "DuplicateShareId"
	NoSuchMethod      Kind = "NoSuchMethod"
	ClosedProxy       Kind = "ClosedProxy"
	InvalidCallID     Kind = "InvalidCallId"
	InvalidLocalID    Kind = "InvalidLocalId"

	// InvalidShape covers the generic "wrong JSON shape for this map tag"
	// failure: validating shape at each step and raising TypeError/
	// RangeError with a path string on mismatch, without a more specific
	// named Kind.
	InvalidShape Kind = "InvalidShape"
)

// Category mirrors the JS exception class each Kind surfaces as (TypeError,
// RangeError, or plain Error).
type Category string

const (
	TypeError  Category = "TypeError"
	RangeError Category = "RangeError"
	PlainError Category = "Error"
)

var categories = map[Kind]Category{
	UnsupportedType:     TypeError,
	ClosedBridgeObject:  TypeError,
	InvalidPackedID:     RangeError,
	InvalidShareID:      RangeError,
	NotBridgeable:       TypeError,
	DuplicateShareID:    PlainError,
	NoSuchMethod:        TypeError,
	ClosedProxy:         TypeError,
	InvalidCallID:       RangeError,
	InvalidLocalID:      RangeError,
	InvalidShape:        TypeError,
}

// Error is the concrete error type raised for every Kind above.
type Error struct {
	Kind    Kind
	Path    string // property path, when the failure was discovered mid-traversal
	Message string
}

func (e *Error) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s: %s at %s", e.categoryOf(), e.Message, e.Path)
	}
	return fmt.Sprintf("%s: %s", e.categoryOf(), e.Message)
}

func (e *Error) categoryOf() Category {
	if c, ok := categories[e.Kind]; ok {
		return c
	}
	return PlainError
}

// Category returns the JS-exception-class analogue for this error.
func (e *Error) Category() Category { return e.categoryOf() }

// New builds an *Error for the given kind with a formatted message.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// WithPath returns a copy of the error annotated with a property path.
func WithPath(err *Error, path string) *Error {
	clone := *err
	clone.Path = path
	return &clone
}

// Is makes errors.Is match by kind: an *Error target matches any *Error of
// the same Kind, e.g. errors.Is(err, errs.New(errs.ClosedProxy, "")). A
// target that is not an *Error never matches.
func (e *Error) Is(target error) bool {
	other, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == other.Kind
}
