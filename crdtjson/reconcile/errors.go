package reconcile

import (
	"errors"
	"fmt"
)

// Hydration failure kinds. A *HydrateError unwraps to one of these, so callers can
// test with errors.Is.
var (
	// ErrShapeMismatch is returned when a node or scalar does not have the shape the
	// caller's target type expects.
	ErrShapeMismatch = errors.New("shape mismatch")
	// ErrNonFiniteFloat is returned for NaN and infinite floats, which JSON cannot represent.
	ErrNonFiniteFloat = errors.New("non-finite float")
	// ErrInvalidTimestamp is returned when a timestamp scalar is not a valid calendar instant.
	ErrInvalidTimestamp = errors.New("invalid timestamp")
	// ErrUnknownScalar is returned for scalar extensions this replica does not understand.
	ErrUnknownScalar = errors.New("unknown scalar extension")
)

// HydrateError reports a value in the tree that cannot be turned into JSON.
type HydrateError struct {
	// Path locates the offending value, e.g. "obj.items[2].at".
	Path string
	// Kind is one of the Err* sentinels above.
	Kind error
	// Detail describes the offending value.
	Detail string
}

func (e *HydrateError) Error() string {
	path := e.Path
	if path == "" {
		path = "<root>"
	}
	if e.Detail == "" {
		return fmt.Sprintf("hydrate %s: %v", path, e.Kind)
	}
	return fmt.Sprintf("hydrate %s: %v: %s", path, e.Kind, e.Detail)
}

func (e *HydrateError) Unwrap() error {
	return e.Kind
}

func hydrateErr(path string, kind error, format string, args ...interface{}) error {
	return &HydrateError{Path: path, Kind: kind, Detail: fmt.Sprintf(format, args...)}
}

// UnrepresentableNumberError is returned when a JSON number fits none of the unsigned,
// signed or finite float scalar forms.
type UnrepresentableNumberError struct {
	Path    string
	Literal string
}

func (e *UnrepresentableNumberError) Error() string {
	return fmt.Sprintf("reconcile %s: number %q is not representable as uint64, int64 or finite float64", e.Path, e.Literal)
}
