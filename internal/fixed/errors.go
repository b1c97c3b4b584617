package fixed

import (
	"errors"
	"fmt"
)

// DecodeError reports a malformed fixed-point input: text that is not valid
// hex/integer, a negative bit pattern, or a value wider than its declared
// format.
type DecodeError struct {
	// Input is the offending raw value (or its decimal rendering).
	Input string

	// Reason describes why decoding failed.
	Reason string
}

// Error implements the error interface.
func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %q: %s", e.Input, e.Reason)
}

// IsDecodeError reports whether err is (or wraps) a DecodeError.
func IsDecodeError(err error) bool {
	var de *DecodeError
	return errors.As(err, &de)
}

// TypeMismatchError reports heterogeneous operand types passed to a
// dynamically-typed comparator call.
type TypeMismatchError struct {
	A string // type of the first operand
	B string // type of the second operand
}

// Error implements the error interface.
func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("comparator operands have different types: %s vs %s", e.A, e.B)
}

// IsTypeMismatch reports whether err is (or wraps) a TypeMismatchError.
func IsTypeMismatch(err error) bool {
	var te *TypeMismatchError
	return errors.As(err, &te)
}
