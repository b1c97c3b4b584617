package sampler

import (
	"errors"
	"fmt"
)

// InvalidRangeError reports a degenerate sampling request: an inverted
// range (max < min) or an empty alternative list.
type InvalidRangeError struct {
	Min string
	Max string
}

// Error implements the error interface.
func (e *InvalidRangeError) Error() string {
	return fmt.Sprintf("invalid sampling range [%s, %s]", e.Min, e.Max)
}

// IsInvalidRange reports whether err is (or wraps) an InvalidRangeError.
func IsInvalidRange(err error) bool {
	var re *InvalidRangeError
	return errors.As(err, &re)
}
