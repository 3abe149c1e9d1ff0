package engine

import (
	"errors"
	"fmt"
)

// ErrUnknownModel is returned by Run for a name that was never registered.
var ErrUnknownModel = errors.New("unknown model")

// ErrNoStore is returned when neither the model nor the engine has a
// store to query.
var ErrNoStore = errors.New("no store bound")

// ShapeError reports a hook or store returning a value that cannot fill
// the requested result.
type ShapeError struct {
	// Leg names the part of the call that produced the value ("rows").
	Leg string

	// Got is the dynamic type of the value.
	Got string
}

// Error implements the error interface.
func (e *ShapeError) Error() string {
	return fmt.Sprintf("%s leg returned %s", e.Leg, e.Got)
}

// IsShapeError reports whether err is a ShapeError.
// Uses errors.As to handle wrapped errors.
func IsShapeError(err error) bool {
	var se *ShapeError
	return errors.As(err, &se)
}
