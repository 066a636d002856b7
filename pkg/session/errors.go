package session

import (
	"errors"
	"fmt"

	"github.com/teslashibe/go-billsense/pkg/camera"
)

// ErrClosed is returned by lifecycle calls on a closed session.
var ErrClosed = errors.New("session: closed")

// AcquisitionError means the frame source could not be opened.
// The session stays stopped; starting again is allowed.
type AcquisitionError struct {
	Facing camera.Facing
	Err    error
}

func (e *AcquisitionError) Error() string {
	return fmt.Sprintf("session: open %s camera: %v", e.Facing, e.Err)
}

func (e *AcquisitionError) Unwrap() error { return e.Err }

// InferenceError means the classifier failed for one tick. Detection state
// is left untouched and the next tick tries again.
type InferenceError struct {
	Err error
}

func (e *InferenceError) Error() string {
	return fmt.Sprintf("session: inference: %v", e.Err)
}

func (e *InferenceError) Unwrap() error { return e.Err }

// DecodeError means no usable frame could be produced for one tick.
type DecodeError struct {
	Stage string // ready, capture or encode
	Err   error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("session: %s: %v", e.Stage, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }
