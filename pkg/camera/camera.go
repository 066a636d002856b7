// Package camera provides frame sources for the detection loop and the
// camera settings they are opened with.
package camera

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/teslashibe/go-billsense/pkg/detect"
)

var (
	// ErrNoDevice is returned when no capture device matches the request.
	ErrNoDevice = errors.New("camera: no capture device")

	// ErrNotOpen is returned when capturing from a closed source.
	ErrNotOpen = errors.New("camera: source not open")

	// ErrNoFrame is returned when the source has nothing to hand out yet.
	ErrNoFrame = errors.New("camera: no frame available")
)

// Facing selects which camera to open.
type Facing string

const (
	FacingBack  Facing = "back"
	FacingFront Facing = "front"
)

// Toggle returns the opposite facing.
func (f Facing) Toggle() Facing {
	if f == FacingFront {
		return FacingBack
	}
	return FacingFront
}

// FacingMode returns the browser facingMode constraint for f.
func (f Facing) FacingMode() string {
	if f == FacingFront {
		return "user"
	}
	return "environment"
}

// ParseFacing accepts back/front and the browser names environment/user.
func ParseFacing(s string) (Facing, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "back", "rear", "environment":
		return FacingBack, nil
	case "front", "user", "selfie":
		return FacingFront, nil
	}
	return "", fmt.Errorf("camera: unknown facing %q", s)
}

// FrameSource is anything the detection loop can pull frames from.
type FrameSource interface {
	// Open acquires the camera with the given facing.
	Open(ctx context.Context, facing Facing) error

	// IsReady reports whether Capture would return a usable frame.
	IsReady() bool

	// Capture returns the current frame.
	Capture() (detect.Frame, error)

	// Close releases the camera. Closing twice is a no-op.
	Close() error
}
