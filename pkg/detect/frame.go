package detect

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
)

// DefaultJPEGQuality matches what the hosted classifier was trained on.
const DefaultJPEGQuality = 85

// ErrEmptyFrame is returned when a frame carries no pixels.
var ErrEmptyFrame = errors.New("detect: empty frame")

// Frame is one captured image. It is ephemeral: a frame is never kept
// beyond the tick that captured it.
type Frame struct {
	Image  image.Image
	Width  int
	Height int

	// JPEG holds the encoded bytes when the source already produced them.
	JPEG []byte
}

// NewFrame wraps a decoded image.
func NewFrame(img image.Image) Frame {
	b := img.Bounds()
	return Frame{Image: img, Width: b.Dx(), Height: b.Dy()}
}

// DecodeFrame decodes JPEG bytes into a frame, keeping the original bytes
// so they can be forwarded without re-encoding.
func DecodeFrame(data []byte) (Frame, error) {
	if len(data) == 0 {
		return Frame{}, ErrEmptyFrame
	}
	img, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		return Frame{}, fmt.Errorf("detect: decode jpeg: %w", err)
	}
	f := NewFrame(img)
	f.JPEG = data
	return f, nil
}

// Area returns the frame area in pixels.
func (f Frame) Area() float64 {
	return float64(f.Width) * float64(f.Height)
}

// Empty reports whether the frame has no usable pixels.
func (f Frame) Empty() bool {
	return f.Width <= 0 || f.Height <= 0
}

// EncodeJPEG returns the frame as JPEG bytes, encoding at the given quality
// only when the source did not already provide them.
func (f Frame) EncodeJPEG(quality int) ([]byte, error) {
	if len(f.JPEG) > 0 {
		return f.JPEG, nil
	}
	if f.Image == nil || f.Empty() {
		return nil, ErrEmptyFrame
	}
	if quality <= 0 || quality > 100 {
		quality = DefaultJPEGQuality
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, f.Image, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("detect: encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

// Prediction is one labeled bounding box returned by the classifier.
// X and Y are the box center in frame pixels.
type Prediction struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Width      float64 `json:"width"`
	Height     float64 `json:"height"`
}

// Area returns the bounding box area in pixels.
func (p Prediction) Area() float64 {
	return p.Width * p.Height
}

// AspectRatio returns max(w,h)/min(w,h), or 0 for a degenerate box.
func (p Prediction) AspectRatio() float64 {
	lo, hi := p.Width, p.Height
	if lo > hi {
		lo, hi = hi, lo
	}
	if lo <= 0 {
		return 0
	}
	return hi / lo
}

// AcceptedPrediction is the single prediction that survived filtering.
type AcceptedPrediction struct {
	Prediction
	AreaPercent float64 `json:"area_percent"`
}
