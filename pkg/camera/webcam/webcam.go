// Package webcam captures frames from a local camera through OpenCV.
package webcam

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"

	"gocv.io/x/gocv"

	"github.com/teslashibe/go-billsense/pkg/camera"
	"github.com/teslashibe/go-billsense/pkg/detect"
)

// Source is a camera.FrameSource backed by gocv.VideoCapture.
type Source struct {
	config camera.Config
	logger *slog.Logger

	mu  sync.Mutex
	cap *gocv.VideoCapture
	mat gocv.Mat
}

// New creates a closed webcam source.
func New(cfg camera.Config, logger *slog.Logger) *Source {
	if logger == nil {
		logger = slog.Default()
	}
	return &Source{
		config: cfg,
		logger: logger.With("component", "camera.webcam"),
	}
}

// deviceID turns "0" into 0 so OpenCV treats it as an index, and passes
// anything else through as a path or URL.
func deviceID(dev string) interface{} {
	if n, err := strconv.Atoi(dev); err == nil {
		return n
	}
	return dev
}

// Open implements camera.FrameSource.
func (s *Source) Open(ctx context.Context, facing camera.Facing) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dev := s.config.Device(facing)
	if dev == "" {
		return fmt.Errorf("%w: no %s device configured", camera.ErrNoDevice, facing)
	}

	vc, err := gocv.OpenVideoCapture(deviceID(dev))
	if err != nil {
		return fmt.Errorf("%w: %s: %v", camera.ErrNoDevice, dev, err)
	}
	if !vc.IsOpened() {
		vc.Close()
		return fmt.Errorf("%w: %s", camera.ErrNoDevice, dev)
	}
	vc.Set(gocv.VideoCaptureFrameWidth, float64(s.config.Width))
	vc.Set(gocv.VideoCaptureFrameHeight, float64(s.config.Height))
	if s.config.Framerate > 0 {
		vc.Set(gocv.VideoCaptureFPS, float64(s.config.Framerate))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeLocked()
	s.cap = vc
	s.mat = gocv.NewMat()

	s.logger.Info("webcam opened", "device", dev, "facing", facing,
		"width", vc.Get(gocv.VideoCaptureFrameWidth),
		"height", vc.Get(gocv.VideoCaptureFrameHeight))
	return nil
}

// IsReady implements camera.FrameSource.
func (s *Source) IsReady() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cap != nil && s.cap.IsOpened()
}

// Capture reads one frame and JPEG-encodes it at the configured quality.
func (s *Source) Capture() (detect.Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cap == nil {
		return detect.Frame{}, camera.ErrNotOpen
	}
	if ok := s.cap.Read(&s.mat); !ok || s.mat.Empty() {
		return detect.Frame{}, camera.ErrNoFrame
	}

	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, s.mat, []int{int(gocv.IMWriteJpegQuality), s.config.Quality})
	if err != nil {
		return detect.Frame{}, fmt.Errorf("webcam: encode: %w", err)
	}
	defer buf.Close()

	// The buffer is owned by OpenCV; copy before it is released.
	data := append([]byte(nil), buf.GetBytes()...)

	img, err := s.mat.ToImage()
	if err != nil {
		return detect.Frame{}, fmt.Errorf("webcam: convert: %w", err)
	}
	f := detect.NewFrame(img)
	f.JPEG = data
	return f, nil
}

// Close implements camera.FrameSource.
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeLocked()
}

func (s *Source) closeLocked() error {
	if s.cap == nil {
		return nil
	}
	err := s.cap.Close()
	s.mat.Close()
	s.cap = nil
	return err
}

var _ camera.FrameSource = (*Source)(nil)
