package detect

import (
	"image"
	"image/color"
	"math"
)

// SceneVerdict classifies a frame before any classifier call is spent on it.
type SceneVerdict int

const (
	SceneOK SceneVerdict = iota
	SceneDark
	SceneUniform
)

// String returns the verdict name.
func (v SceneVerdict) String() string {
	switch v {
	case SceneOK:
		return "ok"
	case SceneDark:
		return "dark"
	case SceneUniform:
		return "uniform"
	default:
		return "unknown"
	}
}

// MarshalText encodes the verdict by name.
func (v SceneVerdict) MarshalText() ([]byte, error) {
	return []byte(v.String()), nil
}

// SceneAssessment is the result of sampling the center of a frame.
type SceneAssessment struct {
	Brightness float64      `json:"brightness"` // Mean luma, 0-255
	Uniformity float64      `json:"uniformity"` // 1 for a flat region
	Verdict    SceneVerdict `json:"verdict"`
	Valid      bool         `json:"valid"`
}

// AssessScene samples a centered square of the frame and decides whether
// it is worth classifying. An empty frame is reported dark.
func AssessScene(cfg EngineConfig, f Frame) SceneAssessment {
	if f.Image == nil || f.Empty() {
		return SceneAssessment{Verdict: SceneDark}
	}

	mean, stddev := sampleLuma(f.Image, cfg.SampleSize)

	scale := cfg.UniformityScale
	if scale <= 0 {
		scale = 64
	}
	a := SceneAssessment{
		Brightness: mean,
		Uniformity: clamp01(1 - stddev/scale),
	}

	switch {
	case a.Brightness < cfg.MinBrightness:
		a.Verdict = SceneDark
	case a.Uniformity >= cfg.MaxUniformity:
		a.Verdict = SceneUniform
	default:
		a.Verdict = SceneOK
		a.Valid = true
	}
	return a
}

// ObserveScene folds an assessment into the darkness counters. It reports
// true exactly once per dark spell, when DarkFramesThreshold consecutive
// dark frames have been seen; the next report needs BrightFramesToReset
// consecutive non-dark frames first.
func ObserveScene(cfg EngineConfig, s DetectionState, a SceneAssessment) (DetectionState, bool) {
	if a.Verdict != SceneDark {
		s.BrightCount++
		s.DarkCount = 0
		if s.DarkAnnounced && s.BrightCount >= cfg.BrightFramesToReset {
			s.DarkAnnounced = false
		}
		return s, false
	}

	s.DarkCount++
	s.BrightCount = 0
	if !s.DarkAnnounced && s.DarkCount >= cfg.DarkFramesThreshold {
		s.DarkAnnounced = true
		return s, true
	}
	return s, false
}

// sampleLuma returns the mean and standard deviation of BT.601 luma over a
// centered square of the given side, clamped to the image.
func sampleLuma(img image.Image, side int) (mean, stddev float64) {
	r := centerSquare(img.Bounds(), side)
	if r.Empty() {
		return 0, 0
	}

	var sum, sumSq float64
	n := float64(r.Dx() * r.Dy())

	if ycc, ok := img.(*image.YCbCr); ok {
		for y := r.Min.Y; y < r.Max.Y; y++ {
			for x := r.Min.X; x < r.Max.X; x++ {
				v := float64(ycc.Y[ycc.YOffset(x, y)])
				sum += v
				sumSq += v * v
			}
		}
	} else {
		for y := r.Min.Y; y < r.Max.Y; y++ {
			for x := r.Min.X; x < r.Max.X; x++ {
				v := float64(color.GrayModel.Convert(img.At(x, y)).(color.Gray).Y)
				sum += v
				sumSq += v * v
			}
		}
	}

	mean = sum / n
	variance := sumSq/n - mean*mean
	if variance < 0 {
		variance = 0
	}
	return mean, math.Sqrt(variance)
}

func centerSquare(b image.Rectangle, side int) image.Rectangle {
	if side <= 0 {
		side = 100
	}
	w := min(side, b.Dx())
	h := min(side, b.Dy())
	x0 := b.Min.X + (b.Dx()-w)/2
	y0 := b.Min.Y + (b.Dy()-h)/2
	return image.Rect(x0, y0, x0+w, y0+h)
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
