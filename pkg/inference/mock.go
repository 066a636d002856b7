package inference

import (
	"context"
	"sync"

	"github.com/teslashibe/go-billsense/pkg/detect"
)

// Mock is a Classifier for tests. The zero value answers every frame with
// ErrProviderUnavailable; use the constructors for scripted answers.
type Mock struct {
	ClassifyFunc func(ctx context.Context, jpeg []byte) ([]detect.Prediction, error)
	HealthFunc   func(ctx context.Context) error
	CloseFunc    func() error

	mu     sync.Mutex
	counts map[string]int
	frames [][]byte
}

// NewMock returns a mock that never sees a bill.
func NewMock() *Mock {
	return Returning()
}

// Returning answers every frame with preds.
func Returning(preds ...detect.Prediction) *Mock {
	return &Mock{
		ClassifyFunc: func(context.Context, []byte) ([]detect.Prediction, error) {
			return append([]detect.Prediction(nil), preds...), nil
		},
	}
}

// Sequence replays one answer per frame and then repeats the last one.
// A nil answer means nothing in view.
func Sequence(answers ...[]detect.Prediction) *Mock {
	var mu sync.Mutex
	next := 0
	return &Mock{
		ClassifyFunc: func(context.Context, []byte) ([]detect.Prediction, error) {
			mu.Lock()
			defer mu.Unlock()
			if len(answers) == 0 {
				return nil, nil
			}
			a := answers[min(next, len(answers)-1)]
			next++
			return a, nil
		},
	}
}

// WithError fails every frame and health check with err.
func WithError(err error) *Mock {
	return &Mock{
		ClassifyFunc: func(context.Context, []byte) ([]detect.Prediction, error) { return nil, err },
		HealthFunc:   func(context.Context) error { return err },
	}
}

func (m *Mock) Classify(ctx context.Context, jpeg []byte) ([]detect.Prediction, error) {
	m.mu.Lock()
	m.count("Classify")
	m.frames = append(m.frames, jpeg)
	m.mu.Unlock()

	if m.ClassifyFunc == nil {
		return nil, WrapError("mock", ErrProviderUnavailable)
	}
	return m.ClassifyFunc(ctx, jpeg)
}

func (m *Mock) Health(ctx context.Context) error {
	m.mu.Lock()
	m.count("Health")
	m.mu.Unlock()

	if m.HealthFunc == nil {
		return nil
	}
	return m.HealthFunc(ctx)
}

func (m *Mock) Close() error {
	m.mu.Lock()
	m.count("Close")
	m.mu.Unlock()

	if m.CloseFunc == nil {
		return nil
	}
	return m.CloseFunc()
}

// count must be called with mu held.
func (m *Mock) count(method string) {
	if m.counts == nil {
		m.counts = make(map[string]int)
	}
	m.counts[method]++
}

// CallCount returns how many times method was called.
func (m *Mock) CallCount(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counts[method]
}

// Frames returns the images passed to Classify, oldest first.
func (m *Mock) Frames() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]byte(nil), m.frames...)
}

var _ Classifier = (*Mock)(nil)
