package tts

import (
	"context"
	"sync"
	"time"
)

// Mock is a Provider for tests. By default its "audio" is the UTF-8 text
// itself tagged as MP3, so tests can assert on what a listener would hear.
type Mock struct {
	// Label is returned by Name. Empty means "mock".
	Label string

	SynthesizeFunc func(ctx context.Context, text string) (*AudioResult, error)
	HealthFunc     func(ctx context.Context) error
	CloseFunc      func() error

	mu    sync.Mutex
	calls []MockCall
}

// MockCall is one recorded invocation. Err is what the call returned.
type MockCall struct {
	Method string
	Text   string
	Err    error
}

// NewMock returns a mock that echoes text as audio.
func NewMock() *Mock {
	return &Mock{SynthesizeFunc: echoAudio}
}

func echoAudio(_ context.Context, text string) (*AudioResult, error) {
	return &AudioResult{
		Audio:     []byte(text),
		Format:    AudioFormat{Encoding: EncodingMP3, SampleRate: 44100, Channels: 1},
		CharCount: len(text),
		LatencyMs: 1,
	}, nil
}

// Name implements Named.
func (m *Mock) Name() string {
	if m.Label == "" {
		return "mock"
	}
	return m.Label
}

func (m *Mock) Synthesize(ctx context.Context, text string) (*AudioResult, error) {
	var (
		result *AudioResult
		err    = WrapError(m.Name(), ErrProviderUnavailable)
	)
	if m.SynthesizeFunc != nil {
		result, err = m.SynthesizeFunc(ctx, text)
	}
	m.record("Synthesize", text, err)
	return result, err
}

func (m *Mock) Health(ctx context.Context) error {
	var err error
	if m.HealthFunc != nil {
		err = m.HealthFunc(ctx)
	}
	m.record("Health", "", err)
	return err
}

func (m *Mock) Close() error {
	var err error
	if m.CloseFunc != nil {
		err = m.CloseFunc()
	}
	m.record("Close", "", err)
	return err
}

func (m *Mock) record(method, text string, err error) {
	m.mu.Lock()
	m.calls = append(m.calls, MockCall{Method: method, Text: text, Err: err})
	m.mu.Unlock()
}

// Calls returns a copy of the recorded calls.
func (m *Mock) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]MockCall(nil), m.calls...)
}

// CallCount counts calls to method, successful or not.
func (m *Mock) CallCount(method string) int {
	n := 0
	for _, c := range m.Calls() {
		if c.Method == method {
			n++
		}
	}
	return n
}

// Spoken returns the texts that were synthesized successfully, in order.
func (m *Mock) Spoken() []string {
	var texts []string
	for _, c := range m.Calls() {
		if c.Method == "Synthesize" && c.Err == nil {
			texts = append(texts, c.Text)
		}
	}
	return texts
}

// LastCall returns the most recent call, or nil.
func (m *Mock) LastCall() *MockCall {
	calls := m.Calls()
	if len(calls) == 0 {
		return nil
	}
	return &calls[len(calls)-1]
}

// Reset forgets the recorded calls.
func (m *Mock) Reset() {
	m.mu.Lock()
	m.calls = nil
	m.mu.Unlock()
}

// WithError returns a mock whose Synthesize and Health fail with err,
// like a backend with a revoked key.
func WithError(err error) *Mock {
	return &Mock{
		SynthesizeFunc: func(context.Context, string) (*AudioResult, error) { return nil, err },
		HealthFunc:     func(context.Context) error { return err },
	}
}

// WithLatency delays m's synthesis by delay. A cancelled context ends the
// wait early, which is what an interrupted announcement looks like.
func WithLatency(m *Mock, delay time.Duration) *Mock {
	next := m.SynthesizeFunc
	m.SynthesizeFunc = func(ctx context.Context, text string) (*AudioResult, error) {
		t := time.NewTimer(delay)
		defer t.Stop()
		select {
		case <-t.C:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		if next == nil {
			return nil, WrapError(m.Name(), ErrProviderUnavailable)
		}
		return next(ctx, text)
	}
	return m
}

var (
	_ Provider = (*Mock)(nil)
	_ Named    = (*Mock)(nil)
)
