package inference

import (
	"context"
	"errors"
	"testing"

	"github.com/teslashibe/go-billsense/pkg/detect"
)

func TestChainFallback(t *testing.T) {
	ctx := context.Background()

	failing := WithError(errors.New("classifier 1 failed"))
	working := Returning(detect.Prediction{Label: "100", Confidence: 0.93})

	chain, err := NewChain(failing, working)
	if err != nil {
		t.Fatalf("Failed to create chain: %v", err)
	}
	defer chain.Close()

	preds, err := chain.Classify(ctx, []byte{1})
	if err != nil {
		t.Fatalf("Chain classify failed: %v", err)
	}
	if len(preds) != 1 || preds[0].Label != "100" {
		t.Errorf("Unexpected predictions: %+v", preds)
	}
	if failing.CallCount("Classify") != 1 || working.CallCount("Classify") != 1 {
		t.Error("each classifier should be tried exactly once")
	}
}

func TestChainAllFail(t *testing.T) {
	ctx := context.Background()

	chain, _ := NewChain(
		WithError(errors.New("classifier 1 failed")),
		WithError(errors.New("classifier 2 failed")),
	)
	defer chain.Close()

	_, err := chain.Classify(ctx, []byte{1})
	if err == nil {
		t.Fatal("Expected error when all classifiers fail")
	}

	var chainErr *ChainError
	if !errors.As(err, &chainErr) {
		t.Fatalf("Expected ChainError, got %T", err)
	}
	if len(chainErr.Errors) != 2 {
		t.Errorf("Expected 2 errors, got %d", len(chainErr.Errors))
	}
}

func TestChainStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	first := NewMock()
	first.ClassifyFunc = func(ctx context.Context, jpeg []byte) ([]detect.Prediction, error) {
		cancel()
		return nil, errors.New("interrupted")
	}
	second := NewMock()

	chain, _ := NewChain(first, second)
	_, err := chain.Classify(ctx, []byte{1})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if second.CallCount("Classify") != 0 {
		t.Error("second classifier should not run after cancellation")
	}
}

func TestChainBenchesRetiredModel(t *testing.T) {
	ctx := context.Background()

	retired := WithError(&APIError{StatusCode: 404, Message: "model not found", Provider: "roboflow", Model: "bills/4"})
	previous := Returning(detect.Prediction{Label: "500", Confidence: 0.91})

	chain, _ := NewChain(retired, previous)
	for range 3 {
		preds, err := chain.Classify(ctx, []byte{1})
		if err != nil || len(preds) != 1 {
			t.Fatalf("Classify: %v %v", preds, err)
		}
	}
	if retired.CallCount("Classify") != 1 {
		t.Errorf("retired model should be skipped after the first 404, got %d calls", retired.CallCount("Classify"))
	}
	if chain.Benched() != 1 {
		t.Errorf("Benched: got %d, want 1", chain.Benched())
	}
	if got := previous.Frames(); len(got) != 3 {
		t.Errorf("fallback should see every frame, saw %d", len(got))
	}
}

func TestChainKeepsLastClassifier(t *testing.T) {
	unauthorized := &APIError{StatusCode: 401, Message: "bad key"}
	only := WithError(unauthorized)

	chain, _ := NewChain(WithError(unauthorized), only)
	for range 2 {
		_, err := chain.Classify(context.Background(), []byte{1})
		if !IsPermanent(err) {
			t.Fatalf("expected a permanent error, got %v", err)
		}
	}
	if only.CallCount("Classify") != 2 {
		t.Errorf("last classifier must keep being asked, got %d calls", only.CallCount("Classify"))
	}
	if chain.Benched() != 1 {
		t.Errorf("Benched: got %d, want 1", chain.Benched())
	}
}

func TestChainEmpty(t *testing.T) {
	if _, err := NewChain(); !errors.Is(err, ErrProviderUnavailable) {
		t.Errorf("expected ErrProviderUnavailable, got %v", err)
	}
}

func TestMockSequence(t *testing.T) {
	m := Sequence(
		[]detect.Prediction{{Label: "20"}},
		nil,
	)
	ctx := context.Background()

	first, _ := m.Classify(ctx, nil)
	second, _ := m.Classify(ctx, nil)
	third, _ := m.Classify(ctx, nil)

	if len(first) != 1 || len(second) != 0 || len(third) != 0 {
		t.Errorf("sequence replay: got %v, %v, %v", first, second, third)
	}
	if m.CallCount("Classify") != 3 {
		t.Errorf("CallCount: got %d, want 3", m.CallCount("Classify"))
	}
}
