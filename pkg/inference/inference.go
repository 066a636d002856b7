// Package inference classifies camera frames with a remote bill-detection
// model.
//
// The package hides the hosted model behind a single Classifier interface
// so the detection loop can be driven by the HTTP client, a fallback chain,
// or a mock in tests.
//
// Example usage:
//
//	client, _ := inference.NewClient(
//	    inference.WithAPIKey(os.Getenv("ROBOFLOW_API_KEY")),
//	    inference.WithModel("mexican-bills/3"),
//	)
//	defer client.Close()
//
//	preds, err := client.Classify(ctx, jpegBytes)
package inference

import (
	"context"

	"github.com/teslashibe/go-billsense/pkg/detect"
)

// Classifier is the bill classification interface.
// All implementations must satisfy this interface.
type Classifier interface {
	// Classify sends one JPEG-encoded frame to the model and returns every
	// candidate it reported, unfiltered. An empty slice means the model saw
	// nothing.
	Classify(ctx context.Context, jpeg []byte) ([]detect.Prediction, error)

	// Health checks that the classifier is usable.
	Health(ctx context.Context) error

	// Close releases any resources held by the classifier.
	Close() error
}
