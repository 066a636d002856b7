package inference

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/teslashibe/go-billsense/internal/httpc"
	"github.com/teslashibe/go-billsense/pkg/detect"
)

const providerClient = "roboflow"

// Client posts frames to a hosted object-detection model.
// The image travels as a base64 form body and the key as a query parameter.
// Requests are never retried; the next tick is the retry.
type Client struct {
	endpoint string
	config   *Config
	http     *http.Client
	logger   *slog.Logger
}

// NewClient creates a new classifier client.
func NewClient(opts ...Option) (*Client, error) {
	cfg := DefaultConfig()
	cfg.Apply(opts...)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	hc := cfg.HTTPClient
	if hc == nil {
		hc = httpc.NewClient(cfg.Timeout)
	}

	base := strings.TrimSuffix(cfg.BaseURL, "/")
	model := strings.Trim(cfg.Model, "/")

	return &Client{
		endpoint: base + "/" + model,
		config:   cfg,
		http:     hc,
		logger:   cfg.Logger.With("component", "inference.client", "model", model),
	}, nil
}

// Classify sends a JPEG frame and returns the raw predictions.
func (c *Client) Classify(ctx context.Context, jpeg []byte) ([]detect.Prediction, error) {
	if len(jpeg) == 0 {
		return nil, WrapError(providerClient, ErrEmptyImage)
	}
	start := time.Now()

	body := base64.StdEncoding.EncodeToString(jpeg)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.requestURL(), strings.NewReader(body))
	if err != nil {
		return nil, WrapError(providerClient, fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, WrapError(providerClient, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, c.parseError(resp)
	}

	var result detectResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, WrapError(providerClient, fmt.Errorf("%w: %v", ErrMalformedResponse, err))
	}

	preds := make([]detect.Prediction, 0, len(result.Predictions))
	for _, p := range result.Predictions {
		preds = append(preds, detect.Prediction{
			Label:      p.Class,
			Confidence: p.Confidence,
			X:          p.X,
			Y:          p.Y,
			Width:      p.Width,
			Height:     p.Height,
		})
	}

	c.logger.Debug("classified frame",
		"predictions", len(preds),
		"image_width", result.Image.Width,
		"image_height", result.Image.Height,
		"latency_ms", time.Since(start).Milliseconds(),
	)
	for _, p := range preds {
		c.logger.Debug("prediction", "label", p.Label, "confidence", p.Confidence)
	}

	return preds, nil
}

// Health reports whether the client is configured. The hosted endpoint has
// no free probe, so no request is made.
func (c *Client) Health(ctx context.Context) error {
	return c.config.Validate()
}

// Close releases resources.
func (c *Client) Close() error {
	c.http.CloseIdleConnections()
	return nil
}

func (c *Client) requestURL() string {
	q := url.Values{}
	q.Set("api_key", c.config.APIKey)
	if c.config.Confidence > 0 {
		q.Set("confidence", strconv.Itoa(int(c.config.Confidence*100)))
	}
	return c.endpoint + "?" + q.Encode()
}

// parseError converts a non-2xx response into an APIError.
func (c *Client) parseError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	message := strings.TrimSpace(string(body))
	var errResp struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if json.Unmarshal(body, &errResp) == nil {
		switch {
		case errResp.Message != "":
			message = errResp.Message
		case errResp.Error != "":
			message = errResp.Error
		}
	}

	return &APIError{
		StatusCode: resp.StatusCode,
		Message:    message,
		Provider:   providerClient,
		Model:      c.config.Model,
	}
}

type detectResponse struct {
	Predictions []struct {
		X          float64 `json:"x"`
		Y          float64 `json:"y"`
		Width      float64 `json:"width"`
		Height     float64 `json:"height"`
		Confidence float64 `json:"confidence"`
		Class      string  `json:"class"`
	} `json:"predictions"`
	Image struct {
		Width  int `json:"width"`
		Height int `json:"height"`
	} `json:"image"`
}

// Verify Client implements Classifier at compile time.
var _ Classifier = (*Client)(nil)
