// classify: one-shot bill classification of JPEG files
//
// Runs each image through the configured classifier and the engine's
// prediction filter, and prints one JSON line per image.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/teslashibe/go-billsense/internal/config"
	"github.com/teslashibe/go-billsense/internal/log"
	"github.com/teslashibe/go-billsense/internal/providers"
	"github.com/teslashibe/go-billsense/pkg/detect"
	"github.com/teslashibe/go-billsense/pkg/inference"
)

var (
	configPath = flag.String("config", os.Getenv("BILLSENSE_CONFIG"), "YAML config file")
	model      = flag.String("model", "", "Hosted model, project/version (overrides config)")
	profile    = flag.String("profile", "", "Engine profile: strict, permissive")
	timeout    = flag.Duration("timeout", 30*time.Second, "Timeout per image")
)

// result is printed for every image.
type result struct {
	File        string                     `json:"file"`
	Width       int                        `json:"width,omitempty"`
	Height      int                        `json:"height,omitempty"`
	Scene       *detect.SceneAssessment    `json:"scene,omitempty"`
	Predictions []detect.Prediction        `json:"predictions,omitempty"`
	Accepted    *detect.AcceptedPrediction `json:"accepted,omitempty"`
	LatencyMs   int64                      `json:"latency_ms"`
	Error       string                     `json:"error,omitempty"`
}

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: classify [flags] image.jpg...\n")
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if *model != "" {
		cfg.Inference.Model = *model
	}
	if *profile != "" {
		cfg.Engine.Profile = *profile
	}

	log.Init(cfg.LogLevel)
	logger := log.Component("classify")

	engine, err := cfg.EngineSettings()
	if err != nil {
		fmt.Fprintf(os.Stderr, "engine: %v\n", err)
		os.Exit(1)
	}

	classifier, err := providers.NewClassifier(cfg.Inference, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "classifier: %v\n", err)
		os.Exit(1)
	}
	defer classifier.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	enc := json.NewEncoder(os.Stdout)
	failed := false
	for _, path := range flag.Args() {
		if ctx.Err() != nil {
			break
		}
		res := classifyFile(ctx, classifier, engine, path)
		if res.Error != "" {
			failed = true
		}
		if err := enc.Encode(res); err != nil {
			logger.Error("write result", "error", err)
		}
	}
	if failed {
		os.Exit(1)
	}
}

func classifyFile(ctx context.Context, c inference.Classifier, engine detect.EngineConfig, path string) result {
	res := result{File: path}

	data, err := os.ReadFile(path)
	if err != nil {
		res.Error = err.Error()
		return res
	}
	frame, err := detect.DecodeFrame(data)
	if err != nil {
		res.Error = err.Error()
		return res
	}
	res.Width, res.Height = frame.Width, frame.Height

	if engine.SceneGateEnabled {
		scene := detect.AssessScene(engine, frame)
		res.Scene = &scene
	}

	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	start := time.Now()
	preds, err := c.Classify(ctx, frame.JPEG)
	res.LatencyMs = time.Since(start).Milliseconds()
	if err != nil {
		res.Error = err.Error()
		return res
	}
	res.Predictions = preds
	res.Accepted = detect.Filter(engine, preds, frame.Area())
	return res
}
