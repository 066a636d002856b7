package inference

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/teslashibe/go-billsense/pkg/detect"
)

// Chain tries classifiers in order until one answers, typically the current
// model version followed by the previous one.
//
// A classifier that fails permanently (bad key, retired model) is benched
// and skipped on later frames, so a retired primary does not add a round
// trip to every tick.
type Chain struct {
	classifiers []Classifier
	logger      *slog.Logger

	mu      sync.Mutex
	benched []bool
}

// NewChain creates a classifier chain. At least one classifier is required.
func NewChain(classifiers ...Classifier) (*Chain, error) {
	return NewChainWithLogger(slog.Default(), classifiers...)
}

// NewChainWithLogger creates a classifier chain with a custom logger.
func NewChainWithLogger(logger *slog.Logger, classifiers ...Classifier) (*Chain, error) {
	if len(classifiers) == 0 {
		return nil, ErrProviderUnavailable
	}
	return &Chain{
		classifiers: classifiers,
		logger:      logger.With("component", "inference.chain"),
		benched:     make([]bool, len(classifiers)),
	}, nil
}

// Classify returns the predictions of the first classifier that answers.
// An empty answer counts: "no bill" is a valid result.
func (c *Chain) Classify(ctx context.Context, jpeg []byte) ([]detect.Prediction, error) {
	var errs []error

	for i, cl := range c.classifiers {
		if c.isBenched(i) {
			continue
		}

		preds, err := cl.Classify(ctx, jpeg)
		if err == nil {
			if i > 0 {
				c.logger.Debug("fallback classifier answered", "classifier_index", i)
			}
			return preds, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		errs = append(errs, err)
		if IsPermanent(err) {
			c.bench(i, err)
		} else {
			c.logger.Warn("classifier failed, trying next", "classifier_index", i, "error", err)
		}
	}

	if len(errs) == 0 {
		errs = append(errs, ErrProviderUnavailable)
	}
	return nil, &ChainError{Errors: errs}
}

func (c *Chain) isBenched(i int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.benched[i]
}

func (c *Chain) bench(i int, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	// The last classifier standing is never benched; its errors have to
	// keep reaching the session.
	standing := 0
	for _, b := range c.benched {
		if !b {
			standing++
		}
	}
	if standing <= 1 {
		return
	}
	c.benched[i] = true
	c.logger.Error("classifier disabled", "classifier_index", i, "error", err)
}

// Benched counts classifiers skipped after a permanent failure.
func (c *Chain) Benched() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, b := range c.benched {
		if b {
			n++
		}
	}
	return n
}

// Health succeeds when any classifier that is still in play is healthy.
func (c *Chain) Health(ctx context.Context) error {
	var errs []error
	for i, cl := range c.classifiers {
		if c.isBenched(i) {
			continue
		}
		err := cl.Health(ctx)
		if err == nil {
			return nil
		}
		errs = append(errs, err)
	}
	return WrapError("chain", errors.Join(errs...))
}

// Close closes every classifier.
func (c *Chain) Close() error {
	var errs []error
	for _, cl := range c.classifiers {
		errs = append(errs, cl.Close())
	}
	return errors.Join(errs...)
}

// Classifiers returns the classifiers in order.
func (c *Chain) Classifiers() []Classifier {
	return c.classifiers
}

var _ Classifier = (*Chain)(nil)
