package tts

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

// Named is implemented by providers that report a short backend name.
type Named interface {
	Name() string
}

// ProviderName returns p's backend name, or "provider" when p is unnamed.
func ProviderName(p Provider) string {
	if n, ok := p.(Named); ok {
		return n.Name()
	}
	return "provider"
}

// Chain implements Provider over an ordered list of backends.
//
// The chain remembers the last backend that produced audio and starts there
// on the next announcement. When the primary is down every utterance would
// otherwise pay its timeout first. After a fallback serves PrimaryRetryAfter
// announcements the primary gets another try.
type Chain struct {
	providers []Provider
	logger    *slog.Logger

	mu        sync.Mutex
	preferred int
	served    int // announcements served by preferred since it took over
	fallbacks uint64
}

// PrimaryRetryAfter is how many announcements a fallback serves before the
// chain tries the first provider again.
const PrimaryRetryAfter = 20

// NewChain creates a chain. At least one provider is required.
func NewChain(providers ...Provider) (*Chain, error) {
	return NewChainWithLogger(slog.Default(), providers...)
}

// NewChainWithLogger creates a chain with a custom logger.
func NewChainWithLogger(logger *slog.Logger, providers ...Provider) (*Chain, error) {
	if len(providers) == 0 {
		return nil, ErrProviderUnavailable
	}
	return &Chain{
		providers: providers,
		logger:    logger.With("component", "tts.chain"),
	}, nil
}

// Name reports the backends in order.
func (c *Chain) Name() string {
	name := ""
	for i, p := range c.providers {
		if i > 0 {
			name += "+"
		}
		name += ProviderName(p)
	}
	return name
}

// Synthesize starts at the preferred backend and walks the rest in order,
// wrapping around. A cancelled context stops the walk.
func (c *Chain) Synthesize(ctx context.Context, text string) (*AudioResult, error) {
	start := c.startIndex()

	var failed []error
	for n := range len(c.providers) {
		i := (start + n) % len(c.providers)
		p := c.providers[i]

		result, err := p.Synthesize(ctx, text)
		if err == nil {
			c.markServed(i)
			return result, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if errors.Is(err, ErrEmptyText) {
			return nil, err
		}

		failed = append(failed, WrapError(ProviderName(p), err))
		c.logger.Warn("speech backend failed",
			"provider", ProviderName(p),
			"text", text,
			"error", err,
		)
	}
	return nil, &ChainError{Errors: failed}
}

func (c *Chain) startIndex() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.preferred != 0 && c.served >= PrimaryRetryAfter {
		c.logger.Debug("retrying first speech backend", "after", c.served)
		c.preferred, c.served = 0, 0
	}
	return c.preferred
}

func (c *Chain) markServed(i int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if i != c.preferred {
		c.logger.Info("speech backend switched",
			"from", ProviderName(c.providers[c.preferred]),
			"to", ProviderName(c.providers[i]),
		)
		c.preferred, c.served = i, 0
	}
	if i != 0 {
		c.fallbacks++
		c.served++
	}
}

// Preferred returns the name of the backend the next announcement tries first.
func (c *Chain) Preferred() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return ProviderName(c.providers[c.preferred])
}

// Fallbacks counts announcements served by a backend other than the first.
func (c *Chain) Fallbacks() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fallbacks
}

// Health succeeds when any backend is healthy.
func (c *Chain) Health(ctx context.Context) error {
	var failed []error
	for _, p := range c.providers {
		err := p.Health(ctx)
		if err == nil {
			return nil
		}
		failed = append(failed, WrapError(ProviderName(p), err))
	}
	return &ChainError{Errors: failed}
}

// Close closes every backend and joins their errors.
func (c *Chain) Close() error {
	var errs []error
	for _, p := range c.providers {
		errs = append(errs, p.Close())
	}
	return errors.Join(errs...)
}

var (
	_ Provider = (*Chain)(nil)
	_ Named    = (*Chain)(nil)
)
