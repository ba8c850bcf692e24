package tts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// Chain is a Provider that falls through a list of engines, first success
// wins. A typical setup is a hosted voice backed by local espeak for when
// the network is down.
type Chain struct {
	providers []Provider
	logger    *slog.Logger
}

// NewChain returns a chain over providers. It fails with
// ErrProviderUnavailable when the list is empty.
func NewChain(providers ...Provider) (*Chain, error) {
	return NewChainWithLogger(slog.Default(), providers...)
}

// NewChainWithLogger is NewChain with an explicit logger.
func NewChainWithLogger(logger *slog.Logger, providers ...Provider) (*Chain, error) {
	if len(providers) == 0 {
		return nil, ErrProviderUnavailable
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Chain{
		providers: providers,
		logger:    logger.With("component", "tts.chain"),
	}, nil
}

// Synthesize returns the first successful result. Blank text and context
// cancellation stop the walk immediately.
func (c *Chain) Synthesize(ctx context.Context, text string) (*AudioResult, error) {
	failed := &ChainError{}

	for i, p := range c.providers {
		res, err := p.Synthesize(ctx, text)
		switch {
		case err == nil:
			if i > 0 {
				c.logger.Info("synthesized with fallback", "index", i, "provider", fmt.Sprintf("%T", p))
			}
			return res, nil
		case errors.Is(err, ErrEmptyText):
			return nil, err
		case ctx.Err() != nil:
			return nil, ctx.Err()
		}
		failed.Errors = append(failed.Errors, err)
		c.logger.Warn("provider failed", "index", i, "provider", fmt.Sprintf("%T", p), "error", err)
	}
	return nil, failed
}

// Health succeeds if any engine is healthy.
func (c *Chain) Health(ctx context.Context) error {
	var lastErr error
	for _, p := range c.providers {
		err := p.Health(ctx)
		if err == nil {
			return nil
		}
		lastErr = err
	}
	return fmt.Errorf("tts chain: no healthy provider of %d: %w", len(c.providers), lastErr)
}

// Close closes every engine and returns the joined errors.
func (c *Chain) Close() error {
	var errs []error
	for _, p := range c.providers {
		errs = append(errs, p.Close())
	}
	return errors.Join(errs...)
}

// Providers returns the engines in try order.
func (c *Chain) Providers() []Provider {
	return c.providers
}

// ChainError holds one error per engine tried, in order.
type ChainError struct {
	Errors []error
}

func (e *ChainError) Error() string {
	switch n := len(e.Errors); n {
	case 0:
		return "tts chain: failed"
	case 1:
		return "tts chain: " + e.Errors[0].Error()
	default:
		return fmt.Sprintf("tts chain: %d providers failed, last: %v", n, e.Errors[n-1])
	}
}

// Unwrap exposes every engine's error to errors.Is and errors.As.
func (e *ChainError) Unwrap() []error {
	return e.Errors
}

var _ Provider = (*Chain)(nil)
