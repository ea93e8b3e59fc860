package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"storybook/lib/sl"
	"storybook/providers"
	"storybook/resilience"
)

// SynthesisError reports a failed primary synthesis.
type SynthesisError struct {
	Provider string
	Err      error
}

func (e *SynthesisError) Error() string {
	return fmt.Sprintf("primary synthesis with %s failed: %v", e.Provider, e.Err)
}

func (e *SynthesisError) Unwrap() error {
	return e.Err
}

// SynthesisRequest is one final image synthesis.
type SynthesisRequest struct {
	Prompt string
	// FallbackPrompt replaces Prompt for the fallback provider when set.
	FallbackPrompt string
	Params         providers.SynthesisParams
}

// FallbackChain tries the primary synthesizer and falls back to the
// secondary one on any failure.
type FallbackChain struct {
	Primary  providers.Synthesizer
	Fallback providers.Synthesizer
	retrier  *resilience.Retrier
	log      *slog.Logger
}

// NewFallbackChain creates a chain; a nil primary sends everything to the
// fallback.
func NewFallbackChain(primary, fallback providers.Synthesizer, retrier *resilience.Retrier, log *slog.Logger) *FallbackChain {
	return &FallbackChain{
		Primary:  primary,
		Fallback: fallback,
		retrier:  retrier,
		log:      log,
	}
}

// Synthesize returns the image URL and the name of the provider that made it.
func (c *FallbackChain) Synthesize(ctx context.Context, req SynthesisRequest) (string, string, error) {
	var primaryErr error
	if c.Primary != nil {
		name := c.Primary.GetName()
		c.log.Debug("calling provider", slog.String("provider", name), slog.Int("prompt_len", len(req.Prompt)))
		url, err := resilience.Do(ctx, c.retrier, name+".synthesize", func(ctx context.Context) (string, error) {
			return c.Primary.SynthesizeImage(ctx, req.Prompt, req.Params)
		})
		if err == nil && url == "" {
			err = errors.New("no image url returned")
		}
		if err == nil {
			return url, name, nil
		}
		primaryErr = &SynthesisError{Provider: name, Err: err}
		if c.Fallback == nil {
			return "", "", primaryErr
		}
		c.log.Warn("primary synthesis failed, falling back",
			slog.String("primary", name),
			slog.String("fallback", c.Fallback.GetName()),
			sl.Err(err),
		)
	}
	if c.Fallback == nil {
		return "", "", fmt.Errorf("synthesize: %w", ErrNotConfigured)
	}

	prompt := req.Prompt
	if req.FallbackPrompt != "" {
		prompt = req.FallbackPrompt
	}
	url, err := c.Fallback.SynthesizeImage(ctx, prompt, req.Params)
	if err != nil {
		return "", "", errors.Join(primaryErr, fmt.Errorf("fallback synthesis with %s failed: %w", c.Fallback.GetName(), err))
	}
	return url, c.Fallback.GetName(), nil
}
