package resilience

import (
	"context"
	"log/slog"
	"time"

	"storybook/lib/sl"

	"github.com/cenkalti/backoff/v4"
)

const (
	DefaultMaxRetries   = 3
	DefaultInitialDelay = time.Second
	// hintBuffer is added on top of a provider supplied delay.
	hintBuffer = time.Second
)

// Retrier runs provider calls with bounded retry on capacity errors.
type Retrier struct {
	// MaxRetries is the total number of attempts.
	MaxRetries   int
	InitialDelay time.Duration
	// Timer replaces the wall clock wait; nil uses a real timer.
	Timer backoff.Timer
	log   *slog.Logger
}

// NewRetrier creates a Retrier; non-positive values fall back to defaults.
func NewRetrier(maxRetries int, initialDelay time.Duration, log *slog.Logger) *Retrier {
	if maxRetries < 1 {
		maxRetries = DefaultMaxRetries
	}
	if initialDelay <= 0 {
		initialDelay = DefaultInitialDelay
	}
	return &Retrier{
		MaxRetries:   maxRetries,
		InitialDelay: initialDelay,
		log:          log.With(sl.Module("retry")),
	}
}

// hintedBackOff doubles the delay per retry unless the last error carried a
// provider hint, and stops once the attempt budget is spent.
type hintedBackOff struct {
	initial  time.Duration
	attempts int
	retries  int
	lastErr  error
}

func (b *hintedBackOff) NextBackOff() time.Duration {
	if b.retries >= b.attempts-1 {
		return backoff.Stop
	}
	delay := b.initial * time.Duration(1<<b.retries)
	if hint, ok := RetryHint(b.lastErr); ok {
		delay = hint + hintBuffer
	}
	b.retries++
	return delay
}

func (b *hintedBackOff) Reset() {
	b.retries = 0
	b.lastErr = nil
}

// Do runs op until it succeeds, fails with a non-capacity error, or the
// attempt budget is spent. The last error is returned unchanged.
func Do[T any](ctx context.Context, r *Retrier, name string, op func(context.Context) (T, error)) (T, error) {
	b := &hintedBackOff{initial: r.InitialDelay, attempts: r.MaxRetries}

	operation := func() (T, error) {
		res, err := op(ctx)
		if err == nil {
			return res, nil
		}
		if !ClassifyError(err).Retryable() {
			return res, backoff.Permanent(err)
		}
		b.lastErr = err
		return res, err
	}

	notify := func(err error, delay time.Duration) {
		r.log.Warn("rate limit hit, waiting before retry",
			slog.String("call", name),
			slog.Int("retry", b.retries),
			slog.Int("max", r.MaxRetries),
			slog.Duration("delay", delay),
			sl.Err(err),
		)
	}

	return backoff.RetryNotifyWithTimerAndData(operation, backoff.WithContext(b, ctx), notify, r.Timer)
}
