package pipeline

import (
	"context"
	"time"

	"shortcast/internal/models"
)

// RetryPolicy bounds how often a recoverable failure is attempted again and
// how long to back off in between. It is deliberately separate from the
// engine so tests and the CLI can reuse it.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Recoverable func(error) bool
}

// DefaultRetryPolicy matches the configured pipeline defaults.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   2 * time.Second,
		MaxDelay:    time.Minute,
		Recoverable: models.Recoverable,
	}
}

// Do runs op until it succeeds, fails non-recoverably, runs out of attempts,
// or ctx is done. The last error is returned unwrapped so the caller can
// classify it.
func (p RetryPolicy) Do(ctx context.Context, op func(ctx context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	recoverable := p.Recoverable
	if recoverable == nil {
		recoverable = models.Recoverable
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = op(ctx)
		if err == nil {
			return nil
		}
		if !recoverable(err) || attempt == attempts {
			return err
		}

		delay := p.BaseDelay << (attempt - 1)
		if p.MaxDelay > 0 && delay > p.MaxDelay {
			delay = p.MaxDelay
		}
		select {
		case <-ctx.Done():
			return err
		case <-time.After(delay):
		}
	}
	return err
}
