package retry

import (
	"context"
	"math"
	"math/rand/v2"
	"time"

	pkgerrors "github.com/practivahq/practiva-backend/pkg/errors"
)

// Config controls the backoff schedule for Execute. Zero values fall
// back to the defaults below.
type Config struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

const (
	defaultMaxAttempts  = 3
	defaultInitialDelay = 200 * time.Millisecond
	defaultMaxDelay     = 10 * time.Second
	defaultMultiplier   = 2.0

	jitterFraction = 0.2
)

func (c Config) withDefaults() Config {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = defaultMaxAttempts
	}
	if c.InitialDelay <= 0 {
		c.InitialDelay = defaultInitialDelay
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = defaultMaxDelay
	}
	if c.Multiplier < 1 {
		c.Multiplier = defaultMultiplier
	}
	return c
}

// Execute runs fn until it succeeds, fails a non-retryable way, exhausts
// MaxAttempts, or ctx is canceled. isRetryable classifies errors; a nil
// classifier defaults to pkgerrors.IsRetryable. The last error observed
// is returned.
func Execute(ctx context.Context, cfg Config, fn func(context.Context) error, isRetryable func(error) bool) error {
	if fn == nil {
		return pkgerrors.New(pkgerrors.CodeInternal, "retry: fn is required")
	}
	if isRetryable == nil {
		isRetryable = pkgerrors.IsRetryable
	}
	cfg = cfg.withDefaults()

	var lastErr error
	for attempt := 0; attempt < cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return lastErr
			}
			return err
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if !isRetryable(lastErr) {
			return lastErr
		}
		if attempt == cfg.MaxAttempts-1 {
			break
		}

		if err := sleep(ctx, Delay(cfg, attempt)); err != nil {
			return lastErr
		}
	}
	return lastErr
}

// Delay returns the backoff for the given zero-based attempt: the
// exponential curve capped at MaxDelay, with +/-20% jitter applied.
func Delay(cfg Config, attempt int) time.Duration {
	cfg = cfg.withDefaults()
	if attempt < 0 {
		attempt = 0
	}
	base := float64(cfg.InitialDelay) * math.Pow(cfg.Multiplier, float64(attempt))
	capped := float64(cfg.MaxDelay)
	if base > capped {
		base = capped
	}
	return withJitter(time.Duration(base))
}

func withJitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	window := int64(float64(d) * jitterFraction)
	if window <= 0 {
		return d
	}
	offset := rand.Int64N(2*window+1) - window
	return d + time.Duration(offset)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
