package reservation

import (
	"context"
	"time"

	"barbershop/internal/metrics"
)

// RetryConfig bounds retries of transient storage failures.
type RetryConfig struct {
	MaxRetries  int
	RetryDelays []time.Duration
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: 3,
		RetryDelays: []time.Duration{
			50 * time.Millisecond,
			150 * time.Millisecond,
			400 * time.Millisecond,
		},
	}
}

func (c RetryConfig) delay(attempt int) time.Duration {
	if len(c.RetryDelays) == 0 {
		return 0
	}
	if attempt < len(c.RetryDelays) {
		return c.RetryDelays[attempt]
	}
	return c.RetryDelays[len(c.RetryDelays)-1]
}

// withRetry runs fn until it succeeds, fails with a non-transient error or
// the retries are used up.
func (s *Service) withRetry(ctx context.Context, op string, fn func() error) error {
	var err error
	for attempt := 0; attempt <= s.retry.MaxRetries; attempt++ {
		err = fn()
		if err == nil || !IsRetryable(err) {
			return err
		}
		if attempt == s.retry.MaxRetries {
			break
		}

		delay := s.retry.delay(attempt)
		metrics.IncTransientRetry()
		s.logger.Warn().
			Err(err).
			Str("op", op).
			Int("attempt", attempt+1).
			Dur("delay", delay).
			Msg("transient storage error, retrying")

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return &Error{Code: CodeTransient, Err: ctx.Err()}
		}
	}

	s.logger.Error().Err(err).Str("op", op).Int("max_retries", s.retry.MaxRetries).Msg("retries exhausted")
	return err
}
