package resilience

import (
	"time"
)

// SingleRetry returns the per-page policy for scrape and extraction calls:
// exactly one retry after a fixed delay, regardless of error class. A page
// that fails twice is skipped by the caller, never failing the run.
func SingleRetry(delay time.Duration) RetryConfig {
	return RetryConfig{
		MaxAttempts:    2,
		InitialBackoff: delay,
		MaxBackoff:     delay,
		Multiplier:     1.0,
		JitterFraction: 0,
		ShouldRetry:    func(error) bool { return true },
	}
}
