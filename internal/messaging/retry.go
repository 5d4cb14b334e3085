package messaging

import (
	"context"
	"math"
	"math/rand"
	"time"
)

// ──────────────────────────────────────────────────────────────
// Bounded retry for TransientStoreError (spec.md §4.4, §4.8, §7):
// exponential back-off with jitter, then DLQ once the budget runs out.
// ──────────────────────────────────────────────────────────────

// RetryConfig mirrors spec.md §6's `max_retries`/`backoff_initial_ms`/
// `backoff_max_ms` pipeline configuration keys.
type RetryConfig struct {
	MaxRetries  int           // max_retries: retries after the first attempt before routing to DLQ.
	BaseDelay   time.Duration // backoff_initial_ms: delay before the first retry.
	MaxDelay    time.Duration // backoff_max_ms: ceiling the backoff never exceeds.
	Multiplier  float64       // exponential growth factor between attempts.
	JitterRatio float64       // 0.0-1.0; fraction of each delay randomized.
}

// DefaultRetryConfig returns spec.md §4.8's literal defaults: "default 5,
// exponential backoff 100ms -> 30s". cmd/ingestor starts from these and
// overwrites MaxRetries/BaseDelay/MaxDelay with the loaded
// MAX_RETRIES/BACKOFF_INITIAL_MS/BACKOFF_MAX_MS values; Multiplier and
// JitterRatio always keep the defaults below.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:  5,
		BaseDelay:   100 * time.Millisecond,
		MaxDelay:    30 * time.Second,
		Multiplier:  2.0,
		JitterRatio: 0.3,
	}
}

// BackoffDelay computes how long to wait before retry attempt n (0-indexed).
func (rc RetryConfig) BackoffDelay(attempt int) time.Duration {
	delay := float64(rc.BaseDelay) * math.Pow(rc.Multiplier, float64(attempt))
	if delay > float64(rc.MaxDelay) {
		delay = float64(rc.MaxDelay)
	}

	jitter := delay * rc.JitterRatio * (rand.Float64()*2 - 1) // +/- JitterRatio
	delay += jitter
	if delay > float64(rc.MaxDelay) {
		delay = float64(rc.MaxDelay)
	}
	if delay < 0 {
		delay = float64(rc.BaseDelay)
	}

	return time.Duration(delay)
}

// ShouldRetry reports whether kind is worth another attempt: only
// TransientStoreError is retried (spec.md §7's error taxonomy) and only
// while the attempt count is still under the configured ceiling. Duplicate,
// VersionConflict, and every deserialize/validation error are terminal on
// the first attempt and never reach here.
func (rc RetryConfig) ShouldRetry(kind ErrorKind, attempt int) bool {
	return kind == ErrTransient && attempt < rc.MaxRetries
}

// Sleep blocks for the backoff duration of attempt, returning early with
// ctx.Err() if the surrounding dispatch is cancelled mid-wait (spec.md §5
// shutdown semantics — a sleeping retry must not block a shutdown).
func (rc RetryConfig) Sleep(ctx context.Context, attempt int) error {
	timer := time.NewTimer(rc.BackoffDelay(attempt))
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
