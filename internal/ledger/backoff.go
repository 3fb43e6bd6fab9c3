package ledger

import (
	"context"
	"time"
)

const maxBackoff = 30 * time.Second

// Backoff returns base * 2^attempt capped at 30s. A zero base disables waiting.
func Backoff(base time.Duration, attempt int) time.Duration {
	if base <= 0 {
		return 0
	}
	if attempt < 0 {
		return base
	}
	// 2^30 * any sane base is already past the cap
	if attempt > 30 {
		return maxBackoff
	}

	d := base * time.Duration(1<<attempt)
	if d > maxBackoff || d <= 0 {
		return maxBackoff
	}
	return d
}

// Sleep waits for d or until ctx is done
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
