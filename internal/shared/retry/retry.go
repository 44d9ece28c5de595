// Package retry はバックオフ付きの再試行を提供します。
package retry

import (
	"context"
	"time"
)

// Retryer は指数バックオフで処理を再試行します。
type Retryer struct {
	maxRetries uint
	baseDelay  time.Duration
	maxDelay   time.Duration
}

// NewRetryer は新しいRetryerを生成します。maxRetriesは初回呼び出しを含まない再試行回数です。
func NewRetryer(maxRetries uint, baseDelay time.Duration, maxDelay time.Duration) *Retryer {
	return &Retryer{
		maxRetries: maxRetries,
		baseDelay:  baseDelay,
		maxDelay:   maxDelay,
	}
}

// MaxAttempts は初回を含む最大試行回数を返します。
func (r *Retryer) MaxAttempts() uint {
	return r.maxRetries + 1
}

// Do はfnを呼び出し、shouldRetryがtrueの間は上限回数まで待機して再試行します。
// 上限に達した場合は最後のエラーを返します。
func (r *Retryer) Do(ctx context.Context, fn func(attempt uint) (shouldRetry bool, err error)) error {
	var lastErr error

	for attempt := range r.maxRetries + 1 {
		if err := ctx.Err(); err != nil {
			return err
		}

		shouldRetry, err := fn(attempt)
		if !shouldRetry {
			return err
		}
		lastErr = err

		if attempt < r.maxRetries {
			delay := r.Backoff(attempt)
			timer := time.NewTimer(delay)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			}
		}
	}

	return lastErr
}

// Backoff はattempt回目の失敗後に待機する時間を返します。
func (r *Retryer) Backoff(attempt uint) time.Duration {
	if attempt > 30 {
		attempt = 30
	}
	delay := r.baseDelay * (1 << attempt)
	if r.maxDelay > 0 {
		return min(delay, r.maxDelay)
	}
	return delay
}
