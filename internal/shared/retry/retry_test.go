package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errTemporary = errors.New("temporary failure")

func TestRetryer_Do(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		maxRetries   uint
		failUntil    uint // 何回目の試行で成功するか
		retryable    bool
		wantErr      error
		wantAttempts uint
	}{
		{
			name:         "success: first attempt",
			maxRetries:   3,
			failUntil:    0,
			retryable:    true,
			wantAttempts: 1,
		},
		{
			name:         "success: after two retries",
			maxRetries:   3,
			failUntil:    2,
			retryable:    true,
			wantAttempts: 3,
		},
		{
			name:         "error: retries exhausted",
			maxRetries:   2,
			failUntil:    10,
			retryable:    true,
			wantErr:      errTemporary,
			wantAttempts: 3,
		},
		{
			name:         "error: non retryable stops immediately",
			maxRetries:   5,
			failUntil:    10,
			retryable:    false,
			wantErr:      errTemporary,
			wantAttempts: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			r := NewRetryer(tt.maxRetries, time.Millisecond, 2*time.Millisecond)
			var attempts uint
			err := r.Do(context.Background(), func(attempt uint) (bool, error) {
				attempts++
				if attempt < tt.failUntil {
					return tt.retryable, errTemporary
				}
				return false, nil
			})

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.wantAttempts, attempts)
		})
	}
}

func TestRetryer_Do_ContextCancelledDuringBackoff(t *testing.T) {
	t.Parallel()

	r := NewRetryer(5, time.Hour, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		done <- r.Do(ctx, func(uint) (bool, error) { return true, errTemporary })
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Do did not return after cancellation")
	}
}

func TestRetryer_Backoff(t *testing.T) {
	t.Parallel()

	r := NewRetryer(5, 100*time.Millisecond, time.Second)

	assert.Equal(t, 100*time.Millisecond, r.Backoff(0))
	assert.Equal(t, 200*time.Millisecond, r.Backoff(1))
	assert.Equal(t, 400*time.Millisecond, r.Backoff(2))
	assert.Equal(t, time.Second, r.Backoff(5), "backoff is capped at maxDelay")
	assert.Equal(t, uint(6), r.MaxAttempts())
}
