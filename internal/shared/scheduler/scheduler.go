// Package scheduler は固定グリッドに整列した定期実行を提供します。
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// State はスケジューラーのライフサイクル状態です。
type State int

const (
	StateIdle State = iota
	StateWaiting
	StateRunning
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateWaiting:
		return "waiting"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Task は1回のサイクルで実行される処理です。ctx は Stop で取り消されます。
type Task func(ctx context.Context)

var (
	// ErrInvalidInterval は Interval が0以下の場合に返されます。
	ErrInvalidInterval = errors.New("scheduler: interval must be positive")
	// ErrAlreadyStarted は Start が2回呼ばれた場合に返されます。
	ErrAlreadyStarted = errors.New("scheduler: already started")
)

// Stats はスケジューラーの現在の状況です。
type Stats struct {
	State    State
	LastTick time.Time // 最後に実行したグリッド時刻
	NextAt   time.Time
	Ticks    uint64
	Skipped  uint64
}

// Recurring は Interval の境界 + Offset のグリッド上でタスクを繰り返し実行します。
// 次回時刻は常に元のグリッドから計算するため、遅いサイクルがあってもずれが累積しません。
// サイクルは同時に1つしか実行されません。
type Recurring struct {
	Name           string
	Interval       time.Duration
	Offset         time.Duration
	RunImmediately bool

	nowFn func() time.Time

	mu     sync.Mutex
	stats  Stats
	cancel context.CancelFunc
	done   chan struct{}
}

// NewRecurring は新しいRecurringを生成します。
func NewRecurring(name string, interval, offset time.Duration) *Recurring {
	return &Recurring{
		Name:     name,
		Interval: interval,
		Offset:   offset,
		nowFn:    time.Now,
	}
}

// FirstFireTime は now の次の Interval 境界（UNIXエポック基準）に Offset を加えた時刻を返します。
func FirstFireTime(now time.Time, interval, offset time.Duration) time.Time {
	n := now.UTC().UnixNano()
	d := int64(interval)
	boundary := n - n%d + d
	return time.Unix(0, boundary).UTC().Add(offset)
}

// NextAfterCycle は prev に実行したサイクルの完了後、次に実行すべき時刻を返します。
// 次の予定時刻が既に過ぎている場合は、過ぎた最新のグリッド時刻（即時実行）と
// 飛ばしたティック数を返します。未実行のティックをキューに積むことはしません。
func NextAfterCycle(prev time.Time, interval time.Duration, now time.Time) (next time.Time, skipped int) {
	due := prev.Add(interval)
	if now.Before(due) {
		return due, 0
	}
	k := now.Sub(prev) / interval
	return prev.Add(k * interval), int(k - 1)
}

// Start はバックグラウンドでスケジューラーを開始します。
func (s *Recurring) Start(parent context.Context, task Task) error {
	if s.Interval <= 0 {
		return ErrInvalidInterval
	}
	s.mu.Lock()
	if s.done != nil {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	ctx, cancel := context.WithCancel(parent)
	s.cancel = cancel
	s.done = make(chan struct{})
	done := s.done
	s.mu.Unlock()

	go func() {
		defer close(done)
		if err := s.Run(ctx, task); err != nil {
			slog.Error("scheduler exited", "scheduler", s.Name, "error", err)
		}
	}()
	return nil
}

// Stop は待機中であれば即座に、実行中であれば現在のサイクルが戻るのを待ってから停止します。
func (s *Recurring) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	if done == nil {
		s.stats.State = StateStopped
	}
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

// State は現在の状態を返します。
func (s *Recurring) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats.State
}

// LastTick は最後に実行したグリッド時刻を返します。未実行の場合はゼロ値です。
func (s *Recurring) LastTick() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats.LastTick
}

// Stats は現在の状況のコピーを返します。
func (s *Recurring) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// Run は ctx が取り消されるまでブロックしてタスクを実行し続けます。
func (s *Recurring) Run(ctx context.Context, task Task) error {
	if s.Interval <= 0 {
		return ErrInvalidInterval
	}
	if task == nil {
		return errors.New("scheduler: task is nil")
	}
	if s.nowFn == nil {
		s.nowFn = time.Now
	}
	if s.Offset < 0 {
		slog.Warn("negative offset, clamp to 0", "scheduler", s.Name, "offset", s.Offset)
		s.Offset = 0
	}
	defer s.setState(StateStopped)

	now := s.nowFn().UTC()
	slog.Info("scheduler started", "scheduler", s.Name, "interval", s.Interval, "offset", s.Offset,
		"run_immediately", s.RunImmediately, "at", now.Format(time.RFC3339))

	if s.RunImmediately {
		s.fire(ctx, task, now)
		if ctx.Err() != nil {
			slog.Info("scheduler stopped", "scheduler", s.Name)
			return nil
		}
	}

	next := FirstFireTime(s.nowFn(), s.Interval, s.Offset)
	for {
		s.mu.Lock()
		s.stats.State = StateWaiting
		s.stats.NextAt = next
		s.mu.Unlock()

		slog.Debug("waiting for next tick", "scheduler", s.Name, "next_at", next.Format(time.RFC3339),
			"in", next.Sub(s.nowFn()).Truncate(time.Millisecond))

		if !s.waitUntil(ctx, next) {
			slog.Info("scheduler stopped", "scheduler", s.Name)
			return nil
		}
		s.fire(ctx, task, next)

		now := s.nowFn().UTC()
		n, skipped := NextAfterCycle(next, s.Interval, now)
		if skipped > 0 {
			s.mu.Lock()
			s.stats.Skipped += uint64(skipped)
			s.mu.Unlock()
			slog.Warn("cycle overran, ticks skipped", "scheduler", s.Name, "skipped", skipped,
				"tick", next.Format(time.RFC3339), "elapsed", now.Sub(next).Truncate(time.Millisecond))
		}
		if !n.After(now) {
			slog.Warn("next tick already passed, firing immediately", "scheduler", s.Name, "tick", n.Format(time.RFC3339))
		}
		next = n
	}
}

func (s *Recurring) fire(ctx context.Context, task Task, tick time.Time) {
	s.mu.Lock()
	s.stats.State = StateRunning
	s.stats.LastTick = tick
	s.stats.Ticks++
	s.mu.Unlock()

	start := s.nowFn()
	task(ctx)
	slog.Debug("cycle finished", "scheduler", s.Name, "tick", tick.Format(time.RFC3339),
		"elapsed", s.nowFn().Sub(start).Truncate(time.Millisecond))
}

func (s *Recurring) setState(st State) {
	s.mu.Lock()
	s.stats.State = st
	s.mu.Unlock()
}

// waitUntil は target まで待機します。ctx が取り消された場合は false を返します。
func (s *Recurring) waitUntil(ctx context.Context, target time.Time) bool {
	if ctx.Err() != nil {
		return false
	}
	wait := target.Sub(s.nowFn())
	if wait <= 0 {
		return true
	}
	timer := time.NewTimer(wait)
	select {
	case <-ctx.Done():
		timer.Stop()
		return false
	case <-timer.C:
		return true
	}
}
