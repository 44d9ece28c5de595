package usecase

import (
	"cmp"
	"slices"
	"sync"

	"ohlcv_ingest/internal/feature/candles/domain/entity"
)

// RunTracker は時間足ごとの直近の実行結果を保持します。/status の表示に使われます。
type RunTracker struct {
	mu   sync.RWMutex
	last map[entity.Granularity]RunResult
	runs uint64
}

// NewRunTracker は空のRunTrackerを生成します。
func NewRunTracker() *RunTracker {
	return &RunTracker{last: make(map[entity.Granularity]RunResult)}
}

// Record は実行結果を記録し、同じ時間足の以前の結果を置き換えます。
func (t *RunTracker) Record(results ...RunResult) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, r := range results {
		t.last[r.Granularity] = r
		t.runs++
	}
}

// Runs は記録した実行回数を返します。
func (t *RunTracker) Runs() uint64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.runs
}

// Last は時間足の小さい順に直近の結果を返します。
func (t *RunTracker) Last() []RunResult {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]RunResult, 0, len(t.last))
	for _, r := range t.last {
		out = append(out, r)
	}
	slices.SortFunc(out, func(a, b RunResult) int {
		return cmp.Compare(a.Granularity.Duration(), b.Granularity.Duration())
	})
	return out
}
