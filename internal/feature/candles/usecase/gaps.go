package usecase

import (
	"context"
	"sort"
	"time"

	"ohlcv_ingest/internal/feature/candles/domain/entity"
)

// TimestampReader はストアに存在するタイムスタンプを読み取ります。
type TimestampReader interface {
	ExistingTimestamps(ctx context.Context, instrument string, g entity.Granularity, window entity.TimeWindow) ([]time.Time, error)
}

// FindGaps は window 内の期待されるグリッドから existing を除き、
// 欠損しているタイムスタンプを連続した最大の区間にまとめて昇順で返します。
// 全て揃っている場合は空のスライスを返します。
func FindGaps(g entity.Granularity, window entity.TimeWindow, existing []time.Time) []entity.TimeWindow {
	gaps := make([]entity.TimeWindow, 0)
	step := g.Duration()
	if step <= 0 || window.Empty() {
		return gaps
	}

	have := make(map[int64]struct{}, len(existing))
	for _, ts := range existing {
		have[ts.Unix()] = struct{}{}
	}

	var (
		gapStart time.Time
		inGap    bool
	)
	cursor := g.Ceil(window.Start)
	for ; cursor.Before(window.End); cursor = cursor.Add(step) {
		_, ok := have[cursor.Unix()]
		switch {
		case !ok && !inGap:
			gapStart, inGap = cursor, true
		case ok && inGap:
			gaps = append(gaps, entity.TimeWindow{Start: gapStart, End: cursor})
			inGap = false
		}
	}
	if inGap {
		gaps = append(gaps, entity.TimeWindow{Start: gapStart, End: cursor})
	}
	return gaps
}

// mergeWindows は区間を昇順に並べ、重なりや隣接する区間を1つにまとめます。
func mergeWindows(ws []entity.TimeWindow) []entity.TimeWindow {
	if len(ws) == 0 {
		return nil
	}
	sorted := make([]entity.TimeWindow, 0, len(ws))
	for _, w := range ws {
		if !w.Empty() {
			sorted = append(sorted, w)
		}
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Start.Before(sorted[j].Start) })

	var out []entity.TimeWindow
	for _, w := range sorted {
		if n := len(out); n > 0 && !w.Start.After(out[n-1].End) {
			if w.End.After(out[n-1].End) {
				out[n-1].End = w.End
			}
			continue
		}
		out = append(out, w)
	}
	return out
}

// GapDetector はストアの内容と期待されるグリッドを比較して欠損区間を検出します。
type GapDetector struct {
	store TimestampReader
}

// NewGapDetector は新しいGapDetectorを生成します。
func NewGapDetector(store TimestampReader) *GapDetector {
	return &GapDetector{store: store}
}

// Detect は instrument の window 内の欠損区間を返します。
func (d *GapDetector) Detect(ctx context.Context, instrument string, g entity.Granularity, window entity.TimeWindow) ([]entity.TimeWindow, error) {
	if window.Empty() {
		return []entity.TimeWindow{}, nil
	}
	existing, err := d.store.ExistingTimestamps(ctx, instrument, g, window)
	if err != nil {
		return nil, err
	}
	return FindGaps(g, window, existing), nil
}
