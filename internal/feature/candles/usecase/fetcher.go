package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"ohlcv_ingest/internal/feature/candles/domain"
	"ohlcv_ingest/internal/feature/candles/domain/entity"
	"ohlcv_ingest/internal/shared/retry"
)

const (
	// DefaultPageLimit は1リクエストで取得する最大本数です。
	DefaultPageLimit = 300
	// DefaultPageTimeout は1ページ取得のタイムアウトです。
	DefaultPageTimeout = 30 * time.Second
)

// ExchangeAdapter は取引所からローソク足を取得するインターフェイスです。
// [start, end) の範囲で最大 limit 本を返します。順序や重複は保証されなくてもかまいません。
// Following Go convention: interfaces are defined by the consumer (usecase), not the provider (adapters).
type ExchangeAdapter interface {
	FetchCandles(ctx context.Context, instrument string, start, end time.Time, g entity.Granularity, limit int) ([]entity.Candle, error)
}

// PageLimiter は取引所ごとのページ上限を公開するアダプタが実装します。
type PageLimiter interface {
	PageLimit() int
}

// FetcherConfig はBatchFetcherの設定です。
type FetcherConfig struct {
	PageLimit   int
	PageTimeout time.Duration
	MaxRetries  uint
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultFetcherConfig はデフォルト設定を返します。
func DefaultFetcherConfig() FetcherConfig {
	return FetcherConfig{
		PageLimit:   DefaultPageLimit,
		PageTimeout: DefaultPageTimeout,
		MaxRetries:  3,
		BaseDelay:   500 * time.Millisecond,
		MaxDelay:    10 * time.Second,
	}
}

// FetchResult は1つの範囲の取得結果です。
type FetchResult struct {
	// Candles は重複を除いた昇順のローソク足です。
	Candles []entity.Candle
	Pages   int
	// Skipped は取引所がデータを返さなかったが、その後にデータが続いた区間です（提供元の欠損）。
	Skipped []entity.TimeWindow
	// Unfilled は最後に取得できた足より後の、データが返されなかった末尾の範囲です（追いついた状態も含みます）。
	Unfilled entity.TimeWindow
}

// BatchFetcher は範囲をページに分割して取得し、正規化した結果を返します。
type BatchFetcher struct {
	cfg     FetcherConfig
	retryer *retry.Retryer
}

// NewBatchFetcher は新しいBatchFetcherを生成します。
func NewBatchFetcher(cfg FetcherConfig) *BatchFetcher {
	if cfg.PageLimit <= 0 {
		cfg.PageLimit = DefaultPageLimit
	}
	return &BatchFetcher{
		cfg:     cfg,
		retryer: retry.NewRetryer(cfg.MaxRetries, cfg.BaseDelay, cfg.MaxDelay),
	}
}

func (f *BatchFetcher) pageLimit(adapter ExchangeAdapter) int {
	limit := f.cfg.PageLimit
	if pl, ok := adapter.(PageLimiter); ok && pl.PageLimit() > 0 && pl.PageLimit() < limit {
		limit = pl.PageLimit()
	}
	return limit
}

// Fetch は window 全体を取得します。
// 途中のページが失敗した場合は、それまでに取得した分を FetchResult.Candles に入れたまま
// *domain.FetchError を返します。取得済みのデータは捨てません。
func (f *BatchFetcher) Fetch(ctx context.Context, adapter ExchangeAdapter, instrument string, window entity.TimeWindow, g entity.Granularity) (FetchResult, error) {
	var res FetchResult
	if window.Empty() {
		return res, nil
	}
	step := g.Duration()
	if step <= 0 {
		return res, domain.NewConfigurationError("granularity", "unsupported granularity %q", g)
	}
	limit := f.pageLimit(adapter)
	byTime := make(map[int64]entity.Candle)

	// pending はまだ後続のデータが確認できていない空の区間です
	var pending []entity.TimeWindow
	cursor := window.Start
	for cursor.Before(window.End) {
		subEnd := cursor.Add(time.Duration(limit) * step)
		if subEnd.After(window.End) {
			subEnd = window.End
		}

		page, err := f.fetchPage(ctx, adapter, instrument, cursor, subEnd, g, limit)
		res.Pages++
		if err != nil {
			res.Candles = sortedCandles(byTime)
			res.Skipped = mergeWindows(append(res.Skipped, pending...))
			gap := entity.TimeWindow{Start: cursor, End: window.End}
			return res, &domain.FetchError{Cause: err, Partial: res.Candles, Gap: gap}
		}

		var (
			last time.Time
			seen []time.Time
		)
		for _, c := range page {
			c.Time = c.Time.UTC()
			if !window.Contains(c.Time) {
				continue
			}
			c.InstrumentID = instrument
			c.Granularity = g
			// 同じ時刻が複数返された場合は後勝ち
			byTime[c.Time.Unix()] = c
			seen = append(seen, c.Time)
			if c.Time.After(last) {
				last = c.Time
			}
		}

		next := g.Floor(last).Add(step)
		if last.IsZero() || !next.After(cursor) {
			// 空のページは飛ばして先へ進む。後続にデータがあれば欠損として報告する
			pending = append(pending, entity.TimeWindow{Start: cursor, End: subEnd})
			cursor = subEnd
			continue
		}

		holes := append(pending, FindGaps(g, entity.TimeWindow{Start: cursor, End: next}, seen)...)
		if len(holes) > 0 {
			holes = mergeWindows(holes)
			slog.Warn("exchange skipped candles", "instrument", instrument, "granularity", g,
				"holes", len(holes), "first", holes[0].String())
			res.Skipped = append(res.Skipped, holes...)
		}
		pending = nil
		cursor = next
	}

	if len(pending) > 0 {
		res.Unfilled = entity.TimeWindow{Start: pending[0].Start, End: window.End}
		slog.Debug("exchange returned no further candles", "instrument", instrument, "granularity", g,
			"remaining", res.Unfilled.String())
	}
	res.Skipped = mergeWindows(res.Skipped)
	res.Candles = sortedCandles(byTime)
	return res, nil
}

func (f *BatchFetcher) fetchPage(ctx context.Context, adapter ExchangeAdapter, instrument string, start, end time.Time, g entity.Granularity, limit int) ([]entity.Candle, error) {
	var page []entity.Candle
	err := f.retryer.Do(ctx, func(attempt uint) (bool, error) {
		pctx, cancel := ctx, context.CancelFunc(func() {})
		if f.cfg.PageTimeout > 0 {
			pctx, cancel = context.WithTimeout(ctx, f.cfg.PageTimeout)
		}
		defer cancel()

		out, err := adapter.FetchCandles(pctx, instrument, start, end, g, limit)
		if err == nil {
			page = out
			return false, nil
		}
		if ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
			err = domain.NewTransientError(0, fmt.Errorf("page timed out after %s: %w", f.cfg.PageTimeout, err))
		}
		if ctx.Err() != nil || !domain.IsTransient(err) {
			return false, err
		}
		slog.Warn("page fetch failed, retrying", "instrument", instrument, "granularity", g,
			"start", start.Format(time.RFC3339), "attempt", attempt+1, "max_attempts", f.retryer.MaxAttempts(), "error", err)
		return true, err
	})
	if err != nil && domain.IsTransient(err) && ctx.Err() == nil {
		return nil, fmt.Errorf("retries exhausted after %d attempts: %w", f.retryer.MaxAttempts(), err)
	}
	return page, err
}

func sortedCandles(byTime map[int64]entity.Candle) []entity.Candle {
	out := make([]entity.Candle, 0, len(byTime))
	for _, c := range byTime {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Time.Before(out[j].Time) })
	return out
}
