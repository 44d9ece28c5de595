package usecase_test

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"ohlcv_ingest/internal/feature/candles/domain/entity"
	"ohlcv_ingest/internal/feature/candles/usecase"
)

// ErrDB はモックと期待値の間で共有されるセンチネルエラーです。
var ErrDB = errors.New("database error")

// mockCandleRepository はCandleRepositoryとTimestampReaderのモック実装です。
type mockCandleRepository struct {
	FindFunc               func(ctx context.Context, instrument string, g entity.Granularity, limit int) ([]entity.Candle, error)
	ExistingTimestampsFunc func(ctx context.Context, instrument string, g entity.Granularity, window entity.TimeWindow) ([]time.Time, error)
	FindCalls              int
}

// Find はFindFuncが設定されていればそれを呼び出し、呼び出し回数を記録します。
func (m *mockCandleRepository) Find(ctx context.Context, instrument string, g entity.Granularity, limit int) ([]entity.Candle, error) {
	m.FindCalls++
	if m.FindFunc != nil {
		return m.FindFunc(ctx, instrument, g, limit)
	}
	return nil, errors.New("FindFunc is not implemented")
}

func (m *mockCandleRepository) ExistingTimestamps(ctx context.Context, instrument string, g entity.Granularity, window entity.TimeWindow) ([]time.Time, error) {
	if m.ExistingTimestampsFunc != nil {
		return m.ExistingTimestampsFunc(ctx, instrument, g, window)
	}
	return nil, errors.New("ExistingTimestampsFunc is not implemented")
}

// mockExchange はExchangeAdapterのモック実装です。
type mockExchange struct {
	mu               sync.Mutex
	FetchCandlesFunc func(ctx context.Context, instrument string, start, end time.Time, g entity.Granularity, limit int) ([]entity.Candle, error)
	Calls            []fetchCall
}

type fetchCall struct {
	Instrument string
	Start, End time.Time
	Limit      int
}

func (m *mockExchange) FetchCandles(ctx context.Context, instrument string, start, end time.Time, g entity.Granularity, limit int) ([]entity.Candle, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, fetchCall{Instrument: instrument, Start: start, End: end, Limit: limit})
	m.mu.Unlock()
	if m.FetchCandlesFunc != nil {
		return m.FetchCandlesFunc(ctx, instrument, start, end, g, limit)
	}
	return nil, errors.New("FetchCandlesFunc is not implemented")
}

func (m *mockExchange) callsFor(instrument string) []fetchCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []fetchCall
	for _, c := range m.Calls {
		if c.Instrument == instrument {
			out = append(out, c)
		}
	}
	return out
}

// gridExchange は [start, end) の全グリッドについて合成したローソク足を返す取引所です。
// dataEnd 以降と missing に含まれる時刻は返しません。
func gridExchange(dataEnd time.Time, missing map[int64]bool) func(ctx context.Context, instrument string, start, end time.Time, g entity.Granularity, limit int) ([]entity.Candle, error) {
	return func(_ context.Context, instrument string, start, end time.Time, g entity.Granularity, limit int) ([]entity.Candle, error) {
		var out []entity.Candle
		for ts := start; ts.Before(end) && len(out) < limit; ts = ts.Add(g.Duration()) {
			if !ts.Before(dataEnd) || missing[ts.Unix()] {
				continue
			}
			out = append(out, synthCandle(instrument, g, ts))
		}
		return out, nil
	}
}

func synthCandle(instrument string, g entity.Granularity, ts time.Time) entity.Candle {
	return entity.Candle{
		InstrumentID: instrument,
		Granularity:  g,
		Time:         ts,
		Open:         100,
		High:         110,
		Low:          90,
		Close:        105,
		VolumeBase:   2,
		VolumeQuote:  210,
	}
}

// memStore はCandleStoreのインメモリ実装です。
type memStore struct {
	mu   sync.Mutex
	rows map[string]map[int64]entity.Candle

	// WriteBatchHook が nil 以外のエラーを返した場合、そのバッチは保存されません。
	WriteBatchHook func(candles []entity.Candle) error
	Batches        int
}

var _ usecase.CandleStore = (*memStore)(nil)

func newMemStore() *memStore {
	return &memStore{rows: make(map[string]map[int64]entity.Candle)}
}

func seriesKey(instrument string, g entity.Granularity) string {
	return instrument + "|" + string(g)
}

func (s *memStore) WriteBatch(_ context.Context, candles []entity.Candle) (usecase.CommitResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(candles) == 0 {
		return usecase.CommitResult{}, nil
	}
	if s.WriteBatchHook != nil {
		if err := s.WriteBatchHook(candles); err != nil {
			return usecase.CommitResult{}, err
		}
	}
	s.Batches++
	for _, c := range candles {
		k := seriesKey(c.InstrumentID, c.Granularity)
		if s.rows[k] == nil {
			s.rows[k] = make(map[int64]entity.Candle)
		}
		s.rows[k][c.Time.Unix()] = c
	}
	first, last := candles[0], candles[len(candles)-1]
	return usecase.CommitResult{
		InstrumentID: first.InstrumentID,
		Granularity:  first.Granularity,
		Table:        first.Granularity.Table(),
		Rows:         len(candles),
		First:        first.Time,
		Last:         last.Time,
	}, nil
}

func (s *memStore) LatestTimestamp(_ context.Context, instrument string, g entity.Granularity) (time.Time, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var latest int64
	found := false
	for ts := range s.rows[seriesKey(instrument, g)] {
		if !found || ts > latest {
			latest, found = ts, true
		}
	}
	if !found {
		return time.Time{}, false, nil
	}
	return time.Unix(latest, 0).UTC(), true, nil
}

func (s *memStore) ExistingTimestamps(_ context.Context, instrument string, g entity.Granularity, window entity.TimeWindow) ([]time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []time.Time
	for ts := range s.rows[seriesKey(instrument, g)] {
		t := time.Unix(ts, 0).UTC()
		if window.Contains(t) {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out, nil
}

// snapshot は保存内容を時刻順に返します。
func (s *memStore) snapshot(instrument string, g entity.Granularity) []entity.Candle {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]entity.Candle, 0, len(s.rows[seriesKey(instrument, g)]))
	for _, c := range s.rows[seriesKey(instrument, g)] {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Time.Before(out[j].Time) })
	return out
}

func (s *memStore) seed(instrument string, g entity.Granularity, from, to time.Time) {
	var cs []entity.Candle
	for ts := from; ts.Before(to); ts = ts.Add(g.Duration()) {
		cs = append(cs, synthCandle(instrument, g, ts))
	}
	_, _ = s.WriteBatch(context.Background(), cs)
	s.mu.Lock()
	s.Batches = 0
	s.mu.Unlock()
}

// recordingSink は受け取ったCommitResultを記録します。
type recordingSink struct {
	mu      sync.Mutex
	commits []usecase.CommitResult
	err     error
}

func (r *recordingSink) OnCommit(_ context.Context, cr usecase.CommitResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.commits = append(r.commits, cr)
	return r.err
}

func fixedNow(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func fastFetcher(pageLimit int, retries uint) *usecase.BatchFetcher {
	return usecase.NewBatchFetcher(usecase.FetcherConfig{
		PageLimit:   pageLimit,
		PageTimeout: time.Second,
		MaxRetries:  retries,
		BaseDelay:   time.Millisecond,
		MaxDelay:    2 * time.Millisecond,
	})
}
