// Package usecase はローソク足のインジェストと読み取りのビジネスロジックを実装します。
package usecase

import (
	"context"
	"strings"

	"ohlcv_ingest/internal/feature/candles/domain"
	"ohlcv_ingest/internal/feature/candles/domain/entity"
)

const (
	// DefaultGranularity はローソク足クエリのデフォルト時間足です。
	DefaultGranularity = entity.OneHour
	// DefaultLimit はデフォルトのローソク足返却件数です。
	DefaultLimit = 200
	// MaxLimit はローソク足の最大返却件数です。
	MaxLimit = 5000
	// DefaultGapDays は欠損レポートのデフォルト日数です。
	DefaultGapDays = 1
	// MaxGapDays は欠損レポートの最大日数です。
	MaxGapDays = 90
)

// CandleRepository はローソク足データの読み取りレイヤーを抽象化します。
// Goの慣例に従い、インターフェースは利用者（usecase）側で定義します。
type CandleRepository interface {
	// Find はストアから新しい順にローソク足データを検索します。
	Find(ctx context.Context, instrument string, g entity.Granularity, limit int) ([]entity.Candle, error)
}

// GapReport は欠損レポートの結果です。
type GapReport struct {
	Instrument  string
	Granularity entity.Granularity
	Window      entity.TimeWindow
	Expected    int
	Missing     int
	Gaps        []entity.TimeWindow
}

// candlesUsecase はローソク足データ読み取りのユースケースを定義します。
type candlesUsecase struct {
	candle   CandleRepository
	gaps     *GapDetector
	resolver *WindowResolver
}

// NewCandlesUsecase はcandlesUsecaseの新しいインスタンスを生成します。
func NewCandlesUsecase(candle CandleRepository, timestamps TimestampReader, resolver *WindowResolver) *candlesUsecase {
	if resolver == nil {
		resolver = NewWindowResolver(nil)
	}
	return &candlesUsecase{candle: candle, gaps: NewGapDetector(timestamps), resolver: resolver}
}

// GetCandles は指定された銘柄と時間足のローソク足データを取得します。
func (cu *candlesUsecase) GetCandles(ctx context.Context, instrument, granularity string, limit int) ([]entity.Candle, error) {
	g, err := parseGranularityOrDefault(granularity)
	if err != nil {
		return nil, err
	}
	if limit <= 0 || limit > MaxLimit {
		limit = DefaultLimit
	}

	cs, err := cu.candle.Find(ctx, strings.ToUpper(instrument), g, limit)
	if err != nil {
		return nil, err
	}

	return cs, nil
}

// FindGaps は直近 days 日間の欠損区間を返します。
func (cu *candlesUsecase) FindGaps(ctx context.Context, instrument, granularity string, days int) (GapReport, error) {
	g, err := parseGranularityOrDefault(granularity)
	if err != nil {
		return GapReport{}, err
	}
	if days <= 0 {
		days = DefaultGapDays
	}
	if days > MaxGapDays {
		return GapReport{}, domain.NewConfigurationError("days", "must be at most %d, got %d", MaxGapDays, days)
	}
	instrument = strings.ToUpper(instrument)

	window, err := cu.resolver.Resolve(entity.BackfillDays(days), instrument, g, nil)
	if err != nil {
		return GapReport{}, err
	}
	gaps, err := cu.gaps.Detect(ctx, instrument, g, window)
	if err != nil {
		return GapReport{}, err
	}

	report := GapReport{
		Instrument:  instrument,
		Granularity: g,
		Window:      window,
		Expected:    window.Steps(g),
		Gaps:        gaps,
	}
	for _, gap := range gaps {
		report.Missing += gap.Steps(g)
	}
	return report, nil
}

func parseGranularityOrDefault(s string) (entity.Granularity, error) {
	if s == "" {
		return DefaultGranularity, nil
	}
	g, err := entity.ParseGranularity(s)
	if err != nil {
		return "", domain.NewConfigurationError("granularity", "%v", err)
	}
	return g, nil
}
