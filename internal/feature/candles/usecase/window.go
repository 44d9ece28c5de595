package usecase

import (
	"log/slog"
	"time"

	"ohlcv_ingest/internal/feature/candles/domain"
	"ohlcv_ingest/internal/feature/candles/domain/entity"
)

// DefaultLagWarn はチェックポイントの遅れを警告する閾値です。
const DefaultLagWarn = 6 * time.Hour

// DefaultMaxCatchUp は設定から生成するリゾルバーの追いつき取得の上限です。0 で無制限になります。
const DefaultMaxCatchUp = 7 * 24 * time.Hour

// EmptyStoreLookbacks は空のストアに対する初回取得期間の目安です（時間足ごと）。
var EmptyStoreLookbacks = map[entity.Granularity]time.Duration{
	entity.OneMinute:     7 * 24 * time.Hour,
	entity.FiveMinute:    30 * 24 * time.Hour,
	entity.FifteenMinute: 60 * 24 * time.Hour,
	entity.OneHour:       90 * 24 * time.Hour,
	entity.FourHour:      180 * 24 * time.Hour,
	entity.OneDay:        365 * 24 * time.Hour,
}

// WindowResolver は実行モードとチェックポイントから取得対象の時間範囲を決定します。
type WindowResolver struct {
	// InitialLookback はチェックポイントが無い場合の取得期間です。未設定の時間足は1本分になります。
	InitialLookback map[entity.Granularity]time.Duration
	// MaxCatchUp が正の場合、追いつき取得の期間をこの長さに制限します。
	MaxCatchUp time.Duration
	// LagWarn を超える遅れがあれば警告ログを出します。
	LagWarn time.Duration

	nowFn func() time.Time
}

// NewWindowResolver は新しいWindowResolverを生成します。nowFn が nil の場合は time.Now を使います。
func NewWindowResolver(nowFn func() time.Time) *WindowResolver {
	if nowFn == nil {
		nowFn = time.Now
	}
	return &WindowResolver{
		InitialLookback: map[entity.Granularity]time.Duration{},
		LagWarn:         DefaultLagWarn,
		nowFn:           nowFn,
	}
}

// ValidateMode はモードのパラメータの組み合わせを検証します。
func ValidateMode(mode entity.Mode, g entity.Granularity) error {
	if !g.Valid() {
		return domain.NewConfigurationError("granularity", "unsupported granularity %q", g)
	}
	hasRange := !mode.Start.IsZero() || !mode.End.IsZero()

	switch mode.Kind {
	case entity.ModeAppend:
		if mode.Days != 0 || hasRange {
			return domain.NewConfigurationError("mode", "append mode takes neither days nor start/end")
		}
	case entity.ModeBackfill, entity.ModeRepair:
		if mode.Days != 0 && hasRange {
			return domain.NewConfigurationError("days", "days and start/end are mutually exclusive")
		}
		if mode.Days <= 0 {
			return domain.NewConfigurationError("days", "must be positive, got %d", mode.Days)
		}
	case entity.ModeRange:
		if mode.Days != 0 {
			return domain.NewConfigurationError("days", "days and start/end are mutually exclusive")
		}
		if mode.Start.IsZero() || mode.End.IsZero() {
			return domain.NewConfigurationError("start/end", "start and end are required together")
		}
		if !mode.Start.Before(mode.End) {
			return domain.NewConfigurationError("start/end", "start %s must be before end %s",
				mode.Start.UTC().Format(time.RFC3339), mode.End.UTC().Format(time.RFC3339))
		}
	default:
		return domain.NewConfigurationError("mode", "unknown mode %q", mode.Kind)
	}
	return nil
}

// Resolve は取得対象の [start, end) を返します。境界は常に時間足の倍数に揃えられます。
// 追記モードで新しい足が無い場合は空の範囲を返します（エラーではありません）。
func (r *WindowResolver) Resolve(mode entity.Mode, instrument string, g entity.Granularity, checkpoint *time.Time) (entity.TimeWindow, error) {
	if err := ValidateMode(mode, g); err != nil {
		return entity.TimeWindow{}, err
	}
	now := r.nowFn().UTC()
	step := g.Duration()

	switch mode.Kind {
	case entity.ModeAppend:
		end := g.Floor(now)
		var start time.Time
		if checkpoint != nil {
			start = g.Floor(*checkpoint).Add(step)
			lag := end.Sub(start)
			if r.LagWarn > 0 && lag > r.LagWarn {
				slog.Warn("large gap since checkpoint", "instrument", instrument, "granularity", g, "lag", lag)
			}
			if r.MaxCatchUp > 0 && lag > r.MaxCatchUp {
				capped := g.Floor(end.Add(-r.MaxCatchUp))
				slog.Warn("gap too large, capping catch-up", "instrument", instrument, "granularity", g,
					"lag", lag, "max", r.MaxCatchUp, "start", capped)
				start = capped
			}
		} else {
			lookback := r.InitialLookback[g]
			if lookback < step {
				lookback = step
			}
			start = g.Floor(end.Add(-lookback))
			slog.Info("no checkpoint, starting fresh", "instrument", instrument, "granularity", g, "lookback", lookback)
		}
		if start.After(end) {
			start = end
		}
		return entity.TimeWindow{Start: start, End: end}, nil

	case entity.ModeBackfill, entity.ModeRepair:
		end := g.Floor(now)
		start := g.Floor(now.AddDate(0, 0, -mode.Days))
		return entity.TimeWindow{Start: start, End: end}, nil

	default: // entity.ModeRange
		return entity.TimeWindow{Start: g.Floor(mode.Start), End: g.Ceil(mode.End)}, nil
	}
}
