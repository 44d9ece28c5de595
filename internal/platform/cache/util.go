package cache

import (
	"time"

	"ohlcv_ingest/internal/feature/candles/domain/entity"
)

// TimeUntilNextBar は現在形成中のバーが確定するまでの期間を返します。
// now がちょうど境界上の場合は1本分の期間を返します。
func TimeUntilNextBar(g entity.Granularity, now time.Time) time.Duration {
	step := g.Duration()
	if step <= 0 {
		return 0
	}
	next := g.Floor(now).Add(step)
	return next.Sub(now)
}
