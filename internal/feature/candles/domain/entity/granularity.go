package entity

import (
	"fmt"
	"strings"
	"time"
)

// Granularity is the fixed duration of one candle.
type Granularity string

const (
	OneMinute     Granularity = "1m"
	FiveMinute    Granularity = "5m"
	FifteenMinute Granularity = "15m"
	OneHour       Granularity = "1h"
	FourHour      Granularity = "4h"
	OneDay        Granularity = "1d"
)

// Granularities lists every supported value, smallest first.
var Granularities = []Granularity{OneMinute, FiveMinute, FifteenMinute, OneHour, FourHour, OneDay}

var granularityDurations = map[Granularity]time.Duration{
	OneMinute:     time.Minute,
	FiveMinute:    5 * time.Minute,
	FifteenMinute: 15 * time.Minute,
	OneHour:       time.Hour,
	FourHour:      4 * time.Hour,
	OneDay:        24 * time.Hour,
}

// ParseGranularity accepts the short form ("1h") case-insensitively.
func ParseGranularity(s string) (Granularity, error) {
	g := Granularity(strings.ToLower(strings.TrimSpace(s)))
	if !g.Valid() {
		return "", fmt.Errorf("unsupported granularity %q", s)
	}
	return g, nil
}

// Valid reports whether g is one of the supported values.
func (g Granularity) Valid() bool {
	_, ok := granularityDurations[g]
	return ok
}

// Duration returns the bar size, or 0 for an unknown granularity.
func (g Granularity) Duration() time.Duration {
	return granularityDurations[g]
}

// Table returns the physical table holding bars of this granularity.
func (g Granularity) Table() string {
	return fmt.Sprintf("bars_%s_spot", g)
}

func (g Granularity) seconds() int64 {
	return int64(g.Duration() / time.Second)
}

// Floor rounds t down to the previous multiple of g since the UNIX epoch.
func (g Granularity) Floor(t time.Time) time.Time {
	step := g.seconds()
	if step <= 0 {
		return t.UTC()
	}
	u := t.Unix()
	r := u % step
	if r < 0 {
		r += step
	}
	return time.Unix(u-r, 0).UTC()
}

// Ceil rounds t up to the next multiple of g since the UNIX epoch.
func (g Granularity) Ceil(t time.Time) time.Time {
	f := g.Floor(t)
	if f.Equal(t) {
		return f
	}
	return f.Add(g.Duration())
}

// Aligned reports whether t is an exact multiple of g since the UNIX epoch.
func (g Granularity) Aligned(t time.Time) bool {
	step := g.seconds()
	return step > 0 && t.Nanosecond() == 0 && t.Unix()%step == 0
}

func (g Granularity) String() string { return string(g) }
