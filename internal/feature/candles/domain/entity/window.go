package entity

import (
	"fmt"
	"time"
)

// TimeWindow is a half-open UTC interval [Start, End).
type TimeWindow struct {
	Start time.Time
	End   time.Time
}

// Empty reports whether the window contains no instant.
func (w TimeWindow) Empty() bool {
	return !w.Start.Before(w.End)
}

// Contains reports whether t lies in [Start, End).
func (w TimeWindow) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

// Steps returns how many bars of g fit in the window.
func (w TimeWindow) Steps(g Granularity) int {
	d := g.Duration()
	if d <= 0 || w.Empty() {
		return 0
	}
	return int(w.End.Sub(w.Start) / d)
}

func (w TimeWindow) String() string {
	return fmt.Sprintf("[%s, %s)", w.Start.UTC().Format(time.RFC3339), w.End.UTC().Format(time.RFC3339))
}
