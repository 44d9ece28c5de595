package entity

import "time"

// ModeKind selects how the fetch window of a run is derived.
type ModeKind string

const (
	// ModeAppend resumes from the stored checkpoint up to now.
	ModeAppend ModeKind = "append"
	// ModeBackfill re-materializes the last N days, ignoring the checkpoint.
	ModeBackfill ModeKind = "backfill"
	// ModeRange fetches an explicit [Start, End) range.
	ModeRange ModeKind = "range"
	// ModeRepair covers the last N days but only fetches the gaps found in the store.
	ModeRepair ModeKind = "repair"
)

// Mode carries the run mode and its parameters. Days and Start/End are mutually exclusive.
type Mode struct {
	Kind  ModeKind
	Days  int
	Start time.Time
	End   time.Time
}

// AppendLatest returns an append-latest mode.
func AppendLatest() Mode { return Mode{Kind: ModeAppend} }

// BackfillDays returns a backfill-by-days mode.
func BackfillDays(days int) Mode { return Mode{Kind: ModeBackfill, Days: days} }

// ExplicitRange returns an explicit range mode.
func ExplicitRange(start, end time.Time) Mode { return Mode{Kind: ModeRange, Start: start, End: end} }

// RepairDays returns a gap-repair mode over the last N days.
func RepairDays(days int) Mode { return Mode{Kind: ModeRepair, Days: days} }
