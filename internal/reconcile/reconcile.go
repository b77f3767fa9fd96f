// Package reconcile merges captured readings into a reading set and derives
// the ordering and summary values shown alongside it.
package reconcile

import (
	"math"
	"slices"

	"github.com/jwulff/bptrack/internal/bloodpressure"
)

// DefaultWindow is the number of recent readings averaged for the summary.
const DefaultWindow = 30

// Update describes a change to a reading set. The zero value carries no change.
type Update struct {
	Incoming    []bloodpressure.Reading
	Replacement []bloodpressure.Reading
	Replace     bool
}

// Append returns an update that appends the given readings.
func Append(readings ...bloodpressure.Reading) Update {
	return Update{Incoming: readings}
}

// Replace returns an update that supersedes the whole set, typically with the
// authoritative list just fetched from the backend.
func Replace(readings []bloodpressure.Reading) Update {
	return Update{Replacement: readings, Replace: true}
}

// Merge applies u to existing and returns the resulting set.
//
// A replacement wins outright. Appended readings with zero systolic and
// diastolic are dropped; when nothing survives, existing is returned as is.
// Appending does not de-duplicate. With no update, an empty set is seeded
// with the sentinel so callers always have something to render.
func Merge(existing []bloodpressure.Reading, u Update) []bloodpressure.Reading {
	if u.Replace {
		return slices.Clone(u.Replacement)
	}

	if len(u.Incoming) == 0 {
		if len(existing) == 0 {
			return []bloodpressure.Reading{bloodpressure.Sentinel()}
		}
		return existing
	}

	var accepted []bloodpressure.Reading
	for _, r := range u.Incoming {
		if r.IsEmpty() {
			continue
		}
		accepted = append(accepted, r)
	}
	if len(accepted) == 0 {
		return existing
	}

	merged := make([]bloodpressure.Reading, 0, len(existing)+len(accepted))
	merged = append(merged, existing...)
	return append(merged, accepted...)
}

// SortDescending returns a copy of readings ordered most recent first by
// effective timestamp. Readings without a timestamp go last and keep their
// relative order.
func SortDescending(readings []bloodpressure.Reading) []bloodpressure.Reading {
	sorted := slices.Clone(readings)
	slices.SortStableFunc(sorted, func(a, b bloodpressure.Reading) int {
		ta, okA := a.EffectiveTimestamp()
		tb, okB := b.EffectiveTimestamp()
		switch {
		case okA && okB:
			return tb.Compare(ta)
		case okA:
			return -1
		case okB:
			return 1
		default:
			return 0
		}
	})
	return sorted
}

// Summary holds the headline numbers for a reading set.
type Summary struct {
	LastReading  *bloodpressure.Reading
	AveragePulse int
	TotalCount   int
	Window       int // Readings the average was taken over
}

// Summarize computes the latest reading, the average pulse over the most
// recent window readings and the total count. Empty readings are ignored
// throughout. A window of zero or less averages every reading.
func Summarize(readings []bloodpressure.Reading, window int) Summary {
	captured := WithoutEmpty(readings)
	if len(captured) == 0 {
		return Summary{}
	}

	sorted := SortDescending(captured)
	if window <= 0 || window > len(sorted) {
		window = len(sorted)
	}

	total := 0
	for _, r := range sorted[:window] {
		total += r.Pulse
	}

	last := sorted[0]
	return Summary{
		LastReading:  &last,
		AveragePulse: roundHalfUp(float64(total) / float64(window)),
		TotalCount:   len(sorted),
		Window:       window,
	}
}

// WithoutEmpty returns the readings that carry captured values.
func WithoutEmpty(readings []bloodpressure.Reading) []bloodpressure.Reading {
	out := make([]bloodpressure.Reading, 0, len(readings))
	for _, r := range readings {
		if !r.IsEmpty() {
			out = append(out, r)
		}
	}
	return out
}

func roundHalfUp(v float64) int {
	return int(math.Floor(v + 0.5))
}
