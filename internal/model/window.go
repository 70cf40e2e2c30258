package model

import (
	"errors"
	"fmt"
	"time"
)

// TimeWindow is a half-open interval [Start, End) with minute precision.
// All timestamps are normalized to UTC and truncated to the minute before
// any comparison or key derivation, so two windows that differ only in
// seconds map to the same slot.
type TimeWindow struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// ErrInvalidWindow is returned by Validate for windows where start is not
// strictly before end.
var ErrInvalidWindow = errors.New("invalid time window: start must be before end")

// NewTimeWindow builds a normalized window from raw timestamps.
func NewTimeWindow(start, end time.Time) TimeWindow {
	return TimeWindow{
		Start: start.UTC().Truncate(time.Minute),
		End:   end.UTC().Truncate(time.Minute),
	}
}

// Validate checks the start < end invariant.
func (w TimeWindow) Validate() error {
	if !w.Start.Before(w.End) {
		return ErrInvalidWindow
	}
	return nil
}

// Overlaps reports whether two half-open windows intersect.
// [a,b) and [c,d) overlap iff a < d && c < b.
func (w TimeWindow) Overlaps(o TimeWindow) bool {
	return w.Start.Before(o.End) && o.Start.Before(w.End)
}

// Minutes returns the window length in whole minutes.
func (w TimeWindow) Minutes() int64 {
	return int64(w.End.Sub(w.Start) / time.Minute)
}

// SlotKey derives the mutual-exclusion key for a court booking attempt.
// The key is computed from the court id and the normalized window only:
// equipment and coach capacity are checked independently inside the
// critical section and must not widen the lock scope.
func SlotKey(courtID uint64, w TimeWindow) string {
	return fmt.Sprintf("slot:%d:%s:%s",
		courtID,
		w.Start.UTC().Format("200601021504"),
		w.End.UTC().Format("200601021504"))
}
