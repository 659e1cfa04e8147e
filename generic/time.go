package generic

import (
	"encoding/json"
	"math"
	"time"
)

// =============================================================================
// EPOCH CONVERSION - All range comparisons happen on epoch milliseconds
// =============================================================================

// EpochMillis converts a timestamp to the numeric form every store and the
// reconciler compare on. Millisecond precision matches what document stores
// persist, so a bound compares the same in memory and in the store.
func EpochMillis(t time.Time) int64 { return t.UnixMilli() }

// FromEpochMillis is the inverse of EpochMillis, in UTC.
func FromEpochMillis(ms int64) time.Time { return time.UnixMilli(ms).UTC() }

// TimeValue decodes a store-native timestamp. Accepts time.Time, epoch
// milliseconds in any numeric form (JSON bodies), and driver types exposing
// Time() (e.g. BSON datetimes).
func TimeValue(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t.UTC(), true
	case *time.Time:
		if t == nil {
			return time.Time{}, false
		}
		return t.UTC(), true
	case interface{ Time() time.Time }:
		return t.Time().UTC(), true
	}
	if ms, ok := toInt64(v); ok {
		return FromEpochMillis(ms), true
	}
	return time.Time{}, false
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case float64:
		if n != math.Trunc(n) {
			return 0, false
		}
		return int64(n), true
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	}
	return 0, false
}

// =============================================================================
// DAY WINDOWS
// =============================================================================

// DayStart returns midnight UTC of t's calendar day.
func DayStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// DayEnd returns the last representable millisecond of t's calendar day,
// so that [DayStart, DayEnd] is an inclusive single-day window.
func DayEnd(t time.Time) time.Time {
	return DayStart(t).AddDate(0, 0, 1).Add(-time.Millisecond)
}
