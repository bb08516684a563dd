// Package normalize turns stored documents into domain records. It is the
// only place that knows the timestamp shapes store adapters produce.
package normalize

import (
	"math"
	"strings"
	"time"

	"lifesync/internal/core"
	"lifesync/internal/store"
)

// Time converts any supported timestamp shape to a time.Time:
// store.Timestamp, {"seconds","nanoseconds"} objects, time.Time, RFC 3339
// text, date-only text (local midnight in loc) and epoch milliseconds.
func Time(v any, loc *time.Location) (time.Time, bool) {
	if loc == nil {
		loc = time.Local
	}
	switch t := v.(type) {
	case nil:
		return time.Time{}, false
	case time.Time:
		return t, !t.IsZero()
	case *time.Time:
		if t == nil {
			return time.Time{}, false
		}
		return *t, !t.IsZero()
	case store.Timestamp:
		return time.Unix(t.Seconds, int64(t.Nanos)), true
	case *store.Timestamp:
		if t == nil {
			return time.Time{}, false
		}
		return time.Unix(t.Seconds, int64(t.Nanos)), true
	case map[string]any:
		sec, ok := number(t["seconds"])
		if !ok {
			sec, ok = number(t["_seconds"])
		}
		if !ok {
			return time.Time{}, false
		}
		nanos, ok := number(t["nanoseconds"])
		if !ok {
			nanos, _ = number(t["_nanoseconds"])
		}
		return time.Unix(int64(sec), int64(nanos)), true
	case string:
		s := strings.TrimSpace(t)
		if d, err := core.ParseDay(s); err == nil {
			return d.Start(loc), true
		}
		for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05"} {
			var (
				ts  time.Time
				err error
			)
			if layout == "2006-01-02T15:04:05" {
				ts, err = time.ParseInLocation(layout, s, loc)
			} else {
				ts, err = time.Parse(layout, s)
			}
			if err == nil {
				return ts, true
			}
		}
		return time.Time{}, false
	default:
		ms, ok := number(v)
		if !ok {
			return time.Time{}, false
		}
		return time.UnixMilli(int64(ms)), true
	}
}

// DayKey converts a stored date field to its canonical key in loc. Date-only
// text is taken as written, never shifted through UTC. ok is false when v is
// present but unreadable; raw then holds its text so list views can still
// show it.
func DayKey(v any, loc *time.Location) (key string, ok bool) {
	if loc == nil {
		loc = time.Local
	}
	if v == nil {
		return "", true
	}
	if s, isString := v.(string); isString {
		s = strings.TrimSpace(s)
		if s == "" {
			return "", true
		}
		if d, err := core.ParseDay(s); err == nil {
			return d.String(), true
		}
		if t, ok := Time(s, loc); ok {
			return core.DayOf(t, loc).String(), true
		}
		return s, false
	}
	if t, ok := Time(v, loc); ok {
		return core.DayOf(t, loc).String(), true
	}
	return "", false
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, !math.IsNaN(n) && !math.IsInf(n, 0)
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	}
	return 0, false
}
