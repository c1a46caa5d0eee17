package cache

import (
	"regexp"
	"time"
)

// TimeLayout is the portable timestamp form every temporal value takes on
// its way into durable storage. Fractional seconds are kept when present.
const TimeLayout = time.RFC3339Nano

// timestampRe recognises the stored form on the way back out. Anything that
// starts like an ISO 8601 date-time is a candidate; the actual parse decides.
var timestampRe = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}`)

// Normalize walks v and replaces every time.Time with its TimeLayout string,
// recursively through maps and slices. Other values pass through unchanged.
func Normalize(v any) any {
	switch val := v.(type) {
	case time.Time:
		return val.Format(TimeLayout)
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = Normalize(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = Normalize(item)
		}
		return out
	case []string:
		// Tag name sequences stay as they are; they are never temporal.
		return val
	default:
		return v
	}
}

// Restore walks v and replaces every string matching the stored timestamp
// form with the parsed time.Time, recursively through maps and slices.
func Restore(v any) any {
	switch val := v.(type) {
	case string:
		if t, ok := parseTimestamp(val); ok {
			return t
		}
		return val
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = Restore(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = Restore(item)
		}
		return out
	default:
		return v
	}
}

func parseTimestamp(s string) (time.Time, bool) {
	if !timestampRe.MatchString(s) {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
