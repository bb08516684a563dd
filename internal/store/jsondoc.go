package store

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// JSONTimestamp is the object shape SQL adapters persist timestamps in.
func JSONTimestamp(t time.Time) map[string]any {
	return map[string]any{"seconds": t.Unix(), "nanoseconds": t.Nanosecond()}
}

// MarshalData encodes a document for a JSON column. Server timestamps are
// replaced by now and store.Timestamp values take the JSON object shape.
func MarshalData(data map[string]any, now time.Time) ([]byte, error) {
	out := make(map[string]any, len(data))
	for k, v := range data {
		switch t := v.(type) {
		case serverTimestamp:
			out[k] = JSONTimestamp(now)
		case Timestamp:
			out[k] = JSONTimestamp(time.Unix(t.Seconds, int64(t.Nanos)))
		default:
			out[k] = v
		}
	}
	b, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	return b, nil
}

func UnmarshalData(b []byte) (map[string]any, error) {
	var out map[string]any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	if out == nil {
		out = map[string]any{}
	}
	return out, nil
}

// ValidField reports whether name can be used in a JSON path filter.
func ValidField(name string) bool {
	if name == "" {
		return false
	}
	for i, r := range name {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9' && i > 0:
		default:
			return false
		}
	}
	return !strings.HasPrefix(name, "__")
}
