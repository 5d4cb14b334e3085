package deserialize

import (
	"fmt"
	"time"
)

// parseTimestamp accepts RFC3339 (with or without fractional seconds), the
// wire format every producer in the pack uses for event timestamps.
func parseTimestamp(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("not a valid RFC3339 timestamp: %q", s)
}
