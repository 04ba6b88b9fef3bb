package main

import (
	"fmt"
	"time"
)

const dayLayout = "2006-01-02"

// parseRange turns inclusive YYYY-MM-DD days into a half-open
// [from, to+1day) range in loc. Either side may be empty.
func parseRange(from, to string, loc *time.Location) (time.Time, time.Time, error) {
	var start, end time.Time

	if from != "" {
		t, err := time.ParseInLocation(dayLayout, from, loc)
		if err != nil {
			return start, end, fmt.Errorf("--from: %w", err)
		}
		start = t
	}
	if to != "" {
		t, err := time.ParseInLocation(dayLayout, to, loc)
		if err != nil {
			return start, end, fmt.Errorf("--to: %w", err)
		}
		end = t.AddDate(0, 0, 1)
	}
	if !start.IsZero() && !end.IsZero() && !end.After(start) {
		return start, end, fmt.Errorf("--to %s is before --from %s", to, from)
	}
	return start, end, nil
}
