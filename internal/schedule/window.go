// Package schedule evaluates declared shift windows against wall-clock time.
package schedule

import (
	"strconv"
	"strings"
)

// ParseShiftWindow parses a "HH:MM-HH:MM" shift declaration into its start
// and end hours. Minutes are ignored: presence is evaluated at hour
// granularity, consistent with the 5-minute polling cadence. Returns
// ok=false for anything malformed.
func ParseShiftWindow(shift string) (start, end int, ok bool) {
	parts := strings.SplitN(shift, "-", 2)
	if len(parts) != 2 {
		return 0, 0, false
	}

	start, ok = parseHour(parts[0])
	if !ok {
		return 0, 0, false
	}
	end, ok = parseHour(parts[1])
	if !ok {
		return 0, 0, false
	}
	return start, end, true
}

// IsShiftActive reports whether the shift covers the given hour.
// A window with start >= end wraps past midnight: "23:00-07:00" covers
// 23:00 through 06:59. A mis-declared shift never errors; it is simply
// inactive, so one bad row cannot take down a reconciliation run.
func IsShiftActive(shift string, hour int) bool {
	if hour < 0 || hour > 23 {
		return false
	}

	start, end, ok := ParseShiftWindow(shift)
	if !ok {
		return false
	}

	if start < end {
		return hour >= start && hour < end
	}
	return hour >= start || hour < end
}

func parseHour(s string) (int, bool) {
	s = strings.TrimSpace(s)
	if idx := strings.Index(s, ":"); idx >= 0 {
		s = s[:idx]
	}
	hour, err := strconv.Atoi(s)
	if err != nil || hour < 0 || hour > 23 {
		return 0, false
	}
	return hour, true
}
