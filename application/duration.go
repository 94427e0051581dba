package application

import (
	"fmt"
	"time"
)

// FormatDuration renders d as "1h 05m", "12m" or "< 1m". Durations under a
// second read "soon" when counting down and "now" otherwise.
func FormatDuration(d time.Duration, countingDown bool) string {
	seconds := int(d / time.Second)
	if seconds < 0 {
		seconds = 0
	}
	h := seconds / 3600
	m := (seconds % 3600) / 60
	s := seconds % 60

	switch {
	case h > 0:
		return fmt.Sprintf("%dh %02dm", h, m)
	case m > 0:
		return fmt.Sprintf("%dm", m)
	case s > 0:
		return "< 1m"
	case countingDown:
		return "soon"
	default:
		return "now"
	}
}
