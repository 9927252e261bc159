package scheduling

import (
	"fmt"
	"math"
)

// DefaultCronExpression fires every 30 seconds. Used whenever an interval
// cannot be represented exactly as a cron period.
const DefaultCronExpression = "*/30 * * * * *"

// DeriveCronExpression converts a millisecond interval into the coarsest
// six-field cron expression that represents the period exactly. Intervals
// that do not divide cleanly at some level (seconds into minutes, minutes
// into hours, hours into days) fall back to DefaultCronExpression rather
// than a lossy approximation, as do non-positive or non-finite inputs.
func DeriveCronExpression(intervalMs float64) string {
	if math.IsNaN(intervalMs) || math.IsInf(intervalMs, 0) || intervalMs <= 0 {
		return DefaultCronExpression
	}

	seconds := int64(math.Round(intervalMs / 1000))
	if seconds < 60 {
		if seconds < 1 {
			seconds = 1
		}
		return fmt.Sprintf("*/%d * * * * *", seconds)
	}
	if seconds%60 != 0 {
		return DefaultCronExpression
	}

	minutes := seconds / 60
	if minutes < 60 {
		if minutes < 1 {
			minutes = 1
		}
		return fmt.Sprintf("0 */%d * * * *", minutes)
	}
	if minutes%60 != 0 {
		return DefaultCronExpression
	}

	hours := minutes / 60
	if hours < 24 {
		if hours < 1 {
			hours = 1
		}
		return fmt.Sprintf("0 0 */%d * * *", hours)
	}
	if hours%24 != 0 {
		return DefaultCronExpression
	}

	days := hours / 24
	if days < 1 {
		days = 1
	}
	return fmt.Sprintf("0 0 0 */%d * *", days)
}
