package cache

import (
	"fmt"
	"time"
)

// DayStatsKey caches the aggregated stats of one completed UTC day.
// Today is never cached; its numbers still move.
func DayStatsKey(day time.Time, category string) string {
	if category == "" {
		return fmt.Sprintf("stats:day:%s", day.Format("2006-01-02"))
	}
	return fmt.Sprintf("stats:day:%s:%s", day.Format("2006-01-02"), category)
}

func RateLimitKey(keyPrefix string) string {
	return fmt.Sprintf("ratelimit:%s", keyPrefix)
}
