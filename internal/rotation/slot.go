package rotation

import (
	"fmt"
	"strings"
	"time"
)

// DefaultPeriod is the length of one up/down market window.
const DefaultPeriod = 15 * time.Minute

// SlotStart returns the start of the window containing now: floor(now/period)*period.
func SlotStart(now time.Time, period time.Duration) time.Time {
	secs := int64(period / time.Second)
	if secs <= 0 {
		return now
	}
	unix := now.Unix()
	return time.Unix(unix-unix%secs, 0).UTC()
}

// Slug builds the market slug for an asset and window start,
// e.g. "btc-updown-15m-1700000100".
func Slug(asset string, slot time.Time) string {
	return fmt.Sprintf("%s-updown-15m-%d", strings.ToLower(asset), slot.Unix())
}
