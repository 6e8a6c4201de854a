package jobs

import (
	"fmt"
	"strings"
	"time"
)

const niceTimeLayout = "Jan 2, 2006 at 15:04:05"

// NiceTime formats an epoch millisecond timestamp for status lines.
func NiceTime(ms int64, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return time.UnixMilli(ms).In(loc).Format(niceTimeLayout)
}

type durationUnit struct {
	name string
	size time.Duration
}

var durationUnits = []durationUnit{
	{"day", 24 * time.Hour},
	{"hour", time.Hour},
	{"minute", time.Minute},
	{"second", time.Second},
}

// NiceDuration formats d in coarse units using at most the two largest non-zero
// units, e.g. "2 hours, 3 minutes". Negative durations yield "".
func NiceDuration(d time.Duration) string {
	if d < 0 {
		return ""
	}
	if d < time.Second {
		return "less than a second"
	}

	var parts []string
	for _, u := range durationUnits {
		n := int64(d / u.size)
		if n == 0 {
			if len(parts) > 0 {
				break
			}
			continue
		}
		d -= time.Duration(n) * u.size
		parts = append(parts, plural(n, u.name))
		if len(parts) == 2 {
			break
		}
	}
	return strings.Join(parts, ", ")
}

func plural(n int64, unit string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", unit)
	}
	return fmt.Sprintf("%d %ss", n, unit)
}
