package dialing

import (
	"time"

	"github.com/acme/lead-contact-engine/internal/domain"
)

func withinCallingHours(now time.Time, rule domain.DialingRule) bool {
	if len(rule.CallingHours) == 0 {
		return true
	}

	local := now.In(rule.Location())
	minuteOfDay := domain.TimeOfDay(local.Hour()*60 + local.Minute())
	weekday := local.Weekday()

	for _, window := range rule.CallingHours {
		if window.End <= window.Start {
			// window spans midnight
			nextDay := time.Weekday((int(window.DayOfWeek) + 1) % 7)
			if window.DayOfWeek == weekday && minuteOfDay >= window.Start {
				return true
			}
			if nextDay == weekday && minuteOfDay < window.End {
				return true
			}
			continue
		}

		if window.DayOfWeek != weekday {
			continue
		}

		if minuteOfDay >= window.Start && minuteOfDay < window.End {
			return true
		}
	}

	return false
}

// nextCallingWindow finds the earliest window opening after now within a week.
func nextCallingWindow(now time.Time, rule domain.DialingRule) (time.Time, bool) {
	loc := rule.Location()
	local := now.In(loc)
	var (
		best  time.Time
		found bool
	)
	for offset := 0; offset <= 7; offset++ {
		day := local.AddDate(0, 0, offset)
		for _, window := range rule.CallingHours {
			if window.DayOfWeek != day.Weekday() {
				continue
			}
			opens := window.Start.On(day, loc)
			if !opens.After(now) {
				continue
			}
			if !found || opens.Before(best) {
				best, found = opens, true
			}
		}
		if found {
			break
		}
	}
	return best, found
}
