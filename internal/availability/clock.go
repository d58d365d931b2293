package availability

import (
	"fmt"
	"strconv"
	"time"

	"github.com/hackgods/therapy-scheduling/internal/apperr"
)

// Clock is a wall-clock time of day in minutes since midnight.
type Clock int

const minutesPerDay = 24 * 60

// ParseClock parses a 24h "HH:MM" string.
func ParseClock(s string) (Clock, error) {
	if len(s) != 5 || s[2] != ':' || !digits(s[:2]) || !digits(s[3:]) {
		return 0, apperr.Validation("invalid time %q, want HH:MM", s)
	}
	h, _ := strconv.Atoi(s[:2])
	m, _ := strconv.Atoi(s[3:])
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, apperr.Validation("invalid time %q, out of range", s)
	}
	return Clock(h*60 + m), nil
}

// ClockOf returns the wall-clock time of t in t's own location.
func ClockOf(t time.Time) Clock {
	return Clock(t.Hour()*60 + t.Minute())
}

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", int(c)/60, int(c)%60)
}

func (c Clock) Valid() bool {
	return c >= 0 && c < minutesPerDay
}

func digits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
