package schedule

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"rosterbot/pkg/logx"
)

// Clock is a local wall-clock target, HH:MM.
type Clock struct {
	Hour   int
	Minute int
}

// Documented fallbacks used when a guild's "at" string is malformed. A bad
// value must never stop the other guilds from being evaluated, so parsing
// degrades to these instead of erroring.
var (
	DefaultPostClock     = Clock{Hour: 8}
	DefaultMiddayClock   = Clock{Hour: 12}
	DefaultCloseClock    = Clock{Hour: 17}
	DefaultWeeklyClock   = Clock{Hour: 22}
	DefaultNickSyncClock = Clock{Hour: 4}
)

func (c Clock) Minutes() int { return c.Hour*60 + c.Minute }

func (c Clock) String() string { return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute) }

// ParseClock parses "HH:MM". Any malformed or out-of-range input returns
// fallback; an empty string is the common "not configured" case.
func ParseClock(raw string, fallback Clock) Clock {
	parts := strings.Split(strings.TrimSpace(raw), ":")
	if len(parts) != 2 {
		return fallback
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return fallback
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return fallback
	}
	return Clock{Hour: h, Minute: m}
}

// Within reports whether now falls inside the closed firing window
// [target, target+grace] under same-day minute arithmetic.
//
// The window does not wrap across midnight: a 23:55 target with a
// 10-minute grace stops matching after 23:59. Known limitation, kept
// deliberately; fixing it silently would change fire-once slot semantics.
func (c Clock) Within(now time.Time, graceMinutes int) bool {
	if graceMinutes < 0 {
		graceMinutes = 0
	}
	nowOff := now.Hour()*60 + now.Minute()
	target := c.Minutes()
	return target <= nowOff && nowOff <= target+graceMinutes
}

// Location resolves an IANA timezone name, falling back to UTC so one
// guild's typo cannot take its schedule (or anyone else's) down.
func Location(tz string, log logx.Logger) *time.Location {
	tz = strings.TrimSpace(tz)
	if tz == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		if !log.IsZero() {
			log.Warn("invalid timezone, falling back to UTC", logx.String("tz", tz))
		}
		return time.UTC
	}
	return loc
}
