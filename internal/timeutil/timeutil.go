// Package timeutil holds every time and locale conversion the core needs.
// Every function here is pure: no clock reads, no I/O, no logging. Callers
// pass in "now" explicitly where it matters so behavior stays testable.
package timeutil

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DefaultTimezone is the configured fallback timezone used whenever a
// clinic's own timezone is missing or invalid.
const DefaultTimezone = "Australia/Sydney"

// ErrInvalidTime is returned by CombineDateTimeLocal for civil instants that
// fall in a DST gap (the clock skips over them, so they never occur).
var ErrInvalidTime = fmt.Errorf("invalid_time")

// ErrInvalidDate is returned by ParseNaturalDate for anything outside the
// fixed grammar.
var ErrInvalidDate = fmt.Errorf("invalid_date")

// EnsureUTC interprets a naive (zero-offset-looking) instant in loc and
// returns it converted to UTC. Aware instants (non-UTC, non-zero location)
// are simply converted.
func EnsureUTC(t time.Time, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	if t.Location() == time.UTC || t.Location() == time.Local {
		// A naive instant is one whose wall-clock fields should be read in
		// the given location rather than reinterpreted.
		civil := t
		localized := time.Date(civil.Year(), civil.Month(), civil.Day(),
			civil.Hour(), civil.Minute(), civil.Second(), civil.Nanosecond(), loc)
		return localized.UTC(), nil
	}
	return t.UTC(), nil
}

// ParsePMSTime accepts ISO-8601 with either a Z suffix or a numeric offset
// and returns the UTC equivalent.
func ParsePMSTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("timeutil: malformed pms time %q", s)
}

// LocalToUTC converts clinic-local civil time to UTC.
func LocalToUTC(local time.Time, tz *time.Location) time.Time {
	civil := time.Date(local.Year(), local.Month(), local.Day(),
		local.Hour(), local.Minute(), local.Second(), local.Nanosecond(), tz)
	return civil.UTC()
}

// UTCToLocal converts a UTC instant to clinic-local civil time.
func UTCToLocal(utc time.Time, tz *time.Location) time.Time {
	return utc.In(tz)
}

// CombineDateTimeLocal constructs a UTC instant from clinic-local civil
// components. DST gaps (times that never occur) fail with ErrInvalidTime.
// DST folds (times that occur twice) resolve to the earlier offset, i.e. the
// first of the two instants. Go's time.Date does not guarantee that choice
// (for Australia/Sydney it returns the later one), so it is checked here.
func CombineDateTimeLocal(date time.Time, hour, minute int, tz *time.Location) (time.Time, error) {
	civil := time.Date(date.Year(), date.Month(), date.Day(), hour, minute, 0, 0, tz)
	// Detect a DST gap: if we ask for 02:30 during a spring-forward gap, Go
	// normalizes it to a different wall-clock time. Re-rendering the computed
	// instant back into tz and comparing catches that silently-shifted case.
	roundTrip := civil.In(tz)
	if roundTrip.Hour() != hour || roundTrip.Minute() != minute || roundTrip.Day() != date.Day() {
		return time.Time{}, ErrInvalidTime
	}
	// Detect a DST fold: if the offset an hour earlier was larger, the same
	// wall-clock time may also have occurred under that offset; prefer it.
	_, off := civil.Zone()
	if _, prevOff := civil.Add(-time.Hour).Zone(); prevOff > off {
		earlier := civil.Add(-time.Duration(prevOff-off) * time.Second).In(tz)
		if earlier.Hour() == hour && earlier.Minute() == minute && earlier.Day() == date.Day() {
			civil = earlier
		}
	}
	return civil.UTC(), nil
}

// FormatForVoice renders a UTC instant as clinic-local "3:04 PM" style text
// plus day-of-week, suitable for TTS playback.
func FormatForVoice(utc time.Time, tz *time.Location) string {
	local := utc.In(tz)
	return fmt.Sprintf("%s, %s", local.Format("Monday"), formatClockTime(local))
}

func formatClockTime(t time.Time) string {
	hour := t.Hour() % 12
	if hour == 0 {
		hour = 12
	}
	ampm := "AM"
	if t.Hour() >= 12 {
		ampm = "PM"
	}
	return fmt.Sprintf("%d:%02d %s", hour, t.Minute(), ampm)
}

// ClinicTimezoneSource is the minimal clinic shape GetClinicTimezone needs,
// decoupled from internal/clinic to avoid an import cycle.
type ClinicTimezoneSource interface {
	GetTimezone() string
}

// Warner receives a warning when a clinic timezone falls back to the default.
type Warner interface {
	Warn(msg string, args ...any)
}

// GetClinicTimezone resolves a clinic's IANA timezone, falling back to
// DefaultTimezone (and logging a warning) when the stored value is missing
// or cannot be loaded.
func GetClinicTimezone(clinic ClinicTimezoneSource, logger Warner) *time.Location {
	name := ""
	if clinic != nil {
		name = strings.TrimSpace(clinic.GetTimezone())
	}
	if name == "" {
		if logger != nil {
			logger.Warn("clinic timezone missing, falling back to default", "default_tz", DefaultTimezone)
		}
		loc, _ := time.LoadLocation(DefaultTimezone)
		return loc
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		if logger != nil {
			logger.Warn("clinic timezone invalid, falling back to default", "timezone", name, "default_tz", DefaultTimezone, "error", err)
		}
		loc, _ = time.LoadLocation(DefaultTimezone)
		return loc
	}
	return loc
}

// ClampMaxDays clamps a find-next-available day horizon to [1, 30], treating
// an explicit 0 as "no search" (caller must special-case that).
func ClampMaxDays(requested int) int {
	if requested <= 0 {
		return 0
	}
	if requested > 30 {
		return 30
	}
	return requested
}

// SplitAvailabilitySpan splits [from, to] into consecutive windows no wider
// than 7 days, matching the PMS's documented per-request span limit.
func SplitAvailabilitySpan(from, to time.Time) [][2]time.Time {
	const maxSpan = 7 * 24 * time.Hour
	var spans [][2]time.Time
	cursor := from
	for cursor.Before(to) || cursor.Equal(to) {
		end := cursor.Add(maxSpan - 24*time.Hour)
		if end.After(to) {
			end = to
		}
		spans = append(spans, [2]time.Time{cursor, end})
		cursor = end.AddDate(0, 0, 1)
	}
	return spans
}

// ParseNaturalDate implements the fixed grammar: literal YYYY-MM-DD; the
// tokens "today" and "tomorrow"; weekday names resolving to the next
// occurrence strictly in the future; and "next <weekday>" meaning "the
// occurrence >=7 days away". now must already be in clinic-local civil time.
func ParseNaturalDate(input string, now time.Time) (time.Time, error) {
	token := strings.ToLower(strings.TrimSpace(input))
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	switch token {
	case "today":
		return today, nil
	case "tomorrow":
		return today.AddDate(0, 0, 1), nil
	}

	if strings.HasPrefix(token, "next ") {
		weekday := strings.TrimSpace(strings.TrimPrefix(token, "next "))
		wd, ok := parseWeekday(weekday)
		if !ok {
			return time.Time{}, ErrInvalidDate
		}
		return nextWeekdayAtLeast(today, wd, 7), nil
	}

	if wd, ok := parseWeekday(token); ok {
		return nextWeekdayAtLeast(today, wd, 1), nil
	}

	if t, err := time.ParseInLocation("2006-01-02", token, now.Location()); err == nil {
		return t, nil
	}

	return time.Time{}, ErrInvalidDate
}

func nextWeekdayAtLeast(today time.Time, wd time.Weekday, minDays int) time.Time {
	for offset := minDays; ; offset++ {
		candidate := today.AddDate(0, 0, offset)
		if candidate.Weekday() == wd {
			return candidate
		}
	}
}

func parseWeekday(s string) (time.Weekday, bool) {
	switch s {
	case "sunday":
		return time.Sunday, true
	case "monday":
		return time.Monday, true
	case "tuesday":
		return time.Tuesday, true
	case "wednesday":
		return time.Wednesday, true
	case "thursday":
		return time.Thursday, true
	case "friday":
		return time.Friday, true
	case "saturday":
		return time.Saturday, true
	default:
		return 0, false
	}
}

// FormatDateOnly renders a civil date as PMS-expected YYYY-MM-DD.
func FormatDateOnly(t time.Time) string {
	return t.Format("2006-01-02")
}

// ParseDateOnly parses a PMS-style YYYY-MM-DD date in the given location.
func ParseDateOnly(s string, loc *time.Location) (time.Time, error) {
	return time.ParseInLocation("2006-01-02", strings.TrimSpace(s), loc)
}

// ParseClockTime parses "HH:MM" 24-hour clock text into hour/minute ints.
func ParseClockTime(s string) (hour, minute int, err error) {
	parts := strings.SplitN(strings.TrimSpace(s), ":", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("timeutil: malformed clock time %q", s)
	}
	hour, err = strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, fmt.Errorf("timeutil: malformed hour in %q: %w", s, err)
	}
	minute, err = strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, fmt.Errorf("timeutil: malformed minute in %q: %w", s, err)
	}
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("timeutil: clock time out of range %q", s)
	}
	return hour, minute, nil
}
