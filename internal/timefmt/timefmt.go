// Package timefmt turns device-local time and calendar API timestamps into
// display strings and query bounds.
//
// The formatters work on broken-down fields: a time.Time is read through its
// own Location and printed with a literal "Z", matching what the calendar
// queries have always sent. No zone conversion happens here.
package timefmt

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// RolloverMode controls how EndOfDayBound handles the last day of a month.
type RolloverMode int

const (
	// RolloverLegacy increments the day-of-month field without normalizing
	// it, so 2024-01-31 yields "2024-01-32T04:59:59Z".
	RolloverLegacy RolloverMode = iota
	// RolloverNormalize carries the overflow into month and year.
	RolloverNormalize
)

// End-of-day cutoff: midnight US Eastern expressed as 04:59:59 UTC.
const (
	cutoffHour   = 4
	cutoffMinute = 59
	cutoffSecond = 59
)

// ToRFC3339 zero-pads the broken-down fields of t as YYYY-MM-DDTHH:MM:SSZ.
func ToRFC3339(t time.Time) string {
	return formatFields(t.Year(), int(t.Month()), t.Day(), t.Hour(), t.Minute(), t.Second())
}

// EndOfDayBound returns the upper bound for "events today" queries: the
// next calendar day at 04:59:59.
func EndOfDayBound(t time.Time, mode RolloverMode) string {
	if mode == RolloverNormalize {
		next := time.Date(t.Year(), t.Month(), t.Day()+1, cutoffHour, cutoffMinute, cutoffSecond, 0, t.Location())
		return ToRFC3339(next)
	}
	return formatFields(t.Year(), int(t.Month()), t.Day()+1, cutoffHour, cutoffMinute, cutoffSecond)
}

// IsValidBound reports whether the date part of an EndOfDayBound result is
// a real calendar date. Legacy bounds on the last day of a month are not.
func IsValidBound(bound string) bool {
	_, err := time.Parse("2006-01-02T15:04:05Z", bound)
	return err == nil
}

func formatFields(year, month, day, hour, min, sec int) string {
	return fmt.Sprintf("%04d-%02d-%02dT%02d:%02d:%02dZ", year, month, day, hour, min, sec)
}

// EventTime extracts HH:MM from an ISO-8601 date-time such as
// "2023-05-01T14:30:00-04:00", "2023-05-01T09:00:00Z" or
// "2023-05-01T09:00:00.000+02:00".
func EventTime(iso string) (string, error) {
	_, clock, ok := strings.Cut(iso, "T")
	if !ok {
		return "", fmt.Errorf("timefmt: %q has no time part", iso)
	}
	if i := strings.IndexAny(clock, "Z+-"); i >= 0 {
		clock = clock[:i]
	}

	parts := strings.Split(clock, ":")
	if len(parts) < 2 {
		return "", fmt.Errorf("timefmt: %q has no HH:MM", iso)
	}
	hours, err := strconv.Atoi(parts[0])
	if err != nil || hours < 0 || hours > 23 {
		return "", fmt.Errorf("timefmt: bad hour in %q", iso)
	}
	minutes, err := strconv.Atoi(parts[1])
	if err != nil || minutes < 0 || minutes > 59 {
		return "", fmt.Errorf("timefmt: bad minute in %q", iso)
	}
	return fmt.Sprintf("%02d:%02d", hours, minutes), nil
}

// weekdays is indexed Monday-first, like a broken-down tm_wday on the
// device RTC.
var weekdays = [7]string{
	"Monday",
	"Tuesday",
	"Wednesday",
	"Thursday",
	"Friday",
	"Saturday",
	"Sunday",
}

// months is 1-indexed; index 0 is unused.
var months = [13]string{
	"",
	"Jan", "Feb", "Mar", "Apr", "May", "Jun",
	"Jul", "Aug", "Sep", "Oct", "Nov", "Dec",
}

func init() {
	for i, name := range weekdays {
		if name == "" {
			panic(fmt.Sprintf("timefmt: weekday %d has no name", i))
		}
	}
	for i := 1; i < len(months); i++ {
		if len(months[i]) != 3 {
			panic(fmt.Sprintf("timefmt: month %d name %q is not 3 letters", i, months[i]))
		}
	}
}

var (
	ErrWeekday = errors.New("timefmt: weekday index out of range")
	ErrMonth   = errors.New("timefmt: month out of range")
)

// PrettyDate formats the header date as "<Weekday> <Mon> DD, YYYY " (the
// trailing space is part of the layout). weekday is 0 for Monday; month is
// 1-indexed.
func PrettyDate(weekday, month, day, year int) (string, error) {
	if weekday < 0 || weekday >= len(weekdays) {
		return "", fmt.Errorf("%w: %d", ErrWeekday, weekday)
	}
	if month < 1 || month >= len(months) {
		return "", fmt.Errorf("%w: %d", ErrMonth, month)
	}
	return fmt.Sprintf("%s %s %02d, %04d ", weekdays[weekday], months[month], day, year), nil
}

// WeekdayIndex converts Go's Sunday-first weekday to the Monday-first index
// PrettyDate expects.
func WeekdayIndex(d time.Weekday) int {
	return (int(d) + 6) % 7
}

// PrettyDateOf is PrettyDate for a time.Time.
func PrettyDateOf(t time.Time) string {
	// Fields of a valid time.Time are always in range.
	s, _ := PrettyDate(WeekdayIndex(t.Weekday()), int(t.Month()), t.Day(), t.Year())
	return s
}
