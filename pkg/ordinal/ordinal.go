// Package ordinal converts between calendar dates and ordinal days.
//
// An ordinal day counts days in the proleptic Gregorian calendar with
// 0001-01-01 as day 1. Acquisition dates are carried as ordinal days so that
// they are strictly comparable integers and can be fed to the harmonic model
// directly.
package ordinal

import (
	"fmt"
	"math"
	"time"

	"github.com/soniakeys/meeus/v3/julian"
)

// jdEpoch is the Julian day at 0h of ordinal day 0 (0000-12-31).
const jdEpoch = 1721424.5

// FromCalendar returns the ordinal day of a Gregorian calendar date.
func FromCalendar(year, month, day int) int {
	return int(math.Round(julian.CalendarGregorianToJD(year, month, float64(day)) - jdEpoch))
}

// FromYearDOY returns the ordinal day of a year and 1-based day of year, the
// date encoding used in Landsat scene ids.
func FromYearDOY(year, doy int) (int, error) {
	leap := julian.LeapYearGregorian(year)
	days := 365
	if leap {
		days = 366
	}
	if doy < 1 || doy > days {
		return 0, fmt.Errorf("day of year %d out of range for %d", doy, year)
	}
	m, d := julian.DayOfYearToCalendar(doy, leap)
	return FromCalendar(year, m, d), nil
}

// FromTime returns the ordinal day containing t (in UTC).
func FromTime(t time.Time) int {
	t = t.UTC()
	return FromCalendar(t.Year(), int(t.Month()), t.Day())
}

// ToTime returns midnight UTC of the ordinal day.
func ToTime(day int) time.Time {
	return julian.JDToTime(float64(day) + jdEpoch)
}

// ToYearDOY splits an ordinal day back into year and day of year.
func ToYearDOY(day int) (year, doy int) {
	t := ToTime(day)
	return t.Year(), t.YearDay()
}

// Format renders an ordinal day as YYYY-MM-DD.
func Format(day int) string {
	return ToTime(day).Format("2006-01-02")
}

// Parse accepts either YYYY-MM-DD or a bare ordinal day number.
func Parse(s string) (int, error) {
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return FromTime(t), nil
	}
	var day int
	if _, err := fmt.Sscanf(s, "%d", &day); err != nil || fmt.Sprint(day) != s {
		return 0, fmt.Errorf("unrecognized date %q: want YYYY-MM-DD or an ordinal day", s)
	}
	return day, nil
}
