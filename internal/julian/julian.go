// Package julian converts between wall-clock time and the continuous day
// count used throughout the propagation core.
//
// A Date counts days since 1979-12-31 00:00:00 UTC. Leap seconds are not
// modelled and all calendar input is taken as UTC.
package julian

import (
	"math"
	"time"

	meeusjulian "github.com/soniakeys/meeus/v3/julian"
)

// Date is a continuous day count since 1979-12-31 00:00:00 UTC.
type Date float64

const (
	// Offset is the Julian date of Date(0).
	Offset = 2444238.5

	unixEpochJD   = 2440587.5
	secondsPerDay = 86400.0
)

// FromTime converts t to a Date.
func FromTime(t time.Time) Date {
	return FromJD(meeusjulian.TimeToJD(t.UTC()))
}

// FromJD converts a Julian date to a Date.
func FromJD(jd float64) Date {
	return Date(jd - Offset)
}

// FromUnix converts Unix seconds to a Date.
func FromUnix(sec int64) Date {
	return FromJD(float64(sec)/secondsPerDay + unixEpochJD)
}

// FromUnixMilli converts Unix milliseconds to a Date.
func FromUnixMilli(ms int64) Date {
	return FromJD(float64(ms)/(1000*secondsPerDay) + unixEpochJD)
}

// JD returns the Julian date.
func (d Date) JD() float64 {
	return float64(d) + Offset
}

// Unix returns Unix seconds rounded to the nearest second. Dates on or
// before the Unix epoch return 0.
func (d Date) Unix() int64 {
	jd := d.JD()
	if jd <= unixEpochJD {
		return 0
	}
	return int64(math.Round((jd - unixEpochJD) * secondsPerDay))
}

// UnixMilli returns Unix milliseconds, clamped like Unix.
func (d Date) UnixMilli() int64 {
	jd := d.JD()
	if jd <= unixEpochJD {
		return 0
	}
	return int64(math.Round((jd - unixEpochJD) * 1000 * secondsPerDay))
}

// Time returns the UTC wall-clock time, rounded to the millisecond.
func (d Date) Time() time.Time {
	ms := math.Round((d.JD() - unixEpochJD) * 1000 * secondsPerDay)
	return time.UnixMilli(int64(ms)).UTC()
}

// Add returns d advanced by dur.
func (d Date) Add(dur time.Duration) Date {
	return d + Date(dur.Seconds()/secondsPerDay)
}

// Sub returns the duration d-u.
func (d Date) Sub(u Date) time.Duration {
	return time.Duration(float64(d-u) * secondsPerDay * float64(time.Second))
}

// Before reports whether d is earlier than u.
func (d Date) Before(u Date) bool { return d < u }

// EpochJD returns the Julian date of a TLE epoch given its full year and
// fractional day of year (day 1.0 is January 1st, 00:00 UTC).
func EpochJD(year int, dayOfYear float64) float64 {
	return meeusjulian.CalendarGregorianToJD(year, 1, dayOfYear)
}
