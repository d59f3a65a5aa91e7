package transform

import (
	"math"
	"time"

	"github.com/star/skypass/internal/earth"
	"github.com/star/skypass/internal/julian"
)

// j2000 is the Julian Date of the J2000.0 epoch (January 1, 2000, 12:00:00 TT).
const j2000 = 2451545.0

// ThetaG returns the Greenwich mean sidereal angle in radians for a Julian
// date, using the IAU-82 model (1992 Astronomical Almanac, page B6).
//
// The day fraction is split off first so the large secular term is
// evaluated at 0h UT, which keeps the result precise for modern dates.
func ThetaG(jd float64) float64 {
	ut := jd + 0.5
	ut -= math.Floor(ut)
	tu := (jd - ut - j2000) / 36525.0

	gmst := 24110.54841 + tu*(8640184.812866+tu*(0.093104-tu*6.2e-6))
	gmst = math.Mod(gmst+earth.SecondsPerDay*earth.RotationsPerSiderealDay*ut, earth.SecondsPerDay)
	if gmst < 0 {
		gmst += earth.SecondsPerDay
	}
	return earth.TwoPi * gmst / earth.SecondsPerDay
}

// GMST calculates Greenwich Mean Sidereal Time in radians for a UTC time.
func GMST(t time.Time) float64 {
	return ThetaG(julian.FromTime(t).JD())
}

// LocalSidereal returns the local mean sidereal angle for an east longitude
// in radians, reduced to [0, 2π).
func LocalSidereal(jd, lon float64) float64 {
	return earth.Mod2Pi(ThetaG(jd) + lon)
}
