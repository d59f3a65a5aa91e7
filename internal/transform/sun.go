package transform

import (
	"math"

	"github.com/soniakeys/meeus/v3/base"
	"github.com/soniakeys/meeus/v3/solar"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/star/skypass/internal/earth"
)

// SunPosition returns the geocentric position of the Sun in km, in the
// equatorial frame of date, for Julian date jd.
func SunPosition(jd float64) r3.Vec {
	ra, dec := solar.ApparentEquatorial(jd)
	dist := solar.Radius(base.J2000Century(jd)) * earth.AstronomicalUnit
	return r3.Vec{
		X: dist * dec.Cos() * ra.Cos(),
		Y: dist * dec.Cos() * ra.Sin(),
		Z: dist * dec.Sin(),
	}
}

// SunRADec returns the apparent right ascension and declination of the Sun
// in radians.
func SunRADec(jd float64) (ra, dec float64) {
	a, d := solar.ApparentEquatorial(jd)
	return a.Rad(), d.Rad()
}

// Eclipse reports whether a satellite at pos (km, ECI) is in the Earth's
// shadow given the Sun at sun (km, ECI). Depth is the angular margin in
// radians by which the Sun's disc is covered; it is negative when sunlit.
func Eclipse(pos, sun r3.Vec) (eclipsed bool, depth float64) {
	r := r3.Norm(pos)
	sdEarth := math.Asin(math.Min(earth.XKMPER/r, 1))

	rho := r3.Sub(sun, pos)
	sdSun := math.Asin(math.Min(earth.SolarRadiusKm/r3.Norm(rho), 1))

	earthDir := r3.Scale(-1, pos)
	delta := angleBetween(rho, earthDir)

	depth = sdEarth - sdSun - delta
	if sdEarth < sdSun {
		return false, depth
	}
	return depth >= 0, depth
}

// angleBetween returns the angle between two vectors, guarded against
// rounding just outside [-1, 1].
func angleBetween(a, b r3.Vec) float64 {
	c := r3.Dot(a, b) / (r3.Norm(a) * r3.Norm(b))
	return math.Acos(clamp(c, -1, 1))
}

func clamp(x, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, x))
}
