package transform

import (
	"math"
	"time"

	"github.com/soniakeys/meeus/v3/coord"
	"github.com/soniakeys/meeus/v3/moonposition"
	"github.com/soniakeys/meeus/v3/nutation"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/star/skypass/internal/earth"
	"github.com/star/skypass/internal/julian"
)

// moonRateStep is the half-interval used to difference the Moon's velocity.
const moonRateStep = 30 * time.Second

// MoonRADec returns the apparent geocentric right ascension and declination
// of the Moon in radians, and its distance in km.
func MoonRADec(jd float64) (ra, dec, dist float64) {
	lon, lat, dist := moonposition.Position(jd)
	dpsi, deps := nutation.Nutation(jd)
	eps := nutation.MeanObliquity(jd) + deps
	a, d := coord.EclToEq(lon+dpsi, lat, eps.Sin(), eps.Cos())
	return a.Rad(), d.Rad(), dist
}

// MoonPosition returns the geocentric position of the Moon in km, in the
// equatorial frame of date.
func MoonPosition(jd float64) r3.Vec {
	ra, dec, dist := MoonRADec(jd)
	return r3.Vec{
		X: dist * math.Cos(dec) * math.Cos(ra),
		Y: dist * math.Cos(dec) * math.Sin(ra),
		Z: dist * math.Sin(dec),
	}
}

// MoonGHA returns the Greenwich hour angle of the Moon in radians, [0, 2π).
func MoonGHA(t julian.Date) float64 {
	jd := t.JD()
	ra, _, _ := MoonRADec(jd)
	return earth.Mod2Pi(ThetaG(jd) - ra)
}

// ObserveMoon returns the Moon as seen from obs, with topocentric parallax
// and range rate.
func ObserveMoon(obs Observer, t julian.Date) Observation {
	before := MoonPosition(t.Add(-moonRateStep).JD())
	after := MoonPosition(t.Add(moonRateStep).JD())
	vel := r3.Scale(1/(2*moonRateStep.Seconds()), r3.Sub(after, before))
	return Observe(obs, t, MoonPosition(t.JD()), vel, false)
}
