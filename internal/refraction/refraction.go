// Package refraction corrects topocentric elevations for atmospheric
// bending. Optical corrections follow Meeus (Astronomical Algorithms,
// ch. 16); the radio correction follows ITU-R P.834-7. All angles are
// radians and every function is pure: an Observation passed in is never
// modified.
package refraction

import (
	"math"

	"github.com/soniakeys/meeus/v3/refraction"
	"github.com/soniakeys/unit"

	"github.com/star/skypass/internal/transform"
)

// Below this true elevation the optical formulas diverge and no
// correction is applied.
var minElevation = unit.AngleFromDeg(-1).Rad()

// Conditions describes the air at the observer. The zero value means
// standard conditions.
type Conditions struct {
	PressureKPa  float64
	TemperatureC float64
}

// Standard is 101 kPa at 10 °C, the atmosphere the optical formulas are
// fitted to.
var Standard = Conditions{PressureKPa: 101, TemperatureC: 10}

// factor scales a standard-atmosphere refraction to c.
func (c Conditions) factor() float64 {
	if c == (Conditions{}) {
		return 1
	}
	return 283 * c.PressureKPa / (101 * (273 + c.TemperatureC))
}

// Optical returns the refraction to add to the true elevation el in
// standard conditions.
func Optical(el float64) float64 {
	if el < minElevation {
		return 0
	}
	return refraction.Saemundsson(unit.Angle(el)).Rad()
}

// OpticalAt is Optical scaled to c.
func OpticalAt(el float64, c Conditions) float64 {
	return c.factor() * Optical(el)
}

// FromApparent returns the refraction to subtract from an apparent
// (observed) elevation to recover the true one.
func FromApparent(apparent float64) float64 {
	if apparent < minElevation {
		return 0
	}
	return refraction.Bennett(unit.Angle(apparent)).Rad()
}

// FromApparentAt is FromApparent scaled to c.
func FromApparentAt(apparent float64, c Conditions) float64 {
	return c.factor() * FromApparent(apparent)
}

// Rate returns the time derivative of Optical for an elevation moving at
// rate (rad/s).
func Rate(el, rate float64) float64 {
	if el < minElevation {
		return 0
	}
	h := unit.Angle(el).Deg()
	u := unit.AngleFromDeg(h + 10.3/(h+5.11)).Rad()
	s := math.Sin(u)
	// dR/dh in arcminutes per degree, then rad/rad.
	d := -1.02 / (s * s) * (math.Pi / 180) * (1 - 10.3/((h+5.11)*(h+5.11)))
	return d / 60 * rate
}

// RateAt is Rate scaled to c.
func RateAt(el, rate float64, c Conditions) float64 {
	return c.factor() * Rate(el, rate)
}

// Apparent returns the elevation an optical observer sees for the true
// elevation el. Corrections that would leave the target below the horizon
// are dropped.
func Apparent(el float64, c Conditions) float64 {
	a := el + OpticalAt(el, c)
	if a < 0 {
		return el
	}
	return a
}

// ApparentRate returns the rate of change of Apparent.
func ApparentRate(el, rate float64, c Conditions) float64 {
	return rate + RateAt(el, rate, c)
}

// Radio returns the ITU-R P.834-7 refraction for elevation el seen from an
// observer altitude in meters. visible is false when the ray is bent back
// into the ground, in which case the correction is zero.
func Radio(el, altitude float64) (corr float64, visible bool) {
	h := altitude / 1000
	d := unit.Angle(el).Deg()

	thetaM := -0.875 * math.Sqrt(math.Max(h, 0))
	tau := 1 / (1.314 + 0.6437*d + 0.02869*d*d +
		h*(0.2305+0.09428*d+0.01096*d*d) +
		h*h*0.008583)
	if thetaM-tau > d {
		return 0, false
	}

	r := 1 / (1.728 + 0.5411*d + 0.03723*d*d +
		h*(0.1815+0.06272*d+0.01380*d*d) +
		h*h*(0.01727+0.008288*d))
	return unit.AngleFromDeg(r).Rad(), true
}

// Corrected is an Observation with its refraction-corrected elevations.
type Corrected struct {
	transform.Observation
	Apparent     float64 // optical, rad
	ApparentRate float64 // rad/s
	Radio        float64 // rad
	RadioVisible bool
}

// Correct applies the optical and radio corrections for obs to o and
// returns them alongside a copy of o.
func Correct(o transform.Observation, obs transform.Observer, c Conditions) Corrected {
	rc, vis := Radio(o.Elevation, obs.Altitude)
	return Corrected{
		Observation:  o,
		Apparent:     Apparent(o.Elevation, c),
		ApparentRate: ApparentRate(o.Elevation, o.ElevationRate, c),
		Radio:        o.Elevation + rc,
		RadioVisible: vis,
	}
}
