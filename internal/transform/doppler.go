package transform

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/star/skypass/internal/earth"
)

// DopplerShift returns the frequency offset in Hz seen at the ground for a
// downlink at frequency hz. It is positive while the target approaches.
func DopplerShift(o Observation, hz float64) float64 {
	return -hz * o.RangeRate * 1000 / earth.SpeedOfLight
}

// SquintAngle returns the angle in radians between a spacecraft antenna axis
// and the line of sight to the observer. The axis is given by alat and alon
// in the orbital frame (alon measured from perigee in the orbital plane,
// alat out of it); incl, raan and argp are the osculating orbit angles.
func SquintAngle(o Observation, incl, raan, argp, alat, alon float64) float64 {
	if o.Range == 0 {
		return 0
	}

	// Orbital frame to inertial: rotate by argp, then incl, then raan.
	b := r3.Vec{
		X: math.Cos(alat) * math.Cos(alon+argp),
		Y: math.Cos(alat) * math.Sin(alon+argp),
		Z: math.Sin(alat),
	}
	c := r3.Vec{
		X: b.X,
		Y: b.Y*math.Cos(incl) - b.Z*math.Sin(incl),
		Z: b.Y*math.Sin(incl) + b.Z*math.Cos(incl),
	}
	axis := r3.Vec{
		X: c.X*math.Cos(raan) - c.Y*math.Sin(raan),
		Y: c.X*math.Sin(raan) + c.Y*math.Cos(raan),
		Z: c.Z,
	}

	return math.Acos(clamp(-r3.Dot(axis, o.RangeVec)/o.Range, -1, 1))
}
