// Package transform turns propagated ECI state vectors into the quantities a
// ground station cares about: geodetic sub-satellite points, topocentric look
// angles and their rates, sun geometry, and earth-fixed coordinates for
// serialized output.
//
// The propagators emit TEME (True Equator Mean Equinox) vectors. The
// earth-fixed rotation here uses GMST only (TEME → PEF ≈ ECEF), ignoring
// polar motion and the equation of the equinoxes. The error is ~50 m at
// most, well under the accuracy of the element sets themselves.
//
// Reference: Vallado, "Fundamentals of Astrodynamics and Applications", Ch. 3.
package transform

import (
	"math"
	"time"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/star/skypass/internal/earth"
)

// PositionECEF represents a satellite position and velocity in the ECEF frame.
type PositionECEF struct {
	X, Y, Z    float64 // meters
	VX, VY, VZ float64 // m/s
}

// TEMEToECEF transforms a TEME position/velocity to ECEF at the given UTC time.
// Input: TEME in km and km/s.
// Output: ECEF in meters and m/s.
func TEMEToECEF(pos, vel r3.Vec, t time.Time) PositionECEF {
	return TEMEToECEFWithGMST(pos, vel, GMST(t))
}

// TEMEToECEFWithGMST transforms TEME to ECEF using a precomputed GMST angle
// (radians), so a whole catalog at one instant shares a single GMST.
//
//	r_ECEF = R3(θ) · r_TEME
//	v_ECEF = R3(θ) · v_TEME − ω × r_ECEF
func TEMEToECEFWithGMST(pos, vel r3.Vec, gmst float64) PositionECEF {
	p := rotateZ(pos, gmst)
	v := rotateZ(vel, gmst)

	// ω × r_ECEF = [-ω*y, ω*x, 0]
	v.X += earth.AngularVelocity * p.Y
	v.Y -= earth.AngularVelocity * p.X

	p = r3.Scale(1000, p)
	v = r3.Scale(1000, v)
	return PositionECEF{X: p.X, Y: p.Y, Z: p.Z, VX: v.X, VY: v.Y, VZ: v.Z}
}

// rotateZ applies R3(θ), the frame rotation about the Z axis.
func rotateZ(v r3.Vec, theta float64) r3.Vec {
	c, s := math.Cos(theta), math.Sin(theta)
	return r3.Vec{
		X: v.X*c + v.Y*s,
		Y: -v.X*s + v.Y*c,
		Z: v.Z,
	}
}

// ValidateECEF checks that an ECEF position is physically reasonable for an
// Earth-orbiting satellite: finite, and between 6200 km and 500000 km from
// the centre, which admits highly eccentric deep-space orbits.
func ValidateECEF(pos PositionECEF) bool {
	for _, c := range []float64{pos.X, pos.Y, pos.Z} {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return false
		}
	}

	mag := math.Sqrt(pos.X*pos.X + pos.Y*pos.Y + pos.Z*pos.Z)

	const minRadius = 6200.0 * 1000.0
	const maxRadius = 500000.0 * 1000.0

	return mag >= minRadius && mag <= maxRadius
}
