// Package earth holds the geophysical constants shared by the element
// parser, the propagators and the observer geometry.
//
// The propagators use the WGS-72 values the SGP4/SDP4 theory was fitted
// with. Observer geometry and the eclipse test use WGS-84.
package earth

import "math"

// WGS-72 gravity model (SGP4/SDP4).
const (
	XKE       = 7.43669161e-2 // sqrt(GM) in earth radii^1.5 / min
	CK2       = 5.413080e-4   // 0.5 * J2 * ae^2
	CK4       = 6.209887e-7   // -0.375 * J4 * ae^4
	J3        = -2.53881e-6   // third zonal harmonic
	QOMS2T    = 1.880279e-9   // (q0 - s)^4, earth radii^4
	S         = 1.012229      // density function parameter, earth radii
	XKMPER    = 6378.135      // equatorial radius, km
	AE        = 1.0           // distance units per earth radius
	A3OVK2    = -J3 / CK2 * AE * AE * AE
	E6A       = 1.0e-6 // Kepler convergence tolerance
	TwoThirds = 2.0 / 3.0
)

// WGS-84 ellipsoid, used for observers.
const (
	RadiusKm   = 6378.137
	Flattening = 3.35281066474748e-3
)

// Time and rotation.
const (
	MinutesPerDay           = 1440.0
	SecondsPerDay           = 86400.0
	RotationsPerSiderealDay = 1.00273790934
	// AngularVelocity is the rotation rate in rad/s.
	AngularVelocity = 7.292115e-5
)

// Sun and light.
const (
	SolarRadiusKm    = 6.96e5
	AstronomicalUnit = 1.49597870691e8 // km
	SpeedOfLight     = 2.99792458e8    // m/s
)

// TwoPi is 2π.
const TwoPi = 2 * math.Pi

// Mod2Pi reduces x to [0, 2π).
func Mod2Pi(x float64) float64 {
	r := math.Mod(x, TwoPi)
	if r < 0 {
		r += TwoPi
	}
	return r
}

// Deg converts radians to degrees.
func Deg(rad float64) float64 { return rad * 180.0 / math.Pi }

// Rad converts degrees to radians.
func Rad(deg float64) float64 { return deg * math.Pi / 180.0 }
