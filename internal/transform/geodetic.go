package transform

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/star/skypass/internal/earth"
)

// Geodetic is a point on or above the reference ellipsoid.
type Geodetic struct {
	Latitude  float64 // radians, north positive
	Longitude float64 // radians, east positive, in (-π, π]
	Altitude  float64 // km above the ellipsoid
}

const (
	geodeticTolerance = 1e-10
	geodeticMaxIter   = 10
)

// GeodeticFromECI converts an ECI position (km) at Julian date jd to the
// sub-satellite point. Latitude is solved iteratively on the ellipsoid and
// converges in a handful of steps for any orbit.
func GeodeticFromECI(pos r3.Vec, jd float64) Geodetic {
	const e2 = earth.Flattening * (2 - earth.Flattening)

	lon := earth.Mod2Pi(math.Atan2(pos.Y, pos.X) - ThetaG(jd))
	if lon > math.Pi {
		lon -= earth.TwoPi
	}

	r := math.Hypot(pos.X, pos.Y)
	lat := math.Atan2(pos.Z, r)
	var c float64
	for i := 0; i < geodeticMaxIter; i++ {
		phi := lat
		sinPhi := math.Sin(phi)
		c = 1 / math.Sqrt(1-e2*sinPhi*sinPhi)
		lat = math.Atan2(pos.Z+earth.RadiusKm*c*e2*sinPhi, r)
		if math.Abs(lat-phi) < geodeticTolerance {
			break
		}
	}

	var alt float64
	if cosLat := math.Cos(lat); math.Abs(cosLat) > 1e-10 {
		alt = r/cosLat - earth.RadiusKm*c
	} else {
		alt = math.Abs(pos.Z) - earth.RadiusKm*c*(1-e2)
	}

	return Geodetic{Latitude: lat, Longitude: lon, Altitude: alt}
}

// ECEF returns the earth-fixed position (km) of a geodetic point.
func (g Geodetic) ECEF() r3.Vec {
	const e2 = earth.Flattening * (2 - earth.Flattening)

	sinLat, cosLat := math.Sin(g.Latitude), math.Cos(g.Latitude)
	sinLon, cosLon := math.Sin(g.Longitude), math.Cos(g.Longitude)

	// Radius of curvature in the prime vertical.
	n := earth.RadiusKm / math.Sqrt(1-e2*sinLat*sinLat)

	return r3.Vec{
		X: (n + g.Altitude) * cosLat * cosLon,
		Y: (n + g.Altitude) * cosLat * sinLon,
		Z: (n*(1-e2) + g.Altitude) * sinLat,
	}
}

// Footprint returns the diameter in km of the circle on the ground from
// which a satellite at altitude alt (km) is above the horizon.
func Footprint(alt float64) float64 {
	if alt <= 0 {
		return 0
	}
	return 2 * earth.RadiusKm * math.Acos(earth.RadiusKm/(earth.RadiusKm+alt))
}
