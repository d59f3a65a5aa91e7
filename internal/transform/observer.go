package transform

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/star/skypass/internal/earth"
	"github.com/star/skypass/internal/julian"
)

// twilight is the solar elevation below which the sky is dark enough for a
// sunlit satellite to be seen.
var twilight = earth.Rad(-12)

// Observer is a ground station on the WGS-84 ellipsoid.
type Observer struct {
	Name      string
	Latitude  float64 // radians
	Longitude float64 // radians, east positive
	Altitude  float64 // meters above the ellipsoid
}

// NewObserver creates an Observer. Latitude and longitude are in radians,
// altitude in meters.
func NewObserver(name string, lat, lon, alt float64) Observer {
	return Observer{Name: name, Latitude: lat, Longitude: lon, Altitude: alt}
}

// NewObserverDegrees creates an Observer from latitude and longitude in
// degrees.
func NewObserverDegrees(name string, latDeg, lonDeg, alt float64) Observer {
	return NewObserver(name, earth.Rad(latDeg), earth.Rad(lonDeg), alt)
}

// Geodetic returns the observer location with altitude in km.
func (o Observer) Geodetic() Geodetic {
	return Geodetic{Latitude: o.Latitude, Longitude: o.Longitude, Altitude: o.Altitude / 1000}
}

// ECI returns the observer position (km) and velocity (km/s) in the
// inertial frame at Julian date jd.
func (o Observer) ECI(jd float64) (pos, vel r3.Vec) {
	pos = rotateZ(o.Geodetic().ECEF(), -ThetaG(jd))
	vel = r3.Vec{X: -earth.AngularVelocity * pos.Y, Y: earth.AngularVelocity * pos.X}
	return pos, vel
}

// Observation is what an observer sees of a target at one instant.
type Observation struct {
	Time          julian.Date
	Azimuth       float64 // radians, 0 = north, clockwise
	AzimuthRate   float64 // rad/s
	Elevation     float64 // radians
	ElevationRate float64 // rad/s
	Range         float64 // km
	RangeVec      r3.Vec  // km, observer to target, ECI
	RangeRate     float64 // km/s, positive when receding
	Visible       bool
}

// sez holds a vector resolved in the topocentric South-East-Zenith frame.
type sez struct {
	S, E, Z float64
}

// toSEZ rotates an ECI vector into the observer's SEZ frame for local
// sidereal angle theta.
func (o Observer) toSEZ(v r3.Vec, theta float64) sez {
	sinLat, cosLat := math.Sin(o.Latitude), math.Cos(o.Latitude)
	sinT, cosT := math.Sin(theta), math.Cos(theta)
	return sez{
		S: sinLat*cosT*v.X + sinLat*sinT*v.Y - cosLat*v.Z,
		E: -sinT*v.X + cosT*v.Y,
		Z: cosLat*cosT*v.X + cosLat*sinT*v.Y + sinLat*v.Z,
	}
}

// toSEZRate is the change of toSEZ(v, theta) per radian of theta. The SEZ
// frame turns with the Earth, so a topocentric rate needs this term times
// the sidereal rate on top of the rotated velocity.
func (o Observer) toSEZRate(v r3.Vec, theta float64) sez {
	sinLat, cosLat := math.Sin(o.Latitude), math.Cos(o.Latitude)
	sinT, cosT := math.Sin(theta), math.Cos(theta)
	return sez{
		S: -sinLat*sinT*v.X + sinLat*cosT*v.Y,
		E: -cosT*v.X - sinT*v.Y,
		Z: -cosLat*sinT*v.X + cosLat*cosT*v.Y,
	}
}

func azimuth(s, e float64) float64 {
	az := math.Atan2(e, -s)
	if az < 0 {
		az += earth.TwoPi
	}
	return az
}

// Observe computes look angles, range and their rates for a target at ECI
// position pos (km) and velocity vel (km/s). sunlit reports whether the
// target is illuminated; it only feeds the Visible flag.
func Observe(obs Observer, t julian.Date, pos, vel r3.Vec, sunlit bool) Observation {
	jd := t.JD()
	obsPos, obsVel := obs.ECI(jd)
	theta := LocalSidereal(jd, obs.Longitude)

	rng := r3.Sub(pos, obsPos)
	rngVel := r3.Sub(vel, obsVel)
	dist := r3.Norm(rng)

	top := obs.toSEZ(rng, theta)
	topDot := obs.toSEZ(rngVel, theta)
	turn := obs.toSEZRate(rng, theta)
	topDot.S += earth.AngularVelocity * turn.S
	topDot.E += earth.AngularVelocity * turn.E
	topDot.Z += earth.AngularVelocity * turn.Z

	o := Observation{
		Time:     t,
		Range:    dist,
		RangeVec: rng,
		Azimuth:  azimuth(top.S, top.E),
	}
	if dist == 0 {
		return o
	}

	o.RangeRate = r3.Dot(rng, rngVel) / dist

	x := clamp(top.Z/dist, -1, 1)
	o.Elevation = math.Asin(x)

	if h := top.S*top.S + top.E*top.E; h > 0 {
		o.AzimuthRate = (top.E*topDot.S - top.S*topDot.E) / h
	}
	// The rate is undefined straight overhead.
	if d := math.Sqrt(1 - x*x); d > 1e-12 {
		o.ElevationRate = (topDot.Z*dist - o.RangeRate*top.Z) / (dist * dist) / d
	}

	if sunlit && o.Elevation > 0 {
		o.Visible = sunElevation(obs, jd, obsPos, theta) < twilight
	}
	return o
}

// sunElevation returns the topocentric elevation of the Sun.
func sunElevation(obs Observer, jd float64, obsPos r3.Vec, theta float64) float64 {
	rng := r3.Sub(SunPosition(jd), obsPos)
	top := obs.toSEZ(rng, theta)
	return math.Asin(clamp(top.Z/r3.Norm(rng), -1, 1))
}
