package propagation

import (
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/star/skypass/internal/julian"
	"github.com/star/skypass/internal/transform"
)

// Position is the predicted state of a satellite at one instant. It is a
// value: every Predict call computes a new one.
type Position struct {
	Time julian.Date

	Position r3.Vec // km, TEME
	Velocity r3.Vec // km/s, TEME

	Latitude  float64 // geodetic, rad
	Longitude float64 // rad, east positive, (-π, π]
	Altitude  float64 // km

	Footprint float64 // km, diameter of the visibility circle

	Eclipsed     bool
	EclipseDepth float64 // rad, positive inside the umbra

	Phase       float64 // rad, angle from perigee along the orbit
	Revolutions int64

	Inclination float64 // osculating, rad
	RAAN        float64 // rad
	ArgPerigee  float64 // rad

	Decayed bool
}

func newPosition(t julian.Date, st state) Position {
	jd := t.JD()
	g := transform.GeodeticFromECI(st.pos, jd)
	eclipsed, depth := transform.Eclipse(st.pos, transform.SunPosition(jd))

	return Position{
		Time:         t,
		Position:     st.pos,
		Velocity:     st.vel,
		Latitude:     g.Latitude,
		Longitude:    g.Longitude,
		Altitude:     g.Altitude,
		Footprint:    transform.Footprint(g.Altitude),
		Eclipsed:     eclipsed,
		EclipseDepth: depth,
		Phase:        st.phase,
		Inclination:  st.incl,
		RAAN:         st.raan,
		ArgPerigee:   st.argp,
	}
}

// Sunlit reports whether the satellite is outside the earth's shadow.
func (p Position) Sunlit() bool { return !p.Eclipsed }

// Observe computes the look angles of p from obs.
func (p Position) Observe(obs transform.Observer) transform.Observation {
	return transform.Observe(obs, p.Time, p.Position, p.Velocity, p.Sunlit())
}
