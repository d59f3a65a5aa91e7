package transform

import (
	"math"
	"time"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/star/skypass/internal/earth"
	"github.com/star/skypass/internal/julian"
)

// rateStep is the interval used to difference RA/Dec look angles.
const rateStep = time.Second

// ObserveRADec computes look angles for a fixed point on the celestial
// sphere (right ascension and declination in radians, equator of date).
// Range fields are zero; rates are finite differences over one second.
func ObserveRADec(obs Observer, t julian.Date, ra, dec float64) Observation {
	az, el := raDecToHorizontal(obs, t.JD(), ra, dec)
	az2, el2 := raDecToHorizontal(obs, t.Add(rateStep).JD(), ra, dec)

	dAz := az2 - az
	if dAz > math.Pi {
		dAz -= earth.TwoPi
	} else if dAz < -math.Pi {
		dAz += earth.TwoPi
	}

	return Observation{
		Time:          t,
		Azimuth:       az,
		AzimuthRate:   dAz / rateStep.Seconds(),
		Elevation:     el,
		ElevationRate: (el2 - el) / rateStep.Seconds(),
	}
}

func raDecToHorizontal(obs Observer, jd, ra, dec float64) (az, el float64) {
	h := LocalSidereal(jd, obs.Longitude) - ra
	sinLat, cosLat := math.Sin(obs.Latitude), math.Cos(obs.Latitude)

	az = math.Atan2(math.Sin(h), math.Cos(h)*sinLat-math.Tan(dec)*cosLat) + math.Pi
	el = math.Asin(clamp(sinLat*math.Sin(dec)+cosLat*math.Cos(dec)*math.Cos(h), -1, 1))
	return earth.Mod2Pi(az), el
}

// ObserveSun returns the Sun as seen from obs. Range is filled in from the
// geocentric solar distance.
func ObserveSun(obs Observer, t julian.Date) Observation {
	jd := t.JD()
	ra, dec := SunRADec(jd)
	o := ObserveRADec(obs, t, ra, dec)

	obsPos, _ := obs.ECI(jd)
	o.RangeVec = r3.Sub(SunPosition(jd), obsPos)
	o.Range = r3.Norm(o.RangeVec)
	return o
}
