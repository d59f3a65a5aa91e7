package passes

import (
	"math"

	"github.com/star/skypass/internal/earth"
	"github.com/star/skypass/internal/tle"
)

// IsGeosynchronous reports whether el describes a roughly geosynchronous
// orbit: about one revolution per day, low eccentricity, and not highly
// inclined.
func IsGeosynchronous(el *tle.Elements) bool {
	return el.MeanMotion >= 0.9 && el.MeanMotion <= 1.1 &&
		el.Eccentricity < 0.2 &&
		el.Inclination < 70
}

// AOSHappens reports whether a satellite on el can ever rise above the
// horizon of an observer at latitude lat (radians). It compares the
// highest latitude the footprint reaches at apogee with the observer's.
func AOSHappens(el *tle.Elements, lat float64) bool {
	if el.MeanMotion == 0 {
		return false
	}

	lin := el.Inclination
	if lin >= 90 {
		lin = 180 - lin
	}

	sma := 331.25 * math.Exp(math.Log(earth.MinutesPerDay/el.MeanMotion)*2/3)
	apogee := sma*(1+el.Eccentricity) - earth.RadiusKm

	return math.Acos(earth.RadiusKm/(apogee+earth.RadiusKm))+earth.Rad(lin) > math.Abs(lat)
}
