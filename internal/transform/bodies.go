package transform

import (
	"strings"

	"github.com/star/skypass/internal/earth"
	"github.com/star/skypass/internal/julian"
)

// CelestialBody is a fixed radio source used for antenna calibration.
type CelestialBody struct {
	Name string
	RA   float64 // degrees, J2000
	Dec  float64 // degrees, J2000
}

// CelestialBodies is the built-in calibration source catalog.
var CelestialBodies = []CelestialBody{
	{Name: "TAURUS A", RA: 83.633083333333, Dec: 22.0145},
	{Name: "VIRGO A", RA: 187.70593075958334, Dec: 12.391123293916666},
	{Name: "CYGNUS A", RA: 299.86815190954167, Dec: 40.733915736},
	{Name: "CASSIOPEIA A", RA: 350.85, Dec: 58.815},
	{Name: "SAGITTARIUS A", RA: 266.416816625, Dec: -29.007824972222224},
	{Name: "OMEGA NEBULA", RA: 275.1958333333333, Dec: -16.171666666666667},
}

// FindCelestialBody looks a source up by name. Matching is case-insensitive
// and compares only the common prefix, so "cyg" finds Cygnus A and "VIRGO A
// (M87)" still finds Virgo A.
func FindCelestialBody(name string) (CelestialBody, bool) {
	want := strings.ToUpper(strings.TrimSpace(name))
	if want == "" {
		return CelestialBody{}, false
	}
	for _, b := range CelestialBodies {
		n := min(len(want), len(b.Name))
		if want[:n] == b.Name[:n] {
			return b, true
		}
	}
	return CelestialBody{}, false
}

// Observe returns the body as seen from obs.
func (b CelestialBody) Observe(obs Observer, t julian.Date) Observation {
	return ObserveRADec(obs, t, earth.Rad(b.RA), earth.Rad(b.Dec))
}
