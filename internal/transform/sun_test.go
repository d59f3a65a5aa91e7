package transform

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/star/skypass/internal/earth"
	"github.com/star/skypass/internal/julian"
)

// TestSunPosition verifies the solar distance and the equinox declination.
func TestSunPosition(t *testing.T) {
	equinox := julian.FromTime(time.Date(2024, 3, 20, 3, 6, 0, 0, time.UTC)).JD()

	sun := SunPosition(equinox)
	assert.InDelta(t, 1.0, r3.Norm(sun)/earth.AstronomicalUnit, 0.02)

	ra, dec := SunRADec(equinox)
	assert.InDelta(t, 0, dec, 1e-3)
	// RA is near 0 or 2π at the March equinox.
	assert.Less(t, math.Min(ra, earth.TwoPi-ra), 1e-2)
}

// TestEclipse verifies the shadow test on both sides of the Earth.
func TestEclipse(t *testing.T) {
	sun := r3.Vec{X: earth.AstronomicalUnit}

	tests := []struct {
		name     string
		pos      r3.Vec
		eclipsed bool
	}{
		{"behind earth", r3.Vec{X: -7000}, true},
		{"sun side", r3.Vec{X: 7000}, false},
		{"terminator", r3.Vec{Y: 7000}, false},
		{"just inside shadow", r3.Vec{X: -7000, Y: 6000}, true},
		{"geostationary clear of shadow", r3.Vec{X: -20000, Y: 38000}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, depth := Eclipse(tt.pos, sun)
			assert.Equal(t, tt.eclipsed, got)
			if tt.eclipsed {
				assert.GreaterOrEqual(t, depth, 0.0)
			} else {
				assert.Less(t, depth, 0.0)
			}
		})
	}
}

// TestFindCelestialBody verifies prefix matching over the calibration catalog.
func TestFindCelestialBody(t *testing.T) {
	tests := []struct {
		query string
		want  string
		found bool
	}{
		{"cyg", "CYGNUS A", true},
		{"Taurus A", "TAURUS A", true},
		{"virgo a (m87)", "VIRGO A", true},
		{"omega", "OMEGA NEBULA", true},
		{"", "", false},
		{"andromeda", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			b, ok := FindCelestialBody(tt.query)
			require.Equal(t, tt.found, ok)
			assert.Equal(t, tt.want, b.Name)
		})
	}
}

// TestObserveRADecZenith verifies a source on the meridian at the observer's
// declination sits at the zenith.
func TestObserveRADecZenith(t *testing.T) {
	obs := NewObserverDegrees("equator", 0, 30, 0)
	lst := LocalSidereal(testDate.JD(), obs.Longitude)

	o := ObserveRADec(obs, testDate, lst, 0)
	assert.InDelta(t, math.Pi/2, o.Elevation, 1e-6)

	// Sidereal rotation is ~15°/h, so a source an hour east is ~15° lower.
	o = ObserveRADec(obs, testDate, lst+earth.Rad(15), 0)
	assert.InDelta(t, 75, earth.Deg(o.Elevation), 0.1)
	assert.Greater(t, o.ElevationRate, 0.0)
}

// TestObserveSun verifies the Sun is above the horizon at local noon.
func TestObserveSun(t *testing.T) {
	obs := NewObserverDegrees("greenwich", 51.48, 0, 0)
	noon := julian.FromTime(time.Date(2024, 6, 21, 12, 0, 0, 0, time.UTC))

	o := ObserveSun(obs, noon)
	assert.InDelta(t, 62, earth.Deg(o.Elevation), 1)
	assert.InDelta(t, 180, earth.Deg(o.Azimuth), 3)
	assert.InDelta(t, 1.016, o.Range/earth.AstronomicalUnit, 0.01)

	midnight := julian.FromTime(time.Date(2024, 6, 21, 0, 0, 0, 0, time.UTC))
	assert.Less(t, ObserveSun(obs, midnight).Elevation, 0.0)
}

// TestDopplerShift verifies the sign convention and magnitude.
func TestDopplerShift(t *testing.T) {
	receding := Observation{RangeRate: 1}
	assert.InDelta(t, -1457.675, DopplerShift(receding, 437e6), 1e-3)

	approaching := Observation{RangeRate: -7}
	assert.Greater(t, DopplerShift(approaching, 145.8e6), 0.0)
}

// TestSquintAngle verifies an antenna pointing along the line of sight has
// zero squint and a perpendicular one has 90°.
func TestSquintAngle(t *testing.T) {
	// Satellite at +X of the observer, antenna axis along +X in the orbital
	// frame; the observer is behind it along -X.
	o := Observation{RangeVec: r3.Vec{X: -500}, Range: 500}
	assert.InDelta(t, 0, SquintAngle(o, 0, 0, 0, 0, 0), 1e-9)
	assert.InDelta(t, math.Pi/2, SquintAngle(o, 0, 0, 0, 0, math.Pi/2), 1e-9)
	assert.InDelta(t, math.Pi, SquintAngle(o, 0, 0, 0, 0, math.Pi), 1e-9)
	assert.Zero(t, SquintAngle(Observation{}, 0, 0, 0, 0, 0))
}
