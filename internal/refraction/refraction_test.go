package refraction

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/star/skypass/internal/earth"
	"github.com/star/skypass/internal/transform"
)

const arcmin = math.Pi / (180 * 60)

// TestOptical verifies the true-elevation refraction against Meeus's
// tabulated values.
func TestOptical(t *testing.T) {
	tests := []struct {
		el   float64 // degrees
		want float64 // arcminutes
	}{
		{0, 28.98},
		{10, 5.41},
		{45, 0.99},
	}
	for _, tt := range tests {
		assert.InDelta(t, tt.want*arcmin, Optical(earth.Rad(tt.el)), 0.05*arcmin, "el=%v", tt.el)
	}

	assert.InDelta(t, 0, Optical(math.Pi/2), 0.01*arcmin)
	assert.Zero(t, Optical(earth.Rad(-3)))
}

// TestFromApparent verifies the apparent-elevation refraction.
func TestFromApparent(t *testing.T) {
	assert.InDelta(t, 34.48*arcmin, FromApparent(0), 0.1*arcmin)
	assert.InDelta(t, 1.0*arcmin, FromApparent(earth.Rad(45)), 0.05*arcmin)

	// Inverting a correction lands near the true elevation.
	el := earth.Rad(5)
	app := Apparent(el, Conditions{})
	assert.InDelta(t, el, app-FromApparent(app), 0.1*arcmin)
}

// TestConditionsScale verifies the pressure and temperature factor.
func TestConditionsScale(t *testing.T) {
	el := earth.Rad(2)
	assert.InDelta(t, Optical(el), OpticalAt(el, Standard), 1e-15)
	assert.InDelta(t, Optical(el), OpticalAt(el, Conditions{}), 1e-15)

	thin := Conditions{PressureKPa: 50.5, TemperatureC: 10}
	assert.InDelta(t, Optical(el)/2, OpticalAt(el, thin), 1e-12)

	cold := Conditions{PressureKPa: 101, TemperatureC: -10}
	assert.Greater(t, OpticalAt(el, cold), Optical(el))
	assert.Greater(t, FromApparentAt(el, cold), FromApparent(el))
}

// TestRate verifies the refraction rate against a finite difference.
func TestRate(t *testing.T) {
	const rate = 1e-3 // rad/s
	for _, deg := range []float64{0, 2, 10, 30, 60} {
		el := earth.Rad(deg)
		h := 1e-6
		numeric := (Optical(el+h) - Optical(el-h)) / (2 * h) * rate
		assert.InDelta(t, numeric, Rate(el, rate), math.Abs(numeric)*1e-4+1e-12, "el=%v", deg)
	}
	assert.Less(t, Rate(earth.Rad(5), rate), 0.0)
	assert.Zero(t, Rate(earth.Rad(-2), rate))
}

// TestApparent verifies that corrections never push a target below the
// horizon.
func TestApparent(t *testing.T) {
	el := earth.Rad(1)
	assert.Greater(t, Apparent(el, Conditions{}), el)

	low := earth.Rad(-0.9)
	assert.Equal(t, low, Apparent(low, Conditions{PressureKPa: 10, TemperatureC: 40}))

	assert.InDelta(t, 1e-3*(1+Rate(el, 1e-3)/1e-3), ApparentRate(el, 1e-3, Conditions{}), 1e-15)
}

// TestRadio verifies the ITU-R P.834 correction and its visibility cut.
func TestRadio(t *testing.T) {
	corr, vis := Radio(0, 0)
	require.True(t, vis)
	assert.InDelta(t, earth.Rad(1/1.728), corr, 1e-12)

	high, vis := Radio(earth.Rad(30), 0)
	require.True(t, vis)
	assert.Less(t, high, corr)

	corr, vis = Radio(earth.Rad(-3), 0)
	assert.False(t, vis)
	assert.Zero(t, corr)

	// A mountain-top station sees further below the geometric horizon.
	_, vis = Radio(earth.Rad(-1.5), 3000)
	assert.True(t, vis)
}

// TestCorrectLeavesObservation verifies that Correct copies its input.
func TestCorrectLeavesObservation(t *testing.T) {
	o := transform.Observation{Elevation: earth.Rad(3), ElevationRate: 1e-3, Range: 1200}
	orig := o
	obs := transform.NewObserverDegrees("test", 40, -74, 100)

	c := Correct(o, obs, Conditions{})
	assert.Equal(t, orig, o)
	assert.Equal(t, orig, c.Observation)
	assert.Greater(t, c.Apparent, o.Elevation)
	assert.Greater(t, c.Radio, o.Elevation)
	assert.True(t, c.RadioVisible)
}
