package propagation

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	satellite "github.com/joshuaferrara/go-satellite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/star/skypass/internal/tle"
)

// Near-earth sample set from Spacetrack Report #3.
const (
	sgp4Line1 = "1 88888U          80275.98708465  .00073094  13844-3  66816-4 0    87"
	sgp4Line2 = "2 88888  72.8435 115.9689 0086731  52.6988 110.5714 16.05824518  1058"
)

// ISS, November 2018.
const (
	issLine1 = "1 25544U 98067A   18311.69881946  .00003236  00000-0  56524-4 0  9995"
	issLine2 = "2 25544  51.6417  23.5568 0004767  22.5396  79.5368 15.53922927140835"
)

// The 88888 set with its drag term raised to 0.5, which brings it down
// within hours.
const decayLine1 = "1 88888U          80275.98708465  .00073094  13844-3  50000-0 0    81"

type refVector struct {
	tsince float64
	pos    r3.Vec
	vel    r3.Vec
}

func mustElements(t testing.TB, name, l1, l2 string) *tle.Elements {
	t.Helper()
	el, err := tle.ParseElements(name, l1, l2)
	require.NoError(t, err)
	return el
}

func assertVec(t *testing.T, want, got r3.Vec, delta float64, msgAndArgs ...interface{}) {
	t.Helper()
	assert.InDelta(t, want.X, got.X, delta, msgAndArgs...)
	assert.InDelta(t, want.Y, got.Y, delta, msgAndArgs...)
	assert.InDelta(t, want.Z, got.Z, delta, msgAndArgs...)
}

// TestNearEarthReferenceVectors verifies SGP4 against the published test
// case output.
func TestNearEarthReferenceVectors(t *testing.T) {
	el := mustElements(t, "", sgp4Line1, sgp4Line2)
	require.Equal(t, tle.ModelNearEarth, el.Model)
	m := newNearEarth(el)

	want := []refVector{
		{0, r3.Vec{X: 2328.97048951, Y: -5995.22076416, Z: 1719.97067261}, r3.Vec{X: 2.91207230, Y: -0.98341546, Z: -7.09081703}},
		{360, r3.Vec{X: 2456.10705566, Y: -6071.93853760, Z: 1222.89727783}, r3.Vec{X: 2.67938992, Y: -0.44829041, Z: -7.22879231}},
		{720, r3.Vec{X: 2567.56195068, Y: -6112.50384522, Z: 713.96397400}, r3.Vec{X: 2.44024599, Y: 0.09810869, Z: -7.31995916}},
		{1080, r3.Vec{X: 2663.09078980, Y: -6115.48229980, Z: 196.39640427}, r3.Vec{X: 2.19611958, Y: 0.65241995, Z: -7.36282432}},
		{1440, r3.Vec{X: 2742.55133057, Y: -6079.67144775, Z: -326.38095856}, r3.Vec{X: 1.94850229, Y: 1.21106251, Z: -7.35619372}},
	}

	for _, w := range want {
		st, err := m.propagate(w.tsince)
		require.NoError(t, err, "tsince %v", w.tsince)
		// The published table was produced in single precision.
		assertVec(t, w.pos, st.pos, 1e-2, "position at tsince %v", w.tsince)
		assertVec(t, w.vel, st.vel, 5e-5, "velocity at tsince %v", w.tsince)
	}
}

// TestNearEarthMatchesGoSatellite cross-checks SGP4 against an independent
// implementation over a day around epoch.
func TestNearEarthMatchesGoSatellite(t *testing.T) {
	el := mustElements(t, "ISS (ZARYA)", issLine1, issLine2)
	orbit := NewOrbit(el)
	ref := satellite.TLEToSat(issLine1, issLine2, satellite.GravityWGS72)

	start := time.Date(2018, 11, 7, 0, 0, 0, 0, time.UTC)
	for i := 0; i <= 24; i++ {
		at := start.Add(time.Duration(i) * time.Hour)
		p, err := orbit.PredictTime(context.Background(), at)
		require.NoError(t, err)

		rp, rv := satellite.Propagate(ref, at.Year(), int(at.Month()), at.Day(), at.Hour(), at.Minute(), at.Second())
		assertVec(t, r3.Vec{X: rp.X, Y: rp.Y, Z: rp.Z}, p.Position, 1.0, "position at %v", at)
		assertVec(t, r3.Vec{X: rv.X, Y: rv.Y, Z: rv.Z}, p.Velocity, 1e-3, "velocity at %v", at)
	}
}

// TestNearEarthNegativeTsince verifies propagation before epoch.
func TestNearEarthNegativeTsince(t *testing.T) {
	m := newNearEarth(mustElements(t, "", sgp4Line1, sgp4Line2))
	st, err := m.propagate(-720)
	require.NoError(t, err)
	r := r3.Norm(st.pos)
	if r < 6378 || r > 7000 {
		t.Errorf("radius %.1f km at tsince -720, want a low earth orbit", r)
	}
}

// TestNearEarthSimpleFlag verifies that perigees under 220 km take the
// reduced drag path.
func TestNearEarthSimpleFlag(t *testing.T) {
	m := newNearEarth(mustElements(t, "", sgp4Line1, sgp4Line2))
	assert.True(t, m.simple, "88888 perigee is about 200 km")
	assert.Zero(t, m.d2)

	iss := newNearEarth(mustElements(t, "", issLine1, issLine2))
	assert.False(t, iss.simple)
	assert.NotZero(t, iss.d2)
}

// TestNearEarthDecay verifies decay reporting and the Decayed flag.
func TestNearEarthDecay(t *testing.T) {
	el := mustElements(t, "", decayLine1, sgp4Line2)
	orbit := NewOrbit(el)

	p, err := orbit.Predict(context.Background(), el.EpochDate())
	require.NoError(t, err)
	assert.False(t, p.Decayed)

	p, err = orbit.Predict(context.Background(), el.EpochDate().Add(24*time.Hour))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDecayed))
	assert.True(t, p.Decayed)

	var de *DecayedError
	require.True(t, errors.As(err, &de))
	assert.InDelta(t, 1440, de.Tsince, 1e-4)

	// Far enough out the drag polynomial itself goes negative.
	late := el.EpochDate().Add(10 * 24 * time.Hour)
	p, err = orbit.Predict(context.Background(), late)
	require.True(t, errors.As(err, &de))
	assert.Equal(t, "drag exhausted the semi-major axis", de.Reason)

	// No state vector: the geometry is left zero rather than placed at the
	// earth's centre.
	assert.Equal(t, Position{Time: late, Decayed: true}, p)
	assert.Zero(t, p.Altitude)
	assert.Zero(t, p.Footprint)
}

// TestCheckEccentricity verifies the eccentricity domain guard.
func TestCheckEccentricity(t *testing.T) {
	tests := []struct {
		e       float64
		want    float64
		decayed bool
	}{
		{0.5, 0.5, false},
		{0, 1e-6, false},
		{-5e-4, 1e-6, false},
		{-2e-3, 0, true},
		{1, 0, true},
		{1.2, 0, true},
	}
	for _, tt := range tests {
		e, err := checkEccentricity(0, tt.e)
		if tt.decayed {
			assert.ErrorIs(t, err, ErrDecayed, "e=%v", tt.e)
			continue
		}
		require.NoError(t, err, "e=%v", tt.e)
		assert.Equal(t, tt.want, e)
	}
}

// TestNearEarthConcurrent verifies that one near-earth orbit can be shared
// across goroutines.
func TestNearEarthConcurrent(t *testing.T) {
	orbit := NewOrbit(mustElements(t, "", issLine1, issLine2))
	epoch := orbit.Elements().EpochDate()

	want, err := orbit.Predict(context.Background(), epoch.Add(90*time.Minute))
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				if _, err := orbit.Predict(context.Background(), epoch.Add(time.Duration(i*j)*time.Minute)); err != nil {
					t.Errorf("predict: %v", err)
					return
				}
			}
		}(i)
	}
	wg.Wait()

	got, err := orbit.Predict(context.Background(), epoch.Add(90*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, want.Position, got.Position)
	assert.False(t, math.IsNaN(got.Latitude))
}
