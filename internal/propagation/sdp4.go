package propagation

import (
	"math"
	"sync"

	"github.com/star/skypass/internal/earth"
	"github.com/star/skypass/internal/tle"
)

// deepState is the resonance integrator state carried between calls.
type deepState struct {
	atime    float64 // minutes since epoch the integrator has reached
	xli      float64 // integrated mean longitude
	xni      float64 // integrated mean motion
	restarts uint64
}

// needsRestart reports whether reaching t from the cached state would
// require integrating backwards, in which case the integrator starts over
// from epoch.
func (s *deepState) needsRestart(t float64) bool {
	return (t >= 0 && s.atime < 0) ||
		(t < 0 && s.atime > 0) ||
		math.Abs(t) < math.Abs(s.atime)
}

// deepSpace is the SDP4 model for periods of 225 minutes or more. The
// coefficients are shared between clones; the integrator state is not.
type deepSpace struct {
	*deepCoeffs

	mu sync.Mutex
	st deepState

	onRestart func()
}

func newDeepSpace(el *tle.Elements) *deepSpace {
	d := &deepSpace{deepCoeffs: newDeepCoeffs(el)}
	d.reset()
	return d
}

func (d *deepSpace) reset() {
	d.st.atime = 0
	d.st.xni = d.xnodp
	d.st.xli = d.xlamo
}

// clone returns a model with the same coefficients and a fresh integrator.
func (d *deepSpace) clone() model {
	n := &deepSpace{deepCoeffs: d.deepCoeffs, onRestart: d.onRestart}
	n.reset()
	return n
}

// restarts returns how many times the integrator has been restarted.
func (d *deepSpace) restarts() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.st.restarts
}

// integrate advances the resonance integrator to t and returns the mean
// motion and mean longitude there.
func (d *deepSpace) integrate(t float64) (xn, xl float64) {
	d.mu.Lock()
	defer d.mu.Unlock()

	s := &d.st
	if s.needsRestart(t) {
		d.reset()
		s.restarts++
		if d.onRestart != nil {
			d.onRestart()
		}
	}

	delt := stepp
	if t < 0 {
		delt = stepn
	}
	for math.Abs(t-s.atime) >= stepp {
		xndot, xnddt, xldot := d.dots(s.xli, s.xni, s.atime)
		s.xli += xldot*delt + xndot*step2
		s.xni += xndot*delt + xnddt*step2
		s.atime += delt
	}

	ft := t - s.atime
	xndot, xnddt, xldot := d.dots(s.xli, s.xni, s.atime)
	xn = s.xni + xndot*ft + xnddt*ft*ft*0.5
	xl = s.xli + xldot*ft + xndot*ft*ft*0.5
	return xn, xl
}

// propagate runs SDP4 to tsince minutes from epoch.
func (d *deepSpace) propagate(tsince float64) (state, error) {
	c := &d.common

	tsq := tsince * tsince
	a := deepArgs{
		xll:    c.xmo + c.xmdot*tsince,
		omgadf: c.omegao + c.omgdot*tsince,
		xnode:  c.xnodeo + c.xnodot*tsince + c.xnodcf*tsq,
		xn:     c.xnodp,
	}
	tempa := 1 - c.c1*tsince
	tempe := c.bstar * c.c4 * tsince
	templ := c.t2cof * tsq

	d.secular(tsince, &a)
	if d.res != resonanceNone {
		xn, xl := d.integrate(tsince)
		a.xn = xn
		d.resonantLongitude(tsince, xl, &a)
	}

	if tempa <= 0 {
		return state{}, &DecayedError{Tsince: tsince, Reason: "drag exhausted the semi-major axis"}
	}
	if a.xn <= 0 {
		return state{}, &DecayedError{Tsince: tsince, Reason: "mean motion not positive"}
	}

	axis := math.Pow(earth.XKE/a.xn, earth.TwoThirds) * tempa * tempa
	a.em -= tempe
	a.xll += c.xnodp * templ

	d.periodics(tsince, &a)

	e, err := checkEccentricity(tsince, a.em)
	if err != nil {
		return state{}, err
	}

	return c.finish(tsince, meanElements{
		a:     axis,
		e:     e,
		xl:    a.xll + a.omgadf + a.xnode,
		omega: a.omgadf,
		xnode: a.xnode,
		xinc:  a.xinc,
	})
}
