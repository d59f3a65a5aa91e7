package propagation

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/star/skypass/internal/earth"
	"github.com/star/skypass/internal/julian"
	"github.com/star/skypass/internal/metrics"
	"github.com/star/skypass/internal/tle"
)

// Orbit binds one element set to the propagator its model selects. An
// Orbit owns its propagator state: a deep-space Orbit may be used from
// several goroutines, but each caller that walks time independently (a
// pass search, a stream) should work on its own Clone so that one
// caller's integrator position does not force restarts on another.
type Orbit struct {
	el *tle.Elements
	m  model
}

// NewOrbit initializes the propagator for el.
func NewOrbit(el *tle.Elements) *Orbit {
	o := &Orbit{el: el}
	switch el.Model {
	case tle.ModelDeepSpace:
		d := newDeepSpace(el)
		d.onRestart = metrics.RecordDeepRestart
		o.m = d
	default:
		o.m = newNearEarth(el)
	}
	return o
}

// NewOrbitFromLines parses a two-line element set and builds its Orbit.
func NewOrbitFromLines(name, line1, line2 string) (*Orbit, error) {
	el, err := tle.ParseElements(name, line1, line2)
	if err != nil {
		return nil, err
	}
	return NewOrbit(el), nil
}

// Elements returns the element set the orbit was built from.
func (o *Orbit) Elements() *tle.Elements { return o.el }

// Model returns the perturbation model in use.
func (o *Orbit) Model() tle.Model { return o.el.Model }

// Clone returns an Orbit over the same element set with fresh propagator
// state.
func (o *Orbit) Clone() *Orbit {
	return &Orbit{el: o.el, m: o.m.clone()}
}

// Restarts returns how often the deep-space integrator has restarted from
// epoch. It is always zero for near-earth orbits.
func (o *Orbit) Restarts() uint64 {
	if d, ok := o.m.(*deepSpace); ok {
		return d.restarts()
	}
	return 0
}

// Resonance names the deep-space resonance class, or "none".
func (o *Orbit) Resonance() string {
	if d, ok := o.m.(*deepSpace); ok {
		return d.res.String()
	}
	return resonanceNone.String()
}

// Tsince returns minutes from the element epoch to t.
func (o *Orbit) Tsince(t julian.Date) float64 {
	return (t.JD() - o.el.EpochJD) * earth.MinutesPerDay
}

// Predict propagates to t. On decay the returned Position has Decayed set
// and the error wraps a *DecayedError. If the model failed before it had a
// state vector, only Time and Decayed are set and every geometric field is
// zero.
func (o *Orbit) Predict(ctx context.Context, t julian.Date) (Position, error) {
	if err := ctx.Err(); err != nil {
		return Position{}, err
	}

	st, err := o.m.propagate(o.Tsince(t))
	var decayed *DecayedError
	if err != nil && !errors.As(err, &decayed) {
		return Position{}, fmt.Errorf("propagate %d: %w", o.el.CatalogNumber, err)
	}
	metrics.RecordPropagation(o.el.Model.String(), decayed != nil)

	if decayed != nil && st.pos == (r3.Vec{}) {
		return Position{Time: t, Decayed: true}, fmt.Errorf("propagate %d: %w", o.el.CatalogNumber, err)
	}
	p := newPosition(t, st)
	p.Revolutions = o.revolutions(t)
	if decayed != nil {
		p.Decayed = true
		return p, fmt.Errorf("propagate %d: %w", o.el.CatalogNumber, err)
	}
	return p, nil
}

// PredictTime is Predict for a wall-clock time.
func (o *Orbit) PredictTime(ctx context.Context, t time.Time) (Position, error) {
	return o.Predict(ctx, julian.FromTime(t))
}

// revolutions counts complete orbits since launch at t.
func (o *Orbit) revolutions(t julian.Date) int64 {
	age := t.JD() - o.el.EpochJD
	n := o.el.RecoveredMeanMotion() * earth.MinutesPerDay / earth.TwoPi
	m0 := earth.Rad(o.el.MeanAnomaly) / earth.TwoPi
	return int64(math.Floor((n+age*o.el.BStar)*age+m0)) + int64(o.el.RevAtEpoch)
}
