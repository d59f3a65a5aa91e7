package passes

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/star/skypass/internal/julian"
	"github.com/star/skypass/internal/metrics"
	"github.com/star/skypass/internal/propagation"
	"github.com/star/skypass/internal/transform"
)

// SearchConfig bounds every loop of a pass search.
//
// The coarse stride is the orbital period divided by stridesPerOrbit,
// clamped to [MinStride, MaxStride]. A grazing pass that stays above the
// horizon for less than one stride can fall between two samples and go
// unreported. Lower MaxStride to catch shorter passes at the cost of more
// propagations.
type SearchConfig struct {
	Precision     time.Duration // bisection and golden-section tolerance
	MaxIterations int           // refinement steps per event
	MaxSteps      int           // coarse steps per event
	MinStride     time.Duration
	MaxStride     time.Duration
	Horizon       time.Duration // furthest a search looks past its start
}

// stridesPerOrbit sets the coarse sampling rate. For the ISS it gives a
// stride of about 77 seconds.
const stridesPerOrbit = 72

// DefaultSearchConfig returns the standard bounds.
func DefaultSearchConfig() SearchConfig {
	return SearchConfig{
		Precision:     time.Second,
		MaxIterations: 64,
		MaxSteps:      50000,
		MinStride:     15 * time.Second,
		MaxStride:     10 * time.Minute,
		Horizon:       30 * 24 * time.Hour,
	}
}

// Searcher finds rise, set and culmination times by re-running the
// propagator. A Searcher holds no per-search state and may be shared; the
// *Orbit passed to each call belongs to the caller.
type Searcher struct {
	cfg SearchConfig
}

// NewSearcher returns a Searcher. Zero fields in cfg take their defaults.
func NewSearcher(cfg SearchConfig) *Searcher {
	def := DefaultSearchConfig()
	if cfg.Precision <= 0 {
		cfg.Precision = def.Precision
	}
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = def.MaxIterations
	}
	if cfg.MaxSteps <= 0 {
		cfg.MaxSteps = def.MaxSteps
	}
	if cfg.MinStride <= 0 {
		cfg.MinStride = def.MinStride
	}
	if cfg.MaxStride < cfg.MinStride {
		cfg.MaxStride = def.MaxStride
		if cfg.MaxStride < cfg.MinStride {
			cfg.MaxStride = cfg.MinStride
		}
	}
	if cfg.Horizon <= 0 {
		cfg.Horizon = def.Horizon
	}
	return &Searcher{cfg: cfg}
}

// Config returns the effective configuration.
func (s *Searcher) Config() SearchConfig { return s.cfg }

// Pass is one horizon-to-horizon visibility window.
type Pass struct {
	AOS transform.Observation // first instant above the horizon
	TCA transform.Observation // maximum elevation
	LOS transform.Observation // last instant above the horizon
}

// Duration returns the time between AOS and LOS.
func (p Pass) Duration() time.Duration { return p.LOS.Time.Sub(p.AOS.Time) }

// search carries one public call's state.
type search struct {
	*Searcher
	ctx    context.Context
	obs    transform.Observer
	orbit  *propagation.Orbit
	stride time.Duration
	evals  int
}

func (s *Searcher) begin(ctx context.Context, obs transform.Observer, orbit *propagation.Orbit) *search {
	stride := orbit.Elements().Period() / stridesPerOrbit
	if stride < s.cfg.MinStride {
		stride = s.cfg.MinStride
	}
	if stride > s.cfg.MaxStride {
		stride = s.cfg.MaxStride
	}
	return &search{Searcher: s, ctx: ctx, obs: obs, orbit: orbit, stride: stride}
}

// finish records the outcome of a search of the given kind.
func (sr *search) finish(kind string, err error) {
	outcome := "found"
	switch {
	case err == nil:
	case errors.Is(err, ErrSearchExhausted):
		outcome = "exhausted"
	case errors.Is(err, propagation.ErrDecayed):
		outcome = "decayed"
	case errors.Is(err, ErrUnreachable), errors.Is(err, ErrGeosynchronous):
		outcome = "rejected"
	default:
		outcome = "error"
	}
	metrics.RecordSearch(kind, outcome, sr.evals)
}

// look predicts the orbit at t and observes it.
func (sr *search) look(t julian.Date) (transform.Observation, error) {
	sr.evals++
	p, err := sr.orbit.Predict(sr.ctx, t)
	if err != nil {
		return transform.Observation{}, err
	}
	return p.Observe(sr.obs), nil
}

// guard rejects orbits that have no discrete passes for the observer.
func (sr *search) guard() error {
	el := sr.orbit.Elements()
	if !AOSHappens(el, sr.obs.Latitude) {
		return fmt.Errorf("norad %d: %w", el.CatalogNumber, ErrUnreachable)
	}
	if IsGeosynchronous(el) {
		return fmt.Errorf("norad %d: %w", el.CatalogNumber, ErrGeosynchronous)
	}
	return nil
}

// crossing is a horizon crossing refined to the search precision.
type crossing struct {
	below, above transform.Observation
}

// stepUntil walks forward from `from` by the coarse stride until the
// target's above-horizon state equals wantAbove, then refines the crossing.
func (sr *search) stepUntil(start julian.Date, from transform.Observation, wantAbove bool) (crossing, error) {
	prev := from
	for i := 0; i < sr.cfg.MaxSteps; i++ {
		t := prev.Time.Add(sr.stride)
		if t.Sub(start) > sr.cfg.Horizon {
			break
		}
		o, err := sr.look(t)
		if err != nil {
			return crossing{}, err
		}
		if (o.Elevation > 0) == wantAbove {
			if (prev.Elevation > 0) == wantAbove {
				// from was already on the wanted side.
				return crossing{}, fmt.Errorf("no horizon crossing after %v: %w", from.Time.Time(), ErrSearchExhausted)
			}
			return sr.bisect(prev, o)
		}
		prev = o
	}
	return crossing{}, ErrSearchExhausted
}

// bisect narrows a horizon crossing between a and b, which must lie on
// opposite sides of it, to the configured precision.
func (sr *search) bisect(a, b transform.Observation) (crossing, error) {
	c := crossing{below: a, above: b}
	if a.Elevation > 0 {
		c = crossing{below: b, above: a}
	}
	for i := 0; i < sr.cfg.MaxIterations; i++ {
		if absDuration(c.above.Time.Sub(c.below.Time)) <= sr.cfg.Precision {
			return c, nil
		}
		mid := c.below.Time + (c.above.Time-c.below.Time)/2
		o, err := sr.look(mid)
		if err != nil {
			return crossing{}, err
		}
		if o.Elevation > 0 {
			c.above = o
		} else {
			c.below = o
		}
	}
	return crossing{}, ErrSearchExhausted
}

func (sr *search) nextAOS(start julian.Date) (transform.Observation, error) {
	if err := sr.guard(); err != nil {
		return transform.Observation{}, err
	}
	o, err := sr.look(start)
	if err != nil {
		return transform.Observation{}, err
	}
	if o.Elevation > 0 {
		// Already up: let the current pass end first.
		set, err := sr.stepUntil(start, o, false)
		if err != nil {
			return transform.Observation{}, err
		}
		o = set.below
	}
	rise, err := sr.stepUntil(start, o, true)
	if err != nil {
		return transform.Observation{}, err
	}
	return rise.above, nil
}

func (sr *search) nextLOS(start julian.Date) (transform.Observation, error) {
	o, err := sr.look(start)
	if err != nil {
		return transform.Observation{}, err
	}
	if o.Elevation <= 0 {
		if o, err = sr.nextAOS(start); err != nil {
			return transform.Observation{}, err
		}
	} else if err := sr.guard(); err != nil {
		return transform.Observation{}, err
	}
	set, err := sr.stepUntil(start, o, false)
	if err != nil {
		return transform.Observation{}, err
	}
	return set.above, nil
}

// goldenRatio is 1/φ.
var goldenRatio = (math.Sqrt(5) - 1) / 2

// culminate runs a golden-section search for the maximum elevation between
// a and b.
func (sr *search) culminate(a, b julian.Date) (transform.Observation, error) {
	x1 := b - julian.Date(goldenRatio)*(b-a)
	x2 := a + julian.Date(goldenRatio)*(b-a)
	o1, err := sr.look(x1)
	if err != nil {
		return transform.Observation{}, err
	}
	o2, err := sr.look(x2)
	if err != nil {
		return transform.Observation{}, err
	}

	for i := 0; i < sr.cfg.MaxIterations; i++ {
		if b.Sub(a) <= sr.cfg.Precision {
			if o1.Elevation >= o2.Elevation {
				return o1, nil
			}
			return o2, nil
		}
		if o1.Elevation >= o2.Elevation {
			b, x2, o2 = x2, x1, o1
			x1 = b - julian.Date(goldenRatio)*(b-a)
			if o1, err = sr.look(x1); err != nil {
				return transform.Observation{}, err
			}
		} else {
			a, x1, o1 = x1, x2, o2
			x2 = a + julian.Date(goldenRatio)*(b-a)
			if o2, err = sr.look(x2); err != nil {
				return transform.Observation{}, err
			}
		}
	}
	return transform.Observation{}, ErrSearchExhausted
}

// NextAOS returns the first rise above the horizon after start. If the
// satellite is up at start, the current pass is skipped.
func (s *Searcher) NextAOS(ctx context.Context, obs transform.Observer, orbit *propagation.Orbit, start julian.Date) (o transform.Observation, err error) {
	sr := s.begin(ctx, obs, orbit)
	defer func() { sr.finish("aos", err) }()
	return sr.nextAOS(start)
}

// NextLOS returns the end of the pass in progress at start, or of the next
// pass if the satellite is down.
func (s *Searcher) NextLOS(ctx context.Context, obs transform.Observer, orbit *propagation.Orbit, start julian.Date) (o transform.Observation, err error) {
	sr := s.begin(ctx, obs, orbit)
	defer func() { sr.finish("los", err) }()
	return sr.nextLOS(start)
}

// MaxElevation returns the culmination of the pass in progress at start,
// or of the next pass if the satellite is down.
func (s *Searcher) MaxElevation(ctx context.Context, obs transform.Observer, orbit *propagation.Orbit, start julian.Date) (o transform.Observation, err error) {
	sr := s.begin(ctx, obs, orbit)
	defer func() { sr.finish("max_elevation", err) }()

	p, err := sr.passFrom(start)
	if err != nil {
		return transform.Observation{}, err
	}
	return p.TCA, nil
}

// NextPass returns the AOS, culmination and LOS of the next pass. A pass
// in progress at start is reported from start.
func (s *Searcher) NextPass(ctx context.Context, obs transform.Observer, orbit *propagation.Orbit, start julian.Date) (p Pass, err error) {
	sr := s.begin(ctx, obs, orbit)
	defer func() { sr.finish("pass", err) }()
	return sr.passFrom(start)
}

func (sr *search) passFrom(start julian.Date) (Pass, error) {
	first, err := sr.look(start)
	if err != nil {
		return Pass{}, err
	}
	aos := first
	if first.Elevation <= 0 {
		if aos, err = sr.nextAOS(start); err != nil {
			return Pass{}, err
		}
	} else if err := sr.guard(); err != nil {
		return Pass{}, err
	}

	set, err := sr.stepUntil(start, aos, false)
	if err != nil {
		return Pass{}, err
	}
	los := set.above

	tca := aos
	if los.Time > aos.Time {
		if tca, err = sr.culminate(aos.Time, los.Time); err != nil {
			return Pass{}, err
		}
	}
	return Pass{AOS: aos, TCA: tca, LOS: los}, nil
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
