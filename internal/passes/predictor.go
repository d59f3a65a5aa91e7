package passes

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"gonum.org/v1/gonum/floats"

	"github.com/star/skypass/internal/earth"
	"github.com/star/skypass/internal/julian"
	"github.com/star/skypass/internal/observability"
	"github.com/star/skypass/internal/propagation"
	"github.com/star/skypass/internal/tle"
	"github.com/star/skypass/internal/transform"
)

// GroundTrackPoint is a sub-satellite position at a specific time during a pass.
type GroundTrackPoint struct {
	Time      time.Time `json:"time"`
	Latitude  float64   `json:"latitude"`  // degrees
	Longitude float64   `json:"longitude"` // degrees
	Altitude  float64   `json:"altitude"`  // meters
	Elevation float64   `json:"elevation"` // degrees above the observer's horizon
	Eclipsed  bool      `json:"eclipsed"`
}

// PassEvent describes a single satellite pass over an observer location.
type PassEvent struct {
	StartTime        time.Time          `json:"start_time"`
	MaxElevationTime time.Time          `json:"max_elevation_time"`
	EndTime          time.Time          `json:"end_time"`
	DurationSeconds  float64            `json:"duration_seconds"`
	MaxElevation     float64            `json:"max_elevation"`
	AzimuthAtMax     float64            `json:"azimuth_at_max"`
	StartAzimuth     float64            `json:"start_azimuth"`
	EndAzimuth       float64            `json:"end_azimuth"`
	DopplerAOS       float64            `json:"doppler_aos_hz,omitempty"`
	DopplerLOS       float64            `json:"doppler_los_hz,omitempty"`
	Visible          bool               `json:"visible"`
	GroundTrack      []GroundTrackPoint `json:"ground_track"`
}

// SatellitePasses holds the predicted passes for one satellite.
type SatellitePasses struct {
	NORADID int         `json:"norad_id"`
	Passes  []PassEvent `json:"passes"`
	Error   string      `json:"error,omitempty"`
}

// Request holds the parameters for a pass prediction request.
type Request struct {
	Observer      transform.Observer
	Entries       []tle.TLEEntry
	Start         time.Time
	HorizonHours  float64
	MinElevation  float64 // degrees; passes culminating lower are dropped
	MaxPasses     int
	FrequencyHz   float64 // downlink frequency for Doppler, 0 to skip
	Search        SearchConfig
	NoGroundTrack bool
}

const (
	groundTrackStep  = 10 * time.Second
	minPassDur       = 10 * time.Second
	defaultMaxPasses = 50
)

// Predict computes satellite passes for the given request. Each satellite
// is processed in its own goroutine with its own Orbit, bounded by a
// semaphore.
func Predict(ctx context.Context, req Request) []SatellitePasses {
	results := make([]SatellitePasses, len(req.Entries))
	sem := make(chan struct{}, runtime.NumCPU())
	searcher := NewSearcher(req.Search)
	var wg sync.WaitGroup

	for i, entry := range req.Entries {
		wg.Add(1)
		go func(idx int, e tle.TLEEntry) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				results[idx] = SatellitePasses{
					NORADID: e.NORADID,
					Error:   "cancelled",
				}
				return
			}

			passes, err := predictSatellite(ctx, searcher, req, e)
			results[idx] = SatellitePasses{NORADID: e.NORADID, Passes: passes}
			if err != nil {
				results[idx].Error = err.Error()
			}
		}(i, entry)
	}

	wg.Wait()
	return results
}

// predictSatellite finds all passes for a single satellite. Passes found
// before an error are returned with it.
func predictSatellite(ctx context.Context, s *Searcher, req Request, entry tle.TLEEntry) (passes []PassEvent, err error) {
	ctx, span := observability.StartSpan(ctx, "passes.predict",
		attribute.Int("norad_id", entry.NORADID),
		attribute.String("observer", req.Observer.Name),
	)
	defer func() {
		span.SetAttributes(attribute.Int("passes", len(passes)))
		observability.EndSpan(span, err)
	}()

	el := entry.Elements
	if el == nil {
		if el, err = tle.ParseElements(entry.Name, entry.Line1, entry.Line2); err != nil {
			return nil, fmt.Errorf("parse elements: %w", err)
		}
	}
	orbit := propagation.NewOrbit(el)

	start := julian.FromTime(req.Start)
	end := start.Add(time.Duration(req.HorizonHours * float64(time.Hour)))
	minEl := earth.Rad(req.MinElevation)
	maxPasses := req.MaxPasses
	if maxPasses <= 0 {
		maxPasses = defaultMaxPasses
	}

	t := start
	for t.Before(end) && len(passes) < maxPasses {
		if ctx.Err() != nil {
			return passes, nil
		}

		p, err := s.NextPass(ctx, req.Observer, orbit, t)
		if err != nil {
			if errors.Is(err, ErrSearchExhausted) || errors.Is(err, context.Canceled) {
				return passes, nil
			}
			return passes, err
		}
		if !p.AOS.Time.Before(end) {
			break
		}

		if p.TCA.Elevation >= minEl && p.Duration() >= minPassDur {
			ev, err := passEvent(ctx, req, orbit, p)
			if err != nil {
				return passes, err
			}
			passes = append(passes, ev)
		}

		// Resume just past this pass's LOS.
		t = p.LOS.Time.Add(s.cfg.Precision + time.Second)
	}

	return passes, nil
}

// passEvent summarizes p and samples its ground track.
func passEvent(ctx context.Context, req Request, orbit *propagation.Orbit, p Pass) (PassEvent, error) {
	ev := PassEvent{
		StartTime:        p.AOS.Time.Time(),
		MaxElevationTime: p.TCA.Time.Time(),
		EndTime:          p.LOS.Time.Time(),
		DurationSeconds:  p.Duration().Seconds(),
		MaxElevation:     earth.Deg(p.TCA.Elevation),
		AzimuthAtMax:     earth.Deg(p.TCA.Azimuth),
		StartAzimuth:     earth.Deg(p.AOS.Azimuth),
		EndAzimuth:       earth.Deg(p.LOS.Azimuth),
		Visible:          p.AOS.Visible || p.TCA.Visible || p.LOS.Visible,
	}
	if req.FrequencyHz > 0 {
		ev.DopplerAOS = transform.DopplerShift(p.AOS, req.FrequencyHz)
		ev.DopplerLOS = transform.DopplerShift(p.LOS, req.FrequencyHz)
	}
	if req.NoGroundTrack {
		return ev, nil
	}

	n := int(p.Duration()/groundTrackStep) + 2
	grid := floats.Span(make([]float64, n), float64(p.AOS.Time), float64(p.LOS.Time))

	ev.GroundTrack = make([]GroundTrackPoint, 0, n)
	for _, d := range grid {
		pos, err := orbit.Predict(ctx, julian.Date(d))
		if err != nil {
			return ev, err
		}
		o := pos.Observe(req.Observer)
		if o.Visible {
			ev.Visible = true
		}
		ev.GroundTrack = append(ev.GroundTrack, GroundTrackPoint{
			Time:      pos.Time.Time(),
			Latitude:  earth.Deg(pos.Latitude),
			Longitude: earth.Deg(pos.Longitude),
			Altitude:  pos.Altitude * 1000,
			Elevation: earth.Deg(o.Elevation),
			Eclipsed:  pos.Eclipsed,
		})
	}
	return ev, nil
}
