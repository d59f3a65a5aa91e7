package propagation

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/star/skypass/internal/metrics"
	"github.com/star/skypass/internal/tle"
)

// orbitCache holds initialized orbits for one catalog. The map is
// immutable after construction; deep-space orbits in it guard their own
// integrator state.
type orbitCache struct {
	orbits    map[int]*Orbit
	fetchedAt time.Time
}

// Propagator propagates whole catalogs held in a tle.Store.
type Propagator struct {
	store   *tle.Store
	pool    *WorkerPool
	config  PropConfig
	logger  *slog.Logger
	cache   atomic.Pointer[orbitCache]
	cacheMu sync.Mutex // serializes cache rebuilds
}

// NewPropagator creates a catalog propagator.
func NewPropagator(store *tle.Store, config PropConfig, logger *slog.Logger) *Propagator {
	return &Propagator{
		store:  store,
		pool:   NewWorkerPool(config.Workers, logger),
		config: config,
		logger: logger,
	}
}

// Config returns the configuration the propagator was built with.
func (p *Propagator) Config() PropConfig { return p.config }

// orbits returns the initialized orbits for ds, rebuilding when the
// dataset has changed (double-checked locking).
func (p *Propagator) orbits(ds *tle.TLEDataset) map[int]*Orbit {
	if c := p.cache.Load(); c != nil && c.fetchedAt.Equal(ds.FetchedAt) {
		return c.orbits
	}

	p.cacheMu.Lock()
	defer p.cacheMu.Unlock()

	if c := p.cache.Load(); c != nil && c.fetchedAt.Equal(ds.FetchedAt) {
		return c.orbits
	}

	orbits := make(map[int]*Orbit, len(ds.Satellites))
	var skipped, deep int
	for _, entry := range ds.Satellites {
		if _, ok := orbits[entry.NORADID]; ok {
			continue
		}
		if entry.Elements == nil {
			p.logger.Warn("orbit cache init failed", "norad_id", entry.NORADID, "error", "entry has no parsed elements")
			skipped++
			continue
		}
		o := NewOrbit(entry.Elements)
		if o.Model() == tle.ModelDeepSpace {
			deep++
		}
		orbits[entry.NORADID] = o
	}

	p.logger.Info("orbit cache rebuilt",
		"cached", len(orbits),
		"deep_space", deep,
		"skipped", skipped,
		"dataset_fetched_at", ds.FetchedAt.UTC().Format(time.RFC3339),
	)
	p.cache.Store(&orbitCache{orbits: orbits, fetchedAt: ds.FetchedAt})
	return orbits
}

// Orbit returns a private clone of the cached orbit for noradID, suitable
// for callers that walk time on their own (pass searches, streams).
func (p *Propagator) Orbit(noradID int) (*Orbit, error) {
	ds := p.store.Get()
	if ds == nil {
		return nil, tle.ErrNoDataset
	}
	o, ok := p.orbits(ds)[noradID]
	if !ok {
		return nil, fmt.Errorf("norad %d: %w", noradID, tle.ErrNotFound)
	}
	return o.Clone(), nil
}

// PropagateToTime generates a single keyframe at targetTime for the
// current catalog.
func (p *Propagator) PropagateToTime(ctx context.Context, targetTime time.Time) (*Keyframe, error) {
	ds := p.store.Get()
	if ds == nil {
		return nil, tle.ErrNoDataset
	}

	orbits := p.orbits(ds)

	p.logger.Debug("propagating",
		"satellite_count", len(orbits),
		"target_time", targetTime.UTC().Format(time.RFC3339),
		"workers", p.config.Workers,
	)

	start := time.Now()
	positions, successCount, errorCount := p.pool.PropagateBatch(ctx, orbits, targetTime)
	duration := time.Since(start)

	metrics.RecordBatch(duration, successCount, errorCount)

	p.logger.Debug("propagation complete",
		"success", successCount,
		"errors", errorCount,
		"duration_ms", duration.Milliseconds(),
	)

	return &Keyframe{
		Timestamp:  targetTime,
		Satellites: positions,
	}, nil
}

// GenerateKeyframes generates keyframes from startTime over the configured
// horizon at the configured step.
func (p *Propagator) GenerateKeyframes(ctx context.Context, startTime time.Time) ([]*Keyframe, error) {
	if p.store.Get() == nil {
		return nil, tle.ErrNoDataset
	}

	numFrames := int(p.config.Horizon/p.config.Step) + 1
	keyframes := make([]*Keyframe, 0, numFrames)

	for i := 0; i < numFrames; i++ {
		select {
		case <-ctx.Done():
			return keyframes, ctx.Err()
		default:
		}

		targetTime := startTime.Add(time.Duration(i) * p.config.Step)
		kf, err := p.PropagateToTime(ctx, targetTime)
		if err != nil {
			return keyframes, fmt.Errorf("keyframe %d at %s: %w", i, targetTime.Format(time.RFC3339), err)
		}
		keyframes = append(keyframes, kf)
	}

	return keyframes, nil
}
