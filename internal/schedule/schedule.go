// Package schedule keeps a rolling table of upcoming passes for every
// configured ground station.
//
// A background generator fills [now, now+horizon] on start, extends the
// leading edge on every refresh and drops passes that ended more than
// Buffer ago. When the catalog changes the whole table is rebuilt while
// the old one keeps serving reads.
package schedule

import (
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/star/skypass/internal/metrics"
	"github.com/star/skypass/internal/passes"
	"github.com/star/skypass/internal/tle"
	"github.com/star/skypass/internal/transform"
)

// Config holds schedule configuration.
type Config struct {
	Horizon       time.Duration // how far ahead passes are kept (default: 24h)
	Refresh       time.Duration // maintenance interval (default: 1m)
	Buffer        time.Duration // keep ended passes this long (default: 5m)
	MinElevation  float64       // degrees
	MaxPasses     int           // per satellite per build
	MaxSatellites int           // cap when Satellites is empty
	Satellites    []int         // NORAD IDs; empty means the head of the catalog
}

// Entry is one scheduled pass. Ground tracks are not kept.
type Entry struct {
	Station string           `json:"station"`
	NORADID int              `json:"norad_id"`
	Name    string           `json:"name"`
	Pass    passes.PassEvent `json:"pass"`
}

// Schedule is the pass table. Safe for concurrent use.
type Schedule struct {
	mu        sync.RWMutex
	byStation map[string][]Entry // sorted by AOS
	through   time.Time          // passes with AOS before this are known

	stations []transform.Observer
	config   Config
	search   passes.SearchConfig
	store    *tle.Store
	logger   *slog.Logger
	now      func() time.Time

	currentFetchedAt time.Time // guarded by mu

	evictions  atomic.Int64
	rebuilding atomic.Bool
}

// New creates an empty schedule for stations.
func New(config Config, search passes.SearchConfig, stations []transform.Observer, store *tle.Store, logger *slog.Logger) *Schedule {
	logger.Info("schedule initialized",
		"stations", len(stations),
		"horizon_seconds", config.Horizon.Seconds(),
		"refresh_seconds", config.Refresh.Seconds(),
	)
	return &Schedule{
		byStation: make(map[string][]Entry, len(stations)),
		stations:  stations,
		config:    config,
		search:    search,
		store:     store,
		logger:    logger,
		now:       time.Now,
	}
}

// Station returns the observer configured under name.
func (s *Schedule) Station(name string) (transform.Observer, bool) {
	for _, o := range s.stations {
		if o.Name == name {
			return o, true
		}
	}
	return transform.Observer{}, false
}

// Stations returns the configured observers.
func (s *Schedule) Stations() []transform.Observer {
	return s.stations
}

// Upcoming returns the passes at station whose LOS is after t, in AOS
// order. The second result is false for an unknown station.
func (s *Schedule) Upcoming(station string, t time.Time) ([]Entry, bool) {
	if _, ok := s.Station(station); !ok {
		return nil, false
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	all := s.byStation[station]
	out := make([]Entry, 0, len(all))
	for _, e := range all {
		if e.Pass.EndTime.After(t) {
			out = append(out, e)
		}
	}
	return out, true
}

// Next returns the first pass of noradID at station whose LOS is after t.
func (s *Schedule) Next(station string, noradID int, t time.Time) (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, e := range s.byStation[station] {
		if e.NORADID == noradID && e.Pass.EndTime.After(t) {
			return e, true
		}
	}
	return Entry{}, false
}

// merge adds entries found for the window starting at the current leading
// edge and advances the edge to through.
func (s *Schedule) merge(found map[string][]Entry, through time.Time) {
	s.mu.Lock()
	for station, entries := range found {
		list := append(s.byStation[station], entries...)
		sortEntries(list)
		s.byStation[station] = list
	}
	s.through = through
	s.mu.Unlock()

	s.updateMetrics()
}

// replaceAll swaps in a table rebuilt from the catalog fetched at fetchedAt.
func (s *Schedule) replaceAll(table map[string][]Entry, through, fetchedAt time.Time) {
	for _, list := range table {
		sortEntries(list)
	}

	s.mu.Lock()
	s.byStation = table
	s.through = through
	s.currentFetchedAt = fetchedAt
	s.mu.Unlock()

	s.updateMetrics()
}

// evictExpired removes passes that ended before now - buffer.
func (s *Schedule) evictExpired() int {
	cutoff := s.now().Add(-s.config.Buffer)
	var removed int

	s.mu.Lock()
	for station, list := range s.byStation {
		kept := list[:0]
		for _, e := range list {
			if e.Pass.EndTime.Before(cutoff) {
				removed++
				continue
			}
			kept = append(kept, e)
		}
		s.byStation[station] = kept
	}
	s.mu.Unlock()

	if removed > 0 {
		s.evictions.Add(int64(removed))
		s.updateMetrics()
		s.logger.Debug("schedule eviction", "passes_removed", removed)
	}
	return removed
}

// Stats holds schedule statistics.
type Stats struct {
	Stations     int       `json:"stations"`
	Passes       int       `json:"passes"`
	Through      time.Time `json:"through"`
	Evictions    int64     `json:"evictions"`
	Rebuilding   bool      `json:"rebuilding"`
	CatalogEpoch time.Time `json:"catalog_fetched_at"`
}

// Stats returns current schedule statistics.
func (s *Schedule) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return Stats{
		Stations:     len(s.stations),
		Passes:       s.countLocked(),
		Through:      s.through,
		Evictions:    s.evictions.Load(),
		Rebuilding:   s.rebuilding.Load(),
		CatalogEpoch: s.currentFetchedAt,
	}
}

func (s *Schedule) countLocked() int {
	n := 0
	for _, list := range s.byStation {
		n += len(list)
	}
	return n
}

func (s *Schedule) updateMetrics() {
	s.mu.RLock()
	n := s.countLocked()
	s.mu.RUnlock()
	metrics.SetSchedulePasses(n)
}

func sortEntries(list []Entry) {
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].Pass.StartTime.Before(list[j].Pass.StartTime)
	})
}
