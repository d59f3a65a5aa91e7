package schedule

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/star/skypass/internal/observability"
	"github.com/star/skypass/internal/passes"
	"github.com/star/skypass/internal/tle"
)

// Start runs the maintenance loop: an initial build once a catalog is
// available, then on every refresh either a rebuild (catalog changed) or a
// leading-edge extension followed by eviction.
//
// Blocks until ctx is cancelled.
func (s *Schedule) Start(ctx context.Context) {
	if len(s.stations) == 0 {
		s.logger.Info("no ground stations configured, schedule idle")
		return
	}
	if !s.waitForTLEData(ctx) {
		return
	}

	s.rebuild(ctx)

	ticker := time.NewTicker(s.config.Refresh)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("schedule generator stopped")
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// waitForTLEData blocks until the store holds a dataset. Returns false if
// ctx is cancelled first.
func (s *Schedule) waitForTLEData(ctx context.Context) bool {
	if s.store.Get() != nil {
		return true
	}

	s.logger.Info("schedule waiting for TLE data...")
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
			if s.store.Get() != nil {
				s.logger.Info("TLE data available, building schedule")
				return true
			}
		}
	}
}

func (s *Schedule) tick(ctx context.Context) {
	if s.catalogChanged() {
		s.rebuild(ctx)
		return
	}
	s.extend(ctx)
	s.evictExpired()
}

// extend searches the window between the current leading edge and
// now+horizon.
func (s *Schedule) extend(ctx context.Context) {
	ds := s.store.Get()
	if ds == nil {
		return
	}

	s.mu.RLock()
	from := s.through
	s.mu.RUnlock()

	to := s.now().Add(s.config.Horizon)
	if !to.After(from) {
		return
	}

	start := time.Now()
	found, err := s.build(ctx, ds, from, to, true)
	if err != nil {
		s.logger.Warn("schedule extension failed", "error", err)
		return
	}
	s.merge(found, to)

	s.logger.Debug("schedule extended",
		"from", from.UTC().Format(time.RFC3339),
		"to", to.UTC().Format(time.RFC3339),
		"passes_added", count(found),
		"duration_ms", time.Since(start).Milliseconds(),
	)
}

// build finds the passes with AOS in [from, to) for every station. With
// skipPartial set, a pass already in progress at from is dropped: it was
// found by the previous window.
func (s *Schedule) build(ctx context.Context, ds *tle.TLEDataset, from, to time.Time, skipPartial bool) (table map[string][]Entry, err error) {
	entries := s.satellites(ds)

	ctx, span := observability.StartSpan(ctx, "schedule.build",
		attribute.Int("stations", len(s.stations)),
		attribute.Int("satellites", len(entries)),
		attribute.String("from", from.UTC().Format(time.RFC3339)),
		attribute.String("to", to.UTC().Format(time.RFC3339)),
	)
	defer func() { observability.EndSpan(span, err) }()

	names := make(map[int]string, len(entries))
	for _, e := range entries {
		names[e.NORADID] = e.Name
	}

	table = make(map[string][]Entry, len(s.stations))
	for _, obs := range s.stations {
		results := passes.Predict(ctx, passes.Request{
			Observer:      obs,
			Entries:       entries,
			Start:         from,
			HorizonHours:  to.Sub(from).Hours(),
			MinElevation:  s.config.MinElevation,
			MaxPasses:     s.config.MaxPasses,
			Search:        s.search,
			NoGroundTrack: true,
		})
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		list := table[obs.Name]
		for _, r := range results {
			if r.Error != "" {
				s.logger.Debug("schedule pass search failed",
					"station", obs.Name,
					"norad_id", r.NORADID,
					"error", r.Error,
				)
				continue
			}
			for _, p := range r.Passes {
				if skipPartial && !p.StartTime.After(from) {
					continue
				}
				list = append(list, Entry{Station: obs.Name, NORADID: r.NORADID, Name: names[r.NORADID], Pass: p})
			}
		}
		table[obs.Name] = list
	}
	return table, nil
}

// satellites selects the catalog entries to schedule.
func (s *Schedule) satellites(ds *tle.TLEDataset) []tle.TLEEntry {
	if len(s.config.Satellites) == 0 {
		n := len(ds.Satellites)
		if s.config.MaxSatellites > 0 && n > s.config.MaxSatellites {
			n = s.config.MaxSatellites
		}
		return ds.Satellites[:n]
	}

	out := make([]tle.TLEEntry, 0, len(s.config.Satellites))
	for _, id := range s.config.Satellites {
		e, err := s.store.Lookup(id)
		if err != nil {
			if errors.Is(err, tle.ErrNotFound) {
				s.logger.Warn("scheduled satellite not in catalog", "norad_id", id)
				continue
			}
			s.logger.Warn("catalog lookup failed", "norad_id", id, "error", err)
			continue
		}
		out = append(out, e)
	}
	return out
}

func count(table map[string][]Entry) int {
	n := 0
	for _, list := range table {
		n += len(list)
	}
	return n
}
