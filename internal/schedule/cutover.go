package schedule

import (
	"context"
	"time"

	"github.com/star/skypass/internal/metrics"
)

// catalogChanged reports whether the store holds a different dataset from
// the one the table was built from.
func (s *Schedule) catalogChanged() bool {
	ds := s.store.Get()
	if ds == nil {
		return false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return !ds.FetchedAt.Equal(s.currentFetchedAt)
}

// rebuild replaces the whole table from the current catalog. Reads keep
// hitting the old table until the swap.
func (s *Schedule) rebuild(ctx context.Context) {
	ds := s.store.Get()
	if ds == nil {
		return
	}

	s.mu.RLock()
	old := s.currentFetchedAt
	s.mu.RUnlock()

	s.logger.Info("schedule rebuild starting",
		"old_dataset_fetched_at", old.UTC().Format(time.RFC3339),
		"new_dataset_fetched_at", ds.FetchedAt.UTC().Format(time.RFC3339),
	)

	s.rebuilding.Store(true)
	defer s.rebuilding.Store(false)

	start := time.Now()
	now := s.now()
	to := now.Add(s.config.Horizon)

	table, err := s.build(ctx, ds, now, to, false)
	if err != nil {
		s.logger.Warn("schedule rebuild cancelled", "error", err)
		return
	}
	s.replaceAll(table, to, ds.FetchedAt)

	duration := time.Since(start)
	n := count(table)
	metrics.RecordScheduleRebuild(duration, n)
	s.logger.Info("schedule rebuild complete",
		"duration_ms", duration.Milliseconds(),
		"passes", n,
	)
}
