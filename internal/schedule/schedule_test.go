package schedule

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/star/skypass/internal/passes"
	"github.com/star/skypass/internal/tle"
	"github.com/star/skypass/internal/transform"
)

const (
	issLine1 = "1 25544U 98067A   25045.18032407  .00016717  00000+0  30099-3 0  9996"
	issLine2 = "2 25544  51.6412 193.5765 0003457 126.2851 233.8519 15.49874301495057"
)

var (
	clockStart = time.Date(2025, 2, 14, 12, 0, 0, 0, time.UTC)
	nyc        = transform.NewObserverDegrees("nyc", 40.7128, -74.006, 10)
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

func testStore(fetchedAt time.Time) *tle.Store {
	store := tle.NewStore()
	store.Set(tle.NewDataset("test", fetchedAt, []tle.TLEEntry{
		{NORADID: 25544, Name: "ISS (ZARYA)", Line1: issLine1, Line2: issLine2},
	}))
	return store
}

func testConfig() Config {
	return Config{
		Horizon:   12 * time.Hour,
		Refresh:   time.Minute,
		Buffer:    time.Minute,
		MaxPasses: 20,
	}
}

// testSchedule returns a schedule whose clock is controlled by *now.
func testSchedule(store *tle.Store, now *time.Time) *Schedule {
	s := New(testConfig(), passes.SearchConfig{}, []transform.Observer{nyc}, store, testLogger())
	s.now = func() time.Time { return *now }
	return s
}

// TestRebuild verifies that a build fills the horizon with sorted passes
// and no ground tracks.
func TestRebuild(t *testing.T) {
	now := clockStart
	s := testSchedule(testStore(clockStart), &now)

	s.rebuild(context.Background())

	got, ok := s.Upcoming("nyc", now)
	require.True(t, ok)
	require.NotEmpty(t, got)

	for i, e := range got {
		assert.Equal(t, 25544, e.NORADID)
		assert.Equal(t, "ISS (ZARYA)", e.Name)
		assert.Equal(t, "nyc", e.Station)
		assert.Nil(t, e.Pass.GroundTrack)
		assert.True(t, e.Pass.StartTime.Before(now.Add(12*time.Hour)))
		if i > 0 {
			assert.True(t, got[i-1].Pass.StartTime.Before(e.Pass.StartTime))
		}
	}

	stats := s.Stats()
	assert.Equal(t, len(got), stats.Passes)
	assert.Equal(t, 1, stats.Stations)
	assert.True(t, stats.Through.Equal(now.Add(12*time.Hour)))
	assert.False(t, s.catalogChanged())
}

// TestExtendNoDuplicates verifies that extending the leading edge never
// repeats a pass.
func TestExtendNoDuplicates(t *testing.T) {
	now := clockStart
	s := testSchedule(testStore(clockStart), &now)
	ctx := context.Background()

	s.rebuild(ctx)
	before := s.Stats().Passes

	for i := 0; i < 6; i++ {
		now = now.Add(2 * time.Hour)
		s.extend(ctx)
	}

	got, _ := s.Upcoming("nyc", clockStart)
	assert.Greater(t, len(got), before)
	for i := 1; i < len(got); i++ {
		gap := got[i].Pass.StartTime.Sub(got[i-1].Pass.EndTime)
		assert.Greater(t, gap, time.Minute, "passes %d and %d overlap", i-1, i)
	}
	assert.True(t, s.Stats().Through.Equal(now.Add(12*time.Hour)))
}

// TestEvictExpired verifies that ended passes leave after the buffer.
func TestEvictExpired(t *testing.T) {
	now := clockStart
	s := testSchedule(testStore(clockStart), &now)
	s.rebuild(context.Background())

	total := s.Stats().Passes
	require.NotZero(t, total)

	now = clockStart.Add(13 * time.Hour)
	removed := s.evictExpired()
	assert.Equal(t, total, removed)
	assert.Zero(t, s.Stats().Passes)
	assert.Equal(t, int64(total), s.Stats().Evictions)
}

// TestCatalogChangeTriggersRebuild verifies the cutover path in tick.
func TestCatalogChangeTriggersRebuild(t *testing.T) {
	now := clockStart
	store := testStore(clockStart)
	s := testSchedule(store, &now)
	ctx := context.Background()

	s.rebuild(ctx)
	assert.False(t, s.catalogChanged())

	fetched := clockStart.Add(time.Hour)
	store.Set(tle.NewDataset("test", fetched, store.Get().Satellites))
	assert.True(t, s.catalogChanged())

	s.tick(ctx)
	assert.False(t, s.catalogChanged())
	assert.True(t, s.Stats().CatalogEpoch.Equal(fetched))
}

// TestSelectedSatellites verifies explicit satellite lists and the
// catalog cap.
func TestSelectedSatellites(t *testing.T) {
	now := clockStart
	store := testStore(clockStart)
	s := testSchedule(store, &now)

	s.config.Satellites = []int{25544, 99999}
	got := s.satellites(store.Get())
	require.Len(t, got, 1)
	assert.Equal(t, 25544, got[0].NORADID)

	s.config.Satellites = nil
	s.config.MaxSatellites = 1
	assert.Len(t, s.satellites(store.Get()), 1)
}

// TestUnknownStation verifies lookups against stations that are not
// configured.
func TestUnknownStation(t *testing.T) {
	now := clockStart
	s := testSchedule(testStore(clockStart), &now)

	_, ok := s.Upcoming("goldstone", now)
	assert.False(t, ok)
	_, ok = s.Station("goldstone")
	assert.False(t, ok)
	_, ok = s.Next("goldstone", 25544, now)
	assert.False(t, ok)
}

// TestNext verifies the per-satellite lookup.
func TestNext(t *testing.T) {
	now := clockStart
	s := testSchedule(testStore(clockStart), &now)
	s.rebuild(context.Background())

	e, ok := s.Next("nyc", 25544, now)
	require.True(t, ok)
	assert.True(t, e.Pass.EndTime.After(now))

	_, ok = s.Next("nyc", 11801, now)
	assert.False(t, ok)
}

// TestStartWithoutStations verifies that an empty station list returns
// immediately.
func TestStartWithoutStations(t *testing.T) {
	s := New(testConfig(), passes.SearchConfig{}, nil, testStore(clockStart), testLogger())

	done := make(chan struct{})
	go func() {
		s.Start(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Start did not return without stations")
	}
}

// TestStartStopsOnCancel verifies the generator exits when ctx is
// cancelled while waiting for a catalog.
func TestStartStopsOnCancel(t *testing.T) {
	s := New(testConfig(), passes.SearchConfig{}, []transform.Observer{nyc}, tle.NewStore(), testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Start(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("Start did not stop after cancel")
	}
}
