package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/star/skypass/internal/passes"
	"github.com/star/skypass/internal/propagation"
	"github.com/star/skypass/internal/tle"
	"github.com/star/skypass/internal/transform"
)

const (
	issLine1 = "1 25544U 98067A   25045.18032407  .00016717  00000+0  30099-3 0  9996"
	issLine2 = "2 25544  51.6412 193.5765 0003457 126.2851 233.8519 15.49874301495057"

	decayLine1 = "1 88888U          80275.98708465  .00073094  13844-3  50000-0 0    81"
	decayLine2 = "2 88888  72.8435 115.9689 0086731  52.6988 110.5714 16.05824518  1058"
)

var clock = time.Date(2025, 2, 14, 12, 0, 0, 0, time.UTC)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	}))
}

// fakeOrbits hands out fresh orbits for the TLE sets it knows.
type fakeOrbits map[int][2]string

func (f fakeOrbits) Orbit(id int) (*propagation.Orbit, error) {
	lines, ok := f[id]
	if !ok {
		return nil, fmt.Errorf("NORAD %d: %w", id, tle.ErrNotFound)
	}
	return propagation.NewOrbitFromLines("", lines[0], lines[1])
}

type fakeStations map[string]transform.Observer

func (f fakeStations) Station(name string) (transform.Observer, bool) {
	o, ok := f[name]
	return o, ok
}

func testHandler(cfg Config, now time.Time) *Handler {
	store := tle.NewStore()
	store.Set(tle.NewDataset("test", now.Add(-30*time.Minute), nil))

	orbits := fakeOrbits{
		25544: {issLine1, issLine2},
		88888: {decayLine1, decayLine2},
	}
	stations := fakeStations{
		"nyc": transform.NewObserverDegrees("nyc", 40.7128, -74.006, 10),
	}
	h := NewHandler(orbits, stations, store, passes.SearchConfig{}, cfg, testLogger())
	h.now = func() time.Time { return now }
	return h
}

func testConfig() Config {
	return Config{
		MaxConcurrentPerIP: 10,
		KeepaliveInterval:  5 * time.Second,
		Interval:           time.Second,
	}
}

type sseEvent struct {
	name string
	data map[string]any
}

// parseEvents splits an SSE body into events, failing on malformed lines.
func parseEvents(t *testing.T, body string) []sseEvent {
	t.Helper()
	var events []sseEvent
	for _, block := range strings.Split(body, "\n\n") {
		if block == "" || block == ":" || strings.HasPrefix(block, "retry: ") {
			continue
		}
		var ev sseEvent
		for _, line := range strings.Split(block, "\n") {
			switch {
			case strings.HasPrefix(line, "event: "):
				ev.name = strings.TrimPrefix(line, "event: ")
			case strings.HasPrefix(line, "data: "):
				require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev.data))
			default:
				t.Errorf("unexpected SSE line: %q", line)
			}
		}
		events = append(events, ev)
	}
	return events
}

func streamRequest(ctx context.Context, id, query string) *http.Request {
	req := httptest.NewRequest("GET", "/api/v1/stream/track/"+id+query, nil)
	req.SetPathValue("norad_id", id)
	req.RemoteAddr = "127.0.0.1:12345"
	return req.WithContext(ctx)
}

// TestTrackStream verifies headers, the metadata event and the track
// events for a station stream.
func TestTrackStream(t *testing.T) {
	h := testHandler(testConfig(), clock)

	ctx, cancel := context.WithTimeout(context.Background(), 1500*time.Millisecond)
	defer cancel()

	w := httptest.NewRecorder()
	h.HandleTrack(w, streamRequest(ctx, "25544", "?station=nyc&freq=437800000"))

	resp := w.Result()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	assert.Equal(t, "no-cache", resp.Header.Get("Cache-Control"))
	assert.True(t, strings.HasPrefix(w.Body.String(), "retry: "))

	events := parseEvents(t, w.Body.String())
	require.GreaterOrEqual(t, len(events), 2)

	meta := events[0]
	require.Equal(t, "metadata", meta.name)
	assert.Equal(t, float64(25544), meta.data["norad_id"])
	assert.Equal(t, "nyc", meta.data["station"])
	assert.Equal(t, "near-earth", meta.data["model"])
	assert.Equal(t, float64(1800), meta.data["tle_age_seconds"])
	require.Contains(t, meta.data, "next_pass")

	for _, ev := range events[1:] {
		require.Equal(t, "track", ev.name)
		az := ev.data["az"].(float64)
		el := ev.data["el"].(float64)
		assert.True(t, az >= 0 && az < 360, "az %v", az)
		assert.True(t, el >= -90 && el <= 90, "el %v", el)
		assert.Greater(t, ev.data["range_km"].(float64), 0.0)
		assert.Contains(t, ev.data, "doppler_hz")
		assert.InDelta(t, 420, ev.data["alt_km"].(float64), 40)
	}
}

// TestTrackCoordinates verifies streams for explicit coordinates.
func TestTrackCoordinates(t *testing.T) {
	h := testHandler(testConfig(), clock)

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	w := httptest.NewRecorder()
	h.HandleTrack(w, streamRequest(ctx, "25544", "?lat=27.5867&lon=-82.4251&alt=5"))
	require.Equal(t, http.StatusOK, w.Code)

	events := parseEvents(t, w.Body.String())
	require.NotEmpty(t, events)
	assert.Equal(t, "metadata", events[0].name)
	assert.NotContains(t, events[0].data, "station")
}

// TestTrackDecayEndsStream verifies that a decayed orbit sends an error
// event and closes the stream without waiting for the client.
func TestTrackDecayEndsStream(t *testing.T) {
	el, err := tle.ParseElements("", decayLine1, decayLine2)
	require.NoError(t, err)
	h := testHandler(testConfig(), el.Epoch().Add(24*time.Hour))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	start := time.Now()
	w := httptest.NewRecorder()
	h.HandleTrack(w, streamRequest(ctx, "88888", "?station=nyc"))
	assert.Less(t, time.Since(start), 5*time.Second)

	events := parseEvents(t, w.Body.String())
	require.Len(t, events, 2)
	assert.Equal(t, "metadata", events[0].name)
	assert.Contains(t, events[0].data["pass_error"], "decayed")
	assert.Equal(t, "error", events[1].name)
	assert.Contains(t, events[1].data["error"], "decayed")
}

// TestInvalidQueryParams verifies error responses for bad parameters.
func TestInvalidQueryParams(t *testing.T) {
	h := testHandler(testConfig(), clock)

	tests := []struct {
		name   string
		id     string
		query  string
		status int
	}{
		{"bad norad id", "abc", "?station=nyc", http.StatusBadRequest},
		{"zero norad id", "0", "?station=nyc", http.StatusBadRequest},
		{"no observer", "25544", "", http.StatusBadRequest},
		{"latitude out of range", "25544", "?lat=91&lon=0", http.StatusBadRequest},
		{"bad altitude", "25544", "?lat=40&lon=0&alt=high", http.StatusBadRequest},
		{"unknown station", "25544", "?station=goldstone", http.StatusNotFound},
		{"interval zero", "25544", "?station=nyc&interval=0", http.StatusBadRequest},
		{"interval too large", "25544", "?station=nyc&interval=100", http.StatusBadRequest},
		{"bad frequency", "25544", "?station=nyc&freq=-1", http.StatusBadRequest},
		{"unknown satellite", "12345", "?station=nyc", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			h.HandleTrack(w, streamRequest(context.Background(), tt.id, tt.query))
			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
		})
	}
}

// TestRateLimiting verifies per-IP concurrent stream limits.
func TestRateLimiting(t *testing.T) {
	limiter := newStreamLimiter(3, 0)

	for i := 0; i < 3; i++ {
		if !limiter.acquire("10.0.0.1") {
			t.Fatalf("acquire %d should succeed", i+1)
		}
	}
	if limiter.acquire("10.0.0.1") {
		t.Error("acquire beyond limit should fail")
	}
	if !limiter.acquire("10.0.0.2") {
		t.Error("different IP should not be rate limited")
	}

	limiter.release("10.0.0.1")
	if !limiter.acquire("10.0.0.1") {
		t.Error("acquire after release should succeed")
	}

	assert.Equal(t, 3, limiter.count("10.0.0.1"))
	assert.Equal(t, 1, limiter.count("10.0.0.2"))

	// Releasing an unknown IP must not corrupt the totals.
	limiter.release("10.9.9.9")
	assert.Equal(t, 4, limiter.total)
}

// TestRateLimitingGlobalCap verifies the overall stream cap.
func TestRateLimitingGlobalCap(t *testing.T) {
	limiter := newStreamLimiter(10, 2)
	assert.True(t, limiter.acquire("a"))
	assert.True(t, limiter.acquire("b"))
	assert.False(t, limiter.acquire("c"))
}

// TestRateLimitingConcurrent verifies rate limiter thread safety.
func TestRateLimitingConcurrent(t *testing.T) {
	limiter := newStreamLimiter(100, 0)

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if limiter.acquire("10.0.0.1") {
				defer limiter.release("10.0.0.1")
				time.Sleep(10 * time.Millisecond)
			}
		}()
	}
	wg.Wait()

	if c := limiter.count("10.0.0.1"); c != 0 {
		t.Errorf("count after all released = %d, want 0", c)
	}
}

// TestRateLimitHTTPResponse verifies the 429 response when the limit is
// exceeded.
func TestRateLimitHTTPResponse(t *testing.T) {
	cfg := testConfig()
	cfg.MaxConcurrentPerIP = 1
	h := testHandler(cfg, clock)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		h.HandleTrack(httptest.NewRecorder(), streamRequest(ctx, "25544", "?station=nyc"))
	}()

	require.Eventually(t, func() bool { return h.limiter.count("127.0.0.1") == 1 },
		2*time.Second, 10*time.Millisecond)

	w := httptest.NewRecorder()
	h.HandleTrack(w, streamRequest(context.Background(), "25544", "?station=nyc"))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))

	cancel()
	<-done
	assert.Zero(t, h.limiter.count("127.0.0.1"))
}

// TestClientIP verifies address extraction with and without trusted
// proxy headers.
func TestClientIP(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		xff        string
		xri        string
		trust      bool
		want       string
	}{
		{"remote addr", "192.168.1.1:12345", "", "", false, "192.168.1.1"},
		{"ipv6 remote addr", "[::1]:12345", "", "", false, "::1"},
		{"bare remote addr", "192.168.1.1", "", "", false, "192.168.1.1"},
		{"headers ignored when untrusted", "10.0.0.1:1234", "1.2.3.4", "5.6.7.8", false, "10.0.0.1"},
		{"xff single", "10.0.0.1:1234", "1.2.3.4", "", true, "1.2.3.4"},
		{"xff first of many", "10.0.0.3:1234", "1.2.3.4, 10.0.0.1, 10.0.0.2", "", true, "1.2.3.4"},
		{"x-real-ip fallback", "10.0.0.1:1234", "", "5.6.7.8", true, "5.6.7.8"},
		{"xff precedence", "10.0.0.1:1234", "1.2.3.4", "5.6.7.8", true, "1.2.3.4"},
		{"invalid xff falls through", "10.0.0.1:1234", "not-an-ip", "5.6.7.8", true, "5.6.7.8"},
		{"invalid headers use remote", "10.0.0.1:1234", "garbage", "junk", true, "10.0.0.1"},
		{"mapped ipv4", "10.0.0.1:1234", "::ffff:1.2.3.4", "", true, "1.2.3.4"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &http.Request{RemoteAddr: tt.remoteAddr, Header: http.Header{}}
			if tt.xff != "" {
				r.Header.Set("X-Forwarded-For", tt.xff)
			}
			if tt.xri != "" {
				r.Header.Set("X-Real-IP", tt.xri)
			}
			assert.Equal(t, tt.want, clientIP(r, tt.trust))
		})
	}
}

// TestTrackMessage verifies one observation payload.
func TestTrackMessage(t *testing.T) {
	orbit, err := propagation.NewOrbitFromLines("", issLine1, issLine2)
	require.NoError(t, err)

	p := trackParams{
		noradID:   25544,
		observer:  transform.NewObserverDegrees("nyc", 40.7128, -74.006, 10),
		frequency: 145.8e6,
	}
	msg, err := track(context.Background(), orbit, p, clock)
	require.NoError(t, err)

	assert.Equal(t, clock.Format(time.RFC3339Nano), msg.T)
	assert.NotZero(t, msg.Doppler)
	assert.Less(t, abs(msg.Doppler), 145.8e6*8/299792.458)
	if msg.Elevation > 0 {
		assert.GreaterOrEqual(t, msg.ApparentEl, msg.Elevation)
	}
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
