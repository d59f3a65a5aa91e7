// Package stream implements Server-Sent Events (SSE) tracking of a single
// satellite from a single ground station. Clients connect via
//
//	GET /api/v1/stream/track/{norad_id}?station=<name>
//	GET /api/v1/stream/track/{norad_id}?lat=<deg>&lon=<deg>&alt=<m>
//
// and receive look angles at a fixed interval until they disconnect.
//
// The first event is always metadata, including the next pass when one
// can be found:
//
//	event: metadata
//	data: {"norad_id":25544,"station":"nyc","dataset_epoch":"...","next_pass":{...}}
//
// followed by one track event per interval:
//
//	event: track
//	data: {"t":"2025-02-14T12:00:01Z","az":212.4,"el":31.2,"apparent_el":31.23,...}
//
// Keep-alive comments (:\n\n) are sent every KeepaliveInterval without data.
// A decayed orbit ends the stream with an error event.
package stream

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"math/rand"
	"net/http"
	"strconv"
	"time"

	"github.com/star/skypass/internal/earth"
	"github.com/star/skypass/internal/julian"
	"github.com/star/skypass/internal/metrics"
	"github.com/star/skypass/internal/passes"
	"github.com/star/skypass/internal/propagation"
	"github.com/star/skypass/internal/refraction"
	"github.com/star/skypass/internal/tle"
	"github.com/star/skypass/internal/transform"
)

// Config holds streaming configuration.
type Config struct {
	MaxConcurrentPerIP int           // default: 10
	MaxTotal           int           // default: 1000
	KeepaliveInterval  time.Duration // default: 30s
	Interval           time.Duration // default track interval: 1s
	TrustProxy         bool
}

// OrbitSource returns a private Orbit for a catalog number.
type OrbitSource interface {
	Orbit(noradID int) (*propagation.Orbit, error)
}

// StationSource resolves configured ground stations by name.
type StationSource interface {
	Station(name string) (transform.Observer, bool)
}

// Handler manages SSE tracking connections.
type Handler struct {
	orbits   OrbitSource
	stations StationSource
	store    *tle.Store
	searcher *passes.Searcher
	config   Config
	limiter  *streamLimiter
	logger   *slog.Logger
	now      func() time.Time
}

// NewHandler creates a tracking handler. stations may be nil, in which
// case only explicit coordinates are accepted.
func NewHandler(orbits OrbitSource, stations StationSource, store *tle.Store, search passes.SearchConfig, config Config, logger *slog.Logger) *Handler {
	if config.Interval <= 0 {
		config.Interval = time.Second
	}
	if config.KeepaliveInterval <= 0 {
		config.KeepaliveInterval = 30 * time.Second
	}
	return &Handler{
		orbits:   orbits,
		stations: stations,
		store:    store,
		searcher: passes.NewSearcher(search),
		config:   config,
		limiter:  newStreamLimiter(config.MaxConcurrentPerIP, config.MaxTotal),
		logger:   logger.With("component", "stream"),
		now:      time.Now,
	}
}

// trackParams are the validated query parameters of one stream.
type trackParams struct {
	noradID   int
	observer  transform.Observer
	interval  time.Duration
	frequency float64
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// parseParams validates the request; on failure it returns the HTTP status
// and message to send.
func (h *Handler) parseParams(r *http.Request) (trackParams, int, string) {
	var p trackParams
	q := r.URL.Query()

	id, err := strconv.Atoi(r.PathValue("norad_id"))
	if err != nil || id < 1 {
		return p, http.StatusBadRequest, "invalid norad_id"
	}
	p.noradID = id

	switch name := q.Get("station"); {
	case name != "":
		if h.stations == nil {
			return p, http.StatusNotFound, "unknown station"
		}
		obs, ok := h.stations.Station(name)
		if !ok {
			return p, http.StatusNotFound, "unknown station"
		}
		p.observer = obs
	default:
		lat, err1 := strconv.ParseFloat(q.Get("lat"), 64)
		lon, err2 := strconv.ParseFloat(q.Get("lon"), 64)
		if err1 != nil || err2 != nil || lat < -90 || lat > 90 || lon < -180 || lon > 360 {
			return p, http.StatusBadRequest, "station or lat/lon required"
		}
		alt := 0.0
		if v := q.Get("alt"); v != "" {
			if alt, err = strconv.ParseFloat(v, 64); err != nil || alt < -500 || alt > 10000 {
				return p, http.StatusBadRequest, "invalid alt parameter, must be -500 to 10000 m"
			}
		}
		p.observer = transform.NewObserverDegrees("", lat, lon, alt)
	}

	p.interval = h.config.Interval
	if v := q.Get("interval"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 60 {
			return p, http.StatusBadRequest, "invalid interval parameter, must be 1-60"
		}
		p.interval = time.Duration(n) * time.Second
	}

	if v := q.Get("freq"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f <= 0 {
			return p, http.StatusBadRequest, "invalid freq parameter"
		}
		p.frequency = f
	}
	return p, 0, ""
}

// HandleTrack serves the SSE tracking stream.
func (h *Handler) HandleTrack(w http.ResponseWriter, r *http.Request) {
	p, status, msg := h.parseParams(r)
	if status != 0 {
		writeError(w, status, msg)
		return
	}

	orbit, err := h.orbits.Orbit(p.noradID)
	if err != nil {
		if errors.Is(err, tle.ErrNotFound) {
			writeError(w, http.StatusNotFound, "satellite not found")
			return
		}
		writeError(w, http.StatusServiceUnavailable, "no TLE data loaded")
		return
	}

	ip := clientIP(r, h.config.TrustProxy)
	if !h.limiter.acquire(ip) {
		metrics.RecordStreamError("rate_limit")
		h.logger.Warn("stream rate limit exceeded",
			"remote_ip", ip,
			"current_count", h.limiter.count(ip),
		)
		w.Header().Set("Retry-After", "30")
		writeError(w, http.StatusTooManyRequests, "too many concurrent streams")
		return
	}

	metrics.StreamConnected()
	startTime := time.Now()
	h.logger.Info("stream connected",
		"remote_ip", ip,
		"norad_id", p.noradID,
		"station", p.observer.Name,
		"interval_seconds", p.interval.Seconds(),
	)
	defer func() {
		h.limiter.release(ip)
		metrics.StreamDisconnected()
		h.logger.Info("stream disconnected",
			"remote_ip", ip,
			"norad_id", p.noradID,
			"duration_seconds", int(time.Since(startTime).Seconds()),
		)
	}()

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	rc := http.NewResponseController(w)
	if err := rc.SetWriteDeadline(time.Time{}); err != nil {
		h.logger.Debug("could not clear write deadline", "error", err)
	}

	c := &client{w: w, flusher: flusher, rc: rc, logger: h.logger}

	// Jittered reconnect delay (3-7s) spreads reconnections after a restart.
	if err := c.sendRetry(time.Duration(3000+rand.Intn(4000)) * time.Millisecond); err != nil {
		metrics.RecordStreamError("send_error")
		return
	}

	ctx := r.Context()
	if err := c.sendJSON("metadata", h.metadata(ctx, orbit, p)); err != nil {
		metrics.RecordStreamError("send_error")
		h.logger.Warn("stream send error (metadata)", "remote_ip", ip, "error", err)
		return
	}

	h.run(ctx, c, orbit, p)
}

// run sends one track event per interval until ctx ends, a write fails or
// the orbit decays.
func (h *Handler) run(ctx context.Context, c *client, orbit *propagation.Orbit, p trackParams) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	keepalive := time.NewTicker(h.config.KeepaliveInterval)
	defer keepalive.Stop()

	send := func(t time.Time) bool {
		msg, err := track(ctx, orbit, p, t)
		if err != nil {
			if errors.Is(err, propagation.ErrDecayed) {
				metrics.RecordStreamError("decayed")
				c.sendJSON("error", errorMessage{Error: err.Error()})
				return false
			}
			if ctx.Err() != nil {
				return false
			}
			metrics.RecordStreamError("propagate_error")
			h.logger.Warn("stream propagation error", "norad_id", p.noradID, "error", err)
			return true
		}
		if err := c.sendJSON("track", msg); err != nil {
			metrics.RecordStreamError("send_error")
			h.logger.Warn("stream send error", "norad_id", p.noradID, "error", err)
			return false
		}
		keepalive.Reset(h.config.KeepaliveInterval)
		return true
	}

	if !send(h.now()) {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !send(h.now()) {
				return
			}
		case <-keepalive.C:
			if err := c.sendKeepalive(); err != nil {
				metrics.RecordStreamError("send_error")
				h.logger.Warn("stream keepalive error", "norad_id", p.noradID, "error", err)
				return
			}
		}
	}
}

// metadata describes the stream and, when one exists, the next pass.
func (h *Handler) metadata(ctx context.Context, orbit *propagation.Orbit, p trackParams) metadataMessage {
	el := orbit.Elements()
	meta := metadataMessage{
		NORADID:   p.noradID,
		Name:      el.Name,
		Station:   p.observer.Name,
		Model:     orbit.Model().String(),
		Resonance: orbit.Resonance(),
		Epoch:     el.Epoch().UTC().Format(time.RFC3339),
		Interval:  p.interval.Seconds(),
	}
	if ds := h.store.Get(); ds != nil {
		meta.DatasetEpoch = ds.FetchedAt.UTC().Format(time.RFC3339)
		meta.TLEAge = int(h.now().Sub(ds.FetchedAt).Seconds())
	}

	pass, err := h.searcher.NextPass(ctx, p.observer, orbit, julian.FromTime(h.now()))
	if err != nil {
		meta.PassError = err.Error()
		return meta
	}
	meta.NextPass = &passSummary{
		AOS:          pass.AOS.Time.Time().UTC().Format(time.RFC3339),
		TCA:          pass.TCA.Time.Time().UTC().Format(time.RFC3339),
		LOS:          pass.LOS.Time.Time().UTC().Format(time.RFC3339),
		MaxElevation: earth.Deg(pass.TCA.Elevation),
	}
	return meta
}

// track predicts and observes the orbit at t.
func track(ctx context.Context, orbit *propagation.Orbit, p trackParams, t time.Time) (trackMessage, error) {
	pos, err := orbit.PredictTime(ctx, t)
	if err != nil {
		return trackMessage{}, err
	}
	o := pos.Observe(p.observer)
	rc := refraction.Correct(o, p.observer, refraction.Conditions{})

	msg := trackMessage{
		T:          t.UTC().Format(time.RFC3339Nano),
		Azimuth:    earth.Deg(o.Azimuth),
		Elevation:  earth.Deg(o.Elevation),
		ApparentEl: earth.Deg(rc.Apparent),
		RadioEl:    earth.Deg(rc.Radio),
		Range:      o.Range,
		RangeRate:  o.RangeRate,
		Visible:    o.Visible,
		Eclipsed:   pos.Eclipsed,
		Latitude:   earth.Deg(pos.Latitude),
		Longitude:  earth.Deg(pos.Longitude),
		Altitude:   pos.Altitude,
	}
	if p.frequency > 0 {
		msg.Doppler = transform.DopplerShift(o, p.frequency)
	}
	return msg, nil
}

// SSE payload types.

type passSummary struct {
	AOS          string  `json:"aos"`
	TCA          string  `json:"tca"`
	LOS          string  `json:"los"`
	MaxElevation float64 `json:"max_elevation"`
}

type metadataMessage struct {
	NORADID      int          `json:"norad_id"`
	Name         string       `json:"name,omitempty"`
	Station      string       `json:"station,omitempty"`
	Model        string       `json:"model"`
	Resonance    string       `json:"resonance"`
	Epoch        string       `json:"epoch"`
	DatasetEpoch string       `json:"dataset_epoch,omitempty"`
	TLEAge       int          `json:"tle_age_seconds"`
	Interval     float64      `json:"interval_seconds"`
	NextPass     *passSummary `json:"next_pass,omitempty"`
	PassError    string       `json:"pass_error,omitempty"`
}

type trackMessage struct {
	T          string  `json:"t"`
	Azimuth    float64 `json:"az"`
	Elevation  float64 `json:"el"`
	ApparentEl float64 `json:"apparent_el"`
	RadioEl    float64 `json:"radio_el"`
	Range      float64 `json:"range_km"`
	RangeRate  float64 `json:"range_rate_km_s"`
	Doppler    float64 `json:"doppler_hz,omitempty"`
	Visible    bool    `json:"visible"`
	Eclipsed   bool    `json:"eclipsed"`
	Latitude   float64 `json:"lat"`
	Longitude  float64 `json:"lon"`
	Altitude   float64 `json:"alt_km"`
}

type errorMessage struct {
	Error string `json:"error"`
}
