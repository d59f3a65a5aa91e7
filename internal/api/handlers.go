package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/star/skypass/internal/earth"
	"github.com/star/skypass/internal/metrics"
	"github.com/star/skypass/internal/passes"
	"github.com/star/skypass/internal/propagation"
	"github.com/star/skypass/internal/refraction"
	"github.com/star/skypass/internal/schedule"
	"github.com/star/skypass/internal/tle"
	"github.com/star/skypass/internal/transform"
)

const (
	// maxPositions caps the work of one propagate request.
	maxPositions = 10000

	defaultHorizonSeconds = 600
	defaultStepSeconds    = 5

	defaultPassHours = 24
	maxPassHours     = 240

	fetchTimeout = 60 * time.Second
)

type handlers struct {
	deps   Deps
	logger *slog.Logger
	now    func() time.Time
}

func newHandlers(logger *slog.Logger, deps Deps) *handlers {
	return &handlers{
		deps:   deps,
		logger: logger.With("component", "api"),
		now:    time.Now,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeLookupError maps catalog lookup failures onto status codes.
func writeLookupError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, tle.ErrNoDataset):
		writeError(w, http.StatusServiceUnavailable, "no TLE dataset loaded")
	case errors.Is(err, tle.ErrNotFound):
		writeError(w, http.StatusNotFound, "satellite not found")
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func noradID(r *http.Request) (int, bool) {
	id, err := strconv.Atoi(r.PathValue("norad_id"))
	return id, err == nil && id > 0
}

// floatParam parses an optional query parameter.
func floatParam(r *http.Request, name string, def float64) (float64, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s", name)
	}
	return f, nil
}

// instant parses an optional RFC 3339 time parameter, defaulting to now.
func (h *handlers) instant(r *http.Request, name string) (time.Time, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return h.now().UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid %s: want RFC 3339", name)
	}
	return t.UTC(), nil
}

// observer resolves ?station= against the schedule's stations, or builds
// an ad-hoc observer from ?lat=&lon=&alt= (degrees, meters).
func (h *handlers) observer(r *http.Request) (transform.Observer, int, error) {
	q := r.URL.Query()
	if name := q.Get("station"); name != "" {
		if h.deps.Schedule != nil {
			if obs, ok := h.deps.Schedule.Station(name); ok {
				return obs, 0, nil
			}
		}
		return transform.Observer{}, http.StatusNotFound, errors.New("unknown station")
	}

	lat, err1 := strconv.ParseFloat(q.Get("lat"), 64)
	lon, err2 := strconv.ParseFloat(q.Get("lon"), 64)
	if err1 != nil || err2 != nil || lat < -90 || lat > 90 || lon < -180 || lon > 360 {
		return transform.Observer{}, http.StatusBadRequest, errors.New("station or lat/lon required")
	}
	alt, err := floatParam(r, "alt", 0)
	if err != nil || alt < -500 || alt > 10000 {
		return transform.Observer{}, http.StatusBadRequest, errors.New("invalid alt: meters in [-500, 10000]")
	}
	return transform.NewObserverDegrees("", lat, lon, alt), 0, nil
}

type metadataResponse struct {
	Source     string    `json:"source"`
	FetchedAt  time.Time `json:"fetched_at"`
	AgeSeconds float64   `json:"age_seconds"`
	Satellites int       `json:"satellites"`
	EpochMin   time.Time `json:"epoch_min"`
	EpochMax   time.Time `json:"epoch_max"`
}

func newMetadata(ds *tle.TLEDataset, now time.Time) metadataResponse {
	return metadataResponse{
		Source:     ds.Source,
		FetchedAt:  ds.FetchedAt,
		AgeSeconds: now.Sub(ds.FetchedAt).Seconds(),
		Satellites: len(ds.Satellites),
		EpochMin:   ds.EpochRange.Min,
		EpochMax:   ds.EpochRange.Max,
	}
}

func (h *handlers) metadata(w http.ResponseWriter, r *http.Request) {
	ds := h.deps.Store.Get()
	if ds == nil {
		writeLookupError(w, tle.ErrNoDataset)
		return
	}
	writeJSON(w, http.StatusOK, newMetadata(ds, h.now()))
}

// fetch replaces the catalog from the configured source.
func (h *handlers) fetch(w http.ResponseWriter, r *http.Request) {
	if h.deps.Fetcher == nil {
		writeError(w, http.StatusForbidden, "TLE fetch disabled")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), fetchTimeout)
	defer cancel()

	ds, err := h.deps.Fetcher.Refresh(ctx, h.deps.Store, h.deps.Cache)
	if err != nil {
		metrics.RecordFetchError()
		h.logger.Warn("catalog fetch failed", "source", h.deps.Fetcher.SourceURL(), "error", err)
		writeError(w, http.StatusBadGateway, "fetch failed: "+err.Error())
		return
	}
	metrics.SetCatalog(len(ds.Satellites), ds.FetchedAt)

	writeJSON(w, http.StatusOK, newMetadata(ds, ds.FetchedAt))
}

type elementsResponse struct {
	NORADID        int       `json:"norad_id"`
	Name           string    `json:"name"`
	Designator     string    `json:"designator"`
	Classification string    `json:"classification"`
	Epoch          time.Time `json:"epoch"`
	Inclination    float64   `json:"inclination_deg"`
	RAAN           float64   `json:"raan_deg"`
	Eccentricity   float64   `json:"eccentricity"`
	ArgPerigee     float64   `json:"arg_perigee_deg"`
	MeanAnomaly    float64   `json:"mean_anomaly_deg"`
	MeanMotion     float64   `json:"mean_motion_rev_day"`
	BStar          float64   `json:"bstar"`
	RevAtEpoch     int       `json:"rev_at_epoch"`
	Model          string    `json:"model"`
	PeriodMinutes  float64   `json:"period_minutes"`
	ApogeeKm       float64   `json:"apogee_km"`
	PerigeeKm      float64   `json:"perigee_km"`
	Line1          string    `json:"line1"`
	Line2          string    `json:"line2"`
}

func (h *handlers) elements(w http.ResponseWriter, r *http.Request) {
	id, ok := noradID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid norad_id")
		return
	}
	entry, err := h.deps.Store.Lookup(id)
	if err != nil {
		writeLookupError(w, err)
		return
	}
	el := entry.Elements
	if el == nil {
		if el, err = tle.ParseElements(entry.Name, entry.Line1, entry.Line2); err != nil {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
	}

	writeJSON(w, http.StatusOK, elementsResponse{
		NORADID:        el.CatalogNumber,
		Name:           el.Name,
		Designator:     el.Designator,
		Classification: string(el.Classification),
		Epoch:          el.Epoch(),
		Inclination:    el.Inclination,
		RAAN:           el.RAAN,
		Eccentricity:   el.Eccentricity,
		ArgPerigee:     el.ArgPerigee,
		MeanAnomaly:    el.MeanAnomaly,
		MeanMotion:     el.MeanMotion,
		BStar:          el.BStar,
		RevAtEpoch:     el.RevAtEpoch,
		Model:          el.Model.String(),
		PeriodMinutes:  el.Period().Minutes(),
		ApogeeKm:       el.Apogee(),
		PerigeeKm:      el.Perigee(),
		Line1:          el.Line1,
		Line2:          el.Line2,
	})
}

type positionJSON struct {
	Time        time.Time  `json:"t"`
	Latitude    float64    `json:"lat"`
	Longitude   float64    `json:"lon"`
	Altitude    float64    `json:"alt_km"`
	Footprint   float64    `json:"footprint_km"`
	Position    [3]float64 `json:"position_teme_km"`
	Velocity    [3]float64 `json:"velocity_teme_km_s"`
	ECEF        [3]float64 `json:"position_ecef_m"`
	Eclipsed    bool       `json:"eclipsed"`
	Revolutions int64      `json:"revolutions"`
}

func newPositionJSON(p propagation.Position) positionJSON {
	t := p.Time.Time()
	ecef := transform.TEMEToECEF(p.Position, p.Velocity, t)
	return positionJSON{
		Time:        t,
		Latitude:    earth.Deg(p.Latitude),
		Longitude:   earth.Deg(p.Longitude),
		Altitude:    p.Altitude,
		Footprint:   p.Footprint,
		Position:    [3]float64{p.Position.X, p.Position.Y, p.Position.Z},
		Velocity:    [3]float64{p.Velocity.X, p.Velocity.Y, p.Velocity.Z},
		ECEF:        [3]float64{ecef.X, ecef.Y, ecef.Z},
		Eclipsed:    p.Eclipsed,
		Revolutions: p.Revolutions,
	}
}

type propagateResponse struct {
	NORADID     int            `json:"norad_id"`
	Name        string         `json:"name"`
	Model       string         `json:"model"`
	Start       time.Time      `json:"start"`
	StepSeconds int            `json:"step_seconds"`
	Decayed     bool           `json:"decayed,omitempty"`
	Positions   []positionJSON `json:"positions"`
}

// propagate returns positions over [start, start+horizon] every step
// seconds. Requests that would produce more than maxPositions are
// rejected. A decay ends the series early.
func (h *handlers) propagate(w http.ResponseWriter, r *http.Request) {
	id, ok := noradID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid norad_id")
		return
	}

	q := r.URL.Query()
	horizon, step := defaultHorizonSeconds, defaultStepSeconds
	var err error
	if v := q.Get("horizon"); v != "" {
		if horizon, err = strconv.Atoi(v); err != nil || horizon < 0 {
			writeError(w, http.StatusBadRequest, "invalid horizon: seconds >= 0")
			return
		}
	}
	if v := q.Get("step"); v != "" {
		if step, err = strconv.Atoi(v); err != nil || step < 1 {
			writeError(w, http.StatusBadRequest, "invalid step: seconds >= 1")
			return
		}
	}
	n := horizon/step + 1
	if n > maxPositions {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":         "too many positions requested",
			"requested":     n,
			"max_positions": maxPositions,
		})
		return
	}

	start, err := h.instant(r, "start")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	orbit, err := h.deps.Propagator.Orbit(id)
	if err != nil {
		writeLookupError(w, err)
		return
	}

	resp := propagateResponse{
		NORADID:     id,
		Name:        orbit.Elements().Name,
		Model:       orbit.Model().String(),
		Start:       start,
		StepSeconds: step,
		Positions:   make([]positionJSON, 0, n),
	}
	for i := 0; i < n; i++ {
		pos, err := orbit.PredictTime(r.Context(), start.Add(time.Duration(i*step)*time.Second))
		if err != nil {
			if errors.Is(err, propagation.ErrDecayed) {
				resp.Decayed = true
				break
			}
			if r.Context().Err() != nil {
				return
			}
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		resp.Positions = append(resp.Positions, newPositionJSON(pos))
	}
	writeJSON(w, http.StatusOK, resp)
}

type lookAngles struct {
	Azimuth   float64 `json:"az"`
	Elevation float64 `json:"el"`
}

type observeResponse struct {
	NORADID       int          `json:"norad_id"`
	Time          time.Time    `json:"t"`
	Azimuth       float64      `json:"az"`
	AzimuthRate   float64      `json:"az_rate_deg_s"`
	Elevation     float64      `json:"el"`
	ElevationRate float64      `json:"el_rate_deg_s"`
	ApparentEl    float64      `json:"apparent_el"`
	RadioEl       float64      `json:"radio_el"`
	RadioVisible  bool         `json:"radio_visible"`
	Range         float64      `json:"range_km"`
	RangeRate     float64      `json:"range_rate_km_s"`
	Doppler       float64      `json:"doppler_hz,omitempty"`
	Squint        *float64     `json:"squint_deg,omitempty"`
	Visible       bool         `json:"visible"`
	Position      positionJSON `json:"position"`
	Sun           lookAngles   `json:"sun"`
	Moon          lookAngles   `json:"moon"`
	Body          *bodyJSON    `json:"body,omitempty"`
}

type bodyJSON struct {
	Name string `json:"name"`
	lookAngles
}

func newLookAngles(o transform.Observation) lookAngles {
	return lookAngles{Azimuth: earth.Deg(o.Azimuth), Elevation: earth.Deg(o.Elevation)}
}

// observe returns the look angles of a satellite from one observer, with
// refraction, Doppler and optionally antenna squint (?alat=&alon=) and a
// calibration source (?body=).
func (h *handlers) observe(w http.ResponseWriter, r *http.Request) {
	id, ok := noradID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid norad_id")
		return
	}
	obs, status, err := h.observer(r)
	if err != nil {
		writeError(w, status, err.Error())
		return
	}
	t, err := h.instant(r, "time")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	freq, err := floatParam(r, "freq", 0)
	if err != nil || freq < 0 {
		writeError(w, http.StatusBadRequest, "invalid freq")
		return
	}

	var body *transform.CelestialBody
	if name := r.URL.Query().Get("body"); name != "" {
		b, ok := transform.FindCelestialBody(name)
		if !ok {
			writeError(w, http.StatusBadRequest, "unknown body")
			return
		}
		body = &b
	}

	orbit, err := h.deps.Propagator.Orbit(id)
	if err != nil {
		writeLookupError(w, err)
		return
	}
	pos, err := orbit.PredictTime(r.Context(), t)
	if err != nil {
		if errors.Is(err, propagation.ErrDecayed) {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	o := pos.Observe(obs)
	c := refraction.Correct(o, obs, h.deps.Refraction)
	resp := observeResponse{
		NORADID:       id,
		Time:          t,
		Azimuth:       earth.Deg(o.Azimuth),
		AzimuthRate:   earth.Deg(o.AzimuthRate),
		Elevation:     earth.Deg(o.Elevation),
		ElevationRate: earth.Deg(o.ElevationRate),
		ApparentEl:    earth.Deg(c.Apparent),
		RadioEl:       earth.Deg(c.Radio),
		RadioVisible:  c.RadioVisible,
		Range:         o.Range,
		RangeRate:     o.RangeRate,
		Visible:       o.Visible,
		Position:      newPositionJSON(pos),
		Sun:           newLookAngles(transform.ObserveSun(obs, pos.Time)),
		Moon:          newLookAngles(transform.ObserveMoon(obs, pos.Time)),
	}
	if freq > 0 {
		resp.Doppler = transform.DopplerShift(o, freq)
	}

	q := r.URL.Query()
	if q.Has("alat") || q.Has("alon") {
		alat, err1 := floatParam(r, "alat", 0)
		alon, err2 := floatParam(r, "alon", 0)
		if err1 != nil || err2 != nil {
			writeError(w, http.StatusBadRequest, "invalid alat/alon")
			return
		}
		sq := earth.Deg(transform.SquintAngle(o, pos.Inclination, pos.RAAN, pos.ArgPerigee, earth.Rad(alat), earth.Rad(alon)))
		resp.Squint = &sq
	}
	if body != nil {
		resp.Body = &bodyJSON{Name: body.Name, lookAngles: newLookAngles(body.Observe(obs, pos.Time))}
	}

	writeJSON(w, http.StatusOK, resp)
}

type passesResponse struct {
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lon"`
	Altitude  float64 `json:"alt_m"`
	Station   string  `json:"station,omitempty"`
	passes.SatellitePasses
}

// passes predicts passes of one satellite over the next ?hours (default
// 24, at most 240) culminating at or above ?min_el degrees.
func (h *handlers) passes(w http.ResponseWriter, r *http.Request) {
	id, ok := noradID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid norad_id")
		return
	}
	obs, status, err := h.observer(r)
	if err != nil {
		writeError(w, status, err.Error())
		return
	}
	hours, err := floatParam(r, "hours", defaultPassHours)
	if err != nil || hours <= 0 || hours > maxPassHours {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid hours: (0, %d]", maxPassHours))
		return
	}
	minEl, err := floatParam(r, "min_el", 0)
	if err != nil || minEl < 0 || minEl > 90 {
		writeError(w, http.StatusBadRequest, "invalid min_el: degrees in [0, 90]")
		return
	}
	freq, err := floatParam(r, "freq", 0)
	if err != nil || freq < 0 {
		writeError(w, http.StatusBadRequest, "invalid freq")
		return
	}
	start, err := h.instant(r, "start")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	orbit, err := h.deps.Propagator.Orbit(id)
	if err != nil {
		writeLookupError(w, err)
		return
	}
	el := orbit.Elements()
	switch {
	case !passes.AOSHappens(el, obs.Latitude):
		writeError(w, http.StatusUnprocessableEntity, passes.ErrUnreachable.Error())
		return
	case passes.IsGeosynchronous(el):
		writeError(w, http.StatusUnprocessableEntity, passes.ErrGeosynchronous.Error())
		return
	}

	res := passes.Predict(r.Context(), passes.Request{
		Observer:      obs,
		Entries:       []tle.TLEEntry{{NORADID: id, Name: el.Name, Elements: el}},
		Start:         start,
		HorizonHours:  hours,
		MinElevation:  minEl,
		FrequencyHz:   freq,
		Search:        h.deps.Search,
		NoGroundTrack: r.URL.Query().Get("ground_track") == "false",
	})[0]
	if res.Passes == nil {
		res.Passes = []passes.PassEvent{}
	}

	writeJSON(w, http.StatusOK, passesResponse{
		Latitude:        earth.Deg(obs.Latitude),
		Longitude:       earth.Deg(obs.Longitude),
		Altitude:        obs.Altitude,
		Station:         obs.Name,
		SatellitePasses: res,
	})
}

type scheduleResponse struct {
	Station string           `json:"station"`
	Stats   schedule.Stats   `json:"stats"`
	Passes  []schedule.Entry `json:"passes"`
}

// schedule lists the upcoming passes at a configured station, optionally
// filtered to one satellite with ?norad_id=.
func (h *handlers) schedule(w http.ResponseWriter, r *http.Request) {
	if h.deps.Schedule == nil {
		writeError(w, http.StatusServiceUnavailable, "schedule disabled")
		return
	}
	station := r.PathValue("station")
	entries, ok := h.deps.Schedule.Upcoming(station, h.now())
	if !ok {
		writeError(w, http.StatusNotFound, "unknown station")
		return
	}

	if v := r.URL.Query().Get("norad_id"); v != "" {
		id, err := strconv.Atoi(v)
		if err != nil || id < 1 {
			writeError(w, http.StatusBadRequest, "invalid norad_id")
			return
		}
		filtered := entries[:0]
		for _, e := range entries {
			if e.NORADID == id {
				filtered = append(filtered, e)
			}
		}
		entries = filtered
	}

	writeJSON(w, http.StatusOK, scheduleResponse{
		Station: station,
		Stats:   h.deps.Schedule.Stats(),
		Passes:  entries,
	})
}
