package api

import (
	"net/http"
	"time"

	"github.com/star/skypass/internal/propagation"
	"github.com/star/skypass/internal/tle"
)

// maxKeyframePositions caps frames times catalog size for one keyframes
// request.
const maxKeyframePositions = 100000

type satelliteJSON struct {
	NORADID   int        `json:"norad_id"`
	Latitude  float64    `json:"lat"`
	Longitude float64    `json:"lon"`
	Altitude  float64    `json:"alt_km"`
	ECEF      [3]float64 `json:"position_ecef_m"`
	Velocity  [3]float64 `json:"velocity_ecef_m_s"`
	Eclipsed  bool       `json:"eclipsed"`
}

type keyframeJSON struct {
	Time       time.Time       `json:"t"`
	Satellites []satelliteJSON `json:"satellites"`
}

func newKeyframeJSON(kf *propagation.Keyframe) keyframeJSON {
	out := keyframeJSON{Time: kf.Timestamp.UTC(), Satellites: make([]satelliteJSON, len(kf.Satellites))}
	for i, s := range kf.Satellites {
		out.Satellites[i] = satelliteJSON{
			NORADID:   s.NORADID,
			Latitude:  s.Latitude,
			Longitude: s.Longitude,
			Altitude:  s.Altitude,
			ECEF:      s.PositionECEF,
			Velocity:  s.VelocityECEF,
			Eclipsed:  s.Eclipsed,
		}
	}
	return out
}

// snapshot returns the earth-fixed state of the whole catalog at ?time=.
func (h *handlers) snapshot(w http.ResponseWriter, r *http.Request) {
	t, err := h.instant(r, "time")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	kf, err := h.deps.Propagator.PropagateToTime(r.Context(), t)
	if err != nil {
		writeLookupError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newKeyframeJSON(kf))
}

type keyframesResponse struct {
	Start       time.Time      `json:"start"`
	StepSeconds float64        `json:"step_seconds"`
	Keyframes   []keyframeJSON `json:"keyframes"`
}

// keyframes returns catalog snapshots from ?start= over the configured
// propagation horizon and step.
func (h *handlers) keyframes(w http.ResponseWriter, r *http.Request) {
	start, err := h.instant(r, "start")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ds := h.deps.Store.Get()
	if ds == nil {
		writeLookupError(w, tle.ErrNoDataset)
		return
	}
	cfg := h.deps.Propagator.Config()
	frames := int(cfg.Horizon/cfg.Step) + 1
	if n := frames * len(ds.Satellites); n > maxKeyframePositions {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":         "catalog too large for keyframes",
			"requested":     n,
			"max_positions": maxKeyframePositions,
		})
		return
	}

	kfs, err := h.deps.Propagator.GenerateKeyframes(r.Context(), start)
	if err != nil {
		writeLookupError(w, err)
		return
	}
	resp := keyframesResponse{
		Start:       start,
		StepSeconds: cfg.Step.Seconds(),
		Keyframes:   make([]keyframeJSON, len(kfs)),
	}
	for i, kf := range kfs {
		resp.Keyframes[i] = newKeyframeJSON(kf)
	}
	writeJSON(w, http.StatusOK, resp)
}
