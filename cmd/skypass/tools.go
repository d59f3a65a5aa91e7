package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/star/skypass/internal/earth"
	"github.com/star/skypass/internal/passes"
	"github.com/star/skypass/internal/propagation"
	"github.com/star/skypass/internal/refraction"
	"github.com/star/skypass/internal/tle"
	"github.com/star/skypass/internal/transform"
)

// maxSteps bounds the output of one propagate run per satellite.
const maxSteps = 100000

// selection picks satellites from a TLE file and the instant to start at.
type selection struct {
	norad int
	at    string
}

func (s *selection) register(cmd *cobra.Command) {
	cmd.Flags().IntVar(&s.norad, "norad", 0, "only this catalog number")
	cmd.Flags().StringVar(&s.at, "at", "", "start time, RFC 3339 (default: now)")
}

func (s *selection) start() (time.Time, error) {
	if s.at == "" {
		return time.Now().UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, s.at)
	if err != nil {
		return time.Time{}, fmt.Errorf("--at: %w", err)
	}
	return t.UTC(), nil
}

// catalog reads the TLE file at path, keeping only the selected entry when
// --norad is set.
func (s *selection) catalog(a *app, path string) ([]tle.TLEEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	entries, err := tle.Parse(f, a.logger)
	if err != nil {
		return nil, err
	}
	if s.norad != 0 {
		for _, e := range entries {
			if e.NORADID == s.norad {
				return []tle.TLEEntry{e}, nil
			}
		}
		return nil, fmt.Errorf("NORAD %d in %s: %w", s.norad, path, tle.ErrNotFound)
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("no valid TLE entries in %s", path)
	}
	return entries, nil
}

// site holds the observer flags.
type site struct {
	station       string
	lat, lon, alt float64
}

func (s *site) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&s.station, "station", "", "configured ground station name")
	cmd.Flags().Float64Var(&s.lat, "lat", 0, "observer latitude, degrees north")
	cmd.Flags().Float64Var(&s.lon, "lon", 0, "observer longitude, degrees east")
	cmd.Flags().Float64Var(&s.alt, "alt", 0, "observer altitude, meters")
}

func (s *site) observer(a *app, cmd *cobra.Command) (transform.Observer, error) {
	if s.station != "" {
		for _, st := range a.cfg.Stations {
			if st.Name == s.station {
				return st.Observer(), nil
			}
		}
		return transform.Observer{}, fmt.Errorf("unknown station %q", s.station)
	}
	if !cmd.Flags().Changed("lat") || !cmd.Flags().Changed("lon") {
		return transform.Observer{}, errors.New("--station or --lat and --lon required")
	}
	if s.lat < -90 || s.lat > 90 || s.lon < -180 || s.lon > 360 {
		return transform.Observer{}, errors.New("--lat/--lon out of range")
	}
	return transform.NewObserverDegrees("", s.lat, s.lon, s.alt), nil
}

type stateLine struct {
	NORADID   int        `json:"norad_id"`
	Name      string     `json:"name"`
	Model     string     `json:"model"`
	Time      time.Time  `json:"t"`
	Latitude  float64    `json:"lat"`
	Longitude float64    `json:"lon"`
	Altitude  float64    `json:"alt_km"`
	Position  [3]float64 `json:"position_teme_km"`
	Velocity  [3]float64 `json:"velocity_teme_km_s"`
	Eclipsed  bool       `json:"eclipsed"`
	Error     string     `json:"error,omitempty"`
}

func newPropagateCmd(a *app) *cobra.Command {
	var (
		sel     selection
		horizon time.Duration
		step    time.Duration
	)
	cmd := &cobra.Command{
		Use:   "propagate <tle-file>",
		Short: "Print TEME and geodetic states as JSON lines",
		Long: `Propagate every element set in a TLE file (or one, with --norad) from
--at over --horizon every --step. A decayed satellite ends its series with
an error line.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if step <= 0 {
				return errors.New("--step must be positive")
			}
			if horizon < 0 {
				return errors.New("--horizon must not be negative")
			}
			n := int(horizon/step) + 1
			if n > maxSteps {
				return fmt.Errorf("%d steps requested, at most %d allowed", n, maxSteps)
			}
			start, err := sel.start()
			if err != nil {
				return err
			}
			entries, err := sel.catalog(a, args[0])
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			for _, e := range entries {
				orbit := propagation.NewOrbit(e.Elements)
				for i := 0; i < n; i++ {
					line := stateLine{NORADID: e.NORADID, Name: e.Name, Model: orbit.Model().String()}
					pos, err := orbit.PredictTime(cmd.Context(), start.Add(time.Duration(i)*step))
					if err != nil {
						if !errors.Is(err, propagation.ErrDecayed) {
							return err
						}
						line.Time = pos.Time.Time()
						line.Error = err.Error()
						if err := enc.Encode(line); err != nil {
							return err
						}
						break
					}
					line.Time = pos.Time.Time()
					line.Latitude = earth.Deg(pos.Latitude)
					line.Longitude = earth.Deg(pos.Longitude)
					line.Altitude = pos.Altitude
					line.Position = [3]float64{pos.Position.X, pos.Position.Y, pos.Position.Z}
					line.Velocity = [3]float64{pos.Velocity.X, pos.Velocity.Y, pos.Velocity.Z}
					line.Eclipsed = pos.Eclipsed
					if err := enc.Encode(line); err != nil {
						return err
					}
				}
			}
			return nil
		},
	}
	sel.register(cmd)
	cmd.Flags().DurationVar(&horizon, "horizon", 0, "propagation span")
	cmd.Flags().DurationVar(&step, "step", time.Minute, "interval between states")
	return cmd
}

type observationLine struct {
	NORADID    int       `json:"norad_id"`
	Name       string    `json:"name"`
	Time       time.Time `json:"t"`
	Azimuth    float64   `json:"az"`
	Elevation  float64   `json:"el"`
	ApparentEl float64   `json:"apparent_el"`
	Range      float64   `json:"range_km"`
	RangeRate  float64   `json:"range_rate_km_s"`
	Doppler    float64   `json:"doppler_hz,omitempty"`
	Visible    bool      `json:"visible"`
	Eclipsed   bool      `json:"eclipsed"`
	SunEl      float64   `json:"sun_el"`
	MoonEl     float64   `json:"moon_el"`
	Error      string    `json:"error,omitempty"`
}

func newObserveCmd(a *app) *cobra.Command {
	var (
		sel  selection
		obs  site
		freq float64
	)
	cmd := &cobra.Command{
		Use:   "observe <tle-file>",
		Short: "Print look angles from one observer as JSON lines",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			observer, err := obs.observer(a, cmd)
			if err != nil {
				return err
			}
			t, err := sel.start()
			if err != nil {
				return err
			}
			entries, err := sel.catalog(a, args[0])
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			for _, e := range entries {
				line := observationLine{NORADID: e.NORADID, Name: e.Name, Time: t}
				pos, err := propagation.NewOrbit(e.Elements).PredictTime(cmd.Context(), t)
				if err != nil {
					if !errors.Is(err, propagation.ErrDecayed) {
						return err
					}
					line.Error = err.Error()
				} else {
					o := pos.Observe(observer)
					c := refraction.Correct(o, observer, a.cfg.Refraction)
					line.Azimuth = earth.Deg(o.Azimuth)
					line.Elevation = earth.Deg(o.Elevation)
					line.ApparentEl = earth.Deg(c.Apparent)
					line.Range = o.Range
					line.RangeRate = o.RangeRate
					line.Visible = o.Visible
					line.Eclipsed = pos.Eclipsed
					line.SunEl = earth.Deg(transform.ObserveSun(observer, pos.Time).Elevation)
					line.MoonEl = earth.Deg(transform.ObserveMoon(observer, pos.Time).Elevation)
					if freq > 0 {
						line.Doppler = transform.DopplerShift(o, freq)
					}
				}
				if err := enc.Encode(line); err != nil {
					return err
				}
			}
			return nil
		},
	}
	sel.register(cmd)
	obs.register(cmd)
	cmd.Flags().Float64Var(&freq, "freq", 0, "downlink frequency in Hz for Doppler")
	return cmd
}

func newPassesCmd(a *app) *cobra.Command {
	var (
		sel         selection
		obs         site
		hours       float64
		minEl       float64
		maxPasses   int
		freq        float64
		groundTrack bool
	)
	cmd := &cobra.Command{
		Use:   "passes <tle-file>",
		Short: "Predict passes over one observer as JSON lines",
		Long: `Predict AOS, culmination and LOS for every element set in a TLE file
(or one, with --norad). Satellites that can never rise for the observer,
or that are geosynchronous, are reported with an error.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if hours <= 0 {
				return errors.New("--hours must be positive")
			}
			if minEl < 0 || minEl > 90 {
				return errors.New("--min-el must be within [0, 90]")
			}
			observer, err := obs.observer(a, cmd)
			if err != nil {
				return err
			}
			start, err := sel.start()
			if err != nil {
				return err
			}
			entries, err := sel.catalog(a, args[0])
			if err != nil {
				return err
			}

			results := passes.Predict(cmd.Context(), passes.Request{
				Observer:      observer,
				Entries:       entries,
				Start:         start,
				HorizonHours:  hours,
				MinElevation:  minEl,
				MaxPasses:     maxPasses,
				FrequencyHz:   freq,
				Search:        a.cfg.Search,
				NoGroundTrack: !groundTrack,
			})

			enc := json.NewEncoder(cmd.OutOrStdout())
			for _, r := range results {
				if err := enc.Encode(r); err != nil {
					return err
				}
			}
			return nil
		},
	}
	sel.register(cmd)
	obs.register(cmd)
	cmd.Flags().Float64Var(&hours, "hours", 24, "prediction window")
	cmd.Flags().Float64Var(&minEl, "min-el", 0, "minimum culmination elevation, degrees")
	cmd.Flags().IntVar(&maxPasses, "max-passes", 0, "passes per satellite (default 50)")
	cmd.Flags().Float64Var(&freq, "freq", 0, "downlink frequency in Hz for Doppler")
	cmd.Flags().BoolVar(&groundTrack, "ground-track", false, "include sampled ground tracks")
	return cmd
}
