// Command diag cross-validates the SGP4/SDP4 propagators against
// github.com/joshuaferrara/go-satellite over a TLE file and reports the
// largest position difference per satellite as JSON lines.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	satellite "github.com/joshuaferrara/go-satellite"
	"github.com/spf13/cobra"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/star/skypass/internal/propagation"
	"github.com/star/skypass/internal/tle"
)

// report is one satellite's comparison.
type report struct {
	NORADID   int     `json:"norad_id"`
	Name      string  `json:"name"`
	Model     string  `json:"model"`
	Samples   int     `json:"samples"`
	MaxDiffKm float64 `json:"max_diff_km"`
	AtMinutes float64 `json:"at_minutes"`
	Decayed   bool    `json:"decayed,omitempty"`
	Exceeded  bool    `json:"exceeded,omitempty"`
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		norad     int
		span      time.Duration
		step      time.Duration
		tolerance float64
	)
	cmd := &cobra.Command{
		Use:          "diag <tle-file>",
		Short:        "Compare propagated positions with go-satellite",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if step <= 0 || span < 0 {
				return errors.New("--step must be positive and --span not negative")
			}
			logger := slog.New(slog.NewJSONHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: slog.LevelWarn}))

			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			entries, err := tle.Parse(f, logger)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "Loaded %d TLE entries\n", len(entries))

			exceeded, err := compareAll(cmd.Context(), cmd.OutOrStdout(), entries, norad, span, step, tolerance)
			if err != nil {
				return err
			}
			if exceeded > 0 {
				return fmt.Errorf("%d satellites differ by more than %.3f km", exceeded, tolerance)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&norad, "norad", 0, "only this catalog number")
	cmd.Flags().DurationVar(&span, "span", 24*time.Hour, "time after epoch to compare over")
	cmd.Flags().DurationVar(&step, "step", 10*time.Minute, "sample interval")
	cmd.Flags().Float64Var(&tolerance, "tolerance", 1, "allowed position difference, km")
	return cmd
}

func compareAll(ctx context.Context, w io.Writer, entries []tle.TLEEntry, norad int, span, step time.Duration, tolerance float64) (int, error) {
	enc := json.NewEncoder(w)
	exceeded := 0
	for _, e := range entries {
		if norad != 0 && e.NORADID != norad {
			continue
		}
		r, err := compare(ctx, e, span, step)
		if err != nil {
			return exceeded, fmt.Errorf("NORAD %d: %w", e.NORADID, err)
		}
		if r.MaxDiffKm > tolerance {
			r.Exceeded = true
			exceeded++
		}
		if err := enc.Encode(r); err != nil {
			return exceeded, err
		}
	}
	return exceeded, nil
}

// compare propagates e from its epoch over span with both implementations.
func compare(ctx context.Context, e tle.TLEEntry, span, step time.Duration) (report, error) {
	orbit := propagation.NewOrbit(e.Elements)
	ref := satellite.TLEToSat(e.Line1, e.Line2, satellite.GravityWGS72)
	epoch := e.Elements.Epoch()

	r := report{NORADID: e.NORADID, Name: e.Name, Model: orbit.Model().String()}
	for d := time.Duration(0); d <= span; d += step {
		// go-satellite takes whole seconds.
		at := epoch.Add(d).Truncate(time.Second)
		pos, err := orbit.PredictTime(ctx, at)
		if err != nil {
			if errors.Is(err, propagation.ErrDecayed) {
				r.Decayed = true
				break
			}
			return r, err
		}
		rp, _ := satellite.Propagate(ref, at.Year(), int(at.Month()), at.Day(), at.Hour(), at.Minute(), at.Second())
		want := r3.Vec{X: rp.X, Y: rp.Y, Z: rp.Z}
		if r3.Norm(want) == 0 {
			// go-satellite reports decay as a zero vector.
			r.Decayed = true
			break
		}

		diff := r3.Norm(r3.Sub(pos.Position, want))
		if diff > r.MaxDiffKm {
			r.MaxDiffKm = diff
			r.AtMinutes = d.Minutes()
		}
		r.Samples++
	}
	return r, nil
}
