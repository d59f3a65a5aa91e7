package transform

import (
	"math"
	"testing"
	"time"

	satellite "github.com/joshuaferrara/go-satellite"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/star/skypass/internal/earth"
	"github.com/star/skypass/internal/julian"
)

// TestGMST validates our GMST calculation against the go-satellite library's
// GSTimeFromDate function, which uses the same IAU-82 model.
func TestGMST(t *testing.T) {
	tests := []struct {
		name string
		time time.Time
	}{
		{
			name: "J2000.0 epoch",
			time: time.Date(2000, 1, 1, 12, 0, 0, 0, time.UTC),
		},
		{
			name: "Vallado example date",
			time: time.Date(2004, 4, 6, 7, 51, 28, 0, time.UTC), // integer seconds for library compat
		},
		{
			name: "recent date 2026",
			time: time.Date(2026, 2, 6, 4, 1, 0, 0, time.UTC),
		},
		{
			name: "just before midnight",
			time: time.Date(2025, 7, 31, 23, 59, 59, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			our := GMST(tt.time)
			ref := satellite.GSTimeFromDate(
				tt.time.Year(), int(tt.time.Month()), tt.time.Day(),
				tt.time.Hour(), tt.time.Minute(), tt.time.Second(),
			)

			diff := math.Abs(our - ref)
			if diff > math.Pi {
				diff = earth.TwoPi - diff
			}
			// 1e-7 rad is ~0.02 arcsec.
			if diff > 1e-7 {
				t.Errorf("GMST(%v) = %.12f rad, go-satellite = %.12f rad (diff=%.2e)", tt.time, our, ref, diff)
			}
		})
	}
}

// TestThetaGRange verifies the sidereal angle is always reduced to [0, 2π).
func TestThetaGRange(t *testing.T) {
	start := julian.FromTime(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)).JD()
	for i := 0; i < 500; i++ {
		th := ThetaG(start + float64(i)*0.37)
		if th < 0 || th >= earth.TwoPi {
			t.Fatalf("ThetaG out of range at step %d: %v", i, th)
		}
	}
}

// TestTEMEToECEF validates our TEME→ECEF transform against the go-satellite
// library's ECIToECEF function using the same GMST. Both use a GMST-only
// rotation, so they should agree to floating point precision.
func TestTEMEToECEF(t *testing.T) {
	tests := []struct {
		name     string
		pos, vel r3.Vec
		time     time.Time
	}{
		{
			// Vallado "Fundamentals of Astrodynamics" Example 3-15
			name: "Vallado example 3-15",
			pos:  r3.Vec{X: 5094.18016, Y: 6127.64465, Z: 6380.34453},
			vel:  r3.Vec{X: -4.746131487, Y: 0.786598499, Z: 5.531931288},
			time: time.Date(2004, 4, 6, 7, 51, 28, 0, time.UTC),
		},
		{
			name: "LEO equatorial",
			pos:  r3.Vec{X: 6778.0},
			vel:  r3.Vec{Y: 7.5},
			time: time.Date(2026, 2, 6, 12, 0, 0, 0, time.UTC),
		},
		{
			name: "LEO polar",
			pos:  r3.Vec{Z: 6978.0},
			vel:  r3.Vec{X: 7.4},
			time: time.Date(2026, 6, 15, 0, 0, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gmst := satellite.GSTimeFromDate(
				tt.time.Year(), int(tt.time.Month()), tt.time.Day(),
				tt.time.Hour(), tt.time.Minute(), tt.time.Second(),
			)

			ourECEF := TEMEToECEFWithGMST(tt.pos, tt.vel, gmst)

			refVec := satellite.ECIToECEF(
				satellite.Vector3{X: tt.pos.X, Y: tt.pos.Y, Z: tt.pos.Z},
				gmst,
			)

			diffX := math.Abs(ourECEF.X - refVec.X*1000.0)
			diffY := math.Abs(ourECEF.Y - refVec.Y*1000.0)
			diffZ := math.Abs(ourECEF.Z - refVec.Z*1000.0)

			const tolerance = 1.0 // meter
			if diffX > tolerance || diffY > tolerance || diffZ > tolerance {
				t.Errorf("position mismatch (tolerance=%.0fm):\n  ours:  [%.3f, %.3f, %.3f] m\n  ref:   [%.3f, %.3f, %.3f] m",
					tolerance,
					ourECEF.X, ourECEF.Y, ourECEF.Z,
					refVec.X*1000, refVec.Y*1000, refVec.Z*1000)
			}

			if !ValidateECEF(ourECEF) {
				t.Errorf("ECEF position failed validation: [%.1f, %.1f, %.1f] m", ourECEF.X, ourECEF.Y, ourECEF.Z)
			}
		})
	}
}

// TestTEMEToECEFVelocity verifies the velocity transform includes Earth rotation correction.
func TestTEMEToECEFVelocity(t *testing.T) {
	pos := r3.Vec{X: 6778.0}
	vel := r3.Vec{Y: 7.5}

	ecef := TEMEToECEFWithGMST(pos, vel, 0)

	if math.Abs(ecef.X-6778000.0) > 0.1 {
		t.Errorf("X position: got %.1f, want 6778000.0", ecef.X)
	}

	// Earth rotation velocity at this radius: ω*R ≈ 0.4943 km/s.
	expectedVY := (7.5 - earth.AngularVelocity*6778.0) * 1000.0
	if math.Abs(ecef.VY-expectedVY) > 0.1 {
		t.Errorf("VY: got %.1f m/s, want %.1f m/s", ecef.VY, expectedVY)
	}
}

// TestValidateECEF tests the ECEF position validation function.
func TestValidateECEF(t *testing.T) {
	tests := []struct {
		name  string
		pos   PositionECEF
		valid bool
	}{
		{"LEO", PositionECEF{X: 6778000, Y: 0, Z: 0}, true},
		{"GEO", PositionECEF{X: 42164000, Y: 0, Z: 0}, true},
		{"Molniya apogee", PositionECEF{X: 0, Y: 0, Z: 46000000}, true},
		{"too low", PositionECEF{X: 5000000, Y: 0, Z: 0}, false},
		{"beyond the Moon", PositionECEF{X: 600000000, Y: 0, Z: 0}, false},
		{"NaN", PositionECEF{X: math.NaN(), Y: 0, Z: 0}, false},
		{"Inf", PositionECEF{X: math.Inf(1), Y: 0, Z: 0}, false},
		{"zero", PositionECEF{X: 0, Y: 0, Z: 0}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ValidateECEF(tt.pos); got != tt.valid {
				t.Errorf("ValidateECEF(%v) = %v, want %v", tt.pos, got, tt.valid)
			}
		})
	}
}
