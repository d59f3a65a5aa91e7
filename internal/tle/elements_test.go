package tle

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// SPACETRACK REPORT NO. 3 sample element sets.
const (
	sgp4Line1 = "1 88888U          80275.98708465  .00073094  13844-3  66816-4 0    87"
	sgp4Line2 = "2 88888  72.8435 115.9689 0086731  52.6988 110.5714 16.05824518  1058"
	sdp4Line1 = "1 11801U          80230.29629788  .01431103  00000-0  14311-1       2"
	sdp4Line2 = "2 11801U 46.7916 230.4354 7318036  47.4722  10.4117  2.28537848     2"
)

const (
	issLine1 = "1 25544U 98067A   18311.69881946  .00003236  00000-0  56524-4 0  9995"
	issLine2 = "2 25544  51.6417  23.5568 0004767  22.5396  79.5368 15.53922927140835"
)

// TestParseElementsNearEarth verifies every field of the SGP4 sample set.
func TestParseElementsNearEarth(t *testing.T) {
	assert := assert.New(t)

	el, err := ParseElements("TEST SAT SGP 001", sgp4Line1, sgp4Line2)
	require.NoError(t, err)

	assert.Equal("TEST SAT SGP 001", el.Name)
	assert.Equal(88888, el.CatalogNumber)
	assert.Equal(byte('U'), el.Classification)
	assert.Equal("", el.Designator)
	assert.Equal(1980, el.EpochYear)
	assert.InDelta(275.98708465, el.EpochDay, 1e-9)
	assert.InDelta(0.00073094, el.MeanMotionDot, 1e-12)
	assert.InDelta(0.13844e-3, el.MeanMotionDDot, 1e-12)
	assert.InDelta(0.66816e-4, el.BStar, 1e-12)
	assert.InDelta(72.8435, el.Inclination, 1e-9)
	assert.InDelta(115.9689, el.RAAN, 1e-9)
	assert.InDelta(0.0086731, el.Eccentricity, 1e-12)
	assert.InDelta(52.6988, el.ArgPerigee, 1e-9)
	assert.InDelta(110.5714, el.MeanAnomaly, 1e-9)
	assert.InDelta(16.05824518, el.MeanMotion, 1e-9)
	assert.Equal(105, el.RevAtEpoch)
	assert.Equal(ModelNearEarth, el.Model)
}

// TestParseElementsDeepSpace verifies model selection and blank optional fields.
func TestParseElementsDeepSpace(t *testing.T) {
	assert := assert.New(t)

	el, err := ParseElements("TEST SAT SDP 001", sdp4Line1, sdp4Line2)
	require.NoError(t, err)

	assert.Equal(11801, el.CatalogNumber)
	assert.Equal(ModelDeepSpace, el.Model)
	assert.Equal(0, el.ElementNumber)
	assert.Equal(0, el.RevAtEpoch)
	assert.InDelta(0.14311e-1, el.BStar, 1e-12)
	assert.InDelta(0.7318036, el.Eccentricity, 1e-12)
	assert.Greater(el.Period().Minutes(), 225.0)
}

// TestParseElementsISS verifies a modern element set with a designator.
func TestParseElementsISS(t *testing.T) {
	el, err := ParseElements("ISS (ZARYA)", issLine1, issLine2)
	require.NoError(t, err)

	assert.Equal(t, "98067A", el.Designator)
	assert.Equal(t, 2018, el.EpochYear)
	assert.Equal(t, 999, el.ElementNumber)
	assert.Equal(t, 14083, el.RevAtEpoch)
	assert.Equal(t, ModelNearEarth, el.Model)
	assert.InDelta(t, 92.6, el.Period().Minutes(), 0.5)
	assert.InDelta(t, 408, el.Perigee(), 15)
	assert.InDelta(t, 415, el.Apogee(), 15)
}

// TestParseElementsTrailingWhitespace verifies CR/LF and trailing blanks are tolerated.
func TestParseElementsTrailingWhitespace(t *testing.T) {
	_, err := ParseElements("", sgp4Line1+"  \r\n", sgp4Line2+"\n")
	require.NoError(t, err)
}

// TestParseElementsErrors verifies every malformed input yields a *FormatError.
func TestParseElementsErrors(t *testing.T) {
	tests := []struct {
		name  string
		line1 string
		line2 string
		field string
	}{
		{"short line", sgp4Line1[:60], sgp4Line2, ""},
		{"long line", sgp4Line1 + "9", sgp4Line2, ""},
		{"swapped lines", sgp4Line2, sgp4Line1, ""},
		{"bad checksum", sgp4Line1[:68] + "0", sgp4Line2, "checksum"},
		{"non-digit checksum", sgp4Line1[:68] + "X", sgp4Line2, "checksum"},
		{"catalog mismatch", sgp4Line1, withChecksum("2 88889" + sgp4Line2[7:68]), ""},
		{"malformed inclination", sgp4Line1, withChecksum(sgp4Line2[:8] + " 72.84x5" + sgp4Line2[16:68]), "inclination"},
		{"malformed drag", withChecksum(sgp4Line1[:53] + " 668x6-4" + sgp4Line1[61:68]), sgp4Line2, "drag term"},
		{"zero mean motion", sgp4Line1, withChecksum(sgp4Line2[:52] + " 0.00000000" + sgp4Line2[63:68]), "mean motion"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseElements("", tt.line1, tt.line2)
			require.Error(t, err)

			var fe *FormatError
			require.True(t, errors.As(err, &fe), "error %v is not a *FormatError", err)
			if tt.field != "" {
				assert.Equal(t, tt.field, fe.Field)
			}
		})
	}
}

// TestImpliedField verifies the implied-decimal exponent notation.
func TestImpliedField(t *testing.T) {
	tests := []struct {
		in   string
		want float64
	}{
		{" 13844-3", 0.13844e-3},
		{"-11606-4", -0.11606e-4},
		{" 00000+0", 0},
		{" 30099-3", 0.30099e-3},
		{"        ", 0},
		{" 12345+1", 1.2345},
	}
	for _, tt := range tests {
		t.Run(strings.TrimSpace(tt.in), func(t *testing.T) {
			got, err := impliedField(tt.in, 1, "test", 0, len(tt.in))
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-15)
		})
	}
}

// TestChecksum verifies the modulo-10 rule on the sample sets.
func TestChecksum(t *testing.T) {
	for _, line := range []string{sgp4Line1, sgp4Line2, sdp4Line1, sdp4Line2, issLine1, issLine2} {
		assert.Equal(t, int(line[68]-'0'), Checksum(line), line)
	}
}

// withChecksum appends the correct checksum digit to a 68-column line.
func withChecksum(line68 string) string {
	return line68 + string(rune('0'+Checksum(line68)))
}
