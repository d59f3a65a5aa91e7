package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/star/skypass/internal/tle"
)

const issCatalog = `ISS (ZARYA)
1 25544U 98067A   25045.18032407  .00016717  00000+0  30099-3 0  9996
2 25544  51.6412 193.5765 0003457 126.2851 233.8519 15.49874301495057
`

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

// TestCompareNearEarth verifies that both propagators agree on the ISS
// over a day.
func TestCompareNearEarth(t *testing.T) {
	entries, err := tle.Parse(strings.NewReader(issCatalog), testLogger())
	require.NoError(t, err)
	require.Len(t, entries, 1)

	var out bytes.Buffer
	exceeded, err := compareAll(context.Background(), &out, entries, 0, 24*time.Hour, 30*time.Minute, 2)
	require.NoError(t, err)
	assert.Zero(t, exceeded, out.String())

	var r report
	require.NoError(t, json.Unmarshal(out.Bytes(), &r))
	assert.Equal(t, 25544, r.NORADID)
	assert.Equal(t, "near-earth", r.Model)
	assert.Equal(t, 49, r.Samples)
	assert.Less(t, r.MaxDiffKm, 2.0)
}

// TestCompareFilter verifies that --norad skips other entries.
func TestCompareFilter(t *testing.T) {
	entries, err := tle.Parse(strings.NewReader(issCatalog), testLogger())
	require.NoError(t, err)

	var out bytes.Buffer
	exceeded, err := compareAll(context.Background(), &out, entries, 11111, time.Hour, time.Minute, 1)
	require.NoError(t, err)
	assert.Zero(t, exceeded)
	assert.Empty(t, out.String())
}
