package tle

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

const defaultSourceURL = "https://celestrak.org/NORAD/elements/gp.php?GROUP=amateur&FORMAT=tle"

// maxBodyBytes bounds a single response body.
const maxBodyBytes = 50 << 20

// Fetcher retrieves raw TLE catalogs from a primary source plus optional
// extra sources. Extra sources are best effort.
type Fetcher struct {
	sourceURL  string
	extraURLs  []string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewFetcher creates a Fetcher for the given source URLs.
func NewFetcher(sourceURL string, logger *slog.Logger, extraURLs ...string) *Fetcher {
	if sourceURL == "" {
		sourceURL = defaultSourceURL
	}
	return &Fetcher{
		sourceURL: sourceURL,
		extraURLs: extraURLs,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: logger,
	}
}

// SourceURL returns the configured source URL.
func (f *Fetcher) SourceURL() string {
	return f.sourceURL
}

// Fetch downloads the primary source and appends every extra source that
// succeeds. A primary failure is returned as an error.
func (f *Fetcher) Fetch(ctx context.Context) ([]byte, error) {
	body, err := f.get(ctx, f.sourceURL)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	buf.Write(body)
	for _, u := range f.extraURLs {
		extra, err := f.get(ctx, u)
		if err != nil {
			f.logger.Warn("extra TLE source failed", "url", u, "error", err)
			continue
		}
		if buf.Len() > 0 && !bytes.HasSuffix(buf.Bytes(), []byte("\n")) {
			buf.WriteByte('\n')
		}
		buf.Write(extra)
	}
	return buf.Bytes(), nil
}

func (f *Fetcher) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching TLE data: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code %d from %s", resp.StatusCode, url)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes+1))
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}
	if len(body) > maxBodyBytes {
		return nil, fmt.Errorf("response from %s exceeds %d byte limit", url, maxBodyBytes)
	}
	return body, nil
}

// FetchDataset fetches, parses and wraps the catalog into a dataset.
func (f *Fetcher) FetchDataset(ctx context.Context) (*TLEDataset, []byte, error) {
	data, err := f.Fetch(ctx)
	if err != nil {
		return nil, nil, err
	}
	entries, err := Parse(bytes.NewReader(data), f.logger)
	if err != nil {
		return nil, nil, err
	}
	if len(entries) == 0 {
		return nil, nil, fmt.Errorf("no valid TLE entries from %s", f.sourceURL)
	}
	return NewDataset(f.sourceURL, time.Now().UTC(), entries), data, nil
}

// Refresh fetches a new catalog, writes it to cache (if non-nil) and
// installs it in store. Refreshes are serialized on the store's fetch
// lock. A failed cache write is logged; the catalog is still installed.
func (f *Fetcher) Refresh(ctx context.Context, store *Store, cache *Cache) (*TLEDataset, error) {
	store.Lock()
	defer store.Unlock()

	ds, data, err := f.FetchDataset(ctx)
	if err != nil {
		return nil, err
	}
	if cache != nil {
		if err := cache.Write(data, ds.FetchedAt); err != nil {
			f.logger.Warn("catalog cache write failed", "error", err)
		}
	}
	store.Set(ds)

	f.logger.Info("catalog fetched",
		"source", ds.Source,
		"satellites", len(ds.Satellites),
		"epoch_min", ds.EpochRange.Min.Format(time.RFC3339),
		"epoch_max", ds.EpochRange.Max.Format(time.RFC3339),
	)
	return ds, nil
}
