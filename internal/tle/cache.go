package tle

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
)

const (
	cachePrefix = "catalog_"
	cacheSuffix = ".tle"
)

// Cache keeps recently fetched catalogs on disk so the service can start
// without network access.
type Cache struct {
	dir      string
	maxFiles int
}

// NewCache creates a Cache in dir that retains at most maxFiles catalogs.
func NewCache(dir string, maxFiles int) *Cache {
	if maxFiles <= 0 {
		maxFiles = 5
	}
	return &Cache{dir: dir, maxFiles: maxFiles}
}

// Write stores data under its fetch timestamp and prunes older catalogs.
func (c *Cache) Write(data []byte, ts time.Time) error {
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return fmt.Errorf("creating cache dir: %w", err)
	}
	name := cachePrefix + strconv.FormatInt(ts.Unix(), 10) + cacheSuffix
	if err := os.WriteFile(filepath.Join(c.dir, name), data, 0o644); err != nil {
		return fmt.Errorf("writing cache file: %w", err)
	}
	return c.prune()
}

// LoadLatest returns the newest catalog and its fetch timestamp.
func (c *Cache) LoadLatest() ([]byte, time.Time, error) {
	files, err := c.files()
	if err != nil {
		return nil, time.Time{}, err
	}
	if len(files) == 0 {
		return nil, time.Time{}, fmt.Errorf("no cached catalogs in %s", c.dir)
	}
	latest := files[len(files)-1]
	data, err := os.ReadFile(filepath.Join(c.dir, latest.name))
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("reading cache file: %w", err)
	}
	return data, latest.ts, nil
}

// LoadDataset parses the newest cached catalog into a dataset.
func (c *Cache) LoadDataset(logger *slog.Logger) (*TLEDataset, error) {
	data, ts, err := c.LoadLatest()
	if err != nil {
		return nil, err
	}
	entries, err := Parse(bytes.NewReader(data), logger)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("cached catalog from %s has no valid entries", ts.Format(time.RFC3339))
	}
	return NewDataset("cache", ts, entries), nil
}

type cachedFile struct {
	name string
	ts   time.Time
}

// files lists cached catalogs, oldest first.
func (c *Cache) files() ([]cachedFile, error) {
	dirEntries, err := os.ReadDir(c.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("listing cache dir: %w", err)
	}

	var files []cachedFile
	for _, e := range dirEntries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, cachePrefix) || !strings.HasSuffix(name, cacheSuffix) {
			continue
		}
		unix, err := strconv.ParseInt(strings.TrimSuffix(strings.TrimPrefix(name, cachePrefix), cacheSuffix), 10, 64)
		if err != nil {
			continue
		}
		files = append(files, cachedFile{name: name, ts: time.Unix(unix, 0).UTC()})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].ts.Before(files[j].ts) })
	return files, nil
}

func (c *Cache) prune() error {
	files, err := c.files()
	if err != nil {
		return err
	}
	for len(files) > c.maxFiles {
		if err := os.Remove(filepath.Join(c.dir, files[0].name)); err != nil {
			return fmt.Errorf("pruning cache file %s: %w", files[0].name, err)
		}
		files = files[1:]
	}
	return nil
}
