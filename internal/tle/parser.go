package tle

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// Parse reads the 3-line catalog format (name, line 1, line 2) from r.
// Two-line sets without a name line are accepted too. Entries that fail
// ParseElements are skipped with a warning log.
func Parse(r io.Reader, logger *slog.Logger) ([]TLEEntry, error) {
	scanner := bufio.NewScanner(r)
	var lines []string
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r\n ")
		if line != "" {
			lines = append(lines, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading TLE data: %w", err)
	}

	var entries []TLEEntry
	for i := 0; i+1 < len(lines); {
		var name, line1, line2 string
		switch {
		case strings.HasPrefix(lines[i], "1 ") && strings.HasPrefix(lines[i+1], "2 "):
			line1, line2 = lines[i], lines[i+1]
			i += 2
		case i+2 < len(lines) && strings.HasPrefix(lines[i+1], "1 ") && strings.HasPrefix(lines[i+2], "2 "):
			name, line1, line2 = lines[i], lines[i+1], lines[i+2]
			i += 3
		default:
			logger.Warn("skipping malformed TLE entry", "line_index", i, "line", lines[i])
			i++
			continue
		}

		el, err := ParseElements(name, line1, line2)
		if err != nil {
			var fe *FormatError
			if errors.As(err, &fe) {
				logger.Warn("skipping invalid TLE entry", "name", name, "line", fe.Line, "field", fe.Field, "error", err)
			}
			continue
		}

		if name == "" {
			name = fmt.Sprintf("NORAD %d", el.CatalogNumber)
		}
		entries = append(entries, TLEEntry{
			NORADID:  el.CatalogNumber,
			Name:     strings.TrimSpace(name),
			Epoch:    el.Epoch(),
			Line1:    el.Line1,
			Line2:    el.Line2,
			Elements: el,
		})
	}

	return entries, nil
}
