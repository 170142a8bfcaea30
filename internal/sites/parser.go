package sites

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
)

// Parse reads a site catalog from r and returns the parsed sites.
// The format is one site per line: slug,name,latitude,longitude.
// Blank lines and lines starting with # are ignored. Malformed lines
// are skipped with a warning log.
func Parse(r io.Reader, logger *slog.Logger) ([]Site, error) {
	scanner := bufio.NewScanner(r)
	var entries []Site
	seen := make(map[string]bool)
	lineNo := 0

	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		fields := strings.Split(line, ",")
		if len(fields) != 4 {
			logger.Warn("skipping malformed site line", "line", lineNo, "fields", len(fields))
			continue
		}

		slug := strings.TrimSpace(fields[0])
		name := strings.TrimSpace(fields[1])
		if slug == "" || name == "" {
			logger.Warn("skipping site with empty slug or name", "line", lineNo)
			continue
		}

		lat, err := strconv.ParseFloat(strings.TrimSpace(fields[2]), 64)
		if err != nil || lat < -90 || lat > 90 {
			logger.Warn("skipping site with invalid latitude", "line", lineNo, "slug", slug, "value", strings.TrimSpace(fields[2]))
			continue
		}
		lon, err := strconv.ParseFloat(strings.TrimSpace(fields[3]), 64)
		if err != nil || lon < -180 || lon > 180 {
			logger.Warn("skipping site with invalid longitude", "line", lineNo, "slug", slug, "value", strings.TrimSpace(fields[3]))
			continue
		}

		if seen[slug] {
			logger.Warn("skipping duplicate site slug", "line", lineNo, "slug", slug)
			continue
		}
		seen[slug] = true

		entries = append(entries, Site{
			Slug:      slug,
			Name:      name,
			Latitude:  lat,
			Longitude: lon,
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading site catalog: %w", err)
	}

	return entries, nil
}
