package sites

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

// Cache keeps recent catalog snapshots on disk so the service can come up
// with real sites when the remote source is unreachable at startup.
type Cache struct {
	dir      string
	maxFiles int
	logger   *slog.Logger
}

// NewCache creates a Cache that stores snapshots in dir and keeps at most
// maxFiles of them.
func NewCache(dir string, maxFiles int, logger *slog.Logger) *Cache {
	if maxFiles <= 0 {
		maxFiles = 5
	}
	return &Cache{
		dir:      dir,
		maxFiles: maxFiles,
		logger:   logger,
	}
}

// Write saves data as a timestamped snapshot and prunes snapshots beyond
// maxFiles. The data must parse as a non-empty catalog; a snapshot that
// cannot seed the store on the next boot is worthless, so it is rejected
// here instead of being discovered during bootstrap.
func (c *Cache) Write(data []byte, ts time.Time) error {
	entries, err := Parse(bytes.NewReader(data), c.logger)
	if err != nil {
		return fmt.Errorf("validating catalog snapshot: %w", err)
	}
	if len(entries) == 0 {
		return fmt.Errorf("refusing to cache a catalog with no sites")
	}

	if err := c.ensureDir(); err != nil {
		return err
	}

	path := filepath.Join(c.dir, fmt.Sprintf("sites_%d.txt", ts.Unix()))
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing catalog snapshot: %w", err)
	}

	c.logger.Debug("catalog snapshot written", "path", path, "sites", len(entries))
	return c.prune()
}

// LoadLatest returns the sites from the newest snapshot that still parses
// as a non-empty catalog, along with the snapshot timestamp. Snapshots that
// rotted on disk are skipped with a warning, so one bad file cannot block
// bootstrap while an older good snapshot exists.
func (c *Cache) LoadLatest() ([]Site, time.Time, error) {
	files, err := c.listFiles()
	if err != nil {
		return nil, time.Time{}, err
	}

	for i := len(files) - 1; i >= 0; i-- {
		f := files[i]
		data, err := os.ReadFile(filepath.Join(c.dir, f.name))
		if err != nil {
			c.logger.Warn("skipping unreadable catalog snapshot", "file", f.name, "error", err)
			continue
		}

		entries, err := Parse(bytes.NewReader(data), c.logger)
		if err != nil || len(entries) == 0 {
			c.logger.Warn("skipping corrupt catalog snapshot", "file", f.name, "error", err)
			continue
		}

		return entries, f.ts, nil
	}

	return nil, time.Time{}, fmt.Errorf("no usable catalog snapshot in %s", c.dir)
}

type cacheFile struct {
	name string
	ts   time.Time
}

func (c *Cache) listFiles() ([]cacheFile, error) {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("listing snapshot dir: %w", err)
	}

	var files []cacheFile
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasPrefix(name, "sites_") || !strings.HasSuffix(name, ".txt") {
			continue
		}
		tsStr := strings.TrimPrefix(name, "sites_")
		tsStr = strings.TrimSuffix(tsStr, ".txt")
		unix, err := strconv.ParseInt(tsStr, 10, 64)
		if err != nil {
			continue
		}
		files = append(files, cacheFile{name: name, ts: time.Unix(unix, 0)})
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i].ts.Before(files[j].ts)
	})

	return files, nil
}

func (c *Cache) prune() error {
	files, err := c.listFiles()
	if err != nil {
		return err
	}

	if len(files) <= c.maxFiles {
		return nil
	}

	toRemove := files[:len(files)-c.maxFiles]
	for _, f := range toRemove {
		path := filepath.Join(c.dir, f.name)
		if err := os.Remove(path); err != nil {
			return fmt.Errorf("pruning snapshot %s: %w", f.name, err)
		}
		c.logger.Debug("catalog snapshot pruned", "file", f.name)
	}

	return nil
}

func (c *Cache) ensureDir() error {
	return os.MkdirAll(c.dir, 0755)
}
