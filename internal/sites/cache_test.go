package sites

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func catalogLine(slug string, lat, lon float64) []byte {
	return []byte(fmt.Sprintf("%s,Station %s,%g,%g\n", slug, slug, lat, lon))
}

func TestCacheWriteLoadLatest(t *testing.T) {
	dir := t.TempDir()
	c := NewCache(dir, 5, discardLogger())

	t1 := time.Unix(1700000000, 0)
	t2 := time.Unix(1700003600, 0)
	if err := c.Write(catalogLine("oslo", 59.91, 10.75), t1); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := c.Write(catalogLine("quito", -0.18, -78.47), t2); err != nil {
		t.Fatalf("Write: %v", err)
	}

	entries, ts, err := c.LoadLatest()
	if err != nil {
		t.Fatalf("LoadLatest: %v", err)
	}
	if len(entries) != 1 || entries[0].Slug != "quito" {
		t.Errorf("entries = %+v, want single quito site", entries)
	}
	if !ts.Equal(t2) {
		t.Errorf("ts = %v, want %v", ts, t2)
	}
}

func TestCacheWriteRejectsEmptyCatalog(t *testing.T) {
	c := NewCache(t.TempDir(), 5, discardLogger())

	ts := time.Unix(1700000000, 0)
	if err := c.Write([]byte("# comments only\n\n"), ts); err == nil {
		t.Error("Write with no parseable sites: want error")
	}
	if err := c.Write([]byte("this is not a catalog"), ts); err == nil {
		t.Error("Write with garbage data: want error")
	}

	if _, _, err := c.LoadLatest(); err == nil {
		t.Error("LoadLatest after rejected writes: want error")
	}
}

func TestCacheLoadLatestSkipsCorruptSnapshot(t *testing.T) {
	dir := t.TempDir()
	c := NewCache(dir, 5, discardLogger())

	good := time.Unix(1700000000, 0)
	if err := c.Write(catalogLine("lima", -12.05, -77.04), good); err != nil {
		t.Fatalf("Write: %v", err)
	}

	// A newer snapshot that rotted on disk after being written.
	corrupt := filepath.Join(dir, "sites_1700003600.txt")
	if err := os.WriteFile(corrupt, []byte("\x00\x00garbage"), 0644); err != nil {
		t.Fatal(err)
	}

	entries, ts, err := c.LoadLatest()
	if err != nil {
		t.Fatalf("LoadLatest: %v", err)
	}
	if len(entries) != 1 || entries[0].Slug != "lima" {
		t.Errorf("entries = %+v, want the older good snapshot", entries)
	}
	if !ts.Equal(good) {
		t.Errorf("ts = %v, want %v", ts, good)
	}
}

func TestCacheLoadLatestEmpty(t *testing.T) {
	c := NewCache(t.TempDir(), 5, discardLogger())
	if _, _, err := c.LoadLatest(); err == nil {
		t.Error("LoadLatest on empty cache: want error")
	}
}

func TestCachePrune(t *testing.T) {
	dir := t.TempDir()
	c := NewCache(dir, 3, discardLogger())

	base := time.Unix(1700000000, 0)
	for i := 0; i < 6; i++ {
		ts := base.Add(time.Duration(i) * time.Hour)
		if err := c.Write(catalogLine(fmt.Sprintf("site%d", i), float64(i), float64(i)), ts); err != nil {
			t.Fatalf("Write %d: %v", i, err)
		}
	}

	files, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(files) != 3 {
		t.Errorf("got %d files after prune, want 3", len(files))
	}

	entries, _, err := c.LoadLatest()
	if err != nil {
		t.Fatalf("LoadLatest: %v", err)
	}
	if len(entries) != 1 || entries[0].Slug != "site5" {
		t.Errorf("latest = %+v, want site5", entries)
	}
}

func TestCacheIgnoresForeignFiles(t *testing.T) {
	dir := t.TempDir()
	c := NewCache(dir, 5, discardLogger())

	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "sites_abc.txt"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	ts := time.Unix(1700000000, 0)
	if err := c.Write(catalogLine("lund", 55.7, 13.19), ts); err != nil {
		t.Fatalf("Write: %v", err)
	}

	entries, got, err := c.LoadLatest()
	if err != nil {
		t.Fatalf("LoadLatest: %v", err)
	}
	if len(entries) != 1 || entries[0].Slug != "lund" || !got.Equal(ts) {
		t.Errorf("LoadLatest = %+v at %v", entries, got)
	}
}
