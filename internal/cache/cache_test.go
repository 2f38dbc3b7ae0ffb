package cache

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestVerdictKey(t *testing.T) {
	a := VerdictKey("virus_total", "https://example.com/login")
	b := VerdictKey("virus_total", "  https://example.com/login ")
	c := VerdictKey("google_safe_browsing", "https://example.com/login")
	d := VerdictKey("virus_total", "https://example.com/LOGIN")

	if a != b {
		t.Error("surrounding whitespace should not change the key")
	}
	if a == c {
		t.Error("different providers must not share a key")
	}
	if a == d {
		t.Error("URL paths are case-sensitive")
	}
	if !strings.HasPrefix(a, "threatfuse:v1:virus_total:") {
		t.Errorf("unexpected key layout: %s", a)
	}
}

func TestMemoryCache(t *testing.T) {
	c := NewMemoryCache(time.Minute, time.Minute)

	value := []byte(`{"status":"CLEAN"}`)
	if err := c.Set("k", value, 0); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	value[0] = 'X' // caller mutation must not leak into the cache

	got, ok := c.Get("k")
	if !ok || string(got) != `{"status":"CLEAN"}` {
		t.Fatalf("unexpected value %q (found=%v)", got, ok)
	}
	if c.Len() != 1 {
		t.Errorf("expected 1 entry, got %d", c.Len())
	}

	_ = c.Delete("k")
	if _, ok := c.Get("k"); ok {
		t.Error("expected miss after delete")
	}
}

func TestMemoryCache_Expiry(t *testing.T) {
	c := NewMemoryCache(time.Minute, time.Minute)
	_ = c.Set("k", []byte("v"), 10*time.Millisecond)

	time.Sleep(30 * time.Millisecond)
	if _, ok := c.Get("k"); ok {
		t.Error("expected entry to expire")
	}
}

func TestDiskCache_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	c := NewDiskCache(dir, time.Hour)
	key := VerdictKey("url_haus", "http://malware.example/payload.exe")

	if err := c.Set(key, []byte("payload"), 0); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	got, ok := c.Get(key)
	if !ok || string(got) != "payload" {
		t.Fatalf("unexpected value %q (found=%v)", got, ok)
	}

	// Survives a new instance over the same directory
	again, ok := NewDiskCache(dir, time.Hour).Get(key)
	if !ok || string(again) != "payload" {
		t.Error("entry should persist across instances")
	}

	if err := c.Delete(key); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if err := c.Delete(key); err != nil {
		t.Errorf("deleting a missing entry should not fail: %v", err)
	}
}

func TestDiskCache_Expiry(t *testing.T) {
	c := NewDiskCache(t.TempDir(), time.Hour)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	_ = c.Set("k", []byte("v"), time.Minute)
	if _, ok := c.Get("k"); !ok {
		t.Fatal("expected hit before expiry")
	}

	now = now.Add(2 * time.Minute)
	if _, ok := c.Get("k"); ok {
		t.Error("expected miss after expiry")
	}
	if _, err := os.Stat(c.path("k")); !os.IsNotExist(err) {
		t.Error("expired entry should be removed from disk")
	}
}

func TestDiskCache_CorruptEntry(t *testing.T) {
	c := NewDiskCache(t.TempDir(), time.Hour)
	path := c.path("k")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, ok := c.Get("k"); ok {
		t.Error("corrupt entry should be a miss")
	}
}

func TestLayeredCache_PromotesDiskHits(t *testing.T) {
	dir := t.TempDir()
	disk := NewDiskCache(dir, time.Hour)
	_ = disk.Set("k", []byte("from-disk"), 0)

	mem := NewMemoryCache(time.Minute, time.Minute)
	c := NewLayeredCacheFrom(mem, disk)

	got, ok := c.Get("k")
	if !ok || string(got) != "from-disk" {
		t.Fatalf("expected disk hit, got %q", got)
	}
	if _, ok := mem.Get("k"); !ok {
		t.Error("disk hit should be promoted to memory")
	}

	_, _ = c.Get("k")
	_, _ = c.Get("missing")

	stats := c.Stats()
	if stats.DiskHits != 1 || stats.MemoryHits != 1 || stats.Misses != 1 {
		t.Errorf("unexpected stats %+v", stats)
	}
}

func TestLayeredCache_SetAndClear(t *testing.T) {
	c := NewLayeredCache(time.Minute, t.TempDir(), time.Hour)

	if err := c.Set("k", []byte("v"), 0); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if _, ok := c.Get("k"); !ok {
		t.Fatal("expected hit")
	}

	if err := c.Clear(); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	if _, ok := c.Get("k"); ok {
		t.Error("expected miss after clear")
	}
}
