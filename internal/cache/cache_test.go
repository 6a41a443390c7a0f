package cache

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(Config{Root: t.TempDir(), DefaultTTL: time.Hour})
	require.NoError(t, err)
	t.Cleanup(s.Stop)
	return s
}

type payload struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestStore_RoundTrip(t *testing.T) {
	s := newTestStore(t)

	s.Set("docs:owner/repo", payload{Name: "readme", Count: 3}, time.Hour)

	got, ok := GetAs[payload](s, "docs:owner/repo")
	require.True(t, ok)
	assert.Equal(t, payload{Name: "readme", Count: 3}, got)
}

func TestStore_MissOnUnknownKey(t *testing.T) {
	s := newTestStore(t)

	_, ok := s.Get("nope")
	assert.False(t, ok)

	stats := s.GetStats()
	assert.Equal(t, int64(1), stats.Misses)
}

func TestStore_ExpiredEntryIsMissAndDeleted(t *testing.T) {
	s := newTestStore(t)
	now := time.Unix(1700000000, 0)
	s.now = func() time.Time { return now }

	s.Set("k", payload{Name: "v"}, 10*time.Second)

	now = now.Add(11 * time.Second)
	_, ok := s.Get("k")
	assert.False(t, ok, "read past expiry must miss")

	stats := s.GetStats()
	assert.Equal(t, 0, stats.MemoryEntries)
	assert.Equal(t, 0, stats.DiskEntries, "expired entry must be physically removed on read")
}

func TestStore_DiskHitPromotesToMemory(t *testing.T) {
	root := t.TempDir()
	s1, err := New(Config{Root: root})
	require.NoError(t, err)
	s1.Set("k", payload{Name: "persisted"}, time.Hour)

	// Fresh store over the same root simulates a new process: memory empty,
	// disk warm.
	s2, err := New(Config{Root: root})
	require.NoError(t, err)

	got, ok := GetAs[payload](s2, "k")
	require.True(t, ok)
	assert.Equal(t, "persisted", got.Name)
	assert.Equal(t, 1, s2.GetStats().MemoryEntries, "disk hit should be promoted")
}

func TestStore_DiskLayoutIsHashedFanOut(t *testing.T) {
	root := t.TempDir()
	s, err := New(Config{Root: root})
	require.NoError(t, err)

	s.Set("layout-key", payload{}, time.Hour)

	var files []string
	err = filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err == nil && !d.IsDir() {
			rel, _ := filepath.Rel(root, path)
			files = append(files, rel)
		}
		return nil
	})
	require.NoError(t, err)
	require.Len(t, files, 1)

	segs := splitPath(files[0])
	require.Len(t, segs, 3, "expected xx/yy/rest.json layout, got %s", files[0])
	assert.Len(t, segs[0], 2)
	assert.Len(t, segs[1], 2)
	assert.Equal(t, ".json", filepath.Ext(segs[2]))
}

func splitPath(p string) []string {
	var segs []string
	for p != "" {
		dir, file := filepath.Split(p)
		segs = append([]string{file}, segs...)
		p = filepath.Clean(dir)
		if p == "." || p == string(filepath.Separator) {
			break
		}
	}
	return segs
}

func TestStore_DeleteRemovesBothTiers(t *testing.T) {
	s := newTestStore(t)
	s.Set("k", payload{}, time.Hour)
	s.Delete("k")

	_, ok := s.Get("k")
	assert.False(t, ok)
	assert.Equal(t, 0, s.GetStats().DiskEntries)
}

func TestStore_Clear(t *testing.T) {
	s := newTestStore(t)
	s.Set("a", payload{}, time.Hour)
	s.Set("b", payload{}, time.Hour)

	s.Clear()

	stats := s.GetStats()
	assert.Equal(t, 0, stats.MemoryEntries)
	assert.Equal(t, 0, stats.DiskEntries)
}

func TestStore_CleanupSweepsExpired(t *testing.T) {
	s := newTestStore(t)
	now := time.Unix(1700000000, 0)
	s.now = func() time.Time { return now }

	s.Set("short", payload{}, time.Second)
	s.Set("long", payload{}, time.Hour)

	now = now.Add(2 * time.Second)
	removed := s.Cleanup()

	// Both tiers held "short", so two physical removals.
	assert.Equal(t, 2, removed)

	_, ok := s.Get("long")
	assert.True(t, ok)
	stats := s.GetStats()
	assert.Equal(t, 1, stats.MemoryEntries)
	assert.Equal(t, 1, stats.DiskEntries)
}

func TestStore_CorruptDiskFileDegradesToMiss(t *testing.T) {
	root := t.TempDir()
	s, err := New(Config{Root: root})
	require.NoError(t, err)

	s.Set("k", payload{Name: "good"}, time.Hour)
	path := s.diskPath("k")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	// Memory still hits.
	_, ok := s.Get("k")
	assert.True(t, ok)

	// A fresh store sees only the corrupt file: miss, and the file is gone.
	s2, err := New(Config{Root: root})
	require.NoError(t, err)
	_, ok = s2.Get("k")
	assert.False(t, ok)
	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))
}

func TestStore_SetWithZeroTTLUsesDefault(t *testing.T) {
	s, err := New(Config{Root: t.TempDir(), DefaultTTL: time.Minute})
	require.NoError(t, err)
	now := time.Unix(1700000000, 0)
	s.now = func() time.Time { return now }

	s.Set("k", payload{}, 0)

	now = now.Add(30 * time.Second)
	_, ok := s.Get("k")
	assert.True(t, ok)

	now = now.Add(31 * time.Second)
	_, ok = s.Get("k")
	assert.False(t, ok)
}
