// Package cache implements the two-tier key/value store backing docfetch: an
// in-memory map in front of a hashed on-disk file tree, with per-entry TTLs.
//
// Persistence is best effort. A failed disk write or a corrupt file degrades
// to a cache miss and never surfaces to the caller.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Entry is one cached value with its expiry metadata. TTL is serialized in
// nanoseconds.
type Entry struct {
	Key       string          `json:"key"`
	Data      json.RawMessage `json:"data"`
	Timestamp time.Time       `json:"timestamp"`
	TTL       time.Duration   `json:"ttl"`
}

// expired reports whether the entry is past its TTL at the given instant.
func (e *Entry) expired(now time.Time) bool {
	return now.Sub(e.Timestamp) > e.TTL
}

// Stats is a point-in-time view of cache effectiveness.
type Stats struct {
	MemoryEntries int   `json:"memory_entries"`
	DiskEntries   int   `json:"disk_entries"`
	Hits          int64 `json:"hits"`
	Misses        int64 `json:"misses"`
}

// Config controls the store.
type Config struct {
	// Root is the on-disk cache directory.
	Root string
	// DefaultTTL applies when Set is called with a zero TTL. Default: 1h.
	DefaultTTL time.Duration
	// CleanupInterval is the period of the background expiry sweep started
	// by StartCleanup. Default: 1h.
	CleanupInterval time.Duration
}

// Store is safe for concurrent use. All memory-tier access happens under one
// RWMutex; disk files are written atomically via rename.
type Store struct {
	cfg Config

	mu  sync.RWMutex
	mem map[string]Entry

	statsMu sync.Mutex
	hits    int64
	misses  int64

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}

	now func() time.Time // test seam
}

// New creates the store and its root directory.
func New(cfg Config) (*Store, error) {
	if cfg.Root == "" {
		return nil, eris.New("cache: root directory required")
	}
	if cfg.DefaultTTL <= 0 {
		cfg.DefaultTTL = time.Hour
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = time.Hour
	}
	if err := os.MkdirAll(cfg.Root, 0o755); err != nil {
		return nil, eris.Wrap(err, "cache: create root")
	}
	return &Store{
		cfg:  cfg,
		mem:  make(map[string]Entry),
		stop: make(chan struct{}),
		done: make(chan struct{}),
		now:  time.Now,
	}, nil
}

// Get returns the raw cached data for key, checking the memory tier first and
// falling back to disk. A disk hit is promoted into memory. Expired entries
// are deleted and reported as misses.
func (s *Store) Get(key string) (json.RawMessage, bool) {
	now := s.now()

	s.mu.RLock()
	entry, ok := s.mem[key]
	s.mu.RUnlock()

	if ok {
		if entry.expired(now) {
			s.Delete(key)
			s.miss()
			return nil, false
		}
		s.hit()
		return entry.Data, true
	}

	entry, ok = s.readDisk(key)
	if !ok {
		s.miss()
		return nil, false
	}
	if entry.expired(now) {
		s.Delete(key)
		s.miss()
		return nil, false
	}

	// Promote to the memory tier.
	s.mu.Lock()
	s.mem[key] = entry
	s.mu.Unlock()

	s.hit()
	return entry.Data, true
}

// GetAs unmarshals the cached value for key into T.
func GetAs[T any](s *Store, key string) (T, bool) {
	var out T
	raw, ok := s.Get(key)
	if !ok {
		return out, false
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		zap.L().Warn("cache: corrupt entry, treating as miss",
			zap.String("key", key),
			zap.Error(err),
		)
		s.Delete(key)
		return out, false
	}
	return out, true
}

// Set stores value under key with the given TTL (DefaultTTL when zero). Set
// never fails: serialization or disk errors are logged and the memory tier is
// still updated, so the current process keeps its hit.
func (s *Store) Set(key string, value any, ttl time.Duration) {
	if ttl <= 0 {
		ttl = s.cfg.DefaultTTL
	}

	data, err := json.Marshal(value)
	if err != nil {
		zap.L().Warn("cache: marshal failed, entry not stored",
			zap.String("key", key),
			zap.Error(err),
		)
		return
	}

	entry := Entry{
		Key:       key,
		Data:      data,
		Timestamp: s.now(),
		TTL:       ttl,
	}

	s.mu.Lock()
	s.mem[key] = entry
	s.mu.Unlock()

	if err := s.writeDisk(entry); err != nil {
		zap.L().Warn("cache: disk write failed, entry kept in memory only",
			zap.String("key", key),
			zap.Error(err),
		)
	}
}

// Delete removes key from both tiers.
func (s *Store) Delete(key string) {
	s.mu.Lock()
	delete(s.mem, key)
	s.mu.Unlock()

	if err := os.Remove(s.diskPath(key)); err != nil && !os.IsNotExist(err) {
		zap.L().Debug("cache: remove file failed", zap.String("key", key), zap.Error(err))
	}
}

// Clear drops every entry from both tiers.
func (s *Store) Clear() {
	s.mu.Lock()
	s.mem = make(map[string]Entry)
	s.mu.Unlock()

	entries, err := os.ReadDir(s.cfg.Root)
	if err != nil {
		zap.L().Warn("cache: clear disk tier failed", zap.Error(err))
		return
	}
	for _, e := range entries {
		if err := os.RemoveAll(filepath.Join(s.cfg.Root, e.Name())); err != nil {
			zap.L().Warn("cache: clear disk entry failed", zap.String("name", e.Name()), zap.Error(err))
		}
	}
}

// Cleanup removes expired entries from both tiers and returns how many were
// dropped.
func (s *Store) Cleanup() int {
	now := s.now()
	removed := 0

	s.mu.Lock()
	for key, entry := range s.mem {
		if entry.expired(now) {
			delete(s.mem, key)
			removed++
		}
	}
	s.mu.Unlock()

	removed += s.sweepDisk(now)
	return removed
}

// StartCleanup runs Cleanup on the configured interval until Stop is called.
func (s *Store) StartCleanup() {
	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.cfg.CleanupInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if n := s.Cleanup(); n > 0 {
					zap.L().Debug("cache: cleanup sweep", zap.Int("removed", n))
				}
			case <-s.stop:
				return
			}
		}
	}()
}

// Stop halts the background cleanup goroutine. Safe to call more than once,
// and safe even if StartCleanup was never called.
func (s *Store) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
}

// GetStats reports entry counts and hit/miss totals.
func (s *Store) GetStats() Stats {
	s.mu.RLock()
	memCount := len(s.mem)
	s.mu.RUnlock()

	diskCount := 0
	_ = filepath.WalkDir(s.cfg.Root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() && strings.HasSuffix(path, ".json") {
			diskCount++
		}
		return nil
	})

	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	return Stats{
		MemoryEntries: memCount,
		DiskEntries:   diskCount,
		Hits:          s.hits,
		Misses:        s.misses,
	}
}

func (s *Store) hit() {
	s.statsMu.Lock()
	s.hits++
	s.statsMu.Unlock()
}

func (s *Store) miss() {
	s.statsMu.Lock()
	s.misses++
	s.statsMu.Unlock()
}

// diskPath maps a logical key to <root>/xx/yy/<rest>.json using the hex
// sha256 of the key, bounding directory fan-out at two levels.
func (s *Store) diskPath(key string) string {
	sum := sha256.Sum256([]byte(key))
	h := hex.EncodeToString(sum[:])
	return filepath.Join(s.cfg.Root, h[:2], h[2:4], h[4:]+".json")
}

func (s *Store) readDisk(key string) (Entry, bool) {
	var entry Entry
	data, err := os.ReadFile(s.diskPath(key))
	if err != nil {
		return entry, false
	}
	if err := json.Unmarshal(data, &entry); err != nil {
		zap.L().Warn("cache: corrupt file, removing",
			zap.String("key", key),
			zap.Error(err),
		)
		_ = os.Remove(s.diskPath(key))
		return entry, false
	}
	return entry, true
}

func (s *Store) writeDisk(entry Entry) error {
	path := s.diskPath(entry.Key)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return eris.Wrap(err, "create fan-out dirs")
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return eris.Wrap(err, "marshal entry")
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return eris.Wrap(err, "write temp file")
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return eris.Wrap(err, "rename into place")
	}
	return nil
}

// sweepDisk walks the file tier and removes expired or unreadable entries.
func (s *Store) sweepDisk(now time.Time) int {
	removed := 0
	_ = filepath.WalkDir(s.cfg.Root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || !strings.HasSuffix(path, ".json") {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil
		}
		var entry Entry
		if err := json.Unmarshal(data, &entry); err != nil || entry.expired(now) {
			if os.Remove(path) == nil {
				removed++
			}
		}
		return nil
	})
	return removed
}
