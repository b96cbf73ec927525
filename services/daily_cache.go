package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/pharmaproche/pharmacie-backend/models"
	"github.com/sirupsen/logrus"
)

// Clock supplies the notion of "now" used for daily cache keys and the
// time-of-day search filter. Injected so tests can pin a fixed day
// boundary; production uses SystemClock in the configured timezone.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock in a fixed location.
type SystemClock struct {
	Location *time.Location
}

func NewSystemClock(loc *time.Location) *SystemClock {
	if loc == nil {
		loc = time.Local
	}
	return &SystemClock{Location: loc}
}

func (c *SystemClock) Now() time.Time {
	return time.Now().In(c.Location)
}

// DayKey formats a time as the ISO calendar-day cache key.
func DayKey(t time.Time) string {
	return t.Format("2006-01-02")
}

// DailyCacheStore persists one payload per (kind, calendar-day) pair.
// Read misses on absent records, day mismatch, or any I/O fault; Write
// is an unconditional overwrite, last writer wins. Concurrent writers on
// the same key may race, which is acceptable because recomputation is
// idempotent within a day.
type DailyCacheStore interface {
	Read(ctx context.Context, kind, day string) ([]byte, bool)
	Write(ctx context.Context, kind, day string, payload []byte) error
}

// ———— in-memory backend (tests) ————

// MemoryCacheStore is a map-backed store used in tests.
type MemoryCacheStore struct {
	mutex   sync.RWMutex
	entries map[string]models.DailyCacheEnvelope
}

func NewMemoryCacheStore() *MemoryCacheStore {
	return &MemoryCacheStore{entries: make(map[string]models.DailyCacheEnvelope)}
}

func (s *MemoryCacheStore) Read(ctx context.Context, kind, day string) ([]byte, bool) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	envelope, ok := s.entries[kind]
	if !ok || envelope.Date != day {
		return nil, false
	}
	return envelope.Data, true
}

func (s *MemoryCacheStore) Write(ctx context.Context, kind, day string, payload []byte) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.entries[kind] = models.DailyCacheEnvelope{Date: day, Data: payload}
	return nil
}

// ———— file backend (default) ————

// FileCacheStore keeps one JSON file per (kind, day) under a cache
// directory, named "<kind>-<day>.json" and wrapped in a dated envelope.
type FileCacheStore struct {
	dir string
}

func NewFileCacheStore(dir string) *FileCacheStore {
	return &FileCacheStore{dir: dir}
}

func (s *FileCacheStore) path(kind, day string) string {
	return filepath.Join(s.dir, fmt.Sprintf("%s-%s.json", kind, day))
}

func (s *FileCacheStore) Read(ctx context.Context, kind, day string) ([]byte, bool) {
	content, err := os.ReadFile(s.path(kind, day))
	if err != nil {
		return nil, false
	}

	var envelope models.DailyCacheEnvelope
	if err := json.Unmarshal(content, &envelope); err != nil {
		logrus.WithFields(logrus.Fields{
			"component": "FileCacheStore",
			"kind":      kind,
			"day":       day,
		}).Warnf("Discarding unreadable cache file: %v", err)
		return nil, false
	}

	if envelope.Date != day {
		return nil, false
	}
	return envelope.Data, true
}

func (s *FileCacheStore) Write(ctx context.Context, kind, day string, payload []byte) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}

	content, err := json.MarshalIndent(models.DailyCacheEnvelope{Date: day, Data: payload}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal cache envelope: %w", err)
	}

	return os.WriteFile(s.path(kind, day), content, 0o644)
}

// Prune removes cache files whose embedded day is older than maxAge.
// Files that cannot be interpreted are removed as well.
func (s *FileCacheStore) Prune(now time.Time, maxAge time.Duration) int {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0
	}

	removed := 0
	cutoff := now.Add(-maxAge)
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}

		// Day suffix sits between the last '-' separated kind and ".json".
		base := strings.TrimSuffix(name, ".json")
		if len(base) < len("2006-01-02") {
			continue
		}
		day, err := time.Parse("2006-01-02", base[len(base)-len("2006-01-02"):])
		stale := err != nil || day.Before(cutoff)
		if !stale {
			continue
		}

		if err := os.Remove(filepath.Join(s.dir, name)); err == nil {
			removed++
		}
	}
	return removed
}

// ———— postgres backend (optional) ————

// PostgresCacheStore persists day-keyed payloads in the daily_cache
// table. Wired only when DATABASE_URL is configured.
type PostgresCacheStore struct {
	DB *sql.DB
}

func NewPostgresCacheStore(db *sql.DB) *PostgresCacheStore {
	return &PostgresCacheStore{DB: db}
}

func (s *PostgresCacheStore) Read(ctx context.Context, kind, day string) ([]byte, bool) {
	var payload []byte
	err := s.DB.QueryRowContext(ctx,
		`SELECT payload FROM daily_cache WHERE kind = $1 AND day = $2`,
		kind, day,
	).Scan(&payload)

	if err != nil {
		if err != sql.ErrNoRows {
			logrus.WithFields(logrus.Fields{
				"component": "PostgresCacheStore",
				"kind":      kind,
				"day":       day,
			}).Warnf("Cache read failed, treating as miss: %v", err)
		}
		return nil, false
	}
	return payload, true
}

func (s *PostgresCacheStore) Write(ctx context.Context, kind, day string, payload []byte) error {
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO daily_cache (kind, day, payload, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (kind, day) DO UPDATE SET
			payload = EXCLUDED.payload,
			updated_at = NOW()
	`, kind, day, payload)
	return err
}

// Prune deletes rows older than maxAge based on their day key.
func (s *PostgresCacheStore) Prune(now time.Time, maxAge time.Duration) int {
	cutoff := DayKey(now.Add(-maxAge))
	result, err := s.DB.Exec(`DELETE FROM daily_cache WHERE day < $1`, cutoff)
	if err != nil {
		logrus.Warnf("Failed to prune daily_cache table: %v", err)
		return 0
	}
	rows, _ := result.RowsAffected()
	return int(rows)
}
