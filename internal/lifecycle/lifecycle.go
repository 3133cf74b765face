// Package lifecycle tracks every produced download file, caps total disk
// usage, and expires files past their retention deadline. The manager is the
// only component that deletes files; its in-memory records are rebuilt from
// the download directory on boot.
package lifecycle

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

var (
	ErrNotFound      = errors.New("file not found")
	ErrQuotaExceeded = errors.New("disk quota exceeded")
)

// Record describes one tracked file.
type Record struct {
	Name           string    `json:"name"`
	Path           string    `json:"path"`
	SizeBytes      int64     `json:"size_bytes"`
	CreatedAt      time.Time `json:"created_at"`
	LastAccessedAt time.Time `json:"last_accessed_at"`
	ExpiresAt      time.Time `json:"expires_at"`
}

// Stats summarizes the tracked file set.
type Stats struct {
	FileCount       int       `json:"file_count"`
	TotalBytes      int64     `json:"total_bytes"`
	OldestCreatedAt time.Time `json:"oldest_created_at,omitempty"`
}

// Manager owns the record table and the in-use set. A single mutex covers
// quota accounting, record mutation and in-use tracking, so registration is
// reserve-and-commit in one step: the first job to register wins the
// remaining quota.
type Manager struct {
	mu      sync.Mutex
	records map[string]*Record
	inUse   map[string]int

	dir       string
	retention time.Duration
	quota     int64
	total     int64
	now       func() time.Time
}

// New creates a manager for files under dir.
func New(dir string, retention time.Duration, quotaBytes int64) *Manager {
	return &Manager{
		records:   make(map[string]*Record),
		inUse:     make(map[string]int),
		dir:       dir,
		retention: retention,
		quota:     quotaBytes,
		now:       time.Now,
	}
}

// Register starts tracking a completed output file. When registering would
// push total tracked size over the quota, the file is deleted and
// ErrQuotaExceeded returned; the caller must fail the owning job.
func (m *Manager) Register(path string, sizeBytes int64) (Record, error) {
	m.mu.Lock()
	if m.total+sizeBytes > m.quota {
		m.mu.Unlock()
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			log.Warn().Str("path", path).Err(err).Msg("remove over-quota file failed")
		}
		return Record{}, fmt.Errorf("%w: %d bytes would exceed %d", ErrQuotaExceeded, m.total+sizeBytes, m.quota)
	}
	now := m.now()
	rec := &Record{
		Name:           filepath.Base(path),
		Path:           path,
		SizeBytes:      sizeBytes,
		CreatedAt:      now,
		LastAccessedAt: now,
		ExpiresAt:      now.Add(m.retention),
	}
	m.records[path] = rec
	m.total += sizeBytes
	m.mu.Unlock()

	log.Info().Str("path", path).Int64("size_bytes", sizeBytes).Time("expires_at", rec.ExpiresAt).Msg("file registered")
	return *rec, nil
}

// MarkInUse pins a path against deletion, covering both the window between
// "file exists on disk" and "record registered" and the lifetime of a client
// stream. Calls nest: each MarkInUse needs a matching ClearInUse.
func (m *Manager) MarkInUse(path string) {
	m.mu.Lock()
	m.inUse[path]++
	if rec, ok := m.records[path]; ok {
		rec.LastAccessedAt = m.now()
	}
	m.mu.Unlock()
}

// ClearInUse releases one pin on the path.
func (m *Manager) ClearInUse(path string) {
	m.mu.Lock()
	if n := m.inUse[path]; n <= 1 {
		delete(m.inUse, path)
	} else {
		m.inUse[path] = n - 1
	}
	m.mu.Unlock()
}

// Resolve looks a record up by its public name (the file's basename).
func (m *Manager) Resolve(name string) (Record, bool) {
	if name == "" || strings.ContainsAny(name, `/\`) || name != filepath.Base(name) {
		return Record{}, false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[filepath.Join(m.dir, name)]
	if !ok {
		return Record{}, false
	}
	return *rec, true
}

// Sweep deletes every file whose retention deadline has passed and that is
// not pinned in-use, returning how many records were removed. Individual
// failures are logged and skipped. Unlink keeps already-open reader handles
// valid, so a mid-stream client never observes truncation.
func (m *Manager) Sweep() int {
	m.mu.Lock()
	now := m.now()
	expired := make([]*Record, 0)
	for path, rec := range m.records {
		if !now.Before(rec.ExpiresAt) && m.inUse[path] == 0 {
			expired = append(expired, rec)
		}
	}
	removed := 0
	for _, rec := range expired {
		if err := os.Remove(rec.Path); err != nil && !os.IsNotExist(err) {
			log.Warn().Str("path", rec.Path).Err(err).Msg("sweep: delete failed, skipping")
			continue
		}
		delete(m.records, rec.Path)
		m.total -= rec.SizeBytes
		removed++
	}
	m.mu.Unlock()

	if removed > 0 {
		log.Info().Int("removed", removed).Msg("sweep finished")
	}
	return removed
}

// Delete removes a tracked file on demand. Open reader handles are
// unaffected by the unlink.
func (m *Manager) Delete(path string) error {
	m.mu.Lock()
	rec, ok := m.records[path]
	if !ok {
		m.mu.Unlock()
		return ErrNotFound
	}
	if err := os.Remove(rec.Path); err != nil && !os.IsNotExist(err) {
		m.mu.Unlock()
		return fmt.Errorf("delete %s: %w", rec.Name, err)
	}
	delete(m.records, path)
	m.total -= rec.SizeBytes
	m.mu.Unlock()

	log.Info().Str("path", path).Msg("file deleted")
	return nil
}

// Stats reports the tracked file count, total size and oldest creation time.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := Stats{FileCount: len(m.records), TotalBytes: m.total}
	for _, rec := range m.records {
		if s.OldestCreatedAt.IsZero() || rec.CreatedAt.Before(s.OldestCreatedAt) {
			s.OldestCreatedAt = rec.CreatedAt
		}
	}
	return s
}

// List returns snapshots of all records, newest first.
func (m *Manager) List() []Record {
	m.mu.Lock()
	out := make([]Record, 0, len(m.records))
	for _, rec := range m.records {
		out = append(out, *rec)
	}
	m.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

// Scan rebuilds records from the download directory. Called once on boot:
// registry state is in-memory only, so the directory is the source of truth
// across restarts. File timestamps stand in for the original creation time.
func (m *Manager) Scan() error {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("scan download dir: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		path := filepath.Join(m.dir, e.Name())
		created := info.ModTime()
		m.records[path] = &Record{
			Name:           e.Name(),
			Path:           path,
			SizeBytes:      info.Size(),
			CreatedAt:      created,
			LastAccessedAt: created,
			ExpiresAt:      created.Add(m.retention),
		}
		m.total += info.Size()
	}
	log.Info().Int("files", len(m.records)).Int64("total_bytes", m.total).Msg("download dir scanned")
	return nil
}
