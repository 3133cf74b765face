package lifecycle

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeFile(t *testing.T, dir, name string, size int) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, make([]byte, size), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func newTestManager(t *testing.T, retention time.Duration, quota int64) (*Manager, string) {
	t.Helper()
	dir := t.TempDir()
	return New(dir, retention, quota), dir
}

func TestRegisterAndStats(t *testing.T) {
	m, dir := newTestManager(t, time.Hour, 1000)

	a := writeFile(t, dir, "a.mp4", 100)
	b := writeFile(t, dir, "b.mp3", 200)
	if _, err := m.Register(a, 100); err != nil {
		t.Fatalf("register a: %v", err)
	}
	if _, err := m.Register(b, 200); err != nil {
		t.Fatalf("register b: %v", err)
	}

	s := m.Stats()
	if s.FileCount != 2 || s.TotalBytes != 300 {
		t.Fatalf("unexpected stats: %+v", s)
	}
	if s.OldestCreatedAt.IsZero() {
		t.Fatalf("oldest created at not set")
	}
}

func TestRegisterQuotaExceededDeletesFile(t *testing.T) {
	m, dir := newTestManager(t, time.Hour, 250)

	a := writeFile(t, dir, "a.mp4", 200)
	if _, err := m.Register(a, 200); err != nil {
		t.Fatalf("register a: %v", err)
	}

	b := writeFile(t, dir, "b.mp4", 100)
	_, err := m.Register(b, 100)
	if !errors.Is(err, ErrQuotaExceeded) {
		t.Fatalf("expected ErrQuotaExceeded, got %v", err)
	}
	if _, statErr := os.Stat(b); !os.IsNotExist(statErr) {
		t.Fatalf("over-quota file should be deleted")
	}
	if s := m.Stats(); s.FileCount != 1 || s.TotalBytes != 200 {
		t.Fatalf("stats should be unchanged: %+v", s)
	}
}

func TestSweepRemovesExpired(t *testing.T) {
	m, dir := newTestManager(t, time.Hour, 1000)
	now := time.Unix(1700000000, 0)
	m.now = func() time.Time { return now }

	a := writeFile(t, dir, "old.mp4", 10)
	if _, err := m.Register(a, 10); err != nil {
		t.Fatalf("register: %v", err)
	}

	// not expired yet
	now = now.Add(30 * time.Minute)
	if removed := m.Sweep(); removed != 0 {
		t.Fatalf("nothing should expire yet, removed %d", removed)
	}

	now = now.Add(time.Hour)
	if removed := m.Sweep(); removed != 1 {
		t.Fatalf("expected 1 removed, got %d", removed)
	}
	if _, err := os.Stat(a); !os.IsNotExist(err) {
		t.Fatalf("file should be gone from disk")
	}
	if _, ok := m.Resolve("old.mp4"); ok {
		t.Fatalf("record should be gone")
	}
	if s := m.Stats(); s.FileCount != 0 || s.TotalBytes != 0 {
		t.Fatalf("stats should be empty: %+v", s)
	}
}

func TestSweepSkipsInUse(t *testing.T) {
	m, dir := newTestManager(t, 0, 1000)

	a := writeFile(t, dir, "streaming.mp4", 10)
	if _, err := m.Register(a, 10); err != nil {
		t.Fatalf("register: %v", err)
	}

	m.MarkInUse(a)
	if removed := m.Sweep(); removed != 0 {
		t.Fatalf("in-use file must survive sweep, removed %d", removed)
	}
	if _, err := os.Stat(a); err != nil {
		t.Fatalf("file should still exist: %v", err)
	}

	m.ClearInUse(a)
	if removed := m.Sweep(); removed != 1 {
		t.Fatalf("expected removal after pin cleared, got %d", removed)
	}
}

func TestInUsePinsNest(t *testing.T) {
	m, dir := newTestManager(t, 0, 1000)
	a := writeFile(t, dir, "a.mp4", 10)
	if _, err := m.Register(a, 10); err != nil {
		t.Fatalf("register: %v", err)
	}

	m.MarkInUse(a)
	m.MarkInUse(a)
	m.ClearInUse(a)
	if removed := m.Sweep(); removed != 0 {
		t.Fatalf("path still pinned once, removed %d", removed)
	}
	m.ClearInUse(a)
	if removed := m.Sweep(); removed != 1 {
		t.Fatalf("expected removal after all pins cleared, got %d", removed)
	}
}

func TestDelete(t *testing.T) {
	m, dir := newTestManager(t, time.Hour, 1000)

	if err := m.Delete(filepath.Join(dir, "ghost.mp4")); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	a := writeFile(t, dir, "a.mp4", 10)
	if _, err := m.Register(a, 10); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := m.Delete(a); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := os.Stat(a); !os.IsNotExist(err) {
		t.Fatalf("file should be gone")
	}
	if err := m.Delete(a); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second delete should be ErrNotFound, got %v", err)
	}
}

func TestResolveRejectsPathTricks(t *testing.T) {
	m, dir := newTestManager(t, time.Hour, 1000)
	a := writeFile(t, dir, "a.mp4", 10)
	if _, err := m.Register(a, 10); err != nil {
		t.Fatalf("register: %v", err)
	}

	if _, ok := m.Resolve("a.mp4"); !ok {
		t.Fatalf("expected to resolve registered name")
	}
	for _, name := range []string{"", "../a.mp4", "sub/a.mp4", `..\a.mp4`} {
		if _, ok := m.Resolve(name); ok {
			t.Fatalf("resolve(%q) should fail", name)
		}
	}
}

func TestScanRebuildsFromDisk(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "kept.mp4", 123)
	writeFile(t, dir, ".tmp-partial", 5)

	m := New(dir, time.Hour, 1000)
	if err := m.Scan(); err != nil {
		t.Fatalf("scan: %v", err)
	}

	s := m.Stats()
	if s.FileCount != 1 || s.TotalBytes != 123 {
		t.Fatalf("unexpected stats after scan: %+v", s)
	}
	rec, ok := m.Resolve("kept.mp4")
	if !ok {
		t.Fatalf("scanned file not resolvable")
	}
	if rec.ExpiresAt.Sub(rec.CreatedAt) != time.Hour {
		t.Fatalf("retention not applied on scan: %+v", rec)
	}
}

func TestListNewestFirst(t *testing.T) {
	m, dir := newTestManager(t, time.Hour, 1000)
	now := time.Unix(1700000000, 0)
	m.now = func() time.Time { return now }

	a := writeFile(t, dir, "a.mp4", 1)
	if _, err := m.Register(a, 1); err != nil {
		t.Fatalf("register: %v", err)
	}
	now = now.Add(time.Minute)
	b := writeFile(t, dir, "b.mp4", 1)
	if _, err := m.Register(b, 1); err != nil {
		t.Fatalf("register: %v", err)
	}

	list := m.List()
	if len(list) != 2 || list[0].Name != "b.mp4" {
		t.Fatalf("expected newest first, got %+v", list)
	}
}
