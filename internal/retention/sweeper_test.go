package retention

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/heimdex/heimdex-fetch/internal/jobs"
	"github.com/heimdex/heimdex-fetch/internal/logging"
)

func writeAged(t *testing.T, dir, name string, age time.Duration, now time.Time) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("data"), 0o644); err != nil {
		t.Fatal(err)
	}
	mtime := now.Add(-age)
	if err := os.Chtimes(path, mtime, mtime); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestSweepOnce_FilesByAge(t *testing.T) {
	dir := t.TempDir()
	now := time.Now()
	old := writeAged(t, dir, "old.mp4", 73*time.Hour, now)
	fresh := writeAged(t, dir, "fresh.mp4", 71*time.Hour, now)
	os.Mkdir(filepath.Join(dir, "subdir"), 0o755)

	s := NewSweeper(jobs.NewStore(), Config{Dir: dir, Retention: 72 * time.Hour, Logger: logging.Discard()})

	files, _, err := s.SweepOnce(now)
	if err != nil {
		t.Fatalf("SweepOnce: %v", err)
	}
	if files != 1 {
		t.Errorf("files removed = %d, want 1", files)
	}
	if _, err := os.Stat(old); !os.IsNotExist(err) {
		t.Error("73h old file should be deleted")
	}
	if _, err := os.Stat(fresh); err != nil {
		t.Error("71h old file should survive")
	}
	if _, err := os.Stat(filepath.Join(dir, "subdir")); err != nil {
		t.Error("directories must not be removed")
	}
}

func TestSweepOnce_PrunesRecords(t *testing.T) {
	dir := t.TempDir()
	created := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := created
	store := jobs.NewStore(jobs.WithClock(func() time.Time { return clock }))

	oldID, _ := store.Create(jobs.KindVideo, jobs.Attrs{SourceID: "old", Resolution: 720})
	clock = created.Add(2 * time.Hour)
	freshID, _ := store.Create(jobs.KindAudio, jobs.Attrs{SourceID: "fresh", Quality: 128})

	s := NewSweeper(store, Config{Dir: dir, Retention: 72 * time.Hour})

	_, records, err := s.SweepOnce(created.Add(73 * time.Hour))
	if err != nil {
		t.Fatalf("SweepOnce: %v", err)
	}
	if records != 1 {
		t.Errorf("records removed = %d, want 1", records)
	}
	if _, ok := store.Get(oldID); ok {
		t.Error("stale record should be pruned")
	}
	if _, ok := store.Get(freshID); !ok {
		t.Error("fresh record should be kept")
	}
}

func TestSweepOnce_MissingDir(t *testing.T) {
	s := NewSweeper(jobs.NewStore(), Config{Dir: filepath.Join(t.TempDir(), "nope"), Retention: time.Hour})
	if _, _, err := s.SweepOnce(time.Now()); err == nil {
		t.Fatal("expected error for missing directory")
	}
}

type countingPruner struct {
	mu    sync.Mutex
	calls int
	hit   chan struct{}
}

func (p *countingPruner) PruneBefore(cutoff time.Time) int {
	p.mu.Lock()
	p.calls++
	p.mu.Unlock()
	select {
	case p.hit <- struct{}{}:
	default:
	}
	return 0
}

func TestSweeper_StartStop(t *testing.T) {
	p := &countingPruner{hit: make(chan struct{}, 1)}
	s := NewSweeper(p, Config{Dir: t.TempDir(), Interval: time.Hour, Retention: time.Hour})

	s.Start(context.Background())
	s.Start(context.Background())

	select {
	case <-p.hit:
	case <-time.After(2 * time.Second):
		t.Fatal("sweeper did not run an initial cycle")
	}
	if !s.IsRunning() {
		t.Error("IsRunning() = false after Start")
	}

	s.Stop()
	if s.IsRunning() {
		t.Error("IsRunning() = true after Stop")
	}
	p.mu.Lock()
	calls := p.calls
	p.mu.Unlock()
	if calls != 1 {
		t.Errorf("cycles = %d, want 1", calls)
	}

	s.Stop()
}

func TestSweeper_SurvivesFailedCycle(t *testing.T) {
	p := &countingPruner{hit: make(chan struct{}, 1)}
	dir := filepath.Join(t.TempDir(), "later")
	s := NewSweeper(p, Config{Dir: dir, Interval: 10 * time.Millisecond, Retention: time.Hour, RetryDelay: 10 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)

	time.Sleep(30 * time.Millisecond)
	if !s.IsRunning() {
		t.Fatal("sweeper died after failed cycle")
	}

	os.Mkdir(dir, 0o755)
	select {
	case <-p.hit:
	case <-time.After(2 * time.Second):
		t.Fatal("sweeper did not recover after directory appeared")
	}

	cancel()
	s.Stop()
}
