// Package retention periodically removes old output files and the job
// records that point at them.
package retention

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/heimdex/heimdex-fetch/internal/logging"
)

// DefaultRetryDelay is the pause after a failed sweep cycle.
const DefaultRetryDelay = time.Hour

type pruner interface {
	PruneBefore(cutoff time.Time) int
}

type Config struct {
	Dir        string
	Interval   time.Duration
	Retention  time.Duration
	RetryDelay time.Duration
	Logger     *slog.Logger
}

type Sweeper struct {
	store  pruner
	cfg    Config
	logger *slog.Logger
	now    func() time.Time

	running atomic.Bool
	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
}

func NewSweeper(store pruner, cfg Config) *Sweeper {
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = DefaultRetryDelay
	}
	return &Sweeper{
		store:  store,
		cfg:    cfg,
		logger: logging.WithComponent(logging.OrDiscard(cfg.Logger), "retention"),
		now:    time.Now,
	}
}

// Start launches the sweep loop. It sweeps immediately, then once per
// interval until ctx is cancelled or Stop is called. Starting a running
// sweeper is a no-op.
func (s *Sweeper) Start(ctx context.Context) {
	if s.running.Swap(true) {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	s.mu.Lock()
	s.cancel = cancel
	s.done = done
	s.mu.Unlock()

	go s.loop(ctx, done)
}

// Stop cancels the loop and waits for it to exit.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (s *Sweeper) IsRunning() bool {
	return s.running.Load()
}

func (s *Sweeper) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	defer s.running.Store(false)

	s.logger.Info("retention sweeper started",
		"interval", s.cfg.Interval.String(),
		"retention", s.cfg.Retention.String(),
	)

	for {
		wait := s.cfg.Interval
		if _, _, err := s.safeSweep(); err != nil {
			s.logger.Error("sweep cycle failed", "error", err, "retry_in", s.cfg.RetryDelay.String())
			wait = s.cfg.RetryDelay
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			s.logger.Info("retention sweeper stopping")
			return
		case <-timer.C:
		}
	}
}

// safeSweep runs one cycle and turns a panic into an error so the loop
// survives it.
func (s *Sweeper) safeSweep() (files, records int, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sweep panic: %v", r)
		}
	}()
	return s.SweepOnce(s.now())
}

// SweepOnce deletes every regular file in the output directory last modified
// before now minus the retention window, then prunes job records created
// before the same cutoff. Failures on individual files are logged and
// skipped; failing to list the directory aborts the cycle.
func (s *Sweeper) SweepOnce(now time.Time) (files, records int, err error) {
	cutoff := now.Add(-s.cfg.Retention)

	entries, err := os.ReadDir(s.cfg.Dir)
	if err != nil {
		return 0, 0, fmt.Errorf("read output dir: %w", err)
	}

	var freed uint64
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			s.logger.Warn("cannot stat file", "file", entry.Name(), "error", err)
			continue
		}
		if !info.ModTime().Before(cutoff) {
			continue
		}
		path := filepath.Join(s.cfg.Dir, entry.Name())
		if err := os.Remove(path); err != nil {
			s.logger.Warn("cannot remove expired file", "file", entry.Name(), "error", err)
			continue
		}
		files++
		freed += uint64(info.Size())
	}

	records = s.store.PruneBefore(cutoff)

	if files > 0 || records > 0 {
		s.logger.Info("sweep cycle complete",
			"files_removed", files,
			"bytes_freed", humanize.IBytes(freed),
			"records_removed", records,
		)
	}
	return files, records, nil
}
