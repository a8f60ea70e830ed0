package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/heimdex/heimdex-fetch/internal/logging"
)

const defaultVersionTTL = 5 * time.Minute

type versioner interface {
	Version(ctx context.Context) (string, error)
}

// CachedVersion caches the engine version string so health checks do not
// run the engine on every request.
type CachedVersion struct {
	engine versioner
	ttl    time.Duration
	logger *slog.Logger
	now    func() time.Time

	mu       sync.RWMutex
	version  string
	probedAt time.Time
}

func NewCachedVersion(engine versioner, logger *slog.Logger) *CachedVersion {
	return &CachedVersion{
		engine: engine,
		ttl:    defaultVersionTTL,
		logger: logging.OrDiscard(logger),
		now:    time.Now,
	}
}

// Get returns the cached version if fresh, otherwise re-probes.
func (c *CachedVersion) Get(ctx context.Context) (string, error) {
	c.mu.RLock()
	if c.version != "" && c.now().Sub(c.probedAt) < c.ttl {
		v := c.version
		c.mu.RUnlock()
		return v, nil
	}
	c.mu.RUnlock()

	return c.Refresh(ctx)
}

// Peek returns the last known version without probing.
func (c *CachedVersion) Peek() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.version
}

// Refresh re-probes regardless of freshness. A failed probe returns the stale
// value when one exists.
func (c *CachedVersion) Refresh(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	v, err := c.engine.Version(ctx)
	if err != nil {
		c.logger.Warn("engine version probe failed", "error", err)
		if c.version != "" {
			return c.version, nil
		}
		return "", err
	}

	c.version = v
	c.probedAt = c.now()
	return v, nil
}
