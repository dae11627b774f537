// Package resource bounds the concurrency and IO footprint of batch
// operations.
package resource

import (
	"context"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// Config holds resource limits.
type Config struct {
	// MaxSearchWorkers is the maximum number of concurrent batch-search
	// workers. If 0, defaults to 1.
	MaxSearchWorkers int64

	// IOLimitBytesPerSec is the maximum throughput for snapshot uploads.
	// If 0, unlimited.
	IOLimitBytesPerSec int64
}

// Controller manages search concurrency and snapshot IO. A nil Controller
// is valid and enforces nothing.
type Controller struct {
	cfg Config

	searchSem *semaphore.Weighted
	ioLimiter *rate.Limiter
}

// NewController creates a new resource controller.
func NewController(cfg Config) *Controller {
	if cfg.MaxSearchWorkers <= 0 {
		cfg.MaxSearchWorkers = 1
	}

	c := &Controller{
		cfg:       cfg,
		searchSem: semaphore.NewWeighted(cfg.MaxSearchWorkers),
	}

	if cfg.IOLimitBytesPerSec > 0 {
		c.ioLimiter = rate.NewLimiter(rate.Limit(cfg.IOLimitBytesPerSec), int(cfg.IOLimitBytesPerSec))
	}

	return c
}

// AcquireSearch reserves a search worker slot, blocking until one is free
// or ctx is canceled.
func (c *Controller) AcquireSearch(ctx context.Context) error {
	if c == nil {
		return nil
	}
	return c.searchSem.Acquire(ctx, 1)
}

// TryAcquireSearch reserves a search worker slot without blocking.
func (c *Controller) TryAcquireSearch() bool {
	if c == nil {
		return true
	}
	return c.searchSem.TryAcquire(1)
}

// ReleaseSearch releases a search worker slot.
func (c *Controller) ReleaseSearch() {
	if c == nil {
		return
	}
	c.searchSem.Release(1)
}

// AcquireIO waits until the IO limit allows the specified number of bytes.
func (c *Controller) AcquireIO(ctx context.Context, bytes int) error {
	if c == nil || c.ioLimiter == nil {
		return nil
	}
	// WaitN rejects bursts larger than the limiter allows; chunk them.
	burst := c.ioLimiter.Burst()
	for bytes > 0 {
		n := bytes
		if n > burst {
			n = burst
		}
		if err := c.ioLimiter.WaitN(ctx, n); err != nil {
			return err
		}
		bytes -= n
	}
	return nil
}
