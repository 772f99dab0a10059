// Package servicestest holds helpers for tests that drive the ledger services.
package servicestest

import (
	"sync"
	"time"

	"github.com/vncsmyrnk/ideavote/internal/core/ports"
)

// FixedClock always reports the same instant until moved with Set or Advance.
type FixedClock struct {
	mu sync.RWMutex
	t  time.Time
}

func NewFixedClock(t time.Time) *FixedClock {
	return &FixedClock{t: t}
}

func (c *FixedClock) Now() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.t
}

func (c *FixedClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

func (c *FixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

var _ ports.Clock = (*FixedClock)(nil)
