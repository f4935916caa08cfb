// Package cache provides a TTL-bounded LRU and a manager that periodically
// asks registered resources to drop expired entries.
package cache

import (
	"context"
	"time"

	"budget/internal/log"
)

// Cache defines a generic cache interface
type Cache[T any] interface {
	Get(key string) (T, bool)
	Set(key string, value T)
	Delete(key string)
	Size() int
}

// Cleaner is anything that can release expired entries, e.g. an LRU or
// the tenant handle pool.
type Cleaner interface {
	CleanExpired() int
}

type namedCleaner struct {
	name string
	c    Cleaner
}

// Manager runs periodic cleanup over registered cleaners.
type Manager struct {
	cleaners []namedCleaner
	logger   *log.Logger
}

// NewManager creates a cleanup manager.
func NewManager(logger *log.Logger) *Manager {
	if logger == nil {
		logger = log.Discard()
	}
	return &Manager{logger: logger.WithComponent(log.ComponentCache)}
}

// Register adds a cleaner. Call before Run.
func (m *Manager) Register(name string, c Cleaner) {
	m.cleaners = append(m.cleaners, namedCleaner{name: name, c: c})
}

// CleanOnce runs every cleaner once and returns the total removed.
func (m *Manager) CleanOnce() int {
	total := 0
	for _, nc := range m.cleaners {
		n := nc.c.CleanExpired()
		if n > 0 {
			m.logger.Debug("Expired entries cleaned", "cache", nc.name, log.FieldCount, n)
		}
		total += n
	}
	return total
}

// Run cleans every interval until ctx is done.
func (m *Manager) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.CleanOnce()
		case <-ctx.Done():
			return nil
		}
	}
}
