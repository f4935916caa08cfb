// Package tenant locates, creates and pools the per-user databases.
//
// Every tenant owns exactly one SQLite file under the data directory. A
// Pool hands out reference-counted handles to those files, creating and
// initializing a file the first time its tenant is seen. Concurrent first
// requests for the same tenant share one creation; requests for different
// tenants never wait on each other beyond map bookkeeping.
package tenant

import (
	"container/list"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"budget/internal/core"
	"budget/internal/log"
	"budget/internal/metrics"
)

// ErrClosed is returned by Resolve after Close.
var ErrClosed = fmt.Errorf("tenant pool closed: %w", core.ErrStorageUnavailable)

// ErrRemoved is returned by Resolve for a tenant removed from this pool.
var ErrRemoved = fmt.Errorf("tenant removed: %w", core.ErrNotFound)

// Config configures a Pool. Open and InitSchema are required.
type Config struct {
	DataDir string
	// MaxIdle bounds how many released handles stay open.
	MaxIdle int
	// IdleTTL is how long a released handle may stay open unused.
	IdleTTL time.Duration

	Open       func(ctx context.Context, path string) (*sql.DB, error)
	InitSchema func(ctx context.Context, path string) error
}

// Stats is a point-in-time view of the pool.
type Stats struct {
	Open  int
	InUse int
}

type entry struct {
	id       string
	path     string
	db       *sql.DB
	refs     int
	lastUsed time.Time
	idleElem *list.Element

	detached    bool
	closeReason string
	deleteFiles bool
}

// Pool maps tenant identifiers to open databases.
type Pool struct {
	cfg     Config
	logger  *log.Logger
	metrics *metrics.Metrics
	now     func() time.Time

	group singleflight.Group

	mu       sync.Mutex
	entries  map[string]*entry
	creating map[string]bool
	// removed tenants stay unresolvable; identifiers are never reused.
	removed map[string]struct{}
	idle    *list.List // front is most recently released
	closed  bool
}

// NewPool creates an empty pool. logger and m may be nil.
func NewPool(cfg Config, logger *log.Logger, m *metrics.Metrics) (*Pool, error) {
	if cfg.Open == nil || cfg.InitSchema == nil {
		return nil, errors.New("tenant pool requires Open and InitSchema")
	}
	if cfg.DataDir == "" {
		return nil, errors.New("tenant pool requires a data directory")
	}
	if cfg.MaxIdle < 1 {
		cfg.MaxIdle = 1
	}
	if logger == nil {
		logger = log.Discard()
	}
	return &Pool{
		cfg:     cfg,
		logger:  logger.WithComponent(log.ComponentTenant),
		metrics: m,
		now:     time.Now,
		entries:  make(map[string]*entry),
		creating: make(map[string]bool),
		removed:  make(map[string]struct{}),
		idle:     list.New(),
	}, nil
}

// CanonicalID validates a tenant identifier and returns its canonical form.
// Only UUIDs are accepted, so an identifier can never escape the data directory.
func CanonicalID(tenantID string) (string, error) {
	u, err := uuid.Parse(tenantID)
	if err != nil {
		return "", core.Invalid("tenant_id", "is not a valid identifier")
	}
	return u.String(), nil
}

// Path returns the database file of a canonical tenant identifier.
func (p *Pool) Path(id string) string {
	return filepath.Join(p.cfg.DataDir, "user_"+id+".db")
}

// Resolve returns a handle to the tenant's database, creating and
// initializing it on first use. The caller must Release the handle.
func (p *Pool) Resolve(ctx context.Context, tenantID string) (*Handle, error) {
	id, err := CanonicalID(tenantID)
	if err != nil {
		return nil, err
	}

	for attempt := 0; attempt < 3; attempt++ {
		h, err := p.acquire(id)
		if err != nil || h != nil {
			return h, err
		}

		// Creation outlives any single caller: others may be waiting on it.
		_, err, _ = p.group.Do(id, func() (any, error) {
			return nil, p.create(context.WithoutCancel(ctx), id)
		})
		if err != nil {
			return nil, err
		}
	}
	return nil, fmt.Errorf("tenant %s: handle evicted during creation: %w", id, core.ErrStorageUnavailable)
}

func (p *Pool) acquire(id string) (*Handle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, ErrClosed
	}
	if _, gone := p.removed[id]; gone {
		return nil, ErrRemoved
	}
	e, ok := p.entries[id]
	if !ok {
		return nil, nil
	}
	e.refs++
	if e.idleElem != nil {
		p.idle.Remove(e.idleElem)
		e.idleElem = nil
	}
	return &Handle{pool: p, e: e}, nil
}

// create opens and initializes the tenant database and parks it as idle.
// It runs at most once at a time per tenant.
func (p *Pool) create(ctx context.Context, id string) error {
	p.mu.Lock()
	if _, exists := p.entries[id]; exists {
		p.mu.Unlock()
		return nil
	}
	if _, gone := p.removed[id]; gone {
		p.mu.Unlock()
		return ErrRemoved
	}
	p.creating[id] = true
	p.mu.Unlock()

	path := p.Path(id)
	logger := p.logger.WithTenant(id)

	db, err := p.cfg.Open(ctx, path)
	if err != nil {
		p.abandonCreate(id)
		p.metrics.HandleOpened("storage_unavailable")
		logger.Error("Failed to open tenant database", log.FieldOperation, log.OpResolve, log.FieldError, err)
		if !errors.Is(err, core.ErrStorageUnavailable) {
			err = fmt.Errorf("%w: %w", core.ErrStorageUnavailable, err)
		}
		return fmt.Errorf("open tenant %s: %w", id, err)
	}

	start := p.now()
	if err := p.cfg.InitSchema(ctx, path); err != nil {
		db.Close()
		p.abandonCreate(id)
		p.metrics.SchemaInit("error", p.now().Sub(start))
		p.metrics.HandleOpened("schema_error")
		logger.Error("Tenant schema initialization failed", log.FieldOperation, log.OpMigrate, log.FieldError, err)
		if !errors.Is(err, core.ErrSchema) && !errors.Is(err, core.ErrStorageUnavailable) {
			err = fmt.Errorf("%w: %w", core.ErrSchema, err)
		}
		return fmt.Errorf("initialize tenant %s: %w", id, err)
	}
	p.metrics.SchemaInit("ok", p.now().Sub(start))

	p.mu.Lock()
	delete(p.creating, id)
	_, gone := p.removed[id]
	if p.closed || gone {
		p.mu.Unlock()
		db.Close()
		if gone {
			// Removed while opening: the files may have been recreated.
			p.metrics.HandleOpened("removed")
			if err := removeFiles(path); err != nil {
				logger.Error("Failed to delete tenant database", log.FieldOperation, log.OpDelete, log.FieldError, err)
			}
			return ErrRemoved
		}
		return ErrClosed
	}
	e := &entry{id: id, path: path, db: db, lastUsed: p.now()}
	e.idleElem = p.idle.PushFront(e)
	p.entries[id] = e
	evicted := p.trimIdleLocked()
	p.mu.Unlock()

	p.metrics.HandleOpened("ok")
	logger.Debug("Tenant database opened", log.FieldOperation, log.OpResolve)
	p.closeEntries(evicted, "capacity")
	return nil
}

// abandonCreate clears the creation marker after a failed open. A removal
// that arrived meanwhile still gets its files deleted.
func (p *Pool) abandonCreate(id string) {
	p.mu.Lock()
	delete(p.creating, id)
	_, gone := p.removed[id]
	p.mu.Unlock()
	if gone {
		if err := removeFiles(p.Path(id)); err != nil {
			p.logger.WithTenant(id).Error("Failed to delete tenant database", log.FieldOperation, log.OpDelete, log.FieldError, err)
		}
	}
}

// trimIdleLocked detaches the least recently released handles above MaxIdle.
func (p *Pool) trimIdleLocked() []*entry {
	var evicted []*entry
	for p.idle.Len() > p.cfg.MaxIdle {
		e := p.idle.Remove(p.idle.Back()).(*entry)
		e.idleElem = nil
		delete(p.entries, e.id)
		evicted = append(evicted, e)
	}
	return evicted
}

func (p *Pool) release(e *entry) {
	p.mu.Lock()
	e.refs--
	e.lastUsed = p.now()
	if e.refs > 0 {
		p.mu.Unlock()
		return
	}

	if e.detached {
		p.mu.Unlock()
		p.closeEntries([]*entry{e}, e.closeReason)
		return
	}

	e.idleElem = p.idle.PushFront(e)
	evicted := p.trimIdleLocked()
	p.mu.Unlock()

	p.closeEntries(evicted, "capacity")
}

// CleanExpired closes handles released longer than IdleTTL ago. Handles in
// use are never touched.
func (p *Pool) CleanExpired() int {
	if p.cfg.IdleTTL <= 0 {
		return 0
	}

	p.mu.Lock()
	cutoff := p.now().Add(-p.cfg.IdleTTL)
	var expired []*entry
	for elem := p.idle.Back(); elem != nil; {
		e := elem.Value.(*entry)
		if !e.lastUsed.Before(cutoff) {
			break
		}
		prev := elem.Prev()
		p.idle.Remove(elem)
		e.idleElem = nil
		delete(p.entries, e.id)
		expired = append(expired, e)
		elem = prev
	}
	p.mu.Unlock()

	p.closeEntries(expired, "idle")
	return len(expired)
}

// Remove deletes a tenant's database files and makes the tenant
// unresolvable. Used when an account is deleted. Borrowed handles stay
// usable; the files go once the last one is released.
func (p *Pool) Remove(ctx context.Context, tenantID string) error {
	id, err := CanonicalID(tenantID)
	if err != nil {
		return err
	}

	p.mu.Lock()
	p.removed[id] = struct{}{}
	e, ok := p.entries[id]
	switch {
	case ok:
		delete(p.entries, id)
		e.detached = true
		e.closeReason = "removed"
		e.deleteFiles = true
		if e.refs > 0 {
			p.mu.Unlock()
			p.logger.WithTenant(id).Info("Tenant removal deferred until handles are released")
			return nil
		}
		if e.idleElem != nil {
			p.idle.Remove(e.idleElem)
			e.idleElem = nil
		}
	case p.creating[id]:
		// The creator sees the tombstone and deletes the files.
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()

	if ok {
		p.closeEntries([]*entry{e}, "removed")
		return nil
	}
	return removeFiles(p.Path(id))
}

func (p *Pool) closeEntries(entries []*entry, reason string) {
	for _, e := range entries {
		logger := p.logger.WithTenant(e.id)
		if err := e.db.Close(); err != nil {
			logger.Warn("Failed to close tenant database", log.FieldError, err)
		}
		p.metrics.HandleClosed(reason)
		if e.deleteFiles {
			if err := removeFiles(e.path); err != nil {
				logger.Error("Failed to delete tenant database", log.FieldOperation, log.OpDelete, log.FieldError, err)
				continue
			}
			logger.Info("Tenant database deleted", log.FieldOperation, log.OpDelete)
		}
	}
}

func removeFiles(path string) error {
	var errs []error
	for _, f := range []string{path, path + "-wal", path + "-shm"} {
		if err := os.Remove(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", core.ErrStorageUnavailable, errors.Join(errs...))
	}
	return nil
}

// Stats reports how many databases are open and how many are borrowed.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	s := Stats{Open: len(p.entries)}
	for _, e := range p.entries {
		if e.refs > 0 {
			s.InUse++
		}
	}
	return s
}

// Close closes every idle database; borrowed ones close on release.
// Resolve fails afterwards.
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	var idle []*entry
	for _, e := range p.entries {
		e.detached = true
		e.closeReason = "shutdown"
		if e.refs == 0 {
			idle = append(idle, e)
		}
	}
	p.entries = make(map[string]*entry)
	p.idle.Init()
	p.mu.Unlock()

	var errs []error
	for _, e := range idle {
		if err := e.db.Close(); err != nil {
			errs = append(errs, err)
		}
		p.metrics.HandleClosed("shutdown")
	}
	return errors.Join(errs...)
}
