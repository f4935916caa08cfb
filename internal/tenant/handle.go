package tenant

import (
	"database/sql"
	"sync"
)

// Handle is a borrowed reference to one tenant's database. It is only
// valid until Release.
type Handle struct {
	pool *Pool
	e    *entry
	once sync.Once
}

// DB returns the tenant database.
func (h *Handle) DB() *sql.DB {
	return h.e.db
}

// TenantID returns the canonical tenant identifier.
func (h *Handle) TenantID() string {
	return h.e.id
}

// Release returns the handle to the pool. Calling it more than once is safe.
func (h *Handle) Release() {
	h.once.Do(func() {
		h.pool.release(h.e)
	})
}
