// Package cachewindow tracks, per account, how many cached messages the
// client should request. The window only grows within a session: shrinking it
// would make previously visible messages drop out of the cached list.
package cachewindow

import (
	"sync"

	"github.com/mailtide/mailtide/internal/account"
)

// Default bounds for the cache window.
const (
	DefaultFloor   = 1000
	DefaultCeiling = 50000
)

// Manager maintains the per-account high-water mark of requested message
// counts. All methods are safe for concurrent use; the manager is the sole
// writer of its table.
type Manager struct {
	floor   int
	ceiling int

	mu  sync.Mutex
	max map[string]int // normalized email -> highest count requested
}

// New creates a manager with the given bounds. Non-positive bounds fall back
// to the defaults; a ceiling below the floor is raised to the floor.
func New(floor, ceiling int) *Manager {
	if floor <= 0 {
		floor = DefaultFloor
	}
	if ceiling <= 0 {
		ceiling = DefaultCeiling
	}
	if ceiling < floor {
		ceiling = floor
	}
	return &Manager{
		floor:   floor,
		ceiling: ceiling,
		max:     make(map[string]int),
	}
}

// RecordCount notes a known total message count for the account, raising the
// stored maximum to min(knownTotal, ceiling) if that is greater.
func (m *Manager) RecordCount(email string, knownTotal int) {
	if knownTotal <= 0 {
		return
	}
	if knownTotal > m.ceiling {
		knownTotal = m.ceiling
	}

	key := account.Normalize(email)
	m.mu.Lock()
	defer m.mu.Unlock()
	if knownTotal > m.max[key] {
		m.max[key] = knownTotal
	}
}

// RecordFetchResult notes how many messages a fetch actually returned.
// The backend may return fewer than requested; the high-water mark is still
// raised to at least the returned count so it is never lost.
func (m *Manager) RecordFetchResult(email string, actualReturned int) {
	m.RecordCount(email, actualReturned)
}

// NextFetchSize computes how many cached messages to request: the maximum of
// the caller's requested limit, the account's high-water mark, and the floor,
// capped at the ceiling.
func (m *Manager) NextFetchSize(email string, requestedLimit int) int {
	key := account.Normalize(email)
	m.mu.Lock()
	prev := m.max[key]
	m.mu.Unlock()

	size := requestedLimit
	if prev > size {
		size = prev
	}
	if m.floor > size {
		size = m.floor
	}
	if size > m.ceiling {
		size = m.ceiling
	}
	return size
}

// Floor returns the configured minimum fetch size.
func (m *Manager) Floor() int {
	return m.floor
}

// Ceiling returns the configured maximum fetch size.
func (m *Manager) Ceiling() int {
	return m.ceiling
}

// HighWater returns the stored maximum for an account (0 when unknown).
func (m *Manager) HighWater(email string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.max[account.Normalize(email)]
}

// Forget drops the account's window state. Called on disconnect.
func (m *Manager) Forget(email string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.max, account.Normalize(email))
}
