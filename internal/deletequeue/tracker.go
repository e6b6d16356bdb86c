// Package deletequeue tracks the lifecycle of in-flight remote-delete
// operations. The backend accepts a delete immediately (archiving the message
// locally) and confirms the remote expunge asynchronously, possibly much
// later; this tracker is the sole authority on which UIDs are still in
// flight.
package deletequeue

import (
	"sync"

	"github.com/mailtide/mailtide/internal/account"
	"github.com/mailtide/mailtide/internal/backend"
)

// Counters is the derived per-account view over one delete cycle.
// A cycle starts when pending first becomes non-zero and ends when it
// returns to zero, at which point the entry is removed entirely. The UI
// distinguishes "no cycle running" (no entry) from a cycle in progress.
type Counters struct {
	Pending   int `json:"pending"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
}

type accountState struct {
	pending   map[string]struct{}
	completed int
	failed    int
}

// Tracker maintains the per-account pending-UID sets and cycle counters.
// Registration and resolution can interleave arbitrarily: the backend may
// confirm UIDs from one batch before the next batch is even registered.
// All mutation is funneled through the tracker's methods.
type Tracker struct {
	mu       sync.Mutex
	accounts map[string]*accountState
}

// New creates an empty tracker.
func New() *Tracker {
	return &Tracker{
		accounts: make(map[string]*accountState),
	}
}

// RegisterPending adds UIDs awaiting backend confirmation. Registering a UID
// that is already pending is a no-op for that UID. If the account had no
// pending UIDs before the call, a new cycle begins and the completed/failed
// counters reset.
func (t *Tracker) RegisterPending(email string, uids []string) {
	if len(uids) == 0 {
		return
	}
	key := account.Normalize(email)

	t.mu.Lock()
	defer t.mu.Unlock()

	st, ok := t.accounts[key]
	if !ok {
		st = &accountState{pending: make(map[string]struct{})}
		t.accounts[key] = st
	}
	if len(st.pending) == 0 {
		// Cycle boundary: pending transitions 0 -> >0.
		st.completed = 0
		st.failed = 0
	}
	for _, uid := range uids {
		st.pending[uid] = struct{}{}
	}
}

// ApplyUpdate consumes completion/failure notifications. Updates for UIDs
// not currently pending are ignored: they were already resolved or never
// registered, which is not an error. Every resolved UID increments
// completed; failed is additionally incremented when the update carries a
// remote error. When the pending set empties, the account's entry is
// removed.
func (t *Tracker) ApplyUpdate(email string, updates []backend.DeleteUpdate) {
	if len(updates) == 0 {
		return
	}
	key := account.Normalize(email)

	t.mu.Lock()
	defer t.mu.Unlock()

	st, ok := t.accounts[key]
	if !ok {
		return
	}
	for _, u := range updates {
		if _, pending := st.pending[u.UID]; !pending {
			continue
		}
		delete(st.pending, u.UID)
		st.completed++
		if u.RemoteError != "" {
			st.failed++
		}
	}
	if len(st.pending) == 0 {
		delete(t.accounts, key)
	}
}

// Counters returns the account's cycle counters. ok is false when no cycle
// is running for the account.
func (t *Tracker) Counters(email string) (Counters, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	st, ok := t.accounts[account.Normalize(email)]
	if !ok {
		return Counters{}, false
	}
	return Counters{
		Pending:   len(st.pending),
		Completed: st.completed,
		Failed:    st.failed,
	}, true
}

// IsPending reports whether the UID is still awaiting confirmation.
func (t *Tracker) IsPending(email, uid string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	st, ok := t.accounts[account.Normalize(email)]
	if !ok {
		return false
	}
	_, pending := st.pending[uid]
	return pending
}

// PendingUIDs returns the UIDs currently in flight for the account.
func (t *Tracker) PendingUIDs(email string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	st, ok := t.accounts[account.Normalize(email)]
	if !ok {
		return nil
	}
	uids := make([]string, 0, len(st.pending))
	for uid := range st.pending {
		uids = append(uids, uid)
	}
	return uids
}

// Forget drops all delete-queue state for the account. Called on disconnect.
func (t *Tracker) Forget(email string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.accounts, account.Normalize(email))
}
