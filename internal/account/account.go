// Package account tracks configured mail accounts and their runtime state.
package account

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// Normalize canonicalizes an email address for use as an account key.
// All per-account maps in the client are keyed by this form.
func Normalize(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Account identifies a configured mailbox connection.
// The identity is immutable once created; runtime state lives in the Registry.
type Account struct {
	Email    string // normalized
	Provider string // "gmail", "outlook", "imap", ...
	Host     string // custom IMAP host, empty for well-known providers
	Port     int
}

// New creates an account with a normalized email.
func New(email, provider string) Account {
	return Account{Email: Normalize(email), Provider: provider}
}

// Status is the sync lifecycle state of an account.
type Status string

const (
	StatusIdle       Status = "idle"
	StatusConnecting Status = "connecting"
	StatusSyncing    Status = "syncing"
	StatusError      Status = "error"
)

// RuntimeState is the mutable per-account state, one per connected account.
type RuntimeState struct {
	Status   Status
	LastSync time.Time // zero until the first successful sync
}

// ForgetFunc is invoked with the normalized email when an account disconnects,
// so components holding per-account state can drop it.
type ForgetFunc func(email string)

// Registry owns the set of connected accounts, their runtime state, and the
// single current selection. All mutation goes through its methods.
type Registry struct {
	mu       sync.RWMutex
	accounts map[string]Account
	states   map[string]*RuntimeState
	selected string
	onForget []ForgetFunc
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		accounts: make(map[string]Account),
		states:   make(map[string]*RuntimeState),
	}
}

// OnForget registers a hook fired on disconnect. Hooks run outside the
// registry lock, after the account has been removed.
func (r *Registry) OnForget(fn ForgetFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onForget = append(r.onForget, fn)
}

// Connect registers an account and creates its runtime state.
// Re-connecting an already connected account resets its status to connecting.
func (r *Registry) Connect(acct Account) {
	email := Normalize(acct.Email)
	acct.Email = email

	r.mu.Lock()
	defer r.mu.Unlock()
	r.accounts[email] = acct
	if st, ok := r.states[email]; ok {
		st.Status = StatusConnecting
		return
	}
	r.states[email] = &RuntimeState{Status: StatusConnecting}
}

// Disconnect removes an account, clears the selection if it pointed at it,
// and fires the forget hooks so dependent per-account state is dropped.
func (r *Registry) Disconnect(email string) {
	email = Normalize(email)

	r.mu.Lock()
	_, existed := r.accounts[email]
	delete(r.accounts, email)
	delete(r.states, email)
	if r.selected == email {
		r.selected = ""
	}
	hooks := r.onForget
	r.mu.Unlock()

	if !existed {
		return
	}
	for _, fn := range hooks {
		fn(email)
	}
}

// Account returns the identity for a connected account.
func (r *Registry) Account(email string) (Account, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	acct, ok := r.accounts[Normalize(email)]
	return acct, ok
}

// Accounts returns all connected account identities.
func (r *Registry) Accounts() []Account {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Account, 0, len(r.accounts))
	for _, acct := range r.accounts {
		out = append(out, acct)
	}
	return out
}

// State returns a snapshot of the runtime state for an account.
func (r *Registry) State(email string) (RuntimeState, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	st, ok := r.states[Normalize(email)]
	if !ok {
		return RuntimeState{}, false
	}
	return *st, true
}

// SetStatus updates the status of a connected account.
// Unknown accounts are ignored; a late status for a disconnected account
// must not resurrect its state.
func (r *Registry) SetStatus(email string, status Status) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if st, ok := r.states[Normalize(email)]; ok {
		st.Status = status
	}
}

// MarkSynced records a successful sync: status returns to idle (recovering
// from a prior error) and LastSync is set.
func (r *Registry) MarkSynced(email string, at time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if st, ok := r.states[Normalize(email)]; ok {
		st.Status = StatusIdle
		st.LastSync = at
	}
}

// Select makes an account the current selection.
// Returns an error if the account is not connected.
func (r *Registry) Select(email string) error {
	email = Normalize(email)
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.accounts[email]; !ok {
		return fmt.Errorf("account %s is not connected", email)
	}
	r.selected = email
	return nil
}

// Deselect clears the current selection.
func (r *Registry) Deselect() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.selected = ""
}

// Selected returns the normalized email of the selected account, or "".
func (r *Registry) Selected() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.selected
}

// IsSelected reports whether email is the current selection. Used to guard
// against applying results of in-flight requests after a selection change.
func (r *Registry) IsSelected(email string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.selected != "" && r.selected == Normalize(email)
}
