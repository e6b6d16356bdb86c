// Package reconcile merges freshly fetched sender groupings into cached state
// with minimal-change semantics. The backend returns full snapshots on every
// poll; replacing state wholesale would thrash the UI (re-renders, lost
// scroll and expansion) even when nothing changed, so updates are suppressed
// unless the snapshots differ structurally.
package reconcile

import (
	"sync"

	"github.com/mailtide/mailtide/internal/account"
	"github.com/mailtide/mailtide/internal/backend"
)

// Reconciler compares sender-group snapshots and tracks which sender is
// expanded per account.
type Reconciler struct {
	mu       sync.Mutex
	expanded map[string]string // normalized email -> expanded sender
}

// New creates a reconciler.
func New() *Reconciler {
	return &Reconciler{
		expanded: make(map[string]string),
	}
}

// Reconcile compares previous and fresh group snapshots for the account.
// When they are structurally equal it returns (previous, false) so callers
// keep the existing state; otherwise it returns (fresh, true).
//
// On the first reconciliation that yields a non-empty result, the first
// group's sender becomes the default expanded sender for the account if none
// is set yet.
func (r *Reconciler) Reconcile(email string, previous, fresh []backend.SenderGroup) ([]backend.SenderGroup, bool) {
	key := account.Normalize(email)

	if groupsEqual(previous, fresh) {
		return previous, false
	}

	if len(fresh) > 0 {
		r.mu.Lock()
		if _, ok := r.expanded[key]; !ok {
			r.expanded[key] = fresh[0].SenderEmail
		}
		r.mu.Unlock()
	}

	return fresh, true
}

// ExpandedSender returns the sender currently expanded for the account.
func (r *Reconciler) ExpandedSender(email string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sender, ok := r.expanded[account.Normalize(email)]
	return sender, ok
}

// SetExpandedSender records a user-driven expansion change.
func (r *Reconciler) SetExpandedSender(email, sender string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.expanded[account.Normalize(email)] = sender
}

// Forget drops the account's expansion state. Called on disconnect.
func (r *Reconciler) Forget(email string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.expanded, account.Normalize(email))
}

// groupsEqual is the structural-equality projection used to suppress no-op
// updates. It deliberately ignores fields that don't affect what the UI
// shows for a group (flags, categories, remote errors).
func groupsEqual(a, b []backend.SenderGroup) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !groupEqual(&a[i], &b[i]) {
			return false
		}
	}
	return true
}

func groupEqual(a, b *backend.SenderGroup) bool {
	if a.SenderEmail != b.SenderEmail ||
		a.Status != b.Status ||
		a.MessageCount != b.MessageCount ||
		len(a.Messages) != len(b.Messages) {
		return false
	}
	for i := range a.Messages {
		if !messageEqual(&a.Messages[i], &b.Messages[i]) {
			return false
		}
	}
	return true
}

func messageEqual(a, b *backend.EmailSummary) bool {
	if a.UID != b.UID ||
		a.Subject != b.Subject ||
		a.Snippet != b.Snippet ||
		a.AnalysisSummary != b.AnalysisSummary ||
		a.AnalysisSentiment != b.AnalysisSentiment {
		return false
	}
	switch {
	case a.Date == nil && b.Date == nil:
		return true
	case a.Date == nil || b.Date == nil:
		return false
	default:
		return a.Date.Equal(*b.Date)
	}
}
