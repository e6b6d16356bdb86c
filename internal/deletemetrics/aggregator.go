// Package deletemetrics aggregates remote-delete throughput metrics pushed
// by the backend into fixed 60-second buckets for trend display.
package deletemetrics

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/mailtide/mailtide/internal/account"
	"github.com/mailtide/mailtide/internal/backend"
)

// DefaultFetchTTL is how long a fetched snapshot stays fresh.
const DefaultFetchTTL = 30 * time.Second

// DefaultWindowMinutes is the trailing window shown in trend charts.
const DefaultWindowMinutes = 30

// Bucket is one 60-second slot of the trailing window.
// Processed sums the history entries falling in the slot; Pending is the
// last known backlog value, carried forward through empty slots.
type Bucket struct {
	Start     time.Time `json:"start"`
	Processed int       `json:"processed"`
	Pending   int       `json:"pending"`
}

type accountMetrics struct {
	latest    *backend.MetricsSnapshot
	history   []backend.MetricsHistoryEntry
	fetchedAt time.Time
	loading   bool
}

// Aggregator caches metrics snapshots per account and buckets their history.
// Snapshots arrive via push events; Fetch only asks the backend when the
// cached snapshot has gone stale.
type Aggregator struct {
	client   backend.Client
	logger   *slog.Logger
	fetchTTL time.Duration
	now      func() time.Time

	mu       sync.Mutex
	accounts map[string]*accountMetrics
}

// New creates an aggregator over the given backend client.
func New(client backend.Client) *Aggregator {
	return &Aggregator{
		client:   client,
		logger:   slog.Default(),
		fetchTTL: DefaultFetchTTL,
		now:      time.Now,
		accounts: make(map[string]*accountMetrics),
	}
}

// WithLogger sets the logger.
func (a *Aggregator) WithLogger(logger *slog.Logger) *Aggregator {
	a.logger = logger
	return a
}

// WithFetchTTL overrides the snapshot freshness window.
func (a *Aggregator) WithFetchTTL(ttl time.Duration) *Aggregator {
	a.fetchTTL = ttl
	return a
}

// withClock injects a clock for tests.
func (a *Aggregator) withClock(now func() time.Time) *Aggregator {
	a.now = now
	return a
}

// Fetch requests a metrics snapshot unless the cached one is still fresh or
// a fetch is already in flight. force bypasses both checks. The snapshot
// itself arrives later via HandleSnapshot.
func (a *Aggregator) Fetch(ctx context.Context, email string, force bool) error {
	key := account.Normalize(email)

	a.mu.Lock()
	st, ok := a.accounts[key]
	if !ok {
		st = &accountMetrics{}
		a.accounts[key] = st
	}
	if !force {
		if st.loading {
			a.mu.Unlock()
			return nil
		}
		if !st.fetchedAt.IsZero() && a.now().Sub(st.fetchedAt) < a.fetchTTL {
			a.mu.Unlock()
			return nil
		}
	}
	st.loading = true
	a.mu.Unlock()

	if err := a.client.FetchRemoteDeleteMetrics(ctx, key); err != nil {
		a.mu.Lock()
		if st, ok := a.accounts[key]; ok {
			st.loading = false
		}
		a.mu.Unlock()
		return err
	}
	return nil
}

// HandleSnapshot consumes a pushed metrics snapshot: last value wins, so
// arrival order of duplicates does not affect final state.
func (a *Aggregator) HandleSnapshot(snap backend.MetricsSnapshot) {
	key := account.Normalize(snap.Email)

	a.mu.Lock()
	defer a.mu.Unlock()

	st, ok := a.accounts[key]
	if !ok {
		st = &accountMetrics{}
		a.accounts[key] = st
	}
	st.latest = &snap
	if len(snap.History) > 0 {
		st.history = append([]backend.MetricsHistoryEntry(nil), snap.History...)
	}
	st.fetchedAt = a.now()
	st.loading = false
}

// Latest returns the most recent snapshot for the account, if any.
func (a *Aggregator) Latest(email string) (*backend.MetricsSnapshot, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	st, ok := a.accounts[account.Normalize(email)]
	if !ok || st.latest == nil {
		return nil, false
	}
	snap := *st.latest
	return &snap, true
}

// Loading reports whether a fetch is in flight for the account.
func (a *Aggregator) Loading(email string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	st, ok := a.accounts[account.Normalize(email)]
	return ok && st.loading
}

// Buckets returns the trailing windowMinutes of delete throughput for the
// account, one bucket per minute, oldest first.
func (a *Aggregator) Buckets(email string, windowMinutes int) []Bucket {
	if windowMinutes <= 0 {
		windowMinutes = DefaultWindowMinutes
	}

	a.mu.Lock()
	var history []backend.MetricsHistoryEntry
	fallbackPending := 0
	if st, ok := a.accounts[account.Normalize(email)]; ok {
		history = append(history, st.history...)
		if st.latest != nil {
			fallbackPending = st.latest.Pending
		}
	}
	a.mu.Unlock()

	return Bucketize(a.now(), windowMinutes, history, fallbackPending)
}

// SetOverrideMode switches the backend's delete processing mode. It does not
// affect local aggregation.
func (a *Aggregator) SetOverrideMode(ctx context.Context, email string, mode backend.OverrideMode) error {
	return a.client.UpdateRemoteDeleteOverride(ctx, account.Normalize(email), mode)
}

// Forget drops the account's metrics cache. Called on disconnect.
func (a *Aggregator) Forget(email string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.accounts, account.Normalize(email))
}

// Bucketize builds one bucket per 60-second slot for the trailing
// windowMinutes ending at now. Each bucket's Processed is the sum over
// history entries whose floor-to-minute timestamp matches the slot; Pending
// is the most recent entry's pending value observed up to and including the
// slot, carried forward through empty slots. With no history at all, every
// bucket reports fallbackPending. This yields full chart coverage even with
// sparse event arrival.
func Bucketize(now time.Time, windowMinutes int, history []backend.MetricsHistoryEntry, fallbackPending int) []Bucket {
	minuteNow := now.Unix() / 60 * 60
	start := minuteNow - int64(windowMinutes-1)*60

	sorted := append([]backend.MetricsHistoryEntry(nil), history...)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	// Seed the carry-forward with the earliest known pending value so slots
	// before the first entry aren't reported as zero backlog.
	pending := fallbackPending
	if len(sorted) > 0 {
		pending = sorted[0].Pending
	}

	buckets := make([]Bucket, windowMinutes)
	idx := 0
	// Entries before the window still advance the carry-forward.
	for idx < len(sorted) && sorted[idx].Timestamp.Unix()/60*60 < start {
		pending = sorted[idx].Pending
		idx++
	}

	for i := range buckets {
		slot := start + int64(i)*60
		processed := 0
		for idx < len(sorted) && sorted[idx].Timestamp.Unix()/60*60 == slot {
			processed += sorted[idx].Processed
			pending = sorted[idx].Pending
			idx++
		}
		buckets[i] = Bucket{
			Start:     time.Unix(slot, 0).UTC(),
			Processed: processed,
			Pending:   pending,
		}
	}
	return buckets
}
