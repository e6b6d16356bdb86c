// Package syncer orchestrates full, incremental, and window synchronization
// against the mail backend, and keeps the local cache, cache window, and
// sender groupings consistent after each run.
package syncer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mailtide/mailtide/internal/account"
	"github.com/mailtide/mailtide/internal/backend"
	"github.com/mailtide/mailtide/internal/cachewindow"
	"github.com/mailtide/mailtide/internal/deletequeue"
	"github.com/mailtide/mailtide/internal/reconcile"
	"github.com/mailtide/mailtide/internal/store"
)

// dateLayout is the calendar-date format accepted by WindowSync.
const dateLayout = "2006-01-02"

// sweepConcurrency bounds parallel delete requests in SweepUIDs.
const sweepConcurrency = 4

// Options configures sync behavior.
type Options struct {
	// IncrementalChunk is the chunk size for incremental syncs (default: 25)
	IncrementalChunk int

	// FullChunk is the batch size for full and window syncs (default: 50)
	FullChunk int
}

// DefaultOptions returns sensible defaults.
func DefaultOptions() *Options {
	return &Options{
		IncrementalChunk: 25,
		FullChunk:        50,
	}
}

// Coordinator drives sync operations and owns the per-account sync reports,
// transient progress, and last-applied sender groups. Backend failures are
// recovered here: the account status moves to error, one notification is
// produced, and cached state is left untouched.
type Coordinator struct {
	client   backend.Client
	window   *cachewindow.Manager
	recon    *reconcile.Reconciler
	cache    *store.Store // optional; nil disables persistence
	registry *account.Registry
	tracker  *deletequeue.Tracker
	notifier Notifier
	logger   *slog.Logger
	opts     *Options

	mu       sync.Mutex
	reports  map[string]*backend.SyncReport
	progress map[string]*backend.ProgressEvent
	groups   map[string][]backend.SenderGroup
	counts   map[string]int
}

// New creates a coordinator.
func New(client backend.Client, window *cachewindow.Manager, recon *reconcile.Reconciler,
	registry *account.Registry, tracker *deletequeue.Tracker, opts *Options) *Coordinator {
	if opts == nil {
		opts = DefaultOptions()
	}
	return &Coordinator{
		client:   client,
		window:   window,
		recon:    recon,
		registry: registry,
		tracker:  tracker,
		notifier: NullNotifier{},
		logger:   slog.Default(),
		opts:     opts,
		reports:  make(map[string]*backend.SyncReport),
		progress: make(map[string]*backend.ProgressEvent),
		groups:   make(map[string][]backend.SenderGroup),
		counts:   make(map[string]int),
	}
}

// WithLogger sets the logger.
func (c *Coordinator) WithLogger(logger *slog.Logger) *Coordinator {
	c.logger = logger
	return c
}

// WithNotifier sets the user notifier.
func (c *Coordinator) WithNotifier(n Notifier) *Coordinator {
	c.notifier = n
	return c
}

// WithCache sets the local cache store.
func (c *Coordinator) WithCache(cache *store.Store) *Coordinator {
	c.cache = cache
	return c
}

// Refresh requests an incremental sync and reloads the cached view on
// success. announce gates the informational notification; failures always
// produce exactly one error notification.
func (c *Coordinator) Refresh(ctx context.Context, acct account.Account, limit int, announce bool) error {
	email := account.Normalize(acct.Email)
	c.registry.SetStatus(email, account.StatusSyncing)

	report, err := c.client.SyncIncremental(ctx, acct.Provider, email, c.opts.IncrementalChunk)
	if err != nil {
		return c.fail(email, "refresh", err)
	}

	c.setReport(email, report)
	if err := c.reload(ctx, email, limit); err != nil {
		return c.fail(email, "refresh reload", err)
	}
	c.registry.MarkSynced(email, time.Now())

	if announce {
		if report.Stored > 0 {
			c.notifier.Info(email, fmt.Sprintf("Synced %d new messages", report.Stored))
		} else {
			c.notifier.Info(email, "Mailbox already up to date")
		}
	}
	return nil
}

// FullSync re-fetches the mailbox. Progress arrives via ApplyProgress while
// the backend call is in flight; the transient progress entry is cleared on
// completion or failure regardless of outcome.
func (c *Coordinator) FullSync(ctx context.Context, acct account.Account) error {
	email := account.Normalize(acct.Email)
	c.registry.SetStatus(email, account.StatusSyncing)

	c.mu.Lock()
	c.progress[email] = &backend.ProgressEvent{Email: email}
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.progress, email)
		c.mu.Unlock()
	}()

	report, err := c.client.SyncFull(ctx, acct.Provider, email, c.opts.FullChunk)
	if err != nil {
		return c.fail(email, "full sync", err)
	}

	c.setReport(email, report)
	if err := c.reload(ctx, email, 0); err != nil {
		return c.fail(email, "full sync reload", err)
	}
	c.registry.MarkSynced(email, time.Now())

	c.notifier.Info(email, fmt.Sprintf("Full sync complete: %d fetched, %d stored", report.Fetched, report.Stored))
	return nil
}

// ValidateWindow checks a date window without touching the backend. The
// start date must parse as YYYY-MM-DD and the end date, when given, must be
// strictly after it.
func (c *Coordinator) ValidateWindow(startDate, endDate string) error {
	_, _, err := parseWindow(startDate, endDate)
	return err
}

func parseWindow(startDate, endDate string) (time.Time, time.Time, error) {
	start, err := time.Parse(dateLayout, startDate)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid start date %q: expected YYYY-MM-DD", startDate)
	}
	var end time.Time
	if endDate != "" {
		end, err = time.Parse(dateLayout, endDate)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid end date %q: expected YYYY-MM-DD", endDate)
		}
		if !end.After(start) {
			return time.Time{}, time.Time{}, fmt.Errorf("end date %s must be after start date %s", endDate, startDate)
		}
	}
	return start, end, nil
}

// WindowSync syncs a date window. Validation failures are returned before any
// backend call and never change account status.
func (c *Coordinator) WindowSync(ctx context.Context, acct account.Account, startDate, endDate string) error {
	start, end, err := parseWindow(startDate, endDate)
	if err != nil {
		return err
	}

	email := account.Normalize(acct.Email)
	c.registry.SetStatus(email, account.StatusSyncing)

	c.mu.Lock()
	c.progress[email] = &backend.ProgressEvent{Email: email}
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.progress, email)
		c.mu.Unlock()
	}()

	report, err := c.client.SyncWindow(ctx, acct.Provider, email, c.opts.FullChunk, start, end)
	if err != nil {
		return c.fail(email, "window sync", err)
	}

	c.setReport(email, report)
	if err := c.reload(ctx, email, 0); err != nil {
		return c.fail(email, "window sync reload", err)
	}
	c.registry.MarkSynced(email, time.Now())

	c.notifier.Info(email, fmt.Sprintf("Window sync complete: %d fetched, %d stored", report.Fetched, report.Stored))
	return nil
}

// ApplyProgress consumes a pushed batch-progress event. Events for accounts
// with no sync in flight are dropped (stale or duplicate pushes). Whenever
// the batch total is known, the cached message list is eagerly re-requested
// so partially-synced results show up mid-flight.
func (c *Coordinator) ApplyProgress(ctx context.Context, ev backend.ProgressEvent) {
	email := account.Normalize(ev.Email)

	c.mu.Lock()
	current, running := c.progress[email]
	if running {
		*current = ev
		current.Email = email
	}
	c.mu.Unlock()

	if !running || ev.TotalBatches <= 0 {
		return
	}

	// The last batch may be partial, so totalBatches*chunk can overshoot
	// the true remaining count; the overshoot is harmless and keeps the
	// interim window monotone.
	want := ev.TotalBatches * c.opts.FullChunk
	if ev.Fetched > want {
		want = ev.Fetched
	}
	size := c.window.NextFetchSize(email, want)

	messages, err := c.client.ListRecentMessages(ctx, email, size)
	if err != nil {
		c.logger.Warn("interim cache reload failed", "email", email, "error", err)
		return
	}
	c.window.RecordFetchResult(email, len(messages))
	if c.cache != nil {
		if err := c.cache.ReplaceMessages(email, messages); err != nil {
			c.logger.Warn("interim cache write failed", "email", email, "error", err)
		}
	}
}

// SweepUIDs requests remote deletion of the given UIDs, at most
// sweepConcurrency in flight at a time. Accepted deletes register their UID
// as pending immediately (the backend's queued push is idempotent on top of
// this). The first hard failure cancels the remaining requests and is
// returned so the batch caller can decide whether to retry.
func (c *Coordinator) SweepUIDs(ctx context.Context, acct account.Account, uids []string) error {
	email := account.Normalize(acct.Email)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(sweepConcurrency)
	for _, uid := range uids {
		uid := uid
		g.Go(func() error {
			deleted, err := c.client.DeleteMessage(ctx, acct.Provider, email, uid)
			if err != nil {
				return fmt.Errorf("delete %s: %w", uid, err)
			}
			if c.tracker != nil {
				c.tracker.RegisterPending(email, []string{deleted.UID})
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		c.notifier.Error(email, fmt.Sprintf("Delete failed: %v", err))
		return err
	}
	return nil
}

// Report returns the last completed sync report for an account.
func (c *Coordinator) Report(email string) (backend.SyncReport, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.reports[account.Normalize(email)]
	if !ok {
		return backend.SyncReport{}, false
	}
	return *r, true
}

// Progress returns the in-flight sync progress for an account, if a full or
// window sync is running.
func (c *Coordinator) Progress(email string) (backend.ProgressEvent, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.progress[account.Normalize(email)]
	if !ok {
		return backend.ProgressEvent{}, false
	}
	return *p, true
}

// Groups returns the last applied sender-group snapshot for an account.
func (c *Coordinator) Groups(email string) []backend.SenderGroup {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.groups[account.Normalize(email)]
}

// CachedCount returns the backend's last reported cached-message count.
func (c *Coordinator) CachedCount(email string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counts[account.Normalize(email)]
}

// Forget drops the coordinator's per-account state. Called on disconnect.
func (c *Coordinator) Forget(email string) {
	key := account.Normalize(email)
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.reports, key)
	delete(c.progress, key)
	delete(c.groups, key)
	delete(c.counts, key)
}

// fail records a recovered backend failure: status error, one notification,
// cached state untouched. The error is still returned so programmatic
// callers (poller, status API) can log it.
func (c *Coordinator) fail(email, op string, err error) error {
	c.registry.SetStatus(email, account.StatusError)
	c.logger.Error("sync operation failed", "op", op, "email", email, "error", err)
	c.notifier.Error(email, fmt.Sprintf("Sync failed: %v", err))
	return fmt.Errorf("%s: %w", op, err)
}

// setReport replaces the account's sync report wholesale.
func (c *Coordinator) setReport(email string, report *backend.SyncReport) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reports[email] = report
}

// reload refreshes the cached message list, sender groups, and cached count
// after a successful sync. The fetch size is driven through the cache window
// so the visible list never shrinks.
func (c *Coordinator) reload(ctx context.Context, email string, limit int) error {
	size := c.window.NextFetchSize(email, limit)

	messages, err := c.client.ListRecentMessages(ctx, email, size)
	if err != nil {
		return fmt.Errorf("list messages: %w", err)
	}
	c.window.RecordFetchResult(email, len(messages))
	if c.cache != nil {
		if err := c.cache.ReplaceMessages(email, messages); err != nil {
			return fmt.Errorf("cache messages: %w", err)
		}
	}

	fresh, err := c.client.ListSenderGroups(ctx, email)
	if err != nil {
		return fmt.Errorf("list sender groups: %w", err)
	}

	c.mu.Lock()
	previous := c.groups[email]
	c.mu.Unlock()

	applied, changed := c.recon.Reconcile(email, previous, fresh)
	if changed {
		c.mu.Lock()
		c.groups[email] = applied
		c.mu.Unlock()
		if c.cache != nil {
			if err := c.cache.ReplaceSenderGroups(email, applied); err != nil {
				return fmt.Errorf("cache sender groups: %w", err)
			}
		}
	}

	count, err := c.client.CachedMessageCount(ctx, email)
	if err != nil {
		return fmt.Errorf("cached count: %w", err)
	}
	c.window.RecordCount(email, count)

	c.mu.Lock()
	c.counts[email] = count
	c.mu.Unlock()

	if c.cache != nil {
		if report, ok := c.Report(email); ok {
			if err := c.cache.SaveSyncReport(email, report, time.Now()); err != nil {
				c.logger.Warn("failed to persist sync report", "email", email, "error", err)
			}
		}
	}
	return nil
}
