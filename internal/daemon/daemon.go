// Package daemon wires the reconciliation components together and fans
// pushed backend notifications into them.
package daemon

import (
	"context"
	"log/slog"

	"github.com/mailtide/mailtide/internal/account"
	"github.com/mailtide/mailtide/internal/backend"
	"github.com/mailtide/mailtide/internal/cachewindow"
	"github.com/mailtide/mailtide/internal/config"
	"github.com/mailtide/mailtide/internal/deletemetrics"
	"github.com/mailtide/mailtide/internal/deletequeue"
	"github.com/mailtide/mailtide/internal/poller"
	"github.com/mailtide/mailtide/internal/reconcile"
	"github.com/mailtide/mailtide/internal/store"
	"github.com/mailtide/mailtide/internal/syncer"
)

// Daemon owns the per-account reconciliation state and implements
// backend.EventHandler. Push events for accounts that are not connected are
// dropped: a late notification must not resurrect state the disconnect
// cascade already removed.
type Daemon struct {
	cfg      *config.Config
	client   backend.Client
	logger   *slog.Logger
	registry *account.Registry
	window   *cachewindow.Manager
	recon    *reconcile.Reconciler
	coord    *syncer.Coordinator
	tracker  *deletequeue.Tracker
	metrics  *deletemetrics.Aggregator
	poll     *poller.Poller
	cache    *store.Store

	ctx    context.Context
	cancel context.CancelFunc
}

// Compile-time check that Daemon implements backend.EventHandler.
var _ backend.EventHandler = (*Daemon)(nil)

// New assembles a daemon from its configuration. cache may be nil to run
// without local persistence (tests do).
func New(cfg *config.Config, client backend.Client, cache *store.Store, logger *slog.Logger) *Daemon {
	if logger == nil {
		logger = slog.Default()
	}

	registry := account.NewRegistry()
	window := cachewindow.New(cfg.Sync.CacheFloor, cfg.Sync.CacheCeiling)
	recon := reconcile.New()
	tracker := deletequeue.New()
	metrics := deletemetrics.New(client).
		WithLogger(logger).
		WithFetchTTL(cfg.MetricsFetchTTL())

	opts := &syncer.Options{
		IncrementalChunk: cfg.Sync.IncrementalChunk,
		FullChunk:        cfg.Sync.FullChunk,
	}
	coord := syncer.New(client, window, recon, registry, tracker, opts).
		WithLogger(logger)
	if cache != nil {
		coord = coord.WithCache(cache)
	}

	ctx, cancel := context.WithCancel(context.Background())
	d := &Daemon{
		cfg:      cfg,
		client:   client,
		logger:   logger,
		registry: registry,
		window:   window,
		recon:    recon,
		coord:    coord,
		tracker:  tracker,
		metrics:  metrics,
		cache:    cache,
		ctx:      ctx,
		cancel:   cancel,
	}

	d.poll = poller.New(d.pollRefresh).
		WithLogger(logger).
		WithInterval(cfg.PollInterval())

	// Disconnect cascade: every component holding per-account state drops
	// it when the account goes away.
	registry.OnForget(window.Forget)
	registry.OnForget(recon.Forget)
	registry.OnForget(tracker.Forget)
	registry.OnForget(metrics.Forget)
	registry.OnForget(coord.Forget)
	if cache != nil {
		registry.OnForget(func(email string) {
			if err := cache.DeleteAccount(email); err != nil {
				logger.Warn("failed to drop cached account data", "email", email, "error", err)
			}
		})
	}

	return d
}

// Context returns the daemon's lifetime context. Background work started on
// behalf of API requests is bound to it rather than to the request.
func (d *Daemon) Context() context.Context { return d.ctx }

// Registry exposes the account registry.
func (d *Daemon) Registry() *account.Registry { return d.registry }

// Coordinator exposes the sync coordinator.
func (d *Daemon) Coordinator() *syncer.Coordinator { return d.coord }

// Tracker exposes the remote-delete queue tracker.
func (d *Daemon) Tracker() *deletequeue.Tracker { return d.tracker }

// Metrics exposes the delete-metrics aggregator.
func (d *Daemon) Metrics() *deletemetrics.Aggregator { return d.metrics }

// Poller exposes the background poller.
func (d *Daemon) Poller() *poller.Poller { return d.poll }

// WithNotifier routes coordinator notifications.
func (d *Daemon) WithNotifier(n syncer.Notifier) *Daemon {
	d.coord = d.coord.WithNotifier(n)
	return d
}

// ConnectConfigured connects every enabled account from the configuration
// and selects the first one.
func (d *Daemon) ConnectConfigured() int {
	accounts := d.cfg.EnabledAccounts()
	for _, acc := range accounts {
		d.registry.Connect(account.Account{
			Email:    acc.Email,
			Provider: acc.Provider,
			Host:     acc.Host,
			Port:     acc.Port,
		})
		d.registry.SetStatus(acc.Email, account.StatusIdle)
	}
	if len(accounts) > 0 {
		d.Select(accounts[0].Email)
	}
	return len(accounts)
}

// Select switches the active account: the registry selection moves and the
// poller starts refreshing the new account in place of the old one.
func (d *Daemon) Select(email string) error {
	if err := d.registry.Select(email); err != nil {
		return err
	}
	return d.poll.Select(email)
}

// Disconnect tears an account down: selection and polling stop if they
// pointed at it, then the forget cascade drops all of its state.
func (d *Daemon) Disconnect(email string) {
	if d.poll.Selected() == account.Normalize(email) {
		d.poll.Deselect()
	}
	d.registry.Disconnect(email)
}

// Start begins background polling.
func (d *Daemon) Start() {
	d.poll.Start()
}

// Close tears down polling and the backend client deterministically.
func (d *Daemon) Close() error {
	d.cancel()
	d.poll.Stop()
	return d.client.Close()
}

// pollRefresh is the poller callback: a silent incremental refresh of the
// selected account. The selection is re-checked before running so a stale
// tick after a selection change does nothing.
func (d *Daemon) pollRefresh(ctx context.Context, email string) error {
	if !d.registry.IsSelected(email) {
		return nil
	}
	acct, ok := d.registry.Account(email)
	if !ok {
		return nil
	}
	return d.coord.Refresh(ctx, acct, 0, false)
}

// OnSyncProgress forwards batch progress to the coordinator.
func (d *Daemon) OnSyncProgress(ev backend.ProgressEvent) {
	if _, ok := d.registry.State(ev.Email); !ok {
		d.logger.Debug("dropping progress for unknown account", "email", ev.Email)
		return
	}
	d.coord.ApplyProgress(d.ctx, ev)
}

// OnRemoteDeleteQueued registers freshly queued UIDs as pending.
func (d *Daemon) OnRemoteDeleteQueued(email string, uids []string) {
	if _, ok := d.registry.State(email); !ok {
		d.logger.Debug("dropping delete-queued for unknown account", "email", email)
		return
	}
	d.tracker.RegisterPending(email, uids)
}

// OnRemoteDeleteStatus resolves pending UIDs into completed/failed.
func (d *Daemon) OnRemoteDeleteStatus(email string, updates []backend.DeleteUpdate) {
	if _, ok := d.registry.State(email); !ok {
		d.logger.Debug("dropping delete-status for unknown account", "email", email)
		return
	}
	d.tracker.ApplyUpdate(email, updates)
}

// OnRemoteDeleteMetrics stores a pushed metrics snapshot.
func (d *Daemon) OnRemoteDeleteMetrics(snap backend.MetricsSnapshot) {
	if _, ok := d.registry.State(snap.Email); !ok {
		d.logger.Debug("dropping metrics for unknown account", "email", snap.Email)
		return
	}
	d.metrics.HandleSnapshot(snap)
}
