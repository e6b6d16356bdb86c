// Package poller provides the periodic background refresh of the selected
// account.
package poller

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/mailtide/mailtide/internal/account"
)

// DefaultInterval is the refresh period while an account is selected.
const DefaultInterval = 30 * time.Second

// RefreshFunc is the callback invoked on each tick. It receives the selected
// account email and performs a silent incremental refresh.
type RefreshFunc func(ctx context.Context, email string) error

// Poller refreshes the currently selected account on a fixed interval.
// Only one account is polled at a time; selecting another account swaps the
// job, and ticks never overlap a refresh still in flight.
type Poller struct {
	cron     *cron.Cron
	refresh  RefreshFunc
	logger   *slog.Logger
	interval time.Duration

	mu       sync.Mutex
	selected string
	entryID  cron.EntryID
	running  bool
	lastErr  error

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	stopped bool
}

// New creates a poller with the given refresh callback.
func New(refresh RefreshFunc) *Poller {
	ctx, cancel := context.WithCancel(context.Background())
	return &Poller{
		cron: cron.New(cron.WithParser(cron.NewParser(
			cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
		))),
		refresh:  refresh,
		logger:   slog.Default(),
		interval: DefaultInterval,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// WithLogger sets the logger.
func (p *Poller) WithLogger(logger *slog.Logger) *Poller {
	p.logger = logger
	return p
}

// WithInterval overrides the refresh period.
func (p *Poller) WithInterval(d time.Duration) *Poller {
	if d > 0 {
		p.interval = d
	}
	return p
}

// Start begins executing scheduled refreshes.
func (p *Poller) Start() {
	p.cron.Start()
}

// Select makes the given account the polled one, replacing any previous
// selection's timer. A refresh already in flight for the old selection is
// left to finish; its result is discarded by the selection guard in the
// refresh callback.
func (p *Poller) Select(email string) error {
	email = account.Normalize(email)

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stopped {
		return fmt.Errorf("poller is stopped")
	}
	if p.selected == email {
		return nil
	}
	p.removeLocked()

	spec := fmt.Sprintf("@every %s", p.interval)
	entryID, err := p.cron.AddFunc(spec, func() { p.tick(email) })
	if err != nil {
		return fmt.Errorf("schedule poll: %w", err)
	}
	p.selected = email
	p.entryID = entryID
	p.logger.Debug("polling selected account", "email", email, "interval", p.interval)
	return nil
}

// Deselect stops polling without stopping the poller.
func (p *Poller) Deselect() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.removeLocked()
}

// removeLocked drops the current cron entry. Caller holds p.mu.
func (p *Poller) removeLocked() {
	if p.selected == "" {
		return
	}
	p.cron.Remove(p.entryID)
	p.selected = ""
	p.entryID = 0
}

// Selected returns the email currently being polled, or "".
func (p *Poller) Selected() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.selected
}

// LastError returns the most recent refresh error, if any.
func (p *Poller) LastError() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastErr
}

// tick runs one refresh unless one is already in flight or the poller is
// stopped.
func (p *Poller) tick(email string) {
	p.mu.Lock()
	if p.stopped || p.running || p.selected != email {
		p.mu.Unlock()
		return
	}
	p.running = true
	p.wg.Add(1)
	p.mu.Unlock()

	defer p.wg.Done()
	defer func() {
		p.mu.Lock()
		p.running = false
		p.mu.Unlock()
	}()

	start := time.Now()
	err := p.refresh(p.ctx, email)

	p.mu.Lock()
	p.lastErr = err
	p.mu.Unlock()

	if err != nil {
		p.logger.Warn("background refresh failed", "email", email, "duration", time.Since(start), "error", err)
		return
	}
	p.logger.Debug("background refresh completed", "email", email, "duration", time.Since(start))
}

// Stop tears the poller down: the timer is removed, in-flight work is
// signalled to stop, and Stop blocks until it finishes. No timers or
// refreshes survive Stop.
func (p *Poller) Stop() {
	p.mu.Lock()
	p.stopped = true
	p.removeLocked()
	p.mu.Unlock()

	cronCtx := p.cron.Stop()
	p.cancel()

	<-cronCtx.Done()
	p.wg.Wait()
}
