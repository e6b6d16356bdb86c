package poller

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestSelect(t *testing.T) {
	p := New(func(ctx context.Context, email string) error { return nil })
	defer p.Stop()

	if err := p.Select("A@Example.com"); err != nil {
		t.Fatalf("Select: %v", err)
	}
	if got := p.Selected(); got != "a@example.com" {
		t.Errorf("Selected() = %q, want normalized a@example.com", got)
	}
}

func TestSelectSameAccountKeepsEntry(t *testing.T) {
	p := New(func(ctx context.Context, email string) error { return nil })
	defer p.Stop()

	_ = p.Select("a@example.com")
	first := p.entryID
	_ = p.Select("a@example.com")

	if p.entryID != first {
		t.Error("re-selecting the same account replaced the timer")
	}
}

func TestSelectSwapsAccount(t *testing.T) {
	p := New(func(ctx context.Context, email string) error { return nil })
	defer p.Stop()

	_ = p.Select("a@example.com")
	_ = p.Select("b@example.com")

	if got := p.Selected(); got != "b@example.com" {
		t.Errorf("Selected() = %q, want b@example.com", got)
	}
	// Exactly one cron entry remains.
	if got := len(p.cron.Entries()); got != 1 {
		t.Errorf("cron entries = %d, want 1", got)
	}
}

func TestDeselect(t *testing.T) {
	p := New(func(ctx context.Context, email string) error { return nil })
	defer p.Stop()

	_ = p.Select("a@example.com")
	p.Deselect()

	if p.Selected() != "" {
		t.Error("selection survived Deselect")
	}
	if got := len(p.cron.Entries()); got != 0 {
		t.Errorf("cron entries = %d after Deselect, want 0", got)
	}
}

func TestTickRunsRefresh(t *testing.T) {
	var calls atomic.Int32
	p := New(func(ctx context.Context, email string) error {
		calls.Add(1)
		if email != "a@example.com" {
			t.Errorf("refresh email = %q", email)
		}
		return nil
	})
	defer p.Stop()

	_ = p.Select("a@example.com")
	p.tick("a@example.com")

	if calls.Load() != 1 {
		t.Errorf("refresh calls = %d, want 1", calls.Load())
	}
}

func TestTickSkipsWhenRefreshRunning(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var calls atomic.Int32
	p := New(func(ctx context.Context, email string) error {
		calls.Add(1)
		close(started)
		<-release
		return nil
	})

	_ = p.Select("a@example.com")
	go p.tick("a@example.com")
	<-started

	// Overlapping tick is dropped while the first refresh is in flight.
	p.tick("a@example.com")
	if calls.Load() != 1 {
		t.Errorf("refresh calls = %d, want 1 (no overlap)", calls.Load())
	}

	close(release)
	p.Stop()
}

func TestTickSkipsStaleSelection(t *testing.T) {
	var calls atomic.Int32
	p := New(func(ctx context.Context, email string) error {
		calls.Add(1)
		return nil
	})
	defer p.Stop()

	_ = p.Select("a@example.com")
	_ = p.Select("b@example.com")

	// A tick scheduled for the old selection does nothing.
	p.tick("a@example.com")
	if calls.Load() != 0 {
		t.Errorf("refresh calls = %d, want 0 for stale tick", calls.Load())
	}
}

func TestLastError(t *testing.T) {
	wantErr := errors.New("refresh broke")
	p := New(func(ctx context.Context, email string) error { return wantErr })
	defer p.Stop()

	_ = p.Select("a@example.com")
	p.tick("a@example.com")

	if got := p.LastError(); !errors.Is(got, wantErr) {
		t.Errorf("LastError() = %v, want %v", got, wantErr)
	}
}

func TestStop(t *testing.T) {
	p := New(func(ctx context.Context, email string) error { return nil })
	_ = p.Select("a@example.com")
	p.Start()

	done := make(chan struct{})
	go func() {
		p.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Stop did not return")
	}

	if err := p.Select("b@example.com"); err == nil {
		t.Error("Select after Stop should fail")
	}
	if got := len(p.cron.Entries()); got != 0 {
		t.Errorf("cron entries = %d after Stop, want 0", got)
	}
}

func TestStopCancelsInFlightRefresh(t *testing.T) {
	started := make(chan struct{})
	var sawCancel atomic.Bool
	p := New(func(ctx context.Context, email string) error {
		close(started)
		<-ctx.Done()
		sawCancel.Store(true)
		return ctx.Err()
	})

	_ = p.Select("a@example.com")
	go p.tick("a@example.com")
	<-started

	p.Stop()
	if !sawCancel.Load() {
		t.Error("in-flight refresh was not cancelled by Stop")
	}
}
