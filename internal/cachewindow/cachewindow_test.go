package cachewindow

import "testing"

func TestNewDefaults(t *testing.T) {
	m := New(0, 0)
	if m.Floor() != DefaultFloor {
		t.Errorf("Floor() = %d, want %d", m.Floor(), DefaultFloor)
	}
	if m.Ceiling() != DefaultCeiling {
		t.Errorf("Ceiling() = %d, want %d", m.Ceiling(), DefaultCeiling)
	}
}

func TestNewCeilingBelowFloor(t *testing.T) {
	m := New(500, 100)
	if m.Ceiling() != 500 {
		t.Errorf("Ceiling() = %d, want 500", m.Ceiling())
	}
}

func TestNextFetchSizeFloor(t *testing.T) {
	m := New(1000, 50000)

	// With no recorded state, the floor wins over a small request.
	if got := m.NextFetchSize("a@example.com", 50); got != 1000 {
		t.Errorf("NextFetchSize(50) = %d, want 1000", got)
	}
	// A request above the floor is honored.
	if got := m.NextFetchSize("a@example.com", 2000); got != 2000 {
		t.Errorf("NextFetchSize(2000) = %d, want 2000", got)
	}
}

func TestNextFetchSizeCeiling(t *testing.T) {
	m := New(1000, 50000)
	if got := m.NextFetchSize("a@example.com", 90000); got != 50000 {
		t.Errorf("NextFetchSize(90000) = %d, want 50000", got)
	}

	m.RecordCount("a@example.com", 90000)
	if got := m.HighWater("a@example.com"); got != 50000 {
		t.Errorf("HighWater() = %d, want 50000 after over-ceiling record", got)
	}
}

func TestWindowNeverShrinks(t *testing.T) {
	m := New(1000, 50000)

	m.RecordCount("a@example.com", 5000)
	if got := m.NextFetchSize("a@example.com", 0); got != 5000 {
		t.Fatalf("NextFetchSize(0) = %d, want 5000", got)
	}

	// A lower recorded count does not reduce the mark.
	m.RecordCount("a@example.com", 3000)
	if got := m.NextFetchSize("a@example.com", 0); got != 5000 {
		t.Errorf("NextFetchSize(0) = %d after lower count, want 5000", got)
	}

	// A smaller explicit request does not reduce it either.
	if got := m.NextFetchSize("a@example.com", 100); got != 5000 {
		t.Errorf("NextFetchSize(100) = %d, want 5000", got)
	}
}

func TestRecordFetchResultRaisesMark(t *testing.T) {
	m := New(100, 50000)

	m.RecordFetchResult("a@example.com", 250)
	if got := m.HighWater("a@example.com"); got != 250 {
		t.Errorf("HighWater() = %d, want 250", got)
	}

	// Fewer returned than before leaves the mark alone.
	m.RecordFetchResult("a@example.com", 10)
	if got := m.HighWater("a@example.com"); got != 250 {
		t.Errorf("HighWater() = %d after short fetch, want 250", got)
	}
}

func TestAccountsIndependent(t *testing.T) {
	m := New(1000, 50000)

	m.RecordCount("a@example.com", 8000)
	if got := m.NextFetchSize("b@example.com", 0); got != 1000 {
		t.Errorf("NextFetchSize for untouched account = %d, want floor 1000", got)
	}
}

func TestNormalizedKeys(t *testing.T) {
	m := New(1000, 50000)

	m.RecordCount("  A@Example.COM ", 4000)
	if got := m.HighWater("a@example.com"); got != 4000 {
		t.Errorf("HighWater() = %d, want 4000 via normalized key", got)
	}
}

func TestForget(t *testing.T) {
	m := New(1000, 50000)

	m.RecordCount("a@example.com", 9000)
	m.Forget("a@example.com")

	if got := m.HighWater("a@example.com"); got != 0 {
		t.Errorf("HighWater() = %d after Forget, want 0", got)
	}
	if got := m.NextFetchSize("a@example.com", 0); got != 1000 {
		t.Errorf("NextFetchSize(0) = %d after Forget, want floor 1000", got)
	}
}

// A user views a large mailbox, the count is recorded, and every later
// refresh keeps requesting at least that many messages.
func TestGrowThenRefreshScenario(t *testing.T) {
	m := New(1000, 50000)
	const email = "big@example.com"

	m.RecordCount(email, 12000)

	for i := 0; i < 3; i++ {
		size := m.NextFetchSize(email, 25)
		if size != 12000 {
			t.Fatalf("refresh %d: NextFetchSize = %d, want 12000", i, size)
		}
		m.RecordFetchResult(email, size)
	}
}
