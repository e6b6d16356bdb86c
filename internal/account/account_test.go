package account

import (
	"testing"
	"time"
)

func TestNormalize(t *testing.T) {
	cases := map[string]string{
		"A@Example.COM":    "a@example.com",
		"  a@example.com ": "a@example.com",
		"a@example.com":    "a@example.com",
	}
	for in, want := range cases {
		if got := Normalize(in); got != want {
			t.Errorf("Normalize(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestConnect(t *testing.T) {
	r := NewRegistry()
	r.Connect(Account{Email: "A@Example.com", Provider: "gmail"})

	acct, ok := r.Account("a@example.com")
	if !ok {
		t.Fatal("account not found under normalized key")
	}
	if acct.Email != "a@example.com" {
		t.Errorf("stored email = %q, want normalized", acct.Email)
	}

	st, ok := r.State("a@example.com")
	if !ok || st.Status != StatusConnecting {
		t.Errorf("state = %+v, %v; want connecting", st, ok)
	}
}

func TestReconnectPreservesLastSync(t *testing.T) {
	r := NewRegistry()
	r.Connect(Account{Email: "a@example.com"})
	at := time.Now()
	r.MarkSynced("a@example.com", at)

	r.Connect(Account{Email: "a@example.com"})

	st, _ := r.State("a@example.com")
	if st.Status != StatusConnecting {
		t.Errorf("status = %q, want connecting after reconnect", st.Status)
	}
	if !st.LastSync.Equal(at) {
		t.Error("LastSync lost on reconnect")
	}
}

func TestSetStatusUnknownAccountIgnored(t *testing.T) {
	r := NewRegistry()
	r.SetStatus("ghost@example.com", StatusSyncing)

	if _, ok := r.State("ghost@example.com"); ok {
		t.Error("SetStatus resurrected state for an unknown account")
	}
}

func TestMarkSyncedRecoversFromError(t *testing.T) {
	r := NewRegistry()
	r.Connect(Account{Email: "a@example.com"})
	r.SetStatus("a@example.com", StatusError)

	r.MarkSynced("a@example.com", time.Now())

	st, _ := r.State("a@example.com")
	if st.Status != StatusIdle {
		t.Errorf("status = %q, want idle after successful sync", st.Status)
	}
}

func TestSelect(t *testing.T) {
	r := NewRegistry()
	r.Connect(Account{Email: "a@example.com"})

	if err := r.Select("A@Example.com"); err != nil {
		t.Fatalf("Select: %v", err)
	}
	if got := r.Selected(); got != "a@example.com" {
		t.Errorf("Selected() = %q, want a@example.com", got)
	}
	if !r.IsSelected("a@example.com") {
		t.Error("IsSelected should be true")
	}

	r.Deselect()
	if r.Selected() != "" {
		t.Error("selection survived Deselect")
	}
}

func TestSelectUnknownAccount(t *testing.T) {
	r := NewRegistry()
	if err := r.Select("ghost@example.com"); err == nil {
		t.Error("Select of unconnected account should fail")
	}
}

func TestDisconnectFiresForgetHooks(t *testing.T) {
	r := NewRegistry()
	var forgotten []string
	r.OnForget(func(email string) { forgotten = append(forgotten, email) })
	r.OnForget(func(email string) { forgotten = append(forgotten, "second:"+email) })

	r.Connect(Account{Email: "a@example.com"})
	r.Disconnect("A@Example.com")

	if len(forgotten) != 2 {
		t.Fatalf("hooks fired %d times, want 2", len(forgotten))
	}
	if forgotten[0] != "a@example.com" {
		t.Errorf("hook received %q, want normalized email", forgotten[0])
	}

	if _, ok := r.Account("a@example.com"); ok {
		t.Error("account still present after Disconnect")
	}
	if _, ok := r.State("a@example.com"); ok {
		t.Error("state still present after Disconnect")
	}
}

func TestDisconnectUnknownAccountNoHooks(t *testing.T) {
	r := NewRegistry()
	fired := 0
	r.OnForget(func(email string) { fired++ })

	r.Disconnect("ghost@example.com")
	if fired != 0 {
		t.Errorf("hooks fired %d times for unknown account, want 0", fired)
	}
}

func TestDisconnectClearsSelection(t *testing.T) {
	r := NewRegistry()
	r.Connect(Account{Email: "a@example.com"})
	r.Connect(Account{Email: "b@example.com"})
	_ = r.Select("a@example.com")

	r.Disconnect("a@example.com")
	if r.Selected() != "" {
		t.Error("selection still points at disconnected account")
	}

	// Disconnecting another account leaves an unrelated selection alone.
	_ = r.Select("b@example.com")
	r.Connect(Account{Email: "c@example.com"})
	r.Disconnect("c@example.com")
	if r.Selected() != "b@example.com" {
		t.Error("unrelated disconnect cleared the selection")
	}
}

func TestAccounts(t *testing.T) {
	r := NewRegistry()
	r.Connect(Account{Email: "a@example.com"})
	r.Connect(Account{Email: "b@example.com"})

	if got := len(r.Accounts()); got != 2 {
		t.Errorf("Accounts() returned %d, want 2", got)
	}
}
