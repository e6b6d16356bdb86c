package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/mailtide/mailtide/internal/backend"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "cache.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	if err := s.InitSchema(); err != nil {
		t.Fatalf("InitSchema: %v", err)
	}
	return s
}

func TestInitSchemaIdempotent(t *testing.T) {
	s := testStore(t)
	if err := s.InitSchema(); err != nil {
		t.Errorf("second InitSchema: %v", err)
	}
}

func TestReplaceAndListMessages(t *testing.T) {
	s := testStore(t)
	date := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	messages := []backend.EmailSummary{
		{
			UID:                "uid-2",
			Subject:            "newest",
			Date:               &date,
			Snippet:            "hello",
			Status:             "cached",
			Flags:              []string{"seen", "starred"},
			AnalysisSummary:    "greeting",
			AnalysisSentiment:  "positive",
			AnalysisCategories: []string{"personal"},
		},
		{UID: "uid-1", Subject: "older", Status: "cached"},
	}

	if err := s.ReplaceMessages("A@Example.com", messages); err != nil {
		t.Fatalf("ReplaceMessages: %v", err)
	}

	got, err := s.Messages("a@example.com", 0)
	if err != nil {
		t.Fatalf("Messages: %v", err)
	}
	if diff := cmp.Diff(messages, got); diff != "" {
		t.Errorf("messages round-trip mismatch (-want +got):\n%s", diff)
	}

	count, err := s.CachedCount("a@example.com")
	if err != nil {
		t.Fatalf("CachedCount: %v", err)
	}
	if count != 2 {
		t.Errorf("CachedCount = %d, want 2", count)
	}
}

func TestMessagesLimit(t *testing.T) {
	s := testStore(t)
	messages := []backend.EmailSummary{
		{UID: "1", Status: "cached"},
		{UID: "2", Status: "cached"},
		{UID: "3", Status: "cached"},
	}
	if err := s.ReplaceMessages("a@example.com", messages); err != nil {
		t.Fatal(err)
	}

	got, err := s.Messages("a@example.com", 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].UID != "1" || got[1].UID != "2" {
		t.Errorf("limited messages = %+v, want first two in order", got)
	}
}

func TestReplaceMessagesOverwrites(t *testing.T) {
	s := testStore(t)
	first := []backend.EmailSummary{{UID: "1", Status: "cached"}, {UID: "2", Status: "cached"}}
	if err := s.ReplaceMessages("a@example.com", first); err != nil {
		t.Fatal(err)
	}

	second := []backend.EmailSummary{{UID: "3", Status: "cached"}}
	if err := s.ReplaceMessages("a@example.com", second); err != nil {
		t.Fatal(err)
	}

	got, _ := s.Messages("a@example.com", 0)
	if len(got) != 1 || got[0].UID != "3" {
		t.Errorf("messages = %+v, want only the replacement snapshot", got)
	}
}

func TestSenderGroupsRoundTrip(t *testing.T) {
	s := testStore(t)
	messages := []backend.EmailSummary{
		{UID: "1", Subject: "a", Status: "cached"},
		{UID: "2", Subject: "b", Status: "cached"},
	}
	if err := s.ReplaceMessages("a@example.com", messages); err != nil {
		t.Fatal(err)
	}

	groups := []backend.SenderGroup{
		{
			SenderEmail:   "alice@example.com",
			SenderDisplay: "Alice",
			Status:        backend.GroupAllowed,
			MessageCount:  2,
			Messages:      messages,
		},
	}
	if err := s.ReplaceSenderGroups("a@example.com", groups); err != nil {
		t.Fatalf("ReplaceSenderGroups: %v", err)
	}

	got, err := s.SenderGroups("a@example.com")
	if err != nil {
		t.Fatalf("SenderGroups: %v", err)
	}
	if diff := cmp.Diff(groups, got); diff != "" {
		t.Errorf("groups round-trip mismatch (-want +got):\n%s", diff)
	}
}

func TestSenderGroupsSkipUncachedMembers(t *testing.T) {
	s := testStore(t)
	if err := s.ReplaceMessages("a@example.com", []backend.EmailSummary{{UID: "1", Status: "cached"}}); err != nil {
		t.Fatal(err)
	}

	groups := []backend.SenderGroup{{
		SenderEmail:  "alice@example.com",
		MessageCount: 2,
		Messages: []backend.EmailSummary{
			{UID: "1", Status: "cached"},
			{UID: "ghost", Status: "cached"},
		},
	}}
	if err := s.ReplaceSenderGroups("a@example.com", groups); err != nil {
		t.Fatal(err)
	}

	got, err := s.SenderGroups("a@example.com")
	if err != nil {
		t.Fatal(err)
	}
	if len(got[0].Messages) != 1 || got[0].Messages[0].UID != "1" {
		t.Errorf("members = %+v, want only cached UIDs resolved", got[0].Messages)
	}
}

func TestSyncReportRoundTrip(t *testing.T) {
	s := testStore(t)

	if _, _, ok, err := s.LastSyncReport("a@example.com"); err != nil || ok {
		t.Fatalf("LastSyncReport on empty store = ok=%v err=%v, want ok=false", ok, err)
	}

	report := backend.SyncReport{Fetched: 10, Stored: 8, DurationMs: 340}
	at := time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC)
	if err := s.SaveSyncReport("a@example.com", report, at); err != nil {
		t.Fatalf("SaveSyncReport: %v", err)
	}

	got, gotAt, ok, err := s.LastSyncReport("a@example.com")
	if err != nil || !ok {
		t.Fatalf("LastSyncReport: ok=%v err=%v", ok, err)
	}
	if got != report {
		t.Errorf("report = %+v, want %+v", got, report)
	}
	if !gotAt.Equal(at) {
		t.Errorf("completedAt = %v, want %v", gotAt, at)
	}

	// Upsert replaces the previous report.
	newer := backend.SyncReport{Fetched: 2, Stored: 2, DurationMs: 50}
	if err := s.SaveSyncReport("a@example.com", newer, at.Add(time.Hour)); err != nil {
		t.Fatal(err)
	}
	got, _, _, _ = s.LastSyncReport("a@example.com")
	if got != newer {
		t.Errorf("report after upsert = %+v, want %+v", got, newer)
	}
}

func TestDeleteAccount(t *testing.T) {
	s := testStore(t)
	messages := []backend.EmailSummary{{UID: "1", Status: "cached"}}
	if err := s.ReplaceMessages("a@example.com", messages); err != nil {
		t.Fatal(err)
	}
	if err := s.ReplaceSenderGroups("a@example.com", []backend.SenderGroup{
		{SenderEmail: "x@example.com", MessageCount: 1, Messages: messages},
	}); err != nil {
		t.Fatal(err)
	}
	if err := s.SaveSyncReport("a@example.com", backend.SyncReport{Fetched: 1}, time.Now()); err != nil {
		t.Fatal(err)
	}
	// A second account that must survive.
	if err := s.ReplaceMessages("b@example.com", messages); err != nil {
		t.Fatal(err)
	}

	if err := s.DeleteAccount("a@example.com"); err != nil {
		t.Fatalf("DeleteAccount: %v", err)
	}

	if count, _ := s.CachedCount("a@example.com"); count != 0 {
		t.Errorf("messages remain after DeleteAccount: %d", count)
	}
	if groups, _ := s.SenderGroups("a@example.com"); len(groups) != 0 {
		t.Errorf("groups remain after DeleteAccount: %d", len(groups))
	}
	if _, _, ok, _ := s.LastSyncReport("a@example.com"); ok {
		t.Error("sync report remains after DeleteAccount")
	}
	if count, _ := s.CachedCount("b@example.com"); count != 1 {
		t.Errorf("unrelated account affected: count = %d, want 1", count)
	}
}
