package backend

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestNewHTTPClientValidation(t *testing.T) {
	cases := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"empty url", Config{}, true},
		{"http without allow_insecure", Config{URL: "http://backend:8765"}, true},
		{"http with allow_insecure", Config{URL: "http://backend:8765", AllowInsecure: true}, false},
		{"https", Config{URL: "https://backend:8765"}, false},
		{"bad scheme", Config{URL: "ftp://backend"}, true},
		{"no host", Config{URL: "https://"}, true},
	}

	for _, tc := range cases {
		_, err := NewHTTPClient(tc.cfg)
		if (err != nil) != tc.wantErr {
			t.Errorf("%s: err = %v, wantErr = %v", tc.name, err, tc.wantErr)
		}
	}
}

func TestSyncIncremental(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/sync/incremental" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if got := r.Header.Get("X-API-Key"); got != "sekret" {
			t.Errorf("X-API-Key = %q", got)
		}
		if r.Header.Get("X-Request-ID") == "" {
			t.Error("X-Request-ID missing")
		}

		var req syncRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Provider != "gmail" || req.Email != "a@example.com" || req.ChunkSize != 25 {
			t.Errorf("request = %+v", req)
		}

		_ = json.NewEncoder(w).Encode(SyncReport{Fetched: 7, Stored: 6, DurationMs: 90})
	}))
	defer srv.Close()

	client, err := NewHTTPClient(Config{URL: srv.URL, APIKey: "sekret", AllowInsecure: true})
	if err != nil {
		t.Fatal(err)
	}

	report, err := client.SyncIncremental(context.Background(), "gmail", "a@example.com", 25)
	if err != nil {
		t.Fatalf("SyncIncremental: %v", err)
	}
	if report.Fetched != 7 || report.Stored != 6 {
		t.Errorf("report = %+v", report)
	}
}

func TestSyncWindowEpochs(t *testing.T) {
	var got syncRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req syncRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		got = req
		_ = json.NewEncoder(w).Encode(SyncReport{})
	}))
	defer srv.Close()

	client, _ := NewHTTPClient(Config{URL: srv.URL, AllowInsecure: true})

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	if _, err := client.SyncWindow(context.Background(), "gmail", "a@example.com", 50, start, end); err != nil {
		t.Fatal(err)
	}
	if got.StartEpochMs != start.UnixMilli() || got.EndEpochMs != end.UnixMilli() {
		t.Errorf("epochs = %d/%d", got.StartEpochMs, got.EndEpochMs)
	}

	// Open-ended window omits the end epoch.
	if _, err := client.SyncWindow(context.Background(), "gmail", "a@example.com", 50, start, time.Time{}); err != nil {
		t.Fatal(err)
	}
	if got.EndEpochMs != 0 {
		t.Errorf("open-ended EndEpochMs = %d, want 0", got.EndEpochMs)
	}
}

func TestListRecentMessages(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/accounts/a@example.com/messages" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if got := r.URL.Query().Get("limit"); got != "100" {
			t.Errorf("limit = %q", got)
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"messages": []EmailSummary{{UID: "1", Subject: "hi", Status: "cached"}},
		})
	}))
	defer srv.Close()

	client, _ := NewHTTPClient(Config{URL: srv.URL, AllowInsecure: true})

	messages, err := client.ListRecentMessages(context.Background(), "a@example.com", 100)
	if err != nil {
		t.Fatalf("ListRecentMessages: %v", err)
	}
	if len(messages) != 1 || messages[0].UID != "1" {
		t.Errorf("messages = %+v", messages)
	}
}

func TestCachedMessageCount(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]int{"count": 4200})
	}))
	defer srv.Close()

	client, _ := NewHTTPClient(Config{URL: srv.URL, AllowInsecure: true})

	count, err := client.CachedMessageCount(context.Background(), "a@example.com")
	if err != nil {
		t.Fatal(err)
	}
	if count != 4200 {
		t.Errorf("count = %d, want 4200", count)
	}
}

func TestBackendErrorMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_ = json.NewEncoder(w).Encode(apiError{Error: "sync_running", Message: "a sync is already in flight"})
	}))
	defer srv.Close()

	client, _ := NewHTTPClient(Config{URL: srv.URL, AllowInsecure: true})

	_, err := client.SyncFull(context.Background(), "gmail", "a@example.com", 50)
	if err == nil {
		t.Fatal("expected error")
	}
	want := "backend error (409): a sync is already in flight"
	if err.Error() != want {
		t.Errorf("error = %q, want %q", err.Error(), want)
	}
}

func TestDeleteMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/messages/delete" {
			t.Errorf("path = %q", r.URL.Path)
		}
		var req deleteRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		_ = json.NewEncoder(w).Encode(DeletedEmail{UID: req.UID, Subject: "bye", ArchivedAt: time.Now()})
	}))
	defer srv.Close()

	client, _ := NewHTTPClient(Config{URL: srv.URL, AllowInsecure: true})

	deleted, err := client.DeleteMessage(context.Background(), "gmail", "a@example.com", "uid-7")
	if err != nil {
		t.Fatalf("DeleteMessage: %v", err)
	}
	if deleted.UID != "uid-7" {
		t.Errorf("deleted UID = %q, want uid-7", deleted.UID)
	}
}

func TestFetchRemoteDeleteMetricsAccepted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	client, _ := NewHTTPClient(Config{URL: srv.URL, AllowInsecure: true})

	if err := client.FetchRemoteDeleteMetrics(context.Background(), "a@example.com"); err != nil {
		t.Errorf("202 should be accepted: %v", err)
	}
}

func TestParseRetryAfter(t *testing.T) {
	resp := &http.Response{Header: http.Header{}}
	if got := parseRetryAfter(resp, time.Second); got != time.Second {
		t.Errorf("default = %v, want 1s", got)
	}

	resp.Header.Set("Retry-After", "5")
	if got := parseRetryAfter(resp, time.Second); got != 5*time.Second {
		t.Errorf("parsed = %v, want 5s", got)
	}

	resp.Header.Set("Retry-After", "soon")
	if got := parseRetryAfter(resp, time.Second); got != time.Second {
		t.Errorf("unparsable = %v, want default 1s", got)
	}
}
