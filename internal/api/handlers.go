package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mailtide/mailtide/internal/account"
	"github.com/mailtide/mailtide/internal/backend"
	"github.com/mailtide/mailtide/internal/deletequeue"
)

// AccountInfo represents an account in list responses.
type AccountInfo struct {
	Email      string `json:"email"`
	Provider   string `json:"provider"`
	Status     string `json:"status"`
	Selected   bool   `json:"selected"`
	LastSyncAt string `json:"last_sync_at,omitempty"`
}

// ReportResponse represents the last sync outcome plus any in-flight progress.
type ReportResponse struct {
	Report      *backend.SyncReport    `json:"report,omitempty"`
	Progress    *backend.ProgressEvent `json:"progress,omitempty"`
	CachedCount int                    `json:"cached_count"`
	GroupCount  int                    `json:"group_count"`
}

// DeletesResponse represents the current delete cycle for an account.
type DeletesResponse struct {
	Active   bool                 `json:"active"`
	Counters deletequeue.Counters `json:"counters"`
	Pending  []string             `json:"pending_uids,omitempty"`
}

// MetricsResponse represents the bucketed delete-throughput trend.
type MetricsResponse struct {
	Snapshot *backend.MetricsSnapshot `json:"snapshot,omitempty"`
	Loading  bool                     `json:"loading"`
	Buckets  []deleteBucket           `json:"buckets"`
}

type deleteBucket struct {
	Start     string `json:"start"`
	Processed int    `json:"processed"`
	Pending   int    `json:"pending"`
}

// ErrorResponse represents an API error.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes an error response.
func writeError(w http.ResponseWriter, status int, err string, message string) {
	writeJSON(w, status, ErrorResponse{Error: err, Message: message})
}

// handleListAccounts returns all connected accounts with their runtime state.
func (s *Server) handleListAccounts(w http.ResponseWriter, r *http.Request) {
	registry := s.daemon.Registry()
	selected := registry.Selected()

	var accounts []AccountInfo
	for _, acct := range registry.Accounts() {
		info := AccountInfo{
			Email:    acct.Email,
			Provider: acct.Provider,
			Selected: acct.Email == selected,
		}
		if st, ok := registry.State(acct.Email); ok {
			info.Status = string(st.Status)
			if !st.LastSync.IsZero() {
				info.LastSyncAt = st.LastSync.UTC().Format(time.RFC3339)
			}
		}
		accounts = append(accounts, info)
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"accounts": accounts,
	})
}

// connectedAccount resolves the {email} URL parameter to a connected account,
// writing the error response itself when the account is unknown.
func (s *Server) connectedAccount(w http.ResponseWriter, r *http.Request) (account.Account, bool) {
	email := chi.URLParam(r, "email")
	acct, ok := s.daemon.Registry().Account(email)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown_account", "Account "+email+" is not connected")
		return account.Account{}, false
	}
	return acct, true
}

// handleReport returns the last sync report and any in-flight progress.
func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	acct, ok := s.connectedAccount(w, r)
	if !ok {
		return
	}
	coord := s.daemon.Coordinator()

	resp := ReportResponse{
		CachedCount: coord.CachedCount(acct.Email),
		GroupCount:  len(coord.Groups(acct.Email)),
	}
	if report, ok := coord.Report(acct.Email); ok {
		resp.Report = &report
	}
	if progress, ok := coord.Progress(acct.Email); ok {
		resp.Progress = &progress
	}

	writeJSON(w, http.StatusOK, resp)
}

// handleDeletes returns the delete-cycle counters for an account.
func (s *Server) handleDeletes(w http.ResponseWriter, r *http.Request) {
	acct, ok := s.connectedAccount(w, r)
	if !ok {
		return
	}
	tracker := s.daemon.Tracker()

	counters, active := tracker.Counters(acct.Email)
	resp := DeletesResponse{
		Active:   active,
		Counters: counters,
	}
	if active {
		resp.Pending = tracker.PendingUIDs(acct.Email)
	}

	writeJSON(w, http.StatusOK, resp)
}

// handleMetrics returns the bucketed delete-throughput trend. A fetch is
// requested opportunistically so a stale snapshot refreshes in the background.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	acct, ok := s.connectedAccount(w, r)
	if !ok {
		return
	}
	metrics := s.daemon.Metrics()

	if err := metrics.Fetch(r.Context(), acct.Email, false); err != nil {
		s.logger.Warn("metrics fetch request failed", "email", acct.Email, "error", err)
	}

	windowMinutes, _ := strconv.Atoi(r.URL.Query().Get("window_minutes"))
	resp := MetricsResponse{
		Loading: metrics.Loading(acct.Email),
	}
	if snap, ok := metrics.Latest(acct.Email); ok {
		resp.Snapshot = snap
	}
	for _, b := range metrics.Buckets(acct.Email, windowMinutes) {
		resp.Buckets = append(resp.Buckets, deleteBucket{
			Start:     b.Start.Format(time.RFC3339),
			Processed: b.Processed,
			Pending:   b.Pending,
		})
	}

	writeJSON(w, http.StatusOK, resp)
}

// syncRequest is the body of a manual sync trigger.
type syncRequest struct {
	Mode  string `json:"mode"`  // "incremental" (default), "full", "window"
	Since string `json:"since"` // window start, YYYY-MM-DD
	Until string `json:"until"` // window end, YYYY-MM-DD, optional
}

// handleTriggerSync starts a sync for an account. Window date validation
// happens before the request is accepted; the sync itself runs in the
// background and its outcome is observable via the report endpoint.
func (s *Server) handleTriggerSync(w http.ResponseWriter, r *http.Request) {
	acct, ok := s.connectedAccount(w, r)
	if !ok {
		return
	}

	var req syncRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_body", "Request body must be JSON")
			return
		}
	}

	coord := s.daemon.Coordinator()
	switch req.Mode {
	case "", "incremental":
		go func() {
			_ = coord.Refresh(s.daemon.Context(), acct, 0, true)
		}()
	case "full":
		go func() {
			_ = coord.FullSync(s.daemon.Context(), acct)
		}()
	case "window":
		if err := coord.ValidateWindow(req.Since, req.Until); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_window", err.Error())
			return
		}
		go func() {
			_ = coord.WindowSync(s.daemon.Context(), acct, req.Since, req.Until)
		}()
	default:
		writeError(w, http.StatusBadRequest, "invalid_mode", "Mode must be incremental, full, or window")
		return
	}

	s.logger.Info("sync triggered via API", "email", acct.Email, "mode", req.Mode)
	writeJSON(w, http.StatusAccepted, map[string]string{
		"status":  "accepted",
		"message": "Sync started for " + acct.Email,
	})
}

// overrideRequest is the body of a delete-override change.
type overrideRequest struct {
	Mode string `json:"mode"` // "auto" or "force-batch"
}

// handleDeleteOverride switches the backend's remote-delete processing mode.
func (s *Server) handleDeleteOverride(w http.ResponseWriter, r *http.Request) {
	acct, ok := s.connectedAccount(w, r)
	if !ok {
		return
	}

	var req overrideRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "Request body must be JSON")
		return
	}

	mode := backend.OverrideMode(req.Mode)
	if mode != backend.OverrideAuto && mode != backend.OverrideForceBatch {
		writeError(w, http.StatusBadRequest, "invalid_mode", "Mode must be auto or force-batch")
		return
	}

	if err := s.daemon.Metrics().SetOverrideMode(r.Context(), acct.Email, mode); err != nil {
		s.logger.Error("failed to set delete override", "email", acct.Email, "error", err)
		writeError(w, http.StatusBadGateway, "backend_error", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"mode":   req.Mode,
	})
}
