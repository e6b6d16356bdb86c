// Package backend defines the contract between the client and the mail
// backend process: request/response operations plus asynchronously pushed
// notifications. The client never speaks IMAP/SMTP itself.
package backend

import (
	"context"
	"time"
)

// GroupStatus is the allow/block state of a sender group.
type GroupStatus string

const (
	GroupNeutral GroupStatus = "neutral"
	GroupAllowed GroupStatus = "allowed"
	GroupBlocked GroupStatus = "blocked"
)

// OverrideMode controls the backend's remote-delete processing mode.
type OverrideMode string

const (
	OverrideAuto       OverrideMode = "auto"
	OverrideForceBatch OverrideMode = "force-batch"
)

// SyncReport is the immutable summary of a completed sync.
type SyncReport struct {
	Fetched    int   `json:"fetched"`
	Stored     int   `json:"stored"`
	DurationMs int64 `json:"duration_ms"`
}

// ProgressEvent is pushed by the backend while a full sync is running.
type ProgressEvent struct {
	Email        string `json:"email"`
	Batch        int    `json:"batch"`
	TotalBatches int    `json:"total_batches"`
	Fetched      int    `json:"fetched"`
	Stored       int    `json:"stored"`
	ElapsedMs    int64  `json:"elapsed_ms"`
}

// EmailSummary is a cached message as the backend serves it.
type EmailSummary struct {
	UID                string     `json:"uid"`
	Subject            string     `json:"subject"`
	Date               *time.Time `json:"date,omitempty"`
	Snippet            string     `json:"snippet,omitempty"`
	Status             string     `json:"status"`
	Flags              []string   `json:"flags,omitempty"`
	AnalysisSummary    string     `json:"analysis_summary,omitempty"`
	AnalysisSentiment  string     `json:"analysis_sentiment,omitempty"`
	AnalysisCategories []string   `json:"analysis_categories,omitempty"`
	RemoteError        string     `json:"remote_error,omitempty"`
}

// SenderGroup clusters one account's messages by sender.
// Invariant: MessageCount == len(Messages), and a group with zero messages
// is never returned.
type SenderGroup struct {
	SenderEmail   string         `json:"sender_email"`
	SenderDisplay string         `json:"sender_display"`
	Status        GroupStatus    `json:"status"`
	MessageCount  int            `json:"message_count"`
	Messages      []EmailSummary `json:"messages"`
}

// DeletedEmail is the backend's acknowledgement of a delete request:
// the message is archived locally and queued for remote deletion.
type DeletedEmail struct {
	UID        string    `json:"uid"`
	Subject    string    `json:"subject"`
	ArchivedAt time.Time `json:"archived_at"`
}

// DeleteUpdate reports the terminal outcome of one queued remote delete.
// RemoteError is non-empty when the remote expunge failed; the UID still
// leaves the pending set either way.
type DeleteUpdate struct {
	UID             string     `json:"uid"`
	RemoteDeletedAt *time.Time `json:"remote_deleted_at,omitempty"`
	RemoteError     string     `json:"remote_error,omitempty"`
}

// MetricsHistoryEntry is one append-only sample of delete throughput.
type MetricsHistoryEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Processed int       `json:"processed"`
	Pending   int       `json:"pending"`
	Mode      string    `json:"mode"`
}

// MetricsSnapshot is the backend's current view of the delete queue for one
// account, pushed in response to FetchRemoteDeleteMetrics.
type MetricsSnapshot struct {
	Email          string                `json:"email"`
	Pending        int                   `json:"pending"`
	ProcessedTotal int                   `json:"processed_total"`
	Mode           string                `json:"mode"`
	History        []MetricsHistoryEntry `json:"history,omitempty"`
}

// Client is the request/response half of the backend contract.
// Every call suspends only the calling operation; implementations must be
// safe for concurrent use.
type Client interface {
	// SyncIncremental fetches messages newer than the cached state,
	// bounded by chunkSize per round trip.
	SyncIncremental(ctx context.Context, provider, email string, chunkSize int) (*SyncReport, error)

	// SyncFull re-fetches the mailbox in batches of chunkSize. Progress
	// arrives via pushed ProgressEvents while the call is in flight.
	SyncFull(ctx context.Context, provider, email string, chunkSize int) (*SyncReport, error)

	// SyncWindow syncs the date window [start, end). A zero end means
	// "until now".
	SyncWindow(ctx context.Context, provider, email string, chunkSize int, start, end time.Time) (*SyncReport, error)

	// ListRecentMessages returns up to limit cached messages, newest first.
	ListRecentMessages(ctx context.Context, email string, limit int) ([]EmailSummary, error)

	// ListSenderGroups returns the account's messages grouped by sender.
	ListSenderGroups(ctx context.Context, email string) ([]SenderGroup, error)

	// CachedMessageCount returns how many messages the backend has cached.
	CachedMessageCount(ctx context.Context, email string) (int, error)

	// DeleteMessage archives a message locally and queues the remote
	// delete. Completion arrives later via a RemoteDeleteStatus push.
	DeleteMessage(ctx context.Context, provider, email, uid string) (*DeletedEmail, error)

	// FetchRemoteDeleteMetrics asks for a metrics snapshot. Fire-and-forget:
	// the snapshot arrives via a RemoteDeleteMetrics push.
	FetchRemoteDeleteMetrics(ctx context.Context, email string) error

	// UpdateRemoteDeleteOverride switches the backend's processing mode.
	UpdateRemoteDeleteOverride(ctx context.Context, email string, mode OverrideMode) error

	// Close releases any resources held by the client.
	Close() error
}

// EventHandler receives pushed notifications. Events for a given account are
// delivered in backend emission order; handlers must treat duplicates and
// events for already-resolved state as no-ops.
type EventHandler interface {
	OnSyncProgress(ev ProgressEvent)
	OnRemoteDeleteQueued(email string, uids []string)
	OnRemoteDeleteStatus(email string, updates []DeleteUpdate)
	OnRemoteDeleteMetrics(snap MetricsSnapshot)
}

// NullHandler is a no-op event handler.
type NullHandler struct{}

func (NullHandler) OnSyncProgress(ev ProgressEvent)                           {}
func (NullHandler) OnRemoteDeleteQueued(email string, uids []string)          {}
func (NullHandler) OnRemoteDeleteStatus(email string, updates []DeleteUpdate) {}
func (NullHandler) OnRemoteDeleteMetrics(snap MetricsSnapshot)                {}
