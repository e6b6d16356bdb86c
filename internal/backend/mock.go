package backend

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Mock is a mock backend client for testing. Configure return values and
// error injection directly on the struct; call-tracking fields record what
// the code under test requested.
type Mock struct {
	mu sync.Mutex

	// Canned responses
	Report        *SyncReport
	Messages      map[string][]EmailSummary // email -> messages
	Groups        map[string][]SenderGroup  // email -> groups
	Counts        map[string]int            // email -> cached count
	DeleteResults map[string]*DeletedEmail  // uid -> result

	// Error injection
	SyncError     error
	ListError     error
	GroupsError   error
	CountError    error
	DeleteError   map[string]error // per-UID errors
	MetricsError  error
	OverrideError error

	// Call tracking for assertions
	IncrementalCalls []SyncCall
	FullCalls        []SyncCall
	WindowCalls      []WindowCall
	ListCalls        []ListCall
	GroupsCalls      []string
	CountCalls       []string
	DeleteCalls      []string
	MetricsCalls     []string
	OverrideCalls    []OverrideCall
}

// SyncCall records one incremental or full sync request.
type SyncCall struct {
	Provider  string
	Email     string
	ChunkSize int
}

// WindowCall records one window sync request.
type WindowCall struct {
	SyncCall
	Start time.Time
	End   time.Time
}

// ListCall records one ListRecentMessages request.
type ListCall struct {
	Email string
	Limit int
}

// OverrideCall records one override mode change.
type OverrideCall struct {
	Email string
	Mode  OverrideMode
}

// Compile-time check that Mock implements Client.
var _ Client = (*Mock)(nil)

// NewMock creates a mock backend with empty state.
func NewMock() *Mock {
	return &Mock{
		Messages:      make(map[string][]EmailSummary),
		Groups:        make(map[string][]SenderGroup),
		Counts:        make(map[string]int),
		DeleteResults: make(map[string]*DeletedEmail),
		DeleteError:   make(map[string]error),
	}
}

func (m *Mock) report() *SyncReport {
	if m.Report != nil {
		r := *m.Report
		return &r
	}
	return &SyncReport{}
}

// SyncIncremental records the call and returns the canned report.
func (m *Mock) SyncIncremental(ctx context.Context, provider, email string, chunkSize int) (*SyncReport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.IncrementalCalls = append(m.IncrementalCalls, SyncCall{provider, email, chunkSize})
	if m.SyncError != nil {
		return nil, m.SyncError
	}
	return m.report(), nil
}

// SyncFull records the call and returns the canned report.
func (m *Mock) SyncFull(ctx context.Context, provider, email string, chunkSize int) (*SyncReport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.FullCalls = append(m.FullCalls, SyncCall{provider, email, chunkSize})
	if m.SyncError != nil {
		return nil, m.SyncError
	}
	return m.report(), nil
}

// SyncWindow records the call and returns the canned report.
func (m *Mock) SyncWindow(ctx context.Context, provider, email string, chunkSize int, start, end time.Time) (*SyncReport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.WindowCalls = append(m.WindowCalls, WindowCall{SyncCall{provider, email, chunkSize}, start, end})
	if m.SyncError != nil {
		return nil, m.SyncError
	}
	return m.report(), nil
}

// ListRecentMessages returns the configured messages truncated to limit.
func (m *Mock) ListRecentMessages(ctx context.Context, email string, limit int) ([]EmailSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ListCalls = append(m.ListCalls, ListCall{email, limit})
	if m.ListError != nil {
		return nil, m.ListError
	}
	msgs := m.Messages[email]
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[:limit]
	}
	out := make([]EmailSummary, len(msgs))
	copy(out, msgs)
	return out, nil
}

// ListSenderGroups returns the configured groups.
func (m *Mock) ListSenderGroups(ctx context.Context, email string) ([]SenderGroup, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.GroupsCalls = append(m.GroupsCalls, email)
	if m.GroupsError != nil {
		return nil, m.GroupsError
	}
	out := make([]SenderGroup, len(m.Groups[email]))
	copy(out, m.Groups[email])
	return out, nil
}

// CachedMessageCount returns the configured count.
func (m *Mock) CachedMessageCount(ctx context.Context, email string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CountCalls = append(m.CountCalls, email)
	if m.CountError != nil {
		return 0, m.CountError
	}
	return m.Counts[email], nil
}

// DeleteMessage records the call and returns the per-UID result or error.
func (m *Mock) DeleteMessage(ctx context.Context, provider, email, uid string) (*DeletedEmail, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.DeleteCalls = append(m.DeleteCalls, uid)
	if err := m.DeleteError[uid]; err != nil {
		return nil, err
	}
	if d, ok := m.DeleteResults[uid]; ok {
		return d, nil
	}
	return &DeletedEmail{UID: uid, ArchivedAt: time.Now()}, nil
}

// FetchRemoteDeleteMetrics records the call.
func (m *Mock) FetchRemoteDeleteMetrics(ctx context.Context, email string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.MetricsCalls = append(m.MetricsCalls, email)
	return m.MetricsError
}

// UpdateRemoteDeleteOverride records the call.
func (m *Mock) UpdateRemoteDeleteOverride(ctx context.Context, email string, mode OverrideMode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.OverrideCalls = append(m.OverrideCalls, OverrideCall{email, mode})
	return m.OverrideError
}

// Close is a no-op.
func (m *Mock) Close() error {
	return nil
}

// TotalSyncCalls returns how many sync requests of any kind were made.
func (m *Mock) TotalSyncCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.IncrementalCalls) + len(m.FullCalls) + len(m.WindowCalls)
}

// String aids debugging in test failure messages.
func (m *Mock) String() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return fmt.Sprintf("Mock{incremental:%d full:%d window:%d deletes:%d}",
		len(m.IncrementalCalls), len(m.FullCalls), len(m.WindowCalls), len(m.DeleteCalls))
}
