package backend

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// Event names on the push channel.
const (
	eventSyncProgress       = "sync.progress"
	eventRemoteDeleteQueued = "delete.queued"
	eventRemoteDeleteStatus = "delete.status"
	eventRemoteDeleteMetric = "delete.metrics"
)

// queuedEvent is the payload of a delete.queued push.
type queuedEvent struct {
	Email string   `json:"email"`
	UIDs  []string `json:"uids"`
}

// statusEvent is the payload of a delete.status push.
type statusEvent struct {
	Email   string         `json:"email"`
	Updates []DeleteUpdate `json:"updates"`
}

// EventStream subscribes to the backend's push channel (server-sent events)
// and dispatches decoded notifications to an EventHandler. Events for a given
// account arrive in backend emission order on the single stream.
type EventStream struct {
	client  *HTTPClient
	handler EventHandler
	logger  *slog.Logger

	// retry state for reconnects
	minBackoff time.Duration
	maxBackoff time.Duration
}

// NewEventStream creates an event stream over the given HTTP client.
func NewEventStream(client *HTTPClient, handler EventHandler) *EventStream {
	if handler == nil {
		handler = NullHandler{}
	}
	return &EventStream{
		client:     client,
		handler:    handler,
		logger:     slog.Default(),
		minBackoff: time.Second,
		maxBackoff: 30 * time.Second,
	}
}

// WithLogger sets the logger.
func (es *EventStream) WithLogger(logger *slog.Logger) *EventStream {
	es.logger = logger
	return es
}

// Run connects to the push channel and dispatches events until ctx is
// cancelled. Connection drops are retried with exponential backoff.
func (es *EventStream) Run(ctx context.Context) error {
	backoff := es.minBackoff
	for {
		err := es.consume(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			es.logger.Warn("event stream disconnected", "error", err, "retry_in", backoff)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}

		backoff *= 2
		if backoff > es.maxBackoff {
			backoff = es.maxBackoff
		}
		if err == nil {
			backoff = es.minBackoff
		}
	}
}

// consume opens one streaming connection and dispatches until it drops.
func (es *EventStream) consume(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, "GET", es.client.baseURL+"/api/v1/events", nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if es.client.apiKey != "" {
		req.Header.Set("X-API-Key", es.client.apiKey)
	}
	req.Header.Set("Accept", "text/event-stream")

	// The shared client has a request timeout that would kill a long-lived
	// stream; use a dedicated client without one.
	streamClient := &http.Client{}
	resp, err := streamClient.Do(req)
	if err != nil {
		return fmt.Errorf("connect event stream: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		wait := parseRetryAfter(resp, es.minBackoff)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
		return errors.New("event stream throttled")
	}
	if resp.StatusCode != http.StatusOK {
		return handleErrorResponse(resp)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var eventName string
	var data strings.Builder
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "event:"):
			eventName = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			data.WriteString(strings.TrimSpace(strings.TrimPrefix(line, "data:")))
		case line == "":
			if eventName != "" && data.Len() > 0 {
				es.dispatch(eventName, []byte(data.String()))
			}
			eventName = ""
			data.Reset()
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read event stream: %w", err)
	}
	return nil
}

// dispatch decodes one event payload and forwards it to the handler.
// Unknown event names and undecodable payloads are logged and skipped; a
// malformed push must not take the stream down.
func (es *EventStream) dispatch(name string, payload []byte) {
	switch name {
	case eventSyncProgress:
		var ev ProgressEvent
		if err := json.Unmarshal(payload, &ev); err != nil {
			es.logger.Warn("bad progress event", "error", err)
			return
		}
		es.handler.OnSyncProgress(ev)

	case eventRemoteDeleteQueued:
		var ev queuedEvent
		if err := json.Unmarshal(payload, &ev); err != nil {
			es.logger.Warn("bad delete-queued event", "error", err)
			return
		}
		es.handler.OnRemoteDeleteQueued(ev.Email, ev.UIDs)

	case eventRemoteDeleteStatus:
		var ev statusEvent
		if err := json.Unmarshal(payload, &ev); err != nil {
			es.logger.Warn("bad delete-status event", "error", err)
			return
		}
		es.handler.OnRemoteDeleteStatus(ev.Email, ev.Updates)

	case eventRemoteDeleteMetric:
		var snap MetricsSnapshot
		if err := json.Unmarshal(payload, &snap); err != nil {
			es.logger.Warn("bad metrics event", "error", err)
			return
		}
		es.handler.OnRemoteDeleteMetrics(snap)

	default:
		es.logger.Debug("ignoring unknown event", "event", name)
	}
}
