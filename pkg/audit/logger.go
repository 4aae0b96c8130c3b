package audit

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/weightlossprojectionlab/familyaccess/pkg/contextkeys"
)

// Logger is the interface for audit logging
type Logger interface {
	// Log records an audit event
	Log(ctx context.Context, event *AuditEvent) error

	// Close closes the logger and flushes any buffered events
	Close() error
}

// Prepare fills the id, timestamp and request id of event when unset
func Prepare(ctx context.Context, event *AuditEvent) {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	if event.RequestID == "" {
		event.RequestID = contextkeys.GetRequestID(ctx)
	}
	if event.Status == "" {
		event.Status = EventStatusSuccess
	}
}

// NoOpLogger discards every event
type NoOpLogger struct{}

func (NoOpLogger) Log(ctx context.Context, event *AuditEvent) error { return nil }

func (NoOpLogger) Close() error { return nil }

// LogrusLogger writes events as structured log entries
type LogrusLogger struct {
	logger logrus.FieldLogger
}

// NewLogrusLogger creates an audit logger backed by logger
func NewLogrusLogger(logger logrus.FieldLogger) *LogrusLogger {
	return &LogrusLogger{logger: logger.WithField("audit", true)}
}

// Log writes the event at info level
func (l *LogrusLogger) Log(ctx context.Context, event *AuditEvent) error {
	Prepare(ctx, event)

	fields := logrus.Fields{
		"event_id":   event.ID,
		"event_type": event.EventType,
		"status":     event.Status,
		"account_id": event.AccountID,
		"actor":      event.ActorUserID,
	}
	if event.ResourceID != "" {
		fields["resource"] = string(event.ResourceType) + "/" + event.ResourceID
	}
	if event.RequestID != "" {
		fields["request_id"] = event.RequestID
	}
	if event.Changes != nil {
		fields["before"] = event.Changes.Before
		fields["after"] = event.Changes.After
	}
	for k, v := range event.Metadata {
		fields["meta_"+k] = v
	}

	l.logger.WithFields(fields).Info(event.Message)
	return nil
}

// Close is a no-op
func (l *LogrusLogger) Close() error { return nil }

// MemoryLogger keeps events in memory
type MemoryLogger struct {
	mu     sync.Mutex
	events []*AuditEvent
}

// NewMemoryLogger creates an empty in-memory audit log
func NewMemoryLogger() *MemoryLogger {
	return &MemoryLogger{}
}

// Log appends the event
func (l *MemoryLogger) Log(ctx context.Context, event *AuditEvent) error {
	Prepare(ctx, event)
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, event)
	return nil
}

// Events returns the recorded events, oldest first
func (l *MemoryLogger) Events() []*AuditEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]*AuditEvent, len(l.events))
	copy(out, l.events)
	return out
}

// EventsOfType returns the recorded events of type t
func (l *MemoryLogger) EventsOfType(t EventType) []*AuditEvent {
	var out []*AuditEvent
	for _, e := range l.Events() {
		if e.EventType == t {
			out = append(out, e)
		}
	}
	return out
}

// ListAccountEvents returns up to limit events of an account, newest first.
// A limit outside 1..500 means 100.
func (l *MemoryLogger) ListAccountEvents(ctx context.Context, accountID string, limit int) ([]*AuditEvent, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	events := l.Events()
	var out []*AuditEvent
	for i := len(events) - 1; i >= 0 && len(out) < limit; i-- {
		if events[i].AccountID == accountID {
			out = append(out, events[i])
		}
	}
	return out, nil
}

// Close is a no-op
func (l *MemoryLogger) Close() error { return nil }
