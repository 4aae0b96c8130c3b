package audit

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weightlossprojectionlab/familyaccess/pkg/contextkeys"
)

func TestPrepare(t *testing.T) {
	ctx := contextkeys.WithRequestID(context.Background(), "req-42")
	event := &AuditEvent{EventType: EventTypeMemberRemove}
	Prepare(ctx, event)

	assert.NotEmpty(t, event.ID)
	assert.False(t, event.Timestamp.IsZero())
	assert.Equal(t, "req-42", event.RequestID)
	assert.Equal(t, EventStatusSuccess, event.Status)

	id := event.ID
	Prepare(ctx, event)
	assert.Equal(t, id, event.ID, "prepare must not overwrite an id")
}

func TestLogrusLogger(t *testing.T) {
	buf := &bytes.Buffer{}
	base := logrus.New()
	base.SetOutput(buf)
	base.SetFormatter(&logrus.JSONFormatter{})

	logger := NewLogrusLogger(base)
	err := logger.Log(context.Background(), &AuditEvent{
		EventType:    EventTypeRoleChange,
		AccountID:    "acc-1",
		ActorUserID:  "u-owner",
		ResourceType: ResourceTypeMember,
		ResourceID:   "care",
		Message:      "role changed",
		Changes: &ChangeDetails{
			Before: map[string]interface{}{"role": "viewer"},
			After:  map[string]interface{}{"role": "caregiver"},
		},
	})
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, `"audit":true`)
	assert.Contains(t, out, `"event_type":"authz.role_change"`)
	assert.Contains(t, out, `"resource":"member/care"`)
	assert.Contains(t, out, `"msg":"role changed"`)
	assert.NoError(t, logger.Close())
}

func TestMemoryLogger(t *testing.T) {
	logger := NewMemoryLogger()
	ctx := context.Background()

	require.NoError(t, logger.Log(ctx, &AuditEvent{EventType: EventTypeMemberInvite}))
	require.NoError(t, logger.Log(ctx, &AuditEvent{EventType: EventTypeMemberRemove}))
	require.NoError(t, logger.Log(ctx, &AuditEvent{EventType: EventTypeMemberInvite}))

	assert.Len(t, logger.Events(), 3)
	assert.Len(t, logger.EventsOfType(EventTypeMemberInvite), 2)
	assert.Empty(t, logger.EventsOfType(EventTypeOwnershipTransfer))
}

func TestMemoryLogger_ListAccountEvents(t *testing.T) {
	logger := NewMemoryLogger()
	ctx := context.Background()

	for _, e := range []*AuditEvent{
		{EventType: EventTypeAccountCreate, AccountID: "acc-1"},
		{EventType: EventTypeAccountCreate, AccountID: "acc-2"},
		{EventType: EventTypeMemberInvite, AccountID: "acc-1"},
		{EventType: EventTypeRoleChange, AccountID: "acc-1"},
	} {
		require.NoError(t, logger.Log(ctx, e))
	}

	events, err := logger.ListAccountEvents(ctx, "acc-1", 2)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, EventTypeRoleChange, events[0].EventType)
	assert.Equal(t, EventTypeMemberInvite, events[1].EventType)

	events, err = logger.ListAccountEvents(ctx, "acc-1", 0)
	require.NoError(t, err)
	assert.Len(t, events, 3)
}

type failingLogger struct{ err error }

func (f failingLogger) Log(ctx context.Context, event *AuditEvent) error { return f.err }
func (f failingLogger) Close() error                                     { return f.err }

func TestMultiLogger(t *testing.T) {
	first, second := NewMemoryLogger(), NewMemoryLogger()
	boom := errors.New("sink down")
	multi := NewMultiLogger(first, failingLogger{err: boom}, second)

	err := multi.Log(context.Background(), &AuditEvent{EventType: EventTypeAccountCreate})
	assert.ErrorIs(t, err, boom)

	require.Len(t, first.Events(), 1)
	require.Len(t, second.Events(), 1)
	assert.Equal(t, first.Events()[0].ID, second.Events()[0].ID)

	assert.ErrorIs(t, multi.Close(), boom)
	assert.NoError(t, NewMultiLogger(first, NoOpLogger{}).Close())
}
