package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weightlossprojectionlab/familyaccess/pkg/audit"
)

func TestNewAuditLogger_RequiresDB(t *testing.T) {
	_, err := NewAuditLogger(nil)
	assert.Error(t, err)
}

func TestAuditLogger_Log(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	logger, err := NewAuditLogger(db)
	require.NoError(t, err)

	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	mock.ExpectExec("INSERT INTO family_audit_events").
		WithArgs("evt-1", ts, audit.EventTypeRoleChange, audit.EventStatusSuccess,
			"u-owner", "owner", "acc-1",
			"member", "care", nil,
			"role changed", nil, []byte(`{"before":{"role":"viewer"},"after":{"role":"caregiver"}}`)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err = logger.Log(context.Background(), &audit.AuditEvent{
		ID:            "evt-1",
		Timestamp:     ts,
		EventType:     audit.EventTypeRoleChange,
		ActorUserID:   "u-owner",
		ActorMemberID: "owner",
		AccountID:     "acc-1",
		ResourceType:  audit.ResourceTypeMember,
		ResourceID:    "care",
		Message:       "role changed",
		Changes: &audit.ChangeDetails{
			Before: map[string]interface{}{"role": "viewer"},
			After:  map[string]interface{}{"role": "caregiver"},
		},
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAuditLogger_ListAccountEvents(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	logger, err := NewAuditLogger(db)
	require.NoError(t, err)

	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{
		"id", "timestamp", "event_type", "status",
		"actor_user_id", "actor_member_id", "account_id",
		"resource_type", "resource_id", "request_id",
		"message", "metadata", "changes",
	}).AddRow("evt-1", ts, "member.remove", "success",
		"u-owner", "owner", "acc-1",
		"member", "care", "req-1",
		"member removed", []byte(`{"reassigned":1}`), nil)

	mock.ExpectQuery("SELECT (.+) FROM family_audit_events WHERE account_id = \\$1").
		WithArgs("acc-1", 100).
		WillReturnRows(rows)

	events, err := logger.ListAccountEvents(context.Background(), "acc-1", 0)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, audit.EventTypeMemberRemove, events[0].EventType)
	assert.Equal(t, audit.ResourceTypeMember, events[0].ResourceType)
	assert.Equal(t, float64(1), events[0].Metadata["reassigned"])
	assert.Nil(t, events[0].Changes)
	assert.NoError(t, mock.ExpectationsWereMet())
}
