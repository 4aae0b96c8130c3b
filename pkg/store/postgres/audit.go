package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/weightlossprojectionlab/familyaccess/pkg/audit"
)

// AuditLogger writes audit events to family_audit_events
type AuditLogger struct {
	db *sql.DB
}

// NewAuditLogger creates an audit sink on db. RunMigrations must have
// created the table.
func NewAuditLogger(db *sql.DB) (*AuditLogger, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	return &AuditLogger{db: db}, nil
}

// Log inserts the event
func (l *AuditLogger) Log(ctx context.Context, event *audit.AuditEvent) error {
	audit.Prepare(ctx, event)

	var metadataJSON, changesJSON []byte
	var err error
	if event.Metadata != nil {
		metadataJSON, err = json.Marshal(event.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal metadata: %w", err)
		}
	}
	if event.Changes != nil {
		changesJSON, err = json.Marshal(event.Changes)
		if err != nil {
			return fmt.Errorf("failed to marshal changes: %w", err)
		}
	}

	_, err = l.db.ExecContext(ctx, `
		INSERT INTO family_audit_events (
			id, timestamp, event_type, status,
			actor_user_id, actor_member_id, account_id,
			resource_type, resource_id, request_id,
			message, metadata, changes
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`,
		event.ID, event.Timestamp, event.EventType, event.Status,
		nullString(event.ActorUserID), nullString(event.ActorMemberID), nullString(event.AccountID),
		nullString(string(event.ResourceType)), nullString(event.ResourceID), nullString(event.RequestID),
		event.Message, nullJSON(metadataJSON), nullJSON(changesJSON),
	)
	if err != nil {
		return fmt.Errorf("failed to insert audit event: %w", err)
	}
	return nil
}

// Close is a no-op; the *sql.DB is owned by the Store
func (l *AuditLogger) Close() error { return nil }

// ListAccountEvents returns the most recent events of an account, newest first
func (l *AuditLogger) ListAccountEvents(ctx context.Context, accountID string, limit int) ([]*audit.AuditEvent, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := l.db.QueryContext(ctx, `
		SELECT id, timestamp, event_type, status,
			COALESCE(actor_user_id, ''), COALESCE(actor_member_id, ''), COALESCE(account_id, ''),
			COALESCE(resource_type, ''), COALESCE(resource_id, ''), COALESCE(request_id, ''),
			COALESCE(message, ''), metadata, changes
		FROM family_audit_events
		WHERE account_id = $1
		ORDER BY timestamp DESC
		LIMIT $2
	`, accountID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit events: %w", err)
	}
	defer rows.Close()

	var events []*audit.AuditEvent
	for rows.Next() {
		var (
			e                       audit.AuditEvent
			resourceType            string
			metadataRaw, changesRaw []byte
		)
		if err := rows.Scan(&e.ID, &e.Timestamp, &e.EventType, &e.Status,
			&e.ActorUserID, &e.ActorMemberID, &e.AccountID,
			&resourceType, &e.ResourceID, &e.RequestID,
			&e.Message, &metadataRaw, &changesRaw); err != nil {
			return nil, fmt.Errorf("failed to scan audit event: %w", err)
		}
		e.ResourceType = audit.ResourceType(resourceType)
		if len(metadataRaw) > 0 {
			if err := json.Unmarshal(metadataRaw, &e.Metadata); err != nil {
				return nil, fmt.Errorf("failed to decode audit metadata: %w", err)
			}
		}
		if len(changesRaw) > 0 {
			e.Changes = &audit.ChangeDetails{}
			if err := json.Unmarshal(changesRaw, e.Changes); err != nil {
				return nil, fmt.Errorf("failed to decode audit changes: %w", err)
			}
		}
		events = append(events, &e)
	}
	return events, rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullJSON(b []byte) interface{} {
	if len(b) == 0 {
		return nil
	}
	return b
}
