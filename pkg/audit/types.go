package audit

import (
	"time"
)

// EventType represents the category of audit event
type EventType string

const (
	// Account events
	EventTypeAccountCreate EventType = "account.create"
	EventTypePatientCreate EventType = "account.patient_create"

	// Membership events
	EventTypeMemberInvite EventType = "member.invite"
	EventTypeMemberAccept EventType = "member.accept"
	EventTypeMemberUpdate EventType = "member.update"
	EventTypeMemberRemove EventType = "member.remove"

	// Authorization events
	EventTypeRoleChange        EventType = "authz.role_change"
	EventTypeOwnershipTransfer EventType = "authz.ownership_transfer"
	EventTypeAccessDenied      EventType = "authz.access_denied"

	// Data migration events
	EventTypePatientAccessMigration EventType = "migration.patient_access"
)

// EventStatus represents the outcome of an event
type EventStatus string

const (
	EventStatusSuccess EventStatus = "success"
	EventStatusFailure EventStatus = "failure"
	EventStatusDenied  EventStatus = "denied"
)

// ResourceType represents the type of resource being accessed
type ResourceType string

const (
	ResourceTypeAccount ResourceType = "account"
	ResourceTypeMember  ResourceType = "member"
	ResourceTypePatient ResourceType = "patient"
)

// AuditEvent represents a single audit log entry
type AuditEvent struct {
	ID        string      `json:"id"`
	Timestamp time.Time   `json:"timestamp"`
	EventType EventType   `json:"event_type"`
	Status    EventStatus `json:"status"`

	// Actor information
	ActorUserID   string `json:"actor_user_id,omitempty"`
	ActorMemberID string `json:"actor_member_id,omitempty"`
	AccountID     string `json:"account_id,omitempty"`

	// Resource information
	ResourceType ResourceType `json:"resource_type,omitempty"`
	ResourceID   string       `json:"resource_id,omitempty"`

	RequestID string `json:"request_id,omitempty"`

	Message  string                 `json:"message,omitempty"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`

	// Changes tracking (before/after for updates)
	Changes *ChangeDetails `json:"changes,omitempty"`
}

// ChangeDetails tracks before/after values for updates
type ChangeDetails struct {
	Before map[string]interface{} `json:"before,omitempty"`
	After  map[string]interface{} `json:"after,omitempty"`
}
