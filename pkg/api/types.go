package api

import (
	"github.com/weightlossprojectionlab/familyaccess/pkg/audit"
	"github.com/weightlossprojectionlab/familyaccess/pkg/family"
)

// CreateAccountResponse is returned by POST /accounts
type CreateAccountResponse struct {
	Account *family.Account      `json:"account"`
	Owner   *family.FamilyMember `json:"owner"`
}

// AssignRoleRequest is the body of PUT .../members/{memberId}/role
type AssignRoleRequest struct {
	Role        family.Role          `json:"role"`
	Permissions family.CapabilitySet `json:"permissions,omitempty"`
}

// TransferOwnershipRequest is the body of POST .../ownership/transfer
type TransferOwnershipRequest struct {
	NewOwnerMemberID string `json:"newOwnerMemberId"`
}

// MembersResponse lists members in authority order
type MembersResponse struct {
	Members []*family.FamilyMember `json:"members"`
}

// MembershipsResponse lists the caller's memberships across accounts
type MembershipsResponse struct {
	Memberships []*family.FamilyMember `json:"memberships"`
}

// TransferCandidatesResponse lists members eligible to become owner
type TransferCandidatesResponse struct {
	Candidates []*family.FamilyMember `json:"candidates"`
}

// CanEditResponse answers whether the caller may modify a member
type CanEditResponse struct {
	MemberID string `json:"memberId"`
	CanEdit  bool   `json:"canEdit"`
}

// AuditEventsResponse lists an account's audit trail, newest first
type AuditEventsResponse struct {
	Events []*audit.AuditEvent `json:"events"`
}
