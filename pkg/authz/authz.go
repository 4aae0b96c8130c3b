// Package authz decides whether a caller may act on a patient or on another
// family member.
//
// Decisions are pure functions of the membership snapshot passed in; the
// Engine only loads that snapshot from a store. A denial is a Decision value
// with a Reason, never an error. Errors are reserved for failures to load the
// data a decision needs.
package authz

import (
	"github.com/weightlossprojectionlab/familyaccess/pkg/family"
)

// Reason explains a denied Decision
type Reason string

const (
	ReasonNone              Reason = ""
	ReasonUnauthenticated   Reason = "unauthenticated"
	ReasonNotAMember        Reason = "not_a_member"
	ReasonPatientNotInScope Reason = "patient_not_in_scope"
	ReasonCapabilityDenied  Reason = "capability_denied"
)

// Principal is the authenticated caller
type Principal struct {
	UserID string
	Email  string
}

// Decision is the outcome of a patient access check
type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  Reason `json:"reason,omitempty"`

	UserID         string            `json:"userId,omitempty"`
	OwnerAccountID string            `json:"ownerAccountId,omitempty"`
	MemberID       string            `json:"memberId,omitempty"`
	Role           family.Role       `json:"role,omitempty"`
	PatientID      string            `json:"patientId"`
	Capability     family.Capability `json:"capability"`
}

// Request carries everything Evaluate needs. Members are the members of the
// account owning Patient.
type Request struct {
	UserID     string
	Patient    *family.Patient
	Members    []*family.FamilyMember
	Capability family.Capability
}

// Evaluate decides a patient access request. Checks run in a fixed order so a
// caller learns nothing about later stages from an earlier denial.
func Evaluate(req Request) Decision {
	d := Decision{UserID: req.UserID, Capability: req.Capability}
	if req.Patient != nil {
		d.PatientID = req.Patient.ID
	}

	if req.UserID == "" {
		return deny(d, ReasonUnauthenticated)
	}
	if !req.Capability.Valid() {
		return deny(d, ReasonCapabilityDenied)
	}

	// An unknown patient has no owning account, so nobody is a member of it
	if req.Patient == nil {
		return deny(d, ReasonNotAMember)
	}
	member := family.FindMemberByUser(req.Members, req.UserID)
	if member == nil || member.AccountID != req.Patient.AccountID {
		return deny(d, ReasonNotAMember)
	}
	d.MemberID = member.ID
	d.Role = member.Role
	d.OwnerAccountID = req.Patient.AccountID

	if !member.PatientsAccess.Covers(req.Patient.ID) {
		return deny(d, ReasonPatientNotInScope)
	}
	if !family.Has(member, req.Patient.ID, req.Capability) {
		return deny(d, ReasonCapabilityDenied)
	}

	d.Allowed = true
	return d
}

func deny(d Decision, reason Reason) Decision {
	d.Allowed = false
	d.Reason = reason
	return d
}

// CanUserEditMember reports whether a caller holding actorRole may modify
// target. The owner is never editable and authority must be strictly higher.
func CanUserEditMember(target *family.FamilyMember, actorRole family.Role) bool {
	if target == nil || target.IsOwner() {
		return false
	}
	return actorRole.Outranks(target.Role)
}

// CanAssignRole reports whether actorRole may hand out newRole. Ownership
// moves only through a transfer.
func CanAssignRole(actorRole family.Role, newRole family.Role) bool {
	if !actorRole.Valid() || !newRole.Valid() || newRole == family.RoleOwner {
		return false
	}
	return newRole.Authority() <= actorRole.Authority()-1
}

// EligibleForTransfer returns the members that may receive ownership, in
// hierarchy order: accepted, linked to a user, and not the current owner.
func EligibleForTransfer(members []*family.FamilyMember, ownerMemberID string) []*family.FamilyMember {
	var eligible []*family.FamilyMember
	for _, m := range members {
		if !m.IsActive() || m.IsOwner() || m.ID == ownerMemberID || m.UserID == "" {
			continue
		}
		eligible = append(eligible, m)
	}
	return family.GetFamilyHierarchy(eligible)
}

// ResolveMember returns the caller's accepted membership within members.
func ResolveMember(members []*family.FamilyMember, p Principal) (*family.FamilyMember, error) {
	if p.UserID == "" {
		return nil, family.ErrUnauthenticated
	}
	m := family.FindMemberByUser(members, p.UserID)
	if m == nil {
		return nil, family.ErrNotAMember
	}
	return m, nil
}
