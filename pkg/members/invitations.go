package members

import (
	"context"
	"strings"

	"github.com/weightlossprojectionlab/familyaccess/pkg/audit"
	"github.com/weightlossprojectionlab/familyaccess/pkg/authz"
	"github.com/weightlossprojectionlab/familyaccess/pkg/family"
	"github.com/weightlossprojectionlab/familyaccess/pkg/store"
)

// Invitation describes a member to invite into an account
type Invitation struct {
	Name           string               `json:"name"`
	Email          string               `json:"email"`
	Relationship   string               `json:"relationship,omitempty"`
	Role           family.Role          `json:"role"`
	PatientsAccess family.PatientScope  `json:"patientsAccess"`
	Permissions    family.CapabilitySet `json:"permissions,omitempty"`
}

// InviteMember creates a pending member. The invitee can act only after
// AcceptInvitation.
func (s *Service) InviteMember(ctx context.Context, p authz.Principal, accountID string, in Invitation) (*family.FamilyMember, error) {
	name := strings.TrimSpace(in.Name)
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if name == "" || email == "" {
		return nil, family.Errorf(family.ErrInvalidInput, "name and email are required")
	}
	role, err := family.ParseRole(string(in.Role))
	if err != nil {
		return nil, err
	}
	if role == family.RoleOwner {
		return nil, family.Errorf(family.ErrOwnershipRequiresTransfer, "members cannot be invited as %s", role)
	}
	if err := in.Permissions.Validate(); err != nil {
		return nil, err
	}
	scope := in.PatientsAccess.Normalize()

	var invited *family.FamilyMember
	var actorID string
	err = s.update(ctx, "invite_member", accountID, func(tx store.AccountTx) error {
		actor, err := actorIn(tx, p)
		if err != nil {
			return err
		}
		if err := requireManager(actor); err != nil {
			return err
		}
		if !authz.CanAssignRole(actor.Role, role) {
			return family.Errorf(family.ErrInsufficientAuthority, "%s may not grant role %s", actor.Role, role)
		}
		if err := validatePatients(tx, scope); err != nil {
			return err
		}
		if err := checkScopeGrantable(actor, scope); err != nil {
			return err
		}
		if err := checkGrantable(actor, in.Permissions, ""); err != nil {
			return err
		}
		for _, m := range tx.Members() {
			if m.Status != family.StatusRevoked && strings.EqualFold(m.Email, email) {
				return family.Errorf(family.ErrInvalidInput, "%s is already a member of this account", email)
			}
		}

		now := s.now()
		m := &family.FamilyMember{
			ID:                 s.newID(),
			AccountID:          accountID,
			Name:               name,
			Email:              email,
			Relationship:       in.Relationship,
			ManagedBy:          actor.ID,
			PatientsAccess:     scope,
			PatientPermissions: map[string]family.CapabilitySet{},
			Status:             family.StatusPending,
			CreatedAt:          now,
			UpdatedAt:          now,
		}
		applyRole(m, role, in.Permissions, now)
		backfill(m, tx.Patients())
		if err := tx.SaveMember(m); err != nil {
			return err
		}
		invited = m
		actorID = actor.ID
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.record(ctx, p, &audit.AuditEvent{
		EventType:     audit.EventTypeMemberInvite,
		AccountID:     accountID,
		ActorMemberID: actorID,
		ResourceType:  audit.ResourceTypeMember,
		ResourceID:    invited.ID,
		Message:       "member invited",
		Changes:       &audit.ChangeDetails{After: summary(invited)},
	})
	return invited, nil
}

// AcceptInvitation binds the caller to a pending member. The caller's email
// must match the invitation.
func (s *Service) AcceptInvitation(ctx context.Context, p authz.Principal, accountID, memberID string) (*family.FamilyMember, error) {
	if p.UserID == "" {
		return nil, family.ErrUnauthenticated
	}

	var accepted *family.FamilyMember
	err := s.update(ctx, "accept_invitation", accountID, func(tx store.AccountTx) error {
		m, err := memberOf(tx, memberID)
		if err != nil {
			return err
		}
		if m.Status != family.StatusPending {
			return family.Errorf(family.ErrInvalidInput, "member %s has no pending invitation", memberID)
		}
		if !strings.EqualFold(m.Email, strings.TrimSpace(p.Email)) {
			return family.ErrInvitationMismatch
		}
		if existing := family.FindMemberByUser(tx.Members(), p.UserID); existing != nil {
			return family.Errorf(family.ErrInvalidInput, "user is already a member of this account")
		}

		m.UserID = p.UserID
		m.Status = family.StatusAccepted
		m.UpdatedAt = s.now()
		if err := tx.SaveMember(m); err != nil {
			return err
		}
		accepted = m
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.record(ctx, p, &audit.AuditEvent{
		EventType:     audit.EventTypeMemberAccept,
		AccountID:     accountID,
		ActorMemberID: accepted.ID,
		ResourceType:  audit.ResourceTypeMember,
		ResourceID:    accepted.ID,
		Message:       "invitation accepted",
	})
	return accepted, nil
}
