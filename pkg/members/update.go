package members

import (
	"context"
	"time"

	"github.com/weightlossprojectionlab/familyaccess/pkg/audit"
	"github.com/weightlossprojectionlab/familyaccess/pkg/authz"
	"github.com/weightlossprojectionlab/familyaccess/pkg/family"
	"github.com/weightlossprojectionlab/familyaccess/pkg/store"
)

// MemberUpdate is a partial edit of a member. Nil fields are left alone.
// A nil entry in PatientPermissions drops that patient's override.
type MemberUpdate struct {
	Role               *family.Role                    `json:"role,omitempty"`
	PatientsAccess     *family.PatientScope            `json:"patientsAccess,omitempty"`
	Permissions        family.CapabilitySet            `json:"permissions,omitempty"`
	PatientPermissions map[string]family.CapabilitySet `json:"patientPermissions,omitempty"`
}

func (u MemberUpdate) empty() bool {
	return u.Role == nil && u.PatientsAccess == nil && u.Permissions == nil && u.PatientPermissions == nil
}

// normalize validates u and returns a copy with the role parsed
func (u MemberUpdate) normalize() (MemberUpdate, error) {
	if u.empty() {
		return u, family.Errorf(family.ErrInvalidInput, "update contains no changes")
	}
	if u.Role != nil {
		role, err := family.ParseRole(string(*u.Role))
		if err != nil {
			return u, err
		}
		if role == family.RoleOwner {
			return u, family.Errorf(family.ErrOwnershipRequiresTransfer, "use an ownership transfer to assign %s", role)
		}
		u.Role = &role
	}
	if err := u.Permissions.Validate(); err != nil {
		return u, err
	}
	for _, set := range u.PatientPermissions {
		if err := set.Validate(); err != nil {
			return u, err
		}
	}
	return u, nil
}

// UpdateMember applies a partial edit. Editing another member follows the
// same authority rules as AssignRole. A member editing their own record may
// only lower their own role.
func (s *Service) UpdateMember(ctx context.Context, p authz.Principal, accountID, memberID string, u MemberUpdate) (*family.FamilyMember, error) {
	u, err := u.normalize()
	if err != nil {
		return nil, err
	}

	var before map[string]interface{}
	var updated *family.FamilyMember
	var actorID string
	err = s.update(ctx, "update_member", accountID, func(tx store.AccountTx) error {
		actor, err := actorIn(tx, p)
		if err != nil {
			return err
		}
		target, err := memberOf(tx, memberID)
		if err != nil {
			return err
		}
		before = summary(target)
		now := s.now()

		if actor.ID == target.ID {
			if err := demoteSelf(target, u, now); err != nil {
				return err
			}
		} else {
			if err := s.editOther(tx, actor, target, u, now); err != nil {
				return err
			}
		}

		target.UpdatedAt = now
		if err := tx.SaveMember(target); err != nil {
			return err
		}
		updated = target
		actorID = actor.ID
		return nil
	})
	if err != nil {
		return nil, err
	}

	eventType := audit.EventTypeMemberUpdate
	if u.Role != nil {
		eventType = audit.EventTypeRoleChange
	}
	s.record(ctx, p, &audit.AuditEvent{
		EventType:     eventType,
		AccountID:     accountID,
		ActorMemberID: actorID,
		ResourceType:  audit.ResourceTypeMember,
		ResourceID:    memberID,
		Message:       "member updated",
		Changes:       &audit.ChangeDetails{Before: before, After: summary(updated)},
	})
	return updated, nil
}

func demoteSelf(m *family.FamilyMember, u MemberUpdate, now time.Time) error {
	if m.IsOwner() {
		return family.Errorf(family.ErrOwnershipRequiresTransfer,
			"the account owner can only step down through an ownership transfer")
	}
	if u.Role == nil || u.PatientsAccess != nil || u.Permissions != nil || u.PatientPermissions != nil {
		return family.Errorf(family.ErrInsufficientAuthority, "members may only lower their own role")
	}
	role := *u.Role
	if !m.Role.Outranks(role) {
		return family.Errorf(family.ErrInsufficientAuthority, "members may only lower their own role")
	}
	applyRole(m, role, nil, now)
	return nil
}

func (s *Service) editOther(tx store.AccountTx, actor, target *family.FamilyMember, u MemberUpdate, now time.Time) error {
	if err := requireManager(actor); err != nil {
		return err
	}
	if err := requireEditable(actor, target); err != nil {
		return err
	}
	if u.Role != nil && !authz.CanAssignRole(actor.Role, *u.Role) {
		return family.Errorf(family.ErrInsufficientAuthority, "%s may not grant role %s", actor.Role, *u.Role)
	}
	if u.PatientsAccess != nil {
		if err := validatePatients(tx, *u.PatientsAccess); err != nil {
			return err
		}
		if err := checkScopeGrantable(actor, u.PatientsAccess.Normalize()); err != nil {
			return err
		}
	}
	if err := validatePatients(tx, patientKeys(u.PatientPermissions)); err != nil {
		return err
	}
	if err := checkGrantable(actor, u.Permissions, ""); err != nil {
		return err
	}
	for pid, set := range u.PatientPermissions {
		if err := checkGrantable(actor, set, pid); err != nil {
			return err
		}
	}

	if u.Role != nil {
		applyRole(target, *u.Role, u.Permissions, now)
	} else if u.Permissions != nil {
		applyPermissions(target, u.Permissions)
	}
	if target.PatientPermissions == nil {
		target.PatientPermissions = map[string]family.CapabilitySet{}
	}
	for pid, set := range u.PatientPermissions {
		if set == nil {
			delete(target.PatientPermissions, pid)
			continue
		}
		target.PatientPermissions[pid] = set.Clone()
	}
	if u.PatientsAccess != nil {
		target.PatientsAccess = u.PatientsAccess.Normalize()
	}
	backfill(target, tx.Patients())
	target.ManagedBy = actor.ID
	return nil
}

// RemoveMember deletes a member together with every grant it holds.
// Members it managed are handed to the caller.
func (s *Service) RemoveMember(ctx context.Context, p authz.Principal, accountID, memberID string) error {
	var before map[string]interface{}
	var actorID string
	var reassigned int
	err := s.update(ctx, "remove_member", accountID, func(tx store.AccountTx) error {
		actor, err := actorIn(tx, p)
		if err != nil {
			return err
		}
		target, err := memberOf(tx, memberID)
		if err != nil {
			return err
		}
		if actor.ID == target.ID {
			return family.Errorf(family.ErrInsufficientAuthority, "members cannot remove themselves")
		}
		if err := requireManager(actor); err != nil {
			return err
		}
		if err := requireEditable(actor, target); err != nil {
			return err
		}

		before = summary(target)
		if err := tx.DeleteMember(target.ID); err != nil {
			return err
		}
		reassigned = 0
		for _, m := range tx.Members() {
			if m.ManagedBy != target.ID {
				continue
			}
			m.ManagedBy = actor.ID
			m.UpdatedAt = s.now()
			if err := tx.SaveMember(m); err != nil {
				return err
			}
			reassigned++
		}
		actorID = actor.ID
		return nil
	})
	if err != nil {
		return err
	}

	s.record(ctx, p, &audit.AuditEvent{
		EventType:     audit.EventTypeMemberRemove,
		AccountID:     accountID,
		ActorMemberID: actorID,
		ResourceType:  audit.ResourceTypeMember,
		ResourceID:    memberID,
		Message:       "member removed",
		Metadata:      map[string]interface{}{"reassigned": reassigned},
		Changes:       &audit.ChangeDetails{Before: before},
	})
	return nil
}
