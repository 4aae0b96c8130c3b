package members

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/weightlossprojectionlab/familyaccess/pkg/audit"
	"github.com/weightlossprojectionlab/familyaccess/pkg/authz"
	"github.com/weightlossprojectionlab/familyaccess/pkg/family"
	"github.com/weightlossprojectionlab/familyaccess/pkg/store"
)

// AssignRole moves a member to newRole. The member-level capabilities are
// reset to the role defaults, with overrides applied on top when given.
func (s *Service) AssignRole(ctx context.Context, p authz.Principal, accountID, memberID string, newRole family.Role, overrides family.CapabilitySet) (*family.FamilyMember, error) {
	role, err := family.ParseRole(string(newRole))
	if err != nil {
		return nil, err
	}
	if role == family.RoleOwner {
		return nil, family.Errorf(family.ErrOwnershipRequiresTransfer, "use an ownership transfer to assign %s", role)
	}
	if err := overrides.Validate(); err != nil {
		return nil, err
	}

	var before map[string]interface{}
	var updated *family.FamilyMember
	var actorID string
	err = s.update(ctx, "assign_role", accountID, func(tx store.AccountTx) error {
		actor, err := actorIn(tx, p)
		if err != nil {
			return err
		}
		target, err := memberOf(tx, memberID)
		if err != nil {
			return err
		}
		if err := requireManager(actor); err != nil {
			return err
		}
		if err := requireEditable(actor, target); err != nil {
			return err
		}
		if !authz.CanAssignRole(actor.Role, role) {
			return family.Errorf(family.ErrInsufficientAuthority, "%s may not grant role %s", actor.Role, role)
		}
		if err := checkGrantable(actor, overrides, ""); err != nil {
			return err
		}

		before = summary(target)
		now := s.now()
		applyRole(target, role, overrides, now)
		target.ManagedBy = actor.ID
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

	s.log(ctx).WithFields(logrus.Fields{
		"account_id": accountID,
		"member_id":  memberID,
		"role":       role,
	}).Info("Role assigned")
	s.record(ctx, p, &audit.AuditEvent{
		EventType:     audit.EventTypeRoleChange,
		AccountID:     accountID,
		ActorMemberID: actorID,
		ResourceType:  audit.ResourceTypeMember,
		ResourceID:    memberID,
		Message:       "role assigned",
		Changes:       &audit.ChangeDetails{Before: before, After: summary(updated)},
	})
	return updated, nil
}

// TransferResult holds both sides of an ownership transfer as committed
type TransferResult struct {
	PreviousOwner *family.FamilyMember `json:"previousOwner"`
	NewOwner      *family.FamilyMember `json:"newOwner"`
}

// TransferOwnership hands the account to newOwnerID. Both role changes and
// the account owner pointer are written in one commit, so no reader ever
// sees zero or two owners.
func (s *Service) TransferOwnership(ctx context.Context, p authz.Principal, accountID, newOwnerID string) (*TransferResult, error) {
	var result *TransferResult
	err := s.update(ctx, "transfer_ownership", accountID, func(tx store.AccountTx) error {
		actor, err := actorIn(tx, p)
		if err != nil {
			return err
		}
		if !actor.IsOwner() || tx.Account().OwnerMemberID != actor.ID {
			return family.ErrNotAccountOwner
		}
		if newOwnerID == actor.ID {
			return family.Errorf(family.ErrInvalidInput, "member already owns the account")
		}
		target, err := memberOf(tx, newOwnerID)
		if err != nil {
			return err
		}
		if !target.IsActive() || target.UserID == "" {
			return family.ErrTransferTargetNotAccepted
		}

		now := s.now()
		applyRole(actor, family.RoleCoAdmin, nil, now)
		actor.ManagedBy = target.ID
		actor.UpdatedAt = now

		target.Role = family.RoleOwner
		target.Permissions = family.DefaultCapabilities(family.RoleOwner)
		target.PatientsAccess = family.EveryPatient()
		target.PatientPermissions = map[string]family.CapabilitySet{}
		target.ManagedBy = ""
		target.RoleAssignedAt = now
		target.UpdatedAt = now
		backfill(target, tx.Patients())

		if err := tx.SaveMember(actor); err != nil {
			return err
		}
		if err := tx.SaveMember(target); err != nil {
			return err
		}
		if err := tx.SetOwner(target.ID); err != nil {
			return err
		}
		result = &TransferResult{PreviousOwner: actor, NewOwner: target}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log(ctx).WithFields(logrus.Fields{
		"account_id":     accountID,
		"previous_owner": result.PreviousOwner.ID,
		"new_owner":      result.NewOwner.ID,
	}).Info("Account ownership transferred")
	s.record(ctx, p, &audit.AuditEvent{
		EventType:     audit.EventTypeOwnershipTransfer,
		AccountID:     accountID,
		ActorMemberID: result.PreviousOwner.ID,
		ResourceType:  audit.ResourceTypeAccount,
		ResourceID:    accountID,
		Message:       "ownership transferred",
		Changes: &audit.ChangeDetails{
			Before: map[string]interface{}{"ownerMemberId": result.PreviousOwner.ID},
			After:  map[string]interface{}{"ownerMemberId": result.NewOwner.ID},
		},
	})
	return result, nil
}
