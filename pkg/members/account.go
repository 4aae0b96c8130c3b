package members

import (
	"context"
	"strings"

	"github.com/weightlossprojectionlab/familyaccess/pkg/audit"
	"github.com/weightlossprojectionlab/familyaccess/pkg/authz"
	"github.com/weightlossprojectionlab/familyaccess/pkg/family"
	"github.com/weightlossprojectionlab/familyaccess/pkg/store"
)

// NewAccount describes an account to create. The caller becomes its owner.
type NewAccount struct {
	Name         string `json:"name"`
	OwnerName    string `json:"ownerName"`
	Relationship string `json:"relationship,omitempty"`
}

// NewPatient describes a patient to register
type NewPatient struct {
	Name         string `json:"name"`
	Relationship string `json:"relationship,omitempty"`
}

// CreateAccount creates an account with the caller as its accepted owner
func (s *Service) CreateAccount(ctx context.Context, p authz.Principal, in NewAccount) (*family.Account, *family.FamilyMember, error) {
	if p.UserID == "" {
		return nil, nil, family.ErrUnauthenticated
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, nil, family.Errorf(family.ErrInvalidInput, "account name is required")
	}
	ownerName := strings.TrimSpace(in.OwnerName)
	if ownerName == "" {
		ownerName = p.Email
	}

	now := s.now()
	account := &family.Account{
		ID:        s.newID(),
		Name:      name,
		CreatedAt: now,
		UpdatedAt: now,
	}
	owner := &family.FamilyMember{
		ID:                 s.newID(),
		AccountID:          account.ID,
		UserID:             p.UserID,
		Name:               ownerName,
		Email:              p.Email,
		Relationship:       in.Relationship,
		Role:               family.RoleOwner,
		PatientsAccess:     family.EveryPatient(),
		Permissions:        family.DefaultCapabilities(family.RoleOwner),
		PatientPermissions: map[string]family.CapabilitySet{},
		RoleAssignedAt:     now,
		Status:             family.StatusAccepted,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	account.OwnerMemberID = owner.ID

	if err := s.store.CreateAccount(ctx, account, owner); err != nil {
		s.metrics.RecordMutation("create_account", family.CodeOf(err))
		return nil, nil, err
	}
	s.metrics.RecordMutation("create_account", "ok")

	s.record(ctx, p, &audit.AuditEvent{
		EventType:     audit.EventTypeAccountCreate,
		AccountID:     account.ID,
		ActorMemberID: owner.ID,
		ResourceType:  audit.ResourceTypeAccount,
		ResourceID:    account.ID,
		Message:       "account created",
	})

	created, err := s.store.GetAccount(ctx, account.ID)
	if err != nil {
		return nil, nil, err
	}
	return created, owner, nil
}

// AddPatient registers a patient and gives every member whose scope covers
// it an explicit access record
func (s *Service) AddPatient(ctx context.Context, p authz.Principal, accountID string, in NewPatient) (*family.Patient, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, family.Errorf(family.ErrInvalidInput, "patient name is required")
	}
	patient := &family.Patient{
		ID:           s.newID(),
		AccountID:    accountID,
		Name:         name,
		Relationship: in.Relationship,
		CreatedAt:    s.now(),
	}

	var actorID string
	err := s.update(ctx, "add_patient", accountID, func(tx store.AccountTx) error {
		actor, err := actorIn(tx, p)
		if err != nil {
			return err
		}
		if err := requireManager(actor); err != nil {
			return err
		}
		actorID = actor.ID

		if err := tx.SavePatient(patient); err != nil {
			return err
		}
		one := []*family.Patient{patient}
		for _, m := range tx.Members() {
			if m.Status == family.StatusRevoked {
				continue
			}
			if created, _ := backfill(m, one); created > 0 {
				if err := tx.SaveMember(m); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.record(ctx, p, &audit.AuditEvent{
		EventType:     audit.EventTypePatientCreate,
		AccountID:     accountID,
		ActorMemberID: actorID,
		ResourceType:  audit.ResourceTypePatient,
		ResourceID:    patient.ID,
		Message:       "patient registered",
	})
	return patient.Clone(), nil
}

// GetFamilyHierarchy lists the account's members in authority order.
// Admins also see pending and revoked members.
func (s *Service) GetFamilyHierarchy(ctx context.Context, p authz.Principal, accountID string) ([]*family.FamilyMember, error) {
	actor, err := s.engine.ResolveActor(ctx, accountID, p)
	if err != nil {
		return nil, err
	}
	if actor.Role().IsAdmin() {
		return family.GetFamilyHierarchy(actor.Members), nil
	}
	active := make([]*family.FamilyMember, 0, len(actor.Members))
	for _, m := range actor.Members {
		if m.IsActive() {
			active = append(active, m)
		}
	}
	return family.GetFamilyHierarchy(active), nil
}

// CanEditMember reports whether the caller may modify memberID
func (s *Service) CanEditMember(ctx context.Context, p authz.Principal, accountID, memberID string) (bool, error) {
	actor, err := s.engine.ResolveActor(ctx, accountID, p)
	if err != nil {
		return false, err
	}
	target, err := s.store.GetMember(ctx, accountID, memberID)
	if err != nil {
		return false, err
	}
	return authz.CanUserEditMember(target, actor.Role()), nil
}

// ListMemberships returns the caller's accepted memberships across every
// account, ordered by account. Pending invitations are not bound to a user
// until accepted, so they never appear here.
func (s *Service) ListMemberships(ctx context.Context, p authz.Principal) ([]*family.FamilyMember, error) {
	if p.UserID == "" {
		return nil, family.ErrUnauthenticated
	}
	all, err := s.store.ListMembershipsByUser(ctx, p.UserID)
	if err != nil {
		return nil, err
	}
	active := make([]*family.FamilyMember, 0, len(all))
	for _, m := range all {
		if m.IsActive() {
			active = append(active, m)
		}
	}
	return active, nil
}

// TransferCandidates lists the members the owner may hand ownership to
func (s *Service) TransferCandidates(ctx context.Context, p authz.Principal, accountID string) ([]*family.FamilyMember, error) {
	actor, err := s.engine.ResolveActor(ctx, accountID, p)
	if err != nil {
		return nil, err
	}
	if !actor.Member.IsOwner() {
		return nil, family.ErrNotAccountOwner
	}
	return authz.EligibleForTransfer(actor.Members, actor.Account.OwnerMemberID), nil
}
