package store

import (
	"fmt"
	"sort"

	"github.com/weightlossprojectionlab/familyaccess/pkg/family"
)

// Snapshot is an in-memory AccountTx shared by the store implementations.
// It records which records changed so a backend can write only those.
type Snapshot struct {
	account  *family.Account
	members  map[string]*family.FamilyMember
	patients map[string]*family.Patient

	savedMembers  map[string]bool
	deletedMember map[string]bool
	savedPatients map[string]bool
	ownerChanged  bool
}

// NewSnapshot copies the given records into a new snapshot
func NewSnapshot(account *family.Account, members []*family.FamilyMember, patients []*family.Patient) *Snapshot {
	s := &Snapshot{
		account:       account.Clone(),
		members:       make(map[string]*family.FamilyMember, len(members)),
		patients:      make(map[string]*family.Patient, len(patients)),
		savedMembers:  make(map[string]bool),
		deletedMember: make(map[string]bool),
		savedPatients: make(map[string]bool),
	}
	for _, m := range members {
		s.members[m.ID] = m.Clone()
	}
	for _, p := range patients {
		s.patients[p.ID] = p.Clone()
	}
	return s
}

func (s *Snapshot) Account() *family.Account {
	return s.account.Clone()
}

func (s *Snapshot) Members() []*family.FamilyMember {
	out := make([]*family.FamilyMember, 0, len(s.members))
	for _, m := range s.members {
		out = append(out, m.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *Snapshot) Member(memberID string) (*family.FamilyMember, bool) {
	m, ok := s.members[memberID]
	return m.Clone(), ok
}

func (s *Snapshot) Patients() []*family.Patient {
	out := make([]*family.Patient, 0, len(s.patients))
	for _, p := range s.patients {
		out = append(out, p.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *Snapshot) Patient(patientID string) (*family.Patient, bool) {
	p, ok := s.patients[patientID]
	return p.Clone(), ok
}

func (s *Snapshot) SaveMember(m *family.FamilyMember) error {
	if m == nil || m.ID == "" {
		return family.Errorf(family.ErrInvalidInput, "member id is required")
	}
	if m.AccountID == "" {
		m.AccountID = s.account.ID
	}
	if m.AccountID != s.account.ID {
		return family.Errorf(family.ErrInvalidInput, "member %s belongs to another account", m.ID)
	}
	if !m.Role.Valid() {
		return family.Errorf(family.ErrInvalidRole, "invalid role: %q", m.Role)
	}
	s.members[m.ID] = m.Clone()
	s.savedMembers[m.ID] = true
	delete(s.deletedMember, m.ID)
	return nil
}

func (s *Snapshot) DeleteMember(memberID string) error {
	if _, ok := s.members[memberID]; !ok {
		return family.Errorf(family.ErrMemberNotFound, "member %s not found", memberID)
	}
	delete(s.members, memberID)
	delete(s.savedMembers, memberID)
	s.deletedMember[memberID] = true
	return nil
}

func (s *Snapshot) SavePatient(p *family.Patient) error {
	if p == nil || p.ID == "" {
		return family.Errorf(family.ErrInvalidInput, "patient id is required")
	}
	if p.AccountID == "" {
		p.AccountID = s.account.ID
	}
	if p.AccountID != s.account.ID {
		return family.Errorf(family.ErrInvalidInput, "patient %s belongs to another account", p.ID)
	}
	s.patients[p.ID] = p.Clone()
	s.savedPatients[p.ID] = true
	return nil
}

func (s *Snapshot) SetOwner(memberID string) error {
	if _, ok := s.members[memberID]; !ok {
		return family.Errorf(family.ErrMemberNotFound, "member %s not found", memberID)
	}
	s.account.OwnerMemberID = memberID
	s.ownerChanged = true
	return nil
}

// Changed reports whether the callback modified anything
func (s *Snapshot) Changed() bool {
	return len(s.savedMembers) > 0 || len(s.deletedMember) > 0 || len(s.savedPatients) > 0 || s.ownerChanged
}

// Verify checks account-wide invariants on the post-change state:
// exactly one owner, recorded as the account's owner member, and patient
// grants only for patients of the account.
func (s *Snapshot) Verify() error {
	var owners []string
	for id, m := range s.members {
		if m.IsOwner() {
			owners = append(owners, id)
		}
	}
	if len(owners) != 1 {
		return family.Errorf(family.ErrSingleOwnerViolation, "account %s would have %d owners", s.account.ID, len(owners))
	}
	if s.account.OwnerMemberID != owners[0] {
		return family.Errorf(family.ErrSingleOwnerViolation, "account %s owner is %s but member %s holds the owner role", s.account.ID, s.account.OwnerMemberID, owners[0])
	}
	for pid := range s.savedPatients {
		if s.patients[pid].AccountID != s.account.ID {
			return fmt.Errorf("patient %s does not belong to account %s", pid, s.account.ID)
		}
	}
	for id := range s.savedMembers {
		for pid := range s.members[id].PatientPermissions {
			if _, ok := s.patients[pid]; !ok {
				return family.Errorf(family.ErrUnknownPatient, "member %s has a grant for unknown patient %s", id, pid)
			}
		}
	}
	return nil
}

// Changes is the write set of a snapshot
type Changes struct {
	Account        *family.Account
	SavedMembers   []*family.FamilyMember
	DeletedMembers []string
	SavedPatients  []*family.Patient
}

// Changes returns the write set. Saved members are ordered so that members
// leaving the owner role are written before the member taking it.
func (s *Snapshot) Changes() Changes {
	c := Changes{Account: s.account.Clone()}
	for id := range s.savedMembers {
		c.SavedMembers = append(c.SavedMembers, s.members[id].Clone())
	}
	sort.Slice(c.SavedMembers, func(i, j int) bool {
		a, b := c.SavedMembers[i], c.SavedMembers[j]
		if a.IsOwner() != b.IsOwner() {
			return !a.IsOwner()
		}
		return a.ID < b.ID
	})
	for id := range s.deletedMember {
		c.DeletedMembers = append(c.DeletedMembers, id)
	}
	sort.Strings(c.DeletedMembers)
	for id := range s.savedPatients {
		c.SavedPatients = append(c.SavedPatients, s.patients[id].Clone())
	}
	sort.Slice(c.SavedPatients, func(i, j int) bool { return c.SavedPatients[i].ID < c.SavedPatients[j].ID })
	return c
}
