package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/weightlossprojectionlab/familyaccess/pkg/family"
)

type accountRecord struct {
	account  *family.Account
	members  map[string]*family.FamilyMember
	patients map[string]*family.Patient
}

// MemoryStore keeps accounts in process memory. It is used for local
// development and in tests. Writers are optimistic: a commit fails with
// family.ErrConflict if the account version moved since the snapshot.
type MemoryStore struct {
	mu       sync.RWMutex
	accounts map[string]*accountRecord
	// patient id -> account id
	patientIndex map[string]string
	now          func() time.Time
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts:     make(map[string]*accountRecord),
		patientIndex: make(map[string]string),
		now:          time.Now,
	}
}

func (s *MemoryStore) CreateAccount(ctx context.Context, account *family.Account, owner *family.FamilyMember) error {
	if account == nil || account.ID == "" {
		return family.Errorf(family.ErrInvalidInput, "account id is required")
	}
	if owner == nil || owner.ID == "" || !owner.IsOwner() {
		return family.Errorf(family.ErrSingleOwnerViolation, "account %s must be created with an owner member", account.ID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.accounts[account.ID]; exists {
		return family.Errorf(family.ErrConflict, "account %s already exists", account.ID)
	}

	acc := account.Clone()
	acc.OwnerMemberID = owner.ID
	if acc.Version == 0 {
		acc.Version = 1
	}
	o := owner.Clone()
	o.AccountID = acc.ID

	s.accounts[acc.ID] = &accountRecord{
		account:  acc,
		members:  map[string]*family.FamilyMember{o.ID: o},
		patients: make(map[string]*family.Patient),
	}
	return nil
}

func (s *MemoryStore) GetAccount(ctx context.Context, accountID string) (*family.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.accounts[accountID]
	if !ok {
		return nil, family.Errorf(family.ErrAccountNotFound, "account %s not found", accountID)
	}
	return rec.account.Clone(), nil
}

func (s *MemoryStore) GetPatient(ctx context.Context, patientID string) (*family.Patient, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	accountID, ok := s.patientIndex[patientID]
	if !ok {
		return nil, family.Errorf(family.ErrPatientNotFound, "patient %s not found", patientID)
	}
	return s.accounts[accountID].patients[patientID].Clone(), nil
}

func (s *MemoryStore) ListPatients(ctx context.Context, accountID string) ([]*family.Patient, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.accounts[accountID]
	if !ok {
		return nil, family.Errorf(family.ErrAccountNotFound, "account %s not found", accountID)
	}
	out := make([]*family.Patient, 0, len(rec.patients))
	for _, p := range rec.patients {
		out = append(out, p.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) ListMembers(ctx context.Context, accountID string) ([]*family.FamilyMember, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.accounts[accountID]
	if !ok {
		return nil, family.Errorf(family.ErrAccountNotFound, "account %s not found", accountID)
	}
	return cloneMembers(rec.members), nil
}

func (s *MemoryStore) GetMember(ctx context.Context, accountID, memberID string) (*family.FamilyMember, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.accounts[accountID]
	if !ok {
		return nil, family.Errorf(family.ErrAccountNotFound, "account %s not found", accountID)
	}
	m, ok := rec.members[memberID]
	if !ok {
		return nil, family.Errorf(family.ErrMemberNotFound, "member %s not found", memberID)
	}
	return m.Clone(), nil
}

func (s *MemoryStore) ListMembershipsByUser(ctx context.Context, userID string) ([]*family.FamilyMember, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*family.FamilyMember
	for _, rec := range s.accounts {
		for _, m := range rec.members {
			if userID != "" && m.UserID == userID {
				out = append(out, m.Clone())
			}
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].AccountID != out[j].AccountID {
			return out[i].AccountID < out[j].AccountID
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *MemoryStore) UpdateAccount(ctx context.Context, accountID string, fn func(tx AccountTx) error) error {
	s.mu.RLock()
	rec, ok := s.accounts[accountID]
	if !ok {
		s.mu.RUnlock()
		return family.Errorf(family.ErrAccountNotFound, "account %s not found", accountID)
	}
	snap := NewSnapshot(rec.account, mapValues(rec.members), patientValues(rec.patients))
	version := rec.account.Version
	s.mu.RUnlock()

	if err := fn(snap); err != nil {
		return err
	}
	if !snap.Changed() {
		return nil
	}
	if err := snap.Verify(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.accounts[accountID]
	if !ok {
		return family.Errorf(family.ErrAccountNotFound, "account %s not found", accountID)
	}
	if current.account.Version != version {
		return family.ErrConflict
	}

	changes := snap.Changes()
	for _, p := range changes.SavedPatients {
		if owner, taken := s.patientIndex[p.ID]; taken && owner != accountID {
			return family.Errorf(family.ErrConflict, "patient id %s is already in use", p.ID)
		}
	}

	for _, id := range changes.DeletedMembers {
		delete(current.members, id)
	}
	for _, m := range changes.SavedMembers {
		current.members[m.ID] = m
	}
	for _, p := range changes.SavedPatients {
		current.patients[p.ID] = p
		s.patientIndex[p.ID] = accountID
	}

	acc := changes.Account
	acc.Version = version + 1
	acc.UpdatedAt = s.now()
	current.account = acc
	return nil
}

func (s *MemoryStore) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (s *MemoryStore) Close() error {
	return nil
}

func cloneMembers(members map[string]*family.FamilyMember) []*family.FamilyMember {
	out := make([]*family.FamilyMember, 0, len(members))
	for _, m := range members {
		out = append(out, m.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func mapValues(members map[string]*family.FamilyMember) []*family.FamilyMember {
	out := make([]*family.FamilyMember, 0, len(members))
	for _, m := range members {
		out = append(out, m)
	}
	return out
}

func patientValues(patients map[string]*family.Patient) []*family.Patient {
	out := make([]*family.Patient, 0, len(patients))
	for _, p := range patients {
		out = append(out, p)
	}
	return out
}
