package family

import (
	"time"
)

// MemberStatus is the invitation state of a member
type MemberStatus string

const (
	StatusPending  MemberStatus = "pending"
	StatusAccepted MemberStatus = "accepted"
	StatusRevoked  MemberStatus = "revoked"
)

// Valid reports whether s is a known status
func (s MemberStatus) Valid() bool {
	switch s {
	case StatusPending, StatusAccepted, StatusRevoked:
		return true
	}
	return false
}

// Account is the billing and ownership unit. Version increments on every
// committed mutation and drives optimistic concurrency.
type Account struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	OwnerMemberID string    `json:"ownerMemberId"`
	Version       int64     `json:"version"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// Patient is a tracked individual owned by exactly one account
type Patient struct {
	ID           string    `json:"id"`
	AccountID    string    `json:"accountId"`
	Name         string    `json:"name"`
	Relationship string    `json:"relationship,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

// PatientScope lists the patients a member may act on.
// An empty scope covers every patient in the account.
type PatientScope []string

// EveryPatient returns the scope covering all patients of the account
func EveryPatient() PatientScope {
	return PatientScope{}
}

// CoversAll reports whether the scope is the all-patients scope
func (s PatientScope) CoversAll() bool {
	return len(s) == 0
}

// Covers reports whether patientID is within the scope
func (s PatientScope) Covers(patientID string) bool {
	if s.CoversAll() {
		return true
	}
	for _, id := range s {
		if id == patientID {
			return true
		}
	}
	return false
}

// Normalize removes duplicates and empty ids, keeping first occurrence order
func (s PatientScope) Normalize() PatientScope {
	out := make(PatientScope, 0, len(s))
	seen := make(map[string]bool, len(s))
	for _, id := range s {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

// FamilyMember is a person's identity and grants within one account
type FamilyMember struct {
	ID           string `json:"id"`
	AccountID    string `json:"accountId"`
	UserID       string `json:"userId,omitempty"`
	Name         string `json:"name"`
	Email        string `json:"email,omitempty"`
	Relationship string `json:"relationship,omitempty"`

	Role      Role   `json:"role"`
	ManagedBy string `json:"managedBy,omitempty"`

	PatientsAccess     PatientScope             `json:"patientsAccess"`
	Permissions        CapabilitySet            `json:"permissions"`
	PatientPermissions map[string]CapabilitySet `json:"patientPermissions,omitempty"`

	RoleAssignedAt time.Time    `json:"roleAssignedAt"`
	Status         MemberStatus `json:"status"`
	CreatedAt      time.Time    `json:"createdAt"`
	UpdatedAt      time.Time    `json:"updatedAt"`
}

// IsActive reports whether the member has accepted their invitation
func (m *FamilyMember) IsActive() bool {
	return m != nil && m.Status == StatusAccepted
}

// IsOwner reports whether the member holds the account_owner role
func (m *FamilyMember) IsOwner() bool {
	return m != nil && m.Role == RoleOwner
}

// Clone returns a deep copy of the member
func (m *FamilyMember) Clone() *FamilyMember {
	if m == nil {
		return nil
	}
	c := *m
	if m.PatientsAccess != nil {
		c.PatientsAccess = append(PatientScope{}, m.PatientsAccess...)
	}
	c.Permissions = m.Permissions.Clone()
	if m.PatientPermissions != nil {
		c.PatientPermissions = make(map[string]CapabilitySet, len(m.PatientPermissions))
		for pid, set := range m.PatientPermissions {
			c.PatientPermissions[pid] = set.Clone()
		}
	}
	return &c
}

// Clone returns a copy of the account
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	c := *a
	return &c
}

// Clone returns a copy of the patient
func (p *Patient) Clone() *Patient {
	if p == nil {
		return nil
	}
	c := *p
	return &c
}
