// Package store persists family accounts, their members and patients.
//
// Reads return copies and take no locks visible to callers. Every mutation
// goes through UpdateAccount, which hands the callback a consistent snapshot
// of the account and commits the callback's changes atomically.
package store

import (
	"context"

	"github.com/weightlossprojectionlab/familyaccess/pkg/family"
)

// Reader is the read side of the store used on authorization paths
type Reader interface {
	GetAccount(ctx context.Context, accountID string) (*family.Account, error)
	GetPatient(ctx context.Context, patientID string) (*family.Patient, error)
	ListPatients(ctx context.Context, accountID string) ([]*family.Patient, error)
	ListMembers(ctx context.Context, accountID string) ([]*family.FamilyMember, error)
	GetMember(ctx context.Context, accountID, memberID string) (*family.FamilyMember, error)
	ListMembershipsByUser(ctx context.Context, userID string) ([]*family.FamilyMember, error)
}

// Store is the full persistence contract
type Store interface {
	Reader

	// CreateAccount inserts a new account together with its owner member
	CreateAccount(ctx context.Context, account *family.Account, owner *family.FamilyMember) error

	// UpdateAccount runs fn against a snapshot of the account and commits
	// everything fn changed in one transaction. If fn returns an error
	// nothing is written. If another writer committed to the same account
	// after the snapshot was taken, family.ErrConflict is returned and
	// nothing is written.
	UpdateAccount(ctx context.Context, accountID string, fn func(tx AccountTx) error) error

	Ping(ctx context.Context) error
	Close() error
}

// AccountTx is the view of one account inside UpdateAccount.
// Values returned by its getters are copies owned by the caller.
type AccountTx interface {
	Account() *family.Account
	Members() []*family.FamilyMember
	Member(memberID string) (*family.FamilyMember, bool)
	Patients() []*family.Patient
	Patient(patientID string) (*family.Patient, bool)

	// SaveMember inserts or replaces a member, including its patient grants
	SaveMember(m *family.FamilyMember) error
	// DeleteMember removes a member and every grant it holds
	DeleteMember(memberID string) error
	// SavePatient inserts or replaces a patient of this account
	SavePatient(p *family.Patient) error
	// SetOwner records memberID as the account owner
	SetOwner(memberID string) error
}
