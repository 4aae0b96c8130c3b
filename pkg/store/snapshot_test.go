package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weightlossprojectionlab/familyaccess/pkg/family"
)

func TestSnapshot_ChangesOrderOwnerLast(t *testing.T) {
	snap := NewSnapshot(
		&family.Account{ID: "acc", OwnerMemberID: "a"},
		[]*family.FamilyMember{
			{ID: "a", AccountID: "acc", Role: family.RoleOwner},
			{ID: "b", AccountID: "acc", Role: family.RoleCoAdmin},
		},
		nil,
	)

	a, _ := snap.Member("a")
	b, _ := snap.Member("b")
	b.Role = family.RoleOwner
	a.Role = family.RoleCoAdmin
	require.NoError(t, snap.SaveMember(b))
	require.NoError(t, snap.SaveMember(a))
	require.NoError(t, snap.SetOwner("b"))
	require.NoError(t, snap.Verify())

	changes := snap.Changes()
	require.Len(t, changes.SavedMembers, 2)
	assert.Equal(t, "a", changes.SavedMembers[0].ID)
	assert.Equal(t, "b", changes.SavedMembers[1].ID)
	assert.Equal(t, "b", changes.Account.OwnerMemberID)
}

func TestSnapshot_Validation(t *testing.T) {
	snap := NewSnapshot(&family.Account{ID: "acc", OwnerMemberID: "a"},
		[]*family.FamilyMember{{ID: "a", AccountID: "acc", Role: family.RoleOwner}}, nil)

	assert.ErrorIs(t, snap.SaveMember(&family.FamilyMember{ID: "x", AccountID: "other", Role: family.RoleViewer}), family.ErrInvalidInput)
	assert.ErrorIs(t, snap.SaveMember(&family.FamilyMember{ID: "x", Role: "boss"}), family.ErrInvalidRole)
	assert.ErrorIs(t, snap.DeleteMember("missing"), family.ErrMemberNotFound)
	assert.ErrorIs(t, snap.SetOwner("missing"), family.ErrMemberNotFound)
	assert.ErrorIs(t, snap.SavePatient(&family.Patient{ID: "p", AccountID: "other"}), family.ErrInvalidInput)
	assert.False(t, snap.Changed())

	require.NoError(t, snap.SaveMember(&family.FamilyMember{ID: "x", Role: family.RoleViewer}))
	assert.True(t, snap.Changed())
	x, ok := snap.Member("x")
	require.True(t, ok)
	assert.Equal(t, "acc", x.AccountID)
}

func TestSnapshot_OwnerMismatch(t *testing.T) {
	snap := NewSnapshot(&family.Account{ID: "acc", OwnerMemberID: "a"},
		[]*family.FamilyMember{
			{ID: "a", AccountID: "acc", Role: family.RoleOwner},
			{ID: "b", AccountID: "acc", Role: family.RoleCoAdmin},
		}, nil)

	require.NoError(t, snap.SetOwner("b"))
	assert.ErrorIs(t, snap.Verify(), family.ErrSingleOwnerViolation)
}

func TestSnapshot_GrantForUnknownPatient(t *testing.T) {
	snap := NewSnapshot(&family.Account{ID: "acc", OwnerMemberID: "a"},
		[]*family.FamilyMember{{ID: "a", AccountID: "acc", Role: family.RoleOwner}},
		[]*family.Patient{{ID: "p1", AccountID: "acc"}})

	require.NoError(t, snap.SaveMember(&family.FamilyMember{
		ID: "b", Role: family.RoleViewer,
		PatientPermissions: map[string]family.CapabilitySet{"p1": {}, "p9": {}},
	}))
	assert.ErrorIs(t, snap.Verify(), family.ErrUnknownPatient)
}
