package members

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weightlossprojectionlab/familyaccess/pkg/audit"
	"github.com/weightlossprojectionlab/familyaccess/pkg/authz"
	"github.com/weightlossprojectionlab/familyaccess/pkg/family"
)

func TestAssignRole(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	admin := f.join(t, ownerP, adminP, family.RoleCoAdmin, nil, nil)
	care := f.join(t, adminP, careP, family.RoleCaregiver, nil, nil)

	tests := []struct {
		name      string
		actor     string
		target    string
		role      family.Role
		overrides family.CapabilitySet
		wantErr   error
		wantKind  family.ErrorKind
	}{
		{"co_admin cannot grant co_admin", "admin", "care", family.RoleCoAdmin, nil, family.ErrInsufficientAuthority, family.KindAuthorization},
		{"co_admin cannot edit itself", "admin", "admin", family.RoleViewer, nil, family.ErrInsufficientAuthority, family.KindAuthorization},
		{"co_admin cannot edit the owner", "admin", "owner", family.RoleViewer, nil, family.ErrOwnershipRequiresTransfer, family.KindValidation},
		{"caregiver cannot assign", "care", "care", family.RoleViewer, nil, family.ErrInsufficientAuthority, family.KindAuthorization},
		{"owner role needs transfer", "owner", "care", family.RoleOwner, nil, family.ErrOwnershipRequiresTransfer, family.KindValidation},
		{"unknown role", "owner", "care", family.Role("superuser"), nil, family.ErrInvalidRole, family.KindValidation},
		{"unknown member", "owner", "missing", family.RoleViewer, nil, family.ErrMemberNotFound, family.KindNotFound},
		{"cannot grant what you lack", "admin", "care", family.RoleViewer, family.CapabilitySet{family.CapViewBilling: true}, family.ErrInsufficientAuthority, family.KindAuthorization},
		{"bad override", "owner", "care", family.RoleViewer, family.CapabilitySet{"teleport": true}, family.ErrInvalidCapability, family.KindValidation},
	}

	ids := map[string]string{"owner": f.owner.ID, "admin": admin.ID, "care": care.ID, "missing": "missing"}
	callers := map[string]authz.Principal{"owner": ownerP, "admin": adminP, "care": careP}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := f.member(t, care.ID)
			_, err := f.svc.AssignRole(ctx, callers[tt.actor], f.account.ID, ids[tt.target], tt.role, tt.overrides)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, tt.wantKind, family.KindOf(err))
			assert.Equal(t, before, f.member(t, care.ID))
		})
	}

	t.Run("co_admin demotes a caregiver", func(t *testing.T) {
		updated, err := f.svc.AssignRole(ctx, adminP, f.account.ID, care.ID, family.RoleViewer, nil)
		require.NoError(t, err)
		assert.Equal(t, family.RoleViewer, updated.Role)
		assert.Equal(t, admin.ID, updated.ManagedBy)
		assert.False(t, f.decide(t, careP, f.p1.ID, family.CapEditVitals).Allowed)
	})

	t.Run("overrides apply on top of the new defaults", func(t *testing.T) {
		updated, err := f.svc.AssignRole(ctx, ownerP, f.account.ID, care.ID, family.RoleViewer,
			family.CapabilitySet{family.CapEditVitals: true})
		require.NoError(t, err)
		assert.True(t, updated.Permissions[family.CapEditVitals])
		assert.False(t, updated.Permissions[family.CapEditMedications])
		assert.True(t, f.decide(t, careP, f.p2.ID, family.CapEditVitals).Allowed)
	})
}

func TestTransferOwnership(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	admin := f.join(t, ownerP, adminP, family.RoleCoAdmin, nil, nil)
	care := f.join(t, ownerP, careP, family.RoleCaregiver, family.PatientScope{f.p1.ID}, nil)
	pending, err := f.svc.InviteMember(ctx, ownerP, f.account.ID, Invitation{
		Name: "Victor", Email: viewP.Email, Role: family.RoleViewer,
	})
	require.NoError(t, err)

	t.Run("rejections leave one owner", func(t *testing.T) {
		_, err := f.svc.TransferOwnership(ctx, adminP, f.account.ID, care.ID)
		assert.ErrorIs(t, err, family.ErrNotAccountOwner)

		_, err = f.svc.TransferOwnership(ctx, ownerP, f.account.ID, pending.ID)
		assert.ErrorIs(t, err, family.ErrTransferTargetNotAccepted)

		_, err = f.svc.TransferOwnership(ctx, ownerP, f.account.ID, f.owner.ID)
		assert.ErrorIs(t, err, family.ErrInvalidInput)

		_, err = f.svc.TransferOwnership(ctx, ownerP, f.account.ID, "missing")
		assert.ErrorIs(t, err, family.ErrMemberNotFound)

		assert.Equal(t, 1, f.owners(t))
	})

	t.Run("transfer to a caregiver", func(t *testing.T) {
		result, err := f.svc.TransferOwnership(ctx, ownerP, f.account.ID, care.ID)
		require.NoError(t, err)

		assert.Equal(t, family.RoleCoAdmin, result.PreviousOwner.Role)
		assert.Equal(t, care.ID, result.PreviousOwner.ManagedBy)
		assert.Equal(t, family.RoleOwner, result.NewOwner.Role)
		assert.Equal(t, "", result.NewOwner.ManagedBy)
		assert.True(t, result.NewOwner.PatientsAccess.CoversAll())
		assert.Len(t, result.NewOwner.PatientPermissions, 2)

		account, err := f.store.GetAccount(ctx, f.account.ID)
		require.NoError(t, err)
		assert.Equal(t, care.ID, account.OwnerMemberID)
		assert.Equal(t, 1, f.owners(t))

		assert.True(t, f.decide(t, careP, f.p2.ID, family.CapViewBilling).Allowed)
		assert.False(t, f.decide(t, ownerP, f.p2.ID, family.CapViewBilling).Allowed)
		assert.True(t, f.decide(t, ownerP, f.p2.ID, family.CapEditVitals).Allowed)
		assert.Len(t, f.audit.EventsOfType(audit.EventTypeOwnershipTransfer), 1)
	})

	t.Run("previous owner is now a co_admin", func(t *testing.T) {
		_, err := f.svc.TransferOwnership(ctx, ownerP, f.account.ID, admin.ID)
		assert.ErrorIs(t, err, family.ErrNotAccountOwner)

		_, err = f.svc.AssignRole(ctx, careP, f.account.ID, f.owner.ID, family.RoleViewer, nil)
		require.NoError(t, err)
		assert.Equal(t, 1, f.owners(t))
	})
}

func TestTransferCandidates(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	admin := f.join(t, ownerP, adminP, family.RoleCoAdmin, nil, nil)
	care := f.join(t, ownerP, careP, family.RoleCaregiver, nil, nil)
	_, err := f.svc.InviteMember(ctx, ownerP, f.account.ID, Invitation{
		Name: "Victor", Email: viewP.Email, Role: family.RoleViewer,
	})
	require.NoError(t, err)

	candidates, err := f.svc.TransferCandidates(ctx, ownerP, f.account.ID)
	require.NoError(t, err)
	require.Len(t, candidates, 2)
	assert.Equal(t, admin.ID, candidates[0].ID)
	assert.Equal(t, care.ID, candidates[1].ID)

	_, err = f.svc.TransferCandidates(ctx, adminP, f.account.ID)
	assert.ErrorIs(t, err, family.ErrNotAccountOwner)
}
