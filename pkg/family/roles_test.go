package family

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoleAuthority(t *testing.T) {
	assert.Equal(t, 3, RoleOwner.Authority())
	assert.Equal(t, 2, RoleCoAdmin.Authority())
	assert.Equal(t, 1, RoleCaregiver.Authority())
	assert.Equal(t, 0, RoleViewer.Authority())
	assert.Equal(t, -1, Role("superuser").Authority())

	assert.True(t, RoleOwner.Outranks(RoleCoAdmin))
	assert.False(t, RoleCoAdmin.Outranks(RoleCoAdmin))
	assert.False(t, Role("superuser").Outranks(Role("other")))
	assert.True(t, RoleViewer.Outranks(Role("superuser")))

	assert.True(t, RoleOwner.IsAdmin())
	assert.True(t, RoleCoAdmin.IsAdmin())
	assert.False(t, RoleCaregiver.IsAdmin())
	assert.False(t, RoleViewer.IsAdmin())
}

func TestParseRole(t *testing.T) {
	r, err := ParseRole(" caregiver ")
	require.NoError(t, err)
	assert.Equal(t, RoleCaregiver, r)

	_, err = ParseRole("admin")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidRole)
	assert.Equal(t, KindValidation, KindOf(err))
}

func TestRoleTable(t *testing.T) {
	table := RoleTable()
	require.Len(t, table, 4)

	for i := 1; i < len(table); i++ {
		assert.Greater(t, table[i-1].Authority, table[i].Authority, "role table must be ordered by authority")
	}

	// Mutating a returned definition must not leak into the table
	table[0].Defaults[CapViewBilling] = false
	assert.True(t, DefaultCapabilities(RoleOwner)[CapViewBilling])
}

func TestDefaultCapabilities(t *testing.T) {
	expected := map[Role]map[Capability]bool{
		RoleOwner: {
			CapViewRecords: true, CapEditRecords: true, CapViewVitals: true, CapEditVitals: true,
			CapViewMedications: true, CapEditMedications: true, CapViewAppointments: true, CapEditAppointments: true,
			CapViewDocuments: true, CapUploadDocuments: true, CapManageFamily: true, CapViewBilling: true,
		},
		RoleCoAdmin: {
			CapViewRecords: true, CapEditRecords: true, CapViewVitals: true, CapEditVitals: true,
			CapViewMedications: true, CapEditMedications: true, CapViewAppointments: true, CapEditAppointments: true,
			CapViewDocuments: true, CapUploadDocuments: true, CapManageFamily: true, CapViewBilling: false,
		},
		RoleCaregiver: {
			CapViewRecords: true, CapEditRecords: true, CapViewVitals: true, CapEditVitals: true,
			CapViewMedications: true, CapEditMedications: true, CapViewAppointments: true, CapEditAppointments: true,
			CapViewDocuments: true, CapUploadDocuments: true, CapManageFamily: false, CapViewBilling: false,
		},
		RoleViewer: {
			CapViewRecords: true, CapEditRecords: false, CapViewVitals: true, CapEditVitals: false,
			CapViewMedications: true, CapEditMedications: false, CapViewAppointments: true, CapEditAppointments: false,
			CapViewDocuments: true, CapUploadDocuments: false, CapManageFamily: false, CapViewBilling: false,
		},
	}

	for role, caps := range expected {
		t.Run(string(role), func(t *testing.T) {
			defaults := DefaultCapabilities(role)
			require.Len(t, defaults, len(AllCapabilities()))
			for _, c := range AllCapabilities() {
				assert.Equal(t, caps[c], defaults[c], "capability %s", c)
			}
		})
	}

	t.Run("unknown role grants nothing", func(t *testing.T) {
		defaults := DefaultCapabilities(Role("ghost"))
		require.Len(t, defaults, len(AllCapabilities()))
		assert.Empty(t, defaults.Granted())
	})
}
