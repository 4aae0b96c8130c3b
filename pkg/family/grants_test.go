package family

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolve_Layering(t *testing.T) {
	member := &FamilyMember{
		ID:          "m1",
		Role:        RoleCaregiver,
		Status:      StatusAccepted,
		Permissions: CapabilitySet{CapEditVitals: false},
		PatientPermissions: map[string]CapabilitySet{
			"p": {CapEditVitals: true},
		},
	}

	assert.True(t, Has(member, "p", CapEditVitals))
	assert.False(t, Has(member, "q", CapEditVitals))

	// Untouched capabilities inherit from the role defaults on every layer
	assert.True(t, Has(member, "p", CapViewVitals))
	assert.True(t, Has(member, "q", CapViewVitals))
	assert.False(t, Has(member, "p", CapViewBilling))
}

func TestResolve_IsTotal(t *testing.T) {
	member := &FamilyMember{Role: RoleViewer}
	resolved := Resolve(member, "any")
	require.Len(t, resolved, len(AllCapabilities()))
	for _, c := range AllCapabilities() {
		_, ok := resolved[c]
		assert.True(t, ok, "missing capability %s", c)
	}

	assert.Len(t, Resolve(nil, "any"), len(AllCapabilities()))
	assert.Empty(t, Resolve(nil, "any").Granted())
}

func TestResolve_IgnoresUnknownCapabilities(t *testing.T) {
	member := &FamilyMember{
		Role:        RoleViewer,
		Permissions: CapabilitySet{"rootAccess": true},
	}
	resolved := ResolveMemberLevel(member)
	_, ok := resolved["rootAccess"]
	assert.False(t, ok)
	assert.Len(t, resolved, len(AllCapabilities()))
}

func TestCapabilitySet_Validate(t *testing.T) {
	require.NoError(t, CapabilitySet{CapViewVitals: true}.Validate())
	require.NoError(t, CapabilitySet(nil).Validate())

	err := CapabilitySet{CapViewVitals: true, "teleport": true, "fly": false}.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidCapability)
	assert.Contains(t, err.Error(), "fly, teleport")
}

func TestCapabilitySet_OverlayDoesNotMutate(t *testing.T) {
	base := CapabilitySet{CapViewVitals: true}
	out := base.Overlay(CapabilitySet{CapViewVitals: false, CapEditVitals: true})

	assert.True(t, base[CapViewVitals])
	_, ok := base[CapEditVitals]
	assert.False(t, ok)
	assert.False(t, out[CapViewVitals])
	assert.True(t, out[CapEditVitals])
}

func TestRebasePatientPermissions(t *testing.T) {
	previous := DefaultCapabilities(RoleViewer)
	member := &FamilyMember{
		Role: RoleCaregiver,
		PatientPermissions: map[string]CapabilitySet{
			"backfilled": previous.Clone(),
			"restricted": previous.Overlay(CapabilitySet{CapViewDocuments: false}),
		},
	}

	RebasePatientPermissions(member, previous)

	require.Contains(t, member.PatientPermissions, "backfilled")
	assert.Empty(t, member.PatientPermissions["backfilled"])
	assert.Equal(t, CapabilitySet{CapViewDocuments: false}, member.PatientPermissions["restricted"])

	// The caregiver defaults now flow through to the backfilled patient
	assert.True(t, Has(member, "backfilled", CapEditVitals))
	assert.False(t, Has(member, "restricted", CapViewDocuments))
}

func TestPatientScope(t *testing.T) {
	all := EveryPatient()
	assert.True(t, all.CoversAll())
	assert.True(t, all.Covers("p1"))
	assert.True(t, all.Covers("p2"))

	var nilScope PatientScope
	assert.True(t, nilScope.Covers("p1"))

	only := PatientScope{"p1"}
	assert.False(t, only.CoversAll())
	assert.True(t, only.Covers("p1"))
	assert.False(t, only.Covers("p2"))

	assert.Equal(t, PatientScope{"p1", "p2"}, PatientScope{"p1", "", "p2", "p1"}.Normalize())
}

func TestFamilyMember_Clone(t *testing.T) {
	original := &FamilyMember{
		ID:             "m1",
		PatientsAccess: PatientScope{"p1"},
		Permissions:    CapabilitySet{CapViewVitals: true},
		PatientPermissions: map[string]CapabilitySet{
			"p1": {CapEditVitals: true},
		},
	}

	clone := original.Clone()
	clone.PatientsAccess[0] = "p2"
	clone.Permissions[CapViewVitals] = false
	clone.PatientPermissions["p1"][CapEditVitals] = false

	assert.Equal(t, "p1", original.PatientsAccess[0])
	assert.True(t, original.Permissions[CapViewVitals])
	assert.True(t, original.PatientPermissions["p1"][CapEditVitals])
}
