package members

import (
	"time"

	"github.com/weightlossprojectionlab/familyaccess/pkg/family"
	"github.com/weightlossprojectionlab/familyaccess/pkg/store"
)

// applyRole moves m to role. The member-level set is reset to the role
// defaults with overrides on top, and patient overrides are rebased so they
// keep only what differed from the old member-level set.
func applyRole(m *family.FamilyMember, role family.Role, overrides family.CapabilitySet, now time.Time) {
	previous := family.ResolveMemberLevel(m)
	m.Role = role
	m.Permissions = family.DefaultCapabilities(role).Overlay(overrides)
	m.RoleAssignedAt = now
	family.RebasePatientPermissions(m, previous)
}

// applyPermissions overlays a member-level edit without changing the role
func applyPermissions(m *family.FamilyMember, overrides family.CapabilitySet) {
	previous := family.ResolveMemberLevel(m)
	m.Permissions = previous.Overlay(overrides)
	family.RebasePatientPermissions(m, previous)
}

// backfill gives m an explicit record for every patient in its scope that
// lacks one. New records equal the member-level set, so access never widens.
// Existing records are left untouched.
func backfill(m *family.FamilyMember, patients []*family.Patient) (created, skipped int) {
	if m.PatientPermissions == nil {
		m.PatientPermissions = map[string]family.CapabilitySet{}
	}
	level := family.ResolveMemberLevel(m)
	for _, p := range patients {
		if !m.PatientsAccess.Covers(p.ID) {
			continue
		}
		if _, ok := m.PatientPermissions[p.ID]; ok {
			skipped++
			continue
		}
		m.PatientPermissions[p.ID] = level.Clone()
		created++
	}
	return created, skipped
}

// checkGrantable rejects granting a capability the actor does not hold
// itself, at member level or for patientID when it is set. A patient outside
// the actor's own scope cannot be granted anything.
func checkGrantable(actor *family.FamilyMember, set family.CapabilitySet, patientID string) error {
	held := family.ResolveMemberLevel(actor)
	if patientID != "" {
		if !actor.PatientsAccess.Covers(patientID) {
			return family.Errorf(family.ErrInsufficientAuthority, "cannot grant access to patient %s outside your own scope", patientID)
		}
		held = family.Resolve(actor, patientID)
	}
	for _, c := range family.AllCapabilities() {
		if set[c] && !held.Allows(c) {
			return family.Errorf(family.ErrInsufficientAuthority, "cannot grant %s without holding it", c)
		}
	}
	return nil
}

// checkScopeGrantable rejects a patient scope wider than the actor's own.
// The all-patients scope needs an actor who covers all patients.
func checkScopeGrantable(actor *family.FamilyMember, scope family.PatientScope) error {
	if actor.PatientsAccess.CoversAll() {
		return nil
	}
	if scope.CoversAll() {
		return family.Errorf(family.ErrInsufficientAuthority, "cannot grant access to every patient without holding it")
	}
	for _, id := range scope {
		if !actor.PatientsAccess.Covers(id) {
			return family.Errorf(family.ErrInsufficientAuthority, "cannot grant access to patient %s outside your own scope", id)
		}
	}
	return nil
}

// validatePatients checks that every id belongs to the account
func validatePatients(tx store.AccountTx, ids []string) error {
	for _, id := range ids {
		if _, ok := tx.Patient(id); !ok {
			return family.Errorf(family.ErrUnknownPatient, "patient %s does not belong to this account", id)
		}
	}
	return nil
}

func patientKeys(overrides map[string]family.CapabilitySet) []string {
	keys := make([]string, 0, len(overrides))
	for id := range overrides {
		keys = append(keys, id)
	}
	return keys
}

// summary is the before/after view of a member recorded in audit events
func summary(m *family.FamilyMember) map[string]interface{} {
	return map[string]interface{}{
		"role":           string(m.Role),
		"status":         string(m.Status),
		"managedBy":      m.ManagedBy,
		"patientsAccess": []string(m.PatientsAccess),
		"permissions":    family.ResolveMemberLevel(m).Granted(),
	}
}
