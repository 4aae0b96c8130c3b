package family

// ResolveMemberLevel returns the member's capabilities before any
// patient-specific override: role defaults overlaid with member permissions.
// The result is total over AllCapabilities.
func ResolveMemberLevel(m *FamilyMember) CapabilitySet {
	if m == nil {
		return CapabilitySet{}.Complete()
	}
	return DefaultCapabilities(m.Role).Overlay(m.Permissions)
}

// Resolve returns the effective capabilities of m for patientID. Layers are
// applied least to most specific: role defaults, member permissions, then
// patientPermissions[patientID]. A missing key inherits from the layer below.
// Scope is not considered here; see PatientScope.Covers.
func Resolve(m *FamilyMember, patientID string) CapabilitySet {
	resolved := ResolveMemberLevel(m)
	if m == nil {
		return resolved
	}
	if override, ok := m.PatientPermissions[patientID]; ok {
		resolved = resolved.Overlay(override)
	}
	return resolved
}

// Has reports whether m holds capability c for patientID
func Has(m *FamilyMember, patientID string, c Capability) bool {
	return Resolve(m, patientID).Allows(c)
}

// RebasePatientPermissions reduces every patient override of m to the
// entries that differ from previous, the member-level set the overrides were
// written against. Entries are kept even when they become empty, so the
// per-patient record survives. Used when a role change replaces the
// member-level set.
func RebasePatientPermissions(m *FamilyMember, previous CapabilitySet) {
	for pid, override := range m.PatientPermissions {
		rebased := CapabilitySet{}
		for c, v := range override {
			if previous[c] != v {
				rebased[c] = v
			}
		}
		m.PatientPermissions[pid] = rebased
	}
}
