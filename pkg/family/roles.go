package family

import (
	"strings"
)

// Role identifies a member's position in an account's authority hierarchy
type Role string

const (
	RoleOwner     Role = "account_owner"
	RoleCoAdmin   Role = "co_admin"
	RoleCaregiver Role = "caregiver"
	RoleViewer    Role = "viewer"
)

// authority is the total order over roles. Hierarchy checks compare these values.
var authority = map[Role]int{
	RoleOwner:     3,
	RoleCoAdmin:   2,
	RoleCaregiver: 1,
	RoleViewer:    0,
}

// Authority returns the role's rank, or -1 for an unknown role so that it
// loses every comparison.
func (r Role) Authority() int {
	if a, ok := authority[r]; ok {
		return a
	}
	return -1
}

// Valid reports whether r is one of the four known roles
func (r Role) Valid() bool {
	_, ok := authority[r]
	return ok
}

// Outranks reports whether r has strictly more authority than other
func (r Role) Outranks(other Role) bool {
	return r.Valid() && r.Authority() > other.Authority()
}

// IsAdmin reports whether the role may manage the family (co_admin or owner)
func (r Role) IsAdmin() bool {
	return r.Authority() >= RoleCoAdmin.Authority()
}

// ParseRole converts a string into a Role
func ParseRole(s string) (Role, error) {
	r := Role(strings.TrimSpace(s))
	if !r.Valid() {
		return "", Errorf(ErrInvalidRole, "invalid role: %q", s)
	}
	return r, nil
}

// RoleDefinition describes a role and the capabilities it grants by default
type RoleDefinition struct {
	Role        Role          `json:"role"`
	Name        string        `json:"name"`
	Description string        `json:"description"`
	Authority   int           `json:"authority"`
	Defaults    CapabilitySet `json:"defaultCapabilities"`
}

var roleTable = []RoleDefinition{
	{
		Role:        RoleOwner,
		Name:        "Account Owner",
		Description: "Full control of the account, its billing and every patient record",
		Defaults: newCapabilitySet(
			CapViewRecords, CapEditRecords,
			CapViewVitals, CapEditVitals,
			CapViewMedications, CapEditMedications,
			CapViewAppointments, CapEditAppointments,
			CapViewDocuments, CapUploadDocuments,
			CapManageFamily, CapViewBilling,
		),
	},
	{
		Role:        RoleCoAdmin,
		Name:        "Co-Admin",
		Description: "Manages family members and all medical data, without billing access",
		Defaults: newCapabilitySet(
			CapViewRecords, CapEditRecords,
			CapViewVitals, CapEditVitals,
			CapViewMedications, CapEditMedications,
			CapViewAppointments, CapEditAppointments,
			CapViewDocuments, CapUploadDocuments,
			CapManageFamily,
		),
	},
	{
		Role:        RoleCaregiver,
		Name:        "Caregiver",
		Description: "Views and updates medical data for the patients in scope",
		Defaults: newCapabilitySet(
			CapViewRecords, CapEditRecords,
			CapViewVitals, CapEditVitals,
			CapViewMedications, CapEditMedications,
			CapViewAppointments, CapEditAppointments,
			CapViewDocuments, CapUploadDocuments,
		),
	},
	{
		Role:        RoleViewer,
		Name:        "Viewer",
		Description: "Read-only access to medical data for the patients in scope",
		Defaults: newCapabilitySet(
			CapViewRecords,
			CapViewVitals,
			CapViewMedications,
			CapViewAppointments,
			CapViewDocuments,
		),
	},
}

// RoleTable returns every role definition ordered by authority, highest first.
// The returned definitions are copies.
func RoleTable() []RoleDefinition {
	defs := make([]RoleDefinition, 0, len(roleTable))
	for _, def := range roleTable {
		def.Authority = def.Role.Authority()
		def.Defaults = def.Defaults.Complete()
		defs = append(defs, def)
	}
	return defs
}

// LookupRole returns the definition for a role
func LookupRole(r Role) (RoleDefinition, bool) {
	for _, def := range roleTable {
		if def.Role == r {
			def.Authority = r.Authority()
			def.Defaults = def.Defaults.Complete()
			return def, true
		}
	}
	return RoleDefinition{}, false
}

// DefaultCapabilities returns a total capability set for the role.
// Unknown roles get every capability set to false.
func DefaultCapabilities(r Role) CapabilitySet {
	if def, ok := LookupRole(r); ok {
		return def.Defaults
	}
	return CapabilitySet{}.Complete()
}
