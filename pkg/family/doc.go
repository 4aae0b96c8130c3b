// Package family defines the data model of family accounts: the role table,
// capabilities, members, patients and the grant resolution that turns a
// member's layered permissions into an effective capability set.
//
// Roles are totally ordered by authority:
//
//	account_owner (3) > co_admin (2) > caregiver (1) > viewer (0)
//
// Every hierarchy decision is an integer comparison over Role.Authority.
//
// Grant resolution for a (member, patient) pair applies three layers:
//
//	DefaultCapabilities(role) -> member.Permissions -> member.PatientPermissions[patient]
//
// A key missing from a layer inherits from the layer below it.
//
// Errors returned across the module are *Error values classified by
// ErrorKind so that transports can map them to distinct responses.
package family
