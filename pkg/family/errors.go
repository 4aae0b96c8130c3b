package family

import (
	"errors"
	"fmt"
)

// ErrorKind groups errors by how a caller should react to them
type ErrorKind string

const (
	KindAuthentication ErrorKind = "authentication"
	KindAuthorization  ErrorKind = "authorization"
	KindValidation     ErrorKind = "validation"
	KindNotFound       ErrorKind = "not_found"
	KindConflict       ErrorKind = "conflict"
)

// Error is a classified failure with a machine-readable code.
// Two Errors match under errors.Is when their codes are equal.
type Error struct {
	Kind    ErrorKind
	Code    string
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// Is matches on Code so that errors built with Errorf still match their sentinel
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

var (
	// Authentication
	ErrUnauthenticated = &Error{Kind: KindAuthentication, Code: "unauthenticated", Message: "unauthenticated"}

	// Authorization
	ErrNotAMember            = &Error{Kind: KindAuthorization, Code: "not_a_member", Message: "caller is not a member of this account"}
	ErrInsufficientAuthority = &Error{Kind: KindAuthorization, Code: "insufficient_authority", Message: "insufficient authority"}
	ErrNotAccountOwner       = &Error{Kind: KindAuthorization, Code: "not_account_owner", Message: "only the account owner may perform this operation"}
	ErrInvitationMismatch    = &Error{Kind: KindAuthorization, Code: "invitation_mismatch", Message: "invitation is addressed to a different user"}

	// Validation
	ErrInvalidInput              = &Error{Kind: KindValidation, Code: "invalid_input", Message: "invalid input"}
	ErrInvalidRole               = &Error{Kind: KindValidation, Code: "invalid_role", Message: "invalid role"}
	ErrInvalidCapability         = &Error{Kind: KindValidation, Code: "invalid_capability", Message: "invalid capability"}
	ErrUnknownPatient            = &Error{Kind: KindValidation, Code: "unknown_patient", Message: "patient does not belong to this account"}
	ErrOwnershipRequiresTransfer = &Error{Kind: KindValidation, Code: "ownership_requires_transfer", Message: "ownership can only change through an ownership transfer"}
	ErrTransferTargetNotAccepted = &Error{Kind: KindValidation, Code: "transfer_target_not_accepted", Message: "ownership can only be transferred to an accepted member"}
	ErrSingleOwnerViolation      = &Error{Kind: KindValidation, Code: "single_owner_violation", Message: "an account must have exactly one owner"}

	// Not found
	ErrAccountNotFound = &Error{Kind: KindNotFound, Code: "account_not_found", Message: "account not found"}
	ErrMemberNotFound  = &Error{Kind: KindNotFound, Code: "member_not_found", Message: "member not found"}
	ErrPatientNotFound = &Error{Kind: KindNotFound, Code: "patient_not_found", Message: "patient not found"}

	// Conflict
	ErrConflict = &Error{Kind: KindConflict, Code: "conflict", Message: "concurrent modification of account, retry the operation"}
)

// Errorf returns an error of the same kind and code as base with a formatted message
func Errorf(base *Error, format string, args ...interface{}) error {
	return &Error{
		Kind:    base.Kind,
		Code:    base.Code,
		Message: fmt.Sprintf(format, args...),
	}
}

// KindOf returns the kind of the first *Error in err's chain, or "" if there is none
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// CodeOf returns the code of the first *Error in err's chain, or "" if there is none
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}
