package middleware

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/weightlossprojectionlab/familyaccess/pkg/audit"
	"github.com/weightlossprojectionlab/familyaccess/pkg/authz"
	"github.com/weightlossprojectionlab/familyaccess/pkg/contextkeys"
	"github.com/weightlossprojectionlab/familyaccess/pkg/family"
	"github.com/weightlossprojectionlab/familyaccess/pkg/httputil"
	"github.com/weightlossprojectionlab/familyaccess/pkg/observability"
)

// AccessChecker decides patient access. *authz.Engine implements it.
type AccessChecker interface {
	AssertPatientAccess(ctx context.Context, userID, patientID string, capability family.Capability) (authz.Decision, error)
}

var denialMessages = map[authz.Reason]string{
	authz.ReasonNotAMember:        "you are not a member of this patient's family account",
	authz.ReasonPatientNotInScope: "this patient is not in your access scope",
	authz.ReasonCapabilityDenied:  "you do not have permission to do this",
}

// PatientAccess checks capability on the patient named by the patientVar
// route variable before next runs. Denials are 403 with the denial reason as
// the error code; an unauthenticated caller is 401.
func PatientAccess(checker AccessChecker, capability family.Capability, patientVar string, auditLogger audit.Logger, logger logrus.FieldLogger) func(http.Handler) http.Handler {
	if auditLogger == nil {
		auditLogger = audit.NoOpLogger{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			patientID := mux.Vars(r)[patientVar]
			if patientID == "" {
				httputil.WriteBadRequest(w, "missing path parameter: "+patientVar)
				return
			}

			d, err := checker.AssertPatientAccess(ctx, contextkeys.GetUserID(ctx), patientID, capability)
			if err != nil {
				observability.FromContext(ctx, logger).WithError(err).WithField("patient_id", patientID).
					Error("Patient access check failed")
				httputil.WriteInternalError(w)
				return
			}

			if !d.Allowed {
				recordDenial(ctx, auditLogger, logger, d)
				if d.Reason == authz.ReasonUnauthenticated {
					httputil.WriteUnauthorized(w, "authentication required")
					return
				}
				httputil.WriteForbidden(w, string(d.Reason), denialMessage(d.Reason))
				return
			}

			next.ServeHTTP(w, r.WithContext(contextkeys.WithDecision(ctx, d)))
		})
	}
}

func denialMessage(reason authz.Reason) string {
	if msg, ok := denialMessages[reason]; ok {
		return msg
	}
	return "access denied"
}

func recordDenial(ctx context.Context, auditLogger audit.Logger, logger logrus.FieldLogger, d authz.Decision) {
	event := &audit.AuditEvent{
		EventType:     audit.EventTypeAccessDenied,
		Status:        audit.EventStatusDenied,
		ActorUserID:   d.UserID,
		ActorMemberID: d.MemberID,
		AccountID:     d.OwnerAccountID,
		ResourceType:  audit.ResourceTypePatient,
		ResourceID:    d.PatientID,
		Message:       string(d.Reason),
		Metadata: map[string]interface{}{
			"capability": string(d.Capability),
			"reason":     string(d.Reason),
		},
	}
	if err := auditLogger.Log(ctx, event); err != nil {
		observability.FromContext(ctx, logger).WithError(err).Warn("Failed to write audit event")
	}
}
