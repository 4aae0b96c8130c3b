package api

import (
	"net/http"

	"github.com/weightlossprojectionlab/familyaccess/pkg/contextkeys"
	"github.com/weightlossprojectionlab/familyaccess/pkg/family"
	"github.com/weightlossprojectionlab/familyaccess/pkg/httputil"
)

// checkAccess reports the decision for the caller on a patient and
// capability. A denial is a 200 with allowed=false and the reason.
func (s *Server) checkAccess(w http.ResponseWriter, r *http.Request) {
	patientID, ok := httputil.ParsePathStringOrError(w, r, PatientVar)
	if !ok {
		return
	}
	raw, ok := httputil.ParsePathStringOrError(w, r, "capability")
	if !ok {
		return
	}
	capability, err := family.ParseCapability(raw)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	d, err := s.engine.AssertPatientAccess(r.Context(), contextkeys.GetUserID(r.Context()), patientID, capability)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, d)
}
