package api

import (
	"net/http"

	"github.com/weightlossprojectionlab/familyaccess/pkg/httputil"
	"github.com/weightlossprojectionlab/familyaccess/pkg/members"
	"github.com/weightlossprojectionlab/familyaccess/pkg/middleware"
	"github.com/weightlossprojectionlab/familyaccess/pkg/observability"
)

// accountAndMember reads both path ids, writing a 400 when either is missing
func accountAndMember(w http.ResponseWriter, r *http.Request) (accountID, memberID string, ok bool) {
	if accountID, ok = httputil.ParsePathStringOrError(w, r, "accountId"); !ok {
		return "", "", false
	}
	if memberID, ok = httputil.ParsePathStringOrError(w, r, "memberId"); !ok {
		return "", "", false
	}
	return accountID, memberID, true
}

func (s *Server) inviteMember(w http.ResponseWriter, r *http.Request) {
	accountID, ok := httputil.ParsePathStringOrError(w, r, "accountId")
	if !ok {
		return
	}
	var req members.Invitation
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	m, err := s.members.InviteMember(r.Context(), middleware.PrincipalFromRequest(r), accountID, req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	httputil.WriteCreated(w, m)
}

func (s *Server) acceptInvitation(w http.ResponseWriter, r *http.Request) {
	accountID, memberID, ok := accountAndMember(w, r)
	if !ok {
		return
	}

	m, err := s.members.AcceptInvitation(r.Context(), middleware.PrincipalFromRequest(r), accountID, memberID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, m)
}

func (s *Server) assignRole(w http.ResponseWriter, r *http.Request) {
	accountID, memberID, ok := accountAndMember(w, r)
	if !ok {
		return
	}
	var req AssignRoleRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	m, err := s.members.AssignRole(r.Context(), middleware.PrincipalFromRequest(r), accountID, memberID, req.Role, req.Permissions)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, m)
}

func (s *Server) updateMember(w http.ResponseWriter, r *http.Request) {
	accountID, memberID, ok := accountAndMember(w, r)
	if !ok {
		return
	}
	var req members.MemberUpdate
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	m, err := s.members.UpdateMember(r.Context(), middleware.PrincipalFromRequest(r), accountID, memberID, req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, m)
}

func (s *Server) removeMember(w http.ResponseWriter, r *http.Request) {
	accountID, memberID, ok := accountAndMember(w, r)
	if !ok {
		return
	}

	if err := s.members.RemoveMember(r.Context(), middleware.PrincipalFromRequest(r), accountID, memberID); err != nil {
		s.writeError(w, r, err)
		return
	}
	httputil.WriteNoContent(w)
}

func (s *Server) transferOwnership(w http.ResponseWriter, r *http.Request) {
	accountID, ok := httputil.ParsePathStringOrError(w, r, "accountId")
	if !ok {
		return
	}
	var req TransferOwnershipRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.NewOwnerMemberID == "" {
		httputil.WriteBadRequest(w, "newOwnerMemberId is required")
		return
	}

	result, err := s.members.TransferOwnership(r.Context(), middleware.PrincipalFromRequest(r), accountID, req.NewOwnerMemberID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, result)
}

// migratePatientRecords runs the patient access backfill. A cancelled run
// still reports what it did before stopping.
func (s *Server) migratePatientRecords(w http.ResponseWriter, r *http.Request) {
	accountID, ok := httputil.ParsePathStringOrError(w, r, "accountId")
	if !ok {
		return
	}

	result, err := s.members.MigratePatientRecords(r.Context(), middleware.PrincipalFromRequest(r), accountID)
	if err != nil {
		if result == nil {
			s.writeError(w, r, err)
			return
		}
		observability.FromContext(r.Context(), s.logger).WithError(err).
			WithField("account_id", accountID).Warn("Patient access migration interrupted")
		httputil.WriteJSON(w, http.StatusServiceUnavailable, result)
		return
	}
	httputil.WriteSuccess(w, result)
}
