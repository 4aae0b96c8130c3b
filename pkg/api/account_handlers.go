package api

import (
	"net/http"

	"github.com/weightlossprojectionlab/familyaccess/pkg/audit"
	"github.com/weightlossprojectionlab/familyaccess/pkg/family"
	"github.com/weightlossprojectionlab/familyaccess/pkg/httputil"
	"github.com/weightlossprojectionlab/familyaccess/pkg/members"
	"github.com/weightlossprojectionlab/familyaccess/pkg/middleware"
)

// createAccount creates an account owned by the caller
func (s *Server) createAccount(w http.ResponseWriter, r *http.Request) {
	var req members.NewAccount
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	account, owner, err := s.members.CreateAccount(r.Context(), middleware.PrincipalFromRequest(r), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	httputil.WriteCreated(w, CreateAccountResponse{Account: account, Owner: owner})
}

func (s *Server) addPatient(w http.ResponseWriter, r *http.Request) {
	accountID, ok := httputil.ParsePathStringOrError(w, r, "accountId")
	if !ok {
		return
	}
	var req members.NewPatient
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	patient, err := s.members.AddPatient(r.Context(), middleware.PrincipalFromRequest(r), accountID, req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	httputil.WriteCreated(w, patient)
}

// listMembers returns the family hierarchy
func (s *Server) listMembers(w http.ResponseWriter, r *http.Request) {
	accountID, ok := httputil.ParsePathStringOrError(w, r, "accountId")
	if !ok {
		return
	}

	list, err := s.members.GetFamilyHierarchy(r.Context(), middleware.PrincipalFromRequest(r), accountID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, MembersResponse{Members: list})
}

// listMemberships returns the accounts the caller belongs to
func (s *Server) listMemberships(w http.ResponseWriter, r *http.Request) {
	list, err := s.members.ListMemberships(r.Context(), middleware.PrincipalFromRequest(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, MembershipsResponse{Memberships: list})
}

func (s *Server) canEditMember(w http.ResponseWriter, r *http.Request) {
	accountID, ok := httputil.ParsePathStringOrError(w, r, "accountId")
	if !ok {
		return
	}
	memberID, ok := httputil.ParsePathStringOrError(w, r, "memberId")
	if !ok {
		return
	}

	canEdit, err := s.members.CanEditMember(r.Context(), middleware.PrincipalFromRequest(r), accountID, memberID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, CanEditResponse{MemberID: memberID, CanEdit: canEdit})
}

func (s *Server) transferCandidates(w http.ResponseWriter, r *http.Request) {
	accountID, ok := httputil.ParsePathStringOrError(w, r, "accountId")
	if !ok {
		return
	}

	list, err := s.members.TransferCandidates(r.Context(), middleware.PrincipalFromRequest(r), accountID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, TransferCandidatesResponse{Candidates: list})
}

// listAuditEvents is limited to account admins
func (s *Server) listAuditEvents(w http.ResponseWriter, r *http.Request) {
	accountID, ok := httputil.ParsePathStringOrError(w, r, "accountId")
	if !ok {
		return
	}
	limit, err := httputil.ParseQueryInt(r, "limit", 100)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	actor, err := s.engine.ResolveActor(r.Context(), accountID, middleware.PrincipalFromRequest(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if !actor.Role().IsAdmin() {
		s.writeError(w, r, family.Errorf(family.ErrInsufficientAuthority, "only account admins may read the audit trail"))
		return
	}

	events, err := s.events.ListAccountEvents(r.Context(), accountID, limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if events == nil {
		events = []*audit.AuditEvent{}
	}
	httputil.WriteSuccess(w, AuditEventsResponse{Events: events})
}
