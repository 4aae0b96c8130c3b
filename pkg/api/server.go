package api

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/weightlossprojectionlab/familyaccess/pkg/audit"
	"github.com/weightlossprojectionlab/familyaccess/pkg/authz"
	"github.com/weightlossprojectionlab/familyaccess/pkg/family"
	"github.com/weightlossprojectionlab/familyaccess/pkg/httputil"
	"github.com/weightlossprojectionlab/familyaccess/pkg/members"
	"github.com/weightlossprojectionlab/familyaccess/pkg/middleware"
	"github.com/weightlossprojectionlab/familyaccess/pkg/observability"
)

// PatientVar is the route variable ProtectPatientRoute reads the patient id from
const PatientVar = "patientId"

// EventLister reads an account's audit trail
type EventLister interface {
	ListAccountEvents(ctx context.Context, accountID string, limit int) ([]*audit.AuditEvent, error)
}

// Deps are the collaborators of a Server
type Deps struct {
	Members  *members.Service
	Engine   *authz.Engine
	Boundary *middleware.Boundary

	// Events enables GET /accounts/{accountId}/audit-events when set
	Events EventLister

	Metrics      *observability.Metrics
	Logger       logrus.FieldLogger
	CORSOrigins  []string
	MaxBodyBytes int64
}

// Server represents our API server
type Server struct {
	router   *mux.Router
	api      *mux.Router
	handler  http.Handler
	members  *members.Service
	engine   *authz.Engine
	boundary *middleware.Boundary
	events   EventLister
	logger   logrus.FieldLogger
}

// NewServer creates a new API server
func NewServer(deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	s := &Server{
		router:   mux.NewRouter(),
		members:  deps.Members,
		engine:   deps.Engine,
		boundary: deps.Boundary,
		events:   deps.Events,
		logger:   logger,
	}
	s.router.Use(observability.HTTPMetricsMiddleware(deps.Metrics))
	s.api = s.router.PathPrefix("/api/v1").Subrouter()
	s.setupRoutes()

	outer := []func(http.Handler) http.Handler{
		httputil.RequestIDMiddleware(logger),
		httputil.RecoveryMiddleware(logger),
	}
	if len(deps.CORSOrigins) > 0 {
		outer = append(outer, httputil.CORSMiddleware(deps.CORSOrigins))
	}
	outer = append(outer, httputil.LoggingMiddleware(logger), httputil.ContentTypeMiddleware)
	if deps.MaxBodyBytes > 0 {
		outer = append(outer, httputil.MaxBytesMiddleware(deps.MaxBodyBytes))
	}
	s.handler = httputil.Chain(outer...)(s.router)
	return s
}

// setupRoutes configures all the API routes
func (s *Server) setupRoutes() {
	// Accounts and patients
	s.handle("/accounts", s.createAccount, http.MethodPost)
	s.handle("/accounts/{accountId}/patients", s.addPatient, http.MethodPost)
	s.handle("/me/memberships", s.listMemberships, http.MethodGet)

	// Hierarchy queries
	s.handle("/accounts/{accountId}/members", s.listMembers, http.MethodGet)
	s.handle("/accounts/{accountId}/members/{memberId}/editable", s.canEditMember, http.MethodGet)
	s.handle("/accounts/{accountId}/transfer-candidates", s.transferCandidates, http.MethodGet)

	// Invitations
	s.handle("/accounts/{accountId}/invitations", s.inviteMember, http.MethodPost)
	s.handle("/accounts/{accountId}/invitations/{memberId}/accept", s.acceptInvitation, http.MethodPost)

	// Member mutations
	s.handle("/accounts/{accountId}/members/{memberId}/role", s.assignRole, http.MethodPut)
	s.handle("/accounts/{accountId}/members/{memberId}", s.updateMember, http.MethodPatch)
	s.handle("/accounts/{accountId}/members/{memberId}", s.removeMember, http.MethodDelete)
	s.handle("/accounts/{accountId}/ownership/transfer", s.transferOwnership, http.MethodPost)
	s.handle("/accounts/{accountId}/migrations/patient-access", s.migratePatientRecords, http.MethodPost)

	// Access check for UIs that render denial as state
	s.handle("/patients/{patientId}/access/{capability}", s.checkAccess, http.MethodGet)

	if s.events != nil {
		s.handle("/accounts/{accountId}/audit-events", s.listAuditEvents, http.MethodGet)
	}
}

func (s *Server) handle(path string, h http.HandlerFunc, method string) {
	s.api.Handle(path, s.boundary.Authenticated()(h)).Methods(method)
}

// ProtectPatientRoute mounts handler under /api/v1 behind the full request
// boundary. path must contain the {patientId} variable. The handler runs only
// for an authenticated, non rate limited caller holding capability on the
// patient; middleware.DecisionFromContext returns the allowing decision.
func (s *Server) ProtectPatientRoute(path string, capability family.Capability, handler http.Handler) *mux.Route {
	return s.api.Handle(path, s.boundary.Patient(capability, PatientVar)(handler))
}

// Router exposes the router for registering additional routes
func (s *Server) Router() *mux.Router {
	return s.router
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	if httputil.StatusFor(err) >= http.StatusInternalServerError {
		observability.FromContext(r.Context(), s.logger).WithError(err).
			WithField("path", r.URL.Path).Error("Request failed")
	}
	httputil.WriteError(w, err)
}
