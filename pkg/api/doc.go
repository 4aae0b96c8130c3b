// Package api exposes family access control over HTTP.
//
// All routes live under /api/v1 and require a bearer credential. Every route
// passes the request boundary in pkg/middleware (authentication, then the per
// caller rate limit). Routes that touch a patient's medical data are mounted
// with Server.ProtectPatientRoute, which adds the patient access check so a
// denied request never reaches the handler:
//
//	srv.ProtectPatientRoute("/patients/{patientId}/vitals", family.CapViewVitals, vitalsHandler).
//		Methods(http.MethodGet)
//
// Errors are returned as {"error": message, "code": code}. A permission
// denial carries the denial reason as its code (not_a_member,
// patient_not_in_scope, capability_denied); a rate limited request carries
// rate_limited.
package api
