// Package middleware implements the request boundary in front of every
// protected route.
//
// A request passes three gates in order:
//
//  1. Authenticate resolves the bearer credential (401 on failure).
//  2. RateLimit applies a per caller budget keyed "user:<id>" (429, code
//     rate_limited). It knows nothing about permissions.
//  3. PatientAccess asks the authorization engine whether the caller holds a
//     capability on the patient in the route (403 with the denial reason as
//     the code).
//
// Only a request that passes all three reaches the handler, so no storage
// access happens for a rejected request.
//
// Two limiters implement Limiter: RateLimiter is an in-process token bucket
// and DistributedRateLimiter is a Redis fixed window shared across replicas.
//
//	b := &middleware.Boundary{Authenticator: verifier, Limiter: limiter, Checker: engine}
//	router.Handle("/patients/{patientId}/vitals", b.Patient(family.CapViewVitals, "patientId")(h))
package middleware
