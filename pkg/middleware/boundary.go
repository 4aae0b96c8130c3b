package middleware

import (
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/weightlossprojectionlab/familyaccess/pkg/audit"
	"github.com/weightlossprojectionlab/familyaccess/pkg/auth"
	"github.com/weightlossprojectionlab/familyaccess/pkg/family"
	"github.com/weightlossprojectionlab/familyaccess/pkg/httputil"
	"github.com/weightlossprojectionlab/familyaccess/pkg/observability"
)

// Boundary assembles the request boundary: authentication, then the per
// caller rate limit, then (for patient routes) the access check.
type Boundary struct {
	Authenticator auth.Authenticator
	// Limiter may be nil to disable rate limiting
	Limiter  Limiter
	FailOpen bool
	Checker  AccessChecker
	Audit    audit.Logger
	Metrics  *observability.Metrics
	Logger   logrus.FieldLogger
}

// Authenticated wraps routes that need a caller but no patient check
func (b *Boundary) Authenticated() func(http.Handler) http.Handler {
	chain := []func(http.Handler) http.Handler{Authenticate(b.Authenticator, b.Logger)}
	if b.Limiter != nil {
		chain = append(chain, RateLimit(b.Limiter, RateLimitOptions{
			FailOpen: b.FailOpen,
			Metrics:  b.Metrics,
			Logger:   b.Logger,
		}))
	}
	return httputil.Chain(chain...)
}

// Patient wraps a route that touches the patient named by patientVar
func (b *Boundary) Patient(capability family.Capability, patientVar string) func(http.Handler) http.Handler {
	return httputil.Chain(
		b.Authenticated(),
		PatientAccess(b.Checker, capability, patientVar, b.Audit, b.Logger),
	)
}
