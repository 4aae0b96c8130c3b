package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/weightlossprojectionlab/familyaccess/pkg/auth"
	"github.com/weightlossprojectionlab/familyaccess/pkg/authz"
	"github.com/weightlossprojectionlab/familyaccess/pkg/contextkeys"
	"github.com/weightlossprojectionlab/familyaccess/pkg/httputil"
	"github.com/weightlossprojectionlab/familyaccess/pkg/observability"
)

// Authenticate resolves the bearer credential of every request. Requests
// without a valid credential are rejected with 401 and never reach next.
func Authenticate(authn auth.Authenticator, logger logrus.FieldLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			log := observability.FromContext(r.Context(), logger)

			token, err := bearerToken(r)
			if err == nil {
				var identity *auth.Identity
				identity, err = authn.Authenticate(r.Context(), token)
				if err == nil {
					ctx := contextkeys.WithIdentity(r.Context(), identity)
					ctx = contextkeys.WithUserID(ctx, identity.UserID)
					ctx = contextkeys.WithLogger(ctx, log.WithField("user_id", identity.UserID))
					next.ServeHTTP(w, r.WithContext(ctx))
					return
				}
			}

			log.WithError(err).WithField("path", r.URL.Path).Info("Authentication failed")
			httputil.WriteUnauthorized(w, unauthorizedMessage(err))
		})
	}
}

func bearerToken(r *http.Request) (string, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", auth.ErrMissingToken
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", errInvalidHeader
	}
	return strings.TrimSpace(parts[1]), nil
}

var errInvalidHeader = errors.New("invalid authorization header format")

func unauthorizedMessage(err error) string {
	switch {
	case errors.Is(err, auth.ErrMissingToken):
		return "missing authorization header"
	case errors.Is(err, errInvalidHeader):
		return errInvalidHeader.Error()
	case errors.Is(err, auth.ErrExpiredToken):
		return "token has expired"
	}
	return "invalid or expired token"
}

// IdentityFromContext returns the identity set by Authenticate, or nil
func IdentityFromContext(r *http.Request) *auth.Identity {
	identity, _ := contextkeys.GetIdentity(r.Context()).(*auth.Identity)
	return identity
}

// PrincipalFromRequest converts the request identity into an authz.Principal.
// The zero Principal is unauthenticated.
func PrincipalFromRequest(r *http.Request) authz.Principal {
	identity := IdentityFromContext(r)
	if identity == nil {
		return authz.Principal{}
	}
	return authz.Principal{UserID: identity.UserID, Email: identity.Email}
}

// DecisionFromContext returns the decision stored by PatientAccess, if any
func DecisionFromContext(r *http.Request) (authz.Decision, bool) {
	d, ok := contextkeys.GetDecision(r.Context()).(authz.Decision)
	return d, ok
}
