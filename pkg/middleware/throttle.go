package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/weightlossprojectionlab/familyaccess/pkg/httputil"
	"github.com/weightlossprojectionlab/familyaccess/pkg/observability"
)

// RateLimitOptions configures the RateLimit middleware
type RateLimitOptions struct {
	// FailOpen admits requests when the limiter backend fails. When false
	// such requests get 503.
	FailOpen bool
	Metrics  *observability.Metrics
	Logger   logrus.FieldLogger
}

// RateLimit applies limiter per caller. It runs after Authenticate and keys
// on the user id; anything unauthenticated is keyed by client address.
// Rejections are 429 with code rate_limited, never a permission code.
func RateLimit(limiter Limiter, opts RateLimitOptions) func(http.Handler) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := rateLimitKey(r)
			log := observability.FromContext(r.Context(), logger).WithField("limiter", limiter.Name())

			res, err := limiter.Allow(r.Context(), key)
			if err != nil {
				opts.Metrics.RecordRateLimitError(limiter.Name())
				if opts.FailOpen {
					log.WithError(err).Warn("Rate limiter unavailable, admitting request")
					next.ServeHTTP(w, r)
					return
				}
				log.WithError(err).Error("Rate limiter unavailable, rejecting request")
				httputil.WriteServiceUnavailable(w, "service temporarily unavailable")
				return
			}

			setRateLimitHeaders(w, res)
			if !res.Allowed {
				opts.Metrics.RecordRateLimited(limiter.Name())
				log.WithFields(logrus.Fields{
					"key":         key,
					"retry_after": res.RetryAfter.String(),
				}).Info("Rate limit exceeded")
				httputil.WriteTooManyRequests(w, res.RetryAfter)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func rateLimitKey(r *http.Request) string {
	if identity := IdentityFromContext(r); identity != nil {
		return "user:" + identity.UserID
	}
	return "ip:" + getClientIP(r)
}

func setRateLimitHeaders(w http.ResponseWriter, res Result) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(res.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
	if !res.Allowed {
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(res.RetryAfter).Unix(), 10))
	}
}

// getClientIP returns the first X-Forwarded-For hop, then X-Real-IP, then
// the connection address
func getClientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		return strings.TrimSpace(strings.SplitN(forwarded, ",", 2)[0])
	}
	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return realIP
	}
	return r.RemoteAddr
}
