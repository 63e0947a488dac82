// Package auth gates access to the executor with a shared secret.
//
// The check is intentionally simple: the caller sends the secret in one
// header and it must equal the server-side value exactly. There are no users,
// sessions or tokens to issue.
package auth

import (
	"crypto/subtle"
	"log/slog"
	"net/http"

	"github.com/sakif/script-executor/internal/apperror"
	"github.com/sakif/script-executor/internal/respond"
)

// HeaderName carries the shared secret.
const HeaderName = "X-Internal-Auth-Token"

// RequireSharedSecret is a middleware that only lets a request through when
// its HeaderName value equals secret.
//
// FAIL CLOSED:
// An executor that runs arbitrary code must never be reachable without
// authentication. If secret is empty the middleware rejects EVERY request
// with 500, whatever the caller sent.
//
//	secret == ""              → 500 InternalServerError
//	header missing / mismatch → 401 InputError
//	header matches            → next handler, request unchanged
func RequireSharedSecret(secret string, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if secret == "" {
				logger.Error("shared secret is not configured, denying all requests")
				respond.Error(w, apperror.Misconfigured("Service authentication not configured."))
				return
			}

			if !matches(r.Header.Values(HeaderName), secret) {
				logger.Warn("unauthorized request: missing or invalid token",
					slog.String("header", HeaderName),
					slog.String("remote", r.RemoteAddr),
				)
				respond.Error(w, apperror.Unauthorized("Unauthorized."))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// matches compares in constant time so response timing does not reveal how
// much of the secret a guess got right. Exactly one header value is accepted.
func matches(values []string, secret string) bool {
	if len(values) != 1 {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(values[0]), []byte(secret)) == 1
}
