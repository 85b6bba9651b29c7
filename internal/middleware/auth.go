package middleware

import (
	"net/http"
	"strings"

	"github.com/fintally/tally/internal/auth"
)

// bearerToken pulls the token out of an Authorization header.
func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	parts := strings.Split(header, " ")
	if len(parts) != 2 || parts[0] != "Bearer" {
		return ""
	}
	return parts[1]
}

// RequireOps guards mutating endpoints with the operator token.
func RequireOps(ops *auth.OpsAuthenticator, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := ops.Verify(bearerToken(r)); err != nil {
			http.Error(w, err.Error(), http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireDashboard guards read endpoints: a valid dashboard JWT or the
// operator token gets through.
func RequireDashboard(jwtManager *auth.JWTManager, ops *auth.OpsAuthenticator, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			http.Error(w, auth.ErrMissingToken.Error(), http.StatusUnauthorized)
			return
		}
		if _, err := jwtManager.Validate(token); err != nil {
			if opsErr := ops.Verify(token); opsErr != nil {
				http.Error(w, auth.ErrInvalidToken.Error(), http.StatusUnauthorized)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}
