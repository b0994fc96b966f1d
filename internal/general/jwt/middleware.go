package jwt

import (
	"encoding/json"
	"net/http"

	"ride-hail-sim/internal/domain/user"
)

// AuthMiddleware validates the bearer token, enforces the allowed roles and
// injects the claims into the request context. It plugs into chi's Use and
// With.
func AuthMiddleware(mgr *Manager, allowedRoles ...user.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, err := FromAuthorization(r)
			if err != nil {
				writeError(w, http.StatusUnauthorized, err)
				return
			}

			_, claims, err := mgr.ParseAndValidate(raw)
			if err != nil {
				writeError(w, http.StatusUnauthorized, err)
				return
			}

			if err := RoleAllowed(claims, allowedRoles...); err != nil {
				writeError(w, http.StatusForbidden, err)
				return
			}

			next.ServeHTTP(w, r.WithContext(InjectClaims(r.Context(), claims)))
		})
	}
}

// RequireClaims extracts JWT claims from the request context.
func RequireClaims(r *http.Request) *Claims {
	c, _ := FromContext(r.Context())
	return c
}

func writeError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}
