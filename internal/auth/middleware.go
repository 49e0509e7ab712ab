package auth

import (
	"encoding/json"
	"net/http"
	"strings"

	"billetera/internal/log"
)

func extractToken(r *http.Request) string {
	if authHeader := r.Header.Get("Authorization"); strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	}
	if cookie, err := r.Cookie("token"); err == nil {
		return cookie.Value
	}
	return ""
}

// Middleware rejects requests without a valid bearer token and stores
// the token's user in the request context.
func Middleware(tokens *Tokens, logger *log.Logger) func(http.Handler) http.Handler {
	logger = logger.WithComponent(log.ComponentAuth)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := extractToken(r)
			if raw == "" {
				unauthorized(w, "missing token")
				return
			}
			claims, err := tokens.ParseAndValidate(raw)
			if err != nil {
				logger.WarnContext(r.Context(), "Rejected token",
					log.FieldPath, r.URL.Path,
					log.FieldError, err)
				unauthorized(w, "invalid token")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), claims.User())))
		})
	}
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", `Bearer realm="billetera"`)
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg, "code": "unauthorized"})
}
