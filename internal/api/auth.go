package api

import (
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

const (
	authorizationHeader = "Authorization"
	bearerPrefix        = "Bearer"
	adminRole           = "admin"
)

// AdminAuthMiddleware rejects requests without a valid admin bearer token.
// Identity lives outside this service; the token is the whole contract.
func AdminAuthMiddleware(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get(authorizationHeader)
			if header == "" {
				writeError(w, http.StatusUnauthorized, "missing_authorization", "Authorization header is required")
				return
			}

			fields := strings.Fields(header)
			if len(fields) != 2 || !strings.EqualFold(fields[0], bearerPrefix) {
				writeError(w, http.StatusUnauthorized, "invalid_authorization", "expected a bearer token")
				return
			}

			claims := jwt.MapClaims{}
			token, err := jwt.ParseWithClaims(fields[1], claims, func(t *jwt.Token) (any, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, jwt.ErrSignatureInvalid
				}
				return []byte(secret), nil
			})
			if err != nil || !token.Valid {
				writeError(w, http.StatusUnauthorized, "invalid_token", "token is invalid or expired")
				return
			}

			if role, _ := claims["role"].(string); role != adminRole {
				writeError(w, http.StatusForbidden, "forbidden", "admin role required")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
