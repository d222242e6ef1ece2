package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

type contextKey string

const claimsKey contextKey = "auth_claims"

// ClaimsFromContext extracts operator claims from request context.
func ClaimsFromContext(ctx context.Context) *Claims {
	claims, _ := ctx.Value(claimsKey).(*Claims)
	return claims
}

// AuthenticateOperator returns middleware validating operator bearer
// tokens. When the manager has no secret configured the middleware
// passes requests through unchanged.
func AuthenticateOperator(jwtMgr *JWTManager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !jwtMgr.Enabled() {
				next.ServeHTTP(w, r)
				return
			}

			claims, err := extractAndValidate(r, jwtMgr)
			if err != nil {
				writeUnauthorized(w, err)
				return
			}

			ctx := context.WithValue(r.Context(), claimsKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// writeUnauthorized marshals the error body so token errors cannot
// break the JSON encoding.
func writeUnauthorized(w http.ResponseWriter, err error) {
	body, _ := json.Marshal(struct {
		Success bool   `json:"success"`
		Error   string `json:"error"`
		Code    string `json:"code"`
	}{Error: err.Error(), Code: "UNAUTHORIZED"})

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	w.Write(body)
}

func extractAndValidate(r *http.Request, jwtMgr *JWTManager) (*Claims, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return nil, fmt.Errorf("missing Authorization header")
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return nil, fmt.Errorf("invalid Authorization format")
	}

	return jwtMgr.ValidateToken(parts[1])
}
