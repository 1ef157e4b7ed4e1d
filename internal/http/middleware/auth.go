package middleware

import (
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/wolfman30/slotbook/internal/identity"
	"github.com/wolfman30/slotbook/pkg/apperr"
)

// IdentityClaims is the token payload that identifies a caller.
type IdentityClaims struct {
	jwt.RegisteredClaims
	Role string `json:"role"`
}

// IdentityJWT authenticates HMAC-signed bearer tokens and places the caller
// identity (subject and role) in the request context.
func IdentityJWT(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if secret == "" {
				writeUnauthorized(w, "auth disabled")
				return
			}
			auth := r.Header.Get("Authorization")
			if auth == "" || !strings.HasPrefix(auth, "Bearer ") {
				writeUnauthorized(w, "missing authorization header")
				return
			}
			tokenString := strings.TrimPrefix(auth, "Bearer ")
			claims := &IdentityClaims{}
			token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
				if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, jwt.ErrSignatureInvalid
				}
				return []byte(secret), nil
			}, jwt.WithExpirationRequired())
			if err != nil || !token.Valid {
				writeUnauthorized(w, "invalid token")
				return
			}
			role, ok := identity.ParseRole(claims.Role)
			if !ok || strings.TrimSpace(claims.Subject) == "" {
				writeUnauthorized(w, "invalid token claims")
				return
			}
			ctx := identity.WithIdentity(r.Context(), identity.Identity{ID: claims.Subject, Role: role})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole rejects callers whose identity does not carry role.
func RequireRole(role identity.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			who, ok := identity.FromContext(r.Context())
			if !ok {
				writeUnauthorized(w, "missing identity")
				return
			}
			if who.Role != role {
				apperr.WriteJSON(w, apperr.Newf(apperr.KindForbidden, "This action requires the %s role.", role))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeUnauthorized(w http.ResponseWriter, msg string) {
	apperr.WriteJSONStatus(w, http.StatusUnauthorized, "unauthorized", msg)
}
