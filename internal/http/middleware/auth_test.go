package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/wolfman30/slotbook/internal/identity"
)

func signedIdentityToken(t *testing.T, secret, subject, role string, ttl time.Duration) string {
	t.Helper()
	claims := IdentityClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
		},
		Role: role,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func TestIdentityJWTRejects(t *testing.T) {
	cases := []struct {
		name   string
		secret string
		header string
	}{
		{name: "auth disabled", secret: "", header: "Bearer x"},
		{name: "missing header", secret: "secret"},
		{name: "wrong secret", secret: "secret", header: "Bearer " + signedIdentityToken(t, "other", "u1", "patient", time.Minute)},
		{name: "expired", secret: "secret", header: "Bearer " + signedIdentityToken(t, "secret", "u1", "patient", -time.Minute)},
		{name: "unknown role", secret: "secret", header: "Bearer " + signedIdentityToken(t, "secret", "u1", "admin", time.Minute)},
		{name: "missing subject", secret: "secret", header: "Bearer " + signedIdentityToken(t, "secret", "", "doctor", time.Minute)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/appointments", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			IdentityJWT(tc.secret)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				t.Fatalf("handler must not run")
			})).ServeHTTP(rec, req)

			if rec.Code != http.StatusUnauthorized {
				t.Fatalf("expected status %d, got %d", http.StatusUnauthorized, rec.Code)
			}
		})
	}
}

func TestIdentityJWTPopulatesIdentity(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/appointments", nil)
	req.Header.Set("Authorization", "Bearer "+signedIdentityToken(t, "secret", "doc-1", "Doctor", time.Minute))
	rec := httptest.NewRecorder()

	var got identity.Identity
	IdentityJWT("secret")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		who, ok := identity.FromContext(r.Context())
		if !ok {
			t.Fatalf("expected identity in context")
		}
		got = who
		w.WriteHeader(http.StatusOK)
	})).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
	}
	if got.ID != "doc-1" || got.Role != identity.RoleDoctor {
		t.Fatalf("unexpected identity %+v", got)
	}
}

func TestRequireRole(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	gate := RequireRole(identity.RoleDoctor)(next)

	req := httptest.NewRequest(http.MethodPost, "/doctor/slots", nil)
	rec := httptest.NewRecorder()
	gate.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without identity, got %d", rec.Code)
	}

	req = req.WithContext(identity.WithIdentity(req.Context(), identity.Identity{ID: "u1", Role: identity.RolePatient}))
	rec = httptest.NewRecorder()
	gate.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for patient, got %d", rec.Code)
	}

	req = req.WithContext(identity.WithIdentity(req.Context(), identity.Identity{ID: "doc-1", Role: identity.RoleDoctor}))
	rec = httptest.NewRecorder()
	gate.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for doctor, got %d", rec.Code)
	}
}
