package identity

import (
	"context"
	"testing"
)

func TestWithIdentityAndFromContext(t *testing.T) {
	ctx := WithIdentity(context.Background(), Identity{ID: "user-123", Role: RolePatient})

	got, ok := FromContext(ctx)
	if !ok {
		t.Fatalf("expected identity to be present")
	}
	if got.ID != "user-123" || got.Role != RolePatient {
		t.Fatalf("unexpected identity %+v", got)
	}
	if got.IsDoctor() {
		t.Fatalf("patient should not be a doctor")
	}
}

func TestFromContext_EmptyOrMissing(t *testing.T) {
	ctx := context.Background()
	if _, ok := FromContext(ctx); ok {
		t.Fatalf("expected missing identity to return false")
	}

	ctx = context.WithValue(ctx, identityKey, "user-1")
	if _, ok := FromContext(ctx); ok {
		t.Fatalf("expected non-identity value to return false")
	}

	ctx = WithIdentity(context.Background(), Identity{Role: RoleDoctor})
	if _, ok := FromContext(ctx); ok {
		t.Fatalf("expected empty id to return false")
	}
}

func TestParseRole(t *testing.T) {
	tests := []struct {
		raw  string
		want Role
		ok   bool
	}{
		{"doctor", RoleDoctor, true},
		{" Patient ", RolePatient, true},
		{"admin", Role("admin"), false},
		{"", Role(""), false},
	}
	for _, tt := range tests {
		got, ok := ParseRole(tt.raw)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ParseRole(%q) = %q,%v want %q,%v", tt.raw, got, ok, tt.want, tt.ok)
		}
	}
}
