package models

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestUserPassword(t *testing.T) {
	t.Parallel()

	u := &User{Email: "dr.house@example.org", Role: RoleDoctor}
	if err := u.SetPassword("correct horse"); err != nil {
		t.Fatalf("SetPassword failed: %v", err)
	}
	if u.PasswordHash == "correct horse" {
		t.Fatal("password stored in clear")
	}
	if !u.CheckPassword("correct horse") {
		t.Error("expected password to match")
	}
	if u.CheckPassword("wrong") {
		t.Error("expected wrong password to be rejected")
	}

	raw, err := json.Marshal(u.Sanitize())
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	if strings.Contains(string(raw), "passwordHash") {
		t.Errorf("sanitized user leaks the hash: %s", raw)
	}
}

func TestRoleIsValid(t *testing.T) {
	t.Parallel()

	for _, r := range []Role{RoleAdmin, RoleDoctor, RolePatient} {
		if !r.IsValid() {
			t.Errorf("%q should be valid", r)
		}
	}
	if Role("nurse").IsValid() {
		t.Error("nurse is not a supported role")
	}
}

func TestRefreshToken(t *testing.T) {
	t.Parallel()

	now := time.Now()
	tok := &RefreshToken{ExpiresAt: now.Add(time.Hour)}
	if !tok.Usable(now) {
		t.Error("fresh token should be usable")
	}
	if tok.Usable(now.Add(2 * time.Hour)) {
		t.Error("expired token should not be usable")
	}
	tok.IsRevoked = true
	if tok.Usable(now) {
		t.Error("revoked token should not be usable")
	}

	if HashToken("abc") != HashToken("abc") || HashToken("abc") == HashToken("abd") {
		t.Error("HashToken must be deterministic and distinguish inputs")
	}
	if len(HashToken("abc")) != 64 {
		t.Errorf("expected 64 hex chars, got %d", len(HashToken("abc")))
	}
}
