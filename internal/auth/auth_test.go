package auth

import (
	"testing"
	"time"
)

func TestGenerateAndValidateToken(t *testing.T) {
	t.Setenv("PALENGKE_AUTH_SECRET", "test-secret")
	ResetSecretForTests()
	t.Cleanup(ResetSecretForTests)

	token, err := GenerateToken("finance-ops", []string{"Admin", "admin", " reporting "}, time.Minute)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	claims, err := ParseAndValidate(token)
	if err != nil {
		t.Fatalf("ParseAndValidate: %v", err)
	}
	if claims.Subject != "finance-ops" {
		t.Fatalf("subject = %q", claims.Subject)
	}
	if len(claims.Roles) != 2 {
		t.Fatalf("roles not deduped: %v", claims.Roles)
	}
	if !claims.IsAdmin() {
		t.Fatal("expected admin role")
	}
}

func TestParseRejectsTamperedToken(t *testing.T) {
	t.Setenv("PALENGKE_AUTH_SECRET", "test-secret")
	ResetSecretForTests()
	t.Cleanup(ResetSecretForTests)

	token, err := GenerateToken("ops", nil, time.Minute)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	if _, err := ParseAndValidate(token + "x"); err != ErrInvalidToken {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestGenerateTokenRequiresSecret(t *testing.T) {
	t.Setenv("PALENGKE_AUTH_SECRET", "")
	ResetSecretForTests()
	t.Cleanup(ResetSecretForTests)

	if _, err := GenerateToken("ops", nil, time.Minute); err == nil {
		t.Fatal("expected error without configured secret")
	}
	if SupportsTokens() {
		t.Fatal("SupportsTokens should be false without a secret")
	}
}
