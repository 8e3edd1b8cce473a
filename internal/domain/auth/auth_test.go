package auth

import (
	"testing"
	"time"
)

func TestHashAndCheckPassword(t *testing.T) {
	hash, err := HashPassword("super-secret")
	if err != nil {
		t.Fatalf("hash error: %v", err)
	}

	if err := CheckPassword(hash, "super-secret"); err != nil {
		t.Fatalf("expected password to match, got %v", err)
	}

	if err := CheckPassword(hash, "wrong"); err == nil {
		t.Fatal("expected mismatch error")
	}
}

func TestGenerateAndParseToken(t *testing.T) {
	secret := "test-secret"
	claims := Claims{UserID: "u1", RoleID: "r1", RoleName: "Manager", RoleLevel: 3}

	token, err := GenerateToken(secret, claims, time.Hour)
	if err != nil {
		t.Fatalf("token error: %v", err)
	}

	parsed, err := ParseToken(secret, token)
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}

	if parsed.UserID != claims.UserID || parsed.RoleID != claims.RoleID || parsed.RoleName != claims.RoleName || parsed.RoleLevel != claims.RoleLevel {
		t.Fatalf("claims mismatch: %+v", parsed)
	}
}

func TestParseTokenRejectsWrongSecretAndExpiry(t *testing.T) {
	claims := Claims{UserID: "u1", RoleLevel: 1}

	token, err := GenerateToken("right-secret", claims, time.Hour)
	if err != nil {
		t.Fatalf("token error: %v", err)
	}
	if _, err := ParseToken("wrong-secret", token); err == nil {
		t.Fatal("expected signature rejection")
	}

	expired, err := GenerateToken("right-secret", claims, -time.Minute)
	if err != nil {
		t.Fatalf("token error: %v", err)
	}
	if _, err := ParseToken("right-secret", expired); err == nil {
		t.Fatal("expected expiry rejection")
	}
}

// Session rotation stores one hash per refresh token, so two tokens minted
// in the same instant must still differ.
func TestTokensMintedTogetherAreDistinct(t *testing.T) {
	claims := Claims{UserID: "u1", RoleLevel: 2}

	first, err := GenerateToken("secret", claims, time.Hour)
	if err != nil {
		t.Fatalf("token error: %v", err)
	}
	second, err := GenerateToken("secret", claims, time.Hour)
	if err != nil {
		t.Fatalf("token error: %v", err)
	}

	if first == second {
		t.Fatal("expected distinct tokens")
	}
	if HashToken(first) == HashToken(second) {
		t.Fatal("expected distinct token hashes")
	}
	if HashToken(first) != HashToken(first) {
		t.Fatal("expected deterministic token hash")
	}
}
