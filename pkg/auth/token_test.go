package auth

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/stagelyhq/stagely-backend/pkg/config"
	"github.com/stagelyhq/stagely-backend/pkg/enums"
)

func testJWTConfig() config.JWTConfig {
	return config.JWTConfig{
		Secret:            "test-secret",
		Issuer:            "stagely",
		ExpirationMinutes: 60,
	}
}

func TestMintAndParseAccessToken(t *testing.T) {
	cfg := testJWTConfig()
	userID := uuid.New()

	token, err := MintAccessToken(cfg, time.Now().UTC(), AccessTokenPayload{
		UserID: userID,
		Email:  "user@example.com",
		Role:   enums.ActorRoleUser,
	})
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}

	claims, err := ParseAccessToken(cfg, token)
	if err != nil {
		t.Fatalf("parse token: %v", err)
	}
	if claims.UserID != userID {
		t.Fatalf("user id mismatch: %s", claims.UserID)
	}
	if claims.Email != "user@example.com" {
		t.Fatalf("email mismatch: %s", claims.Email)
	}
	if claims.Role != enums.ActorRoleUser {
		t.Fatalf("role mismatch: %s", claims.Role)
	}
	if claims.Issuer != cfg.Issuer {
		t.Fatalf("issuer mismatch: %s", claims.Issuer)
	}
	if claims.ID == "" {
		t.Fatalf("expected generated jti")
	}
}

func TestMintAccessTokenRejectsInvalidRole(t *testing.T) {
	_, err := MintAccessToken(testJWTConfig(), time.Now().UTC(), AccessTokenPayload{
		UserID: uuid.New(),
		Role:   enums.ActorRole("superuser"),
	})
	if err == nil {
		t.Fatalf("expected invalid role error")
	}
}

func TestParseAccessTokenRejectsExpired(t *testing.T) {
	cfg := testJWTConfig()
	issued := time.Now().UTC().Add(-2 * time.Hour)

	token, err := MintAccessToken(cfg, issued, AccessTokenPayload{
		UserID: uuid.New(),
		Role:   enums.ActorRoleUser,
	})
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}
	if _, err := ParseAccessToken(cfg, token); err == nil {
		t.Fatalf("expected expiry validation failure")
	}
}

func TestParseAccessTokenRejectsWrongSecret(t *testing.T) {
	cfg := testJWTConfig()

	token, err := MintAccessToken(cfg, time.Now().UTC(), AccessTokenPayload{
		UserID: uuid.New(),
		Role:   enums.ActorRoleAdmin,
	})
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}

	other := cfg
	other.Secret = "different-secret"
	if _, err := ParseAccessToken(other, token); err == nil {
		t.Fatalf("expected signature validation failure")
	}
}

func TestParseAccessTokenRejectsWrongIssuer(t *testing.T) {
	cfg := testJWTConfig()

	token, err := MintAccessToken(cfg, time.Now().UTC(), AccessTokenPayload{
		UserID: uuid.New(),
		Role:   enums.ActorRoleUser,
	})
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}

	other := cfg
	other.Issuer = "someone-else"
	if _, err := ParseAccessToken(other, token); err == nil {
		t.Fatalf("expected issuer validation failure")
	}
}
